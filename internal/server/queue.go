package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/ffcrop/internal/journal"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

// Job status values
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobAborted = "aborted"
)

// maxFinishedJobs bounds how many finished jobs stay in memory
const maxFinishedJobs = 200

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
}

// RunStore persists finished runs
type RunStore interface {
	Record(ctx context.Context, run *journal.Run) error
	Get(ctx context.Context, id string) (*journal.Run, error)
	Recent(ctx context.Context, limit int) ([]journal.Run, error)
}

// Job is a submitted run as seen by API clients
type Job struct {
	ID       string       `json:"id"`
	Input    string       `json:"input"`
	Strategy string       `json:"strategy"`
	Scan     string       `json:"scan"`
	DryRun   bool         `json:"dry_run"`
	Status   string       `json:"status"`
	QueuedAt time.Time    `json:"queued_at"`
	Result   *journal.Run `json:"result,omitempty"`

	opts pipeline.Options
}

// Queue feeds submitted runs to the pipeline one at a time
type Queue struct {
	logger  hclog.Logger
	runner  Runner
	store   RunStore // optional
	publish func(Event)

	pending chan *Job

	mu       sync.RWMutex
	jobs     map[string]*Job
	finished []string
}

// NewQueue creates a queue holding at most size waiting runs
func NewQueue(log hclog.Logger, runner Runner, store RunStore, size int, publish func(Event)) *Queue {
	if publish == nil {
		publish = func(Event) {}
	}
	return &Queue{
		logger:  log,
		runner:  runner,
		store:   store,
		publish: publish,
		pending: make(chan *Job, size),
		jobs:    make(map[string]*Job),
	}
}

// Submit queues opts and returns the new job
func (q *Queue) Submit(opts pipeline.Options) (Job, error) {
	opts.RunID = uuid.NewString()
	job := &Job{
		ID:       opts.RunID,
		Input:    opts.Input,
		Strategy: string(opts.Strategy),
		Scan:     string(opts.Scan),
		DryRun:   opts.DryRun,
		Status:   JobQueued,
		QueuedAt: time.Now(),
		opts:     opts,
	}

	q.mu.Lock()
	select {
	case q.pending <- job:
		q.jobs[job.ID] = job
	default:
		q.mu.Unlock()
		return Job{}, errQueueFull
	}
	snapshot := *job
	q.mu.Unlock()

	q.logger.Info("run queued", "run_id", job.ID, "input", job.Input)
	q.publish(Event{Type: "queued", RunID: job.ID, Job: &snapshot})
	return snapshot, nil
}

// Get returns a snapshot of a job this process has seen
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all known jobs, newest first
func (q *Queue) List() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	jobs := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		jobs = append(jobs, *job)
	}
	sortJobs(jobs)
	return jobs
}

// Run processes queued jobs until ctx is done
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case job := <-q.pending:
			q.process(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, job *Job) {
	q.setStatus(job, JobRunning, nil)

	result, err := q.runner.Run(ctx, job.opts)
	if result == nil {
		// The pipeline always returns a result; guard against fakes that do not
		result = &pipeline.Result{RunID: job.ID, Input: job.Input, State: pipeline.StateAborted, Err: err}
	}

	record := journal.FromResult(result)
	if q.store != nil {
		if err := q.store.Record(ctx, record); err != nil {
			q.logger.Error("failed to record run", "run_id", job.ID, "error", err)
		}
	}

	status := JobDone
	if result.State != pipeline.StateDone {
		status = JobAborted
	}
	q.setStatus(job, status, record)

	q.logger.Info("run finished", "run_id", job.ID, "state", result.State, "error", err)
}

func (q *Queue) setStatus(job *Job, status string, record *journal.Run) {
	q.mu.Lock()
	job.Status = status
	if record != nil {
		job.Result = record
		q.finished = append(q.finished, job.ID)
		if len(q.finished) > maxFinishedJobs {
			delete(q.jobs, q.finished[0])
			q.finished = q.finished[1:]
		}
	}
	snapshot := *job
	q.mu.Unlock()

	evType := "status"
	if record != nil {
		evType = "finished"
	}
	q.publish(Event{Type: evType, RunID: job.ID, Job: &snapshot})
}
