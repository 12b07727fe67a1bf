// Package server exposes the border removal pipeline over HTTP: runs are
// submitted to a sequential queue and their state changes are streamed to
// websocket subscribers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/logger"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

// Server is the job server
type Server struct {
	logger hclog.Logger
	cfg    config.ServerConfig
	queue  *Queue
	hub    *Hub
	store  RunStore
	engine *gin.Engine
}

// New creates a server. store may be nil when run history is disabled.
func New(log hclog.Logger, runner Runner, store RunStore, cfg config.ServerConfig) *Server {
	log = logger.OrNull(log).Named("server")
	hub := NewHub(log)

	s := &Server{
		logger: log,
		cfg:    cfg,
		hub:    hub,
		store:  store,
	}
	s.queue = NewQueue(log, runner, store, cfg.QueueSize, hub.Broadcast)
	s.engine = s.setupRouter()
	return s
}

// Transition forwards a pipeline state change to websocket subscribers.
// Register it with pipeline.OnTransition.
func (s *Server) Transition(runID string, from, to pipeline.State) {
	s.hub.Broadcast(Event{Type: "transition", RunID: runID, From: string(from), To: string(to)})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.queue.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("job server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			serveErr = fmt.Errorf("job server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("job server shutdown", "error", err)
	}

	cancel()
	<-done
	return serveErr
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].QueuedAt.After(jobs[j].QueuedAt)
	})
}
