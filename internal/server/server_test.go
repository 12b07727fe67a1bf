package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/ffcrop/internal/config"
	"github.com/mantonx/ffcrop/internal/cropdetect"
	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/mantonx/ffcrop/internal/journal"
	"github.com/mantonx/ffcrop/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner returns a canned result for every run
type fakeRunner struct {
	mu    sync.Mutex
	calls []pipeline.Options
	state pipeline.State
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	state := f.state
	if state == "" {
		state = pipeline.StateDone
	}
	return &pipeline.Result{
		RunID:    opts.RunID,
		Input:    opts.Input,
		Strategy: opts.Strategy,
		State:    state,
		Outcome:  cropdetect.Borders("", cropdetect.CropBox{Filter: "crop=1280:544:0:88"}),
		Err:      f.err,
	}, f.err
}

// MockStore implements RunStore for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Record(ctx context.Context, run *journal.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, id string) (*journal.Run, error) {
	args := m.Called(ctx, id)
	if run, ok := args.Get(0).(*journal.Run); ok {
		return run, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Recent(ctx context.Context, limit int) ([]journal.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]journal.Run)
	return runs, args.Error(1)
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{Host: "127.0.0.1", Port: 0, QueueSize: 2}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := New(hclog.NewNullLogger(), &fakeRunner{}, nil, testServerConfig())
	w := doRequest(t, s.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSubmitRunValidation(t *testing.T) {
	s := New(hclog.NewNullLogger(), &fakeRunner{}, nil, testServerConfig())

	tests := []struct {
		name string
		body string
	}{
		{"missing input", `{"strategy":"software"}`},
		{"bad strategy", `{"input":"a.mp4","strategy":"gpu"}`},
		{"bad scan", `{"input":"a.mp4","scan":"half"}`},
		{"not json", `input=a.mp4`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s.Handler(), http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, "validation", resp.Error.Code)
		})
	}
}

func TestSubmitRunQueueFull(t *testing.T) {
	// Nothing drains the queue, so the third submit overflows it
	s := New(hclog.NewNullLogger(), &fakeRunner{}, nil, testServerConfig())

	for i := 0; i < 2; i++ {
		w := doRequest(t, s.Handler(), http.MethodPost, "/api/runs", `{"input":"a.mp4"}`)
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	w := doRequest(t, s.Handler(), http.MethodPost, "/api/runs", `{"input":"a.mp4"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmitAndProcess(t *testing.T) {
	runner := &fakeRunner{}
	store := &MockStore{}
	store.On("Record", mock.Anything, mock.MatchedBy(func(run *journal.Run) bool {
		return run.Input == "/videos/clip.mp4" && run.State == "done"
	})).Return(nil).Once()

	s := New(hclog.NewNullLogger(), runner, store, testServerConfig())

	w := doRequest(t, s.Handler(), http.MethodPost, "/api/runs", `{"input":"/videos/clip.mp4","strategy":"accelerated","scan":"quick"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var job Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, "accelerated", job.Strategy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.queue.Run(ctx)

	require.Eventually(t, func() bool {
		got, ok := s.queue.Get(job.ID)
		return ok && got.Status == JobDone
	}, 2*time.Second, 10*time.Millisecond)

	w = doRequest(t, s.Handler(), http.MethodGet, "/api/runs/"+job.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	require.NotNil(t, job.Result)
	assert.Equal(t, "crop=1280:544:0:88", job.Result.Filter)

	runner.mu.Lock()
	require.Len(t, runner.calls, 1)
	assert.Equal(t, pipeline.StrategyAccelerated, runner.calls[0].Strategy)
	assert.Equal(t, cropdetect.ScanQuick, runner.calls[0].Scan)
	assert.Equal(t, job.ID, runner.calls[0].RunID)
	runner.mu.Unlock()

	store.AssertExpectations(t)
}

func TestAbortedRunStatus(t *testing.T) {
	runner := &fakeRunner{state: pipeline.StateAborted, err: cErrors.ProbeError("probe_dimensions", errors.New("exit status 1"))}
	s := New(hclog.NewNullLogger(), runner, nil, testServerConfig())

	job, err := s.queue.Submit(pipeline.Options{Input: "clip.mp4"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.queue.Run(ctx)

	require.Eventually(t, func() bool {
		got, ok := s.queue.Get(job.ID)
		return ok && got.Status == JobAborted
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := s.queue.Get(job.ID)
	assert.Equal(t, "probe", got.Result.ErrorType)
}

func TestListAndGetFromStore(t *testing.T) {
	store := &MockStore{}
	store.On("Recent", mock.Anything, 5).Return([]journal.Run{{ID: "r1", Input: "a.mp4", State: "done"}}, nil)
	store.On("Get", mock.Anything, "r1").Return(&journal.Run{ID: "r1", Input: "a.mp4", State: "done"}, nil)
	store.On("Get", mock.Anything, "missing").Return(nil, journal.ErrNotFound)

	s := New(hclog.NewNullLogger(), &fakeRunner{}, store, testServerConfig())

	w := doRequest(t, s.Handler(), http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"r1"`)

	w = doRequest(t, s.Handler(), http.MethodGet, "/api/runs/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"done"`)

	w = doRequest(t, s.Handler(), http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, s.Handler(), http.MethodGet, "/api/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.AssertExpectations(t)
}

func TestEventsWebSocket(t *testing.T) {
	s := New(hclog.NewNullLogger(), &fakeRunner{}, nil, testServerConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Transition("run-1", pipeline.StateIdle, pipeline.StateDetecting)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "transition", ev.Type)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "idle", ev.From)
	assert.Equal(t, "detecting", ev.To)
}

func TestSubmitRunRequiresJSON(t *testing.T) {
	runner := &fakeRunner{}
	s := New(hclog.NewNullLogger(), runner, nil, testServerConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"input":"/home/u/movie.mp4","output":"/home/u/.bashrc"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Empty(t, s.queue.List())
}

func TestForeignOriginRejected(t *testing.T) {
	s := New(hclog.NewNullLogger(), &fakeRunner{}, nil, testServerConfig())

	tests := []struct {
		name   string
		origin string
		want   int
	}{
		{"foreign site", "https://evil.example", http.StatusForbidden},
		{"malformed", "::not a url", http.StatusForbidden},
		{"loopback", "http://127.0.0.1:3000", http.StatusAccepted},
		{"localhost", "http://localhost:8086", http.StatusAccepted},
		{"same host", "http://example.com", http.StatusAccepted},
		{"no origin", "", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Fresh queue per case so it never fills up
			s.queue = NewQueue(hclog.NewNullLogger(), &fakeRunner{}, nil, 1, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"input":"a.mp4"}`))
			req.Header.Set("Content-Type", "application/json")
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestEventsWebSocketForeignOrigin(t *testing.T) {
	s := New(hclog.NewNullLogger(), &fakeRunner{}, nil, testServerConfig())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, s.hub.ClientCount())
}

func TestSubmitRunExistingOutput(t *testing.T) {
	s := New(hclog.NewNullLogger(), &fakeRunner{}, nil, testServerConfig())
	output := filepath.Join(t.TempDir(), "existing.mp4")
	require.NoError(t, os.WriteFile(output, []byte("keep"), 0644))

	body := `{"input":"a.mp4","output":"` + filepath.ToSlash(output) + `"}`
	w := doRequest(t, s.Handler(), http.MethodPost, "/api/runs", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")

	body = `{"input":"a.mp4","output":"` + filepath.ToSlash(output) + `","overwrite":true}`
	w = doRequest(t, s.Handler(), http.MethodPost, "/api/runs", body)
	assert.Equal(t, http.StatusAccepted, w.Code)
}
