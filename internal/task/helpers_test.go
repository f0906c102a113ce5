package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/events"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/platform/memstore"
	"github.com/phrazzld/banana-api/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider returns a configurable status report and counts calls.
type fakeProvider struct {
	mu          sync.Mutex
	report      generation.StatusReport
	fetchErr    error
	fetchCalls  int
	submitID    string
	submitErr   error
	submitCalls int
	// gate, when set, blocks FetchStatus until it is closed.
	gate chan struct{}
}

func (p *fakeProvider) Submit(ctx context.Context, req generation.SubmitRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitCalls++
	return p.submitID, p.submitErr
}

func (p *fakeProvider) FetchStatus(ctx context.Context, taskID string) (*generation.StatusReport, error) {
	p.mu.Lock()
	p.fetchCalls++
	gate := p.gate
	report := p.report
	err := p.fetchErr
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	report.TaskID = taskID
	return &report, nil
}

func (p *fakeProvider) setReport(r generation.StatusReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report = r
	p.fetchErr = err
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchCalls
}

// finishedRecorder counts task.finished events and the files they release.
type finishedRecorder struct {
	mu       sync.Mutex
	byTask   map[string]int
	released map[string][]string
}

func newFinishedRecorder() *finishedRecorder {
	return &finishedRecorder{
		byTask:   make(map[string]int),
		released: make(map[string][]string),
	}
}

func (r *finishedRecorder) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	var payload events.TaskFinished
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTask[event.TaskID]++
	r.released[event.TaskID] = append(r.released[event.TaskID], payload.ReleasedFiles...)
	return nil
}

func (r *finishedRecorder) count(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byTask[taskID]
}

func (r *finishedRecorder) files(taskID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released[taskID]...)
}

type engineFixture struct {
	engine   *Engine
	store    *memstore.TaskStore
	provider *fakeProvider
	recorder *finishedRecorder
	clock    *fakeClock
}

const testPollInterval = 30 * time.Second

func newEngineFixture(t *testing.T, opts ...EngineOption) *engineFixture {
	t.Helper()
	logger := setupTestLogger()
	clock := newFakeClock()
	st := memstore.NewTaskStore(logger)
	provider := &fakeProvider{}
	recorder := newFinishedRecorder()

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.Subscribe(events.TypeTaskFinished, recorder)

	opts = append([]EngineOption{WithClock(clock.Now)}, opts...)
	engine := NewEngine(st, provider, emitter, EngineConfig{PollInterval: testPollInterval}, logger, opts...)

	return &engineFixture{
		engine:   engine,
		store:    st,
		provider: provider,
		recorder: recorder,
		clock:    clock,
	}
}

func (f *engineFixture) seed(t *testing.T, id string) *domain.GenerationTask {
	t.Helper()
	task := storetest.NewTask(t, id, f.clock.Now())
	require.NoError(t, f.store.Create(context.Background(), task))
	return task
}

func intPtr(v int) *int { return &v }
