package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/events"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/platform/logger"
	"github.com/phrazzld/banana-api/internal/store"
)

// ErrTooManyConflicts is returned when an outcome could not be written
// because the record kept changing underneath it.
var ErrTooManyConflicts = errors.New("too many concurrent writes")

// ResultCache is a read-through cache of terminal tasks.
type ResultCache interface {
	Get(ctx context.Context, taskID string) (*domain.GenerationTask, bool, error)
}

// EngineConfig holds the reconciliation settings.
type EngineConfig struct {
	// PollInterval is the minimum time between provider lookups for one task.
	PollInterval time.Duration
	// MaxWriteAttempts bounds the re-read and retry loop on write conflicts.
	MaxWriteAttempts int
}

// DefaultEngineConfig returns a 30 second poll interval.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PollInterval:     30 * time.Second,
		MaxWriteAttempts: 5,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResultCache makes Poll consult cache before the store.
func WithResultCache(cache ResultCache) EngineOption {
	return func(e *Engine) { e.cache = cache }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine reconciles task state from status polls and provider webhooks.
//
// Every write is a conditional store update, so a poll and a webhook racing on
// the same task cannot overwrite each other. Whichever write first turns the
// task terminal emits the task.finished event; every other attempt sees a
// terminal record and becomes a no-op.
type Engine struct {
	store    store.TaskStore
	provider generation.Provider
	emitter  events.EventEmitter
	cache    ResultCache
	cfg      EngineConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(
	taskStore store.TaskStore,
	provider generation.Provider,
	emitter events.EventEmitter,
	cfg EngineConfig,
	log *slog.Logger,
	opts ...EngineOption,
) *Engine {
	def := DefaultEngineConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxWriteAttempts <= 0 {
		cfg.MaxWriteAttempts = def.MaxWriteAttempts
	}
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		store:    taskStore,
		provider: provider,
		emitter:  emitter,
		cfg:      cfg,
		now:      time.Now,
		logger:   log.With("component", "reconciliation_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Poll returns the current state of a task, asking the provider first if the
// task is still running and its poll interval has elapsed. Provider errors
// are logged and the task is reported as still running. Store errors,
// including store.ErrTaskNotFound, are returned.
func (e *Engine) Poll(ctx context.Context, taskID string) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, e.logger).With("task_id", taskID)

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, taskID)
		switch {
		case err != nil:
			log.Warn("result cache lookup failed", "error", err)
		case ok:
			return cached, nil
		}
	}

	task, err := e.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	now := e.now()
	if !task.PollDue(now, e.cfg.PollInterval) {
		return task, nil
	}

	// Claim this poll slot. Losing the claim means a concurrent poll or a
	// webhook wrote first; its result is what we report.
	claimed := task.Clone()
	claimed.MarkPolled(now)
	if err := e.store.Update(ctx, claimed); err != nil {
		if store.IsStaleWriteError(err) {
			log.Debug("poll slot taken by a concurrent writer")
			return e.store.Get(ctx, taskID)
		}
		return nil, err
	}

	report, err := e.provider.FetchStatus(ctx, taskID)
	if err != nil {
		log.Warn("provider status lookup failed, will retry after poll interval",
			"error", err,
			"poll_interval", e.cfg.PollInterval)
		return claimed, nil
	}

	outcome := report.Outcome()
	if outcome.IsPending() {
		log.Debug("task still running at provider", "success_flag", int(report.SuccessFlag))
		return claimed, nil
	}

	updated, _, err := e.apply(ctx, claimed, outcome, "poll")
	return updated, err
}

// apply writes outcome onto task, re-reading and retrying on write conflicts.
// It returns the task as stored afterwards and the effective transition.
func (e *Engine) apply(
	ctx context.Context,
	task *domain.GenerationTask,
	outcome domain.Outcome,
	source string,
) (*domain.GenerationTask, domain.Transition, error) {
	log := logger.FromContextOrDefault(ctx, e.logger).With(
		"task_id", task.ID,
		"source", source,
		"outcome", outcome.Kind.String(),
	)

	current := task
	for attempt := 1; ; attempt++ {
		next := current.Clone()
		tr := next.ApplyOutcome(outcome, e.now())
		if !tr.Changed {
			log.Info("outcome conflicts with terminal status, ignored",
				"status", string(current.Status))
			return current, tr, nil
		}

		err := e.store.Update(ctx, next)
		if err == nil {
			if tr.Transitioned {
				log.Info("task finished", "status", string(next.Status))
				e.emitFinished(ctx, next, tr.Released)
			}
			return next, tr, nil
		}

		if !store.IsStaleWriteError(err) {
			return nil, domain.Transition{}, err
		}
		if attempt >= e.cfg.MaxWriteAttempts {
			return nil, domain.Transition{}, fmt.Errorf("%w: task %s after %d attempts: %w",
				ErrTooManyConflicts, task.ID, attempt, err)
		}

		log.Debug("write conflict, re-reading task", "attempt", attempt)
		current, err = e.store.Get(ctx, task.ID)
		if err != nil {
			return nil, domain.Transition{}, err
		}
	}
}

// emitFinished publishes the task.finished event. The transition is already
// committed, so handler failures are logged rather than returned.
func (e *Engine) emitFinished(ctx context.Context, task *domain.GenerationTask, released []string) {
	if e.emitter == nil {
		return
	}

	payload := events.TaskFinished{
		Status:        string(task.Status),
		ReleasedFiles: released,
		Task:          task.Clone(),
	}
	if task.ResultImageURL != nil {
		payload.ResultImageURL = *task.ResultImageURL
	}
	if task.ErrorMessage != nil {
		payload.ErrorMessage = *task.ErrorMessage
	}

	log := logger.FromContextOrDefault(ctx, e.logger).With("task_id", task.ID)
	event, err := events.NewTaskFinishedEvent(task.ID, payload)
	if err != nil {
		log.Error("failed to build task.finished event", "error", err)
		return
	}
	if err := e.emitter.EmitEvent(ctx, event); err != nil {
		log.Error("task.finished handlers failed", "error", err)
	}
}
