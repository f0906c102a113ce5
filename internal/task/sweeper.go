package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/store"
	"github.com/robfig/cron/v3"
)

// Poller runs the poll path for one task.
type Poller interface {
	Poll(ctx context.Context, taskID string) (*domain.GenerationTask, error)
}

// SweeperConfig holds the background sweep settings.
type SweeperConfig struct {
	// Schedule is a cron spec such as "@every 1m".
	Schedule string
	// BatchSize caps how many active tasks one sweep visits.
	BatchSize int
}

// Sweeper periodically polls tasks that are still running, so tasks whose
// webhook was lost still finish when no client asks about them. It goes
// through the same poll path as clients, so the per-task throttle applies.
type Sweeper struct {
	store     store.TaskStore
	poller    Poller
	batchSize int
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger
}

// NewSweeper validates the schedule and returns a stopped Sweeper.
func NewSweeper(taskStore store.TaskStore, poller Poller, cfg SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	if cfg.Schedule == "" {
		return nil, errors.New("sweep schedule cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "task_sweeper")

	cronLog := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		store:     taskStore,
		poller:    poller,
		batchSize: cfg.BatchSize,
		cron:      c,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	if _, err := c.AddFunc(cfg.Schedule, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running sweeps on schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("task sweeper started")
}

// Stop cancels an in-flight sweep and waits for it to return.
func (s *Sweeper) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("task sweeper stopped")
}

func (s *Sweeper) run() {
	if _, err := s.SweepOnce(s.ctx); err != nil {
		s.logger.Error("task sweep failed", "error", err)
	}
}

// SweepOnce polls up to BatchSize active tasks, least recently updated
// first, and returns how many it visited. Per-task poll errors are logged.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	tasks, err := s.store.ListActive(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list active tasks: %w", err)
	}

	visited := 0
	finished := 0
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		updated, err := s.poller.Poll(ctx, t.ID)
		visited++
		if err != nil {
			s.logger.Warn("sweep poll failed", "task_id", t.ID, "error", err)
			continue
		}
		if updated.Status.IsTerminal() {
			finished++
		}
	}

	if visited > 0 {
		s.logger.Info("task sweep completed",
			"visited", visited,
			"finished", finished)
	}
	return visited, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
