package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/banana-api/internal/generation"
)

// ProviderPool is a generation.Provider that runs every call on a bounded
// WorkerPool, so slow provider round-trips are capped at the pool's worker
// count and never pile up on request goroutines beyond the queue size.
type ProviderPool struct {
	provider generation.Provider
	queue    JobQueueWriter
	done     <-chan struct{}
	logger   *slog.Logger
}

// Ensure ProviderPool implements generation.Provider.
var _ generation.Provider = (*ProviderPool)(nil)

// NewProviderPool routes provider calls through queue, which must be consumed
// by pool.
func NewProviderPool(
	provider generation.Provider,
	queue JobQueueWriter,
	pool *WorkerPool,
	logger *slog.Logger,
) *ProviderPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderPool{
		provider: provider,
		queue:    queue,
		done:     pool.Done(),
		logger:   logger.With("component", "provider_pool"),
	}
}

// Submit implements generation.Provider.
func (p *ProviderPool) Submit(ctx context.Context, req generation.SubmitRequest) (string, error) {
	var taskID string
	err := p.run(ctx, "provider.submit", func(ctx context.Context) error {
		var err error
		taskID, err = p.provider.Submit(ctx, req)
		return err
	})
	return taskID, err
}

// FetchStatus implements generation.Provider.
func (p *ProviderPool) FetchStatus(ctx context.Context, taskID string) (*generation.StatusReport, error) {
	var report *generation.StatusReport
	err := p.run(ctx, "provider.fetch_status", func(ctx context.Context) error {
		var err error
		report, err = p.provider.FetchStatus(ctx, taskID)
		return err
	})
	return report, err
}

// run enqueues fn and waits for it. A full or closed queue is reported as
// provider unavailability, wrapping ErrQueueFull or ErrQueueClosed.
func (p *ProviderPool) run(ctx context.Context, kind string, fn func(context.Context) error) error {
	call := &providerCall{
		id:        uuid.New(),
		kind:      kind,
		callerCtx: ctx,
		fn:        fn,
		done:      make(chan error, 1),
	}

	if err := p.queue.Enqueue(call); err != nil {
		p.logger.Warn("provider call rejected", "kind", kind, "error", err)
		return generation.NewUnavailableError(0, "provider call queue unavailable", err)
	}

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return generation.NewUnavailableError(0, "provider pool stopped", ErrQueueClosed)
	}
}

// providerCall is the Job wrapping one provider round-trip.
type providerCall struct {
	id        uuid.UUID
	kind      string
	callerCtx context.Context
	fn        func(context.Context) error
	done      chan error
}

func (c *providerCall) ID() uuid.UUID { return c.id }

func (c *providerCall) Kind() string { return c.kind }

// Execute runs the call under the caller's context, additionally canceled
// when the pool stops. The result is always delivered to the waiting caller.
func (c *providerCall) Execute(poolCtx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider call panic: %v", r)
		}
		c.done <- err
	}()

	ctx, cancel := context.WithCancel(c.callerCtx)
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fn(ctx)
}
