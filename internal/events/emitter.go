package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/banana-api/internal/platform/logger"
)

type registration struct {
	eventType string
	handler   EventHandler
}

// InMemoryEventEmitter dispatches events synchronously to handlers registered
// in memory. Handlers run in registration order on the emitting goroutine.
type InMemoryEventEmitter struct {
	handlers []registration
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		logger: logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a handler that receives every event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.Subscribe("", handler)
}

// Subscribe adds a handler that only receives events of eventType. An empty
// eventType subscribes to everything.
func (e *InMemoryEventEmitter) Subscribe(eventType string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, registration{eventType: eventType, handler: handler})
	e.logger.Debug("registered new event handler",
		"event_type", eventType,
		"handler_count", len(e.handlers))
}

// EmitEvent publishes the given event to all matching handlers.
// If any handler fails or panics, the event is still sent to the remaining
// handlers and the first error encountered is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	matching := make([]EventHandler, 0, len(e.handlers))
	for _, r := range e.handlers {
		if r.eventType == "" || r.eventType == event.Type {
			matching = append(matching, r.handler)
		}
	}
	e.mu.RUnlock()

	log := logger.FromContextOrDefault(ctx, e.logger).With(
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.TaskID,
	)

	if len(matching) == 0 {
		log.Warn("no handlers registered for event")
		return nil
	}
	log.Debug("emitting event", "handler_count", len(matching))

	var firstErr error
	for i, handler := range matching {
		if err := e.dispatch(ctx, handler, event); err != nil {
			log.Error("handler failed to process event",
				"error", err,
				"handler_index", i)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (e *InMemoryEventEmitter) dispatch(ctx context.Context, h EventHandler, event *TaskEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("event handler panicked: %v", p)
		}
	}()
	return h.HandleEvent(ctx, event)
}
