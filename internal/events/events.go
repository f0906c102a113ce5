package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/banana-api/internal/domain"
)

// Event types emitted by the application.
const (
	// TypeTaskFinished is emitted once per task, by the writer that moved it
	// from a non-terminal to a terminal status.
	TypeTaskFinished = "task.finished"
)

// TaskEvent is a notification about a generation task. It carries the task
// identity alongside a JSON payload so handlers do not depend on the task
// package.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type identifies the payload shape, e.g. TypeTaskFinished
	Type string `json:"type"`

	// TaskID is the provider-assigned task the event is about
	TaskID string `json:"task_id"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskEvent creates a new TaskEvent with the specified type and payload.
func NewTaskEvent(eventType, taskID string, payload any) (*TaskEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// TaskFinished is the payload of a TypeTaskFinished event.
type TaskFinished struct {
	Status         string   `json:"status"`
	ResultImageURL string   `json:"result_image_url,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	ReleasedFiles  []string `json:"released_files,omitempty"`

	// Task is the terminal record as written.
	Task *domain.GenerationTask `json:"task,omitempty"`
}

// NewTaskFinishedEvent builds a TypeTaskFinished event.
func NewTaskFinishedEvent(taskID string, payload TaskFinished) (*TaskEvent, error) {
	return NewTaskEvent(TypeTaskFinished, taskID, payload)
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
