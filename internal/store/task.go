package store

import (
	"context"

	"github.com/phrazzld/banana-api/internal/domain"
)

// TaskStore defines the interface for generation task persistence.
//
// Every implementation must make Update a conditional write: it succeeds only
// when the stored Version equals task.Version, and on success it increments
// task.Version in place. This is the only synchronization the reconciliation
// engine relies on.
type TaskStore interface {
	// Create inserts the task, replacing any record with the same ID.
	// The stored and returned Version is reset to 1.
	Create(ctx context.Context, task *domain.GenerationTask) error

	// Get retrieves a task by its provider-assigned ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id string) (*domain.GenerationTask, error)

	// Update replaces the stored task if its Version still matches.
	// Returns ErrTaskNotFound if the task does not exist and ErrStaleWrite if
	// another writer got there first.
	Update(ctx context.Context, task *domain.GenerationTask) error

	// ListActive returns up to limit non-terminal tasks, least recently
	// updated first. A limit <= 0 means no limit.
	ListActive(ctx context.Context, limit int) ([]*domain.GenerationTask, error)
}
