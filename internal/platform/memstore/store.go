package memstore

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/store"
)

// TaskStore is an in-process implementation of store.TaskStore. Records are
// copied on the way in and out, so callers never share memory with the store.
type TaskStore struct {
	mu     sync.RWMutex
	tasks  map[string]*domain.GenerationTask
	logger *slog.Logger
}

// Ensure TaskStore implements store.TaskStore.
var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty store.
func NewTaskStore(logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		tasks:  make(map[string]*domain.GenerationTask),
		logger: logger.With(slog.String("component", "memory_task_store")),
	}
}

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if task.ID == "" {
		return store.NewTaskError("create", "empty task id", store.ErrInvalidEntity)
	}

	task.Version = 1
	s.mu.Lock()
	s.tasks[task.ID] = task.Clone()
	s.mu.Unlock()

	s.logger.Debug("task created", slog.String("task_id", task.ID))
	return nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.GenerationTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return t.Clone(), nil
}

// Update implements store.TaskStore.
func (s *TaskStore) Update(ctx context.Context, task *domain.GenerationTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if current.Version != task.Version {
		return store.ErrStaleWrite
	}

	task.Version++
	s.tasks[task.ID] = task.Clone()
	return nil
}

// ListActive implements store.TaskStore.
func (s *TaskStore) ListActive(ctx context.Context, limit int) ([]*domain.GenerationTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	active := make([]*domain.GenerationTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.Status.IsTerminal() {
			active = append(active, t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if active[i].UpdatedAt.Equal(active[j].UpdatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].UpdatedAt.Before(active[j].UpdatedAt)
	})

	if limit > 0 && len(active) > limit {
		active = slices.Clip(active[:limit])
	}
	return active, nil
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
