// Package storetest holds a behavioural test suite shared by every
// store.TaskStore implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.TaskStore

// NewTask builds a running task with two local files.
func NewTask(t *testing.T, id string, now time.Time) *domain.GenerationTask {
	t.Helper()
	task, err := domain.NewGenerationTask(
		id,
		domain.GenerationRequest{
			Prompt:      "a banana on the moon",
			Resolution:  domain.Resolution1K,
			AspectRatio: domain.DefaultAspectRatio,
			ChatID:      "chat-1",
		},
		[]string{"https://example.com/ref.png", "http://localhost/media/a.png"},
		[]string{"a.png", "b.webp"},
		now,
	)
	require.NoError(t, err)
	return task
}

// RunTaskStoreContract exercises the store.TaskStore contract.
func RunTaskStoreContract(t *testing.T, newStore Factory) {
	ctx := context.Background()
	// Databases may truncate below microseconds.
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create and get round trip", func(t *testing.T) {
		s := newStore(t)
		task := NewTask(t, "contract-roundtrip", now)

		require.NoError(t, s.Create(ctx, task))
		assert.Equal(t, int64(1), task.Version)

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, task.Prompt, got.Prompt)
		assert.Equal(t, task.ImageURLs, got.ImageURLs)
		assert.Equal(t, task.LocalFiles, got.LocalFiles)
		assert.Equal(t, task.Resolution, got.Resolution)
		assert.Equal(t, task.AspectRatio, got.AspectRatio)
		assert.Equal(t, domain.TaskStatusRunning, got.Status)
		assert.Equal(t, "chat-1", got.ChatID)
		assert.Nil(t, got.ResultImageURL)
		assert.Nil(t, got.ErrorMessage)
		assert.Nil(t, got.LastPolledAt)
		assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "contract-missing")
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("create replaces and resets version", func(t *testing.T) {
		s := newStore(t)
		task := NewTask(t, "contract-upsert", now)
		require.NoError(t, s.Create(ctx, task))
		task.MarkPolled(now)
		require.NoError(t, s.Update(ctx, task))
		assert.Equal(t, int64(2), task.Version)

		again := NewTask(t, "contract-upsert", now)
		again.Prompt = "second prompt"
		require.NoError(t, s.Create(ctx, again))

		got, err := s.Get(ctx, "contract-upsert")
		require.NoError(t, err)
		assert.Equal(t, "second prompt", got.Prompt)
		assert.Equal(t, int64(1), got.Version)
		assert.Nil(t, got.LastPolledAt)
	})

	t.Run("conditional update", func(t *testing.T) {
		s := newStore(t)
		task := NewTask(t, "contract-cas", now)
		require.NoError(t, s.Create(ctx, task))

		first, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		second, err := s.Get(ctx, task.ID)
		require.NoError(t, err)

		tr := first.ApplyOutcome(domain.SuccessOutcome("https://cdn.example.com/r.png"), now.Add(time.Second))
		require.True(t, tr.Transitioned)
		require.NoError(t, s.Update(ctx, first))
		assert.Equal(t, int64(2), first.Version)

		second.ApplyOutcome(domain.FailureOutcome("late"), now.Add(2*time.Second))
		err = s.Update(ctx, second)
		assert.ErrorIs(t, err, store.ErrStaleWrite)
		assert.Equal(t, int64(1), second.Version)

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusSuccess, got.Status)
		require.NotNil(t, got.ResultImageURL)
		assert.Equal(t, "https://cdn.example.com/r.png", *got.ResultImageURL)
		assert.Nil(t, got.ErrorMessage)
		assert.Empty(t, got.LocalFiles)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("update unknown", func(t *testing.T) {
		s := newStore(t)
		task := NewTask(t, "contract-nope", now)
		task.Version = 1
		assert.ErrorIs(t, s.Update(ctx, task), store.ErrTaskNotFound)
	})

	t.Run("last polled at persists", func(t *testing.T) {
		s := newStore(t)
		task := NewTask(t, "contract-polled", now)
		require.NoError(t, s.Create(ctx, task))

		task.MarkPolled(now.Add(5 * time.Second))
		require.NoError(t, s.Update(ctx, task))

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastPolledAt)
		assert.True(t, now.Add(5*time.Second).Equal(*got.LastPolledAt))
		assert.True(t, now.Add(5*time.Second).Equal(got.UpdatedAt))
	})

	t.Run("concurrent updates admit exactly one winner", func(t *testing.T) {
		s := newStore(t)
		task := NewTask(t, "contract-race", now)
		require.NoError(t, s.Create(ctx, task))

		const writers = 8
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   int
			stales int
		)
		for i := 0; i < writers; i++ {
			snapshot, err := s.Get(ctx, task.ID)
			require.NoError(t, err)
			wg.Add(1)
			go func(i int, snap *domain.GenerationTask) {
				defer wg.Done()
				snap.ApplyOutcome(domain.SuccessOutcome(fmt.Sprintf("https://cdn.example.com/%d.png", i)), now)
				err := s.Update(ctx, snap)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case store.IsStaleWriteError(err):
					stales++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i, snapshot)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, stales)
	})

	t.Run("list active", func(t *testing.T) {
		s := newStore(t)
		older := NewTask(t, "contract-active-old", now.Add(-time.Hour))
		newer := NewTask(t, "contract-active-new", now)
		done := NewTask(t, "contract-active-done", now.Add(-2*time.Hour))
		for _, task := range []*domain.GenerationTask{newer, older, done} {
			require.NoError(t, s.Create(ctx, task))
		}
		done.ApplyOutcome(domain.FailureOutcome("x"), now.Add(-2*time.Hour))
		require.NoError(t, s.Update(ctx, done))

		active, err := s.ListActive(ctx, 0)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "contract-active-old", active[0].ID)
		assert.Equal(t, "contract-active-new", active[1].ID)

		limited, err := s.ListActive(ctx, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "contract-active-old", limited[0].ID)
	})

	t.Run("returned tasks are copies", func(t *testing.T) {
		s := newStore(t)
		task := NewTask(t, "contract-copy", now)
		require.NoError(t, s.Create(ctx, task))

		got, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		got.LocalFiles[0] = "mutated"
		got.Prompt = "mutated"

		again, err := s.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "a.png", again.LocalFiles[0])
		assert.Equal(t, "a banana on the moon", again.Prompt)
	})
}
