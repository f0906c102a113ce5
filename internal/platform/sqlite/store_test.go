package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/platform/sqlite"
	"github.com/phrazzld/banana-api/internal/store"
	"github.com/phrazzld/banana-api/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) store.TaskStore {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "tasks.db"), false)
	if err != nil {
		// The driver needs cgo.
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, sqlite.AutoMigrate(db))
	return sqlite.NewTaskStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTaskStoreContract(t *testing.T) {
	storetest.RunTaskStoreContract(t, newStore)
}

func TestNilListsRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	task := storetest.NewTask(t, "nil-lists", time.Now().UTC())
	task.ImageURLs = nil
	task.LocalFiles = nil

	require.NoError(t, s.Create(ctx, task))

	got, err := s.Get(ctx, "nil-lists")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.ImageURLs)
	assert.Equal(t, []string{}, got.LocalFiles)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
}
