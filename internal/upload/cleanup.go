package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/banana-api/internal/events"
)

// CleanupHandler deletes the uploads a task released when it became terminal.
type CleanupHandler struct {
	store  *Store
	logger *slog.Logger
}

// NewCleanupHandler returns an events.EventHandler bound to store.
func NewCleanupHandler(store *Store, logger *slog.Logger) *CleanupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupHandler{
		store:  store,
		logger: logger.With(slog.String("component", "upload_cleanup")),
	}
}

// HandleEvent implements events.EventHandler.
func (h *CleanupHandler) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if event.Type != events.TypeTaskFinished {
		return nil
	}

	var payload events.TaskFinished
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decode task.finished payload: %w", err)
	}
	if len(payload.ReleasedFiles) == 0 {
		return nil
	}

	if err := h.store.DeleteAll(payload.ReleasedFiles); err != nil {
		h.logger.ErrorContext(ctx, "failed to delete released uploads",
			slog.String("task_id", event.TaskID),
			slog.String("error", err.Error()))
		return err
	}

	h.logger.InfoContext(ctx, "deleted released uploads",
		slog.String("task_id", event.TaskID),
		slog.Int("count", len(payload.ReleasedFiles)))
	return nil
}
