package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/platform/logger"
	"github.com/phrazzld/banana-api/internal/store"
)

const taskColumns = `task_id, prompt, image_urls, resolution, aspect_ratio, local_files, status,
	result_image_url, error_message, chat_id, last_polled_at, created_at, updated_at, version`

// PostgresTaskStore implements store.TaskStore using PostgreSQL.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// Ensure PostgresTaskStore implements store.TaskStore.
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// WithTx returns a store that runs its queries inside tx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) *PostgresTaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Create upserts the task and resets its version to 1.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	imageURLs, localFiles, err := encodeLists(task)
	if err != nil {
		return store.NewTaskError("create", "failed to encode lists", err)
	}

	query := `
		INSERT INTO generation_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
		ON CONFLICT (task_id) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			image_urls = EXCLUDED.image_urls,
			resolution = EXCLUDED.resolution,
			aspect_ratio = EXCLUDED.aspect_ratio,
			local_files = EXCLUDED.local_files,
			status = EXCLUDED.status,
			result_image_url = EXCLUDED.result_image_url,
			error_message = EXCLUDED.error_message,
			chat_id = EXCLUDED.chat_id,
			last_polled_at = EXCLUDED.last_polled_at,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			version = 1
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Prompt,
		imageURLs,
		string(task.Resolution),
		string(task.AspectRatio),
		localFiles,
		string(task.Status),
		task.ResultImageURL,
		task.ErrorMessage,
		task.ChatID,
		task.LastPolledAt,
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()))
		return store.NewTaskError("create", "insert failed", MapError(err))
	}

	task.Version = 1
	log.Debug("task created", slog.String("task_id", task.ID))
	return nil
}

// Get retrieves a task by ID.
func (s *PostgresTaskStore) Get(ctx context.Context, id string) (*domain.GenerationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE task_id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("task_id", id),
			slog.String("error", err.Error()))
		return nil, store.NewTaskError("get", "query failed", MapError(err))
	}
	return task, nil
}

// Update writes the task if the stored version still equals task.Version.
// The version check and the existence check share one transaction when the
// store is backed by a *sql.DB.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.GenerationTask) error {
	if beginner, ok := s.db.(store.TxBeginner); ok {
		return store.RunInTransaction(ctx, beginner, func(ctx context.Context, tx *sql.Tx) error {
			return s.update(ctx, tx, task)
		})
	}
	return s.update(ctx, s.db, task)
}

func (s *PostgresTaskStore) update(ctx context.Context, db store.DBTX, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	imageURLs, localFiles, err := encodeLists(task)
	if err != nil {
		return store.NewTaskError("update", "failed to encode lists", err)
	}

	query := `
		UPDATE generation_tasks SET
			prompt = $3,
			image_urls = $4,
			resolution = $5,
			aspect_ratio = $6,
			local_files = $7,
			status = $8,
			result_image_url = $9,
			error_message = $10,
			chat_id = $11,
			last_polled_at = $12,
			updated_at = $13,
			version = version + 1
		WHERE task_id = $1 AND version = $2
		RETURNING version
	`

	var newVersion int64
	err = db.QueryRowContext(ctx, query,
		task.ID,
		task.Version,
		task.Prompt,
		imageURLs,
		string(task.Resolution),
		string(task.AspectRatio),
		localFiles,
		string(task.Status),
		task.ResultImageURL,
		task.ErrorMessage,
		task.ChatID,
		task.LastPolledAt,
		task.UpdatedAt.UTC(),
	).Scan(&newVersion)

	switch {
	case err == nil:
		task.Version = newVersion
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		log.Error("failed to update task",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()))
		return store.NewTaskError("update", "update failed", MapError(err))
	}

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM generation_tasks WHERE task_id = $1)`, task.ID,
	).Scan(&exists); err != nil {
		return store.NewTaskError("update", "existence check failed", MapError(err))
	}
	if !exists {
		return store.ErrTaskNotFound
	}

	log.Debug("conditional update lost",
		slog.String("task_id", task.ID),
		slog.Int64("version", task.Version))
	return store.ErrStaleWrite
}

// ListActive returns non-terminal tasks, least recently updated first.
func (s *PostgresTaskStore) ListActive(ctx context.Context, limit int) ([]*domain.GenerationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks
		WHERE status IN ('pending', 'running')
		ORDER BY updated_at ASC, task_id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list active tasks",
			slog.String("error", err.Error()))
		return nil, store.NewTaskError("list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewTaskError("list", "scan failed", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewTaskError("list", "iteration failed", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.GenerationTask, error) {
	var (
		t                    domain.GenerationTask
		imageURLs, localFile []byte
		resolution, aspect   string
		status               string
		result, errMsg       sql.NullString
		lastPolled           sql.NullTime
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(
		&t.ID,
		&t.Prompt,
		&imageURLs,
		&resolution,
		&aspect,
		&localFile,
		&status,
		&result,
		&errMsg,
		&t.ChatID,
		&lastPolled,
		&createdAt,
		&updatedAt,
		&t.Version,
	); err != nil {
		return nil, err
	}

	if err := decodeList(imageURLs, &t.ImageURLs); err != nil {
		return nil, fmt.Errorf("decode image_urls: %w", err)
	}
	if err := decodeList(localFile, &t.LocalFiles); err != nil {
		return nil, fmt.Errorf("decode local_files: %w", err)
	}

	t.Resolution = domain.Resolution(resolution)
	t.AspectRatio = domain.AspectRatio(aspect)
	t.Status = domain.TaskStatus(status)
	if result.Valid {
		v := result.String
		t.ResultImageURL = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		t.ErrorMessage = &v
	}
	if lastPolled.Valid {
		v := lastPolled.Time.UTC()
		t.LastPolledAt = &v
	}
	t.CreatedAt = createdAt.UTC()
	t.UpdatedAt = updatedAt.UTC()
	return &t, nil
}

func encodeLists(task *domain.GenerationTask) (string, string, error) {
	imageURLs, err := encodeList(task.ImageURLs)
	if err != nil {
		return "", "", err
	}
	localFiles, err := encodeList(task.LocalFiles)
	if err != nil {
		return "", "", err
	}
	return imageURLs, localFiles, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	return string(b), err
}

func decodeList(raw []byte, dst *[]string) error {
	*dst = []string{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
