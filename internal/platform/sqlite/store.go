package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/platform/logger"
	"github.com/phrazzld/banana-api/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// taskRecord is the gorm model of a generation task. List fields are kept as
// JSON text.
type taskRecord struct {
	TaskID         string `gorm:"primaryKey;column:task_id"`
	Prompt         string `gorm:"not null"`
	ImageURLs      string `gorm:"type:text;not null;column:image_urls"`
	Resolution     string `gorm:"not null;default:1K"`
	AspectRatio    string `gorm:"not null;default:1:1"`
	LocalFiles     string `gorm:"type:text;not null;column:local_files"`
	Status         string `gorm:"not null;index:idx_generation_tasks_status_updated,priority:1"`
	ResultImageURL *string
	ErrorMessage   *string
	ChatID         string `gorm:"column:chat_id;index"`
	LastPolledAt   *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false;index:idx_generation_tasks_status_updated,priority:2"`
	Version        int64     `gorm:"not null;default:1"`
}

// TableName specifies the table name for GORM
func (taskRecord) TableName() string {
	return "generation_tasks"
}

// Open connects to the SQLite database at dsn. SQLite allows one writer at a
// time, so the pool is limited to a single connection.
func Open(dsn string, debug bool) (*gorm.DB, error) {
	gormLog := gormlogger.Default.LogMode(gormlogger.Warn)
	if debug {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the generation_tasks table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&taskRecord{})
}

// TaskStore implements store.TaskStore with gorm on SQLite.
type TaskStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Ensure TaskStore implements store.TaskStore.
var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore wraps an open gorm database.
func NewTaskStore(db *gorm.DB, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "sqlite_task_store")),
	}
}

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	rec, err := toRecord(task)
	if err != nil {
		return store.NewTaskError("create", "failed to encode task", err)
	}
	rec.Version = 1

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create task",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()))
		return store.NewTaskError("create", "insert failed", err)
	}

	task.Version = 1
	return nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.GenerationTask, error) {
	var rec taskRecord
	err := s.db.WithContext(ctx).Where("task_id = ?", id).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewTaskError("get", "query failed", err)
	}
	return fromRecord(&rec)
}

// Update implements store.TaskStore as a single conditional UPDATE.
func (s *TaskStore) Update(ctx context.Context, task *domain.GenerationTask) error {
	rec, err := toRecord(task)
	if err != nil {
		return store.NewTaskError("update", "failed to encode task", err)
	}

	res := s.db.WithContext(ctx).
		Model(&taskRecord{}).
		Where("task_id = ? AND version = ?", task.ID, task.Version).
		Updates(map[string]any{
			"prompt":           rec.Prompt,
			"image_urls":       rec.ImageURLs,
			"resolution":       rec.Resolution,
			"aspect_ratio":     rec.AspectRatio,
			"local_files":      rec.LocalFiles,
			"status":           rec.Status,
			"result_image_url": rec.ResultImageURL,
			"error_message":    rec.ErrorMessage,
			"chat_id":          rec.ChatID,
			"last_polled_at":   rec.LastPolledAt,
			"updated_at":       rec.UpdatedAt,
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update task",
			slog.String("task_id", task.ID),
			slog.String("error", res.Error.Error()))
		return store.NewTaskError("update", "update failed", res.Error)
	}

	if res.RowsAffected == 1 {
		task.Version++
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&taskRecord{}).Where("task_id = ?", task.ID).Count(&count).Error; err != nil {
		return store.NewTaskError("update", "existence check failed", err)
	}
	if count == 0 {
		return store.ErrTaskNotFound
	}
	return store.ErrStaleWrite
}

// ListActive implements store.TaskStore.
func (s *TaskStore) ListActive(ctx context.Context, limit int) ([]*domain.GenerationTask, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.TaskStatusPending), string(domain.TaskStatusRunning)}).
		Order("updated_at ASC").
		Order("task_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []taskRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, store.NewTaskError("list", "query failed", err)
	}

	tasks := make([]*domain.GenerationTask, 0, len(recs))
	for i := range recs {
		t, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func toRecord(t *domain.GenerationTask) (*taskRecord, error) {
	imageURLs, err := encodeList(t.ImageURLs)
	if err != nil {
		return nil, err
	}
	localFiles, err := encodeList(t.LocalFiles)
	if err != nil {
		return nil, err
	}

	var lastPolled *time.Time
	if t.LastPolledAt != nil {
		v := t.LastPolledAt.UTC()
		lastPolled = &v
	}

	return &taskRecord{
		TaskID:         t.ID,
		Prompt:         t.Prompt,
		ImageURLs:      imageURLs,
		Resolution:     string(t.Resolution),
		AspectRatio:    string(t.AspectRatio),
		LocalFiles:     localFiles,
		Status:         string(t.Status),
		ResultImageURL: t.ResultImageURL,
		ErrorMessage:   t.ErrorMessage,
		ChatID:         t.ChatID,
		LastPolledAt:   lastPolled,
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
		Version:        t.Version,
	}, nil
}

func fromRecord(r *taskRecord) (*domain.GenerationTask, error) {
	t := &domain.GenerationTask{
		ID:             r.TaskID,
		Prompt:         r.Prompt,
		Resolution:     domain.Resolution(r.Resolution),
		AspectRatio:    domain.AspectRatio(r.AspectRatio),
		Status:         domain.TaskStatus(r.Status),
		ResultImageURL: r.ResultImageURL,
		ErrorMessage:   r.ErrorMessage,
		ChatID:         r.ChatID,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		Version:        r.Version,
	}
	if r.LastPolledAt != nil {
		v := r.LastPolledAt.UTC()
		t.LastPolledAt = &v
	}
	if err := decodeList(r.ImageURLs, &t.ImageURLs); err != nil {
		return nil, fmt.Errorf("decode image_urls of %s: %w", r.TaskID, err)
	}
	if err := decodeList(r.LocalFiles, &t.LocalFiles); err != nil {
		return nil, fmt.Errorf("decode local_files of %s: %w", r.TaskID, err)
	}
	return t, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	return string(b), err
}

func decodeList(raw string, dst *[]string) error {
	*dst = []string{}
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
