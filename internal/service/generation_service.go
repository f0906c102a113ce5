package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/store"
)

// UploadStore is the subset of the upload store the creation flow needs.
type UploadStore interface {
	Save(ctx context.Context, r io.Reader, filename, contentType string, limit int64) (string, error)
	DeleteAll(names []string) error
	PublicURL(name string) string
}

// CallbackURLFunc returns the URL the provider should deliver the webhook to.
type CallbackURLFunc func(ctx context.Context) (string, error)

// Attachment is one uploaded file of a creation request.
type Attachment struct {
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// GenerationConfig holds the creation limits.
type GenerationConfig struct {
	Limits         domain.Limits
	MaxUploadBytes int64
}

// GenerationService creates generation tasks.
type GenerationService interface {
	// CreateTask validates the request, stores attachments, submits the job to
	// the provider and persists the running task. On any failure after an
	// upload was stored, the stored uploads are deleted and nothing is persisted.
	CreateTask(ctx context.Context, req domain.GenerationRequest, attachments []Attachment) (*domain.GenerationTask, error)
}

type generationServiceImpl struct {
	store       store.TaskStore
	provider    generation.Provider
	uploads     UploadStore
	callbackURL CallbackURLFunc
	cfg         GenerationConfig
	now         func() time.Time
	logger      *slog.Logger
}

// NewGenerationService creates a GenerationService.
// It returns an error if any of the required dependencies are nil.
func NewGenerationService(
	taskStore store.TaskStore,
	provider generation.Provider,
	uploads UploadStore,
	callbackURL CallbackURLFunc,
	cfg GenerationConfig,
	logger *slog.Logger,
) (GenerationService, error) {
	switch {
	case taskStore == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "task store cannot be nil"}
	case provider == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "provider cannot be nil"}
	case uploads == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "upload store cannot be nil"}
	case callbackURL == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "callback URL builder cannot be nil"}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &generationServiceImpl{
		store:       taskStore,
		provider:    provider,
		uploads:     uploads,
		callbackURL: callbackURL,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger.With("component", "generation_service"),
	}, nil
}

// CreateTask implements GenerationService.
func (s *generationServiceImpl) CreateTask(
	ctx context.Context,
	req domain.GenerationRequest,
	attachments []Attachment,
) (*domain.GenerationTask, error) {
	req.UploadCount = len(attachments)
	if err := req.Validate(s.cfg.Limits); err != nil {
		return nil, err
	}

	saved, err := s.saveAttachments(ctx, attachments)
	if err != nil {
		return nil, NewServiceError("create_task", "failed to store upload", err)
	}

	imageURLs := slices.Clone(req.ImageURLs)
	for _, name := range saved {
		imageURLs = append(imageURLs, s.uploads.PublicURL(name))
	}

	callbackURL, err := s.callbackURL(ctx)
	if err != nil {
		s.discard(saved)
		return nil, NewServiceError("create_task", "failed to build callback URL", err)
	}

	taskID, err := s.provider.Submit(ctx, generation.SubmitRequest{
		Prompt:      req.Prompt,
		ImageURLs:   imageURLs,
		Resolution:  req.Resolution,
		AspectRatio: req.AspectRatio,
		CallbackURL: callbackURL,
	})
	if err != nil {
		s.logger.Error("provider submission failed",
			"error", err,
			"upload_count", len(saved))
		s.discard(saved)
		return nil, NewServiceError("create_task", "provider submission failed", err)
	}

	task, err := domain.NewGenerationTask(taskID, req, imageURLs, saved, s.now())
	if err != nil {
		s.discard(saved)
		return nil, NewServiceError("create_task", "provider returned an unusable task", err)
	}

	if err := s.store.Create(ctx, task); err != nil {
		s.logger.Error("failed to persist task",
			"error", err,
			"task_id", taskID)
		s.discard(saved)
		return nil, NewServiceError("create_task", "failed to save task", err)
	}

	s.logger.Info("generation task created",
		"task_id", task.ID,
		"resolution", string(task.Resolution),
		"aspect_ratio", string(task.AspectRatio),
		"image_count", len(imageURLs),
		"upload_count", len(saved))
	return task, nil
}

func (s *generationServiceImpl) saveAttachments(ctx context.Context, attachments []Attachment) ([]string, error) {
	saved := make([]string, 0, len(attachments))
	for _, a := range attachments {
		name, err := s.saveOne(ctx, a)
		if err != nil {
			s.logger.Warn("rejected upload",
				"filename", a.Filename,
				"content_type", a.ContentType,
				"error", err)
			s.discard(saved)
			return nil, err
		}
		saved = append(saved, name)
	}
	return saved, nil
}

func (s *generationServiceImpl) saveOne(ctx context.Context, a Attachment) (string, error) {
	if a.Open == nil {
		return "", errors.New("attachment has no content")
	}
	rc, err := a.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return s.uploads.Save(ctx, rc, a.Filename, a.ContentType, s.cfg.MaxUploadBytes)
}

// discard deletes uploads of a request that will not produce a task.
func (s *generationServiceImpl) discard(names []string) {
	if len(names) == 0 {
		return
	}
	if err := s.uploads.DeleteAll(names); err != nil {
		s.logger.Error("failed to delete orphaned uploads", "error", err, "count", len(names))
	}
}
