package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/banana-api/internal/api/shared"
	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/platform/logger"
	"github.com/phrazzld/banana-api/internal/service"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 8 << 20

// StatusPoller returns a task's current state, consulting the provider when due.
type StatusPoller interface {
	Poll(ctx context.Context, taskID string) (*domain.GenerationTask, error)
}

// TaskHandler handles generation task requests.
type TaskHandler struct {
	generator       service.GenerationService
	poller          StatusPoller
	maxRequestBytes int64
	logger          *slog.Logger
}

// NewTaskHandler creates a new TaskHandler. maxRequestBytes bounds the whole
// request body; zero disables the bound.
func NewTaskHandler(
	generator service.GenerationService,
	poller StatusPoller,
	maxRequestBytes int64,
	logger *slog.Logger,
) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		generator:       generator,
		poller:          poller,
		maxRequestBytes: maxRequestBytes,
		logger:          logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/v1/tasks and POST /api/v1/generate-pro.
// It accepts a multipart form with optional image files, or a JSON body.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if h.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	}

	var (
		req         domain.GenerationRequest
		attachments []service.Attachment
		err         error
	)
	if isMultipart(r) {
		req, attachments, err = h.parseMultipart(r)
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
	} else {
		req, err = h.parseJSON(r)
	}
	if err != nil {
		log.Debug("rejected generation request", "error", err)
		HandleAPIError(w, r, err, "Invalid request format")
		return
	}

	task, err := h.generator.CreateTask(r.Context(), req, attachments)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{TaskID: task.ID})
}

// GetTask handles GET /api/v1/tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		HandleAPIError(w, r, domain.NewValidationError("taskId", "is required", nil), "")
		return
	}

	task, err := h.poller.Poll(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task status")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToStatusEnvelope(task))
}

func (h *TaskHandler) parseJSON(r *http.Request) (domain.GenerationRequest, error) {
	var body CreateTaskRequest
	if err := shared.DecodeJSON(r, &body); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return domain.GenerationRequest{}, err
		}
		return domain.GenerationRequest{}, domain.NewValidationError("body", "is not valid JSON", nil)
	}
	if err := shared.ValidateRequest(&body); err != nil {
		return domain.GenerationRequest{}, domain.NewValidationError("request", SanitizeValidationError(err), nil)
	}

	return buildRequest(body.Prompt, body.Resolution, body.AspectRatio, body.ChatID, body.ImageURLs)
}

func (h *TaskHandler) parseMultipart(r *http.Request) (domain.GenerationRequest, []service.Attachment, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return domain.GenerationRequest{}, nil, err
		}
		return domain.GenerationRequest{}, nil, domain.NewValidationError("body", "is not a valid multipart form", nil)
	}

	form := r.MultipartForm
	req, err := buildRequest(
		formValue(form, "prompt"),
		formValue(form, "resolution"),
		formValue(form, "aspectRatio"),
		formValue(form, "chatId"),
		form.Value["imageUrls"],
	)
	if err != nil {
		return domain.GenerationRequest{}, nil, err
	}

	files := form.File["images"]
	attachments := make([]service.Attachment, 0, len(files))
	for _, fh := range files {
		attachments = append(attachments, service.Attachment{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return req, attachments, nil
}

func buildRequest(prompt, resolution, aspectRatio, chatID string, imageURLs []string) (domain.GenerationRequest, error) {
	if chatID != "" {
		if _, err := uuid.Parse(chatID); err != nil {
			return domain.GenerationRequest{}, domain.NewValidationError("chatId", "must be a UUID", nil)
		}
	}
	return domain.GenerationRequest{
		Prompt:      prompt,
		Resolution:  domain.Resolution(resolution),
		AspectRatio: domain.AspectRatio(aspectRatio),
		ImageURLs:   imageURLs,
		ChatID:      chatID,
	}, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
