package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/service"
	"github.com/phrazzld/banana-api/internal/store"
	"github.com/phrazzld/banana-api/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	req         domain.GenerationRequest
	attachments []service.Attachment
	contents    []string
	err         error
}

func (g *stubGenerator) CreateTask(
	ctx context.Context,
	req domain.GenerationRequest,
	attachments []service.Attachment,
) (*domain.GenerationTask, error) {
	g.req = req
	g.attachments = attachments
	for _, a := range attachments {
		rc, err := a.Open()
		if err != nil {
			return nil, err
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		g.contents = append(g.contents, string(b))
	}
	if g.err != nil {
		return nil, g.err
	}
	return &domain.GenerationTask{ID: "task-42", Status: domain.TaskStatusRunning}, nil
}

type stubPoller struct {
	task *domain.GenerationTask
	err  error
}

func (p *stubPoller) Poll(ctx context.Context, taskID string) (*domain.GenerationTask, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.task, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTaskRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/tasks", h.CreateTask)
	r.Post("/api/v1/generate-pro", h.CreateTask)
	r.Get("/api/v1/tasks/{taskID}", h.GetTask)
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTaskHandler_CreateTask_JSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		genErr     error
		wantStatus int
		wantError  string
	}{
		{
			name:       "accepted",
			body:       `{"prompt":"a banana","resolution":"2K","aspectRatio":"16:9","imageUrls":["https://a.example/1.png"]}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "invalid json",
			body:       `{"prompt":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "body is not valid JSON",
		},
		{
			name:       "missing prompt",
			body:       `{"resolution":"2K"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "request Invalid Prompt: required field",
		},
		{
			name:       "chat id must be a uuid",
			body:       `{"prompt":"a banana","chatId":"chat-1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "service validation",
			body:       `{"prompt":"a banana","resolution":"8K"}`,
			genErr:     domain.NewValidationError("resolution", "must be one of 1K, 2K, 4K", domain.ErrInvalidResolution),
			wantStatus: http.StatusBadRequest,
			wantError:  "resolution must be one of 1K, 2K, 4K",
		},
		{
			name:       "provider rejected",
			body:       `{"prompt":"a banana"}`,
			genErr:     generation.NewRejectedError("insufficient credits"),
			wantStatus: http.StatusBadGateway,
			wantError:  "insufficient credits",
		},
		{
			name:       "storage failure",
			body:       `{"prompt":"a banana"}`,
			genErr:     &service.ServiceError{Operation: "create_task", Message: "failed to save task", Err: errors.New("disk I/O")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to create task",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{err: tc.genErr}
			h := NewTaskHandler(gen, &stubPoller{}, 1<<20, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			newTaskRouter(h).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			body := decodeBody(t, w)
			if tc.wantStatus == http.StatusAccepted {
				assert.Equal(t, "task-42", body["taskId"])
				assert.Equal(t, "a banana", gen.req.Prompt)
				assert.Equal(t, domain.Resolution2K, gen.req.Resolution)
				assert.Equal(t, domain.AspectRatio("16:9"), gen.req.AspectRatio)
				assert.Equal(t, []string{"https://a.example/1.png"}, gen.req.ImageURLs)
				return
			}
			if tc.wantError != "" {
				assert.Equal(t, tc.wantError, body["detail"])
			}
		})
	}
}

func newMultipartBody(t *testing.T, fields map[string][]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	for name, content := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestTaskHandler_CreateTask_Multipart(t *testing.T) {
	gen := &stubGenerator{}
	h := NewTaskHandler(gen, &stubPoller{}, 1<<20, testLogger())

	chatID := "7b0a3f5e-3f63-4a2e-9f4d-1c0e8f0b1a22"
	body, contentType := newMultipartBody(t,
		map[string][]string{
			"prompt":      {"a banana"},
			"aspectRatio": {"4:3"},
			"imageUrls":   {"https://a.example/1.png", "https://a.example/2.png"},
			"chatId":      {chatID},
		},
		map[string]string{"ref.png": "PNGDATA"},
	)

	// The compat route behaves exactly like /tasks.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate-pro", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	newTaskRouter(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "task-42", decodeBody(t, w)["taskId"])
	assert.Equal(t, "a banana", gen.req.Prompt)
	assert.Equal(t, domain.AspectRatio("4:3"), gen.req.AspectRatio)
	assert.Equal(t, []string{"https://a.example/1.png", "https://a.example/2.png"}, gen.req.ImageURLs)
	assert.Equal(t, chatID, gen.req.ChatID)
	require.Len(t, gen.attachments, 1)
	assert.Equal(t, "ref.png", gen.attachments[0].Filename)
	assert.Equal(t, "image/png", gen.attachments[0].ContentType)
	assert.Equal(t, []string{"PNGDATA"}, gen.contents)
}

func TestTaskHandler_CreateTask_UploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		genErr     error
		limit      int64
		wantStatus int
	}{
		{"unsupported media type", upload.ErrUnsupportedMediaType, 1 << 20, http.StatusUnsupportedMediaType},
		{"file too large", upload.ErrPayloadTooLarge, 1 << 20, http.StatusRequestEntityTooLarge},
		{"request body over limit", nil, 64, http.StatusRequestEntityTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{err: tc.genErr}
			h := NewTaskHandler(gen, &stubPoller{}, tc.limit, testLogger())

			body, contentType := newMultipartBody(t,
				map[string][]string{"prompt": {"a banana"}},
				map[string]string{"big.png": strings.Repeat("x", 512)},
			)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			newTaskRouter(h).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestTaskHandler_GetTask(t *testing.T) {
	now := time.Now().UTC()
	result := "https://cdn.example.com/r.png"
	failure := "nsfw content"

	tests := []struct {
		name       string
		task       *domain.GenerationTask
		err        error
		wantStatus int
		wantJSON   string
	}{
		{
			name:       "running",
			task:       &domain.GenerationTask{ID: "t1", Status: domain.TaskStatusRunning, UpdatedAt: now},
			wantStatus: http.StatusOK,
			wantJSON:   `{"code":200,"msg":"success","data":{"taskId":"t1","successFlag":0,"response":null,"errorMessage":null}}`,
		},
		{
			name:       "pending reads as running",
			task:       &domain.GenerationTask{ID: "t1", Status: domain.TaskStatusPending},
			wantStatus: http.StatusOK,
			wantJSON:   `{"code":200,"msg":"success","data":{"taskId":"t1","successFlag":0,"response":null,"errorMessage":null}}`,
		},
		{
			name:       "success",
			task:       &domain.GenerationTask{ID: "t1", Status: domain.TaskStatusSuccess, ResultImageURL: &result},
			wantStatus: http.StatusOK,
			wantJSON:   `{"code":200,"msg":"success","data":{"taskId":"t1","successFlag":1,"response":{"resultImageUrl":"https://cdn.example.com/r.png"},"errorMessage":null}}`,
		},
		{
			name:       "failed",
			task:       &domain.GenerationTask{ID: "t1", Status: domain.TaskStatusFailed, ErrorMessage: &failure},
			wantStatus: http.StatusOK,
			wantJSON:   `{"code":200,"msg":"success","data":{"taskId":"t1","successFlag":2,"response":null,"errorMessage":"nsfw content"}}`,
		},
		{
			name:       "unknown task",
			err:        store.ErrTaskNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "storage failure",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTaskHandler(&stubGenerator{}, &stubPoller{task: tc.task, err: tc.err}, 0, testLogger())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t1", nil)
			w := httptest.NewRecorder()
			newTaskRouter(h).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantJSON != "" {
				assert.JSONEq(t, tc.wantJSON, w.Body.String())
			}
		})
	}
}

func TestNewTaskHandler_NilLoggerPanics(t *testing.T) {
	assert.Panics(t, func() { NewTaskHandler(&stubGenerator{}, &stubPoller{}, 0, nil) })
}
