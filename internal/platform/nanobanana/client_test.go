package nanobanana

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/phrazzld/banana-api/internal/config"
	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.ProviderConfig{
		BaseURL:        srv.URL + "/",
		APIKey:         "secret-key",
		TimeoutSeconds: 5,
		RetryCount:     1,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.ProviderConfig{APIKey: "k"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewClient(config.ProviderConfig{BaseURL: "http://x"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestSubmit(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var got generateRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/generate-pro", r.URL.Path)
			assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeJSON(t, w, http.StatusOK, map[string]any{
				"code": 200,
				"msg":  "success",
				"data": map[string]any{"taskId": "nb-123"},
			})
		})

		taskID, err := client.Submit(context.Background(), generation.SubmitRequest{
			Prompt:      "a cat",
			ImageURLs:   []string{"https://example.com/a.png"},
			Resolution:  domain.Resolution2K,
			AspectRatio: "16:9",
			CallbackURL: "https://api.example.com/api/v1/nanobanana/callback",
		})

		require.NoError(t, err)
		assert.Equal(t, "nb-123", taskID)
		assert.Equal(t, generateRequest{
			Prompt:      "a cat",
			ImageURLs:   []string{"https://example.com/a.png"},
			Resolution:  "2K",
			AspectRatio: "16:9",
			CallBackURL: "https://api.example.com/api/v1/nanobanana/callback",
		}, got)
	})

	t.Run("nil image urls are sent as empty list", func(t *testing.T) {
		var raw map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			writeJSON(t, w, http.StatusOK, map[string]any{"code": 200, "data": map[string]any{"taskId": "x"}})
		})

		_, err := client.Submit(context.Background(), generation.SubmitRequest{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, []any{}, raw["imageUrls"])
	})

	t.Run("rejected code carries provider message", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{"code": 402, "msg": "insufficient credits"})
		})

		_, err := client.Submit(context.Background(), generation.SubmitRequest{Prompt: "p"})
		assert.ErrorIs(t, err, generation.ErrProviderRejected)
		assert.Equal(t, "insufficient credits", generation.ProviderMessage(err))
	})

	t.Run("missing task id is rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{"code": 200, "msg": "ok", "data": map[string]any{}})
		})

		_, err := client.Submit(context.Background(), generation.SubmitRequest{Prompt: "p"})
		assert.ErrorIs(t, err, generation.ErrProviderRejected)
	})

	t.Run("server error is unavailable and not retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.Submit(context.Background(), generation.SubmitRequest{Prompt: "p"})
		assert.ErrorIs(t, err, generation.ErrProviderUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("malformed body is unavailable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		})

		_, err := client.Submit(context.Background(), generation.SubmitRequest{Prompt: "p"})
		assert.ErrorIs(t, err, generation.ErrProviderUnavailable)
	})
}

func TestFetchStatus(t *testing.T) {
	t.Run("succeeded", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/record-info", r.URL.Path)
			assert.Equal(t, "nb-1", r.URL.Query().Get("taskId"))
			assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
			writeJSON(t, w, http.StatusOK, map[string]any{
				"code": 200,
				"msg":  "success",
				"data": map[string]any{
					"taskId":      "nb-1",
					"successFlag": 1,
					"response":    map[string]any{"resultImageUrl": "https://cdn.example.com/r.png"},
				},
			})
		})

		report, err := client.FetchStatus(context.Background(), "nb-1")
		require.NoError(t, err)
		assert.Equal(t, generation.FlagSucceeded, report.SuccessFlag)
		assert.Equal(t, "https://cdn.example.com/r.png", report.ResultImageURL)
		assert.Equal(t, domain.SuccessOutcome("https://cdn.example.com/r.png"), report.Outcome())
	})

	t.Run("origin url fallback", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{
				"code": 200,
				"data": map[string]any{
					"successFlag": 1,
					"response":    map[string]any{"originImageUrl": "https://origin.example.com/r.png"},
				},
			})
		})

		report, err := client.FetchStatus(context.Background(), "nb-2")
		require.NoError(t, err)
		assert.Equal(t, "nb-2", report.TaskID)
		assert.Equal(t, "https://origin.example.com/r.png", report.ResultImageURL)
	})

	t.Run("failed", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{
				"code": 200,
				"data": map[string]any{
					"taskId":       "nb-3",
					"successFlag":  3,
					"response":     nil,
					"errorMessage": "content policy",
				},
			})
		})

		report, err := client.FetchStatus(context.Background(), "nb-3")
		require.NoError(t, err)
		assert.Equal(t, domain.FailureOutcome("content policy"), report.Outcome())
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{
				"code": 200,
				"data": map[string]any{"taskId": "nb-4", "successFlag": 0},
			})
		})

		report, err := client.FetchStatus(context.Background(), "nb-4")
		require.NoError(t, err)
		assert.True(t, report.Outcome().IsPending())
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("retries exhausted", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := client.FetchStatus(context.Background(), "nb-5")
		assert.ErrorIs(t, err, generation.ErrProviderUnavailable)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("missing data is rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{"code": 200, "msg": "record not found", "data": nil})
		})

		_, err := client.FetchStatus(context.Background(), "nb-6")
		assert.ErrorIs(t, err, generation.ErrProviderRejected)
		assert.Equal(t, "record not found", generation.ProviderMessage(err))
	})
}
