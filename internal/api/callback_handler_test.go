package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/banana-api/internal/service/auth"
	"github.com/phrazzld/banana-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	got    []task.Callback
	result task.CallbackResult
	err    error
}

func (p *recordingProcessor) HandleCallback(ctx context.Context, cb task.Callback) (task.CallbackResult, error) {
	p.got = append(p.got, cb)
	return p.result, p.err
}

const testCallbackSecret = "callback-secret-that-is-long-enough-for-tests"

func TestCallbackHandler_Payloads(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		procErr    error
		wantStatus int
		wantCalls  int
		check      func(t *testing.T, cb task.Callback)
	}{
		{
			name:       "success",
			body:       `{"code":200,"msg":"ok","data":{"taskId":"t1","info":{"resultImageUrl":"https://cdn.example.com/r.png"}}}`,
			wantStatus: http.StatusOK,
			wantCalls:  1,
			check: func(t *testing.T, cb task.Callback) {
				require.NotNil(t, cb.Code)
				assert.Equal(t, 200, *cb.Code)
				assert.Equal(t, "t1", cb.TaskID)
				assert.Equal(t, "https://cdn.example.com/r.png", cb.ResultImageURL)
			},
		},
		{
			name:       "failure",
			body:       `{"code":501,"msg":"content policy","data":{"taskId":"t1"}}`,
			wantStatus: http.StatusOK,
			wantCalls:  1,
			check: func(t *testing.T, cb task.Callback) {
				require.NotNil(t, cb.Code)
				assert.Equal(t, 501, *cb.Code)
				assert.Equal(t, "content policy", cb.Msg)
				assert.Empty(t, cb.ResultImageURL)
			},
		},
		{
			name:       "missing code is passed on as nil",
			body:       `{"data":{"taskId":"t1"}}`,
			wantStatus: http.StatusOK,
			wantCalls:  1,
			check: func(t *testing.T, cb task.Callback) {
				assert.Nil(t, cb.Code)
			},
		},
		{
			name:       "undecodable body is acknowledged",
			body:       `not json`,
			wantStatus: http.StatusOK,
			wantCalls:  0,
		},
		{
			name:       "storage failure asks for a retry",
			body:       `{"code":200,"data":{"taskId":"t1","info":{"resultImageUrl":"https://cdn.example.com/r.png"}}}`,
			procErr:    errors.New("database is locked"),
			wantStatus: http.StatusInternalServerError,
			wantCalls:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			proc := &recordingProcessor{result: task.CallbackApplied, err: tc.procErr}
			h := NewCallbackHandler(proc, nil, testLogger())

			req := httptest.NewRequest(http.MethodPost, CallbackPath, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.HandleCallback(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			require.Len(t, proc.got, tc.wantCalls)
			if tc.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"status":"received"}`, w.Body.String())
			}
			if tc.check != nil {
				tc.check(t, proc.got[0])
			}
		})
	}
}

func TestCallbackHandler_Token(t *testing.T) {
	tokens, err := auth.NewCallbackTokenService(testCallbackSecret, time.Hour)
	require.NoError(t, err)

	build := NewCallbackURLFunc("https://api.example.com/", tokens)
	callbackURL, err := build(context.Background())
	require.NoError(t, err)

	parsed, err := url.Parse(callbackURL)
	require.NoError(t, err)
	assert.Equal(t, "https", parsed.Scheme)
	assert.Equal(t, "api.example.com", parsed.Host)
	assert.Equal(t, CallbackPath, parsed.Path)
	require.NotEmpty(t, parsed.Query().Get("token"))

	body := `{"code":200,"data":{"taskId":"t1","info":{"resultImageUrl":"https://cdn.example.com/r.png"}}}`

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCalls  int
	}{
		{"valid token", parsed.RequestURI(), http.StatusOK, 1},
		{"missing token", CallbackPath, http.StatusUnauthorized, 0},
		{"forged token", CallbackPath + "?token=abc.def.ghi", http.StatusUnauthorized, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			proc := &recordingProcessor{result: task.CallbackApplied}
			h := NewCallbackHandler(proc, tokens, testLogger())

			req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader(body))
			w := httptest.NewRecorder()
			h.HandleCallback(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Len(t, proc.got, tc.wantCalls)
		})
	}
}

func TestNewCallbackURLFunc_WithoutTokens(t *testing.T) {
	build := NewCallbackURLFunc("http://localhost:8080", nil)
	got, err := build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080"+CallbackPath, got)
}
