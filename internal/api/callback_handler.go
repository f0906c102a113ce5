package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/phrazzld/banana-api/internal/api/shared"
	"github.com/phrazzld/banana-api/internal/platform/logger"
	"github.com/phrazzld/banana-api/internal/service"
	"github.com/phrazzld/banana-api/internal/service/auth"
	"github.com/phrazzld/banana-api/internal/task"
)

// CallbackPath is where the provider delivers webhooks.
const CallbackPath = "/api/v1/nanobanana/callback"

// callbackTokenParam is the query parameter carrying the callback token.
const callbackTokenParam = "token"

// maxCallbackBytes bounds a webhook body.
const maxCallbackBytes = 1 << 20

// CallbackProcessor applies a provider webhook to its task.
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, cb task.Callback) (task.CallbackResult, error)
}

// CallbackHandler handles provider webhooks.
type CallbackHandler struct {
	processor CallbackProcessor
	tokens    auth.CallbackTokenService
	logger    *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler. A nil tokens service accepts
// webhooks without a token.
func NewCallbackHandler(
	processor CallbackProcessor,
	tokens auth.CallbackTokenService,
	logger *slog.Logger,
) *CallbackHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CallbackHandler")
	}

	return &CallbackHandler{
		processor: processor,
		tokens:    tokens,
		logger:    logger.With(slog.String("component", "callback_handler")),
	}
}

// HandleCallback handles POST /api/v1/nanobanana/callback.
//
// Every delivery is acknowledged with 200 except a storage failure, which
// answers 500 so the provider retries. Payloads that cannot be interpreted
// and unknown task ids are logged and dropped.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if h.tokens != nil {
		if _, err := h.tokens.ValidateToken(r.Context(), r.URL.Query().Get(callbackTokenParam)); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBytes)

	var payload CallbackPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		log.Warn("dropping undecodable callback", "error", err)
		shared.RespondWithJSON(w, r, http.StatusOK, CallbackAck{Status: "received"})
		return
	}

	cb := task.Callback{
		Code:   payload.Code,
		Msg:    payload.Msg,
		TaskID: payload.Data.TaskID,
	}
	if payload.Data.Info != nil {
		cb.ResultImageURL = payload.Data.Info.ResultImageURL
	}

	result, err := h.processor.HandleCallback(r.Context(), cb)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Internal server error", err)
		return
	}

	log.Info("callback handled",
		"task_id", cb.TaskID,
		"result", result.String())
	shared.RespondWithJSON(w, r, http.StatusOK, CallbackAck{Status: "received"})
}

// NewCallbackURLFunc returns the builder of the callback URL handed to the
// provider at submission. With a token service each URL carries a fresh token.
func NewCallbackURLFunc(publicBaseURL string, tokens auth.CallbackTokenService) service.CallbackURLFunc {
	base := strings.TrimRight(publicBaseURL, "/") + CallbackPath
	return func(ctx context.Context) (string, error) {
		if tokens == nil {
			return base, nil
		}
		token, err := tokens.GenerateToken(ctx)
		if err != nil {
			return "", err
		}
		return base + "?" + url.Values{callbackTokenParam: {token}}.Encode(), nil
	}
}
