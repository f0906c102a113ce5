package middleware

import (
	"net/http"

	"github.com/phrazzld/banana-api/internal/api/shared"
	"github.com/phrazzld/banana-api/internal/service/auth"
)

// APIKeyHeader carries the client API key.
const APIKeyHeader = "X-API-KEY"

// KeyVerifier checks a client API key.
type KeyVerifier interface {
	Verify(key string) error
}

// APIKeyMiddleware rejects requests without a valid API key.
type APIKeyMiddleware struct {
	verifier KeyVerifier
}

// NewAPIKeyMiddleware creates a new APIKeyMiddleware with the given verifier.
func NewAPIKeyMiddleware(verifier KeyVerifier) *APIKeyMiddleware {
	return &APIKeyMiddleware{verifier: verifier}
}

// Authenticate validates the API key header before passing the request on.
func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.verifier.Verify(r.Header.Get(APIKeyHeader)); err != nil {
			switch err {
			case auth.ErrMissingAPIKey:
				shared.RespondWithError(w, r, http.StatusUnauthorized, "API key required")
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid API key", err,
					shared.WithElevatedLogLevel())
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}
