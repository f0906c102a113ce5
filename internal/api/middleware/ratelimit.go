package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/phrazzld/banana-api/internal/api/shared"
	"github.com/phrazzld/banana-api/internal/ratelimit"
)

// Admitter decides whether a client may make one more request.
type Admitter interface {
	Admit(key string) ratelimit.Decision
}

// RateLimit admits requests per client address, taken from RemoteAddr.
// Forwarded-address headers are not consulted here; chi's RealIP rewrites
// RemoteAddr when the server is configured to trust a proxy.
func RateLimit(limiter Admitter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Admit(clientKey(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				seconds := int(math.Ceil(d.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey strips the port from RemoteAddr when there is one.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
