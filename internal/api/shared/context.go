package shared

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

// TraceIDKey is the context key holding the request trace ID.
const TraceIDKey contextKey = "traceID"

// MaxTraceIDLength bounds trace IDs accepted from clients.
const MaxTraceIDLength = 64

var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// SetTraceID stores a fresh trace ID in ctx.
func SetTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// WithTraceID stores id in ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

// GetTraceID returns the trace ID in ctx, or "" when there is none.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// NewTraceID returns a random 32 character hex ID. If the random source
// fails it falls back to a time-based UUID.
func NewTraceID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		id, err = uuid.NewUUID()
		if err != nil {
			id = uuid.New()
		}
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

// ValidTraceID reports whether a client supplied trace ID is safe to echo
// into logs and headers.
func ValidTraceID(id string) bool {
	return id != "" && len(id) <= MaxTraceIDLength && traceIDPattern.MatchString(id)
}
