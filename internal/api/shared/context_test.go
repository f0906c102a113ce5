package shared

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceIDRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetTraceID(context.Background()))

	ctx := SetTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, 32)
	assert.True(t, ValidTraceID(id))

	assert.Equal(t, "abc", GetTraceID(WithTraceID(ctx, "abc")))
}

func TestNewTraceIDIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewTraceID()
		assert.NotContains(t, id, "-")
		_, dup := seen[id]
		assert.False(t, dup, "duplicate trace id %s", id)
		seen[id] = struct{}{}
	}
}

func TestValidTraceID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"0af7651916cd43dd8448eb211c80319c", true},
		{"req-1.retry_2", true},
		{"has space", false},
		{"line\nbreak", false},
		{`quote"`, false},
		{strings.Repeat("a", MaxTraceIDLength), true},
		{strings.Repeat("a", MaxTraceIDLength+1), false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, ValidTraceID(tc.id), "%q", tc.id)
	}
}
