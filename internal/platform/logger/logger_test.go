package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/banana-api/internal/config"
	"github.com/phrazzld/banana-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		want  slog.Level
		known bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := logger.ParseLevel(tc.name)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.known, ok)
		})
	}
}

func TestSetupWithWriter(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	t.Run("respects level", func(t *testing.T) {
		buf := &logger.Capture{}
		l := logger.SetupWithWriter(config.ServerConfig{LogLevel: "warn"}, buf)

		l.Info("hidden")
		l.Warn("shown", "key", "value")

		entries := buf.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "shown", entries[0]["msg"])
		assert.Equal(t, "WARN", entries[0]["level"])
		assert.Equal(t, "value", entries[0]["key"])
		assert.Same(t, l, slog.Default())
	})

	t.Run("invalid level falls back to info and warns", func(t *testing.T) {
		buf := &logger.Capture{}
		l := logger.SetupWithWriter(config.ServerConfig{LogLevel: "chatty"}, buf)

		l.Debug("hidden")
		l.Info("shown")

		warning, ok := buf.Find("invalid log level configured")
		require.True(t, ok)
		assert.Equal(t, "chatty", warning["configured_level"])
		assert.True(t, buf.HasField("msg", "shown"))
		assert.NotContains(t, buf.String(), "hidden")
	})
}

func TestContextLogger(t *testing.T) {
	l, buf := logger.NewCapture()
	fallback, _ := logger.NewCapture()

	ctx := logger.WithLogger(context.Background(), l.With("trace_id", "abc"))
	logger.FromContext(ctx).Info("hello")

	assert.True(t, buf.HasField("trace_id", "abc"))
	assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	assert.Same(t, slog.Default(), logger.FromContext(context.Background()))
	assert.Equal(t, context.Background(), logger.WithLogger(context.Background(), nil))
}
