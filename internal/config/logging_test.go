package config

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	assert.True(t, NewLogger("debug").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewLogger("warn").Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, NewLogger("warn").Enabled(context.Background(), slog.LevelWarn))
}
