package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/tjfontaine/chat-responses-gateway/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	if _, ok := newLogger(config.LogConfig{Format: "text", Level: "info"}).Handler().(*slog.TextHandler); !ok {
		t.Error("Expected text handler for text format")
	}
	if _, ok := newLogger(config.LogConfig{Format: "json", Level: "info"}).Handler().(*slog.JSONHandler); !ok {
		t.Error("Expected JSON handler for json format")
	}
	if !newLogger(config.LogConfig{Level: "debug"}).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug level to be enabled")
	}
}
