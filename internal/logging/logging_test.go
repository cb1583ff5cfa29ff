package logging

import (
	"context"
	"log/slog"
	"testing"
)

// ========================================
// Context Tests
// ========================================

func TestWithRunID(t *testing.T) {
	ctx := context.Background()
	newCtx := WithRunID(ctx, "01HRUN")

	if ctx.Value(RunIDKey) != nil {
		t.Error("original context should not be modified")
	}
	if got := GetRunID(newCtx); got != "01HRUN" {
		t.Errorf("GetRunID() = %q, want 01HRUN", got)
	}
}

func TestGetters_MissingAndWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, 42)

	if got := GetUserID(ctx); got != "" {
		t.Errorf("GetUserID() = %q, want empty for non-string", got)
	}
	if got := GetRunID(context.Background()); got != "" {
		t.Errorf("GetRunID() = %q, want empty", got)
	}
}

func TestCombinedContext(t *testing.T) {
	ctx := WithUserID(WithRunID(context.Background(), "run-1"), "user-1")

	if GetRunID(ctx) != "run-1" || GetUserID(ctx) != "user-1" {
		t.Errorf("got run=%q user=%q", GetRunID(ctx), GetUserID(ctx))
	}
}

func TestFromContext(t *testing.T) {
	base := slog.Default()

	if got := FromContext(context.Background(), base); got != base {
		t.Error("FromContext() without run ID should return the same logger")
	}
	if got := FromContext(WithRunID(context.Background(), "r"), base); got == base {
		t.Error("FromContext() with run ID should return a derived logger")
	}
}

// ========================================
// Level Tests
// ========================================

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	if New() == nil {
		t.Fatal("New() returned nil")
	}
}
