// Package logging builds the process logger on slog-logfilter:
//   - LOG_FORMAT (text/json), falling back to TTY detection
//   - LOG_LEVEL (debug/info/warn/error)
//   - run_id and user_id context extraction so runtime filters can target one run or user
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	logfilter "github.com/jmylchreest/slog-logfilter"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// RunIDKey carries the discovery or seller run being processed.
	RunIDKey ContextKey = "log_run_id"
	// UserIDKey carries the caller. It is used for filter matching and never logged.
	UserIDKey ContextKey = "log_user_id"
)

// WithRunID adds a run ID to the context for logging.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithUserID adds a user ID to the context for filter matching.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRunID extracts the run ID from context.
func GetRunID(ctx context.Context) string {
	return stringValue(ctx, RunIDKey)
}

// GetUserID extracts the user ID from context.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// FromContext returns logger with the run ID from ctx attached.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if runID := GetRunID(ctx); runID != "" {
		return logger.With("run_id", runID)
	}
	return logger
}

func registerContextExtractors() {
	for name, key := range map[string]ContextKey{"run_id": RunIDKey, "user_id": UserIDKey} {
		key := key
		logfilter.RegisterContextExtractor(name, func(ctx context.Context) (string, bool) {
			s := stringValue(ctx, key)
			return s, s != ""
		})
	}
}

// New creates the logger.
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	format := "json"
	if logFormat == "text" || (logFormat == "" && isatty(os.Stdout)) {
		format = "text"
	}

	registerContextExtractors()

	return logfilter.New(
		logfilter.WithLevel(parseLogLevel(os.Getenv("LOG_LEVEL"))),
		logfilter.WithFormat(format),
		logfilter.WithOutput(os.Stdout),
		logfilter.WithSource(true),
	)
}

// SetDefault creates a new logger and installs it as the slog default.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// SetFilters replaces the runtime log filters.
func SetFilters(filters []logfilter.LogFilter) {
	logfilter.SetFilters(filters)
}

// GetFilters returns the active runtime log filters.
func GetFilters() []logfilter.LogFilter {
	return logfilter.GetFilters()
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
