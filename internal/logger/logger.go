// Package logger provides the structured logger used across heraclitus.
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with the contextual-field helpers the rest of
// the module expects.
type Logger struct {
	*slog.Logger
}

// New builds a logger. format "json" emits structured JSON; anything else
// (including the empty string) renders tinted console output.
func New(level, format string) *Logger {
	var handler slog.Handler

	logLevel := parseLevel(level)

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// Noop returns a logger that discards everything, for tests that don't
// care about log output.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// WithContext attaches a cascade_id from ctx, when present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if cascadeID := ctx.Value(cascadeIDKey{}); cascadeID != nil {
		return &Logger{Logger: l.With("cascade_id", cascadeID)}
	}
	return l
}

// WithFields returns a logger carrying the given structured fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.With(args...)}
}

// WithArtifact adds artifact_id to the logger context.
func (l *Logger) WithArtifact(artifactID string) *Logger {
	return &Logger{Logger: l.With("artifact_id", artifactID)}
}

// WithVersion adds version_id to the logger context.
func (l *Logger) WithVersion(versionID string) *Logger {
	return &Logger{Logger: l.With("version_id", versionID)}
}

// Error logs an error with a stack trace attached.
func (l *Logger) Error(msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.Error(msg, args...)
}

// ErrorContext logs an error with context and a stack trace attached.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.ErrorContext(ctx, msg, args...)
}

type cascadeIDKey struct{}

// WithCascadeID stores a cascade correlation id on ctx for WithContext to pick up.
func WithCascadeID(ctx context.Context, cascadeID string) context.Context {
	return context.WithValue(ctx, cascadeIDKey{}, cascadeID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
