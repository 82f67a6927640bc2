package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured logger shared by the CLI and pipeline. Records
// written through a context carry its run and session identifiers.
type Logger struct {
	base *slog.Logger
}

// LogConfig selects level, encoding and destination.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

const clockLayout = "15:04:05.000"

// NewLogger writes to config.Output, stderr by default. Text output uses a
// wall-clock timestamp since runs are read interactively.
func NewLogger(config LogConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(config.Level)}
	if strings.EqualFold(config.Format, "json") {
		return &Logger{base: slog.New(slog.NewJSONHandler(out, opts))}
	}
	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
			return slog.String(slog.TimeKey, a.Value.Time().Format(clockLayout))
		}
		return a
	}
	return &Logger{base: slog.New(slog.NewTextHandler(out, opts))}
}

// NewDiscardLogger drops every record.
func NewDiscardLogger() *Logger {
	return &Logger{base: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps debug, warn and error to slog levels; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a logger that adds attrs to every record.
func (l *Logger) With(attrs ...any) *Logger {
	return &Logger{base: l.base.With(attrs...)}
}

// WithContext binds the run and session identifiers found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if id := RunIDFromContext(ctx); id != "" {
		attrs = append(attrs, "run_id", id)
	}
	if id := SessionIDFromContext(ctx); id != "" {
		attrs = append(attrs, "session_id", id)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// Log writes one record at level.
func (l *Logger) Log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l.base.Log(ctx, level, msg, attrs...)
}

func (l *Logger) Debug(msg string, attrs ...any) { l.base.Debug(msg, attrs...) }
func (l *Logger) Info(msg string, attrs ...any)  { l.base.Info(msg, attrs...) }
func (l *Logger) Warn(msg string, attrs ...any)  { l.base.Warn(msg, attrs...) }
func (l *Logger) Error(msg string, attrs ...any) { l.base.Error(msg, attrs...) }

// SanitizeAPIKey keeps the first 8 and last 4 characters of a key.
func SanitizeAPIKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	sessionIDKey contextKey = "session_id"
)

// ContextWithRunID tags ctx with the identifier of one pipeline run.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the run identifier from context.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		return runID
	}
	return ""
}

// ContextWithSessionID adds the session folder name to context.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext extracts session ID from context
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}
