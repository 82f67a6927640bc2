// Package logging gives pipeline components a printf-style logger backed by
// the structured observability logger.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"mathviz/internal/observability"
)

// Logger is the contract every component accepts.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop discards everything.
func Nop() Logger { return nopLogger{} }

// IsNil also catches a typed nil pointer stored in the interface.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	v := reflect.ValueOf(logger)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// OrNop substitutes Nop for a nil logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// structured formats the message and hands it to the slog-backed logger.
type structured struct {
	base *observability.Logger
}

func (l structured) emit(level slog.Level, format string, args []any) {
	l.base.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l structured) Debug(format string, args ...any) { l.emit(slog.LevelDebug, format, args) }
func (l structured) Info(format string, args ...any)  { l.emit(slog.LevelInfo, format, args) }
func (l structured) Warn(format string, args ...any)  { l.emit(slog.LevelWarn, format, args) }
func (l structured) Error(format string, args ...any) { l.emit(slog.LevelError, format, args) }

// FromObservability scopes base to component.
func FromObservability(base *observability.Logger, component string) Logger {
	if base == nil {
		return Nop()
	}
	if component != "" {
		base = base.With("component", component)
	}
	return structured{base: base}
}

// Component renames the component of a structured logger. Other loggers
// are returned unchanged.
func Component(parent Logger, name string) Logger {
	if s, ok := parent.(structured); ok {
		return structured{base: s.base.With("component", name)}
	}
	return OrNop(parent)
}

// WithContext tags a structured logger with the run and session of ctx.
func WithContext(parent Logger, ctx context.Context) Logger {
	if s, ok := parent.(structured); ok {
		return structured{base: s.base.WithContext(ctx)}
	}
	return OrNop(parent)
}
