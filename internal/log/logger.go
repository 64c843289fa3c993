// Package log provides the structured logger used across strata.
//
// It is a thin layer over log/slog: a Config picks the handler, and
// WithError expands coded errors into error_code/subjects attributes so
// that migration failures are searchable in the log stream.
package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/HendryAvila/strata/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = DefaultConfig().Output
	}
	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{slog: slog.New(handler), config: config}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// Or returns l, or a discarding logger when l is nil.
func Or(l *Logger) *Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config}
}

// WithComponent tags every entry with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithError adds error details to the logger.
// Coded errors contribute error_code and subjects.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	if se, ok := errors.As(err); ok {
		args := []any{
			"error", se.Message,
			"error_code", string(se.Code),
		}
		if len(se.Subjects) > 0 {
			args = append(args, "subjects", se.Subjects)
		}
		if se.Cause != nil {
			args = append(args, "cause", se.Cause.Error())
		}
		return l.With(args...)
	}

	return l.With("error", err.Error())
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

// Slog exposes the underlying *slog.Logger for libraries that accept one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}
