// Package telemetry provides structured logging for the player, wrapping
// log/slog the way the teacher's internal/logger package does, enriched
// with the With* chaining helpers used across the example pack for tagging
// component and correlation fields.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with convenience helpers for tagging component
// and URL fields, the way production loggers in this codebase do.
type Logger struct {
	*slog.Logger
}

// New creates a Logger at the given level ("debug", "info", "warn",
// "error"), writing JSON or text to w (os.Stdout if w is nil).
func New(level string, jsonFormat bool, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{slog.New(handler)}
}

// Noop returns a Logger that discards everything, for tests.
func Noop() *Logger {
	return &Logger{slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// WithComponent tags the logger with the subsystem emitting through it
// (e.g. "scheduler", "bwmeter", "transport.http").
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

func (l *Logger) WithURL(url string) *Logger {
	return l.With("url", url)
}

func (l *Logger) WithError(err error) *Logger {
	return l.With("error", err.Error())
}
