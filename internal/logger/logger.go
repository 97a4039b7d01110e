// Package logger provides structured logging and context-aware logger injection.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// L is the process-wide logger; initialize with Init or use FromContext for request-scoped loggers.
var (
	L      = slog.Default()
	logKey = ctxKey{}
)

// Init replaces the process-wide logger with one writing to stdout at level in format ("text" or "json").
func Init(level, format string) {
	L = New(os.Stdout, level, format)
	slog.SetDefault(L)
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// FromContext returns the logger from ctx, or the global logger if not set.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if l, ok := ctx.Value(logKey).(*slog.Logger); ok {
		return l
	}
	return L
}

// WithContext stores the logger in ctx and returns the new context.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, logKey, l)
}

// Component returns base (or the global logger) tagged with the given component name.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = L
	}
	return base.With(slog.String("component", name))
}

// visibleDigits is how many trailing digits Phone keeps readable.
const visibleDigits = 4

// Phone logs a WhatsApp id with all but the last digits masked.
func Phone(key, waID string) slog.Attr {
	waID = strings.TrimSpace(waID)
	if len(waID) <= visibleDigits {
		return slog.String(key, strings.Repeat("*", len(waID)))
	}
	return slog.String(key, strings.Repeat("*", len(waID)-visibleDigits)+waID[len(waID)-visibleDigits:])
}

func parseLevel(level string) slog.Level {
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
