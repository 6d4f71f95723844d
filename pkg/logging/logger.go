package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with the attributes the booking assistant logs on
// every conversation turn.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger writing to stdout at the specified level.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a JSON logger writing to w. Unknown levels fall back to info.
func NewWithWriter(level string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}

// With returns a Logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithConversation scopes the logger to a single salon/customer conversation.
func (l *Logger) WithConversation(salonID, customerHandle string) *Logger {
	return l.With("salon_id", salonID, "customer", MaskHandle(customerHandle))
}

// MaskHandle keeps the last four characters of a customer handle so logs can
// be correlated without exposing the full phone number or platform id.
func MaskHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if len(handle) <= 4 {
		return handle
	}
	return strings.Repeat("*", len(handle)-4) + handle[len(handle)-4:]
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
