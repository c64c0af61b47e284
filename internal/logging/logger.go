package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured logger writing JSON records to stderr. When debug
// is true the logger uses DEBUG level and includes source locations.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})

	return slog.New(handler)
}

// NewNopLogger returns a no-op logger for tests. All records are discarded.
func NewNopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1, // Higher than any log level, effectively disabling all logs
	}))
}
