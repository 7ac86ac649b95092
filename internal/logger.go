package internal

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
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

// NewLogger writes text logs in development and JSON everywhere else.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLogLevel(level),
	}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", "postpilot")
}
