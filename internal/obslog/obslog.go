// Package obslog provides the small leveled stderr logger used by the
// daemon and CLI. The teacher repo logs through the standard library's
// "log" package throughout; this wraps log/slog (also standard
// library) to get levels and key-value fields without introducing a
// structured-logging dependency the corpus never uses (see DESIGN.md).
package obslog

import (
	"log/slog"
	"os"
)

// New returns a text-handler logger writing to stderr at the given
// level ("debug", "info", "warn", "error"; unrecognized values fall
// back to "info").
func New(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
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
