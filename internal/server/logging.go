package server

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogger installs a text slog handler writing to stdout at the given
// level (debug, info, warn, error) as the process default.
func SetupLogger(level string) *slog.Logger {
	return setupLoggerTo(os.Stdout, level)
}

func setupLoggerTo(w io.Writer, level string) *slog.Logger {
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(l)
	return l
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

func logger() *slog.Logger {
	return slog.Default().With("component", "streams")
}
