package server

import (
	"io"
	"log/slog"
	"strings"
)

// SetupLogging installs the default slog text logger at the given level.
func SetupLogging(level string, w io.Writer) slog.Level {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
	return logLevel
}
