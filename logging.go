package main

import (
	"log/slog"
	"os"
)

// logger is the process-wide structured logger.
var logger = slog.Default()

// initLogger configures the global logger.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
func initLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

func withConn(connID string) *slog.Logger {
	return logger.With("conn_id", connID)
}

func withGroup(groupID string) *slog.Logger {
	return logger.With("group", groupID)
}
