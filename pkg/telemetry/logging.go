// Package telemetry configures structured logging and Prometheus metrics
// for the gateway.
package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogging installs the process-wide slog default. Level accepts
// debug, info, warn, error (case-insensitive); format is "json" or "text".
func SetupLogging(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
