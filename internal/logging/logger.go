package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler; verbose lowers the level to debug.
func Init(environment string, verbose bool) {
	env := strings.ToLower(strings.TrimSpace(environment))

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithRequest returns a logger with request context fields attached.
func WithRequest(requestID, method, path string) *slog.Logger {
	return slog.With(
		"request_id", requestID,
		"method", method,
		"path", path,
	)
}

// WithCommand returns a logger scoped to a command execution.
func WithCommand(logger *slog.Logger, action string) *slog.Logger {
	return logger.With("action", action)
}

// WithInstance returns a logger carrying the bridge instance identity.
func WithInstance(instanceID string, port int, primary bool) *slog.Logger {
	return slog.With(
		"instance_id", instanceID,
		"port", port,
		"primary", primary,
	)
}
