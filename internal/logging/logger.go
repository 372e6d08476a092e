package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithQuery returns a logger with planning context fields attached.
// Use this for all logging within a single plan/execute flow.
func WithQuery(requestID, query string) *slog.Logger {
	return slog.With(
		"request_id", requestID,
		"query", query,
	)
}

// WithStep returns a logger scoped to a specific plan step.
func WithStep(logger *slog.Logger, step int, entity string) *slog.Logger {
	return logger.With(
		"step", step,
		"entity", entity,
	)
}
