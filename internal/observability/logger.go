package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the JSON logger both processes install as the slog
// default, wrapped in the trace handler so every log line carries
// trace_id/span_id when emitted inside a span.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler))
}
