package trace

import (
	"context"
	"log/slog"
)

// LogSink writes traces to the structured log instead of a store. Used when
// no trace database is configured; List always returns nothing.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(_ context.Context, rec Record) error {
	s.log.Info("trace",
		slog.String("trace_id", rec.ID),
		slog.String("provider", rec.Provider),
		slog.String("model", rec.Model),
		slog.String("band", rec.Band),
		slog.String("status", rec.Status),
		slog.Float64("latency_ms", rec.LatencyMs),
		slog.Float64("cost_usd", rec.CostUSD),
		slog.Int("prompt_tokens", rec.PromptTokens),
		slog.Int("completion_tokens", rec.CompletionTokens),
	)
	return nil
}

func (s *LogSink) List(context.Context, int, int, string) ([]Record, error) {
	return nil, nil
}

func (s *LogSink) Close() error { return nil }
