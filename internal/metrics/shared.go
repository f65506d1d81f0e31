package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// hashKey is the Redis hash holding all aggregate counters. Server-side
// HINCRBY keeps each counter consistent across workers; the snapshot is not
// a globally atomic view, which is acceptable for a metrics read.
const hashKey = "lattice:metrics"

// Shared is the Redis-backed Recorder backend.
type Shared struct {
	rdb *redis.Client
}

// NewShared creates an aggregator on the given shared store.
func NewShared(rdb *redis.Client) *Shared {
	return &Shared{rdb: rdb}
}

func (s *Shared) RecordRequest(sample RequestSample) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, hashKey, "total_requests", 1)
	pipe.HIncrByFloat(ctx, hashKey, "latency_sum_ms", sample.LatencyMs)
	pipe.HIncrBy(ctx, hashKey, "latency_samples", 1)
	if sample.CountUsage {
		pipe.HIncrBy(ctx, hashKey, "total_input_tokens", int64(sample.InputTokens))
		pipe.HIncrBy(ctx, hashKey, "total_output_tokens", int64(sample.OutputTokens))
		pipe.HIncrByFloat(ctx, hashKey, "total_cost", sample.TotalCost)
	}
	if sample.Provider != "" {
		pipe.HIncrBy(ctx, hashKey, "provider:"+sample.Provider, 1)
	}
	if sample.Model != "" {
		pipe.HIncrBy(ctx, hashKey, "model:"+sample.Model, 1)
	}
	if sample.Band != "" {
		pipe.HIncrBy(ctx, hashKey, "band:"+sample.Band, 1)
	}
	if sample.PIICount > 0 {
		pipe.HIncrBy(ctx, hashKey, "pii_detected_total", 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Debug("metrics_store_write_failed", slog.String("error", err.Error()))
	}
}

func (s *Shared) RecordCacheHit()  { s.incr("cache_hits_total") }
func (s *Shared) RecordCacheMiss() { s.incr("cache_misses_total") }

func (s *Shared) incr(field string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.HIncrBy(ctx, hashKey, field, 1).Err(); err != nil {
		slog.Debug("metrics_store_write_failed", slog.String("error", err.Error()))
	}
}

func (s *Shared) Snapshot(ctx context.Context) (Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Providers: make(map[string]int64),
		Models:    make(map[string]int64),
		Bands:     make(map[string]int64),
	}
	var latencySum float64
	var latencySamples int64
	for field, raw := range fields {
		switch {
		case field == "total_requests":
			snap.TotalRequests = parseInt(raw)
		case field == "total_cost":
			snap.TotalCost = parseFloat(raw)
		case field == "total_input_tokens":
			snap.TotalInputTokens = parseInt(raw)
		case field == "total_output_tokens":
			snap.TotalOutputTokens = parseInt(raw)
		case field == "cache_hits_total":
			snap.CacheHitsTotal = parseInt(raw)
		case field == "cache_misses_total":
			snap.CacheMissesTotal = parseInt(raw)
		case field == "pii_detected_total":
			snap.PIIDetectedTotal = parseInt(raw)
		case field == "latency_sum_ms":
			latencySum = parseFloat(raw)
		case field == "latency_samples":
			latencySamples = parseInt(raw)
		case strings.HasPrefix(field, "provider:"):
			snap.Providers[strings.TrimPrefix(field, "provider:")] = parseInt(raw)
		case strings.HasPrefix(field, "model:"):
			snap.Models[strings.TrimPrefix(field, "model:")] = parseInt(raw)
		case strings.HasPrefix(field, "band:"):
			snap.Bands[strings.TrimPrefix(field, "band:")] = parseInt(raw)
		}
	}
	if latencySamples > 0 {
		snap.AverageLatencyMs = latencySum / float64(latencySamples)
	}
	return snap, nil
}

func parseInt(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}

func parseFloat(raw string) float64 {
	v, _ := strconv.ParseFloat(raw, 64)
	return v
}
