// Package metrics aggregates gateway counters. Two backends share one
// interface: an in-process mutex-protected aggregator and a shared-store
// (Redis hash) aggregator for multi-worker deployments. A Prometheus mirror
// exposes the same counters at /metrics.
package metrics

import (
	"context"
	"sync"
)

// RequestSample is one completed request as seen by the aggregator.
// CountUsage is false on cache hits so tokens and cost are never
// double-counted.
type RequestSample struct {
	Provider     string
	Model        string
	Band         string
	LatencyMs    float64
	InputTokens  int
	OutputTokens int
	TotalCost    float64
	CacheHit     bool
	PIICount     int
	CountUsage   bool
}

// Snapshot is the aggregate view served by /v1/metrics. No per-request data.
type Snapshot struct {
	TotalRequests     int64            `json:"total_requests"`
	TotalCost         float64          `json:"total_cost"`
	TotalInputTokens  int64            `json:"total_input_tokens"`
	TotalOutputTokens int64            `json:"total_output_tokens"`
	AverageLatencyMs  float64          `json:"average_latency_ms"`
	CacheHitsTotal    int64            `json:"cache_hits_total"`
	CacheMissesTotal  int64            `json:"cache_misses_total"`
	PIIDetectedTotal  int64            `json:"pii_detected_total"`
	Providers         map[string]int64 `json:"providers"`
	Models            map[string]int64 `json:"models"`
	Bands             map[string]int64 `json:"bands"`
}

// Recorder is the aggregator interface the pipeline records into.
type Recorder interface {
	RecordRequest(s RequestSample)
	RecordCacheHit()
	RecordCacheMiss()
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Memory is the in-process Recorder backend.
type Memory struct {
	mu             sync.Mutex
	totalRequests  int64
	totalCost      float64
	inputTokens    int64
	outputTokens   int64
	latencySumMs   float64
	latencySamples int64
	cacheHits      int64
	cacheMisses    int64
	piiDetected    int64
	providers      map[string]int64
	models         map[string]int64
	bands          map[string]int64
}

// NewMemory creates an empty in-process aggregator.
func NewMemory() *Memory {
	return &Memory{
		providers: make(map[string]int64),
		models:    make(map[string]int64),
		bands:     make(map[string]int64),
	}
}

func (m *Memory) RecordRequest(s RequestSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	m.latencySumMs += s.LatencyMs
	m.latencySamples++
	if s.CountUsage {
		m.inputTokens += int64(s.InputTokens)
		m.outputTokens += int64(s.OutputTokens)
		m.totalCost += s.TotalCost
	}
	bump(m.providers, s.Provider)
	bump(m.models, s.Model)
	bump(m.bands, s.Band)
	if s.PIICount > 0 {
		m.piiDetected++
	}
}

func (m *Memory) RecordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *Memory) RecordCacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

func (m *Memory) Snapshot(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := 0.0
	if m.latencySamples > 0 {
		avg = m.latencySumMs / float64(m.latencySamples)
	}
	return Snapshot{
		TotalRequests:     m.totalRequests,
		TotalCost:         m.totalCost,
		TotalInputTokens:  m.inputTokens,
		TotalOutputTokens: m.outputTokens,
		AverageLatencyMs:  avg,
		CacheHitsTotal:    m.cacheHits,
		CacheMissesTotal:  m.cacheMisses,
		PIIDetectedTotal:  m.piiDetected,
		Providers:         copyMap(m.providers),
		Models:            copyMap(m.models),
		Bands:             copyMap(m.bands),
	}, nil
}

func bump(bucket map[string]int64, key string) {
	if key == "" {
		return
	}
	bucket[key]++
}

func copyMap(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
