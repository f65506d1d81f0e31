package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry mirrors the aggregate counters into Prometheus for /metrics.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	CostUSD        *prometheus.CounterVec
	CacheEvents    *prometheus.CounterVec
	PIIDetected    prometheus.Counter
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_requests_total",
			Help: "Total requests routed through the gateway",
		}, []string{"provider", "model", "band", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lattice_request_latency_ms",
			Help:    "Request latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"provider", "model", "band"}),
		CostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_cost_usd_total",
			Help: "Estimated USD cost",
		}, []string{"provider", "model"}),
		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_cache_events_total",
			Help: "Exact-match cache hits and misses",
		}, []string{"event"}),
		PIIDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_pii_detected_total",
			Help: "Requests where sensitivity tagging matched",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestLatency, m.CostUSD, m.CacheEvents, m.PIIDetected)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Instrumented tees every Recorder call into a Prometheus registry while
// delegating aggregation to the inner backend.
type Instrumented struct {
	inner Recorder
	prom  *Registry
}

func Instrument(inner Recorder, prom *Registry) *Instrumented {
	return &Instrumented{inner: inner, prom: prom}
}

func (i *Instrumented) RecordRequest(s RequestSample) {
	status := "miss"
	if s.CacheHit {
		status = "hit"
	}
	i.prom.RequestsTotal.WithLabelValues(s.Provider, s.Model, s.Band, status).Inc()
	i.prom.RequestLatency.WithLabelValues(s.Provider, s.Model, s.Band).Observe(s.LatencyMs)
	if s.CountUsage {
		i.prom.CostUSD.WithLabelValues(s.Provider, s.Model).Add(s.TotalCost)
	}
	if s.PIICount > 0 {
		i.prom.PIIDetected.Inc()
	}
	i.inner.RecordRequest(s)
}

func (i *Instrumented) RecordCacheHit() {
	i.prom.CacheEvents.WithLabelValues("hit").Inc()
	i.inner.RecordCacheHit()
}

func (i *Instrumented) RecordCacheMiss() {
	i.prom.CacheEvents.WithLabelValues("miss").Inc()
	i.inner.RecordCacheMiss()
}

func (i *Instrumented) Snapshot(ctx context.Context) (Snapshot, error) {
	return i.inner.Snapshot(ctx)
}
