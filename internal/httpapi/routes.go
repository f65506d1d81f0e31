// Package httpapi exposes the gateway over HTTP: the completion endpoint,
// aggregate metrics, trace listing, and the health/readiness probes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-dev/lattice/internal/bands"
	"github.com/lattice-dev/lattice/internal/cache"
	"github.com/lattice-dev/lattice/internal/metrics"
	"github.com/lattice-dev/lattice/internal/providers"
	"github.com/lattice-dev/lattice/internal/ratelimit"
	"github.com/lattice-dev/lattice/internal/router"
	"github.com/lattice-dev/lattice/internal/trace"
)

// Dependencies carries everything the handlers need. Nil-safe: handlers skip
// subsystems whose dependency is nil.
type Dependencies struct {
	Pipeline  *router.Pipeline
	Metrics   metrics.Recorder
	Prom      *metrics.Registry
	Traces    trace.Sink
	Limiter   *ratelimit.Limiter
	Cache     *cache.Client
	Providers *providers.Registry
	Bands     *bands.Registry

	// Fixed-window limit applied per consumer; zero disables.
	RateLimit      int
	RateWindowSecs int

	Version string
	Env     string
}

func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/", IndexHandler(d))
	r.Get("/v1/health", HealthHandler(d))
	r.Get("/v1/ready", ReadyHandler(d))
	r.Post("/v1/complete", CompleteHandler(d))
	r.Get("/v1/metrics", MetricsHandler(d))
	r.Get("/v1/traces", TracesHandler(d))

	if d.Prom != nil {
		r.Method(http.MethodGet, "/metrics", d.Prom.Handler())
	}
}
