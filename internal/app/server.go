package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/lattice-dev/lattice/internal/bands"
	"github.com/lattice-dev/lattice/internal/cache"
	"github.com/lattice-dev/lattice/internal/cloud"
	"github.com/lattice-dev/lattice/internal/httpapi"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/internal/metrics"
	"github.com/lattice-dev/lattice/internal/pricing"
	"github.com/lattice-dev/lattice/internal/providers"
	"github.com/lattice-dev/lattice/internal/providers/anthropic"
	"github.com/lattice-dev/lattice/internal/providers/gemini"
	"github.com/lattice-dev/lattice/internal/providers/ollama"
	"github.com/lattice-dev/lattice/internal/providers/openai"
	"github.com/lattice-dev/lattice/internal/providers/stub"
	"github.com/lattice-dev/lattice/internal/ratelimit"
	"github.com/lattice-dev/lattice/internal/router"
	"github.com/lattice-dev/lattice/internal/trace"
	"github.com/lattice-dev/lattice/internal/tracing"
)

// rateWindowSecs is one day; the limit itself comes from configuration.
const rateWindowSecs = 86400

type Server struct {
	cfg Config

	r *chi.Mux

	logger    *slog.Logger
	cache     *cache.Client
	limiter   *ratelimit.Limiter
	redis     *redis.Client
	traces    trace.Sink
	forwarder *cloud.Forwarder
	otelStop  func(context.Context) error
}

func NewServer(cfg Config, version string) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	otelStop, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "lattice",
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware())
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	catalog, err := pricing.Load(cfg.PricingFile)
	if err != nil {
		return nil, err
	}
	bandTable, err := bands.Load(cfg.BandsConfigPath)
	if err != nil {
		return nil, err
	}

	registry := registerProviders(cfg, logger)

	s := &Server{cfg: cfg, r: r, logger: logger, otelStop: otelStop}

	// The shared store backs the cache, rate limit windows, and metrics
	// aggregates. When it is unreachable those stages degrade per-worker
	// or fail open rather than refusing requests.
	if opts, err := redis.ParseURL(cfg.SharedStoreURL); err == nil {
		s.redis = redis.NewClient(opts)
	} else {
		logger.Warn("shared store url invalid, running without shared store",
			slog.String("error", err.Error()))
	}

	if !cfg.CacheDisabled && s.redis != nil {
		c, err := cache.New(cfg.SharedStoreURL, cfg.CachePrefix,
			time.Duration(cfg.CacheTTLSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}

	if cfg.RateLimitEnabled {
		s.limiter = ratelimit.New(s.redis)
	}

	var recorder metrics.Recorder
	if s.redis != nil {
		recorder = metrics.NewShared(s.redis)
	} else {
		recorder = metrics.NewMemory()
	}
	prom := metrics.NewRegistry()
	instrumented := metrics.Instrument(recorder, prom)

	s.traces = trace.NewLogSink(logger)
	if cfg.TraceDBDSN != "" {
		sink, err := trace.NewSQLite(cfg.TraceDBDSN)
		if err != nil {
			return nil, err
		}
		if err := sink.Migrate(context.Background()); err != nil {
			_ = sink.Close()
			return nil, err
		}
		s.traces = sink
		logger.Info("trace store initialized", slog.String("dsn", cfg.TraceDBDSN))
	}

	if cfg.CloudIngestURL != "" && cfg.CloudIngestKey != "" {
		s.forwarder = cloud.New(cfg.CloudIngestURL, cfg.CloudIngestKey, logger)
		logger.Info("cloud forwarding enabled", slog.String("url", cfg.CloudIngestURL))
	}

	pipeline := &router.Pipeline{
		Registry:  bandTable,
		Pricing:   catalog,
		Providers: registry,
		Cache:     s.cache,
		Metrics:   instrumented,
		Traces:    s.traces,
		Cloud:     s.forwarder,
		Logger:    logger,
	}

	rateLimit := 0
	if cfg.RateLimitEnabled {
		rateLimit = cfg.RateLimitPerDay
	}
	httpapi.MountRoutes(r, httpapi.Dependencies{
		Pipeline:       pipeline,
		Metrics:        instrumented,
		Prom:           prom,
		Traces:         s.traces,
		Limiter:        s.limiter,
		Cache:          s.cache,
		Providers:      registry,
		Bands:          bandTable,
		RateLimit:      rateLimit,
		RateWindowSecs: rateWindowSecs,
		Version:        version,
		Env:            cfg.Env,
	})

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

// Close shuts down background workers and releases connections. The cloud
// forwarder drains first so already-answered requests still get forwarded.
func (s *Server) Close() error {
	if s.forwarder != nil {
		s.forwarder.Shutdown()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	var firstErr error
	if s.traces != nil {
		if err := s.traces.Close(); err != nil {
			firstErr = err
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.otelStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.otelStop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerProviders registers every adapter regardless of credential
// presence: a missing key surfaces as a configuration error at dispatch,
// which is diagnosable, instead of silently shrinking the candidate list.
func registerProviders(cfg Config, logger *slog.Logger) *providers.Registry {
	timeout := time.Duration(cfg.ProviderTimeoutSecs) * time.Second
	reg := providers.NewRegistry()

	reg.Register(openai.New("openai", cfg.OpenAIAPIKey, cfg.OpenAIAPIBase, openai.WithTimeout(timeout)))
	reg.Register(anthropic.New("anthropic", cfg.AnthropicAPIKey, "https://api.anthropic.com", anthropic.WithTimeout(timeout)))
	reg.Register(gemini.New("gemini", cfg.GeminiAPIKey, "https://generativelanguage.googleapis.com", gemini.WithTimeout(timeout)))
	reg.Register(ollama.New("ollama", cfg.OllamaURL, cfg.OllamaModel))
	reg.Register(stub.New("stub"))

	for _, id := range reg.IDs() {
		logger.Info("registered provider", slog.String("provider", id))
	}
	return reg
}
