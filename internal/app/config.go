package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read once at startup. There is no
// reload path: changing the environment means restarting the process.
type Config struct {
	Env        string // dev | prod | cloud
	ListenAddr string
	LogLevel   string

	CORSOrigins []string

	// Exact-match cache.
	CacheDisabled   bool
	CachePrefix     string
	CacheTTLSeconds int

	// Fixed-window rate limiting.
	RateLimitEnabled bool
	RateLimitPerDay  int

	// Provider credentials and endpoints.
	OpenAIAPIKey    string
	OpenAIAPIBase   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	OllamaURL       string
	OllamaModel     string

	ProviderTimeoutSecs int

	// Routing tables.
	BandsConfigPath string
	PricingFile     string

	// Shared Redis store: cache, rate limit windows, metrics aggregates.
	SharedStoreURL string

	// Trace persistence.
	TraceDBDSN string

	// Cloud trace forwarding.
	CloudIngestURL string
	CloudIngestKey string

	// Distributed tracing.
	OTelEnabled  bool
	OTelEndpoint string
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Env:        getEnv("ENV", "dev"),
		ListenAddr: getEnv("LISTEN_ADDR", ":8095"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		CORSOrigins: getEnvStringSlice("CORS_ORIGINS", nil),

		CacheDisabled:   getEnvBool("CACHE_DISABLED", false),
		CachePrefix:     getEnv("CACHE_PREFIX", "lattice:cache"),
		CacheTTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 60),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerDay:  getEnvInt("RATE_LIMIT_PER_DAY", 1000),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIAPIBase:   getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.2"),

		ProviderTimeoutSecs: getEnvInt("PROVIDER_TIMEOUT_SECS", 60),

		BandsConfigPath: getEnv("BANDS_CONFIG_PATH", "configs/bands.json"),
		PricingFile:     getEnv("PRICING_FILE", "configs/pricing.json"),

		SharedStoreURL: getEnv("SHARED_STORE_URL", "redis://localhost:6379/0"),

		TraceDBDSN: getEnv("TRACE_DB_DSN", "file:lattice_traces.sqlite"),

		CloudIngestURL: os.Getenv("CLOUD_INGEST_URL"),
		CloudIngestKey: os.Getenv("CLOUD_INGEST_KEY"),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_ENDPOINT", "localhost:4318"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would produce a broken gateway.
func (c Config) Validate() error {
	switch c.Env {
	case "dev", "prod", "cloud":
	default:
		return fmt.Errorf("ENV must be dev, prod, or cloud, got %q", c.Env)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be >= 0, got %d", c.CacheTTLSeconds)
	}
	if c.RateLimitPerDay < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_DAY must be >= 0, got %d", c.RateLimitPerDay)
	}
	if c.ProviderTimeoutSecs <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECS must be > 0, got %d", c.ProviderTimeoutSecs)
	}
	if c.Env != "dev" && c.OpenAIAPIKey == "" && c.AnthropicAPIKey == "" && c.GeminiAPIKey == "" {
		return fmt.Errorf("ENV=%s requires at least one provider API key", c.Env)
	}
	if _, err := os.Stat(c.BandsConfigPath); err != nil {
		return fmt.Errorf("BANDS_CONFIG_PATH: %w", err)
	}
	if _, err := os.Stat(c.PricingFile); err != nil {
		return fmt.Errorf("PRICING_FILE: %w", err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
