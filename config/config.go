package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderGemini:    "gemini-2.0-flash",
}

type Config struct {
	// Server
	Port           string // default: 8080
	Env            string // default: development
	RequestTimeout time.Duration

	// Logging
	LogLevel  string // default: info
	LogFormat string // "json" or "text"; default depends on Env

	// Provider
	Provider        string // "anthropic", "openai" or "gemini"
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	ProviderBaseURL string
	UpstreamTimeout time.Duration

	// Limits
	DefaultModel          string
	AllowedModels         []string // empty means every model the provider supports
	MaxPromptLength       int
	MaxSystemPromptLength int
	MaxTokensCeiling      int
	DefaultMaxTokens      int
	DefaultTemperature    float64

	// Resilience
	RetryMaxRetries     int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	RetryMultiplier     float64
	RetryJitterFactor   float64
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
	UsageWindow         time.Duration

	// Cache / rate limiting
	RedisAddr         string // empty disables rate limiting
	RateLimitRequests int64
	RateLimitWindow   time.Duration

	// Access
	APIKeys     []string
	AdminAPIKey string
	CORSOrigins []string

	// Observability
	OTELExporterType     string // "stdout", "otlp" or "none"
	OTELExporterEndpoint string // default: "localhost:4317"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// APIKey returns the credential of the selected provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the signature of os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := &env{lookup: lookup}

	cfg := &Config{
		Port:                  e.str("PORT", "8080"),
		Env:                   e.str("ENV", "development"),
		LogLevel:              e.str("LOG_LEVEL", "info"),
		Provider:              strings.ToLower(e.str("LLM_PROVIDER", ProviderAnthropic)),
		AnthropicAPIKey:       e.str("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:          e.str("OPENAI_API_KEY", ""),
		GeminiAPIKey:          e.str("GEMINI_API_KEY", ""),
		ProviderBaseURL:       e.str("PROVIDER_BASE_URL", ""),
		UpstreamTimeout:       e.duration("UPSTREAM_TIMEOUT", 30*time.Second),
		AllowedModels:         e.list("ALLOWED_MODELS"),
		MaxPromptLength:       e.integer("MAX_PROMPT_LENGTH", 50000),
		MaxSystemPromptLength: e.integer("MAX_SYSTEM_PROMPT_LENGTH", 10000),
		MaxTokensCeiling:      e.integer("MAX_TOKENS_CEILING", 4096),
		DefaultMaxTokens:      e.integer("DEFAULT_MAX_TOKENS", 1024),
		DefaultTemperature:    e.float("DEFAULT_TEMPERATURE", 0.7),
		RetryMaxRetries:       e.integer("RETRY_MAX_RETRIES", 3),
		RetryBaseDelay:        e.duration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:         e.duration("RETRY_MAX_DELAY", 10*time.Second),
		RetryMultiplier:       e.float("RETRY_MULTIPLIER", 2),
		RetryJitterFactor:     e.float("RETRY_JITTER_FACTOR", 0.1),
		BreakerThreshold:      e.integer("BREAKER_THRESHOLD", 5),
		BreakerResetTimeout:   e.duration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		UsageWindow:           e.duration("USAGE_WINDOW", time.Hour),
		RequestTimeout:        e.duration("REQUEST_TIMEOUT", 60*time.Second),
		RedisAddr:             e.str("REDIS_ADDR", ""),
		RateLimitRequests:     int64(e.integer("RATE_LIMIT_REQUESTS", 100)),
		RateLimitWindow:       e.duration("RATE_LIMIT_WINDOW", 15*time.Minute),
		APIKeys:               e.list("API_KEYS"),
		AdminAPIKey:           e.str("ADMIN_API_KEY", ""),
		CORSOrigins:           e.list("CORS_ORIGINS"),
		OTELExporterType:      e.str("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint:  e.str("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}
	if e.err != nil {
		return nil, e.err
	}

	cfg.DefaultModel = e.str("DEFAULT_MODEL", defaultModels[cfg.Provider])

	logFormat := "text"
	if cfg.IsProduction() {
		logFormat = "json"
	}
	cfg.LogFormat = e.str("LOG_FORMAT", logFormat)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, ok := defaultModels[c.Provider]; !ok {
		return fmt.Errorf("invalid LLM_PROVIDER %q: must be anthropic, openai or gemini", c.Provider)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("API key for provider %s is required", c.Provider)
	}
	if c.MaxPromptLength < 1 || c.MaxSystemPromptLength < 1 {
		return fmt.Errorf("prompt length limits must be positive")
	}
	if c.MaxTokensCeiling < 1 {
		return fmt.Errorf("MAX_TOKENS_CEILING must be positive")
	}
	if c.DefaultMaxTokens < 1 || c.DefaultMaxTokens > c.MaxTokensCeiling {
		return fmt.Errorf("DEFAULT_MAX_TOKENS must be between 1 and %d", c.MaxTokensCeiling)
	}
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 1 {
		return fmt.Errorf("DEFAULT_TEMPERATURE must be between 0 and 1")
	}
	if c.RetryMaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be at least 1")
	}
	if c.RetryJitterFactor < 0 {
		return fmt.Errorf("RETRY_JITTER_FACTOR must not be negative")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("BREAKER_THRESHOLD must be positive")
	}
	if c.RequestTimeout <= 0 || c.UsageWindow <= 0 || c.BreakerResetTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT, USAGE_WINDOW and BREAKER_RESET_TIMEOUT must be positive")
	}
	if c.RedisAddr != "" && (c.RateLimitRequests < 1 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if len(c.AllowedModels) > 0 && !contains(c.AllowedModels, c.DefaultModel) {
		return fmt.Errorf("DEFAULT_MODEL %q is not in ALLOWED_MODELS", c.DefaultModel)
	}
	return nil
}

// env collects the first parse error so Load can report it after reading
// every variable.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) str(key, fallback string) string {
	if value, ok := e.lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (e *env) float(key string, fallback float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

// duration accepts Go durations ("30s") or a bare number of milliseconds.
func (e *env) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (e *env) list(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
