package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/emotion-gateway/config"
	"github.com/vnmchuo/emotion-gateway/internal/api"
	"github.com/vnmchuo/emotion-gateway/internal/gateway"
	"github.com/vnmchuo/emotion-gateway/internal/provider"
	"github.com/vnmchuo/emotion-gateway/internal/provider/claude"
	"github.com/vnmchuo/emotion-gateway/internal/provider/gemini"
	"github.com/vnmchuo/emotion-gateway/internal/provider/openai"
	"github.com/vnmchuo/emotion-gateway/internal/telemetry"
	"github.com/vnmchuo/emotion-gateway/pkg/ratelimit"
)

const serviceName = "emotion-gateway"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	// 2. Init logging
	logger := newLogger(cfg)

	// 3. Init telemetry
	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to init tracer")
	}
	defer shutdownTracer()
	tracer := otel.GetTracerProvider().Tracer(serviceName)

	// 4. Connect Redis (optional, backs the rate limiter)
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, rate limiter will fail open until it recovers")
		} else {
			logger.WithField("addr", cfg.RedisAddr).Info("Redis connected")
		}
		cancel()

		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow)
	} else {
		logger.Info("REDIS_ADDR not set, rate limiting disabled")
	}

	// 5. Init provider
	p := newProvider(cfg)
	allowed := cfg.AllowedModels
	if len(allowed) == 0 {
		allowed = p.SupportedModels()
	}

	// 6. Init gateway
	gw := gateway.New(p, gateway.Options{
		Limits: gateway.Limits{
			MaxPromptLength:       cfg.MaxPromptLength,
			MaxSystemPromptLength: cfg.MaxSystemPromptLength,
			MaxTokensCeiling:      cfg.MaxTokensCeiling,
			DefaultMaxTokens:      cfg.DefaultMaxTokens,
			DefaultTemperature:    cfg.DefaultTemperature,
			DefaultModel:          cfg.DefaultModel,
			AllowedModels:         allowed,
		},
		Retry: gateway.RetryPolicy{
			MaxRetries:   cfg.RetryMaxRetries,
			BaseDelay:    cfg.RetryBaseDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			Multiplier:   cfg.RetryMultiplier,
			JitterFactor: cfg.RetryJitterFactor,
		},
		Breaker: gateway.BreakerSettings{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
		},
		UsageWindow:    cfg.UsageWindow,
		Logger:         logger,
		Tracer:         tracer,
		AttemptTimeout: cfg.UpstreamTimeout,
	})

	// 7. Init router
	handler := api.NewHandler(gw, logger, tracer, cfg.RequestTimeout)
	router := api.NewRouter(handler, api.RouterOptions{
		Production:  cfg.IsProduction(),
		APIKeys:     cfg.APIKeys,
		AdminAPIKey: cfg.AdminAPIKey,
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     limiter,
	})
	if len(cfg.APIKeys) == 0 {
		logger.Warn("API_KEYS not set, /api/v1 is unauthenticated")
	}

	// 8. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithFields(logrus.Fields{
			"port":     cfg.Port,
			"env":      cfg.Env,
			"provider": p.Name(),
			"model":    cfg.DefaultModel,
		}).Info("Emotion gateway starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server error")
		}
	}()

	<-quit
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
		return
	}
	logger.Info("Server stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func newProvider(cfg *config.Config) provider.Provider {
	opts := []provider.Option{
		provider.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	}
	if cfg.ProviderBaseURL != "" {
		opts = append(opts, provider.WithBaseURL(cfg.ProviderBaseURL))
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(cfg.OpenAIAPIKey, opts...)
	case config.ProviderGemini:
		return gemini.New(cfg.GeminiAPIKey, opts...)
	default:
		return claude.New(cfg.AnthropicAPIKey, opts...)
	}
}
