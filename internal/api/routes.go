package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vnmchuo/emotion-gateway/internal/auth"
	"github.com/vnmchuo/emotion-gateway/pkg/ratelimit"
)

const maxBodyBytes = 1 << 20

type RouterOptions struct {
	Production  bool
	APIKeys     []string
	AdminAPIKey string
	CORSOrigins []string
	Limiter     *ratelimit.Limiter // nil disables rate limiting
}

func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders(opts.Production))
	r.Use(corsPolicy(opts.CORSOrigins))
	r.Use(chimiddleware.RequestSize(maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusNotFound, errorBody{Type: "not_found", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusMethodNotAllowed, errorBody{Type: "method_not_allowed", Message: "method not allowed"})
	})

	// Public routes
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLive)
	r.Get("/health/ready", h.HandleReady)
	r.Get("/api/docs", h.HandleDocs)

	protected := func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware(h.logger))
		}
		r.Use(auth.NewMiddleware(opts.APIKeys))
	}

	r.Route("/api/v1", func(r chi.Router) {
		protected(r)
		r.Post("/affirmations", h.HandleAffirmations)
		r.Post("/mood-support", h.HandleMoodSupport)
		r.Post("/quotes", h.HandleQuotes)
		r.Post("/wellness-tips", h.HandleWellnessTips)
		r.Post("/analyze", h.HandleAnalyze)
		r.Post("/custom", h.HandleCustom)
	})

	r.Route("/api/admin", func(r chi.Router) {
		protected(r)
		r.Use(auth.AdminOnly(opts.Production, opts.AdminAPIKey))
		r.Get("/usage", h.HandleUsage)
		r.Post("/usage/reset", h.HandleUsageReset)
		r.Get("/circuit-breaker", h.HandleBreaker)
		r.Post("/circuit-breaker/reset", h.HandleBreakerReset)
	})

	return r
}
