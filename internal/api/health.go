package api

import (
	"net/http"
	"time"
)

const (
	serviceName    = "emotion-gateway"
	serviceVersion = "1.0.0"
)

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	breaker := h.gateway.BreakerState()
	status := "healthy"
	if breaker.State != "closed" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"service":        serviceName,
		"version":        serviceVersion,
		"provider":       h.gateway.ProviderName(),
		"circuitBreaker": breaker.State,
		"uptimeSeconds":  int(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReady reports not ready while the breaker rejects calls so load
// balancers can drain traffic.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	breaker := h.gateway.BreakerState()
	if breaker.State == "open" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "not_ready",
			"reason":            "circuit breaker open",
			"retryAfterSeconds": int(breaker.RetryAfter.Seconds()),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "circuitBreaker": breaker.State})
}
