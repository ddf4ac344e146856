package api

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vnmchuo/emotion-gateway/internal/auth"
	"github.com/vnmchuo/emotion-gateway/internal/gateway"
)

type modelUsageJSON struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	RequestCount int     `json:"requestCount"`
	CostUSD      float64 `json:"costUsd"`
}

type usageJSON struct {
	InputTokens      int                       `json:"inputTokens"`
	OutputTokens     int                       `json:"outputTokens"`
	TotalTokens      int                       `json:"totalTokens"`
	RequestCount     int                       `json:"requestCount"`
	WindowStart      time.Time                 `json:"windowStart"`
	WindowEnd        time.Time                 `json:"windowEnd"`
	WindowSeconds    int64                     `json:"windowSeconds"`
	EstimatedCostUSD float64                   `json:"estimatedCostUsd"`
	Models           map[string]modelUsageJSON `json:"models"`
}

type breakerJSON struct {
	State             string     `json:"state"`
	Failures          int        `json:"failures"`
	Threshold         int        `json:"threshold"`
	LastFailureTime   *time.Time `json:"lastFailureTime"`
	ResetTimeoutMs    int64      `json:"resetTimeoutMs"`
	RetryAfterSeconds int        `json:"retryAfterSeconds"`
}

func toUsageJSON(s gateway.UsageStats) usageJSON {
	models := make(map[string]modelUsageJSON, len(s.Models))
	for name, m := range s.Models {
		models[name] = modelUsageJSON(m)
	}
	return usageJSON{
		InputTokens:      s.InputTokens,
		OutputTokens:     s.OutputTokens,
		TotalTokens:      s.TotalTokens,
		RequestCount:     s.RequestCount,
		WindowStart:      s.WindowStart,
		WindowEnd:        s.WindowEnd,
		WindowSeconds:    int64(s.WindowDuration.Seconds()),
		EstimatedCostUSD: s.EstimatedCostUSD,
		Models:           models,
	}
}

func toBreakerJSON(s gateway.BreakerSnapshot) breakerJSON {
	return breakerJSON{
		State:             s.State,
		Failures:          s.Failures,
		Threshold:         s.Threshold,
		LastFailureTime:   s.LastFailureTime,
		ResetTimeoutMs:    s.ResetTimeout.Milliseconds(),
		RetryAfterSeconds: int(s.RetryAfter.Seconds()),
	}
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, toUsageJSON(h.gateway.UsageStats()))
}

func (h *Handler) HandleUsageReset(w http.ResponseWriter, r *http.Request) {
	h.gateway.ResetUsageStats()
	writeData(w, http.StatusOK, map[string]any{
		"message": "usage statistics reset",
		"usage":   toUsageJSON(h.gateway.UsageStats()),
	})
}

func (h *Handler) HandleBreaker(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, toBreakerJSON(h.gateway.BreakerState()))
}

func (h *Handler) HandleBreakerReset(w http.ResponseWriter, r *http.Request) {
	h.gateway.ResetBreaker()
	h.logger.WithFields(logrus.Fields{
		"request_id": auth.GetRequestID(r.Context()),
		"event":      "breaker_reset",
	}).Warn("Circuit breaker reset by administrator")

	writeData(w, http.StatusOK, map[string]any{
		"message":        "circuit breaker reset",
		"circuitBreaker": toBreakerJSON(h.gateway.BreakerState()),
	})
}
