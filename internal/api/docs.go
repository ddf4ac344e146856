package api

import "net/http"

type endpointDoc struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Description string            `json:"description"`
	Body        map[string]string `json:"body,omitempty"`
}

var endpointDocs = []endpointDoc{
	{"POST", "/api/v1/affirmations", "Generate personal affirmations", map[string]string{
		"mood": "optional, current mood", "focus": "optional, area to focus on", "count": "optional, 1-5 (default 3)",
	}},
	{"POST", "/api/v1/mood-support", "Supportive response for a mood", map[string]string{
		"mood": "required", "situation": "optional, what is going on",
	}},
	{"POST", "/api/v1/quotes", "An uplifting quote", map[string]string{
		"theme": "optional", "mood": "optional",
	}},
	{"POST", "/api/v1/wellness-tips", "Actionable wellness tips", map[string]string{
		"category": "optional (default general wellbeing)", "mood": "optional",
	}},
	{"POST", "/api/v1/analyze", "Emotional tone analysis of a text", map[string]string{
		"text": "required",
	}},
	{"POST", "/api/v1/custom", "Free-form completion", map[string]string{
		"prompt":       "required",
		"systemPrompt": "optional",
		"model":        "optional, one of models",
		"maxTokens":    "optional, positive integer (integral floats such as 1e3 accepted), clamped to limits.maxTokensCeiling",
		"temperature":  "optional, 0-1",
	}},
	{"GET", "/health", "Service health and circuit breaker state", nil},
	{"GET", "/health/live", "Liveness check", nil},
	{"GET", "/health/ready", "Readiness check, 503 while the circuit breaker is open", nil},
	{"GET", "/api/admin/usage", "Token usage for the current window", nil},
	{"POST", "/api/admin/usage/reset", "Reset usage statistics", nil},
	{"GET", "/api/admin/circuit-breaker", "Circuit breaker state", nil},
	{"POST", "/api/admin/circuit-breaker/reset", "Force the circuit breaker closed", nil},
}

func (h *Handler) HandleDocs(w http.ResponseWriter, r *http.Request) {
	limits := h.gateway.Limits()
	writeData(w, http.StatusOK, map[string]any{
		"name":      serviceName,
		"version":   serviceVersion,
		"provider":  h.gateway.ProviderName(),
		"endpoints": endpointDocs,
		"models":    limits.AllowedModels,
		"limits": map[string]any{
			"defaultModel":          limits.DefaultModel,
			"maxPromptLength":       limits.MaxPromptLength,
			"maxSystemPromptLength": limits.MaxSystemPromptLength,
			"maxTokensCeiling":      limits.MaxTokensCeiling,
			"defaultMaxTokens":      limits.DefaultMaxTokens,
			"defaultTemperature":    limits.DefaultTemperature,
		},
		"authentication": "X-API-Key header or Authorization: Bearer <key>",
	})
}
