package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/vnmchuo/emotion-gateway/internal/auth"
	"github.com/vnmchuo/emotion-gateway/internal/gateway"
	"github.com/vnmchuo/emotion-gateway/internal/provider"
)

func decodeData(t *testing.T, env testEnvelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("Failed to decode data %s: %v", env.Data, err)
	}
}

func TestAdminUsage(t *testing.T) {
	h, _ := setupTest(&mockProvider{text: "hello"}, nil, RouterOptions{})

	if w, _ := do(t, h, "POST", "/api/v1/custom", `{"prompt":"hi"}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from custom, got %d", w.Code)
	}

	w, env := do(t, h, "GET", "/api/admin/usage", "")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("Expected 200 usage, got %d", w.Code)
	}
	var usage usageJSON
	decodeData(t, env, &usage)
	if usage.InputTokens != 12 || usage.OutputTokens != 8 || usage.TotalTokens != 20 || usage.RequestCount != 1 {
		t.Errorf("Unexpected usage %+v", usage)
	}
	if m, ok := usage.Models["claude-3-5-haiku-20241022"]; !ok || m.RequestCount != 1 {
		t.Errorf("Expected per-model usage, got %+v", usage.Models)
	}
	if usage.WindowSeconds != 3600 {
		t.Errorf("Expected a one hour window, got %d", usage.WindowSeconds)
	}

	w, env = do(t, h, "POST", "/api/admin/usage/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 reset, got %d", w.Code)
	}
	var reset struct {
		Message string    `json:"message"`
		Usage   usageJSON `json:"usage"`
	}
	decodeData(t, env, &reset)
	if reset.Message == "" {
		t.Error("Expected a reset message")
	}
	if reset.Usage.InputTokens != 0 || reset.Usage.OutputTokens != 0 || reset.Usage.RequestCount != 0 || len(reset.Usage.Models) != 0 {
		t.Errorf("Expected zeroed usage after reset, got %+v", reset.Usage)
	}

	_, env = do(t, h, "GET", "/api/admin/usage", "")
	decodeData(t, env, &usage)
	if usage.RequestCount != 0 {
		t.Errorf("Expected reset to persist, got %+v", usage)
	}
}

func TestAdminCircuitBreaker(t *testing.T) {
	p := &mockProvider{err: &provider.Error{Provider: "mock", StatusCode: 400, Message: "bad request"}}
	h, _ := setupTest(p, func(o *gateway.Options) { o.Breaker.Threshold = 1 }, RouterOptions{})

	do(t, h, "POST", "/api/v1/custom", `{"prompt":"hi"}`)

	w, env := do(t, h, "GET", "/api/admin/circuit-breaker", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var open breakerJSON
	decodeData(t, env, &open)
	if open.State != "open" || open.Failures != 1 || open.LastFailureTime == nil || open.Threshold != 1 {
		t.Fatalf("Expected tripped breaker, got %+v", open)
	}

	w, env = do(t, h, "POST", "/api/admin/circuit-breaker/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 reset, got %d", w.Code)
	}
	var reset struct {
		Message        string                     `json:"message"`
		CircuitBreaker map[string]json.RawMessage `json:"circuitBreaker"`
	}
	decodeData(t, env, &reset)
	cb := reset.CircuitBreaker
	if string(cb["state"]) != `"closed"` || string(cb["failures"]) != "0" || string(cb["lastFailureTime"]) != "null" {
		t.Errorf("Expected {closed 0 null}, got state=%s failures=%s lastFailureTime=%s",
			cb["state"], cb["failures"], cb["lastFailureTime"])
	}

	// traffic flows again
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
	if w, _ := do(t, h, "POST", "/api/v1/custom", `{"prompt":"hi"}`); w.Code != http.StatusOK {
		t.Errorf("Expected 200 after reset, got %d", w.Code)
	}
}

func TestAdminProductionGate(t *testing.T) {
	h, _ := setupTest(&mockProvider{}, nil, RouterOptions{Production: true, AdminAPIKey: "admin-secret"})

	paths := []struct{ method, path string }{
		{"GET", "/api/admin/usage"},
		{"POST", "/api/admin/usage/reset"},
		{"GET", "/api/admin/circuit-breaker"},
		{"POST", "/api/admin/circuit-breaker/reset"},
	}
	for _, p := range paths {
		w, env := do(t, h, p.method, p.path, "")
		if w.Code != http.StatusForbidden || env.Error.Type != "forbidden" {
			t.Errorf("%s %s without key: expected 403 forbidden, got %d %q", p.method, p.path, w.Code, env.Error.Type)
		}

		w, _ = do(t, h, p.method, p.path, "", auth.HeaderAdminKey, "wrong")
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s with wrong key: expected 403, got %d", p.method, p.path, w.Code)
		}

		w, _ = do(t, h, p.method, p.path, "", auth.HeaderAdminKey, "admin-secret")
		if w.Code != http.StatusOK {
			t.Errorf("%s %s with key: expected 200, got %d", p.method, p.path, w.Code)
		}
	}
}

func TestAdminOpenOutsideProduction(t *testing.T) {
	h, _ := setupTest(&mockProvider{}, nil, RouterOptions{AdminAPIKey: "admin-secret"})

	if w, _ := do(t, h, "GET", "/api/admin/usage", ""); w.Code != http.StatusOK {
		t.Errorf("Expected admin routes open in development, got %d", w.Code)
	}
}
