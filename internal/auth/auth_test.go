package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Key-ID", GetAPIKeyID(r.Context()))
		w.Header().Set("X-Seen-Request-ID", GetRequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	h := RequestID(echoIdentity())

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	generated := w.Header().Get(HeaderRequestID)
	if generated == "" {
		t.Fatal("Expected generated request id")
	}
	if w.Header().Get("X-Seen-Request-ID") != generated {
		t.Error("Expected request id in context to match response header")
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "caller-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "caller-123" {
		t.Errorf("Expected caller id to be honoured, got %s", got)
	}
}

func TestMiddleware_DisabledWithoutKeys(t *testing.T) {
	h := NewMiddleware(nil)(echoIdentity())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/quotes", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with auth disabled, got %d", w.Code)
	}
}

func TestMiddleware(t *testing.T) {
	h := RequestID(NewMiddleware([]string{"key-one", "key-two"})(echoIdentity()))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", HeaderAPIKey, "nope", http.StatusUnauthorized},
		{"api key header", HeaderAPIKey, "key-two", http.StatusOK},
		{"bearer token", "Authorization", "Bearer key-one", http.StatusOK},
		{"basic scheme", "Authorization", "Basic key-one", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/quotes", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("Expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusOK && w.Header().Get("X-Key-ID") == "" {
				t.Error("Expected key id in context")
			}
			if tt.want == http.StatusUnauthorized {
				var resp struct {
					Success bool `json:"success"`
					Error   struct {
						Type string `json:"type"`
					} `json:"error"`
					RequestID string `json:"requestId"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("Invalid JSON body: %v", err)
				}
				if resp.Success || resp.Error.Type != "unauthorized" || resp.RequestID == "" {
					t.Errorf("Unexpected error envelope %+v", resp)
				}
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		adminKey   string
		presented  string
		want       int
	}{
		{"development is open", false, "", "", http.StatusOK},
		{"production without key configured", true, "", "", http.StatusForbidden},
		{"production wrong key", true, "secret", "guess", http.StatusForbidden},
		{"production right key", true, "secret", "secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AdminOnly(tt.production, tt.adminKey)(echoIdentity())
			req := httptest.NewRequest("GET", "/api/admin/usage", nil)
			if tt.presented != "" {
				req.Header.Set(HeaderAdminKey, tt.presented)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}
