package claude

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vnmchuo/emotion-gateway/internal/provider"
)

func TestComplete_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		if r.URL.Path != "/messages" {
			t.Errorf("Expected /messages, got %s", r.URL.Path)
		}
		resp := claudeResponse{
			ID: "msg_123",
			Content: []claudeContent{
				{Type: "text", Text: "Hello from "},
				{Type: "tool_use"},
				{Type: "text", Text: "Claude mock!"},
			},
			Usage: claudeUsage{
				InputTokens:  10,
				OutputTokens: 20,
			},
			StopReason: "end_turn",
			Model:      "claude-3-5-sonnet-20241022",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := New("test-key", provider.WithBaseURL(server.URL))

	resp, err := p.Complete(context.Background(), &provider.Request{
		Model:     "claude-3-5-sonnet-20241022",
		Prompt:    "hi",
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "Hello from Claude mock!" {
		t.Errorf("Expected concatenated text blocks, got %q", resp.Text)
	}
	if resp.InputTokens != 10 {
		t.Errorf("Expected 10 input tokens, got %d", resp.InputTokens)
	}
	if resp.OutputTokens != 20 {
		t.Errorf("Expected 20 output tokens, got %d", resp.OutputTokens)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("Expected stop reason end_turn, got %s", resp.StopReason)
	}
}

func TestComplete_RequestShape(t *testing.T) {
	var capturedReq map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &capturedReq)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(claudeResponse{
			Content: []claudeContent{{Type: "text", Text: "ok"}},
		})
	}))
	defer server.Close()

	p := New("test-key", provider.WithBaseURL(server.URL))

	_, err := p.Complete(context.Background(), &provider.Request{
		Model:        "claude-3-5-haiku-20241022",
		SystemPrompt: "You are a kind companion.",
		Prompt:       "hi",
		MaxTokens:    4096,
		Temperature:  0,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if capturedReq["system"] != "You are a kind companion." {
		t.Errorf("Expected system prompt to be sent, got %v", capturedReq["system"])
	}
	if capturedReq["max_tokens"].(float64) != 4096 {
		t.Errorf("Expected max_tokens 4096, got %v", capturedReq["max_tokens"])
	}
	temp, ok := capturedReq["temperature"]
	if !ok || temp.(float64) != 0 {
		t.Errorf("Expected explicit temperature 0, got %v (present=%v)", temp, ok)
	}
	messages := capturedReq["messages"].([]interface{})
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].(map[string]interface{})["role"] != "user" {
		t.Errorf("Expected user role, got %v", messages[0])
	}
}

func TestComplete_ModelFallsBackToRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(claudeResponse{Content: []claudeContent{{Type: "text", Text: "ok"}}})
	}))
	defer server.Close()

	p := New("test-key", provider.WithBaseURL(server.URL))
	resp, err := p.Complete(context.Background(), &provider.Request{Model: "claude-3-haiku-20240307", Prompt: "hi", MaxTokens: 1})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Model != "claude-3-haiku-20240307" {
		t.Errorf("Expected request model echoed, got %s", resp.Model)
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	p := New("test-key", provider.WithBaseURL(server.URL))
	_, err := p.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "hi", MaxTokens: 1})

	var apiErr *provider.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *provider.Error, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", apiErr.StatusCode)
	}
	if apiErr.Type != "rate_limit_error" || apiErr.Message != "slow down" {
		t.Errorf("Expected parsed error body, got %+v", apiErr)
	}
}

func TestComplete_UnparseableErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := New("test-key", provider.WithBaseURL(server.URL))
	_, err := p.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "hi", MaxTokens: 1})

	var apiErr *provider.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *provider.Error, got %T", err)
	}
	if apiErr.Message != "Bad Gateway" {
		t.Errorf("Expected status text fallback, got %q", apiErr.Message)
	}
}

func TestComplete_MissingKey(t *testing.T) {
	p := New("")
	_, err := p.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "hi", MaxTokens: 1})
	if !errors.Is(err, provider.ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}
}

func TestName(t *testing.T) {
	p := New("key")
	if p.Name() != "claude" {
		t.Errorf("Expected 'claude', got %s", p.Name())
	}
}

func TestSupportedModels(t *testing.T) {
	p := New("key")
	models := p.SupportedModels()
	found := false
	for _, m := range models {
		if m == "claude-3-5-haiku-20241022" {
			found = true
			break
		}
	}
	if !found {
		t.Error("claude-3-5-haiku-20241022 should be in supported models")
	}
}
