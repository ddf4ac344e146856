package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingCredentials is returned by a transport constructed without an API key.
var ErrMissingCredentials = errors.New("provider credentials not configured")

type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
	// Correlation only, never sent upstream
	RequestID string
}

type Response struct {
	ID           string
	Text         string // all text blocks, concatenated
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string // provider's raw value, e.g. "end_turn", "length"
	Provider     string
}

// Error is a non-2xx answer from an upstream API.
type Error struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s api error (status %d, %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() string
	SupportedModels() []string
}

// Options are shared by all transports.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Option func(*Options)

func WithBaseURL(url string) Option {
	return func(o *Options) {
		if url != "" {
			o.BaseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) {
		if c != nil {
			o.HTTPClient = c
		}
	}
}

// BuildOptions applies opts over the transport's defaults.
func BuildOptions(defaultBaseURL string, opts ...Option) Options {
	o := Options{
		BaseURL:    defaultBaseURL,
		HTTPClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
