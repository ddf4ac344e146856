package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/vnmchuo/emotion-gateway/internal/provider"
)

// Kind is the stable error category exposed to callers of the gateway.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindCircuitOpen   Kind = "circuit_open"
	KindUnavailable   Kind = "upstream_unavailable"
	KindUpstream      Kind = "upstream_error"
	KindConfiguration Kind = "configuration_error"
	KindInternal      Kind = "internal_error"
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// CircuitOpenError is returned without contacting the provider.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("language model service is temporarily unavailable (circuit open), retry in %s",
		e.RetryAfter.Round(time.Second))
}

// UpstreamError is a provider failure translated into a caller-safe message.
// Err keeps the underlying cause for logs and errors.Is; it is never rendered.
type UpstreamError struct {
	Transient  bool
	Attempts   int
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Message)
}

// KindOf maps any error returned by the gateway to its category.
func KindOf(err error) Kind {
	var (
		validationErr *ValidationError
		circuitErr    *CircuitOpenError
		upstreamErr   *UpstreamError
		configErr     *ConfigurationError
	)
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &circuitErr):
		return KindCircuitOpen
	case errors.As(err, &upstreamErr):
		if upstreamErr.Transient {
			return KindUnavailable
		}
		return KindUpstream
	case errors.As(err, &configErr):
		return KindConfiguration
	default:
		return KindInternal
	}
}

var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

// IsTransient reports whether a provider call failure is worth retrying.
// Caller cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *provider.Error
	if errors.As(err, &apiErr) {
		return retryableStatuses[apiErr.StatusCode]
	}

	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "socket hang up")
}

// upstreamMessage renders a non-transient provider failure without leaking
// the provider's own wording.
func upstreamMessage(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "the language model provider rejected the request"
	case http.StatusUnauthorized:
		return "authentication with the language model provider failed"
	case http.StatusForbidden:
		return "access to the requested model is not permitted"
	case http.StatusNotFound:
		return "the requested model is not available"
	case http.StatusRequestEntityTooLarge:
		return "the request is too large for the language model provider"
	default:
		return "the language model provider returned an unexpected error"
	}
}
