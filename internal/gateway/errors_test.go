package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/vnmchuo/emotion-gateway/internal/provider"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"408", &provider.Error{StatusCode: 408}, true},
		{"429", &provider.Error{StatusCode: 429}, true},
		{"500", &provider.Error{StatusCode: 500}, true},
		{"502", &provider.Error{StatusCode: 502}, true},
		{"503", &provider.Error{StatusCode: 503}, true},
		{"504", &provider.Error{StatusCode: 504}, true},
		{"400", &provider.Error{StatusCode: 400}, false},
		{"401", &provider.Error{StatusCode: 401}, false},
		{"403", &provider.Error{StatusCode: 403}, false},
		{"529 is not in the retry set", &provider.Error{StatusCode: 529}, false},
		{"wrapped 503", fmt.Errorf("claude: %w", &provider.Error{StatusCode: 503}), true},
		{"connection reset", &net.OpError{Op: "read", Err: &os.SyscallError{Syscall: "read", Err: syscall.ECONNRESET}}, true},
		{"connection refused", &net.OpError{Op: "dial", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}, true},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"host unreachable", fmt.Errorf("dial: %w", syscall.EHOSTUNREACH), true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, true},
		{"net timeout", timeoutErr{}, true},
		{"timeout text", errors.New("upstream Timeout while reading body"), true},
		{"socket hang up text", errors.New("socket hang up"), true},
		{"caller cancelled", context.Canceled, false},
		{"caller deadline", fmt.Errorf("claude: %w", context.DeadlineExceeded), false},
		{"decode error", errors.New("claude: decode response: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&ValidationError{Field: "prompt"}, KindValidation},
		{&CircuitOpenError{RetryAfter: time.Second}, KindCircuitOpen},
		{&UpstreamError{Transient: true}, KindUnavailable},
		{&UpstreamError{Transient: false}, KindUpstream},
		{&ConfigurationError{Setting: "x"}, KindConfiguration},
		{fmt.Errorf("wrapped: %w", &ValidationError{Field: "model"}), KindValidation},
		{errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestUpstreamError_UnwrapKeepsCause(t *testing.T) {
	cause := &provider.Error{StatusCode: 400, Message: "secret provider detail"}
	err := &UpstreamError{Message: upstreamMessage(400), Err: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected cause reachable via errors.Is")
	}
	if err.Error() == cause.Error() {
		t.Error("Expected caller-safe message, not the provider's")
	}
}
