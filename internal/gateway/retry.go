package gateway

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type RetryPolicy struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		BaseDelay:    1000 * time.Millisecond,
		MaxDelay:     10000 * time.Millisecond,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// MaxAttempts is the total number of upstream calls one request may make.
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// BaseBackoff is the delay before retry i (0-based) without jitter:
// min(BaseDelay * Multiplier^i, MaxDelay).
func (p RetryPolicy) BaseBackoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Delay adds jitter in [0, JitterFactor*base] to BaseBackoff. r must be in [0, 1).
func (p RetryPolicy) Delay(attempt int, r float64) time.Duration {
	base := p.BaseBackoff(attempt)
	return base + time.Duration(float64(base)*p.JitterFactor*r)
}

// backOff adapts RetryPolicy to backoff.BackOff; one instance per request.
type backOff struct {
	policy  RetryPolicy
	attempt int
	rand    func() float64
}

var _ backoff.BackOff = (*backOff)(nil)

func (p RetryPolicy) newBackOff() *backOff {
	return &backOff{policy: p, rand: rand.Float64}
}

func (b *backOff) NextBackOff() time.Duration {
	d := b.policy.Delay(b.attempt, b.rand())
	b.attempt++
	return d
}

func (b *backOff) Reset() {
	b.attempt = 0
}
