package gateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type BreakerSettings struct {
	Threshold    int
	ResetTimeout time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Threshold:    5,
		ResetTimeout: 30 * time.Second,
	}
}

// BreakerSnapshot is a read-only view of the breaker.
type BreakerSnapshot struct {
	State           string
	Failures        int
	LastFailureTime *time.Time
	Threshold       int
	ResetTimeout    time.Duration
	RetryAfter      time.Duration
}

// Breaker guards the upstream provider. gobreaker owns the state machine
// (MaxRequests=1 admits a single half-open trial); Breaker adds the failure
// count and last-failure time that gobreaker clears on every transition.
// Outcomes are only recorded when gobreaker counts them too, that is when no
// transition happened between admission and completion.
type Breaker struct {
	settings BreakerSettings
	logger   logrus.FieldLogger
	now      func() time.Time

	mu          sync.Mutex
	cb          *gobreaker.TwoStepCircuitBreaker
	generation  *atomic.Uint64 // bumped on every state change of cb
	failures    int
	lastFailure time.Time
}

func NewBreaker(settings BreakerSettings, logger logrus.FieldLogger) *Breaker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b := &Breaker{
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
	b.cb, b.generation = b.newCircuit()
	return b
}

func (b *Breaker) newCircuit() (*gobreaker.TwoStepCircuitBreaker, *atomic.Uint64) {
	threshold := uint32(b.settings.Threshold)
	generation := new(atomic.Uint64)
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     b.settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			generation.Add(1)
			b.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
				"event":   "breaker_state_change",
			}).Warn("Circuit breaker state changed")
		},
	})
	return cb, generation
}

// Allow admits one upstream call. The returned done func must be called
// exactly once with the call's outcome.
func (b *Breaker) Allow() (func(success bool), error) {
	b.mu.Lock()
	cb, gen := b.cb, b.generation
	done, err := cb.Allow()
	admitted := gen.Load()
	b.mu.Unlock()

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &CircuitOpenError{RetryAfter: b.retryAfter()}
		}
		return nil, err
	}

	return func(success bool) {
		b.record(cb, gen, admitted, done, success)
	}, nil
}

func (b *Breaker) record(cb *gobreaker.TwoStepCircuitBreaker, gen *atomic.Uint64, admitted uint64, done func(bool), success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// admitted before the last Reset
	if cb != b.cb {
		done(success)
		return
	}
	// State applies a pending open to half-open move before the comparison;
	// gobreaker drops outcomes from an earlier generation and so does record.
	cb.State()
	stale := gen.Load() != admitted
	done(success)
	if stale {
		return
	}
	if success {
		b.failures = 0
		return
	}
	b.failures++
	b.lastFailure = b.now()
}

func (b *Breaker) retryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retryAfterLocked()
}

func (b *Breaker) retryAfterLocked() time.Duration {
	if b.lastFailure.IsZero() {
		return 0
	}
	remaining := b.settings.ResetTimeout - b.now().Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{
		State:        b.cb.State().String(),
		Failures:     b.failures,
		Threshold:    b.settings.Threshold,
		ResetTimeout: b.settings.ResetTimeout,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		snap.LastFailureTime = &t
	}
	if snap.State == gobreaker.StateOpen.String() {
		snap.RetryAfter = b.retryAfterLocked()
	}
	return snap
}

// Reset forces the breaker closed regardless of its current state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cb, b.generation = b.newCircuit()
	b.failures = 0
	b.lastFailure = time.Time{}
	b.logger.WithField("event", "breaker_reset").Info("Circuit breaker reset")
}
