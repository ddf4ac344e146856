package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vnmchuo/emotion-gateway/internal/provider"
)

type StopReason string

const (
	StopNormal    StopReason = "normal-stop"
	StopMaxTokens StopReason = "max-tokens-truncated"
	StopOther     StopReason = "other"
)

// NormalizeStopReason folds the providers' finish reasons into StopReason.
func NormalizeStopReason(raw string) StopReason {
	switch raw {
	case "end_turn", "stop_sequence", "stop", "STOP":
		return StopNormal
	case "max_tokens", "length", "MAX_TOKENS":
		return StopMaxTokens
	default:
		return StopOther
	}
}

// Result is one successful completion. It is never mutated after Complete returns.
type Result struct {
	Text         string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	StopReason   StopReason
	RequestID    string
	Attempts     int
	CostUSD      float64
}

type Options struct {
	Limits      Limits
	Retry       RetryPolicy
	Breaker     BreakerSettings
	UsageWindow time.Duration
	Pricing     map[string]Pricing
	Logger      logrus.FieldLogger
	Tracer      trace.Tracer

	// AttemptTimeout bounds a single upstream call, which outlives a caller
	// that gives up on it. Zero leaves it to the provider's HTTP client.
	AttemptTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Limits:      DefaultLimits(),
		Retry:       DefaultRetryPolicy(),
		Breaker:     DefaultBreakerSettings(),
		UsageWindow: time.Hour,
	}
}

// Gateway performs validated, breaker-guarded, retried completions against
// one provider. All methods are safe for concurrent use.
type Gateway struct {
	provider  provider.Provider
	validator *Validator
	breaker   *Breaker
	usage     *UsageTracker
	retry     RetryPolicy
	logger    logrus.FieldLogger
	tracer    trace.Tracer

	attemptTimeout time.Duration
}

func New(p provider.Provider, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("gateway")
	}
	return &Gateway{
		provider:  p,
		validator: NewValidator(opts.Limits),
		breaker:   NewBreaker(opts.Breaker, logger),
		usage:     NewUsageTracker(opts.UsageWindow, opts.Pricing),
		retry:     opts.Retry,
		logger:    logger,
		tracer:    tracer,

		attemptTimeout: opts.AttemptTimeout,
	}
}

type outcome struct {
	result *Result
	err    error
}

// Complete validates in, then calls the provider through the breaker and the
// retry policy. Every error it returns is one of ValidationError,
// CircuitOpenError, UpstreamError or ConfigurationError.
func (g *Gateway) Complete(ctx context.Context, in Input) (*Result, error) {
	if g.provider == nil {
		return nil, &ConfigurationError{Setting: "provider", Message: "no language model provider configured"}
	}

	req, err := g.validator.Validate(in)
	if err != nil {
		return nil, err
	}

	ctx, span := g.tracer.Start(ctx, "gateway.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", req.RequestID),
		attribute.String("model", req.Model),
		attribute.Int("max_tokens", req.MaxTokens),
	)

	log := g.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"model":      req.Model,
		"provider":   g.provider.Name(),
	})

	calls := 0
	operation := func() (*Result, error) {
		done, err := g.breaker.Allow()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		calls++

		res, err := g.attempt(ctx, req, done)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, delay time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt":  calls,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
			"event":    "retry_scheduled",
		}).Warn("Transient upstream failure, retrying")
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", calls),
			attribute.Int64("delay_ms", delay.Milliseconds()),
		))
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(g.retry.newBackOff()),
		backoff.WithMaxTries(uint(g.retry.MaxAttempts())),
		backoff.WithNotify(notify),
	)
	span.SetAttributes(attribute.Int("attempts", calls))

	if err == nil {
		res.Attempts = calls
		log.WithFields(logrus.Fields{
			"attempts":      calls,
			"input_tokens":  res.InputTokens,
			"output_tokens": res.OutputTokens,
			"stop_reason":   string(res.StopReason),
			"event":         "completion_success",
		}).Info("Completion succeeded")
		return res, nil
	}

	gwErr := g.translate(ctx, err, calls)
	log.WithFields(logrus.Fields{
		"attempts": calls,
		"kind":     string(KindOf(gwErr)),
		"cause":    err.Error(),
		"event":    "completion_failed",
	}).Error("Completion failed")
	span.RecordError(gwErr)
	span.SetStatus(codes.Error, string(KindOf(gwErr)))
	return nil, gwErr
}

// attempt makes one upstream call. The call runs in its own goroutine so an
// expired ctx returns immediately. The call itself is detached from ctx: a
// caller hanging up is not an upstream failure, so the goroutine runs to the
// provider's real outcome, reports it to the breaker and the tracker, and its
// result is dropped.
func (g *Gateway) attempt(ctx context.Context, req CompletionRequest, done func(success bool)) (*Result, error) {
	ch := make(chan outcome, 1)

	go func() {
		callCtx := context.WithoutCancel(ctx)
		if g.attemptTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, g.attemptTimeout)
			defer cancel()
		}

		resp, err := g.provider.Complete(callCtx, &provider.Request{
			Model:        req.Model,
			SystemPrompt: req.SystemPrompt,
			Prompt:       req.Prompt,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
			RequestID:    req.RequestID,
		})
		if err != nil {
			// missing credentials says nothing about upstream health
			done(errors.Is(err, provider.ErrMissingCredentials))
			ch <- outcome{err: err}
			return
		}
		done(true)

		model := resp.Model
		if model == "" {
			model = req.Model
		}
		cost := g.usage.Record(model, resp.InputTokens, resp.OutputTokens)

		ch <- outcome{result: &Result{
			Text:         resp.Text,
			Model:        model,
			Provider:     resp.Provider,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			StopReason:   NormalizeStopReason(resp.StopReason),
			RequestID:    req.RequestID,
			CostUSD:      cost,
		}}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) translate(ctx context.Context, err error, calls int) error {
	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return circuitErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &UpstreamError{
			Transient: true,
			Attempts:  calls,
			Message:   "the request timed out before the language model responded",
			Err:       ctxErr,
		}
	}

	if errors.Is(err, provider.ErrMissingCredentials) {
		return &ConfigurationError{Setting: g.provider.Name() + " api key", Message: "provider credentials are not configured"}
	}

	if IsTransient(err) {
		return &UpstreamError{
			Transient: true,
			Attempts:  calls,
			Message:   fmt.Sprintf("service temporarily unavailable, retried %d times", max(calls-1, 0)),
			Err:       err,
		}
	}

	upstream := &UpstreamError{Attempts: calls, Err: err}
	var apiErr *provider.Error
	if errors.As(err, &apiErr) {
		upstream.StatusCode = apiErr.StatusCode
	}
	upstream.Message = upstreamMessage(upstream.StatusCode)
	return upstream
}

func (g *Gateway) Limits() Limits {
	return g.validator.Limits()
}

func (g *Gateway) ProviderName() string {
	if g.provider == nil {
		return ""
	}
	return g.provider.Name()
}

func (g *Gateway) UsageStats() UsageStats {
	return g.usage.Stats()
}

func (g *Gateway) BreakerState() BreakerSnapshot {
	return g.breaker.Snapshot()
}

func (g *Gateway) ResetUsageStats() {
	g.usage.Reset()
	g.logger.WithField("event", "usage_reset").Info("Usage statistics reset")
}

func (g *Gateway) ResetBreaker() {
	g.breaker.Reset()
}
