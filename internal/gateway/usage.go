package gateway

import (
	"sync"
	"time"
)

// Pricing is USD per million tokens.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultPricing is used for models missing from the price table.
var DefaultPricing = Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0}

// ModelPricing is the static price table.
var ModelPricing = map[string]Pricing{
	"claude-opus-4-1-20250805":   {InputPerMTok: 15.0, OutputPerMTok: 75.0},
	"claude-sonnet-4-5-20250929": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
	"claude-haiku-4-5-20251001":  {InputPerMTok: 1.0, OutputPerMTok: 5.0},
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
	"claude-3-5-haiku-20241022":  {InputPerMTok: 0.80, OutputPerMTok: 4.0},
	"claude-3-haiku-20240307":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	"gpt-4o":                     {InputPerMTok: 2.50, OutputPerMTok: 10.0},
	"gpt-4o-mini":                {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4":                      {InputPerMTok: 30.0, OutputPerMTok: 60.0},
	"gpt-3.5-turbo":              {InputPerMTok: 0.50, OutputPerMTok: 1.50},
	"gemini-1.5-pro":             {InputPerMTok: 1.25, OutputPerMTok: 5.0},
	"gemini-1.5-flash":           {InputPerMTok: 0.075, OutputPerMTok: 0.30},
	"gemini-2.0-flash":           {InputPerMTok: 0.10, OutputPerMTok: 0.40},
}

// Cost returns the estimated USD cost of one call.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputPerMTok/1_000_000 + float64(outputTokens)*p.OutputPerMTok/1_000_000
}

type ModelUsage struct {
	InputTokens  int
	OutputTokens int
	RequestCount int
	CostUSD      float64
}

type UsageStats struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	RequestCount     int
	WindowStart      time.Time
	WindowDuration   time.Duration
	WindowEnd        time.Time
	EstimatedCostUSD float64
	Models           map[string]ModelUsage
}

// UsageTracker accumulates token usage over a fixed window. The window rolls
// over lazily on the first Record after it elapses.
type UsageTracker struct {
	window  time.Duration
	pricing map[string]Pricing
	now     func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	input       int
	output      int
	requests    int
	cost        float64
	models      map[string]*ModelUsage
}

func NewUsageTracker(window time.Duration, pricing map[string]Pricing) *UsageTracker {
	if pricing == nil {
		pricing = ModelPricing
	}
	t := &UsageTracker{
		window:  window,
		pricing: pricing,
		now:     time.Now,
	}
	t.resetLocked()
	return t
}

func (t *UsageTracker) resetLocked() {
	t.windowStart = t.now()
	t.input = 0
	t.output = 0
	t.requests = 0
	t.cost = 0
	t.models = make(map[string]*ModelUsage)
}

// PricingFor returns the model's price or the default tier.
func (t *UsageTracker) PricingFor(model string) Pricing {
	if p, ok := t.pricing[model]; ok {
		return p
	}
	return DefaultPricing
}

// Record adds one successful call and returns its estimated cost.
func (t *UsageTracker) Record(model string, inputTokens, outputTokens int) float64 {
	cost := t.PricingFor(model).Cost(inputTokens, outputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.now().After(t.windowStart.Add(t.window)) {
		t.resetLocked()
	}

	t.input += inputTokens
	t.output += outputTokens
	t.requests++
	t.cost += cost

	m, ok := t.models[model]
	if !ok {
		m = &ModelUsage{}
		t.models[model] = m
	}
	m.InputTokens += inputTokens
	m.OutputTokens += outputTokens
	m.RequestCount++
	m.CostUSD += cost

	return cost
}

func (t *UsageTracker) Stats() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	models := make(map[string]ModelUsage, len(t.models))
	for name, m := range t.models {
		models[name] = *m
	}
	return UsageStats{
		InputTokens:      t.input,
		OutputTokens:     t.output,
		TotalTokens:      t.input + t.output,
		RequestCount:     t.requests,
		WindowStart:      t.windowStart,
		WindowDuration:   t.window,
		WindowEnd:        t.windowStart.Add(t.window),
		EstimatedCostUSD: t.cost,
		Models:           models,
	}
}

func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}
