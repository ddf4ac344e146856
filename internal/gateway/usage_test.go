package gateway

import (
	"math"
	"testing"
	"time"
)

func TestUsageTracker_Accumulates(t *testing.T) {
	tr := NewUsageTracker(time.Hour, nil)

	tr.Record("claude-3-5-haiku-20241022", 10, 5)
	tr.Record("claude-3-5-haiku-20241022", 20, 15)

	s := tr.Stats()
	if s.InputTokens != 30 || s.OutputTokens != 20 || s.RequestCount != 2 {
		t.Errorf("Expected 30/20/2, got %d/%d/%d", s.InputTokens, s.OutputTokens, s.RequestCount)
	}
	if s.TotalTokens != 50 {
		t.Errorf("Expected total 50, got %d", s.TotalTokens)
	}
	if m := s.Models["claude-3-5-haiku-20241022"]; m.RequestCount != 2 || m.InputTokens != 30 {
		t.Errorf("Unexpected per-model usage %+v", m)
	}
}

func TestUsageTracker_Cost(t *testing.T) {
	tr := NewUsageTracker(time.Hour, map[string]Pricing{
		"known": {InputPerMTok: 2, OutputPerMTok: 10},
	})

	cost := tr.Record("known", 1_000_000, 500_000)
	if math.Abs(cost-7.0) > 1e-9 {
		t.Errorf("Expected cost 7.0, got %v", cost)
	}

	cost = tr.Record("unknown", 1_000_000, 1_000_000)
	want := DefaultPricing.InputPerMTok + DefaultPricing.OutputPerMTok
	if math.Abs(cost-want) > 1e-9 {
		t.Errorf("Expected default tier cost %v, got %v", want, cost)
	}

	if got := tr.Stats().EstimatedCostUSD; math.Abs(got-(7.0+want)) > 1e-9 {
		t.Errorf("Expected accumulated cost %v, got %v", 7.0+want, got)
	}
}

func TestUsageTracker_LazyRollover(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewUsageTracker(time.Hour, nil)
	tr.now = func() time.Time { return now }
	tr.Reset()

	tr.Record("m", 100, 100)

	// stats do not roll over on their own
	now = now.Add(2 * time.Hour)
	if s := tr.Stats(); s.RequestCount != 1 {
		t.Fatalf("Expected stale window to persist until next record, got %d", s.RequestCount)
	}

	tr.Record("m", 1, 2)
	s := tr.Stats()
	if s.InputTokens != 1 || s.OutputTokens != 2 || s.RequestCount != 1 {
		t.Errorf("Expected fresh window with only the new record, got %+v", s)
	}
	if !s.WindowStart.Equal(now) {
		t.Errorf("Expected window to restart at %s, got %s", now, s.WindowStart)
	}
	if !s.WindowEnd.Equal(now.Add(time.Hour)) {
		t.Errorf("Unexpected window end %s", s.WindowEnd)
	}
}

func TestUsageTracker_Reset(t *testing.T) {
	tr := NewUsageTracker(time.Hour, nil)
	tr.Record("m", 5, 5)
	before := tr.Stats().WindowStart

	time.Sleep(2 * time.Millisecond)
	tr.Reset()

	s := tr.Stats()
	if s.RequestCount != 0 || s.InputTokens != 0 || s.EstimatedCostUSD != 0 || len(s.Models) != 0 {
		t.Errorf("Expected zeroed stats, got %+v", s)
	}
	if !s.WindowStart.After(before) {
		t.Error("Expected window restart on reset")
	}
}
