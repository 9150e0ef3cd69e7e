package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestMetrics builds a Metrics registered against a fresh registry, so
// each test gets its own collectors instead of colliding on the process
// default registry.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestRecordLLMRequest_IncrementsCounterAndHistogram(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLLMRequest("anthropic", "claude-3-5-sonnet-latest", "success", 1.25)

	var metric dto.Metric
	if err := m.LLMRequestCounter.WithLabelValues("anthropic", "claude-3-5-sonnet-latest", "success").Write(&metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	if metric.GetCounter().GetValue() != 1 {
		t.Errorf("counter value = %v, want 1", metric.GetCounter().GetValue())
	}
}

func TestRecordTokens_OnlySetsNonZeroKinds(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordTokens("openai", "gpt-4o", 100, 50, 0, 20, 0)

	var input, output, cacheRead, cacheCreation dto.Metric
	m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o", "input").Write(&input)
	m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o", "output").Write(&output)
	m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o", "cache_read").Write(&cacheRead)
	m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o", "cache_creation").Write(&cacheCreation)

	if input.GetCounter().GetValue() != 100 {
		t.Errorf("input = %v, want 100", input.GetCounter().GetValue())
	}
	if output.GetCounter().GetValue() != 50 {
		t.Errorf("output = %v, want 50", output.GetCounter().GetValue())
	}
	if cacheRead.GetCounter().GetValue() != 20 {
		t.Errorf("cache_read = %v, want 20", cacheRead.GetCounter().GetValue())
	}
	if cacheCreation.GetCounter().GetValue() != 0 {
		t.Errorf("cache_creation = %v, want 0 (never recorded)", cacheCreation.GetCounter().GetValue())
	}
}

func TestRecordCacheLookup_HitAndMiss(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	var hit, miss dto.Metric
	m.CacheLookups.WithLabelValues("hit").Write(&hit)
	m.CacheLookups.WithLabelValues("miss").Write(&miss)

	if hit.GetCounter().GetValue() != 1 {
		t.Errorf("hits = %v, want 1", hit.GetCounter().GetValue())
	}
	if miss.GetCounter().GetValue() != 2 {
		t.Errorf("misses = %v, want 2", miss.GetCounter().GetValue())
	}
}

func TestSessionRegisteredAndRemoved_TrackGauge(t *testing.T) {
	m := newTestMetrics(t)
	m.SessionRegistered()
	m.SessionRegistered()
	m.SessionRemoved()

	var metric dto.Metric
	m.ActiveSessions.Write(&metric)
	if metric.GetGauge().GetValue() != 1 {
		t.Errorf("active sessions = %v, want 1", metric.GetGauge().GetValue())
	}
}

func TestRecordRateLimit_SetsGaugePerProvider(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRateLimit("bedrock", 42)

	var metric dto.Metric
	m.RateLimitRemaining.WithLabelValues("bedrock").Write(&metric)
	if metric.GetGauge().GetValue() != 42 {
		t.Errorf("gauge = %v, want 42", metric.GetGauge().GetValue())
	}
}
