// Package observability provides the Prometheus metrics the orchestration
// core emits around LLM requests, caching, and session lifecycle.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors the transport core, cache
// store, and session registry update. Construct one with NewMetrics and
// thread it through.
type Metrics struct {
	// LLMRequestDuration measures SpeakWithPlus latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts SpeakWithPlus calls by outcome.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption by kind.
	// Labels: provider, model, kind (input|output|cache_read|cache_creation|thought)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD accumulates estimated cost.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks total tokens used per response against the
	// model's context window.
	// Labels: provider, model
	ContextWindowUsed *prometheus.HistogramVec

	// CacheLookups counts response-cache lookups by outcome.
	// Labels: outcome (hit|miss)
	CacheLookups *prometheus.CounterVec

	// CacheWriteSkipped counts cache writes skipped for exceeding the
	// backing KV's size limit even after compression.
	CacheWriteSkipped prometheus.Counter

	// RetryAttempts counts transport retry attempts by trigger.
	// Labels: trigger (rate_limit|server_error|validation)
	RetryAttempts *prometheus.CounterVec

	// ValidationFailures counts speakWithRetry validation failures by
	// reason.
	// Labels: reason
	ValidationFailures *prometheus.CounterVec

	// ActiveSessions gauges live entries in the session registry.
	ActiveSessions prometheus.Gauge

	// RateLimitRemaining gauges the last-observed requests-remaining
	// figure per provider.
	// Labels: provider
	RateLimitRemaining *prometheus.GaugeVec
}

// NewMetrics constructs every collector and registers it with reg. Pass
// prometheus.DefaultRegisterer at process startup, or a fresh
// prometheus.NewRegistry() in tests that construct more than one Metrics
// in the same process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmcore_llm_request_duration_seconds",
				Help:    "Duration of provider SpeakWith calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmcore_llm_requests_total",
				Help: "Total provider requests by provider, model, and outcome",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmcore_llm_tokens_total",
				Help: "Total tokens consumed by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),
		LLMCostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmcore_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),
		ContextWindowUsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmcore_context_window_tokens",
				Help:    "Total tokens used per response",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000, 200000},
			},
			[]string{"provider", "model"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmcore_cache_lookups_total",
				Help: "Response cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		CacheWriteSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "llmcore_cache_write_skipped_total",
				Help: "Cache writes skipped for exceeding the size limit even after compression",
			},
		),
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmcore_retry_attempts_total",
				Help: "Transport retry attempts by trigger",
			},
			[]string{"trigger"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmcore_validation_failures_total",
				Help: "speakWithRetry validation failures by reason",
			},
			[]string{"reason"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "llmcore_active_sessions",
				Help: "Current number of entries in the session registry",
			},
		),
		RateLimitRemaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llmcore_rate_limit_requests_remaining",
				Help: "Last-observed requests-remaining from each provider's rate-limit headers",
			},
			[]string{"provider"},
		),
	}
}

// RecordLLMRequest records the outcome of one SpeakWithPlus call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordTokens records a TokenUsage breakdown against provider/model.
func (m *Metrics) RecordTokens(provider, model string, input, output, cacheCreation, cacheRead, thought int) {
	if input > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(output))
	}
	if cacheCreation > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "cache_creation").Add(float64(cacheCreation))
	}
	if cacheRead > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "cache_read").Add(float64(cacheRead))
	}
	if thought > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "thought").Add(float64(thought))
	}
}

// RecordCost adds an estimated per-response USD cost against provider/model.
func (m *Metrics) RecordCost(provider, model string, usd float64) {
	if usd <= 0 {
		return
	}
	m.LLMCostUSD.WithLabelValues(provider, model).Add(usd)
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordRetry records one retry attempt triggered by trigger.
func (m *Metrics) RecordRetry(trigger string) {
	m.RetryAttempts.WithLabelValues(trigger).Inc()
}

// RecordValidationFailure records one speakWithRetry validation failure.
func (m *Metrics) RecordValidationFailure(reason string) {
	m.ValidationFailures.WithLabelValues(reason).Inc()
}

// RecordRateLimit records the last-observed requests-remaining figure.
func (m *Metrics) RecordRateLimit(provider string, requestsRemaining int) {
	m.RateLimitRemaining.WithLabelValues(provider).Set(float64(requestsRemaining))
}

// SessionRegistered increments the active-sessions gauge.
func (m *Metrics) SessionRegistered() {
	m.ActiveSessions.Inc()
}

// SessionRemoved decrements the active-sessions gauge.
func (m *Metrics) SessionRemoved() {
	m.ActiveSessions.Dec()
}
