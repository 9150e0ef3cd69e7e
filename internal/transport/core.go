package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/coredesk/llmcore/internal/backoff"
	"github.com/coredesk/llmcore/internal/cache"
	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/internal/modelregistry"
	"github.com/coredesk/llmcore/internal/observability"
	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/internal/ratelimit"
	"github.com/coredesk/llmcore/internal/usage"
	"github.com/coredesk/llmcore/pkg/models"
)

// maxStatusRetries is the outer bound on speakWithPlus's internal
// status-code retry loop (spec §4.3 "Retry loop").
const maxStatusRetries = 3

// initialServerErrorBackoff is the starting backoff for >=500 responses,
// doubled on each subsequent retry (spec §4.3).
const initialServerErrorBackoff = 1000 * time.Millisecond

// Core wires together the provider fleet, the response cache, and the
// rate-limit manager into the speakWithPlus/speakWithRetry transport
// contract (spec §4.3).
type Core struct {
	Providers map[string]providers.Provider
	Cache     *cache.Store
	RateLimit *ratelimit.Manager
	Log       *slog.Logger

	// CacheDisabled skips cache lookup/write entirely when true.
	CacheDisabled bool

	// ServerErrorInitialBackoff overrides initialServerErrorBackoff, for
	// tests that want to avoid a real multi-second sleep.
	ServerErrorInitialBackoff time.Duration

	// Metrics records request/cache/retry counters, if set. Nil is safe;
	// every call site guards against it.
	Metrics *observability.Metrics

	// Tracer wraps each provider call in an OpenTelemetry span, if set.
	// Nil is safe; every call site guards against it.
	Tracer *observability.Tracer
}

// AttachTracer wires a Tracer into the Core so SpeakWithPlus opens a span
// per provider call.
func (c *Core) AttachTracer(t *observability.Tracer) {
	c.Tracer = t
}

// NewCore constructs a Core. providerSet maps a provider name (as used by
// providers.Provider.Name) to its adapter.
func NewCore(providerSet map[string]providers.Provider, store *cache.Store, limiter *ratelimit.Manager, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	return &Core{Providers: providerSet, Cache: store, RateLimit: limiter, Log: log, ServerErrorInitialBackoff: initialServerErrorBackoff}
}

// AttachMetrics wires m into the Core and into the backing cache.Store so
// cache-size write-skip events increment m.CacheWriteSkipped.
func (c *Core) AttachMetrics(m *observability.Metrics) {
	c.Metrics = m
	if c.Cache != nil && m != nil {
		c.Cache.OnWriteSkipped = m.CacheWriteSkipped.Inc
	}
}

// SpeakWithPlus assembles the cache lookup, status-code retry loop, and
// response normalization around a single provider call (spec §4.3). It
// does not perform the validation-driven outer retry — see SpeakWithRetry.
func (c *Core) SpeakWithPlus(ctx context.Context, providerName string, req providers.MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	provider, ok := c.Providers[providerName]
	if !ok {
		return nil, llmerr.New(llmerr.KindLLMProvider, "unknown provider: "+providerName)
	}

	if !c.CacheDisabled {
		if cached, hit := cacheLookup(c.Cache, providerName, req); hit {
			if c.Metrics != nil {
				c.Metrics.RecordCacheLookup(true)
			}
			return cached, nil
		}
		if c.Metrics != nil {
			c.Metrics.RecordCacheLookup(false)
		}
	}

	var resp *models.ProviderResponse
	var err error

	if c.Tracer != nil {
		var span trace.Span
		ctx, span = c.Tracer.TraceLLMRequest(ctx, providerName, req.Model, interactionID)
		defer span.End()
		defer func() { c.Tracer.RecordError(span, err) }()
	}

	start := time.Now()
	resp, err = c.retryLoop(ctx, provider, req, interactionID)
	if c.Metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.Metrics.RecordLLMRequest(providerName, req.Model, status, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	if resp.RateLimit.Known && c.RateLimit != nil {
		c.RateLimit.Record(providerName, resp.RateLimit)
		if c.Metrics != nil {
			c.Metrics.RecordRateLimit(providerName, resp.RateLimit.RequestsRemaining)
		}
	}

	if ok := NormalizeAnswer(resp); !ok {
		c.Log.Warn("transport: response had no usable content, synthesized placeholder",
			"provider", providerName, "model", req.Model, "interaction_id", interactionID)
	}
	resp.ProviderName = providerName

	if c.Metrics != nil {
		u := resp.Usage
		c.Metrics.RecordTokens(providerName, req.Model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens, u.ThoughtTokens)
		c.Metrics.ContextWindowUsed.WithLabelValues(providerName, req.Model).Observe(float64(u.TotalAllTokens))

		caps := modelregistry.GetModelCapabilities(req.Model)
		price := usage.Cost{Input: caps.InputPrice, Output: caps.OutputPrice}
		cost := price.Estimate(&usage.Usage{
			InputTokens:  int64(u.InputTokens),
			OutputTokens: int64(u.OutputTokens),
		})
		c.Metrics.RecordCost(providerName, req.Model, cost)
	}

	if !c.CacheDisabled {
		cacheStore(c.Cache, providerName, req, resp)
	}
	return resp, nil
}

// retryLoop implements the status-code-aware inner retry policy (spec
// §4.3 "Retry loop (outer bound: 3 attempts)").
func (c *Core) retryLoop(ctx context.Context, provider providers.Provider, req providers.MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	currentBackoff := c.ServerErrorInitialBackoff
	if currentBackoff <= 0 {
		currentBackoff = initialServerErrorBackoff
	}
	var lastErr error

	for attempt := 1; attempt <= maxStatusRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := provider.SpeakWith(ctx, req, interactionID)
		if err == nil {
			return resp, nil
		}

		llmErr := coerceLLMError(err, provider.Name(), req.Model, interactionID, attempt)
		lastErr = llmErr

		switch llmErr.Kind {
		case llmerr.KindLLMBadRequest, llmerr.KindLLMOversize:
			return nil, llmErr
		case llmerr.KindLLMRateLimit:
			if attempt == maxStatusRetries {
				return nil, llmErr
			}
			if c.Metrics != nil {
				c.Metrics.RecordRetry("rate_limit")
			}
			wait := rateLimitWait(llmErr, currentBackoff)
			if sleepErr := backoff.SleepWithContext(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
		case llmerr.KindLLMServer:
			if attempt == maxStatusRetries {
				return nil, llmErr
			}
			if c.Metrics != nil {
				c.Metrics.RecordRetry("server_error")
			}
			if sleepErr := backoff.SleepWithContext(ctx, currentBackoff); sleepErr != nil {
				return nil, sleepErr
			}
			currentBackoff *= 2
		default:
			return nil, llmErr
		}
	}
	return nil, lastErr
}

// rateLimitWait computes the 429 backoff: the larger of the time until
// the vendor's reported reset and the current exponential backoff (spec
// §4.3: "sleep until max(rateLimit.requestsResetDate - now, currentBackoff)").
// A 429 surfaces as an error rather than a ProviderResponse (no adapter
// returns both), so the reset date is read off llmErr.RateLimit, which
// adapters capable of parsing their own error body (e.g. the authoritative
// proxy) populate via llmerr.Error.WithRateLimit.
func rateLimitWait(llmErr *llmerr.Error, currentBackoff time.Duration) time.Duration {
	if llmErr == nil || !llmErr.RateLimit.Known || llmErr.RateLimit.RequestsResetDate.IsZero() {
		return currentBackoff
	}
	untilReset := time.Until(llmErr.RateLimit.RequestsResetDate)
	if untilReset > currentBackoff {
		return untilReset
	}
	return currentBackoff
}

// coerceLLMError wraps err as an *llmerr.Error carrying provider context,
// preserving an existing *llmerr.Error's kind and detail rather than
// re-classifying it (spec §4.3 "wrap any LLMError preserving details").
func coerceLLMError(err error, providerName, model, interactionID string, attempt int) *llmerr.Error {
	var existing *llmerr.Error
	if errors.As(err, &existing) {
		return existing.WithContext(providerName, model, interactionID).WithAttempt(attempt)
	}
	return llmerr.Wrap(llmerr.KindLLMProvider, err, "adapter call failed").WithContext(providerName, model, interactionID).WithAttempt(attempt)
}
