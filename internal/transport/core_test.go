package transport

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/coredesk/llmcore/internal/cache"
	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/internal/observability"
	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/internal/ratelimit"
	"github.com/coredesk/llmcore/pkg/models"
)

type scriptedProvider struct {
	name      string
	responses []scriptedCall
	calls     int
}

type scriptedCall struct {
	resp *models.ProviderResponse
	err  error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) SpeakWith(ctx context.Context, req providers.MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	call := p.responses[p.calls]
	p.calls++
	return call.resp, call.err
}

func (p *scriptedProvider) AsProviderMessageRequest(req providers.MessageRequest) (any, error) {
	return req, nil
}

func newTestCore(p providers.Provider) *Core {
	return NewCore(map[string]providers.Provider{p.Name(): p}, cache.NewStore(time.Minute, 0, nil), ratelimit.NewManager(), nil)
}

func TestSpeakWithPlus_SuccessOnFirstAttempt(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{resp: &models.ProviderResponse{AnswerContent: []models.ContentPart{models.TextPart("hi")}}},
	}}
	core := newTestCore(p)

	resp, err := core.SpeakWithPlus(context.Background(), "test", providers.MessageRequest{Model: "m"}, "i1")
	if err != nil {
		t.Fatalf("SpeakWithPlus: %v", err)
	}
	if resp.Answer != "hi" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.FromCache {
		t.Error("first call should not be from cache")
	}
}

func TestSpeakWithPlus_CacheHitOnSecondCall(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{resp: &models.ProviderResponse{AnswerContent: []models.ContentPart{models.TextPart("hi")}}},
	}}
	core := newTestCore(p)
	req := providers.MessageRequest{Model: "m"}

	if _, err := core.SpeakWithPlus(context.Background(), "test", req, "i1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	resp, err := core.SpeakWithPlus(context.Background(), "test", req, "i1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !resp.FromCache {
		t.Error("expected second identical call to be served from cache")
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (second should hit cache)", p.calls)
	}
}

func TestSpeakWithPlus_BadRequest_NoRetry(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{err: llmerr.New(llmerr.KindLLMBadRequest, "bad")},
		{resp: &models.ProviderResponse{}}, // would succeed if retried
	}}
	core := newTestCore(p)

	_, err := core.SpeakWithPlus(context.Background(), "test", providers.MessageRequest{Model: "m"}, "i1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !llmerr.IsKind(err, llmerr.KindLLMBadRequest) {
		t.Errorf("expected KindLLMBadRequest, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (no retry on 400)", p.calls)
	}
}

func TestSpeakWithPlus_ServerError_RetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{err: llmerr.New(llmerr.KindLLMServer, "503")},
		{resp: &models.ProviderResponse{AnswerContent: []models.ContentPart{models.TextPart("ok")}}},
	}}
	core := newTestCore(p)
	core.ServerErrorInitialBackoff = time.Millisecond

	resp, err := core.SpeakWithPlus(context.Background(), "test", providers.MessageRequest{Model: "m"}, "i1")
	if err != nil {
		t.Fatalf("SpeakWithPlus: %v", err)
	}
	if resp.Answer != "ok" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if p.calls != 2 {
		t.Errorf("provider called %d times, want 2 (one retry after 500)", p.calls)
	}
}

func TestSpeakWithPlus_UnknownProvider(t *testing.T) {
	core := NewCore(map[string]providers.Provider{}, nil, ratelimit.NewManager(), nil)
	_, err := core.SpeakWithPlus(context.Background(), "nope", providers.MessageRequest{}, "i1")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestSpeakWithPlus_MetricsRecorded(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{resp: &models.ProviderResponse{
			AnswerContent: []models.ContentPart{models.TextPart("hi")},
			Usage:         models.NewTokenUsage(10, 5, 0, 0, 0),
		}},
	}}
	core := newTestCore(p)
	core.AttachMetrics(observability.NewMetrics(prometheus.NewRegistry()))

	if _, err := core.SpeakWithPlus(context.Background(), "test", providers.MessageRequest{Model: "m"}, "i1"); err != nil {
		t.Fatalf("SpeakWithPlus: %v", err)
	}

	var metric dto.Metric
	if err := core.Metrics.LLMRequestCounter.WithLabelValues("test", "m", "success").Write(&metric); err != nil {
		t.Fatalf("write: %v", err)
	}
	if metric.GetCounter().GetValue() != 1 {
		t.Errorf("request counter = %v, want 1", metric.GetCounter().GetValue())
	}

	var tokens dto.Metric
	core.Metrics.LLMTokensUsed.WithLabelValues("test", "m", "input").Write(&tokens)
	if tokens.GetCounter().GetValue() != 10 {
		t.Errorf("input tokens = %v, want 10", tokens.GetCounter().GetValue())
	}
}

func TestSpeakWithPlus_CostRecorded(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{resp: &models.ProviderResponse{
			AnswerContent: []models.ContentPart{models.TextPart("hi")},
			Usage:         models.NewTokenUsage(1_000_000, 1_000_000, 0, 0, 0),
		}},
	}}
	core := newTestCore(p)
	core.AttachMetrics(observability.NewMetrics(prometheus.NewRegistry()))

	if _, err := core.SpeakWithPlus(context.Background(), "test", providers.MessageRequest{Model: "claude-3-5-haiku-latest"}, "i1"); err != nil {
		t.Fatalf("SpeakWithPlus: %v", err)
	}

	var metric dto.Metric
	if err := core.Metrics.LLMCostUSD.WithLabelValues("test", "claude-3-5-haiku-latest").Write(&metric); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, want := metric.GetCounter().GetValue(), 0.8+4.0; got != want {
		t.Errorf("cost = %v, want %v", got, want)
	}
}

func TestSpeakWithPlus_RateLimitRecorded(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{resp: &models.ProviderResponse{
			AnswerContent: []models.ContentPart{models.TextPart("ok")},
			RateLimit:     models.RateLimit{Known: true, RequestsRemaining: 7},
		}},
	}}
	limiter := ratelimit.NewManager()
	core := NewCore(map[string]providers.Provider{"test": p}, cache.NewStore(time.Minute, 0, nil), limiter, nil)

	if _, err := core.SpeakWithPlus(context.Background(), "test", providers.MessageRequest{Model: "m"}, "i1"); err != nil {
		t.Fatalf("SpeakWithPlus: %v", err)
	}
	snap, ok := limiter.Snapshot("test")
	if !ok || snap.RequestsRemaining != 7 {
		t.Errorf("snapshot = %+v, ok=%v, want RequestsRemaining=7", snap, ok)
	}
}

func TestRateLimitWait_UsesResetDateWhenLater(t *testing.T) {
	reset := time.Now().Add(5 * time.Second)
	llmErr := llmerr.New(llmerr.KindLLMRateLimit, "429").WithRateLimit(models.RateLimit{
		Known:             true,
		RequestsResetDate: reset,
	})

	wait := rateLimitWait(llmErr, 50*time.Millisecond)
	if wait < 4*time.Second {
		t.Errorf("wait = %v, want close to 5s (reset date wins over small backoff)", wait)
	}
}

func TestRateLimitWait_FallsBackToBackoffWhenResetUnknown(t *testing.T) {
	if got, want := rateLimitWait(nil, 200*time.Millisecond), 200*time.Millisecond; got != want {
		t.Errorf("wait = %v, want %v (no error to read a reset date from)", got, want)
	}

	unknown := llmerr.New(llmerr.KindLLMRateLimit, "429")
	if got, want := rateLimitWait(unknown, 200*time.Millisecond), 200*time.Millisecond; got != want {
		t.Errorf("wait = %v, want %v (RateLimit.Known is false)", got, want)
	}
}

// TestSpeakWithPlus_RateLimitRetry_WaitsForResetDate exercises spec
// §4.3/S3 end-to-end: a 429 carrying a rate-limit snapshot with a future
// reset date makes retryLoop wait at least until that date before the
// provider is called again, even though the configured exponential
// backoff is much shorter.
func TestSpeakWithPlus_RateLimitRetry_WaitsForResetDate(t *testing.T) {
	reset := time.Now().Add(150 * time.Millisecond)
	rateLimitedErr := llmerr.New(llmerr.KindLLMRateLimit, "429 too many requests").WithRateLimit(models.RateLimit{
		Known:             true,
		RequestsResetDate: reset,
	})
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{err: rateLimitedErr},
		{resp: &models.ProviderResponse{AnswerContent: []models.ContentPart{models.TextPart("ok")}}},
	}}
	core := newTestCore(p)
	core.ServerErrorInitialBackoff = time.Millisecond

	start := time.Now()
	resp, err := core.SpeakWithPlus(context.Background(), "test", providers.MessageRequest{Model: "m"}, "i1")
	if err != nil {
		t.Fatalf("SpeakWithPlus: %v", err)
	}
	if resp.Answer != "ok" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("elapsed = %v, want retry to wait for the reported reset date (~150ms), not the 1ms backoff", elapsed)
	}
}
