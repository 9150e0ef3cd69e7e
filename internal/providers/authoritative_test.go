package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

func TestNewAuthoritativeProvider_RequiresBaseURLForDirect(t *testing.T) {
	if _, err := NewAuthoritativeProvider(AuthoritativeConfig{Transport: TransportDirectHTTPS}); err == nil {
		t.Fatal("expected error when BaseURL is missing for direct transport")
	}
}

func TestNewAuthoritativeProvider_RequiresDispatcherForDispatch(t *testing.T) {
	if _, err := NewAuthoritativeProvider(AuthoritativeConfig{Transport: TransportServerlessDispatch}); err == nil {
		t.Fatal("expected error when Dispatcher is missing for dispatch transport")
	}
}

func TestAuthoritativeProvider_BuildBody_Defaults(t *testing.T) {
	p, err := NewAuthoritativeProvider(AuthoritativeConfig{BaseURL: "https://proxy.example.com/v1/speak"})
	if err != nil {
		t.Fatalf("NewAuthoritativeProvider: %v", err)
	}

	body, err := p.buildBody(MessageRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: []models.ContentPart{models.TextPart("hi")}}},
		Model:    "claude-sonnet-4",
	})
	if err != nil {
		t.Fatalf("buildBody: %v", err)
	}

	var decoded authoritativeRequest
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.MaxTokens != 16384 {
		t.Errorf("MaxTokens = %d, want 16384", decoded.MaxTokens)
	}
	if decoded.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", decoded.Temperature)
	}
	if !decoded.UsePromptCaching {
		t.Error("expected UsePromptCaching to be true")
	}
}

type fakeDispatcher struct {
	response []byte
}

func (f *fakeDispatcher) Invoke(ctx context.Context, functionName string, body []byte) ([]byte, error) {
	return f.response, nil
}

func TestAuthoritativeProvider_SpeakWith_Dispatch(t *testing.T) {
	dispatcher := &fakeDispatcher{response: []byte(`{"id":"msg_1","model":"claude-sonnet-4","answer":"hi there","isTool":false,"messageStop":{"stopReason":"end_turn"},"usage":{"inputTokens":3,"outputTokens":2}}`)}
	p, err := NewAuthoritativeProvider(AuthoritativeConfig{
		Transport:    TransportServerlessDispatch,
		Dispatcher:   dispatcher,
		FunctionName: "speakWith",
	})
	if err != nil {
		t.Fatalf("NewAuthoritativeProvider: %v", err)
	}

	resp, err := p.SpeakWith(context.Background(), MessageRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: []models.ContentPart{models.TextPart("hi")}}},
	}, "int-1")
	if err != nil {
		t.Fatalf("SpeakWith: %v", err)
	}
	if resp.MessageStop.StopReason != models.StopEndTurn {
		t.Errorf("StopReason = %v, want StopEndTurn", resp.MessageStop.StopReason)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("TotalTokens = %d, want 5", resp.Usage.TotalTokens)
	}
}

// TestAuthoritativeProvider_SpeakWith_RateLimitedCarriesResetDate covers
// spec §4.3/S3: a 429 response body still carries a rateLimit object, and
// the proxy adapter must surface its resetDate on the returned error so
// transport's backoff can wait for it instead of blindly retrying.
func TestAuthoritativeProvider_SpeakWith_RateLimitedCarriesResetDate(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprintf(w, `{"rateLimit":{"requestsRemaining":0,"requestsLimit":60,"requestsResetDate":%q}}`, reset.Format(time.RFC3339))
	}))
	defer server.Close()

	p, err := NewAuthoritativeProvider(AuthoritativeConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewAuthoritativeProvider: %v", err)
	}

	_, err = p.SpeakWith(context.Background(), MessageRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: []models.ContentPart{models.TextPart("hi")}}},
	}, "int-1")
	if err == nil {
		t.Fatal("expected an error for a 429 response")
	}

	var llmErr *llmerr.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *llmerr.Error, got %T", err)
	}
	if llmErr.Kind != llmerr.KindLLMRateLimit {
		t.Errorf("Kind = %q, want %q", llmErr.Kind, llmerr.KindLLMRateLimit)
	}
	if !llmErr.RateLimit.Known {
		t.Fatal("expected RateLimit.Known to be true")
	}
	if !llmErr.RateLimit.RequestsResetDate.Equal(reset) {
		t.Errorf("RequestsResetDate = %v, want %v", llmErr.RateLimit.RequestsResetDate, reset)
	}
}
