package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coredesk/llmcore/internal/cache"
	"github.com/coredesk/llmcore/internal/providers"
	"github.com/coredesk/llmcore/internal/ratelimit"
	"github.com/coredesk/llmcore/pkg/models"
)

var weatherTool = models.Tool{
	Name:        "get_weather",
	Description: "look up the weather",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {"city": {"type": "string"}},
		"required": ["city"]
	}`),
}

func TestValidateToolUses_ToolNotFound(t *testing.T) {
	resp := &models.ProviderResponse{
		IsTool:   true,
		ToolUses: []models.ToolUse{{ToolUseID: "t1", ToolName: "unregistered", ToolInput: json.RawMessage(`{}`)}},
	}
	reason, detail := validateToolUses(resp, MapToolRegistry{})
	if reason != providers.ReasonToolNotFound {
		t.Errorf("reason = %q, want %q", reason, providers.ReasonToolNotFound)
	}
	if detail == "" {
		t.Error("expected non-empty detail")
	}
	if !resp.ToolUses[0].ToolValidation.Validated {
		t.Error("expected Validated=true even on failure")
	}
}

func TestValidateToolUses_SchemaViolation(t *testing.T) {
	resp := &models.ProviderResponse{
		IsTool:   true,
		ToolUses: []models.ToolUse{{ToolUseID: "t1", ToolName: "get_weather", ToolInput: json.RawMessage(`{}`)}},
	}
	reason, _ := validateToolUses(resp, MapToolRegistry{"get_weather": weatherTool})
	if reason != providers.ReasonToolInputInvalid {
		t.Errorf("reason = %q, want %q", reason, providers.ReasonToolInputInvalid)
	}
}

func TestValidateToolUses_Valid(t *testing.T) {
	resp := &models.ProviderResponse{
		IsTool:   true,
		Answer:   "checking",
		ToolUses: []models.ToolUse{{ToolUseID: "t1", ToolName: "get_weather", ToolInput: json.RawMessage(`{"city":"nyc"}`)}},
	}
	reason, _ := validateToolUses(resp, MapToolRegistry{"get_weather": weatherTool})
	if reason != "" {
		t.Errorf("reason = %q, want empty", reason)
	}
	if !resp.ToolUses[0].ToolValidation.Validated {
		t.Error("expected Validated=true")
	}
}

func TestValidateToolUses_MaxTokensDuringToolUse(t *testing.T) {
	resp := &models.ProviderResponse{
		IsTool:      true,
		MessageStop: models.MessageStop{StopReason: models.StopMaxTokens},
		ToolUses:    []models.ToolUse{{ToolUseID: "t1", ToolName: "get_weather", ToolInput: json.RawMessage(`{"city":"nyc"}`)}},
	}
	reason, _ := validateToolUses(resp, MapToolRegistry{"get_weather": weatherTool})
	if reason != providers.ReasonToolMaxTokens {
		t.Errorf("reason = %q, want %q", reason, providers.ReasonToolMaxTokens)
	}
}

func TestValidateToolUses_EmptyAnswer(t *testing.T) {
	resp := &models.ProviderResponse{Answer: ""}
	reason, _ := validateToolUses(resp, MapToolRegistry{})
	if reason != providers.ReasonEmptyAnswer {
		t.Errorf("reason = %q, want %q", reason, providers.ReasonEmptyAnswer)
	}
}

func TestSpeakWithRetry_RetriesOnInvalidToolInputThenSucceeds(t *testing.T) {
	p := &scriptedProvider{name: "test", responses: []scriptedCall{
		{resp: &models.ProviderResponse{
			IsTool:        true,
			AnswerContent: []models.ContentPart{models.ToolUsePart("t1", "get_weather", json.RawMessage(`{}`))},
			ToolUses:      []models.ToolUse{{ToolUseID: "t1", ToolName: "get_weather", ToolInput: json.RawMessage(`{}`)}},
		}},
		{resp: &models.ProviderResponse{
			IsTool:        true,
			AnswerContent: []models.ContentPart{models.ToolUsePart("t2", "get_weather", json.RawMessage(`{"city":"nyc"}`))},
			ToolUses:      []models.ToolUse{{ToolUseID: "t2", ToolName: "get_weather", ToolInput: json.RawMessage(`{"city":"nyc"}`)}},
		}},
	}}
	core := NewCore(map[string]providers.Provider{"test": p}, cache.NewStore(time.Minute, 0, nil), ratelimit.NewManager(), nil)
	core.CacheDisabled = true

	resp, err := core.SpeakWithRetry(context.Background(), "test", providers.MessageRequest{Model: "m"}, "i1",
		MapToolRegistry{"get_weather": weatherTool}, nil, nil)
	if err != nil {
		t.Fatalf("SpeakWithRetry: %v", err)
	}
	if !resp.ToolUses[0].ToolValidation.Validated {
		t.Error("expected final response tool use to be validated")
	}
	if p.calls != 2 {
		t.Errorf("provider called %d times, want 2", p.calls)
	}
}
