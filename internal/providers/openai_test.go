package providers

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider("openai", OpenAIConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewOpenAIProvider_NamePreset(t *testing.T) {
	p, err := NewOpenAIProvider("groq", OpenAIConfig{APIKey: "key", BaseURL: "https://api.groq.com/openai/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	if p.Name() != "groq" {
		t.Errorf("Name() = %q, want %q", p.Name(), "groq")
	}
}

func TestOpenAIProvider_ConvertMessages_ToolResult(t *testing.T) {
	p, err := NewOpenAIProvider("openai", OpenAIConfig{APIKey: "key"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	messages := []models.Message{
		{Role: models.RoleAssistant, Content: []models.ContentPart{
			models.ToolUsePart("call_1", "search", []byte(`{"q":"go"}`)),
		}},
		{Role: models.RoleUser, Content: []models.ContentPart{
			models.ToolResultPart("call_1", []models.ContentPart{models.TextPart("result")}, false),
		}},
	}

	converted, err := p.convertMessages(messages, "")
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(converted) != 2 {
		t.Fatalf("len(converted) = %d, want 2", len(converted))
	}
	if converted[1].Role != openai.ChatMessageRoleTool {
		t.Errorf("second message role = %q, want %q", converted[1].Role, openai.ChatMessageRoleTool)
	}
	if converted[1].ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want %q", converted[1].ToolCallID, "call_1")
	}
}

func TestOpenAIProvider_ClassifyError(t *testing.T) {
	p, err := NewOpenAIProvider("openai", OpenAIConfig{APIKey: "key"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}

	apiErr := &openai.APIError{HTTPStatusCode: 500, Message: "server error"}
	wrapped := p.classifyError(apiErr, "gpt-4o", "int-1")

	var llmErr *llmerr.Error
	if !errors.As(wrapped, &llmErr) {
		t.Fatalf("expected *llmerr.Error, got %T", wrapped)
	}
	if llmErr.Kind != llmerr.KindLLMServer {
		t.Errorf("Kind = %q, want %q", llmErr.Kind, llmerr.KindLLMServer)
	}
}
