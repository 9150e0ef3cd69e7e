package providers

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/coredesk/llmcore/pkg/models"
)

func newTestOllamaProvider() *OllamaProvider {
	return &OllamaProvider{baseURL: "http://localhost:11434", defaultModel: "llama3.1", log: slog.Default()}
}

func TestNewOllamaProvider_Defaults(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{})
	if p.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q, want default", p.baseURL)
	}
}

func TestOllamaProvider_ConvertMessages(t *testing.T) {
	p := newTestOllamaProvider()
	messages := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentPart{models.TextPart("hello")}},
		{Role: models.RoleAssistant, Content: []models.ContentPart{models.TextPart("hi")}},
	}

	converted, err := p.convertMessages(messages, "be helpful")
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(converted) != 3 {
		t.Fatalf("len(converted) = %d, want 3 (system + 2)", len(converted))
	}
	if converted[0].Role != "system" {
		t.Errorf("first message role = %q, want system", converted[0].Role)
	}
}

func TestOllamaProvider_ConvertMessages_InvalidToolInput(t *testing.T) {
	p := newTestOllamaProvider()
	messages := []models.Message{
		{Role: models.RoleAssistant, Content: []models.ContentPart{
			models.ToolUsePart("tu_1", "search", []byte("not json")),
		}},
	}
	if _, err := p.convertMessages(messages, ""); err == nil {
		t.Fatal("expected error for invalid tool_use input")
	}
}

func TestOllamaProvider_Normalize(t *testing.T) {
	p := newTestOllamaProvider()
	resp := &ollamaChatResponse{
		Message:         ollamaMessage{Role: "assistant", Content: "the answer is 4"},
		DoneReason:      "stop",
		PromptEvalCount: 10,
		EvalCount:       5,
	}
	out := p.normalize(resp, "llama3.1")
	if out.MessageStop.StopReason != models.StopEndTurn {
		t.Errorf("StopReason = %v, want StopEndTurn", out.MessageStop.StopReason)
	}
	if out.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", out.Usage.TotalTokens)
	}
}

func TestOllamaProvider_ConvertTools(t *testing.T) {
	p := newTestOllamaProvider()
	schema, _ := json.Marshal(map[string]any{"type": "object"})
	tools := p.convertTools([]models.Tool{{Name: "search", Description: "search the web", InputSchema: schema}})
	if len(tools) != 1 || tools[0].Function.Name != "search" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}
