package providers

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/coredesk/llmcore/pkg/models"
)

func newTestGoogleProvider() *GoogleProvider {
	return &GoogleProvider{defaultModel: "gemini-2.0-flash", log: slog.Default()}
}

func TestGoogleProvider_ConvertMessages(t *testing.T) {
	p := newTestGoogleProvider()
	messages := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentPart{models.TextPart("hello")}},
		{Role: models.RoleAssistant, Content: []models.ContentPart{models.TextPart("hi")}},
	}

	contents, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("len(contents) = %d, want 2", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant role = %q, want %q", contents[1].Role, "model")
	}
}

func TestGoogleProvider_ConvertMessages_InvalidToolInput(t *testing.T) {
	p := newTestGoogleProvider()
	messages := []models.Message{
		{Role: models.RoleAssistant, Content: []models.ContentPart{
			models.ToolUsePart("search", "search", []byte("not json")),
		}},
	}
	if _, err := p.convertMessages(messages); err == nil {
		t.Fatal("expected error for invalid tool_use input")
	}
}

func TestGoogleProvider_BuildConfig_Defaults(t *testing.T) {
	p := newTestGoogleProvider()
	config := p.buildConfig(MessageRequest{System: "be concise"})
	if config.MaxOutputTokens != 16384 {
		t.Errorf("MaxOutputTokens = %d, want 16384", config.MaxOutputTokens)
	}
	if config.SystemInstruction == nil {
		t.Fatal("expected SystemInstruction to be set")
	}
}

func TestGoogleProvider_ConvertTools(t *testing.T) {
	p := newTestGoogleProvider()
	schema, _ := json.Marshal(map[string]any{"type": "object"})
	tools := p.convertTools([]models.Tool{{Name: "search", Description: "search the web", InputSchema: schema}})
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("expected one tool with one declaration, got %+v", tools)
	}
	if tools[0].FunctionDeclarations[0].Name != "search" {
		t.Errorf("declaration name = %q, want %q", tools[0].FunctionDeclarations[0].Name, "search")
	}
}
