package providers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

func newTestBedrockProvider() *BedrockProvider {
	return &BedrockProvider{defaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0", maxTokens: 16384, log: slog.Default()}
}

func TestBedrockProvider_ConvertMessages(t *testing.T) {
	p := newTestBedrockProvider()
	messages := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentPart{models.TextPart("hello")}},
		{Role: models.RoleAssistant, Content: []models.ContentPart{models.TextPart("hi")}},
	}

	converted, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(converted) != 2 {
		t.Fatalf("len(converted) = %d, want 2", len(converted))
	}
	if converted[1].Role != types.ConversationRoleAssistant {
		t.Errorf("assistant role = %q, want %q", converted[1].Role, types.ConversationRoleAssistant)
	}
}

func TestBedrockProvider_ConvertMessages_ToolResult(t *testing.T) {
	p := newTestBedrockProvider()
	messages := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentPart{
			models.ToolResultPart("tu_1", []models.ContentPart{models.TextPart("42")}, false),
		}},
	}

	converted, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(converted) != 1 || len(converted[0].Content) != 1 {
		t.Fatalf("expected one message with one content block, got %+v", converted)
	}
	block, ok := converted[0].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("expected tool result block, got %T", converted[0].Content[0])
	}
	if block.Value.Status != types.ToolResultStatusSuccess {
		t.Errorf("status = %v, want success", block.Value.Status)
	}
}

func TestBedrockProvider_ConvertMessages_InvalidToolInput(t *testing.T) {
	p := newTestBedrockProvider()
	messages := []models.Message{
		{Role: models.RoleAssistant, Content: []models.ContentPart{
			models.ToolUsePart("tu_1", "search", []byte("not json")),
		}},
	}
	if _, err := p.convertMessages(messages); err == nil {
		t.Fatal("expected error for invalid tool_use input")
	}
}

func TestBedrockProvider_ConvertTools(t *testing.T) {
	p := newTestBedrockProvider()
	schema, _ := json.Marshal(map[string]any{"type": "object"})
	toolConfig, err := p.convertTools([]models.Tool{{Name: "search", Description: "search the web", InputSchema: schema}})
	if err != nil {
		t.Fatalf("convertTools: %v", err)
	}
	if len(toolConfig.Tools) != 1 {
		t.Fatalf("expected one tool, got %d", len(toolConfig.Tools))
	}
}

func TestBedrockProvider_ClassifyError(t *testing.T) {
	p := newTestBedrockProvider()
	wrapped := p.classifyError(&types.ThrottlingException{Message: nil}, "claude", "int-1")

	var llmErr *llmerr.Error
	if !errors.As(wrapped, &llmErr) {
		t.Fatalf("expected *llmerr.Error, got %T", wrapped)
	}
	if llmErr.Kind != llmerr.KindLLMRateLimit {
		t.Errorf("Kind = %q, want %q", llmErr.Kind, llmerr.KindLLMRateLimit)
	}
}

func TestBedrockProvider_ClassifyError_Validation(t *testing.T) {
	p := newTestBedrockProvider()
	wrapped := p.classifyError(&types.ValidationException{Message: nil}, "claude", "int-1")

	var llmErr *llmerr.Error
	if !errors.As(wrapped, &llmErr) {
		t.Fatalf("expected *llmerr.Error, got %T", wrapped)
	}
	if llmErr.Kind != llmerr.KindLLMBadRequest {
		t.Errorf("Kind = %q, want %q", llmErr.Kind, llmerr.KindLLMBadRequest)
	}
}
