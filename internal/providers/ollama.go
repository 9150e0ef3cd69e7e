package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

// OllamaConfig holds the settings needed to construct an OllamaProvider.
type OllamaConfig struct {
	BaseURL        string
	DefaultModel   string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// OllamaProvider implements Provider against a local Ollama-compatible
// host's /api/chat endpoint.
type OllamaProvider struct {
	client       *http.Client
	baseURL      string
	defaultModel string
	log          *slog.Logger
}

// NewOllamaProvider constructs an OllamaProvider from cfg.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &OllamaProvider{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
		log:          log,
	}
}

// Name identifies this adapter.
func (p *OllamaProvider) Name() string { return "ollama" }

// SpeakWith sends req to the configured Ollama host and returns a
// normalized response. Ollama's /api/chat is requested with stream=false
// since SpeakWith is a single non-streaming exchange.
func (p *OllamaProvider) SpeakWith(ctx context.Context, req MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	payload, err := p.buildRequest(req)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "ollama: failed to build request").
			WithContext(p.Name(), req.Model, interactionID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "ollama: failed to marshal request").
			WithContext(p.Name(), req.Model, interactionID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProvider, err, "ollama: failed to build http request").
			WithContext(p.Name(), req.Model, interactionID)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMServer, err, "ollama: request failed").
			WithContext(p.Name(), req.Model, interactionID)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProvider, err, "ollama: failed to read response").
			WithContext(p.Name(), req.Model, interactionID)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, llmerr.FromHTTPStatus(resp.StatusCode, strings.TrimSpace(string(respBody))).
			WithContext(p.Name(), req.Model, interactionID)
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "ollama: failed to decode response").
			WithContext(p.Name(), req.Model, interactionID)
	}

	return p.normalize(&parsed, p.modelOrDefault(req.Model)), nil
}

// AsProviderMessageRequest exposes the vendor-shaped request body.
func (p *OllamaProvider) AsProviderMessageRequest(req MessageRequest) (any, error) {
	return p.buildRequest(req)
}

func (p *OllamaProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *OllamaProvider) buildRequest(req MessageRequest) (*ollamaChatRequest, error) {
	messages, err := p.convertMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	payload := &ollamaChatRequest{
		Model:    p.modelOrDefault(req.Model),
		Stream:   false,
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		payload.Tools = p.convertTools(req.Tools)
	}
	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if len(options) > 0 {
		payload.Options = options
	}
	return payload, nil
}

// convertMessages flattens the internal content-part sequence into
// Ollama's OpenAI-shaped chat message list.
func (p *OllamaProvider) convertMessages(messages []models.Message, system string) ([]ollamaMessage, error) {
	result := make([]ollamaMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, ollamaMessage{Role: "system", Content: system})
	}

	for _, msg := range messages {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "assistant"
		}

		var text string
		var toolCalls []ollamaToolCall

		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentText:
				text += part.Text
			case models.ContentToolUse:
				var args map[string]any
				if len(part.ToolInput) > 0 {
					if err := json.Unmarshal(part.ToolInput, &args); err != nil {
						return nil, fmt.Errorf("invalid tool_use input for %s: %w", part.ToolName, err)
					}
				}
				toolCalls = append(toolCalls, ollamaToolCall{Function: ollamaToolCallFunction{Name: part.ToolName, Arguments: args}})
			case models.ContentToolResult:
				result = append(result, ollamaMessage{Role: "tool", Content: models.ConcatText(part.ToolResultParts)})
			}
		}

		if text == "" && len(toolCalls) == 0 {
			continue
		}
		result = append(result, ollamaMessage{Role: role, Content: text, ToolCalls: toolCalls})
	}

	return result, nil
}

func (p *OllamaProvider) convertTools(tools []models.Tool) []ollamaTool {
	result := make([]ollamaTool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = ollamaTool{Type: "function", Function: ollamaToolFunction{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		}}
	}
	return result
}

func (p *OllamaProvider) normalize(resp *ollamaChatResponse, model string) *models.ProviderResponse {
	var parts []models.ContentPart
	var toolUses []models.ToolUse

	if resp.Message.Content != "" {
		parts = append(parts, models.TextPart(resp.Message.Content))
	}
	for i, tc := range resp.Message.ToolCalls {
		input, _ := json.Marshal(tc.Function.Arguments)
		id := fmt.Sprintf("%s_%d", tc.Function.Name, i)
		parts = append(parts, models.ToolUsePart(id, tc.Function.Name, input))
		toolUses = append(toolUses, models.ToolUse{ToolUseID: id, ToolName: tc.Function.Name, ToolInput: input})
	}

	rawStop := resp.DoneReason
	out := &models.ProviderResponse{
		Model:         model,
		AnswerContent: parts,
		IsTool:        len(toolUses) > 0,
		ToolUses:      toolUses,
		ProviderName:  p.Name(),
		RawStopReason: rawStop,
		MessageStop: models.MessageStop{
			StopReason: p.normalizeStopReason(rawStop, len(toolUses) > 0),
		},
		Usage: models.NewTokenUsage(resp.PromptEvalCount, resp.EvalCount, 0, 0, 0),
	}
	return out
}

func (p *OllamaProvider) normalizeStopReason(raw string, hasToolUse bool) models.StopReason {
	if hasToolUse {
		return models.StopToolUse
	}
	switch raw {
	case "stop", "":
		return models.StopEndTurn
	case "length":
		return models.StopMaxTokens
	default:
		p.log.Warn("ollama: unrecognized stop reason", "raw", raw)
		return models.StopUnknown
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Stream   bool           `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool   `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunction `json:"function"`
}

type ollamaToolCallFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}
