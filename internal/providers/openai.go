package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

var openAIStopReasons = map[string]models.StopReason{
	"stop":           models.StopEndTurn,
	"length":         models.StopMaxTokens,
	"tool_calls":     models.StopToolCalls,
	"function_call":  models.StopToolCalls,
	"content_filter": models.StopContentFilter,
}

// OpenAIConfig holds the settings needed to construct an OpenAIProvider.
// The same adapter serves every OpenAI-shaped vendor (Azure OpenAI, Groq,
// OpenRouter) by pointing BaseURL at the vendor's endpoint — there is no
// separate Go type per vendor, only a config preset (spec domain stack).
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	RequestTimeout time.Duration
	Logger       *slog.Logger
}

// OpenAIProvider implements Provider against the OpenAI Chat Completions
// API shape.
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
	timeout      time.Duration
	log          *slog.Logger
}

// NewOpenAIProvider constructs an OpenAIProvider from cfg. name overrides
// the adapter's Name() — used so an Azure/Groq/OpenRouter preset logs and
// caches under its own identity rather than under "openai".
func NewOpenAIProvider(name string, cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", name)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         name,
		defaultModel: defaultModel,
		timeout:      timeout,
		log:          log,
	}, nil
}

// Name identifies this adapter (e.g. "openai", "azure", "groq", "openrouter").
func (p *OpenAIProvider) Name() string { return p.name }

// SpeakWith sends req to the configured endpoint and returns a normalized
// response.
func (p *OpenAIProvider) SpeakWith(ctx context.Context, req MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	chatReq, err := p.buildRequest(req)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, p.name+": failed to build request").
			WithContext(p.Name(), req.Model, interactionID)
	}

	resp, err := p.client.CreateChatCompletion(ctx, *chatReq)
	if err != nil {
		return nil, p.classifyError(err, req.Model, interactionID)
	}
	if len(resp.Choices) == 0 {
		return nil, llmerr.New(llmerr.KindLLMProtocol, p.name+": response had no choices").
			WithContext(p.Name(), req.Model, interactionID)
	}

	return p.normalize(&resp), nil
}

// AsProviderMessageRequest exposes the vendor-shaped request body.
func (p *OpenAIProvider) AsProviderMessageRequest(req MessageRequest) (any, error) {
	return p.buildRequest(req)
}

func (p *OpenAIProvider) buildRequest(req MessageRequest) (*openai.ChatCompletionRequest, error) {
	messages, err := p.convertMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.modelOrDefault(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = 16384
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}
	return &chatReq, nil
}

func (p *OpenAIProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// convertMessages flattens the internal content-part sequence into
// OpenAI's flat-content chat message shape: tool_use becomes an assistant
// tool_call, tool_result becomes a role="tool" message keyed by call id.
func (p *OpenAIProvider) convertMessages(messages []models.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		var text string
		var toolCalls []openai.ToolCall
		var imageParts []openai.ChatMessagePart

		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentText:
				text += part.Text
			case models.ContentImage:
				imageParts = append(imageParts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", part.ImageMediaType, part.ImageData),
						Detail: openai.ImageURLDetailAuto,
					},
				})
			case models.ContentToolUse:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   part.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      part.ToolName,
						Arguments: string(part.ToolInput),
					},
				})
			case models.ContentToolResult:
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    models.ConcatText(part.ToolResultParts),
					ToolCallID: part.ToolResultForID,
				})
			}
		}

		if len(toolCalls) == 0 && len(imageParts) == 0 && text == "" {
			continue
		}

		msgOut := openai.ChatCompletionMessage{Role: role, ToolCalls: toolCalls}
		if len(imageParts) > 0 {
			if text != "" {
				imageParts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}, imageParts...)
			}
			msgOut.MultiContent = imageParts
		} else {
			msgOut.Content = text
		}
		if msgOut.Content != "" || len(msgOut.MultiContent) > 0 || len(msgOut.ToolCalls) > 0 {
			result = append(result, msgOut)
		}
	}

	return result, nil
}

// convertTools translates registered tools into OpenAI function-calling
// tool definitions.
func (p *OpenAIProvider) convertTools(tools []models.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) normalize(resp *openai.ChatCompletionResponse) *models.ProviderResponse {
	choice := resp.Choices[0]
	var parts []models.ContentPart
	var toolUses []models.ToolUse

	if choice.Message.Content != "" {
		parts = append(parts, models.TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		part := models.ToolUsePart(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
		parts = append(parts, part)
		toolUses = append(toolUses, models.ToolUse{
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: []byte(tc.Function.Arguments),
		})
	}

	rawStop := string(choice.FinishReason)
	out := &models.ProviderResponse{
		ID:            resp.ID,
		Model:         resp.Model,
		AnswerContent: parts,
		IsTool:        len(toolUses) > 0,
		ToolUses:      toolUses,
		ProviderName:  p.Name(),
		RawStopReason: rawStop,
		MessageStop: models.MessageStop{
			StopReason: NormalizeStopReason(openAIStopReasons, rawStop),
		},
		Usage: models.NewTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, 0, 0, 0),
	}
	if out.MessageStop.StopReason == models.StopUnknown {
		p.log.Warn(p.name+": unrecognized stop reason", "raw", rawStop)
	}
	return out
}

// classifyError maps a go-openai error into a tagged *llmerr.Error.
func (p *OpenAIProvider) classifyError(err error, model, interactionID string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llmerr.FromHTTPStatus(apiErr.HTTPStatusCode, apiErr.Message).WithContext(p.Name(), model, interactionID)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llmerr.FromHTTPStatus(reqErr.HTTPStatusCode, reqErr.Error()).WithContext(p.Name(), model, interactionID)
	}
	return llmerr.Wrap(llmerr.KindLLMProvider, err, p.name+": request failed").WithContext(p.Name(), model, interactionID)
}
