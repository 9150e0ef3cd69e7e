package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

// anthropicStopReasons maps Anthropic's stop_reason values to the closed
// StopReason enum (spec §4.2).
var anthropicStopReasons = map[string]models.StopReason{
	"end_turn":      models.StopEndTurn,
	"stop_sequence": models.StopStopSequence,
	"max_tokens":    models.StopMaxTokens,
	"tool_use":      models.StopToolUse,
	"refusal":       models.StopRefusal,
}

// AnthropicConfig holds the settings needed to construct an
// AnthropicProvider. Only APIKey is required; the rest default sensibly.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	RequestTimeout time.Duration
	Logger       *slog.Logger
}

// AnthropicProvider implements Provider against Anthropic's Messages API.
// It is the non-streaming speakWith contract (spec §4.2): one request, one
// normalized ProviderResponse, no partial-chunk delivery.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	timeout      time.Duration
	log          *slog.Logger
}

// NewAnthropicProvider constructs an AnthropicProvider from cfg.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
		timeout:      timeout,
		log:          log,
	}, nil
}

// Name identifies this adapter.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// SpeakWith sends req to Anthropic and returns a normalized response.
func (p *AnthropicProvider) SpeakWith(ctx context.Context, req MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params, err := p.buildParams(req)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "anthropic: failed to build request").
			WithContext(p.Name(), req.Model, interactionID)
	}

	msg, err := p.client.Messages.New(ctx, *params)
	if err != nil {
		return nil, p.classifyError(err, req.Model, interactionID)
	}

	return p.normalize(msg), nil
}

// AsProviderMessageRequest exposes the vendor-shaped body for logging and
// the authoritative proxy's parity requirement.
func (p *AnthropicProvider) AsProviderMessageRequest(req MessageRequest) (any, error) {
	return p.buildParams(req)
}

func (p *AnthropicProvider) buildParams(req MessageRequest) (*anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelOrDefault(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	if req.ExtendedThinking.Enabled {
		budget := int64(req.ExtendedThinking.BudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	} else if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	return &params, nil
}

func (p *AnthropicProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// convertMessages translates the internal message log into Anthropic's
// MessageParam shape: tool_use/tool_result parts become Anthropic content
// blocks, user/assistant roles map directly.
func (p *AnthropicProvider) convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentText:
				content = append(content, anthropic.NewTextBlock(part.Text))
			case models.ContentImage:
				content = append(content, anthropic.NewImageBlockBase64(part.ImageMediaType, part.ImageData))
			case models.ContentThinking:
				content = append(content, anthropic.NewThinkingBlock(part.ThinkingSignature, part.ThinkingText))
			case models.ContentRedactedThinking:
				content = append(content, anthropic.NewRedactedThinkingBlock(part.RedactedData))
			case models.ContentToolUse:
				var input map[string]any
				if len(part.ToolInput) > 0 {
					if err := json.Unmarshal(part.ToolInput, &input); err != nil {
						return nil, fmt.Errorf("invalid tool_use input for %s: %w", part.ToolName, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(part.ToolUseID, input, part.ToolName))
			case models.ContentToolResult:
				content = append(content, anthropic.NewToolResultBlock(part.ToolResultForID, models.ConcatText(part.ToolResultParts), part.IsError))
			}
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

// convertTools translates registered tools' JSON schemas into Anthropic's
// tool-schema shape, dropping keys the vendor does not understand.
func (p *AnthropicProvider) convertTools(tools []models.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for tool %s", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

// normalize converts an Anthropic Message into the internal ProviderResponse
// shape (spec §4.2 item 3), populating IsTool/ToolUses from any
// ToolUseBlock so the transport core's tool-input validation (spec §4.3)
// has something to validate, the same as every other adapter.
func (p *AnthropicProvider) normalize(msg *anthropic.Message) *models.ProviderResponse {
	parts := make([]models.ContentPart, 0, len(msg.Content))
	var toolUses []models.ToolUse
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, models.TextPart(variant.Text))
		case anthropic.ThinkingBlock:
			parts = append(parts, models.ThinkingPart(variant.Thinking, variant.Signature))
		case anthropic.RedactedThinkingBlock:
			parts = append(parts, models.ContentPart{Type: models.ContentRedactedThinking, RedactedData: variant.Data})
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			parts = append(parts, models.ToolUsePart(variant.ID, variant.Name, input))
			toolUses = append(toolUses, models.ToolUse{
				ToolUseID: variant.ID,
				ToolName:  variant.Name,
				ToolInput: input,
			})
		}
	}

	rawStop := string(msg.StopReason)
	resp := &models.ProviderResponse{
		ID:            msg.ID,
		Model:         string(msg.Model),
		AnswerContent: parts,
		IsTool:        len(toolUses) > 0,
		ToolUses:      toolUses,
		ProviderName:  p.Name(),
		RawStopReason: rawStop,
		MessageStop: models.MessageStop{
			StopReason:   NormalizeStopReason(anthropicStopReasons, rawStop),
			StopSequence: msg.StopSequence,
		},
		Usage: models.NewTokenUsage(
			int(msg.Usage.InputTokens),
			int(msg.Usage.OutputTokens),
			int(msg.Usage.CacheCreationInputTokens),
			int(msg.Usage.CacheReadInputTokens),
			0,
		),
	}
	if resp.MessageStop.StopReason == models.StopUnknown {
		p.log.Warn("anthropic: unrecognized stop reason", "raw", rawStop)
	}
	return resp
}

// classifyError maps an Anthropic SDK error into a tagged *llmerr.Error
// per the transport retry policy (spec §4.3).
func (p *AnthropicProvider) classifyError(err error, model, interactionID string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmerr.FromHTTPStatus(apiErr.StatusCode, apiErr.Error()).WithContext(p.Name(), model, interactionID)
	}
	return llmerr.Wrap(llmerr.KindLLMProvider, err, "anthropic: request failed").WithContext(p.Name(), model, interactionID)
}
