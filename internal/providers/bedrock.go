package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

var bedrockStopReasons = map[string]models.StopReason{
	"end_turn":       models.StopEndTurn,
	"stop_sequence":  models.StopStopSequence,
	"max_tokens":     models.StopMaxTokens,
	"tool_use":       models.StopToolUse,
	"content_filtered": models.StopContentFilter,
}

// BedrockConfig holds the settings needed to construct a BedrockProvider.
// Credentials are resolved through the standard AWS SDK credential chain;
// this struct only carries what the adapter cannot infer from the
// environment.
type BedrockConfig struct {
	Region               string
	DefaultModel         string
	DefaultMaxTokens     int
	RequestTimeout       time.Duration
	Logger               *slog.Logger
}

// BedrockProvider implements Provider against AWS Bedrock's unified
// Converse API, which normalizes tool use and multimodal content across
// the model families Bedrock hosts (Anthropic, Amazon Titan/Nova, Meta,
// and others) behind one request shape.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxTokens    int
	timeout      time.Duration
	log          *slog.Logger
}

// NewBedrockProvider constructs a BedrockProvider from cfg, loading AWS
// credentials via the default SDK chain (environment, shared config,
// container/instance role).
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("bedrock: region is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	maxTokens := cfg.DefaultMaxTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		timeout:      timeout,
		log:          log,
	}, nil
}

// Name identifies this adapter.
func (p *BedrockProvider) Name() string { return "bedrock" }

// SpeakWith sends req to Bedrock via Converse and returns a normalized
// response.
func (p *BedrockProvider) SpeakWith(ctx context.Context, req MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	input, err := p.buildInput(req)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "bedrock: failed to convert messages").
			WithContext(p.Name(), req.Model, interactionID)
	}

	resp, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, p.classifyError(err, req.Model, interactionID)
	}

	return p.normalize(resp, p.modelOrDefault(req.Model)), nil
}

// AsProviderMessageRequest exposes the vendor-shaped request body.
func (p *BedrockProvider) AsProviderMessageRequest(req MessageRequest) (any, error) {
	return p.buildInput(req)
}

func (p *BedrockProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *BedrockProvider) buildInput(req MessageRequest) (*bedrockruntime.ConverseInput, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := int32(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.modelOrDefault(req.Model)),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(maxTokens),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		input.InferenceConfig.Temperature = aws.Float32(temp)
	}
	if len(req.Tools) > 0 {
		toolConfig, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = toolConfig
	}
	return input, nil
}

// convertMessages translates the internal content-part sequence into
// Bedrock's Message/ContentBlock union.
func (p *BedrockProvider) convertMessages(messages []models.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}

		var content []types.ContentBlock
		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentText:
				content = append(content, &types.ContentBlockMemberText{Value: part.Text})
			case models.ContentImage:
				content = append(content, &types.ContentBlockMemberImage{Value: types.ImageBlock{
					Format: imageFormatFromMediaType(part.ImageMediaType),
					Source: &types.ImageSourceMemberBytes{Value: []byte(part.ImageData)},
				}})
			case models.ContentToolUse:
				var input document.Interface
				if len(part.ToolInput) > 0 {
					var decoded map[string]any
					if err := json.Unmarshal(part.ToolInput, &decoded); err != nil {
						return nil, fmt.Errorf("invalid tool_use input for %s: %w", part.ToolName, err)
					}
					input = document.NewLazyDocument(decoded)
				}
				content = append(content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(part.ToolUseID),
					Name:      aws.String(part.ToolName),
					Input:     input,
				}})
			case models.ContentToolResult:
				toolContent := []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: models.ConcatText(part.ToolResultParts)},
				}
				status := types.ToolResultStatusSuccess
				if part.IsError {
					status = types.ToolResultStatusError
				}
				content = append(content, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
					ToolUseId: aws.String(part.ToolResultForID),
					Content:   toolContent,
					Status:    status,
				}})
			}
		}

		if len(content) > 0 {
			result = append(result, types.Message{Role: role, Content: content})
		}
	}

	return result, nil
}

func (p *BedrockProvider) convertTools(tools []models.Tool) (*types.ToolConfiguration, error) {
	toolSpecs := make([]types.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		toolSpecs = append(toolSpecs, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(tool.Name),
			Description: aws.String(tool.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	return &types.ToolConfiguration{Tools: toolSpecs}, nil
}

func (p *BedrockProvider) normalize(resp *bedrockruntime.ConverseOutput, model string) *models.ProviderResponse {
	var parts []models.ContentPart
	var toolUses []models.ToolUse

	if msgOutput, ok := resp.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			switch v := block.(type) {
			case *types.ContentBlockMemberText:
				parts = append(parts, models.TextPart(v.Value))
			case *types.ContentBlockMemberToolUse:
				var input json.RawMessage
				if v.Value.Input != nil {
					input, _ = v.Value.Input.MarshalSmithyDocument()
				}
				id := aws.ToString(v.Value.ToolUseId)
				name := aws.ToString(v.Value.Name)
				parts = append(parts, models.ToolUsePart(id, name, input))
				toolUses = append(toolUses, models.ToolUse{ToolUseID: id, ToolName: name, ToolInput: input})
			}
		}
	}

	rawStop := string(resp.StopReason)
	out := &models.ProviderResponse{
		Model:         model,
		AnswerContent: parts,
		IsTool:        len(toolUses) > 0,
		ToolUses:      toolUses,
		ProviderName:  p.Name(),
		RawStopReason: rawStop,
		MessageStop: models.MessageStop{
			StopReason: NormalizeStopReason(bedrockStopReasons, rawStop),
		},
	}
	if resp.Usage != nil {
		out.Usage = models.NewTokenUsage(
			int(aws.ToInt32(resp.Usage.InputTokens)),
			int(aws.ToInt32(resp.Usage.OutputTokens)),
			0, 0, 0,
		)
	}
	if out.MessageStop.StopReason == models.StopUnknown {
		p.log.Warn("bedrock: unrecognized stop reason", "raw", rawStop)
	}
	return out
}

// classifyError maps a Bedrock API error into a tagged *llmerr.Error.
func (p *BedrockProvider) classifyError(err error, model, interactionID string) error {
	var throttling *types.ThrottlingException
	if errors.As(err, &throttling) {
		return llmerr.Wrap(llmerr.KindLLMRateLimit, err, "bedrock: throttled").WithContext(p.Name(), model, interactionID)
	}
	var validation *types.ValidationException
	if errors.As(err, &validation) {
		return llmerr.Wrap(llmerr.KindLLMBadRequest, err, "bedrock: invalid request").WithContext(p.Name(), model, interactionID)
	}
	var serviceUnavailable *types.ServiceUnavailableException
	if errors.As(err, &serviceUnavailable) {
		return llmerr.Wrap(llmerr.KindLLMServer, err, "bedrock: service unavailable").WithContext(p.Name(), model, interactionID)
	}
	var internalServer *types.InternalServerException
	if errors.As(err, &internalServer) {
		return llmerr.Wrap(llmerr.KindLLMServer, err, "bedrock: internal server error").WithContext(p.Name(), model, interactionID)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return llmerr.Wrap(llmerr.KindLLMProvider, err, "bedrock: "+apiErr.ErrorCode()).WithContext(p.Name(), model, interactionID)
	}
	return llmerr.Wrap(llmerr.KindLLMProvider, err, "bedrock: request failed").WithContext(p.Name(), model, interactionID)
}

func imageFormatFromMediaType(mediaType string) types.ImageFormat {
	switch mediaType {
	case "image/png":
		return types.ImageFormatPng
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatJpeg
	}
}
