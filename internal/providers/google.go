package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/coredesk/llmcore/internal/llmerr"
	"github.com/coredesk/llmcore/pkg/models"
)

var googleStopReasons = map[string]models.StopReason{
	"STOP":                    models.StopEndTurn,
	"MAX_TOKENS":              models.StopMaxTokens,
	"SAFETY":                  models.StopContentFilter,
	"RECITATION":              models.StopContentFilter,
	"FINISH_REASON_UNSPECIFIED": models.StopUnknown,
}

// GoogleConfig holds the settings needed to construct a GoogleProvider.
type GoogleConfig struct {
	APIKey         string
	DefaultModel   string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// GoogleProvider implements Provider against Google's Gemini generative
// API via google.golang.org/genai.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	timeout      time.Duration
	log          *slog.Logger
}

// NewGoogleProvider constructs a GoogleProvider from cfg.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &GoogleProvider{client: client, defaultModel: defaultModel, timeout: timeout, log: log}, nil
}

// Name identifies this adapter.
func (p *GoogleProvider) Name() string { return "google" }

// SpeakWith sends req to Gemini and returns a normalized response.
func (p *GoogleProvider) SpeakWith(ctx context.Context, req MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	contents, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "google: failed to convert messages").
			WithContext(p.Name(), req.Model, interactionID)
	}
	config := p.buildConfig(req)

	resp, err := p.client.Models.GenerateContent(ctx, p.modelOrDefault(req.Model), contents, config)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProvider, err, "google: request failed").
			WithContext(p.Name(), req.Model, interactionID)
	}
	if len(resp.Candidates) == 0 {
		return nil, llmerr.New(llmerr.KindLLMProtocol, "google: response had no candidates").
			WithContext(p.Name(), req.Model, interactionID)
	}

	return p.normalize(resp, req.Model), nil
}

// AsProviderMessageRequest exposes the vendor-shaped request body.
func (p *GoogleProvider) AsProviderMessageRequest(req MessageRequest) (any, error) {
	contents, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	return struct {
		Model    string
		Contents []*genai.Content
		Config   *genai.GenerateContentConfig
	}{Model: p.modelOrDefault(req.Model), Contents: contents, Config: p.buildConfig(req)}, nil
}

func (p *GoogleProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// convertMessages translates the internal message log into Gemini's
// Content/Part shape: tool_use becomes a FunctionCall part, tool_result
// becomes a FunctionResponse part.
func (p *GoogleProvider) convertMessages(messages []models.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range messages {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}

		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentText:
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			case models.ContentImage:
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: part.ImageMediaType, Data: []byte(part.ImageData)},
				})
			case models.ContentToolUse:
				var args map[string]any
				if len(part.ToolInput) > 0 {
					if err := json.Unmarshal(part.ToolInput, &args); err != nil {
						return nil, fmt.Errorf("invalid tool_use input for %s: %w", part.ToolName, err)
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: part.ToolName, Args: args},
				})
			case models.ContentToolResult:
				var response map[string]any
				text := models.ConcatText(part.ToolResultParts)
				if err := json.Unmarshal([]byte(text), &response); err != nil {
					response = map[string]any{"result": text, "error": part.IsError}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: part.ToolResultForID, Response: response},
				})
			}
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result, nil
}

func (p *GoogleProvider) buildConfig(req MessageRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	config.MaxOutputTokens = int32(maxTokens)
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 {
		config.Tools = p.convertTools(req.Tools)
	}
	return config
}

func (p *GoogleProvider) convertTools(tools []models.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schema *genai.Schema
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = &genai.Schema{Type: genai.TypeObject}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (p *GoogleProvider) normalize(resp *genai.GenerateContentResponse, model string) *models.ProviderResponse {
	candidate := resp.Candidates[0]
	var parts []models.ContentPart
	var toolUses []models.ToolUse

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.Text != "":
				parts = append(parts, models.TextPart(part.Text))
			case part.FunctionCall != nil:
				input, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.Name
				parts = append(parts, models.ToolUsePart(id, part.FunctionCall.Name, input))
				toolUses = append(toolUses, models.ToolUse{ToolUseID: id, ToolName: part.FunctionCall.Name, ToolInput: input})
			}
		}
	}

	rawStop := string(candidate.FinishReason)
	out := &models.ProviderResponse{
		Model:         model,
		AnswerContent: parts,
		IsTool:        len(toolUses) > 0,
		ToolUses:      toolUses,
		ProviderName:  p.Name(),
		RawStopReason: rawStop,
		MessageStop: models.MessageStop{
			StopReason: NormalizeStopReason(googleStopReasons, rawStop),
		},
	}
	if resp.UsageMetadata != nil {
		out.Usage = models.NewTokenUsage(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
			0,
			int(resp.UsageMetadata.CachedContentTokenCount),
			int(resp.UsageMetadata.ThoughtsTokenCount),
		)
	}
	if out.MessageStop.StopReason == models.StopUnknown {
		p.log.Warn("google: unrecognized stop reason", "raw", rawStop)
	}
	return out
}
