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

// FunctionDispatcher invokes a named serverless function with a JSON body
// and returns its raw JSON response. It is the second of the two transports
// the authoritative proxy adapter must support, alongside direct HTTPS.
type FunctionDispatcher interface {
	Invoke(ctx context.Context, functionName string, body []byte) ([]byte, error)
}

// AuthoritativeTransport selects how AuthoritativeProvider reaches the
// hosted proxy.
type AuthoritativeTransport string

const (
	// TransportDirectHTTPS posts straight to BaseURL with a bearer token.
	TransportDirectHTTPS AuthoritativeTransport = "direct"
	// TransportServerlessDispatch routes through the auth backend's
	// function dispatcher instead of a direct HTTP call.
	TransportServerlessDispatch AuthoritativeTransport = "dispatch"
)

// AuthoritativeConfig holds the settings needed to construct an
// AuthoritativeProvider.
type AuthoritativeConfig struct {
	BaseURL        string
	FunctionName   string
	Transport      AuthoritativeTransport
	Dispatcher     FunctionDispatcher
	AccessToken    string
	DefaultModel   string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// AuthoritativeProvider implements Provider against the hosted auth
// backend's proxy, which fronts whichever vendor a user's plan entitles
// them to without exposing per-vendor API keys to the client. Both
// transports send an identical JSON body; only the delivery mechanism
// differs (spec §4.2).
type AuthoritativeProvider struct {
	client       *http.Client
	baseURL      string
	functionName string
	transport    AuthoritativeTransport
	dispatcher   FunctionDispatcher
	accessToken  string
	defaultModel string
	log          *slog.Logger
}

// NewAuthoritativeProvider constructs an AuthoritativeProvider from cfg.
func NewAuthoritativeProvider(cfg AuthoritativeConfig) (*AuthoritativeProvider, error) {
	transport := cfg.Transport
	if transport == "" {
		transport = TransportDirectHTTPS
	}
	if transport == TransportServerlessDispatch && cfg.Dispatcher == nil {
		return nil, fmt.Errorf("authoritative: dispatch transport requires a FunctionDispatcher")
	}
	if transport == TransportDirectHTTPS && cfg.BaseURL == "" {
		return nil, fmt.Errorf("authoritative: direct transport requires a BaseURL")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &AuthoritativeProvider{
		client:       &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		functionName: cfg.FunctionName,
		transport:    transport,
		dispatcher:   cfg.Dispatcher,
		accessToken:  cfg.AccessToken,
		defaultModel: cfg.DefaultModel,
		log:          log,
	}, nil
}

// Name identifies this adapter.
func (p *AuthoritativeProvider) Name() string { return "authoritative" }

// SpeakWith sends req through the configured transport and returns a
// normalized response.
func (p *AuthoritativeProvider) SpeakWith(ctx context.Context, req MessageRequest, interactionID string) (*models.ProviderResponse, error) {
	body, err := p.buildBody(req)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "authoritative: failed to build request").
			WithContext(p.Name(), req.Model, interactionID)
	}

	var respBody []byte
	switch p.transport {
	case TransportServerlessDispatch:
		respBody, err = p.dispatcher.Invoke(ctx, p.functionName, body)
		if err != nil {
			return nil, llmerr.Wrap(llmerr.KindLLMServer, err, "authoritative: dispatch failed").
				WithContext(p.Name(), req.Model, interactionID)
		}
	default:
		respBody, err = p.postDirect(ctx, body, req.Model, interactionID)
		if err != nil {
			return nil, err
		}
	}

	var parsed authoritativeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProtocol, err, "authoritative: failed to decode response").
			WithContext(p.Name(), req.Model, interactionID)
	}

	return p.normalize(&parsed, p.modelOrDefault(req.Model)), nil
}

func (p *AuthoritativeProvider) postDirect(ctx context.Context, body []byte, model, interactionID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProvider, err, "authoritative: failed to build http request").
			WithContext(p.Name(), model, interactionID)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.accessToken)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMServer, err, "authoritative: request failed").
			WithContext(p.Name(), model, interactionID)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, llmerr.Wrap(llmerr.KindLLMProvider, err, "authoritative: failed to read response").
			WithContext(p.Name(), model, interactionID)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		httpErr := llmerr.FromHTTPStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode == http.StatusTooManyRequests {
			httpErr = httpErr.WithRateLimit(parseRateLimitBody(respBody))
		}
		return nil, httpErr.WithContext(p.Name(), model, interactionID)
	}
	return respBody, nil
}

// parseRateLimitBody best-effort decodes a 429 response body as an
// authoritativeResponse to recover the rate-limit snapshot the proxy
// reports alongside the error, so transport's reset-date backoff (spec
// §4.3/S3) has something to wait on. A body that fails to parse (e.g. a
// plain-text error page from an intermediary) yields a zero-value,
// Known=false snapshot rather than an error of its own.
func parseRateLimitBody(body []byte) models.RateLimit {
	var parsed authoritativeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.RateLimit{}
	}
	return toModelRateLimit(parsed.RateLimit)
}

// AsProviderMessageRequest exposes the vendor-shaped request body, which is
// identical across both transports.
func (p *AuthoritativeProvider) AsProviderMessageRequest(req MessageRequest) (any, error) {
	return p.buildBody(req)
}

func (p *AuthoritativeProvider) modelOrDefault(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// buildBody constructs the normalized request shape both transports send,
// per spec §6's "Provider HTTPS request (authoritative proxy, direct mode)".
func (p *AuthoritativeProvider) buildBody(req MessageRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	payload := authoritativeRequest{
		Messages:    req.Messages,
		System:      req.System,
		Tools:       req.Tools,
		Model:       p.modelOrDefault(req.Model),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		ExtendedThinking: authoritativeThinking{
			Enabled:      req.ExtendedThinking.Enabled,
			BudgetTokens: req.ExtendedThinking.BudgetTokens,
		},
		UsePromptCaching: true,
	}
	return json.Marshal(payload)
}

func (p *AuthoritativeProvider) normalize(resp *authoritativeResponse, model string) *models.ProviderResponse {
	out := &models.ProviderResponse{
		ID:            resp.ID,
		Model:         resp.Model,
		AnswerContent: resp.AnswerContent,
		Answer:        resp.Answer,
		IsTool:        resp.IsTool,
		ProviderName:  p.Name(),
		RawStopReason: resp.MessageStop.StopReason,
		FromCache:     resp.FromCache,
		Usage: models.NewTokenUsage(
			resp.Usage.InputTokens,
			resp.Usage.OutputTokens,
			resp.Usage.CacheCreationInputTokens,
			resp.Usage.CacheReadInputTokens,
			resp.Usage.ThoughtTokens,
		),
		RateLimit: toModelRateLimit(resp.RateLimit),
	}
	for _, tu := range resp.ToolUses {
		out.ToolUses = append(out.ToolUses, models.ToolUse{
			ToolUseID: tu.ToolUseID,
			ToolName:  tu.ToolName,
			ToolInput: tu.ToolInput,
		})
	}
	out.MessageStop.StopReason = models.StopReason(resp.MessageStop.StopReason)
	if out.MessageStop.StopReason == "" {
		out.MessageStop.StopReason = models.StopUnknown
	}
	return out
}

func ratelimitField(r *authoritativeRateLimit, get func(*authoritativeRateLimit) int) int {
	if r == nil {
		return 0
	}
	return get(r)
}

// toModelRateLimit translates the proxy's rateLimit object into the
// internal RateLimit snapshot, parsing the RFC3339 reset-date strings so
// transport's 429 backoff (spec §4.3/S3 "sleep until
// max(rateLimit.requestsResetDate-now, currentBackoff)") has a real
// deadline to wait on. An unparsable or absent date leaves the
// corresponding ResetDate at its zero value.
func toModelRateLimit(r *authoritativeRateLimit) models.RateLimit {
	out := models.RateLimit{
		Known:             r != nil,
		RequestsRemaining: ratelimitField(r, func(r *authoritativeRateLimit) int { return r.RequestsRemaining }),
		RequestsLimit:     ratelimitField(r, func(r *authoritativeRateLimit) int { return r.RequestsLimit }),
		TokensRemaining:   ratelimitField(r, func(r *authoritativeRateLimit) int { return r.TokensRemaining }),
		TokensLimit:       ratelimitField(r, func(r *authoritativeRateLimit) int { return r.TokensLimit }),
	}
	if r == nil {
		return out
	}
	if t, err := time.Parse(time.RFC3339, r.RequestsResetDate); err == nil {
		out.RequestsResetDate = t
	}
	if t, err := time.Parse(time.RFC3339, r.TokensResetDate); err == nil {
		out.TokensResetDate = t
	}
	return out
}

type authoritativeRequest struct {
	Messages         []models.Message       `json:"messages"`
	System           string                 `json:"system,omitempty"`
	Tools            []models.Tool          `json:"tools,omitempty"`
	Model            string                 `json:"model"`
	MaxTokens        int                    `json:"maxTokens"`
	Temperature      float64                `json:"temperature"`
	ExtendedThinking authoritativeThinking  `json:"extendedThinking"`
	UsePromptCaching bool                   `json:"usePromptCaching"`
}

type authoritativeThinking struct {
	Enabled      bool `json:"enabled"`
	BudgetTokens int  `json:"budgetTokens,omitempty"`
}

type authoritativeResponse struct {
	ID            string                   `json:"id"`
	Model         string                   `json:"model"`
	FromCache     bool                     `json:"fromCache"`
	Answer        string                   `json:"answer"`
	AnswerContent []models.ContentPart     `json:"answerContent"`
	IsTool        bool                     `json:"isTool"`
	ToolUses      []authoritativeToolUse   `json:"toolUses"`
	MessageStop   authoritativeMessageStop `json:"messageStop"`
	Usage         authoritativeUsage       `json:"usage"`
	RateLimit     *authoritativeRateLimit  `json:"rateLimit"`
}

type authoritativeToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	ToolName  string          `json:"toolName"`
	ToolInput json.RawMessage `json:"toolInput"`
}

type authoritativeMessageStop struct {
	StopReason string `json:"stopReason"`
}

type authoritativeUsage struct {
	InputTokens              int `json:"inputTokens"`
	OutputTokens             int `json:"outputTokens"`
	CacheCreationInputTokens int `json:"cacheCreationInputTokens"`
	CacheReadInputTokens     int `json:"cacheReadInputTokens"`
	ThoughtTokens            int `json:"thoughtTokens"`
}

type authoritativeRateLimit struct {
	RequestsRemaining int    `json:"requestsRemaining"`
	RequestsLimit     int    `json:"requestsLimit"`
	RequestsResetDate string `json:"requestsResetDate"`
	TokensRemaining   int    `json:"tokensRemaining"`
	TokensLimit       int    `json:"tokensLimit"`
	TokensResetDate   string `json:"tokensResetDate"`
}
