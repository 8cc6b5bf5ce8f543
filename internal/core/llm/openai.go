package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/platform/config"
)

type openaiProvider struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewOpenAIProvider creates an OpenAI-compatible provider. LLM_BASE_URL points it at a proxy.
func NewOpenAIProvider(cfg *config.Config, logger *zerolog.Logger) *openaiProvider {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	return &openaiProvider{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPS)), rateLimiterBurst),
	}
}

// Name returns the provider identifier.
func (p *openaiProvider) Name() ProviderName {
	return ProviderOpenAI
}

// IsAvailable returns true if the provider is configured.
func (p *openaiProvider) IsAvailable() bool {
	return p.cfg.LLMAPIKey != ""
}

// Priority returns the provider priority.
func (p *openaiProvider) Priority() int {
	return PriorityFallback
}

// DefaultModel returns the configured chat model.
func (p *openaiProvider) DefaultModel() string {
	if p.cfg.LLMModel != "" {
		return p.cfg.LLMModel
	}

	return defaultOpenAIModel
}

// Generate implements Provider interface.
func (p *openaiProvider) Generate(ctx context.Context, req GenerationRequest, model string) ([]byte, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errRateLimiter, err)
	}

	system, user, err := buildPrompts(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: openAIMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, openaiUpstreamError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, apperrors.MalformedResponse(string(ProviderOpenAI), errors.New(errEmptyResponseText))
	}

	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		p.logger.Warn().
			Str(logKeyModel, model).
			Str(logKeyCategory, string(req.Category)).
			Msg("generation output truncated due to max_tokens limit")
	}

	return []byte(extractJSON(resp.Choices[0].Message.Content)), nil
}

// openaiUpstreamError maps client errors to UpstreamError, keeping context errors intact.
func openaiUpstreamError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewUpstreamError(string(ProviderOpenAI), apiErr.HTTPStatusCode, truncate(apiErr.Message, maxUpstreamMessageLen))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperrors.NewUpstreamError(string(ProviderOpenAI), reqErr.HTTPStatusCode, truncate(reqErr.Error(), maxUpstreamMessageLen))
	}

	return &apperrors.UpstreamError{
		Provider:  string(ProviderOpenAI),
		Message:   truncate(err.Error(), maxUpstreamMessageLen),
		Retryable: true,
	}
}
