package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/platform/config"
)

// anthropicProvider implements the Provider interface for Anthropic Claude.
type anthropicProvider struct {
	cfg         *config.Config
	client      anthropic.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg *config.Config, logger *zerolog.Logger) *anthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	return &anthropicProvider{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPS)), rateLimiterBurst),
	}
}

// Name returns the provider identifier.
func (p *anthropicProvider) Name() ProviderName {
	return ProviderAnthropic
}

// IsAvailable returns true if the provider is configured.
func (p *anthropicProvider) IsAvailable() bool {
	return p.cfg.AnthropicAPIKey != ""
}

// Priority returns the provider priority.
func (p *anthropicProvider) Priority() int {
	return PrioritySecondFallback
}

// DefaultModel returns the configured Claude model.
func (p *anthropicProvider) DefaultModel() string {
	if p.cfg.AnthropicModel != "" {
		return p.cfg.AnthropicModel
	}

	return defaultAnthropicModel
}

// resolveModel keeps Claude model names and maps anything else to the default.
func (p *anthropicProvider) resolveModel(model string) string {
	if strings.HasPrefix(model, modelPrefixClaude) {
		return model
	}

	return p.DefaultModel()
}

// Generate implements Provider interface.
func (p *anthropicProvider) Generate(ctx context.Context, req GenerationRequest, model string) ([]byte, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errRateLimiter, err)
	}

	system, user, err := buildPrompts(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.resolveModel(model)),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(system + "\n\n" + user)),
		},
	})
	if err != nil {
		return nil, anthropicUpstreamError(err)
	}

	text := strings.TrimSpace(extractTextFromResponse(resp))
	if text == "" {
		return nil, apperrors.MalformedResponse(string(ProviderAnthropic), errors.New(errEmptyResponseText))
	}

	return []byte(extractJSON(text)), nil
}

func extractTextFromResponse(resp *anthropic.Message) string {
	var result strings.Builder

	for _, block := range resp.Content {
		if block.Type == contentTypeText {
			result.WriteString(block.Text)
		}
	}

	return result.String()
}

func anthropicUpstreamError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apperrors.NewUpstreamError(string(ProviderAnthropic), apiErr.StatusCode, truncate(apiErr.Error(), maxUpstreamMessageLen))
	}

	return &apperrors.UpstreamError{
		Provider:  string(ProviderAnthropic),
		Message:   truncate(err.Error(), maxUpstreamMessageLen),
		Retryable: true,
	}
}
