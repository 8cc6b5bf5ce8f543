package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/platform/config"
)

var (
	errMissingResponseField = errors.New("missing response field")
	errInvalidEnvelope      = errors.New("body is not valid JSON")
	errResponseNotObject    = errors.New("response field is not an object")
)

// webhookPayload is the body POSTed to the generation webhook.
type webhookPayload struct {
	Input       InputDocument `json:"input"`
	ReportType  string        `json:"reportType"`
	InvestorKey string        `json:"investorKey,omitempty"`
	Model       string        `json:"model"`
}

// webhookProvider calls a dedicated report generation service over HTTP.
type webhookProvider struct {
	cfg         *config.Config
	client      *resty.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewWebhookProvider creates a provider for GENERATION_WEBHOOK_URL.
func NewWebhookProvider(cfg *config.Config, logger *zerolog.Logger) *webhookProvider {
	client := resty.New().
		SetTimeout(cfg.GenerationWebhookTTL).
		SetHeader(headerContentType, contentTypeJSON)

	if cfg.GenerationWebhookToken != "" {
		client.SetAuthToken(cfg.GenerationWebhookToken)
	}

	return &webhookProvider{
		cfg:         cfg,
		client:      client,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPS)), webhookRateLimiterBurst),
	}
}

// Name returns the provider identifier.
func (p *webhookProvider) Name() ProviderName {
	return ProviderWebhook
}

// IsAvailable returns true if a webhook URL is configured.
func (p *webhookProvider) IsAvailable() bool {
	return p.cfg.GenerationWebhookURL != ""
}

// Priority returns the provider priority.
func (p *webhookProvider) Priority() int {
	return PriorityPrimary
}

// DefaultModel lets the webhook pick its own model.
func (p *webhookProvider) DefaultModel() string {
	return webhookModelDefault
}

// Generate implements Provider interface.
func (p *webhookProvider) Generate(ctx context.Context, req GenerationRequest, model string) ([]byte, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errRateLimiter, err)
	}

	body, err := json.Marshal(webhookPayload{
		Input:       req.Input,
		ReportType:  string(req.Category),
		InvestorKey: string(req.InvestorKey),
		Model:       model,
	})
	if err != nil {
		return nil, fmt.Errorf(errEncodeInput, err)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(p.cfg.GenerationWebhookURL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, &apperrors.UpstreamError{
			Provider:  string(ProviderWebhook),
			Message:   truncate(err.Error(), maxUpstreamMessageLen),
			Retryable: true,
		}
	}

	if resp.IsError() {
		return nil, apperrors.NewUpstreamError(string(ProviderWebhook), resp.StatusCode(), truncate(resp.String(), maxUpstreamMessageLen))
	}

	return parseWebhookEnvelope(resp.Body())
}

// parseWebhookEnvelope extracts the output object from {"response": ...}.
// The field may hold the object itself or a JSON-encoded string of it.
func parseWebhookEnvelope(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperrors.MalformedResponse(string(ProviderWebhook), errInvalidEnvelope)
	}

	field := gjson.GetBytes(body, webhookResponseField)
	if !field.Exists() {
		return nil, apperrors.MalformedResponse(string(ProviderWebhook), errMissingResponseField)
	}

	switch {
	case field.IsObject():
		return []byte(field.Raw), nil
	case field.Type == gjson.String:
		inner := extractJSON(field.Str)
		if !gjson.Valid(inner) || !gjson.Parse(inner).IsObject() {
			return nil, apperrors.MalformedResponse(string(ProviderWebhook), errResponseNotObject)
		}

		return []byte(inner), nil
	default:
		return nil, apperrors.MalformedResponse(string(ProviderWebhook), errResponseNotObject)
	}
}
