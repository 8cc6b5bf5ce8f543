package llm

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/lueurxax/insights-engine/internal/core/circuit"
	"github.com/lueurxax/insights-engine/internal/core/domain"
	"github.com/lueurxax/insights-engine/internal/platform/config"
)

// SubjectInput is the subject part of the input document.
type SubjectInput struct {
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
}

// IndustryInput is the reference industry attached to the subject.
type IndustryInput struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
}

// FactorInput describes one criterion the service must evaluate.
type FactorInput struct {
	Key         string `json:"factorAnalysisKey"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CompetitorInput is a previously generated competitor row.
type CompetitorInput struct {
	CompanyName        string `json:"companyName"`
	CompanySymbol      string `json:"companySymbol,omitempty"`
	DetailedComparison string `json:"detailedComparison"`
}

// PriorReport is a prerequisite category result passed as context.
type PriorReport struct {
	Category string            `json:"category"`
	Summary  string            `json:"summary"`
	Details  string            `json:"details,omitempty"`
	Factors  []PriorFactor     `json:"factors,omitempty"`
	Entries  []CompetitorInput `json:"competitors,omitempty"`
}

// PriorFactor is a factor verdict from a prerequisite report.
type PriorFactor struct {
	Key         string `json:"factorAnalysisKey"`
	Result      string `json:"result"`
	Explanation string `json:"oneLineExplanation"`
}

// InputDocument is everything the generation service is given for one report.
type InputDocument struct {
	Subject       SubjectInput    `json:"subject"`
	Industry      *IndustryInput  `json:"industry,omitempty"`
	Factors       []FactorInput   `json:"factors,omitempty"`
	Prerequisites []PriorReport   `json:"prerequisites,omitempty"`
	FinancialData json.RawMessage `json:"financialData,omitempty"`
	Investor      string          `json:"investor,omitempty"`
}

// GenerationRequest asks a provider for one structured report.
type GenerationRequest struct {
	Category    domain.Category
	OutputKind  domain.OutputKind
	InvestorKey domain.InvestorKey
	Model       string
	Provider    ProviderName
	Input       InputDocument
}

// Generation is the raw structured output of a provider plus call bookkeeping.
// Attempts is filled on failure too.
type Generation struct {
	Raw      []byte
	Provider ProviderName
	Model    string
	Attempts int
}

// Client produces raw report output for a request.
type Client interface {
	Generate(ctx context.Context, req GenerationRequest) (Generation, error)
}

// New builds a Registry with every provider the config enables.
func New(cfg *config.Config, logger *zerolog.Logger) *Registry {
	registry := NewRegistry(RetryPolicy{
		MaxRetries:      cfg.GenerationMaxRetries,
		InitialInterval: cfg.GenerationRetryInitial,
	}, logger)

	circuitCfg := circuit.Config{
		Threshold:  cfg.LLMCircuitThreshold,
		ResetAfter: cfg.LLMCircuitTimeout,
	}

	if cfg.GenerationWebhookURL != "" {
		registry.Register(NewWebhookProvider(cfg, logger), circuitCfg)
	}

	if cfg.LLMAPIKey != "" {
		registry.Register(NewOpenAIProvider(cfg, logger), circuitCfg)
	}

	if cfg.AnthropicAPIKey != "" {
		registry.Register(NewAnthropicProvider(cfg, logger), circuitCfg)
	}

	// Mock output is persisted like any other, so it is never enabled implicitly.
	if cfg.MockGenerationEnabled {
		if !cfg.IsLocal() {
			logger.Warn().Str("app_env", cfg.AppEnv).Msg("mock generation enabled outside a local environment")
		}

		registry.Register(NewMockProvider(), circuitCfg)
	}

	return registry
}
