package llm

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

// ProviderName identifies a generation provider.
type ProviderName string

// Provider name constants.
const (
	ProviderWebhook   ProviderName = "webhook"
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderMock      ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary        = 100 // Dedicated generation webhook
	PriorityFallback       = 50  // OpenAI
	PrioritySecondFallback = 25  // Anthropic
	PriorityMock           = 0   // Local development only
)

var knownProviders = []ProviderName{ProviderWebhook, ProviderOpenAI, ProviderAnthropic, ProviderMock}

// Provider defines the interface for generation providers.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured and available.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int

	// DefaultModel is used when the request carries no model override.
	DefaultModel() string

	// Generate returns the raw JSON output object for req.
	Generate(ctx context.Context, req GenerationRequest, model string) ([]byte, error)
}

// ParseProviderName validates a provider override. Empty input means "any provider".
func ParseProviderName(s string) (ProviderName, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}

	for _, p := range knownProviders {
		if string(p) == s {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: unknown provider %q", apperrors.ErrValidation, s)
}
