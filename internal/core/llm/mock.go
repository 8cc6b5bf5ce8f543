package llm

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/lueurxax/insights-engine/internal/core/domain"
)

const mockModel = "mock"

// mockProvider returns deterministic, schema-valid output for local development.
type mockProvider struct{}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *mockProvider {
	return &mockProvider{}
}

// Name returns the provider identifier.
func (p *mockProvider) Name() ProviderName {
	return ProviderMock
}

// IsAvailable returns true as mock is always available.
func (p *mockProvider) IsAvailable() bool {
	return true
}

// Priority returns the provider priority.
func (p *mockProvider) Priority() int {
	return PriorityMock
}

// DefaultModel returns the mock model name.
func (p *mockProvider) DefaultModel() string {
	return mockModel
}

// Generate implements Provider interface. Even-indexed factors pass.
func (p *mockProvider) Generate(_ context.Context, req GenerationRequest, _ string) ([]byte, error) {
	name := req.Input.Subject.Name

	var out interface{}

	switch req.OutputKind {
	case domain.OutputKindCompetition:
		out = domain.CompetitionOutput{
			Summary: fmt.Sprintf("%s competes in a crowded market.", name),
			CompetitionAnalysisArray: []domain.CompetitorOutput{
				{CompanyName: "Competitor One", CompanySymbol: "CMP1", DetailedComparison: "Larger distribution network."},
				{CompanyName: "Competitor Two", DetailedComparison: "Private, faster product cycle."},
			},
		}
	case domain.OutputKindInvestor:
		out = domain.InvestorOutput{
			Summary:          fmt.Sprintf("%s view on %s.", req.InvestorKey.DisplayName(), name),
			DetailedAnalysis: "Mock analysis derived from prerequisite reports.",
			Verdict:          "Hold",
		}
	default:
		factors := make([]domain.FactorOutput, 0, len(req.Input.Factors))

		for i, f := range req.Input.Factors {
			result := domain.VerdictFail
			if i%2 == 0 {
				result = domain.VerdictPass
			}

			factors = append(factors, domain.FactorOutput{
				FactorAnalysisKey:   f.Key,
				OneLineExplanation:  fmt.Sprintf("%s evaluated for %s.", f.Title, name),
				DetailedExplanation: f.Description,
				Result:              string(result),
			})
		}

		out = domain.CategoryOutput{
			OverallSummary:         fmt.Sprintf("%s assessment of %s.", req.Category.Title(), name),
			OverallAnalysisDetails: "Mock details.",
			Factors:                factors,
		}
	}

	return json.Marshal(out)
}
