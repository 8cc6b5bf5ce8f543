package domain

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

// OutputKind tags the schema of a generation service response.
type OutputKind string

// Output kinds.
const (
	OutputKindCategory    OutputKind = "category"
	OutputKindCompetition OutputKind = "competition"
	OutputKindInvestor    OutputKind = "investor"
)

// FactorOutput is the per-factor part of a category output.
type FactorOutput struct {
	FactorAnalysisKey   string `json:"factorAnalysisKey"`
	OneLineExplanation  string `json:"oneLineExplanation"`
	DetailedExplanation string `json:"detailedExplanation"`
	Result              string `json:"result"`
}

// CategoryOutput is the category-level summary plus per-factor results.
type CategoryOutput struct {
	OverallSummary         string         `json:"overallSummary"`
	OverallAnalysisDetails string         `json:"overallAnalysisDetails"`
	Factors                []FactorOutput `json:"factors"`
}

// CompetitorOutput is one competitor in a competition output.
type CompetitorOutput struct {
	CompanyName        string `json:"companyName"`
	CompanySymbol      string `json:"companySymbol"`
	DetailedComparison string `json:"detailedComparison"`
}

// CompetitionOutput lists the subject's competitors.
type CompetitionOutput struct {
	Summary                  string             `json:"summary"`
	CompetitionAnalysisArray []CompetitorOutput `json:"competitionAnalysisArray"`
}

// InvestorOutput is the investor-style summary and detailed analysis.
type InvestorOutput struct {
	Summary          string `json:"summary"`
	DetailedAnalysis string `json:"detailedAnalysis"`
	Verdict          string `json:"verdict"`
}

// Output is a tagged variant: exactly one of the payload pointers matching Kind is set.
type Output struct {
	Kind        OutputKind
	Category    *CategoryOutput
	Competition *CompetitionOutput
	Investor    *InvestorOutput
}

// DecodeOutput parses raw into the schema selected by kind and validates it.
func DecodeOutput(kind OutputKind, raw []byte) (Output, error) {
	out := Output{Kind: kind}

	var target interface{}

	switch kind {
	case OutputKindCategory:
		out.Category = &CategoryOutput{}
		target = out.Category
	case OutputKindCompetition:
		out.Competition = &CompetitionOutput{}
		target = out.Competition
	case OutputKindInvestor:
		out.Investor = &InvestorOutput{}
		target = out.Investor
	default:
		return Output{}, fmt.Errorf("%w: unknown output kind %q", apperrors.ErrValidation, kind)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return Output{}, fmt.Errorf("%w: decode %s output: %v", apperrors.ErrValidation, kind, err)
	}

	if err := out.Validate(); err != nil {
		return Output{}, err
	}

	return out, nil
}

// Validate checks the payload against the schema of its tag.
func (o Output) Validate() error {
	switch o.Kind {
	case OutputKindCategory:
		return validateCategory(o.Category)
	case OutputKindCompetition:
		return validateCompetition(o.Competition)
	case OutputKindInvestor:
		return validateInvestor(o.Investor)
	default:
		return fmt.Errorf("%w: unknown output kind %q", apperrors.ErrValidation, o.Kind)
	}
}

func validateCategory(c *CategoryOutput) error {
	if c == nil {
		return fmt.Errorf("%w: category payload missing", apperrors.ErrValidation)
	}

	if strings.TrimSpace(c.OverallSummary) == "" {
		return fmt.Errorf("%w: overallSummary is empty", apperrors.ErrValidation)
	}

	seen := make(map[string]bool, len(c.Factors))

	for i, f := range c.Factors {
		if strings.TrimSpace(f.FactorAnalysisKey) == "" {
			return fmt.Errorf("%w: factors[%d].factorAnalysisKey is empty", apperrors.ErrValidation, i)
		}

		if seen[f.FactorAnalysisKey] {
			return fmt.Errorf("%w: factor %q returned twice", apperrors.ErrValidation, f.FactorAnalysisKey)
		}

		seen[f.FactorAnalysisKey] = true

		if _, ok := ParseVerdict(f.Result); !ok {
			return fmt.Errorf("%w: factor %q has result %q, want Pass or Fail", apperrors.ErrValidation, f.FactorAnalysisKey, f.Result)
		}
	}

	return nil
}

func validateCompetition(c *CompetitionOutput) error {
	if c == nil {
		return fmt.Errorf("%w: competition payload missing", apperrors.ErrValidation)
	}

	if len(c.CompetitionAnalysisArray) == 0 {
		return fmt.Errorf("%w: competitionAnalysisArray is empty", apperrors.ErrValidation)
	}

	for i, comp := range c.CompetitionAnalysisArray {
		if CompetitorKey(comp.CompanySymbol, comp.CompanyName) == "" {
			return fmt.Errorf("%w: competitionAnalysisArray[%d] has neither symbol nor name", apperrors.ErrValidation, i)
		}
	}

	return nil
}

func validateInvestor(i *InvestorOutput) error {
	if i == nil {
		return fmt.Errorf("%w: investor payload missing", apperrors.ErrValidation)
	}

	if strings.TrimSpace(i.Summary) == "" {
		return fmt.Errorf("%w: summary is empty", apperrors.ErrValidation)
	}

	if strings.TrimSpace(i.DetailedAnalysis) == "" {
		return fmt.Errorf("%w: detailedAnalysis is empty", apperrors.ErrValidation)
	}

	return nil
}
