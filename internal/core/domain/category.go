package domain

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

// Category is a named grouping of analysis factors or a report type.
type Category string

// Report categories.
const (
	CategoryCompetition                Category = "Competition"
	CategoryBusinessAndMoat            Category = "BusinessAndMoat"
	CategoryFinancialStatementAnalysis Category = "FinancialStatementAnalysis"
	CategoryPastPerformance            Category = "PastPerformance"
	CategoryFutureGrowth               Category = "FutureGrowth"
	CategoryFairValue                  Category = "FairValue"
	CategoryInvestorAnalysis           Category = "InvestorAnalysis"
)

// InvestorKey selects the persona for an investor analysis report.
type InvestorKey string

// Investor personas.
const (
	InvestorWarrenBuffett InvestorKey = "WARREN_BUFFETT"
	InvestorCharlieMunger InvestorKey = "CHARLIE_MUNGER"
	InvestorBillAckman    InvestorKey = "BILL_ACKMAN"
)

var allCategories = []Category{
	CategoryCompetition,
	CategoryBusinessAndMoat,
	CategoryFinancialStatementAnalysis,
	CategoryPastPerformance,
	CategoryFutureGrowth,
	CategoryFairValue,
	CategoryInvestorAnalysis,
}

// factorCategories are the categories scored by pass/fail factors.
var factorCategories = map[Category]bool{
	CategoryBusinessAndMoat:            true,
	CategoryFinancialStatementAnalysis: true,
	CategoryPastPerformance:            true,
	CategoryFutureGrowth:               true,
	CategoryFairValue:                  true,
}

var prerequisites = map[Category][]Category{
	CategoryBusinessAndMoat:  {CategoryCompetition},
	CategoryInvestorAnalysis: {CategoryBusinessAndMoat, CategoryFinancialStatementAnalysis},
}

var investors = map[InvestorKey]string{
	InvestorWarrenBuffett: "Warren Buffett",
	InvestorCharlieMunger: "Charlie Munger",
	InvestorBillAckman:    "Bill Ackman",
}

// Categories returns every accepted category in display order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)

	return out
}

// FactorCategories returns the categories that carry factor results and a score.
func FactorCategories() []Category {
	out := make([]Category, 0, len(factorCategories))

	for _, c := range allCategories {
		if factorCategories[c] {
			out = append(out, c)
		}
	}

	return out
}

// ParseCategory validates a category key against the fixed enumeration.
func ParseCategory(key string) (Category, error) {
	for _, c := range allCategories {
		if string(c) == key {
			return c, nil
		}
	}

	return "", fmt.Errorf("%w: unknown category %q", apperrors.ErrValidation, key)
}

// ParseInvestorKey validates an investor key.
func ParseInvestorKey(key string) (InvestorKey, error) {
	k := InvestorKey(strings.ToUpper(strings.TrimSpace(key)))
	if _, ok := investors[k]; !ok {
		return "", fmt.Errorf("%w: unknown investorKey %q", apperrors.ErrValidation, key)
	}

	return k, nil
}

// DisplayName returns the investor's name.
func (k InvestorKey) DisplayName() string {
	return investors[k]
}

// HasFactors reports whether the category is evaluated through factor definitions.
func (c Category) HasFactors() bool {
	return factorCategories[c]
}

// Prerequisites returns the categories whose results must exist before c can be generated.
func (c Category) Prerequisites() []Category {
	return prerequisites[c]
}

// RequiresFreshData reports whether the category reads the subject's statement data.
func (c Category) RequiresFreshData() bool {
	return c == CategoryFinancialStatementAnalysis
}

// OutputKind returns the output schema tag expected from the generation service.
func (c Category) OutputKind() OutputKind {
	switch c {
	case CategoryCompetition:
		return OutputKindCompetition
	case CategoryInvestorAnalysis:
		return OutputKindInvestor
	default:
		return OutputKindCategory
	}
}

// Title returns a human readable name, e.g. "Business And Moat".
func (c Category) Title() string {
	var sb strings.Builder

	for i, r := range string(c) {
		if i > 0 && unicode.IsUpper(r) {
			sb.WriteByte(' ')
		}

		sb.WriteRune(r)
	}

	return cases.Title(language.English, cases.NoLower).String(sb.String())
}

// LockKey returns the key used to serialize writers of one (subject, category) pair.
func LockKey(subjectID string, c Category, investor InvestorKey) string {
	if investor != "" {
		return subjectID + ":" + string(c) + ":" + string(investor)
	}

	return subjectID + ":" + string(c)
}
