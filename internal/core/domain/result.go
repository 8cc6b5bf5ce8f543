package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FactorVerdict is the pass/fail outcome of a single factor.
type FactorVerdict string

// Factor verdicts.
const (
	VerdictPass FactorVerdict = "Pass"
	VerdictFail FactorVerdict = "Fail"
)

const scoreDecimalPlaces = 2

// ParseVerdict normalizes a verdict string; ok is false for anything but pass/fail.
func ParseVerdict(s string) (FactorVerdict, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass":
		return VerdictPass, true
	case "fail":
		return VerdictFail, true
	default:
		return "", false
	}
}

// FactorDefinition is static reference data describing one evaluation criterion.
type FactorDefinition struct {
	ID          string
	Category    Category
	Key         string
	Title       string
	Description string
	SortOrder   int
}

// CategoryResult is the single analysis row per (subject, category).
type CategoryResult struct {
	ID                     string
	SubjectID              string
	Category               Category
	Summary                string
	OverallAnalysisDetails string
	Version                int
	CreatedAt              time.Time
	UpdatedAt              time.Time
	Factors                []FactorResult
}

// FactorResult is the single row per (subject, factor).
type FactorResult struct {
	ID                  string
	SubjectID           string
	FactorID            string
	FactorKey           string
	CategoryResultID    string
	Result              FactorVerdict
	OneLineExplanation  string
	DetailedExplanation string
	UpdatedAt           time.Time
}

// CompetitionEntry is one competitor row per (subject, competitor).
type CompetitionEntry struct {
	ID                 string
	SubjectID          string
	CompetitorKey      string
	CompanyName        string
	CompanySymbol      string
	DetailedComparison string
	UpdatedAt          time.Time
}

// InvestorResult is the single investor analysis row per (subject, investor).
type InvestorResult struct {
	ID               string
	SubjectID        string
	InvestorKey      InvestorKey
	Summary          string
	DetailedAnalysis string
	Verdict          string
	Version          int
	UpdatedAt        time.Time
}

// CategoryScore is the cached score of one factor category.
type CategoryScore struct {
	SubjectID   string
	Category    Category
	Score       int
	FactorCount int
	UpdatedAt   time.Time
}

// ScoreFromFactors counts passing factors. It is the only way a category score is derived.
func ScoreFromFactors(rows []FactorResult) int {
	score := 0

	for _, r := range rows {
		if r.Result == VerdictPass {
			score++
		}
	}

	return score
}

// AverageScore averages category scores, rounded to two decimals. ok is false when scores is empty.
func AverageScore(scores []CategoryScore) (avg float64, ok bool) {
	if len(scores) == 0 {
		return 0, false
	}

	total := decimal.Zero
	for _, s := range scores {
		total = total.Add(decimal.NewFromInt(int64(s.Score)))
	}

	avg, _ = total.Div(decimal.NewFromInt(int64(len(scores)))).Round(scoreDecimalPlaces).Float64()

	return avg, true
}

// CompetitorKey derives the natural key of a competitor: its symbol when present, else its name.
func CompetitorKey(symbol, name string) string {
	if s := strings.ToUpper(strings.TrimSpace(symbol)); s != "" {
		return s
	}

	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
