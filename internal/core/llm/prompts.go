package llm

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/lueurxax/insights-engine/internal/core/domain"
)

const (
	promptCategoryPlaceholder = "{{CATEGORY}}"
	promptInvestorPlaceholder = "{{INVESTOR}}"
	promptInputHeader         = "Input document:\n"
)

const categoryReportPrompt = `You are an equity research analyst writing the "{{CATEGORY}}" section of a report. Return STRICT JSON ONLY.
Output must be a single JSON object. Use double quotes. No trailing commas. No markdown. No extra keys.

The object must include:
- overallSummary: string - two or three sentences with the category verdict.
- overallAnalysisDetails: string - the detailed reasoning, may span several paragraphs.
- factors: array with one object per factor listed in the input document, same order:
  - factorAnalysisKey: string - copied verbatim from the input factor.
  - oneLineExplanation: string - one sentence.
  - detailedExplanation: string - the evidence behind the result.
  - result: "Pass" or "Fail".

Use only the data in the input document. When data for a factor is missing, answer "Fail" and say so.`

const competitionReportPrompt = `You are an equity research analyst mapping the competitive landscape. Return STRICT JSON ONLY.
Output must be a single JSON object. Use double quotes. No trailing commas. No markdown. No extra keys.

The object must include:
- summary: string - how the subject is positioned against its peers.
- competitionAnalysisArray: array with between three and eight objects:
  - companyName: string
  - companySymbol: string - the listed ticker, or an empty string for private companies.
  - detailedComparison: string - where the competitor is stronger or weaker than the subject.`

const investorReportPrompt = `You are writing an investment memo in the voice and philosophy of {{INVESTOR}}. Return STRICT JSON ONLY.
Output must be a single JSON object. Use double quotes. No trailing commas. No markdown. No extra keys.

The object must include:
- summary: string - the headline view in two or three sentences.
- detailedAnalysis: string - the full reasoning, referencing the prior reports in the input document.
- verdict: string - one of "Buy", "Hold", "Avoid".`

// buildPrompts returns the system instruction and the user message for req.
func buildPrompts(req GenerationRequest) (system, user string, err error) {
	switch req.OutputKind {
	case domain.OutputKindCompetition:
		system = competitionReportPrompt
	case domain.OutputKindInvestor:
		system = strings.ReplaceAll(investorReportPrompt, promptInvestorPlaceholder, req.InvestorKey.DisplayName())
	default:
		system = strings.ReplaceAll(categoryReportPrompt, promptCategoryPlaceholder, req.Category.Title())
	}

	doc, err := json.Marshal(req.Input)
	if err != nil {
		return "", "", fmt.Errorf(errEncodeInput, err)
	}

	return system, promptInputHeader + string(doc), nil
}

// extractJSON strips code fences and surrounding prose from a model reply.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start == -1 || end < start {
		return strings.TrimSpace(text)
	}

	return text[start : end+1]
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit]
}
