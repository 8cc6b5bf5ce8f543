package report

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/core/llm"
	"github.com/lueurxax/insights-engine/internal/platform/observability"
)

const (
	labelInvalidCategory = "invalid"
	missingFreshData     = "financial_data"
	missingFactors       = "factor_definitions"
)

// plan is a validated request with every precondition loaded.
type plan struct {
	subject         *domain.Subject
	industry        *domain.Industry
	category        domain.Category
	investor        domain.InvestorKey
	provider        llm.ProviderName
	model           string
	factors         []domain.FactorDefinition
	prerequisites   []llm.PriorReport
	expectedVersion int
}

// prepare validates req and runs the precondition fetch. It has no side effects.
func (s *Service) prepare(ctx context.Context, req Request) (*plan, error) {
	p, err := parseRequest(req)
	if err != nil {
		return nil, err
	}

	subject, err := s.store.GetSubjectByKey(ctx, p.subjectKey)
	if err != nil {
		return nil, err
	}

	pl := &plan{
		subject:  subject,
		category: p.category,
		investor: p.investor,
		provider: p.provider,
		model:    p.model,
	}

	if pl.category.RequiresFreshData() && !subject.HasFreshFinancialData() {
		observability.PreconditionFailures.WithLabelValues(string(pl.category), missingFreshData).Inc()

		return nil, fmt.Errorf("%w: %s for %s has no financial data yet", apperrors.ErrDataNotFresh, pl.category, subject.Key)
	}

	if err := s.fetchPreconditions(ctx, pl); err != nil {
		return nil, err
	}

	return pl, nil
}

type parsedRequest struct {
	subjectKey string
	category   domain.Category
	investor   domain.InvestorKey
	provider   llm.ProviderName
	model      string
}

func parseRequest(req Request) (parsedRequest, error) {
	key := strings.TrimSpace(req.SubjectKey)
	if key == "" {
		return parsedRequest{}, fmt.Errorf("%w: subject is required", apperrors.ErrValidation)
	}

	category, err := domain.ParseCategory(strings.TrimSpace(req.Category))
	if err != nil {
		return parsedRequest{}, err
	}

	var investor domain.InvestorKey

	if category == domain.CategoryInvestorAnalysis {
		if strings.TrimSpace(req.InvestorKey) == "" {
			return parsedRequest{}, fmt.Errorf("%w: investorKey is required for %s", apperrors.ErrValidation, category)
		}

		if investor, err = domain.ParseInvestorKey(req.InvestorKey); err != nil {
			return parsedRequest{}, err
		}
	}

	provider, err := llm.ParseProviderName(req.Provider)
	if err != nil {
		return parsedRequest{}, err
	}

	return parsedRequest{
		subjectKey: key,
		category:   category,
		investor:   investor,
		provider:   provider,
		model:      strings.TrimSpace(req.Model),
	}, nil
}

// fetchPreconditions loads reference data, factor definitions, prerequisite results and
// the current result version in parallel.
func (s *Service) fetchPreconditions(ctx context.Context, pl *plan) error {
	g, gctx := errgroup.WithContext(ctx)

	if pl.subject.IndustryKey != "" {
		g.Go(func() error {
			ind, err := s.store.GetIndustry(gctx, pl.subject.IndustryKey)
			if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
				return err
			}

			pl.industry = ind

			return nil
		})
	}

	if pl.category.HasFactors() {
		g.Go(func() error {
			defs, err := s.store.ListFactorDefinitions(gctx, pl.category)
			if err != nil {
				return err
			}

			if len(defs) == 0 {
				observability.PreconditionFailures.WithLabelValues(string(pl.category), missingFactors).Inc()

				return fmt.Errorf("%w: no factor definitions for %s", apperrors.ErrPreconditionFailed, pl.category)
			}

			pl.factors = defs

			return nil
		})
	}

	prereqs := pl.category.Prerequisites()
	reports := make([]llm.PriorReport, len(prereqs))

	for i, required := range prereqs {
		g.Go(func() error {
			report, err := s.loadPrerequisite(gctx, pl, required)
			if err != nil {
				return err
			}

			reports[i] = report

			return nil
		})
	}

	g.Go(func() error {
		version, err := s.currentVersion(gctx, pl)
		if err != nil {
			return err
		}

		pl.expectedVersion = version

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	pl.prerequisites = reports

	return nil
}

// loadPrerequisite returns the prior report for required or ErrPreconditionFailed.
func (s *Service) loadPrerequisite(ctx context.Context, pl *plan, required domain.Category) (llm.PriorReport, error) {
	missing := func() error {
		observability.PreconditionFailures.WithLabelValues(string(pl.category), string(required)).Inc()

		return fmt.Errorf("%w: %s requires %s for %s", apperrors.ErrPreconditionFailed, pl.category, required, pl.subject.Key)
	}

	if required == domain.CategoryCompetition {
		entries, err := s.store.ListCompetitionEntries(ctx, pl.subject.ID)
		if err != nil {
			return llm.PriorReport{}, err
		}

		if len(entries) == 0 {
			return llm.PriorReport{}, missing()
		}

		report := llm.PriorReport{Category: string(required), Entries: make([]llm.CompetitorInput, 0, len(entries))}

		for _, e := range entries {
			report.Entries = append(report.Entries, llm.CompetitorInput{
				CompanyName:        e.CompanyName,
				CompanySymbol:      e.CompanySymbol,
				DetailedComparison: e.DetailedComparison,
			})
		}

		if res, err := s.store.GetCategoryResult(ctx, pl.subject.ID, required); err == nil {
			report.Summary = res.Summary
		} else if !apperrors.Is(err, apperrors.ErrNotFound) {
			return llm.PriorReport{}, err
		}

		return report, nil
	}

	res, err := s.store.GetCategoryResult(ctx, pl.subject.ID, required)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return llm.PriorReport{}, missing()
	}

	if err != nil {
		return llm.PriorReport{}, err
	}

	report := llm.PriorReport{
		Category: string(required),
		Summary:  res.Summary,
		Details:  res.OverallAnalysisDetails,
		Factors:  make([]llm.PriorFactor, 0, len(res.Factors)),
	}

	for _, f := range res.Factors {
		report.Factors = append(report.Factors, llm.PriorFactor{
			Key:         f.FactorKey,
			Result:      string(f.Result),
			Explanation: f.OneLineExplanation,
		})
	}

	return report, nil
}

// currentVersion returns the stored version of the target row, 0 when none exists.
func (s *Service) currentVersion(ctx context.Context, pl *plan) (int, error) {
	if pl.category == domain.CategoryInvestorAnalysis {
		res, err := s.store.GetInvestorResult(ctx, pl.subject.ID, pl.investor)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return 0, nil
		}

		if err != nil {
			return 0, err
		}

		return res.Version, nil
	}

	res, err := s.store.GetCategoryResult(ctx, pl.subject.ID, pl.category)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	return res.Version, nil
}

func (pl *plan) newInvocation(id string, status domain.InvocationStatus) *domain.Invocation {
	return &domain.Invocation{
		ID:          id,
		SubjectID:   pl.subject.ID,
		SubjectKey:  pl.subject.Key,
		Category:    pl.category,
		InvestorKey: string(pl.investor),
		Provider:    string(pl.provider),
		Model:       pl.model,
		Status:      status,
	}
}

// generationRequest assembles the input document.
func (pl *plan) generationRequest() llm.GenerationRequest {
	doc := llm.InputDocument{
		Subject: llm.SubjectInput{
			Key:      pl.subject.Key,
			Kind:     string(pl.subject.Kind),
			Name:     pl.subject.Name,
			Exchange: pl.subject.Exchange,
		},
		Prerequisites: pl.prerequisites,
	}

	if pl.industry != nil {
		doc.Industry = &llm.IndustryInput{Key: pl.industry.Key, Name: pl.industry.Name, Summary: pl.industry.Summary}
	}

	for _, f := range pl.factors {
		doc.Factors = append(doc.Factors, llm.FactorInput{Key: f.Key, Title: f.Title, Description: f.Description})
	}

	if pl.subject.HasFreshFinancialData() {
		doc.FinancialData = pl.subject.FinancialData
	}

	if pl.investor != "" {
		doc.Investor = pl.investor.DisplayName()
	}

	return llm.GenerationRequest{
		Category:    pl.category,
		OutputKind:  pl.category.OutputKind(),
		InvestorKey: pl.investor,
		Model:       pl.model,
		Provider:    pl.provider,
		Input:       doc,
	}
}

// categoryLabel bounds metric label values to known categories.
func categoryLabel(raw string) string {
	c, err := domain.ParseCategory(strings.TrimSpace(raw))
	if err != nil {
		return labelInvalidCategory
	}

	return string(c)
}
