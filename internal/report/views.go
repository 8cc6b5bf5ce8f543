package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lueurxax/insights-engine/internal/cache"
	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

const (
	viewReport = "report"
	viewScores = "scores"

	defaultInvocationLimit = 20
	maxInvocationLimit     = 100
)

// FactorView is one factor verdict as served to readers.
type FactorView struct {
	FactorAnalysisKey   string    `json:"factorAnalysisKey"`
	Result              string    `json:"result"`
	OneLineExplanation  string    `json:"oneLineExplanation"`
	DetailedExplanation string    `json:"detailedExplanation"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// CompetitorView is one stored competitor.
type CompetitorView struct {
	CompanyName        string    `json:"companyName"`
	CompanySymbol      string    `json:"companySymbol,omitempty"`
	DetailedComparison string    `json:"detailedComparison"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ReportView is a stored report of any category.
type ReportView struct {
	Subject                string           `json:"subject"`
	Category               domain.Category  `json:"category"`
	Title                  string           `json:"title"`
	InvestorKey            string           `json:"investorKey,omitempty"`
	Summary                string           `json:"summary"`
	OverallAnalysisDetails string           `json:"overallAnalysisDetails,omitempty"`
	Verdict                string           `json:"verdict,omitempty"`
	Version                int              `json:"version"`
	Score                  *int             `json:"score,omitempty"`
	Factors                []FactorView     `json:"factors,omitempty"`
	Competitors            []CompetitorView `json:"competitors,omitempty"`
	UpdatedAt              time.Time        `json:"updatedAt"`
}

// CategoryScoreView is one category score.
type CategoryScoreView struct {
	Category    domain.Category `json:"category"`
	Score       int             `json:"score"`
	FactorCount int             `json:"factorCount"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ScoresView is the subject's cached score and its per-category parts.
type ScoresView struct {
	Subject            string              `json:"subject"`
	CachedScore        *float64            `json:"cachedScore"`
	CacheInvalidatedAt *time.Time          `json:"cacheInvalidatedAt,omitempty"`
	Categories         []CategoryScoreView `json:"categories"`
}

// GetCategoryResult returns the stored report of category for the subject.
func (s *Service) GetCategoryResult(ctx context.Context, subjectKey, category, investorKey string) (*ReportView, error) {
	p, err := parseRequest(Request{SubjectKey: subjectKey, Category: category, InvestorKey: investorKey})
	if err != nil {
		return nil, err
	}

	subject, err := s.store.GetSubjectByKey(ctx, p.subjectKey)
	if err != nil {
		return nil, err
	}

	key := reportViewKey(subject, p.category, p.investor)

	var cached ReportView
	if ok := s.cachedView(ctx, key, &cached); ok {
		return &cached, nil
	}

	var view *ReportView

	switch p.category.OutputKind() {
	case domain.OutputKindInvestor:
		view, err = s.investorView(ctx, subject, p.investor)
	case domain.OutputKindCompetition:
		view, err = s.competitionView(ctx, subject)
	default:
		view, err = s.categoryView(ctx, subject, p.category)
	}

	if err != nil {
		return nil, err
	}

	view.Subject = subject.Key
	view.Category = p.category
	view.Title = p.category.Title()

	s.storeView(ctx, key, view, cache.ReportTags(subject.Key, p.category)...)

	return view, nil
}

func (s *Service) categoryView(ctx context.Context, subject *domain.Subject, category domain.Category) (*ReportView, error) {
	res, err := s.store.GetCategoryResult(ctx, subject.ID, category)
	if err != nil {
		return nil, err
	}

	view := &ReportView{
		Summary:                res.Summary,
		OverallAnalysisDetails: res.OverallAnalysisDetails,
		Version:                res.Version,
		UpdatedAt:              res.UpdatedAt,
	}

	if category.HasFactors() {
		score := domain.ScoreFromFactors(res.Factors)
		view.Score = &score
	}

	for _, f := range res.Factors {
		view.Factors = append(view.Factors, FactorView{
			FactorAnalysisKey:   f.FactorKey,
			Result:              string(f.Result),
			OneLineExplanation:  f.OneLineExplanation,
			DetailedExplanation: f.DetailedExplanation,
			UpdatedAt:           f.UpdatedAt,
		})
	}

	return view, nil
}

func (s *Service) competitionView(ctx context.Context, subject *domain.Subject) (*ReportView, error) {
	entries, err := s.store.ListCompetitionEntries(ctx, subject.ID)
	if err != nil {
		return nil, err
	}

	view := &ReportView{}

	res, err := s.store.GetCategoryResult(ctx, subject.ID, domain.CategoryCompetition)

	switch {
	case err == nil:
		view.Summary = res.Summary
		view.Version = res.Version
		view.UpdatedAt = res.UpdatedAt
	case apperrors.Is(err, apperrors.ErrNotFound):
		if len(entries) == 0 {
			return nil, err
		}
	default:
		return nil, err
	}

	for _, e := range entries {
		view.Competitors = append(view.Competitors, CompetitorView{
			CompanyName:        e.CompanyName,
			CompanySymbol:      e.CompanySymbol,
			DetailedComparison: e.DetailedComparison,
			UpdatedAt:          e.UpdatedAt,
		})

		if e.UpdatedAt.After(view.UpdatedAt) {
			view.UpdatedAt = e.UpdatedAt
		}
	}

	return view, nil
}

func (s *Service) investorView(ctx context.Context, subject *domain.Subject, investor domain.InvestorKey) (*ReportView, error) {
	res, err := s.store.GetInvestorResult(ctx, subject.ID, investor)
	if err != nil {
		return nil, err
	}

	return &ReportView{
		InvestorKey:            string(res.InvestorKey),
		Summary:                res.Summary,
		OverallAnalysisDetails: res.DetailedAnalysis,
		Verdict:                res.Verdict,
		Version:                res.Version,
		UpdatedAt:              res.UpdatedAt,
	}, nil
}

// GetScores returns the subject's category scores and cached average.
func (s *Service) GetScores(ctx context.Context, subjectKey string) (*ScoresView, error) {
	subjectKey = strings.TrimSpace(subjectKey)
	if subjectKey == "" {
		return nil, fmt.Errorf("%w: subject is required", apperrors.ErrValidation)
	}

	subject, err := s.store.GetSubjectByKey(ctx, subjectKey)
	if err != nil {
		return nil, err
	}

	key := scoresViewKey(subject)

	var cached ScoresView
	if ok := s.cachedView(ctx, key, &cached); ok {
		return &cached, nil
	}

	scores, err := s.store.ListCategoryScores(ctx, subject.ID)
	if err != nil {
		return nil, err
	}

	view := &ScoresView{
		Subject:            subject.Key,
		CachedScore:        subject.CachedScore,
		CacheInvalidatedAt: subject.CacheInvalidatedAt,
		Categories:         make([]CategoryScoreView, 0, len(scores)),
	}

	for _, sc := range scores {
		view.Categories = append(view.Categories, CategoryScoreView{
			Category:    sc.Category,
			Score:       sc.Score,
			FactorCount: sc.FactorCount,
			UpdatedAt:   sc.UpdatedAt,
		})
	}

	s.storeView(ctx, key, view, cache.SubjectTag(subject.Key))

	return view, nil
}

// GetInvocation returns the tracking record of a correlation id.
func (s *Service) GetInvocation(ctx context.Context, id string) (*domain.Invocation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid invocation id %q", apperrors.ErrValidation, id)
	}

	return s.store.GetInvocation(ctx, id)
}

// ListInvocations returns the subject's most recent invocations, newest first.
func (s *Service) ListInvocations(ctx context.Context, subjectKey string, limit int) ([]domain.Invocation, error) {
	if limit <= 0 {
		limit = defaultInvocationLimit
	}

	limit = min(limit, maxInvocationLimit)

	subject, err := s.store.GetSubjectByKey(ctx, strings.TrimSpace(subjectKey))
	if err != nil {
		return nil, err
	}

	return s.store.ListInvocations(ctx, subject.ID, limit)
}

// viewGeneration changes on every persisted report of the subject. Views are keyed by it,
// so a view rendered from reads that raced a write lands under a generation no later
// reader asks for.
func viewGeneration(subject *domain.Subject) string {
	if subject.CacheInvalidatedAt == nil {
		return "g0"
	}

	return "g" + strconv.FormatInt(subject.CacheInvalidatedAt.UnixNano(), 10)
}

func reportViewKey(subject *domain.Subject, category domain.Category, investor domain.InvestorKey) string {
	parts := []string{viewReport, subject.Key, viewGeneration(subject), string(category)}
	if investor != "" {
		parts = append(parts, string(investor))
	}

	return cache.ViewKey(parts...)
}

func scoresViewKey(subject *domain.Subject) string {
	return cache.ViewKey(viewScores, subject.Key, viewGeneration(subject))
}

// cachedView reads a view; cache errors are treated as misses.
func (s *Service) cachedView(ctx context.Context, key string, dst interface{}) bool {
	ok, err := s.views.Get(ctx, key, dst)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("view cache read failed")

		return false
	}

	return ok
}

func (s *Service) storeView(ctx context.Context, key string, view interface{}, tags ...string) {
	if err := s.views.Set(ctx, key, view, tags...); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("view cache write failed")
	}
}
