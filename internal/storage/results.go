package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

type categoryResultRow struct {
	ID                     string    `db:"id"`
	SubjectID              string    `db:"subject_id"`
	Category               string    `db:"category"`
	Summary                string    `db:"summary"`
	OverallAnalysisDetails string    `db:"overall_analysis_details"`
	Version                int       `db:"version"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

type factorResultRow struct {
	ID                  string    `db:"id"`
	SubjectID           string    `db:"subject_id"`
	FactorID            string    `db:"factor_id"`
	FactorKey           string    `db:"factor_key"`
	CategoryResultID    string    `db:"category_result_id"`
	Result              string    `db:"result"`
	OneLineExplanation  string    `db:"one_line_explanation"`
	DetailedExplanation string    `db:"detailed_explanation"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func (r factorResultRow) toDomain() domain.FactorResult {
	return domain.FactorResult{
		ID:                  r.ID,
		SubjectID:           r.SubjectID,
		FactorID:            r.FactorID,
		FactorKey:           r.FactorKey,
		CategoryResultID:    r.CategoryResultID,
		Result:              domain.FactorVerdict(r.Result),
		OneLineExplanation:  r.OneLineExplanation,
		DetailedExplanation: r.DetailedExplanation,
		UpdatedAt:           r.UpdatedAt,
	}
}

type competitionRow struct {
	ID                 string    `db:"id"`
	SubjectID          string    `db:"subject_id"`
	CompetitorKey      string    `db:"competitor_key"`
	CompanyName        string    `db:"company_name"`
	CompanySymbol      string    `db:"company_symbol"`
	DetailedComparison string    `db:"detailed_comparison"`
	UpdatedAt          time.Time `db:"updated_at"`
}

type investorRow struct {
	ID               string    `db:"id"`
	SubjectID        string    `db:"subject_id"`
	InvestorKey      string    `db:"investor_key"`
	Summary          string    `db:"summary"`
	DetailedAnalysis string    `db:"detailed_analysis"`
	Verdict          string    `db:"verdict"`
	Version          int       `db:"version"`
	UpdatedAt        time.Time `db:"updated_at"`
}

const factorResultsQuery = `
	SELECT fr.id::text, fr.subject_id::text, fr.factor_id::text, af.factor_key,
	       fr.category_result_id::text, fr.result, fr.one_line_explanation,
	       fr.detailed_explanation, fr.updated_at
	FROM factor_results fr
	JOIN analysis_factors af ON af.id = fr.factor_id
	WHERE fr.subject_id = $1 AND af.category = $2
	ORDER BY af.sort_order, af.factor_key`

// GetCategoryResult loads the category row and its factor rows.
func (db *DB) GetCategoryResult(ctx context.Context, subjectID string, category domain.Category) (*domain.CategoryResult, error) {
	var row categoryResultRow

	err := pgxscan.Get(ctx, db.Pool, &row, `
		SELECT id::text, subject_id::text, category, summary, overall_analysis_details, version, created_at, updated_at
		FROM category_analysis_results
		WHERE subject_id = $1 AND category = $2
	`, subjectID, string(category))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("get %s result", category))
	}

	factors, err := listFactorResults(ctx, db.Pool, subjectID, category)
	if err != nil {
		return nil, err
	}

	return &domain.CategoryResult{
		ID:                     row.ID,
		SubjectID:              row.SubjectID,
		Category:               domain.Category(row.Category),
		Summary:                row.Summary,
		OverallAnalysisDetails: row.OverallAnalysisDetails,
		Version:                row.Version,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
		Factors:                factors,
	}, nil
}

// ListCompetitionEntries returns the competitors recorded for a subject.
func (db *DB) ListCompetitionEntries(ctx context.Context, subjectID string) ([]domain.CompetitionEntry, error) {
	var rows []competitionRow

	err := pgxscan.Select(ctx, db.Pool, &rows, `
		SELECT id::text, subject_id::text, competitor_key, company_name, company_symbol, detailed_comparison, updated_at
		FROM competition_entries
		WHERE subject_id = $1
		ORDER BY company_name
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list competition entries: %w", err)
	}

	out := make([]domain.CompetitionEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CompetitionEntry{
			ID:                 r.ID,
			SubjectID:          r.SubjectID,
			CompetitorKey:      r.CompetitorKey,
			CompanyName:        r.CompanyName,
			CompanySymbol:      r.CompanySymbol,
			DetailedComparison: r.DetailedComparison,
			UpdatedAt:          r.UpdatedAt,
		})
	}

	return out, nil
}

// GetInvestorResult loads the investor analysis for one persona.
func (db *DB) GetInvestorResult(ctx context.Context, subjectID string, investor domain.InvestorKey) (*domain.InvestorResult, error) {
	var row investorRow

	err := pgxscan.Get(ctx, db.Pool, &row, `
		SELECT id::text, subject_id::text, investor_key, summary, detailed_analysis, verdict, version, updated_at
		FROM investor_analysis_results
		WHERE subject_id = $1 AND investor_key = $2
	`, subjectID, string(investor))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("get %s analysis", investor))
	}

	return &domain.InvestorResult{
		ID:               row.ID,
		SubjectID:        row.SubjectID,
		InvestorKey:      domain.InvestorKey(row.InvestorKey),
		Summary:          row.Summary,
		DetailedAnalysis: row.DetailedAnalysis,
		Verdict:          row.Verdict,
		Version:          row.Version,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

// PersistReport writes a generated report, recomputes scores and marks the subject's
// cache as invalidated, all in one transaction serialized per (subject, category).
func (db *DB) PersistReport(ctx context.Context, w domain.ReportWrite) (*domain.PersistOutcome, error) {
	if err := w.Output.Validate(); err != nil {
		return nil, err
	}

	var outcome *domain.PersistOutcome

	err := db.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockWriter(ctx, tx, w.LockKey()); err != nil {
			return err
		}

		var err error

		switch w.Output.Kind {
		case domain.OutputKindCategory:
			outcome, err = db.persistCategory(ctx, tx, w)
		case domain.OutputKindCompetition:
			outcome, err = persistCompetition(ctx, tx, w)
		case domain.OutputKindInvestor:
			outcome, err = persistInvestor(ctx, tx, w)
		default:
			err = fmt.Errorf("%w: unknown output kind %q", apperrors.ErrValidation, w.Output.Kind)
		}

		if err != nil {
			return err
		}

		return touchSubject(ctx, tx, w.SubjectID, outcome)
	})
	if err != nil {
		if isPgCode(err, pgDeadlockDetected) || isPgCode(err, pgSerializationFailure) {
			return nil, fmt.Errorf("%w: %s write aborted by a concurrent writer: %v", apperrors.ErrConflict, w.Category, err)
		}

		return nil, err
	}

	return outcome, nil
}

// upsertCategoryRow inserts or updates the (subject, category) row only if the stored
// version still equals the one observed before generation.
func upsertCategoryRow(ctx context.Context, tx pgx.Tx, w domain.ReportWrite, summary, details string) (string, int, error) {
	var (
		id      string
		version int
	)

	err := tx.QueryRow(ctx, `
		INSERT INTO category_analysis_results (subject_id, category, summary, overall_analysis_details, version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id, category) DO UPDATE SET
			summary = EXCLUDED.summary,
			overall_analysis_details = EXCLUDED.overall_analysis_details,
			version = category_analysis_results.version + 1,
			updated_at = now()
		WHERE category_analysis_results.version = $6
		RETURNING id::text, version
	`, w.SubjectID, string(w.Category), SanitizeUTF8(summary), SanitizeUTF8(details), initialVersion, w.ExpectedVersion).
		Scan(&id, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, fmt.Errorf("%w: %s result changed since version %d", apperrors.ErrConflict, w.Category, w.ExpectedVersion)
		}

		return "", 0, fmt.Errorf("upsert %s result: %w", w.Category, err)
	}

	return id, version, nil
}

func (db *DB) persistCategory(ctx context.Context, tx pgx.Tx, w domain.ReportWrite) (*domain.PersistOutcome, error) {
	out := w.Output.Category

	resultID, version, err := upsertCategoryRow(ctx, tx, w, out.OverallSummary, out.OverallAnalysisDetails)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]string, len(w.Factors))
	for _, f := range w.Factors {
		byKey[f.Key] = f.ID
	}

	outcome := &domain.PersistOutcome{ResultID: resultID, Version: version}

	for _, f := range out.Factors {
		factorID, ok := byKey[f.FactorAnalysisKey]
		if !ok {
			outcome.SkippedFactors = append(outcome.SkippedFactors, f.FactorAnalysisKey)

			continue
		}

		verdict, _ := domain.ParseVerdict(f.Result)

		_, err := tx.Exec(ctx, `
			INSERT INTO factor_results (subject_id, factor_id, category_result_id, result, one_line_explanation, detailed_explanation)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (subject_id, factor_id) DO UPDATE SET
				category_result_id = EXCLUDED.category_result_id,
				result = EXCLUDED.result,
				one_line_explanation = EXCLUDED.one_line_explanation,
				detailed_explanation = EXCLUDED.detailed_explanation,
				updated_at = now()
		`, w.SubjectID, factorID, resultID, string(verdict), SanitizeUTF8(f.OneLineExplanation), SanitizeUTF8(f.DetailedExplanation))
		if err != nil {
			return nil, fmt.Errorf("upsert factor result %q: %w", f.FactorAnalysisKey, err)
		}
	}

	if len(outcome.SkippedFactors) > 0 {
		db.Logger.Warn().
			Str("subject_id", w.SubjectID).
			Str("category", string(w.Category)).
			Strs("factor_keys", outcome.SkippedFactors).
			Msg("ignoring factor results with unknown keys")
	}

	score, err := recomputeCategoryScore(ctx, tx, w.SubjectID, w.Category)
	if err != nil {
		return nil, err
	}

	outcome.Score = score

	return outcome, nil
}

// recomputeCategoryScore derives the score from the persisted factor rows.
func recomputeCategoryScore(ctx context.Context, tx pgx.Tx, subjectID string, category domain.Category) (*domain.CategoryScore, error) {
	rows, err := listFactorResults(ctx, tx, subjectID, category)
	if err != nil {
		return nil, err
	}

	score := &domain.CategoryScore{
		SubjectID:   subjectID,
		Category:    category,
		Score:       domain.ScoreFromFactors(rows),
		FactorCount: len(rows),
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO category_scores (subject_id, category, score, factor_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id, category) DO UPDATE SET
			score = EXCLUDED.score,
			factor_count = EXCLUDED.factor_count,
			updated_at = now()
		RETURNING updated_at
	`, subjectID, string(category), score.Score, score.FactorCount).Scan(&score.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert category score: %w", err)
	}

	return score, nil
}

func persistCompetition(ctx context.Context, tx pgx.Tx, w domain.ReportWrite) (*domain.PersistOutcome, error) {
	out := w.Output.Competition

	resultID, version, err := upsertCategoryRow(ctx, tx, w, out.Summary, "")
	if err != nil {
		return nil, err
	}

	for _, c := range out.CompetitionAnalysisArray {
		_, err := tx.Exec(ctx, `
			INSERT INTO competition_entries (subject_id, competitor_key, company_name, company_symbol, detailed_comparison)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (subject_id, competitor_key) DO UPDATE SET
				company_name = EXCLUDED.company_name,
				company_symbol = EXCLUDED.company_symbol,
				detailed_comparison = EXCLUDED.detailed_comparison,
				updated_at = now()
		`, w.SubjectID, domain.CompetitorKey(c.CompanySymbol, c.CompanyName), SanitizeUTF8(c.CompanyName), c.CompanySymbol, SanitizeUTF8(c.DetailedComparison))
		if err != nil {
			return nil, fmt.Errorf("upsert competition entry %q: %w", c.CompanyName, err)
		}
	}

	return &domain.PersistOutcome{ResultID: resultID, Version: version}, nil
}

func persistInvestor(ctx context.Context, tx pgx.Tx, w domain.ReportWrite) (*domain.PersistOutcome, error) {
	out := w.Output.Investor

	var (
		id      string
		version int
	)

	err := tx.QueryRow(ctx, `
		INSERT INTO investor_analysis_results (subject_id, investor_key, summary, detailed_analysis, verdict, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id, investor_key) DO UPDATE SET
			summary = EXCLUDED.summary,
			detailed_analysis = EXCLUDED.detailed_analysis,
			verdict = EXCLUDED.verdict,
			version = investor_analysis_results.version + 1,
			updated_at = now()
		WHERE investor_analysis_results.version = $7
		RETURNING id::text, version
	`, w.SubjectID, string(w.InvestorKey), SanitizeUTF8(out.Summary), SanitizeUTF8(out.DetailedAnalysis), out.Verdict, initialVersion, w.ExpectedVersion).
		Scan(&id, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s analysis changed since version %d", apperrors.ErrConflict, w.InvestorKey, w.ExpectedVersion)
		}

		return nil, fmt.Errorf("upsert investor analysis: %w", err)
	}

	return &domain.PersistOutcome{ResultID: id, Version: version}, nil
}

// touchSubject refreshes the subject's cached score from category_scores and stamps
// cache_invalidated_at.
// The subject row is locked first so concurrent writers of other categories see each
// other's scores. NO KEY UPDATE does not conflict with the KEY SHARE locks taken by
// the foreign key checks of this transaction's own inserts.
func touchSubject(ctx context.Context, tx pgx.Tx, subjectID string, outcome *domain.PersistOutcome) error {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM subjects WHERE id = $1 FOR NO KEY UPDATE`, subjectID); err != nil {
		return fmt.Errorf("lock subject: %w", err)
	}

	scores, err := listCategoryScores(ctx, tx, subjectID)
	if err != nil {
		return err
	}

	var cached *float64
	if avg, ok := domain.AverageScore(scores); ok {
		cached = &avg
	}

	_, err = tx.Exec(ctx, `
		UPDATE subjects
		SET cached_score = $2,
		    cache_invalidated_at = clock_timestamp(),
		    updated_at = now()
		WHERE id = $1
	`, subjectID, cached)
	if err != nil {
		return fmt.Errorf("update subject cached score: %w", err)
	}

	outcome.CachedScore = cached

	return nil
}

func listFactorResults(ctx context.Context, q pgxscan.Querier, subjectID string, category domain.Category) ([]domain.FactorResult, error) {
	var rows []factorResultRow

	if err := pgxscan.Select(ctx, q, &rows, factorResultsQuery, subjectID, string(category)); err != nil {
		return nil, fmt.Errorf("list factor results: %w", err)
	}

	out := make([]domain.FactorResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}

	return out, nil
}
