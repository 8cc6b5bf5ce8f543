package db

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/lueurxax/insights-engine/internal/core/domain"
)

type categoryScoreRow struct {
	SubjectID   string    `db:"subject_id"`
	Category    string    `db:"category"`
	Score       int       `db:"score"`
	FactorCount int       `db:"factor_count"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ListCategoryScores returns the cached per-category scores of a subject.
func (db *DB) ListCategoryScores(ctx context.Context, subjectID string) ([]domain.CategoryScore, error) {
	return listCategoryScores(ctx, db.Pool, subjectID)
}

func listCategoryScores(ctx context.Context, q pgxscan.Querier, subjectID string) ([]domain.CategoryScore, error) {
	var rows []categoryScoreRow

	err := pgxscan.Select(ctx, q, &rows, `
		SELECT subject_id::text, category, score, factor_count, updated_at
		FROM category_scores
		WHERE subject_id = $1
		ORDER BY category
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list category scores: %w", err)
	}

	out := make([]domain.CategoryScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CategoryScore{
			SubjectID:   r.SubjectID,
			Category:    domain.Category(r.Category),
			Score:       r.Score,
			FactorCount: r.FactorCount,
			UpdatedAt:   r.UpdatedAt,
		})
	}

	return out, nil
}
