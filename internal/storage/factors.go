package db

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/insights-engine/internal/core/domain"
)

type factorRow struct {
	ID          string `db:"id"`
	Category    string `db:"category"`
	FactorKey   string `db:"factor_key"`
	Title       string `db:"title"`
	Description string `db:"description"`
	SortOrder   int    `db:"sort_order"`
}

// ListFactorDefinitions returns the factor definitions of a category in display order.
func (db *DB) ListFactorDefinitions(ctx context.Context, category domain.Category) ([]domain.FactorDefinition, error) {
	var rows []factorRow

	err := pgxscan.Select(ctx, db.Pool, &rows, `
		SELECT id::text, category, factor_key, title, description, sort_order
		FROM analysis_factors
		WHERE category = $1
		ORDER BY sort_order, factor_key
	`, string(category))
	if err != nil {
		return nil, fmt.Errorf("list factor definitions: %w", err)
	}

	out := make([]domain.FactorDefinition, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.FactorDefinition{
			ID:          r.ID,
			Category:    domain.Category(r.Category),
			Key:         r.FactorKey,
			Title:       r.Title,
			Description: r.Description,
			SortOrder:   r.SortOrder,
		})
	}

	return out, nil
}

// UpsertFactorDefinitions seeds reference factors keyed by (category, factor_key).
func (db *DB) UpsertFactorDefinitions(ctx context.Context, defs []domain.FactorDefinition) error {
	batch := &pgx.Batch{}

	for _, d := range defs {
		batch.Queue(`
			INSERT INTO analysis_factors (category, factor_key, title, description, sort_order)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (category, factor_key) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				sort_order = EXCLUDED.sort_order
		`, string(d.Category), d.Key, SanitizeUTF8(d.Title), SanitizeUTF8(d.Description), d.SortOrder)
	}

	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert factor definitions: %w", err)
	}

	return nil
}
