package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

type subjectRow struct {
	ID                     string             `db:"id"`
	SubjectKey             string             `db:"subject_key"`
	Kind                   string             `db:"kind"`
	Name                   string             `db:"name"`
	Exchange               string             `db:"exchange"`
	IndustryKey            pgtype.Text        `db:"industry_key"`
	FinancialData          []byte             `db:"financial_data"`
	FinancialDataUpdatedAt pgtype.Timestamptz `db:"financial_data_updated_at"`
	CachedScore            pgtype.Numeric     `db:"cached_score"`
	CacheInvalidatedAt     pgtype.Timestamptz `db:"cache_invalidated_at"`
	CreatedAt              time.Time          `db:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at"`
}

func (r subjectRow) toDomain() *domain.Subject {
	return &domain.Subject{
		ID:                     r.ID,
		Key:                    r.SubjectKey,
		Kind:                   domain.SubjectKind(r.Kind),
		Name:                   r.Name,
		Exchange:               r.Exchange,
		IndustryKey:            fromText(r.IndustryKey),
		FinancialData:          json.RawMessage(r.FinancialData),
		FinancialDataUpdatedAt: fromTimestamptzPtr(r.FinancialDataUpdatedAt),
		CachedScore:            fromNumericPtr(r.CachedScore),
		CacheInvalidatedAt:     fromTimestamptzPtr(r.CacheInvalidatedAt),
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

const subjectColumns = `id::text, subject_key, kind, name, exchange, industry_key, financial_data,
	financial_data_updated_at, cached_score, cache_invalidated_at, created_at, updated_at`

// GetSubjectByKey resolves a subject by its natural key, e.g. AAPL.
func (db *DB) GetSubjectByKey(ctx context.Context, key string) (*domain.Subject, error) {
	var row subjectRow

	if err := pgxscan.Get(ctx, db.Pool, &row, `SELECT `+subjectColumns+` FROM subjects WHERE subject_key = $1`, key); err != nil {
		return nil, notFound(err, fmt.Sprintf("get subject %q", key))
	}

	return row.toDomain(), nil
}

// UpsertSubject creates or updates a subject by subject_key and returns the stored row.
func (db *DB) UpsertSubject(ctx context.Context, s *domain.Subject) (*domain.Subject, error) {
	if !s.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown subject kind %q", apperrors.ErrValidation, s.Kind)
	}

	var row subjectRow

	err := pgxscan.Get(ctx, db.Pool, &row, `
		INSERT INTO subjects (subject_key, kind, name, exchange, industry_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_key) DO UPDATE SET
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			exchange = EXCLUDED.exchange,
			industry_key = EXCLUDED.industry_key,
			updated_at = now()
		RETURNING `+subjectColumns,
		s.Key, string(s.Kind), SanitizeUTF8(s.Name), s.Exchange, toText(s.IndustryKey))
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return nil, fmt.Errorf("%w: unknown industry %q", apperrors.ErrValidation, s.IndustryKey)
		}

		return nil, fmt.Errorf("upsert subject: %w", err)
	}

	return row.toDomain(), nil
}

// SetFinancialData stores scraped statement data. A nil payload marks the data as not fresh.
func (db *DB) SetFinancialData(ctx context.Context, key string, data json.RawMessage) error {
	var payload interface{}
	if len(data) > 0 {
		payload = []byte(data)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE subjects
		SET financial_data = $2::jsonb,
		    financial_data_updated_at = CASE WHEN $2::jsonb IS NULL THEN NULL ELSE now() END,
		    updated_at = now()
		WHERE subject_key = $1
	`, key, payload)
	if err != nil {
		return fmt.Errorf("set financial data: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set financial data for %q: %w", key, apperrors.ErrNotFound)
	}

	return nil
}

// GetIndustry loads reference industry data.
func (db *DB) GetIndustry(ctx context.Context, key string) (*domain.Industry, error) {
	var ind domain.Industry

	err := db.Pool.QueryRow(ctx, `SELECT industry_key, name, summary FROM industries WHERE industry_key = $1`, key).
		Scan(&ind.Key, &ind.Name, &ind.Summary)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("get industry %q", key))
	}

	return &ind, nil
}

// UpsertIndustry creates or updates an industry.
func (db *DB) UpsertIndustry(ctx context.Context, ind domain.Industry) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO industries (industry_key, name, summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (industry_key) DO UPDATE SET
			name = EXCLUDED.name,
			summary = EXCLUDED.summary
	`, ind.Key, SanitizeUTF8(ind.Name), SanitizeUTF8(ind.Summary))
	if err != nil {
		return fmt.Errorf("upsert industry: %w", err)
	}

	return nil
}
