package db

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

type invocationRow struct {
	ID           string             `db:"id"`
	SubjectID    string             `db:"subject_id"`
	SubjectKey   string             `db:"subject_key"`
	Category     string             `db:"category"`
	InvestorKey  string             `db:"investor_key"`
	Provider     string             `db:"provider"`
	Model        string             `db:"model"`
	Status       string             `db:"status"`
	Attempts     int                `db:"attempts"`
	ErrorKind    string             `db:"error_kind"`
	ErrorMessage string             `db:"error_message"`
	CreatedAt    time.Time          `db:"created_at"`
	FinishedAt   pgtype.Timestamptz `db:"finished_at"`
}

func (r invocationRow) toDomain() *domain.Invocation {
	return &domain.Invocation{
		ID:           r.ID,
		SubjectID:    r.SubjectID,
		SubjectKey:   r.SubjectKey,
		Category:     domain.Category(r.Category),
		InvestorKey:  r.InvestorKey,
		Provider:     r.Provider,
		Model:        r.Model,
		Status:       domain.InvocationStatus(r.Status),
		Attempts:     r.Attempts,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		FinishedAt:   fromTimestamptzPtr(r.FinishedAt),
	}
}

const invocationSelect = `
	SELECT ri.id::text, ri.subject_id::text, s.subject_key, ri.category, ri.investor_key, ri.provider,
	       ri.model, ri.status, ri.attempts, ri.error_kind, ri.error_message, ri.created_at, ri.finished_at
	FROM report_invocations ri
	JOIN subjects s ON s.id = ri.subject_id`

// CreateInvocation records a new invocation. inv.ID is the caller-generated correlation id.
func (db *DB) CreateInvocation(ctx context.Context, inv *domain.Invocation) error {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO report_invocations (id, subject_id, category, investor_key, provider, model, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, inv.ID, inv.SubjectID, string(inv.Category), inv.InvestorKey, inv.Provider, inv.Model, string(inv.Status)).
		Scan(&inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invocation: %w", err)
	}

	return nil
}

// UpdateInvocation stores the status, attempts, provider and error of an invocation.
// Terminal statuses stamp finished_at.
func (db *DB) UpdateInvocation(ctx context.Context, inv *domain.Invocation) error {
	terminal := inv.Status == domain.InvocationSucceeded || inv.Status == domain.InvocationFailed

	tag, err := db.Pool.Exec(ctx, `
		UPDATE report_invocations
		SET status = $2,
		    attempts = $3,
		    provider = $4,
		    model = $5,
		    error_kind = $6,
		    error_message = $7,
		    finished_at = CASE WHEN $8 THEN now() ELSE NULL END
		WHERE id = $1
	`, inv.ID, string(inv.Status), inv.Attempts, inv.Provider, inv.Model, inv.ErrorKind, SanitizeUTF8(inv.ErrorMessage), terminal)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update invocation %s: %w", inv.ID, apperrors.ErrNotFound)
	}

	return nil
}

// GetInvocation loads an invocation by correlation id.
func (db *DB) GetInvocation(ctx context.Context, id string) (*domain.Invocation, error) {
	var row invocationRow

	if err := pgxscan.Get(ctx, db.Pool, &row, invocationSelect+` WHERE ri.id = $1`, id); err != nil {
		return nil, notFound(err, fmt.Sprintf("get invocation %s", id))
	}

	return row.toDomain(), nil
}

// ListInvocations returns the latest invocations of a subject, newest first.
func (db *DB) ListInvocations(ctx context.Context, subjectID string, limit int) ([]domain.Invocation, error) {
	if limit <= 0 {
		limit = defaultInvocationLimit
	}

	var rows []invocationRow

	err := pgxscan.Select(ctx, db.Pool, &rows, invocationSelect+`
		WHERE ri.subject_id = $1
		ORDER BY ri.created_at DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}

	out := make([]domain.Invocation, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDomain())
	}

	return out, nil
}
