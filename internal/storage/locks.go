package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// lockWriter takes a transaction-scoped advisory lock for key. It is released on commit or rollback.
func lockWriter(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return fmt.Errorf("acquire writer lock: %w", err)
	}

	return nil
}
