package store

import (
	"context"
	"fmt"

	"docvet/internal/logging"
)

// Session is one open transaction. It exposes the same repository methods
// as Store; everything executed through it commits or rolls back together.
type Session struct {
	queries
}

// WithSession runs fn inside a transaction. The transaction is committed
// when fn returns nil and rolled back when fn returns an error or panics;
// the panic is re-raised after rollback.
func (s *Store) WithSession(ctx context.Context, fn func(*Session) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.StoreError("rollback after panic failed: %v", rbErr)
			}
			panic(r)
		}
	}()

	if err := fn(&Session{queries: queries{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.StoreError("rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
