package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// nextSequence advances the shared counter and returns the new value. It must
// be called inside write so the number commits together with the row it
// labels; callers never see a number whose predecessor is still uncommitted.
//
// One counter serves every workspace. Each workspace still observes strictly
// increasing numbers, and shared items from different workspaces land in a
// single total order that one cursor can walk.
func nextSequence(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`UPDATE sequence_counter SET value = value + 1 WHERE id = 1 RETURNING value`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("memory: allocate sequence: %w", err)
	}
	return seq, nil
}

func currentSequence(ctx context.Context, q querier) (int64, error) {
	var seq int64
	if err := q.QueryRowContext(ctx, `SELECT value FROM sequence_counter WHERE id = 1`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("memory: read sequence: %w", err)
	}
	return seq, nil
}

// MaxSequence returns the highest sequence number committed so far.
func (s *Store) MaxSequence(ctx context.Context) (int64, error) {
	return currentSequence(ctx, s.db)
}
