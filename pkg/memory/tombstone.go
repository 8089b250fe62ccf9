package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const tombstoneColumns = `workspace, key, category, priority, channel, shared, sequence, deleted_at`

// recordDeletion writes the tombstone for item. It runs inside the same
// transaction that removed the row and consumes one sequence number.
func (s *Store) recordDeletion(ctx context.Context, tx *sql.Tx, item *Item) (*Tombstone, error) {
	seq, err := nextSequence(ctx, tx)
	if err != nil {
		return nil, err
	}
	tomb := &Tombstone{
		Workspace: item.Workspace,
		Key:       item.Key,
		Category:  item.Category,
		Priority:  item.Priority,
		Channel:   item.Channel,
		Shared:    item.Shared,
		Sequence:  seq,
		DeletedAt: s.Now(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tombstones (`+tombstoneColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tomb.Workspace, tomb.Key, string(tomb.Category), string(tomb.Priority), tomb.Channel,
		boolToInt(tomb.Shared), tomb.Sequence, toNanos(tomb.DeletedAt),
	); err != nil {
		return nil, fmt.Errorf("memory: record tombstone %s: %w", item.Key, err)
	}
	return tomb, nil
}

// TombstonesSince returns the tombstones visible to workspace with a sequence
// in (floor, upto], ascending.
func (s *Store) TombstonesSince(ctx context.Context, workspace string, floor, upto int64) ([]Tombstone, error) {
	return s.queryTombstones(ctx,
		`SELECT `+tombstoneColumns+` FROM tombstones
		 WHERE (workspace = ? OR shared = 1) AND sequence > ? AND sequence <= ?
		 ORDER BY sequence ASC`, workspace, floor, upto)
}

// LatestTombstones returns the newest tombstone of each requested key owned
// by workspace. Keys that were never deleted, or whose tombstones were
// pruned, are absent from the map.
func (s *Store) LatestTombstones(ctx context.Context, workspace string, keys []string) (map[string]Tombstone, error) {
	out := make(map[string]Tombstone, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	// Stay well under SQLite's bound-parameter limit.
	const batch = 500
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, workspace)
		for _, k := range chunk {
			args = append(args, k)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")

		tombs, err := s.queryTombstones(ctx,
			`SELECT `+tombstoneColumns+` FROM tombstones
			 WHERE workspace = ? AND key IN (`+placeholders+`)
			 ORDER BY sequence ASC`, args...)
		if err != nil {
			return nil, err
		}
		for _, t := range tombs {
			out[t.Key] = t // ascending order, so the newest wins
		}
	}
	return out, nil
}

// PruneTombstones deletes tombstones recorded before cutoff and reports how
// many were removed. Diffs only need tombstones newer than the anchors in
// use, so the retention window bounds how far back deletions stay visible.
func (s *Store) PruneTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE deleted_at < ?`, toNanos(cutoff))
		if err != nil {
			return fmt.Errorf("memory: prune tombstones: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Infof("pruned %d tombstone(s) older than %s", removed, cutoff.Format(time.RFC3339))
	}
	return removed, nil
}

func (s *Store) queryTombstones(ctx context.Context, query string, args ...any) ([]Tombstone, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query tombstones: %w", err)
	}
	defer rows.Close()

	var out []Tombstone
	for rows.Next() {
		var (
			t                  Tombstone
			category, priority string
			shared             int
			deletedAt          int64
		)
		if err := rows.Scan(&t.Workspace, &t.Key, &category, &priority, &t.Channel,
			&shared, &t.Sequence, &deletedAt); err != nil {
			return nil, fmt.Errorf("memory: scan tombstone: %w", err)
		}
		t.Category = Category(category)
		t.Priority = Priority(priority)
		t.Shared = shared != 0
		t.DeletedAt = fromNanos(deletedAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate tombstones: %w", err)
	}
	return out, nil
}
