package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const watcherColumns = `id, workspace, filter, cursor, state, created_at, expires_at, last_polled_at`

// CreateWatcher persists rec as an active watcher. The cursor is set to the
// current counter value inside the write section, so the watcher reports
// only writes that commit after it exists. rec.Cursor and rec.State are
// overwritten.
func (s *Store) CreateWatcher(ctx context.Context, rec WatcherRecord) (*WatcherRecord, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("memory: watcher id required")
	}
	if err := validateWorkspace(rec.Workspace); err != nil {
		return nil, err
	}
	if rec.Filter == "" {
		rec.Filter = "{}"
	}
	rec.State = WatcherActive

	err := s.write(ctx, func(tx *sql.Tx) error {
		seq, err := currentSequence(ctx, tx)
		if err != nil {
			return err
		}
		rec.Cursor = seq
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO watchers (`+watcherColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
			rec.ID, rec.Workspace, rec.Filter, rec.Cursor, string(rec.State),
			toNanos(rec.CreatedAt), toNanos(rec.ExpiresAt),
		); err != nil {
			return fmt.Errorf("memory: insert watcher %s: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetWatcher returns the watcher with the given id.
func (s *Store) GetWatcher(ctx context.Context, id string) (*WatcherRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+watcherColumns+` FROM watchers WHERE id = ?`, id)
	rec, err := scanWatcher(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWatcherNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read watcher %s: %w", id, err)
	}
	return rec, nil
}

// Watchers lists the watchers of workspace, oldest first.
func (s *Store) Watchers(ctx context.Context, workspace string) ([]WatcherRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+watcherColumns+` FROM watchers WHERE workspace = ? ORDER BY created_at ASC, rowid ASC`,
		workspace)
	if err != nil {
		return nil, fmt.Errorf("memory: query watchers: %w", err)
	}
	defer rows.Close()

	var out []WatcherRecord
	for rows.Next() {
		rec, err := scanWatcher(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: scan watcher: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate watchers: %w", err)
	}
	return out, nil
}

// AdvanceWatcher moves an active watcher's cursor from `from` to `to` and
// slides its expiry, in one compare-and-set statement. It returns
// ErrCursorConflict if the watcher is no longer active at cursor `from`, and
// refuses to move a cursor backwards.
func (s *Store) AdvanceWatcher(ctx context.Context, id string, from, to int64, expiresAt, polledAt time.Time) error {
	if to < from {
		return fmt.Errorf("memory: watcher %s cursor cannot move backwards (%d -> %d)", id, from, to)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE watchers SET cursor = ?, expires_at = ?, last_polled_at = ?
			 WHERE id = ? AND state = ? AND cursor = ?`,
			to, toNanos(expiresAt), toNanos(polledAt), id, string(WatcherActive), from)
		if err != nil {
			return fmt.Errorf("memory: advance watcher %s: %w", id, err)
		}
		return requireOneRow(res, id)
	})
}

// TransitionWatcher moves a watcher from one state to another. It returns
// ErrCursorConflict if the watcher was not in state `from`.
func (s *Store) TransitionWatcher(ctx context.Context, id string, from, to WatcherState) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE watchers SET state = ? WHERE id = ? AND state = ?`, string(to), id, string(from))
		if err != nil {
			return fmt.Errorf("memory: transition watcher %s: %w", id, err)
		}
		return requireOneRow(res, id)
	})
}

// ExpireWatchers marks every active watcher whose expiry is at or before now
// as expired and returns how many changed.
func (s *Store) ExpireWatchers(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE watchers SET state = ? WHERE state = ? AND expires_at <= ?`,
			string(WatcherExpired), string(WatcherActive), toNanos(now))
		if err != nil {
			return fmt.Errorf("memory: expire watchers: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("memory: watcher %s rows affected: %w", id, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s", ErrCursorConflict, id)
	}
	return nil
}

func scanWatcher(row scanner) (*WatcherRecord, error) {
	var (
		rec                  WatcherRecord
		state                string
		createdAt, expiresAt int64
		lastPolled           sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.Workspace, &rec.Filter, &rec.Cursor, &state,
		&createdAt, &expiresAt, &lastPolled); err != nil {
		return nil, err
	}
	rec.State = WatcherState(state)
	rec.CreatedAt = fromNanos(createdAt)
	rec.ExpiresAt = fromNanos(expiresAt)
	if lastPolled.Valid {
		t := fromNanos(lastPolled.Int64)
		rec.LastPolledAt = &t
	}
	return &rec, nil
}
