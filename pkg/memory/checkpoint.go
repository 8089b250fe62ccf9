package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const checkpointColumns = `id, workspace, name, description, sequence, created_at, item_count`

// CreateCheckpoint snapshots the items workspace owns right now. The item
// set and the counter value are read inside the write section, so no write
// can slip between them.
func (s *Store) CreateCheckpoint(ctx context.Context, workspace, name, description string) (*Checkpoint, error) {
	if err := validateWorkspace(workspace); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: checkpoint name cannot be empty", ErrInvalidItem)
	}

	cp := &Checkpoint{
		ID:          uuid.New().String(),
		Workspace:   workspace,
		Name:        name,
		Description: description,
	}
	err := s.write(ctx, func(tx *sql.Tx) error {
		seq, err := currentSequence(ctx, tx)
		if err != nil {
			return err
		}
		cp.Sequence = seq
		cp.CreatedAt = s.Now()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoints (`+checkpointColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0)`,
			cp.ID, cp.Workspace, cp.Name, cp.Description, cp.Sequence, toNanos(cp.CreatedAt),
		); err != nil {
			return fmt.Errorf("memory: insert checkpoint %s: %w", name, err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoint_items (checkpoint_id, key, category, priority, channel)
			 SELECT ?, key, category, priority, channel FROM items WHERE workspace = ?`,
			cp.ID, workspace)
		if err != nil {
			return fmt.Errorf("memory: link checkpoint items: %w", err)
		}
		linked, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("memory: link checkpoint items: %w", err)
		}
		cp.ItemCount = int(linked)

		if _, err := tx.ExecContext(ctx,
			`UPDATE checkpoints SET item_count = ? WHERE id = ?`, cp.ItemCount, cp.ID); err != nil {
			return fmt.Errorf("memory: update checkpoint %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("checkpoint %q (%s) linked %d item(s) at sequence %d", cp.Name, cp.ID, cp.ItemCount, cp.Sequence)
	return cp, nil
}

// CheckpointByName returns the most recently created checkpoint called name.
func (s *Store) CheckpointByName(ctx context.Context, workspace, name string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints
		 WHERE workspace = ? AND name = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, workspace, name)
	return scanCheckpointRow(row, name)
}

// CheckpointByID returns the checkpoint with the given identifier.
func (s *Store) CheckpointByID(ctx context.Context, workspace, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE workspace = ? AND id = ?`, workspace, id)
	return scanCheckpointRow(row, id)
}

// Checkpoints lists workspace's checkpoints, newest first.
func (s *Store) Checkpoints(ctx context.Context, workspace string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints
		 WHERE workspace = ? ORDER BY created_at DESC, rowid DESC`, workspace)
	if err != nil {
		return nil, fmt.Errorf("memory: query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: scan checkpoint: %w", err)
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate checkpoints: %w", err)
	}
	return out, nil
}

// CheckpointItems returns the item snapshot linked to a checkpoint, by key.
func (s *Store) CheckpointItems(ctx context.Context, checkpointID string) ([]CheckpointItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_id, key, category, priority, channel FROM checkpoint_items
		 WHERE checkpoint_id = ? ORDER BY key`, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("memory: query checkpoint items: %w", err)
	}
	defer rows.Close()

	var out []CheckpointItem
	for rows.Next() {
		var (
			ci                 CheckpointItem
			category, priority string
		)
		if err := rows.Scan(&ci.CheckpointID, &ci.Key, &category, &priority, &ci.Channel); err != nil {
			return nil, fmt.Errorf("memory: scan checkpoint item: %w", err)
		}
		ci.Category = Category(category)
		ci.Priority = Priority(priority)
		out = append(out, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate checkpoint items: %w", err)
	}
	return out, nil
}

func scanCheckpointRow(row *sql.Row, ref string) (*Checkpoint, error) {
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read checkpoint %s: %w", ref, err)
	}
	return cp, nil
}

func scanCheckpoint(row scanner) (*Checkpoint, error) {
	var (
		cp        Checkpoint
		createdAt int64
	)
	if err := row.Scan(&cp.ID, &cp.Workspace, &cp.Name, &cp.Description, &cp.Sequence,
		&createdAt, &cp.ItemCount); err != nil {
		return nil, err
	}
	cp.CreatedAt = fromNanos(createdAt)
	return &cp, nil
}
