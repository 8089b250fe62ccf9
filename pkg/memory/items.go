package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxKeyLength is the maximum number of characters in an item key.
	MaxKeyLength = 256

	itemColumns = `workspace, key, value, category, priority, channel, shared,
		sequence, created_sequence, created_at, updated_at`
)

// ValidateKey checks that key is usable as an item identity.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidItem)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds maximum length of %d characters (got %d)",
			ErrInvalidItem, MaxKeyLength, len(key))
	}
	return nil
}

func validateWorkspace(workspace string) error {
	if strings.TrimSpace(workspace) == "" {
		return fmt.Errorf("%w: workspace cannot be empty", ErrInvalidItem)
	}
	return nil
}

func normalizeInput(in ItemInput) (ItemInput, error) {
	if err := ValidateKey(in.Key); err != nil {
		return in, err
	}
	if in.Category == "" {
		in.Category = CategoryNote
	} else {
		c, err := ParseCategory(string(in.Category))
		if err != nil {
			return in, fmt.Errorf("%w: %v", ErrInvalidItem, err)
		}
		in.Category = c
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	} else {
		p, err := ParsePriority(string(in.Priority))
		if err != nil {
			return in, fmt.Errorf("%w: %v", ErrInvalidItem, err)
		}
		in.Priority = p
	}
	in.Channel = strings.TrimSpace(in.Channel)
	if in.Channel == "" {
		in.Channel = DefaultChannel
	}
	return in, nil
}

// SaveItem creates or updates the item stored under in.Key.
//
// A sequence number is consumed when the item is created or when its value
// changes. A write that only changes category, priority, channel or sharing
// is stored in place without a new sequence number and without touching
// UpdatedAt; a write that changes nothing is a no-op.
func (s *Store) SaveItem(ctx context.Context, workspace string, in ItemInput) (*SaveResult, error) {
	if err := validateWorkspace(workspace); err != nil {
		return nil, err
	}
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	var result *SaveResult
	err = s.write(ctx, func(tx *sql.Tx) error {
		existing, err := getItem(ctx, tx, workspace, in.Key)
		if errors.Is(err, ErrItemNotFound) {
			item, err := s.insertItem(ctx, tx, workspace, in)
			if err != nil {
				return err
			}
			result = &SaveResult{Item: item, Created: true, Sequenced: true}
			return nil
		}
		if err != nil {
			return err
		}

		if existing.Value != in.Value {
			seq, err := nextSequence(ctx, tx)
			if err != nil {
				return err
			}
			now := s.Now()
			if _, err := tx.ExecContext(ctx,
				`UPDATE items SET value = ?, category = ?, priority = ?, channel = ?, shared = ?,
					sequence = ?, updated_at = ?
				 WHERE workspace = ? AND key = ?`,
				in.Value, string(in.Category), string(in.Priority), in.Channel, boolToInt(in.Shared),
				seq, toNanos(now), workspace, in.Key,
			); err != nil {
				return fmt.Errorf("memory: update item %s: %w", in.Key, err)
			}
			applyInput(existing, in)
			existing.Sequence = seq
			existing.UpdatedAt = now
			result = &SaveResult{Item: existing, Sequenced: true}
			return nil
		}

		if metadataChanged(existing, in) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE items SET category = ?, priority = ?, channel = ?, shared = ?
				 WHERE workspace = ? AND key = ?`,
				string(in.Category), string(in.Priority), in.Channel, boolToInt(in.Shared),
				workspace, in.Key,
			); err != nil {
				return fmt.Errorf("memory: update item metadata %s: %w", in.Key, err)
			}
			applyInput(existing, in)
		}
		result = &SaveResult{Item: existing}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Sequenced {
		s.log.Debugf("saved %s/%s at sequence %d (created=%t)", workspace, in.Key, result.Item.Sequence, result.Created)
	}
	return result, nil
}

func (s *Store) insertItem(ctx context.Context, tx *sql.Tx, workspace string, in ItemInput) (*Item, error) {
	seq, err := nextSequence(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	item := &Item{
		Workspace:       workspace,
		Key:             in.Key,
		Value:           in.Value,
		Category:        in.Category,
		Priority:        in.Priority,
		Channel:         in.Channel,
		Shared:          in.Shared,
		Sequence:        seq,
		CreatedSequence: seq,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Workspace, item.Key, item.Value, string(item.Category), string(item.Priority), item.Channel,
		boolToInt(item.Shared), item.Sequence, item.CreatedSequence, toNanos(now), toNanos(now),
	); err != nil {
		return nil, fmt.Errorf("memory: insert item %s: %w", in.Key, err)
	}
	return item, nil
}

func metadataChanged(item *Item, in ItemInput) bool {
	return item.Category != in.Category ||
		item.Priority != in.Priority ||
		item.Channel != in.Channel ||
		item.Shared != in.Shared
}

func applyInput(item *Item, in ItemInput) {
	item.Value = in.Value
	item.Category = in.Category
	item.Priority = in.Priority
	item.Channel = in.Channel
	item.Shared = in.Shared
}

// GetItem returns the item stored under key in workspace.
func (s *Store) GetItem(ctx context.Context, workspace, key string) (*Item, error) {
	return getItem(ctx, s.db, workspace, key)
}

func getItem(ctx context.Context, q querier, workspace, key string) (*Item, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE workspace = ? AND key = ?`, workspace, key)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read item %s: %w", key, err)
	}
	return item, nil
}

// DeleteItem removes the item and records its tombstone in the same
// transaction. The deletion consumes one sequence number.
func (s *Store) DeleteItem(ctx context.Context, workspace, key string) (*Tombstone, error) {
	var tomb *Tombstone
	err := s.write(ctx, func(tx *sql.Tx) error {
		item, err := getItem(ctx, tx, workspace, key)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE workspace = ? AND key = ?`, workspace, key); err != nil {
			return fmt.Errorf("memory: delete item %s: %w", key, err)
		}
		tomb, err = s.recordDeletion(ctx, tx, item)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debugf("deleted %s/%s at sequence %d", workspace, key, tomb.Sequence)
	return tomb, nil
}

// Items returns the items owned by workspace, ordered by key.
func (s *Store) Items(ctx context.Context, workspace string) ([]Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items WHERE workspace = ? ORDER BY key`, workspace)
}

// VisibleItems returns the items workspace can see: its own plus items other
// workspaces marked shared, in ascending sequence order.
func (s *Store) VisibleItems(ctx context.Context, workspace string) ([]Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE workspace = ? OR shared = 1
		 ORDER BY sequence ASC`, workspace)
}

// VisibleItemsSince is VisibleItems restricted to sequence numbers in
// (cursor, upto].
func (s *Store) VisibleItemsSince(ctx context.Context, workspace string, cursor, upto int64) ([]Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE (workspace = ? OR shared = 1) AND sequence > ? AND sequence <= ?
		 ORDER BY sequence ASC`, workspace, cursor, upto)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: scan item: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate items: %w", err)
	}
	return out, nil
}

func scanItem(row scanner) (*Item, error) {
	var (
		item                 Item
		category, priority   string
		shared               int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&item.Workspace, &item.Key, &item.Value, &category, &priority, &item.Channel,
		&shared, &item.Sequence, &item.CreatedSequence, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.Category = Category(category)
	item.Priority = Priority(priority)
	item.Shared = shared != 0
	item.CreatedAt = fromNanos(createdAt)
	item.UpdatedAt = fromNanos(updatedAt)
	return &item, nil
}
