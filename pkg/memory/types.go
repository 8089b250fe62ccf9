package memory

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies the kind of information an item holds.
type Category string

const (
	CategoryTask     Category = "task"
	CategoryDecision Category = "decision"
	CategoryProgress Category = "progress"
	CategoryNote     Category = "note"
	CategoryError    Category = "error"
	CategoryWarning  Category = "warning"
)

// Categories lists every valid category in declaration order.
var Categories = []Category{
	CategoryTask,
	CategoryDecision,
	CategoryProgress,
	CategoryNote,
	CategoryError,
	CategoryWarning,
}

// ParseCategory normalizes s and checks it against the closed category set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (must be one of %s)", s, joinCategories())
}

func joinCategories() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// Priority orders items of equal category for the caller.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Priorities lists every valid priority, highest first.
var Priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// ParsePriority normalizes s and checks it against the closed priority set.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q (must be one of high, normal, low)", s)
}

// DefaultChannel is assigned to items written without a channel.
const DefaultChannel = "general"

// Item is the live, mutable unit of working memory.
type Item struct {
	Workspace string
	Key       string
	Value     string
	Category  Category
	Priority  Priority
	Channel   string
	Shared    bool

	// Sequence is the position of the item's last value change.
	Sequence int64
	// CreatedSequence is the position assigned when the item was created.
	CreatedSequence int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemInput carries the fields of a write. Empty Category, Priority and
// Channel fall back to note, normal and DefaultChannel.
type ItemInput struct {
	Key      string
	Value    string
	Category Category
	Priority Priority
	Channel  string
	Shared   bool
}

// SaveResult describes the outcome of Store.SaveItem.
type SaveResult struct {
	Item *Item
	// Created is true when no item existed under the key.
	Created bool
	// Sequenced is true when the write consumed a sequence number.
	Sequenced bool
}

// Tombstone records that an item disappeared from the live table.
type Tombstone struct {
	Workspace string
	Key       string
	Category  Category
	Priority  Priority
	Channel   string
	Shared    bool
	Sequence  int64
	DeletedAt time.Time
}

// Checkpoint is a named, immutable snapshot boundary.
type Checkpoint struct {
	ID          string
	Workspace   string
	Name        string
	Description string
	// Sequence is the counter value when the checkpoint was taken.
	Sequence  int64
	CreatedAt time.Time
	ItemCount int
}

// CheckpointItem is the snapshot of one item linked to a checkpoint.
type CheckpointItem struct {
	CheckpointID string
	Key          string
	Category     Category
	Priority     Priority
	Channel      string
}

// WatcherState is the lifecycle state of a watcher.
type WatcherState string

const (
	WatcherActive  WatcherState = "active"
	WatcherExpired WatcherState = "expired"
	WatcherStopped WatcherState = "stopped"
)

// Terminal reports whether no further transition is possible from s.
func (s WatcherState) Terminal() bool {
	return s == WatcherExpired || s == WatcherStopped
}

// WatcherRecord is the persisted form of a watcher. Filter is an opaque,
// already-validated encoding owned by the subscription layer.
type WatcherRecord struct {
	ID           string
	Workspace    string
	Filter       string
	Cursor       int64
	State        WatcherState
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastPolledAt *time.Time
}
