package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/workmem/pkg/memory"
)

// Store is the part of the memory store the item tools use.
type Store interface {
	SaveItem(ctx context.Context, workspace string, in memory.ItemInput) (*memory.SaveResult, error)
	GetItem(ctx context.Context, workspace, key string) (*memory.Item, error)
	DeleteItem(ctx context.Context, workspace, key string) (*memory.Tombstone, error)
	VisibleItems(ctx context.Context, workspace string) ([]memory.Item, error)
	CreateCheckpoint(ctx context.Context, workspace, name, description string) (*memory.Checkpoint, error)
	Checkpoints(ctx context.Context, workspace string) ([]memory.Checkpoint, error)
}

const (
	timeLayout    = "2006-01-02 15:04:05Z07:00"
	maxValueChars = 200
)

// formatItem renders the one-line summary of an item. Keys owned by another
// workspace are prefixed with the owner.
func formatItem(workspace string, item *memory.Item) string {
	key := item.Key
	if item.Workspace != "" && item.Workspace != workspace {
		key = item.Workspace + "/" + item.Key
	}
	return fmt.Sprintf("#%d %s (%s, %s, %s) updated %s",
		item.Sequence, key, item.Category, item.Priority, item.Channel, item.UpdatedAt.Format(timeLayout))
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxValueChars {
		return s
	}
	return string(r[:maxValueChars]) + "..."
}

func requireParam(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("missing required parameter: %s", name)
	}
	return value, nil
}
