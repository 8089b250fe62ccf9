package items

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/workmem/pkg/tools"
)

// DeleteItemTool removes items.
type DeleteItemTool struct {
	workspace string
	store     Store
}

// NewDeleteItemTool creates a new DeleteItemTool.
func NewDeleteItemTool(workspace string, store Store) *DeleteItemTool {
	return &DeleteItemTool{
		workspace: workspace,
		store:     store,
	}
}

// Name returns the tool name.
func (t *DeleteItemTool) Name() string {
	return "delete_item"
}

// Description returns the tool description.
func (t *DeleteItemTool) Description() string {
	return "Delete a working-memory item. The deletion is reported to watchers and to diffs against earlier checkpoints."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *DeleteItemTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Key of the item to delete",
			},
		},
		[]string{"key"},
	)
}

// Execute deletes the item.
func (t *DeleteItemTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		Key     string   `xml:"key"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	key, err := requireParam("key", input.Key)
	if err != nil {
		return "", nil, err
	}

	ts, err := t.store.DeleteItem(ctx, t.workspace, key)
	if err != nil {
		return "", nil, err
	}

	metadata := map[string]interface{}{
		"key":      ts.Key,
		"sequence": ts.Sequence,
	}
	return fmt.Sprintf("Deleted %s at #%d", ts.Key, ts.Sequence), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *DeleteItemTool) IsLoopBreaking() bool {
	return false
}
