package items

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/workmem/pkg/tools"
)

// GetItemTool reads a single item.
type GetItemTool struct {
	workspace string
	store     Store
}

// NewGetItemTool creates a new GetItemTool.
func NewGetItemTool(workspace string, store Store) *GetItemTool {
	return &GetItemTool{
		workspace: workspace,
		store:     store,
	}
}

// Name returns the tool name.
func (t *GetItemTool) Name() string {
	return "get_item"
}

// Description returns the tool description.
func (t *GetItemTool) Description() string {
	return "Read one working-memory item of this workspace by key, with its full value."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *GetItemTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Item key",
			},
		},
		[]string{"key"},
	)
}

// Execute reads the item.
func (t *GetItemTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
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

	item, err := t.store.GetItem(ctx, t.workspace, key)
	if err != nil {
		return "", nil, err
	}

	metadata := map[string]interface{}{
		"key":              item.Key,
		"category":         string(item.Category),
		"priority":         string(item.Priority),
		"channel":          item.Channel,
		"shared":           item.Shared,
		"sequence":         item.Sequence,
		"created_sequence": item.CreatedSequence,
	}
	return formatItem(t.workspace, item) + "\n" + item.Value, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *GetItemTool) IsLoopBreaking() bool {
	return false
}
