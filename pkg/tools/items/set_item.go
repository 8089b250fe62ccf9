package items

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/workmem/pkg/memory"
	"github.com/entrhq/workmem/pkg/tools"
)

// SetItemTool creates or updates items.
type SetItemTool struct {
	workspace string
	store     Store
}

// NewSetItemTool creates a new SetItemTool.
func NewSetItemTool(workspace string, store Store) *SetItemTool {
	return &SetItemTool{
		workspace: workspace,
		store:     store,
	}
}

// Name returns the tool name.
func (t *SetItemTool) Name() string {
	return "set_item"
}

// Description returns the tool description.
func (t *SetItemTool) Description() string {
	return "Create a working-memory item or replace an existing one. Omitted category, priority and channel " +
		"default to note, normal and general. Only a changed value is reported to watchers."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *SetItemTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Item key, unique within the workspace",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Item value",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"enum":        categoryNames(),
				"description": "Kind of information (default: note)",
			},
			"priority": map[string]interface{}{
				"type":        "string",
				"enum":        priorityNames(),
				"description": "Priority (default: normal)",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Channel to group related items (default: general)",
			},
			"shared": map[string]interface{}{
				"type":        "boolean",
				"description": "Make the item visible to other workspaces (default: false)",
			},
		},
		[]string{"key", "value"},
	)
}

// Execute saves the item.
func (t *SetItemTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName  xml.Name `xml:"arguments"`
		Key      string   `xml:"key"`
		Value    string   `xml:"value"`
		Category string   `xml:"category"`
		Priority string   `xml:"priority"`
		Channel  string   `xml:"channel"`
		Shared   bool     `xml:"shared"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	key, err := requireParam("key", input.Key)
	if err != nil {
		return "", nil, err
	}

	res, err := t.store.SaveItem(ctx, t.workspace, memory.ItemInput{
		Key:      key,
		Value:    input.Value,
		Category: memory.Category(strings.TrimSpace(input.Category)),
		Priority: memory.Priority(strings.TrimSpace(input.Priority)),
		Channel:  strings.TrimSpace(input.Channel),
		Shared:   input.Shared,
	})
	if err != nil {
		return "", nil, err
	}

	var message string
	switch {
	case res.Created:
		message = fmt.Sprintf("Created %s at #%d", res.Item.Key, res.Item.Sequence)
	case res.Sequenced:
		message = fmt.Sprintf("Updated %s at #%d", res.Item.Key, res.Item.Sequence)
	default:
		message = fmt.Sprintf("Saved %s (value unchanged, still #%d)", res.Item.Key, res.Item.Sequence)
	}

	metadata := map[string]interface{}{
		"key":       res.Item.Key,
		"sequence":  res.Item.Sequence,
		"created":   res.Created,
		"sequenced": res.Sequenced,
	}
	return message, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *SetItemTool) IsLoopBreaking() bool {
	return false
}

func categoryNames() []string {
	names := make([]string, len(memory.Categories))
	for i, c := range memory.Categories {
		names[i] = string(c)
	}
	return names
}

func priorityNames() []string {
	names := make([]string, len(memory.Priorities))
	for i, p := range memory.Priorities {
		names[i] = string(p)
	}
	return names
}
