package items

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/tools"
)

const defaultListLimit = 20

// ListItemsTool lists the items visible to a workspace.
type ListItemsTool struct {
	workspace string
	store     Store
}

// NewListItemsTool creates a new ListItemsTool.
func NewListItemsTool(workspace string, store Store) *ListItemsTool {
	return &ListItemsTool{
		workspace: workspace,
		store:     store,
	}
}

// Name returns the tool name.
func (t *ListItemsTool) Name() string {
	return "list_items"
}

// Description returns the tool description.
func (t *ListItemsTool) Description() string {
	return "List working-memory items visible to this workspace, most recently changed first. " +
		"Filter by category, channel or a case-insensitive text query over keys and values."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ListItemsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"category": map[string]interface{}{
				"type":        "string",
				"enum":        categoryNames(),
				"description": "Only items in this category",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Only items in this channel",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Text that must appear in the key or value",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of items to return (default: 20)",
			},
		},
		[]string{},
	)
}

// Execute lists items.
func (t *ListItemsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName  xml.Name `xml:"arguments"`
		Category string   `xml:"category"`
		Channel  string   `xml:"channel"`
		Query    string   `xml:"query"`
		Limit    int      `xml:"limit"`
	}
	if len(argsXML) > 0 {
		if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if input.Limit <= 0 {
		input.Limit = defaultListLimit
	}

	var spec changes.FilterSpec
	if c := strings.TrimSpace(input.Category); c != "" {
		spec.Categories = []string{c}
	}
	if ch := strings.TrimSpace(input.Channel); ch != "" {
		spec.Channels = []string{ch}
	}
	filter, err := changes.NewFilter(spec)
	if err != nil {
		return "", nil, err
	}
	query := strings.ToLower(strings.TrimSpace(input.Query))

	all, err := t.store.VisibleItems(ctx, t.workspace)
	if err != nil {
		return "", nil, err
	}

	// VisibleItems is oldest first.
	var lines []string
	matched := 0
	for i := len(all) - 1; i >= 0; i-- {
		item := &all[i]
		if !filter.Matches(item) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(item.Key), query) &&
			!strings.Contains(strings.ToLower(item.Value), query) {
			continue
		}
		matched++
		if len(lines) < input.Limit {
			lines = append(lines, formatItem(t.workspace, item)+"\n   "+clip(item.Value))
		}
	}

	var message string
	switch {
	case matched == 0:
		message = "No items found."
	case matched > len(lines):
		message = fmt.Sprintf("Showing %d of %d item(s):\n%s", len(lines), matched, strings.Join(lines, "\n"))
	default:
		message = fmt.Sprintf("Found %d item(s):\n%s", matched, strings.Join(lines, "\n"))
	}

	metadata := map[string]interface{}{
		"item_count": len(lines),
		"matched":    matched,
		"limit":      input.Limit,
	}
	return message, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *ListItemsTool) IsLoopBreaking() bool {
	return false
}
