package items

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/workmem/pkg/tools"
)

// ListChannelsTool lists the channels in use.
type ListChannelsTool struct {
	workspace string
	store     Store
}

// NewListChannelsTool creates a new ListChannelsTool.
func NewListChannelsTool(workspace string, store Store) *ListChannelsTool {
	return &ListChannelsTool{
		workspace: workspace,
		store:     store,
	}
}

// Name returns the tool name.
func (t *ListChannelsTool) Name() string {
	return "list_channels"
}

// Description returns the tool description.
func (t *ListChannelsTool) Description() string {
	return "List every channel used by items visible to this workspace, with item counts."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ListChannelsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, []string{})
}

// Execute lists channels. It takes no arguments.
func (t *ListChannelsTool) Execute(ctx context.Context, _ []byte) (string, map[string]interface{}, error) {
	all, err := t.store.VisibleItems(ctx, t.workspace)
	if err != nil {
		return "", nil, err
	}

	counts := make(map[string]int)
	for _, item := range all {
		counts[item.Channel]++
	}
	channels := make([]string, 0, len(counts))
	for ch := range counts {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	metadata := map[string]interface{}{
		"channel_count": len(channels),
		"channels":      channels,
	}
	if len(channels) == 0 {
		return "No channels in use.", metadata, nil
	}

	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = fmt.Sprintf("%s (%d)", ch, counts[ch])
	}
	return fmt.Sprintf("%d channel(s): %s", len(channels), strings.Join(parts, ", ")), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *ListChannelsTool) IsLoopBreaking() bool {
	return false
}
