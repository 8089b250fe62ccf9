package watch

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/memory"
	"github.com/entrhq/workmem/pkg/tools"
)

// ListWatchersTool lists the workspace's watchers.
type ListWatchersTool struct {
	workspace string
	registry  *changes.Registry
}

// NewListWatchersTool creates a new ListWatchersTool.
func NewListWatchersTool(workspace string, registry *changes.Registry) *ListWatchersTool {
	return &ListWatchersTool{
		workspace: workspace,
		registry:  registry,
	}
}

// Name returns the tool name.
func (t *ListWatchersTool) Name() string {
	return "list_watchers"
}

// Description returns the tool description.
func (t *ListWatchersTool) Description() string {
	return "List this workspace's watchers with their state (active, expired, stopped), filter and cursor."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ListWatchersTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, []string{})
}

// Execute lists watchers.
func (t *ListWatchersTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	if len(argsXML) > 0 {
		var input struct {
			XMLName xml.Name `xml:"arguments"`
		}
		if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	watchers, err := t.registry.List(ctx, t.workspace)
	if err != nil {
		return "", nil, err
	}
	if len(watchers) == 0 {
		return "No watchers.", map[string]interface{}{"total": 0, "active": 0}, nil
	}

	active := 0
	lines := make([]string, len(watchers))
	for i, w := range watchers {
		if w.State == memory.WatcherActive {
			active++
		}
		lines[i] = formatWatcher(w)
	}

	message := join(fmt.Sprintf("%d watcher(s), %d active:", len(watchers), active), lines)
	return message, map[string]interface{}{
		"total":  len(watchers),
		"active": active,
	}, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *ListWatchersTool) IsLoopBreaking() bool {
	return false
}
