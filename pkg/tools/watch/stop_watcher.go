package watch

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/tools"
)

// StopWatcherTool ends a watcher.
type StopWatcherTool struct {
	workspace string
	registry  *changes.Registry
}

// NewStopWatcherTool creates a new StopWatcherTool.
func NewStopWatcherTool(workspace string, registry *changes.Registry) *StopWatcherTool {
	return &StopWatcherTool{
		workspace: workspace,
		registry:  registry,
	}
}

// Name returns the tool name.
func (t *StopWatcherTool) Name() string {
	return "stop_watcher"
}

// Description returns the tool description.
func (t *StopWatcherTool) Description() string {
	return "Stop a watcher that is no longer needed. A stopped watcher cannot be polled or restarted."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *StopWatcherTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(watcherIDProperty(), []string{"watcher_id"})
}

// Execute stops the watcher.
func (t *StopWatcherTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName   xml.Name `xml:"arguments"`
		WatcherID string   `xml:"watcher_id"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	id, err := requireWatcherID(input.WatcherID)
	if err != nil {
		return "", nil, err
	}

	w, err := t.registry.Stop(ctx, t.workspace, id)
	if err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("Watcher %s stopped at cursor %d.", w.ID, w.Cursor), map[string]interface{}{
		"watcher_id": w.ID,
		"state":      string(w.State),
	}, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *StopWatcherTool) IsLoopBreaking() bool {
	return false
}
