package watch

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/tools"
)

// CreateWatcherTool subscribes to future changes in a workspace.
type CreateWatcherTool struct {
	workspace string
	registry  *changes.Registry
}

// NewCreateWatcherTool creates a new CreateWatcherTool.
func NewCreateWatcherTool(workspace string, registry *changes.Registry) *CreateWatcherTool {
	return &CreateWatcherTool{
		workspace: workspace,
		registry:  registry,
	}
}

// Name returns the tool name.
func (t *CreateWatcherTool) Name() string {
	return "create_watcher"
}

// Description returns the tool description.
func (t *CreateWatcherTool) Description() string {
	return "Create a watcher that reports memory changes made after it was created. " +
		"Optionally filter by key pattern, channel, category or priority. " +
		"Poll it with poll_watcher; it expires after 30 minutes without a poll."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *CreateWatcherTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(filterProperties(), []string{})
}

// Execute creates the watcher.
func (t *CreateWatcherTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName xml.Name `xml:"arguments"`
		filterArgs
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}

	w, err := t.registry.Create(ctx, t.workspace, input.spec())
	if err != nil {
		return "", nil, err
	}

	message := fmt.Sprintf("Watcher %s created (%s). Poll it with poll_watcher before %s.",
		w.ID, describeFilter(w.Filter), w.ExpiresAt.Format("2006-01-02 15:04:05Z07:00"))
	metadata := map[string]interface{}{
		"watcher_id": w.ID,
		"cursor":     w.Cursor,
		"expires_at": w.ExpiresAt,
	}
	return message, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *CreateWatcherTool) IsLoopBreaking() bool {
	return false
}
