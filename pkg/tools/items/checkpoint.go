package items

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/workmem/pkg/tools"
)

// CreateCheckpointTool records named checkpoints.
type CreateCheckpointTool struct {
	workspace string
	store     Store
}

// NewCreateCheckpointTool creates a new CreateCheckpointTool.
func NewCreateCheckpointTool(workspace string, store Store) *CreateCheckpointTool {
	return &CreateCheckpointTool{
		workspace: workspace,
		store:     store,
	}
}

// Name returns the tool name.
func (t *CreateCheckpointTool) Name() string {
	return "create_checkpoint"
}

// Description returns the tool description.
func (t *CreateCheckpointTool) Description() string {
	return "Record a named checkpoint of this workspace's items. Pass its name to diff later to see " +
		"what was added, modified and deleted since."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *CreateCheckpointTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Checkpoint name; reusing a name makes the newest one win",
			},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "Optional description",
			},
		},
		[]string{"name"},
	)
}

// Execute creates the checkpoint.
func (t *CreateCheckpointTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName     xml.Name `xml:"arguments"`
		Name        string   `xml:"name"`
		Description string   `xml:"description"`
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	name, err := requireParam("name", input.Name)
	if err != nil {
		return "", nil, err
	}

	cp, err := t.store.CreateCheckpoint(ctx, t.workspace, name, strings.TrimSpace(input.Description))
	if err != nil {
		return "", nil, err
	}

	metadata := map[string]interface{}{
		"checkpoint_id": cp.ID,
		"name":          cp.Name,
		"sequence":      cp.Sequence,
		"item_count":    cp.ItemCount,
	}
	return fmt.Sprintf("Checkpoint %q (%s) at #%d with %d item(s)", cp.Name, cp.ID, cp.Sequence, cp.ItemCount), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *CreateCheckpointTool) IsLoopBreaking() bool {
	return false
}

// ListCheckpointsTool lists checkpoints.
type ListCheckpointsTool struct {
	workspace string
	store     Store
}

// NewListCheckpointsTool creates a new ListCheckpointsTool.
func NewListCheckpointsTool(workspace string, store Store) *ListCheckpointsTool {
	return &ListCheckpointsTool{
		workspace: workspace,
		store:     store,
	}
}

// Name returns the tool name.
func (t *ListCheckpointsTool) Name() string {
	return "list_checkpoints"
}

// Description returns the tool description.
func (t *ListCheckpointsTool) Description() string {
	return "List this workspace's checkpoints, newest first."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *ListCheckpointsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, []string{})
}

// Execute lists checkpoints. It takes no arguments.
func (t *ListCheckpointsTool) Execute(ctx context.Context, _ []byte) (string, map[string]interface{}, error) {
	cps, err := t.store.Checkpoints(ctx, t.workspace)
	if err != nil {
		return "", nil, err
	}
	if len(cps) == 0 {
		return "No checkpoints.", map[string]interface{}{"checkpoint_count": 0}, nil
	}

	lines := make([]string, len(cps))
	for i, cp := range cps {
		line := fmt.Sprintf("%s %q #%d %d item(s) %s", cp.ID, cp.Name, cp.Sequence, cp.ItemCount, cp.CreatedAt.Format(timeLayout))
		if cp.Description != "" {
			line += " - " + cp.Description
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n"), map[string]interface{}{"checkpoint_count": len(cps)}, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *ListCheckpointsTool) IsLoopBreaking() bool {
	return false
}
