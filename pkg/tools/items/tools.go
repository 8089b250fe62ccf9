package items

import "github.com/entrhq/workmem/pkg/tools"

// NewTools returns every item tool bound to workspace.
func NewTools(workspace string, store Store) []tools.Tool {
	return []tools.Tool{
		NewSetItemTool(workspace, store),
		NewGetItemTool(workspace, store),
		NewDeleteItemTool(workspace, store),
		NewListItemsTool(workspace, store),
		NewListChannelsTool(workspace, store),
		NewCreateCheckpointTool(workspace, store),
		NewListCheckpointsTool(workspace, store),
	}
}

// Register adds the item tools for workspace to r.
func Register(r *tools.Registry, workspace string, store Store) error {
	for _, t := range NewTools(workspace, store) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
