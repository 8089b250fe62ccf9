package watch

import (
	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/tools"
)

// NewTools returns every change-tracking tool bound to workspace.
func NewTools(workspace string, registry *changes.Registry, differ *changes.Differ, shaper *Shaper) []tools.Tool {
	return []tools.Tool{
		NewCreateWatcherTool(workspace, registry),
		NewPollWatcherTool(workspace, registry, shaper),
		NewStopWatcherTool(workspace, registry),
		NewListWatchersTool(workspace, registry),
		NewDiffTool(workspace, differ, shaper),
	}
}

// Register adds the change-tracking tools for workspace to r.
func Register(r *tools.Registry, workspace string, registry *changes.Registry, differ *changes.Differ, shaper *Shaper) error {
	for _, t := range NewTools(workspace, registry, differ, shaper) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
