package watch

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/tools"
)

// PollWatcherTool returns the changes a watcher has not reported yet.
type PollWatcherTool struct {
	workspace string
	registry  *changes.Registry
	shaper    *Shaper
}

// NewPollWatcherTool creates a new PollWatcherTool. shaper may be nil.
func NewPollWatcherTool(workspace string, registry *changes.Registry, shaper *Shaper) *PollWatcherTool {
	return &PollWatcherTool{
		workspace: workspace,
		registry:  registry,
		shaper:    shaper,
	}
}

// Name returns the tool name.
func (t *PollWatcherTool) Name() string {
	return "poll_watcher"
}

// Description returns the tool description.
func (t *PollWatcherTool) Description() string {
	return "Poll a watcher for CREATE, UPDATE and DELETE changes since its last poll, oldest first. " +
		"Each change is reported once. Polling also keeps the watcher alive for another 30 minutes."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *PollWatcherTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(watcherIDProperty(), []string{"watcher_id"})
}

// Execute polls the watcher.
func (t *PollWatcherTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
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

	res, err := t.registry.Poll(ctx, t.workspace, id)
	if err != nil {
		return "", nil, err
	}

	if len(res.Changes) == 0 {
		return "No changes since the last poll.", map[string]interface{}{
			"watcher_id": id,
			"changes":    0,
			"cursor":     res.Cursor,
		}, nil
	}

	lines := make([]string, len(res.Changes))
	for i, c := range res.Changes {
		lines[i] = formatChange(t.workspace, c)
	}
	header := fmt.Sprintf("%d change(s), cursor now %d:", len(res.Changes), res.Cursor)
	message, truncated := t.shaper.Shape(header, lines)

	metadata := map[string]interface{}{
		"watcher_id": id,
		"changes":    len(res.Changes),
		"cursor":     res.Cursor,
		"truncated":  truncated,
	}
	if truncated > 0 {
		// The cursor is already past the cut entries; say where output stopped
		// so they can be re-read with diff.
		shown := len(res.Changes) - truncated
		omitted := res.Changes[shown]
		message += fmt.Sprintf("\nOutput stops before #%d; #%d-#%d will not be polled again. Re-read live items with diff since %q.",
			omitted.Sequence, omitted.Sequence, res.Cursor, omitted.Timestamp.Add(-time.Second).Format(time.RFC3339))
		metadata["first_omitted"] = omitted.Sequence
		if shown > 0 {
			metadata["shown_through"] = res.Changes[shown-1].Sequence
		}
	}
	return message, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *PollWatcherTool) IsLoopBreaking() bool {
	return false
}
