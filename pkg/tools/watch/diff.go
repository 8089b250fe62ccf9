package watch

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/tools"
)

// DiffTool reports what changed since a checkpoint, phrase or timestamp.
type DiffTool struct {
	workspace string
	differ    *changes.Differ
	shaper    *Shaper
}

// NewDiffTool creates a new DiffTool. shaper may be nil.
func NewDiffTool(workspace string, differ *changes.Differ, shaper *Shaper) *DiffTool {
	return &DiffTool{
		workspace: workspace,
		differ:    differ,
		shaper:    shaper,
	}
}

// Name returns the tool name.
func (t *DiffTool) Name() string {
	return "diff"
}

// Description returns the tool description.
func (t *DiffTool) Description() string {
	return "Show memory items added, modified or deleted since a point in time. " +
		"'since' accepts a checkpoint name or id, a phrase (today, yesterday, this week, last week, " +
		"'N minutes/hours/days/weeks ago') or a timestamp; it defaults to the last hour. " +
		"Deletions are only reported against a checkpoint."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *DiffTool) Schema() map[string]interface{} {
	props := filterProperties()
	props["since"] = map[string]interface{}{
		"type":        "string",
		"description": "Checkpoint name or id, relative phrase, or timestamp (default: 1 hour ago)",
	}
	props["include_values"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Include item values in the output (default: true)",
	}
	return tools.BaseToolSchema(props, []string{})
}

// Execute computes the diff.
func (t *DiffTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName       xml.Name `xml:"arguments"`
		Since         string   `xml:"since"`
		IncludeValues *bool    `xml:"include_values"`
		filterArgs
	}
	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}
	includeValues := input.IncludeValues == nil || *input.IncludeValues

	res, err := t.differ.DiffSince(ctx, t.workspace, strings.TrimSpace(input.Since), input.spec(), includeValues)
	if err != nil {
		return "", nil, err
	}

	lines := make([]string, 0, len(res.Added)+len(res.Modified)+len(res.Deleted))
	for _, e := range res.Added {
		lines = append(lines, formatEntry(t.workspace, "+", e))
	}
	for _, e := range res.Modified {
		lines = append(lines, formatEntry(t.workspace, "~", e))
	}
	for _, d := range res.Deleted {
		lines = append(lines, formatDeletion(d))
	}
	message, truncated := t.shaper.Shape(res.Summary, lines)

	metadata := map[string]interface{}{
		"anchor":    string(res.Anchor.Kind),
		"added":     len(res.Added),
		"modified":  len(res.Modified),
		"deleted":   len(res.Deleted),
		"truncated": truncated,
	}
	if !res.Anchor.Since.IsZero() {
		metadata["since"] = res.Anchor.Since
	}
	return message, metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *DiffTool) IsLoopBreaking() bool {
	return false
}
