package watch

import (
	"fmt"
	"strings"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/memory"
)

// filterArgs is the XML form of a filter, shared by create_watcher and diff:
//
//	<keys><key>task_*</key></keys>
//	<channels><channel>build</channel></channels>
//	<categories><category>task</category></categories>
//	<priorities><priority>high</priority></priorities>
type filterArgs struct {
	Keys       []string `xml:"keys>key"`
	Channels   []string `xml:"channels>channel"`
	Categories []string `xml:"categories>category"`
	Priorities []string `xml:"priorities>priority"`
}

func (a filterArgs) spec() changes.FilterSpec {
	return changes.FilterSpec{
		Keys:       trimAll(a.Keys),
		Channels:   a.Channels,
		Categories: a.Categories,
		Priorities: a.Priorities,
	}
}

// trimAll drops the surrounding whitespace XML indentation leaves on values.
func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func filterProperties() map[string]interface{} {
	categories := make([]string, len(memory.Categories))
	for i, c := range memory.Categories {
		categories[i] = string(c)
	}
	priorities := make([]string, len(memory.Priorities))
	for i, p := range memory.Priorities {
		priorities[i] = string(p)
	}

	return map[string]interface{}{
		"keys": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Key patterns; '*' matches any run of characters and '?' exactly one. Any pattern may match.",
		},
		"channels": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Only items in these channels",
		},
		"categories": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string", "enum": categories},
			"description": "Only items in these categories",
		},
		"priorities": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string", "enum": priorities},
			"description": "Only items with these priorities",
		},
	}
}

func watcherIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"watcher_id": map[string]interface{}{
			"type":        "string",
			"description": "Identifier returned by create_watcher",
		},
	}
}

func requireWatcherID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("missing required parameter: watcher_id")
	}
	return id, nil
}

func describeFilter(spec changes.FilterSpec) string {
	var parts []string
	if len(spec.Keys) > 0 {
		parts = append(parts, "keys="+strings.Join(spec.Keys, ","))
	}
	if len(spec.Channels) > 0 {
		parts = append(parts, "channels="+strings.Join(spec.Channels, ","))
	}
	if len(spec.Categories) > 0 {
		parts = append(parts, "categories="+strings.Join(spec.Categories, ","))
	}
	if len(spec.Priorities) > 0 {
		parts = append(parts, "priorities="+strings.Join(spec.Priorities, ","))
	}
	if len(parts) == 0 {
		return "all changes"
	}
	return strings.Join(parts, " ")
}
