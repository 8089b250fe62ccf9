package watch

import (
	"fmt"
	"strings"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/memory"
)

const maxValueChars = 200

func formatChange(workspace string, c changes.Change) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %s (%s, %s, %s)",
		c.Sequence, c.Type, displayKey(workspace, c.Workspace, c.Key), c.Category, c.Priority, c.Channel)
	if c.Type != changes.ChangeDelete && c.Value != "" {
		fmt.Fprintf(&b, " = %q", clip(c.Value))
	}
	return b.String()
}

func formatEntry(workspace, mark string, e changes.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %s (%s, %s, %s)",
		mark, e.Sequence, displayKey(workspace, e.Workspace, e.Key), e.Category, e.Priority, e.Channel)
	if e.Value != "" {
		fmt.Fprintf(&b, " = %q", clip(e.Value))
	}
	return b.String()
}

func formatDeletion(d changes.Deletion) string {
	if d.Sequence == 0 {
		return fmt.Sprintf("- %s (%s, %s, %s)", d.Key, d.Category, d.Priority, d.Channel)
	}
	return fmt.Sprintf("- #%d %s (%s, %s, %s)", d.Sequence, d.Key, d.Category, d.Priority, d.Channel)
}

func formatWatcher(w changes.Watcher) string {
	line := fmt.Sprintf("%s [%s] cursor=%d filter: %s", w.ID, w.State, w.Cursor, describeFilter(w.Filter))
	if w.State == memory.WatcherActive {
		line += " expires " + w.ExpiresAt.Format("2006-01-02 15:04:05Z07:00")
	}
	return line
}

// displayKey prefixes keys shared in from another workspace with its name.
func displayKey(self, owner, key string) string {
	if owner == "" || owner == self {
		return key
	}
	return owner + "/" + key
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxValueChars {
		return s
	}
	return string(r[:maxValueChars]) + "..."
}
