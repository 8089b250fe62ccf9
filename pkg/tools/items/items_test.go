package items

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/memory"
	"github.com/entrhq/workmem/pkg/tools"
)

type harness struct {
	ctx   context.Context
	now   time.Time
	store *memory.Store
	tools *tools.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ctx: context.Background(), now: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}
	store, err := memory.OpenInMemory(memory.WithClock(func() time.Time { return h.now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h.store = store

	h.tools = tools.NewRegistry()
	require.NoError(t, Register(h.tools, "ws", store))
	return h
}

func (h *harness) run(t *testing.T, name, args string) (string, map[string]interface{}) {
	t.Helper()
	out, meta, err := h.tools.Execute(h.ctx, name, []byte(args))
	require.NoError(t, err)
	return out, meta
}

func TestTools_Metadata(t *testing.T) {
	h := newHarness(t)

	var names []string
	for _, tool := range h.tools.List() {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Description())
		assert.False(t, tool.IsLoopBreaking())
		assert.Equal(t, "object", tool.Schema()["type"])
	}
	assert.Equal(t, []string{
		"create_checkpoint", "delete_item", "get_item", "list_channels",
		"list_checkpoints", "list_items", "set_item",
	}, names)

	set, _ := h.tools.Get("set_item")
	assert.Equal(t, []string{"key", "value"}, set.Schema()["required"])
}

func TestSetItem(t *testing.T) {
	h := newHarness(t)

	out, meta := h.run(t, "set_item", `<arguments>
		<key>task_auth</key>
		<value>add login</value>
		<category>task</category>
		<priority>high</priority>
	</arguments>`)
	assert.Equal(t, "Created task_auth at #1", out)
	assert.Equal(t, true, meta["created"])
	assert.Equal(t, int64(1), meta["sequence"])

	out, meta = h.run(t, "set_item", "<arguments><key>task_auth</key><value>add login & logout</value><category>task</category><priority>high</priority></arguments>")
	assert.Equal(t, "Updated task_auth at #2", out)
	assert.Equal(t, true, meta["sequenced"])

	out, meta = h.run(t, "set_item", "<arguments><key>task_auth</key><value>add login &amp; logout</value><category>task</category><channel>auth</channel></arguments>")
	assert.Equal(t, "Saved task_auth (value unchanged, still #2)", out)
	assert.Equal(t, false, meta["sequenced"])

	item, err := h.store.GetItem(h.ctx, "ws", "task_auth")
	require.NoError(t, err)
	assert.Equal(t, "add login & logout", item.Value)
	assert.Equal(t, "auth", item.Channel)
	assert.Equal(t, memory.PriorityNormal, item.Priority)
}

func TestSetItem_Errors(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.tools.Execute(h.ctx, "set_item", []byte("<arguments><value>x</value></arguments>"))
	assert.ErrorContains(t, err, "missing required parameter: key")

	_, _, err = h.tools.Execute(h.ctx, "set_item", []byte("<arguments><key>k</key><category>gossip</category></arguments>"))
	assert.ErrorIs(t, err, memory.ErrInvalidItem)

	_, _, err = h.tools.Execute(h.ctx, "set_item", []byte("<arguments><key>k"))
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestGetAndDeleteItem(t *testing.T) {
	h := newHarness(t)
	h.run(t, "set_item", "<arguments><key>k</key><value>hello</value></arguments>")

	out, meta := h.run(t, "get_item", "<arguments><key>k</key></arguments>")
	assert.Equal(t, "#1 k (note, normal, general) updated 2024-03-14 09:00:00Z\nhello", out)
	assert.Equal(t, int64(1), meta["created_sequence"])

	out, meta = h.run(t, "delete_item", "<arguments><key>k</key></arguments>")
	assert.Equal(t, "Deleted k at #2", out)
	assert.Equal(t, int64(2), meta["sequence"])

	_, _, err := h.tools.Execute(h.ctx, "get_item", []byte("<arguments><key>k</key></arguments>"))
	assert.ErrorIs(t, err, memory.ErrItemNotFound)

	_, _, err = h.tools.Execute(h.ctx, "delete_item", []byte("<arguments><key>k</key></arguments>"))
	assert.ErrorIs(t, err, memory.ErrItemNotFound)

	_, _, err = h.tools.Execute(h.ctx, "delete_item", []byte("<arguments><key> </key></arguments>"))
	assert.ErrorContains(t, err, "missing required parameter: key")
}

func TestListItems(t *testing.T) {
	h := newHarness(t)
	h.run(t, "set_item", "<arguments><key>task_1</key><value>write parser</value><category>task</category></arguments>")
	h.run(t, "set_item", "<arguments><key>note_1</key><value>Parser uses XML</value><channel>design</channel></arguments>")
	h.run(t, "set_item", "<arguments><key>task_2</key><value>ship</value><category>task</category></arguments>")
	_, err := h.store.SaveItem(h.ctx, "other", memory.ItemInput{Key: "s", Value: "shared", Shared: true})
	require.NoError(t, err)

	out, meta := h.run(t, "list_items", "<arguments></arguments>")
	assert.Equal(t, 4, meta["matched"])
	lines := strings.Split(out, "\n")
	assert.Equal(t, "Found 4 item(s):", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "#4 other/s "), "newest change first")

	out, _ = h.run(t, "list_items", "<arguments><category>task</category></arguments>")
	assert.Contains(t, out, "task_1")
	assert.Contains(t, out, "task_2")
	assert.NotContains(t, out, "note_1")

	out, _ = h.run(t, "list_items", "<arguments><query>PARSER</query></arguments>")
	assert.Contains(t, out, "Found 2 item(s)")

	out, meta = h.run(t, "list_items", "<arguments><limit>1</limit></arguments>")
	assert.True(t, strings.HasPrefix(out, "Showing 1 of 4 item(s):"))
	assert.Equal(t, 1, meta["item_count"])

	out, _ = h.run(t, "list_items", "<arguments><channel>nowhere</channel></arguments>")
	assert.Equal(t, "No items found.", out)

	_, _, err = h.tools.Execute(h.ctx, "list_items", []byte("<arguments><category>gossip</category></arguments>"))
	assert.ErrorIs(t, err, changes.ErrValidation)
}

func TestListChannels(t *testing.T) {
	h := newHarness(t)

	out, _ := h.run(t, "list_channels", "")
	assert.Equal(t, "No channels in use.", out)

	h.run(t, "set_item", "<arguments><key>a</key><value>1</value><channel>build</channel></arguments>")
	h.run(t, "set_item", "<arguments><key>b</key><value>1</value><channel>build</channel></arguments>")
	h.run(t, "set_item", "<arguments><key>c</key><value>1</value></arguments>")

	out, meta := h.run(t, "list_channels", "")
	assert.Equal(t, "2 channel(s): build (2), general (1)", out)
	assert.Equal(t, []string{"build", "general"}, meta["channels"])
}

func TestCheckpoints(t *testing.T) {
	h := newHarness(t)

	out, _ := h.run(t, "list_checkpoints", "")
	assert.Equal(t, "No checkpoints.", out)

	h.run(t, "set_item", "<arguments><key>a</key><value>1</value></arguments>")
	out, meta := h.run(t, "create_checkpoint", "<arguments><name>start</name><description>before edits</description></arguments>")
	id := meta["checkpoint_id"].(string)
	assert.Equal(t, `Checkpoint "start" (`+id+`) at #1 with 1 item(s)`, out)

	h.now = h.now.Add(time.Minute)
	h.run(t, "create_checkpoint", "<arguments><name>later</name></arguments>")

	out, meta = h.run(t, "list_checkpoints", "")
	assert.Equal(t, 2, meta["checkpoint_count"])
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"later"`)
	assert.True(t, strings.HasSuffix(lines[1], "- before edits"))

	_, _, err := h.tools.Execute(h.ctx, "create_checkpoint", []byte("<arguments></arguments>"))
	assert.ErrorContains(t, err, "missing required parameter: name")
}
