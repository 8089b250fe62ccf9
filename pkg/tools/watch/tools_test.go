package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/memory"
	"github.com/entrhq/workmem/pkg/tools"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	ctx   context.Context
	clock *clock
	store *memory.Store
	tools *tools.Registry
}

func newEnv(t *testing.T, shaper *Shaper) *env {
	t.Helper()
	c := &clock{t: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}
	store, err := memory.OpenInMemory(memory.WithClock(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := changes.NewRegistry(store, changes.WithRegistryClock(c.Now))
	differ := changes.NewDiffer(store, changes.NewResolver(store, changes.WithResolverClock(c.Now)), nil)

	r := tools.NewRegistry()
	require.NoError(t, Register(r, "ws", registry, differ, shaper))
	return &env{ctx: context.Background(), clock: c, store: store, tools: r}
}

func (e *env) run(t *testing.T, name, args string) (string, map[string]interface{}) {
	t.Helper()
	out, meta, err := e.tools.Execute(e.ctx, name, []byte(args))
	require.NoError(t, err)
	return out, meta
}

func (e *env) save(t *testing.T, in memory.ItemInput) {
	t.Helper()
	_, err := e.store.SaveItem(e.ctx, "ws", in)
	require.NoError(t, err)
}

func TestTools_Metadata(t *testing.T) {
	e := newEnv(t, nil)

	names := []string{}
	for _, tool := range e.tools.List() {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Description())
		assert.False(t, tool.IsLoopBreaking())
		assert.Equal(t, "object", tool.Schema()["type"])
	}
	assert.Equal(t, []string{"create_watcher", "diff", "list_watchers", "poll_watcher", "stop_watcher"}, names)

	poll, _ := e.tools.Get("poll_watcher")
	assert.Equal(t, []string{"watcher_id"}, poll.Schema()["required"])

	diff, _ := e.tools.Get("diff")
	props := diff.Schema()["properties"].(map[string]interface{})
	for _, key := range []string{"since", "include_values", "keys", "channels", "categories", "priorities"} {
		assert.Contains(t, props, key)
	}
}

func TestTools_WatcherLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	out, meta := e.run(t, "create_watcher", `<arguments>
		<keys>
			<key>task_*</key>
		</keys>
		<categories><category>task</category></categories>
	</arguments>`)
	id, ok := meta["watcher_id"].(string)
	require.True(t, ok)
	assert.Contains(t, out, "keys=task_* categories=task")

	out, meta = e.run(t, "poll_watcher", "<arguments><watcher_id>"+id+"</watcher_id></arguments>")
	assert.Equal(t, "No changes since the last poll.", out)
	assert.Equal(t, int64(0), meta["cursor"])

	e.save(t, memory.ItemInput{Key: "task_1", Value: "ship it", Category: memory.CategoryTask})
	e.save(t, memory.ItemInput{Key: "task_2", Value: "x"})
	e.save(t, memory.ItemInput{Key: "note_1", Value: "x", Category: memory.CategoryTask})

	out, meta = e.run(t, "poll_watcher", "<arguments><watcher_id>"+id+"</watcher_id></arguments>")
	assert.Equal(t, 1, meta["changes"])
	assert.Equal(t, 0, meta["truncated"])
	assert.Contains(t, out, `#1 CREATE task_1 (task, normal, general) = "ship it"`)
	assert.NotContains(t, out, "task_2")

	out, _ = e.run(t, "list_watchers", "<arguments></arguments>")
	assert.Contains(t, out, "1 watcher(s), 1 active")
	assert.Contains(t, out, id+" [active] cursor=1")

	out, meta = e.run(t, "stop_watcher", "<arguments><watcher_id>"+id+"</watcher_id></arguments>")
	assert.Contains(t, out, "stopped")
	assert.Equal(t, "stopped", meta["state"])

	_, _, err := e.tools.Execute(e.ctx, "poll_watcher", []byte("<arguments><watcher_id>"+id+"</watcher_id></arguments>"))
	assert.ErrorIs(t, err, changes.ErrStopped)
}

func TestTools_ExpiredWatcherShowsInList(t *testing.T) {
	e := newEnv(t, nil)
	_, meta := e.run(t, "create_watcher", "<arguments/>")
	id := meta["watcher_id"].(string)

	e.clock.Advance(31 * time.Minute)
	_, _, err := e.tools.Execute(e.ctx, "poll_watcher", []byte("<arguments><watcher_id>"+id+"</watcher_id></arguments>"))
	assert.ErrorIs(t, err, changes.ErrExpired)

	out, meta := e.run(t, "list_watchers", "")
	assert.Contains(t, out, "[expired]")
	assert.Equal(t, 0, meta["active"])
}

func TestTools_ArgumentErrors(t *testing.T) {
	e := newEnv(t, nil)

	_, _, err := e.tools.Execute(e.ctx, "poll_watcher", []byte("<arguments></arguments>"))
	assert.ErrorContains(t, err, "missing required parameter: watcher_id")

	_, _, err = e.tools.Execute(e.ctx, "stop_watcher", []byte("<arguments><watcher_id> </watcher_id></arguments>"))
	assert.ErrorContains(t, err, "watcher_id")

	_, _, err = e.tools.Execute(e.ctx, "create_watcher", []byte("<arguments><priorities><priority>p0</priority></priorities></arguments>"))
	assert.ErrorIs(t, err, changes.ErrValidation)

	_, _, err = e.tools.Execute(e.ctx, "poll_watcher", []byte("<arguments><watcher_id>nope</watcher_id></arguments>"))
	assert.ErrorIs(t, err, changes.ErrNotFound)

	_, _, err = e.tools.Execute(e.ctx, "diff", []byte("<arguments><since>"))
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestTools_Diff(t *testing.T) {
	e := newEnv(t, nil)
	e.save(t, memory.ItemInput{Key: "a", Value: "1"})
	e.save(t, memory.ItemInput{Key: "b", Value: "1"})
	e.clock.Advance(time.Minute)
	_, err := e.store.CreateCheckpoint(e.ctx, "ws", "start", "")
	require.NoError(t, err)

	e.clock.Advance(time.Minute)
	e.save(t, memory.ItemInput{Key: "a", Value: "2"})
	e.save(t, memory.ItemInput{Key: "c", Value: "new"})
	_, err = e.store.DeleteItem(e.ctx, "ws", "b")
	require.NoError(t, err)
	_, err = e.store.SaveItem(e.ctx, "other", memory.ItemInput{Key: "s", Value: "hello", Shared: true})
	require.NoError(t, err)

	out, meta := e.run(t, "diff", "<arguments><since>start</since></arguments>")
	assert.Equal(t, "checkpoint", meta["anchor"])
	assert.Equal(t, 2, meta["added"])
	assert.Equal(t, 1, meta["modified"])
	assert.Equal(t, 1, meta["deleted"])

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, `2 added, 1 modified, 1 deleted since checkpoint "start"`, lines[0])
	assert.Equal(t, `+ #4 c (note, normal, general) = "new"`, lines[1])
	assert.Equal(t, `+ #6 other/s (note, normal, general) = "hello"`, lines[2])
	assert.Equal(t, `~ #3 a (note, normal, general) = "2"`, lines[3])
	assert.Equal(t, `- #5 b (note, normal, general)`, lines[4])

	out, _ = e.run(t, "diff", "<arguments><since>start</since><include_values>false</include_values><keys><key>a</key></keys></arguments>")
	assert.Equal(t, "0 added, 1 modified, 0 deleted since checkpoint \"start\"\n~ #3 a (note, normal, general)", out)
}

func TestTools_DiffUnresolvedSince(t *testing.T) {
	e := newEnv(t, nil)
	out, meta := e.run(t, "diff", "<arguments><since>sometime</since></arguments>")
	assert.Contains(t, out, `Could not interpret "sometime"`)
	assert.Equal(t, "unresolved", meta["anchor"])
	assert.NotContains(t, meta, "since")
}

func TestTools_PollTruncates(t *testing.T) {
	e := newEnv(t, NewShaper(lenCounter{}, 120))
	_, meta := e.run(t, "create_watcher", "<arguments/>")
	id := meta["watcher_id"].(string)

	for _, key := range []string{"k1", "k2", "k3", "k4", "k5"} {
		e.save(t, memory.ItemInput{Key: key, Value: "v"})
	}

	out, meta := e.run(t, "poll_watcher", "<arguments><watcher_id>"+id+"</watcher_id></arguments>")
	assert.Equal(t, 5, meta["changes"])
	truncated := meta["truncated"].(int)
	assert.Greater(t, truncated, 0)
	assert.Contains(t, out, "#1 CREATE k1")
	assert.NotContains(t, out, "#5 CREATE k5")

	shown := 5 - truncated
	assert.Equal(t, int64(shown+1), meta["first_omitted"])
	if shown > 0 {
		assert.Equal(t, int64(shown), meta["shown_through"])
	}
	assert.Contains(t, out, fmt.Sprintf("Output stops before #%d; #%d-#5 will not be polled again.", shown+1, shown+1))

	since := out[strings.LastIndex(out, "diff since ")+len("diff since "):]
	since = strings.TrimSuffix(strings.TrimSpace(since), ".")
	_, dmeta := e.run(t, "diff", "<arguments><since>"+strings.Trim(since, `"`)+"</since></arguments>")
	assert.Equal(t, "timestamp", dmeta["anchor"])
	assert.Equal(t, 5, dmeta["added"])
}
