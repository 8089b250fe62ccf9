package changes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/workmem/pkg/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

// Thursday 2024-03-14 09:00 UTC.
func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctx      context.Context
	clock    *testClock
	store    *memory.Store
	registry *Registry
	resolver *Resolver
	differ   *Differ
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	store, err := memory.OpenInMemory(memory.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	resolver := NewResolver(store, WithResolverClock(clock.Now))
	return &fixture{
		ctx:      context.Background(),
		clock:    clock,
		store:    store,
		registry: NewRegistry(store, WithRegistryClock(clock.Now)),
		resolver: resolver,
		differ:   NewDiffer(store, resolver, nil),
	}
}

func (f *fixture) save(t *testing.T, workspace string, in memory.ItemInput) *memory.Item {
	t.Helper()
	res, err := f.store.SaveItem(f.ctx, workspace, in)
	require.NoError(t, err)
	return res.Item
}

func (f *fixture) delete(t *testing.T, workspace, key string) *memory.Tombstone {
	t.Helper()
	tomb, err := f.store.DeleteItem(f.ctx, workspace, key)
	require.NoError(t, err)
	return tomb
}

func (f *fixture) poll(t *testing.T, workspace, id string) *PollResult {
	t.Helper()
	res, err := f.registry.Poll(f.ctx, workspace, id)
	require.NoError(t, err)
	return res
}

type changeSummary struct {
	Type ChangeType
	Key  string
}

func summarizeChanges(changes []Change) []changeSummary {
	out := make([]changeSummary, len(changes))
	for i, c := range changes {
		out[i] = changeSummary{c.Type, c.Key}
	}
	return out
}

func entryKeys(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func deletionKeys(dels []Deletion) []string {
	keys := make([]string, len(dels))
	for i, d := range dels {
		keys[i] = d.Key
	}
	return keys
}
