package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcherRecord(id string, now time.Time) WatcherRecord {
	return WatcherRecord{
		ID:        id,
		Workspace: "ws",
		CreatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
	}
}

func TestCreateWatcher_StartsAtCurrentSequence(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	mustSave(t, s, "ws", ItemInput{Key: "a", Value: "1"})
	mustSave(t, s, "ws", ItemInput{Key: "b", Value: "1"})

	rec, err := s.CreateWatcher(ctx, WatcherRecord{ID: "w1", Workspace: "ws", Cursor: 99, State: WatcherStopped,
		CreatedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Cursor)
	assert.Equal(t, WatcherActive, rec.State)
	assert.Equal(t, "{}", rec.Filter)

	stored, err := s.GetWatcher(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, *rec, *stored)
	assert.Nil(t, stored.LastPolledAt)
}

func TestCreateWatcher_Validation(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.CreateWatcher(ctx, WatcherRecord{Workspace: "ws"})
	assert.Error(t, err)

	rec := newWatcherRecord("w", clock.Now())
	rec.Workspace = ""
	_, err = s.CreateWatcher(ctx, rec)
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = s.GetWatcher(ctx, "missing")
	assert.ErrorIs(t, err, ErrWatcherNotFound)
}

func TestAdvanceWatcher(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.CreateWatcher(ctx, newWatcherRecord("w1", clock.Now()))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	expires := clock.Now().Add(30 * time.Minute)
	require.NoError(t, s.AdvanceWatcher(ctx, "w1", 0, 5, expires, clock.Now()))

	rec, err := s.GetWatcher(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Cursor)
	assert.Equal(t, expires, rec.ExpiresAt)
	require.NotNil(t, rec.LastPolledAt)
	assert.Equal(t, clock.Now(), *rec.LastPolledAt)

	t.Run("stale cursor conflicts", func(t *testing.T) {
		err := s.AdvanceWatcher(ctx, "w1", 0, 7, expires, clock.Now())
		assert.ErrorIs(t, err, ErrCursorConflict)
	})

	t.Run("backwards move rejected", func(t *testing.T) {
		err := s.AdvanceWatcher(ctx, "w1", 5, 3, expires, clock.Now())
		assert.Error(t, err)
		rec, err := s.GetWatcher(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), rec.Cursor)
	})

	t.Run("stopped watcher does not move", func(t *testing.T) {
		require.NoError(t, s.TransitionWatcher(ctx, "w1", WatcherActive, WatcherStopped))
		err := s.AdvanceWatcher(ctx, "w1", 5, 6, expires, clock.Now())
		assert.ErrorIs(t, err, ErrCursorConflict)
	})
}

func TestTransitionWatcher_RequiresFromState(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.CreateWatcher(ctx, newWatcherRecord("w1", clock.Now()))
	require.NoError(t, err)

	require.NoError(t, s.TransitionWatcher(ctx, "w1", WatcherActive, WatcherExpired))
	err = s.TransitionWatcher(ctx, "w1", WatcherActive, WatcherStopped)
	assert.ErrorIs(t, err, ErrCursorConflict)

	rec, err := s.GetWatcher(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, WatcherExpired, rec.State)
	assert.True(t, rec.State.Terminal())
}

func TestExpireWatchers(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	short := newWatcherRecord("short", clock.Now())
	short.ExpiresAt = clock.Now().Add(time.Minute)
	_, err := s.CreateWatcher(ctx, short)
	require.NoError(t, err)
	_, err = s.CreateWatcher(ctx, newWatcherRecord("long", clock.Now()))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	n, err := s.ExpireWatchers(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.Watchers(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "short", list[0].ID)
	assert.Equal(t, WatcherExpired, list[0].State)
	assert.Equal(t, WatcherActive, list[1].State)
}
