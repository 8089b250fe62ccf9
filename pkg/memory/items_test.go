package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveItem_CreateAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	res, err := s.SaveItem(ctx, "ws", ItemInput{Key: "task_1", Value: "write tests"})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.True(t, res.Sequenced)
	assert.Equal(t, CategoryNote, res.Item.Category)
	assert.Equal(t, PriorityNormal, res.Item.Priority)
	assert.Equal(t, DefaultChannel, res.Item.Channel)
	assert.Equal(t, int64(1), res.Item.Sequence)
	assert.Equal(t, res.Item.Sequence, res.Item.CreatedSequence)
	assert.Equal(t, clock.Now(), res.Item.CreatedAt)
	assert.Equal(t, res.Item.CreatedAt, res.Item.UpdatedAt)

	stored, err := s.GetItem(ctx, "ws", "task_1")
	require.NoError(t, err)
	assert.Equal(t, *res.Item, *stored)
}

func TestSaveItem_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	tests := []struct {
		name      string
		workspace string
		in        ItemInput
	}{
		{"empty workspace", "", ItemInput{Key: "a"}},
		{"empty key", "ws", ItemInput{Key: "  "}},
		{"key too long", "ws", ItemInput{Key: strings.Repeat("k", MaxKeyLength+1)}},
		{"unknown category", "ws", ItemInput{Key: "a", Category: "idea"}},
		{"unknown priority", "ws", ItemInput{Key: "a", Priority: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SaveItem(ctx, tt.workspace, tt.in)
			assert.ErrorIs(t, err, ErrInvalidItem)
		})
	}

	seq, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq, "rejected writes must not consume sequence numbers")
}

func TestSaveItem_ValueChangeConsumesSequence(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	first, err := s.SaveItem(ctx, "ws", ItemInput{Key: "a", Value: "1", Category: CategoryTask})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := s.SaveItem(ctx, "ws", ItemInput{Key: "a", Value: "2", Category: CategoryTask})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.True(t, second.Sequenced)
	assert.Equal(t, int64(2), second.Item.Sequence)
	assert.Equal(t, first.Item.CreatedSequence, second.Item.CreatedSequence)
	assert.Equal(t, first.Item.CreatedAt, second.Item.CreatedAt)
	assert.Equal(t, clock.Now(), second.Item.UpdatedAt)
}

func TestSaveItem_MetadataOnlyChangeKeepsSequence(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	first, err := s.SaveItem(ctx, "ws", ItemInput{Key: "a", Value: "1"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := s.SaveItem(ctx, "ws", ItemInput{
		Key:      "a",
		Value:    "1",
		Category: CategoryDecision,
		Priority: PriorityHigh,
		Channel:  "planning",
		Shared:   true,
	})
	require.NoError(t, err)
	assert.False(t, res.Sequenced)

	stored, err := s.GetItem(ctx, "ws", "a")
	require.NoError(t, err)
	assert.Equal(t, first.Item.Sequence, stored.Sequence)
	assert.Equal(t, first.Item.UpdatedAt, stored.UpdatedAt)
	assert.Equal(t, CategoryDecision, stored.Category)
	assert.Equal(t, PriorityHigh, stored.Priority)
	assert.Equal(t, "planning", stored.Channel)
	assert.True(t, stored.Shared)

	seq, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestSaveItem_IdenticalWriteIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.SaveItem(ctx, "ws", ItemInput{Key: "a", Value: "1"})
	require.NoError(t, err)
	res, err := s.SaveItem(ctx, "ws", ItemInput{Key: "a", Value: "1"})
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.False(t, res.Sequenced)
	seq, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestSequence_StrictlyIncreasingAcrossOperations(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var seen []int64
	for i := 0; i < 5; i++ {
		res, err := s.SaveItem(ctx, "ws", ItemInput{Key: fmt.Sprintf("k%d", i), Value: "v"})
		require.NoError(t, err)
		seen = append(seen, res.Item.Sequence)
	}
	tomb, err := s.DeleteItem(ctx, "ws", "k2")
	require.NoError(t, err)
	seen = append(seen, tomb.Sequence)
	res, err := s.SaveItem(ctx, "other", ItemInput{Key: "k0", Value: "v"})
	require.NoError(t, err)
	seen = append(seen, res.Item.Sequence)

	for i := 1; i < len(seen); i++ {
		assert.Equal(t, seen[i-1]+1, seen[i], "sequence must increase by one per change")
	}
}

func TestSequence_ConcurrentWritersNeverCollide(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	const writers, perWriter = 8, 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs = make(map[int64]bool)
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				res, err := s.SaveItem(ctx, "ws", ItemInput{Key: fmt.Sprintf("w%d_%d", w, i), Value: "v"})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seqs[res.Item.Sequence], "duplicate sequence %d", res.Item.Sequence)
				seqs[res.Item.Sequence] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, seqs, writers*perWriter)
	top, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), top)
}

func TestDeleteItem(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.SaveItem(ctx, "ws", ItemInput{
		Key: "a", Value: "1", Category: CategoryError, Priority: PriorityLow, Channel: "ci", Shared: true,
	})
	require.NoError(t, err)

	clock.Advance(time.Second)
	tomb, err := s.DeleteItem(ctx, "ws", "a")
	require.NoError(t, err)

	assert.Equal(t, int64(2), tomb.Sequence)
	assert.Equal(t, CategoryError, tomb.Category)
	assert.Equal(t, PriorityLow, tomb.Priority)
	assert.Equal(t, "ci", tomb.Channel)
	assert.True(t, tomb.Shared)
	assert.Equal(t, clock.Now(), tomb.DeletedAt)

	_, err = s.GetItem(ctx, "ws", "a")
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = s.DeleteItem(ctx, "ws", "a")
	assert.ErrorIs(t, err, ErrItemNotFound)

	seq, err := s.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq, "failed delete must not consume a sequence")
}

func TestSaveItem_RecreateAfterDeleteStartsFresh(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.SaveItem(ctx, "ws", ItemInput{Key: "a", Value: "1"})
	require.NoError(t, err)
	_, err = s.DeleteItem(ctx, "ws", "a")
	require.NoError(t, err)

	res, err := s.SaveItem(ctx, "ws", ItemInput{Key: "a", Value: "1"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, int64(3), res.Item.CreatedSequence)
}

func TestVisibleItems_OwnAndShared(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	mustSave(t, s, "ws1", ItemInput{Key: "own", Value: "1"})
	mustSave(t, s, "ws2", ItemInput{Key: "private", Value: "2"})
	mustSave(t, s, "ws2", ItemInput{Key: "public", Value: "3", Shared: true})

	items, err := s.VisibleItems(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, []string{"own", "public"}, itemKeys(items))

	since, err := s.VisibleItemsSince(ctx, "ws1", 1, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, []string{"public"}, itemKeys(since))

	since, err = s.VisibleItemsSince(ctx, "ws1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"own"}, itemKeys(since), "upper bound is inclusive and caps the range")

	own, err := s.Items(ctx, "ws2")
	require.NoError(t, err)
	assert.Equal(t, []string{"private", "public"}, itemKeys(own))
}

func TestGetItem_NotFoundIsWrapped(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetItem(context.Background(), "ws", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrItemNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func mustSave(t *testing.T, s *Store, workspace string, in ItemInput) *Item {
	t.Helper()
	res, err := s.SaveItem(context.Background(), workspace, in)
	require.NoError(t, err)
	return res.Item
}

func itemKeys(items []Item) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Key
	}
	return keys
}
