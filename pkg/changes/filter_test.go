package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/workmem/pkg/memory"
)

func item(key string, category memory.Category, priority memory.Priority, channel string) *memory.Item {
	return &memory.Item{Key: key, Category: category, Priority: priority, Channel: channel}
}

func TestFilter_KeysAndCategoriesCombine(t *testing.T) {
	f, err := NewFilter(FilterSpec{Keys: []string{"task_*"}, Categories: []string{"task"}})
	require.NoError(t, err)

	assert.True(t, f.Matches(item("task_1", memory.CategoryTask, memory.PriorityNormal, "general")))
	assert.False(t, f.Matches(item("task_2", memory.CategoryNote, memory.PriorityNormal, "general")))
	assert.False(t, f.Matches(item("note_1", memory.CategoryTask, memory.PriorityNormal, "general")))
}

func TestFilter_KeyPatterns(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		key      string
		want     bool
	}{
		{"star matches any run", []string{"task_*"}, "task_build_42", true},
		{"star matches empty", []string{"task_*"}, "task_", true},
		{"question matches one", []string{"v?"}, "v2", true},
		{"question needs exactly one", []string{"v?"}, "v10", false},
		{"patterns are anchored", []string{"task"}, "my_task", false},
		{"patterns are ORed", []string{"a*", "b*"}, "beta", true},
		{"brackets are literal", []string{"[wip]*"}, "[wip] draft", true},
		{"brackets are not a class", []string{"[wip]*"}, "w draft", false},
		{"braces are literal", []string{"{a,b}"}, "{a,b}", true},
		{"slashes are not separators", []string{"src/*"}, "src/pkg/main.go", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(FilterSpec{Keys: tt.patterns})
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(item(tt.key, memory.CategoryNote, memory.PriorityNormal, "general")))
		})
	}
}

func TestFilter_ChannelsAndPriorities(t *testing.T) {
	f, err := NewFilter(FilterSpec{Channels: []string{" build ", "ci"}, Priorities: []string{"HIGH"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"build", "ci"}, f.Spec().Channels)
	assert.Equal(t, []string{"high"}, f.Spec().Priorities)
	assert.True(t, f.Matches(item("x", memory.CategoryNote, memory.PriorityHigh, "ci")))
	assert.False(t, f.Matches(item("x", memory.CategoryNote, memory.PriorityLow, "ci")))
	assert.False(t, f.Matches(item("x", memory.CategoryNote, memory.PriorityHigh, "general")))
}

func TestFilter_Tombstone(t *testing.T) {
	f, err := NewFilter(FilterSpec{Categories: []string{"error"}})
	require.NoError(t, err)

	assert.True(t, f.MatchesTombstone(&memory.Tombstone{Key: "x", Category: memory.CategoryError}))
	assert.False(t, f.MatchesTombstone(&memory.Tombstone{Key: "x", Category: memory.CategoryNote}))
}

func TestFilter_EmptyAndNil(t *testing.T) {
	f, err := NewFilter(FilterSpec{})
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())
	assert.True(t, f.Matches(item("anything", memory.CategoryWarning, memory.PriorityLow, "x")))

	var nilFilter *Filter
	assert.True(t, nilFilter.IsEmpty())
	assert.True(t, nilFilter.Matches(item("anything", memory.CategoryWarning, memory.PriorityLow, "x")))
	assert.Equal(t, FilterSpec{}, nilFilter.Spec())
}

func TestFilter_Validation(t *testing.T) {
	tests := []struct {
		name  string
		spec  FilterSpec
		field string
	}{
		{"empty pattern", FilterSpec{Keys: []string{"ok", " "}}, "keys"},
		{"empty channel", FilterSpec{Channels: []string{""}}, "channels"},
		{"unknown category", FilterSpec{Categories: []string{"idea"}}, "categories"},
		{"unknown priority", FilterSpec{Priorities: []string{"urgent"}}, "priorities"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilter(tt.spec)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
