package changes

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/workmem/pkg/memory"
)

// FilterSpec is the caller-supplied form of a filter. Every dimension is
// optional; an empty spec matches everything.
type FilterSpec struct {
	Keys       []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	Channels   []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Priorities []string `json:"priorities,omitempty" yaml:"priorities,omitempty"`
}

// Filter is a compiled FilterSpec. Patterns within Keys are ORed; the
// dimensions that are present are ANDed.
type Filter struct {
	spec       FilterSpec
	keys       []glob.Glob
	channels   map[string]struct{}
	categories map[memory.Category]struct{}
	priorities map[memory.Priority]struct{}
}

// NewFilter validates and compiles spec. Unknown categories or priorities,
// empty patterns and empty channel names are rejected with a
// *ValidationError rather than silently matching nothing.
func NewFilter(spec FilterSpec) (*Filter, error) {
	f := &Filter{}

	for i, pattern := range spec.Keys {
		if strings.TrimSpace(pattern) == "" {
			return nil, &ValidationError{Field: "keys", Message: fmt.Sprintf("pattern at position %d is empty", i)}
		}
		g, err := glob.Compile(quoteKeyPattern(pattern))
		if err != nil {
			return nil, &ValidationError{Field: "keys", Message: fmt.Sprintf("invalid pattern %q: %v", pattern, err)}
		}
		f.keys = append(f.keys, g)
		f.spec.Keys = append(f.spec.Keys, pattern)
	}

	if len(spec.Channels) > 0 {
		f.channels = make(map[string]struct{}, len(spec.Channels))
		for i, ch := range spec.Channels {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				return nil, &ValidationError{Field: "channels", Message: fmt.Sprintf("channel at position %d is empty", i)}
			}
			f.channels[ch] = struct{}{}
			f.spec.Channels = append(f.spec.Channels, ch)
		}
	}

	if len(spec.Categories) > 0 {
		f.categories = make(map[memory.Category]struct{}, len(spec.Categories))
		for _, raw := range spec.Categories {
			c, err := memory.ParseCategory(raw)
			if err != nil {
				return nil, &ValidationError{Field: "categories", Message: err.Error()}
			}
			f.categories[c] = struct{}{}
			f.spec.Categories = append(f.spec.Categories, string(c))
		}
	}

	if len(spec.Priorities) > 0 {
		f.priorities = make(map[memory.Priority]struct{}, len(spec.Priorities))
		for _, raw := range spec.Priorities {
			p, err := memory.ParsePriority(raw)
			if err != nil {
				return nil, &ValidationError{Field: "priorities", Message: err.Error()}
			}
			f.priorities[p] = struct{}{}
			f.spec.Priorities = append(f.spec.Priorities, string(p))
		}
	}

	return f, nil
}

// quoteKeyPattern escapes everything gobwas/glob treats as syntax except
// the two wildcards keys support: '*' (any run) and '?' (one character).
func quoteKeyPattern(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '[', ']', '{', '}', '\\', '!':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Spec returns the normalized spec the filter was built from.
func (f *Filter) Spec() FilterSpec {
	if f == nil {
		return FilterSpec{}
	}
	return f.spec
}

// IsEmpty reports whether the filter imposes no constraint.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.keys) == 0 && f.channels == nil && f.categories == nil && f.priorities == nil)
}

// Matches reports whether a live item passes the filter. A nil filter
// matches everything.
func (f *Filter) Matches(item *memory.Item) bool {
	return f.match(item.Key, item.Category, item.Priority, item.Channel)
}

// MatchesTombstone applies the filter to a deletion using the attributes
// recorded when the item was removed.
func (f *Filter) MatchesTombstone(t *memory.Tombstone) bool {
	return f.match(t.Key, t.Category, t.Priority, t.Channel)
}

func (f *Filter) match(key string, category memory.Category, priority memory.Priority, channel string) bool {
	if f == nil {
		return true
	}
	if len(f.keys) > 0 && !f.matchKey(key) {
		return false
	}
	if f.channels != nil {
		if _, ok := f.channels[channel]; !ok {
			return false
		}
	}
	if f.categories != nil {
		if _, ok := f.categories[category]; !ok {
			return false
		}
	}
	if f.priorities != nil {
		if _, ok := f.priorities[priority]; !ok {
			return false
		}
	}
	return true
}

func (f *Filter) matchKey(key string) bool {
	for _, g := range f.keys {
		if g.Match(key) {
			return true
		}
	}
	return false
}
