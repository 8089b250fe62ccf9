package changes

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/entrhq/workmem/pkg/logging"
	"github.com/entrhq/workmem/pkg/memory"
)

// DiffSource is the read side of the store the diff engine needs.
type DiffSource interface {
	VisibleItems(ctx context.Context, workspace string) ([]memory.Item, error)
	CheckpointItems(ctx context.Context, checkpointID string) ([]memory.CheckpointItem, error)
	LatestTombstones(ctx context.Context, workspace string, keys []string) (map[string]memory.Tombstone, error)
}

// Entry is a live item reported by a diff.
type Entry struct {
	Workspace string          `json:"workspace"`
	Key       string          `json:"key"`
	Value     string          `json:"value,omitempty"`
	Category  memory.Category `json:"category"`
	Priority  memory.Priority `json:"priority"`
	Channel   string          `json:"channel"`
	Shared    bool            `json:"shared,omitempty"`
	Sequence  int64           `json:"sequence"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Deletion is a key that existed at a checkpoint and is gone now. Sequence
// and DeletedAt are zero when the tombstone has been pruned.
type Deletion struct {
	Key       string          `json:"key"`
	Category  memory.Category `json:"category"`
	Priority  memory.Priority `json:"priority"`
	Channel   string          `json:"channel"`
	Sequence  int64           `json:"sequence,omitempty"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// DiffResult is the three-way classification against an anchor.
type DiffResult struct {
	Anchor   Anchor     `json:"-"`
	Added    []Entry    `json:"added"`
	Modified []Entry    `json:"modified"`
	Deleted  []Deletion `json:"deleted"`
	Summary  string     `json:"summary"`
}

// DiffOptions tunes a diff.
type DiffOptions struct {
	Filter *Filter
	// IncludeValues keeps item values in the entries.
	IncludeValues bool
}

// Differ computes diffs of a workspace against an anchor.
type Differ struct {
	source   DiffSource
	resolver *Resolver
	log      *logging.Logger
	obs      Observer
}

// DifferOption configures a Differ.
type DifferOption func(*Differ)

// WithDiffObserver reports every computed diff to o.
func WithDiffObserver(o Observer) DifferOption {
	return func(d *Differ) {
		if o != nil {
			d.obs = o
		}
	}
}

// NewDiffer creates a diff engine. resolver may be nil if only Diff is used.
func NewDiffer(source DiffSource, resolver *Resolver, log *logging.Logger, opts ...DifferOption) *Differ {
	d := &Differ{source: source, resolver: resolver, log: log, obs: nopObserver{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiffSince resolves since and diffs against it with the given filter.
func (d *Differ) DiffSince(ctx context.Context, workspace, since string, spec FilterSpec, includeValues bool) (*DiffResult, error) {
	if d.resolver == nil {
		return nil, fmt.Errorf("changes: differ has no resolver")
	}
	filter, err := NewFilter(spec)
	if err != nil {
		return nil, err
	}
	anchor, err := d.resolver.Resolve(ctx, workspace, since)
	if err != nil {
		return nil, err
	}
	return d.Diff(ctx, workspace, anchor, DiffOptions{Filter: filter, IncludeValues: includeValues})
}

// Diff classifies the items visible to workspace against anchor:
//
//   - added: created at or after anchor.Since
//   - modified: created before anchor.Since and updated after it
//   - deleted: only for checkpoint anchors, the checkpoint's keys that no
//     longer exist, filtered by their last recorded attributes
//
// Classification compares timestamps exactly, with no tolerance for clock
// skew. Entries are in ascending sequence order. An unresolved anchor yields
// an empty result.
func (d *Differ) Diff(ctx context.Context, workspace string, anchor Anchor, opts DiffOptions) (*DiffResult, error) {
	start := time.Now()
	result, err := d.diff(ctx, workspace, anchor, opts)
	if err != nil {
		return nil, err
	}
	d.obs.DiffComputed(anchor.Kind, result, time.Since(start))
	return result, nil
}

func (d *Differ) diff(ctx context.Context, workspace string, anchor Anchor, opts DiffOptions) (*DiffResult, error) {
	result := &DiffResult{
		Anchor:   anchor,
		Added:    []Entry{},
		Modified: []Entry{},
		Deleted:  []Deletion{},
	}
	if !anchor.Resolved() {
		d.log.Debugf("diff for %s: anchor %q did not resolve; reporting no changes", workspace, anchor.Raw)
		result.Summary = summarize(result)
		return result, nil
	}

	items, err := d.source.VisibleItems(ctx, workspace)
	if err != nil {
		return nil, err
	}

	live := make(map[string]struct{})
	for i := range items {
		item := &items[i]
		if item.Workspace == workspace {
			live[item.Key] = struct{}{}
		}
		if !opts.Filter.Matches(item) {
			continue
		}
		switch {
		case !item.CreatedAt.Before(anchor.Since):
			result.Added = append(result.Added, toEntry(item, opts.IncludeValues))
		case item.UpdatedAt.After(anchor.Since):
			result.Modified = append(result.Modified, toEntry(item, opts.IncludeValues))
		}
	}

	if anchor.Checkpoint != nil {
		deleted, err := d.deletedSince(ctx, workspace, anchor.Checkpoint, live, opts.Filter)
		if err != nil {
			return nil, err
		}
		result.Deleted = deleted
	}

	result.Summary = summarize(result)
	return result, nil
}

func (d *Differ) deletedSince(ctx context.Context, workspace string, cp *memory.Checkpoint, live map[string]struct{}, filter *Filter) ([]Deletion, error) {
	linked, err := d.source.CheckpointItems(ctx, cp.ID)
	if err != nil {
		return nil, err
	}

	var missing []memory.CheckpointItem
	keys := make([]string, 0, len(linked))
	for _, ci := range linked {
		if _, ok := live[ci.Key]; ok {
			continue
		}
		missing = append(missing, ci)
		keys = append(keys, ci.Key)
	}
	if len(missing) == 0 {
		return []Deletion{}, nil
	}

	tombs, err := d.source.LatestTombstones(ctx, workspace, keys)
	if err != nil {
		return nil, err
	}

	out := make([]Deletion, 0, len(missing))
	for _, ci := range missing {
		tomb, ok := tombs[ci.Key]
		if !ok {
			// Pruned: fall back to the attributes captured by the checkpoint.
			tomb = memory.Tombstone{
				Workspace: workspace,
				Key:       ci.Key,
				Category:  ci.Category,
				Priority:  ci.Priority,
				Channel:   ci.Channel,
			}
		}
		if !filter.MatchesTombstone(&tomb) {
			continue
		}
		del := Deletion{
			Key:      tomb.Key,
			Category: tomb.Category,
			Priority: tomb.Priority,
			Channel:  tomb.Channel,
			Sequence: tomb.Sequence,
		}
		if ok {
			at := tomb.DeletedAt
			del.DeletedAt = &at
		}
		out = append(out, del)
	}

	// Known deletions by sequence, pruned ones after them by key.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Sequence == 0) != (b.Sequence == 0) {
			return a.Sequence != 0
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.Key < b.Key
	})
	return out, nil
}

func toEntry(item *memory.Item, includeValue bool) Entry {
	e := Entry{
		Workspace: item.Workspace,
		Key:       item.Key,
		Category:  item.Category,
		Priority:  item.Priority,
		Channel:   item.Channel,
		Shared:    item.Shared,
		Sequence:  item.Sequence,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if includeValue {
		e.Value = item.Value
	}
	return e
}

func summarize(r *DiffResult) string {
	anchor := r.Anchor.Raw
	switch r.Anchor.Kind {
	case AnchorCheckpoint:
		anchor = fmt.Sprintf("checkpoint %q", r.Anchor.Checkpoint.Name)
	case AnchorDefault:
		anchor = r.Anchor.Since.Format(time.RFC3339)
	case AnchorUnresolved:
		return fmt.Sprintf("Could not interpret %q as a checkpoint, relative time or timestamp; no changes reported.", r.Anchor.Raw)
	}
	return fmt.Sprintf("%d added, %d modified, %d deleted since %s",
		len(r.Added), len(r.Modified), len(r.Deleted), anchor)
}
