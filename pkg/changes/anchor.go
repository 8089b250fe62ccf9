package changes

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/workmem/pkg/memory"
)

// AnchorKind says how a "since" value was interpreted.
type AnchorKind string

const (
	AnchorCheckpoint AnchorKind = "checkpoint"
	AnchorRelative   AnchorKind = "relative"
	AnchorTimestamp  AnchorKind = "timestamp"
	AnchorDefault    AnchorKind = "default"
	AnchorUnresolved AnchorKind = "unresolved"
)

// CheckpointPrefix forces a "since" value to resolve as a checkpoint
// reference; a miss is then a NotFoundError instead of an unresolved anchor.
const CheckpointPrefix = "checkpoint:"

// DefaultWindow is how far back an empty "since" reaches.
const DefaultWindow = time.Hour

// Anchor is a resolved comparison point.
type Anchor struct {
	Raw  string
	Kind AnchorKind
	// Since is the instant items are compared against. Zero when unresolved.
	Since time.Time
	// Sequence is the counter value at the checkpoint; zero otherwise.
	Sequence int64
	// Checkpoint is set only for checkpoint anchors.
	Checkpoint *memory.Checkpoint
}

// Resolved reports whether the anchor can be compared against.
func (a Anchor) Resolved() bool {
	return a.Kind != AnchorUnresolved
}

// CheckpointLookup finds checkpoints for the resolver.
type CheckpointLookup interface {
	CheckpointByName(ctx context.Context, workspace, name string) (*memory.Checkpoint, error)
	CheckpointByID(ctx context.Context, workspace, id string) (*memory.Checkpoint, error)
}

// Resolver turns "since" values into anchors.
type Resolver struct {
	checkpoints CheckpointLookup
	now         func() time.Time
	location    *time.Location
	window      time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock replaces the clock relative phrases are computed from.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLocation sets the zone used for calendar phrases and zone-less
// timestamp literals. Defaults to UTC.
func WithLocation(loc *time.Location) ResolverOption {
	return func(r *Resolver) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithDefaultWindow changes how far back an empty "since" reaches.
func WithDefaultWindow(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.window = d
		}
	}
}

// NewResolver creates a resolver backed by checkpoints.
func NewResolver(checkpoints CheckpointLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		checkpoints: checkpoints,
		now:         time.Now,
		location:    time.UTC,
		window:      DefaultWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var relativePattern = regexp.MustCompile(`^(\d+)\s+(minute|minutes|hour|hours|day|days|week|weeks)\s+ago$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Resolve interprets since, in order, as: a checkpoint name (newest wins), a
// checkpoint id, a relative phrase, then an absolute timestamp. Empty input
// means DefaultWindow before now.
//
// Input that matches none of these is not an error: the anchor comes back
// unresolved and diffs against it are empty. Errors are returned only for
// storage failures and for CheckpointPrefix references that match nothing.
func (r *Resolver) Resolve(ctx context.Context, workspace, since string) (Anchor, error) {
	raw := since
	since = strings.TrimSpace(since)
	now := r.now().In(r.location)

	if since == "" {
		return Anchor{Raw: raw, Kind: AnchorDefault, Since: now.Add(-r.window)}, nil
	}

	if ref, forced := strings.CutPrefix(since, CheckpointPrefix); forced {
		ref = strings.TrimSpace(ref)
		cp, err := r.lookupCheckpoint(ctx, workspace, ref)
		if err != nil {
			return Anchor{}, err
		}
		if cp == nil {
			return Anchor{}, &NotFoundError{Resource: "checkpoint", ID: ref}
		}
		return checkpointAnchor(raw, cp), nil
	}

	cp, err := r.lookupCheckpoint(ctx, workspace, since)
	if err != nil {
		return Anchor{}, err
	}
	if cp != nil {
		return checkpointAnchor(raw, cp), nil
	}

	if t, ok := r.relative(strings.ToLower(since), now); ok {
		return Anchor{Raw: raw, Kind: AnchorRelative, Since: t}, nil
	}

	if t, ok := r.timestamp(since); ok {
		return Anchor{Raw: raw, Kind: AnchorTimestamp, Since: t}, nil
	}

	return Anchor{Raw: raw, Kind: AnchorUnresolved}, nil
}

func checkpointAnchor(raw string, cp *memory.Checkpoint) Anchor {
	return Anchor{
		Raw:        raw,
		Kind:       AnchorCheckpoint,
		Since:      cp.CreatedAt,
		Sequence:   cp.Sequence,
		Checkpoint: cp,
	}
}

// lookupCheckpoint tries ref as a name, then as an id. A miss is (nil, nil).
func (r *Resolver) lookupCheckpoint(ctx context.Context, workspace, ref string) (*memory.Checkpoint, error) {
	if r.checkpoints == nil || ref == "" {
		return nil, nil
	}
	cp, err := r.checkpoints.CheckpointByName(ctx, workspace, ref)
	if err == nil {
		return cp, nil
	}
	if !errors.Is(err, memory.ErrCheckpointNotFound) {
		return nil, err
	}
	cp, err = r.checkpoints.CheckpointByID(ctx, workspace, ref)
	if err == nil {
		return cp, nil
	}
	if !errors.Is(err, memory.ErrCheckpointNotFound) {
		return nil, err
	}
	return nil, nil
}

func (r *Resolver) relative(phrase string, now time.Time) (time.Time, bool) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch phrase {
	case "today":
		return today, true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	case "this week":
		return startOfWeek(today), true
	case "last week":
		return startOfWeek(today).AddDate(0, 0, -7), true
	}

	m := relativePattern.FindStringSubmatch(phrase)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	var t time.Time
	switch strings.TrimSuffix(m[2], "s") {
	case "minute":
		return ago(now, n, time.Minute)
	case "hour":
		return ago(now, n, time.Hour)
	case "day":
		if n > maxRelativeDays {
			return time.Time{}, false
		}
		t = now.AddDate(0, 0, -n)
	case "week":
		if n > maxRelativeDays/7 {
			return time.Time{}, false
		}
		t = now.AddDate(0, 0, -7*n)
	default:
		return time.Time{}, false
	}
	return t, !t.After(now)
}

// maxRelativeDays bounds "N days ago" to about a million years.
const maxRelativeDays = 366 * 1_000_000

// ago returns now minus n units, or false when the span does not fit in a
// time.Duration.
func ago(now time.Time, n int, unit time.Duration) (time.Time, bool) {
	if int64(n) > math.MaxInt64/int64(unit) {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n) * unit), true
}

// startOfWeek returns midnight of the Sunday on or before day.
func startOfWeek(day time.Time) time.Time {
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func (r *Resolver) timestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, r.location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
