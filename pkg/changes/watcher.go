package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/workmem/pkg/logging"
	"github.com/entrhq/workmem/pkg/memory"
)

// DefaultWatcherTTL is the sliding idle timeout of a watcher.
const DefaultWatcherTTL = 30 * time.Minute

// ChangeType tags a change reported by a poll.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one mutation reported to a watcher.
type Change struct {
	Type      ChangeType      `json:"type"`
	Workspace string          `json:"workspace"`
	Key       string          `json:"key"`
	Value     string          `json:"value,omitempty"`
	Category  memory.Category `json:"category"`
	Priority  memory.Priority `json:"priority"`
	Channel   string          `json:"channel"`
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
}

// Watcher is the caller-facing view of a subscription.
type Watcher struct {
	ID           string              `json:"id"`
	Workspace    string              `json:"workspace"`
	Filter       FilterSpec          `json:"filter"`
	Cursor       int64               `json:"cursor"`
	State        memory.WatcherState `json:"state"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
	LastPolledAt *time.Time          `json:"last_polled_at,omitempty"`
}

// PollResult is what a successful poll returns.
type PollResult struct {
	WatcherID string    `json:"watcher_id"`
	Changes   []Change  `json:"changes"`
	Cursor    int64     `json:"cursor"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WatchStore is the persistence the registry needs.
type WatchStore interface {
	CreateWatcher(ctx context.Context, rec memory.WatcherRecord) (*memory.WatcherRecord, error)
	GetWatcher(ctx context.Context, id string) (*memory.WatcherRecord, error)
	Watchers(ctx context.Context, workspace string) ([]memory.WatcherRecord, error)
	AdvanceWatcher(ctx context.Context, id string, from, to int64, expiresAt, polledAt time.Time) error
	TransitionWatcher(ctx context.Context, id string, from, to memory.WatcherState) error
	ExpireWatchers(ctx context.Context, now time.Time) (int64, error)
	MaxSequence(ctx context.Context) (int64, error)
	VisibleItemsSince(ctx context.Context, workspace string, cursor, upto int64) ([]memory.Item, error)
	TombstonesSince(ctx context.Context, workspace string, floor, upto int64) ([]memory.Tombstone, error)
}

// Registry creates, polls and stops watchers.
//
// Lifecycle: ACTIVE until stopped (STOPPED) or polled at or after its
// expiry (EXPIRED). Both end states are final. Every successful poll moves
// the cursor to the highest sequence it reported and pushes the expiry out
// by the TTL.
type Registry struct {
	store WatchStore
	ttl   time.Duration
	now   func() time.Time
	log   *logging.Logger
	obs   Observer

	// mu serializes cursor read-modify-write cycles.
	mu sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTTL overrides DefaultWatcherTTL.
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRegistryClock replaces the clock used for expiry decisions.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegistryLogger attaches a logger.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// WithRegistryObserver reports watcher activity to o.
func WithRegistryObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.obs = o
		}
	}
}

// NewRegistry creates a watcher registry over store.
func NewRegistry(store WatchStore, opts ...RegistryOption) *Registry {
	r := &Registry{
		store: store,
		ttl:   DefaultWatcherTTL,
		now:   time.Now,
		obs:   nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a watcher for workspace. Its cursor starts at the current
// maximum sequence, so existing state is never reported as new.
func (r *Registry) Create(ctx context.Context, workspace string, spec FilterSpec) (*Watcher, error) {
	filter, err := NewFilter(spec)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(filter.Spec())
	if err != nil {
		return nil, fmt.Errorf("changes: encode filter: %w", err)
	}

	now := r.now()
	rec, err := r.store.CreateWatcher(ctx, memory.WatcherRecord{
		ID:        uuid.New().String(),
		Workspace: workspace,
		Filter:    string(encoded),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	})
	if err != nil {
		return nil, err
	}
	r.log.Infof("watcher %s created for %s at cursor %d", rec.ID, workspace, rec.Cursor)
	r.obs.WatcherCreated(workspace)
	return toWatcher(rec)
}

// Poll returns the changes since the watcher's cursor and advances it.
//
// A stopped watcher yields *StoppedError and an expired one *ExpiredError,
// without any state change. An active watcher polled at or after its expiry
// is moved to EXPIRED first and then yields *ExpiredError.
func (r *Registry) Poll(ctx context.Context, workspace, id string) (*PollResult, error) {
	start := time.Now()
	res, err := r.poll(ctx, workspace, id)

	var reported []Change
	if res != nil {
		reported = res.Changes
	}
	r.obs.WatcherPolled(pollOutcome(err), reported, time.Since(start))
	return res, err
}

func (r *Registry) poll(ctx context.Context, workspace, id string) (*PollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.load(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	if err := terminalError(rec); err != nil {
		return nil, err
	}

	now := r.now()
	if !now.Before(rec.ExpiresAt) {
		if err := r.store.TransitionWatcher(ctx, id, memory.WatcherActive, memory.WatcherExpired); err != nil {
			return nil, err
		}
		r.log.Infof("watcher %s expired (idle since %s)", id, rec.ExpiresAt.Format(time.RFC3339))
		r.obs.WatchersExpired(1)
		return nil, &ExpiredError{WatcherID: id, ExpiredAt: rec.ExpiresAt}
	}

	filter, err := decodeFilter(rec.Filter)
	if err != nil {
		return nil, err
	}
	changes, err := r.collect(ctx, workspace, rec.Cursor, filter)
	if err != nil {
		return nil, err
	}

	cursor := rec.Cursor
	if n := len(changes); n > 0 {
		cursor = changes[n-1].Sequence
	}
	expiresAt := now.Add(r.ttl)
	if err := r.store.AdvanceWatcher(ctx, id, rec.Cursor, cursor, expiresAt, now); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		r.log.Debugf("watcher %s: %d change(s), cursor %d -> %d", id, len(changes), rec.Cursor, cursor)
	}

	return &PollResult{
		WatcherID: id,
		Changes:   changes,
		Cursor:    cursor,
		ExpiresAt: expiresAt,
	}, nil
}

// collect gathers the filtered changes with sequence > cursor, ascending.
//
// A tombstone is dropped when the same key was created again after it: the
// consumer sees a CREATE for the new item and no DELETE. Only the newest
// tombstone per key is reported.
//
// Both reads are capped at the sequence committed when the poll started.
// Writers do not wait for polls, so anything committed between the two reads
// has a higher sequence and is left for the next poll.
func (r *Registry) collect(ctx context.Context, workspace string, cursor int64, filter *Filter) ([]Change, error) {
	upto, err := r.store.MaxSequence(ctx)
	if err != nil {
		return nil, err
	}
	if upto <= cursor {
		return []Change{}, nil
	}
	items, err := r.store.VisibleItemsSince(ctx, workspace, cursor, upto)
	if err != nil {
		return nil, err
	}
	tombs, err := r.store.TombstonesSince(ctx, workspace, cursor, upto)
	if err != nil {
		return nil, err
	}

	type identity struct{ workspace, key string }
	recreatedAt := make(map[identity]int64, len(items))
	changes := make([]Change, 0, len(items)+len(tombs))

	for i := range items {
		item := &items[i]
		recreatedAt[identity{item.Workspace, item.Key}] = item.CreatedSequence
		if !filter.Matches(item) {
			continue
		}
		kind := ChangeUpdate
		if item.CreatedSequence > cursor {
			kind = ChangeCreate
		}
		changes = append(changes, Change{
			Type:      kind,
			Workspace: item.Workspace,
			Key:       item.Key,
			Value:     item.Value,
			Category:  item.Category,
			Priority:  item.Priority,
			Channel:   item.Channel,
			Sequence:  item.Sequence,
			Timestamp: item.UpdatedAt,
		})
	}

	latest := make(map[identity]memory.Tombstone, len(tombs))
	for _, t := range tombs {
		id := identity{t.Workspace, t.Key}
		if created, ok := recreatedAt[id]; ok && created > t.Sequence {
			continue
		}
		if prev, ok := latest[id]; !ok || t.Sequence > prev.Sequence {
			latest[id] = t
		}
	}
	for _, t := range latest {
		if !filter.MatchesTombstone(&t) {
			continue
		}
		changes = append(changes, Change{
			Type:      ChangeDelete,
			Workspace: t.Workspace,
			Key:       t.Key,
			Category:  t.Category,
			Priority:  t.Priority,
			Channel:   t.Channel,
			Sequence:  t.Sequence,
			Timestamp: t.DeletedAt,
		})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Sequence < changes[j].Sequence })
	return changes, nil
}

// Stop moves an active watcher to STOPPED. Stopping a watcher that already
// ended returns the matching terminal error and changes nothing.
func (r *Registry) Stop(ctx context.Context, workspace, id string) (*Watcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.load(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	if err := terminalError(rec); err != nil {
		return nil, err
	}
	if err := r.store.TransitionWatcher(ctx, id, memory.WatcherActive, memory.WatcherStopped); err != nil {
		return nil, err
	}
	rec.State = memory.WatcherStopped
	r.log.Infof("watcher %s stopped", id)
	r.obs.WatcherStopped()
	return toWatcher(rec)
}

// Get returns one watcher of workspace.
func (r *Registry) Get(ctx context.Context, workspace, id string) (*Watcher, error) {
	rec, err := r.load(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	return toWatcher(rec)
}

// List returns every watcher of workspace with its state, filter and cursor.
// Idle watchers past their expiry are moved to EXPIRED first so the listing
// never shows them as active.
func (r *Registry) List(ctx context.Context, workspace string) ([]Watcher, error) {
	if _, err := r.Sweep(ctx); err != nil {
		return nil, err
	}
	recs, err := r.store.Watchers(ctx, workspace)
	if err != nil {
		return nil, err
	}
	out := make([]Watcher, 0, len(recs))
	for i := range recs {
		w, err := toWatcher(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, nil
}

// Sweep expires every active watcher whose expiry has passed.
func (r *Registry) Sweep(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.store.ExpireWatchers(ctx, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Infof("expired %d idle watcher(s)", n)
		r.obs.WatchersExpired(n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is done. Expiry is also detected
// lazily by Poll, so running the sweeper is optional.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("changes: sweep interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Warnf("watcher sweep failed: %v", err)
			}
		}
	}
}

// load fetches a watcher and hides watchers of other workspaces.
func (r *Registry) load(ctx context.Context, workspace, id string) (*memory.WatcherRecord, error) {
	rec, err := r.store.GetWatcher(ctx, id)
	if errors.Is(err, memory.ErrWatcherNotFound) {
		return nil, &NotFoundError{Resource: "watcher", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if rec.Workspace != workspace {
		return nil, &NotFoundError{Resource: "watcher", ID: id}
	}
	return rec, nil
}

func terminalError(rec *memory.WatcherRecord) error {
	switch rec.State {
	case memory.WatcherStopped:
		return &StoppedError{WatcherID: rec.ID}
	case memory.WatcherExpired:
		return &ExpiredError{WatcherID: rec.ID, ExpiredAt: rec.ExpiresAt}
	}
	return nil
}

func decodeFilter(encoded string) (*Filter, error) {
	var spec FilterSpec
	if encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &spec); err != nil {
			return nil, fmt.Errorf("changes: decode stored filter: %w", err)
		}
	}
	return NewFilter(spec)
}

func toWatcher(rec *memory.WatcherRecord) (*Watcher, error) {
	filter, err := decodeFilter(rec.Filter)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		ID:           rec.ID,
		Workspace:    rec.Workspace,
		Filter:       filter.Spec(),
		Cursor:       rec.Cursor,
		State:        rec.State,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
		LastPolledAt: rec.LastPolledAt,
	}, nil
}
