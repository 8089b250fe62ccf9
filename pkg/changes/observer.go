package changes

import (
	"errors"
	"time"
)

// PollOutcome classifies how a poll ended.
type PollOutcome string

const (
	PollOK       PollOutcome = "ok"
	PollExpired  PollOutcome = "expired"
	PollStopped  PollOutcome = "stopped"
	PollNotFound PollOutcome = "not_found"
	PollFailed   PollOutcome = "error"
)

// Observer is notified of watcher and diff activity. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	WatcherCreated(workspace string)
	WatcherPolled(outcome PollOutcome, reported []Change, elapsed time.Duration)
	WatcherStopped()
	WatchersExpired(n int64)
	DiffComputed(kind AnchorKind, result *DiffResult, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) WatcherCreated(string)                               {}
func (nopObserver) WatcherPolled(PollOutcome, []Change, time.Duration)  {}
func (nopObserver) WatcherStopped()                                     {}
func (nopObserver) WatchersExpired(int64)                               {}
func (nopObserver) DiffComputed(AnchorKind, *DiffResult, time.Duration) {}

func pollOutcome(err error) PollOutcome {
	switch {
	case err == nil:
		return PollOK
	case errors.Is(err, ErrExpired):
		return PollExpired
	case errors.Is(err, ErrStopped):
		return PollStopped
	case errors.Is(err, ErrNotFound):
		return PollNotFound
	default:
		return PollFailed
	}
}
