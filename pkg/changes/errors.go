package changes

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for errors.Is. Each typed error below matches exactly one.
var (
	ErrValidation = errors.New("changes: validation failed")
	ErrNotFound   = errors.New("changes: not found")
	ErrExpired    = errors.New("changes: watcher expired")
	ErrStopped    = errors.New("changes: watcher stopped")
)

// ValidationError reports malformed caller input. Nothing was changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown watcher or an unresolvable checkpoint
// reference.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ExpiredError is returned when polling a watcher whose expiry has passed.
type ExpiredError struct {
	WatcherID string
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("watcher %s expired at %s; create a new watcher to continue",
		e.WatcherID, e.ExpiredAt.Format(time.RFC3339))
}

func (e *ExpiredError) Is(target error) bool { return target == ErrExpired }

// StoppedError is returned when using a watcher that was stopped.
type StoppedError struct {
	WatcherID string
}

func (e *StoppedError) Error() string {
	return fmt.Sprintf("watcher %s has been stopped", e.WatcherID)
}

func (e *StoppedError) Is(target error) bool { return target == ErrStopped }
