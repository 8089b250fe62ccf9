package memory

import "errors"

var (
	ErrItemNotFound       = errors.New("memory: item not found")
	ErrCheckpointNotFound = errors.New("memory: checkpoint not found")
	ErrWatcherNotFound    = errors.New("memory: watcher not found")

	// ErrCursorConflict is returned when a watcher changed between the read
	// and the compare-and-set that advances it.
	ErrCursorConflict = errors.New("memory: watcher cursor conflict")

	ErrInvalidItem = errors.New("memory: invalid item")
)
