// Package memory provides the storage layer for workspace working memory.
//
// Items are key/value notes owned by a workspace. Every write that changes an
// item's value is numbered by a single sequence counter, and every deletion
// leaves a tombstone numbered from the same counter, so readers can ask what
// changed after any position in that order. Checkpoints snapshot the set of
// items that existed when they were taken. Watcher records persist the cursor
// state used by the change subscription layer in package changes.
//
// The SQLite-backed Store serializes all writes through one critical section:
// the row change, the sequence bump and the tombstone insert commit together,
// and commits happen in sequence order.
package memory
