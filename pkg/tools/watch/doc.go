// Package watch exposes change tracking to agents as tools.
//
// Tool Overview:
//
// create_watcher: Subscribe to future changes, optionally filtered by key
// pattern, channel, category and priority
//
// poll_watcher: Fetch the changes a watcher has not reported yet, oldest first
//
// stop_watcher: End a watcher
//
// list_watchers: Show every watcher of the workspace with state and cursor
//
// diff: Summarize what was added, modified and deleted since a checkpoint,
// relative phrase or timestamp
//
// Every tool is bound to one workspace. Long results from poll_watcher and
// diff go through a Shaper, which keeps the oldest entries that fit the token
// budget and reports how many were cut.
//
// Usage Example:
//
//	tok, _ := tokenizer.New()
//	shaper := watch.NewShaper(tok, 4000)
//	for _, t := range watch.NewTools("ws-1", registry, differ, shaper) {
//		toolRegistry.Register(t)
//	}
package watch
