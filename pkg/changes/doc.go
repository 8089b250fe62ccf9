// Package changes answers "what changed since X" over workspace memory.
//
// Three pieces cooperate:
//
//   - Resolver turns a "since" value (checkpoint name or id, a relative
//     phrase such as "2 hours ago" or "this week", or a timestamp) into an
//     Anchor.
//   - Differ classifies the visible items against an Anchor into added,
//     modified and, for checkpoint anchors, deleted.
//   - Registry manages watchers: filtered subscriptions with a sequence
//     cursor and a sliding 30 minute expiry, polled for CREATE, UPDATE and
//     DELETE changes.
//
// Both the differ and the registry select items through a compiled Filter
// (key globs, channels, categories, priorities).
//
// Usage:
//
//	store, _ := memory.Open(path)
//	registry := changes.NewRegistry(store)
//	w, _ := registry.Create(ctx, "ws-1", changes.FilterSpec{Keys: []string{"task_*"}})
//	res, _ := registry.Poll(ctx, "ws-1", w.ID)
//
//	differ := changes.NewDiffer(store, changes.NewResolver(store), nil)
//	diff, _ := differ.DiffSince(ctx, "ws-1", "yesterday", changes.FilterSpec{}, true)
package changes
