// Package items exposes a workspace's working memory to agents as tools.
//
// Tool Overview:
//
// set_item: Create an item or replace its value and attributes
//
// get_item: Read one item, including items other workspaces share
//
// delete_item: Remove an item; watchers and checkpoint diffs see the deletion
//
// list_items: List visible items, newest change first, optionally filtered by
// category, channel or a text query
//
// list_channels: List the channels in use with their item counts
//
// create_checkpoint: Record a named point to diff against later
//
// list_checkpoints: Show the workspace's checkpoints, newest first
//
// Only a value change moves an item's sequence number. Changing category,
// priority, channel or the shared flag alone is saved but not reported as a
// change to watchers.
//
// Usage Example:
//
//	store, _ := memory.Open(path)
//	for _, t := range items.NewTools("ws-1", store) {
//		toolRegistry.Register(t)
//	}
package items
