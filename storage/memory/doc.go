// Package memory provides in-process implementations of storage.Store.
//
// Two variants are available:
//   - Local: no locking, for data confined to one goroutine (per-session roles)
//   - Shared: one mutex around every operation, for process wide state
//
// Patterns are matched with a glob matcher against every key, so iteration
// is O(n) in the number of stored keys. Iterators are snapshots.
//
// Example usage:
//
//	store := memory.NewShared(logger)
//	defer store.Close()
//
//	_ = store.HWrite(ctx, "session:value:abc", "update_time", "1700000000")
package memory
