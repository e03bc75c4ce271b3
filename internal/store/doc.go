// Package store provides SQLite-backed durable storage for work item
// statuses.
//
// The store keeps one row per work item:
//   - id: stable item identifier (primary key)
//   - amount, priority: the item's immutable fields
//   - status: latest lifecycle status, one of the ir.Status values
//   - updated_at: wall-clock time of the last write (display only)
//
// # Ordering
//
// Writes are upserts that update rows in place, so rowid preserves the
// order in which items were first recorded. LoadPending and List return
// rows ORDER BY rowid, which is the insertion order the engine relies on
// when resuming.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s on lock contention
//   - A single open connection serializes all writers
package store
