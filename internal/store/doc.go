// Package store provides SQLite-backed persistence for the dataflow catalog.
//
// Each registered dataflow is stored as its canonical tagged JSON together
// with its fingerprint and the logical sequence number it was registered at.
// Views additionally keep an append-only history of their as-of frontiers.
//
// # Ordering
//
// All listings use ORDER BY seq ASC, name COLLATE BINARY ASC so that a
// catalog reloaded from disk registers dataflows in the order they were
// written, regardless of wall time.
//
// # Idempotency
//
// Writing a definition whose fingerprint matches the stored one is a no-op.
// A different definition under an existing name is a conflict; the stored row
// is never overwritten in place.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: as_of_history rows are removed with their dataflow
//
// Tail sinks hold a live in-process channel and are never persisted.
package store
