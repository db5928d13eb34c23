// Package store provides SQLite-backed storage for playback traces.
//
// A run is one playback of one scenario. Its trace events are appended as
// the engine emits them and read back in seq order.
//
// # Patterns
//
// Idempotent writes
//   - trace_events has PRIMARY KEY(run_id, seq)
//   - WriteEvents uses ON CONFLICT DO NOTHING, so re-sending a batch after
//     a partial failure never duplicates rows
//
// Logical ordering
//   - Runs and events are ordered by seq, never by created_at
//   - Queries end in ORDER BY seq ASC so reads are deterministic
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
