// Package store provides SQLite-backed durable storage for an event.
//
// The store keeps the event definition (courses, classes, competitors), the
// raw punch log, derived results, operator overrides, the review queue and
// the audit log.
//
// # Patterns
//
// Idempotent punch log
//   - punches.id is the punch content address
//   - INSERT ... ON CONFLICT(id) DO NOTHING absorbs retransmissions
//   - punches are never deleted; retraction and orphaning are flags
//
// Deterministic reads
//   - Punch queries order by time_ms, seq, id COLLATE BINARY
//   - Log queries order by seq, id COLLATE BINARY
//
// Last write wins
//   - results and overrides are keyed by competitor id and upserted
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Schema changes are goose migrations embedded from migrations/.
package store
