// Package model defines the domain types of the timing and results engine.
//
// This package contains types and pure helpers only. Every other internal
// package imports model; model imports nothing internal.
//
// Key design constraints:
//   - Punch times are offsets from the event zero time (time.Duration), never
//     wall-clock values, so results do not depend on the host clock.
//   - A punch is identified by its content (card, control code, time). Two
//     reader retransmissions of the same read collapse to one punch.
//   - Status is derived, never stored as an input; see package result.
package model
