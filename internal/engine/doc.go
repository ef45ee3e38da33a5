// Package engine implements the SportOrg timing engine.
//
// The engine reconciles punches from the ingest queue against each
// competitor's course and keeps class rankings current.
//
// Single-writer loop:
// Engine.Run is the only goroutine that mutates punch histories, the
// unresolved-card buffer and derived results. Punches come from an
// ingest.Queue; administrative commands (register, status override,
// retraction, close) come from a command queue with reply channels, so
// every change is serialised through the same loop.
//
// Per punch:
//  1. The punch is persisted (idempotent on its content address).
//  2. Its card is resolved to a competitor, or the punch is buffered until
//     one is registered; buffered punches past the retention window become
//     orphaned review items.
//  3. The competitor's history absorbs the punch in (Time, Seq) order and
//     only that competitor is re-classified.
//  4. The class ranking is updated and, if it changed, a snapshot with a
//     new version is published to the feed.
//
// Status and ranking are pure functions of their inputs (see packages
// result and ranking), so the same set of punches always yields the same
// results whatever order they arrived in.
package engine
