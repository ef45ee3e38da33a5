// Package ingest turns raw reader output into punches for the engine.
//
// Readers run one goroutine per connection and feed a single Queue. Ingest
// parses and validates syntax only; whether a card or control means anything
// is decided downstream. A malformed record is rejected on its own and never
// affects the queue or other readers.
package ingest
