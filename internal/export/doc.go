// Package export carries live results out of the engine: an HTTP API with a
// websocket feed per class, and exporters that forward class snapshots to
// an MQTT broker or a NATS server.
//
// Everything here reads from a feed.Feed. Status overrides posted over HTTP
// go back through the engine's command queue like any other command.
package export
