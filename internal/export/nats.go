package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/feed"
)

const DefaultNATSSubject = "sportorg.results"

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes each class ranking on <subject>.<class>.
type NATS struct {
	conn    natsConn
	subject string
}

// NATSConfig configures DialNATS.
type NATSConfig struct {
	URL     string
	Name    string
	Subject string
}

// DialNATS connects to a NATS server.
func DialNATS(cfg NATSConfig, logger zerolog.Logger) (*NATS, error) {
	log := logger.With().Str("url", cfg.URL).Logger()
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}
	return newNATS(conn, cfg.Subject), nil
}

func newNATS(conn natsConn, subject string) *NATS {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Name() string { return "nats" }

// Subject returns the subject a class ranking is published on.
func (n *NATS) Subject(classID string) string {
	return n.subject + "." + classID
}

func (n *NATS) Publish(_ context.Context, snap feed.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ClassID, err)
	}
	if err := n.conn.Publish(n.Subject(snap.ClassID), payload); err != nil {
		return fmt.Errorf("publish %s: %w", n.Subject(snap.ClassID), err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
