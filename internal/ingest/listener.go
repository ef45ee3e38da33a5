package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Protocol selects the wire format of a reader connection.
type Protocol string

const (
	// ProtocolLine is "card,code,time" text lines.
	ProtocolLine Protocol = "line"
	// ProtocolFrame is length-prefixed msgpack frames.
	ProtocolFrame Protocol = "frame"
)

// ParseProtocol validates a protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolLine, ProtocolFrame:
		return Protocol(s), nil
	case "":
		return ProtocolLine, nil
	}
	return "", fmt.Errorf("unknown reader protocol %q", s)
}

// NewSource wraps a connection in the source for protocol.
func NewSource(id string, protocol Protocol, r io.Reader) Source {
	if protocol == ProtocolFrame {
		return NewFrameSource(id, r)
	}
	return NewLineSource(id, r)
}

// Listener accepts reader connections over TCP. Every connection becomes a
// source with its own session id and worker goroutine.
type Listener struct {
	ln       net.Listener
	protocol Protocol
	queue    *Queue
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]string // session id -> remote address
}

// Listen opens a TCP listener on addr.
func Listen(addr string, protocol Protocol, q *Queue, logger zerolog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{
		ln:       ln,
		protocol: protocol,
		queue:    q,
		logger:   logger.With().Str("component", "reader-listener").Logger(),
		sessions: make(map[string]string),
	}, nil
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed, then waits for the connection workers to finish.
func (l *Listener) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	l.logger.Info().Str("addr", l.ln.Addr().String()).Str("protocol", string(l.protocol)).Msg("accepting readers")

	var acceptErr error
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		session := uuid.NewString()
		l.track(session, conn.RemoteAddr().String())
		g.Go(func() error {
			defer l.untrack(session)
			src := NewSource(session, l.protocol, conn)
			runSource(gctx, l.queue, src, l.logger.With().Str("remote", conn.RemoteAddr().String()).Logger())
			_ = conn.Close()
			return nil
		})
	}

	_ = g.Wait()
	return acceptErr
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Sessions returns the connected readers keyed by session id.
func (l *Listener) Sessions() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.sessions))
	for k, v := range l.sessions {
		out[k] = v
	}
	return out
}

func (l *Listener) track(session, remote string) {
	l.mu.Lock()
	l.sessions[session] = remote
	l.mu.Unlock()
}

func (l *Listener) untrack(session string) {
	l.mu.Lock()
	delete(l.sessions, session)
	l.mu.Unlock()
}
