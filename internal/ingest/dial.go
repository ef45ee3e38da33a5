package ingest

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// ReconnectConfig bounds reconnection attempts to an outbound reader.
type ReconnectConfig struct {
	MaxRetries    int           // consecutive failed dials before giving up
	RetryDelay    time.Duration // delay after the first failure
	MaxRetryDelay time.Duration // cap on the doubled delay
}

// DefaultReconnectConfig returns 5 retries from 1s doubling up to 30s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}

// ConnectFunc opens a connection and serves it until it ends.
// A nil return means the connection was established.
type ConnectFunc func(ctx context.Context) error

// RunWithReconnect calls connect until it succeeds, sleeping with
// exponential backoff between failures. It gives up after MaxRetries
// consecutive failures.
func RunWithReconnect(ctx context.Context, connect ConnectFunc, cfg ReconnectConfig, logger zerolog.Logger) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := connect(ctx)
		if err == nil {
			return nil
		}

		attempt++
		if attempt > cfg.MaxRetries {
			return fmt.Errorf("max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := calculateBackoff(attempt, cfg)
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", cfg.MaxRetries).
			Dur("delay", delay).
			Msg("reader connection failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// DialSource keeps an outbound reader connection open, reading punches into
// q. After a disconnect it dials again; it returns when ctx is cancelled or
// the reader stays unreachable for MaxRetries attempts.
func DialSource(ctx context.Context, id, addr string, protocol Protocol, q *Queue, cfg ReconnectConfig, logger zerolog.Logger) error {
	log := logger.With().Str("reader", id).Str("addr", addr).Logger()
	var dialer net.Dialer

	for {
		err := RunWithReconnect(ctx, func(ctx context.Context) error {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			defer conn.Close()
			runSource(ctx, q, NewSource(id, protocol, conn), log)
			return nil
		}, cfg, log)
		if err != nil {
			return err
		}
	}
}
