package ingest

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pump reads every source into q, one goroutine per source, until all
// sources disconnect or ctx is cancelled. A disconnect or read error ends
// only that source's worker; punches it already delivered stay queued.
//
// On cancellation, sources that implement io.Closer are closed so blocked
// reads return.
func Pump(ctx context.Context, q *Queue, logger zerolog.Logger, sources ...Source) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			runSource(gctx, q, src, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runSource drains one source into the queue.
func runSource(ctx context.Context, q *Queue, src Source, logger zerolog.Logger) {
	log := logger.With().Str("source", src.ID()).Logger()

	if c, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	log.Info().Msg("reader connected")
	var count int
	for {
		raw, err := src.Read(ctx)
		if err != nil {
			var me *MalformedPunchError
			switch {
			case errors.As(err, &me):
				q.Reject(me)
				continue
			case errors.Is(err, io.EOF):
				log.Info().Int("punches", count).Msg("reader disconnected")
			case ctx.Err() != nil:
				log.Debug().Int("punches", count).Msg("reader stopped")
			default:
				log.Error().Err(err).Int("punches", count).Msg("reader failed")
			}
			return
		}
		if raw.Source == "" {
			raw.Source = src.ID()
		}

		if err := q.Ingest(raw); err != nil {
			if errors.Is(err, ErrQueueClosed) {
				log.Debug().Msg("queue closed, stopping reader")
				return
			}
			continue
		}
		count++
	}
}
