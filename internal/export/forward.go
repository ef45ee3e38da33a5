package export

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/feed"
)

// Publisher delivers class snapshots to an external system.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, snap feed.Snapshot) error
	Close() error
}

// Forward hands every snapshot of sub to p until ctx is done or the
// subscription closes. A failed publish is logged and the next snapshot is
// still delivered; the coalescing subscription means a stalled publisher
// skips to the newest ranking of each class.
func Forward(ctx context.Context, sub *feed.Subscription, p Publisher, logger zerolog.Logger) error {
	log := logger.With().Str("exporter", p.Name()).Logger()
	var sent, failed int
	defer func() {
		log.Info().Int("sent", sent).Int("failed", failed).Msg("exporter stopped")
	}()

	for {
		snap, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, feed.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := p.Publish(ctx, snap); err != nil {
			failed++
			log.Warn().
				Err(err).
				Str("class", snap.ClassID).
				Uint64("version", snap.Version).
				Msg("snapshot not exported")
			continue
		}
		sent++
		log.Debug().
			Str("class", snap.ClassID).
			Uint64("version", snap.Version).
			Msg("snapshot exported")
	}
}
