package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/sportorg/internal/config"
	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/eventdef"
	"github.com/roach88/sportorg/internal/logging"
	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/store"
)

func newPrinter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		ErrOut:  cmd.ErrOrStderr(), // diagnostics never corrupt JSON on stdout
		Verbose: opts.Verbose,
	}
}

// commandLogger returns the stderr logger for one-shot commands. They only
// log warnings unless --verbose is set.
func commandLogger(opts *RootOptions) zerolog.Logger {
	logger, err := logging.FromSettings("warn", opts.Format, opts.Verbose)
	if err != nil {
		return zerolog.Nop()
	}
	return logger
}

func openStore(path string, logger zerolog.Logger) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(path, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// storedZeroTime returns the wall time of event zero on the day of now,
// from the zero time saved with the event. It returns the zero Time when
// the event has none.
func storedZeroTime(ctx context.Context, s engine.Store, now time.Time) (time.Time, error) {
	v, err := s.GetMeta(ctx, eventdef.MetaZeroTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("read zero time: %w", err)
	}
	if v == "" {
		return time.Time{}, nil
	}
	zt, err := model.ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored zero time %q: %w", v, err)
	}
	return config.ZeroTimeOn(now, zt), nil
}

// loadEngine builds an engine over s and restores its state. The clock is
// frozen at now so that offline commands derive the same results however
// long they take.
func loadEngine(ctx context.Context, s engine.Store, now time.Time, logger zerolog.Logger) (*engine.Engine, error) {
	zero, err := storedZeroTime(ctx, s, now)
	if err != nil {
		return nil, err
	}
	e := engine.New(s,
		engine.WithLogger(logger),
		engine.WithNow(func() time.Time { return now }),
		engine.WithConfig(engine.Config{ZeroTime: zero}),
	)
	if err := e.Load(ctx); err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return e, nil
}

// withEngine runs e's loop for the duration of fn.
func withEngine(ctx context.Context, e *engine.Engine, fn func(ctx context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- e.Run(runCtx) }()

	err := fn(ctx)
	cancel()
	if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
		err = errors.Join(err, runErr)
	}
	return err
}
