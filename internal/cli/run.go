package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/sportorg/internal/config"
	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/export"
	"github.com/roach88/sportorg/internal/ingest"
	"github.com/roach88/sportorg/internal/logging"
)

// RunOptions holds flags for the run command. Flags left unset keep the
// value from the environment.
type RunOptions struct {
	*RootOptions
	Database   string
	Listen     string
	HTTPAddr   string
	Protocol   string
	Readers    []string // id=host:port of readers to dial
	MQTTBroker string
	NATSURL    string
	LogLevel   string

	// Duration stops the server after a while; used by tests.
	Duration time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the timing engine",
		Long: `Start the timing engine on an imported event.

Readers connect to --listen, or are dialled with --reader, and stream
punches; results are served over HTTP and, when configured, published to an
MQTT broker and a NATS server. Settings default to the SPORTORG_*
environment variables, read from .env when present.

Example:
  sportorg run --db ./cup.db --listen :10001 --http :8080
  sportorg run --db ./cup.db --reader finish=10.0.0.12:4000 --mqtt tcp://localhost:1883`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Database, "db", "", "path to SQLite database (default $SPORTORG_DB)")
	f.StringVar(&opts.Listen, "listen", "", "TCP address for reader connections (default $SPORTORG_LISTEN)")
	f.StringVar(&opts.HTTPAddr, "http", "", "HTTP API address (default $SPORTORG_HTTP)")
	f.StringVar(&opts.Protocol, "protocol", "line", "reader protocol (line|frame)")
	f.StringArrayVar(&opts.Readers, "reader", nil, "dial a reader, as id=host:port (repeatable)")
	f.StringVar(&opts.MQTTBroker, "mqtt", "", "MQTT broker URL (default $SPORTORG_MQTT_BROKER)")
	f.StringVar(&opts.NATSURL, "nats", "", "NATS server URL (default $SPORTORG_NATS_URL)")
	f.StringVar(&opts.LogLevel, "log-level", "", "log level (default $SPORTORG_LOG_LEVEL)")
	f.DurationVar(&opts.Duration, "duration", 0, "stop after this long")
	_ = f.MarkHidden("duration")

	return cmd
}

// settings merges the environment with the flags that were set.
func (opts *RunOptions) settings(cmd *cobra.Command, logger zerolog.Logger) (config.Config, error) {
	cfg, err := config.Load(logger)
	if err != nil {
		return config.Config{}, err
	}
	set := func(flag string, dst *string, v string) {
		if cmd.Flags().Changed(flag) {
			*dst = v
		}
	}
	set("db", &cfg.DBPath, opts.Database)
	set("listen", &cfg.Listen, opts.Listen)
	set("http", &cfg.HTTPAddr, opts.HTTPAddr)
	set("mqtt", &cfg.MQTTBroker, opts.MQTTBroker)
	set("nats", &cfg.NATSURL, opts.NATSURL)
	set("log-level", &cfg.LogLevel, opts.LogLevel)
	return cfg, nil
}

// readerAddr is an outbound reader from --reader.
type readerAddr struct {
	id, addr string
}

func parseReaders(specs []string) ([]readerAddr, error) {
	out := make([]readerAddr, 0, len(specs))
	for _, s := range specs {
		id, addr, ok := strings.Cut(s, "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("invalid --reader %q: want id=host:port", s)
		}
		out = append(out, readerAddr{id: id, addr: addr})
	}
	return out, nil
}

func runServer(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.settings(cmd, commandLogger(opts.RootOptions))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger, err := logging.FromSettings(cfg.LogLevel, opts.Format, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	protocol, err := ingest.ParseProtocol(opts.Protocol)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --protocol", err)
	}
	readers, err := parseReaders(opts.Readers)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --reader", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	logger.Info().Str("path", cfg.DBPath).Msg("opening database")
	st, err := openStore(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing database")
		}
	}()

	now := time.Now()
	ec := cfg.EngineConfig(now)
	if ec.ZeroTime.IsZero() {
		if ec.ZeroTime, err = storedZeroTime(ctx, st, now); err != nil {
			return WrapExitError(ExitFailure, "failed to load event", err)
		}
	}
	e := engine.New(st,
		engine.WithConfig(ec),
		engine.WithLogger(logger.With().Str("component", "engine").Logger()),
	)
	if err := e.Load(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to load event", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Run(gctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("engine: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		e.Queue().Close()
		e.Feed().Close()
		return nil
	})

	if cfg.Listen != "" {
		ln, err := ingest.Listen(cfg.Listen, protocol, e.Queue(), logger.With().Str("component", "listener").Logger())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for readers", err)
		}
		g.Go(func() error { return ln.Serve(gctx) })
	}

	for _, r := range readers {
		g.Go(func() error {
			err := ingest.DialSource(gctx, r.id, r.addr, protocol, e.Queue(), ingest.DefaultReconnectConfig(), logger)
			if err != nil && gctx.Err() == nil {
				// An unreachable reader must not stop the event.
				logger.Error().Err(err).Str("reader", r.id).Msg("reader given up")
			}
			return nil
		})
	}

	if cfg.HTTPAddr != "" {
		srv := export.NewServer(e.Feed(), e, logger.With().Str("component", "http").Logger())
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.HTTPAddr) })
	}

	var publishers []export.Publisher
	if cfg.MQTTBroker != "" {
		m, err := export.DialMQTT(export.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: "sportorg-" + uuid.NewString()[:8],
		}, logger)
		if err != nil {
			logger.Error().Err(err).Str("broker", cfg.MQTTBroker).Msg("mqtt exporter disabled")
		} else {
			publishers = append(publishers, m)
		}
	}
	if cfg.NATSURL != "" {
		n, err := export.DialNATS(export.NATSConfig{URL: cfg.NATSURL, Name: "sportorg"}, logger)
		if err != nil {
			logger.Error().Err(err).Str("url", cfg.NATSURL).Msg("nats exporter disabled")
		} else {
			publishers = append(publishers, n)
		}
	}
	for _, p := range publishers {
		sub := e.Feed().Subscribe()
		g.Go(func() error {
			defer p.Close()
			return export.Forward(gctx, sub, p, logger.With().Str("exporter", p.Name()).Logger())
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Press Ctrl-C to stop.")
	logger.Info().
		Str("listen", cfg.Listen).
		Str("http", cfg.HTTPAddr).
		Int("readers", len(readers)).
		Int("exporters", len(publishers)).
		Msg("sportorg running")

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info().Msg("stopped gracefully")
	return nil
}
