package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sportorg/internal/ingest"
	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/result"
)

// PunchOptions holds flags for the punch command.
type PunchOptions struct {
	*RootOptions
	Database string
	Source   string
}

// PunchResult is the output of punch.
type PunchResult struct {
	Punch        model.Punch     `json:"punch"`
	CompetitorID string          `json:"competitor_id,omitempty"`
	Outcome      *result.Outcome `json:"outcome,omitempty"`
}

// NewPunchCommand creates the punch command.
func NewPunchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PunchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "punch <card> <code> <time>",
		Short: "Enter a punch by hand",
		Long: `Record a punch that no reader delivered, such as one copied from a
backup control, and print the competitor's updated status. The time is an
offset from event zero as H:MM:SS[.mmm] or milliseconds.

Example:
  sportorg punch --db ./cup.db 100 31 0:12:05`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ingest.RawPunch{Source: opts.Source, Card: args[0], Code: args[1], Time: args[2]}
			return runPunch(opts, raw, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Source, "source", "manual", "source recorded with the punch")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPunch(opts *PunchOptions, raw ingest.RawPunch, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	logger := commandLogger(opts.RootOptions)

	punch, err := ingest.Parse(raw)
	if err != nil {
		_ = p.Error(ingest.ErrCodeMalformedPunch, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid punch", err)
	}

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	e, err := loadEngine(ctx, st, time.Now(), logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load event", err)
	}

	res := PunchResult{Punch: punch}
	err = withEngine(ctx, e, func(ctx context.Context) error {
		if err := e.Ingest(raw); err != nil {
			return err
		}
		if err := e.Flush(ctx); err != nil {
			return err
		}
		competitors, err := st.ListCompetitors(ctx)
		if err != nil {
			return err
		}
		for _, c := range competitors {
			if c.CardID != punch.CardID {
				continue
			}
			out, err := e.Outcome(ctx, c.ID)
			if err != nil {
				return err
			}
			res.CompetitorID, res.Outcome = c.ID, &out
		}
		return nil
	})
	if err != nil {
		_ = p.Error("PUNCH_FAILED", err.Error(), nil)
		return WrapExitError(ExitFailure, "punch failed", err)
	}

	return p.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Card %s control %s at %s recorded\n", punch.CardID, punch.Code, model.FormatTime(punch.Time))
		if res.Outcome == nil {
			fmt.Fprintf(w, "  no competitor holds card %s; the punch waits for one\n", punch.CardID)
			return
		}
		fmt.Fprintf(w, "  %s: %s", res.CompetitorID, res.Outcome.Status)
		if res.Outcome.Result > 0 {
			fmt.Fprintf(w, " %s", model.FormatTime(res.Outcome.Result))
		}
		fmt.Fprintln(w)
	})
}
