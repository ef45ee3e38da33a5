package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/result"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
	Reason   string
	Clear    bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <competitor> [status]",
		Short: "Override or clear a competitor's status",
		Long: `Force a terminal status (finished, disqualified, did_not_finish,
did_not_start, over_time) on a competitor, or remove an earlier override
with --clear. Overrides need a reason and are kept in the audit log.

Example:
  sportorg status --db ./cup.db C12 disqualified --reason "missed control 45"
  sportorg status --db ./cup.db C12 --clear`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the status is overridden")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "remove the override")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, args []string, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	logger := commandLogger(opts.RootOptions)
	id := args[0]

	var status model.Status
	switch {
	case opts.Clear && len(args) == 2:
		return NewExitError(ExitCommandError, "--clear takes no status")
	case !opts.Clear && len(args) == 1:
		return NewExitError(ExitCommandError, "a status or --clear is required")
	case !opts.Clear:
		var err error
		if status, err = model.ParseStatus(args[1]); err != nil {
			_ = p.Error(string(engine.ErrCodeInvalidTransition), err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid status", err)
		}
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

	var out result.Outcome
	err = withEngine(ctx, e, func(ctx context.Context) error {
		var err error
		if opts.Clear {
			err = e.ClearStatus(ctx, id)
		} else {
			err = e.SetStatus(ctx, id, status, opts.Reason)
		}
		if err != nil {
			return err
		}
		out, err = e.Outcome(ctx, id)
		return err
	})
	if err != nil {
		code := string(engine.ErrorCode(err))
		if code == "" {
			code = "STATUS_FAILED"
		}
		_ = p.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "status not changed", err)
	}

	return p.Success(out, func(w io.Writer) {
		if out.Overridden {
			fmt.Fprintf(w, "✓ %s is %s (override: %s)\n", id, out.Status, out.Reason)
			return
		}
		fmt.Fprintf(w, "✓ %s is %s\n", id, out.Status)
	})
}
