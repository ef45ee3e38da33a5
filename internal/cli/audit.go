package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Database string
	Review   bool
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit log or the review queue",
		Long: `Print every administrative change made to the event, oldest first:
registrations, corrections, status overrides, retracted punches and
closing. With --review, print the punches and anomalies waiting for an
operator instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Review, "review", false, "print the review queue")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := openStore(opts.Database, commandLogger(opts.RootOptions))
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Review {
		items, err := st.ListReview(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read review queue", err)
		}
		return p.Success(items, func(w io.Writer) {
			if len(items) == 0 {
				fmt.Fprintln(w, "Review queue is empty.")
				return
			}
			tw := table(w)
			fmt.Fprintln(tw, "CREATED\tKIND\tCARD\tCOMPETITOR\tDETAIL")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					it.CreatedAt.Format("15:04:05"), it.Kind, it.CardID, it.CompetitorID, it.Detail)
			}
			tw.Flush()
		})
	}

	entries, err := st.ListAudit(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit log", err)
	}
	return p.Success(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "Audit log is empty.")
			return
		}
		tw := table(w)
		fmt.Fprintln(tw, "AT\tACTION\tCOMPETITOR\tDETAIL")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.At.Format("15:04:05"), e.Action, e.CompetitorID, e.Detail)
		}
		tw.Flush()
	})
}
