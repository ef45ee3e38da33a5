package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/ranking"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Database string
	Class    string
	Splits   bool
}

// ClassResults is the ranking of one class.
type ClassResults struct {
	ClassID string          `json:"class_id"`
	Entries []ranking.Entry `json:"entries"`
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print rankings derived from stored punches",
		Long: `Re-derive every competitor's status from the punches in the database and
print the ranking of each class.

Example:
  sportorg results --db ./cup.db --class M21 --splits`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Class, "class", "", "only this class")
	cmd.Flags().BoolVar(&opts.Splits, "splits", false, "print split times")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	logger := commandLogger(opts.RootOptions)

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	e, err := loadEngine(ctx, st, time.Now(), logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to derive results", err)
	}

	classes := e.Classes()
	if opts.Class != "" {
		if !slices.Contains(classes, opts.Class) {
			_ = p.Error("UNKNOWN_CLASS", fmt.Sprintf("no results for class %s", opts.Class), nil)
			return NewExitError(ExitCommandError, "unknown class "+opts.Class)
		}
		classes = []string{opts.Class}
	}

	out := make([]ClassResults, 0, len(classes))
	for _, id := range classes {
		out = append(out, ClassResults{ClassID: id, Entries: e.Rank(id)})
	}
	return p.Success(out, func(w io.Writer) {
		for i, cr := range out {
			if i > 0 {
				fmt.Fprintln(w)
			}
			printClass(w, cr, opts.Splits)
		}
	})
}

func printClass(w io.Writer, cr ClassResults, splits bool) {
	fmt.Fprintf(w, "%s\n", cr.ClassID)
	tw := table(w)
	fmt.Fprintln(tw, "PL\tBIB\tNAME\tSTATUS\tRESULT\tBEHIND")
	for _, e := range cr.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			placeText(e.Place), bibText(e.Bib), e.Name, e.Status, resultText(e), behindText(e))
		if splits && len(e.Splits) > 0 {
			fmt.Fprintf(tw, "\t\t%s\t\t\t\n", splitsText(e.Splits, e.LegPlaces))
		}
	}
	tw.Flush()
}

func placeText(place int) string {
	if place == 0 {
		return "-"
	}
	return fmt.Sprint(place)
}

func bibText(bib int) string {
	if bib == 0 {
		return ""
	}
	return fmt.Sprint(bib)
}

func resultText(e ranking.Entry) string {
	if e.Result == 0 {
		return "-"
	}
	if e.Penalty > 0 {
		return fmt.Sprintf("%s (+%s)", model.FormatTime(e.Result), model.FormatTime(e.Penalty))
	}
	return model.FormatTime(e.Result)
}

func behindText(e ranking.Entry) string {
	if e.Place == 0 {
		return ""
	}
	return "+" + model.FormatTime(e.Behind)
}

// splitsText renders code:leg per split, with the leg place in brackets
// when known.
func splitsText(splits []model.Split, places []int) string {
	var b []byte
	for i, s := range splits {
		if i > 0 {
			b = append(b, ' ')
		}
		b = fmt.Appendf(b, "%s:%s", s.Code, model.FormatTime(s.Leg))
		if i < len(places) && places[i] > 0 {
			b = fmt.Appendf(b, "(%d)", places[i])
		}
	}
	return string(b)
}
