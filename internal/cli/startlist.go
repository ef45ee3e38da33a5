package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/sportorg/internal/model"
)

// StartListOptions holds flags for the startlist command.
type StartListOptions struct {
	*RootOptions
	Database string
	Lang     string
}

// StartListClass is the start list of one class.
type StartListClass struct {
	ClassID     string             `json:"class_id"`
	Name        string             `json:"name,omitempty"`
	Competitors []model.Competitor `json:"competitors"`
}

// NewStartListCommand creates the startlist command.
func NewStartListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "startlist",
		Short: "Print competitors by class",
		Long: `Print the start list of every class. Competitors are sorted by name
using the collation rules of --lang, so names with accents sort where a
reader of that language expects them.

Example:
  sportorg startlist --db ./cup.db --lang sv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStartList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Lang, "lang", "en", "BCP 47 language used to sort names")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStartList(opts *StartListOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	tag, err := language.Parse(opts.Lang)
	if err != nil {
		_ = p.Error("INVALID_LANGUAGE", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --lang", err)
	}

	st, err := openStore(opts.Database, commandLogger(opts.RootOptions))
	if err != nil {
		return err
	}
	defer st.Close()

	classes, err := st.ListClasses(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read classes", err)
	}
	competitors, err := st.ListCompetitors(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read competitors", err)
	}

	out := StartList(classes, competitors, collate.New(tag, collate.IgnoreCase))
	return p.Success(out, func(w io.Writer) {
		for i, c := range out {
			if i > 0 {
				fmt.Fprintln(w)
			}
			title := c.ClassID
			if c.Name != "" {
				title = fmt.Sprintf("%s (%s)", c.ClassID, c.Name)
			}
			fmt.Fprintln(w, title)
			tw := table(w)
			fmt.Fprintln(tw, "BIB\tNAME\tCARD\tSTART")
			for _, comp := range c.Competitors {
				start := ""
				if comp.StartTime > 0 {
					start = model.FormatTime(comp.StartTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", bibText(comp.Bib), comp.Name, comp.CardID, start)
			}
			tw.Flush()
		}
	})
}

// StartList groups competitors by class, in class id order, and sorts each
// class by name with col. Equal names fall back to competitor id. Classes
// without competitors are left out.
func StartList(classes []model.Class, competitors []model.Competitor, col *collate.Collator) []StartListClass {
	names := make(map[string]string, len(classes))
	for _, c := range classes {
		names[c.ID] = c.Name
	}

	byClass := make(map[string][]model.Competitor)
	for _, c := range competitors {
		byClass[c.ClassID] = append(byClass[c.ClassID], c)
	}

	out := make([]StartListClass, 0, len(byClass))
	for id, list := range byClass {
		slices.SortFunc(list, func(a, b model.Competitor) int {
			if n := col.CompareString(a.Name, b.Name); n != 0 {
				return n
			}
			return strings.Compare(a.ID, b.ID)
		})
		out = append(out, StartListClass{ClassID: id, Name: names[id], Competitors: list})
	}
	slices.SortFunc(out, func(a, b StartListClass) int { return strings.Compare(a.ClassID, b.ClassID) })
	return out
}
