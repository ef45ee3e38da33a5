package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/eventdef"
	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/ranking"
	"github.com/roach88/sportorg/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// Punch orders replayed against the stored results.
const (
	OrderArrival  = "arrival"
	OrderReversed = "reversed"
	OrderTime     = "time"
)

// ReplayDiff is a ranking position where a replay disagrees with the
// stored event.
type ReplayDiff struct {
	Order    string `json:"order"`
	ClassID  string `json:"class_id"`
	Position int    `json:"position"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ReplayResult is the output of replay.
type ReplayResult struct {
	Punches    int          `json:"punches"`
	Classes    int          `json:"classes"`
	Orders     []string     `json:"orders"`
	Consistent bool         `json:"consistent"`
	Diffs      []ReplayDiff `json:"diffs,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Verify that results do not depend on punch arrival order",
		Long: `Re-derive every result from the stored punches, delivering them to a
fresh engine in arrival order, reversed arrival order and punch time order,
and compare each ranking with the one derived from the database as stored.

Exit code is 1 if any ranking differs.

Example:
  sportorg replay --db ./cup.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	logger := commandLogger(opts.RootOptions)

	st, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := Replay(cmd.Context(), st, time.Now(), logger)
	if err != nil {
		_ = p.Error("REPLAY_FAILED", err.Error(), nil)
		return WrapExitError(ExitFailure, "replay failed", err)
	}
	p.Logf("replayed %d punches over %d classes", res.Punches, res.Classes)

	if err := p.Success(res, func(w io.Writer) { printReplay(w, res) }); err != nil {
		return err
	}
	if !res.Consistent {
		return NewExitError(ExitFailure, fmt.Sprintf("replay diverged at %d position(s)", len(res.Diffs)))
	}
	return nil
}

func printReplay(w io.Writer, res *ReplayResult) {
	if res.Consistent {
		fmt.Fprintf(w, "✓ %d punches, %d classes: rankings identical in %d orders\n", res.Punches, res.Classes, len(res.Orders))
		return
	}
	fmt.Fprintf(w, "✗ Rankings differ in %d position(s)\n\n", len(res.Diffs))
	tw := table(w)
	fmt.Fprintln(tw, "ORDER\tCLASS\tPOS\tEXPECTED\tACTUAL")
	for _, d := range res.Diffs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.Order, d.ClassID, d.Position, d.Expected, d.Actual)
	}
	tw.Flush()
}

// Replay derives the rankings of the event in st as stored, then again for
// each punch order on an in-memory copy, and reports every difference.
func Replay(ctx context.Context, st *store.Store, now time.Time, logger zerolog.Logger) (*ReplayResult, error) {
	base, err := loadEngine(ctx, st, now, logger)
	if err != nil {
		return nil, err
	}
	classes := base.Classes()
	want := make(map[string][]ranking.Entry, len(classes))
	for _, id := range classes {
		want[id] = base.Rank(id)
	}

	punches, err := st.LivePunches(ctx)
	if err != nil {
		return nil, fmt.Errorf("read punches: %w", err)
	}
	arrival := slices.Clone(punches)
	slices.SortFunc(arrival, func(a, b model.Punch) int { return cmp.Compare(a.Seq, b.Seq) })
	reversed := slices.Clone(arrival)
	slices.Reverse(reversed)

	orders := []struct {
		name    string
		punches []model.Punch
	}{
		{OrderArrival, arrival},
		{OrderReversed, reversed},
		{OrderTime, punches},
	}

	res := &ReplayResult{Punches: len(punches), Classes: len(classes), Consistent: true}
	for _, o := range orders {
		got, err := replayOrder(ctx, st, o.punches, now, logger)
		if err != nil {
			return nil, fmt.Errorf("%s order: %w", o.name, err)
		}
		res.Orders = append(res.Orders, o.name)
		for _, id := range classes {
			res.Diffs = append(res.Diffs, diffRanking(o.name, id, want[id], got[id])...)
		}
	}
	res.Consistent = len(res.Diffs) == 0
	return res, nil
}

// replayOrder copies the event without its punches into memory and feeds
// punches to a fresh engine in the given order.
func replayOrder(ctx context.Context, st *store.Store, punches []model.Punch, now time.Time, logger zerolog.Logger) (map[string][]ranking.Entry, error) {
	mem := engine.NewMemoryStore()
	if err := copyEvent(ctx, st, mem); err != nil {
		return nil, err
	}
	e, err := loadEngine(ctx, mem, now, logger)
	if err != nil {
		return nil, err
	}
	if err := withEngine(ctx, e, func(ctx context.Context) error {
		return e.Replay(ctx, punches)
	}); err != nil {
		return nil, err
	}

	out := make(map[string][]ranking.Entry)
	for _, id := range e.Classes() {
		out[id] = e.Rank(id)
	}
	return out, nil
}

// copyEvent copies courses, classes, competitors, overrides and event
// metadata.
func copyEvent(ctx context.Context, src *store.Store, dst *engine.MemoryStore) error {
	courses, err := src.ListCourses(ctx)
	if err != nil {
		return err
	}
	classes, err := src.ListClasses(ctx)
	if err != nil {
		return err
	}
	competitors, err := src.ListCompetitors(ctx)
	if err != nil {
		return err
	}
	def := eventdef.Definition{Courses: courses, Classes: classes, Competitors: competitors}
	if err := def.Apply(ctx, dst); err != nil {
		return err
	}

	overrides, err := src.ListOverrides(ctx)
	if err != nil {
		return err
	}
	for _, o := range overrides {
		if err := dst.SaveOverride(ctx, o); err != nil {
			return err
		}
	}
	for _, key := range []string{eventdef.MetaEventName, eventdef.MetaZeroTime, engine.MetaClosed} {
		v, err := src.GetMeta(ctx, key)
		if err != nil {
			return err
		}
		if v != "" {
			if err := dst.SetMeta(ctx, key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func diffRanking(order, classID string, want, got []ranking.Entry) []ReplayDiff {
	var diffs []ReplayDiff
	for i := range max(len(want), len(got)) {
		var w, g *ranking.Entry
		if i < len(want) {
			w = &want[i]
		}
		if i < len(got) {
			g = &got[i]
		}
		if w != nil && g != nil && w.Equal(*g) {
			continue
		}
		diffs = append(diffs, ReplayDiff{
			Order:    order,
			ClassID:  classID,
			Position: i + 1,
			Expected: describeEntry(w),
			Actual:   describeEntry(g),
		})
	}
	return diffs
}

func describeEntry(e *ranking.Entry) string {
	if e == nil {
		return "(none)"
	}
	if e.Result == 0 {
		return fmt.Sprintf("%s %s", e.CompetitorID, e.Status)
	}
	return fmt.Sprintf("%s %s %s", e.CompetitorID, e.Status, model.FormatTime(e.Result))
}
