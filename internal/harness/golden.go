package harness

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/ranking"
)

// Render prints the final rankings and review queue of a run as stable
// text. Classes are sorted by id; review lines are sorted. Ids generated at
// run time are left out.
//
//	class M21
//	  1 C1 finished 0:00:50 +0:00:00
//	  - C2 disqualified 0:00:50 -
//	review
//	  unresolved_card card=999
func Render(res *Result) []byte {
	var b strings.Builder

	classes := make([]string, 0, len(res.Rankings))
	for id := range res.Rankings {
		classes = append(classes, id)
	}
	slices.Sort(classes)
	for _, id := range classes {
		fmt.Fprintf(&b, "class %s\n", id)
		for _, e := range res.Rankings[id] {
			fmt.Fprintf(&b, "  %s\n", renderEntry(e))
		}
	}

	lines := make([]string, 0, len(res.Review))
	for _, item := range res.Review {
		line := string(item.Kind)
		if item.CardID != "" {
			line += " card=" + item.CardID
		}
		if item.CompetitorID != "" {
			line += " competitor=" + item.CompetitorID
		}
		lines = append(lines, line)
	}
	slices.Sort(lines)
	b.WriteString("review\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "  %s\n", l)
	}
	return []byte(b.String())
}

func renderEntry(e ranking.Entry) string {
	place, behind := "-", "-"
	if e.Place > 0 {
		place = fmt.Sprint(e.Place)
		behind = "+" + model.FormatTime(e.Behind)
	}
	res := "-"
	if e.Result > 0 {
		res = model.FormatTime(e.Result)
	}
	return fmt.Sprintf("%s %s %s %s %s", place, e.CompetitorID, e.Status, res, behind)
}

// RunWithGolden runs a scenario, fails t on any step or assertion error and
// compares the rendered outcome with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	res, err := Run(sc)
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
	for _, msg := range res.Errors {
		t.Errorf("scenario %s: %s", sc.Name, msg)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, Render(res))
	return res
}
