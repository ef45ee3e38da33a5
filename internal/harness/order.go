package harness

import (
	"bytes"
	"fmt"
	"slices"
)

// OrderReport compares a scenario run with a rerun in which every run of
// consecutive punch steps is delivered in reverse.
type OrderReport struct {
	Scenario    string `json:"scenario"`
	Punches     int    `json:"punches"`
	Independent bool   `json:"independent"`
	Forward     string `json:"forward,omitempty"`
	Reversed    string `json:"reversed,omitempty"`
}

// CheckOrderIndependence reruns sc with its punches reversed between other
// steps and reports whether rankings and the review queue are unchanged.
// Punches with equal times at different controls are exempt from the
// guarantee: the earlier arrival wins, so scenarios that exercise that rule
// are expected to differ.
func CheckOrderIndependence(sc *Scenario) (*OrderReport, error) {
	forward, err := Run(sc)
	if err != nil {
		return nil, err
	}
	steps, n := reversePunchRuns(sc.Steps)
	reversed, err := run(sc, steps)
	if err != nil {
		return nil, fmt.Errorf("reversed run: %w", err)
	}

	a, b := Render(forward), Render(reversed)
	report := &OrderReport{Scenario: sc.Name, Punches: n, Independent: bytes.Equal(a, b)}
	if !report.Independent {
		report.Forward, report.Reversed = string(a), string(b)
	}
	return report, nil
}

// reversePunchRuns reverses each maximal run of punch steps in place,
// leaving every other step where it was.
func reversePunchRuns(steps []Step) ([]Step, int) {
	out := slices.Clone(steps)
	n := 0
	for i := 0; i < len(out); {
		if out[i].Punch == nil {
			i++
			continue
		}
		j := i
		for j < len(out) && out[j].Punch != nil {
			j++
		}
		slices.Reverse(out[i:j])
		n += j - i
		i = j
	}
	return out, n
}
