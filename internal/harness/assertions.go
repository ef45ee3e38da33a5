package harness

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/sportorg/internal/model"
)

// Assertion checks the final state of a scenario.
type Assertion struct {
	// Type is one of status, split, history, ranking, review.
	Type string `yaml:"type"`

	Competitor string `yaml:"competitor,omitempty"`

	// status
	Status  string `yaml:"status,omitempty"`
	Result  string `yaml:"result,omitempty"`
	Penalty string `yaml:"penalty,omitempty"`
	Misses  *int   `yaml:"misses,omitempty"`

	// split
	Control string `yaml:"control,omitempty"`
	Elapsed string `yaml:"elapsed,omitempty"`
	Leg     string `yaml:"leg,omitempty"`

	// history: punches at Code (and Time when set)
	Code  string `yaml:"code,omitempty"`
	Time  string `yaml:"time,omitempty"`
	Count *int   `yaml:"count,omitempty"`

	// ranking
	Class  string   `yaml:"class,omitempty"`
	Order  []string `yaml:"order,omitempty"`
	Places []int    `yaml:"places,omitempty"`

	// review: Count items of Kind
	Kind string `yaml:"kind,omitempty"`
}

// Assertion types.
const (
	AssertStatus  = "status"
	AssertSplit   = "split"
	AssertHistory = "history"
	AssertRanking = "ranking"
	AssertReview  = "review"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func validateAssertion(a Assertion) error {
	need := func(ok bool, field string) error {
		if !ok {
			return fmt.Errorf("%s is required for %s", field, a.Type)
		}
		return nil
	}
	switch a.Type {
	case AssertStatus:
		return firstErr(need(a.Competitor != "", "competitor"), need(a.Status != "", "status"))
	case AssertSplit:
		return firstErr(need(a.Competitor != "", "competitor"), need(a.Control != "", "control"))
	case AssertHistory:
		return firstErr(need(a.Competitor != "", "competitor"), need(a.Code != "", "code"), need(a.Count != nil, "count"))
	case AssertRanking:
		if len(a.Places) > 0 && len(a.Places) != len(a.Order) {
			return fmt.Errorf("places must match order in length")
		}
		return need(a.Class != "", "class")
	case AssertReview:
		return firstErr(need(a.Kind != "", "kind"), need(a.Count != nil, "count"))
	case "":
		return fmt.Errorf("type is required")
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func check(res *Result, a Assertion) error {
	switch a.Type {
	case AssertStatus:
		return checkStatus(res, a)
	case AssertSplit:
		return checkSplit(res, a)
	case AssertHistory:
		return checkHistory(res, a)
	case AssertRanking:
		return checkRanking(res, a)
	case AssertReview:
		return checkReview(res, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// compareTime checks a duration against an expected time string; an empty
// expectation always matches.
func compareTime(kind, want string, got time.Duration) error {
	if want == "" {
		return nil
	}
	d, err := model.ParseTime(want)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if d != got {
		return &AssertionError{Type: kind, Expected: model.FormatTime(d), Actual: model.FormatTime(got)}
	}
	return nil
}

func checkStatus(res *Result, a Assertion) error {
	out, ok := res.Outcomes[a.Competitor]
	if !ok {
		return fmt.Errorf("status: unknown competitor %s", a.Competitor)
	}
	if string(out.Status) != a.Status {
		return &AssertionError{Type: "status of " + a.Competitor, Expected: a.Status, Actual: string(out.Status)}
	}
	if a.Misses != nil && *a.Misses != out.Misses {
		return &AssertionError{Type: "misses of " + a.Competitor, Expected: fmt.Sprint(*a.Misses), Actual: fmt.Sprint(out.Misses)}
	}
	return firstErr(
		compareTime("result of "+a.Competitor, a.Result, out.Result),
		compareTime("penalty of "+a.Competitor, a.Penalty, out.Penalty),
	)
}

func checkSplit(res *Result, a Assertion) error {
	out, ok := res.Outcomes[a.Competitor]
	if !ok {
		return fmt.Errorf("split: unknown competitor %s", a.Competitor)
	}
	i := slices.IndexFunc(out.Splits, func(s model.Split) bool { return s.Code == a.Control })
	if i < 0 {
		return &AssertionError{Type: "split of " + a.Competitor, Expected: "a split at " + a.Control, Actual: "none"}
	}
	s := out.Splits[i]
	return firstErr(
		compareTime(fmt.Sprintf("elapsed of %s at %s", a.Competitor, a.Control), a.Elapsed, s.Elapsed),
		compareTime(fmt.Sprintf("leg of %s at %s", a.Competitor, a.Control), a.Leg, s.Leg),
	)
}

func checkHistory(res *Result, a Assertion) error {
	history, ok := res.Histories[a.Competitor]
	if !ok {
		return fmt.Errorf("history: unknown competitor %s", a.Competitor)
	}
	var at *time.Duration
	if a.Time != "" {
		t, err := model.ParseTime(a.Time)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		at = &t
	}
	n := 0
	for _, p := range history {
		if p.Code == a.Code && (at == nil || p.Time == *at) {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     fmt.Sprintf("punches of %s at %s", a.Competitor, a.Code),
			Expected: fmt.Sprint(*a.Count),
			Actual:   fmt.Sprint(n),
		}
	}
	return nil
}

func checkRanking(res *Result, a Assertion) error {
	entries := res.Rankings[a.Class]
	ids := make([]string, len(entries))
	places := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.CompetitorID
		places[i] = e.Place
	}
	if len(a.Order) > 0 && !slices.Equal(ids, a.Order) {
		return &AssertionError{Type: "ranking of " + a.Class, Expected: fmt.Sprint(a.Order), Actual: fmt.Sprint(ids)}
	}
	if len(a.Places) > 0 && !slices.Equal(places, a.Places) {
		return &AssertionError{Type: "places of " + a.Class, Expected: fmt.Sprint(a.Places), Actual: fmt.Sprint(places)}
	}
	return nil
}

func checkReview(res *Result, a Assertion) error {
	n := 0
	for _, item := range res.Review {
		if string(item.Kind) == a.Kind && (a.Competitor == "" || item.CompetitorID == a.Competitor) {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{Type: "review items of kind " + a.Kind, Expected: fmt.Sprint(*a.Count), Actual: fmt.Sprint(n)}
	}
	return nil
}
