package ranking

import (
	"slices"
	"strings"
	"time"

	"github.com/roach88/sportorg/internal/model"
)

// Entry is one competitor's line in a class ranking.
type Entry struct {
	CompetitorID string        `json:"competitor_id"`
	Name         string        `json:"name"`
	ClassID      string        `json:"class_id"`
	Bib          int           `json:"bib,omitempty"`
	Status       model.Status  `json:"status"`
	Result       time.Duration `json:"result"`
	Penalty      time.Duration `json:"penalty,omitempty"`
	Place        int           `json:"place,omitempty"` // zero when unplaced
	Behind       time.Duration `json:"behind,omitempty"`
	Splits       []model.Split `json:"splits,omitempty"`
	LegPlaces    []int         `json:"leg_places,omitempty"` // per split, finished entries only
	SplitPlaces  []int         `json:"split_places,omitempty"` // by elapsed time, per split
}

// Equal reports whether two entries carry the same data.
func (e Entry) Equal(o Entry) bool {
	return e.CompetitorID == o.CompetitorID &&
		e.Name == o.Name &&
		e.ClassID == o.ClassID &&
		e.Bib == o.Bib &&
		e.Status == o.Status &&
		e.Result == o.Result &&
		e.Penalty == o.Penalty &&
		e.Place == o.Place &&
		e.Behind == o.Behind &&
		slices.Equal(e.Splits, o.Splits) &&
		slices.Equal(e.LegPlaces, o.LegPlaces) &&
		slices.Equal(e.SplitPlaces, o.SplitPlaces)
}

// Clone returns a copy that shares no memory with e.
func (e Entry) Clone() Entry {
	e.Splits = slices.Clone(e.Splits)
	e.LegPlaces = slices.Clone(e.LegPlaces)
	e.SplitPlaces = slices.Clone(e.SplitPlaces)
	return e
}

// statusGroup is the position of a status group in a ranking.
func statusGroup(s model.Status) int {
	if i := slices.Index(model.AllStatuses, s); i >= 0 {
		return i
	}
	return len(model.AllStatuses)
}

func compareEntries(a, b Entry) int {
	if ga, gb := statusGroup(a.Status), statusGroup(b.Status); ga != gb {
		return ga - gb
	}
	if a.Status == model.StatusFinished && a.Result != b.Result {
		if a.Result < b.Result {
			return -1
		}
		return 1
	}
	return strings.Compare(a.CompetitorID, b.CompetitorID)
}

// Rank returns entries in ranking order with places, time behind and
// per-split places filled in. Finished competitors come first by result, then the
// remaining status groups in the order of model.AllStatuses, each by
// competitor id. Equal results share a place. The input is not modified.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	slices.SortFunc(out, compareEntries)

	var leader time.Duration
	for i := range out {
		e := &out[i]
		if e.Status != model.StatusFinished {
			e.Place = 0
			e.Behind = 0
			continue
		}
		switch {
		case i == 0:
			leader = e.Result
			e.Place = 1
		case out[i-1].Result == e.Result:
			e.Place = out[i-1].Place
		default:
			e.Place = i + 1
		}
		e.Behind = e.Result - leader
	}
	placeLegs(out)
	return out
}

// placeLegs ranks each leg, and the elapsed time at each control, among the
// finished entries.
func placeLegs(entries []Entry) {
	splits := make(map[string][]model.Split)
	legs := make(map[int]bool)
	for _, e := range entries {
		if e.Status != model.StatusFinished {
			continue
		}
		splits[e.CompetitorID] = e.Splits
		for _, s := range e.Splits {
			legs[s.CourseIndex] = true
		}
	}
	places := make(map[int]map[string]int, len(legs))
	elapsed := make(map[int]map[string]int, len(legs))
	for idx := range legs {
		places[idx] = LegPlaces(splits, idx)
		elapsed[idx] = ElapsedPlaces(splits, idx)
	}

	for i := range entries {
		e := &entries[i]
		e.LegPlaces, e.SplitPlaces = nil, nil
		if e.Status != model.StatusFinished || len(e.Splits) == 0 {
			continue
		}
		e.LegPlaces = make([]int, len(e.Splits))
		e.SplitPlaces = make([]int, len(e.Splits))
		for j, s := range e.Splits {
			e.LegPlaces[j] = places[s.CourseIndex][e.CompetitorID]
			e.SplitPlaces[j] = elapsed[s.CourseIndex][e.CompetitorID]
		}
	}
}
