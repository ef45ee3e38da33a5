package ranking

import (
	"slices"
	"time"

	"github.com/roach88/sportorg/internal/model"
)

// LegPlaces ranks competitors on a single leg, identified by course index.
// Competitors without a split at that index are left out. Equal leg times
// share a place and the next place is skipped.
func LegPlaces(splits map[string][]model.Split, courseIndex int) map[string]int {
	return placesBy(splits, courseIndex, func(s model.Split) time.Duration { return s.Leg })
}

// ElapsedPlaces ranks competitors by elapsed time from start at a control.
func ElapsedPlaces(splits map[string][]model.Split, courseIndex int) map[string]int {
	return placesBy(splits, courseIndex, func(s model.Split) time.Duration { return s.Elapsed })
}

func placesBy(splits map[string][]model.Split, courseIndex int, value func(model.Split) time.Duration) map[string]int {
	type leg struct {
		id string
		d  time.Duration
	}
	var legs []leg
	for id, ss := range splits {
		for _, s := range ss {
			if s.CourseIndex == courseIndex {
				legs = append(legs, leg{id, value(s)})
				break
			}
		}
	}
	slices.SortFunc(legs, func(a, b leg) int {
		if a.d != b.d {
			if a.d < b.d {
				return -1
			}
			return 1
		}
		if a.id < b.id {
			return -1
		}
		if a.id > b.id {
			return 1
		}
		return 0
	})

	places := make(map[string]int, len(legs))
	for i, l := range legs {
		if i > 0 && legs[i-1].d == l.d {
			places[l.id] = places[legs[i-1].id]
			continue
		}
		places[l.id] = i + 1
	}
	return places
}
