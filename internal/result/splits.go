package result

import (
	"slices"
	"time"

	"github.com/roach88/sportorg/internal/model"
)

// SortHistory returns a copy of history ordered by (Time, Seq).
func SortHistory(history []model.Punch) []model.Punch {
	out := slices.Clone(history)
	slices.SortStableFunc(out, func(a, b model.Punch) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return out
}

// ComputeSplits returns the splits of the course controls matched in
// history, counting from start. Punches after the first finish punch at or
// after start are not considered.
func ComputeSplits(history []model.Punch, course model.Course, start time.Duration) []model.Split {
	course = course.WithDefaults()
	punches := SortHistory(history)
	finish, finished := firstFinish(punches, course, start)
	m := matchCourse(punches, course, start, finish, finished)
	return m.splits
}

func firstFinish(punches []model.Punch, course model.Course, start time.Duration) (time.Duration, bool) {
	for _, p := range punches {
		if p.Code == course.FinishCode && p.Time >= start {
			return p.Time, true
		}
	}
	return 0, false
}

// match is the alignment of a history against a course.
type match struct {
	splits    []model.Split
	misses    int
	anomalies []Anomaly
}

// matchCourse aligns the course controls with the punches inside the
// [start, finish] window. Sequential courses use a longest-common-subsequence
// alignment preferring the earliest punches, so a single skipped control
// costs exactly one miss. Free courses match each punch to the first
// unsatisfied occurrence of its code.
func matchCourse(punches []model.Punch, course model.Course, start, finish time.Duration, finished bool) match {
	var candidates []model.Punch
	for _, p := range punches {
		if !course.HasControl(p.Code) || p.Time < start {
			continue
		}
		if finished && p.Time > finish {
			continue
		}
		candidates = append(candidates, p)
	}

	var m match
	flagged := make(map[string]bool)
	for i := 1; i < len(candidates); i++ {
		a, b := candidates[i-1], candidates[i]
		if a.Time == b.Time && a.Code != b.Code {
			flagged[a.ID] = true
			flagged[b.ID] = true
			m.anomalies = append(m.anomalies, Anomaly{
				Kind:     AnomalyEqualTime,
				PunchIDs: []string{a.ID, b.ID},
				Detail:   "controls " + a.Code + " and " + b.Code + " punched at " + model.FormatTime(a.Time),
			})
		}
	}

	var assigned []int // course index per candidate, -1 when unused
	if course.Order == model.OrderFree {
		assigned = matchFree(candidates, course.Controls)
	} else {
		assigned = matchSequential(candidates, course.Controls)
	}

	prev := start
	matched := 0
	for i, p := range candidates {
		if assigned[i] < 0 {
			continue
		}
		matched++
		m.splits = append(m.splits, model.Split{
			Code:        p.Code,
			CourseIndex: assigned[i],
			Time:        p.Time,
			Elapsed:     p.Time - start,
			Leg:         p.Time - prev,
			Flagged:     flagged[p.ID],
		})
		prev = p.Time
	}
	m.misses = len(course.Controls) - matched
	return m
}

func matchSequential(candidates []model.Punch, controls []string) []int {
	n, k := len(controls), len(candidates)

	// lcs[i][j] is the alignment length of controls[i:] with candidates[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, k+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := k - 1; j >= 0; j-- {
			if controls[i] == candidates[j].Code {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	assigned := make([]int, k)
	for j := range assigned {
		assigned[j] = -1
	}
	i, j := 0, 0
	for i < n && j < k {
		switch {
		case controls[i] == candidates[j].Code && lcs[i][j] == lcs[i+1][j+1]+1:
			assigned[j] = i
			i++
			j++
		case lcs[i][j] == lcs[i][j+1]:
			j++
		default:
			i++
		}
	}
	return assigned
}

func matchFree(candidates []model.Punch, controls []string) []int {
	used := make([]bool, len(controls))
	assigned := make([]int, len(candidates))
	for j, p := range candidates {
		assigned[j] = -1
		for i, code := range controls {
			if !used[i] && code == p.Code {
				used[i] = true
				assigned[j] = i
				break
			}
		}
	}
	return assigned
}

// CreditTime sums the legs that end at the credit control. The first split
// has no punched control before it and earns no credit.
func CreditTime(splits []model.Split, creditControl string) time.Duration {
	if creditControl == "" {
		return 0
	}
	var credit time.Duration
	for i, s := range splits {
		if i > 0 && s.Code == creditControl {
			credit += s.Leg
		}
	}
	return credit
}
