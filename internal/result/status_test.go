package result

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/model"
)

func sec(n int) time.Duration { return time.Duration(n) * time.Second }

// punchesInArrivalOrder builds punches for card C1, numbering Seq in the
// order given.
func punchesInArrivalOrder(pairs ...any) []model.Punch {
	var out []model.Punch
	for i := 0; i < len(pairs); i += 2 {
		code := pairs[i].(string)
		t := sec(pairs[i+1].(int))
		p := model.NewPunch("C1", code, t, "test")
		p.Seq = int64(len(out) + 1)
		out = append(out, p)
	}
	return out
}

func sequentialCourse() model.Course {
	return model.Course{ID: "A", Controls: []string{"31", "32", "33"}}.WithDefaults()
}

func TestClassifyFinishedOutOfOrderArrival(t *testing.T) {
	history := punchesInArrivalOrder("finish", 50, "33", 40, "31", 10, "32", 25)

	out := Classify(Input{History: history, Course: sequentialCourse()})

	assert.Equal(t, model.StatusFinished, out.Status)
	assert.True(t, out.Started)
	assert.Equal(t, time.Duration(0), out.Start)
	assert.Equal(t, sec(50), out.Result)
	assert.Zero(t, out.Misses)
	require.Len(t, out.Splits, 3)

	last := out.Splits[2]
	assert.Equal(t, "33", last.Code)
	assert.Equal(t, 2, last.CourseIndex)
	assert.Equal(t, sec(40), last.Elapsed)
	assert.Equal(t, sec(15), last.Leg)
}

func TestClassifyMissingControlDisqualifies(t *testing.T) {
	history := punchesInArrivalOrder("31", 10, "33", 40, "finish", 50)

	out := Classify(Input{History: history, Course: sequentialCourse()})

	assert.Equal(t, model.StatusDisqualified, out.Status)
	assert.Equal(t, 1, out.Misses)
	assert.Len(t, out.Splits, 2)
}

func TestClassifyWrongOrderDisqualifies(t *testing.T) {
	history := punchesInArrivalOrder("32", 10, "31", 20, "33", 30, "finish", 50)

	out := Classify(Input{History: history, Course: sequentialCourse()})

	assert.Equal(t, model.StatusDisqualified, out.Status)
	assert.Equal(t, 1, out.Misses)
}

func TestClassifyFreeOrder(t *testing.T) {
	course := sequentialCourse()
	course.Order = model.OrderFree
	history := punchesInArrivalOrder("32", 10, "33", 20, "31", 30, "finish", 50)

	out := Classify(Input{History: history, Course: course})

	assert.Equal(t, model.StatusFinished, out.Status)
	require.Len(t, out.Splits, 3)
	assert.Equal(t, "32", out.Splits[0].Code)
	assert.Equal(t, 1, out.Splits[0].CourseIndex)
	assert.Equal(t, sec(10), out.Splits[1].Leg)
}

func TestClassifyPenalize(t *testing.T) {
	course := sequentialCourse()
	course.MissingPolicy = model.MissingPenalize
	course.PenaltyPerMiss = 2 * time.Minute
	history := punchesInArrivalOrder("31", 10, "finish", 50)

	out := Classify(Input{History: history, Course: course})

	assert.Equal(t, model.StatusFinished, out.Status)
	assert.Equal(t, 2, out.Misses)
	assert.Equal(t, 4*time.Minute, out.Penalty)
	assert.Equal(t, sec(50)+4*time.Minute, out.Result)
}

func TestClassifyStartPunch(t *testing.T) {
	history := punchesInArrivalOrder("start", 5, "31", 10, "32", 25, "33", 40, "finish", 50)

	out := Classify(Input{History: history, Course: sequentialCourse(), ScheduledStart: sec(1)})

	assert.Equal(t, sec(5), out.Start)
	assert.Equal(t, sec(45), out.Result)
	assert.Equal(t, sec(5), out.Splits[0].Elapsed)
}

func TestClassifyNotStartedAndClosure(t *testing.T) {
	course := sequentialCourse()

	out := Classify(Input{Course: course})
	assert.Equal(t, model.StatusNotStarted, out.Status)

	out = Classify(Input{Course: course, Closed: true})
	assert.Equal(t, model.StatusDidNotStart, out.Status)

	started := punchesInArrivalOrder("start", 0, "31", 10)
	out = Classify(Input{History: started, Course: course})
	assert.Equal(t, model.StatusInProgress, out.Status)

	out = Classify(Input{History: started, Course: course, Closed: true})
	assert.Equal(t, model.StatusDidNotFinish, out.Status)
}

func TestClassifyOverTime(t *testing.T) {
	course := sequentialCourse()
	course.TimeLimit = time.Minute
	running := punchesInArrivalOrder("start", 0, "31", 10)

	out := Classify(Input{History: running, Course: course, Now: sec(59)})
	assert.Equal(t, model.StatusInProgress, out.Status)

	out = Classify(Input{History: running, Course: course, Now: sec(61)})
	assert.Equal(t, model.StatusOverTime, out.Status)

	slow := punchesInArrivalOrder("31", 10, "32", 20, "33", 30, "finish", 70)
	out = Classify(Input{History: slow, Course: course})
	assert.Equal(t, model.StatusOverTime, out.Status)
	assert.Equal(t, sec(70), out.Result)
}

func TestClassifyOverrunAllowance(t *testing.T) {
	course := sequentialCourse()
	course.TimeLimit = time.Minute
	course.MaxOverrun = 15 * time.Second

	late := punchesInArrivalOrder("31", 10, "32", 20, "33", 30, "finish", 70)
	out := Classify(Input{History: late, Course: course})
	assert.Equal(t, model.StatusFinished, out.Status)

	tooLate := punchesInArrivalOrder("31", 10, "32", 20, "33", 30, "finish", 76)
	out = Classify(Input{History: tooLate, Course: course})
	assert.Equal(t, model.StatusOverTime, out.Status)

	running := punchesInArrivalOrder("start", 0, "31", 10)
	out = Classify(Input{History: running, Course: course, Now: sec(75)})
	assert.Equal(t, model.StatusInProgress, out.Status)
	out = Classify(Input{History: running, Course: course, Now: sec(76)})
	assert.Equal(t, model.StatusOverTime, out.Status)
}

func TestClassifyCreditTime(t *testing.T) {
	course := sequentialCourse()
	course.CreditControl = "32"
	history := punchesInArrivalOrder("31", 10, "32", 40, "33", 50, "finish", 60)

	out := Classify(Input{History: history, Course: course})

	assert.Equal(t, model.StatusFinished, out.Status)
	assert.Equal(t, sec(30), out.Credit)
	assert.Equal(t, sec(30), out.Result)
}

func TestCreditTimeSkipsFirstSplit(t *testing.T) {
	splits := []model.Split{
		{Code: "31", Leg: sec(10)},
		{Code: "32", Leg: sec(30)},
		{Code: "31", Leg: sec(5)},
	}
	assert.Equal(t, sec(5), CreditTime(splits, "31"))
	assert.Zero(t, CreditTime(splits, ""))
}

func TestClassifyExtraPunchIgnored(t *testing.T) {
	history := punchesInArrivalOrder("31", 10, "99", 15, "32", 25, "33", 40, "finish", 50)

	out := Classify(Input{History: history, Course: sequentialCourse()})

	assert.Equal(t, model.StatusFinished, out.Status)
	require.Len(t, out.Extra, 1)
	assert.Equal(t, "99", out.Extra[0].Code)
	assert.Len(t, out.Splits, 3)
}

func TestClassifyEqualTimeFlagged(t *testing.T) {
	course := model.Course{ID: "A", Controls: []string{"31", "32"}}.WithDefaults()
	history := punchesInArrivalOrder("31", 10, "32", 10, "finish", 50)

	out := Classify(Input{History: history, Course: course})

	assert.Equal(t, model.StatusFinished, out.Status)
	require.Len(t, out.Anomalies, 1)
	assert.Equal(t, AnomalyEqualTime, out.Anomalies[0].Kind)
	assert.Equal(t, []string{history[0].ID, history[1].ID}, out.Anomalies[0].PunchIDs)
	require.Len(t, out.Splits, 2)
	assert.True(t, out.Splits[0].Flagged)
	assert.True(t, out.Splits[1].Flagged)
	assert.Equal(t, time.Duration(0), out.Splits[1].Leg)
}

func TestClassifyFinishBeforeStartIgnored(t *testing.T) {
	history := punchesInArrivalOrder("finish", 3, "start", 5, "31", 10)

	out := Classify(Input{History: history, Course: sequentialCourse()})

	assert.False(t, out.Finished)
	assert.Equal(t, model.StatusInProgress, out.Status)
	require.Len(t, out.Anomalies, 1)
	assert.Equal(t, AnomalyFinishBeforeStart, out.Anomalies[0].Kind)
}

func TestClassifyControlsAfterFinishIgnored(t *testing.T) {
	history := punchesInArrivalOrder("31", 10, "finish", 20, "32", 25, "33", 40, "finish", 50)

	out := Classify(Input{History: history, Course: sequentialCourse()})

	assert.Equal(t, sec(20), out.Finish)
	assert.Equal(t, model.StatusDisqualified, out.Status)
	assert.Equal(t, 2, out.Misses)
}

func TestClassifyOverride(t *testing.T) {
	history := punchesInArrivalOrder("31", 10, "32", 25, "33", 40, "finish", 50)
	override := &model.Override{Status: model.StatusDisqualified, Reason: "shortcut"}

	out := Classify(Input{History: history, Course: sequentialCourse(), Override: override})

	assert.Equal(t, model.StatusDisqualified, out.Status)
	assert.Equal(t, model.StatusFinished, out.Derived)
	assert.True(t, out.Overridden)
	assert.Equal(t, "shortcut", out.Reason)
}

func TestClassifyOrderIndependence(t *testing.T) {
	base := []model.Punch{
		model.NewPunch("C1", "start", sec(2), "r1"),
		model.NewPunch("C1", "31", sec(10), "r1"),
		model.NewPunch("C1", "32", sec(25), "r2"),
		model.NewPunch("C1", "99", sec(30), "r2"),
		model.NewPunch("C1", "33", sec(40), "r1"),
		model.NewPunch("C1", "finish", sec(50), "r2"),
	}
	want := Classify(Input{History: base, Course: sequentialCourse()})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]model.Punch, len(base))
		for j, k := range rng.Perm(len(base)) {
			shuffled[j] = base[k]
			shuffled[j].Seq = int64(j + 1)
		}
		got := Classify(Input{History: shuffled, Course: sequentialCourse()})

		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.Result, got.Result)
		assert.Equal(t, want.Splits, got.Splits)
	}
}

func TestCheckOverride(t *testing.T) {
	finished := Outcome{Finished: true}
	running := Outcome{}

	assert.NoError(t, CheckOverride(running, model.StatusDidNotFinish))
	assert.NoError(t, CheckOverride(finished, model.StatusFinished))
	assert.Error(t, CheckOverride(running, model.StatusFinished))
	assert.Error(t, CheckOverride(running, model.StatusInProgress))
	assert.Error(t, CheckOverride(running, model.StatusNotStarted))
	assert.Error(t, CheckOverride(running, model.Status("lost")))
}
