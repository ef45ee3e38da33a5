package result

import (
	"fmt"
	"time"

	"github.com/roach88/sportorg/internal/model"
)

// Input is everything the classifier looks at for one competitor.
type Input struct {
	History        []model.Punch
	Course         model.Course
	ScheduledStart time.Duration
	Now            time.Duration // current event time, for the time limit
	Closed         bool
	Override       *model.Override
}

// AnomalyKind names a timing irregularity found while classifying.
type AnomalyKind string

const (
	// AnomalyEqualTime is two different controls punched at the same time.
	AnomalyEqualTime AnomalyKind = "equal_time"
	// AnomalyFinishBeforeStart is a finish punch earlier than the start.
	AnomalyFinishBeforeStart AnomalyKind = "finish_before_start"
)

// Anomaly is a timing irregularity that needs manual review. Anomalies never
// stop classification.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	PunchIDs []string    `json:"punch_ids"`
	Detail   string      `json:"detail"`
}

// Outcome is the derived state of one competitor.
type Outcome struct {
	Status     model.Status  `json:"status"`
	Derived    model.Status  `json:"derived"` // status ignoring any override
	Overridden bool          `json:"overridden,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Started    bool          `json:"started"`
	Start      time.Duration `json:"start"`
	Finished   bool          `json:"finished"` // a usable finish punch exists
	Finish     time.Duration `json:"finish"`
	Misses     int           `json:"misses"`
	Penalty    time.Duration `json:"penalty"`
	Credit     time.Duration `json:"credit,omitempty"`
	Result     time.Duration `json:"result"` // finish - start - credit + penalty
	Splits     []model.Split `json:"splits"`
	Extra      []model.Punch `json:"extra,omitempty"` // punches at controls off the course
	Anomalies  []Anomaly     `json:"anomalies,omitempty"`
}

// Classify derives a competitor's status from their punches.
//
// The start is the first start-control punch, or the scheduled start when
// there is none. Any course or finish punch counts as evidence of having
// started. The finish is the first finish punch at or after the start.
func Classify(in Input) Outcome {
	course := in.Course.WithDefaults()
	punches := SortHistory(in.History)

	out := Outcome{Start: in.ScheduledStart}
	for _, p := range punches {
		if p.Code == course.StartCode {
			out.Started = true
			out.Start = p.Time
			break
		}
	}

	for _, p := range punches {
		switch {
		case p.Code == course.StartCode:
		case p.Code == course.FinishCode:
			if p.Time < out.Start {
				out.Anomalies = append(out.Anomalies, Anomaly{
					Kind:     AnomalyFinishBeforeStart,
					PunchIDs: []string{p.ID},
					Detail:   fmt.Sprintf("finish at %s before start at %s", model.FormatTime(p.Time), model.FormatTime(out.Start)),
				})
				continue
			}
			out.Started = true
			if !out.Finished {
				out.Finished = true
				out.Finish = p.Time
			}
		case course.HasControl(p.Code):
			out.Started = true
		default:
			out.Extra = append(out.Extra, p)
		}
	}

	m := matchCourse(punches, course, out.Start, out.Finish, out.Finished)
	out.Splits = m.splits
	out.Misses = m.misses
	out.Credit = CreditTime(out.Splits, course.CreditControl)
	out.Anomalies = append(out.Anomalies, m.anomalies...)

	out.Derived = derive(&out, course, in)
	out.Status = out.Derived
	if in.Override != nil {
		out.Status = in.Override.Status
		out.Overridden = true
		out.Reason = in.Override.Reason
	}
	return out
}

func derive(out *Outcome, course model.Course, in Input) model.Status {
	switch {
	case !out.Started:
		if in.Closed {
			return model.StatusDidNotStart
		}
		return model.StatusNotStarted

	case out.Finished:
		if out.Misses > 0 && course.MissingPolicy == model.MissingDisqualify {
			out.Result = out.Finish - out.Start
			return model.StatusDisqualified
		}
		out.Penalty = time.Duration(out.Misses) * course.PenaltyPerMiss
		out.Result = out.Finish - out.Start - out.Credit + out.Penalty
		if course.OverTime(out.Result) {
			return model.StatusOverTime
		}
		return model.StatusFinished

	default:
		if course.OverTime(in.Now - out.Start - out.Credit) {
			return model.StatusOverTime
		}
		if in.Closed {
			return model.StatusDidNotFinish
		}
		return model.StatusInProgress
	}
}

// CheckOverride reports whether an operator may force outcome to target.
// Only terminal statuses can be forced, and finished needs a finish punch.
func CheckOverride(outcome Outcome, target model.Status) error {
	if !target.Valid() {
		return fmt.Errorf("unknown status %q", target)
	}
	if !target.Terminal() {
		return fmt.Errorf("%s is not a terminal status", target)
	}
	if target == model.StatusFinished && !outcome.Finished {
		return fmt.Errorf("cannot mark finished without a finish punch")
	}
	return nil
}
