package model

import (
	"fmt"
	"time"
)

// OrderMode controls how a course's controls must be visited.
type OrderMode string

const (
	// OrderSequential requires controls in the defined order.
	OrderSequential OrderMode = "sequential"
	// OrderFree requires every control, in any order.
	OrderFree OrderMode = "free"
)

// MissingPolicy decides what a missed control costs.
type MissingPolicy string

const (
	// MissingDisqualify disqualifies a competitor with a missed control.
	MissingDisqualify MissingPolicy = "disqualify"
	// MissingPenalize adds Course.PenaltyPerMiss to the result for each miss.
	MissingPenalize MissingPolicy = "penalize"
)

// Default start and finish control codes.
const (
	DefaultStartCode  = "start"
	DefaultFinishCode = "finish"
)

// Course is the static definition of what competitors of a class must visit.
// A course is read-only while the event runs.
type Course struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Controls       []string      `json:"controls"`
	Order          OrderMode     `json:"order"`
	MissingPolicy  MissingPolicy `json:"missing_policy"`
	PenaltyPerMiss time.Duration `json:"penalty_per_miss"`
	TimeLimit      time.Duration `json:"time_limit"` // zero = no limit
	MaxOverrun     time.Duration `json:"max_overrun,omitempty"`
	StartCode      string        `json:"start_code"`
	FinishCode     string        `json:"finish_code"`

	// CreditControl is a control whose inbound legs are neutralised: their
	// time is taken off the result.
	CreditControl string `json:"credit_control,omitempty"`
}

// WithDefaults fills unset course fields with their defaults.
func (c Course) WithDefaults() Course {
	if c.Order == "" {
		c.Order = OrderSequential
	}
	if c.MissingPolicy == "" {
		c.MissingPolicy = MissingDisqualify
	}
	if c.StartCode == "" {
		c.StartCode = DefaultStartCode
	}
	if c.FinishCode == "" {
		c.FinishCode = DefaultFinishCode
	}
	return c
}

// Validate checks the course definition for internal consistency.
func (c Course) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("course id is required")
	}
	switch c.Order {
	case OrderSequential, OrderFree:
	default:
		return fmt.Errorf("course %s: unknown order %q", c.ID, c.Order)
	}
	switch c.MissingPolicy {
	case MissingDisqualify, MissingPenalize:
	default:
		return fmt.Errorf("course %s: unknown missing policy %q", c.ID, c.MissingPolicy)
	}
	if c.StartCode == c.FinishCode {
		return fmt.Errorf("course %s: start and finish codes must differ", c.ID)
	}
	for i, code := range c.Controls {
		if code == "" {
			return fmt.Errorf("course %s: control %d has empty code", c.ID, i)
		}
		if code == c.StartCode || code == c.FinishCode {
			return fmt.Errorf("course %s: control %d reuses start/finish code %q", c.ID, i, code)
		}
	}
	if c.TimeLimit < 0 || c.PenaltyPerMiss < 0 || c.MaxOverrun < 0 {
		return fmt.Errorf("course %s: negative durations are not allowed", c.ID)
	}
	if c.MaxOverrun > 0 && c.TimeLimit == 0 {
		return fmt.Errorf("course %s: max overrun needs a time limit", c.ID)
	}
	if c.CreditControl != "" && !c.HasControl(c.CreditControl) {
		return fmt.Errorf("course %s: credit control %q is not on the course", c.ID, c.CreditControl)
	}
	return nil
}

// OverTime reports whether a running time is past the time limit and the
// overrun allowed after it.
func (c Course) OverTime(d time.Duration) bool {
	return c.TimeLimit > 0 && d > c.TimeLimit+c.MaxOverrun
}

// HasControl reports whether code is one of the course's required controls.
func (c Course) HasControl(code string) bool {
	for _, cc := range c.Controls {
		if cc == code {
			return true
		}
	}
	return false
}

// Class is a competitive grouping ranked against each other.
type Class struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	CourseID string `json:"course_id"`
}

// Competitor is a registered participant.
// CourseID overrides the class course when set.
type Competitor struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	ClassID   string        `json:"class_id"`
	CardID    string        `json:"card_id"`
	CourseID  string        `json:"course_id,omitempty"`
	Bib       int           `json:"bib,omitempty"`
	StartTime time.Duration `json:"start_time"` // scheduled start offset
}

// Validate checks that the competitor can be routed and ranked.
func (c Competitor) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("competitor id is required")
	}
	if c.ClassID == "" {
		return fmt.Errorf("competitor %s: class is required", c.ID)
	}
	if c.StartTime < 0 {
		return fmt.Errorf("competitor %s: negative start time", c.ID)
	}
	return nil
}

// Punch is an accepted, immutable timing-card read.
type Punch struct {
	ID         string        `json:"id"` // content address, see PunchID
	CardID     string        `json:"card_id"`
	Code       string        `json:"code"`
	Time       time.Duration `json:"time"`
	Source     string        `json:"source"`
	Seq        int64         `json:"seq"` // ingestion sequence
	ReceivedAt time.Time     `json:"received_at"`
}

// Before orders punches by timestamp, then by ingestion sequence.
func (p Punch) Before(o Punch) bool {
	if p.Time != o.Time {
		return p.Time < o.Time
	}
	return p.Seq < o.Seq
}

// Status is the derived race status of a competitor.
type Status string

const (
	StatusNotStarted   Status = "not_started"
	StatusInProgress   Status = "in_progress"
	StatusFinished     Status = "finished"
	StatusDisqualified Status = "disqualified"
	StatusDidNotFinish Status = "did_not_finish"
	StatusDidNotStart  Status = "did_not_start"
	StatusOverTime     Status = "over_time"
)

// AllStatuses lists every status in ranking group order.
var AllStatuses = []Status{
	StatusFinished,
	StatusInProgress,
	StatusNotStarted,
	StatusOverTime,
	StatusDisqualified,
	StatusDidNotFinish,
	StatusDidNotStart,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further punch can change the status.
func (s Status) Terminal() bool {
	return s != StatusNotStarted && s != StatusInProgress && s.Valid()
}

// ParseStatus parses a status name, accepting the common short forms.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ok", "OK":
		return StatusFinished, nil
	case "dsq", "DSQ", "mp", "MP":
		return StatusDisqualified, nil
	case "dnf", "DNF":
		return StatusDidNotFinish, nil
	case "dns", "DNS":
		return StatusDidNotStart, nil
	case "ot", "OT":
		return StatusOverTime, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Override is an operator-forced status, recorded with its reason.
type Override struct {
	CompetitorID string    `json:"competitor_id"`
	Status       Status    `json:"status"`
	Reason       string    `json:"reason"`
	SetAt        time.Time `json:"set_at"`
}

// Split is the derived timing at one matched course control.
type Split struct {
	Code        string        `json:"code"`
	CourseIndex int           `json:"course_index"`
	Time        time.Duration `json:"time"`
	Elapsed     time.Duration `json:"elapsed"` // from start
	Leg         time.Duration `json:"leg"`     // from previous matched control
	Flagged     bool          `json:"flagged,omitempty"`
}

// ReviewKind categorises items in the manual review queue.
type ReviewKind string

const (
	ReviewUnresolvedCard ReviewKind = "unresolved_card"
	ReviewOrphanedPunch  ReviewKind = "orphaned_punch"
	ReviewClockAnomaly   ReviewKind = "clock_anomaly"
	ReviewMalformed      ReviewKind = "malformed_punch"
)

// ReviewItem is a punch or situation an operator should look at.
type ReviewItem struct {
	ID           string     `json:"id"`
	Kind         ReviewKind `json:"kind"`
	CardID       string     `json:"card_id,omitempty"`
	CompetitorID string     `json:"competitor_id,omitempty"`
	PunchID      string     `json:"punch_id,omitempty"`
	Detail       string     `json:"detail"`
	CreatedAt    time.Time  `json:"created_at"`
}
