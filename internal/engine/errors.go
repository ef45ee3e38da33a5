package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/sportorg/internal/ingest"
)

// RuntimeError is an error raised while the engine applies a punch or an
// administrative command.
//
// RuntimeError carries the affected card, competitor and punch so that a
// logged failure can be traced back to its input.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	CardID       string
	CompetitorID string
	PunchID      string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMalformedPunch indicates a reader sent an unparseable punch.
	ErrCodeMalformedPunch RuntimeErrorCode = ingest.ErrCodeMalformedPunch

	// ErrCodeUnresolvedCard indicates a punch for a card no competitor holds.
	ErrCodeUnresolvedCard RuntimeErrorCode = "UNRESOLVED_CARD"

	// ErrCodeDuplicatePunch indicates a punch already in the history.
	ErrCodeDuplicatePunch RuntimeErrorCode = "DUPLICATE_PUNCH"

	// ErrCodeInvalidTransition indicates a status change that is not allowed.
	ErrCodeInvalidTransition RuntimeErrorCode = "INVALID_TRANSITION"

	// ErrCodeClockAnomaly indicates punches whose timing needs review.
	ErrCodeClockAnomaly RuntimeErrorCode = "CLOCK_ANOMALY"

	// ErrCodeUnknownCompetitor indicates a command named no registered competitor.
	ErrCodeUnknownCompetitor RuntimeErrorCode = "UNKNOWN_COMPETITOR"

	// ErrCodeUnknownPunch indicates a retraction of a punch the engine does not hold.
	ErrCodeUnknownPunch RuntimeErrorCode = "UNKNOWN_PUNCH"

	// ErrCodeInvalidCompetitor indicates a registration that cannot be routed.
	ErrCodeInvalidCompetitor RuntimeErrorCode = "INVALID_COMPETITOR"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.CompetitorID != "":
		return fmt.Sprintf("%s: %s (competitor=%s)", e.Code, e.Message, e.CompetitorID)
	case e.CardID != "":
		return fmt.Sprintf("%s: %s (card=%s)", e.Code, e.Message, e.CardID)
	case e.PunchID != "":
		return fmt.Sprintf("%s: %s (punch=%s)", e.Code, e.Message, e.PunchID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the code of err if it is a RuntimeError, or a malformed
// punch from ingestion, and "" otherwise.
func ErrorCode(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	var me *ingest.MalformedPunchError
	if errors.As(err, &me) {
		return ErrCodeMalformedPunch
	}
	return ""
}

// IsUnresolvedCardError reports whether err is an unresolved card error.
func IsUnresolvedCardError(err error) bool {
	return ErrorCode(err) == ErrCodeUnresolvedCard
}

// IsInvalidTransitionError reports whether err rejected a status change.
func IsInvalidTransitionError(err error) bool {
	return ErrorCode(err) == ErrCodeInvalidTransition
}

// IsUnknownCompetitorError reports whether err named an unknown competitor.
func IsUnknownCompetitorError(err error) bool {
	return ErrorCode(err) == ErrCodeUnknownCompetitor
}

// IsMalformedPunchError reports whether err came from an unparseable punch.
func IsMalformedPunchError(err error) bool {
	return ErrorCode(err) == ErrCodeMalformedPunch
}

// ErrStopped is returned by commands submitted after the engine stopped.
var ErrStopped = errors.New("engine: stopped")
