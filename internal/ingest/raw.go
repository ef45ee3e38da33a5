package ingest

import (
	"fmt"
	"strings"

	"github.com/roach88/sportorg/internal/model"
)

// ErrCodeMalformedPunch is the error code carried by MalformedPunchError.
const ErrCodeMalformedPunch = "MALFORMED_PUNCH"

// RawPunch is a punch as read off the wire, before parsing.
type RawPunch struct {
	Source string `json:"source"`
	Card   string `json:"card"`
	Code   string `json:"code"`
	Time   string `json:"time"`
}

func (r RawPunch) String() string {
	return fmt.Sprintf("%s,%s,%s", r.Card, r.Code, r.Time)
}

// MalformedPunchError reports a raw punch that could not be parsed.
type MalformedPunchError struct {
	Source string
	Raw    string
	Reason string
}

func (e *MalformedPunchError) Error() string {
	return fmt.Sprintf("%s: %s (source=%s, raw=%q)", ErrCodeMalformedPunch, e.Reason, e.Source, e.Raw)
}

// Code returns ErrCodeMalformedPunch.
func (e *MalformedPunchError) Code() string { return ErrCodeMalformedPunch }

func malformed(raw RawPunch, format string, args ...any) *MalformedPunchError {
	return &MalformedPunchError{
		Source: raw.Source,
		Raw:    raw.String(),
		Reason: fmt.Sprintf(format, args...),
	}
}

// Parse validates a raw punch and converts it into a punch with its content
// address set. Seq and ReceivedAt are left for the queue to fill in.
func Parse(raw RawPunch) (model.Punch, error) {
	card := strings.TrimSpace(raw.Card)
	code := strings.TrimSpace(raw.Code)
	if card == "" {
		return model.Punch{}, malformed(raw, "missing card id")
	}
	if code == "" {
		return model.Punch{}, malformed(raw, "missing control code")
	}
	if strings.ContainsAny(card+code, ",\n\r") {
		return model.Punch{}, malformed(raw, "illegal character in card or code")
	}
	t, err := model.ParseTime(raw.Time)
	if err != nil {
		return model.Punch{}, malformed(raw, "%v", err)
	}

	id, err := model.PunchID(card, code, t)
	if err != nil {
		return model.Punch{}, malformed(raw, "%v", err)
	}
	return model.Punch{
		ID:     id,
		CardID: card,
		Code:   code,
		Time:   t,
		Source: raw.Source,
	}, nil
}
