package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/sportorg/internal/model"
)

// Durations are stored as integer milliseconds, instants as unix
// milliseconds. SQLite has no native types for either.

func toMS(d time.Duration) int64 { return d.Milliseconds() }

func fromMS(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

func toUnixMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMS(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// marshalControls stores the control list as canonical JSON so identical
// courses are byte-identical on disk.
func marshalControls(controls []string) (string, error) {
	arr := make([]any, len(controls))
	for i, c := range controls {
		arr[i] = c
	}
	data, err := model.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal controls: %w", err)
	}
	return string(data), nil
}

func unmarshalControls(data string) ([]string, error) {
	var controls []string
	if err := json.Unmarshal([]byte(data), &controls); err != nil {
		return nil, fmt.Errorf("unmarshal controls: %w", err)
	}
	if controls == nil {
		controls = []string{}
	}
	return controls, nil
}

// storedSplit is the on-disk form of a split.
type storedSplit struct {
	Code        string `json:"code"`
	CourseIndex int    `json:"course_index"`
	TimeMS      int64  `json:"time_ms"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	LegMS       int64  `json:"leg_ms"`
	Flagged     bool   `json:"flagged,omitempty"`
}

func marshalSplits(splits []model.Split) (string, error) {
	out := make([]storedSplit, len(splits))
	for i, s := range splits {
		out[i] = storedSplit{
			Code:        s.Code,
			CourseIndex: s.CourseIndex,
			TimeMS:      toMS(s.Time),
			ElapsedMS:   toMS(s.Elapsed),
			LegMS:       toMS(s.Leg),
			Flagged:     s.Flagged,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal splits: %w", err)
	}
	return string(data), nil
}

func unmarshalSplits(data string) ([]model.Split, error) {
	var stored []storedSplit
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal splits: %w", err)
	}
	out := make([]model.Split, len(stored))
	for i, s := range stored {
		out[i] = model.Split{
			Code:        s.Code,
			CourseIndex: s.CourseIndex,
			Time:        fromMS(s.TimeMS),
			Elapsed:     fromMS(s.ElapsedMS),
			Leg:         fromMS(s.LegMS),
			Flagged:     s.Flagged,
		}
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
