package feed

import (
	"time"

	"github.com/roach88/sportorg/internal/ranking"
)

// Snapshot is the ranking of one class at one point in time.
// Snapshots handed out by the feed are copies; mutating one has no effect on
// what other subscribers see.
type Snapshot struct {
	ClassID string          `json:"class_id"`
	Version uint64          `json:"version"`
	At      time.Time       `json:"at"`
	Entries []ranking.Entry `json:"entries"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s.Entries != nil {
		entries := make([]ranking.Entry, len(s.Entries))
		for i, e := range s.Entries {
			entries[i] = e.Clone()
		}
		s.Entries = entries
	}
	return s
}
