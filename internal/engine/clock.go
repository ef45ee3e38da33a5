package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// The engine stamps every published snapshot with Clock.Next. Load resumes
// the clock from the last stored version with NewClockAt, so snapshot
// versions only ever grow, across all classes and across restarts.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific value.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
