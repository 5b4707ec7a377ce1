package engine

import "sync/atomic"

// Clock hands out the seq numbers that order invocations, artifacts and
// trace events. A trace is replayable because seq, not wall time, is the
// only ordering the engine records.
type Clock struct {
	last atomic.Int64
}

// NewClockAt returns a clock whose next tick is after+1. Pass
// store.LastSeq to append to an existing trace.
func NewClockAt(after int64) *Clock {
	c := new(Clock)
	c.last.Store(after)
	return c
}

// Tick advances the clock and returns the new seq.
func (c *Clock) Tick() int64 { return c.last.Add(1) }

// Last returns the most recent seq handed out.
func (c *Clock) Last() int64 { return c.last.Load() }
