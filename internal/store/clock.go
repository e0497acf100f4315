package store

import "sync/atomic"

// clock is the store's logical clock. Saved queries are ordered by the seq
// it hands out, never by wall time.
type clock struct {
	seq atomic.Int64
}

// newClockAt creates a clock that continues after start.
func newClockAt(start int64) *clock {
	c := &clock{}
	c.seq.Store(start)
	return c
}

// next returns the next sequence number.
func (c *clock) next() int64 {
	return c.seq.Add(1)
}

func (c *clock) current() int64 {
	return c.seq.Load()
}
