package sim

import "time"

// Clock tracks the current simulated time. It only moves forward: the
// dispatcher sets it from each dequeued event before invoking handlers.
type Clock struct {
	now time.Time
}

// NewClock returns a clock positioned at the given start time
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current simulated time
func (c *Clock) Now() time.Time {
	return c.now
}

// Set advances the clock to t. Earlier times are ignored so the clock
// never runs backwards even if a stale event slips through.
func (c *Clock) Set(t time.Time) {
	if t.After(c.now) {
		c.now = t
	}
}
