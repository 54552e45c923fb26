// internal/sim/clock.go

package sim

import (
	"fpsched/internal/sched"
)

// Clock is the simulator's virtual time. It only moves forward and counts
// the events that moved it.
type Clock struct {
	now   sched.Time
	count int64
}

// Advance moves the clock to t.
func (c *Clock) Advance(t sched.Time) {
	mustf(t >= c.now, "clock moved backwards from %d to %d", c.now, t)
	c.now = t
	c.count++
}

// Now returns the current virtual time.
func (c *Clock) Now() sched.Time { return c.now }

// Count returns the number of events processed.
func (c *Clock) Count() int64 { return c.count }
