// Package simclock provides a deterministic implementation of
// jacobsa/timeutil.Clock for tests that need to control simulated seek
// latency without real sleeps.
package simclock

import (
	"sync"
	"time"
)

// afterRequest holds the information for a pending After call.
type afterRequest struct {
	targetTime time.Time
	ch         chan time.Time
}

// Clock is a clock whose notion of "now" only moves when AdvanceTime or
// SetTime is called. It implements github.com/jacobsa/timeutil.Clock.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*afterRequest
}

// New returns a Clock initialized to startTime.
func New(startTime time.Time) *Clock {
	return &Clock{now: startTime}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SetTime sets the current simulated time and fires any pending After
// calls whose target has been reached.
func (c *Clock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	c.firePending()
}

// AdvanceTime moves the simulated clock forward by d.
func (c *Clock) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.firePending()
}

// After returns a channel that receives the simulated time once the clock
// has advanced by at least d from now.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	target := c.now.Add(d)
	if !target.After(c.now) {
		ch <- c.now
		return ch
	}

	c.pending = append(c.pending, &afterRequest{targetTime: target, ch: ch})
	return ch
}

// firePending must be called with mu held.
func (c *Clock) firePending() {
	var still []*afterRequest
	for _, r := range c.pending {
		if !c.now.Before(r.targetTime) {
			r.ch <- r.targetTime
		} else {
			still = append(still, r)
		}
	}
	c.pending = still
}
