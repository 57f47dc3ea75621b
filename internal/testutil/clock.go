package testutil

import "sync"

// DeterministicClock is a manual millisecond clock for tests.
//
// Every call to Now returns the current time and then advances it by the
// step, so two projections of the same scenario stamp identical times.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	ms    int64
}

// NewDeterministicClock creates a clock at start that advances by step on
// every read. A zero step freezes the clock.
func NewDeterministicClock(start, step int64) *DeterministicClock {
	return &DeterministicClock{start: start, step: step, ms: start}
}

// Now returns the current time in unix milliseconds and advances the clock.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.ms
	c.ms += c.step
	return now
}

// Current returns the time the next Now call will report.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Reset moves the clock back to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = c.start
}
