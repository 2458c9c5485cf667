// Package testutil provides deterministic stand-ins for the wall clock, the
// transport and the persistence layer used across the test suites.
package testutil

import "sync"

// DeterministicClock is a thread-safe manual clock. Tests control time
// explicitly, so enqueue timestamps and activity boundaries are stable
// across runs.
type DeterministicClock struct {
	mu  sync.Mutex
	now int64
}

// NewDeterministicClock creates a clock at the given unix time.
func NewDeterministicClock(start int64) *DeterministicClock {
	return &DeterministicClock{now: start}
}

// Now returns the current unix time.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d seconds and returns the new time.
func (c *DeterministicClock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// Set jumps the clock to a specific unix time.
func (c *DeterministicClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
