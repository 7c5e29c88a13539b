package testutil

import "sync"

// DeterministicClock hands out strictly increasing unix timestamps for tests.
//
// The same sequence of calls always yields the same timestamps, so stores
// built by two tests from the same script hold identical records.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	base  int64
	ticks int64
}

// NewDeterministicClock creates a clock whose first Next() returns base+1.
func NewDeterministicClock(base int64) *DeterministicClock {
	return &DeterministicClock{base: base}
}

// Next advances the clock by one second and returns the new timestamp.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	return c.base + c.ticks
}

// Current returns the current timestamp without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base + c.ticks
}

// Reset rewinds the clock to its base.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
