package adapter

import (
	"sync"
	"time"
)

// FakeClock is a test double for Clock whose monotonic and wall times only
// advance when Advance is called.
type FakeClock struct {
	mu   sync.Mutex
	mono time.Time
	wall time.Time
}

// NewFakeClock returns a FakeClock seeded at the given wall time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{mono: start, wall: start.UTC()}
}

func (c *FakeClock) MonotonicNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

func (c *FakeClock) WallNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

// Advance moves both clocks forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mono = c.mono.Add(d)
	c.wall = c.wall.Add(d)
}

var _ Clock = (*FakeClock)(nil)
