// Package playback sequences synthesized audio onto a sink so that chunks
// play gaplessly in arrival order, and handles barge-in interruption.
package playback

import (
	"sync"
	"time"
)

// Clock abstracts time so scheduling math is testable.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock is a test clock advanced by hand.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualClock creates a manual clock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
