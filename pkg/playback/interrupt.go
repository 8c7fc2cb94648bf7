package playback

import (
	"sync"
	"time"
)

// DefaultCooldown is how long in-flight audio keeps being dropped after an
// interruption. The backend may still be flushing chunks it synthesized
// before it processed the barge-in; playing those would talk over the user.
const DefaultCooldown = 500 * time.Millisecond

// Interrupter tracks the post-interruption suppression window.
type Interrupter struct {
	clock    Clock
	cooldown time.Duration

	mu    sync.Mutex
	until time.Time
	count int64
}

// NewInterrupter creates an interrupter with the given cooldown.
// A cooldown of 0 uses DefaultCooldown; a nil clock uses the system clock.
func NewInterrupter(cooldown time.Duration, clock Clock) *Interrupter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Interrupter{
		clock:    clock,
		cooldown: cooldown,
	}
}

// Trigger opens the suppression window. Triggering again while suppressed
// extends the window from now.
func (i *Interrupter) Trigger() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.until = i.clock.Now().Add(i.cooldown)
	i.count++
}

// Suppressed reports whether inbound audio should currently be dropped.
func (i *Interrupter) Suppressed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.clock.Now().Before(i.until)
}

// Count returns how many interruptions have been triggered.
func (i *Interrupter) Count() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.count
}
