package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant returned by a new StepClock.
var DefaultEpoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// StepClock is a deterministic clock for tests.
//
// Each call to Now returns the current instant and then advances it by the
// configured step, so recorded timestamps and durations are reproducible.
// Safe for concurrent use.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewStepClock creates a clock starting at DefaultEpoch.
//
// A zero step yields a frozen clock.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{start: DefaultEpoch, now: DefaultEpoch, step: step}
}

// Now returns the current instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the next instant without advancing.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
