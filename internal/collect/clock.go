package collect

import (
	"sync"
	"time"
)

// MonotonicClock yields UTC timestamps that never decrease within the
// process, even when the underlying time source steps backwards.
type MonotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewMonotonicClock wraps a time source; a nil source defaults to time.Now.
func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	if now == nil {
		now = time.Now
	}
	return &MonotonicClock{now: now}
}

// Now returns the current UTC time, clamped to the last value handed out.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now().UTC()
	if current.Before(c.last) {
		current = c.last
	}
	c.last = current
	return current
}
