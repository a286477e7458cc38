// Package testutil holds shared helpers for the notification service's
// tests: a deterministic clock for grace-window math, a polling wait for
// goroutine-backed components, and course/recipient fixtures.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
)

// FakeClock is a manually advanced time source. Inject its Now method
// wherever a component takes a clock func.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t, forward or backward.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// WaitFor polls cond until it holds or two seconds pass. Used for
// components that do their work on their own goroutine.
func WaitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// Course returns a minimal course fixture in the given status.
func Course(id string, status domain.CourseStatus) domain.Course {
	return domain.Course{
		ID:     id,
		Title:  "Course " + id,
		Code:   "CRS-" + id,
		Status: status,
	}
}

// Recipients builds a recipient list from bare addresses.
func Recipients(emails ...string) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(emails))
	for _, email := range emails {
		out = append(out, domain.Recipient{Email: email})
	}
	return out
}
