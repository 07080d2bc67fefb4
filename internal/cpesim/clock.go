package cpesim

import (
	"context"
	"sync"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/correlate"
)

// Clock is a deterministic correlate.Clock. Sleep advances simulated time
// instead of blocking, so waits that span minutes of protocol time run
// instantly in tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock starting at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances simulated time by d, honoring prior cancellation.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// Advance moves simulated time forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Compile-time interface satisfaction check.
var _ correlate.Clock = (*Clock)(nil)
