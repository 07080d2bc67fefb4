package correlate

import (
	"context"
	"time"
)

// Clock abstracts time for the wait loop so tests can run against a
// deterministic injected clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until the context is cancelled, whichever
	// comes first. Returns the context error on cancellation.
	Sleep(ctx context.Context, d time.Duration) error
}

// systemClock is the wall-clock implementation.
type systemClock struct{}

// SystemClock returns the wall-clock Clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
