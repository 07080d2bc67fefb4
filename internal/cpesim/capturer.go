package cpesim

import (
	"context"
	"sync"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/snapshot"
)

// Capturer is a scripted snapshot capturer. Tests set the configuration a
// device reports; Capture returns a copy stamped with the simulated time.
type Capturer struct {
	clock *Clock

	mu    sync.Mutex
	items map[event.Identity]map[string]snapshot.Item
	err   error
}

// NewCapturer creates an empty scripted capturer bound to the clock.
func NewCapturer(clock *Clock) *Capturer {
	return &Capturer{
		clock: clock,
		items: make(map[event.Identity]map[string]snapshot.Item),
	}
}

// SetItem sets one configuration value for a device.
func (c *Capturer) SetItem(identity event.Identity, path string, item snapshot.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items[identity] == nil {
		c.items[identity] = make(map[string]snapshot.Item)
	}
	c.items[identity][path] = item
}

// FailWith makes subsequent captures fail with err (nil restores success).
func (c *Capturer) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Capture returns the device's scripted configuration.
func (c *Capturer) Capture(ctx context.Context, identity event.Identity) (snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return snapshot.Snapshot{}, c.err
	}

	snap := snapshot.Snapshot{
		Identity: identity,
		TakenAt:  c.clock.Now(),
		Items:    make(map[string]snapshot.Item, len(c.items[identity])),
	}
	for path, item := range c.items[identity] {
		snap.Items[path] = item
	}
	return snap, nil
}

// Compile-time interface satisfaction check.
var _ snapshot.Capturer = (*Capturer)(nil)
