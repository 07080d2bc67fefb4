package logsource

import (
	"context"
	"sync"
	"time"
)

// Buffer is an in-memory Source. Producers append lines; consumers poll
// the full tail. Safe for concurrent use by any number of producers and
// consumers.
type Buffer struct {
	mu    sync.RWMutex
	lines []Line

	// max bounds the retained tail; 0 means unbounded.
	max int
}

// NewBuffer creates an empty in-memory source.
// If max > 0, only the most recent max lines are retained.
func NewBuffer(max int) *Buffer {
	return &Buffer{max: max}
}

// Append adds a line observed at the given time.
func (b *Buffer) Append(text string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, Line{Text: text, Received: at})
	if b.max > 0 && len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

// Poll returns a copy of the retained tail.
func (b *Buffer) Poll(ctx context.Context) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out, nil
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Compile-time interface satisfaction check.
var _ Source = (*Buffer)(nil)
