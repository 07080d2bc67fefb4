package logsource

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Line is one raw line read from the log channel.
type Line struct {
	// Text is the raw line content without the trailing newline.
	Text string

	// Received is when the line was observed by the poller.
	Received time.Time
}

// Source is a pollable, read-only view of an append-only log channel.
//
// Poll returns recent lines in order and must not mutate any remote
// state. Implementations may return the channel's full bounded tail
// (overlapping content across polls, as File and Buffer do) or only
// lines since the previous poll; callers accumulate across cycles and
// tolerate both. A failed poll returns a *TransportError and is retried
// by the caller's wait loop, not internally.
type Source interface {
	Poll(ctx context.Context) ([]Line, error)
}

// TransportError indicates the log channel was unreachable.
type TransportError struct {
	// Op names the failing operation (e.g., "open", "read").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("logsource: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a log channel transport error.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
