package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// ErrAuthentication indicates the control channel rejected the caller's
// credentials. Fatal: never retried at any layer.
var ErrAuthentication = errors.New("control: authentication rejected")

// TransportError indicates the control channel was unreachable.
// The issuance layer may retry these a bounded number of times.
type TransportError struct {
	// Op names the failing operation (e.g., "dial", "post").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("control: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a control channel
// transport error.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Ack confirms a command was accepted by the control channel.
type Ack struct {
	// Identity is the device the command targets.
	Identity event.Identity

	// Command is the command name (e.g., "Reboot").
	Command string

	// CommandKey correlates the command with later device events.
	CommandKey string

	// IssuedAt is when the channel accepted the command.
	IssuedAt time.Time

	// Detail carries channel-specific acknowledgement text, if any.
	Detail string
}

// Issuer submits commands to a specific device through the control channel.
//
// Issue returns an Ack on acceptance, ErrAuthentication on credential
// rejection, or a *TransportError when the channel is unreachable. It must
// not retry internally and must not be called more than once per logical
// step unless the caller accepts duplicate device actions.
type Issuer interface {
	Issue(ctx context.Context, identity event.Identity, command, commandKey string) (Ack, error)
}
