package cpesim

import (
	"context"
	"sync"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/control"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// IssuedCommand records one control channel call.
type IssuedCommand struct {
	Identity   event.Identity
	Command    string
	CommandKey string
}

// Issuer is a scripted control channel. Commands succeed by default;
// per-command failure sequences and an issue hook let tests script
// transient transport errors, credential rejection, and device-side
// reactions.
type Issuer struct {
	clock *Clock

	mu      sync.Mutex
	calls   []IssuedCommand
	errs    map[string][]error
	onIssue func(cmd IssuedCommand)
}

// NewIssuer creates a scripted issuer bound to the clock.
func NewIssuer(clock *Clock) *Issuer {
	return &Issuer{
		clock: clock,
		errs:  make(map[string][]error),
	}
}

// FailNext queues errors returned by the next len(errs) calls for the
// given command, in order. Once drained, calls succeed again.
func (i *Issuer) FailNext(command string, errs ...error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.errs[command] = append(i.errs[command], errs...)
}

// OnIssue registers a hook invoked after each successful issuance,
// typically to schedule the device's reaction on the log channel.
func (i *Issuer) OnIssue(fn func(cmd IssuedCommand)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onIssue = fn
}

// Calls returns a copy of all recorded calls, including failed ones.
func (i *Issuer) Calls() []IssuedCommand {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]IssuedCommand, len(i.calls))
	copy(out, i.calls)
	return out
}

// CallCount returns how many times the given command was attempted.
func (i *Issuer) CallCount(command string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, c := range i.calls {
		if c.Command == command {
			n++
		}
	}
	return n
}

// Issue records the call and returns the next scripted outcome.
func (i *Issuer) Issue(ctx context.Context, identity event.Identity, command, commandKey string) (control.Ack, error) {
	if err := ctx.Err(); err != nil {
		return control.Ack{}, err
	}

	i.mu.Lock()
	cmd := IssuedCommand{Identity: identity, Command: command, CommandKey: commandKey}
	i.calls = append(i.calls, cmd)

	if queue := i.errs[command]; len(queue) > 0 {
		err := queue[0]
		i.errs[command] = queue[1:]
		i.mu.Unlock()
		return control.Ack{}, err
	}
	hook := i.onIssue
	i.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}

	return control.Ack{
		Identity:   identity,
		Command:    command,
		CommandKey: commandKey,
		IssuedAt:   i.clock.Now(),
		Detail:     "queued",
	}, nil
}

// Compile-time interface satisfaction check.
var _ control.Issuer = (*Issuer)(nil)
