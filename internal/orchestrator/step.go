package orchestrator

import (
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/control"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/correlate"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/snapshot"
)

// StepKind selects the single operation a step performs.
type StepKind uint8

const (
	// KindIssue submits a command on the control channel.
	KindIssue StepKind = 0

	// KindWait runs a correlated wait for an expected pattern.
	KindWait StepKind = 1

	// KindVerify compares post-command configuration against the
	// pre-command snapshot.
	KindVerify StepKind = 2
)

// String returns the kind name.
func (k StepKind) String() string {
	switch k {
	case KindIssue:
		return "ISSUE"
	case KindWait:
		return "WAIT"
	case KindVerify:
		return "VERIFY"
	default:
		return "UNKNOWN"
	}
}

// Status is the lifecycle state of a step or run.
type Status uint8

const (
	// StatusPending means the step has not reached a terminal state.
	StatusPending Status = 0

	// StatusSuccess means the step's operation completed.
	StatusSuccess Status = 1

	// StatusTimeout means an expected pattern was not observed within
	// the step window. Terminal; waits are never retried.
	StatusTimeout Status = 2

	// StatusFailed means the operation failed (transport, auth,
	// verification, cancellation).
	StatusFailed Status = 3
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool { return s != StatusPending }

// Step is one state of a workflow: a named operation with its success
// condition and timeout.
type Step struct {
	// Name is the state name (e.g., "AwaitingPostRebootInform").
	Name string

	// Kind selects the operation.
	Kind StepKind

	// Command and CommandKey configure issue steps.
	Command    string
	CommandKey string

	// Retries bounds re-issuance after transient transport failures.
	// Applies to issue steps only; waits are never retried.
	Retries int

	// Pattern and Timeout configure wait steps.
	Pattern correlate.Pattern
	Timeout time.Duration

	// HardCheck makes configuration divergence fail the run on verify
	// steps; when false divergence is recorded as a warning only.
	HardCheck bool
}

// StepResult records the outcome of one executed step.
// A result transitions from pending to exactly one terminal status and
// never reverts.
type StepResult struct {
	// Name and Kind echo the step definition.
	Name string
	Kind StepKind

	// Status is the lifecycle state.
	Status Status

	// StartedAt and CompletedAt bound the step's execution.
	StartedAt   time.Time
	CompletedAt time.Time

	// Attempts counts issuance attempts (issue steps).
	Attempts int

	// Ack is the control channel acknowledgement (issue steps).
	Ack *control.Ack

	// Match carries the wait outcome, including matched events and
	// near-miss diagnostics (wait steps).
	Match *correlate.MatchResult

	// Pattern echoes the expected pattern (wait steps), for reporting.
	Pattern correlate.Pattern

	// Divergences are configuration differences found by verify steps.
	Divergences []snapshot.Divergence

	// Err is the terminal error, if any.
	Err error
}

// Duration returns how long the step ran.
func (r *StepResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// finish moves the result to a terminal status exactly once.
// Later calls are ignored, preserving step-result terminality.
func (r *StepResult) finish(at time.Time, status Status, err error) {
	if r.Status.Terminal() {
		return
	}
	r.Status = status
	r.Err = err
	r.CompletedAt = at
}
