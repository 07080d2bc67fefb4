package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/snapshot"
)

// Run is the complete record of one workflow execution against one device.
type Run struct {
	// ID uniquely identifies the run.
	ID string

	// Workflow is the workflow name.
	Workflow string

	// Identity is the target device.
	Identity event.Identity

	// Baseline is the event eligibility cutoff at run end. It starts at
	// run start, moves to "now" before every issuance, and moves to the
	// latest matched event timestamp after every successful wait. It
	// never moves backwards.
	Baseline time.Time

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time
	CompletedAt time.Time

	// Status is the run outcome. Timeout means the failing step timed
	// out; Failed covers every other failure mode.
	Status Status

	// FailedStep names the step that ended the run, if any.
	FailedStep string

	// Steps holds one result per executed step, in order. Steps after
	// the failing one are absent, not marked skipped.
	Steps []*StepResult

	// PreSnapshot is the configuration captured before the first step,
	// when a verify step is present and a capturer is configured.
	PreSnapshot *snapshot.Snapshot

	// PostSnapshot is the configuration captured by the verify step.
	PostSnapshot *snapshot.Snapshot

	// Err is the run-terminating error, if any.
	Err error
}

func newRun(workflow string, identity event.Identity, start time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		Identity:  identity,
		Baseline:  start,
		StartedAt: start,
	}
}

// Succeeded reports whether every step completed.
func (r *Run) Succeeded() bool { return r.Status == StatusSuccess }

// Duration returns the total run time.
func (r *Run) Duration() time.Duration { return r.CompletedAt.Sub(r.StartedAt) }

// Step returns the result for the named step, or nil if it never ran.
func (r *Run) Step(name string) *StepResult {
	for _, s := range r.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}
