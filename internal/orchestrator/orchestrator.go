package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/control"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/correlate"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/snapshot"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/tracelog"
)

// ErrChannelDown reports that every poll of a wait window failed, so the
// step outcome is a log channel outage rather than a pattern timeout.
var ErrChannelDown = errors.New("orchestrator: log channel unreachable for entire wait window")

// ErrDivergence reports configuration divergence on a hard verify step.
var ErrDivergence = errors.New("orchestrator: configuration diverged from pre-command snapshot")

// Workflow is a named, ordered list of steps executed against one device.
type Workflow struct {
	// Name identifies the workflow (e.g., "reboot").
	Name string

	// Steps execute strictly in order. The first terminal non-success
	// ends the run.
	Steps []Step
}

// needsSnapshot reports whether any step verifies configuration.
func (w Workflow) needsSnapshot() bool {
	for _, s := range w.Steps {
		if s.Kind == KindVerify {
			return true
		}
	}
	return false
}

// Orchestrator executes workflows: it issues commands, runs correlated
// waits, and verifies configuration, recording every outcome on the Run.
// It never rolls back device-side actions.
type Orchestrator struct {
	correlator *correlate.Correlator
	issuer     control.Issuer
	capturer   snapshot.Capturer
	clock      correlate.Clock
	trace      tracelog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCapturer wires the snapshot collaborator used by verify steps.
func WithCapturer(c snapshot.Capturer) Option {
	return func(o *Orchestrator) { o.capturer = c }
}

// WithClock injects a clock. Defaults to the system clock.
func WithClock(c correlate.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithTrace enables trace event emission.
func WithTrace(l tracelog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.trace = l
		}
	}
}

// New creates an Orchestrator over a correlator and a control channel.
func New(correlator *correlate.Correlator, issuer control.Issuer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		correlator: correlator,
		issuer:     issuer,
		clock:      correlate.SystemClock(),
		trace:      tracelog.NoopLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs the workflow against one device and returns the complete
// Run record. The returned error is non-nil only for cancellation; every
// domain failure (transport, auth, timeout, divergence) is expressed
// through the Run's status and the failing step's result.
func (o *Orchestrator) Execute(ctx context.Context, identity event.Identity, wf Workflow) (*Run, error) {
	run := newRun(wf.Name, identity, o.clock.Now())
	o.transition(run, "", StateIdle, "run started")

	if wf.needsSnapshot() && o.capturer != nil {
		if snap, err := o.capturer.Capture(ctx, identity); err == nil {
			run.PreSnapshot = &snap
		} else {
			// Verify steps degrade per their hard/soft policy; the run
			// continues so the command itself still executes.
			o.traceError(run, "", err, "pre-command snapshot")
		}
	}

	prev := StateIdle
	for _, step := range wf.Steps {
		res := &StepResult{Name: step.Name, Kind: step.Kind, StartedAt: o.clock.Now()}
		run.Steps = append(run.Steps, res)
		o.transition(run, prev, step.Name, "")
		prev = step.Name

		if err := ctx.Err(); err != nil {
			res.finish(o.clock.Now(), StatusFailed, err)
			return o.conclude(run, res), err
		}

		switch step.Kind {
		case KindIssue:
			o.executeIssue(ctx, run, step, res)
		case KindWait:
			o.executeWait(ctx, run, step, res)
		case KindVerify:
			o.executeVerify(ctx, run, step, res)
		default:
			res.finish(o.clock.Now(), StatusFailed, fmt.Errorf("orchestrator: unknown step kind %d", step.Kind))
		}

		if res.Status != StatusSuccess {
			concluded := o.conclude(run, res)
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				return concluded, res.Err
			}
			return concluded, nil
		}
	}

	run.Status = StatusSuccess
	run.CompletedAt = o.clock.Now()
	o.transition(run, prev, StateSucceeded, "")
	return run, nil
}

// executeIssue submits the step's command, retrying transient transport
// failures up to the step's retry limit. Authentication rejection is
// fatal on the first occurrence.
func (o *Orchestrator) executeIssue(ctx context.Context, run *Run, step Step, res *StepResult) {
	// Events predating the command must never satisfy later waits.
	run.Baseline = maxTime(run.Baseline, o.clock.Now())

	var lastErr error
	for attempt := 1; attempt <= step.Retries+1; attempt++ {
		res.Attempts = attempt
		o.traceIssue(run, step, attempt)

		ack, err := o.issuer.Issue(ctx, run.Identity, step.Command, step.CommandKey)
		if err == nil {
			res.Ack = &ack
			res.finish(o.clock.Now(), StatusSuccess, nil)
			return
		}
		lastErr = err
		o.traceError(run, step.Name, err, "issue "+step.Command)

		if errors.Is(err, control.ErrAuthentication) || !control.IsTransport(err) {
			break
		}
	}
	res.finish(o.clock.Now(), StatusFailed, fmt.Errorf("issue %s: %w", step.Command, lastErr))
}

// executeWait runs one correlated wait against the run's current baseline.
// Success advances the baseline to the latest matched event timestamp.
func (o *Orchestrator) executeWait(ctx context.Context, run *Run, step Step, res *StepResult) {
	res.Pattern = step.Pattern

	match, err := o.correlator.Wait(ctx, correlate.WaitSpec{
		Identity: run.Identity,
		Baseline: run.Baseline,
		Pattern:  step.Pattern,
		Timeout:  step.Timeout,
		RunID:    run.ID,
		Step:     step.Name,
	})
	res.Match = &match

	switch {
	case err != nil:
		res.finish(o.clock.Now(), StatusFailed, err)
	case match.Found:
		for _, ev := range match.Events {
			run.Baseline = maxTime(run.Baseline, ev.Timestamp)
		}
		res.finish(o.clock.Now(), StatusSuccess, nil)
	case match.ChannelDown():
		res.finish(o.clock.Now(), StatusFailed, fmt.Errorf("%w: %v", ErrChannelDown, match.LastErr))
	default:
		res.finish(o.clock.Now(), StatusTimeout,
			fmt.Errorf("pattern %s not observed within %s", step.Pattern, step.Timeout))
	}
}

// executeVerify captures the device's configuration and compares it to
// the pre-command snapshot. Divergence fails the run only on hard steps;
// soft steps record it on the result and succeed.
func (o *Orchestrator) executeVerify(ctx context.Context, run *Run, step Step, res *StepResult) {
	if o.capturer == nil || run.PreSnapshot == nil {
		err := errors.New("orchestrator: no pre-command snapshot available")
		if step.HardCheck {
			res.finish(o.clock.Now(), StatusFailed, err)
			return
		}
		o.traceError(run, step.Name, err, "verify skipped")
		res.finish(o.clock.Now(), StatusSuccess, nil)
		return
	}

	post, err := o.capturer.Capture(ctx, run.Identity)
	if err != nil {
		if step.HardCheck {
			res.finish(o.clock.Now(), StatusFailed, fmt.Errorf("post-command capture: %w", err))
			return
		}
		o.traceError(run, step.Name, err, "post-command capture")
		res.finish(o.clock.Now(), StatusSuccess, nil)
		return
	}
	run.PostSnapshot = &post

	res.Divergences = snapshot.Compare(*run.PreSnapshot, post)
	if len(res.Divergences) > 0 && step.HardCheck {
		res.finish(o.clock.Now(), StatusFailed,
			fmt.Errorf("%w: %d item(s)", ErrDivergence, len(res.Divergences)))
		return
	}
	res.finish(o.clock.Now(), StatusSuccess, nil)
}

// conclude stamps the run's terminal state from the failing step.
func (o *Orchestrator) conclude(run *Run, failed *StepResult) *Run {
	run.Status = StatusFailed
	if failed.Status == StatusTimeout {
		run.Status = StatusTimeout
	}
	run.FailedStep = failed.Name
	run.Err = failed.Err
	run.CompletedAt = o.clock.Now()
	reason := ""
	if failed.Err != nil {
		reason = failed.Err.Error()
	}
	o.transition(run, failed.Name, StateFailed, reason)
	return run
}

func (o *Orchestrator) transition(run *Run, from, to, reason string) {
	o.trace.Log(tracelog.Event{
		Timestamp:  o.clock.Now(),
		RunID:      run.ID,
		Identity:   string(run.Identity),
		Category:   tracelog.CategoryState,
		Step:       to,
		Transition: &tracelog.TransitionData{From: from, To: to, Reason: reason},
	})
}

func (o *Orchestrator) traceIssue(run *Run, step Step, attempt int) {
	o.trace.Log(tracelog.Event{
		Timestamp: o.clock.Now(),
		RunID:     run.ID,
		Identity:  string(run.Identity),
		Category:  tracelog.CategoryIssue,
		Step:      step.Name,
		Issue:     &tracelog.IssueData{Command: step.Command, CommandKey: step.CommandKey, Attempt: attempt},
	})
}

func (o *Orchestrator) traceError(run *Run, step string, err error, during string) {
	o.trace.Log(tracelog.Event{
		Timestamp: o.clock.Now(),
		RunID:     run.ID,
		Identity:  string(run.Identity),
		Category:  tracelog.CategoryError,
		Step:      step,
		Error:     &tracelog.ErrorData{Message: err.Error(), Context: during},
	})
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
