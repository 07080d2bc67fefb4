package correlate

import (
	"context"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/logsource"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/tracelog"
)

// DefaultPollInterval is the fixed delay between poll cycles.
const DefaultPollInterval = 1 * time.Second

// WaitSpec describes one correlated wait.
type WaitSpec struct {
	// Identity scopes matching to one device. The correlator never
	// discovers or infers identity; the caller must supply it.
	Identity event.Identity

	// Baseline excludes events observed before it. Events at or after
	// the baseline are eligible.
	Baseline time.Time

	// Pattern is the expected set or sequence of codes.
	Pattern Pattern

	// Timeout bounds the wait. The result's Elapsed is at least Timeout
	// and at most Timeout plus one poll interval on a miss.
	Timeout time.Duration

	// RunID and Step annotate trace events, if tracing is enabled.
	RunID string
	Step  string
}

// MatchResult is the outcome of a correlated wait.
type MatchResult struct {
	// Found indicates the pattern was satisfied within the window.
	Found bool

	// MatchedAt is when the match was detected (clock time).
	MatchedAt time.Time

	// Events are the contributing events on success.
	Events []event.Event

	// NearMiss holds events for the same identity that matched some but
	// not all expected codes. Populated on timeout for diagnostics.
	NearMiss []event.Event

	// Elapsed is the total wait duration.
	Elapsed time.Duration

	// Polls counts poll cycles; FailedPolls counts cycles that returned
	// a transport error. FailedPolls == Polls means the channel was
	// never reachable during the window.
	Polls       int
	FailedPolls int

	// LastErr is the most recent poll transport error, if any.
	LastErr error
}

// ChannelDown reports whether every poll in the window failed, i.e. the
// miss is a channel outage rather than a genuine pattern timeout.
func (r MatchResult) ChannelDown() bool {
	return r.Polls > 0 && r.FailedPolls == r.Polls
}

// Correlator repeatedly polls a log source, filters lines into typed
// events, and tests them against an expected pattern until match or
// deadline. It holds no per-wait state; one Correlator may serve many
// concurrent waits.
type Correlator struct {
	source   logsource.Source
	filter   *event.Filter
	clock    Clock
	interval time.Duration
	trace    tracelog.Logger
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock injects a clock. Defaults to the system clock.
func WithClock(c Clock) Option {
	return func(co *Correlator) { co.clock = c }
}

// WithInterval sets the poll interval. Defaults to DefaultPollInterval.
func WithInterval(d time.Duration) Option {
	return func(co *Correlator) {
		if d > 0 {
			co.interval = d
		}
	}
}

// WithTrace enables trace event emission.
func WithTrace(l tracelog.Logger) Option {
	return func(co *Correlator) {
		if l != nil {
			co.trace = l
		}
	}
}

// New creates a Correlator over the given source and filter.
// A nil filter selects the default grammar.
func New(source logsource.Source, filter *event.Filter, opts ...Option) *Correlator {
	if filter == nil {
		filter = event.NewFilter(nil)
	}
	c := &Correlator{
		source:   source,
		filter:   filter,
		clock:    SystemClock(),
		interval: DefaultPollInterval,
		trace:    tracelog.NoopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval returns the configured poll interval.
func (c *Correlator) Interval() time.Duration { return c.interval }

// Wait polls until the expected pattern is satisfied or the timeout
// expires. Eligible events accumulate across poll cycles, so a pattern
// whose codes arrive in different cycles still matches even when the
// channel's tail window has scrolled past the earlier ones. The
// poll-sleep cycle is the only suspension point: the sleep is bounded by
// the poll interval and cancellation is checked before and after each
// sleep. A timeout yields Found=false with near-miss diagnostics and a
// nil error; the returned error is non-nil only for cancellation.
func (c *Correlator) Wait(ctx context.Context, spec WaitSpec) (MatchResult, error) {
	start := c.clock.Now()
	deadline := start.Add(spec.Timeout)
	result := MatchResult{}

	identity := spec.Identity
	if spec.Pattern.Identity != "" {
		identity = spec.Pattern.Identity
	}

	// Accumulated eligible events, deduplicated by raw line so sources
	// returning overlapping tails do not inflate the set.
	var observed []event.Event
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			result.Elapsed = c.clock.Now().Sub(start)
			return result, err
		}

		fresh, lines, pollErr := c.pollEvents(ctx, identity, spec.Baseline)
		result.Polls++
		if pollErr != nil {
			// Transient transport failures count as "no new events this
			// cycle"; persistent ones surface via ChannelDown.
			result.FailedPolls++
			result.LastErr = pollErr
			c.traceError(spec, pollErr)
		}
		for _, ev := range fresh {
			if _, dup := seen[ev.Raw]; dup {
				continue
			}
			seen[ev.Raw] = struct{}{}
			observed = append(observed, ev)
		}
		c.tracePoll(spec, lines, len(fresh), pollErr != nil)

		if found, matched := spec.Pattern.Match(observed); found {
			result.Found = true
			result.MatchedAt = c.clock.Now()
			result.Events = matched
			result.Elapsed = result.MatchedAt.Sub(start)
			c.traceMatch(spec, len(matched))
			return result, nil
		} else if now := c.clock.Now(); !now.Before(deadline) {
			result.NearMiss = spec.Pattern.NearMiss(observed)
			result.Elapsed = now.Sub(start)
			return result, nil
		}

		if err := c.clock.Sleep(ctx, c.interval); err != nil {
			result.Elapsed = c.clock.Now().Sub(start)
			return result, err
		}
	}
}

// pollEvents performs one poll cycle and returns the identity-scoped,
// baseline-filtered events plus the raw line count of the cycle.
func (c *Correlator) pollEvents(ctx context.Context, identity event.Identity, baseline time.Time) ([]event.Event, int, error) {
	lines, err := c.source.Poll(ctx)
	if err != nil {
		return nil, 0, err
	}

	var events []event.Event
	for _, line := range lines {
		ev, ok := c.filter.Parse(line.Text, line.Received)
		if !ok {
			continue
		}
		if ev.Identity != identity {
			continue
		}
		if ev.Timestamp.Before(baseline) {
			continue
		}
		events = append(events, ev)
	}
	return events, len(lines), nil
}

func (c *Correlator) tracePoll(spec WaitSpec, lines, events int, failed bool) {
	c.trace.Log(tracelog.Event{
		Timestamp: c.clock.Now(),
		RunID:     spec.RunID,
		Identity:  string(spec.Identity),
		Category:  tracelog.CategoryPoll,
		Step:      spec.Step,
		Poll:      &tracelog.PollData{Lines: lines, Events: events, Failed: failed},
	})
}

func (c *Correlator) traceMatch(spec WaitSpec, matched int) {
	c.trace.Log(tracelog.Event{
		Timestamp: c.clock.Now(),
		RunID:     spec.RunID,
		Identity:  string(spec.Identity),
		Category:  tracelog.CategoryMatch,
		Step:      spec.Step,
		Message:   spec.Pattern.String(),
		Poll:      &tracelog.PollData{Events: matched},
	})
}

func (c *Correlator) traceError(spec WaitSpec, err error) {
	c.trace.Log(tracelog.Event{
		Timestamp: c.clock.Now(),
		RunID:     spec.RunID,
		Identity:  string(spec.Identity),
		Category:  tracelog.CategoryError,
		Step:      spec.Step,
		Error:     &tracelog.ErrorData{Message: err.Error(), Context: "poll"},
	})
}
