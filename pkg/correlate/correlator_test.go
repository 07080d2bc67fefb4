package correlate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alottabits/boardfarm-bdd-sub001/internal/cpesim"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/correlate"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/logsource"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/tracelog"
)

// windowSource simulates a channel whose bounded tail holds one line:
// when the second line appears, the first has already scrolled out of
// the window, so no single poll ever returns both.
type windowSource struct {
	clock *cpesim.Clock
	start time.Time
}

func (s *windowSource) Poll(ctx context.Context) ([]logsource.Line, error) {
	now := s.clock.Now()
	switch {
	case now.Before(s.start.Add(2 * time.Second)):
		return nil, nil
	case now.Before(s.start.Add(5 * time.Second)):
		at := s.start.Add(2 * time.Second)
		return []logsource.Line{{Text: cpesim.FormatLine(at, "CPE-1", "SESSION", "SHUTDOWN"), Received: at}}, nil
	default:
		at := s.start.Add(5 * time.Second)
		return []logsource.Line{{Text: cpesim.FormatLine(at, "CPE-1", "INFORM", "1 BOOT"), Received: at}}, nil
	}
}

// captureLogger records trace events for assertions.
type captureLogger struct {
	events []tracelog.Event
}

func (l *captureLogger) Log(ev tracelog.Event) { l.events = append(l.events, ev) }

var simStart = time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

func newSim(t *testing.T) (*cpesim.Clock, *cpesim.LogChannel, *correlate.Correlator) {
	t.Helper()
	clock := cpesim.NewClock(simStart)
	channel := cpesim.NewLogChannel(clock)
	c := correlate.New(channel, nil, correlate.WithClock(clock))
	return clock, channel, c
}

// Codes emitted 5s after baseline with a 30s window must match by
// baseline+6s given 1s poll granularity.
func TestWaitMatchesScheduledPattern(t *testing.T) {
	_, channel, c := newSim(t)

	channel.ScheduleEvent(simStart.Add(5*time.Second), "CPE-1", "INFORM", "BOOT", "REBOOT")

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"BOOT", "REBOOT"}},
		Timeout:  30 * time.Second,
	})
	require.NoError(t, err)

	require.True(t, res.Found)
	assert.Len(t, res.Events, 1)
	assert.False(t, res.MatchedAt.After(simStart.Add(6*time.Second)), "match should land within poll granularity")
	assert.LessOrEqual(t, res.Elapsed, 6*time.Second)
}

func TestWaitBaselineExclusivity(t *testing.T) {
	_, channel, c := newSim(t)

	// The pattern appears only before the baseline.
	channel.ScheduleEvent(simStart.Add(-10*time.Second), "CPE-1", "INFORM", "1 BOOT", "M Reboot")

	baseline := simStart
	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: baseline,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT", "M Reboot"}},
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	assert.False(t, res.Found, "pre-baseline events must never satisfy a match")
	assert.Empty(t, res.NearMiss, "pre-baseline events must not even appear as near misses")
}

func TestWaitIdentityIsolation(t *testing.T) {
	_, channel, c := newSim(t)

	// Interleave both identities on the shared channel; only CPE-2
	// carries the full pattern.
	channel.ScheduleEvent(simStart.Add(1*time.Second), "CPE-2", "INFORM", "1 BOOT")
	channel.ScheduleEvent(simStart.Add(2*time.Second), "CPE-1", "INFORM", "1 BOOT")
	channel.ScheduleEvent(simStart.Add(3*time.Second), "CPE-2", "INFORM", "M Reboot")

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT", "M Reboot"}},
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)

	assert.False(t, res.Found, "CPE-2 events must not satisfy a CPE-1 wait")
	require.Len(t, res.NearMiss, 1)
	assert.Equal(t, event.Identity("CPE-1"), res.NearMiss[0].Identity)
}

// A second wait against an already-satisfied condition and identical
// baseline matches again: the source keeps no read position.
func TestWaitIdempotentRematch(t *testing.T) {
	_, channel, c := newSim(t)

	channel.ScheduleEvent(simStart.Add(2*time.Second), "CPE-1", "INFORM", "1 BOOT")

	spec := correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT"}},
		Timeout:  10 * time.Second,
	}

	first, err := c.Wait(context.Background(), spec)
	require.NoError(t, err)
	require.True(t, first.Found)

	second, err := c.Wait(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, second.Found, "re-waiting on a satisfied condition must match again")
}

// Codes observed in different poll cycles accumulate: a pattern still
// matches when the channel's tail window scrolls past the earlier code
// before the later one appears.
func TestWaitAccumulatesAcrossPollCycles(t *testing.T) {
	clock := cpesim.NewClock(simStart)
	src := &windowSource{clock: clock, start: simStart}
	c := correlate.New(src, nil, correlate.WithClock(clock))

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"SHUTDOWN", "1 BOOT"}},
		Timeout:  20 * time.Second,
	})
	require.NoError(t, err)

	require.True(t, res.Found, "codes from separate poll cycles must match together")
	require.Len(t, res.Events, 2)
	assert.True(t, res.Events[0].HasCode("SHUTDOWN"))
	assert.True(t, res.Events[1].HasCode("1 BOOT"))
}

// Near-miss diagnostics draw on the accumulated set too: an event that
// scrolled out of the window before the timeout still appears.
func TestWaitNearMissFromAccumulatedEvents(t *testing.T) {
	clock := cpesim.NewClock(simStart)
	src := &windowSource{clock: clock, start: simStart}
	c := correlate.New(src, nil, correlate.WithClock(clock))

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"SHUTDOWN", "1 BOOT", "M Reboot"}},
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)

	assert.False(t, res.Found)
	require.Len(t, res.NearMiss, 2, "both partially matching events belong in the diagnostic")
	assert.True(t, res.NearMiss[0].HasCode("SHUTDOWN"))
	assert.True(t, res.NearMiss[1].HasCode("1 BOOT"))
}

// Overlapping tails do not inflate the accumulated set: re-polled lines
// are counted once.
func TestWaitDeduplicatesOverlappingTails(t *testing.T) {
	_, channel, c := newSim(t)

	channel.ScheduleEvent(simStart.Add(1*time.Second), "CPE-1", "INFORM", "1 BOOT")

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT", "M Reboot"}},
		Timeout:  6 * time.Second,
	})
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.Len(t, res.NearMiss, 1, "a line re-polled every cycle accumulates once")
}

func TestWaitTracePollCarriesLineCounts(t *testing.T) {
	clock := cpesim.NewClock(simStart)
	channel := cpesim.NewLogChannel(clock)
	channel.ScheduleEvent(simStart.Add(1*time.Second), "CPE-1", "INFORM", "1 BOOT")
	channel.ScheduleEvent(simStart.Add(1*time.Second), "CPE-2", "INFORM", "4 VALUE CHANGE")

	capture := &captureLogger{}
	c := correlate.New(channel, nil, correlate.WithClock(clock), correlate.WithTrace(capture))

	_, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT"}},
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)

	var polls []*tracelog.PollData
	for _, ev := range capture.events {
		if ev.Category == tracelog.CategoryPoll && ev.Poll != nil {
			polls = append(polls, ev.Poll)
		}
	}
	require.NotEmpty(t, polls)

	last := polls[len(polls)-1]
	assert.Equal(t, 2, last.Lines, "raw line count covers both identities")
	assert.Equal(t, 1, last.Events, "event count is identity-scoped")
}

func TestWaitTimeoutBoundary(t *testing.T) {
	clock, _, c := newSim(t)

	start := clock.Now()
	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: start,
		Pattern:  correlate.Pattern{Codes: []string{"NEVER"}},
		Timeout:  7 * time.Second,
	})
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.GreaterOrEqual(t, res.Elapsed, 7*time.Second)
	assert.LessOrEqual(t, res.Elapsed, 7*time.Second+c.Interval(), "no significant overshoot")
	assert.Empty(t, res.Events)
}

func TestWaitTimeoutCarriesNearMissDiagnostic(t *testing.T) {
	_, channel, c := newSim(t)

	channel.ScheduleEvent(simStart.Add(1*time.Second), "CPE-1", "INFORM", "1 BOOT")

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT", "M Reboot"}},
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	assert.False(t, res.Found)
	require.Len(t, res.NearMiss, 1)
	assert.True(t, res.NearMiss[0].HasCode("1 BOOT"))
}

func TestWaitTransientPollFailures(t *testing.T) {
	clock, channel, c := newSim(t)

	// Channel down for the first 3s, then the pattern appears.
	channel.FailUntil(simStart.Add(3 * time.Second))
	channel.ScheduleEvent(simStart.Add(4*time.Second), "CPE-1", "INFORM", "1 BOOT")

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: clock.Now(),
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT"}},
		Timeout:  15 * time.Second,
	})
	require.NoError(t, err)

	assert.True(t, res.Found, "transient poll failures count as no-new-events, not step failure")
	assert.Greater(t, res.FailedPolls, 0)
	assert.False(t, res.ChannelDown())
}

func TestWaitPersistentPollFailures(t *testing.T) {
	_, channel, c := newSim(t)

	channel.FailUntil(simStart.Add(time.Hour))

	res, err := c.Wait(context.Background(), correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT"}},
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.True(t, res.ChannelDown())
	assert.Error(t, res.LastErr)
}

func TestWaitCancellation(t *testing.T) {
	_, _, c := newSim(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx, correlate.WaitSpec{
		Identity: "CPE-1",
		Baseline: simStart,
		Pattern:  correlate.Pattern{Codes: []string{"1 BOOT"}},
		Timeout:  time.Hour,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

// Two concurrent waits for different identities sharing one source each
// succeed independently, regardless of interleaving in the shared log.
func TestWaitConcurrentIdentitiesSharedSource(t *testing.T) {
	channel := cpesim.NewLogChannel(cpesim.NewClock(simStart))

	// Both identities' patterns already visible, interleaved.
	channel.ScheduleEvent(simStart.Add(-3*time.Second), "A", "INFORM", "1 BOOT")
	channel.ScheduleEvent(simStart.Add(-2*time.Second), "B", "INFORM", "1 BOOT")
	channel.ScheduleEvent(simStart.Add(-1*time.Second), "A", "INFORM", "M Reboot")
	channel.ScheduleEvent(simStart.Add(-1*time.Second), "B", "INFORM", "M Reboot")

	var wg sync.WaitGroup
	results := make([]correlate.MatchResult, 2)
	errs := make([]error, 2)
	for idx, id := range []event.Identity{"A", "B"} {
		wg.Add(1)
		go func(idx int, id event.Identity) {
			defer wg.Done()
			clock := cpesim.NewClock(simStart)
			c := correlate.New(channel, nil, correlate.WithClock(clock))
			results[idx], errs[idx] = c.Wait(context.Background(), correlate.WaitSpec{
				Identity: id,
				Baseline: simStart.Add(-10 * time.Second),
				Pattern:  correlate.Pattern{Codes: []string{"1 BOOT", "M Reboot"}},
				Timeout:  10 * time.Second,
			})
		}(idx, id)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	for idx, res := range results {
		assert.True(t, res.Found, "wait %d should succeed independently", idx)
		for _, ev := range res.Events {
			assert.Equal(t, []event.Identity{"A", "B"}[idx], ev.Identity)
		}
	}
}
