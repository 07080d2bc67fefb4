package cpesim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/logsource"
)

// LogChannel is a simulated ACS log: lines are scheduled at absolute
// simulated times and become visible to pollers once the clock passes
// them. Poll returns the full visible tail on every call, like the real
// channel, so repeated and concurrent polls are safe.
type LogChannel struct {
	clock *Clock

	mu    sync.Mutex
	lines []logsource.Line

	// failUntil makes polls fail with a transport error while the clock
	// is before it, for outage scenarios.
	failUntil time.Time
}

// NewLogChannel creates an empty simulated log bound to the clock.
func NewLogChannel(clock *Clock) *LogChannel {
	return &LogChannel{clock: clock}
}

// ScheduleLine makes a raw line visible at the given simulated time.
func (ch *LogChannel) ScheduleLine(at time.Time, text string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.lines = append(ch.lines, logsource.Line{Text: text, Received: at})
	sort.SliceStable(ch.lines, func(i, j int) bool {
		return ch.lines[i].Received.Before(ch.lines[j].Received)
	})
}

// ScheduleEvent schedules a line in the reference grammar for the device.
func (ch *LogChannel) ScheduleEvent(at time.Time, identity event.Identity, verb string, codes ...string) {
	ch.ScheduleLine(at, FormatLine(at, identity, verb, codes...))
}

// FailUntil makes polls return a transport error while the simulated
// clock is before t.
func (ch *LogChannel) FailUntil(t time.Time) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.failUntil = t
}

// Poll returns all lines visible at the current simulated time.
func (ch *LogChannel) Poll(ctx context.Context) ([]logsource.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	now := ch.clock.Now()
	if now.Before(ch.failUntil) {
		return nil, &logsource.TransportError{Op: "read", Err: fmt.Errorf("simulated outage until %s", ch.failUntil.Format(time.RFC3339))}
	}

	var out []logsource.Line
	for _, line := range ch.lines {
		if line.Received.After(now) {
			break
		}
		out = append(out, line)
	}
	return out, nil
}

// FormatLine renders one line in the reference ACS grammar.
func FormatLine(at time.Time, identity event.Identity, verb string, codes ...string) string {
	line := fmt.Sprintf("%s acs cpe=%s verb=%s", at.UTC().Format(time.RFC3339), identity, verb)
	if len(codes) > 0 {
		line += fmt.Sprintf(" codes=%q", strings.Join(codes, ","))
	}
	return line
}

// Compile-time interface satisfaction check.
var _ logsource.Source = (*LogChannel)(nil)
