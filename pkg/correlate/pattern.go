package correlate

import (
	"fmt"
	"strings"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// Mode selects the matching policy for a pattern.
type Mode uint8

const (
	// ModeContains matches when every expected code is observed, in any
	// order. This is the default: the log channel may interleave or
	// reorder messages.
	ModeContains Mode = 0

	// ModeOrdered matches only when the expected codes appear as an
	// ordered subsequence of the observed events. Use when the
	// before/after relation between codes is itself under test.
	ModeOrdered Mode = 1
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeContains:
		return "CONTAINS"
	case ModeOrdered:
		return "ORDERED"
	default:
		return "UNKNOWN"
	}
}

// Pattern is the set or sequence of event codes a wait must observe.
type Pattern struct {
	// Codes are the expected event codes. All must be observed.
	Codes []string

	// Mode selects containment vs strict ordering. Zero value is
	// ModeContains.
	Mode Mode

	// Kind restricts matching to events of one kind.
	// KindUnknown (zero) matches any kind.
	Kind event.Kind

	// Identity optionally narrows matching to one device, overriding the
	// wait's identity. Leave empty to use the wait scope.
	Identity event.Identity
}

// String renders the pattern for diagnostics, e.g. `contains{"1 BOOT","M Reboot"}`.
func (p Pattern) String() string {
	quoted := make([]string, len(p.Codes))
	for i, c := range p.Codes {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf("%s{%s}", strings.ToLower(p.Mode.String()), strings.Join(quoted, ","))
}

// accepts reports whether an event is eligible for this pattern at all
// (kind restriction only; identity and baseline are the caller's filter).
func (p Pattern) accepts(ev event.Event) bool {
	return p.Kind == event.KindUnknown || ev.Kind == p.Kind
}

// Match tests the pattern against events in observation order.
// On success it returns the contributing events. Duplicate or
// retransmitted events cannot un-match a pattern: matching is monotone in
// the observed set.
func (p Pattern) Match(events []event.Event) (bool, []event.Event) {
	if len(p.Codes) == 0 {
		return false, nil
	}

	switch p.Mode {
	case ModeOrdered:
		return p.matchOrdered(events)
	default:
		return p.matchContains(events)
	}
}

// matchContains requires every code to be present on some event.
func (p Pattern) matchContains(events []event.Event) (bool, []event.Event) {
	var matched []event.Event
	seen := make(map[int]bool)

	for _, code := range p.Codes {
		found := false
		for i, ev := range events {
			if !p.accepts(ev) {
				continue
			}
			if ev.HasCode(code) {
				if !seen[i] {
					seen[i] = true
					matched = append(matched, ev)
				}
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, matched
}

// matchOrdered requires the codes to appear as a subsequence of the events.
func (p Pattern) matchOrdered(events []event.Event) (bool, []event.Event) {
	var matched []event.Event
	next := 0

	for _, ev := range events {
		if next >= len(p.Codes) {
			break
		}
		if !p.accepts(ev) {
			continue
		}
		if ev.HasCode(p.Codes[next]) {
			matched = append(matched, ev)
			next++
		}
	}
	if next < len(p.Codes) {
		return false, nil
	}
	return true, matched
}

// NearMiss returns events that matched at least one expected code without
// the full pattern being satisfied. Used for timeout diagnostics so
// protocol violations are debuggable without re-running.
func (p Pattern) NearMiss(events []event.Event) []event.Event {
	var near []event.Event
	for _, ev := range events {
		if !p.accepts(ev) {
			continue
		}
		for _, code := range p.Codes {
			if ev.HasCode(code) {
				near = append(near, ev)
				break
			}
		}
	}
	return near
}
