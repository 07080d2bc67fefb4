package event

import (
	"strings"
	"time"
)

// Identity is the stable key scoping events to one device on a shared
// log channel (e.g., a CPE serial number or ACS-assigned name).
type Identity string

// Kind classifies a protocol event.
type Kind uint8

const (
	// KindUnknown is an unclassified event.
	KindUnknown Kind = 0

	// KindInform is a device-initiated session carrying event codes.
	KindInform Kind = 1

	// KindConnectionRequest is a server-initiated connection request
	// acknowledged by the device.
	KindConnectionRequest Kind = 2

	// KindRPCResult reports the outcome of an RPC delivered to the device.
	KindRPCResult Kind = 3

	// KindSession is a session lifecycle event (open/close/shutdown).
	KindSession Kind = 4
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInform:
		return "INFORM"
	case KindConnectionRequest:
		return "CONNREQ"
	case KindRPCResult:
		return "RESULT"
	case KindSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Event is a typed protocol event extracted from one raw log line.
// Events are immutable and ephemeral: produced by polling, evaluated
// against an expected pattern, and discarded (optionally retained for
// diagnostics).
type Event struct {
	// Kind classifies the event.
	Kind Kind

	// Identity is the device the event belongs to.
	Identity Identity

	// Codes are the event codes reported on the line (e.g., "1 BOOT").
	Codes []string

	// Timestamp is when the event occurred. Parsed from the line when
	// present, otherwise the poll time at ingestion.
	Timestamp time.Time

	// Raw is the original log line, retained for diagnostics.
	Raw string
}

// HasCode reports whether the event carries the given code.
// Comparison is case-insensitive; codes are trimmed on parse.
func (e Event) HasCode(code string) bool {
	for _, c := range e.Codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
