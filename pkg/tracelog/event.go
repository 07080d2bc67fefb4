package tracelog

import "time"

// Event is one trace record emitted during a run.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// RunID identifies the orchestration run (UUID), if any.
	RunID string `cbor:"2,keyasint,omitempty"`

	// Identity is the device the activity was scoped to.
	Identity string `cbor:"3,keyasint,omitempty"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// Step names the orchestration step in progress, if any.
	Step string `cbor:"5,keyasint,omitempty"`

	// Message is a short human-readable description.
	Message string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (at most one is set).
	Poll       *PollData       `cbor:"7,keyasint,omitempty"`
	Issue      *IssueData      `cbor:"8,keyasint,omitempty"`
	Transition *TransitionData `cbor:"9,keyasint,omitempty"`
	Error      *ErrorData      `cbor:"10,keyasint,omitempty"`
}

// Category classifies a trace event.
type Category uint8

const (
	// CategoryPoll is one poll cycle of the log channel.
	CategoryPoll Category = 0
	// CategoryMatch is a satisfied expected pattern.
	CategoryMatch Category = 1
	// CategoryIssue is a command submission on the control channel.
	CategoryIssue Category = 2
	// CategoryState is an orchestration state transition.
	CategoryState Category = 3
	// CategoryError is a failure at any layer.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPoll:
		return "POLL"
	case CategoryMatch:
		return "MATCH"
	case CategoryIssue:
		return "ISSUE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PollData captures the outcome of one poll cycle.
type PollData struct {
	// Lines is the number of raw lines returned.
	Lines int `cbor:"1,keyasint"`

	// Events is the number of typed events parsed for the scoped identity.
	Events int `cbor:"2,keyasint"`

	// Failed indicates the poll returned a transport error.
	Failed bool `cbor:"3,keyasint,omitempty"`
}

// IssueData captures a command issuance attempt.
type IssueData struct {
	// Command is the command name.
	Command string `cbor:"1,keyasint"`

	// CommandKey correlates the command with later device events.
	CommandKey string `cbor:"2,keyasint,omitempty"`

	// Attempt is the 1-based attempt number.
	Attempt int `cbor:"3,keyasint"`
}

// TransitionData captures an orchestration state transition.
type TransitionData struct {
	// From is the previous state name (empty at run start).
	From string `cbor:"1,keyasint,omitempty"`

	// To is the new state name.
	To string `cbor:"2,keyasint"`

	// Reason for the transition, if notable.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorData captures a failure.
type ErrorData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes what was being attempted.
	Context string `cbor:"2,keyasint,omitempty"`
}
