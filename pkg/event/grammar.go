package event

import (
	"regexp"
	"time"
)

// Grammar describes how raw log lines are tokenized into events.
// The log channel's concrete format is a collaborator concern, so the
// grammar is pluggable: supply a Line expression with the named groups
// "ts", "identity", "verb" and "codes", a time layout for the ts group,
// and a mapping from verb tokens to event kinds.
type Grammar struct {
	// Line matches one log line. Lines that do not match are skipped.
	Line *regexp.Regexp

	// TimeLayout parses the "ts" capture group. Lines without a parsable
	// timestamp fall back to the poll time.
	TimeLayout string

	// CodeSeparator splits the "codes" capture group into individual codes.
	CodeSeparator string

	// Kinds maps verb tokens (upper-cased) to event kinds. Unmapped verbs
	// yield KindUnknown but still produce an event.
	Kinds map[string]Kind
}

// defaultLine matches the reference ACS log format:
//
//	2026-08-27T10:12:01Z acs cpe=CPE-1 verb=INFORM codes="1 BOOT,M Reboot"
var defaultLine = regexp.MustCompile(
	`^(?:(?P<ts>\S+)\s+)?acs\s+cpe=(?P<identity>\S+)\s+verb=(?P<verb>\S+)(?:\s+codes="(?P<codes>[^"]*)")?`)

// DefaultGrammar returns the grammar for the reference ACS log format.
func DefaultGrammar() *Grammar {
	return &Grammar{
		Line:          defaultLine,
		TimeLayout:    time.RFC3339,
		CodeSeparator: ",",
		Kinds: map[string]Kind{
			"INFORM":  KindInform,
			"CONNREQ": KindConnectionRequest,
			"RESULT":  KindRPCResult,
			"SESSION": KindSession,
		},
	}
}

// groupIndex returns the index of the named capture group, or -1.
func groupIndex(re *regexp.Regexp, name string) int {
	for i, n := range re.SubexpNames() {
		if n == name {
			return i
		}
	}
	return -1
}
