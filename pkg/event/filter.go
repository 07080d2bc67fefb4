package event

import (
	"strings"
	"time"
)

// Filter maps raw log lines to typed events using a fixed grammar.
// Parsing is deterministic and never fails hard: unknown or malformed
// lines yield ok=false and are skipped by the caller.
type Filter struct {
	grammar *Grammar

	// Cached capture group indices.
	tsIdx, identityIdx, verbIdx, codesIdx int
}

// NewFilter creates a filter for the given grammar.
// A nil grammar selects DefaultGrammar.
func NewFilter(g *Grammar) *Filter {
	if g == nil {
		g = DefaultGrammar()
	}
	return &Filter{
		grammar:     g,
		tsIdx:       groupIndex(g.Line, "ts"),
		identityIdx: groupIndex(g.Line, "identity"),
		verbIdx:     groupIndex(g.Line, "verb"),
		codesIdx:    groupIndex(g.Line, "codes"),
	}
}

// Parse extracts an event from one raw line. The received time is used
// as the event timestamp when the line carries none. Returns ok=false
// for lines the grammar does not recognize or that lack an identity.
func (f *Filter) Parse(raw string, received time.Time) (Event, bool) {
	m := f.grammar.Line.FindStringSubmatch(raw)
	if m == nil {
		return Event{}, false
	}

	identity := group(m, f.identityIdx)
	if identity == "" {
		return Event{}, false
	}

	ev := Event{
		Identity:  Identity(identity),
		Timestamp: received,
		Raw:       raw,
	}

	if verb := group(m, f.verbIdx); verb != "" {
		ev.Kind = f.grammar.Kinds[strings.ToUpper(verb)]
	}

	if ts := group(m, f.tsIdx); ts != "" && f.grammar.TimeLayout != "" {
		if t, err := time.Parse(f.grammar.TimeLayout, ts); err == nil {
			ev.Timestamp = t
		}
	}

	if codes := group(m, f.codesIdx); codes != "" {
		sep := f.grammar.CodeSeparator
		if sep == "" {
			sep = ","
		}
		for _, c := range strings.Split(codes, sep) {
			if c = strings.TrimSpace(c); c != "" {
				ev.Codes = append(ev.Codes, c)
			}
		}
	}

	return ev, true
}

// group safely extracts a capture group by index.
func group(m []string, idx int) string {
	if idx < 0 || idx >= len(m) {
		return ""
	}
	return m[idx]
}
