// Package tracelog provides structured diagnostic logging for correlation
// and orchestration activity.
//
// Components emit trace events describing polls, parsed protocol events,
// command issuances, state transitions, and failures. Applications choose
// where events go: discarded (NoopLogger), a CBOR file for offline analysis
// (FileLogger), the console via log/slog (SlogAdapter), or several sinks at
// once (MultiLogger). Reader streams events back out of a CBOR file with
// optional filtering.
package tracelog
