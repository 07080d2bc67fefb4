// Package correlate matches observed protocol events against expected
// patterns within a bounded time window.
//
// The Correlator owns the single suspension point of the system: a
// cancellable poll-sleep loop with a fixed interval and an explicit
// deadline. All cursor state (baseline timestamp, device identity) lives in
// the caller's WaitSpec, never in the log channel, so concurrent
// waits can share one channel without locking on the read path.
package correlate
