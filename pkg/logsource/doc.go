// Package logsource provides pollable access to an append-only log channel.
//
// A Source returns the current bounded tail of the channel on every poll.
// It keeps no read cursor: all baseline and identity state lives in the
// caller, so any number of concurrent consumers can share one channel
// without coordination, and repeating a poll is always safe.
package logsource
