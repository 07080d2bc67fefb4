// Package event defines the protocol event model and the filter that maps
// raw log channel lines to typed events.
//
// Events are produced by polling an append-only log channel shared by many
// devices. Each event carries the device identity it belongs to, the event
// codes reported by the device, and a timestamp. The line format is a
// pluggable grammar so the filter can follow whatever the log collaborator
// produces.
package event
