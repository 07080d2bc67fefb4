// Package cpesim provides deterministic simulated collaborators for
// exercising the correlation engine and orchestration workflows: a
// controllable clock, a log channel that releases scheduled lines as
// simulated time advances, a scripted control channel, and a scripted
// configuration capturer.
//
// The simulator backs both the package tests and farmctl's --sim mode.
package cpesim
