// Package orchestrator sequences command issuance and correlated waits
// into complete device workflows.
//
// A Workflow is an ordered list of steps; each step performs exactly one
// operation: submit a command on the control channel, wait for an expected
// event pattern on the log channel, or verify configuration against a
// pre-command snapshot. Steps execute strictly sequentially. Any step
// failure or timeout moves the run to Failed, recording the offending
// state, the expected pattern, and near-miss diagnostics; device-side
// actions already triggered are never rolled back.
package orchestrator
