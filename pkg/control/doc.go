// Package control defines the command submission contract for the device
// control channel.
//
// Issuing a command triggers a real device-side action. Calls are not safe
// to repeat speculatively: duplicate issuance may produce duplicate device
// actions, and avoiding that is the caller's responsibility. Errors at this
// boundary are typed (transport vs authentication) and never retried
// internally; the orchestrator decides whether to retry.
package control
