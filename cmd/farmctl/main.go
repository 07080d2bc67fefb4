// Command farmctl drives remote management workflows against lab devices
// and verifies their outcome by correlating collaborator log events.
//
// Usage:
//
//	farmctl <command> [flags]
//
// Commands:
//
//	reboot   Execute the remote reboot workflow against a device
//	view     View a CBOR trace file in human-readable format
//
// Examples:
//
//	# Reboot CPE-1 through the configured control endpoint
//	farmctl reboot --config farmctl.yaml --identity CPE-1
//
//	# Exercise the workflow against the built-in device simulator
//	farmctl reboot --sim --identity CPE-1
//
//	# Inspect a captured trace, state transitions only
//	farmctl view --category STATE run.cbor
package main

import (
	"os"

	"github.com/alottabits/boardfarm-bdd-sub001/cmd/farmctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
