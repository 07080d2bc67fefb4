package cpesim

import (
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// RebootTiming controls when the simulated device's reboot events appear
// on the log channel, relative to the ConnectionRequest issuance.
type RebootTiming struct {
	// PreInform is when the device sessions in after the connection request.
	PreInform time.Duration

	// RebootAck is when the reboot RPC acknowledgement is logged.
	RebootAck time.Duration

	// Shutdown is when the device's restart marker appears.
	Shutdown time.Duration

	// PostInform is when the post-reboot inform appears.
	PostInform time.Duration
}

// DefaultRebootTiming returns a plausible CPE reboot timeline.
func DefaultRebootTiming() RebootTiming {
	return RebootTiming{
		PreInform:  2 * time.Second,
		RebootAck:  4 * time.Second,
		Shutdown:   8 * time.Second,
		PostInform: 45 * time.Second,
	}
}

// Device wires a clock, log channel, issuer and capturer into a simulated
// CPE that behaves correctly during a remote reboot: issuing a
// ConnectionRequest schedules the full event cascade on the log channel.
type Device struct {
	Identity event.Identity
	Clock    *Clock
	Channel  *LogChannel
	Issuer   *Issuer
	Capturer *Capturer

	timing RebootTiming
}

// NewDevice creates a well-behaved simulated CPE with shared collaborators.
func NewDevice(identity event.Identity, start time.Time, timing RebootTiming) *Device {
	clock := NewClock(start)
	d := &Device{
		Identity: identity,
		Clock:    clock,
		Channel:  NewLogChannel(clock),
		Issuer:   NewIssuer(clock),
		Capturer: NewCapturer(clock),
		timing:   timing,
	}

	d.Issuer.OnIssue(func(cmd IssuedCommand) {
		if cmd.Identity != d.Identity || cmd.Command != "ConnectionRequest" {
			return
		}
		d.ScheduleReboot(clock.Now())
	})
	return d
}

// ScheduleReboot places the reboot event cascade on the log channel,
// starting from the given instant.
func (d *Device) ScheduleReboot(from time.Time) {
	d.Channel.ScheduleEvent(from.Add(d.timing.PreInform), d.Identity, "INFORM", "6 CONNECTION REQUEST")
	d.Channel.ScheduleEvent(from.Add(d.timing.RebootAck), d.Identity, "RESULT", "REBOOT-ACK")
	d.Channel.ScheduleEvent(from.Add(d.timing.Shutdown), d.Identity, "SESSION", "SHUTDOWN")
	d.Channel.ScheduleEvent(from.Add(d.timing.PostInform), d.Identity, "INFORM", "1 BOOT", "M Reboot")
}
