package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alottabits/boardfarm-bdd-sub001/internal/cpesim"
	"github.com/alottabits/boardfarm-bdd-sub001/internal/orchestrator"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/control"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/correlate"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/snapshot"
)

var simStart = time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

func newOrchestrator(d *cpesim.Device) *orchestrator.Orchestrator {
	c := correlate.New(d.Channel, nil, correlate.WithClock(d.Clock))
	return orchestrator.New(c, d.Issuer,
		orchestrator.WithClock(d.Clock),
		orchestrator.WithCapturer(d.Capturer),
	)
}

// assertTotal checks the structural invariants every finished run must
// hold: a terminal run status, terminal statuses on every executed step,
// and a failing step name exactly when the run did not succeed.
func assertTotal(t *testing.T, run *orchestrator.Run) {
	t.Helper()
	assert.True(t, run.Status.Terminal(), "run must end in a terminal status")
	assert.False(t, run.CompletedAt.IsZero())
	for _, step := range run.Steps {
		assert.True(t, step.Status.Terminal(), "step %s left pending", step.Name)
		assert.False(t, step.CompletedAt.Before(step.StartedAt))
	}
	if run.Succeeded() {
		assert.Empty(t, run.FailedStep)
	} else {
		assert.NotEmpty(t, run.FailedStep)
	}
}

// A well-behaved device completes the full reboot workflow.
func TestExecuteRebootSuccess(t *testing.T) {
	device := cpesim.NewDevice("CPE-1", simStart, cpesim.DefaultRebootTiming())
	device.Capturer.SetItem("CPE-1", "Device.WiFi.SSID.1.SSID", snapshot.Item{Source: "tr069", Value: "lab"})
	orc := newOrchestrator(device)

	run, err := orc.Execute(context.Background(), "CPE-1", orchestrator.RebootWorkflow(orchestrator.DefaultRebootConfig()))
	require.NoError(t, err)
	assertTotal(t, run)

	require.True(t, run.Succeeded(), "run failed at %s: %v", run.FailedStep, run.Err)
	require.Len(t, run.Steps, 7)
	for _, step := range run.Steps {
		assert.Equal(t, orchestrator.StatusSuccess, step.Status, "step %s", step.Name)
	}

	post := run.Step(orchestrator.StateAwaitingPostRebootInform)
	require.NotNil(t, post)
	require.NotNil(t, post.Match)
	assert.True(t, post.Match.Found)

	// Baseline ends at the post-reboot inform, the latest matched event.
	assert.Equal(t, simStart.Add(45*time.Second), run.Baseline)
	assert.NotEmpty(t, run.ID)
}

// A device that never reacts to the connection request times out at the
// first wait, within one poll interval of the step timeout, with no
// matched events and no later steps executed.
func TestExecuteTimeoutAtFirstWait(t *testing.T) {
	clock := cpesim.NewClock(simStart)
	channel := cpesim.NewLogChannel(clock)
	issuer := cpesim.NewIssuer(clock)
	c := correlate.New(channel, nil, correlate.WithClock(clock))
	orc := orchestrator.New(c, issuer, orchestrator.WithClock(clock))

	cfg := orchestrator.DefaultRebootConfig()
	cfg.Verify = false
	cfg.PreInformTimeout = 10 * time.Second

	run, err := orc.Execute(context.Background(), "CPE-1", orchestrator.RebootWorkflow(cfg))
	require.NoError(t, err)
	assertTotal(t, run)

	assert.Equal(t, orchestrator.StatusTimeout, run.Status)
	assert.Equal(t, orchestrator.StateAwaitingPreRebootInform, run.FailedStep)
	require.Len(t, run.Steps, 3, "steps after the failing one must not run")

	failed := run.Steps[2]
	require.NotNil(t, failed.Match)
	assert.Empty(t, failed.Match.Events)
	assert.GreaterOrEqual(t, failed.Match.Elapsed, 10*time.Second)
	assert.LessOrEqual(t, failed.Match.Elapsed, 10*time.Second+c.Interval())
}

// Two concurrent runs against different identities on one shared log
// channel succeed independently.
func TestExecuteConcurrentRunsSharedChannel(t *testing.T) {
	clock := cpesim.NewClock(simStart)
	channel := cpesim.NewLogChannel(clock)
	issuer := cpesim.NewIssuer(clock)
	timing := cpesim.DefaultRebootTiming()

	issuer.OnIssue(func(cmd cpesim.IssuedCommand) {
		if cmd.Command != "ConnectionRequest" {
			return
		}
		from := clock.Now()
		channel.ScheduleEvent(from.Add(timing.PreInform), cmd.Identity, "INFORM", "6 CONNECTION REQUEST")
		channel.ScheduleEvent(from.Add(timing.RebootAck), cmd.Identity, "RESULT", "REBOOT-ACK")
		channel.ScheduleEvent(from.Add(timing.Shutdown), cmd.Identity, "SESSION", "SHUTDOWN")
		channel.ScheduleEvent(from.Add(timing.PostInform), cmd.Identity, "INFORM", "1 BOOT", "M Reboot")
	})

	c := correlate.New(channel, nil, correlate.WithClock(clock))
	orc := orchestrator.New(c, issuer, orchestrator.WithClock(clock))

	cfg := orchestrator.DefaultRebootConfig()
	cfg.Verify = false
	wf := orchestrator.RebootWorkflow(cfg)

	var wg sync.WaitGroup
	runs := make([]*orchestrator.Run, 2)
	errs := make([]error, 2)
	for idx, id := range []event.Identity{"CPE-A", "CPE-B"} {
		wg.Add(1)
		go func(idx int, id event.Identity) {
			defer wg.Done()
			runs[idx], errs[idx] = orc.Execute(context.Background(), id, wf)
		}(idx, id)
	}
	wg.Wait()

	for idx, run := range runs {
		require.NoError(t, errs[idx])
		assertTotal(t, run)
		require.True(t, run.Succeeded(), "run %s failed at %s: %v", run.Identity, run.FailedStep, run.Err)
		for _, step := range run.Steps {
			if step.Match == nil {
				continue
			}
			for _, ev := range step.Match.Events {
				assert.Equal(t, run.Identity, ev.Identity, "cross-identity event leaked into run %s", run.Identity)
			}
		}
	}
	assert.NotEqual(t, runs[0].ID, runs[1].ID)
}

// Credential rejection is fatal on the first attempt: the run fails at
// CommandIssued and nothing further reaches the device.
func TestExecuteAuthenticationFailure(t *testing.T) {
	device := cpesim.NewDevice("CPE-1", simStart, cpesim.DefaultRebootTiming())
	device.Issuer.FailNext("Reboot", control.ErrAuthentication)
	orc := newOrchestrator(device)

	run, err := orc.Execute(context.Background(), "CPE-1", orchestrator.RebootWorkflow(orchestrator.DefaultRebootConfig()))
	require.NoError(t, err)
	assertTotal(t, run)

	assert.Equal(t, orchestrator.StatusFailed, run.Status)
	assert.Equal(t, orchestrator.StateCommandIssued, run.FailedStep)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, 1, run.Steps[0].Attempts, "auth rejection must not be retried")
	assert.ErrorIs(t, run.Err, control.ErrAuthentication)
	assert.Zero(t, device.Issuer.CallCount("ConnectionRequest"))
}

func TestExecuteIssueRetriesTransientTransport(t *testing.T) {
	device := cpesim.NewDevice("CPE-1", simStart, cpesim.DefaultRebootTiming())
	device.Issuer.FailNext("Reboot", &control.TransportError{Op: "post", Err: errors.New("connection refused")})
	orc := newOrchestrator(device)

	cfg := orchestrator.DefaultRebootConfig()
	cfg.Verify = false

	run, err := orc.Execute(context.Background(), "CPE-1", orchestrator.RebootWorkflow(cfg))
	require.NoError(t, err)
	assertTotal(t, run)

	require.True(t, run.Succeeded(), "run failed at %s: %v", run.FailedStep, run.Err)
	assert.Equal(t, 2, run.Step(orchestrator.StateCommandIssued).Attempts)
}

func TestExecuteIssueRetriesExhausted(t *testing.T) {
	device := cpesim.NewDevice("CPE-1", simStart, cpesim.DefaultRebootTiming())
	device.Issuer.FailNext("Reboot",
		&control.TransportError{Op: "post", Err: errors.New("connection refused")},
		&control.TransportError{Op: "post", Err: errors.New("connection refused")},
	)
	orc := newOrchestrator(device)

	cfg := orchestrator.DefaultRebootConfig()
	cfg.IssueRetries = 1
	cfg.Verify = false

	run, err := orc.Execute(context.Background(), "CPE-1", orchestrator.RebootWorkflow(cfg))
	require.NoError(t, err)
	assertTotal(t, run)

	assert.Equal(t, orchestrator.StatusFailed, run.Status)
	assert.Equal(t, orchestrator.StateCommandIssued, run.FailedStep)
	assert.Equal(t, 2, run.Steps[0].Attempts)
	assert.True(t, control.IsTransport(run.Err))
	assert.Zero(t, device.Issuer.CallCount("ConnectionRequest"))
}

// A log channel that fails every poll of the window is a transport
// failure, not a timeout.
func TestExecuteChannelDownIsNotTimeout(t *testing.T) {
	device := cpesim.NewDevice("CPE-1", simStart, cpesim.DefaultRebootTiming())
	device.Channel.FailUntil(simStart.Add(time.Hour))
	orc := newOrchestrator(device)

	cfg := orchestrator.DefaultRebootConfig()
	cfg.Verify = false
	cfg.PreInformTimeout = 5 * time.Second

	run, err := orc.Execute(context.Background(), "CPE-1", orchestrator.RebootWorkflow(cfg))
	require.NoError(t, err)
	assertTotal(t, run)

	assert.Equal(t, orchestrator.StatusFailed, run.Status)
	assert.Equal(t, orchestrator.StateAwaitingPreRebootInform, run.FailedStep)
	assert.ErrorIs(t, run.Err, orchestrator.ErrChannelDown)
}

func TestExecuteVerifyDivergence(t *testing.T) {
	setup := func(hard bool) (*orchestrator.Orchestrator, *cpesim.Device, orchestrator.Workflow) {
		device := cpesim.NewDevice("CPE-1", simStart, cpesim.DefaultRebootTiming())
		device.Capturer.SetItem("CPE-1", "Device.WiFi.SSID.1.SSID", snapshot.Item{Source: "tr069", Value: "lab"})

		// The reboot reverts the SSID to factory default, so the post
		// capture diverges from the pre-command snapshot.
		device.Issuer.OnIssue(func(cmd cpesim.IssuedCommand) {
			if cmd.Command != "ConnectionRequest" {
				return
			}
			device.ScheduleReboot(device.Clock.Now())
			device.Capturer.SetItem("CPE-1", "Device.WiFi.SSID.1.SSID", snapshot.Item{Source: "tr069", Value: "factory"})
		})

		cfg := orchestrator.DefaultRebootConfig()
		cfg.HardVerify = hard
		return newOrchestrator(device), device, orchestrator.RebootWorkflow(cfg)
	}

	t.Run("soft records a warning and succeeds", func(t *testing.T) {
		orc, _, wf := setup(false)
		run, err := orc.Execute(context.Background(), "CPE-1", wf)
		require.NoError(t, err)
		assertTotal(t, run)

		require.True(t, run.Succeeded(), "run failed at %s: %v", run.FailedStep, run.Err)
		verify := run.Step(orchestrator.StateVerifying)
		require.NotNil(t, verify)
		require.Len(t, verify.Divergences, 1)
		assert.Equal(t, "Device.WiFi.SSID.1.SSID", verify.Divergences[0].Path)
	})

	t.Run("hard fails the run", func(t *testing.T) {
		orc, _, wf := setup(true)
		run, err := orc.Execute(context.Background(), "CPE-1", wf)
		require.NoError(t, err)
		assertTotal(t, run)

		assert.Equal(t, orchestrator.StatusFailed, run.Status)
		assert.Equal(t, orchestrator.StateVerifying, run.FailedStep)
		assert.ErrorIs(t, run.Err, orchestrator.ErrDivergence)
	})
}

func TestExecuteCancellation(t *testing.T) {
	device := cpesim.NewDevice("CPE-1", simStart, cpesim.DefaultRebootTiming())
	orc := newOrchestrator(device)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := orc.Execute(ctx, "CPE-1", orchestrator.RebootWorkflow(orchestrator.DefaultRebootConfig()))
	assert.ErrorIs(t, err, context.Canceled)
	assertTotal(t, run)
	assert.Equal(t, orchestrator.StatusFailed, run.Status)
}
