package orchestrator

import (
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/correlate"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// Reboot workflow state names, in execution order.
const (
	StateIdle                     = "Idle"
	StateCommandIssued            = "CommandIssued"
	StateConnectionRequested      = "ConnectionRequested"
	StateAwaitingPreRebootInform  = "AwaitingPreRebootInform"
	StateRebootRPCIssued          = "RebootRpcIssued"
	StateAwaitingDeviceRestart    = "AwaitingDeviceRestart"
	StateAwaitingPostRebootInform = "AwaitingPostRebootInform"
	StateVerifying                = "Verifying"
	StateSucceeded                = "Succeeded"
	StateFailed                   = "Failed"
)

// RebootConfig parameterizes the remote reboot workflow. The zero value
// is not usable; start from DefaultRebootConfig.
type RebootConfig struct {
	// CommandKey correlates the queued Reboot RPC with later device
	// events.
	CommandKey string

	// IssueRetries bounds re-issuance after transient transport
	// failures on the control channel.
	IssueRetries int

	// Per-wait timeouts.
	PreInformTimeout  time.Duration
	RebootAckTimeout  time.Duration
	ShutdownTimeout   time.Duration
	PostInformTimeout time.Duration

	// Expected code overrides. Empty slices keep the defaults for the
	// reference collaborator log format.
	PreInformCodes  []string
	RebootAckCodes  []string
	ShutdownCodes   []string
	PostInformCodes []string

	// Verify enables the trailing configuration check; HardVerify makes
	// divergence fail the run instead of recording a warning.
	Verify     bool
	HardVerify bool
}

// DefaultRebootConfig returns the workflow defaults. The post-reboot
// inform window dominates: consumer CPE restarts routinely take minutes.
func DefaultRebootConfig() RebootConfig {
	return RebootConfig{
		CommandKey:        "farmctl-reboot",
		IssueRetries:      2,
		PreInformTimeout:  30 * time.Second,
		RebootAckTimeout:  30 * time.Second,
		ShutdownTimeout:   60 * time.Second,
		PostInformTimeout: 5 * time.Minute,
		PreInformCodes:    []string{"6 CONNECTION REQUEST"},
		RebootAckCodes:    []string{"REBOOT-ACK"},
		ShutdownCodes:     []string{"SHUTDOWN"},
		PostInformCodes:   []string{"1 BOOT", "M Reboot"},
		Verify:            true,
	}
}

// RebootWorkflow builds the remote reboot workflow: queue the Reboot RPC,
// nudge the device into a session, then follow the event cascade through
// acknowledgement, restart and post-reboot inform.
func RebootWorkflow(cfg RebootConfig) Workflow {
	def := DefaultRebootConfig()
	steps := []Step{
		{
			Name:       StateCommandIssued,
			Kind:       KindIssue,
			Command:    "Reboot",
			CommandKey: cfg.CommandKey,
			Retries:    cfg.IssueRetries,
		},
		{
			Name:       StateConnectionRequested,
			Kind:       KindIssue,
			Command:    "ConnectionRequest",
			CommandKey: cfg.CommandKey,
			Retries:    cfg.IssueRetries,
		},
		{
			Name:    StateAwaitingPreRebootInform,
			Kind:    KindWait,
			Pattern: correlate.Pattern{Codes: orDefault(cfg.PreInformCodes, def.PreInformCodes), Kind: event.KindInform},
			Timeout: cfg.PreInformTimeout,
		},
		{
			Name:    StateRebootRPCIssued,
			Kind:    KindWait,
			Pattern: correlate.Pattern{Codes: orDefault(cfg.RebootAckCodes, def.RebootAckCodes)},
			Timeout: cfg.RebootAckTimeout,
		},
		{
			Name:    StateAwaitingDeviceRestart,
			Kind:    KindWait,
			Pattern: correlate.Pattern{Codes: orDefault(cfg.ShutdownCodes, def.ShutdownCodes)},
			Timeout: cfg.ShutdownTimeout,
		},
		{
			Name:    StateAwaitingPostRebootInform,
			Kind:    KindWait,
			Pattern: correlate.Pattern{Codes: orDefault(cfg.PostInformCodes, def.PostInformCodes), Kind: event.KindInform},
			Timeout: cfg.PostInformTimeout,
		},
	}
	if cfg.Verify {
		steps = append(steps, Step{
			Name:      StateVerifying,
			Kind:      KindVerify,
			HardCheck: cfg.HardVerify,
		})
	}
	return Workflow{Name: "reboot", Steps: steps}
}

func orDefault(codes, def []string) []string {
	if len(codes) > 0 {
		return codes
	}
	return def
}
