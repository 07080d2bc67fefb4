package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alottabits/boardfarm-bdd-sub001/internal/cpesim"
	"github.com/alottabits/boardfarm-bdd-sub001/internal/orchestrator"
	"github.com/alottabits/boardfarm-bdd-sub001/internal/reporter"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/control"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/correlate"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/logsource"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/snapshot"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/tracelog"
)

// reboot: execute the remote reboot workflow against one device.
func rebootCmd() *cobra.Command {
	var (
		identity string
		sim      bool
		report   string
		trace    string
	)

	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Execute the remote reboot workflow against a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity == "" {
				identity = cfg.Identity
			}
			if identity == "" {
				return fmt.Errorf("device identity required (--identity or config)")
			}
			if report == "" {
				report = cfg.Report
			}
			if trace == "" {
				trace = cfg.Trace
			}

			tracer, closeTrace, err := buildTracer(trace)
			if err != nil {
				return err
			}
			defer closeTrace()

			var run *orchestrator.Run
			if sim {
				run, err = executeSim(cmd, identity, tracer)
			} else {
				run, err = executeReal(cmd, identity, tracer)
			}
			if err != nil {
				return err
			}

			rep, err := reporter.New(report, cmd.OutOrStdout(), verbose)
			if err != nil {
				return err
			}
			rep.ReportRun(run)

			if !run.Succeeded() {
				return fmt.Errorf("reboot %s at %s", run.Status, run.FailedStep)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&identity, "identity", "i", "", "target device identity")
	cmd.Flags().BoolVar(&sim, "sim", false, "run against the built-in device simulator")
	cmd.Flags().StringVar(&report, "report", "", "report format: text, json or junit")
	cmd.Flags().StringVar(&trace, "trace", "", "write a CBOR trace to this file")
	return cmd
}

// executeReal runs the workflow against the configured log file and
// control endpoint.
func executeReal(cmd *cobra.Command, identity string, tracer tracelog.Logger) (*orchestrator.Run, error) {
	if cfg.ACSLog == "" {
		return nil, fmt.Errorf("acs_log path required in configuration")
	}
	if cfg.Control.URL == "" {
		return nil, fmt.Errorf("control.url required in configuration")
	}

	grammar, err := cfg.EventGrammar()
	if err != nil {
		return nil, err
	}

	source := logsource.NewFile(cfg.ACSLog, logsource.DefaultTailWindow)
	issuer := control.NewHTTPIssuer(cfg.Control.URL, cfg.Control.Username, cfg.Control.Password,
		&http.Client{Timeout: cfg.Control.Timeout.Std()})

	correlator := correlate.New(source, event.NewFilter(grammar),
		correlate.WithInterval(cfg.PollInterval.Std()),
		correlate.WithTrace(tracer),
	)
	orc := orchestrator.New(correlator, issuer, orchestrator.WithTrace(tracer))

	return orc.Execute(cmd.Context(), event.Identity(identity), orchestrator.RebootWorkflow(cfg.RebootConfig()))
}

// executeSim runs the workflow against the built-in simulator, with a
// deterministic clock so multi-minute reboots complete instantly.
func executeSim(cmd *cobra.Command, identity string, tracer tracelog.Logger) (*orchestrator.Run, error) {
	device := cpesim.NewDevice(event.Identity(identity), time.Now().UTC(), cpesim.DefaultRebootTiming())
	device.Capturer.SetItem(device.Identity, "Device.DeviceInfo.SoftwareVersion",
		snapshot.Item{Source: "sim", Value: "1.0.0"})

	correlator := correlate.New(device.Channel, nil,
		correlate.WithClock(device.Clock),
		correlate.WithTrace(tracer),
	)
	orc := orchestrator.New(correlator, device.Issuer,
		orchestrator.WithClock(device.Clock),
		orchestrator.WithCapturer(device.Capturer),
		orchestrator.WithTrace(tracer),
	)

	return orc.Execute(cmd.Context(), device.Identity, orchestrator.RebootWorkflow(cfg.RebootConfig()))
}

// buildTracer assembles the trace pipeline: file capture when a path is
// given, console echo when verbose.
func buildTracer(path string) (tracelog.Logger, func(), error) {
	var loggers []tracelog.Logger
	closer := func() {}

	if path != "" {
		fl, err := tracelog.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		loggers = append(loggers, fl)
		closer = func() { _ = fl.Close() }
	}
	if verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, tracelog.NewSlogAdapter(slog.New(handler)))
	}

	switch len(loggers) {
	case 0:
		return tracelog.NoopLogger{}, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return tracelog.NewMultiLogger(loggers...), closer, nil
	}
}
