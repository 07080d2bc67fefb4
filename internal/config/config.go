// Package config loads and validates farmctl run configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alottabits/boardfarm-bdd-sub001/internal/orchestrator"
	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// LoadError describes a configuration loading failure.
type LoadError struct {
	// File is the configuration file path, if known.
	File string

	// Message describes what went wrong.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = fmt.Sprintf("%s: %s", e.File, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return "config: " + msg
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Cause }

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Control configures the control channel client.
type Control struct {
	// URL is the control endpoint base URL.
	URL string `yaml:"url"`

	// Username and Password are the basic auth credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout bounds each request.
	Timeout Duration `yaml:"timeout"`
}

// Timeouts holds the per-wait windows of the reboot workflow.
type Timeouts struct {
	PreInform  Duration `yaml:"pre_inform"`
	RebootAck  Duration `yaml:"reboot_ack"`
	Shutdown   Duration `yaml:"shutdown"`
	PostInform Duration `yaml:"post_inform"`
}

// Codes holds per-wait expected code overrides. Empty lists keep the
// defaults for the reference log format.
type Codes struct {
	PreInform  []string `yaml:"pre_inform"`
	RebootAck  []string `yaml:"reboot_ack"`
	Shutdown   []string `yaml:"shutdown"`
	PostInform []string `yaml:"post_inform"`
}

// Reboot configures the reboot workflow.
type Reboot struct {
	// CommandKey correlates the Reboot RPC with later device events.
	CommandKey string `yaml:"command_key"`

	// IssueRetries bounds re-issuance on transient transport failures.
	IssueRetries int `yaml:"issue_retries"`

	// Verify enables the trailing configuration check; HardVerify makes
	// divergence fail the run.
	Verify     *bool `yaml:"verify"`
	HardVerify bool  `yaml:"hard_verify"`

	Timeouts Timeouts `yaml:"timeouts"`
	Codes    Codes    `yaml:"codes"`
}

// Grammar overrides the log line grammar. Empty fields keep the
// reference format.
type Grammar struct {
	// Line is the line-matching expression with named groups "ts",
	// "identity", "verb" and "codes".
	Line string `yaml:"line"`

	// TimeLayout parses the "ts" group.
	TimeLayout string `yaml:"time_layout"`

	// CodeSeparator splits the "codes" group.
	CodeSeparator string `yaml:"code_separator"`
}

// Config is the complete farmctl run configuration.
type Config struct {
	// Identity is the target device.
	Identity string `yaml:"identity"`

	// ACSLog is the collaborator log file to poll.
	ACSLog string `yaml:"acs_log"`

	// PollInterval is the delay between poll cycles.
	PollInterval Duration `yaml:"poll_interval"`

	// Trace is the CBOR trace file path; empty disables tracing.
	Trace string `yaml:"trace"`

	// Report selects the output format: text, json or junit.
	Report string `yaml:"report"`

	Control Control `yaml:"control"`
	Reboot  Reboot  `yaml:"reboot"`
	Grammar Grammar `yaml:"grammar"`
}

// Default returns the configuration defaults.
func Default() *Config {
	def := orchestrator.DefaultRebootConfig()
	return &Config{
		PollInterval: Duration(time.Second),
		Report:       "text",
		Control: Control{
			Timeout: Duration(10 * time.Second),
		},
		Reboot: Reboot{
			CommandKey:   def.CommandKey,
			IssueRetries: def.IssueRetries,
			Timeouts: Timeouts{
				PreInform:  Duration(def.PreInformTimeout),
				RebootAck:  Duration(def.RebootAckTimeout),
				Shutdown:   Duration(def.ShutdownTimeout),
				PostInform: Duration(def.PostInformTimeout),
			},
		},
	}
}

// Parse parses configuration from YAML bytes over the defaults.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks field constraints that hold in every mode. Mode
// specific requirements (log path, control URL) are checked by the
// caller, since simulation runs need neither.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return &LoadError{Message: "poll_interval must be positive"}
	}
	if c.Reboot.IssueRetries < 0 {
		return &LoadError{Message: "reboot.issue_retries must not be negative"}
	}
	for name, d := range map[string]Duration{
		"timeouts.pre_inform":  c.Reboot.Timeouts.PreInform,
		"timeouts.reboot_ack":  c.Reboot.Timeouts.RebootAck,
		"timeouts.shutdown":    c.Reboot.Timeouts.Shutdown,
		"timeouts.post_inform": c.Reboot.Timeouts.PostInform,
	} {
		if d <= 0 {
			return &LoadError{Message: fmt.Sprintf("reboot.%s must be positive", name)}
		}
	}
	switch c.Report {
	case "", "text", "json", "junit":
	default:
		return &LoadError{Message: fmt.Sprintf("unknown report format %q", c.Report)}
	}
	if c.Grammar.Line != "" {
		if _, err := regexp.Compile(c.Grammar.Line); err != nil {
			return &LoadError{Message: "invalid grammar.line expression", Cause: err}
		}
	}
	return nil
}

// RebootConfig maps the configuration onto the workflow parameters.
func (c *Config) RebootConfig() orchestrator.RebootConfig {
	cfg := orchestrator.RebootConfig{
		CommandKey:        c.Reboot.CommandKey,
		IssueRetries:      c.Reboot.IssueRetries,
		PreInformTimeout:  c.Reboot.Timeouts.PreInform.Std(),
		RebootAckTimeout:  c.Reboot.Timeouts.RebootAck.Std(),
		ShutdownTimeout:   c.Reboot.Timeouts.Shutdown.Std(),
		PostInformTimeout: c.Reboot.Timeouts.PostInform.Std(),
		PreInformCodes:    c.Reboot.Codes.PreInform,
		RebootAckCodes:    c.Reboot.Codes.RebootAck,
		ShutdownCodes:     c.Reboot.Codes.Shutdown,
		PostInformCodes:   c.Reboot.Codes.PostInform,
		Verify:            true,
		HardVerify:        c.Reboot.HardVerify,
	}
	if c.Reboot.Verify != nil {
		cfg.Verify = *c.Reboot.Verify
	}
	return cfg
}

// EventGrammar builds the effective log line grammar.
func (c *Config) EventGrammar() (*event.Grammar, error) {
	g := event.DefaultGrammar()
	if c.Grammar.Line != "" {
		line, err := regexp.Compile(c.Grammar.Line)
		if err != nil {
			return nil, &LoadError{Message: "invalid grammar.line expression", Cause: err}
		}
		g.Line = line
	}
	if c.Grammar.TimeLayout != "" {
		g.TimeLayout = c.Grammar.TimeLayout
	}
	if c.Grammar.CodeSeparator != "" {
		g.CodeSeparator = c.Grammar.CodeSeparator
	}
	return g, nil
}
