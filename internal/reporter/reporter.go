// Package reporter formats orchestration run results for humans and CI.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/internal/orchestrator"
)

// Reporter formats and outputs run results. Implementations write to the
// caller's writer and never fail the caller.
type Reporter interface {
	// ReportRuns reports a batch of runs with a summary.
	ReportRuns(runs []*orchestrator.Run)

	// ReportRun reports a single run.
	ReportRun(run *orchestrator.Run)
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{
		writer:  w,
		verbose: verbose,
	}
}

// ReportRuns reports a batch of runs in text format.
func (r *TextReporter) ReportRuns(runs []*orchestrator.Run) {
	for _, run := range runs {
		r.ReportRun(run)
	}

	passed := 0
	for _, run := range runs {
		if run.Succeeded() {
			passed++
		}
	}
	fmt.Fprintf(r.writer, "\n--- Summary ---\n")
	fmt.Fprintf(r.writer, "Total:  %d\n", len(runs))
	fmt.Fprintf(r.writer, "Passed: %d\n", passed)
	fmt.Fprintf(r.writer, "Failed: %d\n", len(runs)-passed)
}

// ReportRun reports a single run in text format.
func (r *TextReporter) ReportRun(run *orchestrator.Run) {
	fmt.Fprintf(r.writer, "\n=== Run %s: %s on %s ===\n", run.ID, run.Workflow, run.Identity)
	fmt.Fprintf(r.writer, "[%s] %s (%s)\n",
		run.Status, run.Workflow, run.Duration().Round(time.Millisecond))

	if !run.Succeeded() {
		fmt.Fprintf(r.writer, "       Failed at: %s\n", run.FailedStep)
		if run.Err != nil {
			fmt.Fprintf(r.writer, "       Error: %v\n", run.Err)
		}
	}

	if !r.verbose {
		return
	}

	for _, sr := range run.Steps {
		fmt.Fprintf(r.writer, "    [%s] %s %s (%s)\n",
			sr.Status, sr.Kind, sr.Name, sr.Duration().Round(time.Millisecond))

		if sr.Kind == orchestrator.KindIssue && sr.Attempts > 1 {
			fmt.Fprintf(r.writer, "           Attempts: %d\n", sr.Attempts)
		}
		if sr.Match != nil {
			if len(sr.Pattern.Codes) > 0 {
				fmt.Fprintf(r.writer, "           Expected: %s\n", sr.Pattern)
			}
			for _, ev := range sr.Match.Events {
				fmt.Fprintf(r.writer, "           Matched: %s %v at %s\n",
					ev.Kind, ev.Codes, ev.Timestamp.Format(time.RFC3339))
			}
			for _, ev := range sr.Match.NearMiss {
				fmt.Fprintf(r.writer, "           Near miss: %s %v at %s\n",
					ev.Kind, ev.Codes, ev.Timestamp.Format(time.RFC3339))
			}
			if sr.Match.ChannelDown() {
				fmt.Fprintf(r.writer, "           Log channel unreachable (%d/%d polls failed)\n",
					sr.Match.FailedPolls, sr.Match.Polls)
			}
		}
		for _, div := range sr.Divergences {
			fmt.Fprintf(r.writer, "           Diverged: %s\n", div)
		}
		if sr.Err != nil {
			fmt.Fprintf(r.writer, "           Error: %v\n", sr.Err)
		}
	}
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: w,
		pretty: pretty,
	}
}

// JSONBatch is the JSON representation of a batch of runs.
type JSONBatch struct {
	Total  int       `json:"total"`
	Passed int       `json:"passed"`
	Failed int       `json:"failed"`
	Runs   []JSONRun `json:"runs"`
}

// JSONRun is the JSON representation of one run.
type JSONRun struct {
	ID         string     `json:"id"`
	Workflow   string     `json:"workflow"`
	Identity   string     `json:"identity"`
	Status     string     `json:"status"`
	Duration   string     `json:"duration"`
	FailedStep string     `json:"failed_step,omitempty"`
	Error      string     `json:"error,omitempty"`
	Steps      []JSONStep `json:"steps"`
}

// JSONStep is the JSON representation of one step result.
type JSONStep struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Status     string   `json:"status"`
	Duration   string   `json:"duration"`
	Attempts   int      `json:"attempts,omitempty"`
	Expected   string   `json:"expected,omitempty"`
	Matched    []string `json:"matched,omitempty"`
	NearMiss   []string `json:"near_miss,omitempty"`
	Divergence []string `json:"divergence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ReportRuns reports a batch of runs in JSON format.
func (r *JSONReporter) ReportRuns(runs []*orchestrator.Run) {
	batch := JSONBatch{
		Total: len(runs),
		Runs:  make([]JSONRun, 0, len(runs)),
	}
	for _, run := range runs {
		if run.Succeeded() {
			batch.Passed++
		} else {
			batch.Failed++
		}
		batch.Runs = append(batch.Runs, r.runToJSON(run))
	}
	r.writeJSON(batch)
}

// ReportRun reports a single run in JSON format.
func (r *JSONReporter) ReportRun(run *orchestrator.Run) {
	r.writeJSON(r.runToJSON(run))
}

func (r *JSONReporter) runToJSON(run *orchestrator.Run) JSONRun {
	jr := JSONRun{
		ID:         run.ID,
		Workflow:   run.Workflow,
		Identity:   string(run.Identity),
		Status:     strings.ToLower(run.Status.String()),
		Duration:   run.Duration().Round(time.Millisecond).String(),
		FailedStep: run.FailedStep,
	}
	if run.Err != nil {
		jr.Error = run.Err.Error()
	}

	for _, sr := range run.Steps {
		js := JSONStep{
			Name:     sr.Name,
			Kind:     strings.ToLower(sr.Kind.String()),
			Status:   strings.ToLower(sr.Status.String()),
			Duration: sr.Duration().Round(time.Millisecond).String(),
			Attempts: sr.Attempts,
		}
		if sr.Match != nil {
			if len(sr.Pattern.Codes) > 0 {
				js.Expected = sr.Pattern.String()
			}
			for _, ev := range sr.Match.Events {
				js.Matched = append(js.Matched, ev.Codes...)
			}
			for _, ev := range sr.Match.NearMiss {
				js.NearMiss = append(js.NearMiss, ev.Codes...)
			}
		}
		for _, div := range sr.Divergences {
			js.Divergence = append(js.Divergence, div.String())
		}
		if sr.Err != nil {
			js.Error = sr.Err.Error()
		}
		jr.Steps = append(jr.Steps, js)
	}
	return jr
}

func (r *JSONReporter) writeJSON(v any) {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`, err)
		return
	}

	fmt.Fprintln(r.writer, string(data))
}

// JUnitReporter outputs JUnit XML format for CI integration. Each run
// maps to a testcase; the failing step and its diagnostics land in the
// failure element.
type JUnitReporter struct {
	writer io.Writer
}

// NewJUnitReporter creates a new JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

// ReportRuns reports a batch of runs in JUnit XML format.
func (r *JUnitReporter) ReportRuns(runs []*orchestrator.Run) {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n")

	failures := 0
	var total time.Duration
	for _, run := range runs {
		if !run.Succeeded() {
			failures++
		}
		total += run.Duration()
	}

	fmt.Fprintf(&b, `<testsuite name="farmctl" tests="%d" failures="%d" time="%.3f">`,
		len(runs), failures, total.Seconds())
	b.WriteString("\n")

	for _, run := range runs {
		fmt.Fprintf(&b, `  <testcase name="%s %s" classname="%s" time="%.3f">`,
			escapeXML(run.Workflow), escapeXML(string(run.Identity)),
			escapeXML(run.ID), run.Duration().Seconds())
		b.WriteString("\n")

		if !run.Succeeded() {
			msg := fmt.Sprintf("%s at %s", run.Status, run.FailedStep)
			fmt.Fprintf(&b, `    <failure message="%s">`, escapeXML(msg))
			b.WriteString("\n")

			b.WriteString("      <![CDATA[")
			for _, sr := range run.Steps {
				if sr.Status == orchestrator.StatusSuccess {
					continue
				}
				fmt.Fprintf(&b, "Step %s (%s): %v\n", sr.Name, sr.Kind, sr.Err)
				if sr.Match != nil {
					fmt.Fprintf(&b, "Expected: %s\n", sr.Pattern)
					for _, ev := range sr.Match.NearMiss {
						fmt.Fprintf(&b, "Near miss: %v\n", ev.Codes)
					}
				}
			}
			b.WriteString("]]>\n")
			b.WriteString("    </failure>\n")
		}

		b.WriteString("  </testcase>\n")
	}

	b.WriteString("</testsuite>\n")

	fmt.Fprint(r.writer, b.String())
}

// ReportRun reports a single run in JUnit format.
func (r *JUnitReporter) ReportRun(run *orchestrator.Run) {
	r.ReportRuns([]*orchestrator.Run{run})
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

// New returns the reporter for a format name ("text", "json", "junit").
func New(format string, w io.Writer, verbose bool) (Reporter, error) {
	switch format {
	case "text", "":
		return NewTextReporter(w, verbose), nil
	case "json":
		return NewJSONReporter(w, true), nil
	case "junit":
		return NewJUnitReporter(w), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
