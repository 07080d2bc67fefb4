package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/tracelog"
)

// view <file>: print a captured CBOR trace in human-readable form.
func viewCmd() *cobra.Command {
	var (
		runID    string
		identity string
		category string
		step     string
		since    string
		until    string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "View a CBOR trace file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := tracelog.Filter{
				RunID:    runID,
				Identity: identity,
				Step:     step,
			}

			if category != "" {
				cat, err := parseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = &cat
			}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				filter.TimeStart = &t
			}
			if until != "" {
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("invalid --until: %w", err)
				}
				filter.TimeEnd = &t
			}

			reader, err := tracelog.NewFilteredReader(args[0], filter)
			if err != nil {
				return err
			}
			defer reader.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for {
				ev, err := reader.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("read trace: %w", err)
				}

				if asJSON {
					if err := enc.Encode(ev); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(out, renderEvent(ev))
			}
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "filter by run ID")
	cmd.Flags().StringVarP(&identity, "identity", "i", "", "filter by device identity")
	cmd.Flags().StringVar(&category, "category", "", "filter by category: POLL, MATCH, ISSUE, STATE or ERROR")
	cmd.Flags().StringVar(&step, "step", "", "filter by step name")
	cmd.Flags().StringVar(&since, "since", "", "only events at or after this RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "only events before this RFC 3339 time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output events as JSON lines")
	return cmd
}

func parseCategory(s string) (tracelog.Category, error) {
	for _, c := range []tracelog.Category{
		tracelog.CategoryPoll,
		tracelog.CategoryMatch,
		tracelog.CategoryIssue,
		tracelog.CategoryState,
		tracelog.CategoryError,
	} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// renderEvent formats one trace event as a single line.
func renderEvent(ev tracelog.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", ev.Timestamp.Format(time.RFC3339Nano), ev.Category)
	if ev.Identity != "" {
		fmt.Fprintf(&b, " %s", ev.Identity)
	}
	if ev.Step != "" {
		fmt.Fprintf(&b, " %s", ev.Step)
	}

	switch {
	case ev.Transition != nil:
		if ev.Transition.From != "" {
			fmt.Fprintf(&b, " %s -> %s", ev.Transition.From, ev.Transition.To)
		} else {
			fmt.Fprintf(&b, " -> %s", ev.Transition.To)
		}
		if ev.Transition.Reason != "" {
			fmt.Fprintf(&b, " (%s)", ev.Transition.Reason)
		}
	case ev.Issue != nil:
		fmt.Fprintf(&b, " %s attempt %d", ev.Issue.Command, ev.Issue.Attempt)
	case ev.Poll != nil:
		fmt.Fprintf(&b, " events=%d", ev.Poll.Events)
		if ev.Poll.Failed {
			b.WriteString(" failed")
		}
	case ev.Error != nil:
		fmt.Fprintf(&b, " %s", ev.Error.Message)
		if ev.Error.Context != "" {
			fmt.Fprintf(&b, " (%s)", ev.Error.Context)
		}
	}

	if ev.Message != "" {
		fmt.Fprintf(&b, " %s", ev.Message)
	}
	return b.String()
}
