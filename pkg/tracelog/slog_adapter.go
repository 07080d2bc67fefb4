package tracelog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger.
// Useful for development when you want to see correlation activity in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	if event.Identity != "" {
		attrs = append(attrs, slog.String("identity", event.Identity))
	}
	if event.Step != "" {
		attrs = append(attrs, slog.String("step", event.Step))
	}
	if event.Message != "" {
		attrs = append(attrs, slog.String("msg", event.Message))
	}

	switch {
	case event.Poll != nil:
		attrs = append(attrs,
			slog.Int("lines", event.Poll.Lines),
			slog.Int("events", event.Poll.Events),
		)
		if event.Poll.Failed {
			attrs = append(attrs, slog.Bool("poll_failed", true))
		}
	case event.Issue != nil:
		attrs = append(attrs,
			slog.String("command", event.Issue.Command),
			slog.Int("attempt", event.Issue.Attempt),
		)
		if event.Issue.CommandKey != "" {
			attrs = append(attrs, slog.String("command_key", event.Issue.CommandKey))
		}
	case event.Transition != nil:
		attrs = append(attrs,
			slog.String("from", event.Transition.From),
			slog.String("to", event.Transition.To),
		)
		if event.Transition.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Transition.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
