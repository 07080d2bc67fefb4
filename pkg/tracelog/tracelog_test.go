package tracelog_test

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/tracelog"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ev := tracelog.Event{
		Timestamp: time.Date(2026, 8, 27, 10, 0, 0, 123456789, time.UTC),
		RunID:     "run-1",
		Identity:  "CPE-1",
		Category:  tracelog.CategoryIssue,
		Step:      "CommandIssued",
		Issue: &tracelog.IssueData{
			Command:    "Reboot",
			CommandKey: "bf-1",
			Attempt:    2,
		},
	}

	data, err := tracelog.EncodeEvent(ev)
	require.NoError(t, err)

	got, err := tracelog.DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev.RunID, got.RunID)
	assert.Equal(t, ev.Category, got.Category)
	require.NotNil(t, got.Issue)
	assert.Equal(t, "Reboot", got.Issue.Command)
	assert.Equal(t, 2, got.Issue.Attempt)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.trace")

	logger, err := tracelog.NewFileLogger(path)
	require.NoError(t, err)

	base := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	logger.Log(tracelog.Event{Timestamp: base, RunID: "r1", Identity: "CPE-1", Category: tracelog.CategoryPoll, Poll: &tracelog.PollData{Lines: 4, Events: 1}})
	logger.Log(tracelog.Event{Timestamp: base.Add(time.Second), RunID: "r1", Identity: "CPE-1", Category: tracelog.CategoryMatch, Step: "AwaitingPostRebootInform"})
	logger.Log(tracelog.Event{Timestamp: base.Add(2 * time.Second), RunID: "r2", Identity: "CPE-2", Category: tracelog.CategoryError, Error: &tracelog.ErrorData{Message: "boom"}})
	require.NoError(t, logger.Close())

	// Close is idempotent and later Log calls are ignored.
	require.NoError(t, logger.Close())
	logger.Log(tracelog.Event{RunID: "ignored"})

	reader, err := tracelog.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var events []tracelog.Event
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, tracelog.CategoryPoll, events[0].Category)
	assert.Equal(t, "r2", events[2].RunID)
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.trace")

	logger, err := tracelog.NewFileLogger(path)
	require.NoError(t, err)
	for i, id := range []string{"r1", "r2", "r1"} {
		logger.Log(tracelog.Event{
			Timestamp: time.Date(2026, 8, 27, 10, 0, i, 0, time.UTC),
			RunID:     id,
			Category:  tracelog.CategoryState,
		})
	}
	require.NoError(t, logger.Close())

	reader, err := tracelog.NewFilteredReader(path, tracelog.Filter{RunID: "r1"})
	require.NoError(t, err)
	defer reader.Close()

	count := 0
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "r1", ev.RunID)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestMultiLoggerFansOut(t *testing.T) {
	var buf bytes.Buffer
	slogger := tracelog.NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	var captured []tracelog.Event
	capture := captureLogger{events: &captured}

	multi := tracelog.NewMultiLogger(slogger, capture, tracelog.NoopLogger{})
	multi.Log(tracelog.Event{
		Category:   tracelog.CategoryState,
		Identity:   "CPE-1",
		Transition: &tracelog.TransitionData{From: "Idle", To: "CommandIssued"},
	})

	require.Len(t, captured, 1)
	assert.Contains(t, buf.String(), "CommandIssued")
	assert.Contains(t, buf.String(), "category=STATE")
}

type captureLogger struct {
	events *[]tracelog.Event
}

func (c captureLogger) Log(event tracelog.Event) {
	*c.events = append(*c.events, event)
}
