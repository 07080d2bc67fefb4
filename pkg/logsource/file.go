package logsource

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultTailWindow is the number of bytes read from the end of the file
// on each poll when no window is configured.
const DefaultTailWindow = 256 * 1024

// File is a Source backed by a log file on disk (e.g., an ACS log mounted
// or synced from the server). Each poll opens the file, reads the tail
// window, and closes it again, so an aborted run never holds the file open
// and a subsequent run can reuse the same path immediately.
type File struct {
	path   string
	window int64
}

// NewFile creates a file-backed source reading the last window bytes per
// poll. window <= 0 selects DefaultTailWindow.
func NewFile(path string, window int64) *File {
	if window <= 0 {
		window = DefaultTailWindow
	}
	return &File{path: path, window: window}
}

// Poll reads the current tail of the file.
func (f *File) Poll(ctx context.Context) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, &TransportError{Op: "stat", Err: err}
	}

	offset := int64(0)
	truncated := false
	if info.Size() > f.window {
		offset = info.Size() - f.window
		truncated = true
	}
	if _, err := fh.Seek(offset, io.SeekStart); err != nil {
		return nil, &TransportError{Op: "seek", Err: err}
	}

	data, err := io.ReadAll(fh)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}

	now := time.Now()
	raw := bytes.Split(data, []byte("\n"))

	// When the window starts mid-file the first chunk is a partial line.
	if truncated && len(raw) > 0 {
		raw = raw[1:]
	}

	lines := make([]Line, 0, len(raw))
	for _, b := range raw {
		text := strings.TrimRight(string(b), "\r")
		if text == "" {
			continue
		}
		lines = append(lines, Line{Text: text, Received: now})
	}
	return lines, nil
}

// Compile-time interface satisfaction check.
var _ Source = (*File)(nil)
