// Package tailer reads newly appended complete lines from the comm log.
//
// The comm log is written by a separate process while the monitor reads it.
// The tailer remembers a byte offset, reads everything past it on each pass,
// and never advances the offset over a partial trailing line — the writer
// may be mid-line at any poll. A shrinking file means rotation or truncation
// by an operator, which the monitor cannot recover from and treats as fatal.
package tailer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

// Sentinel errors.
var (
	// ErrFileShrank indicates the file is smaller than the remembered
	// offset. The monitor treats this as fatal.
	ErrFileShrank = errors.New("comm log shrank below remembered offset")

	// ErrTooManyFailures indicates MaxConsecutiveFailures passes in a row
	// failed with I/O errors.
	ErrTooManyFailures = errors.New("too many consecutive tailer failures")
)

// MaxConsecutiveFailures is the number of back-to-back failed passes after
// which the controller terminates the monitor.
const MaxConsecutiveFailures = 5

// Tailer reads complete lines appended to a file past a remembered offset.
// One Pass is one open/seek/read-to-EOF cycle; the controller calls Pass
// once per tick so its watchdog keeps running between reads.
type Tailer struct {
	path   string
	offset int64
	fails  int
	logger *slog.Logger
}

// New creates a tailer for path starting at offset zero.
func New(path string, logger *slog.Logger) *Tailer {
	return &Tailer{
		path:   path,
		logger: logger.With(slog.String("component", "tailer")),
	}
}

// Offset returns the remembered byte offset (start of the first byte not
// yet delivered as part of a complete line).
func (t *Tailer) Offset() int64 { return t.offset }

// Pass reads all bytes appended since the last pass and returns the
// complete lines among them, in order, with trailing newlines stripped.
//
// A file that does not exist yet is not an error: the pass returns no lines
// and the caller polls again. A partial trailing line is left unread — the
// offset stops at the end of the last complete line.
//
// I/O errors are counted; after MaxConsecutiveFailures consecutive failing
// passes the returned error wraps ErrTooManyFailures and the caller must
// terminate. Any successful pass resets the counter. A shrunken file fails
// immediately with ErrFileShrank.
func (t *Tailer) Pass() ([]string, error) {
	lines, err := t.readPass()
	if err != nil {
		if errors.Is(err, ErrFileShrank) {
			return nil, err
		}

		t.fails++
		t.logger.Warn("tailer pass failed",
			slog.Int("consecutive_failures", t.fails),
			slog.String("error", err.Error()),
		)
		if t.fails >= MaxConsecutiveFailures {
			return nil, fmt.Errorf("%w: %w", ErrTooManyFailures, err)
		}
		return nil, nil
	}

	t.fails = 0
	return lines, nil
}

// readPass performs one open/seek/read cycle.
func (t *Tailer) readPass() ([]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// The writer has not created the log yet; poll again.
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", t.path, err)
	}
	if st.Size() < t.offset {
		return nil, fmt.Errorf("%s: size %d < offset %d: %w",
			t.path, st.Size(), t.offset, ErrFileShrank)
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s to %d: %w", t.path, t.offset, err)
	}

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	if len(buf) == 0 {
		return nil, nil
	}

	// Push back a partial trailing line: the offset only advances past
	// newline-terminated bytes.
	complete := buf
	if last := bytes.LastIndexByte(buf, '\n'); last < 0 {
		return nil, nil
	} else if last != len(buf)-1 {
		complete = buf[:last+1]
	}

	t.offset += int64(len(complete))

	raw := bytes.Split(complete[:len(complete)-1], []byte{'\n'})
	lines := make([]string, len(raw))
	for i, b := range raw {
		lines[i] = string(bytes.TrimSuffix(b, []byte{'\r'}))
	}
	return lines, nil
}
