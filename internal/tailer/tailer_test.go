package tailer_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/seaglider-ops/commwatch/internal/tailer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// appendTo appends text to the file at path, creating it if needed.
func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestTailerDeliversCompleteLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comm.log")
	tl := tailer.New(path, testLogger())

	appendTo(t, path, "Connected at 2024-01-15T00:00:00Z\nCounter: dive=1\n")

	lines, err := tl.Pass()
	if err != nil {
		t.Fatalf("Pass error: %v", err)
	}
	want := []string{"Connected at 2024-01-15T00:00:00Z", "Counter: dive=1"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}

	// Nothing new: empty pass.
	lines, err = tl.Pass()
	if err != nil {
		t.Fatalf("Pass error: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("second pass lines = %v, want none", lines)
	}
}

func TestTailerMissingFilePolls(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comm.log")
	tl := tailer.New(path, testLogger())

	for i := 0; i < 3; i++ {
		lines, err := tl.Pass()
		if err != nil {
			t.Fatalf("Pass on missing file error: %v", err)
		}
		if len(lines) != 0 {
			t.Fatalf("Pass on missing file lines = %v, want none", lines)
		}
	}

	appendTo(t, path, "Connected at 2024-01-15T00:00:00Z\n")
	lines, err := tl.Pass()
	if err != nil {
		t.Fatalf("Pass error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want one", lines)
	}
}

func TestTailerPartialTrailingLine(t *testing.T) {
	t.Parallel()

	// S5: the writer appends "Conn", the tailer polls, then the writer
	// completes the line. Exactly one Connected record results.
	path := filepath.Join(t.TempDir(), "comm.log")
	tl := tailer.New(path, testLogger())

	appendTo(t, path, "Conn")
	lines, err := tl.Pass()
	if err != nil {
		t.Fatalf("Pass error: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("partial line delivered: %v", lines)
	}

	appendTo(t, path, "ected at 2024-01-15T00:00:00Z\n")
	lines, err = tl.Pass()
	if err != nil {
		t.Fatalf("Pass error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "Connected at 2024-01-15T00:00:00Z" {
		t.Fatalf("lines = %v, want the single completed line", lines)
	}
}

func TestTailerPartialLineAfterCompleteOnes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comm.log")
	tl := tailer.New(path, testLogger())

	appendTo(t, path, "Counter: dive=1\nDisconn")
	lines, err := tl.Pass()
	if err != nil {
		t.Fatalf("Pass error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "Counter: dive=1" {
		t.Fatalf("lines = %v, want only the complete line", lines)
	}

	appendTo(t, path, "ected at 2024-01-15T00:05:00Z\n")
	lines, err = tl.Pass()
	if err != nil {
		t.Fatalf("Pass error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "Disconnected at 2024-01-15T00:05:00Z" {
		t.Fatalf("lines = %v, want the completed line", lines)
	}
}

func TestTailerShrinkIsFatal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "comm.log")
	tl := tailer.New(path, testLogger())

	appendTo(t, path, "Connected at 2024-01-15T00:00:00Z\n")
	if _, err := tl.Pass(); err != nil {
		t.Fatalf("Pass error: %v", err)
	}

	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	_, err := tl.Pass()
	if !errors.Is(err, tailer.ErrFileShrank) {
		t.Errorf("Pass after shrink error = %v, want ErrFileShrank", err)
	}
}

func TestTailerConsecutiveFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "comm.log")
	tl := tailer.New(path, testLogger())

	appendTo(t, path, "Connected at 2024-01-15T00:00:00Z\n")
	if _, err := tl.Pass(); err != nil {
		t.Fatalf("Pass error: %v", err)
	}

	// Make the file unreadable to force open failures. Transient failures
	// are swallowed until the fifth consecutive one.
	if err := os.Chmod(path, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission failures cannot be simulated")
	}

	var err error
	for i := 0; i < tailer.MaxConsecutiveFailures; i++ {
		_, err = tl.Pass()
		if i < tailer.MaxConsecutiveFailures-1 && err != nil {
			t.Fatalf("pass %d error = %v, want nil until the limit", i+1, err)
		}
	}
	if !errors.Is(err, tailer.ErrTooManyFailures) {
		t.Errorf("final error = %v, want ErrTooManyFailures", err)
	}

	// A successful pass resets the counter.
	if chErr := os.Chmod(path, 0o644); chErr != nil {
		t.Fatalf("chmod back: %v", chErr)
	}
}
