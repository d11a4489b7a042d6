package monitor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ProcessTable abstracts pid probing and killing so the watchdog and the
// lock eviction protocol are testable without real processes.
type ProcessTable interface {
	// Alive reports whether pid currently exists.
	Alive(pid int) bool

	// Kill sends SIGKILL to pid.
	Kill(pid int) error
}

// UnixProcesses is the real process table.
type UnixProcesses struct{}

var _ ProcessTable = UnixProcesses{}

// Alive probes with a null signal. EPERM means the process exists but
// belongs to someone else; it still counts as alive.
func (UnixProcesses) Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Kill sends SIGKILL.
func (UnixProcesses) Kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
