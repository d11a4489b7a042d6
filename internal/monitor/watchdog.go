package monitor

import (
	"log/slog"
)

// MaxMissedChecks is how many consecutive ticks the parent shell may be
// absent before the monitor declares the call dead.
const MaxMissedChecks = 4

// Watchdog watches the login shell that spawned the monitor. The shell dies
// without writing a Disconnected line when the carrier drops, so the monitor
// has to synthesize the session end itself. The controller calls Check once
// per tick.
type Watchdog struct {
	parent int
	procs  ProcessTable
	misses int
	logger *slog.Logger
}

// NewWatchdog creates a watchdog for the parent pid. A non-positive pid
// yields nil: no shell to watch.
func NewWatchdog(parent int, procs ProcessTable, logger *slog.Logger) *Watchdog {
	if parent <= 0 {
		return nil
	}
	return &Watchdog{
		parent: parent,
		procs:  procs,
		logger: logger.With(slog.String("component", "watchdog")),
	}
}

// Check probes the parent once. It returns true on the MaxMissedChecks-th
// consecutive miss; a sighting of the parent resets the count.
func (w *Watchdog) Check() bool {
	if w.procs.Alive(w.parent) {
		w.misses = 0
		return false
	}

	w.misses++
	w.logger.Warn("parent shell missing",
		slog.Int("parent_pid", w.parent),
		slog.Int("consecutive_misses", w.misses))
	return w.misses >= MaxMissedChecks
}
