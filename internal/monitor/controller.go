// Package monitor sequences the run: singleton lock, scan-back over the
// existing comm log, then the tick loop feeding the tailer into the reducer
// while the watchdog keeps an eye on the parent shell.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/seaglider-ops/commwatch/internal/comms"
	"github.com/seaglider-ops/commwatch/internal/metrics"
	"github.com/seaglider-ops/commwatch/internal/tailer"
)

// MarkerFileName is the call-in-progress marker the login shell maintains.
// The monitor removes it when it synthesizes a disconnect.
const MarkerFileName = ".connected"

// DefaultTick is the poll interval.
const DefaultTick = time.Second

// missionDirPattern extracts the glider serial from a mission directory
// named sgNNN.
var missionDirPattern = regexp.MustCompile(`^sg(\d{1,4})$`)

// Options wires a Controller.
type Options struct {
	// MissionDir is the mission working directory.
	MissionDir string

	// LogPath is the comm log. Defaults to <MissionDir>/comm.log.
	LogPath string

	// Lock is the singleton lock. Required.
	Lock *Lock

	// ParentPID is the spawning shell's pid; zero disables the watchdog.
	ParentPID int

	// Procs probes processes. Required when ParentPID is set.
	Procs ProcessTable

	// Reducer folds records into sessions. Required.
	Reducer *comms.Reducer

	// Collector records metrics. Nil disables recording.
	Collector *metrics.Collector

	// Tick overrides the poll interval. Zero means DefaultTick.
	Tick time.Duration

	// Logger is the parent logger.
	Logger *slog.Logger
}

// Controller owns the monitor lifecycle.
type Controller struct {
	missionDir string
	logPath    string
	lock       *Lock
	watchdog   *Watchdog
	tailer     *tailer.Tailer
	reducer    *comms.Reducer
	collector  *metrics.Collector
	tick       time.Duration
	logger     *slog.Logger
}

// New creates a controller.
func New(opts Options) *Controller {
	logPath := opts.LogPath
	if logPath == "" {
		logPath = filepath.Join(opts.MissionDir, "comm.log")
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	logger := opts.Logger.With(slog.String("component", "monitor"))

	return &Controller{
		missionDir: opts.MissionDir,
		logPath:    logPath,
		lock:       opts.Lock,
		watchdog:   NewWatchdog(opts.ParentPID, opts.Procs, logger),
		tailer:     tailer.New(logPath, opts.Logger),
		reducer:    opts.Reducer,
		collector:  opts.Collector,
		tick:       tick,
		logger:     logger,
	}
}

// Run acquires the lock, scans back over the existing log without firing
// callbacks, then polls until a live Disconnected record closes the session,
// the shell disappears, the context is canceled, or the tailer gives up. A
// nil return is a clean exit (process code 0); any error is fatal (process
// code 1).
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		// A panic anywhere in the loop must still release the lock and
		// leave a trace; the process exits nonzero.
		if r := recover(); r != nil {
			c.logger.Error("monitor panicked", slog.Any("panic", r))
			err = fmt.Errorf("monitor panic: %v", r)
		}
	}()

	if err := c.lock.Acquire(os.Getpid()); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer c.lock.Release()

	if id, ok := gliderIDFromDir(c.missionDir); ok {
		c.reducer.SetGliderID(id)
	}

	// Scan-back: fold the whole existing log silently so a restart does
	// not replay old notifications.
	c.reducer.SetFirstTime(true)
	lines, err := c.tailer.Pass()
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	c.apply(lines)
	c.reducer.SetFirstTime(false)
	c.logger.Info("scan-back complete",
		slog.Int("lines", len(lines)),
		slog.Int64("offset", c.tailer.Offset()))

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if c.watchdog != nil && c.watchdog.Check() {
				return c.shellDisappeared()
			}

			lines, err := c.tailer.Pass()
			if err != nil {
				if c.collector != nil {
					c.collector.IncTailerFailure()
				}
				return fmt.Errorf("tailer: %w", err)
			}
			if c.apply(lines) {
				c.logger.Info("session disconnected, monitor done")
				return nil
			}
		}
	}
}

// apply lexes and reduces a batch of lines. It reports whether a live
// Disconnected record closed the session; scan-back disconnects from earlier
// sessions do not count.
func (c *Controller) apply(lines []string) bool {
	disconnected := false
	for _, line := range lines {
		rec, err := comms.ParseLine(line)
		if err != nil {
			c.logger.Warn("malformed log line",
				slog.String("line", line),
				slog.String("error", err.Error()))
			if c.collector != nil {
				c.collector.IncParseError()
			}
		}
		if c.collector != nil {
			c.collector.IncLine(rec.Kind.String())
		}
		_, open := c.reducer.Session()
		c.reducer.Apply(rec)
		if rec.Kind == comms.KindDisconnected && open && !c.reducer.FirstTime() {
			disconnected = true
		}
	}
	return disconnected
}

// shellDisappeared ends the session on the monitor's own authority: append
// a synthetic disconnect line, fold it so the disconnected callback runs the
// same as for an observed disconnect, and drop the call marker. The exit is
// clean.
func (c *Controller) shellDisappeared() error {
	line := fmt.Sprintf("Disconnected at %s (shell_disappeared)\n",
		time.Now().UTC().Format(time.RFC3339))

	f, err := os.OpenFile(c.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Error("synthetic disconnect append failed",
			slog.String("error", err.Error()))
	} else {
		_, werr := f.WriteString(line)
		if cerr := f.Close(); werr != nil || cerr != nil {
			c.logger.Error("synthetic disconnect write failed",
				slog.String("error", errors.Join(werr, cerr).Error()))
		}
	}

	if lines, err := c.tailer.Pass(); err == nil {
		c.apply(lines)
	}

	marker := filepath.Join(c.missionDir, MarkerFileName)
	if err := os.Remove(marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("marker removal failed", slog.String("error", err.Error()))
	}

	c.logger.Info("shell disappeared, session closed")
	return nil
}

// gliderIDFromDir extracts the serial from a mission directory named sgNNN.
func gliderIDFromDir(dir string) (int, bool) {
	m := missionDirPattern.FindStringSubmatch(filepath.Base(dir))
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
