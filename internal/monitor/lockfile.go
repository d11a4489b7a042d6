package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LockFileName is the singleton lock's file name inside the mission
// directory.
const LockFileName = ".commwatch.lock"

// Sentinel errors.
var (
	// ErrEvictionFailed indicates the previous monitor survived SIGKILL
	// past the eviction deadline. The new monitor must not proceed.
	ErrEvictionFailed = errors.New("could not evict previous monitor")
)

// DefaultEvictWait is how long an evicted peer gets to disappear.
const DefaultEvictWait = 10 * time.Second

// Lock is the per-mission singleton: a file holding the owning pid, created
// with exclusive-create so two monitors racing for the same mission cannot
// both win. A newer monitor evicts an older one — the operator starting a
// fresh monitor is the authority on which one should live.
type Lock struct {
	path   string
	procs  ProcessTable
	logger *slog.Logger

	// EvictWait bounds the wait for an evicted peer to exit. Zero means
	// DefaultEvictWait.
	EvictWait time.Duration
}

// NewLock creates a lock at path.
func NewLock(path string, procs ProcessTable, logger *slog.Logger) *Lock {
	return &Lock{
		path:   path,
		procs:  procs,
		logger: logger.With(slog.String("component", "lock")),
	}
}

// Acquire takes the lock for pid, evicting a live peer if one holds it.
//
// The protocol on conflict: read the peer pid; a dead or unreadable peer is
// removed and the create retried; a live peer receives SIGKILL and gets
// EvictWait to disappear, after which acquisition fails with
// ErrEvictionFailed.
func (l *Lock) Acquire(pid int) error {
	wait := l.EvictWait
	if wait <= 0 {
		wait = DefaultEvictWait
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", pid)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(l.path)
				return fmt.Errorf("write lock %s: %w", l.path, errors.Join(werr, cerr))
			}
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create lock %s: %w", l.path, err)
		}

		peer, perr := l.readPeer()
		if perr != nil || peer == pid || !l.procs.Alive(peer) {
			// Stale or unreadable lock: remove and retry.
			l.logger.Warn("removing stale lock",
				slog.Int("peer_pid", peer))
			os.Remove(l.path)
			continue
		}

		l.logger.Warn("evicting running monitor",
			slog.Int("peer_pid", peer))
		if err := l.procs.Kill(peer); err != nil {
			return fmt.Errorf("kill peer %d: %w", peer, err)
		}
		if !l.awaitExit(peer, wait) {
			return fmt.Errorf("peer %d: %w", peer, ErrEvictionFailed)
		}
		os.Remove(l.path)
	}

	return fmt.Errorf("lock %s: %w", l.path, ErrEvictionFailed)
}

// Release removes the lock file.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("lock removal failed", slog.String("error", err.Error()))
	}
}

// readPeer reads the pid recorded in the lock file.
func (l *Lock) readPeer() (int, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

// awaitExit polls until the peer is gone or the deadline passes.
func (l *Lock) awaitExit(peer int, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !l.procs.Alive(peer) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !l.procs.Alive(peer)
}
