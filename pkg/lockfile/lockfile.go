// Package lockfile implements single-instance PID locks. Each Gloop role
// (daemon, shell) writes its PID to a lock file at startup; a second process
// of the same role refuses to start while the recorded PID is alive. Locks
// left behind by a dead process are treated as absent and reclaimed.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by Acquire when another live process holds
// the lock. Use errors.Is to detect it; the wrapped message carries the PID.
var ErrAlreadyRunning = errors.New("already running")

// Lock is a held single-instance lock.
type Lock struct {
	path string
	pid  int
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// PID returns the PID recorded in the lock file.
func (l *Lock) PID() int { return l.pid }

// Acquire takes the single-instance lock at path. If the file exists and its
// PID belongs to a live process, ErrAlreadyRunning is returned. A lock whose
// process is dead, or whose contents do not parse as an integer, is stale:
// it is removed and acquisition proceeds.
func Acquire(path string) (*Lock, error) {
	if pid, ok := readPID(path); ok {
		if IsProcessAlive(pid) {
			return nil, fmt.Errorf("pid %d holds %s: %w", pid, filepath.Base(path), ErrAlreadyRunning)
		}
		// Stale lock: owner died without cleanup.
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return nil, fmt.Errorf("write lock %s: %w", path, err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the lock file. It is idempotent: releasing an already
// released lock is not an error.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock %s: %w", l.path, err)
	}
	return nil
}

// readPID reads and parses the PID from the lock file. A missing file or a
// corrupted (non-integer) payload reports ok=false; corruption is treated
// identically to staleness by Acquire.
func readPID(path string) (pid int, ok bool) {
	data, err := os.ReadFile(path) //nolint:gosec // lock path is controlled by the application
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Corrupted lock file: remove so the caller can proceed.
		_ = os.Remove(path)
		return 0, false
	}
	return pid, true
}

// IsProcessAlive checks whether a process with the given PID is running.
// On Unix, sending signal 0 checks for existence without actually signaling.
func IsProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// HolderPID returns the PID recorded at path and whether that process is
// alive. Used by status commands to report on a running daemon or shell.
func HolderPID(path string) (pid int, alive bool) {
	pid, ok := readPID(path)
	if !ok {
		return 0, false
	}
	return pid, IsProcessAlive(pid)
}
