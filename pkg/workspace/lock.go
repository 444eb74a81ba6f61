package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

const lockFileName = ".lock"

// Lock is an advisory, PID-file-based lock on a workspace (spec.md §5:
// "implementers may add an advisory file lock on `.tabdiff/`"). It is not
// an OS-level flock — a stale lock from a killed process is detected by
// checking whether its recorded PID is still alive and cleared
// automatically, at the cost of the usual PID-reuse race any PID-file
// lock accepts.
type Lock struct {
	path string
}

func lockPath(w *Workspace) string { return filepath.Join(w.Dir, lockFileName) }

// Acquire takes the workspace's advisory lock, clearing a stale lock file
// left behind by a process that is no longer running. Returns an error
// naming the holding PID if the lock is genuinely held.
func Acquire(w *Workspace) (*Lock, error) {
	path := lockPath(w)

	if pid, err := readLockPID(path); err == nil {
		if processAlive(pid) {
			return nil, errs.New(errs.KindIOError, fmt.Sprintf("workspace locked by process %d (%s)", pid, path))
		}
		os.Remove(path) // stale: holder is gone
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			// Lost a race with another process acquiring between our
			// staleness check and this create.
			if pid, perr := readLockPID(path); perr == nil {
				return nil, errs.New(errs.KindIOError, fmt.Sprintf("workspace locked by process %d (%s)", pid, path))
			}
		}
		return nil, errs.Wrap(errs.KindIOError, path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		os.Remove(path)
		return nil, errs.Wrap(errs.KindIOError, path, err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindIOError, l.path, err)
	}
	return nil
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// processAlive reports whether pid names a running process, using
// signal 0 (no-op, delivery-check only) the standard Unix idiom for a
// liveness probe without affecting the target.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
