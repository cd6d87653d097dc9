// Package lockfile guards a MemberFlow state directory against concurrent use.
//
// SQLite allows a single writer, so two instances sharing one state directory
// would contend for the database. The lock is an flock on a file in the
// directory and is dropped by the kernel when the process exits.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// FileName is the lock file created in the state directory.
const FileName = "memberflow.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// HeldError reports that another process holds the lock.
type HeldError struct {
	Path  string
	Owner string
	Err   error
}

func (e *HeldError) Error() string {
	msg := "state directory is in use by another MemberFlow instance (lock " + e.Path
	if e.Owner != "" {
		msg += ", " + e.Owner
	}
	return msg + "); remove the lock file only if that instance is gone"
}

func (e *HeldError) Unwrap() error { return e.Err }

// Acquire takes an exclusive, non-blocking lock on dir, creating it if needed.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)

	// O_TRUNC is deferred until the lock is ours so the owner's pid survives a failed attempt.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		owner := describeOwner(path)
		slog.Error("lockfile.Acquire: state directory already locked", "path", path, "owner", owner)
		return nil, &HeldError{Path: path, Owner: owner, Err: err}
	}

	if err := f.Truncate(0); err == nil {
		_, err = f.WriteAt([]byte("pid="+strconv.Itoa(os.Getpid())+"\n"), 0)
		if err != nil {
			slog.Warn("lockfile.Acquire: failed to record pid", "path", path, "error", err)
		}
	}

	slog.Info("lockfile.Acquire: state directory locked", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the lock so a waiting instance never sees our pid.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "path", l.path, "error", err)
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	slog.Debug("Lock.Release: state directory unlocked", "path", l.path)
	return err
}

// describeOwner reads the pid recorded by the current holder.
func describeOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid := ownerPID(string(data))
	if pid <= 0 {
		return ""
	}
	if processAlive(pid) {
		return fmt.Sprintf("pid %d running", pid)
	}
	return fmt.Sprintf("pid %d not running", pid)
}

func ownerPID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "pid="); ok {
			if pid, err := strconv.Atoi(v); err == nil {
				return pid
			}
		}
	}
	return 0
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
