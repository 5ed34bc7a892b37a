//go:build unix

package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ops-brain/opsd/internal/opserr"
)

// AcquireNoWait tries once to take an exclusive, non-blocking lock on
// path, writing "pid=<pid>\n" into the file on success. This is the
// daemon's instance-lock policy: timeout 0, fail fast.
func AcquireNoWait(path string) (*Lock, error) {
	return acquire(path, 0, 0)
}

// AcquireWithTimeout polls for the lock at ~100ms intervals until
// acquired or timeout elapses. This is the offline CLI's write-lock
// policy.
func AcquireWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	return acquire(path, timeout, 100*time.Millisecond)
}

func acquire(path string, timeout, pollInterval time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, opserr.IOWrap(err, "create lock directory for %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304 - path from workspace config
	if err != nil {
		return nil, opserr.IOWrap(err, "open lock file %s", path)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			_ = f.Close()
			return nil, opserr.IOWrap(err, "acquire lock %s", path)
		}
		if pollInterval <= 0 || time.Now().After(deadline) {
			_ = f.Close()
			return nil, opserr.IO("lock held by another process: %s", path)
		}
		time.Sleep(pollInterval)
	}

	if err := f.Truncate(0); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, opserr.IOWrap(err, "truncate lock file %s", path)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, opserr.IOWrap(err, "write lock file %s", path)
	}
	_ = f.Sync()

	return &Lock{path: path, file: f}, nil
}

// Release releases the lock and removes the lock file. Safe to call
// more than once.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	err := f.Close()
	_ = os.Remove(l.path)
	return err
}

// HeldPID reads the pid recorded in an existing, currently-locked lock
// file, for diagnostics; returns 0 if the file is absent or unlocked.
func HeldPID(path string) int {
	f, err := os.OpenFile(path, os.O_RDONLY, 0) //nolint:gosec // G304 - path from workspace config
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return 0
	}

	data := make([]byte, 64)
	n, _ := f.Read(data)
	var pid int
	_, _ = fmt.Sscanf(string(data[:n]), "pid=%d", &pid)
	return pid
}

// IsLocked reports whether path is currently held by another process.
func IsLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_RDONLY, 0) //nolint:gosec // G304 - path from workspace config
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return true
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false
}
