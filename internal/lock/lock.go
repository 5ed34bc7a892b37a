// Package lock implements the canonical directory's advisory exclusive
// lock: `.opsd.lock` for the daemon, `.ops.lock` for offline CLI
// writes. On POSIX this is an flock-style exclusive lock, released
// automatically by the OS on process exit (even SIGKILL), grounded on
// the teacher's daemon-instance flock.
package lock

import "os"

// Lock holds an exclusive advisory lock on a file. The OS releases it
// automatically when the process exits.
type Lock struct {
	path string
	file *os.File
}

// Path returns the path to the lock file.
func (l *Lock) Path() string {
	return l.path
}
