//go:build !unix

package lock

import "time"

// AcquireNoWait is unimplemented on non-unix platforms; the daemon
// instance lock relies on flock semantics this build lacks.
func AcquireNoWait(path string) (*Lock, error) {
	return nil, nil
}

// AcquireWithTimeout is unimplemented on non-unix platforms.
func AcquireWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	return nil, nil
}

// Release is a no-op on non-unix platforms.
func (l *Lock) Release() error {
	return nil
}

// HeldPID always returns 0 on non-unix platforms.
func HeldPID(path string) int {
	return 0
}

// IsLocked always returns false on non-unix platforms.
func IsLocked(path string) bool {
	return false
}
