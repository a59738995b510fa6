//go:build !windows

package lockfile

import (
	"golang.org/x/sys/unix"
)

// Lock attempts to acquire the advisory file lock. If block is false and the
// lock is already held elsewhere, it returns ErrWouldBlock immediately rather
// than waiting.
func (l *Locker) Lock(block bool) error {
	how := unix.LOCK_EX
	if !block {
		how |= unix.LOCK_NB
	}
	if err := unix.Flock(int(l.file.Fd()), how); err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// Unlock releases the advisory file lock.
func (l *Locker) Unlock() error {
	return unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
}
