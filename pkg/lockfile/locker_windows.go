//go:build windows

package lockfile

import (
	"golang.org/x/sys/windows"
)

// Lock attempts to acquire the advisory file lock. If block is false and the
// lock is already held elsewhere, it returns ErrWouldBlock immediately rather
// than waiting.
func (l *Locker) Lock(block bool) error {
	var flags uint32 = windows.LOCKFILE_EXCLUSIVE_LOCK
	if !block {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(l.file.Fd()), flags, 0, 1, 0, ol)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// Unlock releases the advisory file lock.
func (l *Locker) Unlock() error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, ol)
}
