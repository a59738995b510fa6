// Package lockfile provides a cross-process advisory file lock. It is the
// lowest layer of the single-writer guarantee described for the daemon's
// output cache: the identity of a held lock is the inode of the open file
// descriptor, never the path by which it was opened, because the path can be
// unlinked and recreated out from under a holder.
package lockfile

import (
	"os"

	"github.com/pkg/errors"
)

// Locker provides file locking facilities around a single on-disk sentinel
// file.
type Locker struct {
	// file is the underlying file object to be locked.
	file *os.File
}

// NewLocker opens (creating if necessary) the file at path and returns a
// Locker around it in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, permissions)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}
	return &Locker{file: file}, nil
}

// Path returns the path the locker was opened with.
func (l *Locker) Path() string {
	return l.file.Name()
}

// File exposes the underlying file handle, primarily so callers can rewrite
// its contents (e.g. the lock record) after acquiring the lock and so that
// inode verification can re-stat the open descriptor.
func (l *Locker) File() *os.File {
	return l.file
}

// Close closes the underlying file. It does not release the lock; call
// Unlock first.
func (l *Locker) Close() error {
	return l.file.Close()
}
