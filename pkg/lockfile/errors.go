package lockfile

import "errors"

// ErrWouldBlock indicates that a non-blocking lock attempt found the lock
// already held by another process.
var ErrWouldBlock = errors.New("lock already held")
