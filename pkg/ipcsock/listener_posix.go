//go:build !windows

package ipcsock

import (
	"net"
	"os"

	"github.com/pkg/errors"
)

// NewListener creates a new IPC listener bound to path, removing any stale
// socket node left behind by a crashed predecessor first. Callers must only
// invoke this after acquiring the daemon lock, since a stale socket can only
// safely be assumed dead once the lock confirms no live owner exists.
func NewListener(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to remove stale socket")
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	// Narrow the socket node's permissions to owner-only, the least
	// permissive setting consistent with same-user client access.
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, errors.Wrap(err, "unable to set socket permissions")
	}

	return listener, nil
}
