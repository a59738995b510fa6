//go:build windows

package ipcsock

import (
	"net"
	"os"

	"github.com/hectane/go-acl"
	"github.com/pkg/errors"
)

// NewListener creates a new IPC listener bound to path, removing any stale
// socket node left behind by a crashed predecessor first.
func NewListener(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to remove stale socket")
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	// Windows has no permission-bit equivalent of chmod, so the socket
	// node's ACL has to be rewritten directly to narrow access to the
	// current user, matching the owner-only restriction applied on POSIX.
	if err := acl.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, errors.Wrap(err, "unable to set socket ACL")
	}

	return listener, nil
}
