// Package ipcsock provides the low-level local stream socket used by the IPC
// Server (§4.6): a listener bound to a filesystem path with narrow
// permissions, and a dialer used both by clients and by the Lock Manager's
// health probe. It carries no framing of its own — that's the job of the
// package that speaks the line protocol on top of it.
package ipcsock

import (
	"context"
	"net"
	"time"
)

// RecommendedDialTimeout is the recommended timeout for establishing an IPC
// connection when probing for a live daemon.
const RecommendedDialTimeout = 1 * time.Second

// DialContext establishes an IPC connection, failing if the context expires
// first.
func DialContext(ctx context.Context, path string) (net.Conn, error) {
	dialer := &net.Dialer{}
	return dialer.DialContext(ctx, "unix", path)
}

// DialTimeout establishes an IPC connection, timing out after the specified
// duration.
func DialTimeout(path string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return DialContext(ctx, path)
}
