// Package supervisor composes the Lock Manager, Scanner, Incremental Index,
// Cache Store, Watcher, and IPC Server into the daemon's boot sequence and
// steady-state event loop described in the specification's Daemon
// Supervisor module. It is the one place in the program that mutates the
// MetadataIndex and the Cache Store, keeping both single-writer.
package supervisor

import "github.com/aurynx/discovery/pkg/logging"

// Config captures discovery:scan's flags after validation.
type Config struct {
	// Roots are the one or more source directories to scan.
	Roots []string
	// Output is the destination path for the rendered cache artifact.
	Output string
	// IgnorePatterns are additional doublestar glob patterns (from repeated
	// --ignore flags) layered on top of the built-in VCS defaults. Each
	// root's .gitignore/.hgignore/.bzrignore rules and .discoveryignore.hujson
	// supplement are layered after them and take precedence.
	IgnorePatterns []string
	// Watch enables daemon mode: arm the Watcher, accept IPC connections,
	// and keep running until signaled. When false, the Supervisor performs
	// one cold scan, writes the artifact, and returns.
	Watch bool
	// SocketPath is the IPC socket path. Required when Watch is true.
	SocketPath string
	// PidPath is the advisory pid file path. Required when Watch is true.
	PidPath string
	// Incremental reuses a persisted fingerprint store and cache mirror
	// from a prior run, when present, to avoid reparsing unchanged files.
	Incremental bool
	// Pretty requests indented, human-readable array formatting from the
	// Formatter instead of the compact default.
	Pretty bool
	// Force unlinks a stale lock file before acquisition without going
	// through the reap-and-retry path, per an explicit user affirmation.
	Force bool
	// Strict turns a parser failure on any file during the initial scan
	// into a fatal boot error (exit code 4) rather than a logged, per-file
	// omission.
	Strict bool

	Logger *logging.Logger
}
