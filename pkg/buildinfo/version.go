// Package buildinfo provides daemon-wide identity and environment constants
// shared by every other package: version numbers, the protocol version
// embedded in lock records, and environment-driven debug toggles.
package buildinfo

import "fmt"

const (
	// VersionMajor is the current major version of the discovery daemon.
	VersionMajor = 0
	// VersionMinor is the current minor version of the discovery daemon.
	VersionMinor = 1
	// VersionPatch is the current patch version of the discovery daemon.
	VersionPatch = 0

	// ProtocolVersion identifies the lock record and IPC wire format
	// generation. It is bumped whenever LockRecord's fields or the IPC
	// command set change in an incompatible way. It is written into every
	// lock record; neither lock acquisition nor the health probe compares
	// it against an incumbent's value.
	ProtocolVersion = 1
)

// Version is the full dotted version string.
var Version string

func init() {
	Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}
