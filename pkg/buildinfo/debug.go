package buildinfo

import "os"

// DebugEnabled controls whether debug-level diagnostics are enabled. It is
// set automatically from the DISCOVERY_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("DISCOVERY_DEBUG") == "1"
}
