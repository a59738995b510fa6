// Package must provides small helpers for cleanup operations whose error
// return can't be propagated (most often a deferred Close or Remove) but
// whose failure is still worth a log line rather than silent loss.
package must

import (
	"encoding/json"
	"io"
	"os"

	"github.com/aurynx/discovery/pkg/logging"
)

// Close closes c, logging a warning if it fails.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err)
	}
}

// OSRemove removes the named file, logging a warning if it fails for a
// reason other than the file already being gone.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warnf("unable to remove '%s': %s", name, err)
	}
}

// Unlock releases a locker, logging a warning if it fails.
func Unlock(locker interface{ Unlock() error }, logger *logging.Logger) {
	if err := locker.Unlock(); err != nil {
		logger.Warnf("unable to unlock: %s", err)
	}
}

// Encode writes v with the given encoder, logging a warning if it fails.
func Encode(encoder *json.Encoder, v any, logger *logging.Logger) {
	if err := encoder.Encode(v); err != nil {
		logger.Warnf("unable to encode %v: %s", v, err)
	}
}
