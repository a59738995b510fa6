package daemon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// stateDirectoryName is the subdirectory of the system temporary directory
// under which lock and incremental-index state files are rooted. A
// conventional temporary directory is used rather than a user config
// directory because lock identity must be stable and world-visible enough
// for a --force invocation to find it, matching the lock file's description
// in §6 ("rooted in a conventional temporary directory").
const stateDirectoryName = "discovery-daemon"

// stateDirectory returns the root directory for lock and index state,
// creating it if necessary.
func stateDirectory() (string, error) {
	root := filepath.Join(os.TempDir(), stateDirectoryName)
	if err := os.MkdirAll(root, 0700); err != nil {
		return "", fmt.Errorf("unable to create state directory: %w", err)
	}
	return root, nil
}

// OutputKey computes a stable, filesystem-safe identifier for a given output
// path. Two invocations with the same canonicalized output path always
// derive the same key, and the key does not itself reveal the full output
// path (it is a hash), avoiding pathological path-length issues on the
// lock/socket directory.
func OutputKey(canonicalOutputPath string) string {
	sum := sha256.Sum256([]byte(canonicalOutputPath))
	return hex.EncodeToString(sum[:])[:32]
}

// LockPath computes the path of the lock file for a given canonicalized
// output path, creating any intermediate directories as necessary.
func LockPath(canonicalOutputPath string) (string, error) {
	root, err := stateDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, OutputKey(canonicalOutputPath)+".lock"), nil
}

// FingerprintStorePath computes the path of the persistent fingerprint store
// (used when --incremental is set) for a given canonicalized output path.
func FingerprintStorePath(canonicalOutputPath string) (string, error) {
	root, err := stateDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, OutputKey(canonicalOutputPath)+".fingerprints.db"), nil
}

// Canonicalize resolves path to an absolute, symlink-free form, closing the
// Open Question in §9: two `--output` flags that are symlink aliases of the
// same file canonicalize to the same string and therefore derive the same
// lock path, so the second invocation observes ordinary lock contention
// rather than silently double-serving.
func Canonicalize(path string) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("unable to compute absolute path: %w", err)
	}
	// EvalSymlinks requires the path to exist. The output file may not exist
	// yet on a first run, so fall back to resolving the parent directory
	// (which must exist) and rejoining the base name.
	if resolved, err := filepath.EvalSymlinks(absolute); err == nil {
		return resolved, nil
	}
	dir, base := filepath.Split(absolute)
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		// Parent directory doesn't exist either; nothing more we can
		// canonicalize, so return the absolute path as-is.
		return absolute, nil
	}
	return filepath.Join(resolvedDir, base), nil
}
