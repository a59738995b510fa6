// Package fingerprint implements the Incremental Index: a per-file
// fingerprint store that turns a coarse filesystem change batch into the
// precise set of files that actually need re-parsing.
package fingerprint

import "time"

// Fingerprint is the (size, mtime[, content_hash]) triple used to detect
// whether a file's content has plausibly changed since it was last parsed.
type Fingerprint struct {
	Size int64
	// ModTime is truncated to the precision the source filesystem reports;
	// two fingerprints with equal Size and ModTime are considered equal
	// unless ContentHash is populated on at least one of them.
	ModTime time.Time
	// ContentHash, when non-empty, is the sole equality key, closing the
	// sub-second-mtime-collision gap the spec documents as an accepted
	// default trade-off.
	ContentHash string
}

// Equal reports whether two fingerprints should be considered the same file
// state, per the equality rule: content hash is authoritative when either
// side carries one, otherwise (size, mtime) is compared.
func Equal(a, b Fingerprint) bool {
	if a.ContentHash != "" || b.ContentHash != "" {
		return a.ContentHash == b.ContentHash
	}
	return a.Size == b.Size && a.ModTime.Equal(b.ModTime)
}

// Index holds the current path -> Fingerprint map and reconciles it against
// a freshly observed state.
type Index struct {
	entries map[string]Fingerprint
}

// NewIndex returns an empty Index. Starting empty means the first
// reconciliation always treats every observed path as needing a parse,
// matching the cold-start contract.
func NewIndex() *Index {
	return &Index{entries: make(map[string]Fingerprint)}
}

// NewIndexFromEntries returns an Index seeded with a previously persisted
// fingerprint map, used on an --incremental warm start.
func NewIndexFromEntries(entries map[string]Fingerprint) *Index {
	if entries == nil {
		entries = make(map[string]Fingerprint)
	}
	return &Index{entries: entries}
}

// Reconcile compares current against the index's known state and returns the
// paths that need re-parsing (new or changed) and the paths that need
// eviction (previously known, now missing from current). It does not mutate
// the index; callers commit successful parses via Commit and removals via
// Remove once downstream work actually completes, so a failed parse doesn't
// silently mark a file as up to date.
func (idx *Index) Reconcile(current map[string]Fingerprint) (toParse []string, toEvict []string) {
	for path, fp := range current {
		known, ok := idx.entries[path]
		if !ok || !Equal(known, fp) {
			toParse = append(toParse, path)
		}
	}
	for path := range idx.entries {
		if _, ok := current[path]; !ok {
			toEvict = append(toEvict, path)
		}
	}
	return toParse, toEvict
}

// Commit records the fingerprint observed for path as having been
// successfully applied to the MetadataIndex.
func (idx *Index) Commit(path string, fp Fingerprint) {
	idx.entries[path] = fp
}

// Remove drops path from the index, called once its symbols have been
// evicted from the MetadataIndex.
func (idx *Index) Remove(path string) {
	delete(idx.entries, path)
}

// Snapshot returns a copy of the current fingerprint map, suitable for
// persistence.
func (idx *Index) Snapshot() map[string]Fingerprint {
	snapshot := make(map[string]Fingerprint, len(idx.entries))
	for path, fp := range idx.entries {
		snapshot[path] = fp
	}
	return snapshot
}

// Len reports the number of fingerprints currently tracked.
func (idx *Index) Len() int {
	return len(idx.entries)
}
