// Package scanner enumerates candidate source files under configured roots,
// honors ignore rules, gates by size, and drives parallel parsing. The
// Scanner is stateless: it does not decide what to scan incrementally, only
// how to walk and parse whatever set of paths it's given.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	humanize "github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/aurynx/discovery/pkg/fingerprint"
	"github.com/aurynx/discovery/pkg/logging"
	"github.com/aurynx/discovery/pkg/metadata"
)

// MaxFileSize is the size, in bytes, strictly above which a candidate file is
// skipped rather than parsed. Files of exactly this size are accepted.
const MaxFileSize = 10 * 1024 * 1024

// ParseFunc is the external Parser collaborator's contract: given a file's
// path and contents, produce the symbols it declares. Any concrete parser
// that satisfies this signature is acceptable; the Scanner does not dictate
// syntax-tree traversal strategy.
type ParseFunc func(path string, contents []byte) ([]metadata.SymbolMetadata, error)

// Result is one file's scan outcome. Skipped is set when the file was
// dropped by the size gate (or a stat/read failure) without being parsed;
// Path is still populated in that case (and Fingerprint too, unless the stat
// itself failed) so the caller can
// evict any stale index entry and count the file as skipped rather than
// silently losing track of it.
type Result struct {
	Path        string
	Fingerprint fingerprint.Fingerprint
	Symbols     []metadata.SymbolMetadata
	Err         error
	Skipped     bool
}

// Scanner walks configured roots and dispatches parsing.
type Scanner struct {
	ignorer *Ignorer
	parse   ParseFunc
	logger  *logging.Logger
}

// New constructs a Scanner using ignorer for exclusion decisions and parse as
// the external Parser.
func New(ignorer *Ignorer, parse ParseFunc, logger *logging.Logger) *Scanner {
	return &Scanner{ignorer: ignorer, parse: parse, logger: logger}
}

// ScanFull walks every root, applying ignore rules and the size gate, and
// parses every surviving file. Parsing is parallelized across a bounded
// worker pool sized to the available CPUs; ordering of results is not
// significant since downstream index updates are keyed by FQN and path.
func (s *Scanner) ScanFull(ctx context.Context, roots []string) ([]Result, error) {
	paths, err := s.walk(roots)
	if err != nil {
		return nil, err
	}
	return s.parseAll(ctx, paths), nil
}

// ScanSubset parses exactly the given paths, skipping the walk. It's used
// for Watcher-driven incremental updates where the candidate set is already
// known.
func (s *Scanner) ScanSubset(ctx context.Context, paths []string) []Result {
	return s.parseAll(ctx, paths)
}

// Fingerprints walks every root exactly as ScanFull does but only stats each
// candidate file rather than reading and parsing it. The Supervisor's
// --incremental boot path uses this to reconcile against a persisted
// fingerprint store before deciding which files actually need reparsing,
// skipping the cost of parsing files that haven't changed since the last
// run.
func (s *Scanner) Fingerprints(roots []string) (map[string]fingerprint.Fingerprint, error) {
	paths, err := s.walk(roots)
	if err != nil {
		return nil, err
	}

	result := make(map[string]fingerprint.Fingerprint, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			s.logger.Warnf("unable to stat %s: %s", path, err)
			continue
		}
		result[path] = fingerprint.Fingerprint{Size: info.Size(), ModTime: info.ModTime()}
	}
	return result, nil
}

// walk performs the recursive directory walk honoring ignore rules, emitting
// the set of candidate file paths across all roots.
func (s *Scanner) walk(roots []string) ([]string, error) {
	var paths []string
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				s.logger.Warnf("unable to stat %s: %s", path, err)
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)

			if info.IsDir() {
				if rel != "." && s.ignorer.Matches(rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}
			if s.ignorer.Matches(rel) {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("unable to walk %s: %w", root, err)
		}
	}
	return paths, nil
}

// parseAll stats, size-gates, reads, and parses each path, fanning work out
// across a bounded errgroup pool.
func (s *Scanner) parseAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			results[i] = s.parseOne(path)
			return nil
		})
	}
	// Errors from individual files are carried in Result.Err, not returned
	// here; only context cancellation propagates, and even then the results
	// already computed are still useful to the caller.
	_ = group.Wait()

	compact := results[:0]
	for _, r := range results {
		if r.Path != "" {
			compact = append(compact, r)
		}
	}
	return compact
}

// parseOne handles a single file: stat, size gate, read, parse.
func (s *Scanner) parseOne(path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		s.logger.Warnf("unable to stat %s: %s", path, err)
		return Result{Path: path, Skipped: true}
	}

	if info.Size() > MaxFileSize {
		s.logger.Warnf("skipping %s: size %s exceeds limit %s", path,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(MaxFileSize)))
		return Result{Path: path, Fingerprint: fingerprint.Fingerprint{Size: info.Size(), ModTime: info.ModTime()}, Skipped: true}
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warnf("unable to read %s: %s", path, err)
		return Result{Path: path, Fingerprint: fingerprint.Fingerprint{Size: info.Size(), ModTime: info.ModTime()}, Skipped: true}
	}

	fp := fingerprint.Fingerprint{Size: info.Size(), ModTime: info.ModTime()}

	symbols, err := s.parse(path, contents)
	if err != nil {
		s.logger.Warnf("unable to parse %s: %s", path, err)
		return Result{Path: path, Fingerprint: fp, Err: err}
	}

	return Result{Path: path, Fingerprint: fp, Symbols: symbols}
}
