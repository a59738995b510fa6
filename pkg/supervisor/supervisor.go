package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	pkgerrors "github.com/pkg/errors"

	"github.com/aurynx/discovery/internal/phpformat"
	"github.com/aurynx/discovery/internal/phpparser"
	"github.com/aurynx/discovery/pkg/cachestore"
	"github.com/aurynx/discovery/pkg/daemon"
	"github.com/aurynx/discovery/pkg/fingerprint"
	"github.com/aurynx/discovery/pkg/ipcproto"
	"github.com/aurynx/discovery/pkg/ipcsock"
	"github.com/aurynx/discovery/pkg/logging"
	"github.com/aurynx/discovery/pkg/metadata"
	"github.com/aurynx/discovery/pkg/metrics"
	"github.com/aurynx/discovery/pkg/must"
	"github.com/aurynx/discovery/pkg/scanner"
	"github.com/aurynx/discovery/pkg/watch"
)

// ErrInvalidConfig indicates a configuration problem caught before any lock,
// socket, or file is touched.
var ErrInvalidConfig = errors.New("invalid configuration")

// StrictParseError is returned from Run when --strict is set and at least
// one file failed to parse during the initial scan.
type StrictParseError struct {
	FailedPaths []string
}

func (e *StrictParseError) Error() string {
	return fmt.Sprintf("%d file(s) failed to parse under strict mode", len(e.FailedPaths))
}

// Supervisor owns the full lifecycle of one discovery:scan invocation: boot,
// steady-state reconciliation, and graceful shutdown. It is the sole writer
// of the MetadataIndex and the Cache Store.
type Supervisor struct {
	config Config
	logger *logging.Logger

	roots  []string
	output string

	ignorer *scanner.Ignorer
	scan    *scanner.Scanner

	index        *metadata.Index
	fingerprints *fingerprint.Index
	fpStore      *fingerprint.Store

	cache      *cachestore.Adaptive
	metrics    *metrics.Registry
	lock       *daemon.Lock
	listener   net.Listener
	server     *ipcproto.Server

	mu        sync.Mutex
	lastBuild time.Time
}

// New constructs a Supervisor from a validated configuration. Nothing with
// side effects happens until Run is called.
func New(config Config) *Supervisor {
	return &Supervisor{
		config:  config,
		logger:  config.Logger,
		index:   metadata.NewIndex(),
		metrics: metrics.New(),
	}
}

// Run executes the boot sequence and, in daemon mode, the steady-state event
// loop, returning when ctx is cancelled (daemon mode) or the one-shot scan
// completes. The caller is responsible for mapping the returned error to a
// process exit code: an *daemon.AlreadyHeldError means lock contention, a
// *StrictParseError or an error wrapping ErrInvalidConfig mean the caller
// should not retry without changing something.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := s.canonicalize(); err != nil {
		return err
	}
	if err := s.buildIgnorer(); err != nil {
		return err
	}
	s.scan = scanner.New(s.ignorer, phpparser.Parse, s.logger.Sublogger("scanner"))

	if s.config.Watch {
		return s.runDaemon(ctx)
	}
	return s.runOneShot(ctx)
}

func (s *Supervisor) validate() error {
	if len(s.config.Roots) == 0 {
		return fmt.Errorf("%w: at least one --path is required", ErrInvalidConfig)
	}
	if s.config.Output == "" {
		return fmt.Errorf("%w: --output is required", ErrInvalidConfig)
	}
	if s.config.Watch {
		if s.config.SocketPath == "" {
			return fmt.Errorf("%w: --socket is required with --watch", ErrInvalidConfig)
		}
		if s.config.PidPath == "" {
			return fmt.Errorf("%w: --pid is required with --watch", ErrInvalidConfig)
		}
	}
	return nil
}

func (s *Supervisor) canonicalize() error {
	roots := make([]string, 0, len(s.config.Roots))
	for _, root := range s.config.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("unable to resolve root %s: %w", root, err)
		}
		roots = append(roots, abs)
	}
	s.roots = roots

	output, err := daemon.Canonicalize(s.config.Output)
	if err != nil {
		return fmt.Errorf("unable to resolve output path: %w", err)
	}
	s.output = output
	return nil
}

// buildIgnorer layers the built-in VCS directory defaults, the CLI's
// --ignore flags, each root's conventional .gitignore/.hgignore/.bzrignore
// rules, and finally each root's optional .discoveryignore.hujson
// supplement into a single Ignorer, in that precedence order — the
// supplement is the most specific source and so gets the final say.
func (s *Supervisor) buildIgnorer() error {
	patterns := append([]string{}, scanner.DefaultVCSIgnores...)
	patterns = append(patterns, s.config.IgnorePatterns...)
	for _, root := range s.roots {
		vcsIgnores, err := scanner.LoadVCSIgnoreFiles(root)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
		}
		patterns = append(patterns, vcsIgnores...)

		supplement, err := scanner.LoadSupplement(root)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
		}
		patterns = append(patterns, supplement...)
	}

	ignorer, err := scanner.NewIgnorer(patterns)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	s.ignorer = ignorer
	return nil
}

// runOneShot performs a single cold scan and writes the rendered artifact
// directly to the output path, with no lock, socket, or pid file: there is
// no daemon lifetime to protect once the process is about to exit.
func (s *Supervisor) runOneShot(ctx context.Context) error {
	s.fingerprints = fingerprint.NewIndex()

	results, err := s.scan.ScanFull(ctx, s.roots)
	if err != nil {
		return fmt.Errorf("unable to perform initial scan: %w", err)
	}
	s.ingest(results, nil)

	if s.config.Strict {
		if failed := failedPaths(results); len(failed) > 0 {
			return &StrictParseError{FailedPaths: failed}
		}
	}

	artifact := phpformat.Format(s.index.Snapshot(), s.config.Pretty)
	if err := atomic.WriteFile(s.output, bytes.NewReader(artifact)); err != nil {
		return fmt.Errorf("unable to write cache artifact to %s: %w", s.output, err)
	}
	s.logger.Infof("wrote %d symbol(s) to %s", s.index.Len(), s.output)
	return nil
}

// runDaemon performs the full §4.7 boot sequence and then services IPC
// connections and Watcher batches until ctx is cancelled.
func (s *Supervisor) runDaemon(ctx context.Context) error {
	lock, err := daemon.Acquire(s.output, daemon.AcquireOptions{
		SocketPath: s.config.SocketPath,
		Force:      s.config.Force,
	}, s.logger.Sublogger("lock"))
	if err != nil {
		return pkgerrors.Wrap(err, "unable to acquire daemon lock")
	}
	s.lock = lock
	defer func() {
		if releaseErr := s.lock.Release(); releaseErr != nil {
			s.logger.Warnf("unable to release lock: %s", releaseErr)
		}
	}()

	listener, err := ipcsock.NewListener(s.config.SocketPath)
	if err != nil {
		return pkgerrors.Wrap(err, "unable to create IPC socket")
	}
	s.listener = listener
	defer func() {
		// Shutdown (called on the graceful ctx.Done() path) already closes
		// the listener; this is the fallback for every other exit path, and
		// a no-op error from the already-closed case is expected there.
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warnf("unable to close listener: %s", err)
		}
	}()
	defer must.OSRemove(s.config.SocketPath, s.logger)

	if err := s.writePidFile(); err != nil {
		return pkgerrors.Wrap(err, "unable to write pid file")
	}
	defer must.OSRemove(s.config.PidPath, s.logger)

	defer func() {
		if s.fpStore != nil {
			must.Close(s.fpStore, s.logger)
		}
	}()

	if err := s.bootIndex(ctx); err != nil {
		return err
	}

	watcher, err := watch.New(s.roots, s.ignorer, s.logger.Sublogger("watch"))
	if err != nil {
		return fmt.Errorf("unable to arm watcher: %w", err)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	batches := watcher.Run(watchCtx)

	s.server = ipcproto.NewServer(s.listener, s.cache, s, s.metrics, s.logger.Sublogger("ipc"))
	serveErrs := make(chan error, 1)
	go func() { serveErrs <- s.server.Serve() }()

	s.logger.Infof("accepting IPC connections on %s", s.config.SocketPath)

	for {
		select {
		case <-ctx.Done():
			return s.gracefulShutdown()
		case err := <-serveErrs:
			return err
		case batch, ok := <-batches:
			if !ok {
				s.logger.Warnf("watcher terminated; serving last known artifact without further updates")
				select {
				case <-ctx.Done():
					return s.gracefulShutdown()
				case err := <-serveErrs:
					return err
				}
			}
			s.handleBatch(ctx, batch)
		}
	}
}

// bootIndex performs step 5 of the boot sequence: full (or, under
// --incremental, reconciled) scan, populate the Incremental Index, select
// the Cache Store strategy, and publish the first artifact.
func (s *Supervisor) bootIndex(ctx context.Context) error {
	mirrorPath := s.output + ".mirror"
	diskPath := s.output + ".filecache.gz"

	var results []scanner.Result

	if s.config.Incremental {
		storePath, err := daemon.FingerprintStorePath(s.output)
		if err != nil {
			return fmt.Errorf("unable to compute fingerprint store path: %w", err)
		}
		store, err := fingerprint.OpenStore(storePath)
		if err != nil {
			return fmt.Errorf("unable to open fingerprint store: %w", err)
		}
		s.fpStore = store

		entries, err := store.Load()
		if err != nil {
			return fmt.Errorf("unable to load fingerprint store: %w", err)
		}
		s.fingerprints = fingerprint.NewIndexFromEntries(entries)

		var priorBytes int64
		for _, fp := range entries {
			priorBytes += fp.Size
		}
		s.cache = cachestore.NewAdaptive(priorBytes, mirrorPath, diskPath, s.logger.Sublogger("cache"))
		if len(entries) > 0 {
			if err := s.cache.WarmFromMirror(); err != nil {
				s.logger.Debugf("no warm cache mirror available: %s", err)
			}
		}

		current, err := s.scan.Fingerprints(s.roots)
		if err != nil {
			return fmt.Errorf("unable to perform incremental boot scan: %w", err)
		}
		toParse, toEvict := s.fingerprints.Reconcile(current)
		s.logger.Infof("incremental boot: %d changed, %d removed, %d unchanged",
			len(toParse), len(toEvict), len(current)-len(toParse))

		results = s.scan.ScanSubset(ctx, toParse)
		s.ingest(results, toEvict)
	} else {
		s.fingerprints = fingerprint.NewIndex()

		var err error
		results, err = s.scan.ScanFull(ctx, s.roots)
		if err != nil {
			return fmt.Errorf("unable to perform initial scan: %w", err)
		}
		s.ingest(results, nil)

		s.cache = cachestore.NewAdaptive(s.totalBytes(), mirrorPath, diskPath, s.logger.Sublogger("cache"))
	}

	if s.config.Strict {
		if failed := failedPaths(results); len(failed) > 0 {
			return &StrictParseError{FailedPaths: failed}
		}
	}

	s.publish()
	return nil
}

// handleBatch reconciles one Watcher-emitted ChangeBatch: a Resync
// disregards the (empty) sets and rescans every root from scratch, while an
// ordinary batch triggers a subset scan of exactly the paths that changed.
func (s *Supervisor) handleBatch(ctx context.Context, batch watch.ChangeBatch) {
	s.metrics.IncRescans()

	if batch.Resync {
		s.logger.Warnf("watcher requested resync; rescanning all roots")
		results, err := s.scan.ScanFull(ctx, s.roots)
		if err != nil {
			s.logger.Errorf("resync scan failed: %s", err)
			return
		}
		seen := make(map[string]bool, len(results))
		for _, r := range results {
			seen[r.Path] = true
		}
		var gone []string
		for path := range s.fingerprints.Snapshot() {
			if !seen[path] {
				gone = append(gone, path)
			}
		}
		s.ingest(results, gone)
		s.publish()
		return
	}

	var toParse []string
	for path := range batch.Created {
		toParse = append(toParse, path)
	}
	for path := range batch.Modified {
		toParse = append(toParse, path)
	}
	var deleted []string
	for path := range batch.Deleted {
		deleted = append(deleted, path)
	}

	if len(toParse) == 0 && len(deleted) == 0 {
		return
	}

	results := s.scan.ScanSubset(ctx, toParse)
	s.ingest(results, deleted)
	s.publish()
}

// ingest applies a batch of scan results and explicit deletions to both the
// Incremental Index and the MetadataIndex as a single atomic step: every
// touched path is evicted first (so a file that now declares zero symbols
// drops its stale ones) and then any surviving symbols are upserted, with
// their Path rewritten from the Scanner's absolute path to root-relative,
// matching the contract documented on SymbolMetadata.Path.
func (s *Supervisor) ingest(results []scanner.Result, deletedAbs []string) {
	var evict []string
	var upsert []metadata.SymbolMetadata

	for _, absPath := range deletedAbs {
		evict = append(evict, s.relativize(absPath))
		s.fingerprints.Remove(absPath)
	}

	for _, r := range results {
		rel := s.relativize(r.Path)
		evict = append(evict, rel)

		if r.Err != nil || r.Skipped {
			s.metrics.AddFilesSkipped(1)
			continue
		}

		for i := range r.Symbols {
			r.Symbols[i].Path = rel
		}
		upsert = append(upsert, r.Symbols...)
		s.fingerprints.Commit(r.Path, r.Fingerprint)
		s.metrics.AddFilesScanned(1)
	}

	s.index.Apply(evict, upsert)
}

// publish renders the current index snapshot, publishes it to the Cache
// Store, mirrors it to the output path for consumers that read the file
// directly, re-evaluates the adaptive strategy, and records the build time.
func (s *Supervisor) publish() {
	artifact := phpformat.Format(s.index.Snapshot(), s.config.Pretty)

	if err := s.cache.Publish(artifact); err != nil {
		s.logger.Errorf("unable to publish cache artifact: %s", err)
		return
	}
	if err := atomic.WriteFile(s.output, bytes.NewReader(artifact)); err != nil {
		s.logger.Warnf("unable to mirror cache artifact to %s: %s", s.output, err)
	}

	s.mu.Lock()
	s.lastBuild = time.Now()
	s.mu.Unlock()

	s.cache.Reevaluate(s.totalBytes())
	s.metrics.SetStrategy(s.cache.Strategy().String())
}

func (s *Supervisor) totalBytes() int64 {
	var total int64
	for _, fp := range s.fingerprints.Snapshot() {
		total += fp.Size
	}
	return total
}

// Stats implements ipcproto.StatsSource.
func (s *Supervisor) Stats() ipcproto.Stats {
	snapshot := s.metrics.Snapshot()

	s.mu.Lock()
	lastBuild := s.lastBuild
	s.mu.Unlock()

	return ipcproto.Stats{
		SymbolCount:   s.index.Len(),
		LastBuildTime: lastBuild,
		Strategy:      s.cache.Strategy().String(),
		FilesScanned:  snapshot.FilesScanned,
		FilesSkipped:  snapshot.FilesSkipped,
		Rescans:       snapshot.Rescans,
		Connections:   snapshot.Connections,
	}
}

// gracefulShutdown performs the non-deferred portion of an orderly daemon
// stop: stop accepting new IPC connections and drain whatever is already
// in flight, then flush the persistent fingerprint store. Lock release,
// socket/pid removal, and watcher teardown are handled by runDaemon's
// deferred cleanup so they still run even if boot fails partway through
// and this function is never reached.
func (s *Supervisor) gracefulShutdown() error {
	s.logger.Infof("shutting down: no longer accepting new IPC connections")
	s.server.Shutdown()

	if s.fpStore != nil {
		if err := s.fpStore.Save(s.fingerprints.Snapshot()); err != nil {
			s.logger.Warnf("unable to flush fingerprint store: %s", err)
		}
	}
	return nil
}

func (s *Supervisor) writePidFile() error {
	contents := strconv.Itoa(os.Getpid()) + "\n"
	return atomic.WriteFile(s.config.PidPath, strings.NewReader(contents))
}

func (s *Supervisor) relativize(absPath string) string {
	for _, root := range s.roots {
		if rel, err := filepath.Rel(root, absPath); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(absPath)
}

func failedPaths(results []scanner.Result) []string {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Path)
		}
	}
	return failed
}
