// Package watch converts filesystem notifications into debounced batches of
// candidate paths for the Incremental Index to reconcile against. It is
// built on fsnotify, which already normalizes the underlying
// inotify/kqueue/ReadDirectoryChangesW APIs into a single event stream; this
// package's job is coalescing and classification on top of that stream, not
// re-deriving platform semantics.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aurynx/discovery/pkg/logging"
)

const (
	// coalescingWindow is the debounce window during which redundant events
	// for the same path collapse into one another.
	coalescingWindow = 75 * time.Millisecond
)

// ErrWatchTerminated indicates that the watcher's underlying event source
// was closed.
var ErrWatchTerminated = errors.New("watch terminated")

// ChangeBatch is a debounced, deduplicated classification of filesystem
// changes observed since the previous batch. Resync, when true, instructs
// the receiver to disregard the (empty) sets and treat every root as dirty;
// it is emitted when the notification source may have lost events.
type ChangeBatch struct {
	Created  map[string]bool
	Modified map[string]bool
	Deleted  map[string]bool
	Resync   bool
}

func newChangeBatch() ChangeBatch {
	return ChangeBatch{
		Created:  make(map[string]bool),
		Modified: make(map[string]bool),
		Deleted:  make(map[string]bool),
	}
}

func (b ChangeBatch) empty() bool {
	return !b.Resync && len(b.Created) == 0 && len(b.Modified) == 0 && len(b.Deleted) == 0
}

// Ignorer decides whether a path should be excluded from consideration.
// It is satisfied by *scanner.Ignorer without introducing an import cycle.
type Ignorer interface {
	Matches(relPath string) bool
}

// Watcher watches a set of roots for filesystem changes and emits
// ChangeBatches.
type Watcher struct {
	roots   []string
	ignorer Ignorer
	logger  *logging.Logger
	fsw     *fsnotify.Watcher
}

// New creates a Watcher over roots, recursively registering a native watch
// on every directory found beneath them.
func New(roots []string, ignorer Ignorer, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{roots: roots, ignorer: ignorer, logger: logger, fsw: fsw}
	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addRecursive registers a watch on dir and every subdirectory beneath it
// that is not excluded by the ignorer.
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warnf("unable to stat %s while arming watcher: %s", path, err)
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && w.ignorer.Matches(filepath.ToSlash(rel)+"/") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warnf("unable to watch %s: %s", path, err)
		}
		return nil
	})
}

// Run starts the coalescing loop and returns a channel of ChangeBatches. The
// channel is closed when ctx is cancelled or the underlying watcher fails
// unrecoverably.
func (w *Watcher) Run(ctx context.Context) <-chan ChangeBatch {
	out := make(chan ChangeBatch)

	go func() {
		defer close(out)
		defer w.fsw.Close()

		pending := newChangeBatch()
		var timer *time.Timer
		var timerC <-chan time.Time

		flush := func() {
			if pending.empty() {
				return
			}
			select {
			case out <- pending:
			case <-ctx.Done():
			}
			pending = newChangeBatch()
		}

		armTimer := func() {
			if timer == nil {
				timer = time.NewTimer(coalescingWindow)
			} else {
				timer.Reset(coalescingWindow)
			}
			timerC = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				w.classify(event, &pending)
				armTimer()

			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warnf("watcher reported an error, requesting resync: %s", err)
				out <- ChangeBatch{Resync: true}
				pending = newChangeBatch()

			case <-timerC:
				flush()
			}
		}
	}()

	return out
}

// classify applies a single fsnotify event to the pending batch, deriving
// classification from the last observed state for a path: a create
// immediately followed by a delete within the same window collapses to
// nothing, and a later event for a path always overrides an earlier one.
func (w *Watcher) classify(event fsnotify.Event, pending *ChangeBatch) {
	rel := w.relativize(event.Name)
	if rel != "" && w.ignorer.Matches(rel) {
		return
	}

	clear := func() {
		delete(pending.Created, event.Name)
		delete(pending.Modified, event.Name)
		delete(pending.Deleted, event.Name)
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		clear()
		pending.Created[event.Name] = true
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warnf("unable to extend watch to %s: %s", event.Name, err)
			}
		}
	case event.Op&(fsnotify.Write) != 0:
		if !pending.Created[event.Name] {
			clear()
			pending.Modified[event.Name] = true
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		wasCreated := pending.Created[event.Name]
		clear()
		if !wasCreated {
			pending.Deleted[event.Name] = true
		}
	}
}

// relativize returns the path relative to whichever root contains it, for
// ignore-matching purposes, or "" if it lies under none of them.
func (w *Watcher) relativize(path string) string {
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
			return filepath.ToSlash(rel)
		}
	}
	return ""
}
