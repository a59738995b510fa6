package cachestore

import (
	"sync"

	"github.com/aurynx/discovery/pkg/logging"
)

// Adaptive selects and, when warranted, switches between the three Store
// variants based on the total source-byte weight observed at scan time. It
// is itself a Store, so the Supervisor never needs to know which variant is
// currently live.
type Adaptive struct {
	mu         sync.RWMutex
	current    Store
	mirrorPath string
	diskPath   string
	logger     *logging.Logger
}

// NewAdaptive constructs an Adaptive store, selecting its initial variant
// from totalBytes (the byte weight of the initial full scan). mirrorPath and
// diskPath are where the Hybrid and File variants, respectively, persist
// their disk copy.
func NewAdaptive(totalBytes int64, mirrorPath, diskPath string, logger *logging.Logger) *Adaptive {
	a := &Adaptive{mirrorPath: mirrorPath, diskPath: diskPath, logger: logger}
	a.current = a.build(selectStrategy(totalBytes))
	return a
}

func (a *Adaptive) build(strategy Strategy) Store {
	switch strategy {
	case StrategyHybrid:
		return newHybridStore(a.mirrorPath, a.logger)
	case StrategyFile:
		return newFileStore(a.diskPath)
	default:
		return newMemoryStore()
	}
}

// Reevaluate re-runs the strategy selection against a newly observed byte
// weight (e.g. after a large structural change) and switches variants if the
// hysteresis-gated crossing condition is met. The artifact held by the prior
// variant, if any, is carried over to the new one so a switch never loses
// the most recently published artifact.
func (a *Adaptive) Reevaluate(totalBytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, changed := crossesWithHysteresis(a.current.Strategy(), totalBytes)
	if !changed {
		return
	}

	previous := a.current
	artifact, err := previous.Get()

	a.logger.Infof("cache strategy switching from %s to %s", previous.Strategy(), next)
	a.current = a.build(next)
	if err == nil {
		if pubErr := a.current.Publish(artifact); pubErr != nil {
			a.logger.Warnf("unable to carry artifact across strategy switch: %s", pubErr)
		}
	}
	previous.Close()
}

// WarmFromMirror seeds the current store with a previously mirrored artifact
// from disk, if the current strategy is Hybrid and a mirror exists at
// mirrorPath. It is a no-op under Memory or File, which either have nothing
// to warm from or already read their own on-disk copy lazily. Used on an
// --incremental boot so an early getCacheCode or stats call during the
// reconciliation-driven rescan doesn't observe ErrNoArtifact.
func (a *Adaptive) WarmFromMirror() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current.Strategy() != StrategyHybrid {
		return nil
	}
	mirrored, err := loadMirror(a.mirrorPath)
	if err != nil {
		return err
	}
	return a.current.Publish(mirrored)
}

func (a *Adaptive) Publish(artifact []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.Publish(artifact)
}

func (a *Adaptive) Get() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.Get()
}

func (a *Adaptive) Strategy() Strategy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.Strategy()
}

func (a *Adaptive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Close()
}
