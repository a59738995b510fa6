package cachestore

import (
	"bytes"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/aurynx/discovery/pkg/logging"
)

// hybridStore holds the artifact in memory for reads (via the same holder as
// memoryStore) and schedules an asynchronous disk mirror on every publish so
// a warm restart can skip the initial cold scan's full cost. Reads always
// come from memory; the disk copy exists only to be picked up by a future
// process's boot, never by this one's own Get.
type hybridStore struct {
	memory   *memoryStore
	mirrorTo string
	logger   *logging.Logger
}

func newHybridStore(mirrorPath string, logger *logging.Logger) *hybridStore {
	return &hybridStore{memory: newMemoryStore(), mirrorTo: mirrorPath, logger: logger}
}

func (s *hybridStore) Publish(artifact []byte) error {
	if err := s.memory.Publish(artifact); err != nil {
		return err
	}

	// The memory publish above is what readers observe; the disk mirror is a
	// best-effort warm-restart optimization, so its failure is logged, not
	// propagated.
	mirror := append([]byte(nil), artifact...)
	go func() {
		if err := atomic.WriteFile(s.mirrorTo, bytes.NewReader(mirror)); err != nil {
			s.logger.Warnf("unable to mirror cache artifact to %s: %s", s.mirrorTo, err)
		}
	}()
	return nil
}

func (s *hybridStore) Get() ([]byte, error) {
	return s.memory.Get()
}

func (s *hybridStore) Strategy() Strategy { return StrategyHybrid }

func (s *hybridStore) Close() error {
	return s.memory.Close()
}

// loadMirror reads a previously mirrored artifact from disk, used to warm a
// freshly created hybridStore before the first scan completes. It is not
// part of the Store interface since only the Supervisor's boot path needs
// it.
func loadMirror(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load cache mirror: %w", err)
	}
	return data, nil
}
