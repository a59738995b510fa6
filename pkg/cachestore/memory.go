package cachestore

import (
	cache "github.com/patrickmn/go-cache"
)

// artifactKey is the single key under which the current artifact is held;
// the store never holds more than one key since it serves exactly one
// output path.
const artifactKey = "artifact"

// memoryStore holds the artifact entirely in process memory behind a
// go-cache instance used purely as a concurrency-safe keyed holder, not for
// its TTL features (hence cache.NoExpiration everywhere).
type memoryStore struct {
	db *cache.Cache
}

func newMemoryStore() *memoryStore {
	return &memoryStore{db: cache.New(cache.NoExpiration, cache.NoExpiration)}
}

func (s *memoryStore) Publish(artifact []byte) error {
	// Copy so a caller mutating its buffer after Publish can't corrupt the
	// held artifact.
	copied := append([]byte(nil), artifact...)
	s.db.Set(artifactKey, copied, cache.NoExpiration)
	return nil
}

func (s *memoryStore) Get() ([]byte, error) {
	value, found := s.db.Get(artifactKey)
	if !found {
		return nil, ErrNoArtifact
	}
	stored := value.([]byte)
	return append([]byte(nil), stored...), nil
}

func (s *memoryStore) Strategy() Strategy { return StrategyMemory }

func (s *memoryStore) Close() error {
	s.db.Flush()
	return nil
}
