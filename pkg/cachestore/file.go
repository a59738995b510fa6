package cachestore

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/natefinch/atomic"
	cache "github.com/patrickmn/go-cache"
)

// fileStore keeps the canonical artifact on disk, gzip-compressed to bound
// footprint for very large codebases, fronted by a small memory cache so
// repeated getCacheCode calls between rebuilds don't re-read and
// re-decompress disk.
type fileStore struct {
	path  string
	front *cache.Cache
}

func newFileStore(path string) *fileStore {
	return &fileStore{path: path, front: cache.New(cache.NoExpiration, cache.NoExpiration)}
}

func (s *fileStore) Publish(artifact []byte) error {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(artifact); err != nil {
		return fmt.Errorf("unable to compress artifact: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("unable to finalize compressed artifact: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("unable to publish artifact to %s: %w", s.path, err)
	}

	// Invalidate the front cache so the next Get re-reads the freshly
	// published file rather than serving a stale decompressed copy.
	s.front.Delete(artifactKey)
	return nil
}

func (s *fileStore) Get() ([]byte, error) {
	if cached, found := s.front.Get(artifactKey); found {
		return append([]byte(nil), cached.([]byte)...), nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoArtifact
		}
		return nil, fmt.Errorf("unable to open artifact %s: %w", s.path, err)
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("unable to decompress artifact %s: %w", s.path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("unable to read artifact %s: %w", s.path, err)
	}

	s.front.Set(artifactKey, data, cache.NoExpiration)
	return append([]byte(nil), data...), nil
}

func (s *fileStore) Strategy() Strategy { return StrategyFile }

func (s *fileStore) Close() error {
	s.front.Flush()
	return nil
}
