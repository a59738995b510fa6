package cachestore

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/aurynx/discovery/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelDisabled, io.Discard)
}

func TestSelectStrategyThresholds(t *testing.T) {
	if got := selectStrategy(1024); got != StrategyMemory {
		t.Fatalf("expected StrategyMemory, got %v", got)
	}
	if got := selectStrategy(memoryToHybridThreshold + 1); got != StrategyHybrid {
		t.Fatalf("expected StrategyHybrid, got %v", got)
	}
	if got := selectStrategy(hybridToFileThreshold + 1); got != StrategyFile {
		t.Fatalf("expected StrategyFile, got %v", got)
	}
}

func TestHysteresisPreventsFlapAtBoundary(t *testing.T) {
	if _, changed := crossesWithHysteresis(StrategyMemory, memoryToHybridThreshold+1); changed {
		t.Fatal("a bare crossing must not trigger a switch")
	}

	next, changed := crossesWithHysteresis(StrategyMemory, 2*memoryToHybridThreshold+1)
	if !changed {
		t.Fatal("expected a switch past the hysteresis margin")
	}
	if next != StrategyHybrid {
		t.Fatalf("expected StrategyHybrid, got %v", next)
	}
}

func TestMemoryStorePublishAndGet(t *testing.T) {
	s := newMemoryStore()
	if _, err := s.Get(); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}

	if err := s.Publish([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.gz")
	s := newFileStore(path)

	if err := s.Publish([]byte("<?php return [];")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("<?php return [];")) {
		t.Fatalf("got %q", got)
	}

	// A second Get should be served from the front cache without error even
	// though nothing else touches disk between calls.
	got2, err := s.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, got2) {
		t.Fatalf("got %q, want %q", got2, got)
	}
}

func TestAdaptiveSelectsInitialStrategy(t *testing.T) {
	dir := t.TempDir()
	a := NewAdaptive(1024, filepath.Join(dir, "mirror"), filepath.Join(dir, "disk.gz"), testLogger())
	if a.Strategy() != StrategyMemory {
		t.Fatalf("expected StrategyMemory, got %v", a.Strategy())
	}

	if err := a.Publish([]byte("x")); err != nil {
		t.Fatal(err)
	}
	got, err := a.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("x")) {
		t.Fatalf("got %q", got)
	}
}

func TestAdaptiveCarriesArtifactAcrossSwitch(t *testing.T) {
	dir := t.TempDir()
	a := NewAdaptive(1024, filepath.Join(dir, "mirror"), filepath.Join(dir, "disk.gz"), testLogger())
	if err := a.Publish([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	a.Reevaluate(2*memoryToHybridThreshold + 1)
	if a.Strategy() != StrategyHybrid {
		t.Fatalf("expected StrategyHybrid, got %v", a.Strategy())
	}

	got, err := a.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("got %q", got)
	}
}
