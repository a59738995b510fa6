package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aurynx/discovery/pkg/logging"
)

type noopIgnorer struct{}

func (noopIgnorer) Matches(string) bool { return false }

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelDisabled, io.Discard)
}

func TestWatcherEmitsCreateBatch(t *testing.T) {
	root := t.TempDir()

	w, err := New([]string{root}, noopIgnorer{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches := w.Run(ctx)

	target := filepath.Join(root, "a.php")
	if err := os.WriteFile(target, []byte("<?php"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-batches:
		if !batch.Created[target] {
			t.Fatalf("expected %s in Created, got %v", target, batch.Created)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}
}

func TestRelativizePicksMatchingRootAmongSiblings(t *testing.T) {
	base := t.TempDir()
	rootA := filepath.Join(base, "a")
	rootB := filepath.Join(base, "b")
	for _, r := range []string{rootA, rootB} {
		if err := os.MkdirAll(r, 0755); err != nil {
			t.Fatal(err)
		}
	}

	w := &Watcher{roots: []string{rootA, rootB}}

	got := w.relativize(filepath.Join(rootB, "x.php"))
	if got != "x.php" {
		t.Fatalf("expected x.php relative to rootB, got %q", got)
	}

	got = w.relativize(filepath.Join(rootA, "y.php"))
	if got != "y.php" {
		t.Fatalf("expected y.php relative to rootA, got %q", got)
	}
}

func TestChangeBatchEmptyConsidersResync(t *testing.T) {
	empty := newChangeBatch()
	if !empty.empty() {
		t.Fatal("expected a freshly constructed batch to be empty")
	}

	resync := ChangeBatch{Resync: true}
	if resync.empty() {
		t.Fatal("expected a resync batch to not be considered empty")
	}
}
