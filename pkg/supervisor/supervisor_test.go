package supervisor

import (
	"errors"
	"testing"

	"github.com/aurynx/discovery/pkg/fingerprint"
	"github.com/aurynx/discovery/pkg/metadata"
	"github.com/aurynx/discovery/pkg/metrics"
	"github.com/aurynx/discovery/pkg/scanner"
)

func newTestSupervisor(roots ...string) *Supervisor {
	return &Supervisor{
		roots:        roots,
		index:        metadata.NewIndex(),
		fingerprints: fingerprint.NewIndex(),
		metrics:      metrics.New(),
	}
}

func TestRelativizePrefersContainingRoot(t *testing.T) {
	s := newTestSupervisor("/src/app", "/src/lib")

	if got := s.relativize("/src/app/Controller/User.php"); got != "Controller/User.php" {
		t.Fatalf("got %q", got)
	}
	if got := s.relativize("/src/lib/Helper.php"); got != "Helper.php" {
		t.Fatalf("got %q", got)
	}
}

func TestRelativizeFallsBackToAbsoluteOutsideAnyRoot(t *testing.T) {
	s := newTestSupervisor("/src/app")

	if got := s.relativize("/other/File.php"); got != "/other/File.php" {
		t.Fatalf("got %q", got)
	}
}

func TestIngestUpsertsSymbolsWithRootRelativePaths(t *testing.T) {
	s := newTestSupervisor("/src")

	results := []scanner.Result{
		{
			Path:        "/src/a.php",
			Fingerprint: fingerprint.Fingerprint{Size: 10},
			Symbols: []metadata.SymbolMetadata{
				{FQN: `\A\B`, Path: "/src/a.php", Kind: metadata.KindClass},
			},
		},
	}

	s.ingest(results, nil)

	snapshot := s.index.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(snapshot))
	}
	if snapshot[0].Path != "a.php" {
		t.Fatalf("expected root-relative path, got %q", snapshot[0].Path)
	}
	if s.fingerprints.Len() != 1 {
		t.Fatalf("expected fingerprint to be committed")
	}
}

func TestIngestEvictsOnParseFailureWithoutCommittingFingerprint(t *testing.T) {
	s := newTestSupervisor("/src")

	s.ingest([]scanner.Result{{
		Path:        "/src/a.php",
		Fingerprint: fingerprint.Fingerprint{Size: 10},
		Symbols:     []metadata.SymbolMetadata{{FQN: `\A\B`, Path: "/src/a.php", Kind: metadata.KindClass}},
	}}, nil)

	s.ingest([]scanner.Result{{
		Path: "/src/a.php",
		Err:  errors.New("boom"),
	}}, nil)

	if got := s.index.Len(); got != 0 {
		t.Fatalf("expected stale symbols evicted, got %d", got)
	}
	if s.fingerprints.Len() != 0 {
		t.Fatalf("expected fingerprint not committed on parse failure")
	}
}

func TestIngestRemovesDeletedPaths(t *testing.T) {
	s := newTestSupervisor("/src")

	s.ingest([]scanner.Result{{
		Path:        "/src/a.php",
		Fingerprint: fingerprint.Fingerprint{Size: 10},
		Symbols:     []metadata.SymbolMetadata{{FQN: `\A\B`, Path: "/src/a.php", Kind: metadata.KindClass}},
	}}, nil)

	s.ingest(nil, []string{"/src/a.php"})

	if got := s.index.Len(); got != 0 {
		t.Fatalf("expected symbol evicted on deletion, got %d", got)
	}
	if s.fingerprints.Len() != 0 {
		t.Fatalf("expected fingerprint removed on deletion")
	}
}

func TestFailedPathsCollectsOnlyErroredResults(t *testing.T) {
	results := []scanner.Result{
		{Path: "/src/ok.php"},
		{Path: "/src/bad.php", Err: errors.New("boom")},
	}

	got := failedPaths(results)
	if len(got) != 1 || got[0] != "/src/bad.php" {
		t.Fatalf("got %v", got)
	}
}

func TestStrictParseErrorMessage(t *testing.T) {
	err := &StrictParseError{FailedPaths: []string{"a.php", "b.php"}}
	if err.Error() != "2 file(s) failed to parse under strict mode" {
		t.Fatalf("got %q", err.Error())
	}
}
