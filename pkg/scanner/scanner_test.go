package scanner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aurynx/discovery/pkg/logging"
	"github.com/aurynx/discovery/pkg/metadata"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelDisabled, io.Discard)
}

func countingParser(calls *int) ParseFunc {
	return func(path string, contents []byte) ([]metadata.SymbolMetadata, error) {
		*calls++
		return []metadata.SymbolMetadata{{FQN: path, Path: path, Kind: metadata.KindClass}}, nil
	}
}

func TestScanFullHonorsIgnoreAndSizeGate(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.php"), []byte("<?php"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".git", "config"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "big.php"), make([]byte, MaxFileSize+1), 0644); err != nil {
		t.Fatal(err)
	}

	ignorer, err := NewIgnorer(DefaultVCSIgnores)
	if err != nil {
		t.Fatal(err)
	}

	var calls int
	s := New(ignorer, countingParser(&calls), testLogger())

	results, err := s.ScanFull(context.Background(), []string{root})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 { // a.php parsed, big.php recorded but empty
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	var sawA, sawBig bool
	for _, r := range results {
		switch filepath.Base(r.Path) {
		case "a.php":
			sawA = true
			if len(r.Symbols) != 1 {
				t.Fatalf("expected 1 symbol for a.php, got %d", len(r.Symbols))
			}
		case "big.php":
			sawBig = true
			if !r.Skipped {
				t.Fatal("expected big.php to be marked skipped")
			}
			if len(r.Symbols) != 0 {
				t.Fatalf("expected 0 symbols for big.php, got %d", len(r.Symbols))
			}
		}
	}
	if !sawA {
		t.Fatal("expected a.php in results")
	}
	if !sawBig {
		t.Fatal("expected big.php in results")
	}
	if calls != 1 {
		t.Fatalf("expected parser called once, got %d", calls)
	}
}

func TestIgnorerNegationReincludes(t *testing.T) {
	ignorer, err := NewIgnorer([]string{"vendor/**", "!vendor/keep/**"})
	if err != nil {
		t.Fatal(err)
	}

	if !ignorer.Matches("vendor/a.php") {
		t.Fatal("expected vendor/a.php to be ignored")
	}
	if ignorer.Matches("vendor/keep/a.php") {
		t.Fatal("expected vendor/keep/a.php to be re-included")
	}
}

func TestScanSubsetParsesOnlyGivenPaths(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.php")
	b := filepath.Join(root, "b.php")
	if err := os.WriteFile(a, []byte("<?php"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("<?php"), 0644); err != nil {
		t.Fatal(err)
	}

	ignorer, err := NewIgnorer(nil)
	if err != nil {
		t.Fatal(err)
	}
	var calls int
	s := New(ignorer, countingParser(&calls), testLogger())

	results := s.ScanSubset(context.Background(), []string{a})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if calls != 1 {
		t.Fatalf("expected parser called once, got %d", calls)
	}
}

func TestLoadVCSIgnoreFilesTranslatesGitignoreSyntax(t *testing.T) {
	root := t.TempDir()
	contents := "# comment\n\n/vendor\nbuild/\n!build/keep\n"
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	patterns, err := LoadVCSIgnoreFiles(root)
	if err != nil {
		t.Fatal(err)
	}

	ignorer, err := NewIgnorer(patterns)
	if err != nil {
		t.Fatal(err)
	}

	if !ignorer.Matches("vendor/a.php") {
		t.Fatal("expected anchored /vendor pattern to ignore vendor/a.php")
	}
	if ignorer.Matches("src/vendor/a.php") {
		t.Fatal("anchored /vendor pattern must not match at other depths")
	}
	if !ignorer.Matches("build/output.php") {
		t.Fatal("expected directory pattern build/ to ignore build/output.php")
	}
	if ignorer.Matches("build/keep") {
		t.Fatal("expected negated !build/keep to re-include build/keep")
	}
}

func TestLoadVCSIgnoreFilesAbsentIsNotAnError(t *testing.T) {
	root := t.TempDir()
	patterns, err := LoadVCSIgnoreFiles(root)
	if err != nil {
		t.Fatal(err)
	}
	if patterns != nil {
		t.Fatalf("expected no patterns, got %v", patterns)
	}
}
