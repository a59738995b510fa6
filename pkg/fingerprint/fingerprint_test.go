package fingerprint

import (
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func sortedStrings(s []string) []string {
	out := append([]string{}, s...)
	sort.Strings(out)
	return out
}

func equalStringSets(t *testing.T, got, want []string) {
	t.Helper()
	got, want = sortedStrings(got), sortedStrings(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestReconcileDetectsNewChangedAndEvicted(t *testing.T) {
	idx := NewIndex()
	now := time.Unix(1_700_000_000, 0)

	toParse, toEvict := idx.Reconcile(map[string]Fingerprint{
		"a.php": {Size: 10, ModTime: now},
	})
	equalStringSets(t, toParse, []string{"a.php"})
	if len(toEvict) != 0 {
		t.Fatalf("expected no evictions, got %v", toEvict)
	}
	idx.Commit("a.php", Fingerprint{Size: 10, ModTime: now})

	toParse, toEvict = idx.Reconcile(map[string]Fingerprint{
		"a.php": {Size: 11, ModTime: now},
		"b.php": {Size: 5, ModTime: now},
	})
	equalStringSets(t, toParse, []string{"a.php", "b.php"})
	if len(toEvict) != 0 {
		t.Fatalf("expected no evictions, got %v", toEvict)
	}
	idx.Commit("a.php", Fingerprint{Size: 11, ModTime: now})
	idx.Commit("b.php", Fingerprint{Size: 5, ModTime: now})

	toParse, toEvict = idx.Reconcile(map[string]Fingerprint{
		"b.php": {Size: 5, ModTime: now},
	})
	if len(toParse) != 0 {
		t.Fatalf("expected nothing to parse, got %v", toParse)
	}
	equalStringSets(t, toEvict, []string{"a.php"})
}

func TestEqualPrefersContentHashWhenPresent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := Fingerprint{Size: 10, ModTime: now, ContentHash: "x"}
	b := Fingerprint{Size: 999, ModTime: now.Add(time.Hour), ContentHash: "x"}
	if !Equal(a, b) {
		t.Fatal("expected fingerprints with matching content hash to be equal")
	}

	c := Fingerprint{Size: 10, ModTime: now, ContentHash: "y"}
	if Equal(a, c) {
		t.Fatal("expected fingerprints with differing content hash to be unequal")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fingerprints.db")
	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Unix(1_700_000_000, 0)
	original := map[string]Fingerprint{
		"a.php": {Size: 10, ModTime: now},
		"b.php": {Size: 20, ModTime: now, ContentHash: "deadbeef"},
	}
	if err := store.Save(original); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	if loaded["a.php"].Size != original["a.php"].Size {
		t.Fatalf("expected a.php size %d, got %d", original["a.php"].Size, loaded["a.php"].Size)
	}
	if loaded["b.php"].ContentHash != original["b.php"].ContentHash {
		t.Fatalf("expected b.php hash %q, got %q", original["b.php"].ContentHash, loaded["b.php"].ContentHash)
	}
}
