package phpformat

import (
	"strings"
	"testing"

	"github.com/aurynx/discovery/pkg/metadata"
)

func TestFormatSeedScenarioS1Shape(t *testing.T) {
	snapshot := []metadata.SymbolMetadata{
		{
			FQN:  `\A\B`,
			Path: "a.php",
			Kind: metadata.KindClass,
			Attributes: []metadata.Attribute{
				{Name: "R", Arguments: map[string]metadata.Value{"path": {Scalar: "/x"}}},
			},
		},
	}

	out := string(Format(snapshot, false))

	if !strings.HasPrefix(out, "<?php\n\n") {
		t.Fatalf("expected PHP open tag prefix, got %q", out)
	}
	for _, want := range []string{
		"declare(strict_types=1);",
		`'\\A\\B'`,
		`'file' => 'a.php'`,
		`'type' => 'class'`,
		`'\\R' => [`,
		`'path' => '/x'`,
		`'methods' => []`,
		`'properties' => []`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFormatEmptySnapshotProducesEmptyArray(t *testing.T) {
	out := string(Format(nil, false))
	if !strings.Contains(out, "return [];") {
		t.Fatalf("expected empty array return, got %q", out)
	}
}

func TestFormatPrettyIndentsEntries(t *testing.T) {
	snapshot := []metadata.SymbolMetadata{
		{FQN: `\A\B`, Path: "a.php", Kind: metadata.KindClass},
	}
	out := string(Format(snapshot, true))
	if !strings.Contains(out, "\n    '\\\\A\\\\B' => [\n") {
		t.Fatalf("expected indented entry, got %q", out)
	}
}

func TestFormatMethodCarriesAttribute(t *testing.T) {
	snapshot := []metadata.SymbolMetadata{
		{
			FQN:  `\A\B`,
			Path: "a.php",
			Kind: metadata.KindClass,
			Methods: []metadata.Member{
				{Name: "handle", Attributes: []metadata.Attribute{{Name: "M"}}},
			},
		},
	}
	out := string(Format(snapshot, false))
	if !strings.Contains(out, `'handle' => ['attributes' => ['\\M' => [[]]]]`) {
		t.Fatalf("expected method attribute entry, got %q", out)
	}
}

func TestFormatDeletedFileProducesNoEntry(t *testing.T) {
	out := string(Format([]metadata.SymbolMetadata{}, false))
	if strings.Contains(out, `A\\B`) {
		t.Fatalf("expected no stale entry, got %q", out)
	}
}
