package phpparser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aurynx/discovery/pkg/metadata"
)

const seedClass = `<?php

namespace A;

#[R(path: "/x")]
class B
{
    #[M]
    public function handle(): void
    {
    }

    #[Prop]
    private string $name;
}
`

func TestParseSeedClassMatchesScenarioS1Shape(t *testing.T) {
	symbols, err := Parse("a.php", []byte(seedClass))
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(symbols))
	}

	got := symbols[0]
	want := metadata.SymbolMetadata{
		FQN:  `\A\B`,
		Path: "a.php",
		Kind: metadata.KindClass,
		Attributes: []metadata.Attribute{
			{Name: "R", Arguments: map[string]metadata.Value{"path": {Scalar: "/x"}}},
		},
		Methods: []metadata.Member{
			{Name: "handle", Attributes: []metadata.Attribute{{Name: "M"}}},
		},
		Properties: []metadata.Member{
			{Name: "name", Attributes: []metadata.Attribute{{Name: "Prop"}}},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parsed symbol mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHandlesEnumCases(t *testing.T) {
	source := `<?php
namespace A;

enum Status
{
    #[Label("Active")]
    case Active;
    case Inactive;
}
`
	symbols, err := Parse("status.php", []byte(source))
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(symbols))
	}
	if symbols[0].Kind != metadata.KindEnum {
		t.Fatalf("expected KindEnum, got %v", symbols[0].Kind)
	}
	if len(symbols[0].Properties) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(symbols[0].Properties))
	}
	if symbols[0].Properties[0].Name != "Active" {
		t.Fatalf("expected first case Active, got %s", symbols[0].Properties[0].Name)
	}
}

func TestParseNestedArrayAttributeArgument(t *testing.T) {
	source := `<?php
namespace A;

#[Route(methods: ["GET", "POST"])]
class C
{
}
`
	symbols, err := Parse("c.php", []byte(source))
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(symbols))
	}
	if len(symbols[0].Attributes) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(symbols[0].Attributes))
	}

	arg := symbols[0].Attributes[0].Arguments["methods"]
	if len(arg.List) != 2 {
		t.Fatalf("expected 2 list entries, got %d", len(arg.List))
	}
	if arg.List[0].Scalar != "GET" {
		t.Fatalf("expected first entry GET, got %s", arg.List[0].Scalar)
	}
}

func TestParseUnnamespacedClass(t *testing.T) {
	symbols, err := Parse("d.php", []byte("<?php\nclass D {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(symbols))
	}
	if symbols[0].FQN != `\D` {
		t.Fatalf("expected FQN \\D, got %s", symbols[0].FQN)
	}
}
