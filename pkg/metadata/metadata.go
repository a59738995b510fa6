// Package metadata holds the data model shared between the Scanner, the
// Cache Store, and the external Parser/Formatter collaborators: the
// MetadataIndex that the daemon keeps coherent with a live PHP source tree.
package metadata

import "sync"

// Kind identifies the declaration kind of a scanned symbol.
type Kind string

const (
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindTrait     Kind = "trait"
	KindEnum      Kind = "enum"
)

// Value is a single attribute argument value: a scalar, a list of Values, a
// map of named Values, or a nested Attribute reference. Exactly one field is
// populated.
type Value struct {
	Scalar    any               `json:"scalar,omitempty"`
	List      []Value           `json:"list,omitempty"`
	Map       map[string]Value  `json:"map,omitempty"`
	Attribute *Attribute        `json:"attribute,omitempty"`
}

// Attribute is a declarative annotation attached to a symbol or member.
type Attribute struct {
	Name      string           `json:"name"`
	Arguments map[string]Value `json:"arguments,omitempty"`
}

// Member is a method, property, or enum case belonging to a symbol, along
// with any attributes attached to it.
type Member struct {
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// SymbolMetadata is everything the daemon knows about one fully-qualified
// symbol declaration.
type SymbolMetadata struct {
	// FQN is the fully-qualified name, e.g. `\App\Controller\User`.
	FQN string `json:"fqn"`
	// Path is the source path, relative to the root it was discovered under.
	Path string `json:"path"`
	Kind Kind   `json:"type"`

	Attributes []Attribute `json:"attributes,omitempty"`
	Methods    []Member    `json:"methods,omitempty"`
	Properties []Member    `json:"properties,omitempty"`
}

// Index is a mapping FQN -> SymbolMetadata plus a reverse index path -> set
// of FQN, updated atomically together so that a file's symbols can be evicted
// in one step when the file is deleted or edited. Index is safe for
// concurrent use; all mutating methods take the same lock that Snapshot
// reads under, so a Snapshot never observes a half-applied Apply.
type Index struct {
	mu       sync.RWMutex
	symbols  map[string]SymbolMetadata  // FQN -> metadata
	byPath   map[string]map[string]bool // path -> set of FQN
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		symbols: make(map[string]SymbolMetadata),
		byPath:  make(map[string]map[string]bool),
	}
}

// Apply evicts every symbol previously associated with each path in evict,
// then upserts every symbol in upsert, as a single atomic step under the
// index's lock. Symbols in upsert are keyed by their own Path field, which
// need not be the same as a path in evict (a rename shows up as an evict of
// the old path and an upsert under the new one).
func (idx *Index) Apply(evict []string, upsert []SymbolMetadata) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, path := range evict {
		for fqn := range idx.byPath[path] {
			delete(idx.symbols, fqn)
		}
		delete(idx.byPath, path)
	}

	for _, symbol := range upsert {
		if existing, ok := idx.symbols[symbol.FQN]; ok && existing.Path != symbol.Path {
			if set, ok := idx.byPath[existing.Path]; ok {
				delete(set, symbol.FQN)
			}
		}
		idx.symbols[symbol.FQN] = symbol
		if idx.byPath[symbol.Path] == nil {
			idx.byPath[symbol.Path] = make(map[string]bool)
		}
		idx.byPath[symbol.Path][symbol.FQN] = true
	}
}

// Snapshot returns a copy of every symbol currently in the index, stable
// against concurrent Apply calls, for the Formatter to render.
func (idx *Index) Snapshot() []SymbolMetadata {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snapshot := make([]SymbolMetadata, 0, len(idx.symbols))
	for _, symbol := range idx.symbols {
		snapshot = append(snapshot, symbol)
	}
	return snapshot
}

// Len reports the number of symbols currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.symbols)
}
