package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tailscale/hujson"
)

// DefaultVCSIgnores are directory-rooted patterns excluded unconditionally,
// independent of any user-supplied ignore list.
var DefaultVCSIgnores = []string{
	".git/**", ".svn/**", ".hg/**", ".bzr/**", "_darcs/**",
}

// supplementFileName is the optional, HUJSON-formatted ignore file a project
// may commit at a scan root.
const supplementFileName = ".discoveryignore.hujson"

// vcsIgnoreFileNames are the conventional per-root ignore files read
// alongside the supplement: whatever a project already commits for its
// version-control tool is honored without requiring a second copy of the
// same rules in .discoveryignore.hujson.
var vcsIgnoreFileNames = []string{".gitignore", ".hgignore", ".bzrignore"}

// pattern is a single parsed ignore pattern using full `**` doublestar glob
// semantics, with an optional leading "!" negating a prior match.
type pattern struct {
	negated bool
	glob    string
}

// Ignorer decides, for a path relative to a scan root, whether it should be
// excluded from the walk.
type Ignorer struct {
	patterns []pattern
}

// NewIgnorer compiles patterns (in order: VCS defaults, then CLI --ignore
// flags, then any per-root .gitignore/.hgignore/.bzrignore and supplement
// file patterns the caller appends) into an Ignorer. Later patterns take
// precedence, matching conventional ignore-file semantics (a later
// "!keep-me" un-ignores an earlier broad exclusion).
func NewIgnorer(patterns []string) (*Ignorer, error) {
	compiled := make([]pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		negated := strings.HasPrefix(raw, "!")
		glob := strings.TrimPrefix(raw, "!")
		if _, err := doublestar.Match(glob, "probe"); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", raw, err)
		}
		compiled = append(compiled, pattern{negated: negated, glob: glob})
	}
	return &Ignorer{patterns: compiled}, nil
}

// Matches reports whether relPath (slash-separated, relative to the scan
// root) should be excluded. The last matching pattern wins, so a narrower
// negation after a broad exclusion re-includes a path.
func (ig *Ignorer) Matches(relPath string) bool {
	ignored := false
	for _, p := range ig.patterns {
		if matched, _ := doublestar.Match(p.glob, relPath); matched {
			ignored = !p.negated
		}
	}
	return ignored
}

// LoadSupplement reads the optional .discoveryignore.hujson file at root, if
// present, and returns its ignore patterns. Absence of the file is not an
// error.
func LoadSupplement(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, supplementFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read %s: %w", supplementFileName, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", supplementFileName, err)
	}

	var supplement struct {
		Ignore []string `json:"ignore"`
	}
	if err := json.Unmarshal(standardized, &supplement); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", supplementFileName, err)
	}
	return supplement.Ignore, nil
}

// LoadVCSIgnoreFiles reads whichever of .gitignore, .hgignore, and
// .bzrignore are present at root and translates their patterns into the
// doublestar glob syntax NewIgnorer expects. Absence of any of them is not
// an error; a project with no ignore file at all returns a nil slice.
func LoadVCSIgnoreFiles(root string) ([]string, error) {
	var patterns []string
	for _, name := range vcsIgnoreFileNames {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("unable to read %s: %w", name, err)
		}
		patterns = append(patterns, translateVCSIgnoreLines(data)...)
	}
	return patterns, nil
}

// translateVCSIgnoreLines parses the .gitignore line syntax (shared in
// substance by .hgignore's glob mode and .bzrignore): blank lines and "#"
// comments are skipped, a leading "!" negates, a leading "/" anchors the
// pattern to root instead of matching at any depth, and a trailing "/"
// restricts the match to directories and everything beneath them. A
// doublestar glob has no notion of "this entry, or, if it's a directory,
// everything under it" the way a VCS ignore file does, so a non-directory
// pattern is expanded into both the literal match and its "/**" subtree.
func translateVCSIgnoreLines(data []byte) []string {
	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		negated := strings.HasPrefix(trimmed, "!")
		glob := strings.TrimPrefix(trimmed, "!")

		dirOnly := strings.HasSuffix(glob, "/")
		glob = strings.TrimSuffix(glob, "/")

		anchored := strings.HasPrefix(glob, "/")
		glob = strings.TrimPrefix(glob, "/")

		variants := []string{glob + "/**"}
		if !dirOnly {
			variants = append([]string{glob}, variants...)
		}

		for _, variant := range variants {
			if !anchored {
				variant = "**/" + variant
			}
			if negated {
				variant = "!" + variant
			}
			patterns = append(patterns, variant)
		}
	}
	return patterns
}
