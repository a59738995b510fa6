// Package phpparser is a reference implementation of the external Parser
// collaborator described in §1 and §9 of the specification: a pure function
// from (path, contents) to a slice of metadata.SymbolMetadata. It is
// deliberately NOT a production PHP grammar — just a regex/tokenizer-based
// reader sufficient to exercise the daemon's contract and drive the §8 seed
// scenarios (class-level and member-level attributes on classes,
// interfaces, traits, and enums). Any concrete parser producing the same
// SymbolMetadata shape is an acceptable substitute; the daemon core does
// not dictate syntax-tree traversal strategy.
package phpparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aurynx/discovery/pkg/metadata"
)

var (
	namespaceRe  = regexp.MustCompile(`(?m)^\s*namespace\s+([A-Za-z0-9_\\]+)\s*;`)
	classDeclRe  = regexp.MustCompile(`\b(class|interface|trait|enum)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	methodRe     = regexp.MustCompile(`(?:(?:public|protected|private|static|final|abstract)\s+)*function\s+&?\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	propertyRe   = regexp.MustCompile(`(?:(?:public|protected|private|readonly|static)\s+)+(?:[?A-Za-z0-9_\\|]+\s+)?\$([A-Za-z_][A-Za-z0-9_]*)`)
	enumCaseRe   = regexp.MustCompile(`\bcase\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

// attrBlock is one `#[...]` occurrence, located by byte offset in the
// original source so member scanning (which operates on body substrings)
// can still associate attributes correctly by converting local matches
// back to absolute offsets.
type attrBlock struct {
	start int // index of '#'
	end   int // index just past the closing ']'
	raw   string
}

// Parse reads contents as PHP source and returns every class, interface,
// trait, and enum it declares along with their attributes and members. It
// satisfies scanner.ParseFunc.
func Parse(path string, contents []byte) ([]metadata.SymbolMetadata, error) {
	text := string(contents)
	blocks := scanAttributeBlocks(text)

	namespace := ""
	if m := namespaceRe.FindStringSubmatch(text); m != nil {
		namespace = m[1]
	}

	var symbols []metadata.SymbolMetadata

	for _, idx := range classDeclRe.FindAllStringSubmatchIndex(text, -1) {
		kindText := text[idx[2]:idx[3]]
		name := text[idx[4]:idx[5]]

		braceOffset := strings.IndexByte(text[idx[5]:], '{')
		if braceOffset == -1 {
			continue
		}
		bodyStart := idx[5] + braceOffset + 1
		body, _ := extractBalancedBody(text, bodyStart-1)

		kind := kindOf(kindText)
		symbol := metadata.SymbolMetadata{
			FQN:        fqnOf(namespace, name),
			Path:       path,
			Kind:       kind,
			Attributes: attributesBefore(blocks, idx[0], text),
			Methods:    parseMembers(text, body, bodyStart, methodRe, blocks),
			Properties: parseMembers(text, body, bodyStart, propertyRe, blocks),
		}
		if kind == metadata.KindEnum {
			symbol.Properties = append(symbol.Properties, parseMembers(text, body, bodyStart, enumCaseRe, blocks)...)
		}

		symbols = append(symbols, symbol)
	}

	return symbols, nil
}

func kindOf(keyword string) metadata.Kind {
	switch keyword {
	case "interface":
		return metadata.KindInterface
	case "trait":
		return metadata.KindTrait
	case "enum":
		return metadata.KindEnum
	default:
		return metadata.KindClass
	}
}

func fqnOf(namespace, name string) string {
	if namespace == "" {
		return `\` + name
	}
	return `\` + namespace + `\` + name
}

// extractBalancedBody returns the text between a brace at openIndex and its
// matching closing brace, exclusive of both braces.
func extractBalancedBody(text string, openIndex int) (string, int) {
	depth := 0
	for i := openIndex; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[openIndex+1 : i], i
			}
		}
	}
	return text[openIndex+1:], len(text)
}

// parseMembers runs memberRe (a method, property, or enum-case declaration
// pattern with the capture group holding the member's name) over body and
// resolves each match's attributes by converting its local offset back to
// an absolute offset into text.
func parseMembers(text, body string, bodyStart int, memberRe *regexp.Regexp, blocks []attrBlock) []metadata.Member {
	var members []metadata.Member
	for _, idx := range memberRe.FindAllStringSubmatchIndex(body, -1) {
		name := body[idx[2]:idx[3]]
		absoluteStart := bodyStart + idx[0]
		members = append(members, metadata.Member{
			Name:       name,
			Attributes: attributesBefore(blocks, absoluteStart, text),
		})
	}
	return members
}

// scanAttributeBlocks locates every `#[...]` block in text, tracking
// bracket depth (so a nested array literal's `]` doesn't terminate the
// block early) and skipping over string-literal contents.
func scanAttributeBlocks(text string) []attrBlock {
	var blocks []attrBlock
	i := 0
	for i < len(text)-1 {
		if text[i] != '#' || text[i+1] != '[' {
			i++
			continue
		}
		start := i
		depth := 1
		j := i + 2
		inString := byte(0)
		for j < len(text) && depth > 0 {
			c := text[j]
			if inString != 0 {
				if c == '\\' {
					j += 2
					continue
				}
				if c == inString {
					inString = 0
				}
				j++
				continue
			}
			switch c {
			case '"', '\'':
				inString = c
			case '[':
				depth++
			case ']':
				depth--
			}
			j++
		}
		end := j
		raw := text[start+2 : end-1]
		blocks = append(blocks, attrBlock{start: start, end: end, raw: raw})
		i = end
	}
	return blocks
}

// attributesBefore collects the attribute blocks immediately preceding pos
// (separated only by whitespace), in source order, and parses them.
func attributesBefore(blocks []attrBlock, pos int, text string) []metadata.Attribute {
	var selected []attrBlock
	cursor := pos
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.end > cursor {
			continue
		}
		if strings.TrimSpace(text[b.end:cursor]) != "" {
			break
		}
		selected = append([]attrBlock{b}, selected...)
		cursor = b.start
	}

	var attributes []metadata.Attribute
	for _, b := range selected {
		attributes = append(attributes, parseAttributeList(b.raw)...)
	}
	return attributes
}

// parseAttributeList parses the comma-separated attribute expressions
// inside a single `#[...]` block (PHP permits `#[Foo, Bar(1)]`).
func parseAttributeList(raw string) []metadata.Attribute {
	var attributes []metadata.Attribute
	for _, item := range splitTopLevel(raw, ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if attr, ok := parseAttribute(item); ok {
			attributes = append(attributes, attr)
		}
	}
	return attributes
}

// parseAttribute parses one `Name` or `Name(arg, key: value, ...)` attribute
// expression.
func parseAttribute(expr string) (metadata.Attribute, bool) {
	open := strings.IndexByte(expr, '(')
	if open == -1 {
		return metadata.Attribute{Name: strings.TrimSpace(expr)}, true
	}
	trimmed := strings.TrimSpace(expr)
	if !strings.HasSuffix(trimmed, ")") {
		return metadata.Attribute{}, false
	}
	name := strings.TrimSpace(expr[:open])
	argText := trimmed[open+1 : len(trimmed)-1]

	args := make(map[string]metadata.Value)
	position := 0
	for _, raw := range splitTopLevel(argText, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, value := parseArgument(raw, position)
		args[key] = value
		position++
	}
	return metadata.Attribute{Name: name, Arguments: args}, true
}

// parseArgument parses a single `key: value`, `key=value`, or bare
// positional `value` argument, returning the key to store it under
// (positional arguments are stored under their stringified index) and its
// parsed Value.
func parseArgument(raw string, position int) (string, metadata.Value) {
	if key, rest, ok := splitNamedArgument(raw); ok {
		return key, parseValue(rest)
	}
	return strconv.Itoa(position), parseValue(raw)
}

// splitNamedArgument recognizes PHP 8 named-argument syntax (`key: value`)
// as well as the spec's own `key=value` examples, splitting on whichever
// separator appears first outside of a string literal.
func splitNamedArgument(raw string) (key, rest string, ok bool) {
	inString := byte(0)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString != 0 {
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = c
		case ':', '=':
			candidate := strings.TrimSpace(raw[:i])
			if isIdentifier(candidate) {
				return candidate, strings.TrimSpace(raw[i+1:]), true
			}
		}
	}
	return "", raw, false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// parseValue parses a scalar, array literal, or nested-attribute reference
// value expression.
func parseValue(raw string) metadata.Value {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2:
		return metadata.Value{Scalar: strings.Trim(raw, `"`)}
	case strings.HasPrefix(raw, `'`) && strings.HasSuffix(raw, `'`) && len(raw) >= 2:
		return metadata.Value{Scalar: strings.Trim(raw, `'`)}
	case strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"):
		return parseArrayValue(raw[1 : len(raw)-1])
	case raw == "true":
		return metadata.Value{Scalar: true}
	case raw == "false":
		return metadata.Value{Scalar: false}
	case raw == "null":
		return metadata.Value{Scalar: nil}
	case strings.HasPrefix(raw, "new "):
		inner := strings.TrimSpace(strings.TrimPrefix(raw, "new "))
		if attr, ok := parseAttribute(inner); ok {
			return metadata.Value{Attribute: &attr}
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return metadata.Value{Scalar: n}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return metadata.Value{Scalar: f}
	}
	// Fall back to the raw token (e.g. a bare constant reference) as a
	// string scalar; this reference parser does not resolve constants.
	return metadata.Value{Scalar: raw}
}

// parseArrayValue parses the interior of a `[...]` literal, distinguishing
// a plain list from an associative array by whether any element carries a
// `key =>` prefix.
func parseArrayValue(inner string) metadata.Value {
	elements := splitTopLevel(inner, ',')
	assoc := make(map[string]metadata.Value)
	var list []metadata.Value
	isAssoc := false

	for _, el := range elements {
		el = strings.TrimSpace(el)
		if el == "" {
			continue
		}
		if key, rest, ok := splitArrowKey(el); ok {
			isAssoc = true
			assoc[key] = parseValue(rest)
			continue
		}
		list = append(list, parseValue(el))
	}

	if isAssoc {
		return metadata.Value{Map: assoc}
	}
	return metadata.Value{List: list}
}

func splitArrowKey(el string) (key, rest string, ok bool) {
	idx := strings.Index(el, "=>")
	if idx == -1 {
		return "", "", false
	}
	key = strings.Trim(strings.TrimSpace(el[:idx]), `"'`)
	rest = strings.TrimSpace(el[idx+2:])
	return key, rest, true
}

// splitTopLevel splits s on sep, ignoring occurrences nested within
// parentheses, brackets, or string literals.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inString := byte(0)
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString != 0 {
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = c
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		default:
			if c == sep && depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
