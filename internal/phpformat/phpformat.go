// Package phpformat is a reference implementation of the external Formatter
// collaborator described in §6 and §9 of the specification: a pure function
// from a stable metadata.Index snapshot to the bytes of a self-contained PHP
// cache artifact. Like internal/phpparser it is sufficient to pass §8's seed
// scenarios, not a general-purpose code generator; any formatter producing
// the same `FQN -> {file, type, attributes, methods, properties}` shape is
// an acceptable substitute.
package phpformat

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aurynx/discovery/pkg/metadata"
)

// Format renders snapshot as a complete PHP source file: a language
// directive, a strict-types declaration, and a single top-level array
// literal keyed by FQN. When pretty is true the array is indented for human
// reading; otherwise the whole array is rendered on a single line to keep
// the artifact compact.
func Format(snapshot []metadata.SymbolMetadata, pretty bool) []byte {
	sorted := make([]metadata.SymbolMetadata, len(snapshot))
	copy(sorted, snapshot)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FQN < sorted[j].FQN })

	var buf bytes.Buffer
	buf.WriteString("<?php\n\ndeclare(strict_types=1);\n\nreturn ")

	w := &writer{buf: &buf, pretty: pretty}
	w.writeMap(len(sorted), func(emit func(key string, value func())) {
		for _, symbol := range sorted {
			symbol := symbol
			emit(symbol.FQN, func() { w.writeSymbol(symbol) })
		}
	}, 0)

	buf.WriteString(";\n")
	return buf.Bytes()
}

// writer accumulates the rendered array literal, tracking indentation when
// pretty printing is requested.
type writer struct {
	buf    *bytes.Buffer
	pretty bool
}

func (w *writer) indent(depth int) string {
	if !w.pretty {
		return ""
	}
	return strings.Repeat("    ", depth)
}

func (w *writer) newline() string {
	if !w.pretty {
		return ""
	}
	return "\n"
}

// writeMap renders a PHP associative array with n entries, each produced by
// a call to emit from within build.
func (w *writer) writeMap(n int, build func(emit func(key string, value func())), depth int) {
	if n == 0 {
		w.buf.WriteString("[]")
		return
	}

	w.buf.WriteString("[")
	w.buf.WriteString(w.newline())

	first := true
	emit := func(key string, value func()) {
		if !first {
			w.buf.WriteString(",")
			w.buf.WriteString(w.newline())
		}
		first = false
		w.buf.WriteString(w.indent(depth + 1))
		w.buf.WriteString(phpString(key))
		w.buf.WriteString(" => ")
		value()
	}
	build(emit)

	w.buf.WriteString(w.newline())
	w.buf.WriteString(w.indent(depth))
	w.buf.WriteString("]")
}

// writeList renders a PHP list array (sequential integer keys, written
// without explicit keys).
func (w *writer) writeList(n int, build func(emit func(value func())), depth int) {
	if n == 0 {
		w.buf.WriteString("[]")
		return
	}

	w.buf.WriteString("[")
	w.buf.WriteString(w.newline())

	first := true
	emit := func(value func()) {
		if !first {
			w.buf.WriteString(",")
			w.buf.WriteString(w.newline())
		}
		first = false
		w.buf.WriteString(w.indent(depth + 1))
		value()
	}
	build(emit)

	w.buf.WriteString(w.newline())
	w.buf.WriteString(w.indent(depth))
	w.buf.WriteString("]")
}

func (w *writer) writeSymbol(symbol metadata.SymbolMetadata) {
	w.writeMap(5, func(emit func(key string, value func())) {
		emit("file", func() { w.buf.WriteString(phpString(symbol.Path)) })
		emit("type", func() { w.buf.WriteString(phpString(string(symbol.Kind))) })
		emit("attributes", func() { w.writeAttributeMap(symbol.Attributes, 2) })
		emit("methods", func() { w.writeMemberMap(symbol.Methods, 2) })
		emit("properties", func() { w.writeMemberMap(symbol.Properties, 2) })
	}, 1)
}

// writeAttributeMap groups attributes by FQN, since the same attribute may
// be applied more than once (§8 S1: `attributes: {\\R: [{path: "/x"}]}` —
// each attribute name maps to a list of its occurrences' arguments).
func (w *writer) writeAttributeMap(attributes []metadata.Attribute, depth int) {
	byName := make(map[string][]metadata.Attribute)
	var names []string
	for _, attr := range attributes {
		if _, seen := byName[attr.Name]; !seen {
			names = append(names, attr.Name)
		}
		byName[attr.Name] = append(byName[attr.Name], attr)
	}
	sort.Strings(names)

	w.writeMap(len(names), func(emit func(key string, value func())) {
		for _, name := range names {
			occurrences := byName[name]
			key := name
			if !strings.HasPrefix(key, `\`) {
				key = `\` + key
			}
			emit(key, func() {
				w.writeList(len(occurrences), func(emitItem func(value func())) {
					for _, occurrence := range occurrences {
						occurrence := occurrence
						emitItem(func() { w.writeArguments(occurrence.Arguments, depth+1) })
					}
				}, depth+1)
			})
		}
	}, depth)
}

func (w *writer) writeArguments(args map[string]metadata.Value, depth int) {
	var keys []string
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.writeMap(len(keys), func(emit func(key string, value func())) {
		for _, k := range keys {
			v := args[k]
			emit(k, func() { w.writeValue(v, depth+1) })
		}
	}, depth)
}

func (w *writer) writeMemberMap(members []metadata.Member, depth int) {
	sorted := make([]metadata.Member, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	w.writeMap(len(sorted), func(emit func(key string, value func())) {
		for _, member := range sorted {
			member := member
			emit(member.Name, func() {
				w.writeMap(1, func(emit func(key string, value func())) {
					emit("attributes", func() { w.writeAttributeMap(member.Attributes, depth+2) })
				}, depth+1)
			})
		}
	}, depth)
}

func (w *writer) writeValue(v metadata.Value, depth int) {
	switch {
	case v.Attribute != nil:
		w.writeMap(2, func(emit func(key string, value func())) {
			emit("attribute", func() { w.buf.WriteString(phpString(v.Attribute.Name)) })
			emit("arguments", func() { w.writeArguments(v.Attribute.Arguments, depth+1) })
		}, depth)
	case v.Map != nil:
		var keys []string
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.writeMap(len(keys), func(emit func(key string, value func())) {
			for _, k := range keys {
				value := v.Map[k]
				emit(k, func() { w.writeValue(value, depth+1) })
			}
		}, depth)
	case v.List != nil:
		w.writeList(len(v.List), func(emit func(value func())) {
			for _, item := range v.List {
				item := item
				emit(func() { w.writeValue(item, depth+1) })
			}
		}, depth)
	default:
		w.buf.WriteString(phpScalar(v.Scalar))
	}
}

// phpString renders s as a single-quoted PHP string literal, doubling
// backslashes and escaping single quotes as required by §6.
func phpString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func phpScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return phpString(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return phpString(fmt.Sprintf("%v", val))
	}
}
