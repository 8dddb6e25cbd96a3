package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Names resolved from the document rather than from prior steps.
const (
	fieldTitle   = "title"
	fieldContent = "content"
	fieldDocID   = "doc_id"
	fieldMeta    = "meta"
)

var reservedNames = map[string]struct{}{
	fieldTitle:   {},
	fieldContent: {},
	fieldDocID:   {},
	fieldMeta:    {},
}

// IsReserved reports whether name is resolved from the document and therefore
// cannot be used as a section.
func IsReserved(name string) bool {
	_, ok := reservedNames[name]
	return ok
}

// Template is a compiled prompt template.
//
// Placeholders are written {name} or {name.field.sub}; {{ and }} produce
// literal braces. title, content, doc_id and meta.<column> come from the
// document, every other root name from the step context.
type Template struct {
	src  string
	segs []segment
}

type segment struct {
	literal string
	raw     string // placeholder text; empty for literals
	path    []string
}

// Compile parses src into a Template.
func Compile(src string) (*Template, error) {
	t := &Template{src: src}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segs = append(t.segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		switch src[i] {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated placeholder at offset %d", internalerr.ErrMalformedTemplate, i)
			}
			raw := src[i+1 : i+1+end]
			path, err := parsePath(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: placeholder {%s} at offset %d: %v", internalerr.ErrMalformedTemplate, raw, i, err)
			}
			flush()
			t.segs = append(t.segs, segment{raw: raw, path: path})
			i += end + 2
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at offset %d", internalerr.ErrMalformedTemplate, i)
		default:
			lit.WriteByte(src[i])
			i++
		}
	}
	flush()
	return t, nil
}

func parsePath(raw string) ([]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty name")
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if err := checkName(p); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// checkName reports whether name can appear as one element of a placeholder
// path. Dots separate elements; braces, quotes and whitespace are rejected so
// literal JSON in a template fails at compile time.
func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("empty path element")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || strings.ContainsRune(".{}\"'", r) {
			return fmt.Errorf("invalid character %q", r)
		}
	}
	return nil
}

// Source returns the uncompiled template text.
func (t *Template) Source() string { return t.src }

// Placeholders lists the distinct placeholders in order of first appearance.
func (t *Template) Placeholders() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range t.segs {
		if s.raw == "" {
			continue
		}
		if _, ok := seen[s.raw]; ok {
			continue
		}
		seen[s.raw] = struct{}{}
		out = append(out, s.raw)
	}
	return out
}

// Render substitutes every placeholder. An unresolvable placeholder fails
// with ErrMissingContextKey.
func (t *Template) Render(doc pipeline.Document, ctx pipeline.Context) (string, error) {
	var buf strings.Builder
	buf.Grow(len(t.src))
	for _, s := range t.segs {
		if s.raw == "" {
			buf.WriteString(s.literal)
			continue
		}
		v, ok := resolve(s.path, doc, ctx)
		if !ok {
			return "", fmt.Errorf("%w: {%s}", internalerr.ErrMissingContextKey, s.raw)
		}
		text, err := formatValue(v)
		if err != nil {
			return "", fmt.Errorf("render {%s}: %w", s.raw, err)
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

func resolve(path []string, doc pipeline.Document, ctx pipeline.Context) (any, bool) {
	root, rest := path[0], path[1:]
	switch root {
	case fieldTitle:
		return doc.Title, len(rest) == 0
	case fieldContent:
		return doc.Payload, len(rest) == 0
	case fieldDocID:
		return doc.ID, len(rest) == 0
	case fieldMeta:
		if len(rest) == 0 {
			return nil, false
		}
		v, ok := doc.Meta[rest[0]]
		if !ok {
			return nil, false
		}
		return descend(v, rest[1:])
	}
	v, ok := ctx[root]
	if !ok {
		return nil, false
	}
	return descend(v, rest)
}

func descend(v any, path []string) (any, bool) {
	for _, key := range path {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			v = node[idx]
		default:
			return nil, false
		}
	}
	return v, true
}

func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
