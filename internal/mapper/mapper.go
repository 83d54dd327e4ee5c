// Package mapper builds the metadata map of a JSON value: every field it
// contains, addressed by a path of [name#level#type] segments.
package mapper

import (
	"sort"
	"strings"

	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
	"github.com/mcncl/jsonmeta/internal/schema"
)

// envelopeKeys are top-level response properties that wrap or describe a
// page of results rather than being fields of a result.
var envelopeKeys = map[string]bool{
	"data":    true,
	"hasMore": true,
	"total":   true,
}

// Map is the metadata map of one JSON value. It is not modified after Build.
type Map struct {
	// Full holds every path, sorted by serialized form, without duplicates
	Full []Path
	// SimpleKeys are single-segment paths that no other path extends
	SimpleKeys []Path
	// NestedKeys is Full minus SimpleKeys
	NestedKeys []Path
	// TableOrder lists preferred column names, from the response documentation
	TableOrder []string
}

// Build maps value. When doc documents a response body the documented
// schema is walked instead of the value. A string value must hold JSON text.
// The root envelope keys of a documented schema are walked through, matching
// a value whose "data" member was unwrapped.
func Build(value models.Value, doc *schema.Response) (*Map, error) {
	return build(value, doc, false)
}

// BuildEnveloped maps value like Build, but keeps the root envelope keys of
// a documented schema as path segments, matching a value that still holds
// its "data" wrapper.
func BuildEnveloped(value models.Value, doc *schema.Response) (*Map, error) {
	return build(value, doc, true)
}

func build(value models.Value, doc *schema.Response, keepEnvelope bool) (*Map, error) {
	b := &builder{seen: make(map[string]bool), keepEnvelope: keepEnvelope}

	if doc.HasBody() {
		b.walkSchema(doc.Schema, nil)
	} else {
		if value.Kind() == models.String {
			parsed, err := parser.ParseString(value.Str())
			if err != nil {
				return nil, errors.NewMappingError("value is not JSON", errors.ErrInvalidJSON)
			}
			value = parsed
		}
		b.walkValue(value, nil)
	}

	m := &Map{Full: b.sorted()}
	if doc != nil {
		m.TableOrder = doc.TableOrder
	}
	m.partition()
	return m, nil
}

type builder struct {
	seen         map[string]bool
	paths        []Path
	keepEnvelope bool
}

func (b *builder) add(p Path) {
	key := p.String()
	if b.seen[key] {
		return
	}
	b.seen[key] = true
	b.paths = append(b.paths, p)
}

func (b *builder) sorted() []Path {
	out := make([]Path, len(b.paths))
	copy(out, b.paths)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// walkValue visits object keys depth first. Array elements are visited at
// the path of the array itself.
func (b *builder) walkValue(v models.Value, cursor Path) {
	switch v.Kind() {
	case models.Object:
		obj := v.Object()
		for _, key := range obj.Keys() {
			child, _ := obj.Get(key)
			path := cursor.Child(Segment{Name: key, Level: len(cursor) + 1, Type: TypeOf(child)})
			b.add(path)
			if expanded := parser.ExpandEmbedded(child); expanded.IsContainer() {
				b.walkValue(expanded, path)
			}
		}
	case models.Array:
		for _, item := range v.Items() {
			b.walkValue(item, cursor)
		}
	}
}

// walkSchema visits documented properties in name order. Items and allOf
// parts are visited at the current path; envelope keys at the root are
// walked through without becoming segments unless the envelope is kept.
func (b *builder) walkSchema(s *schema.Schema, cursor Path) {
	if s == nil {
		return
	}
	for _, part := range s.AllOf {
		b.walkSchema(part, cursor)
	}
	if s.Items != nil {
		b.walkSchema(s.Items, cursor)
	}
	for _, name := range s.PropertyNames() {
		prop := s.Properties[name]
		if len(cursor) == 0 && envelopeKeys[name] && !b.keepEnvelope {
			b.walkSchema(prop, cursor)
			continue
		}
		path := cursor.Child(Segment{Name: name, Level: len(cursor) + 1, Type: schemaType(prop)})
		b.add(path)
		b.walkSchema(prop, path)
	}
}

func schemaType(s *schema.Schema) Type {
	if t, ok := schemaTypes[s.Kind()]; ok {
		return t
	}
	return TypeEmpty
}

// partition splits Full into simple and nested keys. A single-segment path
// that prefixes a longer path is demoted to nested.
func (m *Map) partition() {
	m.SimpleKeys = make([]Path, 0)
	m.NestedKeys = make([]Path, 0)
	for i, p := range m.Full {
		if len(p) == 1 && !m.extended(i) {
			m.SimpleKeys = append(m.SimpleKeys, p)
		} else {
			m.NestedKeys = append(m.NestedKeys, p)
		}
	}
}

func (m *Map) extended(i int) bool {
	key := m.Full[i].String()
	for j, other := range m.Full {
		if j == i {
			continue
		}
		if s := other.String(); len(s) > len(key) && strings.HasPrefix(s, key) {
			return true
		}
	}
	return false
}

// SimpleNames returns the names of the simple keys, in map order
func (m *Map) SimpleNames() []string {
	names := make([]string, 0, len(m.SimpleKeys))
	for _, p := range m.SimpleKeys {
		names = append(names, p[0].Name)
	}
	return names
}

// FirstLevelNames returns each distinct top-level name once, in map order
func (m *Map) FirstLevelNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, p := range m.Full {
		if name := p[0].Name; !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Query answers the available-field expressions: "?" lists simple keys,
// "?NK" nested keys and "?MAP" every path, one bracketed path per line.
// ok is false for any other expression.
func (m *Map) Query(expr string) (string, bool) {
	var paths []Path
	switch strings.TrimSpace(expr) {
	case "?":
		paths = m.SimpleKeys
	case "?NK":
		paths = m.NestedKeys
	case "?MAP":
		paths = m.Full
	default:
		return "", false
	}
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = p.Bracketed()
	}
	return strings.Join(lines, "\n"), true
}

// IsQuery reports whether expr is one of the available-field expressions
func IsQuery(expr string) bool {
	switch strings.TrimSpace(expr) {
	case "?", "?NK", "?MAP":
		return true
	}
	return false
}
