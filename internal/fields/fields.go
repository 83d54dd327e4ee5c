// Package fields turns user field expressions into definitions resolved
// against a metadata map.
package fields

import (
	"fmt"
	"strings"

	"github.com/mcncl/jsonmeta/internal/mapper"
)

// Op is the comparison a filter applies to a field's text
type Op int

const (
	None Op = iota
	Eq
	Contains
	NotEq
	NotContains
)

// operators are tested in this order, so "a!=b~c" is a negated equality
var operators = []struct {
	token string
	op    Op
}{
	{"!=", NotEq},
	{"!~", NotContains},
	{"~", Contains},
	{"=", Eq},
}

// String returns the operator token
func (o Op) String() string {
	for _, candidate := range operators {
		if candidate.op == o {
			return candidate.token
		}
	}
	return ""
}

// Filter is a single condition on a field value
type Filter struct {
	Op    Op
	Value string
}

// Active reports whether the filter constrains anything
func (f Filter) Active() bool {
	return f.Op != None
}

// Match tests the text of a field value against the filter
func (f Filter) Match(text string) bool {
	switch f.Op {
	case Eq:
		return text == f.Value
	case Contains:
		return strings.Contains(text, f.Value)
	case NotEq:
		return text != f.Value
	case NotContains:
		return !strings.Contains(text, f.Value)
	default:
		return true
	}
}

// ParseExpression splits a token such as "name~foo" into its field and filter
func ParseExpression(token string) (string, Filter) {
	for _, candidate := range operators {
		if i := strings.Index(token, candidate.token); i >= 0 {
			return strings.TrimSpace(token[:i]), Filter{
				Op:    candidate.op,
				Value: strings.TrimSpace(token[i+len(candidate.token):]),
			}
		}
	}
	return strings.TrimSpace(token), Filter{}
}

// SplitExpression splits a comma separated expression list into tokens,
// dropping empty ones.
func SplitExpression(exprs ...string) []string {
	tokens := make([]string, 0)
	for _, expr := range exprs {
		for _, token := range strings.Split(expr, ",") {
			if token = strings.TrimSpace(token); token != "" {
				tokens = append(tokens, token)
			}
		}
	}
	return tokens
}

// Definition is one requested output field
type Definition struct {
	OutputName string
	// Source is the map path the field is read from; nil when unresolved
	Source mapper.Path
	Filter Filter
}

// Resolved reports whether the definition found a source path
func (d *Definition) Resolved() bool {
	return d.Source != nil
}

// OutputName derives the output key for a field expression: [a][b] becomes a_b
func OutputName(field string) string {
	if names, ok := mapper.SplitBracketed(field); ok {
		return strings.Join(names, "_")
	}
	return field
}

// Resolve finds the map path a field expression refers to. A plain name
// matches the first path whose first segment has that name; [a][b] matches
// the first path whose names are exactly a, b. Nil means no match.
func Resolve(field string, m *mapper.Map) mapper.Path {
	if m == nil {
		return nil
	}
	if names, ok := mapper.SplitBracketed(field); ok {
		for _, p := range m.Full {
			if equalNames(p.Names(), names) {
				return p
			}
		}
		return nil
	}
	for _, p := range m.Full {
		if p[0].Name == field {
			return p
		}
	}
	return nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Set is an ordered collection of definitions keyed by output name.
// Definitions outside the output order only act as filters.
type Set struct {
	order   []string
	keys    []string
	defs    map[string]*Definition
	dropped []string
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{defs: make(map[string]*Definition)}
}

// Add appends a definition to the output order. A name already taken gets
// the first free suffix _2, _3 and so on. The name used is returned.
func (s *Set) Add(def Definition) string {
	name := def.OutputName
	for n := 2; s.has(name); n++ {
		name = fmt.Sprintf("%s_%d", def.OutputName, n)
	}
	def.OutputName = name
	s.order = append(s.order, name)
	s.keys = append(s.keys, name)
	s.defs[name] = &def
	return name
}

// Put stores a definition under its output name, replacing one already
// there. A new name is not added to the output order.
func (s *Set) Put(def Definition) {
	if !s.has(def.OutputName) {
		s.keys = append(s.keys, def.OutputName)
	}
	s.defs[def.OutputName] = &def
}

func (s *Set) has(name string) bool {
	_, ok := s.defs[name]
	return ok
}

// Get returns the definition stored under name
func (s *Set) Get(name string) (*Definition, bool) {
	def, ok := s.defs[name]
	return def, ok
}

// Order returns the output names in output order
func (s *Set) Order() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Definitions returns every definition, output order first
func (s *Set) Definitions() []*Definition {
	out := make([]*Definition, 0, len(s.keys))
	for _, name := range s.keys {
		out = append(out, s.defs[name])
	}
	return out
}

// Len returns the number of definitions
func (s *Set) Len() int {
	return len(s.keys)
}

// Dropped returns the output names removed by Prune
func (s *Set) Dropped() []string {
	return s.dropped
}

// Prune removes unresolved definitions
func (s *Set) Prune() {
	keep := func(names []string) []string {
		out := names[:0]
		for _, name := range names {
			if def, ok := s.defs[name]; ok && def.Resolved() {
				out = append(out, name)
			}
		}
		return out
	}
	for _, name := range s.keys {
		if !s.defs[name].Resolved() {
			s.dropped = append(s.dropped, name)
		}
	}
	s.order = keep(s.order)
	s.keys = keep(s.keys)
	for _, name := range s.dropped {
		delete(s.defs, name)
	}
}

// Build resolves a select-style expression list: every token becomes an
// output field in the order given. Unresolved fields are dropped.
func Build(exprs []string, m *mapper.Map) *Set {
	set := NewSet()
	for _, token := range SplitExpression(exprs...) {
		field, filter := ParseExpression(token)
		set.Add(Definition{
			OutputName: OutputName(field),
			Source:     Resolve(field, m),
			Filter:     filter,
		})
	}
	set.Prune()
	return set
}

// KeyToken narrows a wide set to simple keys whose name contains its value
const KeyToken = "KEY"

// BuildWide resolves a filter-style expression list. Every top-level name
// of the map becomes an output field, table order names first. Tokens then
// layer filters on top: a token naming an existing field replaces its
// definition, any other token only filters. KEY=<text> narrows the output
// fields to simple keys whose name contains text.
func BuildWide(exprs []string, m *mapper.Map) *Set {
	tokens := SplitExpression(exprs...)

	var narrow []string
	rest := make([]string, 0, len(tokens))
	for _, token := range tokens {
		field, filter := ParseExpression(token)
		if field == KeyToken && filter.Op == Eq {
			narrow = append(narrow, filter.Value)
			continue
		}
		rest = append(rest, token)
	}

	set := NewSet()
	if m != nil {
		names := m.FirstLevelNames()
		if len(narrow) > 0 {
			names = containing(m.SimpleNames(), narrow)
		}
		for _, name := range withTableOrder(names, m.TableOrder) {
			set.Add(Definition{OutputName: name, Source: Resolve(name, m)})
		}
	}

	for _, token := range rest {
		field, filter := ParseExpression(token)
		set.Put(Definition{
			OutputName: OutputName(field),
			Source:     Resolve(field, m),
			Filter:     filter,
		})
	}
	set.Prune()
	return set
}

func containing(names, fragments []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		for _, fragment := range fragments {
			if strings.Contains(name, fragment) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// withTableOrder puts the names listed in order first, keeping the rest in
// their original order. Names absent from names are skipped.
func withTableOrder(names, order []string) []string {
	if len(order) == 0 {
		return names
	}
	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}
	out := make([]string, 0, len(names))
	placed := make(map[string]bool, len(order))
	for _, name := range order {
		if present[name] && !placed[name] {
			out = append(out, name)
			placed[name] = true
		}
	}
	for _, name := range names {
		if !placed[name] {
			out = append(out, name)
		}
	}
	return out
}
