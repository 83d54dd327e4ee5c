package mapper

import (
	"strconv"
	"strings"

	"github.com/mcncl/jsonmeta/internal/models"
)

// Type is the type token recorded for each path segment
type Type string

const (
	TypeStr    Type = "str"
	TypeBool   Type = "bool"
	TypeInt    Type = "int"
	TypeNumber Type = "number"
	TypeList   Type = "list"
	TypeDict   Type = "dict"
	TypeEmpty  Type = "empty"
)

// TypeOf returns the type token of a JSON value
func TypeOf(v models.Value) Type {
	switch v.Kind() {
	case models.String:
		return TypeStr
	case models.Bool:
		return TypeBool
	case models.Number:
		if v.IsIntegral() {
			return TypeInt
		}
		return TypeNumber
	case models.Array:
		return TypeList
	case models.Object:
		return TypeDict
	default:
		return TypeEmpty
	}
}

// schemaTypes maps documented JSON Schema types onto type tokens
var schemaTypes = map[string]Type{
	"string":  TypeStr,
	"boolean": TypeBool,
	"integer": TypeInt,
	"number":  TypeNumber,
	"array":   TypeList,
	"object":  TypeDict,
}

// Segment is one step of a path: the key name, its 1-based depth and the
// type of the value found there.
type Segment struct {
	Name  string
	Level int
	Type  Type
}

// String serializes the segment as [name#level#type]
func (s Segment) String() string {
	return "[" + s.Name + "#" + strconv.Itoa(s.Level) + "#" + string(s.Type) + "]"
}

// Path addresses one field of a JSON tree, from the root down
type Path []Segment

// String serializes the path as concatenated segments
func (p Path) String() string {
	var sb strings.Builder
	for _, s := range p {
		sb.WriteString(s.String())
	}
	return sb.String()
}

// Names returns the key names along the path
func (p Path) Names() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return names
}

// Bracketed renders the path the way users type it: [a][b]
func (p Path) Bracketed() string {
	var sb strings.Builder
	for _, s := range p {
		sb.WriteString("[" + s.Name + "]")
	}
	return sb.String()
}

// Matches reports whether both paths have the same names at the same
// levels. Type tokens are ignored: a documented integer still matches a
// live 5.0.
func (p Path) Matches(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i].Name != other[i].Name || p[i].Level != other[i].Level {
			return false
		}
	}
	return true
}

// Child returns a new path extending p by one segment. p is not modified.
func (p Path) Child(s Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// SplitBracketed splits a user expression like [a][b] into its names. It
// reports false when the expression is not bracketed.
func SplitBracketed(expr string) ([]string, bool) {
	if !strings.HasPrefix(expr, "[") || !strings.HasSuffix(expr, "]") || len(expr) < 2 {
		return nil, false
	}
	return strings.Split(expr[1:len(expr)-1], "]["), true
}
