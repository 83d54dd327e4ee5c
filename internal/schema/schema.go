// Package schema models documented response schemas and resolves their references
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// SchemaType handles JSON Schema type field which can be string or array of strings
type SchemaType struct {
	Types []string
}

// UnmarshalJSON handles both string and array forms of type
func (st *SchemaType) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		st.Types = nil
		return nil
	}

	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		st.Types = []string{s}
		return nil
	}

	// Try array of strings
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		st.Types = arr
		return nil
	}

	return fmt.Errorf("type must be string or array of strings")
}

// MarshalJSON writes a single type as a string and several as an array
func (st SchemaType) MarshalJSON() ([]byte, error) {
	switch len(st.Types) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(st.Types[0])
	default:
		return json.Marshal(st.Types)
	}
}

// Primary returns the primary (first) type, or empty string if none
func (st SchemaType) Primary() string {
	if len(st.Types) > 0 {
		return st.Types[0]
	}
	return ""
}

// IsNullable returns true if "null" is one of the allowed types
func (st SchemaType) IsNullable() bool {
	for _, t := range st.Types {
		if t == "null" {
			return true
		}
	}
	return false
}

// Schema is the subset of a JSON Schema / Swagger schema object that
// describes the shape of a response body.
type Schema struct {
	Ref         string        `json:"$ref,omitempty"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Type        SchemaType    `json:"type"`
	Format      string        `json:"format,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`
	Required    []string      `json:"required,omitempty"`

	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	AllOf      []*Schema          `json:"allOf,omitempty"`

	// Definitions for $ref resolution
	Definitions map[string]*Schema `json:"definitions,omitempty"`
	Defs        map[string]*Schema `json:"$defs,omitempty"`
}

// Kind returns the effective type of the schema. A missing type is inferred
// from properties or items; "null" is skipped when other types are allowed.
func (s *Schema) Kind() string {
	if s == nil {
		return ""
	}
	schemaType := s.Type.Primary()
	if s.Type.IsNullable() && len(s.Type.Types) > 1 {
		for _, t := range s.Type.Types {
			if t != "null" {
				schemaType = t
				break
			}
		}
	}
	if schemaType == "" {
		if len(s.Properties) > 0 || len(s.AllOf) > 0 {
			schemaType = "object"
		} else if s.Items != nil {
			schemaType = "array"
		}
	}
	return schemaType
}

// PropertyNames returns the property names in sorted order
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Response is the documented body of a successful response, together with
// the preferred column order for tables, if the documentation declares one.
type Response struct {
	Schema     *Schema
	TableOrder []string
}

// HasBody reports whether the response documents a body
func (r *Response) HasBody() bool {
	return r != nil && r.Schema != nil
}

// ParseFile reads and parses a schema document from a file
func ParseFile(path string) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	return ParseDocument(data)
}

// ParseBytes parses a single schema object, JSON or YAML, without resolving references
func ParseBytes(data []byte) (*Schema, error) {
	tree, err := decodeTree(data)
	if err != nil {
		return nil, err
	}
	return fromTree(inlineDefinitionNames(tree, false))
}

// ToJSON converts a JSON or YAML document into JSON text
func ToJSON(data []byte) ([]byte, error) {
	tree, err := decodeTree(data)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return out, nil
}

// ParseDocument parses a response document and resolves its references.
//
// Two layouts are accepted. The envelope layout
//
//	{"doc": {"responses": {"200": {"schema": {...}, "table_order": [...]}}}, "definitions": {...}}
//
// and a bare schema object, whose optional "x-table-order" key gives the
// table order. An envelope without a documented success response yields a
// Response with no body.
func ParseDocument(data []byte) (*Response, error) {
	tree, err := decodeTree(data)
	if err != nil {
		return nil, err
	}
	root, ok := tree.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("schema document must be an object")
	}

	if doc, ok := root["doc"].(map[string]interface{}); ok {
		return parseEnvelope(doc, root["definitions"])
	}

	s, err := fromTree(inlineDefinitionNames(root, false))
	if err != nil {
		return nil, err
	}
	resolved, err := NewResolver(s).Resolve(s)
	if err != nil {
		return nil, err
	}
	return &Response{Schema: resolved, TableOrder: stringList(root["x-table-order"])}, nil
}

func parseEnvelope(doc map[string]interface{}, definitions interface{}) (*Response, error) {
	responses, _ := doc["responses"].(map[string]interface{})
	response := successResponse(responses)
	if response == nil {
		return &Response{}, nil
	}

	result := &Response{TableOrder: stringList(response["table_order"])}
	body, ok := response["schema"]
	if !ok {
		return result, nil
	}

	s, err := fromTree(inlineDefinitionNames(body, false))
	if err != nil {
		return nil, err
	}
	if definitions != nil {
		defs, err := fromTree(map[string]interface{}{
			"definitions": inlineDefinitionNames(definitions, true),
		})
		if err != nil {
			return nil, err
		}
		s.Definitions = defs.Definitions
	}

	resolved, err := NewResolver(s).Resolve(s)
	if err != nil {
		return nil, err
	}
	result.Schema = resolved
	return result, nil
}

// successResponse picks "200", falling back to the lowest other 2xx code
func successResponse(responses map[string]interface{}) map[string]interface{} {
	if r, ok := responses["200"].(map[string]interface{}); ok {
		return r
	}
	codes := make([]string, 0, len(responses))
	for code := range responses {
		if strings.HasPrefix(code, "2") {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	for _, code := range codes {
		if r, ok := responses[code].(map[string]interface{}); ok {
			return r
		}
	}
	return nil
}

// decodeTree decodes JSON or YAML text into generic maps and slices
func decodeTree(data []byte) (interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("schema document is empty")
	}

	var tree interface{}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
		}
		return tree, nil
	}
	if err := yaml.Unmarshal(trimmed, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	return stringKeys(tree), nil
}

// stringKeys converts YAML mappings with non-string keys (like 200:) into
// string-keyed maps so they can be re-encoded as JSON.
func stringKeys(node interface{}) interface{} {
	switch n := node.(type) {
	case map[string]interface{}:
		for k, v := range n {
			n[k] = stringKeys(v)
		}
		return n
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(n))
		for k, v := range n {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case []interface{}:
		for i, v := range n {
			n[i] = stringKeys(v)
		}
		return n
	default:
		return node
	}
}

func fromTree(tree interface{}) (*Schema, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse JSON Schema: %w", err)
	}
	return &s, nil
}

// inlineDefinitionNames folds keys that name an already resolved definition
// (upper-case first letter, outside a properties map) into their parent, so
// {"items": {"Item": {...}}} reads as {"items": {...}}.
func inlineDefinitionNames(node interface{}, nameMap bool) interface{} {
	switch n := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(n))
		var inlined []map[string]interface{}
		for k, v := range n {
			if nameMap {
				out[k] = inlineDefinitionNames(v, false)
				continue
			}
			if child, ok := v.(map[string]interface{}); ok && isDefinitionName(k) {
				inlined = append(inlined, inlineDefinitionNames(child, false).(map[string]interface{}))
				continue
			}
			out[k] = inlineDefinitionNames(v, k == "properties" || k == "definitions" || k == "$defs")
		}
		for _, child := range inlined {
			for k, v := range child {
				if _, exists := out[k]; !exists {
					out[k] = v
				}
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, v := range n {
			out[i] = inlineDefinitionNames(v, false)
		}
		return out
	default:
		return node
	}
}

func isDefinitionName(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

func stringList(node interface{}) []string {
	items, ok := node.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Resolver replaces $ref pointers with copies of the definitions they name
type Resolver struct {
	definitions map[string]*Schema
}

// NewResolver creates a resolver over the definitions declared by root
func NewResolver(root *Schema) *Resolver {
	// Merge definitions and $defs
	definitions := make(map[string]*Schema)
	for k, v := range root.Definitions {
		definitions[k] = v
	}
	for k, v := range root.Defs {
		definitions[k] = v
	}
	return &Resolver{definitions: definitions}
}

// Resolve returns a reference-free copy of s. The input is never modified,
// so a cached schema can be resolved many times. A reference that reaches
// back into its own chain is cut to an empty object.
func (r *Resolver) Resolve(s *Schema) (*Schema, error) {
	return r.resolve(s, map[string]bool{})
}

func (r *Resolver) resolve(s *Schema, seen map[string]bool) (*Schema, error) {
	if s == nil {
		return nil, nil
	}

	if s.Ref != "" {
		if seen[s.Ref] {
			return &Schema{Type: SchemaType{Types: []string{"object"}}}, nil
		}
		def, err := r.lookup(s.Ref)
		if err != nil {
			return nil, err
		}
		seen[s.Ref] = true
		defer delete(seen, s.Ref)
		return r.resolve(def, seen)
	}

	// Handle allOf by merging schemas
	if len(s.AllOf) > 0 {
		parts := make([]*Schema, 0, len(s.AllOf))
		for _, part := range s.AllOf {
			resolved, err := r.resolve(part, seen)
			if err != nil {
				return nil, err
			}
			parts = append(parts, resolved)
		}
		merged := mergeAllOf(parts)
		own := *s
		own.AllOf = nil
		ownResolved, err := r.resolve(&own, seen)
		if err != nil {
			return nil, err
		}
		for k, v := range ownResolved.Properties {
			merged.Properties[k] = v
		}
		merged.Required = append(merged.Required, ownResolved.Required...)
		if ownResolved.Description != "" {
			merged.Description = ownResolved.Description
		}
		return merged, nil
	}

	out := *s
	out.Definitions = nil
	out.Defs = nil
	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for name, prop := range s.Properties {
			resolved, err := r.resolve(prop, seen)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			out.Properties[name] = resolved
		}
	}
	if s.Items != nil {
		items, err := r.resolve(s.Items, seen)
		if err != nil {
			return nil, fmt.Errorf("array items: %w", err)
		}
		out.Items = items
	}
	return &out, nil
}

// lookup handles local references like "#/definitions/User" or "#/$defs/User"
func (r *Resolver) lookup(ref string) (*Schema, error) {
	var defName string
	switch {
	case strings.HasPrefix(ref, "#/definitions/"):
		defName = strings.TrimPrefix(ref, "#/definitions/")
	case strings.HasPrefix(ref, "#/$defs/"):
		defName = strings.TrimPrefix(ref, "#/$defs/")
	default:
		// External refs not supported
		return nil, fmt.Errorf("external $ref not supported: %s", ref)
	}
	if def, ok := r.definitions[defName]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("unresolved $ref: %s", ref)
}

// mergeAllOf merges already resolved schemas from allOf
func mergeAllOf(schemas []*Schema) *Schema {
	merged := &Schema{
		Properties: make(map[string]*Schema),
		Required:   make([]string, 0),
	}

	for _, s := range schemas {
		if s == nil {
			continue
		}
		// Merge properties
		for k, v := range s.Properties {
			merged.Properties[k] = v
		}

		// Merge required
		merged.Required = append(merged.Required, s.Required...)

		// Take first non-empty title/description
		if merged.Title == "" && s.Title != "" {
			merged.Title = s.Title
		}
		if merged.Description == "" && s.Description != "" {
			merged.Description = s.Description
		}
	}

	merged.Type = SchemaType{Types: []string{"object"}}
	return merged
}
