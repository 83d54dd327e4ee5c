package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind is the tag of a JSON value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// String returns the JSON name of the kind
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON value: null, boolean, number, string, array, or an
// object whose keys keep their insertion order.
// The zero Value is JSON null.
type Value struct {
	kind  Kind
	b     bool
	s     string // string contents, or the number literal
	items []Value
	obj   *ObjectMap
}

// NullValue returns JSON null
func NullValue() Value { return Value{} }

// BoolValue wraps a boolean
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NumberValue wraps a number literal as found in the JSON text
func NumberValue(n json.Number) Value { return Value{kind: Number, s: string(n)} }

// StringValue wraps a string
func StringValue(s string) Value { return Value{kind: String, s: s} }

// ArrayValue wraps a sequence of values
func ArrayValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: Array, items: items}
}

// ObjectValue wraps an ordered object. A nil object becomes an empty one.
func ObjectValue(o *ObjectMap) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: Object, obj: o}
}

// Kind returns the tag of the value
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null
func (v Value) IsNull() bool { return v.kind == Null }

// IsScalar reports whether v is a string, boolean, or number
func (v Value) IsScalar() bool {
	return v.kind == String || v.kind == Bool || v.kind == Number
}

// IsContainer reports whether v is an array or an object
func (v Value) IsContainer() bool {
	return v.kind == Array || v.kind == Object
}

// Bool returns the boolean payload (false for other kinds)
func (v Value) Bool() bool { return v.b }

// Str returns the string payload (empty for other kinds)
func (v Value) Str() string {
	if v.kind != String {
		return ""
	}
	return v.s
}

// Number returns the number literal (empty for other kinds)
func (v Value) Number() json.Number {
	if v.kind != Number {
		return ""
	}
	return json.Number(v.s)
}

// IsIntegral reports whether v is a number written without fraction or exponent
func (v Value) IsIntegral() bool {
	return v.kind == Number && !strings.ContainsAny(v.s, ".eE")
}

// Items returns the elements of an array (nil for other kinds)
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.items
}

// Object returns the ordered object (nil for other kinds)
func (v Value) Object() *ObjectMap {
	if v.kind != Object {
		return nil
	}
	return v.obj
}

// Text renders the value the way it is shown in tables and compared by
// filters: strings raw, numbers as written, containers as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Number, String:
		return v.s
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// MarshalJSON encodes the value, keeping object key order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(v.Text())
	case Number:
		buf.WriteString(v.s)
	case String:
		return encodeString(buf, v.s)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, key := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.obj.values[key].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}

// Equal reports whether two values are structurally equal. Object key
// order is significant, number literals are compared as written.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number, String:
		return a.s == b.s
	case Array:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case Object:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for i, key := range a.obj.keys {
			if b.obj.keys[i] != key {
				return false
			}
			if !Equal(a.obj.values[key], b.obj.values[key]) {
				return false
			}
		}
		return true
	}
	return false
}

// ObjectMap is a JSON object that remembers the order keys were first set in.
type ObjectMap struct {
	keys   []string
	values map[string]Value
}

// NewObject creates an empty ordered object
func NewObject() *ObjectMap {
	return &ObjectMap{values: make(map[string]Value)}
}

// Set stores a value. A new key goes last; an existing key keeps its position.
func (o *ObjectMap) Set(key string, value Value) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value stored under key
func (o *ObjectMap) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present
func (o *ObjectMap) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (o *ObjectMap) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len returns the number of keys
func (o *ObjectMap) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Clone returns a shallow copy: the key list and map are new, values are shared.
func (o *ObjectMap) Clone() *ObjectMap {
	c := NewObject()
	for _, key := range o.Keys() {
		c.Set(key, o.values[key])
	}
	return c
}
