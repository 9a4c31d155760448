package document

import (
	"strconv"
	"strings"
)

// Kind identifies a node variant.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "boolean",
	KindNumber: "number",
	KindString: "string",
	KindObject: "object",
	KindArray:  "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Node is a document tree node. Implementations are Null, Bool, Number,
// String, *Object and Array.
type Node interface {
	Kind() Kind
	node()
}

type (
	Null   struct{}
	Bool   bool
	Number string
	String string
	Array  []Node
)

// Field is one key/value pair of an Object.
type Field struct {
	Value Node
	Key   string
}

// Object is an ordered sequence of fields.
type Object struct {
	Fields []Field
}

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Number) Kind() Kind  { return KindNumber }
func (String) Kind() Kind  { return KindString }
func (*Object) Kind() Kind { return KindObject }
func (Array) Kind() Kind   { return KindArray }

func (Null) node()    {}
func (Bool) node()    {}
func (Number) node()  {}
func (String) node()  {}
func (*Object) node() {}
func (Array) node()   {}

// NewObject builds an object from fields in the given order.
func NewObject(fields ...Field) *Object {
	return &Object{Fields: fields}
}

// F is shorthand for a Field literal.
func F(key string, value Node) Field {
	return Field{Key: key, Value: value}
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.Fields)
}

// Get returns the first field value for key.
func (o *Object) Get(key string) (Node, bool) {
	for _, f := range o.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns field keys in source order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		keys[i] = f.Key
	}
	return keys
}

// FirstDuplicate returns the first key that occurs more than once.
func (o *Object) FirstDuplicate() (string, bool) {
	seen := make(map[string]struct{}, len(o.Fields))
	for _, f := range o.Fields {
		if _, dup := seen[f.Key]; dup {
			return f.Key, true
		}
		seen[f.Key] = struct{}{}
	}
	return "", false
}

// IsInteger reports whether the literal has no fraction or exponent part.
func (n Number) IsInteger() bool {
	return !strings.ContainsAny(string(n), ".eE")
}

// Int64 parses the literal as a signed 64-bit integer.
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// Float64 parses the literal as a 64-bit float.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Depth returns the nesting depth of n. Scalars have depth 0, an empty
// object or array has depth 1.
func Depth(n Node) int {
	switch v := n.(type) {
	case *Object:
		d := 0
		for _, f := range v.Fields {
			if c := Depth(f.Value); c > d {
				d = c
			}
		}
		return d + 1
	case Array:
		d := 0
		for _, e := range v {
			if c := Depth(e); c > d {
				d = c
			}
		}
		return d + 1
	default:
		return 0
	}
}
