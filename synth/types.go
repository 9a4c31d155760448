package synth

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Kind classifies a TypeHandle.
type Kind uint8

const (
	KindNull Kind = iota + 1
	KindBool
	KindInt
	KindFloat
	KindString
	KindStruct
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// IsScalar reports whether k is a leaf kind.
func (k Kind) IsScalar() bool {
	return k >= KindNull && k <= KindString
}

// Null is the Go type of document null members.
type Null struct{}

// MarshalJSON encodes Null as the JSON null literal.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Member describes one field of an aggregate type.
type Member struct {
	Type *TypeHandle
	Name string
}

// TypeHandle identifies a primitive or synthesized type.
type TypeHandle struct {
	goType  reflect.Type
	elem    *TypeHandle
	shape   string
	members []Member
	id      uint32
	kind    Kind
	hasList bool
}

// Primitive handles. They are shared by every Registry.
var (
	NullType   = &TypeHandle{id: 1, kind: KindNull, goType: reflect.TypeOf(Null{}), shape: "null"}
	BoolType   = &TypeHandle{id: 2, kind: KindBool, goType: reflect.TypeOf(false), shape: "bool"}
	IntType    = &TypeHandle{id: 3, kind: KindInt, goType: reflect.TypeOf(int64(0)), shape: "int64"}
	FloatType  = &TypeHandle{id: 4, kind: KindFloat, goType: reflect.TypeOf(float64(0)), shape: "float64"}
	StringType = &TypeHandle{id: 5, kind: KindString, goType: reflect.TypeOf(""), shape: "string"}
)

// firstSynthID is the first id handed out by a Registry.
const firstSynthID = 16

// ID returns the handle's id, unique within its registry.
func (t *TypeHandle) ID() uint32 { return t.id }

// Kind returns the type kind.
func (t *TypeHandle) Kind() Kind { return t.kind }

// GoType returns the reflect.Type backing the handle.
func (t *TypeHandle) GoType() reflect.Type { return t.goType }

// Elem returns the element type of a list, nil otherwise.
func (t *TypeHandle) Elem() *TypeHandle { return t.elem }

// NumMembers returns the member count of a struct type.
func (t *TypeHandle) NumMembers() int { return len(t.members) }

// Member returns the i'th member in declaration order.
func (t *TypeHandle) Member(i int) Member { return t.members[i] }

// Members returns a copy of the member list.
func (t *TypeHandle) Members() []Member {
	return append([]Member(nil), t.members...)
}

// MemberIndex returns the index of the member named name, or -1.
func (t *TypeHandle) MemberIndex(name string) int {
	for i, m := range t.members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// String returns the structural shape, e.g. {outer: string, inner: {n: int64}}.
func (t *TypeHandle) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.shape
}

func isPrimitive(t *TypeHandle) bool {
	return t == NullType || t == BoolType || t == IntType || t == FloatType || t == StringType
}

func structShape(members []Member) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(shapeName(m.Name))
		b.WriteString(": ")
		b.WriteString(m.Type.shape)
	}
	b.WriteByte('}')
	return b.String()
}

func shapeName(name string) string {
	if isIdentifier(name) {
		return name
	}
	return strconv.Quote(name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !unicode.IsLetter(r) && r != '_' && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// FieldName maps a document key to an exported Go identifier. The key is
// first normalised to NFC. Runs of letters and digits are kept, every other
// rune acts as a word break and each word is capitalised: "my-key" ->
// "MyKey", "snake_case" -> "SnakeCase". Combining marks with no precomposed
// form stay inside their word as "U" plus the code point in hex, so "q" and
// "q\u0301" never share a name; ValidKey rejects such keys in documents.
// Names that cannot start with an upper-case letter get an "X" prefix:
// "1st" -> "X1st", "" -> "X".
func FieldName(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 1)
	wordStart := true
	for _, r := range norm.NFC.String(key) {
		if unicode.Is(unicode.M, r) {
			fmt.Fprintf(&b, "U%04X", r)
			wordStart = false
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			wordStart = true
			continue
		}
		if wordStart {
			r = unicode.ToUpper(r)
			wordStart = false
		}
		b.WriteRune(r)
	}

	name := b.String()
	first, _ := utf8.DecodeRuneInString(name)
	if name == "" || !unicode.IsUpper(first) {
		name = "X" + name
	}
	return name
}

// jsonTagPunct lists the non-alphanumeric runes encoding/json accepts in a
// field name tag.
const jsonTagPunct = "!#$%&()*+-./:;<=>?@[]^_{|}~ "

// ValidKey reports whether key can be a member name: encoding/json must be
// able to carry it as a field name tag, so it is non-empty and holds only
// letters, digits, spaces and ASCII punctuation other than quotes,
// backslash, backquote and comma. Combining marks are rejected too; the
// precomposed form ("\u00e9" rather than "e\u0301") is accepted.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune(jsonTagPunct, r) {
			return false
		}
	}
	return true
}

// fieldTag renders the json tag for a member. A bare "-" means "skip" to
// encoding/json, "-," names the field "-".
func fieldTag(name string) reflect.StructTag {
	if name == "-" {
		name = "-,"
	}
	return reflect.StructTag("json:" + strconv.Quote(name))
}
