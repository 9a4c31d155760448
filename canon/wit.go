package canon

import (
	"strconv"
	"strings"
	"unicode"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/structsynth/synth"
)

// unit is the WIT type of synth.Null.
var unit = &wit.TypeDef{Kind: &wit.Tuple{}}

// witType builds the WIT type of t. Struct types become records whose
// field names are the kebab-case form of the member names.
func (c *Codec) witType(t *synth.TypeHandle) wit.Type {
	switch t.Kind() {
	case synth.KindNull:
		return unit
	case synth.KindBool:
		return wit.Bool{}
	case synth.KindInt:
		return wit.S64{}
	case synth.KindFloat:
		return wit.F64{}
	case synth.KindString:
		return wit.String{}
	}

	if cached, ok := c.wits[t]; ok {
		return cached
	}

	var td *wit.TypeDef
	if t.Kind() == synth.KindList {
		td = &wit.TypeDef{Kind: &wit.List{Type: c.witType(t.Elem())}}
	} else {
		names := fieldNames(t)
		fields := make([]wit.Field, t.NumMembers())
		for i := range fields {
			fields[i] = wit.Field{Name: names[i], Type: c.witType(t.Member(i).Type)}
		}
		td = &wit.TypeDef{Kind: &wit.Record{Fields: fields}}
	}
	c.wits[t] = td
	return td
}

// fieldNames returns unique WIT field names for the members of t.
func fieldNames(t *synth.TypeHandle) []string {
	names := make([]string, t.NumMembers())
	used := make(map[string]bool, len(names))
	for i := range names {
		names[i] = uniqueName(Kebab(t.Member(i).Name), used)
	}
	return names
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = name + "-" + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}

// Kebab maps a document key to a WIT identifier: lower-case words joined
// by '-', split at non-alphanumeric runes and at lower-to-upper case
// changes. Words that would start with a digit get an "x" prefix:
// "myKey" -> "my-key", "snake_case" -> "snake-case", "1st" -> "x1st".
func Kebab(key string) string {
	var words []string
	var cur strings.Builder
	prevLower := false

	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
		prevLower = false
	}

	for _, r := range key {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if unicode.IsUpper(r) && prevLower {
				flush()
			}
			if cur.Len() == 0 && unicode.IsDigit(r) {
				cur.WriteByte('x')
			}
			cur.WriteRune(unicode.ToLower(r))
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		default:
			flush()
		}
	}
	flush()

	if len(words) == 0 {
		return "x"
	}
	name := strings.Join(words, "-")
	if witKeywords[name] {
		return "%" + name
	}
	return name
}

var witKeywords = map[string]bool{
	"as": true, "async": true, "bool": true, "borrow": true, "char": true,
	"constructor": true, "enum": true, "export": true, "f32": true, "f64": true,
	"flags": true, "from": true, "func": true, "future": true, "import": true,
	"include": true, "interface": true, "list": true, "option": true, "own": true,
	"package": true, "record": true, "resource": true, "result": true,
	"s16": true, "s32": true, "s64": true, "s8": true, "static": true,
	"stream": true, "string": true, "tuple": true, "type": true, "u16": true,
	"u32": true, "u64": true, "u8": true, "use": true, "variant": true,
	"with": true, "world": true,
}
