package synth

import (
	"go/format"
	"strconv"
	"strings"
)

// GoString renders the type as gofmt'ed Go source, e.g.
//
//	struct {
//		Outer string `json:"outer"`
//		Inner struct {
//			Field  string `json:"field"`
//			Number int64  `json:"number"`
//		} `json:"inner"`
//	}
func (t *TypeHandle) GoString() string {
	var b strings.Builder
	writeGoType(&b, t)

	const prefix = "package p\n\ntype T "
	src, err := format.Source([]byte(prefix + b.String()))
	if err != nil {
		return b.String()
	}
	return strings.TrimSuffix(strings.TrimPrefix(string(src), prefix), "\n")
}

func writeGoType(b *strings.Builder, t *TypeHandle) {
	switch t.kind {
	case KindNull:
		b.WriteString("synth.Null")
	case KindList:
		b.WriteString("[]")
		writeGoType(b, t.elem)
	case KindStruct:
		if len(t.members) == 0 {
			b.WriteString("struct{}")
			return
		}
		b.WriteString("struct {\n")
		for _, m := range t.members {
			b.WriteString(FieldName(m.Name))
			b.WriteByte(' ')
			writeGoType(b, m.Type)
			b.WriteByte(' ')
			b.WriteString(goTag(m.Name))
			b.WriteByte('\n')
		}
		b.WriteString("}")
	default:
		b.WriteString(t.goType.String())
	}
}

func goTag(name string) string {
	tag := string(fieldTag(name))
	if strings.ContainsRune(tag, '`') {
		return strconv.Quote(tag)
	}
	return "`" + tag + "`"
}
