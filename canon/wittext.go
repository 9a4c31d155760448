package canon

import (
	"strings"

	"github.com/wippyai/structsynth/synth"
)

// WITText renders t and every record it references as WIT type
// definitions. The root record is called name; nested records are named
// after the member that first holds them. Records appear before their
// first use.
func (c *Codec) WITText(t *synth.TypeHandle, name string) string {
	if name == "" {
		name = "document"
	}
	w := &witWriter{names: make(map[*synth.TypeHandle]string), used: make(map[string]bool)}
	if t.Kind() == synth.KindStruct {
		w.names[t] = uniqueName(Kebab(name), w.used)
	}
	w.collect(t)

	var b strings.Builder
	for i, rec := range w.order {
		if i > 0 {
			b.WriteByte('\n')
		}
		w.writeRecord(&b, rec)
	}
	if t.Kind() != synth.KindStruct {
		b.WriteString("type ")
		b.WriteString(Kebab(name))
		b.WriteString(" = ")
		b.WriteString(w.ref(t))
		b.WriteString(";\n")
	}
	return b.String()
}

type witWriter struct {
	names map[*synth.TypeHandle]string
	used  map[string]bool
	order []*synth.TypeHandle
	done  map[*synth.TypeHandle]bool
}

// collect assigns names to nested records and orders them children first.
func (w *witWriter) collect(t *synth.TypeHandle) {
	if w.done == nil {
		w.done = make(map[*synth.TypeHandle]bool)
	}
	switch t.Kind() {
	case synth.KindList:
		w.collect(t.Elem())
	case synth.KindStruct:
		if w.done[t] {
			return
		}
		w.done[t] = true
		for i := 0; i < t.NumMembers(); i++ {
			m := t.Member(i)
			if inner := recordOf(m.Type); inner != nil {
				if _, named := w.names[inner]; !named {
					w.names[inner] = uniqueName(Kebab(m.Name), w.used)
				}
			}
			w.collect(m.Type)
		}
		w.order = append(w.order, t)
	}
}

func recordOf(t *synth.TypeHandle) *synth.TypeHandle {
	for t.Kind() == synth.KindList {
		t = t.Elem()
	}
	if t.Kind() == synth.KindStruct {
		return t
	}
	return nil
}

func (w *witWriter) writeRecord(b *strings.Builder, t *synth.TypeHandle) {
	b.WriteString("record ")
	b.WriteString(w.names[t])
	if t.NumMembers() == 0 {
		b.WriteString(" {}\n")
		return
	}
	b.WriteString(" {\n")
	for i, field := range fieldNames(t) {
		b.WriteString("    ")
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(w.ref(t.Member(i).Type))
		b.WriteString(",\n")
	}
	b.WriteString("}\n")
}

func (w *witWriter) ref(t *synth.TypeHandle) string {
	switch t.Kind() {
	case synth.KindNull:
		return "tuple<>"
	case synth.KindBool:
		return "bool"
	case synth.KindInt:
		return "s64"
	case synth.KindFloat:
		return "f64"
	case synth.KindString:
		return "string"
	case synth.KindList:
		return "list<" + w.ref(t.Elem()) + ">"
	default:
		return w.names[t]
	}
}
