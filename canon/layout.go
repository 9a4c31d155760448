package canon

import (
	"go.bytecodealliance.org/wit"
)

// Layout is the Canonical ABI size and alignment of a type. Offsets holds
// record field offsets in field order.
type Layout struct {
	Offsets []uint32
	Size    uint32
	Align   uint32
}

// layoutCalculator computes layouts for the WIT types synthesized values
// map to. Results for type definitions are cached by pointer.
type layoutCalculator struct {
	cache map[*wit.TypeDef]Layout
}

func newLayoutCalculator() *layoutCalculator {
	return &layoutCalculator{
		cache: make(map[*wit.TypeDef]Layout),
	}
}

func (c *layoutCalculator) calculate(t wit.Type) Layout {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Layout{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Layout{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Layout{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Layout{Size: 8, Align: 8}
	case wit.String:
		return Layout{Size: 8, Align: 4} // [ptr: u32, len: u32]
	case *wit.TypeDef:
		return c.calculateTypeDef(typ)
	default:
		return Layout{Size: 0, Align: 1}
	}
}

func (c *layoutCalculator) calculateTypeDef(t *wit.TypeDef) Layout {
	if cached, ok := c.cache[t]; ok {
		return cached
	}

	var l Layout
	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		l = c.sequence(types)
	case *wit.Tuple:
		l = c.sequence(kind.Types)
		l.Offsets = nil
	case *wit.List:
		l = Layout{Size: 8, Align: 4}
	default:
		l = Layout{Size: 0, Align: 1}
	}

	c.cache[t] = l
	return l
}

// sequence lays out types one after another, each at its own alignment.
func (c *layoutCalculator) sequence(types []wit.Type) Layout {
	if len(types) == 0 {
		return Layout{Size: 0, Align: 1}
	}

	offsets := make([]uint32, len(types))
	maxAlign := uint32(1)
	offset := uint32(0)

	for i, typ := range types {
		fl := c.calculate(typ)

		offset = alignTo(offset, fl.Align)
		offsets[i] = offset

		if fl.Align > maxAlign {
			maxAlign = fl.Align
		}
		offset += fl.Size
	}

	return Layout{
		Size:    alignTo(offset, maxAlign),
		Align:   maxAlign,
		Offsets: offsets,
	}
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
