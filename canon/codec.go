package canon

import (
	"math"
	"reflect"
	"strconv"
	"sync"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	structsynth "github.com/wippyai/structsynth"
	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
)

// Limits applied when lifting untrusted memory.
const (
	MaxStringSize = 1 << 30
	MaxListLength = 1 << 27

	maxListPrealloc = 1 << 12
)

// Codec lowers and lifts synthesized values. WIT types and layouts are
// computed once per synthesized type and cached. A Codec is safe for
// concurrent use.
type Codec struct {
	wits    map[*synth.TypeHandle]*wit.TypeDef
	layouts *layoutCalculator
	mu      sync.Mutex
}

// NewCodec creates a Codec.
func NewCodec() *Codec {
	return &Codec{
		wits:    make(map[*synth.TypeHandle]*wit.TypeDef),
		layouts: newLayoutCalculator(),
	}
}

// WIT returns the WIT type of t.
func (c *Codec) WIT(t *synth.TypeHandle) wit.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.witType(t)
}

// Layout returns the Canonical ABI layout of t.
func (c *Codec) Layout(t *synth.TypeHandle) Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layouts.calculate(c.witType(t))
}

// Lower writes v into mem and returns the address of its flat
// representation. String and list content is allocated through alloc.
func (c *Codec) Lower(v *synth.ValueHandle, mem structsynth.Memory, alloc structsynth.Allocator) (uint32, error) {
	if v == nil {
		return 0, errors.InvalidInput(errors.PhaseLower, "nil value")
	}
	l := c.Layout(v.Type())
	ptr, err := alloc.Alloc(l.Size, l.Align)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseLower, errors.KindAllocation, err, "allocate root")
	}

	s := &lowerState{codec: c, mem: mem, alloc: alloc}
	if err := s.store(v.Value(), v.Type(), ptr, nil); err != nil {
		return 0, err
	}

	Logger().Debug("lowered value",
		zap.Uint32("type", v.Type().ID()),
		zap.Uint32("ptr", ptr),
		zap.Uint32("size", l.Size),
	)
	return ptr, nil
}

type lowerState struct {
	codec *Codec
	mem   structsynth.Memory
	alloc structsynth.Allocator
}

func (s *lowerState) store(rv reflect.Value, t *synth.TypeHandle, ptr uint32, path []string) error {
	var err error
	switch t.Kind() {
	case synth.KindNull:
		return nil

	case synth.KindBool:
		var b uint8
		if rv.Bool() {
			b = 1
		}
		err = s.mem.WriteU8(ptr, b)

	case synth.KindInt:
		err = s.mem.WriteU64(ptr, uint64(rv.Int()))

	case synth.KindFloat:
		err = s.mem.WriteU64(ptr, canonicalizeF64(math.Float64bits(rv.Float())))

	case synth.KindString:
		err = s.storeBytes(rv.String(), ptr)

	case synth.KindStruct:
		l := s.codec.Layout(t)
		for i := 0; i < t.NumMembers(); i++ {
			m := t.Member(i)
			if err := s.store(rv.Field(i), m.Type, ptr+l.Offsets[i], appendPath(path, m.Name)); err != nil {
				return err
			}
		}
		return nil

	case synth.KindList:
		return s.storeList(rv, t, ptr, path)
	}
	if err != nil {
		return errors.WithPathPrefix(err, path)
	}
	return nil
}

func (s *lowerState) storeBytes(str string, ptr uint32) error {
	n := uint32(len(str))
	if uint64(len(str)) > MaxStringSize {
		return errors.Overflow(errors.PhaseLower, nil, len(str), "string")
	}

	var data uint32
	if n > 0 {
		var err error
		if data, err = s.alloc.Alloc(n, 1); err != nil {
			return errors.Wrap(errors.PhaseLower, errors.KindAllocation, err, "allocate string")
		}
		if err := s.mem.Write(data, []byte(str)); err != nil {
			return err
		}
	}
	if err := s.mem.WriteU32(ptr, data); err != nil {
		return err
	}
	return s.mem.WriteU32(ptr+4, n)
}

// storeList writes the list content and its (pointer, length) pair.
// Element errors already carry their path.
func (s *lowerState) storeList(rv reflect.Value, t *synth.TypeHandle, ptr uint32, path []string) error {
	fail := func(err error) error {
		return errors.WithPathPrefix(err, path)
	}

	n := rv.Len()
	if n > MaxListLength {
		return fail(errors.Overflow(errors.PhaseLower, nil, n, "list"))
	}
	el := s.codec.Layout(t.Elem())
	total, ok := safeMulU32(uint32(n), el.Size)
	if !ok {
		return fail(errors.Overflow(errors.PhaseLower, nil, n, "list"))
	}

	var data uint32
	if total > 0 {
		var err error
		if data, err = s.alloc.Alloc(total, el.Align); err != nil {
			return fail(errors.Wrap(errors.PhaseLower, errors.KindAllocation, err, "allocate list"))
		}
	}
	for i := 0; i < n; i++ {
		p := appendPath(path, "["+strconv.Itoa(i)+"]")
		if err := s.store(rv.Index(i), t.Elem(), data+uint32(i)*el.Size, p); err != nil {
			return err
		}
	}
	if err := s.mem.WriteU32(ptr, data); err != nil {
		return fail(err)
	}
	return fail(s.mem.WriteU32(ptr+4, uint32(n)))
}

// Lift reads a value of type t at ptr and synthesizes it in reg. t must
// belong to reg.
func (c *Codec) Lift(reg *synth.Registry, t *synth.TypeHandle, mem structsynth.Memory, ptr uint32) (*synth.ValueHandle, error) {
	if t == nil || t.Kind().IsScalar() {
		return nil, errors.InvalidInput(errors.PhaseLift, "Lift needs a struct or list type")
	}
	l := &liftState{codec: c, reg: reg, mem: mem}
	v, err := l.load(t, ptr, nil)
	if err != nil {
		return nil, err
	}
	return v.(*synth.ValueHandle), nil
}

type liftState struct {
	codec *Codec
	reg   *synth.Registry
	mem   structsynth.Memory
}

// load returns a SynthesizeValue initializer for the value at ptr.
func (s *liftState) load(t *synth.TypeHandle, ptr uint32, path []string) (any, error) {
	fail := func(err error) (any, error) {
		return nil, errors.WithPathPrefix(err, path)
	}

	switch t.Kind() {
	case synth.KindNull:
		return synth.Null{}, nil

	case synth.KindBool:
		b, err := s.mem.ReadU8(ptr)
		if err != nil {
			return fail(err)
		}
		if b > 1 {
			return fail(errors.InvalidData(errors.PhaseLift, nil, "bool byte "+strconv.Itoa(int(b))))
		}
		return b == 1, nil

	case synth.KindInt:
		u, err := s.mem.ReadU64(ptr)
		if err != nil {
			return fail(err)
		}
		return int64(u), nil

	case synth.KindFloat:
		u, err := s.mem.ReadU64(ptr)
		if err != nil {
			return fail(err)
		}
		return math.Float64frombits(canonicalizeF64(u)), nil

	case synth.KindString:
		data, n, err := s.readPair(ptr)
		if err != nil {
			return fail(err)
		}
		if n > MaxStringSize {
			return fail(errors.Overflow(errors.PhaseLift, nil, n, "string"))
		}
		b, err := s.mem.Read(data, n)
		if err != nil {
			return fail(err)
		}
		return string(b), nil

	case synth.KindStruct:
		l := s.codec.Layout(t)
		inits := make([]any, t.NumMembers())
		for i := range inits {
			m := t.Member(i)
			v, err := s.load(m.Type, ptr+l.Offsets[i], appendPath(path, m.Name))
			if err != nil {
				return nil, err
			}
			inits[i] = v
		}
		v, err := s.reg.SynthesizeValue(t, inits)
		if err != nil {
			return fail(err)
		}
		return v, nil

	case synth.KindList:
		data, n, err := s.readPair(ptr)
		if err != nil {
			return fail(err)
		}
		if n > MaxListLength {
			return fail(errors.Overflow(errors.PhaseLift, nil, n, "list"))
		}
		el := s.codec.Layout(t.Elem())
		total, ok := safeMulU32(n, el.Size)
		if !ok {
			return fail(errors.Overflow(errors.PhaseLift, nil, n, "list"))
		}
		if sizer, ok := s.mem.(structsynth.MemorySizer); ok {
			if uint64(data)+uint64(total) > uint64(sizer.Size()) {
				return fail(errors.OutOfBounds(errors.PhaseLift, nil, data, total))
			}
		}
		// n is untrusted until every element has been read.
		elems := make([]any, 0, min(n, maxListPrealloc))
		for i := uint32(0); i < n; i++ {
			p := appendPath(path, "["+strconv.Itoa(int(i))+"]")
			v, err := s.load(t.Elem(), data+i*el.Size, p)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		v, err := s.reg.SynthesizeListValue(t, elems)
		if err != nil {
			return fail(err)
		}
		return v, nil
	}
	return fail(errors.InvalidInput(errors.PhaseLift, "unknown type kind "+t.Kind().String()))
}

func (s *liftState) readPair(ptr uint32) (uint32, uint32, error) {
	data, err := s.mem.ReadU32(ptr)
	if err != nil {
		return 0, 0, err
	}
	n, err := s.mem.ReadU32(ptr + 4)
	if err != nil {
		return 0, 0, err
	}
	return data, n, nil
}

func appendPath(path []string, seg string) []string {
	return append(path[:len(path):len(path)], seg)
}

func safeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

const canonicalNaN64 = 0x7ff8000000000000

// canonicalizeF64 returns canonical NaN for any NaN input.
func canonicalizeF64(bits uint64) uint64 {
	if f := math.Float64frombits(bits); f != f {
		return canonicalNaN64
	}
	return bits
}
