package synth

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/wippyai/structsynth/arena"
	"github.com/wippyai/structsynth/errors"
)

// ValueHandle identifies a synthesized constant. The value lives in arena
// storage; accessors hand out copies.
type ValueHandle struct {
	typ *TypeHandle
	ptr reflect.Value
	id  uint64
}

// ID returns the handle's id, unique within its registry.
func (v *ValueHandle) ID() uint64 { return v.id }

// Type returns the value's type handle.
func (v *ValueHandle) Type() *TypeHandle { return v.typ }

// Interface returns a copy of the value as its synthesized Go type. Lists
// are copied too, so the result shares no writable memory with the arena.
func (v *ValueHandle) Interface() any {
	if !v.typ.hasList {
		return v.ptr.Elem().Interface()
	}
	return deepCopy(v.ptr.Elem()).Interface()
}

func deepCopy(src reflect.Value) reflect.Value {
	switch src.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			out.Index(i).Set(deepCopy(src.Index(i)))
		}
		return out
	case reflect.Struct:
		out := reflect.New(src.Type()).Elem()
		for i := 0; i < src.NumField(); i++ {
			out.Field(i).Set(deepCopy(src.Field(i)))
		}
		return out
	default:
		return src
	}
}

// Value returns a non-addressable reflect.Value copy.
func (v *ValueHandle) Value() reflect.Value {
	return reflect.ValueOf(v.Interface())
}

// String formats the value with field names.
func (v *ValueHandle) String() string {
	return fmt.Sprintf("%+v", v.Interface())
}

// Equal reports whether both handles have the same type and equal content.
func (v *ValueHandle) Equal(other *ValueHandle) bool {
	if other == nil || v.typ != other.typ {
		return false
	}
	return reflect.DeepEqual(v.Interface(), other.Interface())
}

// FieldValue is one member of a struct value.
type FieldValue struct {
	Value any
	Name  string
}

// Fields returns the members of a struct value in declaration order,
// nil for lists.
func (v *ValueHandle) Fields() []FieldValue {
	if v.typ.kind != KindStruct {
		return nil
	}
	rv := v.ptr.Elem()
	out := make([]FieldValue, len(v.typ.members))
	for i, m := range v.typ.members {
		f := rv.Field(i)
		if m.Type.hasList {
			f = deepCopy(f)
		}
		out[i] = FieldValue{Name: m.Name, Value: f.Interface()}
	}
	return out
}

// Get returns the value at path. Struct members are addressed by their
// original names, list elements by decimal index ("2" or "[2]").
func (v *ValueHandle) Get(path ...string) (any, error) {
	cur := v.ptr.Elem()
	t := v.typ
	for i, seg := range path {
		switch t.kind {
		case KindStruct:
			idx := t.MemberIndex(seg)
			if idx < 0 {
				return nil, errors.NotFound(errors.PhaseAccess, path[:i+1], "member")
			}
			cur = cur.Field(idx)
			t = t.members[idx].Type
		case KindList:
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(seg, "["), "]"))
			if err != nil {
				return nil, errors.New(errors.PhaseAccess, errors.KindInvalidInput).
					Path(path[:i+1]...).
					Detail("list index %q is not a number", seg).
					Build()
			}
			if n < 0 || n >= cur.Len() {
				return nil, errors.New(errors.PhaseAccess, errors.KindOutOfBounds).
					Path(path[:i+1]...).
					Detail("index %d out of bounds (length %d)", n, cur.Len()).
					Value(n).
					Build()
			}
			cur = cur.Index(n)
			t = t.elem
		default:
			return nil, errors.New(errors.PhaseAccess, errors.KindTypeMismatch).
				Path(path[:i+1]...).
				GoType(t.String()).
				Detail("cannot select %q from a scalar", seg).
				Build()
		}
	}
	if t.hasList {
		return deepCopy(cur).Interface(), nil
	}
	return cur.Interface(), nil
}

func (r *Registry) newValue(t *TypeHandle, rv reflect.Value) *ValueHandle {
	return &ValueHandle{
		typ: t,
		ptr: r.arena.InternValue(rv),
		id:  atomic.AddUint64(&r.nextValue, 1),
	}
}

// SynthesizeValue builds a constant of struct type t from inits, one per
// member in order. Each init is a *ValueHandle of exactly the member's
// type, or a scalar convertible to it: bool; any Go integer (int64 and
// float64 members); float32/float64 (float64 members); string or
// arena.Blob (string members); nil or Null (null members). Strings are
// interned.
func (r *Registry) SynthesizeValue(t *TypeHandle, inits []any) (*ValueHandle, error) {
	if t == nil || t.kind != KindStruct {
		return nil, errors.InvalidInput(errors.PhaseValue, fmt.Sprintf("SynthesizeValue needs a struct type, got %s", t))
	}
	if !r.owns(t) {
		return nil, errors.InvalidInput(errors.PhaseValue, "type not from this registry")
	}
	if len(inits) != len(t.members) {
		return nil, errors.ArityMismatch(nil, len(t.members), len(inits))
	}

	rv := reflect.New(t.goType).Elem()
	for i, m := range t.members {
		if err := r.assign(rv.Field(i), m.Type, inits[i], []string{m.Name}); err != nil {
			return nil, err
		}
	}
	return r.newValue(t, rv), nil
}

// SynthesizeListValue builds a constant of list type t. Elements follow
// the same rules as SynthesizeValue initializers. The backing array is
// interned.
func (r *Registry) SynthesizeListValue(t *TypeHandle, elems []any) (*ValueHandle, error) {
	if t == nil || t.kind != KindList {
		return nil, errors.InvalidInput(errors.PhaseValue, fmt.Sprintf("SynthesizeListValue needs a list type, got %s", t))
	}
	if !r.owns(t) {
		return nil, errors.InvalidInput(errors.PhaseValue, "type not from this registry")
	}

	rv := reflect.MakeSlice(t.goType, len(elems), len(elems))
	for i, e := range elems {
		if err := r.assign(rv.Index(i), t.elem, e, []string{"[" + strconv.Itoa(i) + "]"}); err != nil {
			return nil, err
		}
	}
	return r.newValue(t, r.arena.InternSlice(rv)), nil
}

func (r *Registry) assign(dst reflect.Value, t *TypeHandle, init any, path []string) error {
	mismatch := func(got string) error {
		return errors.TypeMismatch(errors.PhaseValue, path, got, t.String())
	}

	switch v := init.(type) {
	case *ValueHandle:
		if v == nil {
			return mismatch("nil *ValueHandle")
		}
		if v.typ != t {
			return mismatch(v.typ.String())
		}
		dst.Set(v.ptr.Elem())
		return nil

	case nil, Null:
		if t.kind != KindNull {
			return mismatch("null")
		}
		return nil

	case bool:
		if t.kind != KindBool {
			return mismatch("bool")
		}
		dst.SetBool(v)
		return nil

	case string:
		if t.kind != KindString {
			return mismatch("string")
		}
		dst.SetString(r.arena.InternString(v).String())
		return nil

	case arena.Blob:
		if t.kind != KindString {
			return mismatch("string")
		}
		dst.SetString(v.String())
		return nil

	case float32:
		if t.kind != KindFloat {
			return mismatch("float32")
		}
		dst.SetFloat(float64(v))
		return nil

	case float64:
		if t.kind != KindFloat {
			return mismatch("float64")
		}
		dst.SetFloat(v)
		return nil
	}

	rv := reflect.ValueOf(init)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch t.kind {
		case KindInt:
			dst.SetInt(rv.Int())
		case KindFloat:
			dst.SetFloat(float64(rv.Int()))
		default:
			return mismatch(rv.Type().String())
		}
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch t.kind {
		case KindInt:
			u := rv.Uint()
			if u > math.MaxInt64 {
				return errors.Overflow(errors.PhaseValue, path, u, "int64")
			}
			dst.SetInt(int64(u))
		case KindFloat:
			dst.SetFloat(float64(rv.Uint()))
		default:
			return mismatch(rv.Type().String())
		}
		return nil
	}

	return mismatch(fmt.Sprintf("%T", init))
}
