package structsynth

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
)

// Into copies a synthesized value into a value of type T.
//
// When the synthesized type converts to T directly (same field names and
// types, tags ignored) the value is converted. Otherwise fields are
// matched by key the way encoding/json does: the json tag name, else the
// field name, compared case-insensitively. T fields without a matching
// member keep their zero value. Nested structs, slices, pointers and
// interface fields are filled recursively; integers are range checked.
func Into[T any](v *synth.ValueHandle) (T, error) {
	var out T
	if v == nil {
		return out, errors.InvalidInput(errors.PhaseAccess, "nil value")
	}

	dst := reflect.ValueOf(&out).Elem()
	if err := decodeInto(dst, v.Value(), v.Type(), nil); err != nil {
		return out, err
	}
	return out, nil
}

func decodeInto(dst, src reflect.Value, t *synth.TypeHandle, path []string) error {
	if t.Kind() == synth.KindStruct && src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}

	mismatch := func() error {
		return errors.TypeMismatch(errors.PhaseAccess, path, dst.Type().String(), t.String())
	}

	switch dst.Kind() {
	case reflect.Pointer:
		if t.Kind() == synth.KindNull {
			dst.SetZero()
			return nil
		}
		p := reflect.New(dst.Type().Elem())
		if err := decodeInto(p.Elem(), src, t, path); err != nil {
			return err
		}
		dst.Set(p)
		return nil

	case reflect.Interface:
		if dst.NumMethod() != 0 {
			return mismatch()
		}
		if t.Kind() == synth.KindNull {
			dst.SetZero()
			return nil
		}
		dst.Set(src)
		return nil
	}

	switch t.Kind() {
	case synth.KindNull:
		dst.SetZero()
		return nil

	case synth.KindBool:
		if dst.Kind() != reflect.Bool {
			return mismatch()
		}
		dst.SetBool(src.Bool())

	case synth.KindString:
		if dst.Kind() != reflect.String {
			return mismatch()
		}
		dst.SetString(src.String())

	case synth.KindInt:
		n := src.Int()
		switch dst.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if dst.OverflowInt(n) {
				return errors.Overflow(errors.PhaseAccess, path, n, dst.Type().String())
			}
			dst.SetInt(n)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			if n < 0 || dst.OverflowUint(uint64(n)) {
				return errors.Overflow(errors.PhaseAccess, path, n, dst.Type().String())
			}
			dst.SetUint(uint64(n))
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(float64(n))
		default:
			return mismatch()
		}

	case synth.KindFloat:
		switch dst.Kind() {
		case reflect.Float32, reflect.Float64:
			f := src.Float()
			if dst.OverflowFloat(f) {
				return errors.Overflow(errors.PhaseAccess, path, f, dst.Type().String())
			}
			dst.SetFloat(f)
		default:
			return mismatch()
		}

	case synth.KindList:
		if dst.Kind() != reflect.Slice {
			return mismatch()
		}
		out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			p := append(path[:len(path):len(path)], "["+strconv.Itoa(i)+"]")
			if err := decodeInto(out.Index(i), src.Index(i), t.Elem(), p); err != nil {
				return err
			}
		}
		dst.Set(out)

	case synth.KindStruct:
		if dst.Kind() != reflect.Struct {
			return mismatch()
		}
		return decodeStruct(dst, src, t, path)

	default:
		return mismatch()
	}
	return nil
}

func decodeStruct(dst, src reflect.Value, t *synth.TypeHandle, path []string) error {
	dt := dst.Type()
	for i := 0; i < dt.NumField(); i++ {
		f := dt.Field(i)
		if !f.IsExported() {
			continue
		}
		key, skip := fieldKey(f)
		if skip {
			continue
		}
		idx := memberFor(t, key)
		if idx < 0 {
			continue
		}
		m := t.Member(idx)
		p := append(path[:len(path):len(path)], m.Name)
		if err := decodeInto(dst.Field(i), src.Field(idx), m.Type, p); err != nil {
			return err
		}
	}
	return nil
}

// fieldKey returns the document key a struct field decodes from.
func fieldKey(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, false
	}
	return f.Name, false
}

func memberFor(t *synth.TypeHandle, key string) int {
	if idx := t.MemberIndex(key); idx >= 0 {
		return idx
	}
	for i := 0; i < t.NumMembers(); i++ {
		if strings.EqualFold(t.Member(i).Name, key) {
			return i
		}
	}
	return -1
}
