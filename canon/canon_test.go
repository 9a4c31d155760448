package canon

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bytecodealliance.org/wit"
	"go.uber.org/goleak"

	structsynth "github.com/wippyai/structsynth"
	"github.com/wippyai/structsynth/arena"
	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testMemory struct {
	data []byte
}

func newTestMemory(size int) *testMemory {
	return &testMemory{data: make([]byte, size)}
}

func (m *testMemory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return errors.OutOfBounds(errors.PhaseLift, nil, offset, length)
	}
	return nil
}

func (m *testMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	return m.data[offset : offset+length], nil
}

func (m *testMemory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *testMemory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *testMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *testMemory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *testMemory) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *testMemory) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *testMemory) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

func (m *testMemory) Size() uint32 { return uint32(len(m.data)) }

func (m *testMemory) Grow(pages uint32) bool {
	m.data = append(m.data, make([]byte, int(pages)*PageSize)...)
	return true
}

type failingAllocator struct{}

func (failingAllocator) Alloc(size, align uint32) (uint32, error) {
	return 0, fmt.Errorf("out of memory")
}

func (failingAllocator) Free(ptr, size, align uint32) {}

var (
	_ structsynth.Memory      = (*WazeroMemory)(nil)
	_ structsynth.MemorySizer = (*WazeroMemory)(nil)
	_ structsynth.Allocator   = (*BumpAllocator)(nil)
	_ structsynth.Memory      = (*testMemory)(nil)
)

func synthesize(t *testing.T, text string) (*synth.Registry, *synth.ValueHandle) {
	t.Helper()
	reg := synth.NewRegistry(arena.New())
	s, err := structsynth.New(structsynth.Options{Registry: reg, Arrays: true})
	require.NoError(t, err)
	v, err := s.Synthesize(text)
	require.NoError(t, err)
	return reg, v
}

const scenario = `{"outer": "text", "inner": {"field": "yes", "number": 2996}}`

func TestWIT(t *testing.T) {
	_, v := synthesize(t, scenario)
	c := NewCodec()

	td, ok := c.WIT(v.Type()).(*wit.TypeDef)
	require.True(t, ok)
	rec, ok := td.Kind.(*wit.Record)
	require.True(t, ok)
	require.Len(t, rec.Fields, 2)
	assert.Equal(t, "outer", rec.Fields[0].Name)
	assert.Equal(t, wit.String{}, rec.Fields[0].Type)
	assert.Equal(t, "inner", rec.Fields[1].Name)

	inner, ok := rec.Fields[1].Type.(*wit.TypeDef)
	require.True(t, ok)
	innerRec := inner.Kind.(*wit.Record)
	assert.Equal(t, wit.S64{}, innerRec.Fields[1].Type)

	assert.Same(t, td, c.WIT(v.Type()), "WIT types are cached")
	assert.Equal(t, wit.Bool{}, c.WIT(synth.BoolType))
	assert.Equal(t, wit.F64{}, c.WIT(synth.FloatType))
}

func TestWIT_List(t *testing.T) {
	_, v := synthesize(t, `{"tags": ["a"], "none": null}`)
	c := NewCodec()

	rec := c.WIT(v.Type()).(*wit.TypeDef).Kind.(*wit.Record)
	list, ok := rec.Fields[0].Type.(*wit.TypeDef).Kind.(*wit.List)
	require.True(t, ok)
	assert.Equal(t, wit.String{}, list.Type)

	tuple, ok := rec.Fields[1].Type.(*wit.TypeDef).Kind.(*wit.Tuple)
	require.True(t, ok)
	assert.Empty(t, tuple.Types)
}

func TestWITText(t *testing.T) {
	_, v := synthesize(t, scenario)
	c := NewCodec()

	want := `record inner {
    field: string,
    number: s64,
}

record document {
    outer: string,
    inner: inner,
}
`
	assert.Equal(t, want, c.WITText(v.Type(), ""))

	t.Run("lists and keyword names", func(t *testing.T) {
		_, v := synthesize(t, `{"type": "x", "points": [{"x-pos": 1.5}], "flags": [], "myKey": true, "document": {}}`)
		want := `record points {
    x-pos: f64,
}

record document {}

record config {
    %type: string,
    points: list<points>,
    %flags: list<tuple<>>,
    my-key: bool,
    document: document,
}
`
		assert.Equal(t, want, c.WITText(v.Type(), "config"))
	})

	t.Run("nested name clashes with root", func(t *testing.T) {
		_, v := synthesize(t, `{"document": {"a": 1}}`)
		want := `record document-2 {
    a: s64,
}

record document {
    document: document-2,
}
`
		assert.Equal(t, want, c.WITText(v.Type(), ""))
	})

	t.Run("list root", func(t *testing.T) {
		reg := synth.NewRegistry(arena.New())
		lt, err := reg.SynthesizeList(synth.IntType)
		require.NoError(t, err)
		assert.Equal(t, "type numbers = list<s64>;\n", c.WITText(lt, "numbers"))
	})
}

func TestKebab(t *testing.T) {
	tests := map[string]string{
		"outer":      "outer",
		"myKey":      "my-key",
		"snake_case": "snake-case",
		"with space": "with-space",
		"1st":        "x1st",
		"k1_0":       "k1-x0",
		"HTTPServer": "httpserver",
		"a.b":        "a-b",
		"type":       "%type",
		"":           "x",
		"---":        "x",
	}
	for in, want := range tests {
		assert.Equal(t, want, Kebab(in), in)
	}
}

func TestLayout(t *testing.T) {
	c := NewCodec()

	_, v := synthesize(t, scenario)
	l := c.Layout(v.Type())
	assert.Equal(t, Layout{Size: 24, Align: 8, Offsets: []uint32{0, 8}}, l)

	inner := v.Type().Member(1).Type
	assert.Equal(t, Layout{Size: 16, Align: 8, Offsets: []uint32{0, 8}}, c.Layout(inner))

	_, v = synthesize(t, `{"b": true, "n": null, "f": 2.5, "l": [1]}`)
	assert.Equal(t, Layout{Size: 24, Align: 8, Offsets: []uint32{0, 1, 8, 16}}, c.Layout(v.Type()))
	assert.Equal(t, Layout{Size: 8, Align: 4}, c.Layout(v.Type().Member(3).Type))
	assert.Equal(t, Layout{Size: 0, Align: 1}, c.Layout(synth.NullType))

	_, v = synthesize(t, `{}`)
	assert.Equal(t, Layout{Size: 0, Align: 1}, c.Layout(v.Type()))
}

func TestLowerLift(t *testing.T) {
	reg, v := synthesize(t, `{
		"outer": "text",
		"inner": {"field": "yes", "number": 2996},
		"flag": true,
		"ratio": -0.25,
		"nothing": null,
		"empty": "",
		"points": [{"x": 1, "y": 2}, {"x": -3, "y": 4}],
		"none": []
	}`)
	c := NewCodec()
	mem := newTestMemory(4096)
	alloc := NewBumpAllocator(mem, 0)

	ptr, err := c.Lower(v, mem, alloc)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), ptr)

	l := c.Layout(v.Type())
	strPtr, err := mem.ReadU32(ptr + l.Offsets[0])
	require.NoError(t, err)
	strLen, err := mem.ReadU32(ptr + l.Offsets[0] + 4)
	require.NoError(t, err)
	raw, err := mem.Read(strPtr, strLen)
	require.NoError(t, err)
	assert.Equal(t, "text", string(raw))

	number, err := mem.ReadU64(ptr + l.Offsets[1] + 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(2996), number)

	back, err := c.Lift(reg, v.Type(), mem, ptr)
	require.NoError(t, err)
	assert.Same(t, v.Type(), back.Type())
	assert.True(t, v.Equal(back), "lifted %s, want %s", back, v)
	assert.NotEqual(t, v.ID(), back.ID())
}

func TestLowerLift_Wazero(t *testing.T) {
	ctx := context.Background()
	lm, err := NewLinearMemory(ctx, MemoryConfig{})
	require.NoError(t, err)
	defer lm.Close(ctx)

	reg, v := synthesize(t, scenario)
	c := NewCodec()

	ptr, err := c.Lower(v, lm.Memory(), lm.Allocator())
	require.NoError(t, err)
	assert.Greater(t, lm.Allocator().Used(), uint32(24))

	back, err := c.Lift(reg, v.Type(), lm.Memory(), ptr)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))

	got, err := back.Get("inner", "number")
	require.NoError(t, err)
	assert.Equal(t, int64(2996), got)
}

func TestLift_Errors(t *testing.T) {
	reg, v := synthesize(t, `{"outer": "text", "b": true}`)
	c := NewCodec()

	t.Run("out of bounds", func(t *testing.T) {
		_, err := c.Lift(reg, v.Type(), newTestMemory(64), 1000)
		require.ErrorIs(t, err, &errors.Error{Kind: errors.KindOutOfBounds})
		var se *errors.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "outer", se.KeyPath())
	})

	t.Run("string past end", func(t *testing.T) {
		mem := newTestMemory(64)
		require.NoError(t, mem.WriteU32(0, 60))
		require.NoError(t, mem.WriteU32(4, 100))
		_, err := c.Lift(reg, v.Type(), mem, 0)
		assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindOutOfBounds})
	})

	t.Run("bad bool", func(t *testing.T) {
		mem := newTestMemory(64)
		require.NoError(t, mem.WriteU8(8, 2))
		_, err := c.Lift(reg, v.Type(), mem, 0)
		require.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidData})
		var se *errors.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "b", se.KeyPath())
	})

	t.Run("list too long", func(t *testing.T) {
		reg, v := synthesize(t, `{"l": [1]}`)
		mem := newTestMemory(64)
		require.NoError(t, mem.WriteU32(4, MaxListLength+1))
		_, err := c.Lift(reg, v.Type(), mem, 0)
		assert.ErrorIs(t, err, errors.ErrOverflow)
	})

	t.Run("list larger than memory", func(t *testing.T) {
		reg, v := synthesize(t, `{"l": [1]}`)
		mem := newTestMemory(64)
		require.NoError(t, mem.WriteU32(0, 16))
		require.NoError(t, mem.WriteU32(4, 1<<20))
		_, err := c.Lift(reg, v.Type(), mem, 0)
		require.ErrorIs(t, err, &errors.Error{Kind: errors.KindOutOfBounds})
		var se *errors.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "l", se.KeyPath())
	})

	t.Run("list ends one element past memory", func(t *testing.T) {
		reg, v := synthesize(t, `{"l": [1]}`)
		mem := newTestMemory(64)
		require.NoError(t, mem.WriteU32(0, 16))
		require.NoError(t, mem.WriteU32(4, 7))
		_, err := c.Lift(reg, v.Type(), mem, 0)
		assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindOutOfBounds})

		require.NoError(t, mem.WriteU32(4, 6))
		got, err := c.Lift(reg, v.Type(), mem, 0)
		require.NoError(t, err)
		l, err := got.Get("l")
		require.NoError(t, err)
		assert.Len(t, l, 6)
	})

	t.Run("scalar type", func(t *testing.T) {
		_, err := c.Lift(reg, synth.IntType, newTestMemory(8), 0)
		assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
	})

	t.Run("foreign type", func(t *testing.T) {
		mem := newTestMemory(64)
		_, err := c.Lift(synth.NewRegistry(arena.New()), v.Type(), mem, 0)
		assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
	})
}

func TestLower_Errors(t *testing.T) {
	_, v := synthesize(t, scenario)
	c := NewCodec()

	_, err := c.Lower(v, newTestMemory(64), failingAllocator{})
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindAllocation})

	_, err = c.Lower(nil, newTestMemory(64), failingAllocator{})
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
}

func TestBumpAllocator(t *testing.T) {
	mem := newTestMemory(32)
	a := NewBumpAllocator(mem, 0)

	p1, err := a.Alloc(3, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), p1)

	p2, err := a.Alloc(8, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), p2)

	p3, err := a.Alloc(100, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(24), p3)
	assert.Equal(t, uint32(32+PageSize), mem.Size())

	assert.Equal(t, uint32(116), a.Used())
	a.Reset()
	assert.Equal(t, uint32(0), a.Used())

	_, err = a.Alloc(1, 3)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
}

// sizedMemory reports a size without backing storage. It may grow to the
// full 4GiB address space.
type sizedMemory struct {
	size uint64
}

func (m *sizedMemory) Size() uint32 { return uint32(m.size) }

func (m *sizedMemory) Grow(pages uint32) bool {
	if m.size+uint64(pages)*PageSize > 1<<32 {
		return false
	}
	m.size += uint64(pages) * PageSize
	return true
}

func TestBumpAllocator_AddressSpaceEnd(t *testing.T) {
	const top = 1<<32 - PageSize

	// an allocation ending exactly at 4GiB would wrap the next offset to 0
	a := NewBumpAllocator(&sizedMemory{size: top}, top-8)
	_, err := a.Alloc(PageSize+8, 1)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindAllocation})
	assert.Equal(t, uint32(0), a.Used())

	p, err := a.Alloc(PageSize, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(top-8), p)
	assert.Equal(t, uint32(PageSize), a.Used())

	_, err = a.Alloc(8, 8)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindAllocation})

	// aligning past the last offset must not wrap to 0 either
	_, err = a.Alloc(1, 16)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindAllocation})
	assert.Equal(t, uint32(PageSize), a.Used())
}

func TestLinearMemory_Limits(t *testing.T) {
	ctx := context.Background()
	lm, err := NewLinearMemory(ctx, MemoryConfig{InitialPages: 1, MaxPages: 2})
	require.NoError(t, err)
	defer lm.Close(ctx)

	assert.Equal(t, uint32(PageSize), lm.Memory().Size())

	_, err = lm.Allocator().Alloc(PageSize, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(2*PageSize), lm.Memory().Size())

	_, err = lm.Allocator().Alloc(PageSize, 8)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindAllocation})

	_, err = NewLinearMemory(ctx, MemoryConfig{InitialPages: 4, MaxPages: 2})
	assert.Error(t, err)
}

func TestMemoryModule(t *testing.T) {
	want := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x05, 0x03, 0x01, 0x00, 0x01,
		0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	}
	assert.Equal(t, want, memoryModule(1, 0))

	withMax := memoryModule(1, 300)
	assert.Equal(t, []byte{0x05, 0x05, 0x01, 0x01, 0x01, 0xac, 0x02}, withMax[8:15])
}
