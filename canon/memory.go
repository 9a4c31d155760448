package canon

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/structsynth/errors"
)

// PageSize is the WebAssembly page size in bytes.
const PageSize = 1 << 16

// WazeroMemory wraps wazero memory to implement structsynth.Memory
type WazeroMemory struct {
	mem api.Memory
}

// NewWazeroMemory wraps mem.
func NewWazeroMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseLift, nil, offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseLower, nil, offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseLift, nil, offset, 1)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseLift, nil, offset, 4)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseLift, nil, offset, 8)
	}
	return v, nil
}

func (m *WazeroMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return errors.OutOfBounds(errors.PhaseLower, nil, offset, 1)
	}
	return nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseLower, nil, offset, 4)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseLower, nil, offset, 8)
	}
	return nil
}

// Size returns the memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	return m.mem.Size()
}

// Grow adds pages to the memory.
func (m *WazeroMemory) Grow(pages uint32) bool {
	_, ok := m.mem.Grow(pages)
	return ok
}

// Grower is memory that can be extended by whole pages.
type Grower interface {
	Size() uint32
	Grow(pages uint32) bool
}

// BumpAllocator hands out memory from a growing high-water mark. Free is a
// no-op; Reset releases everything at once.
type BumpAllocator struct {
	mem  Grower
	base uint32
	next uint32
}

// NewBumpAllocator allocates from mem starting at base. Offset 0 is never
// returned, so a base of 0 starts at the first aligned non-zero offset.
func NewBumpAllocator(mem Grower, base uint32) *BumpAllocator {
	if base == 0 {
		base = 8
	}
	return &BumpAllocator{mem: mem, base: base, next: base}
}

func (a *BumpAllocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseLower, fmt.Sprintf("alignment %d is not a power of two", align))
	}
	// next must stay representable, so the last byte of the 32-bit space
	// is never handed out.
	ptr := (uint64(a.next) + uint64(align) - 1) &^ (uint64(align) - 1)
	end := ptr + uint64(size)
	if end >= 1<<32 {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align)
	}

	if have := uint64(a.mem.Size()); end > have {
		pages := uint32((end - have + PageSize - 1) / PageSize)
		if !a.mem.Grow(pages) {
			return 0, errors.AllocationFailed(errors.PhaseLower, size, align)
		}
		Logger().Debug("grew linear memory", zap.Uint32("pages", pages), zap.Uint32("size", a.mem.Size()))
	}

	a.next = uint32(end)
	return uint32(ptr), nil
}

func (a *BumpAllocator) Free(ptr, size, align uint32) {}

// Used returns the number of bytes handed out since the last Reset.
func (a *BumpAllocator) Used() uint32 {
	return a.next - a.base
}

// Reset makes all memory available again.
func (a *BumpAllocator) Reset() {
	a.next = a.base
}

// MemoryConfig configures NewLinearMemory.
type MemoryConfig struct {
	// InitialPages is the starting memory size. 0 means 1 page.
	InitialPages uint32
	// MaxPages caps memory growth. 0 means the runtime default.
	MaxPages uint32
}

// LinearMemory is a standalone WebAssembly memory hosted by wazero, with a
// bump allocator over it.
type LinearMemory struct {
	runtime wazero.Runtime
	module  api.Module
	memory  *WazeroMemory
	alloc   *BumpAllocator
}

// NewLinearMemory instantiates a module that only defines and exports a
// memory named "memory".
func NewLinearMemory(ctx context.Context, cfg MemoryConfig) (*LinearMemory, error) {
	if cfg.InitialPages == 0 {
		cfg.InitialPages = 1
	}
	if cfg.MaxPages != 0 && cfg.MaxPages < cfg.InitialPages {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("max pages %d below initial pages %d", cfg.MaxPages, cfg.InitialPages))
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MaxPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MaxPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := runtime.CompileModule(ctx, memoryModule(cfg.InitialPages, cfg.MaxPages))
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("compile memory module: %w", err)
	}

	mod, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate memory module: %w", err)
	}

	mem := mod.Memory()
	if mem == nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("memory module has no memory")
	}

	wm := NewWazeroMemory(mem)
	return &LinearMemory{
		runtime: runtime,
		module:  mod,
		memory:  wm,
		alloc:   NewBumpAllocator(wm, 0),
	}, nil
}

// Memory returns the memory.
func (l *LinearMemory) Memory() *WazeroMemory {
	return l.memory
}

// Allocator returns the bump allocator over the memory.
func (l *LinearMemory) Allocator() *BumpAllocator {
	return l.alloc
}

// Close releases the wazero runtime.
func (l *LinearMemory) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// memoryModule encodes a binary module with one memory, exported as
// "memory".
func memoryModule(initial, maxPages uint32) []byte {
	limits := []byte{0x00}
	limits = appendULEB128(limits, initial)
	if maxPages > 0 {
		limits[0] = 0x01
		limits = appendULEB128(limits, maxPages)
	}

	memSec := append([]byte{0x01}, limits...)
	exportSec := []byte{0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = appendSection(out, 0x05, memSec)
	out = appendSection(out, 0x07, exportSec)
	return out
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = appendULEB128(out, uint32(len(body)))
	return append(out, body...)
}

func appendULEB128(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}
