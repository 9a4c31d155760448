package arena

import (
	"reflect"
	"sync"
	"unsafe"
)

const (
	// ChunkSize is the size of a shared string chunk.
	ChunkSize = 64 << 10
	// largeBlob strings get a dedicated chunk instead of wasting shared space.
	largeBlob = ChunkSize / 4
)

// Blob is an interned, null-terminated byte sequence.
type Blob struct {
	ptr *byte
	n   int
}

// Len returns the length in bytes, excluding the terminator.
func (b Blob) Len() int {
	return b.n
}

// IsZero reports whether b was never interned.
func (b Blob) IsZero() bool {
	return b.ptr == nil
}

// String returns the content without copying. The result aliases arena
// memory, which is never modified after interning.
func (b Blob) String() string {
	if b.ptr == nil {
		return ""
	}
	return unsafe.String(b.ptr, b.n)
}

// Bytes returns a copy of the content.
func (b Blob) Bytes() []byte {
	return []byte(b.String())
}

// CString returns the content including the trailing zero byte. The slice
// aliases arena memory and must not be written.
func (b Blob) CString() []byte {
	if b.ptr == nil {
		return []byte{0}
	}
	return unsafe.Slice(b.ptr, b.n+1)
}

// Stats reports arena growth.
type Stats struct {
	Blobs      int // distinct interned strings
	BlobBytes  int // bytes used by strings, terminators included
	Chunks     int
	Objects    int // retained arrays and objects
	DedupHits  int // InternString calls answered from the table
	TotalCalls int
}

// Arena is an append-only interning store.
type Arena struct {
	blobs   map[string]Blob
	chunks  [][]byte
	objects []any
	cur     []byte
	stats   Stats
	mu      sync.Mutex
}

// New creates an empty arena.
func New() *Arena {
	return &Arena{
		blobs: make(map[string]Blob),
	}
}

var (
	defaultArena     *Arena
	defaultArenaOnce sync.Once
)

// Default returns the process-wide arena.
func Default() *Arena {
	defaultArenaOnce.Do(func() {
		defaultArena = New()
	})
	return defaultArena
}

// InternString returns a permanent copy of s. Equal content yields the
// same Blob.
func (a *Arena) InternString(s string) Blob {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalCalls++
	if b, ok := a.blobs[s]; ok {
		a.stats.DedupHits++
		return b
	}

	buf := a.reserve(len(s) + 1)
	copy(buf, s)
	buf[len(s)] = 0

	b := Blob{ptr: &buf[0], n: len(s)}
	// key aliases arena memory so the table does not hold a second copy
	a.blobs[b.String()] = b
	a.stats.Blobs++
	a.stats.BlobBytes += len(buf)
	return b
}

// InternBytes is InternString for byte slices.
func (a *Arena) InternBytes(p []byte) Blob {
	return a.InternString(string(p))
}

// reserve returns n bytes of fresh chunk space. Caller holds mu.
func (a *Arena) reserve(n int) []byte {
	if n >= largeBlob {
		chunk := make([]byte, n)
		a.chunks = append(a.chunks, chunk)
		a.stats.Chunks++
		return chunk
	}
	if len(a.cur)+n > cap(a.cur) {
		a.cur = make([]byte, 0, ChunkSize)
		a.chunks = append(a.chunks, a.cur[:ChunkSize])
		a.stats.Chunks++
	}
	start := len(a.cur)
	a.cur = a.cur[:start+n]
	return a.cur[start : start+n : start+n]
}

func (a *Arena) retain(v any) {
	a.mu.Lock()
	a.objects = append(a.objects, v)
	a.stats.Objects++
	a.mu.Unlock()
}

// Stats returns a snapshot of arena counters.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// InternArray copies elems into a retained backing array. The result has
// len == cap, so appending to it never writes into arena storage.
func InternArray[T any](a *Arena, elems []T) []T {
	if len(elems) == 0 {
		return []T{}
	}
	out := make([]T, len(elems))
	copy(out, elems)
	a.retain(out)
	return out[:len(out):len(out)]
}

// InternObject copies v into retained storage and returns its address.
func InternObject[T any](a *Arena, v T) *T {
	p := new(T)
	*p = v
	a.retain(p)
	return p
}

// InternValue copies v into retained storage and returns a pointer value
// to the copy (reflect form of InternObject).
func (a *Arena) InternValue(v reflect.Value) reflect.Value {
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	a.retain(p.Interface())
	return p
}

// InternSlice copies slice v into a retained backing array (reflect form
// of InternArray).
func (a *Arena) InternSlice(v reflect.Value) reflect.Value {
	n := v.Len()
	out := reflect.MakeSlice(v.Type(), n, n)
	reflect.Copy(out, v)
	if n > 0 {
		a.retain(out.Interface())
	}
	return out
}
