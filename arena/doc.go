// Package arena implements the static interning arena: an append-only store
// that promotes transient strings, arrays and objects to storage that lives
// for the rest of the process.
//
// Nothing is ever freed. Blobs returned by InternString point into chunk
// memory the arena keeps referenced, so they stay valid for the program's
// lifetime and can back constants built by the synth package.
//
// # Operations
//
//	InternString / InternBytes   null-terminated, deduplicated byte blobs
//	InternArray[T] / InternSlice copy a slice into a retained backing array
//	InternObject[T] / InternValue copy one value and return a stable pointer
//
// # Thread Safety
//
// All operations are safe for concurrent use. Each append is atomic with
// respect to other appends; callers never observe a half-written entry.
package arena
