// Package canon exports synthesized types and values to the WebAssembly
// Component Model.
//
// Every synthesized type has a WIT counterpart: struct types become
// records, lists become list<T>, and the primitives map to bool, s64, f64
// and string. synth.Null maps to the empty tuple.
//
// # Layout
//
// Values are laid out by the Canonical ABI rules:
//   - bool is one byte, s64 and f64 are eight bytes aligned to eight
//   - string and list<T> are a (pointer, length) pair of u32
//   - records place fields in order, each aligned to its own alignment,
//     and round the total size up to the largest field alignment
//
// # Lower and Lift
//
// Codec.Lower copies a synthesized value into linear memory, allocating
// string and list content through an Allocator, and returns the record
// pointer. Codec.Lift reads it back into a fresh value of the same
// synthesized type.
//
//	lm, err := canon.NewLinearMemory(ctx, canon.MemoryConfig{})
//	defer lm.Close(ctx)
//
//	codec := canon.NewCodec()
//	ptr, err := codec.Lower(v, lm.Memory(), lm.Allocator())
//	back, err := codec.Lift(reg, v.Type(), lm.Memory(), ptr)
package canon
