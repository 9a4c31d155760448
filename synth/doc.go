// Package synth synthesizes Go aggregate types and constant values at run
// time from member descriptions.
//
// Synthesis is two-phase. SynthesizeType turns an ordered member list into
// a canonical *TypeHandle; only with that handle in hand can
// SynthesizeValue build an instance. Nested types must therefore be
// synthesized bottom-up before the types that contain them.
//
//	inner, _ := reg.SynthesizeType([]synth.Member{
//		{Name: "field", Type: synth.StringType},
//		{Name: "number", Type: synth.IntType},
//	})
//	outer, _ := reg.SynthesizeType([]synth.Member{
//		{Name: "outer", Type: synth.StringType},
//		{Name: "inner", Type: inner},
//	})
//	iv, _ := reg.SynthesizeValue(inner, []any{"yes", 2996})
//	ov, _ := reg.SynthesizeValue(outer, []any{"text", iv})
//
// # Deduplication
//
// A Registry maps a canonical encoding of the member list to exactly one
// TypeHandle, so identical member lists give pointer-identical handles.
// The Go type behind a handle comes from reflect.StructOf, which the Go
// runtime itself deduplicates: two registries asked for the same shape end
// up with the same reflect.Type.
//
// # Go Field Names
//
// Member names are arbitrary document keys. Each becomes an exported Go
// identifier (see FieldName) and the original name is kept in a json
// struct tag. Two names that map to the same identifier are rejected as
// duplicate members.
//
// # Lifetime
//
// Registries and their handles are append-only. Values are copied into an
// arena.Arena and never freed. Accessors return copies, so a ValueHandle
// behaves as a constant.
//
// # Thread Safety
//
// Registry is safe for concurrent use. TypeHandle and ValueHandle are
// immutable after creation.
package synth
