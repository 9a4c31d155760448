// Package structsynth turns JSON or YAML document literals into Go values of
// synthesized struct types.
//
// A document such as
//
//	{"outer": "text", "inner": {"field": "yes", "number": 2996}}
//
// becomes a value of the runtime-built type
//
//	struct {
//		Outer string `json:"outer"`
//		Inner struct {
//			Field  string `json:"field"`
//			Number int64  `json:"number"`
//		} `json:"inner"`
//	}
//
// Structurally identical documents share one synthesized type, member order
// follows the document text, and all string content lives in an
// append-only arena that is never freed.
//
// # Architecture Overview
//
//	structsynth/        Entry point: Synthesize, Synthesizer, Options, Into
//	├── document/       Document tree, JSON and YAML parsers
//	├── walker/         Document tree to synthesized value
//	├── synth/          Deduplicating type registry and value synthesis
//	├── arena/          Append-only interning arena
//	├── canon/          WIT types, canonical ABI layout, Lower/Lift into wasm memory
//	├── errors/         Structured error types with key paths
//	└── cmd/synth/      Command line tool
//
// # Quick Start
//
// Synthesize at package initialisation and read fields by key:
//
//	var cfg = structsynth.MustSynthesize(`{"name": "svc", "limits": {"rps": 200}}`)
//
//	rps, _ := cfg.Get("limits", "rps") // int64(200)
//
// Or decode into a hand-written struct of the same shape:
//
//	type Limits struct{ RPS int64 `json:"rps"` }
//	type Config struct {
//		Name   string `json:"name"`
//		Limits Limits `json:"limits"`
//	}
//	c, err := structsynth.Into[Config](cfg)
//
// # Errors
//
// Every failure is an *errors.Error carrying a Kind (invalid_root,
// duplicate_key, duplicate_member, arity_mismatch, type_mismatch,
// nesting_too_deep, unsupported_node_kind, ...) and the key path of the
// offending node:
//
//	_, err := structsynth.Synthesize(`{"x": 1, "x": 2}`)
//	// [walk] duplicate_key at x: key "x" appears more than once
//
// Synthesis is all or nothing. A failed call returns no value and
// registers no types.
//
// # Thread Safety
//
// Synthesizer, the registry and the arena are safe for concurrent use.
package structsynth
