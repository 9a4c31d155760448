// Package document defines the immutable structural document tree consumed
// by the synthesizer, and parsers that build it from JSON or YAML text.
//
// A Node is one of:
//
//	Null             null
//	Bool             true / false
//	Number           numeric literal, kept as text
//	String           string
//	*Object          ordered (key, value) fields
//	Array            ordered elements
//
// Object field order is exactly the source order. Duplicate keys are kept
// as separate fields: rejecting them is the walker's job, so the error can
// carry the key path.
//
// Numbers are not converted here. The walker chooses the Go type once it
// knows the numeric policy, so no precision is lost before that point.
package document
