// Package walker turns a parsed document tree into a synthesized constant.
//
// A walk runs in two passes. The planning pass checks the whole tree
// (duplicate keys, nesting depth, node kinds, number ranges, array element
// shapes) without touching shared state. The emitting pass is a post-order
// traversal: every member of an object is emitted before the object
// itself, so each aggregate type is requested from the synth.Registry only
// after all its member types exist. Scalars map to the
// primitive types (string, bool, int64 or float64 depending on the
// NumberPolicy, and synth.Null); objects map to synthesized struct types;
// arrays map to list types when Options.Arrays is set.
//
// Every error carries the key path of the offending node. The walk stops at
// the first error and returns no partial value.
package walker
