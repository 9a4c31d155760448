// Package errors provides structured error types for structsynth.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: key path, Go/document type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseWalk, errors.KindDuplicateKey).
//		Path("outer", "inner").
//		Detail("key %q repeated", "badfield").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseValue, path, "string", "int64")
//	err := errors.NestingTooDeep(path, 64)
//
// All errors implement the standard error interface and support errors.Is/As.
// The Err* sentinels match any error of the same Kind regardless of phase:
//
//	if errors.Is(err, errors.ErrDuplicateKey) { ... }
package errors
