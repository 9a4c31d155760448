package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse  Phase = "parse"  // document text to tree
	PhaseWalk   Phase = "walk"   // document tree traversal
	PhaseType   Phase = "type"   // aggregate type synthesis
	PhaseValue  Phase = "value"  // constant value synthesis
	PhaseIntern Phase = "intern" // static arena
	PhaseLower  Phase = "lower"  // Go value to linear memory
	PhaseLift   Phase = "lift"   // linear memory to Go value
	PhaseAccess Phase = "access" // reading synthesized values
	PhaseConfig Phase = "config" // options loading and validation
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidRoot         Kind = "invalid_root"
	KindDuplicateKey        Kind = "duplicate_key"
	KindDuplicateMember     Kind = "duplicate_member"
	KindArityMismatch       Kind = "arity_mismatch"
	KindTypeMismatch        Kind = "type_mismatch"
	KindNestingTooDeep      Kind = "nesting_too_deep"
	KindUnsupportedNodeKind Kind = "unsupported_node_kind"
	KindInvalidKey          Kind = "invalid_key"
	KindInvalidData         Kind = "invalid_data"
	KindOverflow            Kind = "overflow"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindAllocation          Kind = "allocation"
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
)

// Sentinels for errors.Is. They carry no Phase, so they match every phase.
var (
	ErrInvalidRoot         = &Error{Kind: KindInvalidRoot}
	ErrDuplicateKey        = &Error{Kind: KindDuplicateKey}
	ErrDuplicateMember     = &Error{Kind: KindDuplicateMember}
	ErrArityMismatch       = &Error{Kind: KindArityMismatch}
	ErrTypeMismatch        = &Error{Kind: KindTypeMismatch}
	ErrNestingTooDeep      = &Error{Kind: KindNestingTooDeep}
	ErrUnsupportedNodeKind = &Error{Kind: KindUnsupportedNodeKind}
	ErrInvalidKey          = &Error{Kind: KindInvalidKey}
	ErrOverflow            = &Error{Kind: KindOverflow}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout structsynth
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	DocType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(JoinPath(e.Path))
	}

	if e.GoType != "" || e.DocType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.DocType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", document type ")
			b.WriteString(e.DocType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("document type ")
			b.WriteString(e.DocType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.DocType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// KeyPath returns the dotted key path, e.g. "outer.inner[2].field".
func (e *Error) KeyPath() string {
	return JoinPath(e.Path)
}

// JoinPath joins path segments with dots. Index segments ("[3]") attach
// to the preceding segment without a separator.
func JoinPath(path []string) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 && !strings.HasPrefix(p, "[") {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the key path. The slice is copied.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = append([]string(nil), path...)
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// DocType sets the document node kind name
func (b *Builder) DocType(t string) *Builder {
	b.err.DocType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

func copyPath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	return append([]string(nil), path...)
}

// InvalidRoot creates an error for a root document that is not an object
func InvalidRoot(docType string) *Error {
	return &Error{
		Phase:   PhaseWalk,
		Kind:    KindInvalidRoot,
		DocType: docType,
		Detail:  "root document must be an object",
	}
}

// DuplicateKey creates an error for a key repeated within one object
func DuplicateKey(path []string, key string) *Error {
	return &Error{
		Phase:  PhaseWalk,
		Kind:   KindDuplicateKey,
		Path:   copyPath(path),
		Detail: fmt.Sprintf("key %q appears more than once", key),
		Value:  key,
	}
}

// DuplicateMember creates an error for two members sharing a name
func DuplicateMember(path []string, name, other string) *Error {
	detail := fmt.Sprintf("member %q declared more than once", name)
	if other != "" && other != name {
		detail = fmt.Sprintf("members %q and %q map to the same field", other, name)
	}
	return &Error{
		Phase:  PhaseType,
		Kind:   KindDuplicateMember,
		Path:   copyPath(path),
		Detail: detail,
		Value:  name,
	}
}

// ArityMismatch creates an initializer count error
func ArityMismatch(path []string, want, got int) *Error {
	return &Error{
		Phase:  PhaseValue,
		Kind:   KindArityMismatch,
		Path:   copyPath(path),
		Detail: fmt.Sprintf("type has %d members, got %d initializers", want, got),
		Value:  got,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, docType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    copyPath(path),
		GoType:  goType,
		DocType: docType,
	}
}

// NestingTooDeep creates a depth limit error
func NestingTooDeep(path []string, limit int) *Error {
	return &Error{
		Phase:  PhaseWalk,
		Kind:   KindNestingTooDeep,
		Path:   copyPath(path),
		Detail: fmt.Sprintf("document nesting exceeds limit of %d", limit),
		Value:  limit,
	}
}

// InvalidKey creates an error for a member name that encoding/json cannot
// carry as a field name.
func InvalidKey(phase Phase, path []string, key string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidKey,
		Path:   copyPath(path),
		Detail: fmt.Sprintf("key %q cannot be a json field name", key),
		Value:  key,
	}
}

// UnsupportedNodeKind creates an error for a node kind the walker does not handle
func UnsupportedNodeKind(path []string, docType string) *Error {
	return &Error{
		Phase:   PhaseWalk,
		Kind:    KindUnsupportedNodeKind,
		Path:    copyPath(path),
		DocType: docType,
		Detail:  "node kind not supported",
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   copyPath(path),
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   copyPath(path),
		Detail: fmt.Sprintf("access at %d (%d bytes) out of bounds", offset, length),
		Value:  offset,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   copyPath(path),
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   copyPath(path),
		Detail: fmt.Sprintf("%s not found", what),
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WithPathPrefix returns err with prefix prepended to its key path. Errors
// that are not *Error are returned unchanged.
func WithPathPrefix(err error, prefix []string) error {
	e, ok := err.(*Error)
	if !ok || len(prefix) == 0 {
		return err
	}
	out := *e
	out.Path = make([]string, 0, len(prefix)+len(e.Path))
	out.Path = append(out.Path, prefix...)
	out.Path = append(out.Path, e.Path...)
	return &out
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
