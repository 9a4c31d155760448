package walker

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/structsynth/arena"
	"github.com/wippyai/structsynth/document"
	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
)

// DefaultMaxDepth is the nesting limit used when Options.MaxDepth is zero.
// The root object is at depth 1.
const DefaultMaxDepth = 64

// NumberPolicy selects the Go type of document numbers.
type NumberPolicy string

const (
	// NumberAuto maps integral literals to int64 and literals with a
	// fraction or exponent to float64.
	NumberAuto NumberPolicy = "auto"
	// NumberInt64 requires every number to be an integral literal.
	NumberInt64 NumberPolicy = "int64"
	// NumberFloat64 maps every number to float64.
	NumberFloat64 NumberPolicy = "float64"
)

// Valid reports whether p is a known policy. The empty policy is NumberAuto.
func (p NumberPolicy) Valid() bool {
	switch p {
	case "", NumberAuto, NumberInt64, NumberFloat64:
		return true
	}
	return false
}

// Class is the walker's classification of a document node.
type Class uint8

const (
	ClassUnsupported Class = iota
	ClassScalar
	ClassObject
	ClassArray
)

func (c Class) String() string {
	switch c {
	case ClassScalar:
		return "scalar"
	case ClassObject:
		return "object"
	case ClassArray:
		return "array"
	default:
		return "unsupported"
	}
}

// Classify reports how the walker treats n.
func Classify(n document.Node) Class {
	switch v := n.(type) {
	case document.Null, document.Bool, document.Number, document.String:
		return ClassScalar
	case *document.Object:
		if v == nil {
			return ClassUnsupported
		}
		return ClassObject
	case document.Array:
		return ClassArray
	default:
		return ClassUnsupported
	}
}

// Options configures a Walker.
type Options struct {
	// Registry receives synthesized types. Nil selects synth.Default().
	Registry *synth.Registry
	// Logger overrides the package logger.
	Logger *zap.Logger
	// Numbers selects the number mapping. Empty means NumberAuto.
	Numbers NumberPolicy
	// MaxDepth limits object and array nesting. Zero means DefaultMaxDepth.
	MaxDepth int
	// Arrays enables list synthesis. When false, arrays fail with
	// unsupported_node_kind.
	Arrays bool
}

// Walker emits synthesized types and values for document trees. A Walker
// holds no per-walk state and may be used from several goroutines.
type Walker struct {
	reg      *synth.Registry
	arena    *arena.Arena
	log      *zap.Logger
	numbers  NumberPolicy
	maxDepth int
	arrays   bool
}

// New creates a Walker.
func New(opts Options) *Walker {
	w := &Walker{
		reg:      opts.Registry,
		log:      opts.Logger,
		numbers:  opts.Numbers,
		maxDepth: opts.MaxDepth,
		arrays:   opts.Arrays,
	}
	if w.reg == nil {
		w.reg = synth.Default()
	}
	if w.log == nil {
		w.log = Logger()
	}
	if w.numbers == "" {
		w.numbers = NumberAuto
	}
	if w.maxDepth <= 0 {
		w.maxDepth = DefaultMaxDepth
	}
	w.arena = w.reg.Arena()
	return w
}

// Registry returns the registry the walker synthesizes into.
func (w *Walker) Registry() *synth.Registry {
	return w.reg
}

// Walk synthesizes the constant described by root, which must be an object.
//
// The walk runs in two passes. The first checks the whole tree and
// computes every scalar without touching the registry; the second
// synthesizes types and values bottom-up. A document that fails leaves no
// types or values behind.
func (w *Walker) Walk(root document.Node) (*synth.ValueHandle, error) {
	if Classify(root) != ClassObject {
		return nil, errors.InvalidRoot(kindName(root))
	}

	p, err := w.planObject(root.(*document.Object), nil, 1)
	if err != nil {
		w.log.Debug("walk rejected", zap.Error(err))
		return nil, err
	}

	e, err := w.emit(p, nil)
	if err != nil {
		return nil, err
	}

	v := e.init.(*synth.ValueHandle)
	w.log.Debug("walk complete",
		zap.Uint32("root_type", v.Type().ID()),
		zap.String("shape", v.Type().String()),
	)
	return v, nil
}

// plan is the checked form of a node. Scalars carry their primitive type
// and converted Go value; aggregates carry their children.
type plan struct {
	typ      *synth.TypeHandle
	init     any
	shape    string
	keys     []string
	children []*plan
	class    Class
}

// planNode dispatches on the node class. depth is the depth of the node's
// parent.
func (w *Walker) planNode(n document.Node, path []string, depth int) (*plan, error) {
	switch Classify(n) {
	case ClassScalar:
		return w.planScalar(n, path)
	case ClassObject:
		return w.planObject(n.(*document.Object), path, depth+1)
	case ClassArray:
		if !w.arrays {
			return nil, errors.UnsupportedNodeKind(path, document.KindArray.String())
		}
		return w.planArray(n.(document.Array), path, depth+1)
	default:
		return nil, errors.UnsupportedNodeKind(path, kindName(n))
	}
}

func (w *Walker) planScalar(n document.Node, path []string) (*plan, error) {
	var typ *synth.TypeHandle
	var init any

	switch v := n.(type) {
	case document.Null:
		typ, init = synth.NullType, synth.Null{}
	case document.Bool:
		typ, init = synth.BoolType, bool(v)
	case document.String:
		typ, init = synth.StringType, string(v)
	case document.Number:
		var err error
		if typ, init, err = w.number(v, path); err != nil {
			return nil, err
		}
	default:
		return nil, errors.UnsupportedNodeKind(path, kindName(n))
	}
	return &plan{class: ClassScalar, typ: typ, init: init, shape: typ.String()}, nil
}

func (w *Walker) number(n document.Number, path []string) (*synth.TypeHandle, any, error) {
	integral := n.IsInteger()

	switch {
	case w.numbers == NumberInt64 && !integral:
		return nil, nil, errors.New(errors.PhaseWalk, errors.KindTypeMismatch).
			Path(path...).
			GoType("int64").
			DocType("number").
			Value(string(n)).
			Detail("%s is not an integer", string(n)).
			Build()

	case w.numbers != NumberFloat64 && integral:
		i, err := n.Int64()
		if err != nil {
			return nil, nil, errors.Overflow(errors.PhaseWalk, path, string(n), "int64")
		}
		return synth.IntType, i, nil
	}

	f, err := n.Float64()
	if err != nil {
		return nil, nil, errors.Overflow(errors.PhaseWalk, path, string(n), "float64")
	}
	return synth.FloatType, f, nil
}

func (w *Walker) planObject(obj *document.Object, path []string, depth int) (*plan, error) {
	if depth > w.maxDepth {
		return nil, errors.NestingTooDeep(path, w.maxDepth)
	}
	if key, dup := obj.FirstDuplicate(); dup {
		return nil, errors.DuplicateKey(childPath(path, key), key)
	}

	p := &plan{
		class:    ClassObject,
		keys:     make([]string, len(obj.Fields)),
		children: make([]*plan, len(obj.Fields)),
	}
	fields := make(map[string]string, len(obj.Fields))

	var shape strings.Builder
	shape.WriteByte('{')
	for i, f := range obj.Fields {
		cp := childPath(path, f.Key)
		if !synth.ValidKey(f.Key) {
			return nil, errors.InvalidKey(errors.PhaseWalk, cp, f.Key)
		}
		name := synth.FieldName(f.Key)
		if other, dup := fields[name]; dup {
			return nil, errors.DuplicateMember(cp, f.Key, other)
		}
		fields[name] = f.Key

		c, err := w.planNode(f.Value, cp, depth)
		if err != nil {
			return nil, err
		}
		p.keys[i] = f.Key
		p.children[i] = c

		if i > 0 {
			shape.WriteByte(',')
		}
		shape.WriteString(strconv.Quote(f.Key))
		shape.WriteByte(':')
		shape.WriteString(c.shape)
	}
	shape.WriteByte('}')
	p.shape = shape.String()
	return p, nil
}

// planArray checks that every element has the same shape. Empty arrays
// become lists of synth.Null.
func (w *Walker) planArray(arr document.Array, path []string, depth int) (*plan, error) {
	if depth > w.maxDepth {
		return nil, errors.NestingTooDeep(path, w.maxDepth)
	}

	p := &plan{class: ClassArray, children: make([]*plan, len(arr))}
	elemShape := synth.NullType.String()
	for i, n := range arr {
		cp := childPath(path, "["+strconv.Itoa(i)+"]")
		c, err := w.planNode(n, cp, depth)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			elemShape = c.shape
		} else if c.shape != elemShape {
			return nil, errors.New(errors.PhaseWalk, errors.KindTypeMismatch).
				Path(cp...).
				GoType(p.children[0].describe()).
				DocType(c.describe()).
				Detail("array elements must share one type").
				Build()
		}
		p.children[i] = c
	}
	p.shape = "[" + elemShape + "]"
	return p, nil
}

// describe names the plan's type for diagnostics.
func (p *plan) describe() string {
	switch p.class {
	case ClassScalar:
		return p.typ.String()
	case ClassObject:
		return "object"
	default:
		return "array"
	}
}

// emitted is a member type paired with its initializer.
type emitted struct {
	typ  *synth.TypeHandle
	init any
}

func (w *Walker) emit(p *plan, path []string) (emitted, error) {
	switch p.class {
	case ClassObject:
		return w.emitObject(p, path)
	case ClassArray:
		return w.emitArray(p, path)
	default:
		return w.emitScalar(p), nil
	}
}

// emitScalar interns string content; other scalars pass through.
func (w *Walker) emitScalar(p *plan) emitted {
	if s, ok := p.init.(string); ok {
		return emitted{typ: p.typ, init: w.arena.InternString(s)}
	}
	return emitted{typ: p.typ, init: p.init}
}

func (w *Walker) emitObject(p *plan, path []string) (emitted, error) {
	members := make([]synth.Member, len(p.children))
	inits := make([]any, len(p.children))
	for i, c := range p.children {
		e, err := w.emit(c, childPath(path, p.keys[i]))
		if err != nil {
			return emitted{}, err
		}
		members[i] = synth.Member{Name: p.keys[i], Type: e.typ}
		inits[i] = e.init
	}

	typ, err := w.reg.SynthesizeType(members)
	if err != nil {
		return emitted{}, errors.WithPathPrefix(err, path)
	}
	val, err := w.reg.SynthesizeValue(typ, inits)
	if err != nil {
		return emitted{}, errors.WithPathPrefix(err, path)
	}
	return emitted{typ: typ, init: val}, nil
}

func (w *Walker) emitArray(p *plan, path []string) (emitted, error) {
	elem := synth.NullType
	inits := make([]any, len(p.children))
	for i, c := range p.children {
		e, err := w.emit(c, childPath(path, "["+strconv.Itoa(i)+"]"))
		if err != nil {
			return emitted{}, err
		}
		elem = e.typ
		inits[i] = e.init
	}

	typ, err := w.reg.SynthesizeList(elem)
	if err != nil {
		return emitted{}, errors.WithPathPrefix(err, path)
	}
	val, err := w.reg.SynthesizeListValue(typ, inits)
	if err != nil {
		return emitted{}, errors.WithPathPrefix(err, path)
	}
	return emitted{typ: typ, init: val}, nil
}

func childPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func kindName(n document.Node) string {
	if n == nil {
		return "nil"
	}
	if o, ok := n.(*document.Object); ok && o == nil {
		return "nil object"
	}
	return n.Kind().String()
}
