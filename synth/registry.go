package synth

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/structsynth/arena"
	"github.com/wippyai/structsynth/errors"
)

// Registry is the append-only table of synthesized types.
type Registry struct {
	arena     *arena.Arena
	byKey     map[string]*TypeHandle
	types     []*TypeHandle
	nextValue uint64
	mu        sync.RWMutex
}

// NewRegistry creates a registry whose values are interned in a.
// A nil arena selects arena.Default().
func NewRegistry(a *arena.Arena) *Registry {
	if a == nil {
		a = arena.Default()
	}
	return &Registry{
		arena: a,
		byKey: make(map[string]*TypeHandle),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry backed by arena.Default().
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(arena.Default())
	})
	return defaultRegistry
}

// Arena returns the arena values are interned in.
func (r *Registry) Arena() *arena.Arena {
	return r.arena
}

// Len returns the number of synthesized (non-primitive) types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Types returns the synthesized types in creation order.
func (r *Registry) Types() []*TypeHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*TypeHandle(nil), r.types...)
}

// owns reports whether t is a primitive or was synthesized by r.
func (r *Registry) owns(t *TypeHandle) bool {
	if t == nil {
		return false
	}
	if isPrimitive(t) {
		return true
	}
	idx := int(t.id) - firstSynthID
	r.mu.RLock()
	defer r.mu.RUnlock()
	return idx >= 0 && idx < len(r.types) && r.types[idx] == t
}

// SynthesizeType returns the canonical struct type with exactly members, in
// order. Identical member lists yield the same handle.
func (r *Registry) SynthesizeType(members []Member) (*TypeHandle, error) {
	key, err := r.structKey(members)
	if err != nil {
		return nil, err
	}

	if t := r.lookup(key); t != nil {
		return t, nil
	}

	hasList := false
	fields := make([]reflect.StructField, len(members))
	for i, m := range members {
		hasList = hasList || m.Type.hasList
		fields[i] = reflect.StructField{
			Name: FieldName(m.Name),
			Type: m.Type.goType,
			Tag:  fieldTag(m.Name),
		}
	}

	return r.insert(key, &TypeHandle{
		kind:    KindStruct,
		goType:  reflect.StructOf(fields),
		members: append([]Member(nil), members...),
		shape:   structShape(members),
		hasList: hasList,
	}), nil
}

// SynthesizeList returns the canonical list type with element type elem.
func (r *Registry) SynthesizeList(elem *TypeHandle) (*TypeHandle, error) {
	if !r.owns(elem) {
		return nil, errors.InvalidInput(errors.PhaseType, "element type not from this registry")
	}
	key := "[" + strconv.FormatUint(uint64(elem.id), 10) + "]"

	if t := r.lookup(key); t != nil {
		return t, nil
	}

	return r.insert(key, &TypeHandle{
		kind:    KindList,
		goType:  reflect.SliceOf(elem.goType),
		elem:    elem,
		shape:   "[]" + elem.shape,
		hasList: true,
	}), nil
}

// structKey validates members and builds the canonical dedup key from
// member names and member type ids.
func (r *Registry) structKey(members []Member) (string, error) {
	byName := make(map[string]struct{}, len(members))
	byField := make(map[string]string, len(members))

	var b strings.Builder
	b.WriteByte('{')
	for i, m := range members {
		if m.Type == nil {
			return "", errors.New(errors.PhaseType, errors.KindInvalidInput).
				Path(m.Name).
				Detail("member type is nil").
				Build()
		}
		if !r.owns(m.Type) {
			return "", errors.New(errors.PhaseType, errors.KindInvalidInput).
				Path(m.Name).
				Detail("member type %s not from this registry", m.Type).
				Build()
		}
		if !ValidKey(m.Name) {
			return "", errors.InvalidKey(errors.PhaseType, []string{m.Name}, m.Name)
		}
		if _, dup := byName[m.Name]; dup {
			return "", errors.DuplicateMember([]string{m.Name}, m.Name, "")
		}
		byName[m.Name] = struct{}{}

		field := FieldName(m.Name)
		if other, dup := byField[field]; dup {
			return "", errors.DuplicateMember([]string{m.Name}, m.Name, other)
		}
		byField[field] = m.Name

		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(m.Name))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(m.Type.id), 10))
	}
	b.WriteByte('}')
	return b.String(), nil
}

func (r *Registry) lookup(key string) *TypeHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[key]
}

// insert publishes t under key unless another goroutine won the race, in
// which case the existing handle is returned.
func (r *Registry) insert(key string, t *TypeHandle) *TypeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		return existing
	}
	t.id = uint32(firstSynthID + len(r.types))
	r.types = append(r.types, t)
	r.byKey[key] = t

	Logger().Debug("synthesized type",
		zap.Uint32("id", t.id),
		zap.String("shape", t.shape),
	)
	return t
}
