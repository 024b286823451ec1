package il

import (
	"sync"

	"github.com/wippyai/weave/errors"
)

// CoreScope is the scope of the runtime library that defines System.Object,
// System.String and the interception runtime types.
const CoreScope = "weave.runtime"

// Core type names.
const (
	ObjectTypeName = "System.Object"
	StringTypeName = "System.String"
)

// Resolver resolves references against a main module and its libraries.
// It caches method and field lookups and is safe for concurrent use.
type Resolver struct {
	main    *Module
	libs    map[string]*Module
	mu      sync.RWMutex
	methods map[*MethodRef]*MethodDef
	fields  map[*FieldRef]*FieldDef
}

// NewResolver creates a resolver. Libraries are keyed by their Scope; the
// main module answers references with an empty scope or its own scope.
func NewResolver(main *Module, libs ...*Module) *Resolver {
	r := &Resolver{
		main:    main,
		libs:    make(map[string]*Module, len(libs)),
		methods: make(map[*MethodRef]*MethodDef),
		fields:  make(map[*FieldRef]*FieldDef),
	}
	for _, lib := range libs {
		r.libs[lib.Scope] = lib
	}
	return r
}

// Main returns the main module.
func (r *Resolver) Main() *Module { return r.main }

// Module returns the module for scope, or nil.
func (r *Resolver) Module(scope string) *Module {
	if scope == "" || (r.main != nil && scope == r.main.Scope) {
		return r.main
	}
	return r.libs[scope]
}

// ResolveType returns the definition a reference names. Object and string
// resolve to the core library; other primitives have no definition.
func (r *Resolver) ResolveType(ref *TypeRef) (*TypeDef, error) {
	scope, name := ref.Scope, ref.Name
	switch ref.Kind {
	case KindNamed, KindGenericInst:
	case KindObject:
		scope, name = CoreScope, ObjectTypeName
	case KindString:
		scope, name = CoreScope, StringTypeName
	default:
		return nil, errors.New(errors.PhaseResolve, errors.KindResolution).
			Type(ref.String()).
			Detail("%s has no type definition", ref.Kind).
			Build()
	}
	m := r.Module(scope)
	if m == nil {
		return nil, errors.Resolution("module", scope)
	}
	t := m.FindType(name)
	if t == nil {
		return nil, errors.Resolution("type", ref.String())
	}
	return t, nil
}

// ResolveMethod returns the definition matching the reference's signature.
func (r *Resolver) ResolveMethod(ref *MethodRef) (*MethodDef, error) {
	r.mu.RLock()
	m, ok := r.methods[ref]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	t, err := r.ResolveType(ref.DeclaringType)
	if err != nil {
		return nil, err
	}
	want := ref
	if want.Return == nil {
		c := *ref
		c.Return = Void()
		want = &c
	}
	for _, cand := range t.Methods {
		if cand.Matches(want) {
			r.mu.Lock()
			r.methods[ref] = cand
			r.mu.Unlock()
			return cand, nil
		}
	}
	return nil, errors.New(errors.PhaseResolve, errors.KindResolution).
		Type(t.FullName()).
		Member(ref.Name).
		Detail("no method matching %s", ref).
		Build()
}

// ResolveField returns the field definition a reference names.
func (r *Resolver) ResolveField(ref *FieldRef) (*FieldDef, error) {
	r.mu.RLock()
	f, ok := r.fields[ref]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}

	t, err := r.ResolveType(ref.DeclaringType)
	if err != nil {
		return nil, err
	}
	f = t.Field(ref.Name)
	if f == nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindResolution).
			Type(t.FullName()).
			Member(ref.Name).
			Detail("no such field").
			Build()
	}
	r.mu.Lock()
	r.fields[ref] = f
	r.mu.Unlock()
	return f, nil
}

// BaseType resolves the base type of t, or returns nil at the root.
func (r *Resolver) BaseType(t *TypeDef) (*TypeDef, error) {
	if t.BaseType == nil {
		return nil, nil
	}
	return r.ResolveType(t.BaseType)
}

// DerivesFrom reports whether t is, or inherits from, the type named by
// scope and fullName. Every base in the chain must resolve.
func (r *Resolver) DerivesFrom(t *TypeDef, scope, fullName string) (bool, error) {
	for depth := 0; t != nil; depth++ {
		if depth > maxRefDepth {
			return false, errors.New(errors.PhaseResolve, errors.KindInvalidData).
				Type(t.FullName()).
				Detail("base type chain too deep").
				Build()
		}
		if t.FullName() == fullName && t.Scope() == scope {
			return true, nil
		}
		base, err := r.BaseType(t)
		if err != nil {
			return false, err
		}
		t = base
	}
	return false, nil
}
