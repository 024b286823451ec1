package vm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/intercept"
	"github.com/wippyai/weave/il"
)

// Instance is a loaded module. It is safe for concurrent use; calls on
// different goroutines run as separate threads of execution.
type Instance struct {
	rt     *Runtime
	module *il.Module
	res    *il.Resolver
	log    *zap.Logger

	mu      sync.Mutex
	classes map[string]*Class

	infos sync.Map // *Method -> *Object
	stubs sync.Map // *Class -> *intercept.Stub
}

func newInstance(rt *Runtime, m *il.Module) *Instance {
	return &Instance{
		rt:      rt,
		module:  m,
		res:     il.NewResolver(m, hostlib.Module()),
		log:     rt.log,
		classes: make(map[string]*Class),
	}
}

// Module returns the loaded module.
func (in *Instance) Module() *il.Module { return in.module }

// Type returns the class of a main-module type, closed over args for
// generic definitions. Nested types use '/': "Ns.Outer`2/Inner".
func (in *Instance) Type(name string, args ...*il.TypeRef) (*Class, error) {
	t := il.Named(in.module.Scope, name)
	if len(args) > 0 {
		t = il.Instance(t, args...)
	}
	return in.class(t)
}

// class returns the closed class a type reference names, creating it on
// first use. Creation does not run the type initializer.
func (in *Instance) class(t *il.TypeRef) (*Class, error) {
	switch t.Kind {
	case il.KindObject:
		t = il.Named(hostlib.Scope, hostlib.Object)
	case il.KindString:
		t = il.Named(hostlib.Scope, hostlib.String)
	case il.KindNamed, il.KindGenericInst:
	default:
		return nil, errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Type(t.String()).
			Detail("%s has no class", t.Kind).
			Build()
	}
	if t.ContainsGenericParams() {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Type(t.String()).
			Detail("open generic type").
			Build()
	}

	key := in.typeKey(t)
	in.mu.Lock()
	c := in.classes[key]
	in.mu.Unlock()
	if c != nil {
		return c, nil
	}

	c, err := in.newClass(t, key)
	if err != nil {
		return nil, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if existing := in.classes[key]; existing != nil {
		return existing, nil
	}
	in.classes[key] = c
	return c, nil
}

func (in *Instance) newClass(t *il.TypeRef, key string) (*Class, error) {
	def, err := in.res.ResolveType(t)
	if err != nil {
		return nil, err
	}
	var args []*il.TypeRef
	if t.Kind == il.KindGenericInst {
		args = t.Args
	}
	if len(args) != len(def.GenericParams) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Type(def.FullName()).
			Detail("%d type arguments for %d generic parameters", len(args), len(def.GenericParams)).
			Build()
	}

	c := &Class{
		inst:    in,
		Def:     def,
		Args:    args,
		Name:    displayName(t),
		Ref:     t,
		key:     key,
		slots:   make(map[*il.FieldDef]int),
		statics: make(map[*il.FieldDef]any),
	}
	if def.BaseType != nil {
		base, err := in.class(def.BaseType.Subst(args, nil))
		if err != nil {
			return nil, err
		}
		c.Base = base
		for fd, slot := range base.slots {
			c.slots[fd] = slot
		}
		c.nslots = base.nslots
	}
	for _, it := range def.Interfaces {
		ic, err := in.class(it.Subst(args, nil))
		if err != nil {
			return nil, err
		}
		c.ifaces = append(c.ifaces, ic)
		c.ifaces = append(c.ifaces, ic.ifaces...)
	}
	for _, fd := range def.Fields {
		if fd.IsStatic() {
			c.statics[fd] = zero(fd.Type.Subst(args, nil))
			continue
		}
		c.slots[fd] = c.nslots
		c.nslots++
	}
	return c, nil
}

// New creates an instance of cls with the constructor matching args.
func (in *Instance) New(ctx context.Context, cls *Class, args ...any) (*Object, error) {
	ctor, coerced, err := in.selectMethod(cls.Lookup(il.CtorName, len(args)), cls, il.CtorName, args, false)
	if err != nil {
		return nil, err
	}
	if ctor.Class != cls {
		return nil, errors.NotFound(errors.PhaseRuntime, "constructor", cls.Name)
	}
	return in.newThread(ctx).construct(ctor, coerced)
}

// Call invokes the instance method name on target with virtual dispatch.
// Overloads are chosen by argument count and the dynamic argument types;
// Go int and float64 arguments convert to int32 and float32 parameters.
func (in *Instance) Call(ctx context.Context, target *Object, name string, args ...any) (any, error) {
	if target == nil {
		return nil, in.throw(hostlib.NullReferenceException)
	}
	m, coerced, err := in.selectMethod(target.Class.Lookup(name, len(args)), target.Class, name, args, false)
	if err != nil {
		return nil, err
	}
	th := in.newThread(ctx)
	impl, err := th.virtual(target, m)
	if err != nil {
		return nil, err
	}
	return th.invoke(impl, append([]any{target}, coerced...))
}

// CallStatic invokes the static method name of cls, running the type
// initializer first.
func (in *Instance) CallStatic(ctx context.Context, cls *Class, name string, args ...any) (any, error) {
	m, coerced, err := in.selectMethod(cls.Lookup(name, len(args)), cls, name, args, true)
	if err != nil {
		return nil, err
	}
	return in.Invoke(ctx, m, nil, coerced...)
}

// Invoke calls m directly. target is ignored for static methods; arguments
// must already have the parameter types.
func (in *Instance) Invoke(ctx context.Context, m *Method, target any, args ...any) (any, error) {
	th := in.newThread(ctx)
	if m.Def.IsStatic() {
		if err := m.Class.ensureInit(th); err != nil {
			return nil, err
		}
		return th.invoke(m, args)
	}
	if target == nil {
		return nil, in.throw(hostlib.NullReferenceException)
	}
	impl, err := th.virtual(target, m)
	if err != nil {
		return nil, err
	}
	return th.invoke(impl, append([]any{target}, args...))
}

func (in *Instance) selectMethod(cands []*Method, cls *Class, name string, args []any, static bool) (*Method, []any, error) {
	for _, m := range cands {
		if m.Def.IsStatic() != static || len(m.Def.GenericParams) > 0 {
			continue
		}
		coerced, ok := in.coerceArgs(m.Params(), args)
		if ok {
			return m, coerced, nil
		}
	}
	types := make([]string, len(args))
	for i, a := range args {
		types[i] = fmt.Sprintf("%T", a)
	}
	return nil, nil, errors.New(errors.PhaseRuntime, errors.KindNotFound).
		Type(cls.Name).
		Member(name).
		Detail("no method accepting (%s)", strings.Join(types, ", ")).
		Build()
}

func (in *Instance) coerceArgs(params []*il.TypeRef, args []any) ([]any, bool) {
	out := make([]any, len(args))
	for i, a := range args {
		v, ok := in.coerce(a, params[i])
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// coerce converts a Go argument to the closed parameter type t.
func (in *Instance) coerce(v any, t *il.TypeRef) (any, bool) {
	if t.Kind == il.KindNullable {
		if v == nil {
			return nil, true
		}
		return in.coerce(v, t.Elem)
	}
	switch x := v.(type) {
	case nil:
		return nil, !isValue(t)
	case int:
		switch t.Kind {
		case il.KindInt32:
			return int32(x), true
		case il.KindInt64:
			return int64(x), true
		case il.KindFloat32:
			return float32(x), true
		case il.KindFloat64:
			return float64(x), true
		}
	case float64:
		if t.Kind == il.KindFloat32 {
			return float32(x), true
		}
	}
	ok, err := in.isInstance(v, t)
	return v, ok && err == nil
}

// StubState returns the dispatch state of the index-th intercepted overload
// of method, as the woven holder of cls stores it. The type initializer of
// the holder runs on first use. Calls through the returned state run on
// their own threads of execution and cannot be cancelled.
func (in *Instance) StubState(ctx context.Context, cls *Class, method string, index int) (*intercept.StubState, error) {
	name := cls.Def.FullName() + "/" + stemName(method, index) + hostlib.StubSuffix
	t := il.Named(cls.Def.Scope(), name)
	if len(cls.Args) > 0 {
		t = il.Instance(t, cls.Args...)
	}
	holder, err := in.class(t)
	if err != nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "woven method", cls.Name+"::"+method)
	}

	s, _ := in.stubs.LoadOrStore(holder, intercept.NewStub(func() (*intercept.StubState, error) {
		return in.buildStubState(ctx, holder)
	}))
	return s.(*intercept.Stub).State()
}

func stemName(method string, index int) string {
	if index == 0 {
		return method
	}
	return fmt.Sprintf("%s%d", method, index)
}

func (in *Instance) buildStubState(ctx context.Context, holder *Class) (*intercept.StubState, error) {
	if err := holder.ensureInit(in.newThread(ctx)); err != nil {
		return nil, err
	}
	mv, _ := holder.Static(hostlib.HolderMethodField)
	iv, _ := holder.Static(hostlib.HolderInterceptorsField)
	fv, _ := holder.Static(hostlib.HolderInvokerField)

	info, ok := mv.(*Object)
	if !ok {
		return nil, errors.InvalidData(errors.PhaseRuntime, []string{holder.Name}, "holder has no method")
	}
	method, ok := info.Native.(*Method)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseRuntime, hostlib.MethodInfo, valueType(mv))
	}

	var ds []intercept.Descriptor
	if arr, ok := iv.(*Array); ok {
		for _, item := range arr.Items {
			if obj, ok := item.(*Object); ok {
				ds = append(ds, in.descriptor(obj, method))
			}
		}
	}

	var invoke intercept.Invoker
	if invoker, ok := fv.(*Object); ok {
		invoke = func(target any, args []any) (any, error) {
			return in.newThread(context.Background()).callInvoker(invoker, target, &Array{Elem: il.Object(), Items: args})
		}
	}
	return intercept.NewStubState(method.Descriptor(), ds, invoke), nil
}
