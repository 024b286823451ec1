package vm

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/intercept"
	"github.com/wippyai/weave/il"
)

// invocationState is the host side of a managed Invocation object.
type invocationState struct {
	inv    *intercept.Invocation
	args   *Array
	method *Object
}

// invokerState is the host side of a managed MethodInvoker object.
type invokerState struct {
	target any
	fn     *FuncPtr
}

func registerInterception(r *nativeRegistry) {
	r.register(hostlib.InterceptorAttribute, hostlib.GetInterceptorsFor, 1, getInterceptorsFor)

	r.register(hostlib.Invocation, il.CtorName, 5, newInvocation)
	r.register(hostlib.Invocation, hostlib.Proceed, 0, func(th *thread, _ *Method, args []any) (any, error) {
		st, err := th.invocation(args[0])
		if err != nil {
			return nil, err
		}
		return nil, th.in.raise(st.inv.Proceed())
	})
	r.register(hostlib.Invocation, hostlib.Cancel, 0, func(th *thread, _ *Method, args []any) (any, error) {
		st, err := th.invocation(args[0])
		if err != nil {
			return nil, err
		}
		st.inv.Cancel()
		return nil, nil
	})
	r.register(hostlib.Invocation, hostlib.GetResult, 0, func(th *thread, _ *Method, args []any) (any, error) {
		st, err := th.invocation(args[0])
		if err != nil {
			return nil, err
		}
		return st.inv.Result(), nil
	})
	r.register(hostlib.Invocation, hostlib.SetResult, 1, func(th *thread, _ *Method, args []any) (any, error) {
		st, err := th.invocation(args[0])
		if err != nil {
			return nil, err
		}
		st.inv.SetResult(args[1])
		return nil, nil
	})
	r.register(hostlib.Invocation, hostlib.GetArguments, 0, func(th *thread, _ *Method, args []any) (any, error) {
		st, err := th.invocation(args[0])
		if err != nil {
			return nil, err
		}
		return st.args, nil
	})
	r.register(hostlib.Invocation, hostlib.GetTarget, 0, func(th *thread, _ *Method, args []any) (any, error) {
		st, err := th.invocation(args[0])
		if err != nil {
			return nil, err
		}
		return st.inv.Target(), nil
	})
	r.register(hostlib.Invocation, hostlib.GetMethod, 0, func(th *thread, _ *Method, args []any) (any, error) {
		st, err := th.invocation(args[0])
		if err != nil {
			return nil, err
		}
		return st.method, nil
	})

	r.register(hostlib.MethodInvoker, il.CtorName, 2, func(th *thread, _ *Method, args []any) (any, error) {
		obj, _ := args[0].(*Object)
		fn, ok := args[2].(*FuncPtr)
		if obj == nil || !ok || fn == nil {
			return nil, th.in.newException(hostlib.ArgumentException, "The method pointer is invalid.", nil)
		}
		obj.Native = &invokerState{target: args[1], fn: fn}
		return nil, nil
	})
	r.register(hostlib.MethodInvoker, hostlib.Invoke, 2, func(th *thread, _ *Method, args []any) (any, error) {
		obj, _ := args[0].(*Object)
		arr, _ := args[2].(*Array)
		return th.callInvoker(obj, args[1], arr)
	})

	r.register(hostlib.StubHelper, hostlib.Unbox, 1, func(th *thread, m *Method, args []any) (any, error) {
		if len(m.Args) != 1 {
			return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
				Type(m.Class.Name).
				Member(m.Def.Name).
				Detail("called without a type argument").
				Build()
		}
		return th.unbox(args[0], m.Args[0], true)
	})

	for _, name := range []string{
		hostlib.LogAttribute,
		hostlib.EatExceptionAttribute,
		hostlib.IncrementArgAttribute,
		hostlib.AbortAttribute,
	} {
		r.register(name, hostlib.OnInvocation, 1, onHostInvocation)
	}
}

// getInterceptorsFor instantiates the interceptor attributes of a method
// and returns them ordered.
func getInterceptorsFor(th *thread, _ *Method, args []any) (any, error) {
	m, err := th.reflected(args[0])
	if err != nil {
		return nil, err
	}
	var ds []intercept.Descriptor
	for _, a := range m.Def.CustomAttributes {
		obj, err := th.attribute(a)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			ds = append(ds, th.in.descriptor(obj, m))
		}
	}
	intercept.Sort(ds)

	out := &Array{Elem: hostlib.Ref(hostlib.IInterceptor), Items: make([]any, len(ds))}
	for i, d := range ds {
		out.Items[i] = d.Behavior.(*attributeInterceptor).obj
	}
	th.in.log.Debug("interceptors bound",
		zap.Stringer("method", m),
		zap.Int("count", len(ds)))
	return out, nil
}

// attribute instantiates a, returning nil when it is not an interceptor.
func (th *thread) attribute(a *il.CustomAttribute) (*Object, error) {
	cls, err := th.in.class(a.AttributeType())
	if err != nil {
		return nil, err
	}
	if !cls.derivesFrom(hostlib.InterceptorAttribute) {
		return nil, nil
	}
	def, err := th.in.res.ResolveMethod(a.Constructor)
	if err != nil {
		return nil, err
	}
	owner := cls.owner(def.DeclaringType)
	if owner == nil {
		return nil, errors.Resolution("attribute constructor", a.Constructor.String())
	}
	obj, err := th.construct(owner.method(def), a.Args)
	if err != nil {
		return nil, err
	}
	for _, n := range a.Named {
		switch n.Kind {
		case il.NamedField:
			if !obj.SetField(n.Name, n.Value) {
				return nil, errors.NotFound(errors.PhaseRuntime, "field", cls.Name+"::"+n.Name)
			}
		case il.NamedProperty:
			setters := cls.Lookup("set_"+n.Name, 1)
			if len(setters) == 0 {
				return nil, errors.NotFound(errors.PhaseRuntime, "property", cls.Name+"::"+n.Name)
			}
			impl, err := cls.dispatch(setters[0])
			if err != nil {
				return nil, err
			}
			if _, err := th.invoke(impl, []any{obj, n.Value}); err != nil {
				return nil, err
			}
		}
	}
	return obj, nil
}

// descriptor describes the interceptor attribute obj bound to method.
func (in *Instance) descriptor(obj *Object, method *Method) intercept.Descriptor {
	order, _ := obj.Field(hostlib.OrderField)
	n, _ := order.(int32)
	return intercept.Descriptor{
		Behavior: &attributeInterceptor{in: in, obj: obj, method: method},
		Name:     obj.Class.Name,
		Order:    int(n),
	}
}

// hostBehavior returns the package intercept implementation of a host
// interceptor attribute, or nil for managed interceptors.
func (in *Instance) hostBehavior(obj *Object) intercept.Interceptor {
	int32Field := func(name string) int32 {
		v, _ := obj.Field(name)
		n, _ := v.(int32)
		return n
	}
	switch {
	case obj.Class.is(hostlib.LogAttribute):
		return intercept.Log{Logger: in.rt.intLog, Level: zap.InfoLevel}
	case obj.Class.is(hostlib.EatExceptionAttribute):
		return intercept.EatError{Value: int32Field(hostlib.ValueField)}
	case obj.Class.is(hostlib.IncrementArgAttribute):
		return intercept.IncrementArg{Index: int(int32Field(hostlib.IndexField))}
	case obj.Class.is(hostlib.AbortAttribute):
		return intercept.Abort{Value: int32Field(hostlib.ValueField)}
	}
	return nil
}

func onHostInvocation(th *thread, _ *Method, args []any) (any, error) {
	obj, _ := args[0].(*Object)
	st, err := th.invocation(args[1])
	if err != nil {
		return nil, err
	}
	b := th.in.hostBehavior(obj)
	if b == nil {
		return nil, th.in.throw(hostlib.InvalidOperationException)
	}
	return nil, th.in.raise(b.Intercept(st.inv))
}

// newInvocation is the Invocation constructor used by woven method bodies.
func newInvocation(th *thread, _ *Method, args []any) (any, error) {
	self, _ := args[0].(*Object)
	list, _ := args[1].(*Array)
	info, _ := args[2].(*Object)
	invoker, _ := args[3].(*Object)
	arr, _ := args[5].(*Array)
	if self == nil || info == nil {
		return nil, th.in.throw(hostlib.NullReferenceException)
	}
	m, err := th.reflected(info)
	if err != nil {
		return nil, err
	}
	if arr == nil {
		arr = &Array{Elem: il.Object()}
	}

	var chain []intercept.Interceptor
	if list != nil {
		chain = make([]intercept.Interceptor, 0, len(list.Items))
		for _, item := range list.Items {
			obj, ok := item.(*Object)
			if !ok {
				return nil, th.in.throw(hostlib.NullReferenceException)
			}
			chain = append(chain, &managedInterceptor{th: th, obj: obj, invocation: self})
		}
	}

	var invoke intercept.Invoker
	if invoker != nil {
		invoke = func(target any, args []any) (any, error) {
			return th.callInvoker(invoker, target, &Array{Elem: il.Object(), Items: args})
		}
	}
	st := &invocationState{args: arr, method: info}
	st.inv = intercept.NewInvocation(chain, m.Descriptor(), invoke, args[4], arr.Items)
	self.Native = st
	return nil, nil
}

func (th *thread) invocation(v any) (*invocationState, error) {
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, th.in.throw(hostlib.NullReferenceException)
	}
	st, ok := obj.Native.(*invocationState)
	if !ok {
		return nil, th.in.throw(hostlib.InvalidOperationException)
	}
	return st, nil
}

// callInvoker calls the trampoline bound into a MethodInvoker object.
func (th *thread) callInvoker(invoker *Object, target any, args *Array) (any, error) {
	if invoker == nil {
		return nil, th.in.throw(hostlib.NullReferenceException)
	}
	st, ok := invoker.Native.(*invokerState)
	if !ok {
		return nil, th.in.throw(hostlib.InvalidOperationException)
	}
	fn := st.fn.Method
	if !fn.Def.IsStatic() {
		return nil, errors.Unsupported(errors.PhaseRuntime, fn.Class.Name, fn.Def.Name, "instance method pointer in an invoker")
	}
	if err := fn.Class.ensureInit(th); err != nil {
		return nil, err
	}
	return th.invoke(fn, []any{target, args})
}

// callIntercept dispatches IInterceptor.Intercept on the managed
// interceptor obj.
func (th *thread) callIntercept(obj, invocation *Object) error {
	iface, err := th.in.class(hostlib.Ref(hostlib.IInterceptor))
	if err != nil {
		return err
	}
	def := iface.Def.Method(hostlib.Intercept)
	if def == nil {
		return errors.Resolution("method", hostlib.IInterceptor+"::"+hostlib.Intercept)
	}
	impl, err := obj.Class.dispatch(iface.method(def))
	if err != nil {
		return err
	}
	_, err = th.invoke(impl, []any{obj, invocation})
	return err
}

// managedInterceptor runs an interceptor object inside a managed call. The
// chain shares the thread that created the invocation.
type managedInterceptor struct {
	th         *thread
	obj        *Object
	invocation *Object
}

func (m *managedInterceptor) Intercept(inv *intercept.Invocation) error {
	if b := m.th.in.hostBehavior(m.obj); b != nil {
		return b.Intercept(inv)
	}
	return m.th.callIntercept(m.obj, m.invocation)
}

// attributeInterceptor runs an interceptor object for calls dispatched
// from Go through a StubState. Managed interceptors see a fresh Invocation
// object wrapping the host invocation.
type attributeInterceptor struct {
	in     *Instance
	obj    *Object
	method *Method
}

func (a *attributeInterceptor) Intercept(inv *intercept.Invocation) error {
	if b := a.in.hostBehavior(a.obj); b != nil {
		return b.Intercept(inv)
	}
	cls, err := a.in.class(hostlib.Ref(hostlib.Invocation))
	if err != nil {
		return err
	}
	wrapper := cls.newObject()
	wrapper.Native = &invocationState{
		inv:    inv,
		args:   &Array{Elem: il.Object(), Items: inv.Args()},
		method: a.in.methodInfo(a.method),
	}
	return a.in.newThread(context.Background()).callIntercept(a.obj, wrapper)
}
