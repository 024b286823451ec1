package hostlib

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/il"
)

// mvid is fixed so the library's identity is stable across processes.
var mvid = uuid.MustParse("3b0d7a56-1f44-4d0e-9c62-5e2d8f0a7c11")

var (
	moduleOnce sync.Once
	module     *il.Module
)

// Module returns the runtime library. The module is built once and shared;
// callers must not mutate it.
func Module() *il.Module {
	moduleOnce.Do(func() {
		module = build()
	})
	return module
}

// Method finds the method named name with nparams parameters on the
// library type typeName.
func Method(typeName, name string, nparams int) (*il.MethodDef, error) {
	t := Module().FindType(typeName)
	if t == nil {
		return nil, errors.Resolution("type", typeName)
	}
	for _, m := range t.Methods {
		if m.Name == name && len(m.Params) == nparams {
			return m, nil
		}
	}
	return nil, errors.Resolution("method", fmt.Sprintf("%s::%s/%d", typeName, name, nparams))
}

// MethodRef is Method followed by Ref.
func MethodRef(typeName, name string, nparams int) (*il.MethodRef, error) {
	m, err := Method(typeName, name, nparams)
	if err != nil {
		return nil, err
	}
	return m.Ref(), nil
}

// DefaultMessage returns the message a standard exception constructed
// without arguments carries.
func DefaultMessage(exceptionType string) string {
	if msg, ok := exceptionMessages[exceptionType]; ok {
		return msg
	}
	return "Exception of type '" + exceptionType + "' was thrown."
}

var exceptionMessages = map[string]string{
	NotImplementedException:     "The method or operation is not implemented.",
	InvalidCastException:        "Specified cast is not valid.",
	NullReferenceException:      "Object reference not set to an instance of an object.",
	IndexOutOfRangeException:    "Index was outside the bounds of the array.",
	ArgumentException:           "Value does not fall within the expected range.",
	InvalidOperationException:   "Operation is not valid due to the current state of the object.",
	TypeInitializationException: "The type initializer threw an exception.",
}

const (
	public  = il.MethodPublic | il.MethodHideBySig
	ctor    = il.MethodPublic | il.MethodHideBySig | il.MethodSpecialName | il.MethodRTSpecialName
	native  = il.MethodNative
	virtual = il.MethodVirtual
)

type builder struct {
	m *il.Module
}

func (b *builder) class(name string, base *il.TypeRef, attrs il.TypeAttributes) *il.TypeDef {
	ns, simple := splitName(name)
	t := &il.TypeDef{Namespace: ns, Name: simple, BaseType: base, Attributes: il.TypePublic | attrs}
	b.m.AddType(t)
	return t
}

func splitName(name string) (string, string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

func params(types ...*il.TypeRef) []*il.ParamDef {
	ps := make([]*il.ParamDef, len(types))
	for i, t := range types {
		ps[i] = &il.ParamDef{Name: fmt.Sprintf("arg%d", i), Type: t}
	}
	return ps
}

func nativeMethod(t *il.TypeDef, name string, attrs il.MethodAttributes, ret *il.TypeRef, ps ...*il.TypeRef) *il.MethodDef {
	m := &il.MethodDef{Name: name, Attributes: attrs | native, Return: ret, Params: params(ps...)}
	t.AddMethod(m)
	return m
}

func ilMethod(t *il.TypeDef, name string, attrs il.MethodAttributes, ret *il.TypeRef, ps []*il.TypeRef, emit func(e *il.Emitter)) *il.MethodDef {
	m := &il.MethodDef{Name: name, Attributes: attrs, Return: ret, Params: params(ps...), Body: &il.MethodBody{}}
	emit(il.NewEmitter(m.Body))
	t.AddMethod(m)
	return m
}

func ctorRef(typ *il.TypeRef, ps ...*il.TypeRef) *il.MethodRef {
	return &il.MethodRef{DeclaringType: typ, Name: il.CtorName, HasThis: true, Return: il.Void(), Params: ps}
}

// baseCtor emits a constructor that chains to the base type's default constructor.
func baseCtor(t *il.TypeDef, then func(e *il.Emitter)) {
	ilMethod(t, il.CtorName, ctor, il.Void(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, ctorRef(t.BaseType))
		if then != nil {
			then(e)
		}
		e.Ret()
	})
}

func build() *il.Module {
	b := &builder{m: &il.Module{Name: "weave.runtime", Scope: Scope, MVID: mvid}}

	obj := b.class(Object, nil, 0)
	nativeMethod(obj, il.CtorName, ctor, il.Void())
	nativeMethod(obj, "ToString", public|virtual, il.String())
	nativeMethod(obj, "Equals", public|virtual, il.Bool(), il.Object())
	nativeMethod(obj, "GetHashCode", public|virtual, il.Int32())

	str := b.class(String, il.Object(), il.TypeSealed)
	nativeMethod(str, "Concat", public|il.MethodStatic, il.String(), il.Object(), il.Object())
	nativeMethod(str, "Concat", public|il.MethodStatic, il.String(), il.Object(), il.Object(), il.Object())
	nativeMethod(str, "Concat", public|il.MethodStatic, il.String(), il.ArrayOf(il.Object()))
	nativeMethod(str, "Join", public|il.MethodStatic, il.String(), il.String(), il.ArrayOf(il.Object()))
	nativeMethod(str, "get_Length", public, il.Int32())

	buildExceptions(b)

	attr := b.class(Attribute, il.Object(), il.TypeAbstract)
	baseCtor(attr, nil)

	b.class(RuntimeMethodHandle, il.Object(), il.TypeSealed|il.TypeValueType)
	b.class(RuntimeTypeHandle, il.Object(), il.TypeSealed|il.TypeValueType)

	methodBase := b.class(MethodBase, il.Object(), il.TypeAbstract)
	nativeMethod(methodBase, GetMethodFromHandle, public|il.MethodStatic, Ref(MethodBase), Ref(RuntimeMethodHandle))
	nativeMethod(methodBase, GetMethodFromHandle, public|il.MethodStatic, Ref(MethodBase),
		Ref(RuntimeMethodHandle), Ref(RuntimeTypeHandle))
	nativeMethod(methodBase, "get_Name", public|virtual, il.String())
	nativeMethod(methodBase, "get_DeclaringType", public|virtual, il.String())
	nativeMethod(methodBase, "get_IsStatic", public|virtual, il.Bool())
	nativeMethod(methodBase, "ToString", public|virtual, il.String())
	b.class(MethodInfo, Ref(MethodBase), il.TypeAbstract)

	buildInterception(b)
	buildInterceptors(b)

	return b.m
}

func buildExceptions(b *builder) {
	exc := b.class(Exception, il.Object(), 0)
	exc.AddField(&il.FieldDef{Name: MessageField, Type: il.String(), Attributes: il.FieldPrivate})
	ilMethod(exc, il.CtorName, ctor, il.Void(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Ldstr(DefaultMessage(Exception)).Call(il.OpCall, ctorRef(Ref(Exception), il.String())).Ret()
	})
	ilMethod(exc, il.CtorName, ctor, il.Void(), []*il.TypeRef{il.String()}, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, ctorRef(il.Object()))
		e.Ldarg(0).Ldarg(1).Field(il.OpStfld, &il.FieldRef{
			DeclaringType: Ref(Exception), Name: MessageField, Type: il.String(),
		})
		e.Ret()
	})
	ilMethod(exc, "get_Message", public|virtual, il.String(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Field(il.OpLdfld, &il.FieldRef{
			DeclaringType: Ref(Exception), Name: MessageField, Type: il.String(),
		}).Ret()
	})
	nativeMethod(exc, "ToString", public|virtual, il.String())

	for _, name := range []string{
		NotImplementedException,
		InvalidCastException,
		NullReferenceException,
		IndexOutOfRangeException,
		ArgumentException,
		InvalidOperationException,
		TypeInitializationException,
	} {
		t := b.class(name, Ref(Exception), 0)
		msg := DefaultMessage(name)
		ilMethod(t, il.CtorName, ctor, il.Void(), nil, func(e *il.Emitter) {
			e.Ldarg(0).Ldstr(msg).Call(il.OpCall, ctorRef(Ref(Exception), il.String())).Ret()
		})
		ilMethod(t, il.CtorName, ctor, il.Void(), []*il.TypeRef{il.String()}, func(e *il.Emitter) {
			e.Ldarg(0).Ldarg(1).Call(il.OpCall, ctorRef(Ref(Exception), il.String())).Ret()
		})
	}
}

func buildInterception(b *builder) {
	invocation := Ref(Invocation)
	interceptors := il.ArrayOf(Ref(IInterceptor))

	iface := b.class(IInterceptor, nil, il.TypeInterface|il.TypeAbstract)
	intercept := &il.MethodDef{
		Name:       Intercept,
		Attributes: public | virtual | il.MethodAbstract | il.MethodNewSlot,
		Return:     il.Void(),
		Params:     params(invocation),
	}
	iface.AddMethod(intercept)

	attr := b.class(InterceptorAttribute, Ref(Attribute), 0)
	attr.Interfaces = []*il.TypeRef{Ref(IInterceptor)}
	order := &il.FieldDef{Name: OrderField, Type: il.Int32(), Attributes: il.FieldPublic}
	attr.AddField(order)
	baseCtor(attr, nil)
	ilMethod(attr, "get_Order", public, il.Int32(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Field(il.OpLdfld, order.Ref()).Ret()
	})
	ilMethod(attr, "set_Order", public, il.Void(), []*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
		e.Ldarg(0).Ldarg(1).Field(il.OpStfld, order.Ref()).Ret()
	})
	onInvocation := ilMethod(attr, OnInvocation, public|virtual|il.MethodNewSlot, il.Void(),
		[]*il.TypeRef{invocation}, func(e *il.Emitter) { e.Ret() })
	dispatch := ilMethod(attr, Intercept, il.MethodPrivate|il.MethodHideBySig|virtual|il.MethodFinal|il.MethodNewSlot,
		il.Void(), []*il.TypeRef{invocation}, func(e *il.Emitter) {
			e.Ldarg(0).Ldarg(1).Call(il.OpCallvirt, onInvocation.Ref()).Ret()
		})
	dispatch.Overrides = []*il.MethodRef{intercept.Ref()}
	nativeMethod(attr, GetInterceptorsFor, public|il.MethodStatic, interceptors, Ref(MethodInfo))

	inv := b.class(Invocation, il.Object(), il.TypeSealed)
	nativeMethod(inv, il.CtorName, ctor, il.Void(),
		interceptors, Ref(MethodInfo), Ref(MethodInvoker), il.Object(), il.ArrayOf(il.Object()))
	nativeMethod(inv, Proceed, public, il.Void())
	nativeMethod(inv, Cancel, public, il.Void())
	nativeMethod(inv, GetResult, public, il.Object())
	nativeMethod(inv, SetResult, public, il.Void(), il.Object())
	nativeMethod(inv, GetArguments, public, il.ArrayOf(il.Object()))
	nativeMethod(inv, GetTarget, public, il.Object())
	nativeMethod(inv, GetMethod, public, Ref(MethodInfo))

	invoker := b.class(MethodInvoker, il.Object(), il.TypeSealed)
	nativeMethod(invoker, il.CtorName, ctor, il.Void(), il.Object(), il.IntPtr())
	nativeMethod(invoker, Invoke, public|virtual, il.Object(), il.Object(), il.ArrayOf(il.Object()))

	helper := b.class(StubHelper, il.Object(), il.TypeSealed|il.TypeAbstract)
	unbox := nativeMethod(helper, Unbox, public|il.MethodStatic, il.MethodParam(0, "T"), il.Object())
	unbox.GenericParams = []*il.GenericParamDef{{Name: "T", Position: 0}}
}

func buildInterceptors(b *builder) {
	invocation := Ref(Invocation)
	base := Ref(InterceptorAttribute)

	withField := func(name, field string, def int32) {
		t := b.class(name, base, il.TypeSealed)
		var init func(e *il.Emitter)
		if field != "" {
			f := &il.FieldDef{Name: field, Type: il.Int32(), Attributes: il.FieldPublic}
			t.AddField(f)
			init = func(e *il.Emitter) {
				e.Ldarg(0).LdcI4(def).Field(il.OpStfld, f.Ref())
			}
		}
		baseCtor(t, init)
		nativeMethod(t, OnInvocation, public|virtual, il.Void(), invocation)
	}

	withField(LogAttribute, "", 0)
	withField(EatExceptionAttribute, ValueField, 42)
	withField(IncrementArgAttribute, IndexField, 0)
	withField(AbortAttribute, ValueField, 911)
}
