package engine

import (
	"github.com/wippyai/weave/il"
	"github.com/wippyai/weave/weaver/internal/generic"
)

// holder is the generated nested type caching one method's dispatch state.
type holder struct {
	def          *il.TypeDef
	method       *il.FieldDef
	interceptors *il.FieldDef
	invoker      *il.FieldDef
}

const holderFieldAttrs = il.FieldPublic | il.FieldStatic | il.FieldInitOnly

// holder adds a private nested type named name to t. It mirrors t's generic
// parameters, so from inside t and inside the holder the same parameter
// positions name the same closed arguments.
func (e *Engine) holder(imp *imports, t *il.TypeDef, name string) *holder {
	def := &il.TypeDef{
		Name:          name,
		Attributes:    il.TypeNestedPrivate | il.TypeSealed,
		BaseType:      il.Object(),
		GenericParams: generic.MirrorParams(t),
	}
	t.AddNested(def)

	h := &holder{
		def:          def,
		method:       &il.FieldDef{Name: MethodField, Type: imp.methodInfo, Attributes: holderFieldAttrs},
		interceptors: &il.FieldDef{Name: InterceptorsField, Type: imp.interceptorArray, Attributes: holderFieldAttrs},
		invoker:      &il.FieldDef{Name: InvokerField, Type: imp.invoker, Attributes: holderFieldAttrs},
	}
	def.AddField(h.method)
	def.AddField(h.interceptors)
	def.AddField(h.invoker)

	ctor := &il.MethodDef{
		Name:       il.CtorName,
		Attributes: il.MethodPrivate | il.MethodHideBySig | il.MethodSpecialName | il.MethodRTSpecialName,
		Return:     il.Void(),
		Body:       &il.MethodBody{},
	}
	il.NewEmitter(ctor.Body).Ldarg(0).Call(il.OpCall, imp.objectCtor).Ret()
	def.AddMethod(ctor)
	return h
}

// initializer adds the holder's type initializer. It resolves the method
// from its token, asks the runtime for the method's ordered interceptors
// and binds the trampoline into an invoker. The runtime runs it once per
// closed holder type.
func (e *Engine) initializer(imp *imports, h *holder, method, trampoline *il.MethodDef) {
	cctor := &il.MethodDef{
		Name: il.CctorName,
		Attributes: il.MethodPrivate | il.MethodHideBySig | il.MethodSpecialName |
			il.MethodRTSpecialName | il.MethodStatic,
		Return: il.Void(),
		Body:   &il.MethodBody{},
	}
	em := il.NewEmitter(cctor.Body)

	methodField := generic.Field(h.method)
	interceptorsField := generic.Field(h.interceptors)
	invokerField := generic.Field(h.invoker)

	em.LdtokenMethod(method.Ref())
	if generic.NeedsBinding(method.DeclaringType) {
		em.LdtokenType(generic.SelfInstance(method.DeclaringType))
		em.Call(il.OpCall, imp.getMethodFromHandle2)
	} else {
		em.Call(il.OpCall, imp.getMethodFromHandle)
	}
	em.Type(il.OpCastclass, imp.methodInfo)
	em.Field(il.OpStsfld, methodField)

	em.Field(il.OpLdsfld, methodField)
	em.Call(il.OpCall, imp.getInterceptorsFor)
	em.Field(il.OpStsfld, interceptorsField)

	em.Ldnull()
	em.Call(il.OpLdftn, generic.Method(trampoline))
	em.Call(il.OpNewobj, imp.invokerCtor)
	em.Field(il.OpStsfld, invokerField)
	em.Ret()

	h.def.AddMethod(cctor)
}
