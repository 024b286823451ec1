package engine

import (
	"slices"

	"github.com/wippyai/weave/il"
	"github.com/wippyai/weave/weaver/internal/generic"
)

// split adds a private, non-virtual clone of m named name to m's declaring
// type. The clone keeps the body and signature. It no longer overrides
// anything and drops the interceptor markers, so it is never rediscovered.
func (e *Engine) split(m *il.MethodDef, name string, markers []*il.CustomAttribute) *il.MethodDef {
	c := m.Clone()
	c.Name = name
	c.Overrides = nil
	c.SetAccess(il.MethodPrivate)
	c.Attributes &^= il.MethodVirtual | il.MethodNewSlot | il.MethodFinal
	c.CustomAttributes = slices.DeleteFunc(c.CustomAttributes, func(a *il.CustomAttribute) bool {
		return slices.Contains(markers, a)
	})
	m.DeclaringType.AddMethod(c)
	return c
}

// trampoline adds the static CallOriginal(object, object[]) -> object
// method to the holder. It casts the target for instance methods, unboxes
// each argument to its declared type, calls original and boxes the result.
func (e *Engine) trampoline(imp *imports, h *holder, original *il.MethodDef) *il.MethodDef {
	m := &il.MethodDef{
		Name:       e.naming.Trampoline,
		Attributes: il.MethodPrivate | il.MethodHideBySig | il.MethodStatic,
		Return:     il.Object(),
		Params: []*il.ParamDef{
			{Name: "target", Type: il.Object()},
			{Name: "args", Type: imp.objectArray},
		},
		Body: &il.MethodBody{},
	}
	em := il.NewEmitter(m.Body)

	if original.HasThis() {
		em.Ldarg(0).Type(il.OpCastclass, generic.SelfInstance(original.DeclaringType))
	}
	for i, p := range original.Params {
		em.Ldarg(1).LdcI4(int32(i)).Type(il.OpLdelem, il.Object())
		em.Call(il.OpCall, imp.unbox.Instantiate(p.Type))
	}
	em.Call(il.OpCall, generic.Method(original))

	switch {
	case original.ReturnsVoid():
		em.Ldnull()
	case needsBox(original.Return):
		em.Type(il.OpBox, original.Return)
	}
	em.Ret()

	h.def.AddMethod(m)
	return m
}

// needsBox reports whether a value of type t must be boxed to be stored as
// an object. Generic parameters are boxed since they may close over value
// types; boxing a reference is a no-op.
func needsBox(t *il.TypeRef) bool {
	return t.IsValueType() || t.IsGenericParam()
}
