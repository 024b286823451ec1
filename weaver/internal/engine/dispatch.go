package engine

import (
	"github.com/wippyai/weave/il"
	"github.com/wippyai/weave/weaver/internal/generic"
)

// Locals of a rewritten body.
const (
	localResult = iota
	localInvocation
	localArgs
)

// rewrite replaces m's body with dispatch through the holder: box the
// arguments, build an Invocation from the holder's cached state, proceed
// and return the unboxed result.
func (e *Engine) rewrite(imp *imports, m *il.MethodDef, h *holder) {
	body := m.Body
	body.Reset()
	body.InitLocals = true

	em := il.NewEmitter(body)
	em.AddLocal(il.Object())
	em.AddLocal(imp.invocation)
	em.AddLocal(imp.objectArray)

	em.LdcI4(int32(len(m.Params))).Type(il.OpNewarr, il.Object()).Stloc(localArgs)

	first := 0
	if m.HasThis() {
		first = 1
	}
	for i, p := range m.Params {
		em.Ldloc(localArgs).LdcI4(int32(i)).Ldarg(i + first)
		if needsBox(p.Type) {
			em.Type(il.OpBox, p.Type)
		}
		em.Type(il.OpStelem, il.Object())
	}

	em.Field(il.OpLdsfld, generic.Field(h.interceptors))
	em.Field(il.OpLdsfld, generic.Field(h.method))
	em.Field(il.OpLdsfld, generic.Field(h.invoker))
	if m.HasThis() {
		em.Ldarg(0)
	} else {
		em.Ldnull()
	}
	em.Ldloc(localArgs)
	em.Call(il.OpNewobj, imp.invocationCtor).Stloc(localInvocation)

	em.Ldloc(localInvocation).Call(il.OpCallvirt, imp.proceed)
	em.Ldloc(localInvocation).Call(il.OpCallvirt, imp.getResult).Stloc(localResult)

	if !m.ReturnsVoid() {
		em.Ldloc(localResult).Call(il.OpCall, imp.unbox.Instantiate(m.Return))
	}
	em.Ret()
}
