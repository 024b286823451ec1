package engine

import (
	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

// imports holds the host library references generated code uses.
type imports struct {
	objectCtor           *il.MethodRef
	getMethodFromHandle  *il.MethodRef
	getMethodFromHandle2 *il.MethodRef
	getInterceptorsFor   *il.MethodRef
	invokerCtor          *il.MethodRef
	invocationCtor       *il.MethodRef
	proceed              *il.MethodRef
	getResult            *il.MethodRef
	// unbox is open; instantiate it per use.
	unbox *il.MethodRef

	methodInfo       *il.TypeRef
	interceptorArray *il.TypeRef
	invoker          *il.TypeRef
	invocation       *il.TypeRef
	objectArray      *il.TypeRef
}

type importSpec struct {
	dst      **il.MethodRef
	typeName string
	name     string
	nparams  int
}

// importRuntime looks up every runtime member generated code calls and
// checks that each reference resolves through res.
func importRuntime(res *il.Resolver) (*imports, error) {
	imp := &imports{
		methodInfo:       hostlib.Ref(hostlib.MethodInfo),
		interceptorArray: il.ArrayOf(hostlib.Ref(hostlib.IInterceptor)),
		invoker:          hostlib.Ref(hostlib.MethodInvoker),
		invocation:       hostlib.Ref(hostlib.Invocation),
		objectArray:      il.ArrayOf(il.Object()),
	}

	specs := []importSpec{
		{&imp.objectCtor, hostlib.Object, il.CtorName, 0},
		{&imp.getMethodFromHandle, hostlib.MethodBase, hostlib.GetMethodFromHandle, 1},
		{&imp.getMethodFromHandle2, hostlib.MethodBase, hostlib.GetMethodFromHandle, 2},
		{&imp.getInterceptorsFor, hostlib.InterceptorAttribute, hostlib.GetInterceptorsFor, 1},
		{&imp.invokerCtor, hostlib.MethodInvoker, il.CtorName, 2},
		{&imp.invocationCtor, hostlib.Invocation, il.CtorName, 5},
		{&imp.proceed, hostlib.Invocation, hostlib.Proceed, 0},
		{&imp.getResult, hostlib.Invocation, hostlib.GetResult, 0},
		{&imp.unbox, hostlib.StubHelper, hostlib.Unbox, 1},
	}
	for _, s := range specs {
		ref, err := hostlib.MethodRef(s.typeName, s.name, s.nparams)
		if err != nil {
			return nil, importError(s, err)
		}
		if _, err := res.ResolveMethod(ref); err != nil {
			return nil, importError(s, err)
		}
		*s.dst = ref
	}

	for _, t := range []*il.TypeRef{imp.methodInfo, imp.interceptorArray.Elem, imp.invoker, imp.invocation} {
		if _, err := res.ResolveType(t); err != nil {
			return nil, errors.New(errors.PhaseWeave, errors.KindResolution).
				Type(t.String()).
				Detail("cannot import runtime type").
				Cause(err).
				Build()
		}
	}
	return imp, nil
}

func importError(s importSpec, err error) error {
	return errors.New(errors.PhaseWeave, errors.KindResolution).
		Type(s.typeName).
		Member(s.name).
		Detail("cannot import runtime method with %d parameters", s.nparams).
		Cause(err).
		Build()
}
