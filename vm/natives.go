package vm

import (
	"hash/maphash"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

// nativeFunc implements a host library method. args holds the receiver
// first for instance methods; m carries the closed generic arguments.
type nativeFunc func(th *thread, m *Method, args []any) (any, error)

// nativeRegistry maps host library methods to their implementations,
// keyed by declaring type, name and parameter count.
type nativeRegistry struct {
	funcs map[string]nativeFunc
}

var natives = newNativeRegistry()

func newNativeRegistry() *nativeRegistry {
	r := &nativeRegistry{funcs: make(map[string]nativeFunc)}
	registerCore(r)
	registerReflection(r)
	registerInterception(r)
	return r
}

func nativeKey(typeName, name string, nparams int) string {
	return typeName + "::" + name + "/" + strconv.Itoa(nparams)
}

func (r *nativeRegistry) register(typeName, name string, nparams int, fn nativeFunc) {
	r.funcs[nativeKey(typeName, name, nparams)] = fn
}

func (r *nativeRegistry) lookup(def *il.MethodDef) nativeFunc {
	if def.DeclaringType == nil || def.DeclaringType.Scope() != hostlib.Scope {
		return nil
	}
	return r.funcs[nativeKey(def.DeclaringType.FullName(), def.Name, len(def.Params))]
}

var hashSeed = maphash.MakeSeed()

func registerCore(r *nativeRegistry) {
	r.register(hostlib.Object, il.CtorName, 0, func(*thread, *Method, []any) (any, error) {
		return nil, nil
	})
	r.register(hostlib.Object, "ToString", 0, func(_ *thread, _ *Method, args []any) (any, error) {
		return formatValue(args[0]), nil
	})
	r.register(hostlib.Object, "Equals", 1, func(_ *thread, _ *Method, args []any) (any, error) {
		return args[0] == args[1], nil
	})
	r.register(hostlib.Object, "GetHashCode", 0, func(_ *thread, _ *Method, args []any) (any, error) {
		return int32(maphash.Comparable(hashSeed, args[0])), nil
	})

	r.register(hostlib.String, "Concat", 2, concat)
	r.register(hostlib.String, "Concat", 3, concat)
	r.register(hostlib.String, "Concat", 1, func(th *thread, m *Method, args []any) (any, error) {
		parts, err := arrayItems(th, args[0])
		if err != nil {
			return nil, err
		}
		return concat(th, m, parts)
	})
	r.register(hostlib.String, "Join", 2, func(th *thread, _ *Method, args []any) (any, error) {
		sep, _ := args[0].(string)
		parts, err := arrayItems(th, args[1])
		if err != nil {
			return nil, err
		}
		ss := make([]string, len(parts))
		for i, p := range parts {
			if ss[i], err = th.stringify(p); err != nil {
				return nil, err
			}
		}
		return strings.Join(ss, sep), nil
	})
	r.register(hostlib.String, "get_Length", 0, func(_ *thread, _ *Method, args []any) (any, error) {
		s, _ := args[0].(string)
		return int32(len(utf16.Encode([]rune(s)))), nil
	})

	r.register(hostlib.Exception, "ToString", 0, func(_ *thread, _ *Method, args []any) (any, error) {
		obj, _ := args[0].(*Object)
		if obj == nil {
			return "", nil
		}
		return exceptionOf(obj).Error(), nil
	})
}

func concat(th *thread, _ *Method, args []any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		s, err := th.stringify(a)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func arrayItems(th *thread, v any) ([]any, error) {
	a, ok := v.(*Array)
	if !ok || a == nil {
		return nil, th.in.newException(hostlib.ArgumentException, "Value cannot be null.", nil)
	}
	return a.Items, nil
}

// stringify renders v as String.Concat does, calling ToString overrides of
// managed objects.
func (th *thread) stringify(v any) (string, error) {
	obj, ok := v.(*Object)
	if !ok {
		return formatValue(v), nil
	}
	toString, err := th.objectMethod("ToString", 0)
	if err != nil {
		return "", err
	}
	impl, err := obj.Class.dispatch(toString)
	if err != nil {
		return "", err
	}
	res, err := th.invoke(impl, []any{obj})
	if err != nil {
		return "", err
	}
	s, _ := res.(string)
	return s, nil
}

func (th *thread) objectMethod(name string, nparams int) (*Method, error) {
	cls, err := th.in.class(il.Object())
	if err != nil {
		return nil, err
	}
	for _, md := range cls.Def.Methods {
		if md.Name == name && len(md.Params) == nparams {
			return cls.method(md), nil
		}
	}
	return nil, th.in.throw(hostlib.InvalidOperationException)
}

func registerReflection(r *nativeRegistry) {
	r.register(hostlib.MethodBase, hostlib.GetMethodFromHandle, 1, func(th *thread, _ *Method, args []any) (any, error) {
		h, ok := args[0].(*MethodHandle)
		if !ok || h == nil {
			return nil, th.in.newException(hostlib.ArgumentException, "The method handle is invalid.", nil)
		}
		if h.Def.DeclaringType.HasGenericParams() {
			return nil, th.in.newException(hostlib.ArgumentException,
				"Cannot resolve method "+h.Def.Name+" because the declaring type of the method handle "+
					h.Def.DeclaringType.FullName()+" is generic. Explicitly provide the declaring type.", nil)
		}
		cls, err := th.in.class(h.Def.DeclaringType.Ref())
		if err != nil {
			return nil, err
		}
		return th.in.methodInfo(cls.method(h.Def)), nil
	})
	r.register(hostlib.MethodBase, hostlib.GetMethodFromHandle, 2, func(th *thread, _ *Method, args []any) (any, error) {
		h, ok := args[0].(*MethodHandle)
		if !ok || h == nil {
			return nil, th.in.newException(hostlib.ArgumentException, "The method handle is invalid.", nil)
		}
		t, ok := args[1].(*TypeHandle)
		if !ok || t == nil {
			return nil, th.in.newException(hostlib.ArgumentException, "The type handle is invalid.", nil)
		}
		owner := t.Class.owner(h.Def.DeclaringType)
		if owner == nil {
			return nil, th.in.newException(hostlib.ArgumentException,
				"The method "+h.Def.Name+" is not declared by "+t.Class.Name+".", nil)
		}
		return th.in.methodInfo(owner.method(h.Def)), nil
	})
	r.register(hostlib.MethodBase, "get_Name", 0, func(th *thread, _ *Method, args []any) (any, error) {
		m, err := th.reflected(args[0])
		if err != nil {
			return nil, err
		}
		return m.Def.Name, nil
	})
	r.register(hostlib.MethodBase, "get_DeclaringType", 0, func(th *thread, _ *Method, args []any) (any, error) {
		m, err := th.reflected(args[0])
		if err != nil {
			return nil, err
		}
		return m.Class.Name, nil
	})
	r.register(hostlib.MethodBase, "get_IsStatic", 0, func(th *thread, _ *Method, args []any) (any, error) {
		m, err := th.reflected(args[0])
		if err != nil {
			return nil, err
		}
		return m.Def.IsStatic(), nil
	})
	r.register(hostlib.MethodBase, "ToString", 0, func(th *thread, _ *Method, args []any) (any, error) {
		m, err := th.reflected(args[0])
		if err != nil {
			return nil, err
		}
		return m.Descriptor().String(), nil
	})
}

// methodInfo returns the MethodInfo object describing m. Every call for
// the same method returns the same object.
func (in *Instance) methodInfo(m *Method) *Object {
	if obj, ok := in.infos.Load(m); ok {
		return obj.(*Object)
	}
	cls, err := in.class(hostlib.Ref(hostlib.MethodInfo))
	if err != nil {
		panic(err)
	}
	obj := cls.newObject()
	obj.Native = m
	actual, _ := in.infos.LoadOrStore(m, obj)
	return actual.(*Object)
}

func (th *thread) reflected(v any) (*Method, error) {
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, th.in.throw(hostlib.NullReferenceException)
	}
	m, ok := obj.Native.(*Method)
	if !ok {
		return nil, th.in.throw(hostlib.InvalidCastException)
	}
	return m, nil
}
