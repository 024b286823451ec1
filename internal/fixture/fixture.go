// Package fixture builds the il modules shared by weaver, vm and
// end-to-end tests.
package fixture

import (
	"github.com/google/uuid"

	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

// Type names defined by the InterceptMe module.
const (
	InterceptMe        = "Tests.InterceptMe"
	GenericInterceptMe = "Tests.InterceptMe`2"
	GenericNested      = "Tests.InterceptMe`2/Nested"
	GenericHelper      = "Tests.GenericHelper"
	EatExceptionAttr   = "Tests.EatExceptionAttribute"
	LogAttr            = "Tests.LogAttribute"
	AbortAttr          = "Tests.AbortAttribute"
	RecordAttr         = "Tests.RecordAttribute"
	Unrelated          = "Tests.Unrelated"
)

// MVID is the identity of a freshly built InterceptMe module.
var MVID = uuid.MustParse("9a4c2d7e-5b31-4f08-b6e2-1c7d0a93f458")

const (
	public   = il.MethodPublic | il.MethodHideBySig
	ctorAttr = il.MethodPublic | il.MethodHideBySig | il.MethodSpecialName | il.MethodRTSpecialName
	override = il.MethodPublic | il.MethodHideBySig | il.MethodVirtual
)

var (
	invocation = hostlib.Ref(hostlib.Invocation)
	exception  = hostlib.Ref(hostlib.Exception)
)

// Module returns a new, unwoven InterceptMe module. Every call builds an
// independent copy.
func Module() *il.Module {
	m := &il.Module{
		Name:       "InterceptMe",
		MVID:       MVID,
		References: []string{hostlib.Scope},
	}
	buildAttributes(m)
	buildInterceptMe(m)
	buildGeneric(m)
	buildHelper(m)
	buildUnrelated(m)
	return m
}

// Encoded returns the encoded InterceptMe module.
func Encoded() ([]byte, error) {
	return Module().Encode()
}

func ref(name string) *il.TypeRef { return il.Named("", name) }

func class(m *il.Module, ns, name string, base *il.TypeRef) *il.TypeDef {
	t := &il.TypeDef{Namespace: ns, Name: name, Attributes: il.TypePublic, BaseType: base}
	m.AddType(t)
	return t
}

func params(types ...*il.TypeRef) []*il.ParamDef {
	ps := make([]*il.ParamDef, len(types))
	for i, t := range types {
		ps[i] = &il.ParamDef{Name: string(rune('a' + i)), Type: t}
	}
	return ps
}

func method(t *il.TypeDef, name string, attrs il.MethodAttributes, ret *il.TypeRef, ps []*il.TypeRef, emit func(e *il.Emitter)) *il.MethodDef {
	m := &il.MethodDef{Name: name, Attributes: attrs, Return: ret, Params: params(ps...), Body: &il.MethodBody{}}
	emit(il.NewEmitter(m.Body))
	t.AddMethod(m)
	return m
}

func ctorRef(t *il.TypeRef, ps ...*il.TypeRef) *il.MethodRef {
	return &il.MethodRef{DeclaringType: t, Name: il.CtorName, HasThis: true, Return: il.Void(), Params: ps}
}

func hostMethod(typeName, name string, nparams int) *il.MethodRef {
	ref, err := hostlib.MethodRef(typeName, name, nparams)
	if err != nil {
		panic(err)
	}
	return ref
}

// defaultCtor adds a public constructor chaining to base's default one.
func defaultCtor(t *il.TypeDef, base *il.TypeRef) {
	method(t, il.CtorName, ctorAttr, il.Void(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, ctorRef(base)).Ret()
	})
}

func attr(typeName string, order int32, args ...any) *il.CustomAttribute {
	ps := make([]*il.TypeRef, len(args))
	for i, a := range args {
		ps[i] = il.ConstantType(a)
	}
	return &il.CustomAttribute{
		Constructor: ctorRef(typeRefFor(typeName), ps...),
		Args:        args,
		Named: []il.NamedArg{
			{Name: hostlib.OrderField, Kind: il.NamedProperty, Type: il.Int32(), Value: order},
		},
	}
}

func typeRefFor(name string) *il.TypeRef {
	switch name {
	case hostlib.LogAttribute, hostlib.EatExceptionAttribute, hostlib.IncrementArgAttribute, hostlib.AbortAttribute:
		return hostlib.Ref(name)
	}
	return ref(name)
}

func buildAttributes(m *il.Module) {
	base := hostlib.Ref(hostlib.InterceptorAttribute)
	proceed := hostMethod(hostlib.Invocation, hostlib.Proceed, 0)
	setResult := hostMethod(hostlib.Invocation, hostlib.SetResult, 1)
	cancel := hostMethod(hostlib.Invocation, hostlib.Cancel, 0)

	// EatException: proceed, swallow any exception, then return 42.
	eat := class(m, "Tests", "EatExceptionAttribute", base)
	defaultCtor(eat, base)
	method(eat, hostlib.OnInvocation, override, il.Void(), []*il.TypeRef{invocation}, func(e *il.Emitter) {
		tryStart, tryEnd, hStart, done := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
		e.Mark(tryStart)
		e.Ldarg(1).Call(il.OpCallvirt, proceed)
		e.Branch(il.OpLeave, done)
		e.Mark(tryEnd).Mark(hStart)
		e.Op(il.OpPop)
		e.Branch(il.OpLeave, done)
		e.Mark(done)
		e.Ldarg(1).LdcI4(42).Type(il.OpBox, il.Int32()).Call(il.OpCallvirt, setResult)
		e.Ret()
		e.Catch(exception, tryStart, tryEnd, hStart, done)
	})

	// Log: proceed, then record "Name(args) : result" in the static Last.
	log := class(m, "Tests", "LogAttribute", base)
	last := &il.FieldDef{Name: "Last", Type: il.String(), Attributes: il.FieldPublic | il.FieldStatic}
	log.AddField(last)
	defaultCtor(log, base)
	concatArray := hostMethod(hostlib.String, "Concat", 1)
	join := hostMethod(hostlib.String, "Join", 2)
	method(log, hostlib.OnInvocation, override, il.Void(), []*il.TypeRef{invocation}, func(e *il.Emitter) {
		parts := e.AddLocal(il.ArrayOf(il.Object()))
		e.Ldarg(1).Call(il.OpCallvirt, proceed)
		e.LdcI4(5).Type(il.OpNewarr, il.Object()).Stloc(parts)

		e.Ldloc(parts).LdcI4(0)
		e.Ldarg(1).Call(il.OpCallvirt, hostMethod(hostlib.Invocation, hostlib.GetMethod, 0))
		e.Call(il.OpCallvirt, hostMethod(hostlib.MethodBase, "get_Name", 0))
		e.Type(il.OpStelem, il.Object())

		e.Ldloc(parts).LdcI4(1).Ldstr("(").Type(il.OpStelem, il.Object())

		e.Ldloc(parts).LdcI4(2)
		e.Ldstr(", ").Ldarg(1).Call(il.OpCallvirt, hostMethod(hostlib.Invocation, hostlib.GetArguments, 0))
		e.Call(il.OpCall, join)
		e.Type(il.OpStelem, il.Object())

		e.Ldloc(parts).LdcI4(3).Ldstr(") : ").Type(il.OpStelem, il.Object())

		e.Ldloc(parts).LdcI4(4)
		e.Ldarg(1).Call(il.OpCallvirt, hostMethod(hostlib.Invocation, hostlib.GetResult, 0))
		e.Type(il.OpStelem, il.Object())

		e.Ldloc(parts).Call(il.OpCall, concatArray).Field(il.OpStsfld, last.Ref())
		e.Ret()
	})

	// Abort: set 911 and cancel.
	abort := class(m, "Tests", "AbortAttribute", base)
	defaultCtor(abort, base)
	method(abort, hostlib.OnInvocation, override, il.Void(), []*il.TypeRef{invocation}, func(e *il.Emitter) {
		e.Ldarg(1).LdcI4(911).Type(il.OpBox, il.Int32()).Call(il.OpCallvirt, setResult)
		e.Ldarg(1).Call(il.OpCallvirt, cancel)
		e.Ret()
	})

	// Record: append Tag to the static Trace and never proceed.
	rec := class(m, "Tests", "RecordAttribute", base)
	tag := &il.FieldDef{Name: "Tag", Type: il.String(), Attributes: il.FieldPublic}
	trace := &il.FieldDef{Name: "Trace", Type: il.String(), Attributes: il.FieldPublic | il.FieldStatic}
	rec.AddField(tag)
	rec.AddField(trace)
	concat2 := hostMethod(hostlib.String, "Concat", 2)
	method(rec, il.CtorName, ctorAttr, il.Void(), []*il.TypeRef{il.String()}, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, ctorRef(base))
		e.Ldarg(0).Ldarg(1).Field(il.OpStfld, tag.Ref())
		e.Ret()
	})
	method(rec, hostlib.OnInvocation, override, il.Void(), []*il.TypeRef{invocation}, func(e *il.Emitter) {
		e.Field(il.OpLdsfld, trace.Ref())
		e.Ldarg(0).Field(il.OpLdfld, tag.Ref())
		e.Call(il.OpCall, concat2).Field(il.OpStsfld, trace.Ref())
		e.Ret()
	})
	method(rec, "TakeTrace", public|il.MethodStatic, il.String(), nil, func(e *il.Emitter) {
		e.Field(il.OpLdsfld, trace.Ref())
		e.Ldnull().Field(il.OpStsfld, trace.Ref())
		e.Ret()
	})
	// Append lets woven bodies add to the trace.
	method(rec, "Append", public|il.MethodStatic, il.Void(), []*il.TypeRef{il.String()}, func(e *il.Emitter) {
		e.Field(il.OpLdsfld, trace.Ref()).Ldarg(0)
		e.Call(il.OpCall, concat2).Field(il.OpStsfld, trace.Ref())
		e.Ret()
	})
}

func buildInterceptMe(m *il.Module) {
	t := class(m, "Tests", "InterceptMe", il.Object())
	self := ref(InterceptMe)
	last := &il.FieldDef{Name: "last", Type: il.Int32(), Attributes: il.FieldPrivate}
	t.AddField(last)
	defaultCtor(t, il.Object())

	wm := method(t, "WithEatExceptionAndLogNotImplemented", public, il.Int32(),
		[]*il.TypeRef{il.Int32(), il.Float32()}, func(e *il.Emitter) {
			e.Call(il.OpNewobj, ctorRef(hostlib.Ref(hostlib.NotImplementedException))).Op(il.OpThrow)
		})
	wm.CustomAttributes = []*il.CustomAttribute{attr(EatExceptionAttr, 2), attr(LogAttr, 1)}

	two := method(t, "WithTwoIncrementArg", public, il.Int32(), []*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
		e.Ldarg(1).Ret()
	})
	two.CustomAttributes = []*il.CustomAttribute{
		attr(hostlib.IncrementArgAttribute, 0),
		attr(hostlib.IncrementArgAttribute, 0),
	}

	abort := method(t, "WithAbort", public, il.Int32(), nil, func(e *il.Emitter) {
		e.LdcI4(10).Ret()
	})
	abort.CustomAttributes = []*il.CustomAttribute{attr(AbortAttr, 0)}

	static := method(t, "WithIncrementArgTestStatic", public|il.MethodStatic, il.Int32(),
		[]*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
			e.Ldarg(0).Ret()
		})
	static.CustomAttributes = []*il.CustomAttribute{attr(hostlib.IncrementArgAttribute, 0)}

	method(t, "Invoke_WithIncrementArgStatic", public, il.Int32(), []*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
		e.Ldarg(1).Call(il.OpCall, static.Ref()).Ret()
	})

	nullableInt := il.NullableOf(il.Int32())
	concat3 := hostMethod(hostlib.String, "Concat", 3)
	null := method(t, "WithIncrementArgTestNull", public, il.String(),
		[]*il.TypeRef{nullableInt, il.String()}, func(e *il.Emitter) {
			e.Ldstr("").Ldarg(1).Type(il.OpBox, nullableInt).Ldarg(2).Call(il.OpCall, concat3).Ret()
		})
	null.CustomAttributes = []*il.CustomAttribute{attr(hostlib.IncrementArgAttribute, 0)}

	concat2 := hostMethod(hostlib.String, "Concat", 2)
	nullLog := method(t, "WithNullableLog", public, il.String(), []*il.TypeRef{nullableInt}, func(e *il.Emitter) {
		e.Ldstr("x=").Ldarg(1).Type(il.OpBox, nullableInt).Call(il.OpCall, concat2).Ret()
	})
	nullLog.CustomAttributes = []*il.CustomAttribute{attr(hostlib.LogAttribute, 0)}

	hostEat := method(t, "WithHostEatAndLog", public, il.Int32(), []*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
		e.Call(il.OpNewobj, ctorRef(hostlib.Ref(hostlib.InvalidOperationException))).Op(il.OpThrow)
	})
	hostEat.CustomAttributes = []*il.CustomAttribute{
		attr(hostlib.EatExceptionAttribute, 2),
		attr(hostlib.LogAttribute, 1),
	}

	hostAbort := method(t, "WithHostAbort", public, il.Int32(), nil, func(e *il.Emitter) {
		e.LdcI4(10).Ret()
	})
	hostAbort.CustomAttributes = []*il.CustomAttribute{{
		Constructor: ctorRef(hostlib.Ref(hostlib.AbortAttribute)),
		Named: []il.NamedArg{
			{Name: hostlib.ValueField, Kind: il.NamedField, Type: il.Int32(), Value: int32(7)},
		},
	}}

	inc := method(t, "Overloaded", public, il.Int32(), []*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
		e.Ldarg(1).Ret()
	})
	inc.CustomAttributes = []*il.CustomAttribute{attr(hostlib.IncrementArgAttribute, 0)}
	method(t, "Overloaded", public, il.Int32(), []*il.TypeRef{il.Int32(), il.Int32()}, func(e *il.Emitter) {
		e.Ldarg(1).Ldarg(2).Op(il.OpAdd).Ret()
	})
	echo := method(t, "Overloaded", public, il.String(), []*il.TypeRef{il.String()}, func(e *il.Emitter) {
		e.Ldarg(1).Ret()
	})
	echo.CustomAttributes = []*il.CustomAttribute{attr(hostlib.LogAttribute, 0)}

	// Abort stores a boxed int32 result that cannot be unboxed to string.
	mismatch := method(t, "WithMismatchedResult", public, il.String(), nil, func(e *il.Emitter) {
		e.Ldstr("unreachable").Ret()
	})
	mismatch.CustomAttributes = []*il.CustomAttribute{attr(AbortAttr, 0)}

	store := method(t, "Store", public, il.Void(), []*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
		e.Ldarg(0).Ldarg(1).Field(il.OpStfld, &il.FieldRef{DeclaringType: self, Name: last.Name, Type: il.Int32()})
		e.Ret()
	})
	store.CustomAttributes = []*il.CustomAttribute{attr(hostlib.IncrementArgAttribute, 0)}
	method(t, "get_Last", public, il.Int32(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Field(il.OpLdfld, &il.FieldRef{DeclaringType: self, Name: last.Name, Type: il.Int32()}).Ret()
	})

	appendRef := &il.MethodRef{
		DeclaringType: ref(RecordAttr), Name: "Append", Return: il.Void(), Params: []*il.TypeRef{il.String()},
	}
	ordered := method(t, "WithRecordedOrder", public, il.Int32(), nil, func(e *il.Emitter) {
		e.Ldstr("body;").Call(il.OpCall, appendRef)
		e.LdcI4(7).Ret()
	})
	ordered.CustomAttributes = []*il.CustomAttribute{
		attr(RecordAttr, 3, "c;"),
		attr(RecordAttr, 1, "a;"),
		attr(RecordAttr, 2, "b;"),
		attr(RecordAttr, 2, "b2;"),
	}
}

func buildGeneric(m *il.Module) {
	gps := func() []*il.GenericParamDef {
		return []*il.GenericParamDef{{Name: "T", Position: 0}, {Name: "U", Position: 1}}
	}
	tp, up := il.TypeParam(0, "T"), il.TypeParam(1, "U")

	outer := class(m, "Tests", "InterceptMe`2", il.Object())
	outer.GenericParams = gps()
	defaultCtor(outer, il.Object())
	inc := method(outer, "WithIncrementArg", public, tp, []*il.TypeRef{tp, up}, func(e *il.Emitter) {
		e.Ldarg(1).Ret()
	})
	inc.CustomAttributes = []*il.CustomAttribute{attr(hostlib.IncrementArgAttribute, 0)}

	nested := &il.TypeDef{
		Name:          "Nested",
		Attributes:    il.TypeNestedPublic,
		BaseType:      il.Object(),
		GenericParams: gps(),
	}
	outer.AddNested(nested)
	defaultCtor(nested, il.Object())
	ninc := method(nested, "WithIncrementArg", public, tp, []*il.TypeRef{tp, up}, func(e *il.Emitter) {
		e.Ldarg(1).Ret()
	})
	ninc.CustomAttributes = []*il.CustomAttribute{attr(hostlib.IncrementArgAttribute, 0)}
}

func buildHelper(m *il.Module) {
	t := class(m, "Tests", "GenericHelper", il.Object())
	defaultCtor(t, il.Object())

	invoke := func(name, typeName string, arg *il.TypeRef) {
		closed := il.Instance(ref(typeName), arg, il.String())
		call := &il.MethodRef{
			DeclaringType: closed,
			Name:          "WithIncrementArg",
			HasThis:       true,
			Return:        il.TypeParam(0, "T"),
			Params:        []*il.TypeRef{il.TypeParam(0, "T"), il.TypeParam(1, "U")},
		}
		method(t, name, public, arg, []*il.TypeRef{arg, il.String()}, func(e *il.Emitter) {
			e.Call(il.OpNewobj, ctorRef(closed))
			e.Ldarg(1).Ldarg(2).Call(il.OpCallvirt, call).Ret()
		})
	}
	invoke("Invoke_WithIncrementArg_On_Int_String", GenericInterceptMe, il.Int32())
	invoke("Invoke_WithIncrementArg_On_Int_String_Nested", GenericNested, il.Int32())
	invoke("Invoke_WithIncrementArg_On_Float_String", GenericInterceptMe, il.Float32())
}

// buildUnrelated adds a type without interceptors; weaving must leave it
// untouched.
func buildUnrelated(m *il.Module) {
	t := class(m, "Tests", "Unrelated", il.Object())
	defaultCtor(t, il.Object())
	method(t, "Twice", public|il.MethodStatic, il.Int32(), []*il.TypeRef{il.Int32()}, func(e *il.Emitter) {
		e.Ldarg(0).LdcI4(2).Op(il.OpMul).Ret()
	})
}
