package vm

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

const (
	public   = il.MethodPublic | il.MethodHideBySig
	static   = public | il.MethodStatic
	virtual  = public | il.MethodVirtual
	ctorAttr = public | il.MethodSpecialName | il.MethodRTSpecialName
	cctor    = il.MethodPrivate | il.MethodHideBySig | il.MethodSpecialName | il.MethodRTSpecialName | il.MethodStatic
)

func newModule() *il.Module {
	return &il.Module{Name: "test", References: []string{hostlib.Scope}}
}

func addClass(m *il.Module, name string, base *il.TypeRef) *il.TypeDef {
	t := &il.TypeDef{Namespace: "Tests", Name: name, Attributes: il.TypePublic, BaseType: base}
	m.AddType(t)
	return t
}

func addMethod(t *il.TypeDef, name string, attrs il.MethodAttributes, ret *il.TypeRef, ps []*il.TypeRef, emit func(e *il.Emitter)) *il.MethodDef {
	params := make([]*il.ParamDef, len(ps))
	for i, p := range ps {
		params[i] = &il.ParamDef{Name: string(rune('a' + i)), Type: p}
	}
	m := &il.MethodDef{Name: name, Attributes: attrs, Return: ret, Params: params, Body: &il.MethodBody{}}
	emit(il.NewEmitter(m.Body))
	t.AddMethod(m)
	return m
}

func addCtor(t *il.TypeDef) {
	base := &il.MethodRef{DeclaringType: t.BaseType, Name: il.CtorName, HasThis: true, Return: il.Void()}
	addMethod(t, il.CtorName, ctorAttr, il.Void(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, base).Ret()
	})
}

func hostRef(t *testing.T, typeName, name string, nparams int) *il.MethodRef {
	t.Helper()
	ref, err := hostlib.MethodRef(typeName, name, nparams)
	if err != nil {
		t.Fatalf("host method %s::%s: %v", typeName, name, err)
	}
	return ref
}

func exceptionCtor(typeName string) *il.MethodRef {
	return &il.MethodRef{DeclaringType: hostlib.Ref(typeName), Name: il.CtorName, HasThis: true, Return: il.Void()}
}

func load(t *testing.T, m *il.Module, opts ...Option) *Instance {
	t.Helper()
	inst, err := New(opts...).Load(context.Background(), m)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return inst
}

func class(t *testing.T, inst *Instance, name string, args ...*il.TypeRef) *Class {
	t.Helper()
	cls, err := inst.Type(name, args...)
	if err != nil {
		t.Fatalf("Type(%s): %v", name, err)
	}
	return cls
}

func exceptionType(err error) string {
	var ex *Exception
	if stderrors.As(err, &ex) {
		return ex.Type
	}
	return ""
}

// calcModule builds Tests.Calc, a class of static methods.
func calcModule(t *testing.T) *il.Module {
	m := newModule()
	calc := addClass(m, "Calc", il.Object())
	i32 := il.Int32()

	addMethod(calc, "Sum", static, i32, []*il.TypeRef{i32}, func(e *il.Emitter) {
		i, acc := e.AddLocal(i32), e.AddLocal(i32)
		loop, check := e.NewLabel(), e.NewLabel()
		e.Branch(il.OpBr, check)
		e.Mark(loop)
		e.Ldloc(acc).Ldloc(i).Op(il.OpAdd).Stloc(acc)
		e.Ldloc(i).LdcI4(1).Op(il.OpAdd).Stloc(i)
		e.Mark(check)
		e.Ldloc(i).Ldarg(0).Op(il.OpClt).Branch(il.OpBrtrue, loop)
		e.Ldloc(acc).Ret()
	})
	addMethod(calc, "Div", static, i32, []*il.TypeRef{i32, i32}, func(e *il.Emitter) {
		e.Ldarg(0).Ldarg(1).Op(il.OpDiv).Ret()
	})
	addMethod(calc, "Widen", static, il.Float64(), []*il.TypeRef{i32}, func(e *il.Emitter) {
		e.Ldarg(0).Op(il.OpConvR8).LdcR8(0.5).Op(il.OpAdd).Ret()
	})
	addMethod(calc, "Guarded", static, i32, nil, func(e *il.Emitter) {
		tryStart, tryEnd, handler, done := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
		e.Mark(tryStart)
		e.Call(il.OpNewobj, exceptionCtor(hostlib.NotImplementedException)).Op(il.OpThrow)
		e.Mark(tryEnd).Mark(handler)
		e.Op(il.OpPop)
		e.Branch(il.OpLeave, done)
		e.Mark(done)
		e.LdcI4(1).Ret()
		e.Catch(hostlib.Ref(hostlib.Exception), tryStart, tryEnd, handler, done)
	})
	addMethod(calc, "Unguarded", static, i32, nil, func(e *il.Emitter) {
		tryStart, tryEnd, handler, done := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
		e.Mark(tryStart)
		e.Call(il.OpNewobj, exceptionCtor(hostlib.NotImplementedException)).Op(il.OpThrow)
		e.Mark(tryEnd).Mark(handler)
		e.Op(il.OpPop)
		e.Branch(il.OpLeave, done)
		e.Mark(done)
		e.LdcI4(1).Ret()
		e.Catch(hostlib.Ref(hostlib.InvalidCastException), tryStart, tryEnd, handler, done)
	})
	addMethod(calc, "UnboxInt", static, i32, []*il.TypeRef{il.Object()}, func(e *il.Emitter) {
		e.Ldarg(0).Type(il.OpUnboxAny, i32).Ret()
	})
	addMethod(calc, "UnboxNullable", static, il.NullableOf(i32), []*il.TypeRef{il.Object()}, func(e *il.Emitter) {
		e.Ldarg(0).Type(il.OpUnboxAny, il.NullableOf(i32)).Ret()
	})
	addMethod(calc, "StubUnbox", static, i32, []*il.TypeRef{il.Object()}, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, hostRef(t, hostlib.StubHelper, hostlib.Unbox, 1).Instantiate(i32)).Ret()
	})
	recurse := &il.MethodRef{
		DeclaringType: il.Named("", "Tests.Calc"), Name: "Recurse", Return: i32, Params: []*il.TypeRef{i32},
	}
	addMethod(calc, "Recurse", static, i32, []*il.TypeRef{i32}, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, recurse).Ret()
	})
	addMethod(calc, "Describe", static, il.String(), []*il.TypeRef{i32, il.Bool(), il.Float64()}, func(e *il.Emitter) {
		e.Ldarg(0).Type(il.OpBox, i32)
		e.Ldarg(1).Type(il.OpBox, il.Bool())
		e.Ldarg(2).Type(il.OpBox, il.Float64())
		e.Call(il.OpCall, hostRef(t, hostlib.String, "Concat", 3)).Ret()
	})
	name := &il.MethodRef{DeclaringType: il.Named("", "Tests.Calc"), Name: "Name", Return: il.String()}
	addMethod(calc, "Name", static, il.String(), nil, func(e *il.Emitter) {
		e.LdtokenMethod(name)
		e.Call(il.OpCall, hostRef(t, hostlib.MethodBase, hostlib.GetMethodFromHandle, 1))
		e.Call(il.OpCallvirt, hostRef(t, hostlib.MethodBase, "get_Name", 0)).Ret()
	})
	addMethod(calc, "Fill", static, i32, []*il.TypeRef{i32}, func(e *il.Emitter) {
		arr := e.AddLocal(il.ArrayOf(i32))
		e.Ldarg(0).Type(il.OpNewarr, i32).Stloc(arr)
		e.Ldloc(arr).LdcI4(0).LdcI4(7).Type(il.OpStelem, i32)
		e.Ldloc(arr).LdcI4(0).Type(il.OpLdelem, i32)
		e.Ldloc(arr).Op(il.OpLdlen).Op(il.OpAdd).Ret()
	})
	addCtor(calc)
	return m
}

func TestArithmeticAndBranches(t *testing.T) {
	inst := load(t, calcModule(t))
	calc := class(t, inst, "Tests.Calc")
	ctx := context.Background()

	tests := []struct {
		method string
		args   []any
		want   any
	}{
		{"Sum", []any{10}, int32(45)},
		{"Sum", []any{0}, int32(0)},
		{"Div", []any{7, 2}, int32(3)},
		{"Div", []any{-7, 2}, int32(-3)},
		{"Widen", []any{2}, 2.5},
		{"Describe", []any{1, true, 2.5}, "1True2.5"},
		{"Fill", []any{3}, int32(10)},
	}
	for _, tt := range tests {
		got, err := inst.CallStatic(ctx, calc, tt.method, tt.args...)
		if err != nil {
			t.Errorf("%s%v: %v", tt.method, tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s%v = %#v, want %#v", tt.method, tt.args, got, tt.want)
		}
	}
}

func TestExceptions(t *testing.T) {
	inst := load(t, calcModule(t))
	calc := class(t, inst, "Tests.Calc")
	ctx := context.Background()

	got, err := inst.CallStatic(ctx, calc, "Guarded")
	if err != nil || got != int32(1) {
		t.Errorf("Guarded = %v, %v", got, err)
	}

	_, err = inst.CallStatic(ctx, calc, "Unguarded")
	if !stderrors.Is(err, &Exception{Type: hostlib.NotImplementedException}) {
		t.Errorf("Unguarded error = %v", err)
	}
	var ex *Exception
	if !stderrors.As(err, &ex) || ex.Object == nil || ex.Message != hostlib.DefaultMessage(hostlib.NotImplementedException) {
		t.Errorf("exception = %+v", ex)
	}

	_, err = inst.CallStatic(ctx, calc, "Div", 1, 0)
	if exceptionType(err) != hostlib.InvalidOperationException {
		t.Errorf("Div by zero error = %v", err)
	}
	_, err = inst.CallStatic(ctx, calc, "Fill", -1)
	if exceptionType(err) != hostlib.ArgumentException {
		t.Errorf("Fill(-1) error = %v", err)
	}
	_, err = inst.CallStatic(ctx, calc, "Fill", 0)
	if exceptionType(err) != hostlib.IndexOutOfRangeException {
		t.Errorf("Fill(0) error = %v", err)
	}
}

func TestUnbox(t *testing.T) {
	inst := load(t, calcModule(t))
	calc := class(t, inst, "Tests.Calc")
	ctx := context.Background()

	tests := []struct {
		method string
		arg    any
		want   any
		exType string
	}{
		{"UnboxInt", int32(3), int32(3), ""},
		{"UnboxInt", "x", nil, hostlib.InvalidCastException},
		{"UnboxInt", nil, nil, hostlib.NullReferenceException},
		{"UnboxNullable", nil, nil, ""},
		{"UnboxNullable", int32(4), int32(4), ""},
		{"StubUnbox", nil, int32(0), ""},
		{"StubUnbox", int32(5), int32(5), ""},
		{"StubUnbox", "s", nil, hostlib.InvalidCastException},
	}
	for _, tt := range tests {
		got, err := inst.CallStatic(ctx, calc, tt.method, tt.arg)
		if tt.exType != "" {
			if exceptionType(err) != tt.exType {
				t.Errorf("%s(%v) error = %v, want %s", tt.method, tt.arg, err, tt.exType)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s(%v) = %#v, %v; want %#v", tt.method, tt.arg, got, err, tt.want)
		}
	}
}

func TestUnboxMessage(t *testing.T) {
	inst := load(t, calcModule(t))
	_, err := inst.CallStatic(context.Background(), class(t, inst, "Tests.Calc"), "UnboxInt", "x")
	var ex *Exception
	if !stderrors.As(err, &ex) {
		t.Fatalf("error = %v", err)
	}
	if want := "Unable to cast a value of type string to int32."; ex.Message != want {
		t.Errorf("message = %q, want %q", ex.Message, want)
	}
}

func TestDepthLimit(t *testing.T) {
	inst := load(t, calcModule(t), WithMaxDepth(16))
	_, err := inst.CallStatic(context.Background(), class(t, inst, "Tests.Calc"), "Recurse", 1)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindUnsupported}) {
		t.Errorf("error = %v", err)
	}
}

func TestCancellation(t *testing.T) {
	inst := load(t, calcModule(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inst.CallStatic(ctx, class(t, inst, "Tests.Calc"), "Sum", 3)
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("error = %v", err)
	}
}

func TestGetMethodFromHandle(t *testing.T) {
	inst := load(t, calcModule(t))
	got, err := inst.CallStatic(context.Background(), class(t, inst, "Tests.Calc"), "Name")
	if err != nil || got != "Name" {
		t.Errorf("Name = %v, %v", got, err)
	}
}

func TestSelectMethod(t *testing.T) {
	inst := load(t, calcModule(t))
	calc := class(t, inst, "Tests.Calc")
	_, err := inst.CallStatic(context.Background(), calc, "Sum", "ten")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindNotFound}) {
		t.Errorf("Sum(string) error = %v", err)
	}
	_, err = inst.CallStatic(context.Background(), calc, "Missing")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindNotFound}) {
		t.Errorf("Missing error = %v", err)
	}
}

// initModule builds Tests.Counter, whose type initializer counts its runs
// and re-enters the class, and Tests.Broken, whose initializer throws.
func initModule() *il.Module {
	m := newModule()
	i32 := il.Int32()

	counter := addClass(m, "Counter", il.Object())
	runs := &il.FieldDef{Name: "Runs", Type: i32, Attributes: il.FieldPublic | il.FieldStatic}
	value := &il.FieldDef{Name: "Value", Type: i32, Attributes: il.FieldPublic | il.FieldStatic}
	counter.AddField(runs)
	counter.AddField(value)
	peek := addMethod(counter, "Peek", static, i32, nil, func(e *il.Emitter) {
		e.Field(il.OpLdsfld, value.Ref()).Ret()
	})
	addMethod(counter, il.CctorName, cctor, il.Void(), nil, func(e *il.Emitter) {
		e.Field(il.OpLdsfld, runs.Ref()).LdcI4(1).Op(il.OpAdd).Field(il.OpStsfld, runs.Ref())
		e.Call(il.OpCall, peek.Ref()).Op(il.OpPop)
		e.LdcI4(5).Field(il.OpStsfld, value.Ref())
		e.Ret()
	})

	broken := addClass(m, "Broken", il.Object())
	addMethod(broken, "Get", static, i32, nil, func(e *il.Emitter) {
		e.LdcI4(1).Ret()
	})
	addMethod(broken, il.CctorName, cctor, il.Void(), nil, func(e *il.Emitter) {
		e.Call(il.OpNewobj, exceptionCtor(hostlib.NotImplementedException)).Op(il.OpThrow)
	})
	return m
}

func TestTypeInitializerRunsOnce(t *testing.T) {
	inst := load(t, initModule())
	counter := class(t, inst, "Tests.Counter")

	var wg sync.WaitGroup
	results := make([]any, 32)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = inst.CallStatic(context.Background(), counter, "Peek")
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil || results[i] != int32(5) {
			t.Errorf("call %d = %v, %v", i, results[i], errs[i])
		}
	}
	if runs, _ := counter.Static("Runs"); runs != int32(1) {
		t.Errorf("initializer ran %v times", runs)
	}
}

func TestTypeInitializerFailure(t *testing.T) {
	inst := load(t, initModule())
	broken := class(t, inst, "Tests.Broken")

	for range 2 {
		_, err := inst.CallStatic(context.Background(), broken, "Get")
		var ex *Exception
		if !stderrors.As(err, &ex) || ex.Type != hostlib.TypeInitializationException {
			t.Fatalf("error = %v", err)
		}
		if ex.Inner == nil || ex.Inner.Type != hostlib.NotImplementedException {
			t.Errorf("inner = %+v", ex.Inner)
		}
		if want := "The type initializer for 'Tests.Broken' threw an exception."; ex.Message != want {
			t.Errorf("message = %q", ex.Message)
		}
	}
}

// objectModule builds a small class hierarchy with virtual methods and a
// generic class that reflects on itself.
func objectModule(t *testing.T) *il.Module {
	m := newModule()
	str := il.String()

	animal := addClass(m, "Animal", il.Object())
	addCtor(animal)
	speak := addMethod(animal, "Speak", virtual|il.MethodNewSlot, str, nil, func(e *il.Emitter) {
		e.Ldstr("...").Ret()
	})

	dog := addClass(m, "Dog", il.Named("", "Tests.Animal"))
	addCtor(dog)
	addMethod(dog, "Speak", virtual, str, nil, func(e *il.Emitter) {
		e.Ldstr("woof").Ret()
	})
	addMethod(dog, "ToString", virtual, str, nil, func(e *il.Emitter) {
		e.Ldstr("dog").Ret()
	})

	zoo := addClass(m, "Zoo", il.Object())
	addMethod(zoo, "Talk", static, str, []*il.TypeRef{il.Named("", "Tests.Animal")}, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCallvirt, speak.Ref()).Ret()
	})
	addMethod(zoo, "Label", static, str, []*il.TypeRef{il.Object()}, func(e *il.Emitter) {
		e.Ldstr("pet:").Ldarg(0).Call(il.OpCall, hostRef(t, hostlib.String, "Concat", 2)).Ret()
	})

	box := addClass(m, "Box`1", il.Object())
	box.GenericParams = []*il.GenericParamDef{{Name: "T", Position: 0}}
	self := il.Instance(il.Named("", "Tests.Box`1"), il.TypeParam(0, "T"))
	addMethod(box, il.CtorName, ctorAttr, il.Void(), nil, func(e *il.Emitter) {
		e.Ldarg(0).Call(il.OpCall, &il.MethodRef{
			DeclaringType: il.Object(), Name: il.CtorName, HasThis: true, Return: il.Void(),
		}).Ret()
	})
	which := &il.MethodRef{DeclaringType: self, Name: "Which", HasThis: true, Return: str}
	addMethod(box, "Which", public, str, nil, func(e *il.Emitter) {
		e.LdtokenMethod(which)
		e.Call(il.OpCall, hostRef(t, hostlib.MethodBase, hostlib.GetMethodFromHandle, 1))
		e.Call(il.OpCallvirt, hostRef(t, hostlib.MethodBase, "get_Name", 0)).Ret()
	})
	addMethod(box, "Owner", public, str, nil, func(e *il.Emitter) {
		e.LdtokenMethod(which).LdtokenType(self)
		e.Call(il.OpCall, hostRef(t, hostlib.MethodBase, hostlib.GetMethodFromHandle, 2))
		e.Call(il.OpCallvirt, hostRef(t, hostlib.MethodBase, "get_DeclaringType", 0)).Ret()
	})
	return m
}

func TestVirtualDispatch(t *testing.T) {
	inst := load(t, objectModule(t))
	ctx := context.Background()
	dog, err := inst.New(ctx, class(t, inst, "Tests.Dog"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	animal, err := inst.New(ctx, class(t, inst, "Tests.Animal"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	zoo := class(t, inst, "Tests.Zoo")

	tests := []struct {
		method string
		arg    any
		want   string
	}{
		{"Talk", dog, "woof"},
		{"Talk", animal, "..."},
		{"Label", dog, "pet:dog"},
		{"Label", animal, "pet:Tests.Animal"},
		{"Label", nil, "pet:"},
	}
	for _, tt := range tests {
		got, err := inst.CallStatic(ctx, zoo, tt.method, tt.arg)
		if err != nil || got != tt.want {
			t.Errorf("%s(%v) = %v, %v; want %q", tt.method, tt.arg, got, err, tt.want)
		}
	}

	if got, err := inst.Call(ctx, dog, "Speak"); err != nil || got != "woof" {
		t.Errorf("Call Speak = %v, %v", got, err)
	}
	if _, err := inst.CallStatic(ctx, zoo, "Talk", nil); exceptionType(err) != hostlib.NullReferenceException {
		t.Errorf("Talk(nil) error = %v", err)
	}
}

func TestGenericReflection(t *testing.T) {
	inst := load(t, objectModule(t))
	ctx := context.Background()
	box := class(t, inst, "Tests.Box`1", il.Int32())
	if box.Name != "Tests.Box`1<int32>" {
		t.Errorf("Name = %q", box.Name)
	}
	obj, err := inst.New(ctx, box)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := inst.Call(ctx, obj, "Which"); exceptionType(err) != hostlib.ArgumentException {
		t.Errorf("Which error = %v", err)
	}
	got, err := inst.Call(ctx, obj, "Owner")
	if err != nil || got != "Tests.Box`1<int32>" {
		t.Errorf("Owner = %v, %v", got, err)
	}

	other := class(t, inst, "Tests.Box`1", il.String())
	if other == box {
		t.Error("closed instantiations share a class")
	}
	if again := class(t, inst, "Tests.Box`1", il.Int32()); again != box {
		t.Error("class not cached")
	}
}

func TestLoadErrors(t *testing.T) {
	foreign := newModule()
	foreign.References = append(foreign.References, "other.lib")

	native := newModule()
	c := addClass(native, "Native", il.Object())
	c.AddMethod(&il.MethodDef{Name: "Ext", Attributes: static | il.MethodNative, Return: il.Void()})

	invalid := newModule()
	bad := addClass(invalid, "Bad", il.Object())
	addMethod(bad, "Run", static, il.Int32(), nil, func(e *il.Emitter) {
		e.LdcI4(1)
	})

	tests := []struct {
		name string
		m    *il.Module
		kind errors.Kind
	}{
		{"foreign reference", foreign, errors.KindInvalidData},
		{"native method", native, errors.KindUnsupported},
		{"invalid body", invalid, errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Load(context.Background(), tt.m)
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: tt.kind}) {
				t.Errorf("error = %v", err)
			}
		})
	}
}
