package il

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	weaveerrors "github.com/wippyai/weave/errors"
)

func sampleModule() *Module {
	m := &Module{
		Name:       "Sample",
		MVID:       uuid.MustParse("6f1c1d2a-93b0-4c1e-8a4f-27b6d3a1e0c5"),
		References: []string{CoreScope},
	}

	exc := Named(CoreScope, "System.Exception")
	attrCtor := &MethodRef{
		DeclaringType: Named("", "Sample.MarkAttribute"),
		Name:          CtorName,
		HasThis:       true,
		Return:        Void(),
	}

	box := &TypeDef{
		Namespace:     "Sample",
		Name:          "Box`1",
		Attributes:    TypePublic,
		BaseType:      Object(),
		GenericParams: []*GenericParamDef{{Name: "T", Position: 0}},
	}
	m.AddType(box)
	box.AddField(&FieldDef{Name: "value", Type: TypeParam(0, "T"), Attributes: FieldPrivate})

	get := &MethodDef{
		Name:       "Get",
		Attributes: MethodPublic | MethodHideBySig,
		Return:     TypeParam(0, "T"),
		CustomAttributes: []*CustomAttribute{{
			Constructor: attrCtor,
			Args:        []any{"label", int64(7)},
			Named: []NamedArg{
				{Name: "Order", Kind: NamedField, Type: Int32(), Value: int32(3)},
				{Name: "Enabled", Kind: NamedProperty, Type: Bool(), Value: true},
				{Name: "Ratio", Kind: NamedField, Type: Float64(), Value: 0.5},
			},
		}},
		Body: &MethodBody{},
	}
	e := NewEmitter(get.Body)
	ret := e.NewLabel()
	tryStart, tryEnd, hStart, hEnd := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
	result := e.AddLocal(TypeParam(0, "T"))
	e.Mark(tryStart)
	e.Ldarg(0).Field(OpLdfld, &FieldRef{
		DeclaringType: Instance(box.Ref(), TypeParam(0, "T")),
		Name:          "value",
		Type:          TypeParam(0, "T"),
	}).Stloc(result)
	e.Branch(OpLeave, ret)
	e.Mark(tryEnd).Mark(hStart)
	e.Op(OpPop).Ldstr("boom").Call(OpNewobj, &MethodRef{
		DeclaringType: exc, Name: CtorName, HasThis: true, Return: Void(), Params: []*TypeRef{String()},
	}).Op(OpThrow)
	e.Mark(hEnd).Mark(ret)
	e.Ldloc(result).Ret()
	e.Catch(exc, tryStart, tryEnd, hStart, hEnd)
	get.Body.InitLocals = true
	box.AddMethod(get)

	nested := &TypeDef{
		Name:          "Inner",
		Attributes:    TypeNestedPrivate,
		BaseType:      Object(),
		GenericParams: []*GenericParamDef{{Name: "T", Position: 0}},
	}
	box.AddNested(nested)
	static := &MethodDef{
		Name:       "Make",
		Attributes: MethodPublic | MethodStatic,
		Return:     ArrayOf(NullableOf(Int32())),
		Params:     []*ParamDef{{Name: "n", Type: Int32()}},
		Body:       &MethodBody{},
	}
	NewEmitter(static.Body).
		LdtokenType(Instance(box.Ref(), TypeParam(0, "T"))).Op(OpPop).
		LdtokenMethod(get.Ref()).Op(OpPop).
		LdcI8(-9).Op(OpPop).
		LdcR4(1.5).Op(OpPop).
		LdcR8(2.5).Op(OpPop).
		Ldarg(0).Type(OpNewarr, NullableOf(Int32())).Ret()
	nested.AddMethod(static)

	mark := &TypeDef{
		Namespace:  "Sample",
		Name:       "MarkAttribute",
		Attributes: TypePublic,
		BaseType:   Named(CoreScope, "System.Attribute"),
	}
	m.AddType(mark)
	mark.AddMethod(&MethodDef{
		Name:       CtorName,
		Attributes: MethodPublic | MethodSpecialName | MethodRTSpecialName,
		Return:     Void(),
		Body:       &MethodBody{Instructions: []Instruction{{Opcode: OpRet}}},
	})
	return m
}

func TestRoundTrip(t *testing.T) {
	m := sampleModule()
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parsed, err := ParseModuleValidate(data)
	if err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}
	if parsed.Name != "Sample" || parsed.MVID != m.MVID {
		t.Errorf("header = %s %s", parsed.Name, parsed.MVID)
	}
	if len(parsed.References) != 1 || parsed.References[0] != CoreScope {
		t.Errorf("references = %v", parsed.References)
	}

	box := parsed.FindType("Sample.Box`1")
	if box == nil {
		t.Fatal("Box`1 not found")
	}
	inner := parsed.FindType("Sample.Box`1/Inner")
	if inner == nil || inner.DeclaringType != box || inner.Module != parsed {
		t.Fatal("nested type not linked")
	}

	get := box.Method("Get")
	if get == nil || get.DeclaringType != box {
		t.Fatal("Get not linked")
	}
	attr := get.CustomAttributes[0]
	if attr.Args[0] != "label" || attr.Args[1] != int64(7) {
		t.Errorf("args = %#v", attr.Args)
	}
	if v, ok := attr.NamedValue("Order"); !ok || v != int32(3) {
		t.Errorf("Order = %#v", v)
	}
	if v, _ := attr.NamedValue("Enabled"); v != true {
		t.Errorf("Enabled = %#v", v)
	}
	if attr.Named[1].Kind != NamedProperty {
		t.Error("named kind lost")
	}
	if v, _ := attr.NamedValue("Ratio"); v != 0.5 {
		t.Errorf("Ratio = %#v", v)
	}

	h := get.Body.Handlers[0]
	orig := m.FindType("Sample.Box`1").Method("Get").Body.Handlers[0]
	if h.TryStart != orig.TryStart || h.HandlerEnd != orig.HandlerEnd || !h.CatchType.Equal(orig.CatchType) {
		t.Errorf("handler = %+v, want %+v", h, orig)
	}

	again, err := parsed.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("encoding is not stable across a round trip")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := ParseModule([]byte{1, 2, 3, 4, 1, 0, 0, 0}); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("bad magic: %v", err)
	}
	if _, err := ParseModule([]byte{0, 'w', 'i', 'l', 9, 0, 0, 0}); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("bad version: %v", err)
	}
	if _, err := ParseModule([]byte{0, 'w', 'i', 'l', 1, 0, 0, 0}); err == nil {
		t.Error("missing header should fail")
	}

	data, err := sampleModule().Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{9, len(data) / 2, len(data) - 1} {
		if _, err := ParseModule(data[:n]); err == nil {
			t.Errorf("truncated at %d: expected error", n)
		}
	}
}

func TestEncodeRejectsBadImmediate(t *testing.T) {
	m := &Module{Name: "Bad"}
	typ := &TypeDef{Name: "T", BaseType: Object()}
	m.AddType(typ)
	typ.AddMethod(&MethodDef{
		Name: "M",
		Body: &MethodBody{Instructions: []Instruction{{Opcode: OpLdcI4, Imm: StringImm{"x"}}, {Opcode: OpRet}}},
	})
	if _, err := m.Encode(); err == nil {
		t.Error("expected immediate mismatch error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Module)
		want   string
	}{
		{
			name: "branch out of range",
			mutate: func(m *Module) {
				body := m.FindType("Sample.MarkAttribute").Method(CtorName).Body
				body.Instructions = []Instruction{{Opcode: OpBr, Imm: BranchImm{Target: 5}}}
			},
			want: "branch target",
		},
		{
			name: "missing terminator",
			mutate: func(m *Module) {
				body := m.FindType("Sample.MarkAttribute").Method(CtorName).Body
				body.Instructions = []Instruction{{Opcode: OpNop}}
			},
			want: "terminator",
		},
		{
			name: "local out of range",
			mutate: func(m *Module) {
				body := m.FindType("Sample.MarkAttribute").Method(CtorName).Body
				body.Instructions = []Instruction{{Opcode: OpLdloc, Imm: VarImm{0}}, {Opcode: OpRet}}
			},
			want: "ldloc index",
		},
		{
			name: "argument out of range",
			mutate: func(m *Module) {
				body := m.FindType("Sample.MarkAttribute").Method(CtorName).Body
				body.Instructions = []Instruction{{Opcode: OpLdarg, Imm: VarImm{1}}, {Opcode: OpRet}}
			},
			want: "ldarg index",
		},
		{
			name: "type parameter out of range",
			mutate: func(m *Module) {
				mark := m.FindType("Sample.MarkAttribute")
				mark.AddField(&FieldDef{Name: "x", Type: TypeParam(0, "T")})
			},
			want: "type parameter !0",
		},
		{
			name: "duplicate method",
			mutate: func(m *Module) {
				mark := m.FindType("Sample.MarkAttribute")
				mark.AddMethod(mark.Method(CtorName).Clone())
			},
			want: "duplicate method",
		},
		{
			name: "native with body",
			mutate: func(m *Module) {
				mark := m.FindType("Sample.MarkAttribute")
				mark.Method(CtorName).Attributes |= MethodNative
			},
			want: "has a body",
		},
		{
			name: "handler region",
			mutate: func(m *Module) {
				body := m.FindType("Sample.Box`1").Method("Get").Body
				body.Handlers[0].HandlerEnd = 100
			},
			want: "handler 0",
		},
		{
			name: "generic parameter positions",
			mutate: func(m *Module) {
				m.FindType("Sample.Box`1").GenericParams[0].Position = 1
			},
			want: "position",
		},
		{
			name: "duplicate type",
			mutate: func(m *Module) {
				m.AddType(&TypeDef{Namespace: "Sample", Name: "MarkAttribute"})
			},
			want: "duplicate type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			err := m.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
			if !errors.Is(err, &weaveerrors.Error{Phase: weaveerrors.PhaseValidate, Kind: weaveerrors.KindInvalidData}) {
				t.Errorf("error %v is not a validate/invalid_data error", err)
			}
		})
	}
}

func TestClone(t *testing.T) {
	m := sampleModule()
	get := m.FindType("Sample.Box`1").Method("Get")
	c := get.Clone()
	if c.DeclaringType != nil {
		t.Error("clone should be detached")
	}
	c.Body.Instructions[0] = Instruction{Opcode: OpNop}
	c.Params = append(c.Params, &ParamDef{Name: "extra", Type: Int32()})
	c.CustomAttributes = nil
	if get.Body.Instructions[0].Opcode == OpNop || len(get.Params) != 0 || len(get.CustomAttributes) != 1 {
		t.Error("mutating the clone changed the original")
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleModule().Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		".class Sample.Box`1<T>",
		".class Sample.Box`1/Inner<T>",
		"ldfld !0 Sample.Box`1<!0>::value",
		"leave IL_",
		".try IL_0000",
		"[Sample.MarkAttribute(\"label\", 7, Order = 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump does not contain %q:\n%s", want, out)
		}
	}
}

func TestResolver(t *testing.T) {
	m := sampleModule()
	core := &Module{Name: "core", Scope: CoreScope}
	obj := &TypeDef{Namespace: "System", Name: "Object"}
	core.AddType(obj)
	attr := &TypeDef{Namespace: "System", Name: "Attribute", BaseType: Object()}
	core.AddType(attr)

	r := NewResolver(m, core)
	def, err := r.ResolveType(Object())
	if err != nil || def != obj {
		t.Fatalf("ResolveType(object) = %v, %v", def, err)
	}
	box, err := r.ResolveType(Instance(Named("", "Sample.Box`1"), Int32()))
	if err != nil || box.Name != "Box`1" {
		t.Fatalf("ResolveType(instance) = %v, %v", box, err)
	}

	get := box.Method("Get")
	ref := get.Ref()
	ref.DeclaringType = Instance(ref.DeclaringType, Int32())
	got, err := r.ResolveMethod(ref)
	if err != nil || got != get {
		t.Fatalf("ResolveMethod = %v, %v", got, err)
	}

	f, err := r.ResolveField(&FieldRef{DeclaringType: box.Ref(), Name: "value"})
	if err != nil || f.Name != "value" {
		t.Fatalf("ResolveField = %v, %v", f, err)
	}

	ok, err := r.DerivesFrom(m.FindType("Sample.MarkAttribute"), CoreScope, "System.Attribute")
	if err != nil || !ok {
		t.Errorf("DerivesFrom = %v, %v", ok, err)
	}
	ok, err = r.DerivesFrom(box, CoreScope, "System.Attribute")
	if err != nil || ok {
		t.Errorf("Box DerivesFrom Attribute = %v, %v", ok, err)
	}

	_, err = r.ResolveType(Named("", "Sample.Missing"))
	if !errors.Is(err, &weaveerrors.Error{Phase: weaveerrors.PhaseResolve, Kind: weaveerrors.KindResolution}) {
		t.Errorf("missing type error = %v", err)
	}
	if _, err := r.ResolveType(Int32()); err == nil {
		t.Error("int32 should have no definition")
	}
}

func TestEmitterForwardBranch(t *testing.T) {
	body := &MethodBody{}
	e := NewEmitter(body)
	end := e.NewLabel()
	e.Ldarg(0).Branch(OpBrfalse, end).LdcI4(1).Ret()
	e.Mark(end)
	e.LdcI4(0).Ret()
	if target, _ := body.Instructions[1].Target(); target != 4 {
		t.Errorf("forward branch target = %d, want 4", target)
	}
	back := e.NewLabel()
	e.Mark(back)
	e.Branch(OpBr, back)
	if target, _ := body.Instructions[6].Target(); target != 6 {
		t.Errorf("backward branch target = %d, want 6", target)
	}
}
