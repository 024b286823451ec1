package generic

import (
	"testing"

	"github.com/wippyai/weave/il"
)

func genericType() *il.TypeDef {
	m := &il.Module{Name: "test"}
	t := &il.TypeDef{
		Namespace: "Tests",
		Name:      "Pair`2",
		GenericParams: []*il.GenericParamDef{
			{Name: "A", Position: 0},
			{Name: "B", Position: 1},
		},
	}
	m.AddType(t)
	t.AddField(&il.FieldDef{Name: "first", Type: il.TypeParam(0, "A")})
	t.AddMethod(&il.MethodDef{
		Name:   "Swap",
		Return: il.TypeParam(1, "B"),
		Params: []*il.ParamDef{{Name: "a", Type: il.TypeParam(0, "A")}},
		Body:   &il.MethodBody{},
	})
	return t
}

func TestSelfInstance(t *testing.T) {
	tests := []struct {
		name string
		typ  func() *il.TypeDef
		want string
	}{
		{"generic", genericType, "Tests.Pair`2<!0,!1>"},
		{"plain", func() *il.TypeDef {
			m := &il.Module{}
			td := &il.TypeDef{Namespace: "Tests", Name: "Plain"}
			m.AddType(td)
			return td
		}, "Tests.Plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelfInstance(tt.typ()).String(); got != tt.want {
				t.Errorf("SelfInstance = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldAndMethod(t *testing.T) {
	typ := genericType()

	f := Field(typ.Field("first"))
	if f.DeclaringType.Kind != il.KindGenericInst {
		t.Fatalf("field declaring type kind = %v", f.DeclaringType.Kind)
	}
	if got := f.String(); got != "!0 Tests.Pair`2<!0,!1>::first" {
		t.Errorf("field ref = %q", got)
	}

	m := Method(typ.Method("Swap"))
	if got := m.String(); got != "!1 Tests.Pair`2<!0,!1>::Swap(!0)" {
		t.Errorf("method ref = %q", got)
	}
	if !typ.Method("Swap").Matches(m) {
		t.Error("rebound ref no longer matches its definition")
	}

	closed := m.DeclaringType.Subst([]*il.TypeRef{il.Int32(), il.String()}, nil)
	if got := closed.String(); got != "Tests.Pair`2<int32,string>" {
		t.Errorf("closed = %q", got)
	}
}

func TestMirrorParams(t *testing.T) {
	typ := genericType()
	mirrored := MirrorParams(typ)
	if len(mirrored) != 2 {
		t.Fatalf("got %d params", len(mirrored))
	}
	for i, gp := range mirrored {
		if gp == typ.GenericParams[i] {
			t.Errorf("param %d shares storage with the source", i)
		}
		if gp.Position != i || gp.Name != typ.GenericParams[i].Name {
			t.Errorf("param %d = %+v", i, gp)
		}
	}

	m := &il.Module{}
	plain := &il.TypeDef{Name: "Plain"}
	m.AddType(plain)
	if MirrorParams(plain) != nil {
		t.Error("plain type mirrored parameters")
	}
}

func TestRebind(t *testing.T) {
	typ := genericType()
	open := typ.Method("Swap").Ref()

	bound := Rebind(open, typ)
	if bound == open {
		t.Fatal("open ref was not rebound")
	}
	if bound.DeclaringType.Kind != il.KindGenericInst || len(bound.DeclaringType.Args) != 2 {
		t.Errorf("bound declaring type = %s", bound.DeclaringType)
	}
	if open.DeclaringType.Kind != il.KindNamed {
		t.Error("Rebind mutated its input")
	}
	if Rebind(bound, typ) != bound {
		t.Error("already-closed ref was rebound")
	}

	other := &il.MethodRef{DeclaringType: il.Named("", "Tests.Other"), Name: "X", Return: il.Void()}
	if Rebind(other, typ) != other {
		t.Error("ref into another type was rebound")
	}
}
