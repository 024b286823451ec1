package main

import (
	"reflect"
	"testing"

	"github.com/wippyai/weave/il"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		typ  *il.TypeRef
		want any
	}{
		{"42", il.Int32(), int32(42)},
		{"-7", il.Int64(), int64(-7)},
		{"2.5", il.Float32(), float32(2.5)},
		{"2.5", il.Float64(), 2.5},
		{"true", il.Bool(), true},
		{"hello", il.String(), "hello"},
		{`"null"`, il.String(), "null"},
		{`"a,b"`, il.String(), "a,b"},
		{"null", il.String(), nil},
		{"null", il.NullableOf(il.Int32()), nil},
		{"3", il.NullableOf(il.Int32()), int32(3)},
		{"x", il.Object(), "x"},
		{"null", il.Named("Tests", "Tests.Thing"), nil},
	}
	for _, tt := range tests {
		got, err := parseArg(tt.in, tt.typ)
		if err != nil {
			t.Errorf("parseArg(%q, %s): %v", tt.in, tt.typ, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseArg(%q, %s) = %#v, want %#v", tt.in, tt.typ, got, tt.want)
		}
	}
}

func TestParseArgErrors(t *testing.T) {
	tests := []struct {
		in  string
		typ *il.TypeRef
	}{
		{"null", il.Int32()},
		{"x", il.Int32()},
		{"99999999999", il.Int32()},
		{"maybe", il.Bool()},
		{"x", il.Named("Tests", "Tests.Thing")},
		{"x", il.ArrayOf(il.Int32())},
	}
	for _, tt := range tests {
		if _, err := parseArg(tt.in, tt.typ); err == nil {
			t.Errorf("parseArg(%q, %s) succeeded", tt.in, tt.typ)
		}
	}
}

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"1", "s"}, []*il.TypeRef{il.Int32(), il.String()})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []any{int32(1), "s"}) {
		t.Errorf("got %#v", got)
	}
	if _, err := parseArgs([]string{"1"}, nil); err == nil {
		t.Error("count mismatch accepted")
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"1", []string{"1"}},
		{"1, 2.5", []string{"1", "2.5"}},
		{`"a,b",c`, []string{`"a,b"`, "c"}},
		{`"say \"hi\", ok",2`, []string{`"say \"hi\", ok"`, "2"}},
		{"a,", []string{"a", ""}},
	}
	for _, tt := range tests {
		if got := splitArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTypeArgs(t *testing.T) {
	got, err := parseTypeArgs("int32, string, float?, Tests.Thing[]", "Tests")
	if err != nil {
		t.Fatal(err)
	}
	want := []*il.TypeRef{
		il.Int32(),
		il.String(),
		il.NullableOf(il.Float32()),
		il.ArrayOf(il.Named("Tests", "Tests.Thing")),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d types", len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("type %d = %s, want %s", i, got[i], want[i])
		}
	}

	if got, err := parseTypeArgs(" ", "Tests"); err != nil || got != nil {
		t.Errorf("empty list = %v, %v", got, err)
	}
	for _, bad := range []string{"int32,", "string?"} {
		if _, err := parseTypeArgs(bad, "Tests"); err == nil {
			t.Errorf("parseTypeArgs(%q) succeeded", bad)
		}
	}
}
