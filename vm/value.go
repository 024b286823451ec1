package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

// Object is an instance of a class.
type Object struct {
	Class  *Class
	fields []any
	// Native holds host state of library types: an invocation, an invoker
	// or the method a MethodInfo describes.
	Native any
}

// Field returns the value of the named instance field, searching the
// class chain from the most derived type.
func (o *Object) Field(name string) (any, bool) {
	fd, slot := o.Class.fieldSlot(name)
	if fd == nil {
		return nil, false
	}
	return o.fields[slot], true
}

// SetField stores v in the named instance field.
func (o *Object) SetField(name string, v any) bool {
	fd, slot := o.Class.fieldSlot(name)
	if fd == nil {
		return false
	}
	o.fields[slot] = v
	return true
}

func (o *Object) String() string { return o.Class.Name }

// Array is a single-dimension array. Every reference to the array shares
// Items.
type Array struct {
	Elem  *il.TypeRef
	Items []any
}

// NewArray returns an array of n default elements.
func NewArray(elem *il.TypeRef, n int) *Array {
	a := &Array{Elem: elem, Items: make([]any, n)}
	z := zero(elem)
	if z != nil {
		for i := range a.Items {
			a.Items[i] = z
		}
	}
	return a
}

func (a *Array) String() string { return displayName(a.Elem) + "[]" }

// MethodHandle is the value of ldtoken on a method.
type MethodHandle struct {
	Def *il.MethodDef
}

// TypeHandle is the value of ldtoken on a type.
type TypeHandle struct {
	Class *Class
}

// FuncPtr is the value of ldftn.
type FuncPtr struct {
	Method *Method
}

// zero returns the default value of a closed type.
func zero(t *il.TypeRef) any {
	switch t.Kind {
	case il.KindBool:
		return false
	case il.KindInt32:
		return int32(0)
	case il.KindInt64:
		return int64(0)
	case il.KindFloat32:
		return float32(0)
	case il.KindFloat64:
		return float64(0)
	}
	return nil
}

// isValue reports whether values of the closed type can never be nil.
func isValue(t *il.TypeRef) bool {
	switch t.Kind {
	case il.KindBool, il.KindInt32, il.KindInt64, il.KindFloat32, il.KindFloat64:
		return true
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int32:
		return x != 0
	case int64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	}
	return true
}

// isInstance reports whether the non-nil value v is an instance of the
// closed type t.
func (in *Instance) isInstance(v any, t *il.TypeRef) (bool, error) {
	if v == nil {
		return false, nil
	}
	switch t.Kind {
	case il.KindObject, il.KindTypeParam, il.KindMethodParam:
		return true, nil
	case il.KindNullable:
		return in.isInstance(v, t.Elem)
	case il.KindBool:
		_, ok := v.(bool)
		return ok, nil
	case il.KindInt32:
		_, ok := v.(int32)
		return ok, nil
	case il.KindInt64:
		_, ok := v.(int64)
		return ok, nil
	case il.KindFloat32:
		_, ok := v.(float32)
		return ok, nil
	case il.KindFloat64:
		_, ok := v.(float64)
		return ok, nil
	case il.KindString:
		_, ok := v.(string)
		return ok, nil
	case il.KindIntPtr:
		_, ok := v.(*FuncPtr)
		return ok, nil
	case il.KindArray:
		a, ok := v.(*Array)
		if !ok {
			return false, nil
		}
		if t.Elem.Kind == il.KindObject {
			return !isValue(a.Elem), nil
		}
		return in.typeKey(a.Elem) == in.typeKey(t.Elem), nil
	case il.KindNamed, il.KindGenericInst:
		cls, err := in.class(t)
		if err != nil {
			return false, err
		}
		switch x := v.(type) {
		case *Object:
			return x.Class.assignableTo(cls), nil
		case *MethodHandle:
			return cls.is(hostlib.RuntimeMethodHandle), nil
		case *TypeHandle:
			return cls.is(hostlib.RuntimeTypeHandle), nil
		case string:
			return cls.is(hostlib.Object) || cls.is(hostlib.String), nil
		}
		return cls.is(hostlib.Object), nil
	}
	return false, nil
}

// displayName renders a type without scopes, as used in method
// descriptors and class names.
func displayName(t *il.TypeRef) string {
	var b strings.Builder
	writeType(&b, t, "", false)
	return b.String()
}

// typeKey is the canonical name of a closed type. Types of the main module
// are keyed without scope, whichever way the reference spelled it.
func (in *Instance) typeKey(t *il.TypeRef) string {
	var b strings.Builder
	writeType(&b, t, in.module.Scope, true)
	return b.String()
}

func writeType(b *strings.Builder, t *il.TypeRef, mainScope string, qualified bool) {
	switch t.Kind {
	case il.KindNamed, il.KindGenericInst:
		if qualified && t.Scope != "" && t.Scope != mainScope {
			b.WriteByte('[')
			b.WriteString(t.Scope)
			b.WriteByte(']')
		}
		b.WriteString(t.Name)
		if t.Kind == il.KindGenericInst {
			b.WriteByte('<')
			for i, a := range t.Args {
				if i > 0 {
					b.WriteByte(',')
				}
				writeType(b, a, mainScope, qualified)
			}
			b.WriteByte('>')
		}
	case il.KindArray:
		writeType(b, t.Elem, mainScope, qualified)
		b.WriteString("[]")
	case il.KindNullable:
		writeType(b, t.Elem, mainScope, qualified)
		b.WriteByte('?')
	case il.KindTypeParam:
		b.WriteByte('!')
		b.WriteString(strconv.Itoa(t.Position))
	case il.KindMethodParam:
		b.WriteString("!!")
		b.WriteString(strconv.Itoa(t.Position))
	default:
		b.WriteString(t.Kind.String())
	}
}

// formatValue renders a value the way String.Concat does; nil is empty.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case *Object:
		return x.Class.Name
	case *Array:
		return x.String()
	case *MethodHandle:
		return hostlib.RuntimeMethodHandle
	case *TypeHandle:
		return hostlib.RuntimeTypeHandle
	case *FuncPtr:
		return x.Method.String()
	}
	return ""
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
