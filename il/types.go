package il

import (
	"strings"

	"github.com/google/uuid"
)

// Module is a parsed IL module: a named set of type definitions.
type Module struct {
	Name string
	// Scope is the name other modules use to reference this one.
	// Empty means the module is the main module being edited.
	Scope string
	MVID  uuid.UUID
	// References lists the library scopes this module imports from.
	References []string
	Types      []*TypeDef
}

// TypeAttributes holds type definition flags.
type TypeAttributes uint32

const (
	TypePublic        TypeAttributes = 1 << 0
	TypeNestedPublic  TypeAttributes = 1 << 1
	TypeNestedPrivate TypeAttributes = 1 << 2
	TypeSealed        TypeAttributes = 1 << 3
	TypeAbstract      TypeAttributes = 1 << 4
	TypeInterface     TypeAttributes = 1 << 5
	TypeValueType     TypeAttributes = 1 << 6
	TypeBeforeInit    TypeAttributes = 1 << 7
)

// FieldAttributes holds field definition flags.
type FieldAttributes uint32

const (
	FieldPublic   FieldAttributes = 1 << 0
	FieldPrivate  FieldAttributes = 1 << 1
	FieldStatic   FieldAttributes = 1 << 2
	FieldInitOnly FieldAttributes = 1 << 3
)

// MethodAttributes holds method definition flags.
type MethodAttributes uint32

const (
	MethodPublic        MethodAttributes = 1 << 0
	MethodPrivate       MethodAttributes = 1 << 1
	MethodStatic        MethodAttributes = 1 << 2
	MethodVirtual       MethodAttributes = 1 << 3
	MethodAbstract      MethodAttributes = 1 << 4
	MethodHideBySig     MethodAttributes = 1 << 5
	MethodSpecialName   MethodAttributes = 1 << 6
	MethodRTSpecialName MethodAttributes = 1 << 7
	MethodNewSlot       MethodAttributes = 1 << 8
	MethodFinal         MethodAttributes = 1 << 9
	// MethodNative marks a method implemented by the host runtime.
	MethodNative MethodAttributes = 1 << 10

	methodAccessMask = MethodPublic | MethodPrivate
)

// Special method names.
const (
	CtorName  = ".ctor"
	CctorName = ".cctor"
)

// GenericParamDef declares a generic parameter on a type or method.
type GenericParamDef struct {
	Name     string
	Position int
}

// TypeDef is a type definition.
type TypeDef struct {
	Namespace        string
	Name             string
	Attributes       TypeAttributes
	BaseType         *TypeRef
	Interfaces       []*TypeRef
	GenericParams    []*GenericParamDef
	Fields           []*FieldDef
	Methods          []*MethodDef
	Nested           []*TypeDef
	CustomAttributes []*CustomAttribute

	// DeclaringType is set for nested types. Not serialized; rebuilt on decode.
	DeclaringType *TypeDef
	// Module is the owning module. Not serialized; rebuilt on decode.
	Module *Module
}

// FieldDef is a field definition.
type FieldDef struct {
	Name          string
	Type          *TypeRef
	Attributes    FieldAttributes
	DeclaringType *TypeDef
}

// ParamDef is a method parameter.
type ParamDef struct {
	Name string
	Type *TypeRef
}

// MethodDef is a method definition.
type MethodDef struct {
	Name             string
	Attributes       MethodAttributes
	Params           []*ParamDef
	Return           *TypeRef
	GenericParams    []*GenericParamDef
	Overrides        []*MethodRef
	CustomAttributes []*CustomAttribute
	Body             *MethodBody

	DeclaringType *TypeDef
}

// MethodBody holds the executable part of a method.
type MethodBody struct {
	Locals       []*TypeRef
	InitLocals   bool
	Instructions []Instruction
	Handlers     []ExceptionHandler
}

// ExceptionHandler is a typed catch region. Offsets are instruction indices;
// TryEnd and HandlerEnd are exclusive.
type ExceptionHandler struct {
	CatchType    *TypeRef
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
}

// IsStatic reports whether the method has no receiver.
func (m *MethodDef) IsStatic() bool { return m.Attributes&MethodStatic != 0 }

// HasThis reports whether the method takes an implicit receiver.
func (m *MethodDef) HasThis() bool { return !m.IsStatic() }

// IsVirtual reports whether the method participates in virtual dispatch.
func (m *MethodDef) IsVirtual() bool { return m.Attributes&MethodVirtual != 0 }

// IsNative reports whether the host runtime implements the method.
func (m *MethodDef) IsNative() bool { return m.Attributes&MethodNative != 0 }

// IsAbstract reports whether the method has no implementation.
func (m *MethodDef) IsAbstract() bool { return m.Attributes&MethodAbstract != 0 }

// IsConstructor reports whether the method is an instance or type initializer.
func (m *MethodDef) IsConstructor() bool { return m.Name == CtorName || m.Name == CctorName }

// ArgCount returns the number of argument slots, including the receiver.
func (m *MethodDef) ArgCount() int {
	if m.HasThis() {
		return len(m.Params) + 1
	}
	return len(m.Params)
}

// ReturnsVoid reports whether the method returns nothing.
func (m *MethodDef) ReturnsVoid() bool {
	return m.Return == nil || m.Return.Kind == KindVoid
}

// SetAccess replaces the access flags of the method.
func (m *MethodDef) SetAccess(access MethodAttributes) {
	m.Attributes = m.Attributes&^methodAccessMask | access&methodAccessMask
}

// ParamTypes returns the parameter types in declaration order.
func (m *MethodDef) ParamTypes() []*TypeRef {
	out := make([]*TypeRef, len(m.Params))
	for i, p := range m.Params {
		out[i] = p.Type
	}
	return out
}

// IsStatic reports whether the field has per-type storage.
func (f *FieldDef) IsStatic() bool { return f.Attributes&FieldStatic != 0 }

// FullName returns the namespace-qualified name, using '/' between nesting levels.
func (t *TypeDef) FullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Scope returns the scope of the owning module.
func (t *TypeDef) Scope() string {
	if t.Module == nil {
		return ""
	}
	return t.Module.Scope
}

// HasGenericParams reports whether the type declares generic parameters.
func (t *TypeDef) HasGenericParams() bool { return len(t.GenericParams) > 0 }

// IsInterface reports whether the type is an interface.
func (t *TypeDef) IsInterface() bool { return t.Attributes&TypeInterface != 0 }

// IsValueType reports whether the type has value semantics.
func (t *TypeDef) IsValueType() bool { return t.Attributes&TypeValueType != 0 }

// AddMethod appends a method and sets its declaring type.
func (t *TypeDef) AddMethod(m *MethodDef) {
	m.DeclaringType = t
	t.Methods = append(t.Methods, m)
}

// AddField appends a field and sets its declaring type.
func (t *TypeDef) AddField(f *FieldDef) {
	f.DeclaringType = t
	t.Fields = append(t.Fields, f)
}

// AddNested appends a nested type and sets its declaring type and module.
func (t *TypeDef) AddNested(n *TypeDef) {
	n.DeclaringType = t
	n.Module = t.Module
	t.Nested = append(t.Nested, n)
}

// Method returns the first method with the given name, or nil.
func (t *TypeDef) Method(name string) *MethodDef {
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Field returns the field with the given name, or nil.
func (t *TypeDef) Field(name string) *FieldDef {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// NestedType returns the nested type with the given simple name, or nil.
func (t *TypeDef) NestedType(name string) *TypeDef {
	for _, n := range t.Nested {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// AddType appends a top-level type and sets its module.
func (m *Module) AddType(t *TypeDef) {
	t.Module = m
	t.DeclaringType = nil
	m.Types = append(m.Types, t)
}

// AllTypes returns every type in the module, nested types following their
// declaring type (depth-first, declaration order).
func (m *Module) AllTypes() []*TypeDef {
	var out []*TypeDef
	var walk func(ts []*TypeDef)
	walk = func(ts []*TypeDef) {
		for _, t := range ts {
			out = append(out, t)
			walk(t.Nested)
		}
	}
	walk(m.Types)
	return out
}

// FindType looks up a type by full name ("Ns.Outer/Inner").
func (m *Module) FindType(fullName string) *TypeDef {
	top, rest, nested := strings.Cut(fullName, "/")
	var cur *TypeDef
	for _, t := range m.Types {
		if t.FullName() == top {
			cur = t
			break
		}
	}
	if cur == nil || !nested {
		return cur
	}
	for _, name := range strings.Split(rest, "/") {
		cur = cur.NestedType(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Link sets module and declaring-type back pointers on every member.
// Decoders and builders call it after assembling a module by hand.
func (m *Module) Link() {
	var link func(t *TypeDef, outer *TypeDef)
	link = func(t *TypeDef, outer *TypeDef) {
		t.Module = m
		t.DeclaringType = outer
		for _, f := range t.Fields {
			f.DeclaringType = t
		}
		for _, meth := range t.Methods {
			meth.DeclaringType = t
		}
		for _, n := range t.Nested {
			link(n, t)
		}
	}
	for _, t := range m.Types {
		link(t, nil)
	}
}
