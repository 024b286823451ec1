package generic

import "github.com/wippyai/weave/il"

// SelfInstance returns a reference to t instantiated with its own generic
// parameters, or the plain definition reference when t is not generic.
func SelfInstance(t *il.TypeDef) *il.TypeRef {
	ref := t.Ref()
	if !t.HasGenericParams() {
		return ref
	}
	return il.Instance(ref, Params(t.GenericParams)...)
}

// Params returns one type-parameter reference per declaration, by position.
func Params(gps []*il.GenericParamDef) []*il.TypeRef {
	out := make([]*il.TypeRef, len(gps))
	for i, gp := range gps {
		out[i] = il.TypeParam(gp.Position, gp.Name)
	}
	return out
}

// MirrorParams copies the generic parameter declarations of from, keeping
// names and positions, for a type that must be instantiated the same way.
func MirrorParams(from *il.TypeDef) []*il.GenericParamDef {
	if !from.HasGenericParams() {
		return nil
	}
	out := make([]*il.GenericParamDef, len(from.GenericParams))
	for i, gp := range from.GenericParams {
		out[i] = &il.GenericParamDef{Name: gp.Name, Position: gp.Position}
	}
	return out
}

// Field returns a reference to f through its declaring type's
// self-instantiation.
func Field(f *il.FieldDef) *il.FieldRef {
	ref := f.Ref()
	if f.DeclaringType != nil {
		ref.DeclaringType = SelfInstance(f.DeclaringType)
	}
	return ref
}

// Method returns a reference to m through its declaring type's
// self-instantiation. The signature stays in definition form.
func Method(m *il.MethodDef) *il.MethodRef {
	ref := m.Ref()
	if m.DeclaringType != nil {
		ref.DeclaringType = SelfInstance(m.DeclaringType)
	}
	return ref
}

// Rebind returns ref with its declaring type replaced by the
// self-instantiation of t. Refs to other types are returned unchanged.
func Rebind(ref *il.MethodRef, t *il.TypeDef) *il.MethodRef {
	if !t.HasGenericParams() || ref.DeclaringType == nil {
		return ref
	}
	decl := ref.DeclaringType
	if !decl.IsNamed() || decl.Scope != t.Scope() || decl.Name != t.FullName() {
		return ref
	}
	if decl.Kind == il.KindGenericInst {
		return ref
	}
	c := *ref
	c.DeclaringType = SelfInstance(t)
	return &c
}

// NeedsBinding reports whether references into t must go through its
// self-instantiation.
func NeedsBinding(t *il.TypeDef) bool {
	return t.HasGenericParams()
}
