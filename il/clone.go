package il

import "slices"

// Clone returns a copy of the method with its own parameter, attribute,
// override and body storage. References held by instructions are shared;
// they are treated as immutable. The clone has no declaring type until it
// is added to one.
func (m *MethodDef) Clone() *MethodDef {
	c := &MethodDef{
		Name:             m.Name,
		Attributes:       m.Attributes,
		Return:           m.Return,
		Overrides:        slices.Clone(m.Overrides),
		CustomAttributes: slices.Clone(m.CustomAttributes),
	}
	for _, p := range m.Params {
		c.Params = append(c.Params, &ParamDef{Name: p.Name, Type: p.Type})
	}
	for _, g := range m.GenericParams {
		c.GenericParams = append(c.GenericParams, &GenericParamDef{Name: g.Name, Position: g.Position})
	}
	if m.Body != nil {
		c.Body = m.Body.Clone()
	}
	return c
}

// Clone returns a copy of the body.
func (b *MethodBody) Clone() *MethodBody {
	return &MethodBody{
		Locals:       slices.Clone(b.Locals),
		InitLocals:   b.InitLocals,
		Instructions: slices.Clone(b.Instructions),
		Handlers:     slices.Clone(b.Handlers),
	}
}
