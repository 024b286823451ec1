package il

import (
	"fmt"
	"io"
	"strings"
)

// DisassembleInstruction renders a single instruction at pc.
func DisassembleInstruction(pc int, instr Instruction) string {
	return fmt.Sprintf("IL_%04d  %s", pc, instr)
}

// Disassemble returns a listing of the method's body.
func Disassemble(m *MethodDef) string {
	var b strings.Builder
	writeMethod(&b, m, "")
	return b.String()
}

// Dump writes a listing of every type in the module.
func (m *Module) Dump(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, ".module %s", m.Name)
	if m.Scope != "" {
		fmt.Fprintf(&b, " scope %s", m.Scope)
	}
	fmt.Fprintf(&b, " mvid %s\n", m.MVID)
	for _, ref := range m.References {
		fmt.Fprintf(&b, ".reference %s\n", ref)
	}
	for _, t := range m.Types {
		writeType(&b, t, "")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeAttrs(b *strings.Builder, attrs []*CustomAttribute, indent string) {
	for _, a := range attrs {
		fmt.Fprintf(b, "%s[%s(", indent, a.AttributeType())
		for i, arg := range a.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%#v", arg)
		}
		for i, n := range a.Named {
			if i > 0 || len(a.Args) > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s = %#v", n.Name, n.Value)
		}
		b.WriteString(")]\n")
	}
}

func genericSuffix(params []*GenericParamDef) string {
	if len(params) == 0 {
		return ""
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return "<" + strings.Join(names, ",") + ">"
}

func writeType(b *strings.Builder, t *TypeDef, indent string) {
	writeAttrs(b, t.CustomAttributes, indent)
	kind := ".class"
	if t.IsInterface() {
		kind = ".interface"
	}
	fmt.Fprintf(b, "%s%s %s%s", indent, kind, t.FullName(), genericSuffix(t.GenericParams))
	if t.BaseType != nil {
		fmt.Fprintf(b, " extends %s", t.BaseType)
	}
	for i, iface := range t.Interfaces {
		if i == 0 {
			b.WriteString(" implements ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(iface.String())
	}
	b.WriteString(" {\n")

	inner := indent + "  "
	for _, f := range t.Fields {
		mod := ""
		if f.IsStatic() {
			mod = "static "
		}
		if f.Attributes&FieldInitOnly != 0 {
			mod += "initonly "
		}
		fmt.Fprintf(b, "%s.field %s%s %s\n", inner, mod, f.Type, f.Name)
	}
	for _, m := range t.Methods {
		writeMethod(b, m, inner)
	}
	for _, n := range t.Nested {
		writeType(b, n, inner)
	}
	fmt.Fprintf(b, "%s}\n", indent)
}

func writeMethod(b *strings.Builder, m *MethodDef, indent string) {
	writeAttrs(b, m.CustomAttributes, indent)
	var mods []string
	if m.Attributes&MethodPrivate != 0 {
		mods = append(mods, "private")
	} else if m.Attributes&MethodPublic != 0 {
		mods = append(mods, "public")
	}
	if m.IsStatic() {
		mods = append(mods, "static")
	}
	if m.IsVirtual() {
		mods = append(mods, "virtual")
	}
	if m.IsAbstract() {
		mods = append(mods, "abstract")
	}
	if m.IsNative() {
		mods = append(mods, "native")
	}
	ret := m.Return
	if ret == nil {
		ret = Void()
	}
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.Type.String() + " " + p.Name
	}
	fmt.Fprintf(b, "%s.method %s %s %s%s(%s)", indent, strings.Join(mods, " "), ret, m.Name,
		genericSuffix(m.GenericParams), strings.Join(params, ", "))
	if m.Body == nil {
		b.WriteByte('\n')
		return
	}
	b.WriteString(" {\n")
	inner := indent + "  "
	for _, o := range m.Overrides {
		fmt.Fprintf(b, "%s.override %s\n", inner, o)
	}
	for i, l := range m.Body.Locals {
		fmt.Fprintf(b, "%s.local %d %s\n", inner, i, l)
	}
	for i, h := range m.Body.Handlers {
		fmt.Fprintf(b, "%s.try IL_%04d to IL_%04d catch %s handler IL_%04d to IL_%04d // %d\n",
			inner, h.TryStart, h.TryEnd, h.CatchType, h.HandlerStart, h.HandlerEnd, i)
	}
	for pc, instr := range m.Body.Instructions {
		b.WriteString(inner)
		b.WriteString(DisassembleInstruction(pc, instr))
		b.WriteByte('\n')
	}
	fmt.Fprintf(b, "%s}\n", indent)
}
