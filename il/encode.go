package il

import (
	"fmt"

	"github.com/wippyai/weave/il/internal/binary"
)

// Binary format constants.
const (
	Magic   uint32 = 0x6c697700 // "\0wil"
	Version uint32 = 1
)

// Section IDs, in the order they appear.
const (
	SectionHeader     byte = 1
	SectionReferences byte = 2
	SectionTypes      byte = 3
)

const (
	refAbsent  byte = 0
	refPresent byte = 1
)

// Encode encodes the module to the il binary format.
func (m *Module) Encode() ([]byte, error) {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	sec := binary.NewWriter()
	sec.WriteName(m.Name)
	sec.WriteName(m.Scope)
	sec.WriteBytes(m.MVID[:])
	writeSection(w, SectionHeader, sec.Bytes())

	if len(m.References) > 0 {
		sec = binary.NewWriter()
		sec.WriteCount(len(m.References))
		for _, ref := range m.References {
			sec.WriteName(ref)
		}
		writeSection(w, SectionReferences, sec.Bytes())
	}

	if len(m.Types) > 0 {
		sec = binary.NewWriter()
		sec.WriteCount(len(m.Types))
		for _, t := range m.Types {
			if err := writeTypeDef(sec, t); err != nil {
				return nil, err
			}
		}
		writeSection(w, SectionTypes, sec.Bytes())
	}

	return w.Bytes(), nil
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteBlob(data)
}

func writeGenericParams(w *binary.Writer, params []*GenericParamDef) {
	w.WriteCount(len(params))
	for _, p := range params {
		w.WriteName(p.Name)
		w.WriteU32(uint32(p.Position))
	}
}

func writeTypeDef(w *binary.Writer, t *TypeDef) error {
	w.WriteName(t.Namespace)
	w.WriteName(t.Name)
	w.WriteU32(uint32(t.Attributes))
	writeOptTypeRef(w, t.BaseType)
	w.WriteCount(len(t.Interfaces))
	for _, iface := range t.Interfaces {
		writeTypeRef(w, iface)
	}
	writeGenericParams(w, t.GenericParams)

	w.WriteCount(len(t.Fields))
	for _, f := range t.Fields {
		w.WriteName(f.Name)
		w.WriteU32(uint32(f.Attributes))
		writeTypeRef(w, f.Type)
	}

	w.WriteCount(len(t.Methods))
	for _, m := range t.Methods {
		if err := writeMethodDef(w, m); err != nil {
			return fmt.Errorf("%s::%s: %w", t.FullName(), m.Name, err)
		}
	}

	w.WriteCount(len(t.Nested))
	for _, n := range t.Nested {
		if err := writeTypeDef(w, n); err != nil {
			return err
		}
	}

	if err := writeAttributes(w, t.CustomAttributes); err != nil {
		return fmt.Errorf("%s: %w", t.FullName(), err)
	}
	return nil
}

func writeMethodDef(w *binary.Writer, m *MethodDef) error {
	w.WriteName(m.Name)
	w.WriteU32(uint32(m.Attributes))
	w.WriteCount(len(m.Params))
	for _, p := range m.Params {
		w.WriteName(p.Name)
		writeTypeRef(w, p.Type)
	}
	writeOptTypeRef(w, m.Return)
	writeGenericParams(w, m.GenericParams)
	w.WriteCount(len(m.Overrides))
	for _, o := range m.Overrides {
		writeMethodRef(w, o)
	}
	if err := writeAttributes(w, m.CustomAttributes); err != nil {
		return err
	}

	if m.Body == nil {
		w.Byte(refAbsent)
		return nil
	}
	w.Byte(refPresent)
	return writeBody(w, m.Body)
}

func writeBody(w *binary.Writer, body *MethodBody) error {
	w.WriteCount(len(body.Locals))
	for _, l := range body.Locals {
		writeTypeRef(w, l)
	}
	w.WriteBool(body.InitLocals)

	w.WriteCount(len(body.Instructions))
	for i := range body.Instructions {
		if err := writeInstruction(w, &body.Instructions[i]); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}

	w.WriteCount(len(body.Handlers))
	for _, h := range body.Handlers {
		writeOptTypeRef(w, h.CatchType)
		w.WriteS64(int64(h.TryStart))
		w.WriteS64(int64(h.TryEnd))
		w.WriteS64(int64(h.HandlerStart))
		w.WriteS64(int64(h.HandlerEnd))
	}
	return nil
}

func writeAttributes(w *binary.Writer, attrs []*CustomAttribute) error {
	w.WriteCount(len(attrs))
	for _, a := range attrs {
		if a.Constructor == nil {
			return fmt.Errorf("custom attribute without constructor")
		}
		writeMethodRef(w, a.Constructor)
		blob, err := marshalAttributeBlob(a)
		if err != nil {
			return fmt.Errorf("custom attribute %s: %w", a.Constructor.DeclaringType, err)
		}
		w.WriteBlob(blob)
	}
	return nil
}

func writeInstruction(w *binary.Writer, instr *Instruction) error {
	if err := instr.checkImm(); err != nil {
		return err
	}
	w.Byte(byte(instr.Opcode))
	switch imm := instr.Imm.(type) {
	case I32Imm:
		w.WriteS64(int64(imm.Value))
	case I64Imm:
		w.WriteS64(imm.Value)
	case F32Imm:
		w.WriteF32(imm.Value)
	case F64Imm:
		w.WriteF64(imm.Value)
	case StringImm:
		w.WriteName(imm.Value)
	case VarImm:
		w.WriteU32(imm.Index)
	case BranchImm:
		w.WriteS64(int64(imm.Target))
	case TypeImm:
		writeTypeRef(w, imm.Type)
	case MethodImm:
		writeMethodRef(w, imm.Method)
	case FieldImm:
		writeFieldRef(w, imm.Field)
	case TokenImm:
		if imm.Token.Method != nil {
			w.Byte(1)
			writeMethodRef(w, imm.Token.Method)
		} else {
			w.Byte(0)
			writeTypeRef(w, imm.Token.Type)
		}
	}
	return nil
}

func writeOptTypeRef(w *binary.Writer, t *TypeRef) {
	if t == nil {
		w.Byte(refAbsent)
		return
	}
	w.Byte(refPresent)
	writeTypeRef(w, t)
}

func writeTypeRef(w *binary.Writer, t *TypeRef) {
	w.Byte(byte(t.Kind))
	switch t.Kind {
	case KindNamed:
		w.WriteName(t.Scope)
		w.WriteName(t.Name)
		w.WriteBool(t.ValueType)
	case KindGenericInst:
		w.WriteName(t.Scope)
		w.WriteName(t.Name)
		w.WriteBool(t.ValueType)
		w.WriteCount(len(t.Args))
		for _, a := range t.Args {
			writeTypeRef(w, a)
		}
	case KindTypeParam, KindMethodParam:
		w.WriteU32(uint32(t.Position))
		w.WriteName(t.ParamName)
	case KindArray, KindNullable:
		writeTypeRef(w, t.Elem)
	}
}

func writeMethodRef(w *binary.Writer, m *MethodRef) {
	writeTypeRef(w, m.DeclaringType)
	w.WriteName(m.Name)
	w.WriteBool(m.HasThis)
	ret := m.Return
	if ret == nil {
		ret = Void()
	}
	writeTypeRef(w, ret)
	w.WriteCount(len(m.Params))
	for _, p := range m.Params {
		writeTypeRef(w, p)
	}
	w.WriteU32(uint32(m.GenericArity))
	w.WriteCount(len(m.GenericArgs))
	for _, a := range m.GenericArgs {
		writeTypeRef(w, a)
	}
}

func writeFieldRef(w *binary.Writer, f *FieldRef) {
	writeTypeRef(w, f.DeclaringType)
	w.WriteName(f.Name)
	writeTypeRef(w, f.Type)
}
