package il

import "fmt"

// Instruction is a decoded IL instruction.
type Instruction struct {
	Imm    any
	Opcode Opcode
}

// I32Imm holds the constant for ldc.i4.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant for ldc.i8.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant for ldc.r4.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant for ldc.r8.
type F64Imm struct {
	Value float64
}

// StringImm holds the literal for ldstr.
type StringImm struct {
	Value string
}

// VarImm holds an argument or local index. Argument 0 is the receiver of
// instance methods.
type VarImm struct {
	Index uint32
}

// BranchImm holds the target instruction index of a branch or leave.
type BranchImm struct {
	Target int
}

// TypeImm holds the type operand of array, box and cast instructions.
type TypeImm struct {
	Type *TypeRef
}

// MethodImm holds the method operand of call, callvirt, newobj and ldftn.
type MethodImm struct {
	Method *MethodRef
}

// FieldImm holds the field operand of field access instructions.
type FieldImm struct {
	Field *FieldRef
}

// TokenImm holds the ldtoken operand.
type TokenImm struct {
	Token Token
}

// Method returns the method operand, if any.
func (i Instruction) Method() (*MethodRef, bool) {
	imm, ok := i.Imm.(MethodImm)
	if !ok {
		return nil, false
	}
	return imm.Method, true
}

// Field returns the field operand, if any.
func (i Instruction) Field() (*FieldRef, bool) {
	imm, ok := i.Imm.(FieldImm)
	if !ok {
		return nil, false
	}
	return imm.Field, true
}

// Type returns the type operand, if any.
func (i Instruction) Type() (*TypeRef, bool) {
	imm, ok := i.Imm.(TypeImm)
	if !ok {
		return nil, false
	}
	return imm.Type, true
}

// Target returns the branch target, if any.
func (i Instruction) Target() (int, bool) {
	imm, ok := i.Imm.(BranchImm)
	if !ok {
		return 0, false
	}
	return imm.Target, true
}

// checkImm reports whether the immediate matches the opcode's kind.
func (i Instruction) checkImm() error {
	var ok bool
	switch i.Opcode.Imm() {
	case ImmNone:
		ok = i.Imm == nil
	case ImmI32:
		_, ok = i.Imm.(I32Imm)
	case ImmI64:
		_, ok = i.Imm.(I64Imm)
	case ImmF32:
		_, ok = i.Imm.(F32Imm)
	case ImmF64:
		_, ok = i.Imm.(F64Imm)
	case ImmString:
		_, ok = i.Imm.(StringImm)
	case ImmVar:
		_, ok = i.Imm.(VarImm)
	case ImmBranch:
		_, ok = i.Imm.(BranchImm)
	case ImmType:
		var imm TypeImm
		imm, ok = i.Imm.(TypeImm)
		ok = ok && imm.Type != nil
	case ImmMethod:
		var imm MethodImm
		imm, ok = i.Imm.(MethodImm)
		ok = ok && imm.Method != nil && imm.Method.DeclaringType != nil
	case ImmField:
		var imm FieldImm
		imm, ok = i.Imm.(FieldImm)
		ok = ok && imm.Field != nil && imm.Field.DeclaringType != nil
	case ImmToken:
		var imm TokenImm
		imm, ok = i.Imm.(TokenImm)
		ok = ok && (imm.Token.Type != nil) != (imm.Token.Method != nil)
	}
	if !ok {
		return fmt.Errorf("%s: immediate %T does not match opcode", i.Opcode, i.Imm)
	}
	return nil
}

func (i Instruction) String() string {
	switch imm := i.Imm.(type) {
	case nil:
		return i.Opcode.String()
	case I32Imm:
		return fmt.Sprintf("%s %d", i.Opcode, imm.Value)
	case I64Imm:
		return fmt.Sprintf("%s %d", i.Opcode, imm.Value)
	case F32Imm:
		return fmt.Sprintf("%s %g", i.Opcode, imm.Value)
	case F64Imm:
		return fmt.Sprintf("%s %g", i.Opcode, imm.Value)
	case StringImm:
		return fmt.Sprintf("%s %q", i.Opcode, imm.Value)
	case VarImm:
		return fmt.Sprintf("%s %d", i.Opcode, imm.Index)
	case BranchImm:
		return fmt.Sprintf("%s IL_%04d", i.Opcode, imm.Target)
	case TypeImm:
		return fmt.Sprintf("%s %s", i.Opcode, imm.Type)
	case MethodImm:
		return fmt.Sprintf("%s %s", i.Opcode, imm.Method)
	case FieldImm:
		return fmt.Sprintf("%s %s", i.Opcode, imm.Field)
	case TokenImm:
		return fmt.Sprintf("%s %s", i.Opcode, imm.Token)
	}
	return fmt.Sprintf("%s <%T>", i.Opcode, i.Imm)
}
