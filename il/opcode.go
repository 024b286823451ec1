package il

import "strconv"

// Opcode identifies an IL instruction.
type Opcode byte

// Constants and locals
const (
	OpNop    Opcode = 0x00
	OpLdnull Opcode = 0x01
	OpLdcI4  Opcode = 0x02
	OpLdcI8  Opcode = 0x03
	OpLdcR4  Opcode = 0x04
	OpLdcR8  Opcode = 0x05
	OpLdstr  Opcode = 0x06
	OpLdarg  Opcode = 0x07
	OpStarg  Opcode = 0x08
	OpLdloc  Opcode = 0x09
	OpStloc  Opcode = 0x0A
	OpDup    Opcode = 0x0B
	OpPop    Opcode = 0x0C
)

// Control flow
const (
	OpRet     Opcode = 0x10
	OpBr      Opcode = 0x11
	OpBrtrue  Opcode = 0x12
	OpBrfalse Opcode = 0x13
	OpThrow   Opcode = 0x14
	OpLeave   Opcode = 0x15
)

// Arithmetic, comparison and conversion
const (
	OpAdd    Opcode = 0x20
	OpSub    Opcode = 0x21
	OpMul    Opcode = 0x22
	OpDiv    Opcode = 0x23
	OpRem    Opcode = 0x24
	OpNeg    Opcode = 0x25
	OpCeq    Opcode = 0x26
	OpClt    Opcode = 0x27
	OpCgt    Opcode = 0x28
	OpConvI4 Opcode = 0x29
	OpConvI8 Opcode = 0x2A
	OpConvR4 Opcode = 0x2B
	OpConvR8 Opcode = 0x2C
)

// Calls, objects and arrays
const (
	OpCall      Opcode = 0x30
	OpCallvirt  Opcode = 0x31
	OpNewobj    Opcode = 0x32
	OpLdfld     Opcode = 0x33
	OpStfld     Opcode = 0x34
	OpLdsfld    Opcode = 0x35
	OpStsfld    Opcode = 0x36
	OpNewarr    Opcode = 0x37
	OpLdlen     Opcode = 0x38
	OpLdelem    Opcode = 0x39
	OpStelem    Opcode = 0x3A
	OpBox       Opcode = 0x3B
	OpUnboxAny  Opcode = 0x3C
	OpCastclass Opcode = 0x3D
	OpIsinst    Opcode = 0x3E
	OpLdtoken   Opcode = 0x3F
	OpLdftn     Opcode = 0x40
)

// ImmKind classifies the immediate an opcode carries.
type ImmKind uint8

const (
	ImmNone ImmKind = iota
	ImmI32
	ImmI64
	ImmF32
	ImmF64
	ImmString
	ImmVar
	ImmBranch
	ImmType
	ImmMethod
	ImmField
	ImmToken
)

type opInfo struct {
	name string
	imm  ImmKind
}

var opcodes = map[Opcode]opInfo{
	OpNop:       {"nop", ImmNone},
	OpLdnull:    {"ldnull", ImmNone},
	OpLdcI4:     {"ldc.i4", ImmI32},
	OpLdcI8:     {"ldc.i8", ImmI64},
	OpLdcR4:     {"ldc.r4", ImmF32},
	OpLdcR8:     {"ldc.r8", ImmF64},
	OpLdstr:     {"ldstr", ImmString},
	OpLdarg:     {"ldarg", ImmVar},
	OpStarg:     {"starg", ImmVar},
	OpLdloc:     {"ldloc", ImmVar},
	OpStloc:     {"stloc", ImmVar},
	OpDup:       {"dup", ImmNone},
	OpPop:       {"pop", ImmNone},
	OpRet:       {"ret", ImmNone},
	OpBr:        {"br", ImmBranch},
	OpBrtrue:    {"brtrue", ImmBranch},
	OpBrfalse:   {"brfalse", ImmBranch},
	OpThrow:     {"throw", ImmNone},
	OpLeave:     {"leave", ImmBranch},
	OpAdd:       {"add", ImmNone},
	OpSub:       {"sub", ImmNone},
	OpMul:       {"mul", ImmNone},
	OpDiv:       {"div", ImmNone},
	OpRem:       {"rem", ImmNone},
	OpNeg:       {"neg", ImmNone},
	OpCeq:       {"ceq", ImmNone},
	OpClt:       {"clt", ImmNone},
	OpCgt:       {"cgt", ImmNone},
	OpConvI4:    {"conv.i4", ImmNone},
	OpConvI8:    {"conv.i8", ImmNone},
	OpConvR4:    {"conv.r4", ImmNone},
	OpConvR8:    {"conv.r8", ImmNone},
	OpCall:      {"call", ImmMethod},
	OpCallvirt:  {"callvirt", ImmMethod},
	OpNewobj:    {"newobj", ImmMethod},
	OpLdfld:     {"ldfld", ImmField},
	OpStfld:     {"stfld", ImmField},
	OpLdsfld:    {"ldsfld", ImmField},
	OpStsfld:    {"stsfld", ImmField},
	OpNewarr:    {"newarr", ImmType},
	OpLdlen:     {"ldlen", ImmNone},
	OpLdelem:    {"ldelem", ImmType},
	OpStelem:    {"stelem", ImmType},
	OpBox:       {"box", ImmType},
	OpUnboxAny:  {"unbox.any", ImmType},
	OpCastclass: {"castclass", ImmType},
	OpIsinst:    {"isinst", ImmType},
	OpLdtoken:   {"ldtoken", ImmToken},
	OpLdftn:     {"ldftn", ImmMethod},
}

// Valid reports whether the opcode is known.
func (op Opcode) Valid() bool {
	_, ok := opcodes[op]
	return ok
}

// Imm returns the immediate kind the opcode carries.
func (op Opcode) Imm() ImmKind {
	return opcodes[op].imm
}

func (op Opcode) String() string {
	if info, ok := opcodes[op]; ok {
		return info.name
	}
	return "op(0x" + strconv.FormatUint(uint64(op), 16) + ")"
}

// IsBranch reports whether the opcode transfers control to a BranchImm target.
func (op Opcode) IsBranch() bool {
	return op.Imm() == ImmBranch
}

// IsTerminator reports whether control never falls through to the next instruction.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpRet, OpBr, OpThrow, OpLeave:
		return true
	}
	return false
}
