package il

// Emitter appends instructions to a method body. Labels are resolved when
// their position is marked, so forward branches may be emitted first.
type Emitter struct {
	body    *MethodBody
	labels  []int
	pending map[int][]int
}

// Label is a branch target created by NewLabel.
type Label int

// NewEmitter returns an emitter that appends to body.
func NewEmitter(body *MethodBody) *Emitter {
	return &Emitter{body: body, pending: make(map[int][]int)}
}

// Body returns the body being emitted.
func (e *Emitter) Body() *MethodBody { return e.body }

// Len returns the number of instructions emitted so far.
func (e *Emitter) Len() int { return len(e.body.Instructions) }

func (e *Emitter) emit(op Opcode, imm any) *Emitter {
	e.body.Instructions = append(e.body.Instructions, Instruction{Opcode: op, Imm: imm})
	return e
}

// Op emits an instruction without an immediate.
func (e *Emitter) Op(op Opcode) *Emitter { return e.emit(op, nil) }

func (e *Emitter) LdcI4(v int32) *Emitter   { return e.emit(OpLdcI4, I32Imm{v}) }
func (e *Emitter) LdcI8(v int64) *Emitter   { return e.emit(OpLdcI8, I64Imm{v}) }
func (e *Emitter) LdcR4(v float32) *Emitter { return e.emit(OpLdcR4, F32Imm{v}) }
func (e *Emitter) LdcR8(v float64) *Emitter { return e.emit(OpLdcR8, F64Imm{v}) }
func (e *Emitter) Ldstr(s string) *Emitter  { return e.emit(OpLdstr, StringImm{s}) }
func (e *Emitter) Ldnull() *Emitter         { return e.Op(OpLdnull) }
func (e *Emitter) Ret() *Emitter            { return e.Op(OpRet) }

func (e *Emitter) Ldarg(i int) *Emitter { return e.emit(OpLdarg, VarImm{uint32(i)}) }
func (e *Emitter) Starg(i int) *Emitter { return e.emit(OpStarg, VarImm{uint32(i)}) }
func (e *Emitter) Ldloc(i int) *Emitter { return e.emit(OpLdloc, VarImm{uint32(i)}) }
func (e *Emitter) Stloc(i int) *Emitter { return e.emit(OpStloc, VarImm{uint32(i)}) }

// Call emits call, callvirt, newobj or ldftn with a method operand.
func (e *Emitter) Call(op Opcode, m *MethodRef) *Emitter { return e.emit(op, MethodImm{m}) }

// Field emits a field access instruction.
func (e *Emitter) Field(op Opcode, f *FieldRef) *Emitter { return e.emit(op, FieldImm{f}) }

// Type emits an instruction with a type operand.
func (e *Emitter) Type(op Opcode, t *TypeRef) *Emitter { return e.emit(op, TypeImm{t}) }

// LdtokenMethod emits ldtoken for a method.
func (e *Emitter) LdtokenMethod(m *MethodRef) *Emitter {
	return e.emit(OpLdtoken, TokenImm{Token{Method: m}})
}

// LdtokenType emits ldtoken for a type.
func (e *Emitter) LdtokenType(t *TypeRef) *Emitter {
	return e.emit(OpLdtoken, TokenImm{Token{Type: t}})
}

// NewLabel allocates an unmarked label.
func (e *Emitter) NewLabel() Label {
	e.labels = append(e.labels, -1)
	return Label(len(e.labels) - 1)
}

// Mark binds the label to the next emitted instruction and patches branches
// already emitted against it.
func (e *Emitter) Mark(l Label) *Emitter {
	pos := e.Len()
	e.labels[l] = pos
	for _, at := range e.pending[int(l)] {
		e.body.Instructions[at].Imm = BranchImm{Target: pos}
	}
	delete(e.pending, int(l))
	return e
}

// Branch emits a branch or leave to l.
func (e *Emitter) Branch(op Opcode, l Label) *Emitter {
	if pos := e.labels[l]; pos >= 0 {
		return e.emit(op, BranchImm{Target: pos})
	}
	e.pending[int(l)] = append(e.pending[int(l)], e.Len())
	return e.emit(op, BranchImm{Target: -1})
}

// Catch records a catch region. The label positions must be marked first.
func (e *Emitter) Catch(catchType *TypeRef, tryStart, tryEnd, handlerStart, handlerEnd Label) *Emitter {
	e.body.Handlers = append(e.body.Handlers, ExceptionHandler{
		CatchType:    catchType,
		TryStart:     e.labels[tryStart],
		TryEnd:       e.labels[tryEnd],
		HandlerStart: e.labels[handlerStart],
		HandlerEnd:   e.labels[handlerEnd],
	})
	return e
}

// AddLocal declares a local and returns its index.
func (e *Emitter) AddLocal(t *TypeRef) int {
	e.body.Locals = append(e.body.Locals, t)
	return len(e.body.Locals) - 1
}

// Reset discards the body's locals, instructions and handlers.
func (b *MethodBody) Reset() {
	b.Locals = nil
	b.Instructions = nil
	b.Handlers = nil
}
