package il

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/wippyai/weave/il/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid il magic number")
	ErrInvalidVersion = errors.New("invalid il version")
)

// maxRefDepth bounds type reference nesting on decode.
const maxRefDepth = 64

// ParseModule parses an il binary module.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var last byte
	for {
		id, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}
		if id <= last {
			return nil, fmt.Errorf("section %d appears out of order", id)
		}
		last = id

		data, err := r.ReadBlob()
		if err != nil {
			return nil, r.WrapError("section data", err)
		}
		sr := binary.NewReader(data)

		switch id {
		case SectionHeader:
			err = parseHeaderSection(sr, m)
		case SectionReferences:
			err = parseReferencesSection(sr, m)
		case SectionTypes:
			err = parseTypesSection(sr, m)
		default:
			return nil, fmt.Errorf("unknown section %d", id)
		}
		if err != nil {
			return nil, err
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("section %d: %d trailing bytes", id, sr.Len())
		}
	}
	if last < SectionHeader {
		return nil, errors.New("missing header section")
	}

	m.Link()
	return m, nil
}

func parseHeaderSection(r *binary.Reader, m *Module) error {
	var err error
	if m.Name, err = r.ReadName(); err != nil {
		return r.WrapError("header", err)
	}
	if m.Scope, err = r.ReadName(); err != nil {
		return r.WrapError("header", err)
	}
	raw, err := r.ReadBytes(16)
	if err != nil {
		return r.WrapError("header", err)
	}
	m.MVID, err = uuid.FromBytes(raw)
	if err != nil {
		return r.WrapError("header", err)
	}
	return nil
}

func parseReferencesSection(r *binary.Reader, m *Module) error {
	n, err := r.ReadCount()
	if err != nil {
		return r.WrapError("references", err)
	}
	m.References = make([]string, n)
	for i := range m.References {
		if m.References[i], err = r.ReadName(); err != nil {
			return r.WrapError("references", err)
		}
	}
	return nil
}

func parseTypesSection(r *binary.Reader, m *Module) error {
	n, err := r.ReadCount()
	if err != nil {
		return r.WrapError("types", err)
	}
	m.Types = make([]*TypeDef, n)
	for i := range m.Types {
		if m.Types[i], err = readTypeDef(r, 0); err != nil {
			return err
		}
	}
	return nil
}

func readGenericParams(r *binary.Reader) ([]*GenericParamDef, error) {
	n, err := r.ReadCount()
	if err != nil || n == 0 {
		return nil, err
	}
	params := make([]*GenericParamDef, n)
	for i := range params {
		p := &GenericParamDef{}
		if p.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		pos, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		p.Position = int(pos)
		params[i] = p
	}
	return params, nil
}

func readTypeDef(r *binary.Reader, depth int) (*TypeDef, error) {
	if depth > maxRefDepth {
		return nil, r.WrapError("types", errors.New("nested types too deep"))
	}
	t := &TypeDef{}
	var err error
	wrap := func(err error) error {
		return r.WrapError("type "+t.Name, err)
	}

	if t.Namespace, err = r.ReadName(); err != nil {
		return nil, wrap(err)
	}
	if t.Name, err = r.ReadName(); err != nil {
		return nil, wrap(err)
	}
	attrs, err := r.ReadU32()
	if err != nil {
		return nil, wrap(err)
	}
	t.Attributes = TypeAttributes(attrs)
	if t.BaseType, err = readOptTypeRef(r); err != nil {
		return nil, wrap(err)
	}
	n, err := r.ReadCount()
	if err != nil {
		return nil, wrap(err)
	}
	for i := 0; i < n; i++ {
		iface, err := readTypeRef(r, 0)
		if err != nil {
			return nil, wrap(err)
		}
		t.Interfaces = append(t.Interfaces, iface)
	}
	if t.GenericParams, err = readGenericParams(r); err != nil {
		return nil, wrap(err)
	}

	if n, err = r.ReadCount(); err != nil {
		return nil, wrap(err)
	}
	for i := 0; i < n; i++ {
		f := &FieldDef{}
		if f.Name, err = r.ReadName(); err != nil {
			return nil, wrap(err)
		}
		fa, err := r.ReadU32()
		if err != nil {
			return nil, wrap(err)
		}
		f.Attributes = FieldAttributes(fa)
		if f.Type, err = readTypeRef(r, 0); err != nil {
			return nil, wrap(err)
		}
		t.Fields = append(t.Fields, f)
	}

	if n, err = r.ReadCount(); err != nil {
		return nil, wrap(err)
	}
	for i := 0; i < n; i++ {
		m, err := readMethodDef(r)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", t.Name, err)
		}
		t.Methods = append(t.Methods, m)
	}

	if n, err = r.ReadCount(); err != nil {
		return nil, wrap(err)
	}
	for i := 0; i < n; i++ {
		nested, err := readTypeDef(r, depth+1)
		if err != nil {
			return nil, err
		}
		t.Nested = append(t.Nested, nested)
	}

	if t.CustomAttributes, err = readAttributes(r); err != nil {
		return nil, wrap(err)
	}
	return t, nil
}

func readMethodDef(r *binary.Reader) (*MethodDef, error) {
	m := &MethodDef{}
	var err error
	wrap := func(err error) error {
		return r.WrapError("method "+m.Name, err)
	}

	if m.Name, err = r.ReadName(); err != nil {
		return nil, wrap(err)
	}
	attrs, err := r.ReadU32()
	if err != nil {
		return nil, wrap(err)
	}
	m.Attributes = MethodAttributes(attrs)

	n, err := r.ReadCount()
	if err != nil {
		return nil, wrap(err)
	}
	for i := 0; i < n; i++ {
		p := &ParamDef{}
		if p.Name, err = r.ReadName(); err != nil {
			return nil, wrap(err)
		}
		if p.Type, err = readTypeRef(r, 0); err != nil {
			return nil, wrap(err)
		}
		m.Params = append(m.Params, p)
	}
	if m.Return, err = readOptTypeRef(r); err != nil {
		return nil, wrap(err)
	}
	if m.GenericParams, err = readGenericParams(r); err != nil {
		return nil, wrap(err)
	}
	if n, err = r.ReadCount(); err != nil {
		return nil, wrap(err)
	}
	for i := 0; i < n; i++ {
		o, err := readMethodRef(r)
		if err != nil {
			return nil, wrap(err)
		}
		m.Overrides = append(m.Overrides, o)
	}
	if m.CustomAttributes, err = readAttributes(r); err != nil {
		return nil, wrap(err)
	}

	hasBody, err := r.ReadBool()
	if err != nil {
		return nil, wrap(err)
	}
	if hasBody {
		if m.Body, err = readBody(r); err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
	}
	return m, nil
}

func readBody(r *binary.Reader) (*MethodBody, error) {
	body := &MethodBody{}
	n, err := r.ReadCount()
	if err != nil {
		return nil, r.WrapError("locals", err)
	}
	for i := 0; i < n; i++ {
		l, err := readTypeRef(r, 0)
		if err != nil {
			return nil, r.WrapError("locals", err)
		}
		body.Locals = append(body.Locals, l)
	}
	if body.InitLocals, err = r.ReadBool(); err != nil {
		return nil, r.WrapError("locals", err)
	}

	if n, err = r.ReadCount(); err != nil {
		return nil, r.WrapError("code", err)
	}
	body.Instructions = make([]Instruction, 0, n)
	for i := 0; i < n; i++ {
		instr, err := readInstruction(r)
		if err != nil {
			return nil, r.WrapError(fmt.Sprintf("instruction %d", i), err)
		}
		body.Instructions = append(body.Instructions, instr)
	}

	if n, err = r.ReadCount(); err != nil {
		return nil, r.WrapError("handlers", err)
	}
	for i := 0; i < n; i++ {
		var h ExceptionHandler
		if h.CatchType, err = readOptTypeRef(r); err != nil {
			return nil, r.WrapError("handlers", err)
		}
		for _, dst := range []*int{&h.TryStart, &h.TryEnd, &h.HandlerStart, &h.HandlerEnd} {
			v, err := r.ReadS32()
			if err != nil {
				return nil, r.WrapError("handlers", err)
			}
			*dst = int(v)
		}
		body.Handlers = append(body.Handlers, h)
	}
	return body, nil
}

func readAttributes(r *binary.Reader) ([]*CustomAttribute, error) {
	n, err := r.ReadCount()
	if err != nil || n == 0 {
		return nil, err
	}
	attrs := make([]*CustomAttribute, n)
	for i := range attrs {
		a := &CustomAttribute{}
		if a.Constructor, err = readMethodRef(r); err != nil {
			return nil, err
		}
		blob, err := r.ReadBlob()
		if err != nil {
			return nil, err
		}
		if err := unmarshalAttributeBlob(blob, a); err != nil {
			return nil, err
		}
		attrs[i] = a
	}
	return attrs, nil
}

func readInstruction(r *binary.Reader) (Instruction, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(b)
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("unknown opcode 0x%02x", b)
	}
	instr := Instruction{Opcode: op}

	switch op.Imm() {
	case ImmI32:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{v}
	case ImmI64:
		v, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{v}
	case ImmF32:
		v, err := r.ReadF32()
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{v}
	case ImmF64:
		v, err := r.ReadF64()
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{v}
	case ImmString:
		v, err := r.ReadName()
		if err != nil {
			return instr, err
		}
		instr.Imm = StringImm{v}
	case ImmVar:
		v, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = VarImm{v}
	case ImmBranch:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{int(v)}
	case ImmType:
		t, err := readTypeRef(r, 0)
		if err != nil {
			return instr, err
		}
		instr.Imm = TypeImm{t}
	case ImmMethod:
		m, err := readMethodRef(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = MethodImm{m}
	case ImmField:
		f, err := readFieldRef(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = FieldImm{f}
	case ImmToken:
		isMethod, err := r.ReadBool()
		if err != nil {
			return instr, err
		}
		var tok Token
		if isMethod {
			tok.Method, err = readMethodRef(r)
		} else {
			tok.Type, err = readTypeRef(r, 0)
		}
		if err != nil {
			return instr, err
		}
		instr.Imm = TokenImm{tok}
	}
	return instr, nil
}

func readOptTypeRef(r *binary.Reader) (*TypeRef, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	return readTypeRef(r, 0)
}

func readTypeRef(r *binary.Reader, depth int) (*TypeRef, error) {
	if depth > maxRefDepth {
		return nil, errors.New("type reference nested too deep")
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	kind := TypeKind(b)
	switch kind {
	case KindVoid:
		return Void(), nil
	case KindObject:
		return Object(), nil
	case KindBool:
		return Bool(), nil
	case KindInt32:
		return Int32(), nil
	case KindInt64:
		return Int64(), nil
	case KindFloat32:
		return Float32(), nil
	case KindFloat64:
		return Float64(), nil
	case KindString:
		return String(), nil
	case KindIntPtr:
		return IntPtr(), nil
	case KindNamed, KindGenericInst:
		t := &TypeRef{Kind: kind}
		if t.Scope, err = r.ReadName(); err != nil {
			return nil, err
		}
		if t.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if t.ValueType, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if kind == KindGenericInst {
			n, err := r.ReadCount()
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, errors.New("generic instance without arguments")
			}
			t.Args = make([]*TypeRef, n)
			for i := range t.Args {
				if t.Args[i], err = readTypeRef(r, depth+1); err != nil {
					return nil, err
				}
			}
		}
		return t, nil
	case KindTypeParam, KindMethodParam:
		pos, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return &TypeRef{Kind: kind, Position: int(pos), ParamName: name}, nil
	case KindArray, KindNullable:
		elem, err := readTypeRef(r, depth+1)
		if err != nil {
			return nil, err
		}
		if kind == KindArray {
			return ArrayOf(elem), nil
		}
		return NullableOf(elem), nil
	}
	return nil, fmt.Errorf("unknown type kind 0x%02x", b)
}

func readMethodRef(r *binary.Reader) (*MethodRef, error) {
	m := &MethodRef{}
	var err error
	if m.DeclaringType, err = readTypeRef(r, 0); err != nil {
		return nil, err
	}
	if m.Name, err = r.ReadName(); err != nil {
		return nil, err
	}
	if m.HasThis, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if m.Return, err = readTypeRef(r, 0); err != nil {
		return nil, err
	}
	n, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		p, err := readTypeRef(r, 0)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, p)
	}
	arity, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	m.GenericArity = int(arity)
	if n, err = r.ReadCount(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		a, err := readTypeRef(r, 0)
		if err != nil {
			return nil, err
		}
		m.GenericArgs = append(m.GenericArgs, a)
	}
	return m, nil
}

func readFieldRef(r *binary.Reader) (*FieldRef, error) {
	f := &FieldRef{}
	var err error
	if f.DeclaringType, err = readTypeRef(r, 0); err != nil {
		return nil, err
	}
	if f.Name, err = r.ReadName(); err != nil {
		return nil, err
	}
	if f.Type, err = readTypeRef(r, 0); err != nil {
		return nil, err
	}
	return f, nil
}
