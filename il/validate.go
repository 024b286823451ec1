package il

import (
	"fmt"

	"github.com/wippyai/weave/errors"
)

// Validate checks the module for structural validity. It is the check the
// vm loader applies before binding a module.
func (m *Module) Validate() error {
	seen := make(map[string]bool)
	for _, t := range m.AllTypes() {
		name := t.FullName()
		if seen[name] {
			return invalid(t, "", "duplicate type")
		}
		seen[name] = true
		if err := validateType(m, t); err != nil {
			return err
		}
	}
	return nil
}

// ParseModuleValidate parses an il binary and validates it.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func invalid(t *TypeDef, member, format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseValidate, errors.KindInvalidData).
		Type(t.FullName()).
		Member(member).
		Detail(format, args...).
		Build()
}

func validateType(m *Module, t *TypeDef) error {
	if t.Name == "" {
		return invalid(t, "", "empty type name")
	}
	if t.Module != m {
		return invalid(t, "", "type not linked to module")
	}
	for _, n := range t.Nested {
		if n.DeclaringType != t {
			return invalid(n, "", "nested type owner mismatch")
		}
	}
	if err := validateGenericParams(t.GenericParams); err != nil {
		return invalid(t, "", "%v", err)
	}
	typeArity := len(t.GenericParams)

	if t.BaseType != nil {
		if err := checkParams(t.BaseType, typeArity, 0); err != nil {
			return invalid(t, "", "base type: %v", err)
		}
	}

	fields := make(map[string]bool)
	for _, f := range t.Fields {
		if f.Name == "" || fields[f.Name] {
			return invalid(t, f.Name, "duplicate or empty field name")
		}
		fields[f.Name] = true
		if f.Type == nil {
			return invalid(t, f.Name, "field without type")
		}
		if err := checkParams(f.Type, typeArity, 0); err != nil {
			return invalid(t, f.Name, "%v", err)
		}
		if f.DeclaringType != t {
			return invalid(t, f.Name, "field owner mismatch")
		}
	}

	for i, meth := range t.Methods {
		if meth.DeclaringType != t {
			return invalid(t, meth.Name, "method owner mismatch")
		}
		for _, prev := range t.Methods[:i] {
			if prev.Matches(meth.Ref()) {
				return invalid(t, meth.Name, "duplicate method signature")
			}
		}
		if err := validateMethod(t, meth, typeArity); err != nil {
			return err
		}
	}
	return nil
}

func validateGenericParams(params []*GenericParamDef) error {
	for i, p := range params {
		if p.Position != i {
			return fmt.Errorf("generic parameter %q at position %d, want %d", p.Name, p.Position, i)
		}
	}
	return nil
}

func validateMethod(t *TypeDef, m *MethodDef, typeArity int) error {
	if m.Name == "" {
		return invalid(t, "", "empty method name")
	}
	if err := validateGenericParams(m.GenericParams); err != nil {
		return invalid(t, m.Name, "%v", err)
	}
	methodArity := len(m.GenericParams)
	check := func(r *TypeRef, what string) error {
		if r == nil {
			return invalid(t, m.Name, "%s: missing type", what)
		}
		if err := checkParams(r, typeArity, methodArity); err != nil {
			return invalid(t, m.Name, "%s: %v", what, err)
		}
		return nil
	}
	for i, p := range m.Params {
		if err := check(p.Type, fmt.Sprintf("parameter %d", i)); err != nil {
			return err
		}
	}
	if m.Return != nil {
		if err := check(m.Return, "return type"); err != nil {
			return err
		}
	}

	noBody := m.IsAbstract() || m.IsNative()
	switch {
	case noBody && m.Body != nil:
		return invalid(t, m.Name, "abstract or native method has a body")
	case !noBody && m.Body == nil:
		return invalid(t, m.Name, "method without body")
	case m.Body == nil:
		return nil
	}

	body := m.Body
	for i, l := range body.Locals {
		if err := check(l, fmt.Sprintf("local %d", i)); err != nil {
			return err
		}
	}

	n := len(body.Instructions)
	if n == 0 {
		return invalid(t, m.Name, "empty body")
	}
	if last := body.Instructions[n-1].Opcode; !last.IsTerminator() {
		return invalid(t, m.Name, "body does not end in a terminator (ends in %s)", last)
	}

	for pc, instr := range body.Instructions {
		if err := instr.checkImm(); err != nil {
			return invalid(t, m.Name, "IL_%04d: %v", pc, err)
		}
		switch imm := instr.Imm.(type) {
		case BranchImm:
			if imm.Target < 0 || imm.Target >= n {
				return invalid(t, m.Name, "IL_%04d: branch target %d out of range", pc, imm.Target)
			}
		case VarImm:
			limit := len(body.Locals)
			if instr.Opcode == OpLdarg || instr.Opcode == OpStarg {
				limit = m.ArgCount()
			}
			if int(imm.Index) >= limit {
				return invalid(t, m.Name, "IL_%04d: %s index %d out of range", pc, instr.Opcode, imm.Index)
			}
		case TypeImm:
			if err := check(imm.Type, fmt.Sprintf("IL_%04d", pc)); err != nil {
				return err
			}
		case MethodImm:
			if err := check(imm.Method.DeclaringType, fmt.Sprintf("IL_%04d", pc)); err != nil {
				return err
			}
			for _, a := range imm.Method.GenericArgs {
				if err := check(a, fmt.Sprintf("IL_%04d", pc)); err != nil {
					return err
				}
			}
			if len(imm.Method.GenericArgs) != 0 && len(imm.Method.GenericArgs) != imm.Method.GenericArity {
				return invalid(t, m.Name, "IL_%04d: generic argument count mismatch", pc)
			}
		case FieldImm:
			if err := check(imm.Field.DeclaringType, fmt.Sprintf("IL_%04d", pc)); err != nil {
				return err
			}
		case TokenImm:
			ref := imm.Token.Type
			if imm.Token.Method != nil {
				ref = imm.Token.Method.DeclaringType
			}
			if err := check(ref, fmt.Sprintf("IL_%04d", pc)); err != nil {
				return err
			}
		}
	}

	for i, h := range body.Handlers {
		if h.CatchType == nil {
			return invalid(t, m.Name, "handler %d: missing catch type", i)
		}
		if !(0 <= h.TryStart && h.TryStart < h.TryEnd && h.TryEnd <= h.HandlerStart &&
			h.HandlerStart < h.HandlerEnd && h.HandlerEnd <= n) {
			return invalid(t, m.Name, "handler %d: region [%d,%d) [%d,%d) out of range",
				i, h.TryStart, h.TryEnd, h.HandlerStart, h.HandlerEnd)
		}
	}
	return nil
}

// checkParams reports generic parameter references outside the owner's arity.
func checkParams(r *TypeRef, typeArity, methodArity int) error {
	switch r.Kind {
	case KindTypeParam:
		if r.Position >= typeArity {
			return fmt.Errorf("type parameter !%d out of range (arity %d)", r.Position, typeArity)
		}
	case KindMethodParam:
		if r.Position >= methodArity {
			return fmt.Errorf("method parameter !!%d out of range (arity %d)", r.Position, methodArity)
		}
	case KindArray, KindNullable:
		if r.Elem == nil {
			return fmt.Errorf("%s without element type", r.Kind)
		}
		return checkParams(r.Elem, typeArity, methodArity)
	case KindGenericInst:
		if len(r.Args) == 0 {
			return fmt.Errorf("generic instance %s without arguments", r.Name)
		}
		for _, a := range r.Args {
			if err := checkParams(a, typeArity, methodArity); err != nil {
				return err
			}
		}
	default:
		if r.Kind >= kindCount {
			return fmt.Errorf("unknown type kind %d", r.Kind)
		}
	}
	return nil
}
