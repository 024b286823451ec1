package vm

import (
	"context"
	"math"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

// thread is one logical thread of managed execution. Type initializers
// it runs may be re-entered by the same thread.
type thread struct {
	in    *Instance
	ctx   context.Context
	depth int
}

func (in *Instance) newThread(ctx context.Context) *thread {
	return &thread{in: in, ctx: ctx}
}

type frame struct {
	m         *Method
	args      []any
	locals    []any
	stack     []any
	pc        int
	underflow bool
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() any {
	n := len(f.stack) - 1
	if n < 0 {
		f.underflow = true
		return nil
	}
	v := f.stack[n]
	f.stack = f.stack[:n]
	return v
}

// popN pops n values and returns them in push order.
func (f *frame) popN(n int) []any {
	if n > len(f.stack) {
		f.underflow = true
		return make([]any, n)
	}
	vs := make([]any, n)
	copy(vs, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vs
}

// invoke calls m with args, the receiver first for instance methods.
func (th *thread) invoke(m *Method, args []any) (any, error) {
	if err := th.ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	if th.depth >= th.in.rt.maxDepth {
		return nil, errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Type(m.Class.Name).
			Member(m.Def.Name).
			Detail("call depth limit %d exceeded", th.in.rt.maxDepth).
			Build()
	}
	th.depth++
	defer func() { th.depth-- }()

	if m.native != nil {
		return m.native(th, m, args)
	}
	if m.Def.IsNative() {
		return nil, errors.Unsupported(errors.PhaseRuntime, m.Class.Name, m.Def.Name, "native method without host implementation")
	}
	if m.Def.IsAbstract() || m.Def.Body == nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Type(m.Class.Name).
			Member(m.Def.Name).
			Detail("method has no body").
			Build()
	}

	body := m.Def.Body
	f := &frame{m: m, args: args, locals: make([]any, len(body.Locals))}
	for i, t := range body.Locals {
		f.locals[i] = zero(m.subst(t))
	}
	return th.run(f)
}

func (th *thread) run(f *frame) (any, error) {
	code := f.m.Def.Body.Instructions
	for {
		if f.pc >= len(code) {
			return nil, th.fault(f, "execution ran past the end of the body")
		}
		pc := f.pc
		f.pc++
		ret, done, err := th.step(f, code[pc])
		if err == nil && f.underflow {
			err = th.fault(f, "evaluation stack underflow at IL_%04d", pc)
		}
		if err != nil {
			ex, ok := err.(*Exception)
			if !ok {
				return nil, err
			}
			h, herr := th.handler(f, pc, ex)
			if herr != nil {
				return nil, herr
			}
			if h == nil {
				return nil, ex
			}
			f.stack = append(f.stack[:0], ex.Object)
			f.pc = h.HandlerStart
			continue
		}
		if done {
			return ret, nil
		}
	}
}

// handler returns the innermost handler covering pc that catches ex.
func (th *thread) handler(f *frame, pc int, ex *Exception) (*il.ExceptionHandler, error) {
	if ex.Object == nil {
		return nil, nil
	}
	hs := f.m.Def.Body.Handlers
	for i := range hs {
		h := &hs[i]
		if pc < h.TryStart || pc >= h.TryEnd {
			continue
		}
		ok, err := th.in.isInstance(ex.Object, f.m.subst(h.CatchType))
		if err != nil {
			return nil, err
		}
		if ok {
			return h, nil
		}
	}
	return nil, nil
}

func (th *thread) fault(f *frame, format string, args ...any) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidData).
		Type(f.m.Class.Name).
		Member(f.m.Def.Name).
		Detail(format, args...).
		Build()
}

func (th *thread) step(f *frame, ins il.Instruction) (any, bool, error) {
	in := th.in
	switch ins.Opcode {
	case il.OpNop:
	case il.OpLdnull:
		f.push(nil)
	case il.OpLdcI4:
		f.push(ins.Imm.(il.I32Imm).Value)
	case il.OpLdcI8:
		f.push(ins.Imm.(il.I64Imm).Value)
	case il.OpLdcR4:
		f.push(ins.Imm.(il.F32Imm).Value)
	case il.OpLdcR8:
		f.push(ins.Imm.(il.F64Imm).Value)
	case il.OpLdstr:
		f.push(ins.Imm.(il.StringImm).Value)
	case il.OpLdarg:
		f.push(f.args[ins.Imm.(il.VarImm).Index])
	case il.OpStarg:
		f.args[ins.Imm.(il.VarImm).Index] = f.pop()
	case il.OpLdloc:
		f.push(f.locals[ins.Imm.(il.VarImm).Index])
	case il.OpStloc:
		f.locals[ins.Imm.(il.VarImm).Index] = f.pop()
	case il.OpDup:
		v := f.pop()
		f.push(v)
		f.push(v)
	case il.OpPop:
		f.pop()

	case il.OpRet:
		if f.m.Def.ReturnsVoid() {
			return nil, true, nil
		}
		return f.pop(), true, nil
	case il.OpBr:
		f.pc = ins.Imm.(il.BranchImm).Target
	case il.OpBrtrue:
		if truthy(f.pop()) {
			f.pc = ins.Imm.(il.BranchImm).Target
		}
	case il.OpBrfalse:
		if !truthy(f.pop()) {
			f.pc = ins.Imm.(il.BranchImm).Target
		}
	case il.OpLeave:
		f.stack = f.stack[:0]
		f.pc = ins.Imm.(il.BranchImm).Target
	case il.OpThrow:
		obj, ok := f.pop().(*Object)
		if !ok || obj == nil {
			return nil, false, in.throw(hostlib.NullReferenceException)
		}
		if !obj.Class.derivesFrom(hostlib.Exception) {
			return nil, false, in.throw(hostlib.InvalidCastException)
		}
		if ex, ok := obj.Native.(*Exception); ok {
			return nil, false, ex
		}
		return nil, false, exceptionOf(obj)

	case il.OpAdd, il.OpSub, il.OpMul, il.OpDiv, il.OpRem:
		b := f.pop()
		a := f.pop()
		v, err := th.arith(ins.Opcode, a, b)
		if err != nil {
			return nil, false, err
		}
		f.push(v)
	case il.OpNeg:
		v, err := negate(f.pop())
		if err != nil {
			return nil, false, th.fault(f, "%v", err)
		}
		f.push(v)
	case il.OpCeq, il.OpClt, il.OpCgt:
		b := f.pop()
		a := f.pop()
		r, err := compare(ins.Opcode, a, b)
		if err != nil {
			return nil, false, th.fault(f, "%v", err)
		}
		if r {
			f.push(int32(1))
		} else {
			f.push(int32(0))
		}
	case il.OpConvI4, il.OpConvI8, il.OpConvR4, il.OpConvR8:
		v, err := convert(ins.Opcode, f.pop())
		if err != nil {
			return nil, false, th.fault(f, "%v", err)
		}
		f.push(v)

	case il.OpCall, il.OpCallvirt:
		ref, _ := ins.Method()
		target, err := th.resolveCall(f.m, ref)
		if err != nil {
			return nil, false, err
		}
		args := f.popN(target.Def.ArgCount())
		if ins.Opcode == il.OpCallvirt && target.Def.HasThis() {
			if args[0] == nil {
				return nil, false, in.throw(hostlib.NullReferenceException)
			}
			if target, err = th.virtual(args[0], target); err != nil {
				return nil, false, err
			}
		}
		if target.Def.IsStatic() {
			if err := target.Class.ensureInit(th); err != nil {
				return nil, false, err
			}
		}
		ret, err := th.invoke(target, args)
		if err != nil {
			return nil, false, err
		}
		if !target.Def.ReturnsVoid() {
			f.push(ret)
		}
	case il.OpNewobj:
		ref, _ := ins.Method()
		ctor, err := th.resolveCall(f.m, ref)
		if err != nil {
			return nil, false, err
		}
		obj, err := th.construct(ctor, f.popN(len(ctor.Def.Params)))
		if err != nil {
			return nil, false, err
		}
		f.push(obj)
	case il.OpLdftn:
		ref, _ := ins.Method()
		m, err := th.resolveCall(f.m, ref)
		if err != nil {
			return nil, false, err
		}
		f.push(&FuncPtr{Method: m})

	case il.OpLdfld, il.OpStfld:
		ref, _ := ins.Field()
		fd, err := in.res.ResolveField(ref)
		if err != nil {
			return nil, false, err
		}
		var v any
		if ins.Opcode == il.OpStfld {
			v = f.pop()
		}
		obj, ok := f.pop().(*Object)
		if !ok || obj == nil {
			return nil, false, in.throw(hostlib.NullReferenceException)
		}
		slot, ok := obj.Class.slots[fd]
		if !ok {
			return nil, false, in.throw(hostlib.InvalidCastException)
		}
		if ins.Opcode == il.OpStfld {
			obj.fields[slot] = v
		} else {
			f.push(obj.fields[slot])
		}
	case il.OpLdsfld, il.OpStsfld:
		ref, _ := ins.Field()
		cls, fd, err := th.resolveStatic(f.m, ref)
		if err != nil {
			return nil, false, err
		}
		if err := cls.ensureInit(th); err != nil {
			return nil, false, err
		}
		if ins.Opcode == il.OpStsfld {
			cls.setStatic(fd, f.pop())
		} else {
			f.push(cls.static(fd))
		}

	case il.OpNewarr:
		t, _ := ins.Type()
		n, ok := f.pop().(int32)
		if !ok {
			return nil, false, th.fault(f, "newarr length is not int32")
		}
		if n < 0 {
			return nil, false, in.newException(hostlib.ArgumentException, "Array length must be non-negative.", nil)
		}
		f.push(NewArray(f.m.subst(t), int(n)))
	case il.OpLdlen:
		a, ok := f.pop().(*Array)
		if !ok || a == nil {
			return nil, false, in.throw(hostlib.NullReferenceException)
		}
		f.push(int32(len(a.Items)))
	case il.OpLdelem:
		idx := f.pop()
		a, i, err := th.element(f.pop(), idx)
		if err != nil {
			return nil, false, err
		}
		f.push(a.Items[i])
	case il.OpStelem:
		v := f.pop()
		idx := f.pop()
		a, i, err := th.element(f.pop(), idx)
		if err != nil {
			return nil, false, err
		}
		a.Items[i] = v

	case il.OpBox:
		// Values are already boxed; a nullable is nil or its inner value.
	case il.OpUnboxAny:
		t, _ := ins.Type()
		v, err := th.unbox(f.pop(), f.m.subst(t), false)
		if err != nil {
			return nil, false, err
		}
		f.push(v)
	case il.OpCastclass, il.OpIsinst:
		t, _ := ins.Type()
		v := f.pop()
		if v == nil {
			f.push(nil)
			break
		}
		ok, err := in.isInstance(v, f.m.subst(t))
		if err != nil {
			return nil, false, err
		}
		switch {
		case ok:
			f.push(v)
		case ins.Opcode == il.OpIsinst:
			f.push(nil)
		default:
			return nil, false, in.throw(hostlib.InvalidCastException)
		}
	case il.OpLdtoken:
		tok := ins.Imm.(il.TokenImm).Token
		if tok.Method != nil {
			def, err := in.res.ResolveMethod(tok.Method)
			if err != nil {
				return nil, false, err
			}
			f.push(&MethodHandle{Def: def})
			break
		}
		cls, err := in.class(f.m.subst(tok.Type))
		if err != nil {
			return nil, false, err
		}
		f.push(&TypeHandle{Class: cls})

	default:
		return nil, false, errors.Unsupported(errors.PhaseRuntime, f.m.Class.Name, f.m.Def.Name, ins.Opcode.String())
	}
	return nil, false, nil
}

// resolveCall binds a call-site reference in the context of the calling
// method. Results are cached per class when the caller is not generic.
func (th *thread) resolveCall(caller *Method, ref *il.MethodRef) (*Method, error) {
	cacheable := len(caller.Args) == 0
	if cacheable {
		if m, ok := caller.Class.calls.Load(ref); ok {
			return m.(*Method), nil
		}
	}
	cls, err := th.in.class(ref.DeclaringType.Subst(caller.Class.Args, caller.Args))
	if err != nil {
		return nil, err
	}
	def, err := th.in.res.ResolveMethod(ref)
	if err != nil {
		return nil, err
	}
	owner := cls.owner(def.DeclaringType)
	if owner == nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindResolution).
			Type(cls.Name).
			Member(def.Name).
			Detail("method is declared by %s", def.DeclaringType.FullName()).
			Build()
	}
	m := owner.method(def)
	if len(ref.GenericArgs) > 0 {
		args := make([]*il.TypeRef, len(ref.GenericArgs))
		for i, a := range ref.GenericArgs {
			args[i] = a.Subst(caller.Class.Args, caller.Args)
		}
		return m.instantiate(args), nil
	}
	if cacheable {
		caller.Class.calls.Store(ref, m)
	}
	return m, nil
}

func (th *thread) resolveStatic(caller *Method, ref *il.FieldRef) (*Class, *il.FieldDef, error) {
	cls, err := th.in.class(ref.DeclaringType.Subst(caller.Class.Args, caller.Args))
	if err != nil {
		return nil, nil, err
	}
	fd, err := th.in.res.ResolveField(ref)
	if err != nil {
		return nil, nil, err
	}
	if !fd.IsStatic() {
		return nil, nil, errors.TypeMismatch(errors.PhaseRuntime, "static field", "instance field "+fd.Name)
	}
	return cls.staticOwner(fd), fd, nil
}

// virtual selects the implementation of target for the receiver v.
func (th *thread) virtual(v any, target *Method) (*Method, error) {
	var cls *Class
	switch x := v.(type) {
	case *Object:
		cls = x.Class
	case string:
		c, err := th.in.class(il.String())
		if err != nil {
			return nil, err
		}
		cls = c
	default:
		c, err := th.in.class(il.Object())
		if err != nil {
			return nil, err
		}
		cls = c
	}
	return cls.dispatch(target)
}

// construct allocates an instance of the ctor's class and runs the ctor.
func (th *thread) construct(ctor *Method, args []any) (*Object, error) {
	cls := ctor.Class
	if cls.Def.IsInterface() || cls.Def.Attributes&il.TypeAbstract != 0 {
		return nil, errors.Unsupported(errors.PhaseRuntime, cls.Name, ctor.Def.Name, "instantiating an abstract type")
	}
	if err := cls.ensureInit(th); err != nil {
		return nil, err
	}
	obj := cls.newObject()
	if _, err := th.invoke(ctor, append([]any{obj}, args...)); err != nil {
		return nil, err
	}
	return obj, nil
}

func (th *thread) element(av, idx any) (*Array, int, error) {
	a, ok := av.(*Array)
	if !ok || a == nil {
		return nil, 0, th.in.throw(hostlib.NullReferenceException)
	}
	var i int
	switch x := idx.(type) {
	case int32:
		i = int(x)
	case int64:
		i = int(x)
	default:
		return nil, 0, th.in.throw(hostlib.InvalidCastException)
	}
	if i < 0 || i >= len(a.Items) {
		return nil, 0, th.in.throw(hostlib.IndexOutOfRangeException)
	}
	return a, i, nil
}

// unbox converts an erased value to the closed type t. A nil value gives
// the zero value when lenient is set and throws for value types otherwise.
func (th *thread) unbox(v any, t *il.TypeRef, lenient bool) (any, error) {
	if v == nil {
		if isValue(t) && !lenient {
			return nil, th.in.throw(hostlib.NullReferenceException)
		}
		return zero(t), nil
	}
	ok, err := th.in.isInstance(v, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, th.in.newException(hostlib.InvalidCastException,
			"Unable to cast a value of type "+valueType(v)+" to "+displayName(t)+".", nil)
	}
	return v, nil
}

func valueType(v any) string {
	switch x := v.(type) {
	case *Object:
		return x.Class.Name
	case *Array:
		return x.String()
	case int32:
		return "int32"
	case int64:
		return "int64"
	case float32:
		return "float32"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case string:
		return "string"
	}
	return "object"
}

func negate(v any) (any, error) {
	switch x := v.(type) {
	case int32:
		return -x, nil
	case int64:
		return -x, nil
	case float32:
		return -x, nil
	case float64:
		return -x, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseRuntime, "numeric", valueType(v))
}

func (th *thread) arith(op il.Opcode, a, b any) (any, error) {
	switch x := a.(type) {
	case int32:
		y, ok := b.(int32)
		if !ok {
			break
		}
		if (op == il.OpDiv || op == il.OpRem) && y == 0 {
			return nil, th.in.newException(hostlib.InvalidOperationException, "Attempted to divide by zero.", nil)
		}
		if (op == il.OpDiv || op == il.OpRem) && x == math.MinInt32 && y == -1 {
			if op == il.OpRem {
				return int32(0), nil
			}
			return x, nil
		}
		return intOp(op, x, y), nil
	case int64:
		y, ok := b.(int64)
		if !ok {
			break
		}
		if (op == il.OpDiv || op == il.OpRem) && y == 0 {
			return nil, th.in.newException(hostlib.InvalidOperationException, "Attempted to divide by zero.", nil)
		}
		if (op == il.OpDiv || op == il.OpRem) && x == math.MinInt64 && y == -1 {
			if op == il.OpRem {
				return int64(0), nil
			}
			return x, nil
		}
		return intOp(op, x, y), nil
	case float32:
		if y, ok := b.(float32); ok {
			return float32(floatOp(op, float64(x), float64(y))), nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return floatOp(op, x, y), nil
		}
	}
	return nil, errors.TypeMismatch(errors.PhaseRuntime, valueType(a), valueType(b))
}

func intOp[T int32 | int64](op il.Opcode, x, y T) T {
	switch op {
	case il.OpAdd:
		return x + y
	case il.OpSub:
		return x - y
	case il.OpMul:
		return x * y
	case il.OpDiv:
		return x / y
	}
	return x % y
}

func floatOp(op il.Opcode, x, y float64) float64 {
	switch op {
	case il.OpAdd:
		return x + y
	case il.OpSub:
		return x - y
	case il.OpMul:
		return x * y
	case il.OpDiv:
		return x / y
	}
	return math.Mod(x, y)
}

func compare(op il.Opcode, a, b any) (bool, error) {
	if op == il.OpCeq {
		switch a.(type) {
		case nil, *Object, *Array, string, bool, *MethodHandle, *TypeHandle, *FuncPtr:
			return a == b, nil
		}
	}
	if x, ok := integer(a); ok {
		if y, ok := integer(b); ok {
			switch op {
			case il.OpCeq:
				return x == y, nil
			case il.OpClt:
				return x < y, nil
			}
			return x > y, nil
		}
	}
	x, xok := number(a)
	y, yok := number(b)
	if !xok || !yok {
		return false, errors.TypeMismatch(errors.PhaseRuntime, valueType(a), valueType(b))
	}
	switch op {
	case il.OpCeq:
		return x == y, nil
	case il.OpClt:
		return x < y, nil
	}
	return x > y, nil
}

func integer(v any) (int64, bool) {
	switch x := v.(type) {
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func convert(op il.Opcode, v any) (any, error) {
	switch x := v.(type) {
	case int32:
		return convertInt(op, int64(x)), nil
	case int64:
		return convertInt(op, x), nil
	case bool:
		n := int64(0)
		if x {
			n = 1
		}
		return convertInt(op, n), nil
	case float32:
		return convertFloat(op, float64(x)), nil
	case float64:
		return convertFloat(op, x), nil
	}
	return nil, errors.TypeMismatch(errors.PhaseRuntime, "numeric", valueType(v))
}

func convertInt(op il.Opcode, n int64) any {
	switch op {
	case il.OpConvI4:
		return int32(n)
	case il.OpConvI8:
		return n
	case il.OpConvR4:
		return float32(n)
	}
	return float64(n)
}

func convertFloat(op il.Opcode, f float64) any {
	switch op {
	case il.OpConvI4:
		return int32(f)
	case il.OpConvI8:
		return int64(f)
	case il.OpConvR4:
		return float32(f)
	}
	return f
}
