package intercept

import (
	"fmt"
	"strings"

	"github.com/wippyai/weave/errors"
)

// Chain faults.
var (
	// ErrCursorOutOfRange is returned by Proceed when it is called again
	// after the chain already reached the original method.
	ErrCursorOutOfRange = &errors.Error{
		Phase:  errors.PhaseRuntime,
		Kind:   errors.KindOutOfBounds,
		Detail: "proceed called after the chain completed",
	}

	// ErrNoInvoker is returned when the chain reaches a nil invoker.
	ErrNoInvoker = &errors.Error{
		Phase:  errors.PhaseRuntime,
		Kind:   errors.KindNullReference,
		Detail: "invocation has no invoker",
	}
)

// Method identifies a woven method. Type names are in il notation.
type Method struct {
	DeclaringType string
	Name          string
	Return        string
	Params        []string
	Static        bool
}

// NewMethod builds a descriptor that owns its parameter list.
func NewMethod(declaringType, name string, params []string, ret string, static bool) Method {
	return Method{
		DeclaringType: declaringType,
		Name:          name,
		Params:        append([]string(nil), params...),
		Return:        ret,
		Static:        static,
	}
}

// ReturnsVoid reports whether the method returns nothing.
func (m Method) ReturnsVoid() bool {
	return m.Return == "" || m.Return == "void"
}

func (m Method) String() string {
	return m.DeclaringType + "::" + m.Name + "(" + strings.Join(m.Params, ",") + ")"
}

// Invoker calls the original method with erased arguments.
type Invoker func(target any, args []any) (any, error)

// Invocation is the per-call dispatch object shared by a chain of
// interceptors. It is owned by a single call and is not safe for
// concurrent use.
type Invocation struct {
	result       any
	target       any
	invoke       Invoker
	method       Method
	interceptors []Interceptor
	args         []any
	cursor       int
	cancelled    bool
}

// NewInvocation creates an invocation. The interceptor slice is shared and
// must not be modified; args is owned by the invocation and may be mutated
// by interceptors.
func NewInvocation(interceptors []Interceptor, method Method, invoke Invoker, target any, args []any) *Invocation {
	return &Invocation{
		interceptors: interceptors,
		method:       method,
		invoke:       invoke,
		target:       target,
		args:         args,
		cursor:       -1,
	}
}

// Proceed runs the chain from the current cursor. An interceptor that does
// not proceed itself is followed by the next one; once every interceptor
// has run, the invoker is called and its result stored. Nested calls share
// the cursor, so an outer frame returns once a nested one finished the chain.
func (inv *Invocation) Proceed() error {
	n := len(inv.interceptors)
	for {
		if inv.cancelled || inv.cursor > n {
			return nil
		}
		inv.cursor++

		if inv.cursor == n {
			if inv.invoke == nil {
				return ErrNoInvoker
			}
			result, err := inv.invoke(inv.target, inv.args)
			if err != nil {
				return err
			}
			inv.result = result
			return nil
		}
		if inv.cursor > n {
			return ErrCursorOutOfRange
		}

		current := inv.cursor
		if err := inv.interceptors[current].Intercept(inv); err != nil {
			return err
		}
		if inv.cursor != current {
			return nil
		}
	}
}

// Cancel stops the chain at the next Proceed loop check. Set the result
// first; Cancel does not touch it.
func (inv *Invocation) Cancel() { inv.cancelled = true }

// Cancelled reports whether Cancel was called.
func (inv *Invocation) Cancelled() bool { return inv.cancelled }

// Cursor returns the index of the interceptor being dispatched, -1 before
// the first Proceed, or the interceptor count once the invoker ran.
func (inv *Invocation) Cursor() int { return inv.cursor }

// Len returns the number of interceptors in the chain.
func (inv *Invocation) Len() int { return len(inv.interceptors) }

// Method returns the method being invoked.
func (inv *Invocation) Method() Method { return inv.method }

// Target returns the receiver, or nil for static methods.
func (inv *Invocation) Target() any { return inv.target }

// Args returns the argument slice. Writes are visible to later interceptors
// and to the invoker.
func (inv *Invocation) Args() []any { return inv.args }

// Arg returns argument i.
func (inv *Invocation) Arg(i int) (any, error) {
	if i < 0 || i >= len(inv.args) {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, []string{inv.method.Name, "args"}, i, len(inv.args))
	}
	return inv.args[i], nil
}

// SetArg replaces argument i.
func (inv *Invocation) SetArg(i int, v any) error {
	if i < 0 || i >= len(inv.args) {
		return errors.OutOfBounds(errors.PhaseRuntime, []string{inv.method.Name, "args"}, i, len(inv.args))
	}
	inv.args[i] = v
	return nil
}

// Result returns the current result.
func (inv *Invocation) Result() any { return inv.result }

// SetResult replaces the result.
func (inv *Invocation) SetResult(v any) { inv.result = v }

func (inv *Invocation) String() string {
	return fmt.Sprintf("%s cursor=%d/%d cancelled=%t", inv.method, inv.cursor, len(inv.interceptors), inv.cancelled)
}
