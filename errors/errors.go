package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode   Phase = "decode"   // module binary to model
	PhaseEncode   Phase = "encode"   // model to module binary
	PhaseValidate Phase = "validate" // loader checks
	PhaseResolve  Phase = "resolve"  // reference resolution
	PhaseWeave    Phase = "weave"    // method rewriting
	PhaseLoad     Phase = "load"     // vm module loading
	PhaseRuntime  Phase = "runtime"  // execution
	PhaseConfig   Phase = "config"   // configuration files
)

// Kind categorizes the error
type Kind string

const (
	KindResolution    Kind = "resolution"
	KindUnsupported   Kind = "unsupported"
	KindInvalidData   Kind = "invalid_data"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindNotFound      Kind = "not_found"
	KindTypeMismatch  Kind = "type_mismatch"
	KindAlreadyWoven  Kind = "already_woven"
	KindInvalidInput  Kind = "invalid_input"
	KindNullReference Kind = "null_reference"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string // IL type the error refers to
	Member string // method or field name within Type
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "/"))
	}

	if e.Type != "" {
		b.WriteString(": ")
		b.WriteString(e.Type)
		if e.Member != "" {
			b.WriteString("::")
			b.WriteString(e.Member)
		}
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the IL type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Member sets the member name
func (b *Builder) Member(m string) *Builder {
	b.err.Member = m
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Resolution creates a reference resolution error
func Resolution(what, name string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindResolution,
		Detail: fmt.Sprintf("cannot resolve %s %q", what, name),
	}
}

// Unsupported creates an unsupported shape error
func Unsupported(phase Phase, typ, member, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Type:   typ,
		Member: member,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Type:   want,
		Detail: fmt.Sprintf("got %s", got),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// AlreadyWoven reports a module that already carries generated stubs
func AlreadyWoven(typ, holder string) *Error {
	return &Error{
		Phase:  PhaseWeave,
		Kind:   KindAlreadyWoven,
		Type:   typ,
		Member: holder,
		Detail: "module is already woven; re-weaving is not supported",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
