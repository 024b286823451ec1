package vm

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
)

// Exception is a managed exception propagating as a Go error.
type Exception struct {
	// Object is the thrown instance.
	Object  *Object
	Type    string
	Message string
	// Inner is the exception a type initializer failed with.
	Inner *Exception
	// Cause is the host error the exception was raised from, if any.
	Cause error
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

func (e *Exception) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	if e.Inner != nil {
		return e.Inner
	}
	return nil
}

// Is matches another *Exception by type name, so callers can test
// errors.Is(err, &vm.Exception{Type: hostlib.InvalidCastException}).
func (e *Exception) Is(target error) bool {
	t, ok := target.(*Exception)
	return ok && t.Object == nil && t.Type == e.Type
}

// exceptionOf wraps a thrown object.
func exceptionOf(obj *Object) *Exception {
	msg, _ := obj.Field(hostlib.MessageField)
	s, _ := msg.(string)
	return &Exception{Object: obj, Type: obj.Class.Name, Message: s}
}

// newException creates an exception of a host library type without
// running its constructor.
func (in *Instance) newException(typeName, message string, inner *Exception) *Exception {
	ex := &Exception{Type: typeName, Message: message, Inner: inner}
	cls, err := in.class(hostlib.Ref(typeName))
	if err != nil {
		in.log.Warn("exception type unavailable", zap.String("type", typeName), zap.Error(err))
		return ex
	}
	ex.Object = cls.newObject()
	ex.Object.SetField(hostlib.MessageField, message)
	ex.Object.Native = ex
	return ex
}

// throw creates a host exception with its default message.
func (in *Instance) throw(typeName string) *Exception {
	return in.newException(typeName, hostlib.DefaultMessage(typeName), nil)
}

// raise turns host faults reported by package intercept and the natives
// into managed exceptions. Other errors stay fatal.
func (in *Instance) raise(err error) error {
	if err == nil {
		return nil
	}
	var ex *Exception
	if stderrors.As(err, &ex) {
		return ex
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return err
	}
	var typeName string
	switch e.Kind {
	case errors.KindOutOfBounds:
		typeName = hostlib.IndexOutOfRangeException
	case errors.KindNullReference:
		typeName = hostlib.NullReferenceException
	case errors.KindTypeMismatch:
		typeName = hostlib.InvalidCastException
	default:
		return err
	}
	msg := e.Detail
	if msg == "" {
		msg = hostlib.DefaultMessage(typeName)
	}
	ex = in.newException(typeName, msg, nil)
	ex.Cause = err
	in.log.Warn("host fault raised", zap.String("exception", typeName), zap.Error(err))
	return ex
}

func cancelled(err error) error {
	return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "execution cancelled")
}
