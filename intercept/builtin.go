package intercept

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/weave/errors"
)

// EatError proceeds, discards any error from the rest of the chain and
// replaces the result with Value.
type EatError struct {
	Value any
}

// Intercept implements Interceptor.
func (e EatError) Intercept(inv *Invocation) error {
	_ = inv.Proceed()
	inv.SetResult(e.Value)
	return nil
}

// Log proceeds and then writes one entry describing the call. Errors from
// the rest of the chain are logged and returned unchanged.
type Log struct {
	Logger *zap.Logger
	Level  zapcore.Level
}

// Intercept implements Interceptor.
func (l Log) Intercept(inv *Invocation) error {
	err := inv.Proceed()

	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if ce := logger.Check(l.Level, "invocation"); ce != nil {
		args := make([]string, len(inv.Args()))
		for i, a := range inv.Args() {
			args[i] = Format(a)
		}
		fields := []zap.Field{
			zap.String("method", inv.Method().Name),
			zap.String("type", inv.Method().DeclaringType),
			zap.Strings("args", args),
			zap.String("result", Format(inv.Result())),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		ce.Write(fields...)
	}
	return err
}

// Format renders an erased value; nil is "null".
func Format(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

// IncrementArg adds one to the numeric argument at Index, keeping its type.
// Floating-point values are rounded half to even before the increment.
// It never proceeds itself.
type IncrementArg struct {
	Index int
}

// Intercept implements Interceptor.
func (a IncrementArg) Intercept(inv *Invocation) error {
	v, err := inv.Arg(a.Index)
	if err != nil {
		return err
	}
	next, err := increment(v)
	if err != nil {
		return err
	}
	return inv.SetArg(a.Index, next)
}

func increment(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return x + 1, nil
	case int8:
		return x + 1, nil
	case int16:
		return x + 1, nil
	case int32:
		return x + 1, nil
	case int64:
		return x + 1, nil
	case uint8:
		return x + 1, nil
	case uint16:
		return x + 1, nil
	case uint32:
		return x + 1, nil
	case uint64:
		return x + 1, nil
	case float32:
		return float32(math.RoundToEven(float64(x)) + 1), nil
	case float64:
		return math.RoundToEven(x) + 1, nil
	case nil:
		return nil, errors.New(errors.PhaseRuntime, errors.KindNullReference).
			Detail("cannot increment a null argument").
			Build()
	}
	return nil, errors.TypeMismatch(errors.PhaseRuntime, "numeric", fmt.Sprintf("%T", v))
}

// Abort sets the result to Value and cancels the chain.
type Abort struct {
	Value any
}

// Intercept implements Interceptor.
func (a Abort) Intercept(inv *Invocation) error {
	inv.SetResult(a.Value)
	inv.Cancel()
	return nil
}
