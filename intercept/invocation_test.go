package intercept

import (
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/weave/errors"
)

var testMethod = NewMethod("Tests.InterceptMe", "Run", []string{"int32"}, "int32", false)

type recorder struct {
	calls []string
}

func (r *recorder) step(name string, proceed bool) Interceptor {
	return InterceptorFunc(func(inv *Invocation) error {
		r.calls = append(r.calls, name)
		if proceed {
			return inv.Proceed()
		}
		return nil
	})
}

func (r *recorder) invoker(result any) Invoker {
	return func(target any, args []any) (any, error) {
		r.calls = append(r.calls, "invoke")
		return result, nil
	}
}

func TestProceedCallsEachInterceptorOnceInOrder(t *testing.T) {
	tests := []struct {
		name    string
		proceed []bool
	}{
		{"none proceed", []bool{false, false, false}},
		{"all proceed", []bool{true, true, true}},
		{"first proceeds", []bool{true, false, false}},
		{"last proceeds", []bool{false, false, true}},
		{"middle proceeds", []bool{false, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			names := []string{"a", "b", "c"}
			chain := make([]Interceptor, len(names))
			for i, n := range names {
				chain[i] = rec.step(n, tt.proceed[i])
			}

			inv := NewInvocation(chain, testMethod, rec.invoker(int32(7)), nil, []any{int32(1)})
			require.NoError(t, inv.Proceed())

			assert.Equal(t, []string{"a", "b", "c", "invoke"}, rec.calls)
			assert.Equal(t, int32(7), inv.Result())
			assert.Equal(t, 3, inv.Cursor())
		})
	}
}

func TestProceedWithoutInterceptors(t *testing.T) {
	rec := &recorder{}
	inv := NewInvocation(nil, testMethod, rec.invoker("done"), nil, nil)
	require.NoError(t, inv.Proceed())
	assert.Equal(t, []string{"invoke"}, rec.calls)
	assert.Equal(t, "done", inv.Result())
}

func TestCancelStopsChain(t *testing.T) {
	rec := &recorder{}
	chain := []Interceptor{
		rec.step("first", false),
		InterceptorFunc(func(inv *Invocation) error {
			rec.calls = append(rec.calls, "cancel")
			inv.SetResult(int32(5))
			inv.Cancel()
			return nil
		}),
		rec.step("after", false),
	}

	inv := NewInvocation(chain, testMethod, rec.invoker(int32(0)), nil, nil)
	require.NoError(t, inv.Proceed())

	assert.Equal(t, []string{"first", "cancel"}, rec.calls)
	assert.Equal(t, int32(5), inv.Result())
	assert.True(t, inv.Cancelled())
}

func TestCancelAfterNestedProceedKeepsResult(t *testing.T) {
	rec := &recorder{}
	chain := []Interceptor{
		InterceptorFunc(func(inv *Invocation) error {
			if err := inv.Proceed(); err != nil {
				return err
			}
			inv.Cancel()
			return nil
		}),
		rec.step("inner", false),
	}
	inv := NewInvocation(chain, testMethod, rec.invoker(int32(3)), nil, nil)
	require.NoError(t, inv.Proceed())
	assert.Equal(t, []string{"inner", "invoke"}, rec.calls)
	assert.Equal(t, int32(3), inv.Result())
}

func TestLogWrapsEatError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	failing := func(target any, args []any) (any, error) {
		return nil, stderrors.New("not implemented")
	}
	state := NewStubState(
		NewMethod("Tests.InterceptMe", "WithEatExceptionAndLogNotImplemented", []string{"int32", "float32"}, "int32", false),
		[]Descriptor{
			{Name: "EatException", Order: 2, Behavior: EatError{Value: int32(42)}},
			{Name: "Log", Order: 1, Behavior: Log{Logger: logger, Level: zapcore.InfoLevel}},
		},
		failing,
	)

	result, err := state.Dispatch(nil, []any{int32(1), float32(2)})
	require.NoError(t, err)
	assert.Equal(t, int32(42), result)

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "WithEatExceptionAndLogNotImplemented", ctx["method"])
	assert.Equal(t, "42", ctx["result"])
	assert.Equal(t, []any{"1", "2"}, ctx["args"])
}

func TestLogPassesErrorThrough(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	boom := stderrors.New("boom")
	inv := NewInvocation(
		[]Interceptor{Log{Logger: zap.New(core), Level: zapcore.WarnLevel}},
		testMethod,
		func(any, []any) (any, error) { return nil, boom },
		nil, []any{nil},
	)
	err := inv.Proceed()
	assert.ErrorIs(t, err, boom)
	require.Len(t, logs.All(), 1)
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])
	assert.Equal(t, []any{"null"}, logs.All()[0].ContextMap()["args"])
}

func TestTwoIncrementArgs(t *testing.T) {
	var seen any
	state := NewStubState(testMethod, []Descriptor{
		{Name: "IncrementArg", Behavior: IncrementArg{}},
		{Name: "IncrementArg", Behavior: IncrementArg{}},
	}, func(target any, args []any) (any, error) {
		seen = args[0]
		return args[0], nil
	})

	result, err := state.Dispatch(nil, []any{int32(0)})
	require.NoError(t, err)
	assert.Equal(t, int32(2), seen)
	assert.Equal(t, int32(2), result)
}

func TestIncrementArgKeepsType(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int32(1), int32(2)},
		{int64(-1), int64(0)},
		{1, 2},
		{uint8(9), uint8(10)},
		{float32(1), float32(2)},
		{float64(1.5), float64(3)},
		{float64(2.5), float64(3)},
	}
	for _, tt := range tests {
		args := []any{tt.in}
		inv := NewInvocation(nil, testMethod, nil, nil, args)
		require.NoError(t, IncrementArg{}.Intercept(inv))
		assert.Equal(t, tt.want, args[0], "increment %#v", tt.in)
	}
}

func TestIncrementArgErrors(t *testing.T) {
	inv := NewInvocation(nil, testMethod, nil, nil, []any{nil, "x"})

	err := IncrementArg{Index: 0}.Intercept(inv)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindNullReference}))

	err = IncrementArg{Index: 1}.Intercept(inv)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindTypeMismatch}))

	err = IncrementArg{Index: 5}.Intercept(inv)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindOutOfBounds}))
}

func TestAbort(t *testing.T) {
	called := false
	state := NewStubState(testMethod, []Descriptor{{Name: "Abort", Behavior: Abort{Value: int32(911)}}},
		func(any, []any) (any, error) {
			called = true
			return int32(10), nil
		})
	result, err := state.Dispatch(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(911), result)
	assert.False(t, called, "original body must not run")
}

func TestAbortWithNilInvoker(t *testing.T) {
	inv := NewInvocation([]Interceptor{Abort{Value: int32(911)}}, testMethod, nil, nil, nil)
	require.NoError(t, inv.Proceed())
	assert.Equal(t, int32(911), inv.Result())
}

func TestNilInvokerFault(t *testing.T) {
	inv := NewInvocation(nil, testMethod, nil, nil, nil)
	assert.ErrorIs(t, inv.Proceed(), ErrNoInvoker)
}

func TestProceedAfterCompletionFaults(t *testing.T) {
	rec := &recorder{}
	var second error
	chain := []Interceptor{InterceptorFunc(func(inv *Invocation) error {
		if err := inv.Proceed(); err != nil {
			return err
		}
		second = inv.Proceed()
		return nil
	})}

	inv := NewInvocation(chain, testMethod, rec.invoker(int32(1)), nil, nil)
	require.NoError(t, inv.Proceed())
	assert.ErrorIs(t, second, ErrCursorOutOfRange)
	assert.Equal(t, []string{"invoke"}, rec.calls, "invoker must run at most once")
	assert.Equal(t, 2, inv.Cursor())

	require.NoError(t, inv.Proceed(), "proceeding past the fault is a no-op")
}

func TestErrorsUnwindChain(t *testing.T) {
	boom := stderrors.New("boom")
	rec := &recorder{}
	chain := []Interceptor{
		rec.step("outer", true),
		InterceptorFunc(func(inv *Invocation) error { return boom }),
		rec.step("never", false),
	}
	inv := NewInvocation(chain, testMethod, rec.invoker(nil), nil, nil)
	assert.ErrorIs(t, inv.Proceed(), boom)
	assert.Equal(t, []string{"outer"}, rec.calls)
}

func TestArgsAreShared(t *testing.T) {
	args := []any{int32(1)}
	inv := NewInvocation(nil, testMethod, nil, nil, args)
	require.NoError(t, inv.SetArg(0, int32(9)))
	assert.Equal(t, int32(9), args[0])
	v, err := inv.Arg(0)
	require.NoError(t, err)
	assert.Equal(t, int32(9), v)
	_, err = inv.Arg(-1)
	assert.Error(t, err)
}

func TestSortIsStable(t *testing.T) {
	ds := []Descriptor{
		{Name: "b1", Order: 2},
		{Name: "a1", Order: 1},
		{Name: "b2", Order: 2},
		{Name: "z", Order: 0},
		{Name: "a2", Order: 1},
		{Name: "b3", Order: 2},
	}
	Sort(ds)
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"z", "a1", "a2", "b1", "b2", "b3"}, names)
}

func TestNewStubStateDoesNotReorderInput(t *testing.T) {
	ds := []Descriptor{{Name: "late", Order: 5}, {Name: "early", Order: 1}}
	NewStubState(testMethod, ds, nil)
	assert.Equal(t, "late", ds[0].Name)
}

func TestStubBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	stub := NewStub(func() (*StubState, error) {
		builds.Add(1)
		return NewStubState(testMethod, nil, nil), nil
	})

	var wg sync.WaitGroup
	states := make([]*StubState, 16)
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := stub.State()
			assert.NoError(t, err)
			states[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, s := range states {
		assert.Same(t, states[0], s)
	}
}

func TestMethodDescriptor(t *testing.T) {
	params := []string{"int32"}
	m := NewMethod("A", "B", params, "void", true)
	params[0] = "changed"
	assert.Equal(t, "A::B(int32)", m.String())
	assert.True(t, m.ReturnsVoid())
	assert.False(t, testMethod.ReturnsVoid())
}
