package intercept

import "sync"

// StubState is the cached per-method dispatch state: the method, its
// ordered interceptors and the invoker of the original body. It is
// immutable once built and may be shared by concurrent calls.
type StubState struct {
	Invoke       Invoker
	Method       Method
	Interceptors []Interceptor
}

// NewStubState sorts a copy of ds and builds the state.
func NewStubState(method Method, ds []Descriptor, invoke Invoker) *StubState {
	sorted := append([]Descriptor(nil), ds...)
	Sort(sorted)
	return &StubState{
		Method:       method,
		Interceptors: Behaviors(sorted),
		Invoke:       invoke,
	}
}

// NewInvocation starts a call. args is owned by the returned invocation.
func (s *StubState) NewInvocation(target any, args []any) *Invocation {
	return NewInvocation(s.Interceptors, s.Method, s.Invoke, target, args)
}

// Dispatch runs a call through the chain and returns its result.
func (s *StubState) Dispatch(target any, args []any) (any, error) {
	inv := s.NewInvocation(target, args)
	if err := inv.Proceed(); err != nil {
		return nil, err
	}
	return inv.Result(), nil
}

// Stub builds a StubState on first use. Concurrent callers block until the
// build finished; the state or error is then returned to every caller.
type Stub struct {
	build func() (*StubState, error)
	state *StubState
	err   error
	once  sync.Once
}

// NewStub returns a stub that builds its state with build.
func NewStub(build func() (*StubState, error)) *Stub {
	return &Stub{build: build}
}

// State returns the built state.
func (s *Stub) State() (*StubState, error) {
	s.once.Do(func() {
		s.state, s.err = s.build()
		s.build = nil
	})
	return s.state, s.err
}
