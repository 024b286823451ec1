// Package intercept implements the interception chain woven methods
// dispatch through.
//
// A woven call builds an Invocation from the method's StubState and calls
// Proceed. Proceed walks the ordered interceptors over a shared cursor:
// each interceptor runs exactly once, either because a previous one called
// Proceed (reentrantly, on the same cursor) or because the chain advanced
// after it returned. When the cursor passes the last interceptor the
// Invoker runs the original method. Cancel stops further advancement.
//
//	state := intercept.NewStubState(method, []intercept.Descriptor{
//		{Name: "log", Order: 1, Behavior: intercept.Log{Logger: logger}},
//		{Name: "eat", Order: 2, Behavior: intercept.EatError{Value: int32(42)}},
//	}, invoke)
//	result, err := state.Dispatch(target, args)
//
// Calling Proceed again after the chain completed returns
// ErrCursorOutOfRange.
package intercept
