// Package vm executes il modules against the host library.
//
// A Runtime holds execution limits and loggers. Load validates a module,
// binds it to the host library and returns an Instance, which owns the
// closed-type table: every closed generic instantiation is its own Class
// with separate static storage and a one-time type initializer.
//
// Values are plain Go values: int32, int64, float32, float64, bool, string
// and nil, plus *Object, *Array and the handle types. Boxing is identity;
// a nullable boxes to nil or its inner value.
//
// Managed exceptions surface as *Exception errors. Host interceptor
// attributes (Weave.Interceptors.*) are bound to the built-ins of package
// intercept; IL interceptor attributes run their OnInvocation bodies.
//
//	rt := vm.New(vm.WithLogger(log))
//	inst, err := rt.Load(ctx, module)
//	cls, err := inst.Type("Tests.InterceptMe")
//	obj, err := inst.New(ctx, cls)
//	res, err := inst.Call(ctx, obj, "WithTwoIncrementArg", int32(0))
package vm
