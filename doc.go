// Package weave rewrites methods of compiled il modules so that calls run
// through a chain of interceptors before reaching the original code.
//
// Interception is declared with custom attributes. Any attribute type
// deriving from Weave.Interceptors.InterceptorAttribute marks the method it
// is applied to; the weaver moves the original body into a private copy,
// adds a nested holder type that caches the reflected method, the bound
// interceptors and an invoker, and replaces the body with a call that
// builds an Invocation and proceeds through the chain.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	weave/
//	├── il/          Module model, binary codec, emitter, resolver, validation
//	├── hostlib/     The runtime library woven modules link against
//	├── intercept/   Invocation chain, interceptor ordering, stub state
//	├── weaver/      Configuration, weaving passes and reports
//	├── vm/          Interpreter for il modules with the host library built in
//	├── errors/      Structured error types for debugging
//	├── cmd/weave/   Command-line weaver
//	└── cmd/run/     Runner and interactive explorer for il modules
//
// # Quick Start
//
// Weave a module file and run a woven method:
//
//	report, err := weaver.ProcessFile("in.wil", "out.wil", weaver.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	data, _ := os.ReadFile("out.wil")
//	m, err := il.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := vm.New().Load(ctx, m)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cls, _ := inst.Type("Tests.InterceptMe")
//	obj, _ := inst.New(ctx, cls)
//	result, err := inst.Call(ctx, obj, "WithAbort")
//
// # Interceptor Ordering
//
// Interceptors run in ascending Order. Attributes with equal Order keep
// their declaration order. An interceptor that returns without calling
// Proceed stops the chain, and its Result becomes the call's result.
//
// # Error Handling
//
// All packages report failures as *errors.Error with a Phase and a Kind:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseWeave, Kind: errors.KindAlreadyWoven}) {
//	    // module was woven before
//	}
//
// Exceptions thrown by interpreted code surface as *vm.Exception.
//
// # Configuration
//
// cmd/weave reads weave.toml next to the source module, or the file named
// by $WEAVE_CONFIG. See weaver.FileConfig for the keys.
package weave
