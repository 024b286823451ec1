// Package weaver statically weaves interceptor dispatch into il modules.
//
// # Overview
//
// A method is intercepted when it carries custom attributes whose type
// derives from Weave.Runtime.InterceptorAttribute. Weaving rewrites each
// such method M of type T once, ahead of execution:
//
//  1. The body moves to a private clone, M_original.
//  2. A private nested holder type, M_stub, gets three static fields
//     (Method, Interceptors, Invoker), a static trampoline CallOriginal that
//     unboxes the erased arguments and calls M_original, and a type
//     initializer that fills the fields on first use.
//  3. M's body is replaced by dispatch: the arguments are boxed into an
//     array, an Invocation is built from the holder's fields and Proceed
//     drives the interceptors in ascending Order before the trampoline runs.
//
// Overloads that are both intercepted get an index suffix after the first:
// M_stub, M1_stub, and so on. For generic declaring types, every generated
// reference goes through the type's self-instantiation T<!0..!n>, so each
// closed instantiation gets its own holder state at run time.
//
// # Usage
//
//	out, report, err := weaver.Weave(data, weaver.Config{
//	    ExcludePatterns: []string{"Tests.Internal*"},
//	})
//
// ProcessFile weaves a file and replaces the destination only on success.
// LoadConfig reads weave.toml (or $WEAVE_CONFIG) for command-line use.
//
// # Restrictions
//
// Constructors, generic methods, abstract and native methods, and methods
// of value types cannot be intercepted; they fail the whole pass. A module
// that already contains generated holders is rejected.
package weaver
