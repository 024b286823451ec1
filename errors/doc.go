// Package errors provides structured error types for the weave module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: element path, IL type and member names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseWeave, errors.KindUnsupported).
//		Type("Shop.Cart").
//		Member("Add").
//		Detail("generic methods cannot be woven").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Resolution("method", "Weave.Runtime.Invocation::Proceed()")
//	err := errors.OutOfBounds(errors.PhaseRuntime, nil, 3, 2)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
