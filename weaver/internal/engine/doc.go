// Package engine rewrites the intercepted methods of an il module.
//
// Weaving pipeline, per module:
//  1. Reject modules that already carry generated holders
//  2. Import the interception runtime references from the host library
//  3. Discover methods carrying interceptor attributes and check their shape
//  4. For each method: split it into a renamed original and a trampoline,
//     generate its holder type, and replace its body with dispatch code
//  5. Regenerate the module identity and validate the result
//
// Discovery runs to completion before anything is mutated, so shape and
// resolution errors leave the module untouched.
package engine
