// Package il models compiled program modules and reads and writes their
// binary form.
//
// A Module holds type definitions; each TypeDef holds fields, methods and
// nested types, and each MethodDef an optional body of stack instructions
// with typed catch regions. Cross-member references are symbolic (TypeRef,
// MethodRef, FieldRef) and are bound by a Resolver against the main module
// and the libraries it references by scope.
//
// The binary format is a magic number and version followed by header,
// reference and type sections. Integers are LEB128; custom attribute
// arguments are stored as canonical CBOR blobs.
//
//	m, err := il.ParseModuleValidate(data)
//	...
//	out, err := m.Encode()
package il
