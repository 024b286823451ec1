// Package generic rebinds generated references to the closed
// self-instantiation of their declaring type.
//
// Generated code that lives in, or points into, a generic type definition
// must not reference the open definition: the reference would not say which
// instantiation it means. Instead it references the type instantiated with
// its own parameters, T<!0,...,!n>. The runtime substitutes the executing
// frame's type arguments for the parameters, so the same instruction binds
// to T<int,string> in one instantiation and to T<float,string> in another.
package generic
