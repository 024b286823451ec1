// Package hostlib describes the runtime library woven modules link against.
//
// Module returns an il.Module in scope "weave.runtime" that declares the
// system types (object, string, the standard exceptions, attributes and
// reflection handles) and the interception runtime: IInterceptor,
// InterceptorAttribute, Invocation, MethodInvoker and StubHelper. Members
// marked native are implemented by the vm. The Weave.Interceptors
// attributes are bound to the built-in interceptors of package intercept.
//
// The weaver imports references from this module; the vm binds them.
package hostlib
