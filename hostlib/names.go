package hostlib

import "github.com/wippyai/weave/il"

// Scope is the scope woven modules use to reference this library.
const Scope = il.CoreScope

// System types.
const (
	Object                      = il.ObjectTypeName
	String                      = il.StringTypeName
	Exception                   = "System.Exception"
	NotImplementedException     = "System.NotImplementedException"
	InvalidCastException        = "System.InvalidCastException"
	NullReferenceException      = "System.NullReferenceException"
	IndexOutOfRangeException    = "System.IndexOutOfRangeException"
	ArgumentException           = "System.ArgumentException"
	InvalidOperationException   = "System.InvalidOperationException"
	TypeInitializationException = "System.TypeInitializationException"
	Attribute                   = "System.Attribute"
	RuntimeMethodHandle         = "System.RuntimeMethodHandle"
	RuntimeTypeHandle           = "System.RuntimeTypeHandle"
	MethodBase                  = "System.Reflection.MethodBase"
	MethodInfo                  = "System.Reflection.MethodInfo"
)

// Interception runtime types.
const (
	IInterceptor         = "Weave.Runtime.IInterceptor"
	InterceptorAttribute = "Weave.Runtime.InterceptorAttribute"
	Invocation           = "Weave.Runtime.Invocation"
	MethodInvoker        = "Weave.Runtime.MethodInvoker"
	StubHelper           = "Weave.Runtime.StubHelper"
)

// Host-bound interceptor attributes, implemented by package intercept.
const (
	LogAttribute          = "Weave.Interceptors.LogAttribute"
	EatExceptionAttribute = "Weave.Interceptors.EatExceptionAttribute"
	IncrementArgAttribute = "Weave.Interceptors.IncrementArgAttribute"
	AbortAttribute        = "Weave.Interceptors.AbortAttribute"
)

// Member names used by generated code.
const (
	GetMethodFromHandle = "GetMethodFromHandle"
	GetInterceptorsFor  = "GetInterceptorsFor"
	Proceed             = "Proceed"
	Cancel              = "Cancel"
	GetResult           = "get_Result"
	SetResult           = "set_Result"
	GetArguments        = "get_Arguments"
	GetTarget           = "get_Target"
	GetMethod           = "get_Method"
	Intercept           = "Intercept"
	OnInvocation        = "OnInvocation"
	Unbox               = "Unbox"
	Invoke              = "Invoke"
	OrderField          = "Order"
	ValueField          = "Value"
	IndexField          = "Index"
	MessageField        = "_message"
)

// Names of woven members. The weaver's naming can override the suffixes
// and the trampoline; the holder field names are fixed.
const (
	HolderMethodField       = "Method"
	HolderInterceptorsField = "Interceptors"
	HolderInvokerField      = "Invoker"
	OriginalSuffix          = "_original"
	StubSuffix              = "_stub"
	Trampoline              = "CallOriginal"
)

// Ref returns a reference to a library reference type.
func Ref(name string) *il.TypeRef {
	switch name {
	case Object:
		return il.Object()
	case String:
		return il.String()
	case RuntimeMethodHandle, RuntimeTypeHandle:
		return il.NamedValue(Scope, name)
	}
	return il.Named(Scope, name)
}
