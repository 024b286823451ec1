package intercept

import (
	"cmp"
	"slices"
)

// Interceptor is a behavior that participates in a method's dispatch chain.
//
// Intercept may call inv.Proceed to run the rest of the chain itself; if it
// returns without doing so, the chain advances on its behalf. A returned
// error unwinds every pending Proceed frame.
type Interceptor interface {
	Intercept(inv *Invocation) error
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(inv *Invocation) error

// Intercept implements Interceptor.
func (f InterceptorFunc) Intercept(inv *Invocation) error {
	return f(inv)
}

// Descriptor is an orderable interceptor declaration attached to a method.
type Descriptor struct {
	Behavior Interceptor
	Name     string
	Order    int
}

// Sort orders descriptors ascending by Order. Ties keep declaration order.
func Sort(ds []Descriptor) {
	slices.SortStableFunc(ds, func(a, b Descriptor) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

// Behaviors returns the interceptors of ds in order.
func Behaviors(ds []Descriptor) []Interceptor {
	out := make([]Interceptor, len(ds))
	for i, d := range ds {
		out[i] = d.Behavior
	}
	return out
}
