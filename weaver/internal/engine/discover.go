package engine

import (
	"slices"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/il"
)

// target is a method selected for weaving. index is its position among the
// woven methods of the same name in its declaring type.
type target struct {
	method  *il.MethodDef
	markers []*il.CustomAttribute
	index   int
}

// discover selects the methods to weave and checks their shape. Types and
// methods are snapshotted first, so members added later are never visited.
func (e *Engine) discover(m *il.Module, res *il.Resolver) ([]target, error) {
	var targets []target
	for _, t := range m.AllTypes() {
		groups := make(map[string]int)
		for _, meth := range slices.Clone(t.Methods) {
			markers, err := e.markers(res, meth)
			if err != nil {
				return nil, err
			}
			if len(markers) == 0 || !e.selected(t, meth) {
				continue
			}
			if err := checkShape(t, meth); err != nil {
				return nil, err
			}
			idx := groups[meth.Name]
			groups[meth.Name]++
			targets = append(targets, target{method: meth, markers: markers, index: idx})
		}
	}
	if err := e.checkNames(targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// markers returns the attributes of meth whose type derives from the marker.
// An attribute type or base that cannot be resolved is an error.
func (e *Engine) markers(res *il.Resolver, meth *il.MethodDef) ([]*il.CustomAttribute, error) {
	var out []*il.CustomAttribute
	for _, attr := range meth.CustomAttributes {
		if attr.Constructor == nil || attr.Constructor.DeclaringType == nil {
			return nil, errors.New(errors.PhaseWeave, errors.KindInvalidData).
				Type(meth.DeclaringType.FullName()).
				Member(meth.Name).
				Detail("custom attribute without constructor").
				Build()
		}
		def, err := res.ResolveType(attr.AttributeType())
		if err != nil {
			return nil, attributeError(meth, attr, err)
		}
		ok, err := res.DerivesFrom(def, e.markerScope, e.marker)
		if err != nil {
			return nil, attributeError(meth, attr, err)
		}
		if ok {
			out = append(out, attr)
		}
	}
	return out, nil
}

func attributeError(meth *il.MethodDef, attr *il.CustomAttribute, err error) error {
	return errors.New(errors.PhaseWeave, errors.KindResolution).
		Type(meth.DeclaringType.FullName()).
		Member(meth.Name).
		Detail("cannot resolve attribute %s", attr.AttributeType()).
		Cause(err).
		Build()
}

func (e *Engine) selected(t *il.TypeDef, meth *il.MethodDef) bool {
	name := t.FullName()
	if e.include != nil && !e.include.MatchMethod(name, meth.Name) {
		return false
	}
	if e.exclude != nil && e.exclude.MatchMethod(name, meth.Name) {
		return false
	}
	return true
}

func checkShape(t *il.TypeDef, meth *il.MethodDef) error {
	var what string
	switch {
	case meth.IsConstructor():
		what = "constructors cannot be intercepted"
	case len(meth.GenericParams) > 0:
		what = "generic methods cannot be intercepted"
	case meth.IsAbstract() || meth.IsNative() || meth.Body == nil:
		what = "method has no body to split"
	case t.IsValueType():
		what = "methods of value types cannot be intercepted"
	default:
		return nil
	}
	return errors.Unsupported(errors.PhaseWeave, t.FullName(), meth.Name, what)
}

// checkNames rejects targets whose generated names are already taken.
func (e *Engine) checkNames(targets []target) error {
	for _, tg := range targets {
		t := tg.method.DeclaringType
		base := BaseName(tg.method.Name, tg.index)
		if n := t.NestedType(base + e.naming.StubSuffix); n != nil {
			return errors.Unsupported(errors.PhaseWeave, t.FullName(), tg.method.Name,
				"nested type "+n.Name+" already exists")
		}
		if m := t.Method(base + e.naming.OriginalSuffix); m != nil {
			return errors.Unsupported(errors.PhaseWeave, t.FullName(), tg.method.Name,
				"method "+m.Name+" already exists")
		}
	}
	return nil
}
