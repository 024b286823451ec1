package il

import (
	"strconv"
	"strings"
)

// TypeKind discriminates TypeRef shapes.
type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindObject
	KindBool
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindIntPtr
	KindNamed
	KindGenericInst
	KindTypeParam
	KindMethodParam
	KindArray
	KindNullable

	kindCount
)

var kindNames = [...]string{
	KindVoid:        "void",
	KindObject:      "object",
	KindBool:        "bool",
	KindInt32:       "int32",
	KindInt64:       "int64",
	KindFloat32:     "float32",
	KindFloat64:     "float64",
	KindString:      "string",
	KindIntPtr:      "native int",
	KindNamed:       "named",
	KindGenericInst: "generic instance",
	KindTypeParam:   "type parameter",
	KindMethodParam: "method parameter",
	KindArray:       "array",
	KindNullable:    "nullable",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsPrimitive reports whether the kind is a built-in scalar or object/string.
func (k TypeKind) IsPrimitive() bool {
	return k >= KindObject && k <= KindIntPtr
}

// TypeRef references a type. Named and generic-instance refs name a
// definition by Scope and full Name ("Ns.Outer/Inner").
type TypeRef struct {
	Elem      *TypeRef
	Scope     string
	Name      string
	ParamName string
	Args      []*TypeRef
	Position  int
	Kind      TypeKind
	ValueType bool
}

var (
	voidType    = &TypeRef{Kind: KindVoid}
	objectType  = &TypeRef{Kind: KindObject}
	boolType    = &TypeRef{Kind: KindBool, ValueType: true}
	int32Type   = &TypeRef{Kind: KindInt32, ValueType: true}
	int64Type   = &TypeRef{Kind: KindInt64, ValueType: true}
	float32Type = &TypeRef{Kind: KindFloat32, ValueType: true}
	float64Type = &TypeRef{Kind: KindFloat64, ValueType: true}
	stringType  = &TypeRef{Kind: KindString}
	intPtrType  = &TypeRef{Kind: KindIntPtr, ValueType: true}
)

// Shared primitive references. Treat them as immutable.
func Void() *TypeRef    { return voidType }
func Object() *TypeRef  { return objectType }
func Bool() *TypeRef    { return boolType }
func Int32() *TypeRef   { return int32Type }
func Int64() *TypeRef   { return int64Type }
func Float32() *TypeRef { return float32Type }
func Float64() *TypeRef { return float64Type }
func String() *TypeRef  { return stringType }
func IntPtr() *TypeRef  { return intPtrType }

// Named references a non-generic reference type definition.
func Named(scope, fullName string) *TypeRef {
	return &TypeRef{Kind: KindNamed, Scope: scope, Name: fullName}
}

// NamedValue references a value type definition.
func NamedValue(scope, fullName string) *TypeRef {
	return &TypeRef{Kind: KindNamed, Scope: scope, Name: fullName, ValueType: true}
}

// Instance references a generic definition instantiated with args.
func Instance(def *TypeRef, args ...*TypeRef) *TypeRef {
	return &TypeRef{
		Kind:      KindGenericInst,
		Scope:     def.Scope,
		Name:      def.Name,
		ValueType: def.ValueType,
		Args:      args,
	}
}

// TypeParam references the generic parameter of the enclosing type at position.
func TypeParam(position int, name string) *TypeRef {
	return &TypeRef{Kind: KindTypeParam, Position: position, ParamName: name}
}

// MethodParam references the generic parameter of the enclosing method at position.
func MethodParam(position int, name string) *TypeRef {
	return &TypeRef{Kind: KindMethodParam, Position: position, ParamName: name}
}

// ArrayOf references a single-dimensional zero-based array.
func ArrayOf(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: KindArray, Elem: elem}
}

// NullableOf references Nullable<elem>.
func NullableOf(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: KindNullable, Elem: elem, ValueType: true}
}

// Ref returns a reference to the definition. Generic definitions are
// returned open (a named ref without arguments).
func (t *TypeDef) Ref() *TypeRef {
	return &TypeRef{
		Kind:      KindNamed,
		Scope:     t.Scope(),
		Name:      t.FullName(),
		ValueType: t.IsValueType(),
	}
}

// IsGenericParam reports whether the ref is a type or method generic parameter.
func (r *TypeRef) IsGenericParam() bool {
	return r.Kind == KindTypeParam || r.Kind == KindMethodParam
}

// IsValueType reports whether values of the type are copied rather than
// referenced. Generic parameters report false; their closed form decides.
func (r *TypeRef) IsValueType() bool {
	return r.ValueType
}

// IsNamed reports whether the ref names a definition, open or instantiated.
func (r *TypeRef) IsNamed() bool {
	return r.Kind == KindNamed || r.Kind == KindGenericInst
}

// ContainsGenericParams reports whether any generic parameter occurs in the ref.
func (r *TypeRef) ContainsGenericParams() bool {
	if r == nil {
		return false
	}
	switch r.Kind {
	case KindTypeParam, KindMethodParam:
		return true
	case KindArray, KindNullable:
		return r.Elem.ContainsGenericParams()
	case KindGenericInst:
		for _, a := range r.Args {
			if a.ContainsGenericParams() {
				return true
			}
		}
	}
	return false
}

// Definition returns the definition reference of a generic instance, or r itself.
func (r *TypeRef) Definition() *TypeRef {
	if r.Kind != KindGenericInst {
		return r
	}
	return &TypeRef{Kind: KindNamed, Scope: r.Scope, Name: r.Name, ValueType: r.ValueType}
}

// Subst replaces generic parameters with the given arguments. Parameters
// without a matching argument are left in place.
func (r *TypeRef) Subst(typeArgs, methodArgs []*TypeRef) *TypeRef {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case KindTypeParam:
		if r.Position < len(typeArgs) {
			return typeArgs[r.Position]
		}
	case KindMethodParam:
		if r.Position < len(methodArgs) {
			return methodArgs[r.Position]
		}
	case KindArray:
		if elem := r.Elem.Subst(typeArgs, methodArgs); elem != r.Elem {
			return ArrayOf(elem)
		}
	case KindNullable:
		if elem := r.Elem.Subst(typeArgs, methodArgs); elem != r.Elem {
			return NullableOf(elem)
		}
	case KindGenericInst:
		var args []*TypeRef
		for i, a := range r.Args {
			s := a.Subst(typeArgs, methodArgs)
			if s != a && args == nil {
				args = make([]*TypeRef, len(r.Args))
				copy(args, r.Args[:i])
			}
			if args != nil {
				args[i] = s
			}
		}
		if args != nil {
			c := *r
			c.Args = args
			return &c
		}
	}
	return r
}

// Equal reports structural equality. Generic parameter names are ignored.
func (r *TypeRef) Equal(o *TypeRef) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil || r.Kind != o.Kind {
		return false
	}
	switch r.Kind {
	case KindNamed:
		return r.Scope == o.Scope && r.Name == o.Name
	case KindGenericInst:
		if r.Scope != o.Scope || r.Name != o.Name || len(r.Args) != len(o.Args) {
			return false
		}
		for i := range r.Args {
			if !r.Args[i].Equal(o.Args[i]) {
				return false
			}
		}
		return true
	case KindTypeParam, KindMethodParam:
		return r.Position == o.Position
	case KindArray, KindNullable:
		return r.Elem.Equal(o.Elem)
	}
	return true
}

// String renders the ref in the textual form used by the disassembler and
// as the canonical key of closed types.
func (r *TypeRef) String() string {
	var b strings.Builder
	r.write(&b)
	return b.String()
}

func (r *TypeRef) write(b *strings.Builder) {
	if r == nil {
		b.WriteString("<nil>")
		return
	}
	switch r.Kind {
	case KindNamed, KindGenericInst:
		if r.Scope != "" {
			b.WriteByte('[')
			b.WriteString(r.Scope)
			b.WriteByte(']')
		}
		b.WriteString(r.Name)
		if len(r.Args) > 0 {
			b.WriteByte('<')
			for i, a := range r.Args {
				if i > 0 {
					b.WriteByte(',')
				}
				a.write(b)
			}
			b.WriteByte('>')
		}
	case KindTypeParam:
		b.WriteByte('!')
		b.WriteString(strconv.Itoa(r.Position))
	case KindMethodParam:
		b.WriteString("!!")
		b.WriteString(strconv.Itoa(r.Position))
	case KindArray:
		r.Elem.write(b)
		b.WriteString("[]")
	case KindNullable:
		r.Elem.write(b)
		b.WriteByte('?')
	default:
		b.WriteString(r.Kind.String())
	}
}

// FieldRef references a field by declaring type and name.
type FieldRef struct {
	DeclaringType *TypeRef
	Type          *TypeRef
	Name          string
}

func (f *FieldRef) String() string {
	return f.Type.String() + " " + f.DeclaringType.String() + "::" + f.Name
}

// MethodRef references a method. Params and Return are the definition's
// signature, expressed with generic parameters rather than instantiated types.
type MethodRef struct {
	DeclaringType *TypeRef
	Return        *TypeRef
	Name          string
	Params        []*TypeRef
	GenericArgs   []*TypeRef
	GenericArity  int
	HasThis       bool
}

func (m *MethodRef) String() string {
	var b strings.Builder
	if !m.HasThis {
		b.WriteString("static ")
	}
	m.Return.write(&b)
	b.WriteByte(' ')
	m.DeclaringType.write(&b)
	b.WriteString("::")
	b.WriteString(m.Name)
	if len(m.GenericArgs) > 0 {
		b.WriteByte('<')
		for i, a := range m.GenericArgs {
			if i > 0 {
				b.WriteByte(',')
			}
			a.write(&b)
		}
		b.WriteByte('>')
	} else if m.GenericArity > 0 {
		b.WriteString("`")
		b.WriteString(strconv.Itoa(m.GenericArity))
	}
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		p.write(&b)
	}
	b.WriteByte(')')
	return b.String()
}

// Instantiate returns a copy of the method reference with generic method arguments.
func (m *MethodRef) Instantiate(args ...*TypeRef) *MethodRef {
	c := *m
	c.GenericArgs = args
	return &c
}

// SameSignature reports whether two refs name the same method definition.
func (m *MethodRef) SameSignature(o *MethodRef) bool {
	if m.Name != o.Name || m.HasThis != o.HasThis || m.GenericArity != o.GenericArity ||
		len(m.Params) != len(o.Params) {
		return false
	}
	for i := range m.Params {
		if !m.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	return m.Return.Equal(o.Return)
}

// Ref builds a reference to the method on its definition type. For
// generic declaring types the reference is to the open definition; callers
// that need a closed form substitute DeclaringType.
func (m *MethodDef) Ref() *MethodRef {
	ref := &MethodRef{
		Name:         m.Name,
		HasThis:      m.HasThis(),
		Return:       m.Return,
		Params:       m.ParamTypes(),
		GenericArity: len(m.GenericParams),
	}
	if ref.Return == nil {
		ref.Return = Void()
	}
	if m.DeclaringType != nil {
		ref.DeclaringType = m.DeclaringType.Ref()
	}
	return ref
}

// Matches reports whether the definition satisfies the reference's signature.
func (m *MethodDef) Matches(ref *MethodRef) bool {
	if m.Name != ref.Name || m.HasThis() != ref.HasThis ||
		len(m.GenericParams) != ref.GenericArity || len(m.Params) != len(ref.Params) {
		return false
	}
	for i, p := range m.Params {
		if !p.Type.Equal(ref.Params[i]) {
			return false
		}
	}
	ret := m.Return
	if ret == nil {
		ret = Void()
	}
	return ret.Equal(ref.Return)
}

// Ref builds a reference to the field on its (open) definition type.
func (f *FieldDef) Ref() *FieldRef {
	ref := &FieldRef{Name: f.Name, Type: f.Type}
	if f.DeclaringType != nil {
		ref.DeclaringType = f.DeclaringType.Ref()
	}
	return ref
}

// Token is the operand of ldtoken: exactly one of Type or Method is set.
type Token struct {
	Type   *TypeRef
	Method *MethodRef
}

func (t Token) String() string {
	if t.Method != nil {
		return "method " + t.Method.String()
	}
	return "type " + t.Type.String()
}
