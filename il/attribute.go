package il

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CustomAttribute is a declarative marker applied to a member. Args are the
// constructor arguments and Named the field or property assignments.
// Values are int32, int64, float32, float64, bool, string or nil.
type CustomAttribute struct {
	Constructor *MethodRef
	Args        []any
	Named       []NamedArg
}

// NamedKind distinguishes field and property assignments.
type NamedKind uint8

const (
	NamedField NamedKind = iota
	NamedProperty
)

// NamedArg assigns a value to a field or property after construction.
type NamedArg struct {
	Value any
	Type  *TypeRef
	Name  string
	Kind  NamedKind
}

// AttributeType returns the attribute's type, the constructor's declaring type.
func (a *CustomAttribute) AttributeType() *TypeRef {
	return a.Constructor.DeclaringType
}

// NamedValue returns the value assigned to name, if present.
func (a *CustomAttribute) NamedValue(name string) (any, bool) {
	for _, n := range a.Named {
		if n.Name == name {
			return n.Value, true
		}
	}
	return nil, false
}

var attrEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("il: failed to create CBOR enc mode: %v", err))
	}
	attrEncMode = em
}

// attrValue is the tagged wire form of an attribute constant. CBOR alone
// would not preserve the Go integer and float widths.
type attrValue struct {
	S    string   `cbor:"4,keyasint,omitempty"`
	I    int64    `cbor:"2,keyasint,omitempty"`
	F    float64  `cbor:"3,keyasint,omitempty"`
	Kind TypeKind `cbor:"1,keyasint"`
	B    bool     `cbor:"5,keyasint,omitempty"`
	Null bool     `cbor:"6,keyasint,omitempty"`
}

type attrNamed struct {
	Name  string    `cbor:"1,keyasint"`
	Value attrValue `cbor:"3,keyasint"`
	Kind  NamedKind `cbor:"2,keyasint"`
}

type attrBlob struct {
	Args  []attrValue `cbor:"1,keyasint,omitempty"`
	Named []attrNamed `cbor:"2,keyasint,omitempty"`
}

func toAttrValue(v any) (attrValue, error) {
	switch x := v.(type) {
	case nil:
		return attrValue{Kind: KindObject, Null: true}, nil
	case bool:
		return attrValue{Kind: KindBool, B: x}, nil
	case int32:
		return attrValue{Kind: KindInt32, I: int64(x)}, nil
	case int64:
		return attrValue{Kind: KindInt64, I: x}, nil
	case float32:
		return attrValue{Kind: KindFloat32, F: float64(x)}, nil
	case float64:
		return attrValue{Kind: KindFloat64, F: x}, nil
	case string:
		return attrValue{Kind: KindString, S: x}, nil
	}
	return attrValue{}, fmt.Errorf("unsupported attribute value %T", v)
}

func (v attrValue) value() (any, error) {
	if v.Null {
		return nil, nil
	}
	switch v.Kind {
	case KindBool:
		return v.B, nil
	case KindInt32:
		return int32(v.I), nil
	case KindInt64:
		return v.I, nil
	case KindFloat32:
		return float32(v.F), nil
	case KindFloat64:
		return v.F, nil
	case KindString:
		return v.S, nil
	}
	return nil, fmt.Errorf("unsupported attribute value kind %s", v.Kind)
}

// ConstantType returns the type of an attribute constant.
func ConstantType(v any) *TypeRef {
	switch v.(type) {
	case bool:
		return Bool()
	case int32:
		return Int32()
	case int64:
		return Int64()
	case float32:
		return Float32()
	case float64:
		return Float64()
	case string:
		return String()
	}
	return Object()
}

// marshalAttributeBlob encodes the argument part of a custom attribute.
func marshalAttributeBlob(a *CustomAttribute) ([]byte, error) {
	var blob attrBlob
	for i, arg := range a.Args {
		v, err := toAttrValue(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		blob.Args = append(blob.Args, v)
	}
	for _, n := range a.Named {
		v, err := toAttrValue(n.Value)
		if err != nil {
			return nil, fmt.Errorf("named %s: %w", n.Name, err)
		}
		blob.Named = append(blob.Named, attrNamed{Name: n.Name, Kind: n.Kind, Value: v})
	}
	return attrEncMode.Marshal(&blob)
}

// unmarshalAttributeBlob fills Args and Named from an encoded blob.
func unmarshalAttributeBlob(data []byte, a *CustomAttribute) error {
	var blob attrBlob
	if err := cbor.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("attribute blob: %w", err)
	}
	for i, v := range blob.Args {
		val, err := v.value()
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		a.Args = append(a.Args, val)
	}
	for _, n := range blob.Named {
		val, err := n.Value.value()
		if err != nil {
			return fmt.Errorf("named %s: %w", n.Name, err)
		}
		a.Named = append(a.Named, NamedArg{Name: n.Name, Kind: n.Kind, Value: val, Type: ConstantType(val)})
	}
	return nil
}
