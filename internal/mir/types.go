package mir

import "ionbuild/internal/bytecode"

// Type is the static type a MIR instruction produces.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBoolean
	TypeInt32
	TypeDouble
	TypeString
	TypeObject
	TypeValue // any boxed value
	TypeAny   // not yet inferred
	TypeNone  // produces nothing
)

func (t Type) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInt32:
		return "int32"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	case TypeValue:
		return "value"
	case TypeAny:
		return "any"
	case TypeNone:
		return "none"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether t is Int32 or Double.
func (t Type) IsNumeric() bool {
	return t == TypeInt32 || t == TypeDouble
}

// TypeOf returns the MIR type of a script constant.
func TypeOf(v bytecode.Value) Type {
	switch v.Kind() {
	case bytecode.KindUndefined:
		return TypeUndefined
	case bytecode.KindNull:
		return TypeNull
	case bytecode.KindBoolean:
		return TypeBoolean
	case bytecode.KindInt32:
		return TypeInt32
	case bytecode.KindDouble:
		return TypeDouble
	case bytecode.KindString:
		return TypeString
	default:
		return TypeValue
	}
}
