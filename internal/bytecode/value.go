package bytecode

import (
	"fmt"
	"strconv"
)

// ValueKind is the dynamic type tag of a constant Value.
type ValueKind uint8

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBoolean
	KindInt32
	KindDouble
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInt32:
		return "int32"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable script constant. The zero Value is undefined.
// Values are comparable and may be used as map keys.
type Value struct {
	kind ValueKind
	i    int32
	d    float64
	s    string
}

func Undefined() Value { return Value{} }

func Null() Value { return Value{kind: KindNull} }

func Boolean(b bool) Value {
	v := Value{kind: KindBoolean}
	if b {
		v.i = 1
	}
	return v
}

func Int32(i int32) Value { return Value{kind: KindInt32, i: i} }

func Double(d float64) Value { return Value{kind: KindDouble, d: d} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Bool() bool { return v.kind == KindBoolean && v.i != 0 }

func (v Value) Int32() int32 { return v.i }

func (v Value) Double() float64 { return v.d }

func (v Value) Str() string { return v.s }

func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return strconv.FormatBool(v.Bool())
	case KindInt32:
		return strconv.FormatInt(int64(v.i), 10)
	case KindDouble:
		return strconv.FormatFloat(v.d, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "?"
	}
}
