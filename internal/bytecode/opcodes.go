package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Op is a single bytecode opcode.
type Op uint8

const (
	OpNop Op = iota
	OpPush
	OpPop
	OpDup
	OpSwap
	OpNull
	OpTrue
	OpFalse
	OpZero
	OpOne
	OpInt8
	OpInt32
	OpDouble
	OpString
	OpGetArg
	OpSetArg
	OpGetLocal
	OpSetLocal

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLsh
	OpRsh

	// Comparison
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpStrictEq
	OpStrictNe
	OpNot

	// Control
	OpGoto
	OpGotoX
	OpIfEq
	OpIfEqX
	OpIfNe
	OpIfNeX
	OpTrace
	OpReturn
	OpStop
	OpNullBlockChain

	// Recognized by the decoder but never compiled
	OpName
	OpGetProp
	OpSetProp
	OpCall
	OpIter
	OpMoreIter
	OpEndIter

	opLimit
)

// Format describes how an opcode's immediate operand is encoded.
type Format uint8

const (
	FormatByte  Format = iota // no operand
	FormatJump                // signed 16-bit big-endian offset
	FormatJumpX               // signed 32-bit big-endian offset
	FormatSlot                // unsigned 16-bit argument or local index
	FormatInt8                // signed 8-bit immediate
	FormatInt32               // signed 32-bit immediate
	FormatConst               // unsigned 16-bit index into Script.Consts
	FormatAtom                // unsigned 16-bit index into Script.Atoms
	FormatArgc                // unsigned 16-bit argument count
)

var formatLengths = [...]int{
	FormatByte:  1,
	FormatJump:  3,
	FormatJumpX: 5,
	FormatSlot:  3,
	FormatInt8:  2,
	FormatInt32: 5,
	FormatConst: 3,
	FormatAtom:  3,
	FormatArgc:  3,
}

// Spec is the static description of one opcode.
type Spec struct {
	Name   string
	Format Format
	Length int
	Uses   int // values popped, -1 when variable
	Defs   int // values pushed
}

func spec(name string, format Format, uses, defs int) Spec {
	return Spec{Name: name, Format: format, Length: formatLengths[format], Uses: uses, Defs: defs}
}

var specs = [opLimit]Spec{
	OpNop:            spec("nop", FormatByte, 0, 0),
	OpPush:           spec("push", FormatByte, 0, 1),
	OpPop:            spec("pop", FormatByte, 1, 0),
	OpDup:            spec("dup", FormatByte, 1, 2),
	OpSwap:           spec("swap", FormatByte, 2, 2),
	OpNull:           spec("null", FormatByte, 0, 1),
	OpTrue:           spec("true", FormatByte, 0, 1),
	OpFalse:          spec("false", FormatByte, 0, 1),
	OpZero:           spec("zero", FormatByte, 0, 1),
	OpOne:            spec("one", FormatByte, 0, 1),
	OpInt8:           spec("int8", FormatInt8, 0, 1),
	OpInt32:          spec("int32", FormatInt32, 0, 1),
	OpDouble:         spec("double", FormatConst, 0, 1),
	OpString:         spec("string", FormatAtom, 0, 1),
	OpGetArg:         spec("getarg", FormatSlot, 0, 1),
	OpSetArg:         spec("setarg", FormatSlot, 1, 1),
	OpGetLocal:       spec("getlocal", FormatSlot, 0, 1),
	OpSetLocal:       spec("setlocal", FormatSlot, 1, 1),
	OpAdd:            spec("add", FormatByte, 2, 1),
	OpSub:            spec("sub", FormatByte, 2, 1),
	OpMul:            spec("mul", FormatByte, 2, 1),
	OpDiv:            spec("div", FormatByte, 2, 1),
	OpMod:            spec("mod", FormatByte, 2, 1),
	OpBitAnd:         spec("bitand", FormatByte, 2, 1),
	OpBitOr:          spec("bitor", FormatByte, 2, 1),
	OpBitXor:         spec("bitxor", FormatByte, 2, 1),
	OpLsh:            spec("lsh", FormatByte, 2, 1),
	OpRsh:            spec("rsh", FormatByte, 2, 1),
	OpLt:             spec("lt", FormatByte, 2, 1),
	OpLe:             spec("le", FormatByte, 2, 1),
	OpGt:             spec("gt", FormatByte, 2, 1),
	OpGe:             spec("ge", FormatByte, 2, 1),
	OpEq:             spec("eq", FormatByte, 2, 1),
	OpNe:             spec("ne", FormatByte, 2, 1),
	OpStrictEq:       spec("stricteq", FormatByte, 2, 1),
	OpStrictNe:       spec("strictne", FormatByte, 2, 1),
	OpNot:            spec("not", FormatByte, 1, 1),
	OpGoto:           spec("goto", FormatJump, 0, 0),
	OpGotoX:          spec("gotox", FormatJumpX, 0, 0),
	OpIfEq:           spec("ifeq", FormatJump, 1, 0),
	OpIfEqX:          spec("ifeqx", FormatJumpX, 1, 0),
	OpIfNe:           spec("ifne", FormatJump, 1, 0),
	OpIfNeX:          spec("ifnex", FormatJumpX, 1, 0),
	OpTrace:          spec("trace", FormatByte, 0, 0),
	OpReturn:         spec("return", FormatByte, 1, 0),
	OpStop:           spec("stop", FormatByte, 0, 0),
	OpNullBlockChain: spec("nullblockchain", FormatByte, 0, 0),
	OpName:           spec("name", FormatAtom, 0, 1),
	OpGetProp:        spec("getprop", FormatAtom, 1, 1),
	OpSetProp:        spec("setprop", FormatAtom, 2, 1),
	OpCall:           spec("call", FormatArgc, -1, 1),
	OpIter:           spec("iter", FormatByte, 1, 1),
	OpMoreIter:       spec("moreiter", FormatByte, 1, 2),
	OpEndIter:        spec("enditer", FormatByte, 1, 0),
}

var byName = func() map[string]Op {
	m := make(map[string]Op, len(specs))
	for op := Op(0); op < opLimit; op++ {
		m[specs[op].Name] = op
	}
	return m
}()

// Valid reports whether op is a known opcode.
func (op Op) Valid() bool {
	return op < opLimit
}

// Spec returns a copy of the static description of op.
// It panics for an invalid opcode.
func (op Op) Spec() Spec {
	if !op.Valid() {
		panic(fmt.Sprintf("bytecode: invalid opcode %d", op))
	}
	return specs[op]
}

func (op Op) String() string {
	if !op.Valid() {
		return fmt.Sprintf("op(%d)", uint8(op))
	}
	return specs[op].Name
}

// IsJump reports whether op carries a jump offset.
func (op Op) IsJump() bool {
	if !op.Valid() {
		return false
	}
	f := specs[op].Format
	return f == FormatJump || f == FormatJumpX
}

// IsGoto reports whether op is an unconditional jump.
func (op Op) IsGoto() bool { return op == OpGoto || op == OpGotoX }

// IsIfEq reports whether op branches when its operand is falsy.
func (op Op) IsIfEq() bool { return op == OpIfEq || op == OpIfEqX }

// IsIfNe reports whether op branches when its operand is truthy.
func (op Op) IsIfNe() bool { return op == OpIfNe || op == OpIfNeX }

// Lookup finds an opcode by its mnemonic.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// Mnemonics returns every opcode name in opcode order.
func Mnemonics() []string {
	names := make([]string, 0, len(specs))
	for op := Op(0); op < opLimit; op++ {
		names = append(names, specs[op].Name)
	}
	return names
}

// JumpOffset decodes the jump offset of the jump opcode at pc.
func JumpOffset(code []byte, pc int) int {
	switch Op(code[pc]).Spec().Format {
	case FormatJump:
		return int(int16(binary.BigEndian.Uint16(code[pc+1:])))
	case FormatJumpX:
		return int(int32(binary.BigEndian.Uint32(code[pc+1:])))
	}
	panic(fmt.Sprintf("bytecode: %s at pc %d is not a jump", Op(code[pc]), pc))
}

// Uint16Operand decodes the unsigned 16-bit immediate at pc.
func Uint16Operand(code []byte, pc int) int {
	return int(binary.BigEndian.Uint16(code[pc+1:]))
}

// Int8Operand decodes the signed 8-bit immediate at pc.
func Int8Operand(code []byte, pc int) int32 {
	return int32(int8(code[pc+1]))
}

// Int32Operand decodes the signed 32-bit immediate at pc.
func Int32Operand(code []byte, pc int) int32 {
	return int32(binary.BigEndian.Uint32(code[pc+1:]))
}
