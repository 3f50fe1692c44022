package mir

import (
	"fmt"

	"ionbuild/internal/bytecode"
)

// Instruction is a node of the graph. Instructions are owned by the graph's
// arena and referred to by ValueID.
type Instruction interface {
	GetID() ValueID
	GetBlock() BlockID
	GetOperands() []ValueID
	Type() Type
	Opcode() string
	IsTerminator() bool
	Number() int
	base() *node
}

// Terminator is the control instruction that ends a block.
type Terminator interface {
	Instruction
	GetSuccessors() []BlockID
}

type node struct {
	id       ValueID
	block    BlockID
	typ      Type
	operands []ValueID
	serial   int
}

func (n *node) GetID() ValueID { return n.id }
func (n *node) GetBlock() BlockID { return n.block }
func (n *node) GetOperands() []ValueID { return n.operands }
func (n *node) Type() Type { return n.typ }
func (n *node) IsTerminator() bool { return false }
func (n *node) base() *node { return n }

// Number is the printable instruction number, reassigned by Renumber.
func (n *node) Number() int { return n.serial }

// Constant materializes a script constant.
type Constant struct {
	node
	Value bytecode.Value
}

func NewConstant(v bytecode.Value) *Constant {
	c := &Constant{Value: v}
	c.typ = TypeOf(v)
	return c
}

func (c *Constant) Opcode() string { return "constant" }

// Parameter indices for the implicit callee and this slots.
const (
	CalleeParam = -2
	ThisParam   = -1
)

// Parameter is an incoming function argument, or the callee or this value.
type Parameter struct {
	node
	Index int
}

func NewParameter(index int) *Parameter {
	p := &Parameter{Index: index}
	p.typ = TypeValue
	return p
}

func (p *Parameter) Opcode() string { return "parameter" }

// Phi merges the definitions of one slot, one operand per predecessor in
// predecessor order.
type Phi struct {
	node
	Slot int
}

func (p *Phi) Opcode() string { return "phi" }

// BinaryOp enumerates arithmetic and bitwise operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLsh
	OpRsh
)

var binaryOpNames = [...]string{"add", "sub", "mul", "div", "mod", "bitand", "bitor", "bitxor", "lsh", "rsh"}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// IsBitwise reports whether op always produces an Int32.
func (op BinaryOp) IsBitwise() bool { return op >= OpBitAnd }

// Binary is an arithmetic or bitwise operation on two values.
type Binary struct {
	node
	Op             BinaryOp
	Specialization Type
	Snapshot       ValueID
}

func NewBinary(op BinaryOp, lhs, rhs ValueID) *Binary {
	b := &Binary{Op: op, Specialization: TypeAny}
	b.typ = TypeValue
	b.operands = []ValueID{lhs, rhs}
	return b
}

func (b *Binary) Opcode() string { return b.Op.String() }
func (b *Binary) LHS() ValueID { return b.operands[0] }
func (b *Binary) RHS() ValueID { return b.operands[1] }

// Infer records the observed operand types and derives the specialization
// and result type.
func (b *Binary) Infer(lhs, rhs, result Type) {
	b.Specialization = specialize(lhs, rhs)
	switch {
	case b.Op.IsBitwise():
		b.Specialization = TypeInt32
		b.typ = TypeInt32
	case b.Op == OpDiv && b.Specialization.IsNumeric():
		b.typ = TypeDouble
		if result == TypeInt32 && b.Specialization == TypeInt32 {
			b.typ = TypeInt32
		}
	case b.Specialization.IsNumeric():
		b.typ = b.Specialization
	case b.Op == OpAdd && result == TypeString:
		b.typ = TypeString
	default:
		b.typ = TypeValue
	}
}

// CompareOp enumerates relational and equality operators.
type CompareOp uint8

const (
	OpLt CompareOp = iota
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpStrictEq
	OpStrictNe
)

var compareOpNames = [...]string{"lt", "le", "gt", "ge", "eq", "ne", "stricteq", "strictne"}

func (op CompareOp) String() string { return compareOpNames[op] }

// Compare produces a boolean from two values.
type Compare struct {
	node
	Op             CompareOp
	Specialization Type
	Snapshot       ValueID
}

func NewCompare(op CompareOp, lhs, rhs ValueID) *Compare {
	c := &Compare{Op: op, Specialization: TypeAny}
	c.typ = TypeBoolean
	c.operands = []ValueID{lhs, rhs}
	return c
}

func (c *Compare) Opcode() string { return c.Op.String() }
func (c *Compare) LHS() ValueID { return c.operands[0] }
func (c *Compare) RHS() ValueID { return c.operands[1] }

// Infer records the observed operand types.
func (c *Compare) Infer(lhs, rhs Type) {
	c.Specialization = specialize(lhs, rhs)
}

func specialize(lhs, rhs Type) Type {
	switch {
	case lhs == TypeInt32 && rhs == TypeInt32:
		return TypeInt32
	case lhs.IsNumeric() && rhs.IsNumeric():
		return TypeDouble
	default:
		return TypeValue
	}
}

// Not is logical negation.
type Not struct {
	node
}

func NewNot(v ValueID) *Not {
	n := &Not{}
	n.typ = TypeBoolean
	n.operands = []ValueID{v}
	return n
}

func (n *Not) Opcode() string { return "not" }

// Snapshot captures every slot at a bytecode pc so execution can resume in
// the interpreter if a type guess made after it fails.
type Snapshot struct {
	node
	PC int
}

func NewSnapshot(pc int, slots []ValueID) *Snapshot {
	s := &Snapshot{PC: pc}
	s.typ = TypeNone
	s.operands = append([]ValueID(nil), slots...)
	return s
}

func (s *Snapshot) Opcode() string { return "snapshot" }

// Goto unconditionally transfers control.
type Goto struct {
	node
	Target BlockID
}

func NewGoto(target BlockID) *Goto {
	g := &Goto{Target: target}
	g.typ = TypeNone
	return g
}

func (g *Goto) Opcode() string { return "goto" }
func (g *Goto) IsTerminator() bool { return true }
func (g *Goto) GetSuccessors() []BlockID { return []BlockID{g.Target} }

// Test branches on the truthiness of its operand.
type Test struct {
	node
	IfTrue  BlockID
	IfFalse BlockID
}

func NewTest(cond ValueID, ifTrue, ifFalse BlockID) *Test {
	t := &Test{IfTrue: ifTrue, IfFalse: ifFalse}
	t.typ = TypeNone
	t.operands = []ValueID{cond}
	return t
}

func (t *Test) Opcode() string { return "test" }
func (t *Test) IsTerminator() bool { return true }
func (t *Test) GetSuccessors() []BlockID { return []BlockID{t.IfTrue, t.IfFalse} }

// Return leaves the function with its operand.
type Return struct {
	node
}

func NewReturn(v ValueID) *Return {
	r := &Return{}
	r.typ = TypeNone
	r.operands = []ValueID{v}
	return r
}

func (r *Return) Opcode() string { return "return" }
func (r *Return) IsTerminator() bool { return true }
func (r *Return) GetSuccessors() []BlockID { return nil }

// Describe renders the non-operand payload of ins for printing.
func Describe(ins Instruction) string {
	switch v := ins.(type) {
	case *Constant:
		return v.Value.String()
	case *Parameter:
		switch v.Index {
		case CalleeParam:
			return "callee"
		case ThisParam:
			return "this"
		default:
			return fmt.Sprintf("arg%d", v.Index)
		}
	case *Phi:
		return fmt.Sprintf("slot%d", v.Slot)
	case *Binary:
		return v.Specialization.String()
	case *Compare:
		return v.Specialization.String()
	case *Snapshot:
		return fmt.Sprintf("pc%d", v.PC)
	}
	return ""
}
