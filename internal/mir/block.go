package mir

import (
	"fmt"
	"slices"
)

// BasicBlock is a straight-line sequence of instructions ending in one
// terminator. It also tracks, while it is being built, which instruction
// currently defines each slot (callee, this, arguments, locals and the
// expression stack).
type BasicBlock struct {
	id    BlockID
	graph *Graph
	pc    int

	loopHeader bool
	backedge   bool

	phis         []ValueID
	instructions []ValueID
	terminator   ValueID
	predecessors []BlockID

	// slots is shared copy-on-write with the block it was inherited from
	// until either side mutates it.
	slots     []ValueID
	shared    bool
	inherited bool
}

func (b *BasicBlock) ID() BlockID { return b.id }
func (b *BasicBlock) PC() int { return b.pc }
func (b *BasicBlock) IsLoopHeader() bool { return b.loopHeader }
func (b *BasicBlock) IsSealed() bool { return b.terminator.Valid() }
func (b *BasicBlock) Phis() []ValueID { return b.phis }
func (b *BasicBlock) Instructions() []ValueID { return b.instructions }
func (b *BasicBlock) Predecessors() []BlockID { return b.predecessors }

// Terminator returns the block's control instruction, if it has been sealed.
func (b *BasicBlock) Terminator() (Terminator, bool) {
	if !b.terminator.Valid() {
		return nil, false
	}
	return b.graph.arena.inst(b.terminator).(Terminator), true
}

// Successors returns the targets of the terminator.
func (b *BasicBlock) Successors() []BlockID {
	if t, ok := b.Terminator(); ok {
		return t.GetSuccessors()
	}
	return nil
}

// NumSlots returns the number of tracked slots including the stack.
func (b *BasicBlock) NumSlots() int { return len(b.slots) }

// StackDepth returns the number of expression stack entries.
func (b *BasicBlock) StackDepth() int { return len(b.slots) - b.graph.nfixed }

// GetSlot returns the instruction currently defining slot i.
func (b *BasicBlock) GetSlot(i int) ValueID { return b.slots[i] }

// SetSlot rebinds slot i.
func (b *BasicBlock) SetSlot(i int, v ValueID) {
	b.own()
	b.slots[i] = v
}

// Push pushes v onto the expression stack.
func (b *BasicBlock) Push(v ValueID) {
	b.own()
	b.slots = append(b.slots, v)
}

// PushSlot pushes the current definition of slot i.
func (b *BasicBlock) PushSlot(i int) { b.Push(b.slots[i]) }

// Pop removes and returns the top of the expression stack.
func (b *BasicBlock) Pop() ValueID {
	if b.StackDepth() <= 0 {
		panic(fmt.Sprintf("mir: pop from empty stack in %s", b.id))
	}
	v := b.slots[len(b.slots)-1]
	b.slots = b.slots[:len(b.slots)-1]
	return v
}

// Peek returns the top of the expression stack.
func (b *BasicBlock) Peek() ValueID {
	if b.StackDepth() <= 0 {
		panic(fmt.Sprintf("mir: peek at empty stack in %s", b.id))
	}
	return b.slots[len(b.slots)-1]
}

// Swap exchanges the two topmost stack entries.
func (b *BasicBlock) Swap() {
	if b.StackDepth() < 2 {
		panic(fmt.Sprintf("mir: swap with fewer than two stack entries in %s", b.id))
	}
	b.own()
	n := len(b.slots)
	b.slots[n-1], b.slots[n-2] = b.slots[n-2], b.slots[n-1]
}

// Add appends a non-control instruction and returns its handle.
func (b *BasicBlock) Add(ins Instruction) ValueID {
	b.checkOpen("add an instruction to")
	if ins.IsTerminator() {
		panic(fmt.Sprintf("mir: %s must end the block", ins.Opcode()))
	}
	id := b.graph.arena.allocInst(ins, b.id)
	b.instructions = append(b.instructions, id)
	return id
}

// End seals the block with term.
func (b *BasicBlock) End(term Terminator) {
	b.checkOpen("end")
	b.terminator = b.graph.arena.allocInst(term, b.id)
}

func (b *BasicBlock) checkOpen(what string) {
	if b.IsSealed() {
		panic(fmt.Sprintf("mir: cannot %s sealed %s", what, b.id))
	}
}

func (b *BasicBlock) inherit(from *BasicBlock) {
	b.slots = from.slots
	b.shared = true
	from.shared = true
	b.inherited = true
}

func (b *BasicBlock) own() {
	if b.shared {
		b.slots = slices.Clone(b.slots)
		b.shared = false
	}
}
