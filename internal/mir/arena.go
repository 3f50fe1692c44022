package mir

import (
	"errors"
	"fmt"
)

// ErrArenaExhausted is recorded by an arena that grew past its budget.
var ErrArenaExhausted = errors.New("mir: arena budget exhausted")

// ValueID is a generation-checked handle to an instruction. The zero ValueID
// refers to nothing.
type ValueID struct {
	index uint32
	gen   uint32
}

// NoValue is the absent instruction handle.
var NoValue ValueID

func (id ValueID) Valid() bool { return id.gen != 0 }

func (id ValueID) String() string {
	if !id.Valid() {
		return "v?"
	}
	return fmt.Sprintf("v%d.%d", id.index, id.gen)
}

// BlockID is a handle to a basic block. The zero BlockID refers to nothing.
type BlockID struct {
	index uint32
	gen   uint32
}

// NoBlock is the absent block handle.
var NoBlock BlockID

func (id BlockID) Valid() bool { return id.gen != 0 }

func (id BlockID) String() string {
	if !id.Valid() {
		return "block?"
	}
	return fmt.Sprintf("block%d", id.index)
}

// Limits bounds the size of one graph. Zero means unbounded.
type Limits struct {
	MaxInstructions int
	MaxBlocks       int
}

// Arena owns every block and instruction of one graph. Discarded
// instructions bump their slot's generation so old handles go stale.
type Arena struct {
	limits Limits
	insts  []Instruction
	gens   []uint32
	free   []uint32
	blocks []*BasicBlock
	live   int
	serial int
	err    error
}

func newArena(limits Limits) *Arena {
	return &Arena{limits: limits}
}

// Err returns ErrArenaExhausted once the budget has been exceeded.
func (a *Arena) Err() error { return a.err }

func (a *Arena) allocInst(ins Instruction, block BlockID) ValueID {
	if a.limits.MaxInstructions > 0 && a.live >= a.limits.MaxInstructions && a.err == nil {
		a.err = fmt.Errorf("%w: more than %d instructions", ErrArenaExhausted, a.limits.MaxInstructions)
	}

	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
		a.insts[index] = ins
	} else {
		index = uint32(len(a.insts))
		a.insts = append(a.insts, ins)
		a.gens = append(a.gens, 1)
	}

	n := ins.base()
	n.id = ValueID{index: index, gen: a.gens[index]}
	n.block = block
	n.serial = a.serial
	a.serial++
	a.live++
	return n.id
}

func (a *Arena) release(id ValueID) {
	a.check(id)
	a.insts[id.index] = nil
	a.gens[id.index]++
	if a.gens[id.index] == 0 {
		a.gens[id.index] = 1
	}
	a.free = append(a.free, id.index)
	a.live--
}

func (a *Arena) check(id ValueID) {
	if !id.Valid() {
		panic("mir: use of the absent value handle")
	}
	if int(id.index) >= len(a.insts) || a.gens[id.index] != id.gen || a.insts[id.index] == nil {
		panic(fmt.Sprintf("mir: stale value handle %s", id))
	}
}

func (a *Arena) inst(id ValueID) Instruction {
	a.check(id)
	return a.insts[id.index]
}

func (a *Arena) lookup(id ValueID) (Instruction, bool) {
	if !id.Valid() || int(id.index) >= len(a.insts) || a.gens[id.index] != id.gen {
		return nil, false
	}
	ins := a.insts[id.index]
	return ins, ins != nil
}

func (a *Arena) allocBlock(b *BasicBlock) BlockID {
	if a.limits.MaxBlocks > 0 && len(a.blocks) >= a.limits.MaxBlocks && a.err == nil {
		a.err = fmt.Errorf("%w: more than %d blocks", ErrArenaExhausted, a.limits.MaxBlocks)
	}
	b.id = BlockID{index: uint32(len(a.blocks)), gen: 1}
	a.blocks = append(a.blocks, b)
	return b.id
}

func (a *Arena) block(id BlockID) *BasicBlock {
	if !id.Valid() {
		panic("mir: use of the absent block handle")
	}
	if int(id.index) >= len(a.blocks) || a.blocks[id.index].id != id {
		panic(fmt.Sprintf("mir: stale block handle %s", id))
	}
	return a.blocks[id.index]
}

// each visits every live instruction.
func (a *Arena) each(fn func(Instruction)) {
	for _, ins := range a.insts {
		if ins != nil {
			fn(ins)
		}
	}
}
