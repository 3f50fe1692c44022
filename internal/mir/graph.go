// Package mir is the SSA intermediate representation produced by the graph
// builder: basic blocks, instructions and phis owned by one arena per graph.
package mir

import (
	"fmt"
	"slices"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ionbuild.mir")

// Graph is the control-flow graph of one script.
type Graph struct {
	Name   string
	arena  *Arena
	nfixed int
	entry  BlockID
}

// NewGraph creates an empty graph whose blocks track nfixed non-stack slots.
func NewGraph(name string, nfixed int, limits Limits) *Graph {
	return &Graph{Name: name, arena: newArena(limits), nfixed: nfixed}
}

// Err reports whether the arena budget has been exceeded.
func (g *Graph) Err() error { return g.arena.Err() }

// NumFixedSlots returns the number of slots below the expression stack.
func (g *Graph) NumFixedSlots() int { return g.nfixed }

// Entry returns the entry block.
func (g *Graph) Entry() *BasicBlock { return g.arena.block(g.entry) }

// Block resolves a block handle.
func (g *Graph) Block(id BlockID) *BasicBlock { return g.arena.block(id) }

// Blocks returns every block in creation order.
func (g *Graph) Blocks() []*BasicBlock { return g.arena.blocks }

// Inst resolves an instruction handle, panicking if it is stale.
func (g *Graph) Inst(id ValueID) Instruction { return g.arena.inst(id) }

// Lookup resolves an instruction handle without panicking.
func (g *Graph) Lookup(id ValueID) (Instruction, bool) { return g.arena.lookup(id) }

// NumInstructions returns the number of live instructions.
func (g *Graph) NumInstructions() int { return g.arena.live }

// NewEntryBlock creates the entry block with every fixed slot unset.
func (g *Graph) NewEntryBlock(pc int) BlockID {
	b := &BasicBlock{graph: g, pc: pc, slots: make([]ValueID, g.nfixed), inherited: true}
	g.entry = g.arena.allocBlock(b)
	return g.entry
}

// NewBlock creates a block at pc. When pred is given, the new block starts
// with pred's slot state and pred as its only predecessor; otherwise its
// state is taken from the first predecessor added later.
func (g *Graph) NewBlock(pred BlockID, pc int) BlockID {
	b := &BasicBlock{graph: g, pc: pc}
	id := g.arena.allocBlock(b)
	if pred.Valid() {
		p := g.Block(pred)
		if !p.inherited {
			panic(fmt.Sprintf("mir: %s has no slot state to inherit", pred))
		}
		b.inherit(p)
		b.predecessors = append(b.predecessors, pred)
	}
	log.Debugf("new %s at pc %d (pred %s)", id, pc, pred)
	return id
}

// NewLoopHeader creates a loop header at pc entered from pred. Every slot
// gets a phi whose second operand is filled in by SetBackedge.
func (g *Graph) NewLoopHeader(pred BlockID, pc int) BlockID {
	id := g.NewBlock(pred, pc)
	b := g.Block(id)
	b.loopHeader = true
	for i := range b.slots {
		phi := g.addPhi(b, i, []ValueID{b.slots[i], NoValue})
		b.SetSlot(i, phi)
	}
	return id
}

// AddPredecessor adds the edge pred -> block, inserting phis for every slot
// whose incoming definitions now differ.
func (g *Graph) AddPredecessor(block, pred BlockID) {
	b, p := g.Block(block), g.Block(pred)
	b.checkOpen("add a predecessor to")
	if b.loopHeader {
		panic(fmt.Sprintf("mir: back edges into %s must use SetBackedge", block))
	}
	if !p.inherited {
		panic(fmt.Sprintf("mir: %s has no slot state", pred))
	}

	if !b.inherited {
		b.inherit(p)
		b.predecessors = append(b.predecessors, pred)
		return
	}

	if len(p.slots) != len(b.slots) {
		panic(fmt.Sprintf("mir: stack depth mismatch joining %s (%d) into %s (%d)",
			pred, p.StackDepth(), block, b.StackDepth()))
	}

	for i, in := range p.slots {
		cur := b.slots[i]
		if phi := g.phiFor(b, cur, i); phi != nil {
			phi.operands = append(phi.operands, in)
			continue
		}
		if cur == in {
			continue
		}
		operands := make([]ValueID, 0, len(b.predecessors)+1)
		for _, q := range b.predecessors {
			operands = append(operands, g.Block(q).slots[i])
		}
		operands = append(operands, in)
		b.SetSlot(i, g.addPhi(b, i, operands))
	}
	b.predecessors = append(b.predecessors, pred)
}

// SetBackedge closes the loop at header with the edge latch -> header and
// discards the header phis that turned out to be redundant.
func (g *Graph) SetBackedge(header, latch BlockID) {
	h, l := g.Block(header), g.Block(latch)
	if !h.loopHeader {
		panic(fmt.Sprintf("mir: %s is not a loop header", header))
	}
	if h.backedge {
		panic(fmt.Sprintf("mir: %s already has a back edge", header))
	}
	if len(l.slots) != len(h.phis) {
		panic(fmt.Sprintf("mir: stack depth mismatch on back edge %s -> %s", latch, header))
	}

	for _, id := range h.phis {
		phi := g.Inst(id).(*Phi)
		phi.operands[1] = l.slots[phi.Slot]
		phi.typ = g.mergeTypes(phi.operands)
	}
	h.predecessors = append(h.predecessors, latch)
	h.backedge = true

	for changed := true; changed; {
		changed = false
		for _, id := range slices.Clone(h.phis) {
			phi := g.Inst(id).(*Phi)
			entry, back := phi.operands[0], phi.operands[1]
			if back == id || back == entry {
				g.replaceUses(id, entry)
				g.removePhi(h, id)
				changed = true
			}
		}
	}
	log.Debugf("back edge %s -> %s, %d loop phis kept", latch, header, len(h.phis))
}

// AbandonLoopHeader turns a header whose back edge is never reached into an
// ordinary block, replacing every phi with its entry definition.
func (g *Graph) AbandonLoopHeader(header BlockID) {
	h := g.Block(header)
	if !h.loopHeader || h.backedge {
		panic(fmt.Sprintf("mir: %s is not an open loop header", header))
	}
	for _, id := range slices.Clone(h.phis) {
		g.replaceUses(id, g.Inst(id).(*Phi).operands[0])
		g.removePhi(h, id)
	}
	h.loopHeader = false
	log.Debugf("abandoned loop header %s", header)
}

// ReplaceAllUses rewrites every operand and slot referring to old.
func (g *Graph) ReplaceAllUses(old, repl ValueID) { g.replaceUses(old, repl) }

// RemovePhi discards a phi of block.
func (g *Graph) RemovePhi(block BlockID, phi ValueID) { g.removePhi(g.Block(block), phi) }

func (g *Graph) addPhi(b *BasicBlock, slot int, operands []ValueID) ValueID {
	phi := &Phi{Slot: slot}
	phi.operands = operands
	phi.typ = g.mergeTypes(operands)
	id := g.arena.allocInst(phi, b.id)
	b.phis = append(b.phis, id)
	return id
}

func (g *Graph) phiFor(b *BasicBlock, v ValueID, slot int) *Phi {
	if !v.Valid() {
		return nil
	}
	phi, ok := g.Inst(v).(*Phi)
	if !ok || phi.block != b.id || phi.Slot != slot {
		return nil
	}
	return phi
}

func (g *Graph) mergeTypes(operands []ValueID) Type {
	t := TypeAny
	for _, op := range operands {
		if !op.Valid() {
			continue
		}
		ot := g.Inst(op).Type()
		switch {
		case t == TypeAny:
			t = ot
		case t != ot:
			return TypeValue
		}
	}
	return t
}

func (g *Graph) replaceUses(old, repl ValueID) {
	g.arena.each(func(ins Instruction) {
		n := ins.base()
		for i, op := range n.operands {
			if op == old {
				n.operands[i] = repl
			}
		}
	})
	for _, b := range g.arena.blocks {
		for i, v := range b.slots {
			if v == old {
				b.slots[i] = repl
			}
		}
	}
}

func (g *Graph) removePhi(b *BasicBlock, id ValueID) {
	i := slices.Index(b.phis, id)
	if i < 0 {
		panic(fmt.Sprintf("mir: %s is not a phi of %s", id, b.id))
	}
	b.phis = slices.Delete(b.phis, i, i+1)
	g.arena.release(id)
}
