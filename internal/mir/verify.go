package mir

import (
	"fmt"
	"strings"
)

// VerifyError lists every invariant violation found in a graph.
type VerifyError struct {
	Graph    string
	Problems []string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("graph %s is malformed:\n  %s", e.Graph, strings.Join(e.Problems, "\n  "))
}

// Verify checks that the graph is well-formed SSA: every block is sealed,
// edges are symmetric, every phi has one operand per predecessor matching
// that predecessor's final slot state, and no operand refers to a discarded
// instruction.
func Verify(g *Graph) error {
	v := &verifier{g: g}
	for _, b := range g.Blocks() {
		v.block(b)
	}
	if len(v.problems) > 0 {
		return &VerifyError{Graph: g.Name, Problems: v.problems}
	}
	return nil
}

type verifier struct {
	g        *Graph
	problems []string
}

func (v *verifier) fail(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *verifier) block(b *BasicBlock) {
	term, ok := b.Terminator()
	if !ok {
		v.fail("%s (pc %d) has no terminator", b.id, b.pc)
	}

	if ok {
		for _, s := range term.GetSuccessors() {
			if !s.Valid() {
				v.fail("%s branches to the absent block", b.id)
				continue
			}
			if count(v.g.Block(s).predecessors, b.id) != count(term.GetSuccessors(), s) {
				v.fail("%s -> %s is missing from the predecessor list", b.id, s)
			}
		}
	}
	for _, p := range b.predecessors {
		if count(v.g.Block(p).Successors(), b.id) == 0 {
			v.fail("%s lists %s as predecessor but it does not branch there", b.id, p)
		}
	}

	if b.loopHeader && (!b.backedge || len(b.predecessors) != 2) {
		v.fail("loop header %s does not have exactly an entry and a back edge", b.id)
	}

	for _, id := range b.phis {
		ins, live := v.g.Lookup(id)
		if !live {
			v.fail("%s lists discarded phi %s", b.id, id)
			continue
		}
		phi := ins.(*Phi)
		if len(phi.operands) != len(b.predecessors) {
			v.fail("phi %s in %s has %d operands for %d predecessors",
				id, b.id, len(phi.operands), len(b.predecessors))
			continue
		}
		for i, op := range phi.operands {
			v.operand(phi, op)
			pred := v.g.Block(b.predecessors[i])
			if phi.Slot < len(pred.slots) && pred.slots[phi.Slot] != op {
				v.fail("phi %s operand %d does not match slot %d of %s", id, i, phi.Slot, pred.id)
			}
		}
	}

	for _, id := range b.instructions {
		ins, live := v.g.Lookup(id)
		if !live {
			v.fail("%s lists discarded instruction %s", b.id, id)
			continue
		}
		if ins.GetBlock() != b.id {
			v.fail("%s claims %s but belongs to %s", id, b.id, ins.GetBlock())
		}
		for _, op := range ins.GetOperands() {
			v.operand(ins, op)
		}
	}
	if ok {
		for _, op := range term.GetOperands() {
			v.operand(term, op)
		}
	}
}

func (v *verifier) operand(user Instruction, op ValueID) {
	if _, live := v.g.Lookup(op); !live {
		v.fail("%s %s uses missing value %s", user.Opcode(), user.GetID(), op)
	}
}

func count[T comparable](list []T, x T) int {
	n := 0
	for _, e := range list {
		if e == x {
			n++
		}
	}
	return n
}
