package mir

import (
	"fmt"
	"slices"
)

// Pass is a single transformation or check run over a built graph.
type Pass interface {
	Name() string
	Description() string
	Apply(g *Graph) (bool, error) // reports whether the graph changed
}

// Pipeline runs passes in order, stopping at the first error.
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates the default post-build pipeline.
func NewPipeline() *Pipeline {
	pipeline := &Pipeline{}

	pipeline.AddPass(&VerifyPass{})
	pipeline.AddPass(&EliminateRedundantPhis{})
	pipeline.AddPass(&Renumber{})
	pipeline.AddPass(&VerifyPass{})

	return pipeline
}

// AddPass appends a pass to the pipeline.
func (p *Pipeline) AddPass(pass Pass) {
	p.passes = append(p.passes, pass)
}

// Passes returns the configured passes.
func (p *Pipeline) Passes() []Pass { return p.passes }

// Run executes every pass on g.
func (p *Pipeline) Run(g *Graph) error {
	log.Debugf("running %d passes on %s", len(p.passes), g.Name)

	for _, pass := range p.passes {
		changed, err := pass.Apply(g)
		if err != nil {
			return fmt.Errorf("%s: %w", pass.Name(), err)
		}
		if changed {
			log.Debugf("  - %s: changed", pass.Name())
		} else {
			log.Debugf("  - %s: no changes", pass.Name())
		}
	}
	return nil
}

// VerifyPass fails when the graph violates an SSA invariant.
type VerifyPass struct{}

func (vp *VerifyPass) Name() string { return "Verify" }

func (vp *VerifyPass) Description() string {
	return "Checks block sealing, edge symmetry and phi operand correspondence"
}

func (vp *VerifyPass) Apply(g *Graph) (bool, error) {
	return false, Verify(g)
}

// EliminateRedundantPhis removes join phis whose operands are all the same
// value (ignoring the phi itself), which can appear once loop phis have
// been folded into their entry definitions.
type EliminateRedundantPhis struct{}

func (ep *EliminateRedundantPhis) Name() string { return "Eliminate Redundant Phis" }

func (ep *EliminateRedundantPhis) Description() string {
	return "Replaces phis with a single distinct operand by that operand"
}

func (ep *EliminateRedundantPhis) Apply(g *Graph) (bool, error) {
	changed := false
	for again := true; again; {
		again = false
		for _, b := range g.Blocks() {
			for _, id := range slices.Clone(b.phis) {
				same, ok := singleOperand(g.Inst(id).(*Phi))
				if !ok {
					continue
				}
				g.replaceUses(id, same)
				g.removePhi(b, id)
				again, changed = true, true
			}
		}
	}
	return changed, nil
}

func singleOperand(phi *Phi) (ValueID, bool) {
	same := NoValue
	for _, op := range phi.operands {
		if op == phi.id || op == same {
			continue
		}
		if same.Valid() {
			return NoValue, false
		}
		same = op
	}
	return same, same.Valid()
}

// Renumber assigns dense instruction numbers in block order so printed
// graphs are stable.
type Renumber struct{}

func (r *Renumber) Name() string { return "Renumber" }

func (r *Renumber) Description() string {
	return "Numbers instructions densely in block order"
}

func (r *Renumber) Apply(g *Graph) (bool, error) {
	n := 0
	changed := false
	number := func(id ValueID) {
		node := g.Inst(id).base()
		if node.serial != n {
			node.serial = n
			changed = true
		}
		n++
	}
	for _, b := range g.Blocks() {
		for _, id := range b.phis {
			number(id)
		}
		for _, id := range b.instructions {
			number(id)
		}
		if b.terminator.Valid() {
			number(b.terminator)
		}
	}
	return changed, nil
}
