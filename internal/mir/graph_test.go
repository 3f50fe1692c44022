package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ionbuild/internal/bytecode"
)

func newTestGraph(t *testing.T, nfixed int) (*Graph, *BasicBlock) {
	t.Helper()
	g := NewGraph(t.Name(), nfixed, Limits{})
	entry := g.Block(g.NewEntryBlock(0))
	for i := 0; i < nfixed; i++ {
		entry.SetSlot(i, entry.Add(NewConstant(bytecode.Int32(int32(i)))))
	}
	return g, entry
}

func constant(b *BasicBlock, v int32) ValueID {
	return b.Add(NewConstant(bytecode.Int32(v)))
}

func TestNewBlockSharesSlotsCopyOnWrite(t *testing.T) {
	g, entry := newTestGraph(t, 2)
	before := entry.GetSlot(0)

	child := g.Block(g.NewBlock(entry.ID(), 4))
	assert.Equal(t, before, child.GetSlot(0))
	assert.Equal(t, []BlockID{entry.ID()}, child.Predecessors())

	child.SetSlot(0, constant(child, 9))
	child.Push(constant(child, 10))
	assert.Equal(t, before, entry.GetSlot(0))
	assert.Equal(t, 0, entry.StackDepth())
	assert.Equal(t, 1, child.StackDepth())

	entry.Push(entry.GetSlot(1))
	assert.Equal(t, 1, child.StackDepth())
	assert.NotEqual(t, entry.Peek(), child.Peek())
}

func TestStackOperations(t *testing.T) {
	_, entry := newTestGraph(t, 1)
	a, b := constant(entry, 5), constant(entry, 6)
	entry.Push(a)
	entry.Push(b)
	entry.Swap()
	assert.Equal(t, a, entry.Pop())
	entry.PushSlot(0)
	assert.Equal(t, entry.GetSlot(0), entry.Peek())
	entry.Pop()
	entry.Pop()
	assert.Panics(t, func() { entry.Pop() })
}

func TestAddPredecessorInsertsPhiRetroactively(t *testing.T) {
	g, entry := newTestGraph(t, 1)
	original := entry.GetSlot(0)

	a := g.Block(g.NewBlock(entry.ID(), 1))
	b := g.Block(g.NewBlock(entry.ID(), 2))
	c := g.Block(g.NewBlock(entry.ID(), 3))
	d := g.Block(g.NewBlock(entry.ID(), 4))
	changed := constant(c, 42)
	c.SetSlot(0, changed)

	join := g.Block(g.NewBlock(NoBlock, 10))
	g.AddPredecessor(join.ID(), a.ID())
	g.AddPredecessor(join.ID(), b.ID())
	assert.Empty(t, join.Phis())
	assert.Equal(t, original, join.GetSlot(0))

	g.AddPredecessor(join.ID(), c.ID())
	require.Len(t, join.Phis(), 1)
	phi := g.Inst(join.Phis()[0]).(*Phi)
	assert.Equal(t, 0, phi.Slot)
	assert.Equal(t, []ValueID{original, original, changed}, phi.GetOperands())
	assert.Equal(t, phi.GetID(), join.GetSlot(0))

	g.AddPredecessor(join.ID(), d.ID())
	assert.Equal(t, []ValueID{original, original, changed, original}, phi.GetOperands())
	assert.Len(t, join.Predecessors(), 4)
}

func TestAddPredecessorStackMismatchPanics(t *testing.T) {
	g, entry := newTestGraph(t, 1)
	a := g.Block(g.NewBlock(entry.ID(), 1))
	b := g.Block(g.NewBlock(entry.ID(), 2))
	b.Push(constant(b, 1))

	join := g.Block(g.NewBlock(a.ID(), 3))
	assert.Panics(t, func() { g.AddPredecessor(join.ID(), b.ID()) })
}

// buildLoop builds: entry -> header; header tests into body or exit;
// body -> header. mutate runs in the body.
func buildLoop(t *testing.T, mutate func(g *Graph, body *BasicBlock, phi ValueID)) (*Graph, *BasicBlock, *BasicBlock) {
	g, entry := newTestGraph(t, 1)
	header := g.Block(g.NewLoopHeader(entry.ID(), 1))
	entry.End(NewGoto(header.ID()))
	require.Len(t, header.Phis(), 1)
	phi := header.Phis()[0]
	assert.Equal(t, phi, header.GetSlot(0))

	cond := header.Add(NewConstant(bytecode.Boolean(true)))
	body := g.Block(g.NewBlock(header.ID(), 2))
	exit := g.Block(g.NewBlock(header.ID(), 3))
	header.End(NewTest(cond, body.ID(), exit.ID()))

	mutate(g, body, phi)
	body.End(NewGoto(header.ID()))
	g.SetBackedge(header.ID(), body.ID())
	exit.End(NewReturn(exit.GetSlot(0)))
	return g, header, exit
}

func TestSetBackedgeKeepsVaryingPhi(t *testing.T) {
	var add ValueID
	g, header, exit := buildLoop(t, func(g *Graph, body *BasicBlock, phi ValueID) {
		add = body.Add(NewBinary(OpAdd, phi, constant(body, 1)))
		body.SetSlot(0, add)
	})

	require.Len(t, header.Phis(), 1)
	phi := g.Inst(header.Phis()[0]).(*Phi)
	assert.Equal(t, add, phi.GetOperands()[1])
	assert.Equal(t, g.Entry().GetSlot(0), phi.GetOperands()[0])
	assert.Equal(t, phi.GetID(), exit.GetSlot(0))
	assert.Len(t, header.Predecessors(), 2)
	require.NoError(t, Verify(g))
}

func TestSetBackedgeDiscardsRedundantPhi(t *testing.T) {
	var phi ValueID
	var use ValueID
	g, header, exit := buildLoop(t, func(g *Graph, body *BasicBlock, p ValueID) {
		phi = p
		use = body.Add(NewNot(p))
	})

	assert.Empty(t, header.Phis())
	_, live := g.Lookup(phi)
	assert.False(t, live)
	assert.Panics(t, func() { g.Inst(phi) })

	entryValue := g.Entry().GetSlot(0)
	assert.Equal(t, entryValue, exit.GetSlot(0))
	assert.Equal(t, []ValueID{entryValue}, g.Inst(use).GetOperands())
	require.NoError(t, Verify(g))
}

func TestAbandonLoopHeader(t *testing.T) {
	g, entry := newTestGraph(t, 1)
	header := g.Block(g.NewLoopHeader(entry.ID(), 1))
	entry.End(NewGoto(header.ID()))
	phi := header.Phis()[0]
	header.End(NewReturn(phi))

	g.AbandonLoopHeader(header.ID())
	assert.False(t, header.IsLoopHeader())
	assert.Empty(t, header.Phis())
	term, ok := header.Terminator()
	require.True(t, ok)
	assert.Equal(t, []ValueID{entry.GetSlot(0)}, term.GetOperands())
	require.NoError(t, Verify(g))

	assert.Panics(t, func() { g.AbandonLoopHeader(header.ID()) })
}

func TestSealedBlockGuards(t *testing.T) {
	g, entry := newTestGraph(t, 1)
	other := g.Block(g.NewBlock(entry.ID(), 1))
	entry.End(NewGoto(other.ID()))

	assert.True(t, entry.IsSealed())
	assert.Panics(t, func() { entry.Add(NewConstant(bytecode.Null())) })
	assert.Panics(t, func() { entry.End(NewReturn(entry.GetSlot(0))) })

	join := g.Block(g.NewBlock(other.ID(), 2))
	join.End(NewReturn(join.GetSlot(0)))
	assert.Panics(t, func() { g.AddPredecessor(join.ID(), other.ID()) })

	assert.Panics(t, func() { g.SetBackedge(join.ID(), other.ID()) })
	assert.Panics(t, func() { other.Add(NewGoto(join.ID())) })
}

func TestSetBackedgeTwicePanics(t *testing.T) {
	g, header, _ := buildLoop(t, func(*Graph, *BasicBlock, ValueID) {})
	latch := header.Predecessors()[1]
	assert.Panics(t, func() { g.SetBackedge(header.ID(), latch) })
}

func TestArenaBudget(t *testing.T) {
	g := NewGraph("budget", 0, Limits{MaxInstructions: 2, MaxBlocks: 1})
	entry := g.Block(g.NewEntryBlock(0))
	constant(entry, 1)
	constant(entry, 2)
	require.NoError(t, g.Err())
	constant(entry, 3)
	require.ErrorIs(t, g.Err(), ErrArenaExhausted)

	g = NewGraph("blocks", 0, Limits{MaxBlocks: 1})
	entry = g.Block(g.NewEntryBlock(0))
	g.NewBlock(entry.ID(), 1)
	require.ErrorIs(t, g.Err(), ErrArenaExhausted)
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	var phi ValueID
	g, _, exit := buildLoop(t, func(g *Graph, body *BasicBlock, p ValueID) { phi = p })

	// The folded phi is released by SetBackedge; the exit's return is the
	// next allocation and takes its index.
	term, ok := exit.Terminator()
	require.True(t, ok)
	reused := term.GetID()
	assert.Equal(t, phi.index, reused.index)
	assert.NotEqual(t, phi, reused)
	assert.Panics(t, func() { g.Inst(phi) })
}

func TestVerifyReportsProblems(t *testing.T) {
	g, entry := newTestGraph(t, 1)
	g.NewBlock(entry.ID(), 1)

	err := Verify(g)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 3)
	assert.Contains(t, err.Error(), "has no terminator")
	assert.Contains(t, err.Error(), "does not branch there")
}

func TestPrint(t *testing.T) {
	g, _, _ := buildLoop(t, func(g *Graph, body *BasicBlock, phi ValueID) {
		body.SetSlot(0, body.Add(NewBinary(OpAdd, phi, constant(body, 1))))
	})
	require.NoError(t, NewPipeline().Run(g))

	out := Print(g)
	assert.Contains(t, out, "GRAPH "+t.Name()+" (MIR)")
	assert.Contains(t, out, "block1 [pc 1] (loop header):")
	assert.Contains(t, out, "v2:value = phi slot0 v0 v6")
	assert.Contains(t, out, "test v3 ? block2 : block3")
	assert.Contains(t, out, "; preds: block0, block2")
	assert.Contains(t, out, "v0:int32 = constant 0")
	assert.Contains(t, out, "v6:value = add any v2 v5")
	assert.Contains(t, out, "return v2")
}

func TestEliminateRedundantPhis(t *testing.T) {
	g, entry := newTestGraph(t, 1)
	a := g.Block(g.NewBlock(entry.ID(), 1))
	b := g.Block(g.NewBlock(entry.ID(), 2))
	other := constant(b, 5)
	b.SetSlot(0, other)
	entry.End(NewTest(entry.GetSlot(0), a.ID(), b.ID()))

	join := g.Block(g.NewBlock(a.ID(), 3))
	g.AddPredecessor(join.ID(), b.ID())
	a.End(NewGoto(join.ID()))
	b.End(NewGoto(join.ID()))
	join.End(NewReturn(join.GetSlot(0)))
	require.Len(t, join.Phis(), 1)

	g.ReplaceAllUses(other, entry.GetSlot(0))
	changed, err := (&EliminateRedundantPhis{}).Apply(g)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, join.Phis())
	assert.Equal(t, entry.GetSlot(0), join.GetSlot(0))
	require.NoError(t, Verify(g))
}
