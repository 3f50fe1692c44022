package builder

import (
	"ionbuild/internal/bytecode"
	errs "ionbuild/internal/errors"
	"ionbuild/internal/mir"
)

// loopState is shared by every phase of one loop.
type loopState struct {
	entry     mir.BlockID // header
	successor mir.BlockID // block after the loop, reached when the condition fails
	slots     int         // header slot count, back edges must match it

	bodyStart  int
	bodyEnd    int
	exitpc     int
	continuepc int
	condpc     int // -1 without a condition
	updatepc   int // -1 without an update clause
	updateEnd  int
	ifne       int

	breaks    []mir.BlockID
	continues []mir.BlockID
}

type loopFrame struct {
	stopAt int
	state  *loopState
}

func (f loopFrame) stop() int { return f.stopAt }
func (f loopFrame) loop() *loopState { return f.state }
func (loopFrame) cfgState() {}
func (f loopFrame) with(stopAt int) loopFrame {
	return loopFrame{stopAt: stopAt, state: f.state}
}

// loopPhase is implemented by every loop state.
type loopPhase interface {
	cfgState
	loop() *loopState
}

type (
	doWhileBodyState struct{ loopFrame }
	doWhileCondState struct{ loopFrame }
	whileCondState   struct{ loopFrame }
	whileBodyState   struct{ loopFrame }
	forCondState     struct{ loopFrame }
	forBodyState     struct{ loopFrame }
	forUpdateState   struct{ loopFrame }
)

func (b *Builder) pushLoop(s loopPhase) {
	b.loops = append(b.loops, loopInfo{cfgEntry: len(b.cfgStack), continuepc: s.loop().continuepc})
	b.push(s)
}

// openLoop creates the loop header at pc and jumps to it from the current
// block, which becomes the header.
func (b *Builder) openLoop(pc int) mir.BlockID {
	header := b.newLoopHeader(b.current, pc)
	b.block().End(mir.NewGoto(header))
	b.current = header
	return header
}

// loopIfne validates the offset to the loop-closing branch and that it
// jumps back to the TRACE at trace.
func (b *Builder) loopIfne(note bytecode.SrcNote, base, index, trace int) (int, error) {
	off, ok := note.Offset(index)
	if !ok {
		return 0, b.malformed(errs.ErrorBadAnnotation, "%s note is missing offset %d", note.Type, index)
	}
	ifne := base + off
	if ifne <= b.pc || ifne >= b.script.Length() {
		return 0, b.malformed(errs.ErrorBadAnnotation, "%s note points outside the loop at %d", note.Type, ifne)
	}
	op := b.script.Op(ifne)
	if !op.IsIfNe() && !op.IsGoto() {
		return 0, b.malformed(errs.ErrorBadAnnotation, "%s note must point at the loop-closing branch, found %s", note.Type, op)
	}
	if trace >= b.script.Length() || b.script.Op(trace) != bytecode.OpTrace {
		return 0, b.malformed(errs.ErrorBadAnnotation, "loop body does not start with trace")
	}
	if b.script.JumpTarget(ifne) != trace {
		return 0, b.malformed(errs.ErrorBadAnnotation,
			"loop-closing %s at %d jumps to %d, not to the loop start %d", op, ifne, b.script.JumpTarget(ifne), trace)
	}
	return ifne, nil
}

// doWhileLoop handles
//
//	NOP       ; while note: offsets to IFNE and to the condition
//	TRACE
//	body
//	cond
//	IFNE      ; back to TRACE
func (b *Builder) doWhileLoop(note bytecode.SrcNote) (controlStatus, error) {
	trace := b.script.NextPC(b.pc)
	ifne, err := b.loopIfne(note, b.pc, 0, trace)
	if err != nil {
		return controlNone, err
	}
	if !b.script.Op(ifne).IsIfNe() {
		return controlNone, b.malformed(errs.ErrorBadAnnotation, "do-while must close with a conditional branch")
	}
	bodyStart := b.script.NextPC(trace)
	off, ok := note.Offset(1)
	condpc := b.pc + off
	if !ok || condpc < bodyStart || condpc > ifne {
		return controlNone, b.malformed(errs.ErrorBadAnnotation, "do-while condition offset is missing or outside the loop")
	}

	header := b.openLoop(trace)
	b.pushLoop(&doWhileBodyState{loopFrame{stopAt: condpc, state: &loopState{
		entry:      header,
		slots:      b.block().NumSlots(),
		bodyStart:  bodyStart,
		bodyEnd:    condpc,
		exitpc:     b.script.NextPC(ifne),
		continuepc: condpc,
		condpc:     condpc,
		updatepc:   -1,
		ifne:       ifne,
	}}})
	b.log.Debugf("pc %d: do-while, condition at %d, exit at %d", b.pc, condpc, b.script.NextPC(ifne))

	b.pc = bodyStart
	return controlJumped, nil
}

// whileLoop handles
//
//	GOTO cond ; while note: offset to IFNE
//	TRACE
//	body
//	cond:
//	IFNE      ; back to TRACE
func (b *Builder) whileLoop(note bytecode.SrcNote) (controlStatus, error) {
	trace := b.script.NextPC(b.pc)
	ifne, err := b.loopIfne(note, b.pc, 0, trace)
	if err != nil {
		return controlNone, err
	}
	condpc := b.script.JumpTarget(b.pc)
	if !b.script.Op(ifne).IsIfNe() || condpc <= trace || condpc > ifne {
		return controlNone, b.malformed(errs.ErrorBadAnnotation, "while loop entry does not jump to its condition")
	}

	header := b.openLoop(condpc)
	b.pushLoop(&whileCondState{loopFrame{stopAt: ifne, state: &loopState{
		entry:      header,
		slots:      b.block().NumSlots(),
		bodyStart:  b.script.NextPC(trace),
		bodyEnd:    condpc,
		exitpc:     b.script.NextPC(ifne),
		continuepc: condpc,
		condpc:     condpc,
		updatepc:   -1,
		ifne:       ifne,
	}}})
	b.log.Debugf("pc %d: while, condition at %d, exit at %d", b.pc, condpc, b.script.NextPC(ifne))

	b.pc = condpc
	return controlJumped, nil
}

// forLoop handles
//
//	NOP or POP  ; for note: offsets to cond, update and IFNE, from the next pc
//	[GOTO cond]
//	TRACE
//	body
//	[update]
//	[cond]
//	IFNE or GOTO ; back to TRACE
//
// Without a condition the condition offset equals the IFNE offset, and
// without an update clause the update offset equals the condition offset.
func (b *Builder) forLoop(op bytecode.Op, note bytecode.SrcNote) (controlStatus, error) {
	if op == bytecode.OpPop {
		if err := b.checkUses(1); err != nil {
			return controlNone, err
		}
		b.block().Pop()
	}

	base := b.script.NextPC(b.pc)
	condOff, ok1 := note.Offset(0)
	updateOff, ok2 := note.Offset(1)
	if !ok1 || !ok2 || len(note.Offsets) != 3 {
		return controlNone, b.malformed(errs.ErrorBadAnnotation, "for note needs three offsets")
	}
	condpc, updatepc := base+condOff, base+updateOff

	ifneOff := note.Offsets[2]
	trace := base
	hasCond := base+ifneOff != condpc
	if hasCond {
		if base >= b.script.Length() || !b.script.Op(base).IsGoto() || b.script.JumpTarget(base) != condpc {
			return controlNone, b.malformed(errs.ErrorBadAnnotation, "for loop entry does not jump to its condition")
		}
		trace = b.script.NextPC(base)
	}
	ifne, err := b.loopIfne(note, base, 2, trace)
	if err != nil {
		return controlNone, err
	}
	if hasCond != b.script.Op(ifne).IsIfNe() {
		return controlNone, b.malformed(errs.ErrorBadAnnotation, "for loop closes with %s", b.script.Op(ifne))
	}

	bodyStart := b.script.NextPC(trace)
	if bodyStart > updatepc || updatepc > condpc || condpc > ifne {
		return controlNone, b.malformed(errs.ErrorBadAnnotation, "for note offsets are out of order")
	}

	loop := &loopState{
		bodyStart:  bodyStart,
		bodyEnd:    updatepc,
		exitpc:     b.script.NextPC(ifne),
		continuepc: updatepc,
		condpc:     -1,
		updatepc:   -1,
		updateEnd:  condpc,
		ifne:       ifne,
	}
	if updatepc != condpc {
		loop.updatepc = updatepc
	}

	if hasCond {
		loop.condpc = condpc
		loop.entry = b.openLoop(condpc)
		loop.slots = b.block().NumSlots()
		b.pushLoop(&forCondState{loopFrame{stopAt: ifne, state: loop}})
		b.pc = condpc
	} else {
		loop.entry = b.openLoop(trace)
		loop.slots = b.block().NumSlots()
		b.pushLoop(&forBodyState{loopFrame{stopAt: loop.bodyEnd, state: loop}})
		b.pc = bodyStart
	}
	b.log.Debugf("for loop: body at %d, update at %d, condition at %d, exit at %d",
		bodyStart, updatepc, condpc, loop.exitpc)
	return controlJumped, nil
}

// loopCondEnd closes a while or for condition at its IFNE: the header (or
// whatever block the condition ended in) tests into the body or out of the
// loop.
func (b *Builder) loopCondEnd(loop *loopState) error {
	if !b.current.Valid() {
		return b.malformed(errs.ErrorMalformedStructure, "loop condition does not fall through")
	}
	if err := b.checkUses(1); err != nil {
		return err
	}
	cur := b.block()
	cond := cur.Pop()
	body := b.newBlock(b.current, loop.bodyStart)
	loop.successor = b.newBlock(b.current, loop.exitpc)
	cur.End(mir.NewTest(cond, body, loop.successor))

	b.pc = loop.bodyStart
	b.current = body
	return nil
}

func (b *Builder) processWhileCondEnd(s *whileCondState) (controlStatus, error) {
	if err := b.loopCondEnd(s.state); err != nil {
		return controlNone, err
	}
	b.replaceTop(&whileBodyState{s.with(s.state.bodyEnd)})
	return controlJumped, nil
}

func (b *Builder) processWhileBodyEnd(s *whileBodyState) (controlStatus, error) {
	if err := b.resolveContinues(s.state); err != nil {
		return controlNone, err
	}
	if err := b.finalizeLoop(s.state, mir.NoValue); err != nil {
		return controlNone, err
	}
	return b.leaveLoop(s.state)
}

func (b *Builder) processForCondEnd(s *forCondState) (controlStatus, error) {
	if err := b.loopCondEnd(s.state); err != nil {
		return controlNone, err
	}
	b.replaceTop(&forBodyState{s.with(s.state.bodyEnd)})
	return controlJumped, nil
}

func (b *Builder) processForBodyEnd(s *forBodyState) (controlStatus, error) {
	if err := b.resolveContinues(s.state); err != nil {
		return controlNone, err
	}
	// The update clause is dead when no path reaches it.
	if s.state.updatepc < 0 || !b.current.Valid() {
		return b.processForUpdateEnd(&forUpdateState{s.loopFrame})
	}
	b.replaceTop(&forUpdateState{s.with(s.state.updateEnd)})
	b.pc = s.state.updatepc
	return controlJumped, nil
}

func (b *Builder) processForUpdateEnd(s *forUpdateState) (controlStatus, error) {
	if err := b.finalizeLoop(s.state, mir.NoValue); err != nil {
		return controlNone, err
	}
	return b.leaveLoop(s.state)
}

func (b *Builder) processDoWhileBodyEnd(s *doWhileBodyState) (controlStatus, error) {
	if err := b.resolveContinues(s.state); err != nil {
		return controlNone, err
	}
	if !b.current.Valid() {
		if err := b.finalizeLoop(s.state, mir.NoValue); err != nil {
			return controlNone, err
		}
		return b.leaveLoop(s.state)
	}
	b.replaceTop(&doWhileCondState{s.with(s.state.ifne)})
	b.pc = s.state.condpc
	return controlJumped, nil
}

func (b *Builder) processDoWhileCondEnd(s *doWhileCondState) (controlStatus, error) {
	if !b.current.Valid() {
		return controlNone, b.malformed(errs.ErrorMalformedStructure, "do-while condition does not fall through")
	}
	if err := b.checkUses(1); err != nil {
		return controlNone, err
	}
	last := b.block().Pop()
	s.state.successor = b.newBlock(b.current, s.state.exitpc)
	if err := b.finalizeLoop(s.state, last); err != nil {
		return controlNone, err
	}
	return b.leaveLoop(s.state)
}

func (b *Builder) leaveLoop(loop *loopState) (controlStatus, error) {
	b.current = loop.successor
	if !b.current.Valid() {
		return controlEnded, nil
	}
	b.pc = b.block().PC()
	return controlJoined, nil
}

// resolveContinues joins the current block and every deferred continue,
// in the order they were met, into a new block at the continue target.
func (b *Builder) resolveContinues(loop *loopState) error {
	if len(loop.continues) == 0 {
		return nil
	}
	update := b.newBlock(mir.NoBlock, loop.continuepc)
	if b.current.Valid() {
		if err := b.gotoBlock(b.current, update); err != nil {
			return err
		}
	}
	for _, edge := range loop.continues {
		if err := b.gotoBlock(edge, update); err != nil {
			return err
		}
	}
	b.log.Debugf("pc %d: %d continues joined", loop.continuepc, len(loop.continues))
	loop.continues = nil
	b.current = update
	return nil
}

// finalizeLoop closes the back edge from the current block, or abandons the
// header if no path gets back to it, and routes the deferred breaks to the
// successor. last, when given, is the do-while condition tested on the
// back edge.
func (b *Builder) finalizeLoop(loop *loopState, last mir.ValueID) error {
	breaks := mir.NoBlock
	if len(loop.breaks) > 0 {
		breaks = b.newBlock(mir.NoBlock, loop.exitpc)
		for _, edge := range loop.breaks {
			if err := b.gotoBlock(edge, breaks); err != nil {
				return err
			}
		}
		loop.breaks = nil
	}

	successor := loop.successor
	if !successor.Valid() {
		successor = breaks
	}

	if b.current.Valid() {
		cur := b.block()
		if cur.NumSlots() != loop.slots {
			return b.malformed(errs.ErrorMalformedStructure,
				"back edge carries %d slots, loop header has %d", cur.NumSlots(), loop.slots)
		}
		if last.Valid() {
			cur.End(mir.NewTest(last, loop.entry, successor))
		} else {
			cur.End(mir.NewGoto(loop.entry))
		}
		b.graph.SetBackedge(loop.entry, b.current)
	} else {
		b.graph.AbandonLoopHeader(loop.entry)
	}

	if successor.Valid() && breaks.Valid() && successor != breaks {
		if err := b.gotoBlock(breaks, successor); err != nil {
			return err
		}
	}
	loop.successor = successor
	return nil
}

// findLoop searches the enclosing loops innermost first.
func (b *Builder) findLoop(match func(info loopInfo, loop *loopState) bool) *loopState {
	for i := len(b.loops) - 1; i >= 0; i-- {
		info := b.loops[i]
		loop := b.cfgStack[info.cfgEntry].(loopPhase).loop()
		if match(info, loop) {
			return loop
		}
	}
	return nil
}

// deferBreak records the current block as a break to the loop exiting at
// target.
func (b *Builder) deferBreak(target int) error {
	loop := b.findLoop(func(_ loopInfo, l *loopState) bool { return l.exitpc == target })
	if loop == nil {
		return b.malformed(errs.ErrorUnmatchedJump, "break to %d matches no enclosing loop", target)
	}
	loop.breaks = append(loop.breaks, b.current)
	b.current = mir.NoBlock
	return nil
}

// deferContinue records the current block as a continue to the loop whose
// continue point is target.
func (b *Builder) deferContinue(target int) error {
	loop := b.findLoop(func(info loopInfo, _ *loopState) bool { return info.continuepc == target })
	if loop == nil {
		return b.malformed(errs.ErrorUnmatchedJump, "continue to %d matches no enclosing loop", target)
	}
	loop.continues = append(loop.continues, b.current)
	b.current = mir.NoBlock
	return nil
}

func (b *Builder) processBreak() (controlStatus, error) {
	if err := b.deferBreak(b.script.JumpTarget(b.pc)); err != nil {
		return controlNone, err
	}
	b.pc = b.script.NextPC(b.pc)
	return b.processControlEnd()
}

func (b *Builder) processContinue() (controlStatus, error) {
	if err := b.deferContinue(b.script.JumpTarget(b.pc)); err != nil {
		return controlNone, err
	}
	b.pc = b.script.NextPC(b.pc)
	return b.processControlEnd()
}
