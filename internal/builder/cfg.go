package builder

import (
	"ionbuild/internal/bytecode"
	errs "ionbuild/internal/errors"
	"ionbuild/internal/mir"
)

// cfgState is one open control structure. The concrete types below are the
// only implementations; stop is the pc at which the structure's current
// phase ends.
type cfgState interface {
	stop() int
	cfgState()
}

// ifTrueState is the true branch of an if without else, or of an if/else
// whose else is empty. The false block is the join.
type ifTrueState struct {
	stopAt    int
	ifFalse   mir.BlockID
	emptyElse bool
}

// ifElseTrueState is the true branch of an if/else or ternary.
type ifElseTrueState struct {
	stopAt   int
	falseEnd int
	ifFalse  mir.BlockID
}

// ifElseFalseState is the false branch; ifTrue is the last block of the true
// branch, or none if it did not fall through.
type ifElseFalseState struct {
	stopAt  int
	ifTrue  mir.BlockID
	ifFalse mir.BlockID
}

func (s *ifTrueState) stop() int { return s.stopAt }
func (s *ifElseTrueState) stop() int { return s.stopAt }
func (s *ifElseFalseState) stop() int { return s.stopAt }

func (*ifTrueState) cfgState() {}
func (*ifElseTrueState) cfgState() {}
func (*ifElseFalseState) cfgState() {}

func (b *Builder) top() cfgState { return b.cfgStack[len(b.cfgStack)-1] }

func (b *Builder) push(s cfgState) { b.cfgStack = append(b.cfgStack, s) }

// replaceTop moves the top structure to its next phase.
func (b *Builder) replaceTop(s cfgState) { b.cfgStack[len(b.cfgStack)-1] = s }

func (b *Builder) popCfgStack() {
	if _, ok := b.top().(loopPhase); ok {
		b.loops = b.loops[:len(b.loops)-1]
	}
	b.cfgStack = b.cfgStack[:len(b.cfgStack)-1]
}

// processControlEnd runs after return, break or continue left no current
// block. An empty stack means the build is complete.
func (b *Builder) processControlEnd() (controlStatus, error) {
	if len(b.cfgStack) == 0 {
		return controlEnded, nil
	}
	return b.processCfgStack()
}

// processCfgStack completes the top structure. A structure that ended
// without a join also ends the path through its parent, so completion
// propagates outwards until something joins or jumps.
func (b *Builder) processCfgStack() (controlStatus, error) {
	status, err := b.processCfgEntry(b.top())
	for err == nil && status == controlEnded {
		b.popCfgStack()
		if len(b.cfgStack) == 0 {
			return status, nil
		}
		status, err = b.processCfgEntry(b.top())
	}
	if err != nil {
		return controlNone, err
	}
	if status == controlJoined {
		b.popCfgStack()
	}
	return status, nil
}

func (b *Builder) processCfgEntry(s cfgState) (controlStatus, error) {
	switch s := s.(type) {
	case *ifTrueState:
		return b.processIfEnd(s)
	case *ifElseTrueState:
		return b.processIfElseTrueEnd(s)
	case *ifElseFalseState:
		return b.processIfElseFalseEnd(s)
	case *doWhileBodyState:
		return b.processDoWhileBodyEnd(s)
	case *doWhileCondState:
		return b.processDoWhileCondEnd(s)
	case *whileCondState:
		return b.processWhileCondEnd(s)
	case *whileBodyState:
		return b.processWhileBodyEnd(s)
	case *forCondState:
		return b.processForCondEnd(s)
	case *forBodyState:
		return b.processForBodyEnd(s)
	case *forUpdateState:
		return b.processForUpdateEnd(s)
	}
	panic("builder: unknown cfg state")
}

func (b *Builder) processIfEnd(s *ifTrueState) (controlStatus, error) {
	if b.current.Valid() {
		if err := b.gotoBlock(b.current, s.ifFalse); err != nil {
			return controlNone, err
		}
	}
	b.current = s.ifFalse
	b.pc = b.block().PC()
	return controlJoined, nil
}

func (b *Builder) processIfElseTrueEnd(s *ifElseTrueState) (controlStatus, error) {
	b.replaceTop(&ifElseFalseState{
		stopAt:  s.falseEnd,
		ifTrue:  b.current,
		ifFalse: s.ifFalse,
	})
	b.current = s.ifFalse
	b.pc = b.block().PC()
	return controlJumped, nil
}

func (b *Builder) processIfElseFalseEnd(s *ifElseFalseState) (controlStatus, error) {
	s.ifFalse = b.current

	pred, other := s.ifTrue, s.ifFalse
	if !pred.Valid() {
		pred, other = other, mir.NoBlock
	}
	if !pred.Valid() {
		return controlEnded, nil
	}

	b.pc = s.stopAt
	join := b.newBlock(pred, b.pc)
	b.graph.Block(pred).End(mir.NewGoto(join))
	if other.Valid() {
		if err := b.gotoBlock(other, join); err != nil {
			return controlNone, err
		}
	}

	b.current = join
	return controlJoined, nil
}

// jsopIfeq opens an if, if/else or ternary at the IFEQ under the cursor.
func (b *Builder) jsopIfeq(op bytecode.Op) error {
	trueStart := b.script.NextPC(b.pc)
	falseStart := b.script.JumpTarget(b.pc)

	note, ok := b.script.Note(b.pc)
	if !ok {
		return b.unsupported(errs.ErrorUnannotatedBranch, "conditional branch has no structure annotation")
	}
	if falseStart <= b.pc {
		return b.malformed(errs.ErrorBadAnnotation, "%s jumps backwards to %d", op, falseStart)
	}

	var state cfgState
	switch note.Type {
	case bytecode.NoteIf:
		state = &ifTrueState{stopAt: falseStart}

	case bytecode.NoteIfElse, bytecode.NoteCond:
		off, ok := note.Offset(0)
		if !ok {
			return b.malformed(errs.ErrorBadAnnotation, "%s note has no offset", note.Type)
		}
		trueEnd := b.pc + off
		if trueEnd <= b.pc || trueEnd >= falseStart || !b.script.Op(trueEnd).IsGoto() {
			return b.malformed(errs.ErrorBadAnnotation,
				"%s note must point at the goto closing the true branch, found pc %d", note.Type, trueEnd)
		}
		if _, noted := b.script.Note(trueEnd); noted {
			return b.malformed(errs.ErrorBadAnnotation, "goto at pc %d closing the true branch is annotated", trueEnd)
		}
		falseEnd := b.script.JumpTarget(trueEnd)
		if falseEnd < falseStart {
			return b.malformed(errs.ErrorBadAnnotation,
				"true branch jumps to %d, before the false branch at %d", falseEnd, falseStart)
		}
		if falseEnd == falseStart {
			state = &ifTrueState{stopAt: trueEnd, emptyElse: true}
		} else {
			state = &ifElseTrueState{stopAt: trueEnd, falseEnd: falseEnd}
		}

	default:
		return b.malformed(errs.ErrorBadAnnotation, "%s note on a conditional branch", note.Type)
	}

	if err := b.checkUses(1); err != nil {
		return err
	}
	cur := b.block()
	cond := cur.Pop()
	ifTrue := b.newBlock(b.current, trueStart)
	ifFalse := b.newBlock(b.current, falseStart)
	cur.End(mir.NewTest(cond, ifTrue, ifFalse))

	switch s := state.(type) {
	case *ifTrueState:
		s.ifFalse = ifFalse
	case *ifElseTrueState:
		s.ifFalse = ifFalse
	}
	b.push(state)
	b.log.Debugf("pc %d: %s, true at %d, false at %d", b.pc, note.Type, trueStart, falseStart)

	b.current = ifTrue
	return nil
}
