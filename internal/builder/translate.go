package builder

import (
	"ionbuild/internal/bytecode"
	errs "ionbuild/internal/errors"
	"ionbuild/internal/mir"
)

var binaryOps = map[bytecode.Op]mir.BinaryOp{
	bytecode.OpAdd:    mir.OpAdd,
	bytecode.OpSub:    mir.OpSub,
	bytecode.OpMul:    mir.OpMul,
	bytecode.OpDiv:    mir.OpDiv,
	bytecode.OpMod:    mir.OpMod,
	bytecode.OpBitAnd: mir.OpBitAnd,
	bytecode.OpBitOr:  mir.OpBitOr,
	bytecode.OpBitXor: mir.OpBitXor,
	bytecode.OpLsh:    mir.OpLsh,
	bytecode.OpRsh:    mir.OpRsh,
}

var compareOps = map[bytecode.Op]mir.CompareOp{
	bytecode.OpLt:       mir.OpLt,
	bytecode.OpLe:       mir.OpLe,
	bytecode.OpGt:       mir.OpGt,
	bytecode.OpGe:       mir.OpGe,
	bytecode.OpEq:       mir.OpEq,
	bytecode.OpNe:       mir.OpNe,
	bytecode.OpStrictEq: mir.OpStrictEq,
	bytecode.OpStrictNe: mir.OpStrictNe,
}

// snoopControlFlow handles the opcodes that end the current block or start
// a loop before they would be translated.
func (b *Builder) snoopControlFlow(op bytecode.Op) (controlStatus, error) {
	switch {
	case op == bytecode.OpNop || op == bytecode.OpPop:
		return b.maybeLoop(op)

	case op == bytecode.OpReturn || op == bytecode.OpStop:
		return b.processReturn(op)

	case op.IsGoto():
		note, ok := b.script.Note(b.pc)
		if !ok {
			return controlNone, b.malformed(errs.ErrorUnstructuredJump, "jump without a structure annotation")
		}
		switch note.Type {
		case bytecode.NoteBreak, bytecode.NoteBreak2Label:
			return b.processBreak()
		case bytecode.NoteContinue, bytecode.NoteCont2Label:
			return b.processContinue()
		case bytecode.NoteWhile:
			return b.whileLoop(note)
		case bytecode.NoteForIn:
			return controlNone, b.unsupported(errs.ErrorForInLoop, "for-in loops are not compiled")
		default:
			return controlNone, b.malformed(errs.ErrorUnstructuredJump, "jump annotated as %s", note.Type)
		}

	case op.IsIfNe():
		return controlNone, b.malformed(errs.ErrorUnstructuredJump, "loop-closing branch outside of a loop condition")
	}
	return controlNone, nil
}

// maybeLoop recognizes the NOP or POP that opens a do-while or for loop.
// Without a loop note the opcode is translated normally.
func (b *Builder) maybeLoop(op bytecode.Op) (controlStatus, error) {
	note, ok := b.script.Note(b.pc)
	if !ok {
		return controlNone, nil
	}
	switch {
	case note.Type == bytecode.NoteFor:
		return b.forLoop(op, note)
	case note.Type == bytecode.NoteWhile && op == bytecode.OpNop:
		return b.doWhileLoop(note)
	}
	return controlNone, nil
}

func (b *Builder) processReturn(op bytecode.Op) (controlStatus, error) {
	cur := b.block()
	var v mir.ValueID
	if op == bytecode.OpReturn {
		if err := b.checkUses(1); err != nil {
			return controlNone, err
		}
		v = cur.Pop()
	} else {
		v = cur.Add(mir.NewConstant(bytecode.Undefined()))
	}
	cur.End(mir.NewReturn(v))

	b.current = mir.NoBlock
	return b.processControlEnd()
}

// inspectOpcode translates one non-control opcode into the current block.
// It never moves the cursor.
func (b *Builder) inspectOpcode(op bytecode.Op) error {
	if uses := op.Spec().Uses; uses > 0 {
		if err := b.checkUses(uses); err != nil {
			return err
		}
	}
	cur := b.block()

	if bop, ok := binaryOps[op]; ok {
		return b.jsopBinary(bop)
	}
	if cop, ok := compareOps[op]; ok {
		return b.jsopCompare(cop)
	}

	switch op {
	case bytecode.OpNop, bytecode.OpTrace, bytecode.OpNullBlockChain:
		return nil

	case bytecode.OpPush:
		b.pushConstant(bytecode.Undefined())
	case bytecode.OpNull:
		b.pushConstant(bytecode.Null())
	case bytecode.OpTrue:
		b.pushConstant(bytecode.Boolean(true))
	case bytecode.OpFalse:
		b.pushConstant(bytecode.Boolean(false))
	case bytecode.OpZero:
		b.pushConstant(bytecode.Int32(0))
	case bytecode.OpOne:
		b.pushConstant(bytecode.Int32(1))
	case bytecode.OpInt8:
		b.pushConstant(bytecode.Int32(bytecode.Int8Operand(b.script.Code, b.pc)))
	case bytecode.OpInt32:
		b.pushConstant(bytecode.Int32(bytecode.Int32Operand(b.script.Code, b.pc)))
	case bytecode.OpDouble:
		b.pushConstant(b.script.Consts[b.script.Operand(b.pc)])
	case bytecode.OpString:
		b.pushConstant(bytecode.String(b.script.Atoms[b.script.Operand(b.pc)]))

	case bytecode.OpGetArg, bytecode.OpSetArg:
		slot, err := b.operandSlot(op)
		if err != nil {
			return err
		}
		if op == bytecode.OpGetArg {
			cur.PushSlot(slot)
		} else {
			cur.SetSlot(slot, cur.Peek())
		}
	case bytecode.OpGetLocal, bytecode.OpSetLocal:
		slot, err := b.operandSlot(op)
		if err != nil {
			return err
		}
		if op == bytecode.OpGetLocal {
			cur.PushSlot(slot)
		} else {
			cur.SetSlot(slot, cur.Peek())
		}

	case bytecode.OpPop:
		cur.Pop()
	case bytecode.OpDup:
		cur.Push(cur.Peek())
	case bytecode.OpSwap:
		cur.Swap()
	case bytecode.OpNot:
		cur.Push(cur.Add(mir.NewNot(cur.Pop())))

	case bytecode.OpIfEq, bytecode.OpIfEqX:
		return b.jsopIfeq(op)

	default:
		return b.unsupported(errs.ErrorUnsupportedOpcode, "%s is not compiled", op)
	}
	return nil
}

func (b *Builder) operandSlot(op bytecode.Op) (int, error) {
	n := b.script.Operand(b.pc)
	switch op {
	case bytecode.OpGetArg, bytecode.OpSetArg:
		if n >= b.script.NArgs {
			return 0, b.malformed(errs.ErrorBadSlot, "argument %d out of range, script has %d", n, b.script.NArgs)
		}
		return b.argSlot(n), nil
	default:
		if n >= b.script.NLocals {
			return 0, b.malformed(errs.ErrorBadSlot, "local %d out of range, script has %d", n, b.script.NLocals)
		}
		return b.localSlot(n), nil
	}
}

func (b *Builder) pushConstant(v bytecode.Value) {
	cur := b.block()
	cur.Push(cur.Add(mir.NewConstant(v)))
}

// takeSnapshot records every slot so the interpreter can resume at the
// current pc.
func (b *Builder) takeSnapshot() mir.ValueID {
	cur := b.block()
	slots := make([]mir.ValueID, cur.NumSlots())
	for i := range slots {
		slots[i] = cur.GetSlot(i)
	}
	return cur.Add(mir.NewSnapshot(b.pc, slots))
}

func (b *Builder) jsopBinary(op mir.BinaryOp) error {
	snapshot := b.takeSnapshot()

	cur := b.block()
	right := cur.Pop()
	left := cur.Pop()

	ins := mir.NewBinary(op, left, right)
	ins.Snapshot = snapshot
	types := b.oracle.BinaryOp(b.script, b.pc)
	ins.Infer(types.LHS, types.RHS, types.Result)

	cur.Push(cur.Add(ins))
	return nil
}

func (b *Builder) jsopCompare(op mir.CompareOp) error {
	snapshot := b.takeSnapshot()

	cur := b.block()
	right := cur.Pop()
	left := cur.Pop()

	ins := mir.NewCompare(op, left, right)
	ins.Snapshot = snapshot
	types := b.oracle.BinaryOp(b.script, b.pc)
	ins.Infer(types.LHS, types.RHS)

	cur.Push(cur.Add(ins))
	return nil
}
