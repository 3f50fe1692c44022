package bytecode

// Statement-level emission. Each helper lays out the canonical annotated
// shape for its construct; callbacks emit the nested expressions and bodies.

// If emits `if (cond) then`.
func (e *Emitter) If(cond, then func()) {
	join := e.NewLabel()
	cond()
	pc := e.EmitJump(OpIfEq, join)
	e.Annotate(pc, NoteIf)
	run(then)
	e.Bind(join)
}

// IfElse emits `if (cond) then else els`.
func (e *Emitter) IfElse(cond, then, els func()) {
	e.ifElse(NoteIfElse, cond, then, els)
}

// Cond emits the ternary `cond ? then : els`; both arms leave one value.
func (e *Emitter) Cond(cond, then, els func()) {
	e.ifElse(NoteCond, cond, then, els)
}

func (e *Emitter) ifElse(typ NoteType, cond, then, els func()) {
	elseL, trueEnd, join := e.NewLabel(), e.NewLabel(), e.NewLabel()
	cond()
	pc := e.EmitJump(OpIfEq, elseL)
	e.Annotate(pc, typ, trueEnd)
	run(then)
	e.Bind(trueEnd)
	e.EmitJump(OpGoto, join)
	e.Bind(elseL)
	run(els)
	e.Bind(join)
}

// While emits `while (cond) body`.
func (e *Emitter) While(cond, body func()) {
	top, condL, ifne, exit := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
	pc := e.EmitJump(OpGoto, condL)
	e.Annotate(pc, NoteWhile, ifne)
	e.Bind(top)
	e.Emit(OpTrace)
	e.loop(exit, condL, body)
	e.Bind(condL)
	cond()
	e.Bind(ifne)
	e.EmitJump(OpIfNe, top)
	e.Bind(exit)
}

// DoWhile emits `do body while (cond)`.
func (e *Emitter) DoWhile(body, cond func()) {
	top, condL, ifne, exit := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
	pc := e.Emit(OpNop)
	e.Annotate(pc, NoteWhile, ifne, condL)
	e.Bind(top)
	e.Emit(OpTrace)
	e.loop(exit, condL, body)
	e.Bind(condL)
	cond()
	e.Bind(ifne)
	e.EmitJump(OpIfNe, top)
	e.Bind(exit)
}

// For emits `for (init; cond; update) body`. init reports whether it left a
// value on the stack; update must leave the stack balanced. Any of init,
// cond and update may be nil.
func (e *Emitter) For(init func() bool, cond, update, body func()) {
	top, condL, updateL, ifne, exit := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
	op := OpNop
	if init != nil && init() {
		op = OpPop
	}
	pc := e.Emit(op)
	e.Annotate(pc, NoteFor, condL, updateL, ifne)
	if cond != nil {
		e.EmitJump(OpGoto, condL)
	}
	e.Bind(top)
	e.Emit(OpTrace)
	e.loop(exit, updateL, body)
	e.Bind(updateL)
	run(update)
	e.Bind(condL)
	if cond != nil {
		cond()
		e.Bind(ifne)
		e.EmitJump(OpIfNe, top)
	} else {
		e.Bind(ifne)
		e.EmitJump(OpGoto, top)
	}
	e.Bind(exit)
}

// Break exits the innermost loop.
func (e *Emitter) Break() { e.BreakOuter(0) }

// Continue jumps to the innermost loop's continue point.
func (e *Emitter) Continue() { e.ContinueOuter(0) }

// BreakOuter exits the loop depth levels out from the innermost one.
func (e *Emitter) BreakOuter(depth int) {
	l, ok := e.enclosing(depth)
	if !ok {
		return
	}
	typ := NoteBreak
	if depth > 0 {
		typ = NoteBreak2Label
	}
	pc := e.EmitJump(OpGoto, l.exit)
	e.Annotate(pc, typ)
}

// ContinueOuter continues the loop depth levels out from the innermost one.
func (e *Emitter) ContinueOuter(depth int) {
	l, ok := e.enclosing(depth)
	if !ok {
		return
	}
	typ := NoteContinue
	if depth > 0 {
		typ = NoteCont2Label
	}
	pc := e.EmitJump(OpGoto, l.cont)
	e.Annotate(pc, typ)
}

// Return emits `return value`.
func (e *Emitter) Return(value func()) {
	value()
	e.Emit(OpReturn)
}

func (e *Emitter) enclosing(depth int) (loopLabels, bool) {
	i := len(e.loops) - 1 - depth
	if depth < 0 || i < 0 {
		e.fail("break or continue outside of a loop at pc %d", len(e.code))
		return loopLabels{}, false
	}
	return e.loops[i], true
}

func (e *Emitter) loop(exit, cont Label, body func()) {
	e.loops = append(e.loops, loopLabels{exit: exit, cont: cont})
	run(body)
	e.loops = e.loops[:len(e.loops)-1]
}

func run(f func()) {
	if f != nil {
		f()
	}
}
