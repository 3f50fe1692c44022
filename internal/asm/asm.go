// Package asm lowers textual bytecode assembly onto the bytecode emitter.
//
// A source file is a sequence of lines. Directives set script properties:
//
//	.function name    a function script (the default is a global script)
//	.script name      a global script
//	.args n           number of formal arguments
//	.locals n         number of local variables
//
// Every other line is an optional "label:" followed by an optional
// instruction: a mnemonic, its immediate operand and an optional source note
// such as @ifelse(label) whose targets are labels. Jump operands are labels.
package asm

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/tliron/commonlog"

	"ionbuild/grammar"
	"ionbuild/internal/bytecode"
	errs "ionbuild/internal/errors"
)

var log = commonlog.GetLogger("ionbuild.asm")

// Errors is every problem found in one source file, in source order.
type Errors []*errs.BuildError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

func (e Errors) Unwrap() []error {
	errors := make([]error, len(e))
	for i, err := range e {
		errors[i] = err
	}
	return errors
}

type label struct {
	id      bytecode.Label
	defined bool
	ref     *errs.Position
}

type assembler struct {
	filename string
	emitter  *bytecode.Emitter
	labels   map[string]*label
	order    []string
	table    *LineTable
	errors   Errors

	name     string
	function bool
	nargs    int
	nlocals  int
}

// AssembleString parses and lowers source. On failure the error is an
// Errors value.
func AssembleString(filename, source string) (*bytecode.Script, *LineTable, error) {
	prog, err := grammar.ParseString(filename, source)
	if err != nil {
		if pos, msg, ok := grammar.ErrorPosition(err); ok {
			return nil, nil, Errors{errs.AssemblyError(errs.ErrorSyntax, position(pos), 1, "%s", msg)}
		}
		return nil, nil, err
	}
	return Assemble(filename, prog)
}

// Assemble lowers a parsed program.
func Assemble(filename string, prog *grammar.Program) (*bytecode.Script, *LineTable, error) {
	a := &assembler{
		filename: filename,
		emitter:  bytecode.NewEmitter(),
		labels:   make(map[string]*label),
		table:    &LineTable{},
		name:     strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
	}

	for _, line := range prog.Lines {
		a.line(line)
	}
	for _, name := range a.order {
		if l := a.labels[name]; !l.defined {
			a.errorf(errs.ErrorUnknownLabel, *l.ref, len(name), "label %q is never defined", name)
		}
	}
	if len(a.errors) > 0 {
		return nil, nil, a.errors
	}

	script, err := a.emitter.Finish(a.name, a.nargs, a.nlocals, a.function)
	if err != nil {
		return nil, nil, Errors{errs.AssemblyError(errs.ErrorBadOperand,
			errs.Position{Filename: filename}, 0, "%s", err.Error())}
	}
	log.Debugf("assembled %s: %d bytes, %d instructions", script.Name, script.Length(), a.table.Len())
	return script, a.table, nil
}

func (a *assembler) errorf(code string, pos errs.Position, length int, format string, args ...any) {
	a.errors = append(a.errors, errs.AssemblyError(code, pos, length, format, args...))
}

func (a *assembler) line(l *grammar.Line) {
	switch {
	case l.Directive != nil:
		a.directive(l.Directive)
		return
	case l.Label != nil:
		a.bind(l.Label)
	}
	if l.Instruction != nil {
		a.instruction(l.Instruction)
	}
}

func (a *assembler) directive(d *grammar.Directive) {
	pos := position(d.Pos)
	switch d.Name {
	case ".function", ".script":
		name, ok := operandName(d.Value)
		if !ok {
			a.errorf(errs.ErrorBadOperand, pos, len(d.Name), "%s needs a name", d.Name)
			return
		}
		a.name = name
		a.function = d.Name == ".function"

	case ".args", ".locals":
		if d.Value == nil || d.Value.Int == nil || *d.Value.Int < 0 || *d.Value.Int > math.MaxUint16 {
			a.errorf(errs.ErrorBadOperand, pos, len(d.Name), "%s needs a count between 0 and %d", d.Name, math.MaxUint16)
			return
		}
		if d.Name == ".args" {
			a.nargs = int(*d.Value.Int)
		} else {
			a.nlocals = int(*d.Value.Int)
		}

	default:
		a.errorf(errs.ErrorUnknownDirective, pos, len(d.Name), "unknown directive %s", d.Name)
	}
}

func operandName(o *grammar.Operand) (string, bool) {
	switch {
	case o == nil:
		return "", false
	case o.Label != nil:
		return *o.Label, true
	case o.Str != nil:
		return *o.Str, true
	}
	return "", false
}

func (a *assembler) label(name string, pos errs.Position) *label {
	l, ok := a.labels[name]
	if !ok {
		l = &label{id: a.emitter.NewLabel()}
		a.labels[name] = l
		a.order = append(a.order, name)
	}
	if l.ref == nil {
		l.ref = &pos
	}
	return l
}

func (a *assembler) bind(def *grammar.LabelDef) {
	pos := position(def.Pos)
	l := a.label(def.Name, pos)
	if l.defined {
		a.errorf(errs.ErrorDuplicateLabel, pos, len(def.Name), "label %q is already defined", def.Name)
		return
	}
	l.defined = true
	a.emitter.Bind(l.id)
}

func (a *assembler) instruction(ins *grammar.Instruction) {
	mnemonic := ins.Mnemonic.Value
	pos := position(ins.Pos)

	op, ok := bytecode.Lookup(mnemonic)
	if !ok {
		a.errorf(errs.ErrorUnknownMnemonic, pos, len(mnemonic), "unknown opcode %q", mnemonic)
		return
	}

	pc := a.emitter.Offset()
	a.table.add(pc, pos, span(ins.Pos, ins.EndPos, len(mnemonic)))
	if err := a.emit(op, ins.Operand); err != nil {
		at, length := pos, len(mnemonic)
		if ins.Operand != nil {
			at, length = position(ins.Operand.Pos), span(ins.Operand.Pos, ins.Operand.EndPos, 1)
		}
		a.errorf(errs.ErrorBadOperand, at, length, "%s: %s", op, err)
		return
	}

	if ins.Note != nil {
		a.note(pc, ins.Note)
	}
}

func (a *assembler) emit(op bytecode.Op, o *grammar.Operand) error {
	format := op.Spec().Format
	if format == bytecode.FormatByte {
		if o != nil {
			return fmt.Errorf("takes no operand")
		}
		a.emitter.Emit(op)
		return nil
	}
	if o == nil {
		return fmt.Errorf("missing operand")
	}

	switch format {
	case bytecode.FormatJump, bytecode.FormatJumpX:
		if o.Label == nil {
			return fmt.Errorf("jump target must be a label")
		}
		a.emitter.EmitJump(op, a.label(*o.Label, position(o.Pos)).id)

	case bytecode.FormatSlot, bytecode.FormatArgc:
		n, err := intOperand(o, 0, math.MaxUint16)
		if err != nil {
			return err
		}
		a.emitter.EmitUint16(op, int(n))

	case bytecode.FormatInt8:
		n, err := intOperand(o, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		a.emitter.EmitInt8(int8(n))

	case bytecode.FormatInt32:
		n, err := intOperand(o, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		a.emitter.EmitInt32(int32(n))

	case bytecode.FormatConst:
		switch {
		case o.Float != nil:
			a.emitter.EmitDouble(*o.Float)
		case o.Int != nil:
			a.emitter.EmitDouble(float64(*o.Int))
		default:
			return fmt.Errorf("expected a number")
		}

	case bytecode.FormatAtom:
		name, ok := operandName(o)
		if !ok {
			return fmt.Errorf("expected a name or string")
		}
		a.emitter.EmitAtom(op, name)
	}
	return nil
}

func intOperand(o *grammar.Operand, lo, hi int64) (int64, error) {
	if o.Int == nil {
		return 0, fmt.Errorf("expected an integer")
	}
	if n := *o.Int; n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return *o.Int, nil
}

func (a *assembler) note(pc int, n *grammar.Note) {
	typ, ok := bytecode.LookupNote(n.Name())
	if !ok || typ == bytecode.NoteNull {
		a.errorf(errs.ErrorUnknownNote, position(n.Pos), len(n.Type), "unknown source note %s", n.Type)
		return
	}
	targets := make([]bytecode.Label, len(n.Targets))
	for i, t := range n.Targets {
		targets[i] = a.label(t.Value, position(t.Pos)).id
	}
	a.emitter.Annotate(pc, typ, targets...)
}

func position(p lexer.Position) errs.Position {
	return errs.Position{Filename: p.Filename, Line: p.Line, Column: p.Column}
}

func span(start, end lexer.Position, fallback int) int {
	if end.Line == start.Line && end.Offset > start.Offset {
		return end.Offset - start.Offset
	}
	return fallback
}
