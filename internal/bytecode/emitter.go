package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Label is a forward-referenceable code position owned by an Emitter.
type Label int

type jumpFixup struct {
	pc    int
	label Label
}

type noteFixup struct {
	pc      int
	typ     NoteType
	targets []Label
}

type loopLabels struct {
	exit, cont Label
}

// Emitter writes bytecode incrementally, patching jumps and source notes
// once their labels are bound.
type Emitter struct {
	code   []byte
	consts []Value
	atoms  []string
	labels []int
	jumps  []jumpFixup
	notes  []noteFixup
	loops  []loopLabels
	err    error
}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// Offset returns the pc the next opcode will be written at.
func (e *Emitter) Offset() int { return len(e.code) }

// Err returns the first error recorded while emitting.
func (e *Emitter) Err() error { return e.err }

func (e *Emitter) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

// NewLabel allocates an unbound label.
func (e *Emitter) NewLabel() Label {
	e.labels = append(e.labels, -1)
	return Label(len(e.labels) - 1)
}

// Bind fixes l at the current offset.
func (e *Emitter) Bind(l Label) {
	if e.labels[l] >= 0 {
		e.fail("label %d bound twice", l)
		return
	}
	e.labels[l] = len(e.code)
}

// Bound reports whether l has been bound.
func (e *Emitter) Bound(l Label) bool { return e.labels[l] >= 0 }

// Emit writes an operand-less opcode and returns its pc.
func (e *Emitter) Emit(op Op) int {
	if op.Spec().Format != FormatByte {
		e.fail("%s requires an operand", op)
	}
	pc := len(e.code)
	e.code = append(e.code, byte(op))
	return pc
}

// EmitUint16 writes op with an unsigned 16-bit immediate.
func (e *Emitter) EmitUint16(op Op, v int) int {
	switch op.Spec().Format {
	case FormatSlot, FormatConst, FormatAtom, FormatArgc:
	default:
		e.fail("%s does not take a 16-bit operand", op)
	}
	if v < 0 || v > math.MaxUint16 {
		e.fail("%s operand %d out of range", op, v)
	}
	pc := len(e.code)
	e.code = append(e.code, byte(op))
	e.code = binary.BigEndian.AppendUint16(e.code, uint16(v))
	return pc
}

// EmitInt writes an integer constant using the shortest encoding.
func (e *Emitter) EmitInt(v int32) int {
	switch {
	case v == 0:
		return e.Emit(OpZero)
	case v == 1:
		return e.Emit(OpOne)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		pc := len(e.code)
		e.code = append(e.code, byte(OpInt8), byte(int8(v)))
		return pc
	default:
		pc := len(e.code)
		e.code = append(e.code, byte(OpInt32))
		e.code = binary.BigEndian.AppendUint32(e.code, uint32(v))
		return pc
	}
}

// EmitInt8 writes OpInt8 with an explicit immediate.
func (e *Emitter) EmitInt8(v int8) int {
	pc := len(e.code)
	e.code = append(e.code, byte(OpInt8), byte(v))
	return pc
}

// EmitInt32 writes OpInt32 with an explicit immediate.
func (e *Emitter) EmitInt32(v int32) int {
	pc := len(e.code)
	e.code = append(e.code, byte(OpInt32))
	e.code = binary.BigEndian.AppendUint32(e.code, uint32(v))
	return pc
}

// EmitDouble adds d to the constant pool and pushes it.
func (e *Emitter) EmitDouble(d float64) int {
	idx := -1
	for i, c := range e.consts {
		if c == Double(d) {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.consts = append(e.consts, Double(d))
		idx = len(e.consts) - 1
	}
	return e.EmitUint16(OpDouble, idx)
}

// EmitAtom writes op with s interned in the atom table.
func (e *Emitter) EmitAtom(op Op, s string) int {
	idx := -1
	for i, a := range e.atoms {
		if a == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.atoms = append(e.atoms, s)
		idx = len(e.atoms) - 1
	}
	return e.EmitUint16(op, idx)
}

// EmitJump writes a jump to target, patched when the script is finished.
func (e *Emitter) EmitJump(op Op, target Label) int {
	pc := len(e.code)
	switch op.Spec().Format {
	case FormatJump:
		e.code = append(e.code, byte(op), 0, 0)
	case FormatJumpX:
		e.code = append(e.code, byte(op), 0, 0, 0, 0)
	default:
		e.fail("%s is not a jump", op)
		return pc
	}
	e.jumps = append(e.jumps, jumpFixup{pc: pc, label: target})
	return pc
}

// Annotate attaches a source note to pc whose offsets point at targets.
func (e *Emitter) Annotate(pc int, typ NoteType, targets ...Label) {
	e.notes = append(e.notes, noteFixup{pc: pc, typ: typ, targets: targets})
}

// Finish resolves every label and returns the script.
func (e *Emitter) Finish(name string, nargs, nlocals int, function bool) (*Script, error) {
	if e.err != nil {
		return nil, e.err
	}
	for _, j := range e.jumps {
		target := e.labels[j.label]
		if target < 0 {
			return nil, fmt.Errorf("jump at pc %d targets an unbound label", j.pc)
		}
		off := target - j.pc
		switch Op(e.code[j.pc]).Spec().Format {
		case FormatJump:
			if off < math.MinInt16 || off > math.MaxInt16 {
				return nil, fmt.Errorf("jump at pc %d out of 16-bit range, use the extended form", j.pc)
			}
			binary.BigEndian.PutUint16(e.code[j.pc+1:], uint16(int16(off)))
		case FormatJumpX:
			binary.BigEndian.PutUint32(e.code[j.pc+1:], uint32(int32(off)))
		}
	}

	notes := make(map[int]SrcNote, len(e.notes))
	for _, n := range e.notes {
		if _, dup := notes[n.pc]; dup {
			return nil, fmt.Errorf("pc %d carries more than one source note", n.pc)
		}
		base := n.pc
		if n.typ == NoteFor {
			base = n.pc + Op(e.code[n.pc]).Spec().Length
		}
		note := SrcNote{Type: n.typ}
		for _, l := range n.targets {
			target := e.labels[l]
			if target < 0 {
				return nil, fmt.Errorf("%s note at pc %d targets an unbound label", n.typ, n.pc)
			}
			note.Offsets = append(note.Offsets, target-base)
		}
		notes[n.pc] = note
	}

	return &Script{
		Name:     name,
		Code:     e.code,
		Notes:    notes,
		Consts:   e.consts,
		Atoms:    e.atoms,
		NArgs:    nargs,
		NLocals:  nlocals,
		Function: function,
	}, nil
}
