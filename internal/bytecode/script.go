// Package bytecode models the structured, stack-based bytecode consumed by the
// graph builder: the opcode table, scripts with their source-note side table,
// a programmatic emitter and the binary script container.
//
// Source notes annotate control opcodes with the structure they belong to.
// Note offsets are relative to the annotated pc, except for NoteFor whose
// offsets are relative to the pc following the annotated opcode.
package bytecode

import (
	"fmt"
	"slices"
)

// NoteType identifies the structure a source note describes.
type NoteType uint8

const (
	NoteNull NoteType = iota
	NoteIf
	NoteIfElse
	NoteCond
	NoteWhile
	NoteFor
	NoteForIn
	NoteBreak
	NoteBreak2Label
	NoteContinue
	NoteCont2Label
	noteLimit
)

var noteNames = [noteLimit]string{
	NoteNull:        "null",
	NoteIf:          "if",
	NoteIfElse:      "ifelse",
	NoteCond:        "cond",
	NoteWhile:       "while",
	NoteFor:         "for",
	NoteForIn:       "forin",
	NoteBreak:       "break",
	NoteBreak2Label: "break2label",
	NoteContinue:    "continue",
	NoteCont2Label:  "cont2label",
}

func (t NoteType) String() string {
	if t >= noteLimit {
		return fmt.Sprintf("note(%d)", uint8(t))
	}
	return noteNames[t]
}

// LookupNote finds a note type by name.
func LookupNote(name string) (NoteType, bool) {
	for t, n := range noteNames {
		if n == name {
			return NoteType(t), true
		}
	}
	return NoteNull, false
}

// NoteNames returns the names of all note types except the null note.
func NoteNames() []string {
	return slices.Clone(noteNames[1:])
}

// SrcNote is a structural annotation attached to one pc.
type SrcNote struct {
	Type    NoteType
	Offsets []int
}

// Offset returns the i-th offset and whether it is present.
func (n SrcNote) Offset(i int) (int, bool) {
	if i < 0 || i >= len(n.Offsets) {
		return 0, false
	}
	return n.Offsets[i], true
}

// Script is an immutable unit of bytecode.
type Script struct {
	Name     string
	Code     []byte
	Notes    map[int]SrcNote
	Consts   []Value
	Atoms    []string
	NArgs    int
	NLocals  int
	Function bool
}

// Length returns the size of the code in bytes.
func (s *Script) Length() int { return len(s.Code) }

// Op returns the opcode at pc.
func (s *Script) Op(pc int) Op { return Op(s.Code[pc]) }

// Note returns the source note attached to pc, if any.
func (s *Script) Note(pc int) (SrcNote, bool) {
	n, ok := s.Notes[pc]
	return n, ok
}

// NextPC returns the pc of the opcode following the one at pc.
func (s *Script) NextPC(pc int) int {
	return pc + s.Op(pc).Spec().Length
}

// JumpTarget returns the absolute target of the jump opcode at pc.
func (s *Script) JumpTarget(pc int) int {
	return pc + JumpOffset(s.Code, pc)
}

// Operand decodes the immediate operand of the opcode at pc as an int.
func (s *Script) Operand(pc int) int {
	switch s.Op(pc).Spec().Format {
	case FormatSlot, FormatConst, FormatAtom, FormatArgc:
		return Uint16Operand(s.Code, pc)
	case FormatInt8:
		return int(Int8Operand(s.Code, pc))
	case FormatInt32:
		return int(Int32Operand(s.Code, pc))
	case FormatJump, FormatJumpX:
		return JumpOffset(s.Code, pc)
	}
	return 0
}

// Check validates that every opcode is known and decodes within bounds, and
// that every jump and source-note offset lands on an opcode boundary or the
// end of the code.
func (s *Script) Check() error {
	starts := make(map[int]bool)
	for pc := 0; pc < len(s.Code); {
		op := s.Op(pc)
		if !op.Valid() {
			return fmt.Errorf("invalid opcode %d at pc %d", uint8(op), pc)
		}
		next := pc + op.Spec().Length
		if next > len(s.Code) {
			return fmt.Errorf("truncated %s at pc %d", op, pc)
		}
		starts[pc] = true
		pc = next
	}
	for pc := 0; pc < len(s.Code); pc = s.NextPC(pc) {
		op := s.Op(pc)
		if op.IsJump() {
			if target := s.JumpTarget(pc); target != len(s.Code) && !starts[target] {
				return fmt.Errorf("%s at pc %d jumps to %d, which is not an opcode boundary", op, pc, target)
			}
		}
		switch op.Spec().Format {
		case FormatConst:
			if Uint16Operand(s.Code, pc) >= len(s.Consts) {
				return fmt.Errorf("%s at pc %d references missing constant", op, pc)
			}
		case FormatAtom:
			if Uint16Operand(s.Code, pc) >= len(s.Atoms) {
				return fmt.Errorf("%s at pc %d references missing atom", op, pc)
			}
		}
	}
	for pc, note := range s.Notes {
		if !starts[pc] {
			return fmt.Errorf("source note at pc %d is not on an opcode boundary", pc)
		}
		base := pc
		if note.Type == NoteFor {
			base = s.NextPC(pc)
		}
		for i, off := range note.Offsets {
			if target := base + off; target != len(s.Code) && !starts[target] {
				return fmt.Errorf("%s note at pc %d: offset %d lands at %d, which is not an opcode boundary",
					note.Type, pc, i, target)
			}
		}
	}
	return nil
}
