package asm

import (
	"sort"

	errs "ionbuild/internal/errors"
)

type lineEntry struct {
	pc     int
	pos    errs.Position
	length int
}

// LineTable maps bytecode offsets back to the assembly lines that produced
// them. Entries are appended in pc order.
type LineTable struct {
	entries []lineEntry
}

func (t *LineTable) add(pc int, pos errs.Position, length int) {
	t.entries = append(t.entries, lineEntry{pc: pc, pos: pos, length: length})
}

func (t *LineTable) find(pc int) (lineEntry, bool) {
	if t == nil || pc < 0 || len(t.entries) == 0 {
		return lineEntry{}, false
	}
	// Last entry starting at or before pc; a pc past the end maps to the
	// final instruction.
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].pc > pc })
	if i == 0 {
		return lineEntry{}, false
	}
	return t.entries[i-1], true
}

// PositionOf returns the position of the instruction containing pc.
func (t *LineTable) PositionOf(pc int) (errs.Position, bool) {
	e, ok := t.find(pc)
	return e.pos, ok
}

// Span returns the source length of the instruction containing pc.
func (t *LineTable) Span(pc int) int {
	e, _ := t.find(pc)
	return e.length
}

// Len is the number of instructions in the table.
func (t *LineTable) Len() int { return len(t.entries) }
