package mir

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Printer renders a graph as text.
type Printer struct {
	indent    int
	output    strings.Builder
	highlight bool
}

// NewPrinter creates a printer. With highlight set, block headers and
// control instructions are colored for terminals.
func NewPrinter(highlight bool) *Printer {
	return &Printer{highlight: highlight}
}

// Print returns the plain-text form of g.
func Print(g *Graph) string {
	p := NewPrinter(false)
	p.printGraph(g)
	return p.output.String()
}

// Sprint renders g with this printer's settings.
func (p *Printer) Sprint(g *Graph) string {
	p.output.Reset()
	p.printGraph(g)
	return p.output.String()
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) paint(attr color.Attribute, s string) string {
	if !p.highlight {
		return s
	}
	return color.New(attr).Sprint(s)
}

func (p *Printer) printGraph(g *Graph) {
	p.writeLine("GRAPH %s (MIR)", g.Name)
	p.writeLine("")
	for _, b := range g.Blocks() {
		p.printBlock(g, b)
	}
}

func (p *Printer) printBlock(g *Graph, b *BasicBlock) {
	header := fmt.Sprintf("%s [pc %d]", b.id, b.pc)
	if b.loopHeader {
		header += " (loop header)"
	}
	p.writeLine("%s:", p.paint(color.Bold, header))

	p.indent++
	if len(b.predecessors) > 0 {
		p.writeLine("; preds: %s", joinBlocks(b.predecessors))
	}
	for _, id := range b.phis {
		p.printInstruction(g, g.Inst(id))
	}
	for _, id := range b.instructions {
		p.printInstruction(g, g.Inst(id))
	}
	if term, ok := b.Terminator(); ok {
		p.printInstruction(g, term)
	} else {
		p.writeLine("%s", p.paint(color.FgRed, "<unterminated>"))
	}
	p.indent--
	p.writeLine("")
}

func (p *Printer) printInstruction(g *Graph, ins Instruction) {
	var sb strings.Builder
	switch {
	case ins.IsTerminator():
	case ins.Type() == TypeNone:
		sb.WriteString(fmt.Sprintf("v%d = ", ins.Number()))
	default:
		sb.WriteString(fmt.Sprintf("v%d:%s = ", ins.Number(), ins.Type()))
	}

	op := ins.Opcode()
	if ins.IsTerminator() {
		op = p.paint(color.FgCyan, op)
	}
	sb.WriteString(op)

	if extra := Describe(ins); extra != "" {
		sb.WriteString(" " + extra)
	}
	for _, operand := range ins.GetOperands() {
		sb.WriteString(" " + valueName(g, operand))
	}

	switch v := ins.(type) {
	case *Goto:
		sb.WriteString(" -> " + v.Target.String())
	case *Test:
		sb.WriteString(fmt.Sprintf(" ? %s : %s", v.IfTrue, v.IfFalse))
	case *Binary:
		if v.Snapshot.Valid() {
			sb.WriteString(" @" + valueName(g, v.Snapshot))
		}
	case *Compare:
		if v.Snapshot.Valid() {
			sb.WriteString(" @" + valueName(g, v.Snapshot))
		}
	}
	p.writeLine("%s", sb.String())
}

func valueName(g *Graph, id ValueID) string {
	ins, ok := g.Lookup(id)
	if !ok {
		return "_"
	}
	return fmt.Sprintf("v%d", ins.Number())
}

func joinBlocks(ids []BlockID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return strings.Join(names, ", ")
}
