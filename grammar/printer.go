package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

const instructionIndent = "        "

// String formats the program canonically: directives and labels start in
// the first column, instructions are indented, comments are dropped.
func (p *Program) String() string {
	var b strings.Builder
	for _, l := range p.Lines {
		b.WriteString(l.String())
		b.WriteString("\n")
	}
	return b.String()
}

func (l *Line) String() string {
	switch {
	case l.Directive != nil:
		return l.Directive.String()
	case l.Label != nil && l.Instruction != nil:
		return l.Label.String() + "\n" + instructionIndent + l.Instruction.String()
	case l.Label != nil:
		return l.Label.String()
	case l.Instruction != nil:
		return instructionIndent + l.Instruction.String()
	}
	return ""
}

func (d *Directive) String() string {
	if d.Value == nil {
		return d.Name
	}
	return d.Name + " " + d.Value.String()
}

func (l *LabelDef) String() string {
	return l.Name + ":"
}

func (i *Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Mnemonic.Value)
	if i.Operand != nil {
		b.WriteString(" " + i.Operand.String())
	}
	if i.Note != nil {
		b.WriteString(" " + i.Note.String())
	}
	return b.String()
}

func (o *Operand) String() string {
	switch {
	case o.Float != nil:
		s := strconv.FormatFloat(*o.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case o.Int != nil:
		return strconv.FormatInt(*o.Int, 10)
	case o.Str != nil:
		return strconv.Quote(*o.Str)
	case o.Label != nil:
		return *o.Label
	}
	return ""
}

func (n *Note) String() string {
	if len(n.Targets) == 0 {
		return n.Type
	}
	names := make([]string, len(n.Targets))
	for i, t := range n.Targets {
		names[i] = t.Value
	}
	return fmt.Sprintf("%s(%s)", n.Type, strings.Join(names, ", "))
}
