package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Program is one assembly source file. Every line ends in EOL; ParseString
// appends a final newline when the source lacks one.
type Program struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Lines  []*Line `parser:"@@*"`
}

// Line is a directive, a label with an optional instruction, or a bare
// instruction. Blank and comment-only lines have none of them.
type Line struct {
	Pos         lexer.Position
	EndPos      lexer.Position
	Directive   *Directive   `parser:"(   @@"`
	Label       *LabelDef    `parser:"  | @@"`
	Instruction *Instruction `parser:"    @@? | @@ )? EOL"`
}

type PosIdent struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Value  string `parser:"@Ident"`
}

type Directive struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string   `parser:"@Directive"`
	Value  *Operand `parser:"@@?"`
}

type LabelDef struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string `parser:"@Ident \":\""`
}

type Instruction struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Mnemonic PosIdent `parser:"@@"`
	Operand  *Operand `parser:"@@?"`
	Note     *Note    `parser:"@@?"`
}

// Operand is an immediate: a number, a quoted atom or a label name.
type Operand struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Float  *float64 `parser:"  @Float"`
	Int    *int64   `parser:"| @Int"`
	Str    *string  `parser:"| @String"`
	Label  *string  `parser:"| @Ident"`
}

// Note attaches a source note to the instruction. Targets name the labels
// the note's offsets point at, in note order.
type Note struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Type    string      `parser:"@Note"`
	Targets []*PosIdent `parser:"( \"(\" ( @@ ( \",\" @@ )* )? \")\" )?"`
}

// Name is the note type without its @ prefix.
func (n *Note) Name() string {
	return n.Type[1:]
}
