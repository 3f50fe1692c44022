package lsp

import (
	"github.com/alecthomas/participle/v2/lexer"

	"ionbuild/grammar"
)

// SemanticToken represents a single LSP semantic token entry
// Line and StartChar are 0-based positions
// TokenType is an index into the semanticTokenTypes array
// TokenModifiers is a bitmask based on semanticTokenModifiers
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int // index into semanticTokenTypes
	TokenModifiers int // bitmask
}

func collectSemanticTokens(program *grammar.Program) []SemanticToken {
	var tokens []SemanticToken

	if program == nil {
		return tokens
	}

	for _, line := range program.Lines {
		tokens = append(tokens, walkLine(line)...)
	}

	return tokens
}

func walkLine(l *grammar.Line) []SemanticToken {
	var tokens []SemanticToken

	if d := l.Directive; d != nil {
		tokens = append(tokens, makeToken(d.Pos, len(d.Name), "macro", 0)...)
		// .function and .script declare the script name
		tokens = append(tokens, walkOperand(d.Value, 1)...)
		return tokens
	}

	if l.Label != nil {
		tokens = append(tokens, makeToken(l.Label.Pos, len(l.Label.Name), "function", 1)...)
	}

	if ins := l.Instruction; ins != nil {
		tokens = append(tokens, makeToken(ins.Mnemonic.Pos, len(ins.Mnemonic.Value), "keyword", 0)...)
		tokens = append(tokens, walkOperand(ins.Operand, 0)...)
		if n := ins.Note; n != nil {
			tokens = append(tokens, makeToken(n.Pos, len(n.Type), "modifier", 0)...)
			for _, target := range n.Targets {
				tokens = append(tokens, makeToken(target.Pos, len(target.Value), "function", 0)...)
			}
		}
	}

	return tokens
}

func walkOperand(o *grammar.Operand, declModifier int) []SemanticToken {
	if o == nil {
		return nil
	}

	length := o.EndPos.Offset - o.Pos.Offset
	switch {
	case o.Float != nil, o.Int != nil:
		return makeToken(o.Pos, length, "number", 0)
	case o.Str != nil:
		return makeToken(o.Pos, length, "string", 0)
	case o.Label != nil:
		return makeToken(o.Pos, len(*o.Label), "function", declModifier)
	}
	return nil
}

func makeToken(pos lexer.Position, length int, tokenType string, declModifier int) []SemanticToken {
	if length <= 0 {
		return nil
	}

	return []SemanticToken{{
		Line:           uint32(pos.Line - 1),   // LSP uses 0-based line numbers
		StartChar:      uint32(pos.Column - 1), // LSP uses 0-based column numbers
		Length:         uint32(length),
		TokenType:      indexOf(tokenType, SemanticTokenTypes),
		TokenModifiers: declModifier << indexOf("declaration", SemanticTokenModifiers),
	}}
}

// indexOf returns the index of a string in a slice, or 0 if not found
func indexOf(target string, list []string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return 0 // Default to first token type if not found
}
