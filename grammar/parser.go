package grammar

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/fatih/color"
)

var parser = participle.MustBuild[Program](
	participle.Lexer(IonLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(3),
)

// ParseString parses assembly source. filename is only used in positions.
func ParseString(filename, source string) (*Program, error) {
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return parser.ParseString(filename, source)
}

// ParseFile parses the file at path, printing a caret-style message on a
// syntax error.
func ParseFile(path string) (*Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	program, err := ParseString(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		return nil, err
	}
	return program, nil
}

// ErrorPosition extracts the position and bare message of a syntax error.
func ErrorPosition(err error) (lexer.Position, string, bool) {
	var pe participle.Error
	if !errors.As(err, &pe) {
		return lexer.Position{}, "", false
	}
	return pe.Position(), pe.Message(), true
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pos, msg, ok := ErrorPosition(err)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", max(pos.Column-1, 0)) + "^"

	color.Red("Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", msg)
}
