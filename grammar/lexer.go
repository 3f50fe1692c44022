package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var IonLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments run to the end of the line
		{Name: "Comment", Pattern: `;[^\n]*`, Action: nil},

		// .script, .function, .args, .locals
		{Name: "Directive", Pattern: `\.[a-z]+`, Action: nil},

		// Source notes (@if, @while, @break2label, ...)
		{Name: "Note", Pattern: `@[a-z0-9]+`, Action: nil},

		{Name: "String", Pattern: `"(\\.|[^"\\\n])*"`, Action: nil},

		// Floats must come before integers
		{Name: "Float", Pattern: `[-+]?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?|[-+]?[0-9]+[eE][-+]?[0-9]+`, Action: nil},
		{Name: "Int", Pattern: `[-+]?(0x[0-9a-fA-F]+|[0-9]+)`, Action: nil},

		// Mnemonics, labels and names
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`, Action: nil},

		{Name: "Punctuation", Pattern: `[(),:]`, Action: nil},

		// Newlines end an instruction and are significant
		{Name: "EOL", Pattern: `\n`, Action: nil},
		{Name: "Whitespace", Pattern: `[ \t\r]+`, Action: nil},
	},
})
