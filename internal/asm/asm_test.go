package asm_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ionbuild/internal/asm"
	"ionbuild/internal/builder"
	"ionbuild/internal/bytecode"
	errs "ionbuild/internal/errors"
	"ionbuild/internal/mir"
)

func assembleExample(t *testing.T, name string) (*bytecode.Script, *asm.LineTable) {
	t.Helper()
	path := filepath.Join("../../examples", name)
	source, err := os.ReadFile(path)
	require.NoError(t, err)
	script, table, err := asm.AssembleString(path, string(source))
	require.NoError(t, err)
	return script, table
}

func TestAssembleSum(t *testing.T) {
	script, _ := assembleExample(t, "sum.ionasm")

	assert.Equal(t, "sum", script.Name)
	assert.True(t, script.Function)
	assert.Equal(t, 1, script.NArgs)
	assert.Equal(t, 2, script.NLocals)
	require.NoError(t, script.Check())

	// zero setlocal pop zero setlocal: the loop note sits on the second pop
	loopPC := 1 + 3 + 1 + 1 + 3
	assert.Equal(t, bytecode.OpPop, script.Op(loopPC))
	note, ok := script.Note(loopPC)
	require.True(t, ok)
	assert.Equal(t, bytecode.NoteFor, note.Type)
	assert.Len(t, note.Offsets, 3)

	g, err := builder.Build(script, nil)
	require.NoError(t, err)
	require.NoError(t, mir.Verify(g))

	headers := 0
	for _, b := range g.Blocks() {
		if b.IsLoopHeader() {
			headers++
			assert.Len(t, b.Phis(), 2)
		}
	}
	assert.Equal(t, 1, headers)
}

func TestAssembleCountdownBuilds(t *testing.T) {
	script, _ := assembleExample(t, "countdown.ionasm")
	g, err := builder.Build(script, nil)
	require.NoError(t, err)
	require.NoError(t, mir.Verify(g))
}

func TestAssembleMatchesEmitter(t *testing.T) {
	src := `
.function loop
.args 1
        goto cond @while(test)
top:    trace
cond:   getarg 0
test:   ifne top
        stop`

	got, _, err := asm.AssembleString("loop.ionasm", src)
	require.NoError(t, err)

	e := bytecode.NewEmitter()
	e.While(func() { e.EmitUint16(bytecode.OpGetArg, 0) }, nil)
	e.Emit(bytecode.OpStop)
	want, err := e.Finish("loop", 1, 0, true)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestOperandEncodings(t *testing.T) {
	src := `.script consts
        int8 -5
        int32 0x10000
        double 2.5
        double 3
        string "a b"
        getprop length
        stop
`
	s, _, err := asm.AssembleString("consts.ionasm", src)
	require.NoError(t, err)

	assert.False(t, s.Function)
	assert.Equal(t, int32(-5), bytecode.Int8Operand(s.Code, 0))
	assert.Equal(t, int32(0x10000), bytecode.Int32Operand(s.Code, 2))
	assert.Equal(t, []bytecode.Value{bytecode.Double(2.5), bytecode.Double(3)}, s.Consts)
	assert.Equal(t, []string{"a b", "length"}, s.Atoms)
}

func TestDefaultNameFromFile(t *testing.T) {
	s, _, err := asm.AssembleString("dir/snippet.ionasm", "stop")
	require.NoError(t, err)
	assert.Equal(t, "snippet", s.Name)
	assert.False(t, s.Function)
}

func TestLineTable(t *testing.T) {
	_, table := assembleExample(t, "countdown.ionasm")

	pos, ok := table.PositionOf(0)
	require.True(t, ok)
	assert.Equal(t, 6, pos.Line)
	assert.Equal(t, 9, pos.Column)
	assert.Equal(t, len("getarg 0"), table.Span(0))

	// pc 1 is inside getarg
	pos, ok = table.PositionOf(1)
	require.True(t, ok)
	assert.Equal(t, 6, pos.Line)

	pos, ok = table.PositionOf(3)
	require.True(t, ok)
	assert.Equal(t, 7, pos.Line)

	// the label on its own line binds to the next instruction
	pos, ok = table.PositionOf(16)
	require.True(t, ok)
	assert.Equal(t, 15, pos.Line)

	_, ok = table.PositionOf(-1)
	assert.False(t, ok)
}

func TestAssemblyErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{"syntax error", "getarg 0 0\n", errs.ErrorSyntax, 1},
		{"unknown mnemonic", "stop\nfrobnicate\n", errs.ErrorUnknownMnemonic, 2},
		{"operand kind", "getarg \"x\"\n", errs.ErrorBadOperand, 1},
		{"missing operand", "getlocal\n", errs.ErrorBadOperand, 1},
		{"extra operand", "add 1\n", errs.ErrorBadOperand, 1},
		{"int8 range", "int8 300\n", errs.ErrorBadOperand, 1},
		{"jump to number", "goto 4\n", errs.ErrorBadOperand, 1},
		{"unknown label", "stop\ngoto nowhere\n", errs.ErrorUnknownLabel, 2},
		{"duplicate label", "a: stop\na: stop\n", errs.ErrorDuplicateLabel, 2},
		{"unknown directive", ".frames 3\n", errs.ErrorUnknownDirective, 1},
		{"bad count", ".args -1\n", errs.ErrorBadOperand, 1},
		{"unknown note", "nop @switch\n", errs.ErrorUnknownNote, 1},
		{"unknown note target", "nop @while(gone)\n", errs.ErrorUnknownLabel, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := asm.AssembleString("bad.ionasm", tt.src)
			require.Error(t, err)

			var list asm.Errors
			require.True(t, errors.As(err, &list))
			require.NotEmpty(t, list)
			assert.Equal(t, tt.code, list[0].Code)
			assert.Equal(t, tt.line, list[0].Position.Line)
			assert.Equal(t, errs.KindAssembly, list[0].Kind)

			be, ok := errs.AsBuildError(err)
			require.True(t, ok)
			assert.Equal(t, list[0], be)
		})
	}
}

func TestAssemblyErrorsAreCollected(t *testing.T) {
	_, _, err := asm.AssembleString("bad.ionasm", "foo\nbar 1\nstop\n")

	var list asm.Errors
	require.True(t, errors.As(err, &list))
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Position.Line)
	assert.Equal(t, 2, list[1].Position.Line)
	assert.Contains(t, err.Error(), "unknown opcode \"bar\"")
}

func TestBuildErrorsMapToSource(t *testing.T) {
	source, err := os.ReadFile("../../examples/greet.ionasm")
	require.NoError(t, err)
	script, table, err := asm.AssembleString("greet.ionasm", string(source))
	require.NoError(t, err)

	_, err = builder.Build(script, nil)
	require.ErrorIs(t, err, errs.ErrUnsupportedOpcode)

	be, _ := errs.AsBuildError(err)
	pos, ok := errs.NewErrorReporter("greet.ionasm", string(source), table).Locate(be)
	require.True(t, ok)
	assert.Equal(t, 4, pos.Line)
}

func TestAssembleLineShapes(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		length  int
		nargs   int
		entries int
	}{
		{"empty source", "", 0, 0, 0},
		{"comment only", "; only a comment", 0, 0, 0},
		{"blank lines", "\n\n\n", 0, 0, 0},
		{"directive then blank line", ".args 1\n\nstop\n", 1, 1, 1},
		{"label on its own line", "start:\n        getarg 0\n        return\n", 4, 0, 2},
		{"trailing label", "stop\nend:\n", 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var script *bytecode.Script
			var table *asm.LineTable
			var err error
			require.NotPanics(t, func() {
				script, table, err = asm.AssembleString("shapes.ionasm", tt.src)
			})
			require.NoError(t, err)
			assert.Equal(t, tt.length, script.Length())
			assert.Equal(t, tt.nargs, script.NArgs)
			assert.Equal(t, tt.entries, table.Len())
		})
	}
}

func TestSyntaxErrorAfterBlankLines(t *testing.T) {
	var err error
	require.NotPanics(t, func() {
		_, _, err = asm.AssembleString("bad.ionasm", "\n; c\n\ngetarg 0 0\n")
	})

	var list asm.Errors
	require.True(t, errors.As(err, &list))
	require.Len(t, list, 1)
	assert.Equal(t, errs.ErrorSyntax, list[0].Code)
	assert.Equal(t, 4, list[0].Position.Line)
}
