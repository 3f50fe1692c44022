package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineTable map[int]Position

func (lt lineTable) PositionOf(pc int) (Position, bool) {
	p, ok := lt[pc]
	return p, ok
}

func init() {
	color.NoColor = true
}

func TestErrorReporterAssemblyError(t *testing.T) {
	source := `.script demo
    push 1
    bogus 2
    return`

	reporter := NewErrorReporter("demo.ionasm", source, nil)
	err := AssemblyError(ErrorUnknownMnemonic, Position{Line: 3, Column: 5}, 0, "unknown mnemonic %q", "bogus")
	formatted := reporter.FormatError(err)

	assert.Contains(t, formatted, "error["+ErrorUnknownMnemonic+"]")
	assert.Contains(t, formatted, `unknown mnemonic "bogus"`)
	assert.Contains(t, formatted, "demo.ionasm:3:5")
	assert.Contains(t, formatted, "    push 1")
	assert.Contains(t, formatted, "    ^^^^^")
	assert.NotContains(t, formatted, "(pc")
}

func TestErrorReporterMapsPC(t *testing.T) {
	source := "getarg 0\nifeq done\nreturn"
	reporter := NewErrorReporter("branch.ionasm", source, lineTable{3: {Line: 2, Column: 1}})

	err := UnsupportedOpcode(ErrorUnannotatedBranch, 3, "ifeq", "conditional branch has no annotation")
	formatted := reporter.FormatError(err)

	assert.Contains(t, formatted, "warning["+ErrorUnannotatedBranch+"]")
	assert.Contains(t, formatted, "branch.ionasm:2:1 (pc 3, ifeq)")
	assert.Contains(t, formatted, "^^^^")
	assert.Contains(t, formatted, "help: the script keeps running in the interpreter")
}

func TestErrorReporterWithoutPosition(t *testing.T) {
	reporter := NewErrorReporter("raw.ionbc", "", nil)
	err := MalformedStructure(ErrorUnmatchedJump, 12, "goto", "break outside of a loop").
		WithNote("enclosing loops: 0")
	formatted := reporter.FormatError(err)

	assert.Contains(t, formatted, "raw.ionbc (pc 12, goto)")
	assert.Contains(t, formatted, "note: enclosing loops: 0")
	assert.NotContains(t, formatted, "^")
}

func TestBuildErrorMatchesKind(t *testing.T) {
	cause := fmt.Errorf("arena: too big")
	err := fmt.Errorf("building f: %w", ResourceExhausted(7, cause))

	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.NotErrorIs(t, err, ErrMalformedStructure)
	assert.ErrorIs(t, err, cause)

	be, ok := AsBuildError(err)
	require.True(t, ok)
	assert.Equal(t, 7, be.PC)
	assert.Equal(t, "resource exhausted [E0100] at pc 7: arena: too big", be.Error())

	_, ok = AsBuildError(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestBuildErrorString(t *testing.T) {
	err := MalformedStructure(ErrorStackUnderflow, 4, "add", "needs 2 operands, stack holds %d", 1)
	assert.Equal(t, "malformed structure [E0203] at pc 4 (add): needs 2 operands, stack holds 1", err.Error())

	asm := AssemblyError(ErrorSyntax, Position{Line: 2, Column: 9}, 1, "unexpected token")
	assert.Equal(t, "assembly error [E0400] at 2:9: unexpected token", asm.Error())
}

func TestGetErrorDescription(t *testing.T) {
	assert.Equal(t, "for-in loops are not compiled", GetErrorDescription(ErrorForInLoop))
	assert.Equal(t, "Unknown error", GetErrorDescription("E9999"))
}
