package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeTable(t *testing.T) {
	for op := Op(0); op < opLimit; op++ {
		s := op.Spec()
		require.NotEmpty(t, s.Name, "opcode %d has no name", op)
		found, ok := Lookup(s.Name)
		require.True(t, ok)
		assert.Equal(t, op, found)
		assert.Equal(t, formatLengths[s.Format], s.Length)
	}

	assert.Equal(t, 3, OpGoto.Spec().Length)
	assert.Equal(t, 5, OpIfNeX.Spec().Length)
	assert.True(t, OpIfEqX.IsIfEq())
	assert.True(t, OpGotoX.IsGoto())
	assert.False(t, OpAdd.IsJump())
	assert.False(t, Op(200).Valid())
	assert.Equal(t, "op(200)", Op(200).String())
}

func TestEmitterPatchesJumps(t *testing.T) {
	e := NewEmitter()
	target := e.NewLabel()
	jump := e.EmitJump(OpGoto, target)
	e.Emit(OpNop)
	e.Bind(target)
	back := e.EmitJump(OpIfNeX, target)
	e.Emit(OpStop)

	s, err := e.Finish("jumps", 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 4, s.JumpTarget(jump))
	assert.Equal(t, 4, s.JumpTarget(back))
	assert.Equal(t, 4, back)
	require.NoError(t, s.Check())
}

func TestEmitterUnboundLabel(t *testing.T) {
	e := NewEmitter()
	e.EmitJump(OpGoto, e.NewLabel())
	_, err := e.Finish("bad", 0, 0, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound label")
}

func TestEmitterIntEncoding(t *testing.T) {
	e := NewEmitter()
	e.EmitInt(0)
	e.EmitInt(1)
	e.EmitInt(-5)
	e.EmitInt(1000)
	s, err := e.Finish("ints", 0, 0, false)
	require.NoError(t, err)

	assert.Equal(t, OpZero, s.Op(0))
	assert.Equal(t, OpOne, s.Op(1))
	assert.Equal(t, OpInt8, s.Op(2))
	assert.Equal(t, -5, s.Operand(2))
	assert.Equal(t, OpInt32, s.Op(4))
	assert.Equal(t, 1000, s.Operand(4))
}

func TestWhileLayout(t *testing.T) {
	e := NewEmitter()
	e.While(func() { e.EmitUint16(OpGetArg, 0) }, func() { e.Emit(OpNop) })
	e.Emit(OpStop)
	s, err := e.Finish("while", 1, 0, true)
	require.NoError(t, err)

	// goto cond; trace; nop; getarg 0; ifne top; stop
	note, ok := s.Note(0)
	require.True(t, ok)
	assert.Equal(t, NoteWhile, note.Type)
	ifne := 0 + note.Offsets[0]
	assert.Equal(t, OpIfNe, s.Op(ifne))
	assert.Equal(t, 3, s.JumpTarget(ifne))
	assert.Equal(t, OpTrace, s.Op(3))
	assert.Equal(t, 5, s.JumpTarget(0))
}

func TestForLayoutOffsetsFollowAnnotatedOp(t *testing.T) {
	e := NewEmitter()
	e.For(func() bool { e.Emit(OpZero); return true },
		func() { e.Emit(OpTrue) },
		func() { e.Emit(OpNop) },
		nil)
	e.Emit(OpStop)
	s, err := e.Finish("for", 0, 0, false)
	require.NoError(t, err)

	// zero; pop; goto cond; trace; nop (update); true (cond); ifne
	assert.Equal(t, OpPop, s.Op(1))
	note, ok := s.Note(1)
	require.True(t, ok)
	require.Len(t, note.Offsets, 3)
	base := 2
	assert.Equal(t, OpTrue, s.Op(base+note.Offsets[0]))
	assert.Equal(t, OpNop, s.Op(base+note.Offsets[1]))
	assert.Equal(t, OpIfNe, s.Op(base+note.Offsets[2]))
}

func TestBreakOutsideLoop(t *testing.T) {
	e := NewEmitter()
	e.Break()
	_, err := e.Finish("bad", 0, 0, false)
	require.Error(t, err)
}

func TestContainerRoundTrip(t *testing.T) {
	e := NewEmitter()
	e.IfElse(
		func() { e.EmitUint16(OpGetArg, 0) },
		func() { e.EmitDouble(2.5) },
		func() { e.EmitAtom(OpString, "two") },
	)
	e.Emit(OpReturn)
	s, err := e.Finish("roundtrip", 1, 2, true)
	require.NoError(t, err)
	s.Consts = append(s.Consts, Int32(-7), Boolean(true), Null(), String("s"))

	var buf bytes.Buffer
	require.NoError(t, WriteScript(&buf, s))

	decoded, err := ReadScript(&buf)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestContainerRejectsGarbage(t *testing.T) {
	_, err := ReadScript(bytes.NewReader([]byte("nope, not a script")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a script container")

	_, err = ReadScript(bytes.NewReader([]byte{0x49, 0x4f}))
	require.Error(t, err)
}

func TestCheckRejectsMisalignedJump(t *testing.T) {
	s := &Script{Code: []byte{byte(OpGoto), 0, 1, byte(OpStop)}}
	err := s.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an opcode boundary")

	s = &Script{Code: []byte{byte(OpGoto), 0}}
	require.Error(t, s.Check())
}

// ternaryWithNoteOffset lays out `true ? int8 <goto byte> : one` with the
// cond note offset given by the caller. The correct offset is 5.
func ternaryWithNoteOffset(off int) *Script {
	return &Script{
		Name: "ternary",
		Code: []byte{
			byte(OpTrue),               // 0
			byte(OpIfEq), 0, 8,         // 1 -> 9
			byte(OpInt8), byte(OpGoto), // 4, operand byte at 5 reads as goto
			byte(OpGoto), 0, 4,         // 6 -> 10
			byte(OpOne),                // 9
			byte(OpReturn),             // 10
		},
		Notes: map[int]SrcNote{1: {Type: NoteCond, Offsets: []int{off}}},
	}
}

func TestCheckRejectsMisalignedNoteOffset(t *testing.T) {
	require.NoError(t, ternaryWithNoteOffset(5).Check())

	err := ternaryWithNoteOffset(4).Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cond note at pc 1")
	assert.Contains(t, err.Error(), "not an opcode boundary")

	require.Error(t, ternaryWithNoteOffset(40).Check())
	require.Error(t, ternaryWithNoteOffset(-2).Check())
}

func TestNoteLookup(t *testing.T) {
	for _, name := range NoteNames() {
		typ, ok := LookupNote(name)
		require.True(t, ok)
		assert.Equal(t, name, typ.String())
	}
	_, ok := LookupNote("nope")
	assert.False(t, ok)
}
