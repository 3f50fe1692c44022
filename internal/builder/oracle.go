package builder

import (
	"sync"

	"ionbuild/internal/bytecode"
	"ionbuild/internal/mir"
)

// BinaryTypes is the oracle's guess for the operands and result of one
// binary or compare opcode.
type BinaryTypes struct {
	LHS    mir.Type
	RHS    mir.Type
	Result mir.Type
}

// TypeOracle supplies type guesses for arithmetic and comparisons.
type TypeOracle interface {
	BinaryOp(script *bytecode.Script, pc int) BinaryTypes
}

// DummyOracle guesses Int32 everywhere.
type DummyOracle struct{}

func (DummyOracle) BinaryOp(*bytecode.Script, int) BinaryTypes {
	return BinaryTypes{LHS: mir.TypeInt32, RHS: mir.TypeInt32, Result: mir.TypeInt32}
}

// ProfileOracle answers from types observed while the script ran in the
// interpreter. Opcodes without a profile get no specialization.
type ProfileOracle struct {
	mu       sync.RWMutex
	observed map[profileKey]BinaryTypes
}

type profileKey struct {
	script string
	pc     int
}

func NewProfileOracle() *ProfileOracle {
	return &ProfileOracle{observed: make(map[profileKey]BinaryTypes)}
}

// Record stores the types seen at pc of the named script.
func (p *ProfileOracle) Record(script string, pc int, types BinaryTypes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed[profileKey{script, pc}] = types
}

func (p *ProfileOracle) BinaryOp(script *bytecode.Script, pc int) BinaryTypes {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.observed[profileKey{script.Name, pc}]; ok {
		return t
	}
	return BinaryTypes{LHS: mir.TypeValue, RHS: mir.TypeValue, Result: mir.TypeValue}
}
