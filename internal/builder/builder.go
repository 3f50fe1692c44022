// Package builder turns a structured, source-note annotated bytecode script
// into an SSA control-flow graph in a single forward pass.
//
// The bytecode is traversed in the order the statements appeared in the
// source. Each control structure met on the way is pushed on a stack of CFG
// states together with the pc at which it ends; reaching that pc (or
// terminating the current path with return, break or continue) runs the
// state's completion routine, which wires the edges and joins.
package builder

import (
	"fmt"

	"github.com/tliron/commonlog"

	"ionbuild/internal/bytecode"
	errs "ionbuild/internal/errors"
	"ionbuild/internal/mir"
)

var log = commonlog.GetLogger("ionbuild.builder")

// Fixed slot indices.
const (
	calleeSlot = 0
	thisSlot   = 1
	firstArg   = 2
)

type controlStatus int

const (
	controlNone   controlStatus = iota // not a control opcode
	controlJumped                      // cursor moved, structure still open
	controlJoined                      // structure finished at a join
	controlEnded                       // path terminated, nothing joined
)

func (s controlStatus) String() string {
	switch s {
	case controlJumped:
		return "jumped"
	case controlJoined:
		return "joined"
	case controlEnded:
		return "ended"
	default:
		return "none"
	}
}

type loopInfo struct {
	cfgEntry   int
	continuepc int
}

// Builder holds the state of one build. A Builder is used once.
type Builder struct {
	script *bytecode.Script
	oracle TypeOracle
	opts   options
	log    commonlog.Logger

	graph   *mir.Graph
	pc      int
	current mir.BlockID

	cfgStack []cfgState
	loops    []loopInfo
}

// Build constructs the graph for script. On failure no graph is returned.
func Build(script *bytecode.Script, oracle TypeOracle, opts ...Option) (*mir.Graph, error) {
	return New(script, oracle, opts...).Build()
}

// New prepares a builder for script. A nil oracle guesses Int32 everywhere.
func New(script *bytecode.Script, oracle TypeOracle, opts ...Option) *Builder {
	if oracle == nil {
		oracle = DummyOracle{}
	}
	o := newOptions(opts)
	return &Builder{
		script: script,
		oracle: oracle,
		opts:   o,
		log:    o.log,
	}
}

// Build runs the traversal.
func (b *Builder) Build() (*mir.Graph, error) {
	if b.graph != nil {
		return nil, fmt.Errorf("builder for %s already used", b.script.Name)
	}
	if err := b.script.Check(); err != nil {
		e := errs.MalformedStructure(errs.ErrorInvalidScript, -1, "", "%s", err.Error())
		e.Err = err
		return nil, e
	}

	nfixed := firstArg + b.script.NArgs + b.script.NLocals
	b.graph = mir.NewGraph(b.script.Name, nfixed, b.opts.limits)
	b.log.Debugf("building %s: %d bytes, %d args, %d locals",
		b.script.Name, b.script.Length(), b.script.NArgs, b.script.NLocals)

	if err := b.analyze(); err != nil {
		if be, ok := errs.AsBuildError(err); ok && be.Kind == errs.KindUnsupportedOpcode {
			b.log.Infof("not compiling %s: %s", b.script.Name, err)
		} else {
			b.log.Warningf("build of %s aborted: %s", b.script.Name, err)
		}
		return nil, err
	}

	b.log.Debugf("built %s: %d blocks, %d instructions",
		b.script.Name, len(b.graph.Blocks()), b.graph.NumInstructions())
	return b.graph, nil
}

func (b *Builder) analyze() error {
	b.pc = 0
	b.current = b.graph.NewEntryBlock(0)
	entry := b.block()

	if b.script.Function {
		entry.SetSlot(calleeSlot, entry.Add(mir.NewParameter(mir.CalleeParam)))
		entry.SetSlot(thisSlot, entry.Add(mir.NewParameter(mir.ThisParam)))
		for i := 0; i < b.script.NArgs; i++ {
			entry.SetSlot(b.argSlot(i), entry.Add(mir.NewParameter(i)))
		}
	} else {
		for i := 0; i < firstArg+b.script.NArgs; i++ {
			entry.SetSlot(i, entry.Add(mir.NewConstant(bytecode.Undefined())))
		}
	}

	for i := 0; i < b.script.NLocals; i++ {
		entry.SetSlot(b.localSlot(i), entry.Add(mir.NewConstant(bytecode.Undefined())))
	}

	return b.traverse()
}

// traverse walks the bytecode in source order. Before an opcode is
// translated, the structure ending at this pc is completed and a control
// opcode starting a new one is handled; both can move the cursor, so they
// repeat until a plain opcode is reached.
func (b *Builder) traverse() error {
	for {
		for {
			if err := b.graph.Err(); err != nil {
				return errs.ResourceExhausted(b.pc, err)
			}

			if len(b.cfgStack) > 0 && b.top().stop() == b.pc {
				status, err := b.processCfgStack()
				if err != nil {
					return err
				}
				b.log.Debugf("pc %d: structure %s", b.pc, status)
				if !b.current.Valid() {
					return b.finish()
				}
				continue
			}

			if b.pc >= b.script.Length() {
				return errs.MalformedStructure(errs.ErrorMalformedStructure, b.pc, "",
					"control falls off the end of the script")
			}

			status, err := b.snoopControlFlow(b.script.Op(b.pc))
			if err != nil {
				return err
			}
			if status == controlNone {
				break
			}
			if !b.current.Valid() {
				return b.finish()
			}
		}

		if err := b.inspectOpcode(b.script.Op(b.pc)); err != nil {
			return err
		}
		b.pc = b.script.NextPC(b.pc)
	}
}

func (b *Builder) finish() error {
	if len(b.cfgStack) > 0 {
		return b.malformed(errs.ErrorMalformedStructure,
			"control ended with %d open structures", len(b.cfgStack))
	}
	return nil
}

func (b *Builder) block() *mir.BasicBlock { return b.graph.Block(b.current) }

func (b *Builder) argSlot(i int) int { return firstArg + i }

func (b *Builder) localSlot(i int) int { return firstArg + b.script.NArgs + i }

func (b *Builder) newBlock(pred mir.BlockID, pc int) mir.BlockID {
	return b.graph.NewBlock(pred, pc)
}

func (b *Builder) newLoopHeader(pred mir.BlockID, pc int) mir.BlockID {
	b.log.Debugf("pc %d: loop header", pc)
	return b.graph.NewLoopHeader(pred, pc)
}

// gotoBlock ends from with a jump to target and records the edge.
func (b *Builder) gotoBlock(from, target mir.BlockID) error {
	f, t := b.graph.Block(from), b.graph.Block(target)
	if len(t.Predecessors()) > 0 && f.StackDepth() != t.StackDepth() {
		return b.malformed(errs.ErrorMalformedStructure,
			"stack depth %d at %s does not match depth %d at %s",
			f.StackDepth(), from, t.StackDepth(), target)
	}
	f.End(mir.NewGoto(target))
	b.graph.AddPredecessor(target, from)
	return nil
}

func (b *Builder) malformed(code string, format string, args ...any) *errs.BuildError {
	return errs.MalformedStructure(code, b.pc, b.opName(), format, args...)
}

func (b *Builder) unsupported(code string, format string, args ...any) *errs.BuildError {
	return errs.UnsupportedOpcode(code, b.pc, b.opName(), format, args...)
}

func (b *Builder) opName() string {
	if b.pc < 0 || b.pc >= b.script.Length() {
		return ""
	}
	return b.script.Op(b.pc).String()
}

func (b *Builder) checkUses(n int) error {
	if depth := b.block().StackDepth(); depth < n {
		return b.malformed(errs.ErrorStackUnderflow,
			"needs %d operands, stack holds %d", n, depth)
	}
	return nil
}
