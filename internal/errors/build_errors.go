package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why a build was aborted.
type Kind int

const (
	KindResourceExhausted Kind = iota + 1
	KindMalformedStructure
	KindUnsupportedOpcode
	KindAssembly
)

func (k Kind) String() string {
	switch k {
	case KindResourceExhausted:
		return "resource exhausted"
	case KindMalformedStructure:
		return "malformed structure"
	case KindUnsupportedOpcode:
		return "unsupported opcode"
	case KindAssembly:
		return "assembly error"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is matching on kind.
var (
	ErrResourceExhausted  = &BuildError{Kind: KindResourceExhausted}
	ErrMalformedStructure = &BuildError{Kind: KindMalformedStructure}
	ErrUnsupportedOpcode  = &BuildError{Kind: KindUnsupportedOpcode}
	ErrAssembly           = &BuildError{Kind: KindAssembly}
)

// Position is a location in assembly source. Line and Column are 1-based;
// a zero Line means unknown.
type Position struct {
	Filename string
	Line     int
	Column   int
}

// BuildError is a structured failure from the assembler or the graph builder.
type BuildError struct {
	Kind     Kind
	Level    ErrorLevel
	Code     string
	Message  string
	PC       int    // bytecode offset, -1 when not applicable
	Op       string // opcode mnemonic at PC
	Position Position
	Length   int
	Notes    []string
	HelpText string
	Err      error
}

func (e *BuildError) Error() string {
	msg := e.Kind.String()
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	switch {
	case e.PC >= 0 && e.Op != "":
		msg += fmt.Sprintf(" at pc %d (%s)", e.PC, e.Op)
	case e.PC >= 0:
		msg += fmt.Sprintf(" at pc %d", e.PC)
	case e.Position.Line > 0:
		msg += fmt.Sprintf(" at %d:%d", e.Position.Line, e.Position.Column)
	}
	return msg + ": " + e.Message
}

func (e *BuildError) Unwrap() error { return e.Err }

// Is matches any BuildError of the same kind.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	return ok && t.Kind == e.Kind
}

// WithNote adds a note to the error
func (e *BuildError) WithNote(note string) *BuildError {
	e.Notes = append(e.Notes, note)
	return e
}

// WithHelp sets the help text of the error
func (e *BuildError) WithHelp(help string) *BuildError {
	e.HelpText = help
	return e
}

// WithPosition attaches a source location
func (e *BuildError) WithPosition(pos Position, length int) *BuildError {
	e.Position = pos
	e.Length = length
	return e
}

// AsBuildError extracts a *BuildError from err's chain.
func AsBuildError(err error) (*BuildError, bool) {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// ResourceExhausted reports that the graph outgrew its budget.
func ResourceExhausted(pc int, cause error) *BuildError {
	return &BuildError{
		Kind:     KindResourceExhausted,
		Level:    Error,
		Code:     ErrorResourceExhausted,
		Message:  cause.Error(),
		PC:       pc,
		Err:      cause,
		HelpText: "raise the instruction or block budget, or split the script",
	}
}

// MalformedStructure reports bytecode that breaks the structured layout.
func MalformedStructure(code string, pc int, op string, format string, args ...any) *BuildError {
	return &BuildError{
		Kind:    KindMalformedStructure,
		Level:   Error,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		PC:      pc,
		Op:      op,
	}
}

// UnsupportedOpcode reports a construct the builder declines to compile.
func UnsupportedOpcode(code string, pc int, op string, format string, args ...any) *BuildError {
	return &BuildError{
		Kind:     KindUnsupportedOpcode,
		Level:    Warning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		PC:       pc,
		Op:       op,
		HelpText: "the script keeps running in the interpreter",
	}
}

// AssemblyError reports a problem in assembly source.
func AssemblyError(code string, pos Position, length int, format string, args ...any) *BuildError {
	return &BuildError{
		Kind:     KindAssembly,
		Level:    Error,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		PC:       -1,
		Position: pos,
		Length:   length,
	}
}
