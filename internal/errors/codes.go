package errors

// Error codes for the graph builder and its front ends.
// These codes are used in error messages, editor diagnostics and
// documentation to identify failures consistently across the toolchain.
//
// Error code ranges:
// E0100-E0199: Resource errors
// E0200-E0299: Malformed bytecode structure
// E0300-E0399: Unsupported constructs (the interpreter runs the script instead)
// E0400-E0499: Assembler errors
// E0500-E0999: Reserved for future use

const (
	// E0100: Arena budget exceeded while building
	ErrorResourceExhausted = "E0100"

	// E0200: Generic malformed structure
	ErrorMalformedStructure = "E0200"

	// E0201: Source note offsets point outside the script or at the wrong opcode
	ErrorBadAnnotation = "E0201"

	// E0202: Break or continue without an enclosing loop with that target
	ErrorUnmatchedJump = "E0202"

	// E0203: Opcode needs more operands than the expression stack holds
	ErrorStackUnderflow = "E0203"

	// E0204: Argument or local index out of range
	ErrorBadSlot = "E0204"

	// E0205: Jump that does not belong to any recognized structure
	ErrorUnstructuredJump = "E0205"

	// E0206: Undecodable bytecode
	ErrorInvalidScript = "E0206"

	// E0300: Opcode the builder does not compile
	ErrorUnsupportedOpcode = "E0300"

	// E0301: Conditional branch without a structure annotation
	ErrorUnannotatedBranch = "E0301"

	// E0302: for-in loops
	ErrorForInLoop = "E0302"

	// E0400: Assembly syntax error
	ErrorSyntax = "E0400"

	// E0401: Unknown opcode mnemonic
	ErrorUnknownMnemonic = "E0401"

	// E0402: Wrong number or kind of operands
	ErrorBadOperand = "E0402"

	// E0403: Reference to a label that is never defined
	ErrorUnknownLabel = "E0403"

	// E0404: Label defined twice
	ErrorDuplicateLabel = "E0404"

	// E0405: Unknown directive
	ErrorUnknownDirective = "E0405"

	// E0406: Unknown source note
	ErrorUnknownNote = "E0406"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorResourceExhausted:
		return "The graph grew past its instruction or block budget"
	case ErrorMalformedStructure:
		return "Bytecode does not follow the structured layout"
	case ErrorBadAnnotation:
		return "A source note does not describe the surrounding bytecode"
	case ErrorUnmatchedJump:
		return "Break or continue target does not match any enclosing loop"
	case ErrorStackUnderflow:
		return "Expression stack underflow"
	case ErrorBadSlot:
		return "Argument or local index is out of range"
	case ErrorUnstructuredJump:
		return "Jump is not part of a recognized control structure"
	case ErrorInvalidScript:
		return "Bytecode cannot be decoded"
	case ErrorUnsupportedOpcode:
		return "Opcode is not compiled and runs in the interpreter"
	case ErrorUnannotatedBranch:
		return "Conditional branch has no structure annotation"
	case ErrorForInLoop:
		return "for-in loops are not compiled"
	case ErrorSyntax:
		return "Assembly source cannot be parsed"
	case ErrorUnknownMnemonic:
		return "Unknown opcode mnemonic"
	case ErrorBadOperand:
		return "Opcode operand is missing, extra or of the wrong kind"
	case ErrorUnknownLabel:
		return "Label is referenced but never defined"
	case ErrorDuplicateLabel:
		return "Label is defined more than once"
	case ErrorUnknownDirective:
		return "Unknown assembler directive"
	case ErrorUnknownNote:
		return "Unknown source note"
	default:
		return "Unknown error"
	}
}
