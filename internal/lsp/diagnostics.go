package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"ionbuild/grammar"
	"ionbuild/internal/asm"
	errs "ionbuild/internal/errors"
)

// ConvertSyntaxError transforms a parse failure into a single diagnostic
// at the offending token.
func ConvertSyntaxError(err error) []protocol.Diagnostic {
	pos, msg, ok := grammar.ErrorPosition(err)
	if !ok {
		return []protocol.Diagnostic{{
			Severity: ptrSeverity(protocol.DiagnosticSeverityError),
			Source:   ptrString("ionasm"),
			Message:  err.Error(),
		}}
	}
	return []protocol.Diagnostic{{
		Range:    lineRange(pos.Line, pos.Column, 1),
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Code:     &protocol.IntegerOrString{Value: errs.ErrorSyntax},
		Source:   ptrString("ionasm"),
		Message:  msg,
	}}
}

// ConvertBuildError transforms assembler or builder errors into diagnostics.
// Builder errors carry a pc, which lines maps back to the instruction.
func ConvertBuildError(err error, lines *asm.LineTable) []protocol.Diagnostic {
	var list asm.Errors
	if l, ok := err.(asm.Errors); ok {
		list = l
	} else if be, ok := errs.AsBuildError(err); ok {
		list = asm.Errors{be}
	} else {
		return []protocol.Diagnostic{{
			Severity: ptrSeverity(protocol.DiagnosticSeverityError),
			Source:   ptrString("ionbuild"),
			Message:  err.Error(),
		}}
	}

	diagnostics := make([]protocol.Diagnostic, 0, len(list))
	for _, be := range list {
		diagnostics = append(diagnostics, convertBuildError(be, lines))
	}
	return diagnostics
}

func convertBuildError(be *errs.BuildError, lines *asm.LineTable) protocol.Diagnostic {
	source := "ionbuild"
	if be.Kind == errs.KindAssembly {
		source = "ionasm"
	}

	pos, length := be.Position, be.Length
	if pos.Line == 0 && be.PC >= 0 {
		if p, ok := lines.PositionOf(be.PC); ok {
			pos, length = p, lines.Span(be.PC)
		}
	}

	severity := protocol.DiagnosticSeverityError
	if be.Level == errs.Warning {
		severity = protocol.DiagnosticSeverityWarning
	}

	message := be.Message
	if be.HelpText != "" {
		message += " (" + be.HelpText + ")"
	}

	d := protocol.Diagnostic{
		Severity: ptrSeverity(severity),
		Source:   ptrString(source),
		Message:  message,
	}
	if pos.Line > 0 {
		d.Range = lineRange(pos.Line, pos.Column, length)
	}
	if be.Code != "" {
		d.Code = &protocol.IntegerOrString{Value: be.Code}
	}
	return d
}

// lineRange converts a 1-based position into a 0-based LSP range on one line.
func lineRange(line, column, length int) protocol.Range {
	if length < 1 {
		length = 1
	}
	return protocol.Range{
		Start: protocol.Position{
			Line:      uint32(line - 1),
			Character: uint32(column - 1),
		},
		End: protocol.Position{
			Line:      uint32(line - 1),
			Character: uint32(column - 1 + length),
		},
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}
