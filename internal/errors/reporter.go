package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of an error
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// LineMapper resolves a bytecode offset to the source line that produced it
type LineMapper interface {
	PositionOf(pc int) (Position, bool)
}

// ErrorReporter handles consistent error formatting
type ErrorReporter struct {
	filename string
	source   string
	lines    []string
	mapper   LineMapper
}

// NewErrorReporter creates a new error reporter for a file. mapper may be
// nil when errors carry source positions themselves.
func NewErrorReporter(filename, source string, mapper LineMapper) *ErrorReporter {
	return &ErrorReporter{
		filename: filename,
		source:   source,
		lines:    strings.Split(source, "\n"),
		mapper:   mapper,
	}
}

// Locate returns the source position of err, mapping its pc if needed.
func (er *ErrorReporter) Locate(err *BuildError) (Position, bool) {
	if err.Position.Line > 0 {
		return err.Position, true
	}
	if err.PC >= 0 && er.mapper != nil {
		return er.mapper.PositionOf(err.PC)
	}
	return Position{}, false
}

// FormatError formats a build error with a source excerpt and caret marker
func (er *ErrorReporter) FormatError(err *BuildError) string {
	var result strings.Builder

	level := err.Level
	if level == "" {
		level = Error
	}
	levelColor := er.getLevelColor(level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	// Header: error[E0201]: message
	if err.Code != "" {
		result.WriteString(fmt.Sprintf("%s[%s]: %s\n",
			levelColor(string(level)), err.Code, err.Message))
	} else {
		result.WriteString(fmt.Sprintf("%s: %s\n",
			levelColor(string(level)), err.Message))
	}

	pos, located := er.Locate(err)
	lineNumberWidth := er.getLineNumberWidth(pos.Line)
	indent := strings.Repeat(" ", lineNumberWidth)

	// Location line: --> filename:line:column (pc N)
	location := er.filename
	if located {
		location = fmt.Sprintf("%s:%d:%d", er.filename, pos.Line, pos.Column)
	}
	if err.PC >= 0 {
		location += fmt.Sprintf(" (pc %d", err.PC)
		if err.Op != "" {
			location += ", " + err.Op
		}
		location += ")"
	}
	result.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("-->"), location))

	if located && pos.Line <= len(er.lines) {
		result.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

		// Context line before
		if pos.Line > 1 {
			result.WriteString(fmt.Sprintf("%s %s %s\n",
				dim(fmt.Sprintf("%*d", lineNumberWidth, pos.Line-1)),
				dim("│"),
				er.lines[pos.Line-2]))
		}

		result.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", lineNumberWidth, pos.Line)),
			dim("│"),
			er.lines[pos.Line-1]))

		length := err.Length
		if length <= 0 {
			length = markerLength(er.lines[pos.Line-1], pos.Column)
		}
		result.WriteString(fmt.Sprintf("%s %s %s\n",
			indent, dim("│"), er.createMarker(pos.Column, length, level)))
	}

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		result.WriteString(fmt.Sprintf("%s %s %s %s\n",
			indent, dim("│"), noteColor("note:"), note))
	}

	if err.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		result.WriteString(fmt.Sprintf("%s %s %s %s\n",
			indent, dim("│"), helpColor("help:"), err.HelpText))
	}

	result.WriteString("\n")
	return result.String()
}

// getLevelColor returns the appropriate color function for an error level
func (er *ErrorReporter) getLevelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

// createMarker creates the underline marker for errors
func (er *ErrorReporter) createMarker(column, length int, level ErrorLevel) string {
	if length <= 0 {
		length = 1
	}

	spaces := strings.Repeat(" ", max(0, column-1))

	markerColor := color.New(color.FgRed, color.Bold).SprintFunc()
	if level == Warning {
		markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	}

	return spaces + markerColor(strings.Repeat("^", length))
}

// markerLength underlines the word starting at column
func markerLength(line string, column int) int {
	start := column - 1
	if start < 0 || start >= len(line) {
		return 1
	}
	n := 0
	for _, r := range line[start:] {
		if r == ' ' || r == '\t' || r == ';' {
			break
		}
		n++
	}
	return max(n, 1)
}

// getLineNumberWidth calculates the width needed for line numbers
func (er *ErrorReporter) getLineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3 // minimum width for visual alignment
	}
	return width
}
