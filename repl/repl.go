// Package repl assembles and builds snippets typed at a prompt.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"ionbuild/internal/asm"
	"ionbuild/internal/builder"
	"ionbuild/internal/errors"
	"ionbuild/internal/mir"
)

const (
	PROMPT       = ">> "
	CONTINUATION = ".. "
)

// Start reads assembly lines from in. A blank line ends the snippet, which
// is then assembled and built; the graph or the errors go to out.
func Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	var snippet []string

	for {
		if len(snippet) == 0 {
			fmt.Fprint(out, PROMPT)
		} else {
			fmt.Fprint(out, CONTINUATION)
		}
		if !scanner.Scan() {
			if len(snippet) > 0 {
				Eval(out, strings.Join(snippet, "\n"))
			}
			return
		}

		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			snippet = append(snippet, line)
			continue
		}
		if len(snippet) > 0 {
			Eval(out, strings.Join(snippet, "\n"))
			snippet = snippet[:0]
		}
	}
}

// Eval assembles and builds one snippet and prints the outcome.
func Eval(out io.Writer, source string) bool {
	script, lines, err := asm.AssembleString("repl", source)
	reporter := errors.NewErrorReporter("repl", source, lines)
	if err != nil {
		printErrors(out, reporter, err)
		return false
	}

	graph, err := builder.Build(script, nil)
	if err != nil {
		printErrors(out, reporter, err)
		return false
	}

	fmt.Fprint(out, mir.Print(graph))
	return true
}

func printErrors(out io.Writer, reporter *errors.ErrorReporter, err error) {
	if list, ok := err.(asm.Errors); ok {
		for _, be := range list {
			fmt.Fprint(out, reporter.FormatError(be))
		}
		return
	}
	if be, ok := errors.AsBuildError(err); ok {
		fmt.Fprint(out, reporter.FormatError(be))
		return
	}
	fmt.Fprintf(out, "error: %s\n", err)
}
