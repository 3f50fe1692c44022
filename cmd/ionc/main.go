// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"ionbuild/grammar"
	"ionbuild/internal/asm"
	"ionbuild/internal/builder"
	"ionbuild/internal/bytecode"
	"ionbuild/internal/errors"
	"ionbuild/internal/mir"
)

var (
	output          = flag.String("o", "", "write the assembled script to this .ionbc file")
	printGraph      = flag.Bool("print", true, "print the built graph")
	format          = flag.Bool("fmt", false, "print the assembly source in canonical form and exit")
	optimize        = flag.Bool("passes", true, "run the graph passes after building")
	verbose         = flag.Int("v", 0, "log verbosity (also IONBUILD_VERBOSE)")
	maxInstructions = flag.Int("max-instructions", builder.DefaultMaxInstructions, "instruction budget per graph, 0 for none")
	maxBlocks       = flag.Int("max-blocks", builder.DefaultMaxBlocks, "block budget per graph, 0 for none")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ionc [flags] <file.ionasm|file.ionbc>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	configureLogging()

	startTime := time.Now()
	path := flag.Arg(0)

	if *format {
		program, err := grammar.ParseFile(path)
		if err != nil {
			os.Exit(1)
		}
		fmt.Print(program.String())
		return
	}

	script, reporter, err := load(path)
	if err != nil {
		report(reporter, err)
		color.Red("Assembly failed after %s", formatDuration(time.Since(startTime)))
		os.Exit(1)
	}

	if *output != "" {
		if err := writeScript(*output, script); err != nil {
			color.Red("%s", err)
			os.Exit(1)
		}
		color.Green("Wrote %s (%d bytes of code)", *output, script.Length())
	}

	graph, err := builder.Build(script, nil,
		builder.WithMaxInstructions(*maxInstructions),
		builder.WithMaxBlocks(*maxBlocks))
	if err != nil {
		report(reporter, err)
		color.Red("Build of %s failed after %s", script.Name, formatDuration(time.Since(startTime)))
		os.Exit(1)
	}

	if *optimize {
		if err := mir.NewPipeline().Run(graph); err != nil {
			color.Red("Graph passes failed: %s", err)
			os.Exit(1)
		}
	}

	duration := time.Since(startTime)

	if *printGraph {
		fmt.Print(mir.NewPrinter(!color.NoColor).Sprint(graph))
	}
	color.Green("Built %s in %s: %d blocks, %d instructions",
		script.Name, formatDuration(duration), len(graph.Blocks()), graph.NumInstructions())
}

func configureLogging() {
	level := *verbose
	if level == 0 {
		if env := os.Getenv("IONBUILD_VERBOSE"); env != "" {
			level, _ = strconv.Atoi(env)
		}
	}
	commonlog.Configure(level, nil)
}

// load reads an assembly or binary script. The reporter renders errors
// against the assembly source when there is one.
func load(path string) (*bytecode.Script, *errors.ErrorReporter, error) {
	if strings.EqualFold(filepath.Ext(path), ".ionbc") {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read file: %w", err)
		}
		defer f.Close()

		script, err := bytecode.ReadScript(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return script, errors.NewErrorReporter(path, "", nil), nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	script, lines, err := asm.AssembleString(path, string(source))
	if err != nil {
		return nil, errors.NewErrorReporter(path, string(source), nil), err
	}
	return script, errors.NewErrorReporter(path, string(source), lines), nil
}

func writeScript(path string, script *bytecode.Script) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := bytecode.WriteScript(f, script); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func report(reporter *errors.ErrorReporter, err error) {
	var list []*errors.BuildError
	switch e := err.(type) {
	case asm.Errors:
		list = e
	default:
		if be, ok := errors.AsBuildError(err); ok {
			list = []*errors.BuildError{be}
		}
	}

	if reporter == nil || len(list) == 0 {
		color.Red("error: %s", err)
		return
	}
	for _, be := range list {
		fmt.Print(reporter.FormatError(be))
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
