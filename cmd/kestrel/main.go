// Command kestrel is the CLI entry point: it parses flags, drives the
// lexer/parser/MIR/lifetime/borrow/codegen pipeline over a single source
// file, and hands the result to the backend driver. Pipeline orchestration
// follows the teacher's cmd/ccompiler/main.go (each stage's error aborts
// immediately, printed to stderr), generalized to the pass list and exit
// codes of SPEC_FULL.md §6.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"kestrel/pkg/borrow"
	"kestrel/pkg/codegen"
	"kestrel/pkg/diag"
	"kestrel/pkg/driver"
	"kestrel/pkg/lexer"
	"kestrel/pkg/lifetime"
	"kestrel/pkg/mir"
	"kestrel/pkg/parser"
	"kestrel/pkg/source"
	"kestrel/pkg/types"

	"kestrel/internal/mirtext"
)

const (
	exitOK         = 0
	exitDiagnostic = 1
	exitUsage      = 2
	exitInternal   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	optimize := flag.Bool("o", false, "enable optimized link-time codegen")
	sanitize := flag.String("fsanitize", "", "forward a sanitizer flag to the backend (address|undefined)")
	noOUChecks := flag.Bool("fno-ou-checks", false, "omit overflow-checked intrinsics, emit plain add")
	emitMIR := flag.Bool("femit-mir", false, "write <basename>.mir alongside <basename>.ll")
	verbose := flag.Bool("v", false, "print each backend command before running it")

	// Flags may follow the source path, and -fsanitize may be given with no
	// value. flag.Parse alone stops at the first non-flag argument and would
	// take the argument after a bare -fsanitize as its value.
	var flagArgs, posArgs []string
	for _, a := range os.Args[1:] {
		switch {
		case a == "-fsanitize" || a == "--fsanitize":
			flagArgs = append(flagArgs, "-fsanitize=address")
		case strings.HasPrefix(a, "-"):
			flagArgs = append(flagArgs, a)
		default:
			posArgs = append(posArgs, a)
		}
	}
	flag.CommandLine.Parse(append(flagArgs, posArgs...))

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: kestrel <source.ke> [-o] [-fsanitize[=address|undefined]] [-fno-ou-checks] [-femit-mir]")
		return exitUsage
	}
	if *sanitize != "" && *sanitize != "address" && *sanitize != "undefined" {
		fmt.Fprintf(os.Stderr, "kestrel: -fsanitize must be \"address\" or \"undefined\", got %q\n", *sanitize)
		return exitUsage
	}
	sanitizeValue := *sanitize
	if flagWasSetBare("fsanitize") && sanitizeValue == "" {
		sanitizeValue = "address"
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		return exitUsage
	}

	file := source.NewFile(path, data)
	flags := source.Flags{
		NoOUChecks: *noOUChecks,
		Sanitize:   sanitizeValue,
		Optimize:   *optimize,
		EmitMIR:    *emitMIR,
	}
	ctx := source.NewContext(file, flags)
	sink := diag.NewSink(file)

	tokens, err := lexer.Lex(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		return exitDiagnostic
	}

	prog, err := parser.ParseProgram(tokens, file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		return exitDiagnostic
	}

	universe := types.NewUniverse()
	mod, err := mir.Lower(ctx, universe, sink, prog)
	if err != nil {
		sink.Flush(os.Stderr)
		return exitDiagnostic
	}

	lastUse, err := lifetime.Check(sink, mod)
	if err != nil || sink.HasErrors() {
		sink.Flush(os.Stderr)
		return exitDiagnostic
	}

	if err := borrow.Check(sink, mod, borrow.DefaultRules()); err != nil || sink.HasErrors() {
		sink.Flush(os.Stderr)
		return exitDiagnostic
	}

	irModule, err := codegen.Emit(ctx, mod, lastUse)
	if err != nil {
		diag.RaiseInternal(os.Stderr, err.Error())
		return exitInternal
	}

	basename, err := driver.ArtifactBasename(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		return exitUsage
	}

	if flags.EmitMIR {
		if err := os.WriteFile(basename+".mir", []byte(mirtext.Render(mod, lastUse)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
			return exitInternal
		}
	}

	tc := driver.New(basename)
	tc.Verbose = *verbose
	if err := tc.WriteIR(irModule.String()); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		return exitInternal
	}
	if missing := driver.Detect(); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "kestrel: missing backend tools: %s\n", strings.Join(missing, ", "))
		return exitInternal
	}
	if err := tc.Build(flags); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		return exitInternal
	}

	return exitOK
}

// flagWasSetBare reports whether -fsanitize was passed with no `=value`
// suffix (flag.String alone cannot distinguish "absent" from "passed with
// its zero value" without this scan of os.Args).
func flagWasSetBare(name string) bool {
	for _, a := range os.Args[1:] {
		if a == "-"+name || a == "--"+name {
			return true
		}
	}
	return false
}
