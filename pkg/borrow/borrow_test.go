package borrow

import (
	"testing"

	"kestrel/pkg/diag"
	"kestrel/pkg/lexer"
	"kestrel/pkg/mir"
	"kestrel/pkg/parser"
	"kestrel/pkg/source"
	"kestrel/pkg/types"
)

func lowerSrc(t *testing.T, src string) (*mir.Module, *diag.Sink) {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	file := source.NewFile("t.ke", []byte(src))
	prog, err := parser.ParseProgram(toks, file)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	ctx := source.NewContext(file, source.Flags{})
	sink := diag.NewSink(file)
	universe := types.NewUniverse()
	mod, err := mir.Lower(ctx, universe, sink, prog)
	if err != nil {
		t.Fatalf("lower error: %v", err)
	}
	return mod, sink
}

func TestMultipleDirectReferencesRejected(t *testing.T) {
	mod, sink := lowerSrc(t, "fn main() { let x = 1; let a = &x; let b = &x }")
	err := Check(sink, mod, DefaultRules())
	if err == nil {
		t.Fatalf("expected E009, got none")
	}
	d, ok := err.(*diag.Diagnostic)
	if !ok {
		t.Fatalf("error is %T, want *diag.Diagnostic", err)
	}
	if d.Code != diag.ErrMultipleReferences {
		t.Errorf("code = %d, want E009", d.Code)
	}
}

func TestAliasingThroughIntermediateBindingRejected(t *testing.T) {
	// spec.md §8 scenario 3: let y = &x; let z = &y aliases the same
	// ultimate referent x through an intermediate reference binding.
	mod, sink := lowerSrc(t, "fn main() { let x = 1; let y = &x; let z = &y }")
	err := Check(sink, mod, DefaultRules())
	if err == nil {
		t.Fatalf("expected E009, got none")
	}
	d, ok := err.(*diag.Diagnostic)
	if !ok {
		t.Fatalf("error is %T, want *diag.Diagnostic", err)
	}
	if d.Code != diag.ErrMultipleReferences {
		t.Errorf("code = %d, want E009", d.Code)
	}
}

func TestSingleReferenceIsAccepted(t *testing.T) {
	mod, sink := lowerSrc(t, "fn main() { let x = 1; let a = &x }")
	err := Check(sink, mod, DefaultRules())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", sink.Diagnostics())
	}
}
