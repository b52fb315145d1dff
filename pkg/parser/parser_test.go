package parser

import (
	"testing"

	"kestrel/pkg/ast"
	"kestrel/pkg/lexer"
	"kestrel/pkg/source"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	prog, err := ParseProgram(toks, source.NewFile("test.ke", []byte(src)))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return prog
}

func TestParseFunction(t *testing.T) {
	prog := parse(t, "fn main() { let x = 1 }")
	if len(prog.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(prog.Items))
	}
	fn, ok := prog.Items[0].(*ast.FunctionDecl)
	if !ok {
		t.Fatalf("item is %T, want *ast.FunctionDecl", prog.Items[0])
	}
	if fn.Name != "main" {
		t.Errorf("fn.Name = %q, want main", fn.Name)
	}
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("got %d statements, want 1", len(fn.Body.Stmts))
	}
	let, ok := fn.Body.Stmts[0].(*ast.LetStmt)
	if !ok {
		t.Fatalf("statement is %T, want *ast.LetStmt", fn.Body.Stmts[0])
	}
	if let.Name != "x" || let.Mut {
		t.Errorf("let = %+v", let)
	}
}

func TestParseEnumDecl(t *testing.T) {
	prog := parse(t, "enum Color { Red, Green, Blue }")
	en, ok := prog.Items[0].(*ast.EnumDecl)
	if !ok {
		t.Fatalf("item is %T, want *ast.EnumDecl", prog.Items[0])
	}
	want := []string{"Red", "Green", "Blue"}
	if len(en.Variants) != len(want) {
		t.Fatalf("got %v, want %v", en.Variants, want)
	}
	for i, v := range want {
		if en.Variants[i] != v {
			t.Errorf("variant %d = %q, want %q", i, en.Variants[i], v)
		}
	}
}

func TestParseBinaryLeftAssociative(t *testing.T) {
	prog := parse(t, "fn main() { return 1 + 2 + 3 }")
	fn := prog.Items[0].(*ast.FunctionDecl)
	ret := fn.Body.Stmts[0].(*ast.ReturnStmt)
	top, ok := ret.Value.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("value is %T, want *ast.BinaryExpr", ret.Value)
	}
	if _, ok := top.Right.(*ast.IntLiteral); !ok {
		t.Errorf("top.Right is %T, want *ast.IntLiteral (left-associative: (1+2)+3)", top.Right)
	}
	if _, ok := top.Left.(*ast.BinaryExpr); !ok {
		t.Errorf("top.Left is %T, want *ast.BinaryExpr", top.Left)
	}
}

func TestParseDoubleReferenceFolds(t *testing.T) {
	prog := parse(t, "fn main() { let x = 1; let y = &&x }")
	fn := prog.Items[0].(*ast.FunctionDecl)
	let := fn.Body.Stmts[1].(*ast.LetStmt)
	ref, ok := let.Value.(*ast.RefExpr)
	if !ok {
		t.Fatalf("value is %T, want *ast.RefExpr", let.Value)
	}
	if _, ok := ref.Inner.(*ast.RefExpr); ok {
		t.Fatalf("&&x did not fold: inner is still a RefExpr")
	}
}

func TestParseIfElifElse(t *testing.T) {
	prog := parse(t, "fn main() { let x = if 1==2 { 1 } elif 2==2 { 2 } else { 3 } }")
	fn := prog.Items[0].(*ast.FunctionDecl)
	let := fn.Body.Stmts[0].(*ast.LetStmt)
	ifx, ok := let.Value.(*ast.IfExpr)
	if !ok {
		t.Fatalf("value is %T, want *ast.IfExpr", let.Value)
	}
	if len(ifx.Arms) != 2 {
		t.Fatalf("got %d arms, want 2", len(ifx.Arms))
	}
	if ifx.Else == nil {
		t.Fatalf("expected an else arm")
	}
}

func TestParseEnumVariantAndCall(t *testing.T) {
	prog := parse(t, "fn main() { let x = Color::Red; let y = foo() }")
	fn := prog.Items[0].(*ast.FunctionDecl)
	ev := fn.Body.Stmts[0].(*ast.LetStmt).Value.(*ast.EnumVariant)
	if ev.Enum != "Color" || ev.Variant != "Red" {
		t.Errorf("got %+v", ev)
	}
	call := fn.Body.Stmts[1].(*ast.LetStmt).Value.(*ast.CallExpr)
	if call.Name != "foo" {
		t.Errorf("got %+v", call)
	}
}

func TestParseMissingLparenIsError(t *testing.T) {
	toks, err := lexer.Lex("fn x{ }")
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	_, err = ParseProgram(toks, source.NewFile("t.ke", []byte("fn x{ }")))
	if err == nil {
		t.Fatalf("expected a parse error")
	}
}
