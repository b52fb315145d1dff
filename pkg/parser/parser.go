// Package parser implements Kestrel's recursive-descent parser over the
// grammar in spec.md §6.
package parser

import (
	"fmt"
	"strconv"

	"kestrel/pkg/ast"
	"kestrel/pkg/source"
	"kestrel/pkg/token"
)

// Parser consumes the flat token slice produced by the Lexer and builds
// an AST.
//
// Grammar (spec.md §6):
//
//	program      = (function | enum-decl)*
//	function     = "fn" ident "(" ")" block
//	enum-decl    = "enum" ident "{" ident ("," ident)* ","? "}"
//	block        = "{" statement* "}"
//	statement    = (let-stmt | return-stmt | expr) ";"?
//	let-stmt     = "let" ["mut"] ident "=" expr
//	return-stmt  = "return" expr
//	expr         = if-expr | binary
//	if-expr      = "if" expr block ("elif" expr block)* ["else" block]
//	binary       = unary (("+" | "==" | "!=") unary)*
//	unary        = ["&" | "*"] primary
//	primary      = literal | ident | ident "::" ident | ident "(" ")" | "(" expr ")"
//	literal      = integer | "true" | "false" | char
type Parser struct {
	tokens []token.Token
	pos    int
	file   *source.File
}

func New(tokens []token.Token, file *source.File) *Parser {
	return &Parser{tokens: tokens, file: file}
}

// fmtError wraps a message with the source line where the token appears,
// matching the teacher's Parser.fmtError convention.
func (p *Parser) fmtError(tok token.Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	snippet := "<source unavailable>"
	if p.file != nil {
		snippet = p.file.Line(tok.Span.Start.Line)
	}
	return fmt.Errorf("%s: %s\n  |> %s", tok.Span.Start, msg, snippet)
}

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) token.Token {
	if p.pos+offset >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() token.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt token.Type) (token.Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// ParseProgram is the entry point: program = (function | enum-decl)*.
func ParseProgram(tokens []token.Token, file *source.File) (*ast.Program, error) {
	p := New(tokens, file)
	prog := &ast.Program{}
	for p.peek().Type != token.EOF {
		switch p.peek().Type {
		case token.FN:
			fn, err := p.parseFunction()
			if err != nil {
				return nil, err
			}
			prog.Items = append(prog.Items, fn)
		case token.ENUM:
			en, err := p.parseEnumDecl()
			if err != nil {
				return nil, err
			}
			prog.Items = append(prog.Items, en)
		default:
			tok := p.peek()
			return nil, p.fmtError(tok, "expected 'fn' or 'enum' at top level, got %s (%q)", tok.Type, tok.Lexeme)
		}
	}
	return prog, nil
}

func (p *Parser) parseFunction() (*ast.FunctionDecl, error) {
	start := p.peek().Span
	if _, err := p.expect(token.FN); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{Name: name.Lexeme, Body: body, Sp: source.Join(start, body.Sp)}, nil
}

func (p *Parser) parseEnumDecl() (*ast.EnumDecl, error) {
	start := p.peek().Span
	if _, err := p.expect(token.ENUM); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	var variants []string
	for p.peek().Type != token.RBRACE {
		v, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v.Lexeme)
		if p.peek().Type == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	end, err := p.expect(token.RBRACE)
	if err != nil {
		return nil, err
	}
	return &ast.EnumDecl{Name: name.Lexeme, Variants: variants, Sp: source.Join(start, end.Span)}, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	start, err := p.expect(token.LBRACE)
	if err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for p.peek().Type != token.RBRACE && p.peek().Type != token.EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		if p.peek().Type == token.SEMICOLON {
			p.advance()
		}
	}
	end, err := p.expect(token.RBRACE)
	if err != nil {
		return nil, err
	}
	return &ast.Block{Stmts: stmts, Sp: source.Join(start.Span, end.Span)}, nil
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	switch p.peek().Type {
	case token.LET:
		return p.parseLet()
	case token.RETURN:
		return p.parseReturn()
	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Value: expr, Sp: expr.Span()}, nil
	}
}

func (p *Parser) parseLet() (ast.Stmt, error) {
	start := p.peek().Span
	if _, err := p.expect(token.LET); err != nil {
		return nil, err
	}
	mut := false
	if p.peek().Type == token.MUT {
		p.advance()
		mut = true
	}
	name, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.ASSIGN); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.LetStmt{Name: name.Lexeme, Mut: mut, Value: value, Sp: source.Join(start, value.Span())}, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	start := p.peek().Span
	if _, err := p.expect(token.RETURN); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.ReturnStmt{Value: value, Sp: source.Join(start, value.Span())}, nil
}

// parseExpr is the entry point for expression parsing: expr = if-expr | binary.
func (p *Parser) parseExpr() (ast.Expr, error) {
	if p.peek().Type == token.IF {
		return p.parseIf()
	}
	return p.parseBinary()
}

func (p *Parser) parseIf() (ast.Expr, error) {
	start := p.peek().Span
	var arms []ast.IfArm
	if _, err := p.expect(token.IF); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	arms = append(arms, ast.IfArm{Cond: cond, Body: body})
	last := body.Sp

	for p.peek().Type == token.ELIF {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		arms = append(arms, ast.IfArm{Cond: cond, Body: body})
		last = body.Sp
	}

	var elseBlock *ast.Block
	if p.peek().Type == token.ELSE {
		p.advance()
		elseBlock, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
		last = elseBlock.Sp
	}

	return &ast.IfExpr{Arms: arms, Else: elseBlock, Sp: source.Join(start, last)}, nil
}

// parseBinary handles the single flat precedence level of + == != ,
// left-associative (spec.md §6 `binary`).
func (p *Parser) parseBinary() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch p.peek().Type {
		case token.PLUS:
			op = ast.OpAdd
		case token.EQUALS:
			op = ast.OpEq
		case token.NOT_EQ:
			op = ast.OpNe
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right, Sp: source.Join(left.Span(), right.Span())}
	}
}

// parseUnary handles the optional leading & or * of spec.md §6 `unary`.
// "&&x" folds into a single RefExpr per spec.md §4.1.
func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.peek().Type {
	case token.AND:
		start := p.advance().Span
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return foldRef(&ast.RefExpr{Inner: inner, Sp: source.Join(start, inner.Span())}), nil
	case token.STAR:
		start := p.advance().Span
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.DerefExpr{Inner: inner, Sp: source.Join(start, inner.Span())}, nil
	default:
		return p.parsePrimary()
	}
}

// foldRef implements "&&x folds into a single Reference(x)" (spec.md §3,
// §4.1): a RefExpr whose Inner is itself a RefExpr collapses to the inner
// one, since a second layer of reference-of is not a distinct value in
// Kestrel's one-reference-kind model.
func foldRef(r *ast.RefExpr) ast.Expr {
	if inner, ok := r.Inner.(*ast.RefExpr); ok {
		return inner
	}
	return r
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case token.INTEGER:
		p.advance()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.fmtError(tok, "invalid integer literal %q", tok.Lexeme)
		}
		return &ast.IntLiteral{Value: v, Sp: tok.Span}, nil
	case token.CHAR:
		p.advance()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.fmtError(tok, "invalid character literal")
		}
		return &ast.IntLiteral{Value: v, Sp: tok.Span}, nil
	case token.TRUE:
		p.advance()
		return &ast.BoolLiteral{Value: true, Sp: tok.Span}, nil
	case token.FALSE:
		p.advance()
		return &ast.BoolLiteral{Value: false, Sp: tok.Span}, nil
	case token.IDENTIFIER:
		p.advance()
		switch p.peek().Type {
		case token.COLONCOLON:
			p.advance()
			variant, err := p.expect(token.IDENTIFIER)
			if err != nil {
				return nil, err
			}
			return &ast.EnumVariant{Enum: tok.Lexeme, Variant: variant.Lexeme, Sp: source.Join(tok.Span, variant.Span)}, nil
		case token.LPAREN:
			p.advance()
			end, err := p.expect(token.RPAREN)
			if err != nil {
				return nil, err
			}
			return &ast.CallExpr{Name: tok.Lexeme, Sp: source.Join(tok.Span, end.Span)}, nil
		default:
			return &ast.Ident{Name: tok.Lexeme, Sp: tok.Span}, nil
		}
	case token.LPAREN:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, p.fmtError(tok, "expected an expression, got %s (%q)", tok.Type, tok.Lexeme)
	}
}
