// Package mir lowers a resolved AST into the linear mid-level instruction
// stream described by spec.md §3 "MIR entities" and §4.1: one flat
// instruction vector per function, operands addressed by index into that
// vector, with an explicit block graph formed by `if` arms. Type
// resolution (spec.md §2 step 3) is folded into this pass rather than
// kept as a separate walk, since the surface grammar's type universe is
// small enough that every expression's type falls out of its operands'
// types during lowering — the same merge the teacher's codegen.go makes
// between "resolve a symbol's type" and "emit its access" in one pass.
package mir

import (
	"fmt"

	"kestrel/pkg/ast"
	"kestrel/pkg/diag"
	"kestrel/pkg/source"
	"kestrel/pkg/types"
)

// Op identifies a MIR instruction's opcode (spec.md §3 "MIR entities").
type Op int

const (
	OpBoolLit Op = iota
	OpIntLit      // width/signedness carried in Instruction.Type
	OpAdd
	OpEq
	OpNe
	OpDeclare
	OpStore
	OpOwn
	OpLoad
	OpReference
	OpCopy
	OpDeref
	OpReturn
	OpCallFunction
	OpPhi
)

func (op Op) String() string {
	switch op {
	case OpBoolLit:
		return "BoolLit"
	case OpIntLit:
		return "IntLit"
	case OpAdd:
		return "Add"
	case OpEq:
		return "Eq"
	case OpNe:
		return "Ne"
	case OpDeclare:
		return "Declare"
	case OpStore:
		return "Store"
	case OpOwn:
		return "Own"
	case OpLoad:
		return "Load"
	case OpReference:
		return "Reference"
	case OpCopy:
		return "Copy"
	case OpDeref:
		return "Deref"
	case OpReturn:
		return "Return"
	case OpCallFunction:
		return "CallFunction"
	case OpPhi:
		return "Phi"
	default:
		return "?"
	}
}

// PhiEdge pairs one predecessor block with the value index it contributes
// (spec.md §9 "phi is a distinguished instruction whose operands are
// (predecessor_block, value_index) pairs").
type PhiEdge struct {
	Pred  int
	Value int
}

// Instruction is one entry in a function's flat instruction vector.
// Not every field is meaningful for every Op; see the comment on the
// lower* function below that emits each Op.
type Instruction struct {
	Op    Op
	Type  types.Type
	Span  source.Span
	Name  string // Declare/Store/Load target binding name
	Mut   bool   // Declare only
	Bool  bool   // BoolLit only
	Int   int64  // IntLit only
	Left  int    // Add/Eq/Ne left operand, Store/Own/Reference/Copy/Deref/Return source operand
	Right int    // Add/Eq/Ne right operand
	Phis  []PhiEdge
	Call  string // CallFunction target name
}

// Block is a contiguous run of instruction indices sharing a lexical
// scope (spec.md §3 "Block"). [Start, End) is half-open over the owning
// Function's Instructions slice.
type Block struct {
	Start, End int
	Preds      []int
}

// Function is one compiled function's MIR: its flat instruction vector
// plus the block graph `if` lowering produces.
type Function struct {
	Name    string
	Blocks  []Block
	Instrs  []Instruction
	RetSpan source.Span
}

// Module is every function lowered from one source file.
type Module struct {
	Functions []*Function
	Universe  *types.Universe
}

// bindingInfo is the lowerer's per-name bookkeeping within the function
// currently being lowered: its type, mutability, and the instruction
// indices of its Declare and of the Store that initialized it. Load and
// Reference resolve a name through the scope stack (lookup), not through
// these indices.
type bindingInfo struct {
	typ      types.Type
	mut      bool
	declareIdx int
	storeIdx int
}

// scope is one lexical level of bindings; scopes nest for block bodies
// and are popped when the block closes, matching symtable.go's
// EnterScope/ExitScope pairing.
type scope struct {
	vars map[string]*bindingInfo
}

// Lowerer holds the mutable state of one function's lowering pass.
type Lowerer struct {
	ctx      *source.Context
	universe *types.Universe
	sink     *diag.Sink

	fn     *Function
	scopes []*scope

	// funcNames is the hoisted set of every function declared anywhere in
	// the program, populated by Lower before any body is lowered, so that
	// a CallFunction to a function declared later in the file resolves
	// (spec.md §6 allows `fn` items in any order; see SPEC_FULL.md §4.9).
	funcNames map[string]bool
}

// Lower translates every top-level function in prog into MIR. Enum
// declarations only populate the Universe; they emit no instructions of
// their own. Function signatures are hoisted in a pass over prog.Items
// that precedes lowering any function body, so `f()` calls to a function
// declared later in the same source file resolve during lowering instead
// of only at the codegen stage.
func Lower(ctx *source.Context, universe *types.Universe, sink *diag.Sink, prog *ast.Program) (*Module, error) {
	mod := &Module{Universe: universe}

	funcNames := make(map[string]bool)
	for _, item := range prog.Items {
		switch it := item.(type) {
		case *ast.EnumDecl:
			universe.DeclareEnum(types.EnumDef{Name: it.Name, Variants: it.Variants})
		case *ast.FunctionDecl:
			funcNames[it.Name] = true
		}
	}

	for _, item := range prog.Items {
		fd, ok := item.(*ast.FunctionDecl)
		if !ok {
			continue
		}
		l := &Lowerer{ctx: ctx, universe: universe, sink: sink, fn: &Function{Name: fd.Name}, funcNames: funcNames}
		l.pushScope()
		blockStart := 0
		last, err := l.lowerBlockBody(fd.Body)
		if err != nil {
			return nil, err
		}
		l.fn.Blocks = append(l.fn.Blocks, Block{Start: blockStart, End: len(l.fn.Instrs)})
		_ = last
		l.popScope()
		mod.Functions = append(mod.Functions, l.fn)
	}

	return mod, nil
}

func (l *Lowerer) pushScope() { l.scopes = append(l.scopes, &scope{vars: make(map[string]*bindingInfo)}) }

func (l *Lowerer) popScope() { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *Lowerer) define(name string, b *bindingInfo) {
	l.scopes[len(l.scopes)-1].vars[name] = b
}

func (l *Lowerer) lookup(name string) (*bindingInfo, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if b, ok := l.scopes[i].vars[name]; ok {
			return b, true
		}
	}
	return nil, false
}

func (l *Lowerer) emit(instr Instruction) int {
	l.fn.Instrs = append(l.fn.Instrs, instr)
	return len(l.fn.Instrs) - 1
}

// lowerBlockBody lowers every statement of a block in the current scope
// (the caller is responsible for push/popScope so that a function body
// and an `if` arm body share this helper). It returns the index of the
// block's value-producing instruction, or -1 if the block produced no
// value (its final statement was not a bare expression).
func (l *Lowerer) lowerBlockBody(b *ast.Block) (int, error) {
	last := -1
	for _, stmt := range b.Stmts {
		idx, err := l.lowerStmt(stmt)
		if err != nil {
			return -1, err
		}
		if _, ok := stmt.(*ast.ExprStmt); ok {
			last = idx
		} else {
			last = -1
		}
	}
	return last, nil
}

func (l *Lowerer) lowerStmt(stmt ast.Stmt) (int, error) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		return l.lowerLet(s)
	case *ast.ReturnStmt:
		return l.lowerReturn(s)
	case *ast.ExprStmt:
		return l.lowerExpr(s.Value)
	default:
		return -1, fmt.Errorf("mir: unhandled statement %T", s)
	}
}

// lowerLet implements spec.md §4.1's `let [mut] x = e` rule: lower e to
// value v, emit Declare(x, mut) then Store(x, v).
func (l *Lowerer) lowerLet(s *ast.LetStmt) (int, error) {
	v, err := l.lowerExpr(s.Value)
	if err != nil {
		return -1, err
	}
	typ := l.fn.Instrs[v].Type
	declareIdx := l.emit(Instruction{Op: OpDeclare, Name: s.Name, Mut: s.Mut, Type: typ, Span: s.Sp})
	l.emit(Instruction{Op: OpOwn, Left: v, Type: typ, Span: s.Sp})
	storeIdx := l.emit(Instruction{Op: OpStore, Name: s.Name, Left: v, Type: typ, Span: s.Sp})
	l.define(s.Name, &bindingInfo{typ: typ, mut: s.Mut, declareIdx: declareIdx, storeIdx: storeIdx})
	return storeIdx, nil
}

// lowerReturn implements `return e` → Return(e_idx).
func (l *Lowerer) lowerReturn(s *ast.ReturnStmt) (int, error) {
	v, err := l.lowerExpr(s.Value)
	if err != nil {
		return -1, err
	}
	l.fn.RetSpan = s.Sp
	return l.emit(Instruction{Op: OpReturn, Left: v, Type: l.fn.Instrs[v].Type, Span: s.Sp}), nil
}

func (l *Lowerer) lowerExpr(e ast.Expr) (int, error) {
	switch ex := e.(type) {
	case *ast.IntLiteral:
		return l.emit(Instruction{Op: OpIntLit, Int: ex.Value, Type: types.TI32, Span: ex.Sp}), nil
	case *ast.BoolLiteral:
		return l.emit(Instruction{Op: OpBoolLit, Bool: ex.Value, Type: types.TBool, Span: ex.Sp}), nil
	case *ast.EnumVariant:
		return l.lowerEnumVariant(ex)
	case *ast.Ident:
		return l.lowerLoad(ex)
	case *ast.RefExpr:
		return l.lowerReference(ex)
	case *ast.DerefExpr:
		return l.lowerDeref(ex)
	case *ast.BinaryExpr:
		return l.lowerBinary(ex)
	case *ast.CallExpr:
		return l.lowerCall(ex)
	case *ast.IfExpr:
		return l.lowerIf(ex)
	case *ast.Block:
		l.pushScope()
		v, err := l.lowerBlockBody(ex)
		l.popScope()
		return v, err
	default:
		return -1, fmt.Errorf("mir: unhandled expression %T", ex)
	}
}

// lowerCall implements "`f()` → CallFunction(f)". funcNames was hoisted
// by Lower before any body was lowered, so a call to a function declared
// later in the same source file resolves here rather than only failing
// once codegen tries to look up the callee.
func (l *Lowerer) lowerCall(c *ast.CallExpr) (int, error) {
	if !l.funcNames[c.Name] {
		return -1, fmt.Errorf("mir: %s: undeclared function %q", c.Sp, c.Name)
	}
	return l.emit(Instruction{Op: OpCallFunction, Call: c.Name, Type: types.TI32, Span: c.Sp}), nil
}

// lowerLoad implements "`x` as an rvalue → Load(x)" (spec.md §4.1). No
// Copy is emitted after the Load. The lifetime pass treats the binding as
// moved when the loaded value feeds a let (through Own) or a Return; a
// Load that is only an operand of +, == or != does not move it (end-to-end
// scenario 2 in spec.md §8: re-loading a binding after it has fed a Store
// is the canonical use-after-move case). This mirrors
// original_source's mir::generate_load, which also emits a bare Load with
// no accompanying Copy.
func (l *Lowerer) lowerLoad(id *ast.Ident) (int, error) {
	b, ok := l.lookup(id.Name)
	if !ok {
		return -1, fmt.Errorf("mir: %s: undeclared binding %q", id.Sp, id.Name)
	}
	return l.emit(Instruction{Op: OpLoad, Name: id.Name, Type: b.typ, Span: id.Sp}), nil
}

// lowerReference implements "`&e` → lower e to a binding reference; emit
// Reference(that_binding); fold `&&x`" — the parser already folds `&&x`
// into a single RefExpr, so this only needs to handle the single layer
// that survives parsing.
func (l *Lowerer) lowerReference(r *ast.RefExpr) (int, error) {
	id, ok := r.Inner.(*ast.Ident)
	if !ok {
		v, err := l.lowerExpr(r.Inner)
		if err != nil {
			return -1, err
		}
		return l.emit(Instruction{Op: OpReference, Left: v, Type: types.RefOf(l.fn.Instrs[v].Type), Span: r.Sp}), nil
	}
	b, ok := l.lookup(id.Name)
	if !ok {
		return -1, fmt.Errorf("mir: %s: undeclared binding %q", id.Sp, id.Name)
	}
	return l.emit(Instruction{Op: OpReference, Name: id.Name, Type: types.RefOf(b.typ), Span: r.Sp}), nil
}

// lowerDeref implements "`*e` → lower e to reference value r; emit
// Deref(r); fails with E018 if e's type is not a reference".
func (l *Lowerer) lowerDeref(d *ast.DerefExpr) (int, error) {
	v, err := l.lowerExpr(d.Inner)
	if err != nil {
		return -1, err
	}
	innerType := l.fn.Instrs[v].Type
	if innerType.Kind != types.Ref {
		e := diag.New(diag.ErrDerefOfNonReference, fmt.Sprintf("cannot dereference non-reference type %s", innerType), d.Sp)
		l.sink.Report(e)
		return -1, e
	}
	return l.emit(Instruction{Op: OpDeref, Left: v, Type: *innerType.RefTo, Span: d.Sp}), nil
}

// lowerBinary implements `a + b` / `a == b` / `a != b`: lower operands
// left-to-right and emit the matching opcode.
func (l *Lowerer) lowerBinary(b *ast.BinaryExpr) (int, error) {
	left, err := l.lowerExpr(b.Left)
	if err != nil {
		return -1, err
	}
	right, err := l.lowerExpr(b.Right)
	if err != nil {
		return -1, err
	}
	leftType := l.fn.Instrs[left].Type

	var op Op
	var resultType types.Type
	switch b.Op {
	case ast.OpAdd:
		op, resultType = OpAdd, leftType
	case ast.OpEq:
		op, resultType = OpEq, types.TBool
	case ast.OpNe:
		op, resultType = OpNe, types.TBool
	}
	return l.emit(Instruction{Op: op, Left: left, Right: right, Type: resultType, Span: b.Sp}), nil
}

// lowerEnumVariant implements "`Enum::Variant` → the corresponding
// integer literal of the enum's backing width".
func (l *Lowerer) lowerEnumVariant(ev *ast.EnumVariant) (int, error) {
	def, ok := l.universe.LookupEnum(ev.Enum)
	if !ok {
		return -1, fmt.Errorf("mir: %s: undeclared enum %q", ev.Sp, ev.Enum)
	}
	disc, ok := def.Discriminant(ev.Variant)
	if !ok {
		return -1, fmt.Errorf("mir: %s: enum %q has no variant %q", ev.Sp, ev.Enum, ev.Variant)
	}
	return l.emit(Instruction{Op: OpIntLit, Int: disc, Type: types.EnumOf(ev.Enum), Span: ev.Sp}), nil
}

// lowerIf implements the `if/elif/else` lowering rule of spec.md §4.1: a
// fresh block per arm, a phi at the join when the expression produces a
// value, and E024 when a value-producing if lacks an else arm.
func (l *Lowerer) lowerIf(ifx *ast.IfExpr) (int, error) {
	var phiEdges []PhiEdge
	var phiType *types.Type
	anyValue := false

	lowerArm := func(body *ast.Block) (int, error) {
		l.pushScope()
		blockStart := len(l.fn.Instrs)
		v, err := l.lowerBlockBody(body)
		l.fn.Blocks = append(l.fn.Blocks, Block{Start: blockStart, End: len(l.fn.Instrs)})
		l.popScope()
		return v, err
	}

	for _, arm := range ifx.Arms {
		if _, err := l.lowerExpr(arm.Cond); err != nil {
			return -1, err
		}
		v, err := lowerArm(arm.Body)
		if err != nil {
			return -1, err
		}
		predBlock := len(l.fn.Blocks) - 1
		if v >= 0 {
			anyValue = true
			t := l.fn.Instrs[v].Type
			phiType = &t
			phiEdges = append(phiEdges, PhiEdge{Pred: predBlock, Value: v})
		}
	}

	if anyValue && ifx.Else == nil {
		e := diag.New(diag.ErrMissingElse, "conditional expression used as a value is missing an else arm", ifx.Sp)
		l.sink.Report(e)
		return -1, e
	}

	if ifx.Else != nil {
		v, err := lowerArm(ifx.Else)
		if err != nil {
			return -1, err
		}
		if v >= 0 {
			anyValue = true
			t := l.fn.Instrs[v].Type
			phiType = &t
			phiEdges = append(phiEdges, PhiEdge{Pred: len(l.fn.Blocks) - 1, Value: v})
		}
	}

	if !anyValue {
		return -1, nil
	}
	return l.emit(Instruction{Op: OpPhi, Phis: phiEdges, Type: *phiType, Span: ifx.Sp}), nil
}
