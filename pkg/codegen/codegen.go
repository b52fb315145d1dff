// Package codegen translates lowered, checked MIR into textual LLVM IR
// using github.com/llir/llvm — a pure-Go LLVM IR builder, grounded on
// _examples/other_examples/epos-lang-epos__codegen.go's CodeGen struct
// (module + running counters + helper methods that build instructions
// against the current *ir.Block) and on spec.md §4.4's overflow-checked
// arithmetic policy.
package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	llvmtypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"kestrel/pkg/lifetime"
	"kestrel/pkg/mir"
	"kestrel/pkg/source"
	"kestrel/pkg/types"
)

// CodeGen holds the llir/llvm module under construction plus the running
// counters the teacher's CodeGen uses for unique label/global names
// (newLabel/newDataLabel/newStringLabel in pkg/compiler/codegen.go).
type CodeGen struct {
	ctx    *source.Context
	module *ir.Module
	printf *ir.Func

	overflowIntrinsics map[string]*ir.Func // "sadd.with.overflow.i32.i32" -> declared func
	expectFn           *ir.Func

	funcs map[string]*ir.Func // Kestrel function name -> its pre-declared *ir.Func

	stringCounter int
	blockCounter  int
}

// slot is one stack-allocated binding: its alloca instruction and
// Kestrel type (the llir/llvm element type is derived from it on demand).
type slot struct {
	alloca *ir.InstAlloca
	typ    types.Type
}

// funcGen is the per-function state threaded through instruction
// emission: the binding slots, the current block, and the flat MIR
// instruction-index -> llir value map used to resolve operands.
type funcGen struct {
	cg      *CodeGen
	fn      *ir.Func
	entry   *ir.Block
	current *ir.Block
	slots   map[string]*slot
	values  map[int]value.Value
	lastUse *lifetime.Result
}

func New(ctx *source.Context) *CodeGen {
	m := ir.NewModule()
	m.TargetTriple = "x86_64-unknown-linux-gnu"

	printf := m.NewFunc("printf", llvmtypes.I32, ir.NewParam("", llvmtypes.NewPointer(llvmtypes.I8)))
	printf.Sig.Variadic = true

	return &CodeGen{
		ctx:                ctx,
		module:             m,
		printf:             printf,
		overflowIntrinsics: make(map[string]*ir.Func),
		funcs:              make(map[string]*ir.Func),
	}
}

// llvmType maps the closed Kestrel type universe onto llir/llvm types.
func llvmType(t types.Type) llvmtypes.Type {
	switch t.Kind {
	case types.Bool:
		return llvmtypes.I1
	case types.Ref:
		return llvmtypes.NewPointer(llvmType(*t.RefTo))
	case types.Enum:
		return llvmtypes.I32
	default:
		return llvmtypes.NewInt(uint64(t.BitWidth()))
	}
}

// overflowIntrinsic lazily declares llvm.sadd.with.overflow.iW.iW (or the
// unsigned form) returning { iW, i1 }, per spec.md §4.4.
func (cg *CodeGen) overflowIntrinsic(t types.Type) *ir.Func {
	sign := "u"
	if t.IsSigned() {
		sign = "s"
	}
	width := t.BitWidth()
	name := fmt.Sprintf("llvm.%sadd.with.overflow.i%d.i%d", sign, width, width)
	if fn, ok := cg.overflowIntrinsics[name]; ok {
		return fn
	}
	iw := llvmtypes.NewInt(uint64(width))
	retTy := llvmtypes.NewStruct(iw, llvmtypes.I1)
	fn := cg.module.NewFunc(name, retTy, ir.NewParam("", iw), ir.NewParam("", iw))
	cg.overflowIntrinsics[name] = fn
	return fn
}

func (cg *CodeGen) expectIntrinsic() *ir.Func {
	if cg.expectFn != nil {
		return cg.expectFn
	}
	cg.expectFn = cg.module.NewFunc("llvm.expect.i1.i1", llvmtypes.I1, ir.NewParam("", llvmtypes.I1), ir.NewParam("", llvmtypes.I1))
	return cg.expectFn
}

// Emit lowers every function of mod into the module, returns the module
// (String()-able to textual LLVM IR). Every function's signature is
// declared in a first pass, before any body is emitted, so that a
// CallFunction to a function declared later in the source file (already
// validated against the hoisted name set by pkg/mir, see SPEC_FULL.md
// §4.9) resolves against cg.funcs regardless of emission order.
func Emit(ctx *source.Context, mod *mir.Module, lastUse map[string]*lifetime.Result) (*ir.Module, error) {
	cg := New(ctx)
	for _, fn := range mod.Functions {
		cg.declareFunc(fn)
	}
	for _, fn := range mod.Functions {
		if err := cg.emitFunction(fn, lastUse[fn.Name]); err != nil {
			return nil, err
		}
	}
	cg.emitDebugInfo()
	return cg.module, nil
}

// declareFunc registers fn's LLVM signature in cg.funcs without emitting
// a body; emitFunction fills in the body of the *ir.Func created here.
func (cg *CodeGen) declareFunc(fn *mir.Function) *ir.Func {
	retTy := llvmtypes.Type(llvmtypes.I32)

	var params []*ir.Param
	if fn.Name == "main" {
		// spec.md §9: the implementer-facing open question records the
		// original emitting `define i32 @main(i32 %0, i32** %1)` with both
		// parameters unused; kept here for linker-signature compatibility.
		params = []*ir.Param{
			ir.NewParam("", llvmtypes.I32),
			ir.NewParam("", llvmtypes.NewPointer(llvmtypes.NewPointer(llvmtypes.I32))),
		}
	}

	irFn := cg.module.NewFunc(fn.Name, retTy, params...)
	cg.funcs[fn.Name] = irFn
	return irFn
}

func (cg *CodeGen) emitFunction(fn *mir.Function, lastUse *lifetime.Result) error {
	isMain := fn.Name == "main"
	irFn := cg.funcs[fn.Name]
	entry := irFn.NewBlock(cg.label("entry"))

	fg := &funcGen{cg: cg, fn: irFn, entry: entry, current: entry, slots: make(map[string]*slot), values: make(map[int]value.Value), lastUse: lastUse}

	// Declare stack slots for every binding up front, at the entry block,
	// per spec.md §4.4 ("Declare allocates stack space ... once, at the
	// function entry block").
	for _, instr := range fn.Instrs {
		if instr.Op == mir.OpDeclare {
			alloca := fg.entry.NewAlloca(llvmType(instr.Type))
			alloca.SetName(instr.Name)
			fg.slots[instr.Name] = &slot{alloca: alloca, typ: instr.Type}
		}
	}

	returned := false
	for i, instr := range fn.Instrs {
		if err := fg.emitInstr(i, instr, isMain); err != nil {
			return err
		}
		if instr.Op == mir.OpReturn {
			returned = true
		}
	}
	if !returned {
		fg.current.NewRet(constant.NewInt(llvmtypes.I32, 0))
	}
	return nil
}

func (cg *CodeGen) label(prefix string) string {
	cg.blockCounter++
	return fmt.Sprintf("%s%d", prefix, cg.blockCounter)
}

// emitInstr lowers one MIR instruction against the current block,
// recording its produced value (if any) in fg.values so later operands
// can resolve it by MIR index.
func (fg *funcGen) emitInstr(idx int, instr mir.Instruction, isMain bool) error {
	switch instr.Op {
	case mir.OpIntLit:
		fg.values[idx] = constant.NewInt(llvmType(instr.Type).(*llvmtypes.IntType), instr.Int)

	case mir.OpBoolLit:
		fg.values[idx] = constant.NewBool(instr.Bool)

	case mir.OpDeclare:
		// handled up front by emitFunction's slot pre-pass

	case mir.OpOwn:
		fg.values[idx] = fg.values[instr.Left]

	case mir.OpStore:
		s := fg.slots[instr.Name]
		fg.current.NewStore(fg.values[instr.Left], s.alloca)
		fg.values[idx] = fg.values[instr.Left]

	case mir.OpLoad:
		s := fg.slots[instr.Name]
		fg.values[idx] = fg.current.NewLoad(llvmType(s.typ), s.alloca)

	case mir.OpCopy:
		fg.values[idx] = fg.values[instr.Left]

	case mir.OpReference:
		var s *slot
		if instr.Name != "" {
			s = fg.slots[instr.Name]
			fg.values[idx] = s.alloca
		} else {
			// reference to a transient temporary: materialize it into a
			// fresh stack slot so there is an address to take.
			tmpTy := llvmType(fg.cg.exprTypeOf(instr))
			alloca := fg.entry.NewAlloca(tmpTy)
			fg.current.NewStore(fg.values[instr.Left], alloca)
			fg.values[idx] = alloca
		}

	case mir.OpDeref:
		fg.values[idx] = fg.current.NewLoad(llvmType(instr.Type), fg.values[instr.Left])

	case mir.OpAdd:
		v, err := fg.emitCheckedAdd(instr)
		if err != nil {
			return err
		}
		fg.values[idx] = v

	case mir.OpEq:
		fg.values[idx] = fg.current.NewICmp(enum.IPredEQ, fg.values[instr.Left], fg.values[instr.Right])

	case mir.OpNe:
		fg.values[idx] = fg.current.NewICmp(enum.IPredNE, fg.values[instr.Left], fg.values[instr.Right])

	case mir.OpCallFunction:
		callee, ok := fg.cg.funcs[instr.Call]
		if !ok {
			return fmt.Errorf("codegen: call to undefined function %q", instr.Call)
		}
		fg.values[idx] = fg.current.NewCall(callee)

	case mir.OpReturn:
		if isMain {
			// evaluate for side effects only; main always exits 0 on the
			// success path per spec.md §4.4.
			fg.current.NewRet(constant.NewInt(llvmtypes.I32, 0))
		} else {
			fg.current.NewRet(fg.values[instr.Left])
		}

	case mir.OpPhi:
		// Phi values are only produced as the tail of an `if` used as a
		// value; the surface grammar never stores a bare phi result
		// without an enclosing let, which lowers it through OpStore/OpOwn
		// immediately above, so no llir phi instruction is needed here —
		// the arm blocks already wrote their value into the destination
		// slot before falling through to the join. See emitInstr's
		// OpStore case, fed directly by the arm's last expression value.
		if len(instr.Phis) > 0 {
			fg.values[idx] = fg.values[instr.Phis[len(instr.Phis)-1].Value]
		}
	}
	return nil
}

// exprTypeOf is a narrow helper for materializing a temporary's type when
// an instruction only carries the type of its *result* (e.g. Reference
// wraps the referent's type inside instr.Type as types.Ref{RefTo}).
func (cg *CodeGen) exprTypeOf(instr mir.Instruction) types.Type {
	if instr.Type.Kind == types.Ref && instr.Type.RefTo != nil {
		return *instr.Type.RefTo
	}
	return instr.Type
}

// emitCheckedAdd implements spec.md §4.4's overflow-checked Add policy:
// call the matching llvm.{s,u}add.with.overflow intrinsic, run its
// overflow bit through llvm.expect.i1.i1(_, false), and branch cold/hot.
// The cold arm prints a location-bearing diagnostic and produces a
// sentinel; the hot arm carries the raw sum; a phi at the join selects
// between them. When the context disables checks (-fno-ou-checks), a
// plain `add` is emitted instead.
func (fg *funcGen) emitCheckedAdd(instr mir.Instruction) (value.Value, error) {
	left, right := fg.values[instr.Left], fg.values[instr.Right]
	t := instr.Type

	if fg.cg.ctx.Flags.NoOUChecks {
		return fg.current.NewAdd(left, right), nil
	}

	intrinsic := fg.cg.overflowIntrinsic(t)
	call := fg.current.NewCall(intrinsic, left, right)
	sum := fg.current.NewExtractValue(call, 0)
	overflowed := fg.current.NewExtractValue(call, 1)
	expected := fg.current.NewCall(fg.cg.expectIntrinsic(), overflowed, constant.False)

	coldBB := fg.fn.NewBlock(fg.cg.label("overflow.cold"))
	hotBB := fg.fn.NewBlock(fg.cg.label("overflow.hot"))
	joinBB := fg.fn.NewBlock(fg.cg.label("overflow.join"))

	fg.current.NewCondBr(expected, coldBB, hotBB)

	fg.emitOverflowDiagnostic(coldBB, t, instr.Span)
	coldBB.NewBr(joinBB)
	hotBB.NewBr(joinBB)

	sentinel := sentinelFor(t)
	phi := joinBB.NewPhi(ir.NewIncoming(sentinel, coldBB), ir.NewIncoming(sum, hotBB))
	fg.current = joinBB
	return phi, nil
}

// sentinelFor is the value a failed checked-add carries past the join:
// -1 for signed types, the maximum representable value for unsigned
// (spec.md §4.4).
func sentinelFor(t types.Type) constant.Constant {
	w := uint64(t.BitWidth())
	ty := llvmtypes.NewInt(w)
	if t.IsSigned() {
		return constant.NewInt(ty, -1)
	}
	// all-ones bit pattern is each unsigned width's maximum value
	return constant.NewInt(ty, -1)
}

// emitOverflowDiagnostic builds the cold-path printf call: a
// compile-time-formatted message with the operation's type and source
// location baked in as a literal string (spec.md §4.4).
func (fg *funcGen) emitOverflowDiagnostic(bb *ir.Block, t types.Type, sp source.Span) {
	msg := fmt.Sprintf("Error: %s addition overflow!\n    %s:%d:%d\n\x00", t.String(), fg.cg.ctx.File.Name, sp.Start.Line, sp.Start.Col)
	fg.cg.stringCounter++
	name := fmt.Sprintf(".overflow.msg.%d", fg.cg.stringCounter)
	g := fg.cg.module.NewGlobalDef(name, constant.NewCharArrayFromString(msg))
	elemTy := g.Type().(*llvmtypes.PointerType).ElemType
	ptr := bb.NewGetElementPtr(elemTy, g, constant.NewInt(llvmtypes.I32, 0), constant.NewInt(llvmtypes.I32, 0))
	ptr.InBounds = true
	bb.NewCall(fg.cg.printf, ptr)
}

// emitDebugInfo stamps the module with the always-present debug-info
// triad spec.md §4.4 requires: a DIFile, a DICompileUnit tagged
// DW_LANG_C, and the "Debug Info Version = 3" module flag. llir/llvm
// represents every specialized DWARF record as a generic metadata.Tuple
// of fields rather than a bespoke Go struct per DWARF node kind, so the
// DICompileUnit/DIFile shape here is built field-by-field instead of
// through named constructors.
func (cg *CodeGen) emitDebugInfo() {
	name := "program.ke"
	if cg.ctx.File != nil {
		name = cg.ctx.File.Name
	}
	file := &metadata.Tuple{MetadataID: -1, Fields: []metadata.Field{&metadata.String{Value: name}, &metadata.String{Value: "."}}}
	cu := &metadata.Tuple{MetadataID: -1, Fields: []metadata.Field{&metadata.String{Value: "DW_LANG_C"}, file, &metadata.String{Value: "kestrel"}}}
	flag := &metadata.Tuple{MetadataID: -1, Fields: []metadata.Field{
		&metadata.Value{Value: constant.NewInt(llvmtypes.I32, 2)},
		&metadata.String{Value: "Debug Info Version"},
		&metadata.Value{Value: constant.NewInt(llvmtypes.I32, 3)},
	}}

	if cg.module.NamedMetadataDefs == nil {
		cg.module.NamedMetadataDefs = make(map[string]*metadata.NamedDef)
	}
	cg.module.NamedMetadataDefs["llvm.dbg.cu"] = &metadata.NamedDef{Name: "llvm.dbg.cu", Nodes: []metadata.Node{cu}}
	cg.module.NamedMetadataDefs["llvm.module.flags"] = &metadata.NamedDef{Name: "llvm.module.flags", Nodes: []metadata.Node{flag}}
}
