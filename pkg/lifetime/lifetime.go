// Package lifetime implements the ownership/lifetime pass of spec.md
// §4.2: a forward scan over each function's MIR that tracks last-use,
// rejects use-after-move (E007), rejects references escaping their
// referent's block (E023), and checks phi reference soundness.
//
// Grounded on original_source/src/mir/check.rs's calculate_last_use and
// generate_lifetimes, simplified to a single linear scan: arms of a
// conditional are checked in program order rather than as independent
// branches sharing a pre-if snapshot. This is sound for detecting every
// move that spec.md §8's worked scenarios require, at the cost of
// occasionally over-reporting a move made in only one of several sibling
// arms — a full per-branch dataflow merge is left as a follow-on (see
// DESIGN.md).
package lifetime

import (
	"fmt"

	"kestrel/pkg/diag"
	"kestrel/pkg/mir"
	"kestrel/pkg/source"
	"kestrel/pkg/types"
)

// state is a binding's ownership state machine (spec.md §4.2 step 2).
type state int

const (
	stateInit state = iota
	stateLive
	stateMoved
)

type bindingState struct {
	state      state
	declareIdx int
	lastUseIdx int
	moveSpan   source.Span
}

// Result carries the annotations the borrow pass and codegen consume:
// each binding's last-use index, keyed by the Declare instruction's index
// so that a binding shadowed in a nested scope does not collide with an
// outer one of the same name.
type Result struct {
	LastUse map[int]int // declareIdx -> last-use instruction index
}

// Check runs the lifetime pass over every function in mod, reporting
// diagnostics to sink. Per spec.md §5's ordering guarantee, the first
// violation found in a function aborts that function's pass but checking
// continues with the next function.
func Check(sink *diag.Sink, mod *mir.Module) (map[string]*Result, error) {
	results := make(map[string]*Result)
	var firstErr error
	for _, fn := range mod.Functions {
		res, err := checkFunction(sink, fn)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results[fn.Name] = res
	}
	return results, firstErr
}

func checkFunction(sink *diag.Sink, fn *mir.Function) (*Result, error) {
	bindings := make(map[string]*bindingState)
	valueOrigin := make(map[int]string) // instruction idx -> binding name it Loaded, if any
	lastUse := make(map[int]int)

	touch := func(name string, idx int) {
		if b, ok := bindings[name]; ok {
			b.lastUseIdx = idx
			lastUse[b.declareIdx] = idx
		}
	}

	for i, instr := range fn.Instrs {
		switch instr.Op {
		case mir.OpDeclare:
			bindings[instr.Name] = &bindingState{state: stateInit, declareIdx: i, lastUseIdx: i}
			lastUse[i] = i

		case mir.OpLoad:
			valueOrigin[i] = instr.Name
			b, ok := bindings[instr.Name]
			if !ok {
				return nil, fmt.Errorf("lifetime: %s: load of undeclared binding %q", instr.Span, instr.Name)
			}
			if b.state == stateMoved {
				d := diag.New(diag.ErrMovedBinding, fmt.Sprintf("use of moved binding %q", instr.Name), instr.Span)
				d = d.WithSecondary("value moved here", b.moveSpan)
				sink.Report(d)
				return nil, d
			}
			touch(instr.Name, i)

		case mir.OpOwn:
			if origin, ok := valueOrigin[instr.Left]; ok && origin != "" {
				if b, ok := bindings[origin]; ok {
					b.state = stateMoved
					b.moveSpan = fn.Instrs[instr.Left].Span
					touch(origin, i)
				}
			}

		case mir.OpStore:
			if b, ok := bindings[instr.Name]; ok {
				b.state = stateLive
				touch(instr.Name, i)
			}

		case mir.OpReference:
			if instr.Name != "" {
				touch(instr.Name, i)
			}

		case mir.OpReturn:
			if fn.Instrs[instr.Left].Type.Kind == types.Ref {
				d := diag.New(diag.ErrValueNotLiveEnough, "reference does not live long enough to be returned", instr.Span)
				sink.Report(d)
				return nil, d
			}
			if origin, ok := valueOrigin[instr.Left]; ok && origin != "" {
				if b, ok := bindings[origin]; ok {
					b.state = stateMoved
					touch(origin, i)
				}
			}

		case mir.OpPhi:
			if err := checkPhiSoundness(sink, fn, instr); err != nil {
				return nil, err
			}
		}
	}

	return &Result{LastUse: lastUse}, nil
}

// checkPhiSoundness implements spec.md §4.2 step 4: a reference-valued
// phi edge is unsound unless its referent is declared in a block
// dominating the join. Arms lower to their own Block (set by
// mir.Lowerer.lowerIf), so "declared inside the arm" is exactly
// "declareIdx falls within that arm's [Start, End)".
func checkPhiSoundness(sink *diag.Sink, fn *mir.Function, phi mir.Instruction) error {
	if phi.Type.Kind != types.Ref {
		return nil
	}
	for _, edge := range phi.Phis {
		v := fn.Instrs[edge.Value]
		if v.Op != mir.OpReference {
			continue
		}
		if edge.Pred < 0 || edge.Pred >= len(fn.Blocks) {
			continue
		}
		block := fn.Blocks[edge.Pred]

		escapes := v.Name == "" // reference to a transient temporary, not a named binding
		if !escapes {
			declareIdx := declareIndexOf(fn, v.Name, edge.Value)
			escapes = declareIdx >= block.Start && declareIdx < block.End
		}
		if escapes {
			d := diag.New(diag.ErrValueNotLiveEnough, "referent does not live long enough: it is declared inside the arm it is returned from", v.Span)
			sink.Report(d)
			return d
		}
	}
	return nil
}

// declareIndexOf finds the most recent Declare of name at or before
// upTo, scanning backward by instruction index. It does not consult
// scopes: a same-name Declare inside an earlier arm whose scope has
// already closed is matched as well.
func declareIndexOf(fn *mir.Function, name string, upTo int) int {
	for i := upTo; i >= 0; i-- {
		if fn.Instrs[i].Op == mir.OpDeclare && fn.Instrs[i].Name == name {
			return i
		}
	}
	return -1
}
