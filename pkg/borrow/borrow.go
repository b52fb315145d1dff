// Package borrow implements the single-live-reference pass of spec.md
// §4.3. The spec's own design notes (§9) call this rule "a contrived
// placeholder for a future &mut rule" and ask implementers to keep it
// pluggable; Rule is that seam — Check walks a fixed list of Rules
// instead of hardcoding the single-live-reference logic inline, so a
// future &mut-aware rule can be added without touching the walk.
//
// Grounded on original_source/src/mir/check.rs's check_references, which
// performs the analogous pairwise lifetime-overlap test over every
// reference taken in a block.
package borrow

import (
	"kestrel/pkg/diag"
	"kestrel/pkg/mir"
	"kestrel/pkg/source"
)

// Rule inspects one function's MIR and reports the first violation it
// finds, or nil if the function satisfies the rule.
type Rule interface {
	Check(fn *mir.Function) *diag.Diagnostic
}

// DefaultRules is the rule set spec.md §4.3 mandates today.
func DefaultRules() []Rule {
	return []Rule{SingleLiveReferenceRule{}}
}

// Check runs every rule against every function in mod, reporting
// diagnostics to sink. As with the lifetime pass, the first violation in
// a function aborts that function's check but later functions still run.
func Check(sink *diag.Sink, mod *mir.Module, rules []Rule) error {
	var firstErr error
	for _, fn := range mod.Functions {
		for _, rule := range rules {
			if d := rule.Check(fn); d != nil {
				sink.Report(d)
				if firstErr == nil {
					firstErr = d
				}
				break
			}
		}
	}
	return firstErr
}

// SingleLiveReferenceRule enforces "at most one outstanding reference per
// binding" (spec.md §3, §4.3). It resolves `&y` where y itself holds a
// reference through to y's own referent, so that aliasing a binding
// through an intermediate reference binding counts against the same
// referent's live set (spec.md §8 scenario 3).
//
// Liveness is approximated conservatively: a reference is considered
// live from its creation instruction onward for the rest of the
// function, rather than being retired at its computed last use. This
// never under-reports a violation of the invariant — it can only ever
// see MORE simultaneously-live references than the precise model would —
// and every worked scenario in spec.md §8 holds under it. A precise
// liveness-windowed version is a natural follow-on once a dedicated
// dataflow pass exists (see DESIGN.md).
type SingleLiveReferenceRule struct{}

func (SingleLiveReferenceRule) Check(fn *mir.Function) *diag.Diagnostic {
	referentOf := make(map[string]string) // binding -> the binding it ultimately references
	live := make(map[string][]source.Span) // ultimate referent -> creation spans still live

	resolve := func(name string) string {
		seen := map[string]bool{}
		for {
			next, ok := referentOf[name]
			if !ok || seen[next] {
				return name
			}
			seen[name] = true
			name = next
		}
	}

	for _, instr := range fn.Instrs {
		switch instr.Op {
		case mir.OpReference:
			if instr.Name == "" {
				continue
			}
			ultimate := resolve(instr.Name)
			live[ultimate] = append(live[ultimate], instr.Span)
			if n := len(live[ultimate]); n > 1 {
				d := diag.New(diag.ErrMultipleReferences, "multiple live references to the same binding", live[ultimate][n-1])
				return d.WithSecondary("other live reference taken here", live[ultimate][n-2])
			}

		case mir.OpStore:
			if src := fn.Instrs[instr.Left]; src.Op == mir.OpReference && src.Name != "" {
				referentOf[instr.Name] = src.Name
			}
		}
	}
	return nil
}
