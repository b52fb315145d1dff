// Package mirtext renders a mir.Module as the optional human-readable
// ".mir" dump of spec.md §6 ("format documented by opcode list in §3"),
// written via a strings.Builder and a line() helper, the same shape as
// the teacher's CodeGen.line in pkg/compiler/codegen.go.
package mirtext

import (
	"fmt"
	"strings"

	"kestrel/pkg/lifetime"
	"kestrel/pkg/mir"
)

// Writer accumulates the textual dump for every function of a module.
type Writer struct {
	out strings.Builder
}

func (w *Writer) line(format string, args ...any) {
	fmt.Fprintf(&w.out, format+"\n", args...)
}

// Render produces the full ".mir" text for mod. lastUse maps function
// name to its lifetime.Result so each binding's drop point can be
// annotated inline, matching spec.md §6's "drop annotations are stable
// text".
func Render(mod *mir.Module, lastUse map[string]*lifetime.Result) string {
	w := &Writer{}
	for _, fn := range mod.Functions {
		w.renderFunction(fn, lastUse[fn.Name])
	}
	return w.out.String()
}

func (w *Writer) renderFunction(fn *mir.Function, res *lifetime.Result) {
	w.line("fn %s {", fn.Name)
	// drops maps an instruction index to the bindings whose last use it is,
	// collected in declaration order so the text is stable across runs.
	drops := make(map[int][]string)
	if res != nil {
		for d, instr := range fn.Instrs {
			if last, ok := res.LastUse[d]; ok && instr.Op == mir.OpDeclare {
				drops[last] = append(drops[last], instr.Name)
			}
		}
	}
	for i, instr := range fn.Instrs {
		w.line("%4d: %s", i, formatInstr(i, instr))
		for _, name := range drops[i] {
			w.line("      drop %s", name)
		}
	}
	w.line("}")
	w.line("")
}

func formatInstr(idx int, instr mir.Instruction) string {
	switch instr.Op {
	case mir.OpIntLit:
		return fmt.Sprintf("%s %s = %d", instr.Op, instr.Type, instr.Int)
	case mir.OpBoolLit:
		return fmt.Sprintf("%s %s = %t", instr.Op, instr.Type, instr.Bool)
	case mir.OpDeclare:
		mut := ""
		if instr.Mut {
			mut = "mut "
		}
		return fmt.Sprintf("Declare %s%s: %s", mut, instr.Name, instr.Type)
	case mir.OpStore:
		return fmt.Sprintf("Store %s = %%%d", instr.Name, instr.Left)
	case mir.OpOwn:
		return fmt.Sprintf("Own %%%d", instr.Left)
	case mir.OpLoad:
		return fmt.Sprintf("Load %s", instr.Name)
	case mir.OpCopy:
		return fmt.Sprintf("Copy %%%d", instr.Left)
	case mir.OpReference:
		if instr.Name != "" {
			return fmt.Sprintf("Reference %s", instr.Name)
		}
		return fmt.Sprintf("Reference %%%d", instr.Left)
	case mir.OpDeref:
		return fmt.Sprintf("Deref %%%d", instr.Left)
	case mir.OpAdd, mir.OpEq, mir.OpNe:
		return fmt.Sprintf("%s %%%d, %%%d", instr.Op, instr.Left, instr.Right)
	case mir.OpReturn:
		return fmt.Sprintf("Return %%%d", instr.Left)
	case mir.OpCallFunction:
		return fmt.Sprintf("CallFunction %s", instr.Call)
	case mir.OpPhi:
		edges := make([]string, len(instr.Phis))
		for i, e := range instr.Phis {
			edges[i] = fmt.Sprintf("(bb%d, %%%d)", e.Pred, e.Value)
		}
		return fmt.Sprintf("Phi %s", strings.Join(edges, ", "))
	default:
		return instr.Op.String()
	}
}
