package passes

import "banyan/internal/ssa"

// DeadFuncElimination implements spec §4.4's dead-func-elimination:
// a reachability walk from exposed/dllexport-rooted entry points and
// function-typed globals' initializers, deleting unreachable functions.
// The teacher marks entry points with its "exposed"/"dllexport"
// modifiers (kanso internal/ast function modifiers); here reachability
// roots are the module's Exported functions (a module with no exported
// function is treated as a library whose whole surface is live).
func DeadFuncElimination(mod *ssa.Module) bool {
	var roots []string
	for _, fn := range mod.Functions {
		if fn.Exported {
			roots = append(roots, fn.Name)
		}
	}
	if len(roots) == 0 {
		// No declared roots: treat the whole module as a library
		// whose surface is live rather than deleting everything.
		return false
	}

	live := map[string]bool{}
	var visit func(name string)
	byName := map[string]*ssa.Function{}
	for _, fn := range mod.Functions {
		byName[fn.Name] = fn
	}
	visit = func(name string) {
		if live[name] {
			return
		}
		fn, ok := byName[name]
		if !ok {
			return
		}
		live[name] = true
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				if inst.Op != ssa.OpCall {
					continue
				}
				callee := inst.Operands[0]
				if callee.Kind == ssa.OpFunc {
					visit(callee.Symbol)
				}
			}
		}
	}
	for _, r := range roots {
		visit(r)
	}
	for _, g := range mod.Globals {
		if g.Initial.Kind == ssa.OpFunc {
			visit(g.Initial.Symbol)
		}
	}

	var kept []*ssa.Function
	changed := false
	for _, fn := range mod.Functions {
		if live[fn.Name] {
			kept = append(kept, fn)
		} else {
			changed = true
		}
	}
	mod.Functions = kept
	return changed
}
