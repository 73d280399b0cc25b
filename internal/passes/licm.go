package passes

import "banyan/internal/ssa"

// LICM implements spec §4.4's loop-invariant-code-motion: hoist a pure
// instruction (isPure, pass_utils.go) out of a loop body into its
// preheader when every operand it reads is defined outside the loop.
// Only loops with a single entry edge get a preheader to hoist into;
// loops reached from more than one outside block are left alone rather
// than synthesize a new preheader block here.
func LICM(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if licmFunc(fn) {
			changed = true
		}
	}
	return changed
}

func licmFunc(fn *ssa.Function) bool {
	ssa.BuildCFG(fn)
	dom := ssa.BuildDominatorTree(fn)
	loops := ssa.FindLoops(fn, dom)

	changed := false
	for _, l := range loops {
		if len(l.Entries) != 1 {
			continue
		}
		preheader := l.Entries[0]
		if preheader.Terminator() == nil {
			continue
		}

		defsInside := regDefsIn(l.Body)
		for _, b := range l.Body {
			kept := b.Instructions[:0:0]
			for _, inst := range b.Instructions {
				if !inst.IsTerminator() && isPure(inst) && allOperandsDefinedOutside(inst, defsInside) {
					preheader.InsertBefore(len(preheader.Instructions)-1, inst)
					if inst.HasDest() {
						delete(defsInside, *inst.Dest)
					}
					changed = true
					continue
				}
				kept = append(kept, inst)
			}
			b.Instructions = kept
		}
	}
	return changed
}
