package passes

import "banyan/internal/ssa"

// ControlFlowOpt implements spec §4.4's control-flow-opt: merge
// single-predecessor blocks into predecessors (substituting
// block-param uses with the corresponding branch arguments), splice
// trivial jump-only blocks through, and delete unreachable blocks. The
// pipeline runs this pass up to four times to reach a fixed point
// (spec §4.4), since each of the three rewrites can expose another.
func ControlFlowOpt(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if controlFlowOptFunc(fn) {
			changed = true
		}
	}
	return changed
}

func controlFlowOptFunc(fn *ssa.Function) bool {
	ssa.BuildCFG(fn)
	changed := false
	changed = deleteUnreachable(fn) || changed
	changed = mergeSinglePredBlocks(fn) || changed
	changed = spliceJumpOnlyBlocks(fn) || changed
	return changed
}

func deleteUnreachable(fn *ssa.Function) bool {
	ssa.BuildCFG(fn)
	reachable := map[*ssa.BasicBlock]bool{}
	for _, b := range ssa.ReversePostorder(fn) {
		reachable[b] = true
	}
	changed := false
	kept := fn.Blocks[:0:0]
	for _, b := range fn.Blocks {
		if reachable[b] || b == fn.Entry {
			kept = append(kept, b)
		} else {
			changed = true
		}
	}
	fn.Blocks = kept
	return changed
}

// mergeSinglePredBlocks folds a block with exactly one predecessor,
// that predecessor ending in an unconditional jmp to it, into the
// predecessor. Block-parameter uses are substituted with the jmp's
// branch-target arguments (spec §4.4).
func mergeSinglePredBlocks(fn *ssa.Function) bool {
	ssa.BuildCFG(fn)
	changed := false
	for {
		merged := false
		for _, b := range fn.Blocks {
			if b == fn.Entry || len(b.Predecessors) != 1 {
				continue
			}
			pred := b.Predecessors[0]
			term := pred.Terminator()
			if term == nil || term.Op != ssa.OpJmp {
				continue
			}
			target := term.Operands[0].Target
			if target.Block != b {
				continue
			}
			for i, p := range b.Params {
				replaceRegInFunc(fn, p.Reg, target.Args[i])
			}
			pred.Instructions = pred.Instructions[:len(pred.Instructions)-1]
			pred.Instructions = append(pred.Instructions, b.Instructions...)
			for _, inst := range b.Instructions {
				inst.Block = pred
			}
			fn.RemoveBlock(b)
			merged = true
			changed = true
			break
		}
		if !merged {
			break
		}
		ssa.BuildCFG(fn)
	}
	return changed
}

// spliceJumpOnlyBlocks retargets any branch that points at a block
// containing only an unconditional jmp straight to that jmp's target,
// collapsing chains of empty jump-only blocks (spec §4.4).
func spliceJumpOnlyBlocks(fn *ssa.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, t := range term.BranchTargets() {
			for isJumpOnly(t.Block) && t.Block != b {
				inner := t.Block.Instructions[0]
				innerTarget := inner.Operands[0].Target
				if len(innerTarget.Block.Params) != 0 && !argsReferenceOnlyParams(innerTarget.Args, t.Block) {
					break
				}
				t.Block = innerTarget.Block
				t.Args = innerTarget.Args
				changed = true
			}
		}
	}
	return changed
}

func isJumpOnly(b *ssa.BasicBlock) bool {
	return len(b.Params) == 0 && len(b.Instructions) == 1 && b.Instructions[0].Op == ssa.OpJmp
}

// argsReferenceOnlyParams is a conservative guard: splicing through a
// jump-only block whose single jmp forwards its own block parameters
// unchanged is always safe; anything else is left alone rather than
// risk rewriting an argument that isn't a pure forward.
func argsReferenceOnlyParams(args []ssa.Operand, from *ssa.BasicBlock) bool {
	if len(args) != len(from.Params) {
		return false
	}
	for i, a := range args {
		if a.Kind != ssa.OpVReg || a.VReg != from.Params[i].Reg {
			return false
		}
	}
	return true
}
