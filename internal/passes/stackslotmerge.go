package passes

import "banyan/internal/ssa"

// StackSlotMerge is a supplemented, non-default pass (grounded in
// original_source/passes/stack_slot_merge_pass.cpp): coalesce two
// entry-block allocas of the same type into one slot when neither is
// ever referenced in a block the other is also referenced in — a
// conservative proxy for "their live ranges never overlap" that never
// needs a full interval analysis, at the cost of missing some merges a
// fuller liveness pass would find.
func StackSlotMerge(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if stackSlotMergeFunc(fn) {
			changed = true
		}
	}
	return changed
}

func stackSlotMergeFunc(fn *ssa.Function) bool {
	allocas := entryAllocas(fn)
	merged := map[*ssa.Instruction]bool{}
	changed := false

	for i := 0; i < len(allocas); i++ {
		a := allocas[i]
		if merged[a] {
			continue
		}
		for j := i + 1; j < len(allocas); j++ {
			b := allocas[j]
			if merged[b] {
				continue
			}
			if !a.Operands[0].Type.Equals(b.Operands[0].Type) {
				continue
			}
			if blocksOverlap(fn, *a.Dest, *b.Dest) {
				continue
			}
			replaceRegInFunc(fn, *b.Dest, ssa.Reg(*a.Dest, ssa.TyAddr))
			merged[b] = true
			changed = true
		}
	}

	if changed {
		kept := fn.Entry.Instructions[:0:0]
		for _, inst := range fn.Entry.Instructions {
			if merged[inst] {
				continue
			}
			kept = append(kept, inst)
		}
		fn.Entry.Instructions = kept
	}
	return changed
}

func entryAllocas(fn *ssa.Function) []*ssa.Instruction {
	var out []*ssa.Instruction
	for _, inst := range fn.Entry.Instructions {
		if inst.Op == ssa.OpAlloca && inst.HasDest() {
			out = append(out, inst)
		}
	}
	return out
}

func blocksOverlap(fn *ssa.Function, a, b ssa.VReg) bool {
	blocksA := referencingBlocks(fn, a)
	blocksB := referencingBlocks(fn, b)
	for blk := range blocksA {
		if blocksB[blk] {
			return true
		}
	}
	return false
}

func referencingBlocks(fn *ssa.Function, reg ssa.VReg) map[*ssa.BasicBlock]bool {
	out := map[*ssa.BasicBlock]bool{}
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions {
			for _, op := range inst.Operands {
				if op.Kind == ssa.OpVReg && op.VReg == reg {
					out[blk] = true
				}
			}
		}
	}
	return out
}
