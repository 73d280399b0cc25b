package passes

import "banyan/internal/ssa"

// iterRegs calls fn for every virtual-register operand in operands,
// grounded in original_source/passes/pass_utils.cpp's PassUtils::iter_regs
// (used by the validator and several passes to walk operand lists
// uniformly without a type switch at every call site).
func iterRegs(operands []ssa.Operand, fn func(ssa.VReg)) {
	for _, op := range operands {
		if op.Kind == ssa.OpVReg {
			fn(op.VReg)
		}
	}
}

// replaceReg rewrites every use of oldReg in operands to newVal,
// in place.
func replaceReg(operands []ssa.Operand, oldReg ssa.VReg, newVal ssa.Operand) {
	for i, op := range operands {
		if op.Kind == ssa.OpVReg && op.VReg == oldReg {
			operands[i] = newVal
		}
	}
}

// replaceRegInFunc rewrites every use of oldReg to newVal across every
// instruction and branch-target argument list in fn.
func replaceRegInFunc(fn *ssa.Function, oldReg ssa.VReg, newVal ssa.Operand) {
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			replaceReg(inst.Operands, oldReg, newVal)
			for _, t := range inst.BranchTargets() {
				replaceReg(t.Args, oldReg, newVal)
			}
		}
	}
}

// isPure reports whether an instruction has no observable side effect
// beyond producing its result — the conservative "excluding
// loads/stores/calls/memberptrs" carve-out spec §4.4 applies to LICM,
// and the set CSE (a supplemented pass, see SPEC_FULL.md) may
// legally deduplicate.
func isPure(inst *ssa.Instruction) bool {
	switch inst.Op {
	case ssa.OpLoad, ssa.OpStore, ssa.OpCall, ssa.OpMemberPtr, ssa.OpAlloca, ssa.OpAsm, ssa.OpLoadArg, ssa.OpCopy:
		return false
	default:
		return true
	}
}

// allOperandsDefinedOutside reports whether every register operand of
// inst is defined outside the given set of blocks — the condition LICM
// hoists on (spec §4.4).
func allOperandsDefinedOutside(inst *ssa.Instruction, defsInside map[ssa.VReg]bool) bool {
	ok := true
	iterRegs(inst.Operands, func(r ssa.VReg) {
		if defsInside[r] {
			ok = false
		}
	})
	return ok
}

// regDefsIn collects every register defined by an instruction or block
// parameter within blocks.
func regDefsIn(blocks []*ssa.BasicBlock) map[ssa.VReg]bool {
	defs := map[ssa.VReg]bool{}
	for _, b := range blocks {
		for _, p := range b.Params {
			defs[p.Reg] = true
		}
		for _, inst := range b.Instructions {
			if inst.HasDest() {
				defs[*inst.Dest] = true
			}
		}
	}
	return defs
}

// countUses returns, for every register defined anywhere in fn, how
// many times it is used as an operand (including branch-target
// arguments) — dead-code cleanup within a few passes keys off this.
func countUses(fn *ssa.Function) map[ssa.VReg]int {
	uses := map[ssa.VReg]int{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			iterRegs(inst.Operands, func(r ssa.VReg) { uses[r]++ })
			for _, t := range inst.BranchTargets() {
				iterRegs(t.Args, func(r ssa.VReg) { uses[r]++ })
			}
		}
	}
	return uses
}

// allocaInEntry inserts a fresh alloca of t into entry just before its
// terminator, rather than appending after it — entry is always
// already terminated by the time passes run, so a plain Emit would
// land an instruction after the block's terminator.
func allocaInEntry(entry *ssa.BasicBlock, t ssa.Type) ssa.VReg {
	r := entry.Func.NewReg()
	inst := &ssa.Instruction{Op: ssa.OpAlloca, Dest: &r, DestType: ssa.TyAddr, Operands: []ssa.Operand{ssa.TypeOperand(t)}, Block: entry}
	idx := len(entry.Instructions)
	if entry.Terminator() != nil {
		idx--
	}
	entry.InsertBefore(idx, inst)
	return r
}
