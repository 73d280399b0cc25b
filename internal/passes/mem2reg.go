package passes

import "banyan/internal/ssa"

// Mem2Reg implements spec §4.4's stack-to-reg pass: promote
// register-sized, address-never-taken stack slots to SSA values using
// dominance frontiers to insert block parameters ("phi placement") and
// a dominator-tree renaming walk to rewrite loads/stores.
func Mem2Reg(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if mem2regFunc(fn) {
			changed = true
		}
	}
	return changed
}

func mem2regFunc(fn *ssa.Function) bool {
	changed := false
	for {
		dom := ssa.BuildDominatorTree(fn)
		candidate, candType := findPromotable(fn)
		if candidate == nil {
			break
		}
		promote(fn, dom, candidate, candType)
		changed = true
	}
	return changed
}

// findPromotable returns the next entry-block alloca eligible for
// promotion: register-sized and never used except as the address
// operand of a load or store.
func findPromotable(fn *ssa.Function) (*ssa.Instruction, ssa.Type) {
	for _, inst := range fn.Entry.Instructions {
		if inst.Op != ssa.OpAlloca || !inst.HasDest() {
			continue
		}
		t := inst.Operands[0].Type
		if t.Kind == ssa.Struct || t.Kind == ssa.Array {
			continue
		}
		if addressEscapes(fn, *inst.Dest) {
			continue
		}
		return inst, t
	}
	return nil, ssa.Type{}
}

func addressEscapes(fn *ssa.Function, addr ssa.VReg) bool {
	escapes := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			for i, op := range inst.Operands {
				if op.Kind != ssa.OpVReg || op.VReg != addr {
					continue
				}
				isAddrOperand := (inst.Op == ssa.OpLoad && i == 1) || (inst.Op == ssa.OpStore && i == 1)
				if !isAddrOperand {
					escapes = true
				}
			}
		}
	}
	return escapes
}

// promote rewrites every load/store of alloca's address into SSA form:
// inserts a block parameter at each block in the iterated dominance
// frontier of a defining block, then renames via a depth-first walk
// over successor edges carrying the current reaching definition.
func promote(fn *ssa.Function, dom *ssa.DominatorTree, allocaInst *ssa.Instruction, t ssa.Type) {
	addr := *allocaInst.Dest

	defBlocks := map[*ssa.BasicBlock]bool{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == ssa.OpStore && inst.Operands[1].Kind == ssa.OpVReg && inst.Operands[1].VReg == addr {
				defBlocks[b] = true
			}
		}
	}

	phiBlocks := map[*ssa.BasicBlock]bool{}
	worklist := make([]*ssa.BasicBlock, 0, len(defBlocks))
	for b := range defBlocks {
		worklist = append(worklist, b)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, f := range dom.Frontier(b) {
			if !phiBlocks[f] {
				phiBlocks[f] = true
				worklist = append(worklist, f)
			}
		}
	}

	phiParam := map[*ssa.BasicBlock]ssa.VReg{}
	for b := range phiBlocks {
		phiParam[b] = b.AddParam(t)
	}

	var undef ssa.Operand // zero-value sentinel: unreachable load before any store
	rename(fn.Entry, nil, addr, t, phiBlocks, phiParam, undef, map[*ssa.BasicBlock]bool{})

	for _, b := range fn.Blocks {
		kept := b.Instructions[:0:0]
		for _, inst := range b.Instructions {
			if inst == allocaInst {
				continue
			}
			if inst.Op == ssa.OpStore && inst.Operands[1].Kind == ssa.OpVReg && inst.Operands[1].VReg == addr {
				continue
			}
			if inst.Op == ssa.OpLoad && inst.Operands[1].Kind == ssa.OpVReg && inst.Operands[1].VReg == addr {
				continue
			}
			kept = append(kept, inst)
		}
		b.Instructions = kept
	}

	// Every branch into a phi block must supply the reaching
	// definition as an extra argument; rename() already appended it
	// while walking, via patchBranchArg below.
}

// rename performs the second half of SSA renaming as a depth-first walk
// over CFG successors: the reaching definition is the value addr holds
// on entry to b (the incoming phi param if b has one, else the value
// carried along the edge b was first reached by).
func rename(
	b *ssa.BasicBlock,
	pred *ssa.BasicBlock,
	addr ssa.VReg,
	t ssa.Type,
	phiBlocks map[*ssa.BasicBlock]bool,
	phiParam map[*ssa.BasicBlock]ssa.VReg,
	incoming ssa.Operand,
	visited map[*ssa.BasicBlock]bool,
) {
	if visited[b] {
		patchBranchArg(pred, b, phiParam, incoming)
		return
	}
	visited[b] = true

	reaching := incoming
	if r, ok := phiParam[b]; ok {
		reaching = ssa.Reg(r, t)
	}
	if pred != nil {
		patchBranchArg(pred, b, phiParam, incoming)
	}

	for _, inst := range b.Instructions {
		if inst.Op == ssa.OpLoad && inst.Operands[1].Kind == ssa.OpVReg && inst.Operands[1].VReg == addr && inst.HasDest() {
			replaceRegInFunc(b.Func, *inst.Dest, reaching)
		}
		if inst.Op == ssa.OpStore && inst.Operands[1].Kind == ssa.OpVReg && inst.Operands[1].VReg == addr {
			reaching = inst.Operands[0]
		}
	}

	for _, succ := range b.Successors {
		rename(succ, b, addr, t, phiBlocks, phiParam, reaching, visited)
	}
}

// patchBranchArg appends the reaching definition to every branch-target
// argument list from pred to b, when b expects a phi argument for this
// promotion. Skips blocks b has no phi parameter for.
func patchBranchArg(pred *ssa.BasicBlock, b *ssa.BasicBlock, phiParam map[*ssa.BasicBlock]ssa.VReg, val ssa.Operand) {
	if pred == nil {
		return
	}
	if _, ok := phiParam[b]; !ok {
		return
	}
	term := pred.Terminator()
	if term == nil {
		return
	}
	for _, target := range term.BranchTargets() {
		if target.Block == b {
			target.Args = append(target.Args, val)
		}
	}
}
