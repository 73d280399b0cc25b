package passes

import "banyan/internal/ssa"

// BranchElimination implements spec §4.4's branch-elimination: when a
// cjmp targets two jump-only blocks that both jump to the same join
// block and differ only in one argument, collapse the diamond to a
// `select` computing that one argument plus a direct jump — replacing
// a real branch with straight-line code.
func BranchElimination(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if branchElimFunc(fn) {
			changed = true
		}
	}
	return changed
}

func branchElimFunc(fn *ssa.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		term := b.Terminator()
		if term == nil || term.Op != ssa.OpCJmp {
			continue
		}
		targets := term.BranchTargets()
		trueT, falseT := targets[0], targets[1]
		if !isJumpOnly(trueT.Block) || !isJumpOnly(falseT.Block) {
			continue
		}

		trueJoin := trueT.Block.Instructions[0].Operands[0].Target
		falseJoin := falseT.Block.Instructions[0].Operands[0].Target
		if trueJoin.Block != falseJoin.Block || len(trueJoin.Args) != len(falseJoin.Args) {
			continue
		}

		diffIdx := -1
		mismatch := false
		for i := range trueJoin.Args {
			if operandsEqual(trueJoin.Args[i], falseJoin.Args[i]) {
				continue
			}
			if diffIdx != -1 {
				mismatch = true
				break
			}
			diffIdx = i
		}
		if mismatch || diffIdx < 0 {
			continue
		}

		lhs, cmp, rhs := term.Operands[0], term.Operands[1].Cmp, term.Operands[2]
		trueVal, falseVal := trueJoin.Args[diffIdx], falseJoin.Args[diffIdx]
		resultType := trueVal.Type

		selReg := fn.NewReg()
		selInst := &ssa.Instruction{
			Op: ssa.OpSelect, Dest: &selReg, DestType: resultType, Block: b,
			Operands: []ssa.Operand{lhs, ssa.CmpOperand(cmp), rhs, trueVal, falseVal},
		}

		newArgs := append([]ssa.Operand{}, trueJoin.Args...)
		newArgs[diffIdx] = ssa.Reg(selReg, resultType)
		jmpInst := &ssa.Instruction{
			Op: ssa.OpJmp, Block: b,
			Operands: []ssa.Operand{ssa.BranchOperand(&ssa.BranchTarget{Block: trueJoin.Block, Args: newArgs})},
		}

		b.Instructions[len(b.Instructions)-1] = selInst
		b.Instructions = append(b.Instructions, jmpInst)
		changed = true
	}
	return changed
}

func operandsEqual(a, b ssa.Operand) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ssa.OpVReg:
		return a.VReg == b.VReg
	case ssa.OpIntImm:
		return a.IntImm != nil && b.IntImm != nil && a.IntImm.Cmp(b.IntImm) == 0
	case ssa.OpFloatImm:
		return a.FloatImm == b.FloatImm
	case ssa.OpGlobal, ssa.OpFunc, ssa.OpExternFunc, ssa.OpExternGlobal:
		return a.Symbol == b.Symbol
	default:
		return false
	}
}
