package passes

import "banyan/internal/ssa"

// LoopInversion implements spec §4.4's loop-inversion: turn a
// pre-tested ("while") loop into a post-tested ("do-while") one by
// cloning the header's condition test into the loop tail, so the back
// edge tests and branches directly instead of funnelling back through
// the header block on every iteration.
//
// Per the resolved Open Question recorded in SPEC_FULL.md, this only
// fires when the tail's sole successor is the header and the header has
// exactly one loop-exit edge; anything more irregular is left alone
// rather than risk miscompiling a loop this pass can't fully reason
// about.
func LoopInversion(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if loopInversionFunc(fn) {
			changed = true
		}
	}
	return changed
}

func loopInversionFunc(fn *ssa.Function) bool {
	changed := false
	for {
		ssa.BuildCFG(fn)
		dom := ssa.BuildDominatorTree(fn)
		loops := ssa.FindLoops(fn, dom)
		inverted := false
		for _, l := range loops {
			if invertLoop(l) {
				inverted = true
				changed = true
				break // the CFG moved; recompute loops before trying another
			}
		}
		if !inverted {
			break
		}
	}
	return changed
}

func invertLoop(l *ssa.Loop) bool {
	header, tail := l.Header, l.Tail
	if tail == header {
		return false // single-block loop: no header/tail split to invert
	}

	tailTerm := tail.Terminator()
	if tailTerm == nil || tailTerm.Op != ssa.OpJmp {
		return false
	}
	backEdge := tailTerm.Operands[0].Target
	if backEdge.Block != header {
		return false
	}

	headerTerm := header.Terminator()
	if headerTerm == nil || (headerTerm.Op != ssa.OpCJmp && headerTerm.Op != ssa.OpFCJmp) {
		return false
	}
	if len(l.Exits) != 1 || l.Exits[0].From != header {
		return false
	}

	targets := headerTerm.BranchTargets()
	inLoop0, inLoop1 := l.Contains(targets[0].Block), l.Contains(targets[1].Block)
	if inLoop0 == inLoop1 {
		return false // not a clean "one arm stays, one arm exits" shape
	}

	// mapping carries header's block-param registers and, as cloning
	// proceeds, header's own locals to the fresh registers their clones
	// get in tail. Values defined outside header need no entry: they
	// still dominate tail and remain valid operands there.
	mapping := map[ssa.VReg]ssa.Operand{}
	for i, p := range header.Params {
		mapping[p.Reg] = backEdge.Args[i]
	}

	var cloned []*ssa.Instruction
	for _, inst := range header.Instructions {
		if inst.IsTerminator() {
			continue
		}
		clone := &ssa.Instruction{Op: inst.Op, DestType: inst.DestType, Flags: inst.Flags, Block: tail}
		clone.Operands = make([]ssa.Operand, len(inst.Operands))
		for i, op := range inst.Operands {
			clone.Operands[i] = substOperand(op, mapping)
		}
		if inst.HasDest() {
			newReg := tail.Func.NewReg()
			clone.Dest = &newReg
			mapping[*inst.Dest] = ssa.Reg(newReg, inst.DestType)
		}
		cloned = append(cloned, clone)
	}

	clonedTrue := &ssa.BranchTarget{Block: targets[0].Block, Args: substArgs(targets[0].Args, mapping)}
	clonedFalse := &ssa.BranchTarget{Block: targets[1].Block, Args: substArgs(targets[1].Args, mapping)}
	lhs := substOperand(headerTerm.Operands[0], mapping)
	rhs := substOperand(headerTerm.Operands[2], mapping)
	newTerm := &ssa.Instruction{
		Op:    headerTerm.Op,
		Flags: headerTerm.Flags,
		Block: tail,
		Operands: []ssa.Operand{
			lhs, headerTerm.Operands[1], rhs,
			ssa.BranchOperand(clonedTrue), ssa.BranchOperand(clonedFalse),
		},
	}

	tail.Instructions = tail.Instructions[:len(tail.Instructions)-1] // drop the plain back-edge jmp
	tail.Instructions = append(tail.Instructions, cloned...)
	tail.Instructions = append(tail.Instructions, newTerm)
	return true
}

func substOperand(op ssa.Operand, mapping map[ssa.VReg]ssa.Operand) ssa.Operand {
	if op.Kind == ssa.OpVReg {
		if v, ok := mapping[op.VReg]; ok {
			return v
		}
	}
	return op
}

func substArgs(args []ssa.Operand, mapping map[ssa.VReg]ssa.Operand) []ssa.Operand {
	out := make([]ssa.Operand, len(args))
	for i, a := range args {
		out[i] = substOperand(a, mapping)
	}
	return out
}
