package passes

import "banyan/internal/ssa"

// maxInlineSize bounds how large a callee's single block may be before
// inlining.Stops runaway growth from chained inlining; a value this
// small only ever lets genuinely small leaf helpers through.
const maxInlineSize = 24

// Inlining implements spec §4.4's inlining pass: splice a single-block
// callee's body directly into the call site, in call-graph
// callee-before-caller order (ssa.CallGraph.PostorderCallees) so a
// callee is itself already as inlined as it is going to get before
// anything inlines it. Only single-block callees are spliced — a
// callee with internal branches would require splitting the caller's
// block and rewiring its successors, which this pass leaves to later
// pipeline runs rather than take on here. Direct self-recursion is
// never inlined (it would not terminate); call-graph cycles more than
// one hop long are already broken by PostorderCallees, so no further
// guard is needed here.
func Inlining(mod *ssa.Module) bool {
	cg := ssa.BuildCallGraph(mod)
	byName := map[string]*ssa.Function{}
	for _, fn := range mod.Functions {
		byName[fn.Name] = fn
	}

	changed := false
	for _, caller := range cg.PostorderCallees() {
		if inlineCallsIn(caller, byName) {
			changed = true
		}
	}
	return changed
}

func inlineCallsIn(caller *ssa.Function, byName map[string]*ssa.Function) bool {
	changed := false
	for _, b := range caller.Blocks {
		for {
			idx, callee := findInlinableCall(caller, b, byName)
			if idx < 0 {
				break
			}
			spliceCall(caller, b, idx, callee)
			changed = true
		}
	}
	return changed
}

func findInlinableCall(caller *ssa.Function, b *ssa.BasicBlock, byName map[string]*ssa.Function) (int, *ssa.Function) {
	for i, inst := range b.Instructions {
		if inst.Op != ssa.OpCall {
			continue
		}
		calleeOp := inst.Operands[0]
		if calleeOp.Kind != ssa.OpFunc {
			continue
		}
		callee, ok := byName[calleeOp.Symbol]
		if !ok || callee == caller {
			continue
		}
		if len(callee.Blocks) != 1 {
			continue
		}
		if len(callee.Entry.Instructions) > maxInlineSize {
			continue
		}
		return i, callee
	}
	return -1, nil
}

// spliceCall replaces the call at b.Instructions[idx] with a cloned,
// register-renamed copy of callee's single block, binding each loadarg
// directly to the matching call argument instead of emitting it.
func spliceCall(caller *ssa.Function, b *ssa.BasicBlock, idx int, callee *ssa.Function) {
	call := b.Instructions[idx]
	args := call.Operands[1:]

	mapping := map[ssa.VReg]ssa.Operand{}
	var body []*ssa.Instruction
	var retVal *ssa.Operand

	for _, inst := range callee.Entry.Instructions {
		if inst.Op == ssa.OpLoadArg {
			index := int(inst.Operands[1].IntImm.Int64())
			if inst.HasDest() && index < len(args) {
				mapping[*inst.Dest] = args[index]
			}
			continue
		}
		if inst.Op == ssa.OpRet {
			if len(inst.Operands) == 1 {
				v := substOperand(inst.Operands[0], mapping)
				retVal = &v
			}
			continue
		}
		clone := &ssa.Instruction{Op: inst.Op, DestType: inst.DestType, Flags: inst.Flags, Block: b}
		clone.Operands = make([]ssa.Operand, len(inst.Operands))
		for i, op := range inst.Operands {
			clone.Operands[i] = substOperand(op, mapping)
		}
		if inst.HasDest() {
			newReg := caller.NewReg()
			clone.Dest = &newReg
			mapping[*inst.Dest] = ssa.Reg(newReg, inst.DestType)
		}
		body = append(body, clone)
	}

	if call.HasDest() && retVal != nil {
		replaceRegInFunc(caller, *call.Dest, *retVal)
	}

	rewritten := make([]*ssa.Instruction, 0, len(b.Instructions)-1+len(body))
	rewritten = append(rewritten, b.Instructions[:idx]...)
	rewritten = append(rewritten, body...)
	rewritten = append(rewritten, b.Instructions[idx+1:]...)
	b.Instructions = rewritten
}
