package passes

import "banyan/internal/ssa"

// HeapToStack implements spec §4.4's heap-to-stack row: when a malloc
// call with an immediate size has its returned pointer consumed only
// up to a paired free in the same block, rewrite the allocation as an
// entry-block alloca of a fixed-size byte array and delete both calls.
func HeapToStack(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if heapToStackFunc(fn) {
			changed = true
		}
	}
	return changed
}

func heapToStackFunc(fn *ssa.Function) bool {
	changed := false
	for {
		rewritten := false
		for _, b := range fn.Blocks {
			for i, inst := range b.Instructions {
				if !isRuntimeCall(inst, "malloc") || !inst.HasDest() {
					continue
				}
				size, ok := constSize(inst)
				if !ok {
					continue
				}
				ptr := *inst.Dest
				freeIdx := findPairedFree(b, i, ptr)
				if freeIdx < 0 || escapesBetween(b, i, freeIdx, ptr) {
					continue
				}
				promoteMallocToAlloca(fn, b, i, freeIdx, size, ptr)
				rewritten = true
				changed = true
				break
			}
			if rewritten {
				break
			}
		}
		if !rewritten {
			break
		}
	}
	return changed
}

func isRuntimeCall(inst *ssa.Instruction, name string) bool {
	if inst.Op != ssa.OpCall {
		return false
	}
	callee := inst.Operands[0]
	return callee.Kind == ssa.OpExternFunc && callee.Symbol == name
}

func constSize(inst *ssa.Instruction) (int, bool) {
	args := inst.Operands[1:]
	if len(args) != 1 || args[0].Kind != ssa.OpIntImm || args[0].IntImm == nil {
		return 0, false
	}
	return int(args[0].IntImm.Int64()), true
}

func findPairedFree(b *ssa.BasicBlock, mallocIdx int, ptr ssa.VReg) int {
	for i := mallocIdx + 1; i < len(b.Instructions); i++ {
		inst := b.Instructions[i]
		if !isRuntimeCall(inst, "free") {
			continue
		}
		args := inst.Operands[1:]
		if len(args) == 1 && args[0].Kind == ssa.OpVReg && args[0].VReg == ptr {
			return i
		}
	}
	return -1
}

// escapesBetween reports whether ptr is used in any way beside a
// load/store address operand or a memberptr/offsetptr base operand
// strictly between the malloc and its
// paired free — passed to another call, stored as a value, or
// returned — any of which would make the allocation outlive a simple
// stack slot.
func escapesBetween(b *ssa.BasicBlock, mallocIdx, freeIdx int, ptr ssa.VReg) bool {
	for i := mallocIdx + 1; i < freeIdx; i++ {
		inst := b.Instructions[i]
		for opIdx, op := range inst.Operands {
			if op.Kind != ssa.OpVReg || op.VReg != ptr {
				continue
			}
			switch inst.Op {
			case ssa.OpLoad, ssa.OpMemberPtr, ssa.OpOffsetPtr:
				if opIdx != 1 {
					return true
				}
			case ssa.OpStore:
				if opIdx != 1 {
					return true // stored as a value, not used as an address
				}
			default:
				return true
			}
		}
	}
	return false
}

func promoteMallocToAlloca(fn *ssa.Function, b *ssa.BasicBlock, mallocIdx, freeIdx, size int, ptr ssa.VReg) {
	allocaReg := allocaInEntry(fn.Entry, ssa.ArrayType(ssa.TyI8, size))
	replaceRegInFunc(fn, ptr, ssa.Reg(allocaReg, ssa.TyAddr))

	b.Instructions = append(b.Instructions[:freeIdx], b.Instructions[freeIdx+1:]...)
	b.Instructions = append(b.Instructions[:mallocIdx], b.Instructions[mallocIdx+1:]...)
}
