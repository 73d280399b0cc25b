package passes

import "banyan/internal/ssa"

// AddrTable implements spec §4.4's optional, non-default addr-table
// pass: replace every direct reference to an external function or
// external global with an indirect load through a per-symbol
// address-table slot, for targets where late binding through a single
// loader-populated table is preferable to direct symbol references.
func AddrTable(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if addrTableFunc(mod, fn) {
			changed = true
		}
	}
	return changed
}

func addrTableFunc(mod *ssa.Module, fn *ssa.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		var rewritten []*ssa.Instruction
		for _, inst := range b.Instructions {
			newOperands := make([]ssa.Operand, len(inst.Operands))
			touched := false
			for i, op := range inst.Operands {
				if op.Kind != ssa.OpExternFunc && op.Kind != ssa.OpExternGlobal {
					newOperands[i] = op
					continue
				}
				slotName := addrTableSlot(mod, op.Symbol)
				reg := fn.NewReg()
				rewritten = append(rewritten, &ssa.Instruction{
					Op: ssa.OpLoad, Dest: &reg, DestType: ssa.TyAddr, Block: b,
					Operands: []ssa.Operand{ssa.TypeOperand(ssa.TyAddr), ssa.ExternGlobalRef(slotName, ssa.TyAddr)},
				})
				newOperands[i] = ssa.Reg(reg, ssa.TyAddr)
				touched = true
			}
			if touched {
				inst.Operands = newOperands
				changed = true
			}
			rewritten = append(rewritten, inst)
		}
		b.Instructions = rewritten
	}
	return changed
}

// addrTableSlot returns the extern-global name of symbol's
// address-table slot, registering it the first time it's referenced.
func addrTableSlot(mod *ssa.Module, symbol string) string {
	slotName := "__addrtab_" + symbol
	for _, g := range mod.ExternGlobals {
		if g.Name == slotName {
			return slotName
		}
	}
	mod.ExternGlobals = append(mod.ExternGlobals, &ssa.ExternGlobal{Name: slotName, Type: ssa.TyAddr})
	return slotName
}
