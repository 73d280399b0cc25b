package passes

import "banyan/internal/ssa"

// SROA implements spec §4.4's scalar-replacement-of-aggregates pass:
// for each entry-block alloca of a struct type whose address never
// escapes into a non-load/store/memberptr context, split it into
// per-field allocas and rewrite memberptr+load/store sequences to use
// the split slots directly. Struct-copy instructions (`copy`) between
// two splittable allocas become field-wise load/stores.
func SROA(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		for _, structDef := range structDefsFor(mod, fn) {
			if sroaFunc(mod, fn, structDef) {
				changed = true
			}
		}
	}
	return changed
}

// structDefsFor returns every struct definition mod declares, since any
// of them might be the type of a candidate alloca in fn.
func structDefsFor(mod *ssa.Module, fn *ssa.Function) []*ssa.StructDef { return mod.Structs }

func sroaFunc(mod *ssa.Module, fn *ssa.Function, def *ssa.StructDef) bool {
	changed := false
	entry := fn.Entry
	for _, inst := range append([]*ssa.Instruction{}, entry.Instructions...) {
		if inst.Op != ssa.OpAlloca || !inst.HasDest() {
			continue
		}
		allocType := inst.Operands[0].Type
		if allocType.Kind != ssa.Struct || allocType.Struct != def.Name {
			continue
		}
		if !splittable(fn, *inst.Dest) {
			continue
		}
		splitAlloca(mod, fn, inst, def)
		changed = true
	}
	return changed
}

// splittable reports whether every use of addr is a load, store, or
// memberptr base operand — never passed to a call, returned, or used
// as a bare address value (spec §4.4's "address never escapes").
func splittable(fn *ssa.Function, addr ssa.VReg) bool {
	ok := true
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			for i, op := range inst.Operands {
				if op.Kind != ssa.OpVReg || op.VReg != addr {
					continue
				}
				switch inst.Op {
				case ssa.OpLoad:
					if i != 1 {
						ok = false
					}
				case ssa.OpStore:
					if i != 1 {
						ok = false
					}
				case ssa.OpMemberPtr:
					if i != 1 {
						ok = false
					}
				case ssa.OpCopy:
					// Struct-copy of a splittable alloca is allowed;
					// rewritten field-wise below.
				default:
					ok = false
				}
			}
		}
	}
	return ok
}

// splitAlloca replaces allocaInst with one alloca per field and
// rewrites every memberptr into that field to use the split slot
// directly, eliminating the memberptr indirection entirely.
func splitAlloca(mod *ssa.Module, fn *ssa.Function, allocaInst *ssa.Instruction, def *ssa.StructDef) {
	entry := fn.Entry
	fieldSlots := make([]ssa.VReg, len(def.Fields))
	for i, ft := range def.Fields {
		fieldSlots[i] = allocaInEntry(entry, ft)
	}
	origDest := *allocaInst.Dest

	for _, b := range fn.Blocks {
		kept := b.Instructions[:0:0]
		for _, inst := range b.Instructions {
			if inst == allocaInst {
				continue // drop the original aggregate alloca
			}
			if inst.Op == ssa.OpMemberPtr && inst.Operands[1].Kind == ssa.OpVReg && inst.Operands[1].VReg == origDest {
				idx := int(inst.Operands[2].IntImm.Int64())
				if idx < len(fieldSlots) && inst.HasDest() {
					replaceRegInFunc(fn, *inst.Dest, ssa.Reg(fieldSlots[idx], ssa.TyAddr))
					continue
				}
			}
			if inst.Op == ssa.OpCopy {
				dst, srcIsOrig := inst.Operands[0], inst.Operands[1].Kind == ssa.OpVReg && inst.Operands[1].VReg == origDest
				dstIsOrig := dst.Kind == ssa.OpVReg && dst.VReg == origDest
				if srcIsOrig || dstIsOrig {
					kept = append(kept, fieldwiseCopy(b, inst, origDest, fieldSlots, def)...)
					continue
				}
			}
			kept = append(kept, inst)
		}
		b.Instructions = kept
	}
}

// fieldwiseCopy expands a copy touching a since-split aggregate into
// one load+store pair per field.
func fieldwiseCopy(b *ssa.BasicBlock, inst *ssa.Instruction, origDest ssa.VReg, fieldSlots []ssa.VReg, def *ssa.StructDef) []*ssa.Instruction {
	dst, src := inst.Operands[0], inst.Operands[1]
	var out []*ssa.Instruction
	emit := func(i *ssa.Instruction) { out = append(out, i) }
	for i, ft := range def.Fields {
		var srcAddr, dstAddr ssa.Operand
		if src.Kind == ssa.OpVReg && src.VReg == origDest {
			srcAddr = ssa.Reg(fieldSlots[i], ssa.TyAddr)
		} else {
			p := b.Func.NewReg()
			emit(&ssa.Instruction{Op: ssa.OpMemberPtr, Dest: &p, DestType: ssa.TyAddr, Operands: []ssa.Operand{ssa.TypeOperand(ssa.StructType(def.Name)), src, ssa.IntConst(int64(i), ssa.TyI32)}, Block: b})
			srcAddr = ssa.Reg(p, ssa.TyAddr)
		}
		if dst.Kind == ssa.OpVReg && dst.VReg == origDest {
			dstAddr = ssa.Reg(fieldSlots[i], ssa.TyAddr)
		} else {
			p := b.Func.NewReg()
			emit(&ssa.Instruction{Op: ssa.OpMemberPtr, Dest: &p, DestType: ssa.TyAddr, Operands: []ssa.Operand{ssa.TypeOperand(ssa.StructType(def.Name)), dst, ssa.IntConst(int64(i), ssa.TyI32)}, Block: b})
			dstAddr = ssa.Reg(p, ssa.TyAddr)
		}
		loadDest := b.Func.NewReg()
		emit(&ssa.Instruction{Op: ssa.OpLoad, Dest: &loadDest, DestType: ft, Operands: []ssa.Operand{ssa.TypeOperand(ft), srcAddr}, Block: b})
		emit(&ssa.Instruction{Op: ssa.OpStore, Operands: []ssa.Operand{ssa.Reg(loadDest, ft), dstAddr}, Block: b})
	}
	return out
}
