package passes

import "banyan/internal/ssa"

// Canonicalize implements spec §4.4's canonicalization pass: convert an
// `offsetptr` with a known constant byte offset from an alloca'd struct
// base into the equivalent `memberptr` at the matching field index,
// when the offset lines up exactly with one field's start.
func Canonicalize(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if canonicalizeFunc(mod, fn) {
			changed = true
		}
	}
	return changed
}

func canonicalizeFunc(mod *ssa.Module, fn *ssa.Function) bool {
	allocaTypes := allocaStructTypes(fn)
	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op != ssa.OpOffsetPtr || !inst.HasDest() {
				continue
			}
			base, offsetOp := inst.Operands[0], inst.Operands[1]
			if base.Kind != ssa.OpVReg || offsetOp.Kind != ssa.OpIntImm || offsetOp.IntImm == nil {
				continue
			}
			st, ok := allocaTypes[base.VReg]
			if !ok {
				continue
			}
			def := findStructDef(mod, st.Struct)
			if def == nil {
				continue
			}
			fieldIdx, ok := fieldAtOffset(mod, def, int(offsetOp.IntImm.Int64()))
			if !ok {
				continue
			}
			inst.Op = ssa.OpMemberPtr
			inst.Operands = []ssa.Operand{ssa.TypeOperand(st), base, ssa.IntConst(int64(fieldIdx), ssa.TyI32)}
			changed = true
		}
	}
	return changed
}

// allocaStructTypes maps every alloca'd register in fn to its
// allocated struct type, the minimum context offsetptr-to-memberptr
// canonicalization needs to know which fields exist at which offsets.
func allocaStructTypes(fn *ssa.Function) map[ssa.VReg]ssa.Type {
	out := map[ssa.VReg]ssa.Type{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Op == ssa.OpAlloca && inst.HasDest() && inst.Operands[0].Type.Kind == ssa.Struct {
				out[*inst.Dest] = inst.Operands[0].Type
			}
		}
	}
	return out
}

func findStructDef(mod *ssa.Module, name string) *ssa.StructDef {
	for _, def := range mod.Structs {
		if def.Name == name {
			return def
		}
	}
	return nil
}

// fieldAtOffset returns the index of the field starting exactly at
// byteOffset within def's layout, assuming fields are packed in
// declaration order with no inter-field padding.
func fieldAtOffset(mod *ssa.Module, def *ssa.StructDef, byteOffset int) (int, bool) {
	offset := 0
	for i, f := range def.Fields {
		if offset == byteOffset {
			return i, true
		}
		offset += ssaTypeSize(mod, f)
	}
	return 0, false
}

func ssaTypeSize(mod *ssa.Module, t ssa.Type) int {
	switch t.Kind {
	case ssa.I8:
		return 1
	case ssa.I16:
		return 2
	case ssa.I32:
		return 4
	case ssa.I64:
		return 8
	case ssa.F32:
		return 4
	case ssa.F64:
		return 8
	case ssa.Addr:
		return 8
	case ssa.Struct:
		def := findStructDef(mod, t.Struct)
		if def == nil {
			return 0
		}
		sum := 0
		for _, f := range def.Fields {
			sum += ssaTypeSize(mod, f)
		}
		return sum
	case ssa.Array:
		return ssaTypeSize(mod, *t.Elem) * t.Count
	default:
		return 0
	}
}
