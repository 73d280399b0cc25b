package passes

import (
	"strings"

	"banyan/internal/ssa"
)

// CSE is a supplemented, non-default pass (not part of spec.md's
// default pipeline table, grounded instead in
// original_source/passes/cse_pass.cpp): within each block, replace a
// pure instruction that recomputes an already-seen opcode+operand
// combination with the earlier result, rather than recomputing it.
func CSE(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if cseFunc(fn) {
			changed = true
		}
	}
	return changed
}

func cseFunc(fn *ssa.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		seen := map[string]ssa.Operand{}
		kept := b.Instructions[:0:0]
		for _, inst := range b.Instructions {
			if inst.HasDest() && isPure(inst) {
				key := cseKey(inst)
				if val, ok := seen[key]; ok {
					replaceRegInFunc(fn, *inst.Dest, val)
					changed = true
					continue
				}
				seen[key] = ssa.Reg(*inst.Dest, inst.DestType)
			}
			kept = append(kept, inst)
		}
		b.Instructions = kept
	}
	return changed
}

// cseKey is a canonical textual encoding of an instruction's opcode
// and operands, reusing Operand.String() so two structurally equal
// instructions always produce the same key.
func cseKey(inst *ssa.Instruction) string {
	var sb strings.Builder
	sb.WriteString(inst.Op.String())
	for _, op := range inst.Operands {
		sb.WriteByte('|')
		sb.WriteString(op.String())
	}
	return sb.String()
}
