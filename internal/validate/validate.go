// Package validate implements the structural well-formedness checker of
// spec §4.5/§8, grounded line-for-line in original_source's
// ssa::Validator (validator.cpp): a check that every register an
// instruction uses is defined somewhere in the function, by an
// instruction or a block parameter (the order of definition and use is
// not checked), a memberptr bounds check, a branch-arity check, and an
// exactly-one-terminator-per-block check.
package validate

import (
	"fmt"

	"banyan/internal/ssa"
)

// Result is the advisory textual diagnostic output of one validation
// run, plus the boolean summary returned to the driver (spec §4.5).
type Result struct {
	Errors []string
}

func (r *Result) Valid() bool { return len(r.Errors) == 0 }

func (r *Result) addf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Module validates every function of mod.
func Module(mod *ssa.Module) *Result {
	r := &Result{}
	for _, fn := range mod.Functions {
		Function(mod, fn, r)
	}
	return r
}

// Function validates one function, appending to r (spec §8 properties
// 1-4).
func Function(mod *ssa.Module, fn *ssa.Function, r *Result) {
	defs := map[ssa.VReg]bool{}

	for _, b := range fn.Blocks {
		for _, p := range b.Params {
			defs[p.Reg] = true
		}
		for _, inst := range b.Instructions {
			if inst.HasDest() {
				defs[*inst.Dest] = true
			}
		}
	}

	for _, b := range fn.Blocks {
		validateTermination(fn, b, r)

		seen := map[ssa.VReg]bool{}
		for _, p := range b.Params {
			seen[p.Reg] = true
		}
		for _, inst := range b.Instructions {
			for _, op := range inst.Operands {
				if op.Kind != ssa.OpVReg {
					continue
				}
				if !seen[op.VReg] && !defs[op.VReg] {
					r.addf("error in `%s`: %%%d is not defined", fn.Name, op.VReg)
				}
			}
			if inst.Op == ssa.OpMemberPtr {
				validateMemberPtr(mod, fn, inst, r)
			}
			if inst.Op == ssa.OpCJmp || inst.Op == ssa.OpFCJmp || inst.Op == ssa.OpJmp {
				validateBranchArity(fn, inst, r)
			}
			if inst.HasDest() {
				seen[*inst.Dest] = true
			}
		}
	}
}

// validateTermination is property 2 of spec §8: exactly one terminator
// per block, and it must be the last instruction.
func validateTermination(fn *ssa.Function, b *ssa.BasicBlock, r *Result) {
	termCount := 0
	for i, inst := range b.Instructions {
		if inst.IsTerminator() {
			termCount++
			if i != len(b.Instructions)-1 {
				r.addf("error in `%s`: block %q has a terminator before its last instruction", fn.Name, b.Label)
			}
		}
	}
	switch termCount {
	case 0:
		r.addf("error in `%s`: block %q has no terminator", fn.Name, b.Label)
	case 1:
	default:
		r.addf("error in `%s`: block %q has %d terminators", fn.Name, b.Label, termCount)
	}
}

// validateMemberPtr is property 4 of spec §8.
func validateMemberPtr(mod *ssa.Module, fn *ssa.Function, inst *ssa.Instruction, r *Result) {
	structOperand := inst.Operands[0]
	if structOperand.Kind != ssa.OpTypeOnly || structOperand.Type.Kind != ssa.Struct {
		return
	}
	var def *ssa.StructDef
	for _, s := range mod.Structs {
		if s.Name == structOperand.Type.Struct {
			def = s
			break
		}
	}
	if def == nil {
		return
	}
	indexOperand := inst.Operands[2]
	if indexOperand.Kind != ssa.OpIntImm {
		return
	}
	index := indexOperand.IntImm.Int64()
	if index < 0 || int(index) >= len(def.Fields) {
		r.addf("error in `%s`: memberptr index %d out of bounds for struct @%s (%d fields)",
			fn.Name, index, def.Name, len(def.Fields))
	}
}

// validateBranchArity is property 3 of spec §8.
func validateBranchArity(fn *ssa.Function, inst *ssa.Instruction, r *Result) {
	for _, target := range inst.BranchTargets() {
		if len(target.Args) != len(target.Block.Params) {
			r.addf("error in `%s`: branch to %q supplies %d argument(s) for %d parameter(s)",
				fn.Name, target.Block.Label, len(target.Args), len(target.Block.Params))
		}
	}
}
