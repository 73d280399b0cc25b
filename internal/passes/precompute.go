package passes

import (
	"math"
	"math/big"

	"banyan/internal/ssa"
)

// Precompute implements spec §4.4's precomputing pass: fold binary
// arithmetic on constant operands, resolve comparisons in `select` and
// `cjmp`/`fcjmp` down to the selected value or an unconditional `jmp`,
// and fold integer<->fp conversions, `sqrt` of an fp immediate, and
// extend/truncate of immediates.
func Precompute(mod *ssa.Module) bool {
	changed := false
	for _, fn := range mod.Functions {
		if precomputeFunc(fn) {
			changed = true
		}
	}
	return changed
}

func precomputeFunc(fn *ssa.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		kept := b.Instructions[:0:0]
		for _, inst := range b.Instructions {
			if inst.IsTerminator() {
				if rewritten, ok := foldTerminator(inst); ok {
					kept = append(kept, rewritten)
					changed = true
					continue
				}
				kept = append(kept, inst)
				continue
			}
			if inst.HasDest() {
				if repl, ok := foldConstant(inst); ok {
					replaceRegInFunc(fn, *inst.Dest, repl)
					changed = true
					continue
				}
			}
			kept = append(kept, inst)
		}
		b.Instructions = kept
	}
	return changed
}

// foldTerminator resolves a cjmp/fcjmp whose comparison operands are
// both constants into an unconditional jmp to the taken arm, and folds
// a select the same way via foldConstant (handled by the caller since
// select is not a terminator).
func foldTerminator(term *ssa.Instruction) (*ssa.Instruction, bool) {
	if term.Op != ssa.OpCJmp && term.Op != ssa.OpFCJmp {
		return nil, false
	}
	lhs, pred, rhs := term.Operands[0], term.Operands[1].Cmp, term.Operands[2]
	taken, ok := evalPredicateConst(lhs, pred, rhs)
	if !ok {
		return nil, false
	}
	targets := term.BranchTargets()
	target := targets[1]
	if taken {
		target = targets[0]
	}
	return &ssa.Instruction{Op: ssa.OpJmp, Block: term.Block, Operands: []ssa.Operand{ssa.BranchOperand(target)}}, true
}

// evalPredicateConst evaluates a predicate over two constant operands,
// reporting ok=false when either side isn't a constant.
func evalPredicateConst(lhs ssa.Operand, pred ssa.Predicate, rhs ssa.Operand) (bool, bool) {
	if lhs.Kind == ssa.OpIntImm && rhs.Kind == ssa.OpIntImm && lhs.IntImm != nil && rhs.IntImm != nil {
		c := lhs.IntImm.Cmp(rhs.IntImm)
		switch pred {
		case ssa.EQ:
			return c == 0, true
		case ssa.NE:
			return c != 0, true
		case ssa.SGT, ssa.UGT:
			return c > 0, true
		case ssa.SGE, ssa.UGE:
			return c >= 0, true
		case ssa.SLT, ssa.ULT:
			return c < 0, true
		case ssa.SLE, ssa.ULE:
			return c <= 0, true
		}
		return false, false
	}
	if lhs.Kind == ssa.OpFloatImm && rhs.Kind == ssa.OpFloatImm {
		switch pred {
		case ssa.FEQ:
			return lhs.FloatImm == rhs.FloatImm, true
		case ssa.FNE:
			return lhs.FloatImm != rhs.FloatImm, true
		case ssa.FGT:
			return lhs.FloatImm > rhs.FloatImm, true
		case ssa.FGE:
			return lhs.FloatImm >= rhs.FloatImm, true
		case ssa.FLT:
			return lhs.FloatImm < rhs.FloatImm, true
		case ssa.FLE:
			return lhs.FloatImm <= rhs.FloatImm, true
		}
	}
	return false, false
}

// foldConstant evaluates an instruction whose operands are all
// constants, returning the replacement constant operand.
func foldConstant(inst *ssa.Instruction) (ssa.Operand, bool) {
	switch inst.Op {
	case ssa.OpAdd, ssa.OpSub, ssa.OpMul, ssa.OpSDiv, ssa.OpSRem, ssa.OpUDiv, ssa.OpURem,
		ssa.OpAnd, ssa.OpOr, ssa.OpXor, ssa.OpShl, ssa.OpShr:
		return foldIntBinary(inst)
	case ssa.OpFAdd, ssa.OpFSub, ssa.OpFMul, ssa.OpFDiv:
		return foldFloatBinary(inst)
	case ssa.OpSqrt:
		v := inst.Operands[0]
		if v.Kind != ssa.OpFloatImm {
			return ssa.Operand{}, false
		}
		return ssa.FloatConst(math.Sqrt(v.FloatImm), inst.DestType), true
	case ssa.OpSExtend, ssa.OpUExtend, ssa.OpTruncate:
		v := inst.Operands[0]
		if v.Kind != ssa.OpIntImm || v.IntImm == nil {
			return ssa.Operand{}, false
		}
		return ssa.BigIntConst(truncOrExtend(v.IntImm, inst.DestType, inst.Op == ssa.OpSExtend), inst.DestType), true
	case ssa.OpUtoF, ssa.OpStoF:
		v := inst.Operands[0]
		if v.Kind != ssa.OpIntImm || v.IntImm == nil {
			return ssa.Operand{}, false
		}
		f := new(big.Float).SetInt(v.IntImm)
		fv, _ := f.Float64()
		return ssa.FloatConst(fv, inst.DestType), true
	case ssa.OpFtoU, ssa.OpFtoS:
		v := inst.Operands[0]
		if v.Kind != ssa.OpFloatImm {
			return ssa.Operand{}, false
		}
		bi, _ := big.NewFloat(v.FloatImm).Int(nil)
		return ssa.BigIntConst(bi, inst.DestType), true
	case ssa.OpSelect:
		lhs, pred, rhs := inst.Operands[0], inst.Operands[1].Cmp, inst.Operands[2]
		taken, ok := evalPredicateConst(lhs, pred, rhs)
		if !ok {
			return ssa.Operand{}, false
		}
		if taken {
			return inst.Operands[3], true
		}
		return inst.Operands[4], true
	}
	return ssa.Operand{}, false
}

func foldIntBinary(inst *ssa.Instruction) (ssa.Operand, bool) {
	lhs, rhs := inst.Operands[0], inst.Operands[1]
	if lhs.Kind != ssa.OpIntImm || rhs.Kind != ssa.OpIntImm || lhs.IntImm == nil || rhs.IntImm == nil {
		return ssa.Operand{}, false
	}
	a, b := lhs.IntImm, rhs.IntImm
	r := new(big.Int)
	switch inst.Op {
	case ssa.OpAdd:
		r.Add(a, b)
	case ssa.OpSub:
		r.Sub(a, b)
	case ssa.OpMul:
		r.Mul(a, b)
	case ssa.OpSDiv:
		if b.Sign() == 0 {
			return ssa.Operand{}, false
		}
		r.Quo(a, b)
	case ssa.OpSRem:
		if b.Sign() == 0 {
			return ssa.Operand{}, false
		}
		r.Rem(a, b)
	case ssa.OpUDiv:
		if b.Sign() == 0 {
			return ssa.Operand{}, false
		}
		r.Div(a, b)
	case ssa.OpURem:
		if b.Sign() == 0 {
			return ssa.Operand{}, false
		}
		r.Mod(a, b)
	case ssa.OpAnd:
		r.And(a, b)
	case ssa.OpOr:
		r.Or(a, b)
	case ssa.OpXor:
		r.Xor(a, b)
	case ssa.OpShl:
		r.Lsh(a, uint(b.Int64()))
	case ssa.OpShr:
		r.Rsh(a, uint(b.Int64()))
	default:
		return ssa.Operand{}, false
	}
	return ssa.BigIntConst(truncOrExtend(r, inst.DestType, false), inst.DestType), true
}

func foldFloatBinary(inst *ssa.Instruction) (ssa.Operand, bool) {
	lhs, rhs := inst.Operands[0], inst.Operands[1]
	if lhs.Kind != ssa.OpFloatImm || rhs.Kind != ssa.OpFloatImm {
		return ssa.Operand{}, false
	}
	var r float64
	switch inst.Op {
	case ssa.OpFAdd:
		r = lhs.FloatImm + rhs.FloatImm
	case ssa.OpFSub:
		r = lhs.FloatImm - rhs.FloatImm
	case ssa.OpFMul:
		r = lhs.FloatImm * rhs.FloatImm
	case ssa.OpFDiv:
		r = lhs.FloatImm / rhs.FloatImm
	default:
		return ssa.Operand{}, false
	}
	return ssa.FloatConst(r, inst.DestType), true
}

// truncOrExtend masks v down to t's bit width, sign-extending the
// truncated-but-negative case back out when signExtend is set.
func truncOrExtend(v *big.Int, t ssa.Type, signExtend bool) *big.Int {
	bits := t.Bits()
	if bits == 0 || bits >= 64 {
		return new(big.Int).Set(v)
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
	r := new(big.Int).And(v, mask)
	if signExtend {
		signBit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
		if r.Cmp(signBit) >= 0 {
			r.Sub(r, new(big.Int).Lsh(big.NewInt(1), uint(bits)))
		}
	}
	return r
}
