package lower

import (
	"banyan/internal/ast"
	"banyan/internal/ssa"
	"banyan/internal/types"
)

// lowerBinary implements spec §4.3.2's binary-operator rules: primitive
// arithmetic/comparison picks an opcode by operand kind (float vs.
// signed vs. unsigned integer), struct operands with a resolved
// OverloadMethod dispatch to that method instead, and commutative
// operators canonicalize an immediate onto the right-hand side so later
// passes (peephole, precompute) see a single normal form.
func (b *Builder) lowerBinary(v *ast.BinaryExpr) StoredValue {
	if v.OverloadMethod != nil {
		return b.lowerOperatorOverload(v)
	}
	if v.Op == ast.OpLogAnd || v.Op == ast.OpLogOr {
		return b.lowerShortCircuit(v)
	}

	lhs := v.Lhs
	rhs := v.Rhs
	if v.Op.IsCommutative() && isImmediate(lhs) && !isImmediate(rhs) {
		lhs, rhs = rhs, lhs
	}

	lv := b.TurnIntoValue(b.lowerExpr(lhs, StorageHints{}))
	rv := b.TurnIntoValue(b.lowerExpr(rhs, StorageHints{}))

	prim, _ := v.Lhs.Type().(*types.PrimitiveType)
	isFloat := prim != nil && prim.Kind.IsFloat()
	isSigned := prim != nil && prim.Kind.IsSigned()

	if v.Op.IsComparison() {
		pred := comparisonPredicate(v.Op, isFloat, isSigned)
		resultType := ssa.TyI8
		if isFloat {
			r := b.fcmpSelect(lv.Operand, pred, rv.Operand)
			return ValueOf(ssa.Reg(r, resultType), resultType)
		}
		r := b.icmpSelect(lv.Operand, pred, rv.Operand)
		return ValueOf(ssa.Reg(r, resultType), resultType)
	}

	op := arithmeticOpcode(v.Op, isFloat, isSigned)
	resultType := b.typeOf(v.Type())
	if op == ssa.OpShl || op == ssa.OpShr {
		rv = b.TurnIntoValue(ValueOf(b.shiftAmount(rv.Operand), ssa.TyI8))
	}
	r := b.block.Binary(op, lv.Operand, rv.Operand, resultType)
	return ValueOf(ssa.Reg(r, resultType), resultType)
}

func isImmediate(e ast.Expr) bool {
	switch e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.CharLit:
		return true
	default:
		return false
	}
}

func arithmeticOpcode(op ast.BinaryOp, isFloat, isSigned bool) ssa.Opcode {
	switch op {
	case ast.OpAdd:
		if isFloat {
			return ssa.OpFAdd
		}
		return ssa.OpAdd
	case ast.OpSub:
		if isFloat {
			return ssa.OpFSub
		}
		return ssa.OpSub
	case ast.OpMul:
		if isFloat {
			return ssa.OpFMul
		}
		return ssa.OpMul
	case ast.OpDiv:
		if isFloat {
			return ssa.OpFDiv
		}
		if isSigned {
			return ssa.OpSDiv
		}
		return ssa.OpUDiv
	case ast.OpRem:
		if isSigned {
			return ssa.OpSRem
		}
		return ssa.OpURem
	case ast.OpAnd:
		return ssa.OpAnd
	case ast.OpOr:
		return ssa.OpOr
	case ast.OpXor:
		return ssa.OpXor
	case ast.OpShl:
		return ssa.OpShl
	case ast.OpShr:
		return ssa.OpShr
	default:
		return ssa.OpAdd
	}
}

func comparisonPredicate(op ast.BinaryOp, isFloat, isSigned bool) ssa.Predicate {
	switch op {
	case ast.OpEq:
		if isFloat {
			return ssa.FEQ
		}
		return ssa.EQ
	case ast.OpNe:
		if isFloat {
			return ssa.FNE
		}
		return ssa.NE
	case ast.OpLt:
		if isFloat {
			return ssa.FLT
		}
		if isSigned {
			return ssa.SLT
		}
		return ssa.ULT
	case ast.OpLe:
		if isFloat {
			return ssa.FLE
		}
		if isSigned {
			return ssa.SLE
		}
		return ssa.ULE
	case ast.OpGt:
		if isFloat {
			return ssa.FGT
		}
		if isSigned {
			return ssa.SGT
		}
		return ssa.UGT
	case ast.OpGe:
		if isFloat {
			return ssa.FGE
		}
		if isSigned {
			return ssa.SGE
		}
		return ssa.UGE
	default:
		return ssa.EQ
	}
}

// icmpSelect/fcmpSelect materialize a comparison's boolean result via
// `select`, since the IR has no dedicated compare-and-produce-bool
// opcode outside cjmp/fcjmp (spec §3.2's Misc note): true/false i8
// immediates selected on the predicate.
func (b *Builder) icmpSelect(lhs ssa.Operand, pred ssa.Predicate, rhs ssa.Operand) ssa.VReg {
	return b.block.Select(lhs, pred, rhs, ssa.IntConst(1, ssa.TyI8), ssa.IntConst(0, ssa.TyI8), ssa.TyI8)
}

func (b *Builder) fcmpSelect(lhs ssa.Operand, pred ssa.Predicate, rhs ssa.Operand) ssa.VReg {
	return b.block.Select(lhs, pred, rhs, ssa.IntConst(1, ssa.TyI8), ssa.IntConst(0, ssa.TyI8), ssa.TyI8)
}

// shiftAmount truncates a shift's right-hand operand to i8, matching
// the Shift opcodes' fixed-width-amount convention (spec §3.2).
func (b *Builder) shiftAmount(amount ssa.Operand) ssa.Operand {
	if amount.Type.Kind == ssa.I8 {
		return amount
	}
	r := b.block.Convert(ssa.OpTruncate, amount, ssa.TyI8)
	return ssa.Reg(r, ssa.TyI8)
}

// lowerOperatorOverload dispatches a struct-typed binary operator to
// its resolved __add__/__eq__/... method (spec §4.3.2).
func (b *Builder) lowerOperatorOverload(v *ast.BinaryExpr) StoredValue {
	lhs := b.TurnIntoReference(b.lowerExpr(v.Lhs, StorageHints{}))
	rhs := b.TurnIntoValue(b.lowerExpr(v.Rhs, StorageHints{}))
	fn := b.irFunc(linkName(v.OverloadMethod))
	resultType := b.typeOf(v.Type())
	dest := b.allocVia(StorageHints{}, resultType)
	return b.emitDirectCall(fn, []ssa.Operand{lhs.Operand, rhs.Operand}, resultType, dest, StorageHints{})
}

// lowerShortCircuit threads explicit continuation blocks for && / ||
// (spec §4.3.2: "boolean short-circuit operators lower to explicit
// branches, not to a uniform arithmetic instruction").
func (b *Builder) lowerShortCircuit(v *ast.BinaryExpr) StoredValue {
	lhs := b.TurnIntoValue(b.lowerExpr(v.Lhs, StorageHints{}))
	rhsBlock := b.newBlock("sc.rhs")
	mergeBlock := b.newBlock("sc.merge")

	result := mergeBlock.AddParam(ssa.TyI8)

	trueTarget := &ssa.BranchTarget{Block: mergeBlock, Args: []ssa.Operand{ssa.IntConst(1, ssa.TyI8)}}
	falseTarget := &ssa.BranchTarget{Block: mergeBlock, Args: []ssa.Operand{ssa.IntConst(0, ssa.TyI8)}}
	rhsTarget := &ssa.BranchTarget{Block: rhsBlock}

	if v.Op == ast.OpLogAnd {
		b.block.CJmp(lhs.Operand, ssa.NE, ssa.IntConst(0, ssa.TyI8), rhsTarget, falseTarget)
	} else {
		b.block.CJmp(lhs.Operand, ssa.NE, ssa.IntConst(0, ssa.TyI8), trueTarget, rhsTarget)
	}

	b.setBlock(rhsBlock)
	rhs := b.TurnIntoValue(b.lowerExpr(v.Rhs, StorageHints{}))
	rhsResult := &ssa.BranchTarget{Block: mergeBlock, Args: []ssa.Operand{rhs.Operand}}
	b.block.Jmp(rhsResult)

	b.setBlock(mergeBlock)
	return ValueOf(ssa.Reg(result, ssa.TyI8), ssa.TyI8)
}

// lowerUnary implements negation, address-of, and (smart-pointer-aware)
// dereference (spec §4.3.2).
func (b *Builder) lowerUnary(v *ast.UnaryExpr) StoredValue {
	switch v.Op {
	case ast.OpNeg:
		operand := b.TurnIntoValue(b.lowerExpr(v.Operand, StorageHints{}))
		t := b.typeOf(v.Type())
		if t.IsFloat() {
			r := b.block.Binary(ssa.OpFSub, ssa.FloatConst(0, t), operand.Operand, t)
			return ValueOf(ssa.Reg(r, t), t)
		}
		r := b.block.Binary(ssa.OpSub, ssa.IntConst(0, t), operand.Operand, t)
		return ValueOf(ssa.Reg(r, t), t)
	case ast.OpAddrOf:
		ref := b.TurnIntoReference(b.lowerExpr(v.Operand, StorageHints{}))
		return ValueOf(ref.Operand, ssa.TyAddr)
	case ast.OpDeref:
		if v.DerefMethod != nil {
			fn := b.irFunc(linkName(v.DerefMethod))
			self := b.TurnIntoReference(b.lowerExpr(v.Operand, StorageHints{}))
			resultType := b.typeOf(v.Type())
			dest := b.allocVia(StorageHints{}, resultType)
			return b.emitDirectCall(fn, []ssa.Operand{self.Operand}, resultType, dest, StorageHints{})
		}
		ptr := b.TurnIntoValue(b.lowerExpr(v.Operand, StorageHints{}))
		t := b.typeOf(v.Type())
		return RefOf(ptr.Operand, t)
	default:
		b.unreachable("lowerUnary: unhandled operator %d", v.Op)
		return StoredValue{}
	}
}
