package ssa

// Package-level convenience constructors for instructions, factored out
// of internal/lower so the lowering code reads as "emit an add" rather
// than "build an Instruction literal" at every call site — the same
// division of labor the teacher keeps between internal/ir/types.go's
// instruction structs and internal/ir/builder.go's lowering logic.

func newInst(op Opcode, dest *VReg, destType Type, operands ...Operand) *Instruction {
	return &Instruction{Op: op, Dest: dest, DestType: destType, Operands: operands}
}

func regPtr(r VReg) *VReg { return &r }

// Alloca emits `%d = alloca t` into b and returns the resulting address
// register.
func (b *BasicBlock) Alloca(t Type) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(OpAlloca, regPtr(r), TyAddr, TypeOperand(t)))
	return r
}

// Load emits `%d = load t, addr`.
func (b *BasicBlock) Load(t Type, addr Operand) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(OpLoad, regPtr(r), t, TypeOperand(t), addr))
	return r
}

// Store emits `store value, addr`.
func (b *BasicBlock) Store(value, addr Operand) {
	b.Emit(newInst(OpStore, nil, TyVoid, value, addr))
}

// LoadArg emits `%d = loadarg t, index`.
func (b *BasicBlock) LoadArg(t Type, index int) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(OpLoadArg, regPtr(r), t, TypeOperand(t), IntConst(int64(index), TyI32)))
	return r
}

// Copy emits `copy dst, src, t` (memcpy-equivalent).
func (b *BasicBlock) Copy(dst, src Operand, t Type) {
	b.Emit(newInst(OpCopy, nil, TyVoid, dst, src, TypeOperand(t)))
}

// Binary emits a two-operand arithmetic/bitwise instruction.
func (b *BasicBlock) Binary(op Opcode, lhs, rhs Operand, resultType Type) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(op, regPtr(r), resultType, lhs, rhs))
	return r
}

// Sqrt emits the unary `sqrt` opcode.
func (b *BasicBlock) Sqrt(v Operand, resultType Type) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(OpSqrt, regPtr(r), resultType, v))
	return r
}

// Convert emits a conversion opcode from v to resultType.
func (b *BasicBlock) Convert(op Opcode, v Operand, resultType Type) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(op, regPtr(r), resultType, v))
	return r
}

// MemberPtr emits `%d = memberptr structType, base, index`.
func (b *BasicBlock) MemberPtr(structType Type, base Operand, index int) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(OpMemberPtr, regPtr(r), TyAddr, TypeOperand(structType), base, IntConst(int64(index), TyI32)))
	return r
}

// OffsetPtr emits `%d = offsetptr base, offset, elementType`.
func (b *BasicBlock) OffsetPtr(base, offset Operand, elementType Type) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(OpOffsetPtr, regPtr(r), TyAddr, base, offset, TypeOperand(elementType)))
	return r
}

// Jmp terminates b with an unconditional jump.
func (b *BasicBlock) Jmp(target *BranchTarget) {
	b.Emit(newInst(OpJmp, nil, TyVoid, BranchOperand(target)))
}

// CJmp terminates b with a conditional integer branch.
func (b *BasicBlock) CJmp(lhs Operand, cmp Predicate, rhs Operand, trueTarget, falseTarget *BranchTarget) {
	b.Emit(newInst(OpCJmp, nil, TyVoid, lhs, CmpOperand(cmp), rhs, BranchOperand(trueTarget), BranchOperand(falseTarget)))
}

// FCJmp terminates b with a conditional floating-point branch.
func (b *BasicBlock) FCJmp(lhs Operand, cmp Predicate, rhs Operand, trueTarget, falseTarget *BranchTarget) {
	b.Emit(newInst(OpFCJmp, nil, TyVoid, lhs, CmpOperand(cmp), rhs, BranchOperand(trueTarget), BranchOperand(falseTarget)))
}

// Select emits `%d = select lhs, cmp, rhs, trueVal, falseVal`.
func (b *BasicBlock) Select(lhs Operand, cmp Predicate, rhs, trueVal, falseVal Operand, resultType Type) VReg {
	r := b.Func.NewReg()
	b.Emit(newInst(OpSelect, regPtr(r), resultType, lhs, CmpOperand(cmp), rhs, trueVal, falseVal))
	return r
}

// Ret terminates b with a return; a nil value makes it a void return.
func (b *BasicBlock) Ret(value *Operand) {
	if value == nil {
		b.Emit(newInst(OpRet, nil, TyVoid))
		return
	}
	b.Emit(newInst(OpRet, nil, TyVoid, *value))
}

// Call emits a call; dest is nil when the callee returns void or uses
// the hidden-return-slot convention (spec §4.3.4).
func (b *BasicBlock) Call(callee Operand, args []Operand, resultType Type, hasDest bool) *VReg {
	operands := append([]Operand{callee}, args...)
	if !hasDest {
		b.Emit(newInst(OpCall, nil, TyVoid, operands...))
		return nil
	}
	r := b.Func.NewReg()
	b.Emit(newInst(OpCall, regPtr(r), resultType, operands...))
	return &r
}

// Asm emits an opaque inline-assembly instruction.
func (b *BasicBlock) Asm(text string) {
	b.Emit(newInst(OpAsm, nil, TyVoid, BytesConst([]byte(text))))
}
