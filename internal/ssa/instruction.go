package ssa

import (
	"strconv"
	"strings"
)

// Opcode enumerates the complete instruction menu of spec §3.2 that
// lowering must emit and optimizers must handle.
type Opcode int

const (
	// Memory
	OpAlloca Opcode = iota
	OpLoad
	OpStore
	OpLoadArg
	OpCopy

	// Integer arithmetic
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpSRem
	OpUDiv
	OpURem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr

	// Floating-point arithmetic
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpSqrt

	// Conversions
	OpSExtend
	OpUExtend
	OpTruncate
	OpFPromote
	OpFDemote
	OpUtoF
	OpStoF
	OpFtoU
	OpFtoS

	// Address arithmetic
	OpMemberPtr
	OpOffsetPtr

	// Control
	OpJmp
	OpCJmp
	OpFCJmp
	OpSelect
	OpRet
	OpCall

	// Misc
	OpAsm
)

var opcodeNames = map[Opcode]string{
	OpAlloca: "alloca", OpLoad: "load", OpStore: "store", OpLoadArg: "loadarg", OpCopy: "copy",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv", OpSRem: "srem",
	OpUDiv: "udiv", OpURem: "urem", OpAnd: "and", OpOr: "or", OpXor: "xor", OpShl: "shl", OpShr: "shr",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv", OpSqrt: "sqrt",
	OpSExtend: "sextend", OpUExtend: "uextend", OpTruncate: "truncate",
	OpFPromote: "fpromote", OpFDemote: "fdemote", OpUtoF: "utof", OpStoF: "stof", OpFtoU: "ftou", OpFtoS: "ftos",
	OpMemberPtr: "memberptr", OpOffsetPtr: "offsetptr",
	OpJmp: "jmp", OpCJmp: "cjmp", OpFCJmp: "fcjmp", OpSelect: "select", OpRet: "ret", OpCall: "call",
	OpAsm: "asm",
}

func (o Opcode) String() string { return opcodeNames[o] }

// IsTerminator reports whether o ends a basic block (spec §3.3).
func (o Opcode) IsTerminator() bool {
	return o == OpJmp || o == OpCJmp || o == OpFCJmp || o == OpRet
}

// InstFlag is one bit of an instruction's flag set (spec §3.2), e.g.
// the back-end's "argument-store" marker on stores that initialize an
// outgoing call argument slot.
type InstFlag uint32

const (
	FlagArgStore InstFlag = 1 << iota
	FlagVolatile
)

// Instruction is the flat instruction model of spec §3.2: an opcode, an
// optional destination register, an ordered operand list, and a flag
// bitset. Grounded in original_source's ssa::Instruction interface
// (get_opcode/get_dest/get_operands/get_operand) rather than the
// teacher's one-struct-per-opcode polymorphism — see SPEC_FULL.md's L2
// section for why the two representations diverge here.
type Instruction struct {
	ID       int
	Op       Opcode
	Dest     *VReg // nil when the opcode produces no value
	DestType Type  // meaningful only when Dest != nil
	Operands []Operand
	Flags    InstFlag
	Block    *BasicBlock
}

func (i *Instruction) HasDest() bool { return i.Dest != nil }

func (i *Instruction) Operand(n int) Operand { return i.Operands[n] }

func (i *Instruction) IsTerminator() bool { return i.Op.IsTerminator() }

func (i *Instruction) HasFlag(f InstFlag) bool { return i.Flags&f != 0 }

func (i *Instruction) SetFlag(f InstFlag) { i.Flags |= f }

// Successors returns the blocks a terminator instruction may transfer
// control to; empty for non-terminators and ret.
func (i *Instruction) Successors() []*BasicBlock {
	switch i.Op {
	case OpJmp:
		return []*BasicBlock{i.Operands[0].Target.Block}
	case OpCJmp, OpFCJmp:
		return []*BasicBlock{i.Operands[3].Target.Block, i.Operands[4].Target.Block}
	default:
		return nil
	}
}

// BranchTargets returns the BranchTarget operands of a jmp/cjmp/fcjmp,
// in successor order, for callers that need to rewrite argument lists
// in place (e.g. control-flow-opt substituting block-param uses).
func (i *Instruction) BranchTargets() []*BranchTarget {
	switch i.Op {
	case OpJmp:
		return []*BranchTarget{i.Operands[0].Target}
	case OpCJmp, OpFCJmp:
		return []*BranchTarget{i.Operands[3].Target, i.Operands[4].Target}
	default:
		return nil
	}
}

func (i *Instruction) String() string {
	var b strings.Builder
	if i.HasDest() {
		b.WriteString("%")
		b.WriteString(strconv.Itoa(int(*i.Dest)))
		b.WriteString(" = ")
	}
	b.WriteString(i.Op.String())
	for j, op := range i.Operands {
		if j > 0 {
			b.WriteString(", ")
		} else {
			b.WriteString(" ")
		}
		b.WriteString(op.String())
	}
	return b.String()
}
