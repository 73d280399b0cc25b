package ssa

import (
	"fmt"
	"math/big"
)

// OperandKind tags the variant of Operand (spec §3.2).
type OperandKind int

const (
	OpVReg OperandKind = iota
	OpIntImm
	OpFloatImm
	OpTypeOnly
	OpGlobal
	OpFunc
	OpExternFunc
	OpExternGlobal
	OpCmp
	OpBranchTarget
	OpBytes
)

// Operand is the tagged operand variant of spec §3.2. Exactly one of
// the typed fields is meaningful, selected by Kind — the teacher applies
// this same technique to its own Type interface (internal/ir/types.go);
// here it is used for the one part of the IR spec.md explicitly calls
// out as a tagged variant distinct from the flat Instruction encoding.
type Operand struct {
	Kind OperandKind

	VReg VReg
	Type Type // the type of a VReg/IntImm/FloatImm/TypeOnly operand

	IntImm   *big.Int
	FloatImm float64

	Symbol string // Global / Func / ExternFunc / ExternGlobal name

	Cmp Predicate

	Target *BranchTarget

	Bytes []byte
}

// VReg is a function-local SSA value name.
type VReg int

func Reg(r VReg, t Type) Operand { return Operand{Kind: OpVReg, VReg: r, Type: t} }

func IntConst(v int64, t Type) Operand {
	return Operand{Kind: OpIntImm, IntImm: big.NewInt(v), Type: t}
}

func BigIntConst(v *big.Int, t Type) Operand { return Operand{Kind: OpIntImm, IntImm: v, Type: t} }

func FloatConst(v float64, t Type) Operand { return Operand{Kind: OpFloatImm, FloatImm: v, Type: t} }

func TypeOperand(t Type) Operand { return Operand{Kind: OpTypeOnly, Type: t} }

func GlobalRef(name string, t Type) Operand {
	return Operand{Kind: OpGlobal, Symbol: name, Type: t}
}

func FuncRef(name string) Operand { return Operand{Kind: OpFunc, Symbol: name} }

func ExternFuncRef(name string) Operand { return Operand{Kind: OpExternFunc, Symbol: name} }

func ExternGlobalRef(name string, t Type) Operand {
	return Operand{Kind: OpExternGlobal, Symbol: name, Type: t}
}

func CmpOperand(p Predicate) Operand { return Operand{Kind: OpCmp, Cmp: p} }

func BranchOperand(target *BranchTarget) Operand { return Operand{Kind: OpBranchTarget, Target: target} }

func BytesConst(b []byte) Operand { return Operand{Kind: OpBytes, Bytes: b} }

// BranchTarget pairs a destination block with the argument operands
// supplied to its block parameters (spec §3.2/§3.3).
type BranchTarget struct {
	Block *BasicBlock
	Args  []Operand
}

// Predicate is a comparison predicate (spec §3.2).
type Predicate int

const (
	EQ Predicate = iota
	NE
	UGT
	UGE
	ULT
	ULE
	SGT
	SGE
	SLT
	SLE
	FEQ
	FNE
	FGT
	FGE
	FLT
	FLE
)

var predicateNames = map[Predicate]string{
	EQ: "eq", NE: "ne", UGT: "ugt", UGE: "uge", ULT: "ult", ULE: "ule",
	SGT: "sgt", SGE: "sge", SLT: "slt", SLE: "sle",
	FEQ: "feq", FNE: "fne", FGT: "fgt", FGE: "fge", FLT: "flt", FLE: "fle",
}

func (p Predicate) String() string { return predicateNames[p] }

// Invert returns the semantically-negated predicate, required to exist
// and be correct for every predicate (spec §3.2, used by loop
// inversion).
func (p Predicate) Invert() Predicate {
	switch p {
	case EQ:
		return NE
	case NE:
		return EQ
	case UGT:
		return ULE
	case UGE:
		return ULT
	case ULT:
		return UGE
	case ULE:
		return UGT
	case SGT:
		return SLE
	case SGE:
		return SLT
	case SLT:
		return SGE
	case SLE:
		return SGT
	case FEQ:
		return FNE
	case FNE:
		return FEQ
	case FGT:
		return FLE
	case FGE:
		return FLT
	case FLT:
		return FGE
	case FLE:
		return FGT
	default:
		panic(fmt.Sprintf("invert_comparison: unknown predicate %d", p))
	}
}

func (o Operand) String() string {
	switch o.Kind {
	case OpVReg:
		return fmt.Sprintf("%s %%%d", o.Type, o.VReg)
	case OpIntImm:
		return fmt.Sprintf("%s %s", o.Type, o.IntImm.String())
	case OpFloatImm:
		return fmt.Sprintf("%s %g", o.Type, o.FloatImm)
	case OpTypeOnly:
		return o.Type.String()
	case OpGlobal:
		return fmt.Sprintf("%s @%s", o.Type, o.Symbol)
	case OpFunc:
		return "@" + o.Symbol
	case OpExternFunc:
		return "extern @" + o.Symbol
	case OpExternGlobal:
		return fmt.Sprintf("extern %s @%s", o.Type, o.Symbol)
	case OpCmp:
		return o.Cmp.String()
	case OpBranchTarget:
		return o.Target.String()
	case OpBytes:
		return fmt.Sprintf("bytes[%d]", len(o.Bytes))
	default:
		return "?operand"
	}
}

func (t *BranchTarget) String() string {
	s := t.Block.Label + "("
	for i, a := range t.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ")"
}
