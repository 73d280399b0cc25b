// Package ast is the front-end handoff contract of spec §6.1: a fully
// name-and-type-resolved tree the lowering in internal/lower walks.
// Everything upstream of this point — lexing, parsing, name resolution,
// type inference, overload/coercion resolution — is the deliberately
// out-of-scope front end (spec §1); this package only carries the
// *result* of that work, the shape spec §6.1 guarantees is filled in
// before any given function is lowered: identifiers already resolved to
// symbol.Symbol, expressions already carrying their types.Type.
//
// Grounded in the teacher's internal/ast (tagged Expr/Stmt interfaces,
// one concrete struct per node kind) and spec §9's design note: "tagged
// AST nodes carrying kind-specific payload ... a tagged sum (variant
// with per-kind payload struct)." This package drops the teacher's
// surface-syntax concerns (source Position on every node, doc comments,
// bad-node recovery placeholders) since those belong to the excluded
// parser, keeping only what a resolved tree needs to drive lowering.
package ast

import (
	"banyan/internal/symbol"
	"banyan/internal/types"
)

// Expr is any resolved expression node. Every concrete type below
// implements it; Type() is always non-nil once name/type resolution has
// run (spec §6.1: "every expression has an attached language type").
type Expr interface {
	isExpr()
	Type() types.Type
}

// ExprHeader is the shared payload spec §9 calls for: just the
// resolved type, since position tracking belongs to the excluded
// front end.
type ExprHeader struct{ Ty types.Type }

func (h ExprHeader) Type() types.Type { return h.Ty }

// --- literals (spec §4.3.2) ---

type IntLit struct {
	ExprHeader
	Value int64
}

func (*IntLit) isExpr() {}

type FloatLit struct {
	ExprHeader
	Value float64
}

func (*FloatLit) isExpr() {}

// CharLit is a decoded character literal; escape decoding (\n \r \t \0
// \\ \xHH) is the front end's job per spec §4.3.2 and has already
// happened by the time this node exists.
type CharLit struct {
	ExprHeader
	Value rune
}

func (*CharLit) isExpr() {}

type BoolLit struct {
	ExprHeader
	Value bool
}

func (*BoolLit) isExpr() {}

type NullLit struct{ ExprHeader }

func (*NullLit) isExpr() {}

type SelfExpr struct{ ExprHeader }

func (*SelfExpr) isExpr() {}

// StringLit is a byte-string literal (spec §4.3.2): lowered into a
// module-level global and, when the coercion target is a standard
// String struct, wrapped in a call to its `from` constructor.
type StringLit struct {
	ExprHeader
	Value      []byte
	CoerceToFn *symbol.Function // non-nil when the target type is a String struct
}

func (*StringLit) isExpr() {}

// --- aggregate literals ---

type ArrayLit struct {
	ExprHeader
	Elems []Expr
}

func (*ArrayLit) isExpr() {}

type TupleLit struct {
	ExprHeader
	Elems []Expr
}

func (*TupleLit) isExpr() {}

// StructLitField is one `name: expr` entry of a StructLit, already
// resolved to its field index in the owning Structure.
type StructLitField struct {
	Index int
	Value Expr
}

type StructLit struct {
	ExprHeader
	Struct *symbol.Structure
	Fields []StructLitField
}

func (*StructLit) isExpr() {}

// MapEntry is one key/value pair of a MapLit.
type MapEntry struct {
	Key   Expr
	Value Expr
}

type MapLit struct {
	ExprHeader
	Entries []MapEntry
}

func (*MapLit) isExpr() {}

// --- operators (spec §4.3.2) ---

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogAnd
	OpLogOr
)

// IsCommutative reports whether operand ordering may be canonicalized
// (spec §4.3.2: "immediates appear on the right-hand side when the
// operator is commutative").
func (o BinaryOp) IsCommutative() bool {
	switch o {
	case OpAdd, OpMul, OpAnd, OpOr, OpXor, OpEq, OpNe:
		return true
	default:
		return false
	}
}

// IsComparison reports whether o produces a boolean result from a
// relational test.
func (o BinaryOp) IsComparison() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	default:
		return false
	}
}

type BinaryExpr struct {
	ExprHeader
	Op          BinaryOp
	Lhs, Rhs    Expr
	// OverloadMethod is non-nil when Lhs/Rhs are struct types and the
	// front end resolved this operator to a __add__/__eq__/... method
	// (spec §4.3.2, "Binary operators on struct types").
	OverloadMethod *symbol.Function
}

func (*BinaryExpr) isExpr() {}

type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpAddrOf
	OpDeref
)

type UnaryExpr struct {
	ExprHeader
	Op      UnaryOp
	Operand Expr
	// DerefMethod is non-nil when Op==OpDeref and Operand's type is a
	// smart pointer rather than a raw Pointer (spec §4.3.2).
	DerefMethod *symbol.Function
}

func (*UnaryExpr) isExpr() {}

// --- locations (spec §4.3.3) ---

// LocationRootKind tags the root element of a Location.
type LocationRootKind int

const (
	RootLocal LocationRootKind = iota
	RootParameter
	RootGlobal
	RootConstant
	RootFunction
	RootEnumVariant
	RootUnionCase
	RootExpr
)

// LocationRoot is the first element of a Location (spec §4.3.3).
type LocationRoot struct {
	Kind LocationRootKind

	Variable    *symbol.Variable // Local/Parameter/Global/Constant
	Function    *symbol.Function
	Enum        *symbol.Enumeration
	EnumVariant symbol.EnumVariant
	Union       *symbol.Union
	UnionCase   symbol.UnionCase
	Expr        Expr // RootExpr: an arbitrary expression producing an address
}

// LocationElemKind tags one non-root element of a Location.
type LocationElemKind int

const (
	ElemField LocationElemKind = iota
	ElemPtrField
	ElemTupleIndex
	ElemMethod
	ElemProtoMethod
	ElemUnionCaseField
	ElemIndex
)

// LocationElem navigates one step further into a Location (spec §4.3.3):
// fields, tuple indices, methods, pointer-dereference members, protocol
// method slots, or an indexing step.
type LocationElem struct {
	Kind LocationElemKind

	FieldIndex int // ElemField / ElemPtrField / ElemTupleIndex / ElemUnionCaseField
	FieldType  types.Type
	Method     *symbol.Function    // ElemMethod
	ProtoIndex int                 // ElemProtoMethod: vtable slot
	Proto      *types.ProtoType    // ElemProtoMethod
	IndexExpr  Expr                // ElemIndex
	ElemType   types.Type          // ElemIndex: the indexed-into element type
}

// Location is a resolved, non-empty l-value path (spec §4.3.3, Glossary
// "Location"): root.field1.field2....
type Location struct {
	Ty   types.Type
	Root LocationRoot
	Path []LocationElem
}

// LocationExpr wraps a Location as an expression (identifier/dot/self/
// tuple-index/array-index syntax, spec §4.3.2).
type LocationExpr struct {
	ExprHeader
	Loc Location
}

func (*LocationExpr) isExpr() {}

// --- calls, casts ---

type CallExpr struct {
	ExprHeader
	Callee Location
	Args   []Expr
}

func (*CallExpr) isExpr() {}

type CastExpr struct {
	ExprHeader
	Operand Expr
	To      types.Type
}

func (*CastExpr) isExpr() {}

// --- coercions (spec §4.3.2) ---

type CoerceKind int

const (
	CoerceOptionalSome CoerceKind = iota
	CoerceOptionalNone
	CoerceResultSuccess
	CoerceResultFailure
	CoerceUnionCase
)

// CoerceExpr wraps Inner when its static type is Optional<T>/Result<T,E>
// and Inner is a bare value, or when Inner is a concrete union-case
// expression being coerced into its owning union.
type CoerceExpr struct {
	ExprHeader
	Kind        CoerceKind
	Inner       Expr
	Constructor *symbol.Function // new_some/new_none/success/failure; nil for CoerceUnionCase
	CaseIndex   int               // CoerceUnionCase: the tag value to store
}

func (*CoerceExpr) isExpr() {}

// --- closures (spec §4.3.6) ---

type ClosureExpr struct {
	ExprHeader
	Func *symbol.Function // the closure's own (as-yet-unlowered) signature
	Body *Block
}

func (*ClosureExpr) isExpr() {}

// --- compile-time meta-expressions (spec §4.3.2) ---

type MetaKind int

const (
	MetaSizeOf MetaKind = iota
	MetaFields
	MetaHasMethod
)

// MetaExpr is a compile-time query already evaluated by the front end
// (spec §4.3.2: "evaluated at lowering time and replaced by their
// literal AST result, then lowered normally"); Result is that literal
// replacement, so lowering never special-cases MetaExpr itself — it
// just lowers Result.
type MetaExpr struct {
	ExprHeader
	Kind   MetaKind
	Target types.Type
	Name   string
	Result Expr
}

func (*MetaExpr) isExpr() {}
