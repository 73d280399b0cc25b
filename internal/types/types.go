// Package types implements the language-level type model (spec §3.1):
// a closed variant of types with structural equality, interned per
// compilation unit by the callers that build them.
package types

import (
	"fmt"
	"strings"
)

// Primitive enumerates the scalar kinds every other type bottoms out in.
type Primitive int

const (
	I8 Primitive = iota
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	Bool
	Addr
	Void
)

func (p Primitive) String() string {
	switch p {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Bool:
		return "bool"
	case Addr:
		return "addr"
	case Void:
		return "void"
	default:
		return "?primitive"
	}
}

// IsInt reports whether the primitive is one of the integer kinds.
func (p Primitive) IsInt() bool {
	switch p {
	case I8, I16, I32, I64, U8, U16, U32, U64:
		return true
	default:
		return false
	}
}

// IsSigned reports whether the primitive is a signed integer kind.
func (p Primitive) IsSigned() bool {
	switch p {
	case I8, I16, I32, I64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether the primitive is a floating-point kind.
func (p Primitive) IsFloat() bool { return p == F32 || p == F64 }

// Type is the closed variant described in spec §3.1. Every concrete
// type below implements it; equality is always structural, via Equals.
type Type interface {
	String() string
	Equals(Type) bool
}

// PrimitiveType wraps a Primitive as a Type.
type PrimitiveType struct{ Kind Primitive }

func (t *PrimitiveType) String() string { return t.Kind.String() }
func (t *PrimitiveType) Equals(o Type) bool {
	other, ok := o.(*PrimitiveType)
	return ok && other.Kind == t.Kind
}

// StructType refers to a declared structure by name and field layout.
// The Structure itself lives in package symbol; types only needs the
// shape for structural equality and size queries, so it stores a light
// descriptor rather than importing symbol (which imports types).
type StructType struct {
	Name   string
	Fields []Field
}

// Field is one named, typed member of a struct or union case.
type Field struct {
	Name string
	Type Type
}

func (t *StructType) String() string { return "struct " + t.Name }
func (t *StructType) Equals(o Type) bool {
	other, ok := o.(*StructType)
	return ok && other.Name == t.Name
}

// EnumType refers to a declared enumeration by name.
type EnumType struct {
	Name     string
	Variants []EnumVariant
}

// EnumVariant is one member of an enumeration with its discriminant.
type EnumVariant struct {
	Name        string
	Discriminant int64
}

func (t *EnumType) String() string { return "enum " + t.Name }
func (t *EnumType) Equals(o Type) bool {
	other, ok := o.(*EnumType)
	return ok && other.Name == t.Name
}

// UnionType refers to a declared tagged union by name.
type UnionType struct {
	Name  string
	Cases []UnionCaseType
}

// UnionCaseType describes one case of a tagged union: its ordered field
// list and its position (used as the runtime tag value).
type UnionCaseType struct {
	Name   string
	Index  int
	Fields []Field
}

func (t *UnionType) String() string { return "union " + t.Name }
func (t *UnionType) Equals(o Type) bool {
	other, ok := o.(*UnionType)
	return ok && other.Name == t.Name
}

// UnionCaseTypeRef is the type of a bare union-case expression before it
// is coerced into its owning union (spec §4.3.2, "coercion into union").
type UnionCaseTypeRef struct {
	Union *UnionType
	Case  UnionCaseType
}

func (t *UnionCaseTypeRef) String() string { return t.Union.Name + "." + t.Case.Name }
func (t *UnionCaseTypeRef) Equals(o Type) bool {
	other, ok := o.(*UnionCaseTypeRef)
	return ok && other.Union.Name == t.Union.Name && other.Case.Name == t.Case.Name
}

// ProtoType refers to a declared protocol by name and its ordered method
// signatures, position being the vtable index (spec §3.1, §4.3.3).
type ProtoType struct {
	Name    string
	Methods []MethodSig
}

// MethodSig is one protocol method signature.
type MethodSig struct {
	Name   string
	Params []Type
	Ret    Type
}

func (t *ProtoType) String() string { return "proto " + t.Name }
func (t *ProtoType) Equals(o Type) bool {
	other, ok := o.(*ProtoType)
	return ok && other.Name == t.Name
}

// PointerType is a pointer to Elem.
type PointerType struct{ Elem Type }

func (t *PointerType) String() string { return "*" + t.Elem.String() }
func (t *PointerType) Equals(o Type) bool {
	other, ok := o.(*PointerType)
	return ok && other.Elem.Equals(t.Elem)
}

// StaticArrayType is a fixed-length array of Elem.
type StaticArrayType struct {
	Elem   Type
	Length int64
}

func (t *StaticArrayType) String() string {
	return fmt.Sprintf("[%s; %d]", t.Elem.String(), t.Length)
}
func (t *StaticArrayType) Equals(o Type) bool {
	other, ok := o.(*StaticArrayType)
	return ok && other.Length == t.Length && other.Elem.Equals(t.Elem)
}

// TupleType is an ordered, fixed-arity product type.
type TupleType struct{ Elems []Type }

func (t *TupleType) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
func (t *TupleType) Equals(o Type) bool {
	other, ok := o.(*TupleType)
	if !ok || len(other.Elems) != len(t.Elems) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Equals(other.Elems[i]) {
			return false
		}
	}
	return true
}

// FunctionType is a first-class function pointer type (no captures).
type FunctionType struct {
	Params []Type
	Ret    Type
}

func (t *FunctionType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return "fn(" + strings.Join(parts, ", ") + ") -> " + t.Ret.String()
}
func (t *FunctionType) Equals(o Type) bool {
	other, ok := o.(*FunctionType)
	if !ok || !t.Ret.Equals(other.Ret) || len(t.Params) != len(other.Params) {
		return false
	}
	for i := range t.Params {
		if !t.Params[i].Equals(other.Params[i]) {
			return false
		}
	}
	return true
}

// ClosureType is a function type paired with a captured context: lowers
// to the two-field {fn_ptr, ctx_ptr} record of spec §4.3.6.
type ClosureType struct {
	Params []Type
	Ret    Type
}

func (t *ClosureType) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return "closure(" + strings.Join(parts, ", ") + ") -> " + t.Ret.String()
}
func (t *ClosureType) Equals(o Type) bool {
	other, ok := o.(*ClosureType)
	if !ok || !t.Ret.Equals(other.Ret) || len(t.Params) != len(other.Params) {
		return false
	}
	for i := range t.Params {
		if !t.Params[i].Equals(other.Params[i]) {
			return false
		}
	}
	return true
}

// GenericType stands for an unsubstituted generic parameter, identified
// by its position in the owning entity's parameter list.
type GenericType struct{ ParamIndex int }

func (t *GenericType) String() string { return fmt.Sprintf("$%d", t.ParamIndex) }
func (t *GenericType) Equals(o Type) bool {
	other, ok := o.(*GenericType)
	return ok && other.ParamIndex == t.ParamIndex
}

// Substitute replaces every GenericType in t with the corresponding
// entry of args, recursively. Used by generic instantiation (spec §4.1).
func Substitute(t Type, args []Type) Type {
	switch v := t.(type) {
	case *GenericType:
		if v.ParamIndex < len(args) {
			return args[v.ParamIndex]
		}
		return t
	case *PointerType:
		return &PointerType{Elem: Substitute(v.Elem, args)}
	case *StaticArrayType:
		return &StaticArrayType{Elem: Substitute(v.Elem, args), Length: v.Length}
	case *TupleType:
		elems := make([]Type, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = Substitute(e, args)
		}
		return &TupleType{Elems: elems}
	case *FunctionType:
		params := make([]Type, len(v.Params))
		for i, p := range v.Params {
			params[i] = Substitute(p, args)
		}
		return &FunctionType{Params: params, Ret: Substitute(v.Ret, args)}
	case *ClosureType:
		params := make([]Type, len(v.Params))
		for i, p := range v.Params {
			params[i] = Substitute(p, args)
		}
		return &ClosureType{Params: params, Ret: Substitute(v.Ret, args)}
	default:
		return t
	}
}

// Convenience constructors for the primitive singletons, mirroring the
// teacher's pattern of exposing ready-made Type values rather than
// making every caller build &PrimitiveType{Kind: ...} by hand.
var (
	TypeI8   = &PrimitiveType{Kind: I8}
	TypeI16  = &PrimitiveType{Kind: I16}
	TypeI32  = &PrimitiveType{Kind: I32}
	TypeI64  = &PrimitiveType{Kind: I64}
	TypeU8   = &PrimitiveType{Kind: U8}
	TypeU16  = &PrimitiveType{Kind: U16}
	TypeU32  = &PrimitiveType{Kind: U32}
	TypeU64  = &PrimitiveType{Kind: U64}
	TypeF32  = &PrimitiveType{Kind: F32}
	TypeF64  = &PrimitiveType{Kind: F64}
	TypeBool = &PrimitiveType{Kind: Bool}
	TypeAddr = &PrimitiveType{Kind: Addr}
	TypeVoid = &PrimitiveType{Kind: Void}
)
