package lower

import (
	"math/big"
	"strings"

	"banyan/internal/ssa"
	"banyan/internal/types"
)

// typeOf maps a language-level types.Type to its IR-level representation
// (spec §4.3.5's "Type mapping" table). Composite shapes the IR has no
// direct primitive for (unions, protocol values, tuples, closures) are
// lazily registered as ssa.StructDef entries keyed by a deterministic
// name, so two lowerings of a structurally-equal type converge on one
// definition.
func (b *Builder) typeOf(t types.Type) ssa.Type {
	if b.genericArgs != nil {
		t = types.Substitute(t, b.genericArgs)
	}
	switch v := t.(type) {
	case *types.PrimitiveType:
		return primitiveSSA(v.Kind)
	case *types.StructType:
		return ssa.StructType(v.Name)
	case *types.EnumType:
		// C-like enums carry only their discriminant at runtime (spec
		// §3.1: "backed by an integer discriminant"); no separate IR
		// struct is needed.
		return ssa.TyI32
	case *types.UnionType:
		b.ensureUnionLayout(v)
		return ssa.StructType(unionStructName(v.Name))
	case *types.UnionCaseTypeRef:
		b.ensureUnionLayout(v.Union)
		return ssa.StructType(unionStructName(v.Union.Name))
	case *types.ProtoType:
		return b.fatPointerType()
	case *types.PointerType:
		return ssa.TyAddr
	case *types.StaticArrayType:
		elem := b.typeOf(v.Elem)
		return ssa.ArrayType(elem, int(v.Length))
	case *types.TupleType:
		return b.tupleStruct(v)
	case *types.FunctionType:
		return ssa.TyAddr
	case *types.ClosureType:
		return b.closureStruct(v)
	case *types.GenericType:
		b.unreachable("unsubstituted generic parameter reached lowering: $%d", v.ParamIndex)
		return ssa.TyVoid
	default:
		b.unreachable("typeOf: unhandled language type %T", t)
		return ssa.TyVoid
	}
}

func primitiveSSA(p types.Primitive) ssa.Type {
	switch p {
	case types.I8, types.U8, types.Bool:
		return ssa.TyI8
	case types.I16, types.U16:
		return ssa.TyI16
	case types.I32, types.U32:
		return ssa.TyI32
	case types.I64, types.U64:
		return ssa.TyI64
	case types.F32:
		return ssa.TyF32
	case types.F64:
		return ssa.TyF64
	case types.Addr:
		return ssa.TyAddr
	case types.Void:
		return ssa.TyVoid
	default:
		return ssa.TyI32
	}
}

// ensureUnionLayout registers u's {tag, data} backing struct if it has
// not been already (typeOf.case *types.UnionType can run ahead of
// registerUnion when a function signature mentions a union the module
// declaration pass has not reached yet).
func (b *Builder) ensureUnionLayout(u *types.UnionType) *ssa.StructDef {
	name := unionStructName(u.Name)
	if def, ok := b.structDefs[name]; ok {
		return def
	}
	maxSize := 0
	for _, c := range u.Cases {
		size := 0
		for _, f := range c.Fields {
			size += b.Layout.SizeOf(b.typeOf(f.Type), b.structLookup)
		}
		if size > maxSize {
			maxSize = size
		}
	}
	return b.ensureStructDef(name, []ssa.Type{ssa.TyI32, ssa.ArrayType(ssa.TyI8, maxSize)})
}

// tupleStruct registers (and returns) the backing struct for a tuple
// type, one field per element in order; the name is derived from the
// element types so structurally-equal tuples share one definition
// (spec §4.3.5: composite language types "lower to an IR struct with
// one field per element").
func (b *Builder) tupleStruct(t *types.TupleType) ssa.Type {
	fields := make([]ssa.Type, len(t.Elems))
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		fields[i] = b.typeOf(e)
		parts[i] = fields[i].String()
	}
	name := "tuple." + strings.Join(parts, ".")
	b.ensureStructDef(name, fields)
	return ssa.StructType(name)
}

// closureStruct registers the two-field {fn_ptr, ctx_ptr} record every
// closure value of this signature lowers to (spec §4.3.6). Distinct
// closure literals of the same signature share this shape; their
// per-literal captured-field extension lives in a separate struct
// pointed to by ctx_ptr, built in closure.go.
func (b *Builder) closureStruct(t *types.ClosureType) ssa.Type {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = b.typeOf(p).String()
	}
	name := "closure.fn." + strings.Join(parts, ".") + "->" + b.typeOf(t.Ret).String()
	b.ensureStructDef(name, []ssa.Type{ssa.TyAddr, ssa.TyAddr})
	return ssa.StructType(name)
}

// numericConvertOp selects the conversion opcode of spec §4.3.5's table
// for a cast from "from" to "to" (equal-size bitcast, sign/zero extend,
// truncate, float widen/narrow, or an int<->float conversion honoring
// signedness on both ends).
func (b *Builder) numericConvertOp(fromLang, toLang types.Type) ssa.Opcode {
	fromP, fOk := fromLang.(*types.PrimitiveType)
	toP, tOk := toLang.(*types.PrimitiveType)
	if !fOk || !tOk {
		b.unreachable("numeric conversion between non-primitive types %s -> %s", fromLang, toLang)
	}

	fromFloat, toFloat := fromP.Kind.IsFloat(), toP.Kind.IsFloat()
	from, to := primitiveSSA(fromP.Kind), primitiveSSA(toP.Kind)

	switch {
	case fromFloat && toFloat:
		if to.Bits() == 0 || from.Bits() == 0 {
			if to == ssa.TyF64 {
				return ssa.OpFPromote
			}
			return ssa.OpFDemote
		}
		if to.Bits() > from.Bits() {
			return ssa.OpFPromote
		}
		return ssa.OpFDemote
	case fromFloat && !toFloat:
		if toP.Kind.IsSigned() {
			return ssa.OpFtoS
		}
		return ssa.OpFtoU
	case !fromFloat && toFloat:
		if fromP.Kind.IsSigned() {
			return ssa.OpStoF
		}
		return ssa.OpUtoF
	default:
		if from.Bits() == to.Bits() {
			return ssa.OpUExtend // equal-size: lowerCast emits nothing for this case and keeps the operand
		}
		if to.Bits() < from.Bits() {
			return ssa.OpTruncate
		}
		if fromP.Kind.IsSigned() {
			return ssa.OpSExtend
		}
		return ssa.OpUExtend
	}
}

// lowerCast implements spec §4.3.5's numeric conversion rules for an
// explicit `as`-style cast expression. An integer-immediate operand
// converting to a float type is folded at lowering time rather than
// emitting a conversion instruction (spec §4.3.2's literal-evaluation
// rule for this exact case). An equal-size cast within one domain
// (int to int, float to float) only retypes the operand and emits no
// instruction; every other pair goes through numericConvertOp and a
// single conversion instruction.
func (b *Builder) lowerCast(v *ast.CastExpr) StoredValue {
	fromType := v.Operand.Type()
	toIR := b.typeOf(v.To)

	operand := b.TurnIntoValue(b.lowerExpr(v.Operand, StorageHints{}))

	if operand.Operand.Kind == ssa.OpIntImm {
		if toP, ok := v.To.(*types.PrimitiveType); ok && toP.Kind.IsFloat() {
			f := new(big.Float).SetInt(operand.Operand.IntImm)
			fv, _ := f.Float64()
			return ValueOf(ssa.FloatConst(fv, toIR), toIR)
		}
	}

	if fromP, ok := fromType.(*types.PrimitiveType); ok {
		if toP, ok := v.To.(*types.PrimitiveType); ok && fromP.Kind.IsFloat() == toP.Kind.IsFloat() && operand.ValueType == toIR {
			return ValueOf(operand.Operand, toIR)
		}
	}

	op := b.numericConvertOp(fromType, v.To)
	r := b.block.Convert(op, operand.Operand, toIR)
	return ValueOf(ssa.Reg(r, toIR), toIR)
}
