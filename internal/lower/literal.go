package lower

import (
	"banyan/internal/ast"
	"banyan/internal/ssa"
)

// lowerExpr is the single dispatch point of spec §4.3.2: "every AST
// expression variant has a deterministic lowering rule." hints carries
// the caller's storage preference (storage.go); every case is free to
// ignore HintPreferReference but must honor HintDestination.
func (b *Builder) lowerExpr(e ast.Expr, hints StorageHints) StoredValue {
	switch v := e.(type) {
	case *ast.IntLit:
		t := b.typeOf(v.Type())
		return ValueOf(ssa.IntConst(v.Value, t), t)
	case *ast.FloatLit:
		t := b.typeOf(v.Type())
		return ValueOf(ssa.FloatConst(v.Value, t), t)
	case *ast.CharLit:
		return ValueOf(ssa.IntConst(int64(v.Value), ssa.TyI32), ssa.TyI32)
	case *ast.BoolLit:
		val := int64(0)
		if v.Value {
			val = 1
		}
		return ValueOf(ssa.IntConst(val, ssa.TyI8), ssa.TyI8)
	case *ast.NullLit:
		return ValueOf(ssa.IntConst(0, ssa.TyAddr), ssa.TyAddr)
	case *ast.SelfExpr:
		return b.lowerSelf(v)
	case *ast.StringLit:
		return b.lowerStringLit(v, hints)
	case *ast.ArrayLit:
		return b.lowerArrayLit(v, hints)
	case *ast.TupleLit:
		return b.lowerTupleLit(v, hints)
	case *ast.StructLit:
		return b.lowerStructLit(v, hints)
	case *ast.MapLit:
		return b.lowerMapLit(v, hints)
	case *ast.BinaryExpr:
		return b.lowerBinary(v)
	case *ast.UnaryExpr:
		return b.lowerUnary(v)
	case *ast.LocationExpr:
		return b.lowerLocationRead(v.Loc, hints)
	case *ast.CallExpr:
		return b.lowerCall(v, hints)
	case *ast.CastExpr:
		return b.lowerCast(v)
	case *ast.CoerceExpr:
		return b.lowerCoerce(v, hints)
	case *ast.ClosureExpr:
		return b.lowerClosure(v)
	case *ast.MetaExpr:
		// Compile-time queries are pre-evaluated by the front end (spec
		// §4.3.2); lowering only ever sees the literal replacement.
		return b.lowerExpr(v.Result, hints)
	default:
		b.unreachable("lowerExpr: unhandled expression node %T", e)
		return StoredValue{}
	}
}

// lowerSelf reads the implicit `self` parameter, which is IR argument 0
// by the calling convention functionSignature establishes, or argument 1
// when the hidden return slot occupies argument 0 (spec §4.3.4).
func (b *Builder) lowerSelf(v *ast.SelfExpr) StoredValue {
	t := b.typeOf(v.Type())
	idx := 0
	if b.returnByRef {
		idx++
	}
	r := b.block.LoadArg(ssa.TyAddr, idx)
	return RefOf(ssa.Reg(r, ssa.TyAddr), t)
}

// lowerStringLit emits the literal's bytes as a module-level global and
// returns its address, wrapping the result in a call to the coercion
// constructor when the static type calls for a String struct rather
// than a bare byte pointer (spec §4.3.2).
func (b *Builder) lowerStringLit(v *ast.StringLit, hints StorageHints) StoredValue {
	name := b.internString(v.Value)
	addr := ssa.GlobalRef(name, ssa.TyAddr)
	if v.CoerceToFn == nil {
		return ValueOf(addr, ssa.TyAddr)
	}
	fn := b.irFunc(linkName(v.CoerceToFn))
	result := b.typeOf(v.Type())
	dest := b.allocVia(hints, result)
	args := []ssa.Operand{addr, ssa.IntConst(int64(len(v.Value)), ssa.TyI64)}
	return b.emitDirectCall(fn, args, result, dest, hints)
}

func (b *Builder) internString(data []byte) string {
	name := "str." // deterministic per-module counter, not a process-global one
	for _, g := range b.Mod.Globals {
		if g.Initial.Kind == ssa.OpBytes && string(g.Initial.Bytes) == string(data) {
			return g.Name
		}
	}
	idx := 0
	for _, g := range b.Mod.Globals {
		if len(g.Name) > len(name) && g.Name[:len(name)] == name {
			idx++
		}
	}
	full := name + itoa(idx)
	b.Mod.Globals = append(b.Mod.Globals, &ssa.Global{
		Name:    full,
		Type:    ssa.ArrayType(ssa.TyI8, len(data)),
		Initial: ssa.BytesConst(data),
	})
	return full
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// lowerArrayLit materializes each element into consecutive array slots
// of a freshly (or caller-) allocated destination (spec §4.3.2).
func (b *Builder) lowerArrayLit(v *ast.ArrayLit, hints StorageHints) StoredValue {
	arrType := b.typeOf(v.Type())
	dest := b.allocVia(hints, arrType)
	var elemType ssa.Type
	if arrType.Kind == ssa.Array {
		elemType = *arrType.Elem
	}
	for i, elem := range v.Elems {
		slot := b.block.OffsetPtr(dest, ssa.IntConst(int64(i), ssa.TyI64), elemType)
		val := b.lowerExpr(elem, StorageHints{Kind: HintDestination, Dest: ssa.Reg(slot, ssa.TyAddr)})
		b.CopyTo(val, ssa.Reg(slot, ssa.TyAddr))
	}
	return RefOf(dest, arrType)
}

func (b *Builder) lowerTupleLit(v *ast.TupleLit, hints StorageHints) StoredValue {
	tupType := b.typeOf(v.Type())
	dest := b.allocVia(hints, tupType)
	for i, elem := range v.Elems {
		ptr := b.block.MemberPtr(tupType, dest, i)
		addr := ssa.Reg(ptr, ssa.TyAddr)
		val := b.lowerExpr(elem, StorageHints{Kind: HintDestination, Dest: addr})
		b.CopyTo(val, addr)
	}
	return RefOf(dest, tupType)
}

func (b *Builder) lowerStructLit(v *ast.StructLit, hints StorageHints) StoredValue {
	structType := ssa.StructType(v.Struct.Name)
	dest := b.allocVia(hints, structType)
	for _, f := range v.Fields {
		ptr := b.block.MemberPtr(structType, dest, f.Index)
		addr := ssa.Reg(ptr, ssa.TyAddr)
		val := b.lowerExpr(f.Value, StorageHints{Kind: HintDestination, Dest: addr})
		b.CopyTo(val, addr)
	}
	return RefOf(dest, structType)
}

// lowerMapLit has no dedicated IR representation (spec's data model has
// no built-in map type); it lowers to repeated calls against the
// standard map structure's insertion method, mirroring how
// StringLit coerces through a constructor call.
func (b *Builder) lowerMapLit(v *ast.MapLit, hints StorageHints) StoredValue {
	mapType := b.typeOf(v.Type())
	dest := b.allocVia(hints, mapType)
	insert := b.irFunc("Map.insert")
	if insert == nil {
		b.unreachable("map literal lowered without a resolved Map.insert method")
	}
	for _, entry := range v.Entries {
		key := b.TurnIntoValue(b.lowerExpr(entry.Key, StorageHints{}))
		val := b.TurnIntoValue(b.lowerExpr(entry.Value, StorageHints{}))
		b.block.Call(ssa.FuncRef(insert.Name), []ssa.Operand{dest, key.Operand, val.Operand}, ssa.TyVoid, false)
	}
	return RefOf(dest, mapType)
}

// lowerCoerce implements spec §4.3.2's "Coercion into standard library
// wrappers" rule: a bare value statically typed as Optional<T>/Result<T,E>
// is wrapped through its constructor (new_some/new_none/success/failure),
// and a concrete union-case expression being coerced into its owning
// union stores the tag then recursively lowers the payload into the
// data slot (spec §4.3.7's switch lowering is this same {tag, data}
// shape in reverse).
func (b *Builder) lowerCoerce(v *ast.CoerceExpr, hints StorageHints) StoredValue {
	resultType := b.typeOf(v.Type())

	if v.Kind == ast.CoerceUnionCase {
		dest := b.allocVia(hints, resultType)
		tagPtr := ssa.Reg(b.block.MemberPtr(resultType, dest, 0), ssa.TyAddr)
		b.block.Store(ssa.IntConst(int64(v.CaseIndex), ssa.TyI32), tagPtr)
		dataPtr := ssa.Reg(b.block.MemberPtr(resultType, dest, 1), ssa.TyAddr)
		payload := b.lowerExpr(v.Inner, StorageHints{Kind: HintDestination, Dest: dataPtr})
		b.CopyTo(payload, dataPtr)
		return RefOf(dest, resultType)
	}

	dest := b.allocVia(hints, resultType)
	ctor := b.irFunc(linkName(v.Constructor))
	if ctor == nil {
		b.unreachable("lowerCoerce: constructor did not resolve to a declared IR function")
	}
	if v.Inner == nil {
		// CoerceOptionalNone: a zero-argument constructor.
		return b.emitDirectCall(ctor, nil, resultType, dest, hints)
	}
	arg := b.TurnIntoValue(b.lowerExpr(v.Inner, StorageHints{}))
	return b.emitDirectCall(ctor, []ssa.Operand{arg.Operand}, resultType, dest, hints)
}
