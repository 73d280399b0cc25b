package lower

import (
	"banyan/internal/ast"
	"banyan/internal/ssa"
	"banyan/internal/symbol"
)

// lowerLocationRoot resolves the first element of a Location (spec
// §4.3.3): a local/parameter's stack slot, a global/constant's symbol,
// a bare function reference, an enum variant's discriminant constant,
// a union case's zero-arity constructor, or an arbitrary sub-expression
// acting as its own root (`(expr).field`).
func (b *Builder) lowerLocationRoot(root ast.LocationRoot) StoredValue {
	switch root.Kind {
	case ast.RootLocal, ast.RootParameter:
		return b.lowerVariableRoot(root.Variable)
	case ast.RootGlobal:
		t := b.typeOf(root.Variable.Type)
		return RefOf(ssa.GlobalRef(root.Variable.Name, t), t)
	case ast.RootConstant:
		// Constants have no runtime storage distinct from a global in
		// this IR model; they lower identically (spec §3.1 draws the
		// Constant/Global line at the language level, not the IR level).
		t := b.typeOf(root.Variable.Type)
		return RefOf(ssa.GlobalRef(root.Variable.Name, t), t)
	case ast.RootFunction:
		fn := root.Function
		if fn.Instance != nil && b.irFunc(linkName(fn)) == nil {
			b.ensureGenericInstance(fn)
		}
		return ValueOf(ssa.FuncRef(linkName(fn)), ssa.TyAddr)
	case ast.RootEnumVariant:
		return ValueOf(ssa.IntConst(root.EnumVariant.Discriminant, ssa.TyI32), ssa.TyI32)
	case ast.RootUnionCase:
		return b.lowerUnionCaseConstructor(root.Union, root.UnionCase)
	case ast.RootExpr:
		return b.lowerExpr(root.Expr, StorageHints{})
	default:
		b.unreachable("lowerLocationRoot: unhandled root kind %d", root.Kind)
		return StoredValue{}
	}
}

// lowerVariableRoot looks up a local/parameter's stack slot, checking
// for a captured-variable rewrite first: when the current lowering
// context is inside a closure body and v was declared in an enclosing
// function, the read is redirected through the closure's context
// pointer (spec §4.3.6) instead of b.locals, which never held an entry
// for v in the first place within this nested function.
func (b *Builder) lowerVariableRoot(v *symbol.Variable) StoredValue {
	if b.closure != nil {
		if idx, captured := b.closure.captureIndex(v); captured {
			return b.lowerCapturedRead(idx, v)
		}
	}
	slot, ok := b.locals[v]
	if !ok {
		b.unreachable("lowerVariableRoot: %q has no allocated stack slot", v.Name)
	}
	t := b.typeOf(v.Type)
	return RefOf(ssa.Reg(slot, ssa.TyAddr), t)
}

// lowerUnionCaseConstructor builds a zero-argument union value whose
// tag is the case's index and whose payload is left zeroed — used when
// a case with no fields is referenced as a bare value rather than
// called (spec §4.3.2's coercion-into-union path handles the
// with-arguments form via CoerceExpr/CallExpr instead).
func (b *Builder) lowerUnionCaseConstructor(u *symbol.Union, c symbol.UnionCase) StoredValue {
	unionType := ssa.StructType(unionStructName(u.Name))
	dest := ssa.Reg(b.allocaEntry(unionType), ssa.TyAddr)
	tagPtr := b.block.MemberPtr(unionType, dest, 0)
	b.block.Store(ssa.IntConst(int64(c.Index), ssa.TyI32), ssa.Reg(tagPtr, ssa.TyAddr))
	return RefOf(dest, unionType)
}

// lowerLocationRead walks loc's Path on top of its resolved root,
// producing the final addressed/valued result (spec §4.3.3). Each step
// narrows the current StoredValue (always turned into a reference
// first, since every path step needs an address to navigate from)
// further into the aggregate.
func (b *Builder) lowerLocationRead(loc ast.Location, hints StorageHints) StoredValue {
	cur := b.lowerLocationRoot(loc.Root)

	for i, elem := range loc.Path {
		last := i == len(loc.Path)-1
		switch elem.Kind {
		case ast.ElemField, ast.ElemUnionCaseField:
			ref := b.TurnIntoReference(cur)
			ptr := b.block.MemberPtr(ref.ValueType, ref.Operand, elem.FieldIndex)
			cur = RefOf(ssa.Reg(ptr, ssa.TyAddr), b.typeOf(elem.FieldType))
		case ast.ElemPtrField:
			// Dereference a pointer-typed field, then index into it
			// (`ptr.field` sugar over an explicit raw Pointer, spec
			// §4.3.3).
			val := b.TurnIntoValue(cur)
			ptr := b.block.MemberPtr(b.typeOf(elem.FieldType), val.Operand, elem.FieldIndex)
			cur = RefOf(ssa.Reg(ptr, ssa.TyAddr), b.typeOf(elem.FieldType))
		case ast.ElemTupleIndex:
			ref := b.TurnIntoReference(cur)
			ptr := b.block.MemberPtr(ref.ValueType, ref.Operand, elem.FieldIndex)
			cur = RefOf(ssa.Reg(ptr, ssa.TyAddr), b.typeOf(elem.FieldType))
		case ast.ElemIndex:
			ref := b.TurnIntoReference(cur)
			idx := b.TurnIntoValue(b.lowerExpr(elem.IndexExpr, StorageHints{}))
			elemType := b.typeOf(elem.ElemType)
			ptr := b.block.OffsetPtr(ref.Operand, idx.Operand, elemType)
			cur = RefOf(ssa.Reg(ptr, ssa.TyAddr), elemType)
		case ast.ElemMethod, ast.ElemProtoMethod:
			// A method/proto-method step only ever appears as the final
			// element of a call's callee location (call.go strips it
			// off via lowerLocationPrefix before walking here); reaching
			// it mid-walk means the front end produced a location this
			// lowering doesn't support.
			if !last {
				b.unreachable("lowerLocationRead: method step not in tail position")
			}
		default:
			b.unreachable("lowerLocationRead: unhandled path element kind %d", elem.Kind)
		}
	}

	if hints.Kind == HintDestination {
		b.CopyTo(cur, hints.Dest)
		return RefOf(hints.Dest, cur.ValueType)
	}
	return cur
}
