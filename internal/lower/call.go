package lower

import (
	"banyan/internal/ast"
	"banyan/internal/ssa"
	"banyan/internal/symbol"
)

// emitDirectCall assembles and emits a call to an already-resolved IR
// function fn, handling the return-by-ref convention of spec §4.3.4:
// when fn's own signature takes a hidden first addr parameter, dest is
// prepended to args and the call itself produces no SSA value (the
// result was written through dest instead); otherwise the call yields a
// register value, which is copied into dest only when hints asks for a
// destination and is returned as a plain value otherwise.
func (b *Builder) emitDirectCall(fn *ssa.Function, args []ssa.Operand, resultType ssa.Type, dest ssa.Operand, hints StorageHints) StoredValue {
	if fn == nil {
		b.unreachable("emitDirectCall: callee did not resolve to a declared IR function")
	}
	if fn.ReturnType.Kind == ssa.Void && len(fn.ParamTypes) > 0 && fn.ParamTypes[0].Kind == ssa.Addr && resultType.Kind != ssa.Void {
		callArgs := append([]ssa.Operand{dest}, args...)
		b.block.Call(ssa.FuncRef(fn.Name), callArgs, ssa.TyVoid, false)
		return RefOf(dest, resultType)
	}
	r := b.block.Call(ssa.FuncRef(fn.Name), args, resultType, resultType.Kind != ssa.Void)
	if r == nil {
		return ValueOf(ssa.Operand{}, resultType)
	}
	val := ValueOf(ssa.Reg(*r, resultType), resultType)
	if hints.Kind == HintDestination {
		b.CopyTo(val, dest)
		return RefOf(dest, resultType)
	}
	return val
}

// lowerCall implements spec §4.3.4's call-site assembly: resolve the
// callee's kind (direct function, protocol method, fn-pointer value, or
// closure value), compute whether the callee returns by reference, and
// emit the lowered argument list with self/closure-context prepended as
// the callee's own signature dictates.
func (b *Builder) lowerCall(v *ast.CallExpr, hints StorageHints) StoredValue {
	resultType := b.typeOf(v.Type())

	switch v.Callee.Root.Kind {
	case ast.RootFunction:
		return b.lowerDirectCall(v, v.Callee.Root.Function, resultType, hints)
	}

	if len(v.Callee.Path) > 0 {
		last := v.Callee.Path[len(v.Callee.Path)-1]
		switch last.Kind {
		case ast.ElemMethod:
			return b.lowerMethodCall(v, last.Method, resultType, hints)
		case ast.ElemProtoMethod:
			return b.lowerProtoMethodCall(v, last, resultType, hints)
		}
	}

	return b.lowerIndirectCall(v, resultType, hints)
}

func (b *Builder) lowerDirectCall(v *ast.CallExpr, fn *symbol.Function, resultType ssa.Type, hints StorageHints) StoredValue {
	irFn := b.irFunc(linkName(fn))
	if irFn == nil && fn.Instance != nil {
		irFn = b.ensureGenericInstance(fn)
	}
	args := b.lowerArgs(v.Args, fn.Params)
	dest := b.allocVia(hints, resultType)
	return b.emitDirectCall(irFn, args, resultType, dest, hints)
}

// lowerMethodCall evaluates the receiver implied by Callee's path up to
// (not including) the trailing ElemMethod step, turns it into a
// reference (methods always take self by address, spec §4.3.3), and
// prepends it to the argument list.
func (b *Builder) lowerMethodCall(v *ast.CallExpr, method *symbol.Function, resultType ssa.Type, hints StorageHints) StoredValue {
	receiver := b.lowerLocationPrefix(v.Callee)
	self := b.TurnIntoReference(receiver)
	irFn := b.irFunc(linkName(method))
	if irFn == nil && method.Instance != nil {
		irFn = b.ensureGenericInstance(method)
	}
	args := append([]ssa.Operand{self.Operand}, b.lowerArgs(v.Args, method.Params)...)
	dest := b.allocVia(hints, resultType)
	return b.emitDirectCall(irFn, args, resultType, dest, hints)
}

// lowerProtoMethodCall dispatches through a fat pointer's vtable (spec
// §4.3.3): load the data pointer (field 0) and vtable pointer (field
// 1), memberptr into the vtable at the method's slot, load the
// function pointer, and call it indirectly with the data pointer as
// self.
func (b *Builder) lowerProtoMethodCall(v *ast.CallExpr, elem ast.LocationElem, resultType ssa.Type, hints StorageHints) StoredValue {
	receiver := b.TurnIntoReference(b.lowerLocationPrefix(v.Callee))
	fatPtrType := b.fatPointerType()

	dataPtrAddr := b.block.MemberPtr(fatPtrType, receiver.Operand, 0)
	dataPtr := b.block.Load(ssa.TyAddr, ssa.Reg(dataPtrAddr, ssa.TyAddr))
	vtablePtrAddr := b.block.MemberPtr(fatPtrType, receiver.Operand, 1)
	vtablePtr := b.block.Load(ssa.TyAddr, ssa.Reg(vtablePtrAddr, ssa.TyAddr))

	vtableType := ssa.StructType(vtableStructName(elem.Proto.Name))
	slot := b.block.MemberPtr(vtableType, ssa.Reg(vtablePtr, ssa.TyAddr), elem.ProtoIndex)
	fnPtr := b.block.Load(ssa.TyAddr, ssa.Reg(slot, ssa.TyAddr))

	callee := ssa.Reg(fnPtr, ssa.TyAddr)
	args := append([]ssa.Operand{ssa.Reg(dataPtr, ssa.TyAddr)}, b.lowerValueArgs(v.Args)...)
	dest := b.allocVia(hints, resultType)
	return b.emitIndirectCall(callee, args, resultType, dest, hints)
}

// lowerIndirectCall handles a call through a bare function-pointer or
// closure value (spec §4.3.4, §4.3.6). Closures carry a
// {fn_ptr, ctx_ptr} pair; the context pointer rides along as a
// prepended argument exactly like a method's self.
func (b *Builder) lowerIndirectCall(v *ast.CallExpr, resultType ssa.Type, hints StorageHints) StoredValue {
	calleeVal := b.lowerLocationPrefix(v.Callee)

	// A closure value lowers to a two-field {fn_ptr, ctx_ptr} struct
	// (convert.go's closureStruct); a bare function pointer lowers to a
	// plain addr. The two cases are told apart by the lowered value's
	// own IR type rather than by a second look at the language type,
	// since both ultimately reduce to "is there a context pointer to
	// thread through."
	ref := b.TurnIntoReference(calleeVal)
	if ref.ValueType.Kind == ssa.Struct {
		fnPtrAddr := b.block.MemberPtr(ref.ValueType, ref.Operand, 0)
		ctxPtrAddr := b.block.MemberPtr(ref.ValueType, ref.Operand, 1)
		fnPtr := b.block.Load(ssa.TyAddr, ssa.Reg(fnPtrAddr, ssa.TyAddr))
		ctxPtr := b.block.Load(ssa.TyAddr, ssa.Reg(ctxPtrAddr, ssa.TyAddr))
		args := append([]ssa.Operand{ssa.Reg(ctxPtr, ssa.TyAddr)}, b.lowerValueArgs(v.Args)...)
		dest := b.allocVia(hints, resultType)
		return b.emitIndirectCall(ssa.Reg(fnPtr, ssa.TyAddr), args, resultType, dest, hints)
	}

	callee := b.TurnIntoValue(calleeVal)
	args := b.lowerValueArgs(v.Args)
	dest := b.allocVia(hints, resultType)
	return b.emitIndirectCall(callee.Operand, args, resultType, dest, hints)
}

func (b *Builder) emitIndirectCall(callee ssa.Operand, args []ssa.Operand, resultType ssa.Type, dest ssa.Operand, hints StorageHints) StoredValue {
	r := b.block.Call(callee, args, resultType, resultType.Kind != ssa.Void)
	if r == nil {
		return ValueOf(ssa.Operand{}, resultType)
	}
	val := ValueOf(ssa.Reg(*r, resultType), resultType)
	if hints.Kind == HintDestination {
		b.CopyTo(val, dest)
		return RefOf(dest, resultType)
	}
	return val
}

// lowerArgs lowers each argument against its declared parameter's
// by-value-or-by-reference convention: a parameter whose IR type does
// not fit in a register is passed by reference (spec §4.3.1's
// StoredValue keeps aggregates as addresses until a register-sized value
// is specifically needed), everything else by value.
func (b *Builder) lowerArgs(args []ast.Expr, params []*symbol.Variable) []ssa.Operand {
	out := make([]ssa.Operand, len(args))
	for i, a := range args {
		val := b.lowerExpr(a, StorageHints{})
		if i < len(params) && !b.fitsInRegister(b.typeOf(params[i].Type)) {
			out[i] = b.TurnIntoReference(val).Operand
		} else {
			out[i] = b.TurnIntoValue(val).Operand
		}
	}
	return out
}

// lowerValueArgs lowers a call's argument list with no parameter-type
// context available (protocol/indirect dispatch, spec §4.3.3/§4.3.4):
// every argument that fits a register is passed by value, everything
// else by reference.
func (b *Builder) lowerValueArgs(args []ast.Expr) []ssa.Operand {
	out := make([]ssa.Operand, len(args))
	for i, a := range args {
		val := b.lowerExpr(a, StorageHints{})
		if b.fitsInRegister(val.ValueType) {
			out[i] = b.TurnIntoValue(val).Operand
		} else {
			out[i] = b.TurnIntoReference(val).Operand
		}
	}
	return out
}

// lowerLocationPrefix lowers the receiver expression a method/closure
// call's callee is rooted in: everything in Callee's Location up to but
// not including the final dispatch step.
func (b *Builder) lowerLocationPrefix(callee ast.Location) StoredValue {
	if len(callee.Path) == 0 {
		return b.lowerLocationRoot(callee.Root)
	}
	prefix := ast.Location{Ty: callee.Path[len(callee.Path)-1].FieldType, Root: callee.Root, Path: callee.Path[:len(callee.Path)-1]}
	return b.lowerLocationRead(prefix, StorageHints{})
}
