package lower

import (
	"fmt"

	"banyan/internal/ast"
	"banyan/internal/ssa"
	"banyan/internal/symbol"
)

// closureCtx is the per-closure-body lowering state: which outer
// variables were captured, in what order (fixing the backing struct's
// field layout), and where the loaded context pointer lives once the
// body starts executing. Grounded in original_source's
// closure_ir_builder.cpp, which resolves captures by walking the
// closure's body for free variables before emitting anything.
type closureCtx struct {
	enclosing  *closureCtx // non-nil when closures nest
	captured   []*symbol.Variable
	ctxType    ssa.Type
	ctxAddr    ssa.Operand
}

func (c *closureCtx) captureIndex(v *symbol.Variable) (int, bool) {
	for i, cv := range c.captured {
		if cv == v {
			return i, true
		}
	}
	return 0, false
}

// lowerCapturedRead reads captured variable v out of the active
// closure's context block: field idx holds the *address* of v in the
// enclosing function's frame (captures are always by reference, so
// mutations after capture remain visible, spec §4.3.6), so this loads
// that address rather than the value directly.
func (b *Builder) lowerCapturedRead(idx int, v *symbol.Variable) StoredValue {
	fieldPtr := b.block.MemberPtr(b.closure.ctxType, b.closure.ctxAddr, idx)
	addr := b.block.Load(ssa.TyAddr, ssa.Reg(fieldPtr, ssa.TyAddr))
	return RefOf(ssa.Reg(addr, ssa.TyAddr), b.typeOf(v.Type))
}

// lowerClosure implements spec §4.3.6: a closure literal lowers to a
// freshly-named nested function plus a malloc'd context block holding
// the addresses of every outer variable its body references, and the
// resulting value is the two-field {fn_ptr, ctx_ptr} record
// convert.go's closureStruct registers.
func (b *Builder) lowerClosure(v *ast.ClosureExpr) StoredValue {
	captured := collectCaptures(v.Body, paramSet(v.Func.Params))

	name := fmt.Sprintf("%s.$%d", b.enclosingName(), b.closureID)
	b.closureID++

	ctxFields := make([]ssa.Type, len(captured))
	for i := range captured {
		ctxFields[i] = ssa.TyAddr
	}
	ctxType := ssa.StructType(b.ensureStructDef("closure.ctx."+name, ctxFields).Name)

	v.Func.LinkName = name
	b.declareFunction(v.Func)
	// The nested function takes the context pointer as a leading
	// parameter, after the hidden return slot if it has one.
	irFn := b.irFunc(name)
	ctxIdx := 0
	if _, _, returnByRef := b.functionSignature(v.Func); returnByRef {
		ctxIdx = 1
	}
	irFn.ParamTypes = append(append(append([]ssa.Type{}, irFn.ParamTypes[:ctxIdx]...), ssa.TyAddr), irFn.ParamTypes[ctxIdx:]...)

	// Build the context block in the *current* (enclosing) block before
	// descending into the nested body.
	ctxSize := b.Layout.SizeOf(ctxType, b.structLookup)
	mallocFn := b.ensureMalloc()
	ctxRaw := b.block.Call(ssa.FuncRef(mallocFn.Name), []ssa.Operand{ssa.IntConst(int64(ctxSize), ssa.TyI64)}, ssa.TyAddr, true)
	ctxAddr := ssa.Reg(*ctxRaw, ssa.TyAddr)
	for i, cv := range captured {
		outerSlot := b.lowerVariableRoot(cv) // always a reference: the outer stack address
		fieldPtr := b.block.MemberPtr(ctxType, ctxAddr, i)
		b.block.Store(outerSlot.Operand, ssa.Reg(fieldPtr, ssa.TyAddr))
	}

	b.lowerClosureBody(v.Func, v.Body, &closureCtx{enclosing: b.closure, captured: captured, ctxType: ctxType})

	closureType := b.typeOf(v.Type())
	dest := ssa.Reg(b.allocaEntry(closureType), ssa.TyAddr)
	fnPtrSlot := b.block.MemberPtr(closureType, dest, 0)
	b.block.Store(ssa.FuncRef(name), ssa.Reg(fnPtrSlot, ssa.TyAddr))
	ctxPtrSlot := b.block.MemberPtr(closureType, dest, 1)
	b.block.Store(ctxAddr, ssa.Reg(ctxPtrSlot, ssa.TyAddr))

	return RefOf(dest, closureType)
}

// ensureMalloc registers (once per module) the runtime allocator a
// closure's context block and boxed-move targets are carved from (spec
// §4.3.6's "malloc'd context"); this repo's IR model treats the
// allocator itself as an external C runtime symbol, not something
// lowering or the optimizer pipeline synthesizes.
func (b *Builder) ensureMalloc() *ssa.ExternFunction {
	for _, f := range b.Mod.ExternFunctions {
		if f.Name == "malloc" {
			return f
		}
	}
	f := &ssa.ExternFunction{Name: "malloc", ParamTypes: []ssa.Type{ssa.TyI64}, ReturnType: ssa.TyAddr, CallConv: "c"}
	b.Mod.ExternFunctions = append(b.Mod.ExternFunctions, f)
	return f
}

// lowerClosureBody lowers fn's body as a nested function, saving and
// restoring every piece of builder state the enclosing function's own
// lowering still needs once this call returns (spec §4.3.6 treats a
// closure body as an ordinary function lowering with one extra
// leading context parameter).
func (b *Builder) lowerClosureBody(fn *symbol.Function, body *ast.Block, cctx *closureCtx) {
	savedFn, savedBlock := b.fn, b.block
	savedCursor := b.allocaCursor
	savedLocals := b.locals
	savedReturnSlot, savedReturnByRef, savedResultType := b.returnSlot, b.returnByRef, b.resultType
	savedExit := b.funcExit
	savedCurFunc := b.curFunc
	savedClosure := b.closure
	savedLoops, savedMoves, savedDeinits := b.loops, b.moves, b.deinits
	defer func() {
		b.fn, b.block = savedFn, savedBlock
		b.allocaCursor = savedCursor
		b.locals = savedLocals
		b.returnSlot, b.returnByRef, b.resultType = savedReturnSlot, savedReturnByRef, savedResultType
		b.funcExit = savedExit
		b.curFunc = savedCurFunc
		b.closure = savedClosure
		b.loops, b.moves, b.deinits = savedLoops, savedMoves, savedDeinits
	}()

	irFn := b.irFunc(linkName(fn))
	b.fn = irFn
	b.block = irFn.Entry
	b.allocaCursor = 0
	b.locals = map[*symbol.Variable]ssa.VReg{}
	b.curFunc = fn
	b.closure = cctx
	b.loops, b.moves, b.deinits = nil, nil, nil

	_, retType, returnByRef := b.functionSignature(fn)
	b.returnByRef = returnByRef
	b.resultType = retType

	argIdx := 0
	if returnByRef {
		slot := b.block.LoadArg(ssa.TyAddr, argIdx)
		retOp := ssa.Reg(slot, ssa.TyAddr)
		b.returnSlot = &retOp
		argIdx++
	}
	ctxSlot := b.block.LoadArg(ssa.TyAddr, argIdx)
	cctx.ctxAddr = ssa.Reg(ctxSlot, ssa.TyAddr)
	argIdx++
	b.bindParams(fn.Params, argIdx)

	b.lowerBlock(body)
	b.ensureTerminated()
}

// enclosingName names the function currently being lowered, for
// deriving a closure's own link name; falls back to the module name
// for the unusual case of a closure at module scope with no enclosing
// function.
func (b *Builder) enclosingName() string {
	if b.curFunc != nil {
		return linkName(b.curFunc)
	}
	return b.Mod.Name
}

func paramSet(params []*symbol.Variable) map[*symbol.Variable]bool {
	out := map[*symbol.Variable]bool{}
	for _, p := range params {
		out[p] = true
	}
	return out
}

// collectCaptures walks body for every Location rooted at a
// local/parameter not in bound, returning them in first-reference
// order with duplicates removed. bound grows as nested blocks/for-loop
// induction variables/try-arm bindings are visited.
func collectCaptures(body *ast.Block, bound map[*symbol.Variable]bool) []*symbol.Variable {
	var order []*symbol.Variable
	seen := map[*symbol.Variable]bool{}
	add := func(v *symbol.Variable) {
		if v == nil || bound[v] || seen[v] {
			return
		}
		seen[v] = true
		order = append(order, v)
	}

	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)
	var walkBlock func(*ast.Block, map[*symbol.Variable]bool)

	walkLocation := func(loc ast.Location) {
		if loc.Root.Kind == ast.RootLocal || loc.Root.Kind == ast.RootParameter {
			add(loc.Root.Variable)
		}
		if loc.Root.Kind == ast.RootExpr {
			walkExpr(loc.Root.Expr)
		}
		for _, e := range loc.Path {
			if e.Kind == ast.ElemIndex {
				walkExpr(e.IndexExpr)
			}
		}
	}

	walkExpr = func(e ast.Expr) {
		switch v := e.(type) {
		case *ast.ArrayLit:
			for _, el := range v.Elems {
				walkExpr(el)
			}
		case *ast.TupleLit:
			for _, el := range v.Elems {
				walkExpr(el)
			}
		case *ast.StructLit:
			for _, f := range v.Fields {
				walkExpr(f.Value)
			}
		case *ast.MapLit:
			for _, ent := range v.Entries {
				walkExpr(ent.Key)
				walkExpr(ent.Value)
			}
		case *ast.BinaryExpr:
			walkExpr(v.Lhs)
			walkExpr(v.Rhs)
		case *ast.UnaryExpr:
			walkExpr(v.Operand)
		case *ast.LocationExpr:
			walkLocation(v.Loc)
		case *ast.CallExpr:
			walkLocation(v.Callee)
			for _, a := range v.Args {
				walkExpr(a)
			}
		case *ast.CastExpr:
			walkExpr(v.Operand)
		case *ast.CoerceExpr:
			walkExpr(v.Inner)
		case *ast.ClosureExpr:
			// A nested closure's own captures are resolved in its own
			// later lowerClosure call; here we only need to know
			// whether *this* closure must also capture a variable the
			// inner one references but doesn't bind itself.
			inner := collectCaptures(v.Body, paramSet(v.Func.Params))
			for _, cv := range inner {
				add(cv)
			}
		case *ast.MetaExpr:
			walkExpr(v.Result)
		}
	}

	walkStmt = func(s ast.Stmt) {
		switch v := s.(type) {
		case *ast.Block:
			walkBlock(v, bound)
		case *ast.ExprStmt:
			walkExpr(v.Expr)
		case *ast.VarDeclStmt:
			if v.Init != nil {
				walkExpr(v.Init)
			}
			bound[v.Var] = true
		case *ast.AssignStmt:
			walkLocation(v.Target)
			walkExpr(v.Value)
		case *ast.IfStmt:
			for _, arm := range v.Arms {
				if arm.Cond != nil {
					walkExpr(arm.Cond)
				}
				walkBlock(arm.Body, bound)
			}
		case *ast.WhileStmt:
			walkExpr(v.Cond)
			walkBlock(v.Body, bound)
		case *ast.ForRangeStmt:
			walkExpr(v.Start)
			walkExpr(v.End)
			bound[v.Var] = true
			walkBlock(v.Body, bound)
		case *ast.ForIterStmt:
			walkExpr(v.Iterable)
			bound[v.Var] = true
			walkBlock(v.Body, bound)
		case *ast.TryStmt:
			walkExpr(v.Subject)
			for _, arm := range v.Arms {
				if arm.Binding != nil {
					bound[arm.Binding] = true
				}
				walkBlock(arm.Body, bound)
			}
		case *ast.SwitchStmt:
			walkExpr(v.Subject)
			for _, c := range v.Cases {
				if c.Binding != nil {
					bound[c.Binding] = true
				}
				walkBlock(c.Body, bound)
			}
		case *ast.ReturnStmt:
			if v.Value != nil {
				walkExpr(v.Value)
			}
		}
	}

	walkBlock = func(blk *ast.Block, scopeBound map[*symbol.Variable]bool) {
		// scopeBound and `bound` are the same map throughout one
		// collectCaptures call: symbol.Variable identity (not name) is
		// the map key, so a local declared in a sibling block can never
		// collide with one of the same name declared elsewhere, and
		// marking it bound a statement early is harmless.
		for _, s := range blk.Stmts {
			walkStmt(s)
		}
		_ = scopeBound
	}

	walkBlock(body, bound)
	return order
}
