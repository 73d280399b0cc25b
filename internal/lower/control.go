package lower

import (
	"banyan/internal/ast"
	"banyan/internal/ssa"
	"banyan/internal/symbol"
)

// lowerFuncBody lowers one top-level (non-closure) function declaration
// end to end: allocate its stack frame's parameter slots, walk its
// body, and ensure the final block is properly terminated (spec
// §4.3's per-function lowering entry point).
func (b *Builder) lowerFuncBody(fn *symbol.Function, body *ast.Block) {
	irFn := b.irFunc(linkName(fn))
	if irFn == nil {
		b.unreachable("lowerFuncBody: %q was not declared", fn.Name)
	}

	b.fn = irFn
	b.block = irFn.Entry
	b.allocaCursor = 0
	b.locals = map[*symbol.Variable]ssa.VReg{}
	b.curFunc = fn
	b.closure = nil
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
	} else {
		b.returnSlot = nil
	}
	if fn.Has(symbol.ModMethod) {
		argIdx++ // self is read on demand via lowerSelf, not bound as a local
	}
	b.bindParams(fn.Params, argIdx)

	b.pushMoveScope()
	b.lowerBlock(body)
	b.popMoveScope()
	b.ensureTerminated()
}

// bindParams allocates a stack slot for each parameter and copies its
// incoming register value into it, starting at IR argument index
// start. Parameters get real stack slots (rather than being read
// directly via loadarg each use) because spec §3.3's deinit machinery
// and §4.3.3's location model both need an addressable home for them.
func (b *Builder) bindParams(params []*symbol.Variable, start int) {
	for i, p := range params {
		t := b.typeOf(p.Type)
		argReg := b.block.LoadArg(t, start+i)
		slot := b.allocaEntry(t)
		b.block.Store(ssa.Reg(argReg, t), ssa.Reg(slot, ssa.TyAddr))
		b.locals[p] = slot
	}
}

// ensureTerminated closes out a function whose last lowered statement
// did not already end in a return (an implicit void return falling off
// the end of the body).
func (b *Builder) ensureTerminated() {
	if b.block.Terminator() != nil {
		return
	}
	b.emitReturn(nil)
}

// lowerBlock lowers every statement of blk in order, opening a deinit
// scope that fires destructor calls for blk's locals on the way out
// (spec §4.3.8).
func (b *Builder) lowerBlock(blk *ast.Block) {
	b.pushDeinitScope(blk.Locals)
	for _, s := range blk.Stmts {
		if b.block.Terminator() != nil {
			break // unreachable trailing statements after a return/break/continue
		}
		b.lowerStmt(s)
	}
	b.popDeinitScope()
}

func (b *Builder) lowerStmt(s ast.Stmt) {
	switch v := s.(type) {
	case *ast.Block:
		b.lowerBlock(v)
	case *ast.ExprStmt:
		b.lowerExpr(v.Expr, StorageHints{})
	case *ast.VarDeclStmt:
		b.lowerVarDecl(v)
	case *ast.AssignStmt:
		b.lowerAssign(v)
	case *ast.IfStmt:
		b.lowerIf(v)
	case *ast.WhileStmt:
		b.lowerWhile(v)
	case *ast.ForRangeStmt:
		b.lowerForRange(v)
	case *ast.ForIterStmt:
		b.lowerForIter(v)
	case *ast.TryStmt:
		b.lowerTry(v)
	case *ast.SwitchStmt:
		b.lowerSwitch(v)
	case *ast.ReturnStmt:
		b.lowerReturn(v)
	case *ast.BreakStmt:
		b.lowerBreak()
	case *ast.ContinueStmt:
		b.lowerContinue()
	default:
		b.unreachable("lowerStmt: unhandled statement %T", s)
	}
}

func (b *Builder) lowerVarDecl(v *ast.VarDeclStmt) {
	t := b.typeOf(v.Var.Type)
	slot := b.allocaEntry(t)
	b.locals[v.Var] = slot
	b.registerDeinitSlot(v.Var, slot)
	if v.Init == nil {
		return
	}
	dest := ssa.Reg(slot, ssa.TyAddr)
	val := b.lowerExpr(v.Init, StorageHints{Kind: HintDestination, Dest: dest})
	b.CopyTo(val, dest)
	b.markLive(v.Var)
}

func (b *Builder) lowerAssign(v *ast.AssignStmt) {
	target := b.lowerLocationRead(v.Target, StorageHints{})
	dest := b.TurnIntoReference(target).Operand
	val := b.lowerExpr(v.Value, StorageHints{Kind: HintDestination, Dest: dest})
	b.CopyTo(val, dest)
	if v.Target.Root.Kind == ast.RootLocal && len(v.Target.Path) == 0 {
		b.markLive(v.Target.Root.Variable)
	}
}

// lowerIf threads one continuation block per arm plus a shared merge
// block, matching spec §4.3.7's "an if-chain lowers to a sequence of
// cjmp instructions, one continuation block per arm, and a shared merge
// block that every non-terminating arm jumps to."
func (b *Builder) lowerIf(v *ast.IfStmt) {
	merge := b.newBlock("if.merge")
	reachesMerge := false
	for i, arm := range v.Arms {
		if arm.Cond == nil {
			b.lowerBlock(arm.Body)
			reachesMerge = reachesMerge || b.block.Terminator() == nil
			b.jumpIfOpen(merge)
			if reachesMerge {
				b.setBlock(merge)
			}
			return
		}
		cond := b.TurnIntoValue(b.lowerExpr(arm.Cond, StorageHints{}))
		thenBlock := b.newBlock("if.then")
		elseBlock := b.newBlock("if.else")
		b.block.CJmp(cond.Operand, ssa.NE, ssa.IntConst(0, cond.ValueType), &ssa.BranchTarget{Block: thenBlock}, &ssa.BranchTarget{Block: elseBlock})

		b.setBlock(thenBlock)
		b.lowerBlock(arm.Body)
		reachesMerge = reachesMerge || b.block.Terminator() == nil
		b.jumpIfOpen(merge)

		b.setBlock(elseBlock)
		if i == len(v.Arms)-1 {
			b.jumpIfOpen(merge)
		}
	}
	b.setBlock(merge)
}

// jumpIfOpen emits an unconditional jump to target unless the current
// block already terminated (e.g. via an early return inside the arm).
func (b *Builder) jumpIfOpen(target *ssa.BasicBlock) {
	if b.block.Terminator() != nil {
		return
	}
	b.block.Jmp(&ssa.BranchTarget{Block: target})
}

func (b *Builder) lowerWhile(v *ast.WhileStmt) {
	head := b.newBlock("while.head")
	body := b.newBlock("while.body")
	exit := b.newBlock("while.exit")

	b.block.Jmp(&ssa.BranchTarget{Block: head})

	b.setBlock(head)
	cond := b.TurnIntoValue(b.lowerExpr(v.Cond, StorageHints{}))
	b.block.CJmp(cond.Operand, ssa.NE, ssa.IntConst(0, cond.ValueType), &ssa.BranchTarget{Block: body}, &ssa.BranchTarget{Block: exit})

	b.setBlock(body)
	b.pushLoop(head, exit)
	b.lowerBlock(v.Body)
	b.popLoop()
	b.jumpIfOpen(head)

	b.setBlock(exit)
}

// lowerForRange lowers `for i in start..end` as an induction-variable
// while loop (spec §4.3.7): a local slot for i, seeded from start,
// tested against end each iteration, incremented at the bottom.
func (b *Builder) lowerForRange(v *ast.ForRangeStmt) {
	t := b.typeOf(v.Var.Type)
	slot := b.allocaEntry(t)
	b.locals[v.Var] = slot
	startVal := b.TurnIntoValue(b.lowerExpr(v.Start, StorageHints{}))
	b.block.Store(startVal.Operand, ssa.Reg(slot, ssa.TyAddr))

	head := b.newBlock("for.head")
	body := b.newBlock("for.body")
	step := b.newBlock("for.step")
	exit := b.newBlock("for.exit")

	b.block.Jmp(&ssa.BranchTarget{Block: head})

	b.setBlock(head)
	cur := b.block.Load(t, ssa.Reg(slot, ssa.TyAddr))
	endVal := b.TurnIntoValue(b.lowerExpr(v.End, StorageHints{}))
	b.block.CJmp(ssa.Reg(cur, t), ssa.NE, endVal.Operand, &ssa.BranchTarget{Block: body}, &ssa.BranchTarget{Block: exit})

	b.setBlock(body)
	b.pushLoop(step, exit)
	b.lowerBlock(v.Body)
	b.popLoop()
	b.jumpIfOpen(step)

	b.setBlock(step)
	curStep := b.block.Load(t, ssa.Reg(slot, ssa.TyAddr))
	next := b.block.Binary(ssa.OpAdd, ssa.Reg(curStep, t), ssa.IntConst(1, t), t)
	b.block.Store(ssa.Reg(next, t), ssa.Reg(slot, ssa.TyAddr))
	b.block.Jmp(&ssa.BranchTarget{Block: head})

	b.setBlock(exit)
}

// lowerForIter dispatches through the iterable's __iter__/__next__
// protocol methods (spec §4.3.7): __iter__ produces an iterator value
// once, __next__ is called each pass and returns an Optional-coerced
// result this lowering inspects for its success tag.
func (b *Builder) lowerForIter(v *ast.ForIterStmt) {
	iterableVal := b.TurnIntoReference(b.lowerExpr(v.Iterable, StorageHints{}))
	iterFn := b.irFunc(linkName(v.IterMethod))
	iterResultType := iterFn.ReturnType
	iterDest := b.allocVia(StorageHints{}, iterResultType)
	iterState := b.emitDirectCall(iterFn, []ssa.Operand{iterableVal.Operand}, iterResultType, iterDest, StorageHints{})
	iterRef := b.TurnIntoReference(iterState)

	nextFn := b.irFunc(linkName(v.NextMethod))
	optionalType := nextFn.ReturnType

	head := b.newBlock("iter.head")
	body := b.newBlock("iter.body")
	exit := b.newBlock("iter.exit")

	b.block.Jmp(&ssa.BranchTarget{Block: head})
	b.setBlock(head)

	optDest := b.allocVia(StorageHints{}, optionalType)
	b.emitDirectCall(nextFn, []ssa.Operand{iterRef.Operand}, optionalType, optDest, StorageHints{})
	tagPtr := b.block.MemberPtr(optionalType, optDest, 0)
	tag := b.block.Load(ssa.TyI32, ssa.Reg(tagPtr, ssa.TyAddr))
	b.block.CJmp(ssa.Reg(tag, ssa.TyI32), ssa.EQ, ssa.IntConst(1, ssa.TyI32), &ssa.BranchTarget{Block: body}, &ssa.BranchTarget{Block: exit})

	b.setBlock(body)
	payloadPtr := b.block.MemberPtr(optionalType, optDest, 1)
	elemType := b.typeOf(v.Var.Type)
	slot := b.allocaEntry(elemType)
	b.block.Copy(ssa.Reg(slot, ssa.TyAddr), ssa.Reg(payloadPtr, ssa.TyAddr), elemType)
	b.locals[v.Var] = slot

	b.pushLoop(head, exit)
	b.lowerBlock(v.Body)
	b.popLoop()
	b.jumpIfOpen(head)

	b.setBlock(exit)
}

// lowerTry inspects an Optional/Result value's tag and branches to the
// matching arm's block, binding the payload where the arm names a
// binding (spec §4.3.7's three-case try).
func (b *Builder) lowerTry(v *ast.TryStmt) {
	subject := b.TurnIntoReference(b.lowerExpr(v.Subject, StorageHints{}))
	tagPtr := b.block.MemberPtr(subject.ValueType, subject.Operand, 0)
	tag := b.block.Load(ssa.TyI32, ssa.Reg(tagPtr, ssa.TyAddr))

	merge := b.newBlock("try.merge")
	var successBlock, errorBlock, elseBlock *ssa.BasicBlock
	for _, arm := range v.Arms {
		blk := b.newBlock("try.arm")
		switch arm.Kind {
		case ast.TrySuccess:
			successBlock = blk
		case ast.TryError:
			errorBlock = blk
		case ast.TryElse:
			elseBlock = blk
		}
	}
	fallback := elseBlock
	if fallback == nil {
		fallback = merge
	}
	successTarget, errorTarget := fallback, fallback
	if successBlock != nil {
		successTarget = successBlock
	}
	if errorBlock != nil {
		errorTarget = errorBlock
	}
	b.block.CJmp(ssa.Reg(tag, ssa.TyI32), ssa.EQ, ssa.IntConst(1, ssa.TyI32), &ssa.BranchTarget{Block: successTarget}, &ssa.BranchTarget{Block: errorTarget})

	for _, arm := range v.Arms {
		var blk *ssa.BasicBlock
		switch arm.Kind {
		case ast.TrySuccess:
			blk = successBlock
		case ast.TryError:
			blk = errorBlock
		case ast.TryElse:
			blk = elseBlock
		}
		b.setBlock(blk)
		if arm.Binding != nil {
			payloadPtr := b.block.MemberPtr(subject.ValueType, subject.Operand, 1)
			t := b.typeOf(arm.Binding.Type)
			slot := b.allocaEntry(t)
			b.block.Copy(ssa.Reg(slot, ssa.TyAddr), ssa.Reg(payloadPtr, ssa.TyAddr), t)
			b.locals[arm.Binding] = slot
		}
		b.lowerBlock(arm.Body)
		b.jumpIfOpen(merge)
	}
	b.setBlock(merge)
}

// lowerSwitch implements spec §4.3.7's tagged-union switch: load the
// tag, cjmp through each case in turn (a chain rather than a jump
// table, matching switch_ir_builder.cpp), copy the matching payload
// into the case's binding, lower its body, and join at a shared merge.
func (b *Builder) lowerSwitch(v *ast.SwitchStmt) {
	subject := b.TurnIntoReference(b.lowerExpr(v.Subject, StorageHints{}))
	tagPtr := b.block.MemberPtr(subject.ValueType, subject.Operand, 0)
	tag := b.block.Load(ssa.TyI32, ssa.Reg(tagPtr, ssa.TyAddr))

	merge := b.newBlock("switch.merge")
	for _, c := range v.Cases {
		if c.DefaultCase {
			continue
		}
		caseBlock := b.newBlock("switch.case")
		nextBlock := b.newBlock("switch.test")
		b.block.CJmp(ssa.Reg(tag, ssa.TyI32), ssa.EQ, ssa.IntConst(int64(c.CaseIndex), ssa.TyI32), &ssa.BranchTarget{Block: caseBlock}, &ssa.BranchTarget{Block: nextBlock})

		b.setBlock(caseBlock)
		if c.Binding != nil {
			payloadPtr := b.block.MemberPtr(subject.ValueType, subject.Operand, 1)
			t := b.typeOf(c.Binding.Type)
			slot := b.allocaEntry(t)
			b.block.Copy(ssa.Reg(slot, ssa.TyAddr), ssa.Reg(payloadPtr, ssa.TyAddr), t)
			b.locals[c.Binding] = slot
		}
		b.lowerBlock(c.Body)
		b.jumpIfOpen(merge)

		b.setBlock(nextBlock)
	}
	for _, c := range v.Cases {
		if !c.DefaultCase {
			continue
		}
		b.lowerBlock(c.Body)
		b.jumpIfOpen(merge)
	}
	b.jumpIfOpen(merge)
	b.setBlock(merge)
}

func (b *Builder) lowerReturn(v *ast.ReturnStmt) {
	b.emitReturn(v.Value)
}

// emitReturn materializes the return value (copying it into the hidden
// return slot for return-by-ref functions), then runs the destructor
// walk of every open scope and emits `ret` in the current block. There
// is no shared exit block: each return site carries its own copy of the
// walk. Running the destructors first would destroy a by-value-returned
// local's storage before it was copied out.
func (b *Builder) emitReturn(value ast.Expr) {
	if b.resultType.Kind == ssa.Void || value == nil {
		b.runDeinitsToFunctionExit()
		b.block.Ret(nil)
		return
	}
	if b.returnByRef {
		val := b.lowerExpr(value, StorageHints{Kind: HintDestination, Dest: *b.returnSlot})
		b.CopyTo(val, *b.returnSlot)
		b.runDeinitsToFunctionExit()
		b.block.Ret(nil)
		return
	}
	result := b.TurnIntoValue(b.lowerExpr(value, StorageHints{}))
	b.runDeinitsToFunctionExit()
	b.block.Ret(&result.Operand)
}

func (b *Builder) lowerBreak() {
	loop := b.currentLoop()
	b.runDeinitsToLoopBoundary()
	b.block.Jmp(&ssa.BranchTarget{Block: loop.breakTarget})
}

func (b *Builder) lowerContinue() {
	loop := b.currentLoop()
	b.runDeinitsToLoopBoundary()
	b.block.Jmp(&ssa.BranchTarget{Block: loop.continueTarget})
}

func (b *Builder) pushLoop(cont, brk *ssa.BasicBlock) {
	b.loops = append(b.loops, &loopScope{continueTarget: cont, breakTarget: brk, deinitDepth: len(b.deinits)})
}

func (b *Builder) popLoop() { b.loops = b.loops[:len(b.loops)-1] }

func (b *Builder) currentLoop() *loopScope {
	if len(b.loops) == 0 {
		b.unreachable("break/continue outside any loop")
	}
	return b.loops[len(b.loops)-1]
}
