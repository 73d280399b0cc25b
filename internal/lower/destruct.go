package lower

import (
	"banyan/internal/ssa"
	"banyan/internal/symbol"
)

// pushDeinitScope opens one lexical deinit scope (spec §4.3.8): every
// local that needs destruction gets a liveness flag stack slot,
// clustered with the other entry-block allocas, initialized to "not
// live yet." lowerVarDecl flips a local's flag to live once its
// initializer has actually run (a declaration with no initializer that
// never executes, e.g. one behind a conditional the front end proved
// unreachable, cannot fire a destructor it never armed).
func (b *Builder) pushDeinitScope(locals []*symbol.Variable) {
	scope := &deinitScope{}
	for _, v := range locals {
		if !v.Deinit.NeedsDestruction() {
			continue
		}
		flag := b.allocaEntry(ssa.TyI8)
		b.block.Store(ssa.IntConst(0, ssa.TyI8), ssa.Reg(flag, ssa.TyAddr))
		scope.entries = append(scope.entries, &deinitEntry{desc: v.Deinit, variable: v, flagReg: flag})
	}
	b.deinits = append(b.deinits, scope)
}

// popDeinitScope closes the innermost deinit scope, emitting a
// flag-guarded destructor call per entry in reverse declaration order
// (spec §4.3.8). If the current block already terminated (an early
// return/break/continue inside this block already ran this scope's
// destructors via runDeinitsTo*), the scope's bookkeeping is simply
// discarded instead of appending unreachable instructions after a
// terminator.
func (b *Builder) popDeinitScope() {
	scope := b.deinits[len(b.deinits)-1]
	b.deinits = b.deinits[:len(b.deinits)-1]
	if b.block.Terminator() != nil {
		return
	}
	for i := len(scope.entries) - 1; i >= 0; i-- {
		b.emitConditionalDestructor(scope.entries[i])
	}
}

// markLive flips v's liveness flag on, called once its value is
// actually initialized (spec §4.3.8: a flag guards against destructing
// uninitialized or already-moved-from storage).
func (b *Builder) markLive(v *symbol.Variable) {
	entry := b.findDeinitEntry(v)
	if entry == nil {
		return // v carries no destructible state
	}
	b.block.Store(ssa.IntConst(1, ssa.TyI8), ssa.Reg(entry.flagReg, ssa.TyAddr))
}

// markMoved flips v's liveness flag off: ownership has transferred
// elsewhere, so the scope that originally owned v must not destruct it
// a second time (spec §3.3's move semantics).
func (b *Builder) markMoved(v *symbol.Variable) {
	entry := b.findDeinitEntry(v)
	if entry == nil {
		return
	}
	b.block.Store(ssa.IntConst(0, ssa.TyI8), ssa.Reg(entry.flagReg, ssa.TyAddr))
	if len(b.moves) > 0 {
		b.moves[len(b.moves)-1].moved[v] = true
	}
}

// registerDeinitSlot is a no-op hook called right after a `let`
// binding's stack slot is allocated: the binding's flag entry was
// already created by the enclosing lowerBlock's pushDeinitScope call
// (which iterates blk.Locals up front), and emitConditionalDestructor
// resolves the value's address via b.locals at destruction time rather
// than caching it on the deinitEntry itself, so there is nothing left
// to wire here beyond documenting that the two allocations (flag slot,
// value slot) are deliberately independent.
func (b *Builder) registerDeinitSlot(v *symbol.Variable, slot ssa.VReg) {
	_ = v
	_ = slot
}

func (b *Builder) findDeinitEntry(v *symbol.Variable) *deinitEntry {
	for i := len(b.deinits) - 1; i >= 0; i-- {
		for _, e := range b.deinits[i].entries {
			if e.variable == v {
				return e
			}
		}
	}
	return nil
}

func (b *Builder) pushMoveScope() { b.moves = append(b.moves, newMoveScope(b.currentMoveScope())) }

func (b *Builder) popMoveScope() {
	if len(b.moves) > 0 {
		b.moves = b.moves[:len(b.moves)-1]
	}
}

func (b *Builder) currentMoveScope() *moveScope {
	if len(b.moves) == 0 {
		return nil
	}
	return b.moves[len(b.moves)-1]
}

// runDeinitsToFunctionExit eagerly fires every open scope's destructors
// in innermost-first order ahead of an early return (spec §4.3.8, the
// "destructor-on-early-return" scenario of spec §8): every enclosing
// lowerBlock's later popDeinitScope call sees the block already
// terminated and is a no-op, so each entry fires exactly once.
func (b *Builder) runDeinitsToFunctionExit() {
	for i := len(b.deinits) - 1; i >= 0; i-- {
		scope := b.deinits[i]
		for j := len(scope.entries) - 1; j >= 0; j-- {
			b.emitConditionalDestructor(scope.entries[j])
		}
	}
}

// runDeinitsToLoopBoundary fires destructors for every deinit scope
// opened since the current loop was entered, ahead of a break/continue
// jump that skips those scopes' normal exit.
func (b *Builder) runDeinitsToLoopBoundary() {
	loop := b.currentLoop()
	for i := len(b.deinits) - 1; i >= loop.deinitDepth; i-- {
		scope := b.deinits[i]
		for j := len(scope.entries) - 1; j >= 0; j-- {
			b.emitConditionalDestructor(scope.entries[j])
		}
	}
}

// emitConditionalDestructor emits `cjmp flag, ne, 0 -> doDeinit, skip`,
// where doDeinit recursively destroys entry's value (its own `deinit`
// method if it has one, then every child field that needs destruction)
// before falling through to skip, which becomes the new current block.
func (b *Builder) emitConditionalDestructor(entry *deinitEntry) {
	doDeinit := b.newBlock("deinit.do")
	skip := b.newBlock("deinit.skip")
	flagVal := b.block.Load(ssa.TyI8, ssa.Reg(entry.flagReg, ssa.TyAddr))
	b.block.CJmp(ssa.Reg(flagVal, ssa.TyI8), ssa.NE, ssa.IntConst(0, ssa.TyI8), &ssa.BranchTarget{Block: doDeinit}, &ssa.BranchTarget{Block: skip})

	b.setBlock(doDeinit)
	slot, ok := b.locals[entry.variable]
	if !ok {
		b.unreachable("emitConditionalDestructor: %q has no stack slot", entry.variable.Name)
	}
	b.destructValue(ssa.Reg(slot, ssa.TyAddr), b.typeOf(entry.variable.Type), entry.desc)
	b.jumpIfOpen(skip)

	b.setBlock(skip)
}

// destructValue runs addr's own deinit method (if it has one) and then
// recurses into every child field the descriptor says still needs
// destruction, navigating via FieldPath (spec §3.3's deinit descriptor
// tree mirrors the value's field layout).
func (b *Builder) destructValue(addr ssa.Operand, t ssa.Type, desc *symbol.DeinitDescriptor) {
	if desc.Unmanaged {
		return
	}
	if desc.HasDeinit && t.Kind == ssa.Struct {
		if st := b.structSymbols[t.Struct]; st != nil {
			if m := st.MethodNamed("deinit"); m != nil {
				b.block.Call(ssa.FuncRef(linkName(m.Function)), []ssa.Operand{addr}, ssa.TyVoid, false)
			}
		}
	}
	for _, child := range desc.Children {
		if !child.NeedsDestruction() {
			continue
		}
		fieldIdx := child.FieldPath[len(child.FieldPath)-1]
		fieldPtr := b.block.MemberPtr(t, addr, fieldIdx)
		fieldType := fieldSSAType(b, t, fieldIdx)
		b.destructValue(ssa.Reg(fieldPtr, ssa.TyAddr), fieldType, child)
	}
}

func fieldSSAType(b *Builder, owner ssa.Type, index int) ssa.Type {
	if owner.Kind != ssa.Struct {
		return ssa.TyAddr
	}
	def := b.structDefs[owner.Struct]
	if def == nil || index >= len(def.Fields) {
		return ssa.TyAddr
	}
	return def.Fields[index]
}
