package passes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/passes"
	"banyan/internal/ssa"
)

// buildIdentityFold builds fn f(x: i32) -> i32 { return x + 0; }
func buildIdentityFold() *ssa.Module {
	fn := ssa.NewFunction("f", []ssa.Type{ssa.TyI32}, ssa.TyI32)
	fn.Exported = true
	arg := fn.Entry.LoadArg(ssa.TyI32, 0)
	sum := fn.Entry.Binary(ssa.OpAdd, ssa.Reg(arg, ssa.TyI32), ssa.IntConst(0, ssa.TyI32), ssa.TyI32)
	ret := ssa.Reg(sum, ssa.TyI32)
	fn.Entry.Ret(&ret)
	return &ssa.Module{Name: "m", Functions: []*ssa.Function{fn}}
}

func TestPeepholeFoldsAddZero(t *testing.T) {
	mod := buildIdentityFold()
	changed := passes.Peephole(mod)
	assert.True(t, changed)

	fn := mod.Functions[0]
	term := fn.Entry.Terminator()
	require.NotNil(t, term)
	require.Equal(t, ssa.OpRet, term.Op)
	require.Len(t, term.Operands, 1)
	assert.Equal(t, ssa.OpVReg, term.Operands[0].Kind)
}

func TestPrecomputeFoldsConstantArithmetic(t *testing.T) {
	fn := ssa.NewFunction("f", nil, ssa.TyI32)
	fn.Exported = true
	sum := fn.Entry.Binary(ssa.OpAdd, ssa.IntConst(40, ssa.TyI32), ssa.IntConst(2, ssa.TyI32), ssa.TyI32)
	ret := ssa.Reg(sum, ssa.TyI32)
	fn.Entry.Ret(&ret)
	mod := &ssa.Module{Name: "m", Functions: []*ssa.Function{fn}}

	changed := passes.Precompute(mod)
	assert.True(t, changed)

	term := fn.Entry.Terminator()
	require.Equal(t, 1, len(term.Operands))
	require.Equal(t, ssa.OpIntImm, term.Operands[0].Kind)
	assert.Equal(t, int64(42), term.Operands[0].IntImm.Int64())
}

func TestPrecomputeFoldsConstantCJmpToJmp(t *testing.T) {
	fn := ssa.NewFunction("f", nil, ssa.TyVoid)
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	fn.Entry.CJmp(ssa.IntConst(1, ssa.TyI32), ssa.EQ, ssa.IntConst(1, ssa.TyI32),
		&ssa.BranchTarget{Block: thenB}, &ssa.BranchTarget{Block: elseB})
	thenB.Ret(nil)
	elseB.Ret(nil)
	mod := &ssa.Module{Name: "m", Functions: []*ssa.Function{fn}}

	changed := passes.Precompute(mod)
	assert.True(t, changed)

	term := fn.Entry.Terminator()
	require.NotNil(t, term)
	assert.Equal(t, ssa.OpJmp, term.Op)
	assert.Equal(t, thenB, term.Operands[0].Target.Block)
}

// buildSplittableStruct builds a function that allocas a two-field
// struct, writes both fields through memberptr, then reads them back —
// the shape spec §8's SROA scenario describes.
func buildSplittableStruct() (*ssa.Module, *ssa.Function, *ssa.StructDef) {
	def := &ssa.StructDef{Name: "Pair", Fields: []ssa.Type{ssa.TyI32, ssa.TyI32}}
	fn := ssa.NewFunction("f", nil, ssa.TyI32)
	fn.Exported = true

	addr := fn.Entry.Alloca(ssa.StructType("Pair"))
	f0 := fn.Entry.MemberPtr(ssa.StructType("Pair"), ssa.Reg(addr, ssa.TyAddr), 0)
	fn.Entry.Store(ssa.IntConst(1, ssa.TyI32), ssa.Reg(f0, ssa.TyAddr))
	f1 := fn.Entry.MemberPtr(ssa.StructType("Pair"), ssa.Reg(addr, ssa.TyAddr), 1)
	fn.Entry.Store(ssa.IntConst(2, ssa.TyI32), ssa.Reg(f1, ssa.TyAddr))
	loaded := fn.Entry.Load(ssa.TyI32, ssa.Reg(f1, ssa.TyAddr))
	ret := ssa.Reg(loaded, ssa.TyI32)
	fn.Entry.Ret(&ret)

	mod := &ssa.Module{Name: "m", Functions: []*ssa.Function{fn}, Structs: []*ssa.StructDef{def}}
	return mod, fn, def
}

func TestSROASplitsTwoFieldStruct(t *testing.T) {
	mod, fn, _ := buildSplittableStruct()
	changed := passes.SROA(mod)
	assert.True(t, changed)

	for _, inst := range fn.Entry.Instructions {
		assert.NotEqual(t, ssa.OpMemberPtr, inst.Op, "memberptr should have been rewritten to a direct field slot")
	}
	allocaCount := 0
	for _, inst := range fn.Entry.Instructions {
		if inst.Op == ssa.OpAlloca {
			allocaCount++
		}
	}
	assert.Equal(t, 2, allocaCount, "the aggregate alloca should be replaced by one alloca per field")
}

// buildBranchDiamond builds entry -cjmp-> {thenB, elseB}, each a
// jump-only block forwarding a different constant into join(x), the
// shape mem2reg needs dominance frontiers for.
func buildBranchDiamond() (*ssa.Function, *ssa.BasicBlock) {
	fn := ssa.NewFunction("f", nil, ssa.TyI32)
	fn.Exported = true
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	join := fn.NewBlock("join")
	p := join.AddParam(ssa.TyI32)

	fn.Entry.CJmp(ssa.IntConst(0, ssa.TyI32), ssa.EQ, ssa.IntConst(0, ssa.TyI32),
		&ssa.BranchTarget{Block: thenB}, &ssa.BranchTarget{Block: elseB})
	thenB.Jmp(&ssa.BranchTarget{Block: join, Args: []ssa.Operand{ssa.IntConst(1, ssa.TyI32)}})
	elseB.Jmp(&ssa.BranchTarget{Block: join, Args: []ssa.Operand{ssa.IntConst(2, ssa.TyI32)}})
	ret := ssa.Reg(p, ssa.TyI32)
	join.Ret(&ret)
	return fn, join
}

func TestMem2RegPromotesAllocaAcrossBranch(t *testing.T) {
	fn := ssa.NewFunction("f", nil, ssa.TyI32)
	fn.Exported = true
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	join := fn.NewBlock("join")

	addr := fn.Entry.Alloca(ssa.TyI32)
	fn.Entry.CJmp(ssa.IntConst(0, ssa.TyI32), ssa.EQ, ssa.IntConst(0, ssa.TyI32),
		&ssa.BranchTarget{Block: thenB}, &ssa.BranchTarget{Block: elseB})
	thenB.Store(ssa.IntConst(1, ssa.TyI32), ssa.Reg(addr, ssa.TyAddr))
	thenB.Jmp(&ssa.BranchTarget{Block: join})
	elseB.Store(ssa.IntConst(2, ssa.TyI32), ssa.Reg(addr, ssa.TyAddr))
	elseB.Jmp(&ssa.BranchTarget{Block: join})
	loaded := join.Load(ssa.TyI32, ssa.Reg(addr, ssa.TyAddr))
	ret := ssa.Reg(loaded, ssa.TyI32)
	join.Ret(&ret)
	mod := &ssa.Module{Name: "m", Functions: []*ssa.Function{fn}}

	changed := passes.Mem2Reg(mod)
	assert.True(t, changed)

	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			assert.NotEqual(t, ssa.OpAlloca, inst.Op)
			assert.NotEqual(t, ssa.OpLoad, inst.Op)
		}
	}
	assert.NotEmpty(t, join.Params, "join should have gained a block parameter for the merged value")
}

// buildCallerCallee builds a one-block callee that simply returns its
// argument plus one, called once from a caller.
func buildCallerCallee() *ssa.Module {
	callee := ssa.NewFunction("addone", []ssa.Type{ssa.TyI32}, ssa.TyI32)
	arg := callee.Entry.LoadArg(ssa.TyI32, 0)
	sum := callee.Entry.Binary(ssa.OpAdd, ssa.Reg(arg, ssa.TyI32), ssa.IntConst(1, ssa.TyI32), ssa.TyI32)
	sumRet := ssa.Reg(sum, ssa.TyI32)
	callee.Entry.Ret(&sumRet)

	caller := ssa.NewFunction("main", nil, ssa.TyI32)
	caller.Exported = true
	result := caller.Entry.Call(ssa.FuncRef("addone"), []ssa.Operand{ssa.IntConst(41, ssa.TyI32)}, ssa.TyI32, true)
	ret := ssa.Reg(*result, ssa.TyI32)
	caller.Entry.Ret(&ret)

	return &ssa.Module{Name: "m", Functions: []*ssa.Function{callee, caller}}
}

func TestInliningSplicesSingleBlockCallee(t *testing.T) {
	mod := buildCallerCallee()
	changed := passes.Inlining(mod)
	assert.True(t, changed)

	var caller *ssa.Function
	for _, fn := range mod.Functions {
		if fn.Name == "main" {
			caller = fn
		}
	}
	require.NotNil(t, caller)
	for _, inst := range caller.Entry.Instructions {
		assert.NotEqual(t, ssa.OpCall, inst.Op, "the call to addone should have been spliced away")
	}
}

func TestHeapToStackPromotesPairedMallocFree(t *testing.T) {
	fn := ssa.NewFunction("f", nil, ssa.TyVoid)
	fn.Exported = true
	ptr := fn.Entry.Call(ssa.ExternFuncRef("malloc"), []ssa.Operand{ssa.IntConst(16, ssa.TyI32)}, ssa.TyAddr, true)
	fn.Entry.Store(ssa.IntConst(7, ssa.TyI32), ssa.Reg(*ptr, ssa.TyAddr))
	fn.Entry.Call(ssa.ExternFuncRef("free"), []ssa.Operand{ssa.Reg(*ptr, ssa.TyAddr)}, ssa.TyVoid, false)
	fn.Entry.Ret(nil)
	mod := &ssa.Module{Name: "m", Functions: []*ssa.Function{fn},
		ExternFunctions: []*ssa.ExternFunction{{Name: "malloc"}, {Name: "free"}}}

	changed := passes.HeapToStack(mod)
	assert.True(t, changed)

	sawAlloca := false
	for _, inst := range fn.Entry.Instructions {
		assert.NotEqual(t, ssa.OpCall, inst.Op, "malloc/free should both have been deleted")
		if inst.Op == ssa.OpAlloca {
			sawAlloca = true
		}
	}
	assert.True(t, sawAlloca)
}

// buildWhileLoop builds `while (i < 10) { i += 1 }` as three blocks:
// header tests the induction variable and branches to body or exit,
// body increments it and jumps back to header (spec §8 scenario 5).
func buildWhileLoop() (*ssa.Module, *ssa.Function, *ssa.BasicBlock) {
	fn := ssa.NewFunction("loopy", nil, ssa.TyVoid)
	fn.Exported = true
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")

	fn.Entry.Jmp(&ssa.BranchTarget{Block: header, Args: []ssa.Operand{ssa.IntConst(0, ssa.TyI32)}})

	i := header.AddParam(ssa.TyI32)
	header.CJmp(ssa.Reg(i, ssa.TyI32), ssa.SLT, ssa.IntConst(10, ssa.TyI32),
		&ssa.BranchTarget{Block: body}, &ssa.BranchTarget{Block: exit})

	next := body.Binary(ssa.OpAdd, ssa.Reg(i, ssa.TyI32), ssa.IntConst(1, ssa.TyI32), ssa.TyI32)
	body.Jmp(&ssa.BranchTarget{Block: header, Args: []ssa.Operand{ssa.Reg(next, ssa.TyI32)}})

	exit.Ret(nil)

	return &ssa.Module{Name: "m", Functions: []*ssa.Function{fn}}, fn, body
}

func TestLoopInversionDuplicatesHeaderCheckIntoTail(t *testing.T) {
	mod, _, body := buildWhileLoop()

	changed := passes.LoopInversion(mod)
	assert.True(t, changed)

	term := body.Terminator()
	require.NotNil(t, term)
	assert.Equal(t, ssa.OpCJmp, term.Op, "the tail should test and branch directly instead of jumping back through the header")
}

func TestBranchEliminationCollapsesDiamondToSelect(t *testing.T) {
	fn := ssa.NewFunction("f", nil, ssa.TyI32)
	fn.Exported = true
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	join := fn.NewBlock("join")
	p := join.AddParam(ssa.TyI32)

	fn.Entry.CJmp(ssa.IntConst(0, ssa.TyI32), ssa.EQ, ssa.IntConst(0, ssa.TyI32),
		&ssa.BranchTarget{Block: thenB}, &ssa.BranchTarget{Block: elseB})
	thenB.Jmp(&ssa.BranchTarget{Block: join, Args: []ssa.Operand{ssa.IntConst(1, ssa.TyI32)}})
	elseB.Jmp(&ssa.BranchTarget{Block: join, Args: []ssa.Operand{ssa.IntConst(2, ssa.TyI32)}})
	ret := ssa.Reg(p, ssa.TyI32)
	join.Ret(&ret)
	mod := &ssa.Module{Name: "m", Functions: []*ssa.Function{fn}}

	changed := passes.BranchElimination(mod)
	assert.True(t, changed)

	term := fn.Entry.Terminator()
	require.NotNil(t, term)
	assert.Equal(t, ssa.OpJmp, term.Op)

	foundSelect := false
	for _, inst := range fn.Entry.Instructions {
		if inst.Op == ssa.OpSelect {
			foundSelect = true
		}
	}
	assert.True(t, foundSelect)
}

func TestDeadFuncEliminationDropsUnreachable(t *testing.T) {
	live := ssa.NewFunction("main", nil, ssa.TyVoid)
	live.Exported = true
	live.Entry.Ret(nil)
	dead := ssa.NewFunction("unused", nil, ssa.TyVoid)
	dead.Entry.Ret(nil)
	mod := &ssa.Module{Name: "m", Functions: []*ssa.Function{live, dead}}

	changed := passes.DeadFuncElimination(mod)
	assert.True(t, changed)
	require.Len(t, mod.Functions, 1)
	assert.Equal(t, "main", mod.Functions[0].Name)
}
