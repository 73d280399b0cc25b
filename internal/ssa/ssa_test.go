package ssa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond builds entry -> {then, els} -> join, the canonical shape
// mem2reg and branch-elimination tests key off of.
func buildDiamond() (*Function, *BasicBlock, *BasicBlock, *BasicBlock) {
	f := NewFunction("f", []Type{TyI32}, TyI32)
	entry := f.Entry
	thenB := f.NewBlock("then")
	elseB := f.NewBlock("else")
	join := f.NewBlock("join")

	cond := entry.LoadArg(TyI32, 0)
	entry.CJmp(Reg(cond, TyI32), SGT, IntConst(0, TyI32),
		&BranchTarget{Block: thenB}, &BranchTarget{Block: elseB})

	thenB.Jmp(&BranchTarget{Block: join})
	elseB.Jmp(&BranchTarget{Block: join})

	v := join.AddParam(TyI32)
	ret := Reg(v, TyI32)
	join.Ret(&ret)

	return f, entry, thenB, elseB
}

func TestBuildCFGEdges(t *testing.T) {
	f, entry, thenB, elseB := buildDiamond()
	_ = thenB
	_ = elseB
	BuildCFG(f)

	assert.Len(t, entry.Successors, 2)
	join := f.Blocks[3]
	assert.Len(t, join.Predecessors, 2)
}

func TestReversePostorderStartsAtEntry(t *testing.T) {
	f, entry, _, _ := buildDiamond()
	rpo := ReversePostorder(f)
	require.NotEmpty(t, rpo)
	assert.Equal(t, entry, rpo[0])
	assert.Len(t, rpo, 4)
}

func TestDominatorTreeDiamond(t *testing.T) {
	f, entry, thenB, elseB := buildDiamond()
	dom := BuildDominatorTree(f)
	join := f.Blocks[3]

	assert.Equal(t, entry, dom.ImmediateDominator(thenB))
	assert.Equal(t, entry, dom.ImmediateDominator(elseB))
	assert.Equal(t, entry, dom.ImmediateDominator(join))
	assert.True(t, dom.Dominates(entry, join))
	assert.False(t, dom.Dominates(thenB, join))
}

func TestDominanceFrontierOfBranchArmsIsJoin(t *testing.T) {
	f, _, thenB, elseB := buildDiamond()
	dom := BuildDominatorTree(f)
	join := f.Blocks[3]

	frontierThen := dom.Frontier(thenB)
	frontierElse := dom.Frontier(elseB)
	require.Len(t, frontierThen, 1)
	require.Len(t, frontierElse, 1)
	assert.Equal(t, join, frontierThen[0])
	assert.Equal(t, join, frontierElse[0])
}

func TestFindLoopsDetectsBackEdge(t *testing.T) {
	f := NewFunction("loop", nil, TyVoid)
	header := f.Entry
	body := f.NewBlock("body")
	exit := f.NewBlock("exit")

	cond := header.LoadArg(TyI32, 0)
	header.CJmp(Reg(cond, TyI32), NE, IntConst(0, TyI32),
		&BranchTarget{Block: body}, &BranchTarget{Block: exit})
	body.Jmp(&BranchTarget{Block: header})
	exit.Ret(nil)

	dom := BuildDominatorTree(f)
	loops := FindLoops(f, dom)
	require.Len(t, loops, 1)
	assert.Equal(t, header, loops[0].Header)
	assert.Equal(t, body, loops[0].Tail)
	assert.True(t, loops[0].Contains(body))
	assert.False(t, loops[0].Contains(exit))
}

func TestInvertComparisonIsInvolution(t *testing.T) {
	for p := EQ; p <= FLE; p++ {
		assert.Equal(t, p, p.Invert().Invert(), "invert(invert(%v)) should be %v", p, p)
		assert.NotEqual(t, p, p.Invert())
	}
}

func TestCallGraphDirectEdgesOnly(t *testing.T) {
	mod := &Module{Name: "m"}
	callee := NewFunction("callee", nil, TyI32)
	callee.Entry.Ret(func() *Operand { o := IntConst(1, TyI32); return &o }())

	caller := NewFunction("caller", nil, TyI32)
	r := caller.Entry.Call(FuncRef("callee"), nil, TyI32, true)
	// Indirect call through a function-pointer value: no edge.
	fp := caller.Entry.LoadArg(TyAddr, 0)
	caller.Entry.Call(Reg(fp, TyAddr), nil, TyVoid, false)
	retVal := Reg(*r, TyI32)
	caller.Entry.Ret(&retVal)

	mod.Functions = []*Function{callee, caller}
	cg := BuildCallGraph(mod)

	callerNode := cg.NodeFor(caller)
	require.Len(t, callerNode.Succs, 1)
	assert.Equal(t, cg.NodeIndex(callee), callerNode.Succs[0])

	order := cg.PostorderCallees()
	require.Len(t, order, 2)
	assert.Equal(t, callee, order[0], "callee must be visited before caller")
}
