package lower_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/ast"
	"banyan/internal/diag"
	"banyan/internal/lower"
	"banyan/internal/ssa"
	"banyan/internal/symbol"
	"banyan/internal/target"
	"banyan/internal/types"
)

func newBuilder() (*lower.Builder, *diag.Bag) {
	bag := &diag.Bag{}
	return lower.NewBuilder(target.DataLayout{PointerSize: 8, RegisterSize: 8}, bag), bag
}

func locationOf(v *symbol.Variable, kind ast.LocationRootKind) ast.Location {
	return ast.Location{Ty: v.Type, Root: ast.LocationRoot{Kind: kind, Variable: v}}
}

// TestAddParamsReturnsSum builds `fn add(a: i32, b: i32) -> i32 { return a + b; }`
// and checks that the function lowers to a single block adding its two
// loaded parameters and returning the result (spec §4.3.2/§4.3.4).
func TestAddParamsReturnsSum(t *testing.T) {
	a := &symbol.Variable{Name: "a", Role: symbol.RoleParameter, Type: types.TypeI32}
	bParam := &symbol.Variable{Name: "b", Role: symbol.RoleParameter, Type: types.TypeI32}
	fn := &symbol.Function{Name: "add", Params: []*symbol.Variable{a, bParam}, ReturnType: types.TypeI32}

	sum := &ast.BinaryExpr{
		ExprHeader: ast.ExprHeader{Ty: types.TypeI32},
		Op:         ast.OpAdd,
		Lhs:        &ast.LocationExpr{ExprHeader: ast.ExprHeader{Ty: types.TypeI32}, Loc: locationOf(a, ast.RootParameter)},
		Rhs:        &ast.LocationExpr{ExprHeader: ast.ExprHeader{Ty: types.TypeI32}, Loc: locationOf(bParam, ast.RootParameter)},
	}
	body := &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: sum}}}

	mod := &ast.ModuleDecl{Path: []string{"m"}, Funcs: []*ast.FuncDecl{{Func: fn, Body: body}}}

	b, bag := newBuilder()
	out := b.LowerModule(mod)

	require.False(t, bag.HasErrors())
	require.Len(t, out.Functions, 1)
	irFn := out.Functions[0]
	assert.Equal(t, "add", irFn.Name)

	term := irFn.Entry.Terminator()
	require.NotNil(t, term)
	require.Equal(t, ssa.OpRet, term.Op)

	var foundAdd bool
	for _, inst := range irFn.Entry.Instructions {
		if inst.Op == ssa.OpAdd {
			foundAdd = true
		}
	}
	assert.True(t, foundAdd, "expected an OpAdd instruction summing the two parameters")
}

// TestIfElseBothReturnMergesWithNoOpenBlock builds an if/else whose arms
// both return, checking that lowerIf never appends a dangling jump to
// merge from an already-terminated arm (spec §4.3.7).
func TestIfElseBothReturnMergesWithNoOpenBlock(t *testing.T) {
	fn := &symbol.Function{Name: "pick", ReturnType: types.TypeI32}
	cond := &ast.BoolLit{ExprHeader: ast.ExprHeader{Ty: types.TypeBool}, Value: true}
	one := &ast.IntLit{ExprHeader: ast.ExprHeader{Ty: types.TypeI32}, Value: 1}
	two := &ast.IntLit{ExprHeader: ast.ExprHeader{Ty: types.TypeI32}, Value: 2}

	ifStmt := &ast.IfStmt{Arms: []ast.IfArm{
		{Cond: cond, Body: &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: one}}}},
		{Cond: nil, Body: &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: two}}}},
	}}
	body := &ast.Block{Stmts: []ast.Stmt{ifStmt}}
	mod := &ast.ModuleDecl{Path: []string{"m"}, Funcs: []*ast.FuncDecl{{Func: fn, Body: body}}}

	b, bag := newBuilder()
	out := b.LowerModule(mod)
	require.False(t, bag.HasErrors())

	irFn := out.Functions[0]
	var terminatedCount, retCount int
	for _, blk := range irFn.Blocks {
		term := blk.Terminator()
		if term == nil {
			continue
		}
		terminatedCount++
		if term.Op == ssa.OpRet {
			retCount++
		}
	}
	assert.Equal(t, 2, retCount, "both arms return directly; the merge block is never reached and stays unterminated")
	assert.Greater(t, terminatedCount, 0)
}

// TestDestructorFiresOnScopeExit builds a function declaring one local of
// a struct type with a deinit method and returning immediately after,
// and checks that lowering emits a liveness flag plus a conditional call
// to the struct's deinit method before the function's own return (spec
// §3.3/§4.3.8, the "destructor on early return" scenario).
func TestDestructorFiresOnScopeExit(t *testing.T) {
	deinitFn := &symbol.Function{Name: "deinit", ReturnType: types.TypeVoid, Modifiers: symbol.ModMethod}
	resStruct := &symbol.Structure{
		Name:    "Res",
		Methods: []*symbol.Method{{Function: deinitFn}},
	}
	deinitFn.Enclosing = resStruct
	resType := &types.StructType{Name: "Res"}

	r := &symbol.Variable{
		Name: "r",
		Role: symbol.RoleLocal,
		Type: resType,
		Deinit: &symbol.DeinitDescriptor{HasDeinit: true},
	}

	fn := &symbol.Function{Name: "use", ReturnType: types.TypeVoid}
	decl := &ast.VarDeclStmt{Var: r, Init: &ast.StructLit{ExprHeader: ast.ExprHeader{Ty: resType}, Struct: resStruct}}
	body := &ast.Block{
		Stmts:  []ast.Stmt{decl, &ast.ReturnStmt{}},
		Locals: []*symbol.Variable{r},
	}
	mod := &ast.ModuleDecl{
		Path:    []string{"m"},
		Structs: []*symbol.Structure{resStruct},
		Funcs:   []*ast.FuncDecl{{Func: fn, Body: body}},
	}

	b, bag := newBuilder()
	out := b.LowerModule(mod)
	require.False(t, bag.HasErrors())

	var sawAlloca, sawCJmp, sawCall bool
	for _, blk := range out.Functions[0].Blocks {
		for _, inst := range blk.Instructions {
			switch inst.Op {
			case ssa.OpAlloca:
				sawAlloca = true
			case ssa.OpCJmp:
				sawCJmp = true
			case ssa.OpCall:
				sawCall = true
			}
		}
	}
	assert.True(t, sawAlloca, "expected a liveness-flag alloca")
	assert.True(t, sawCJmp, "expected a flag-guarded branch to the destructor call")
	assert.True(t, sawCall, "expected the conditional destructor call itself")
}

// TestSwitchLowersToTagCompareChain builds a two-case tagged-union
// switch and checks that lowering emits a tag load followed by one cjmp
// per non-default case (spec §4.3.7's switch lowering).
func TestSwitchLowersToTagCompareChain(t *testing.T) {
	u := &symbol.Union{Name: "Shape", Cases: []symbol.UnionCase{
		{Name: "Circle", Index: 0},
		{Name: "Square", Index: 1},
	}}
	unionType := &types.UnionType{Name: "Shape", Cases: []types.UnionCaseType{
		{Name: "Circle", Index: 0},
		{Name: "Square", Index: 1},
	}}

	subject := &ast.LocationExpr{
		ExprHeader: ast.ExprHeader{Ty: unionType},
		Loc:        ast.Location{Ty: unionType, Root: ast.LocationRoot{Kind: ast.RootUnionCase, Union: u, UnionCase: u.Cases[0]}},
	}
	sw := &ast.SwitchStmt{
		Subject: subject,
		Cases: []ast.SwitchCase{
			{CaseIndex: 0, CaseType: u, Body: &ast.Block{}},
			{CaseIndex: 1, CaseType: u, Body: &ast.Block{}},
		},
	}
	fn := &symbol.Function{Name: "describe", ReturnType: types.TypeVoid}
	body := &ast.Block{Stmts: []ast.Stmt{sw, &ast.ReturnStmt{}}}
	mod := &ast.ModuleDecl{Path: []string{"m"}, Unions: []*symbol.Union{u}, Funcs: []*ast.FuncDecl{{Func: fn, Body: body}}}

	b, bag := newBuilder()
	out := b.LowerModule(mod)
	require.False(t, bag.HasErrors())

	cjmpCount := 0
	for _, blk := range out.Functions[0].Blocks {
		for _, inst := range blk.Instructions {
			if inst.Op == ssa.OpCJmp {
				cjmpCount++
			}
		}
	}
	assert.GreaterOrEqual(t, cjmpCount, 2, "expected one cjmp per non-default case")
}

// TestGenericInstanceLowersAlongsideCaller instantiates a generic
// function once, calls the instance from a non-generic caller, and
// checks that lowering produces exactly the caller plus the specialized
// function (spec §4.1's on-demand instantiation).
func TestGenericInstanceLowersAlongsideCaller(t *testing.T) {
	template := &symbol.Function{Name: "identity", ReturnType: &types.GenericType{ParamIndex: 0}}
	entity := &symbol.GenericEntity[*symbol.Function]{
		Name:     "identity",
		Params:   []symbol.GenericParam{{Name: "T"}},
		Template: template,
		Clone: func(args []types.Type) *symbol.Function {
			return &symbol.Function{
				Name:       "identity",
				ReturnType: args[0],
				Instance:   nil, // set by caller below
			}
		},
	}

	specialized := entity.Instantiate([]types.Type{types.TypeI32})
	specialized.Instance = entity.Instances[0]

	param := &symbol.Variable{Name: "x", Role: symbol.RoleParameter, Type: &types.GenericType{ParamIndex: 0}}
	specialized.Params = []*symbol.Variable{param}

	loc := ast.Location{Ty: param.Type, Root: ast.LocationRoot{Kind: ast.RootParameter, Variable: param}}
	retBody := &ast.Block{Stmts: []ast.Stmt{
		&ast.ReturnStmt{Value: &ast.LocationExpr{ExprHeader: ast.ExprHeader{Ty: param.Type}, Loc: loc}},
	}}

	caller := &symbol.Function{Name: "caller", ReturnType: types.TypeI32}
	callExpr := &ast.CallExpr{
		ExprHeader: ast.ExprHeader{Ty: types.TypeI32},
		Callee:     ast.Location{Ty: types.TypeI32, Root: ast.LocationRoot{Kind: ast.RootFunction, Function: specialized}},
		Args:       []ast.Expr{&ast.IntLit{ExprHeader: ast.ExprHeader{Ty: types.TypeI32}, Value: 7}},
	}
	callerBody := &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: callExpr}}}

	mod := &ast.ModuleDecl{
		Path:              []string{"m"},
		Funcs:             []*ast.FuncDecl{{Func: caller, Body: callerBody}},
		GenericFuncBodies: map[*symbol.Function]*ast.Block{template: retBody},
	}

	b, bag := newBuilder()
	out := b.LowerModule(mod)
	require.False(t, bag.HasErrors())

	// One specialized instance plus the caller: exactly two functions.
	assert.Len(t, out.Functions, 2)
}

// TestCastIntImmediateToFloatFoldsAtLoweringTime builds `1 as f64` and
// checks that lowering folds the conversion into a float immediate
// rather than emitting a stof instruction (spec §4.3.2's literal
// pre-evaluation rule for this exact case).
func TestCastIntImmediateToFloatFoldsAtLoweringTime(t *testing.T) {
	cast := &ast.CastExpr{
		ExprHeader: ast.ExprHeader{Ty: types.TypeF64},
		Operand:    &ast.IntLit{ExprHeader: ast.ExprHeader{Ty: types.TypeI32}, Value: 1},
		To:         types.TypeF64,
	}
	fn := &symbol.Function{Name: "one", ReturnType: types.TypeF64}
	body := &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: cast}}}
	mod := &ast.ModuleDecl{Path: []string{"m"}, Funcs: []*ast.FuncDecl{{Func: fn, Body: body}}}

	b, bag := newBuilder()
	out := b.LowerModule(mod)
	require.False(t, bag.HasErrors())

	for _, inst := range out.Functions[0].Entry.Instructions {
		assert.NotEqual(t, ssa.OpStoF, inst.Op, "int->float immediate cast should fold, not emit stof")
	}
}

// TestCastWideningIntEmitsSExtend builds `x as i64` from an i32
// parameter and checks that lowering emits a sextend (spec §4.3.5's
// widening rule).
func TestCastWideningIntEmitsSExtend(t *testing.T) {
	x := &symbol.Variable{Name: "x", Role: symbol.RoleParameter, Type: types.TypeI32}
	cast := &ast.CastExpr{
		ExprHeader: ast.ExprHeader{Ty: types.TypeI64},
		Operand:    &ast.LocationExpr{ExprHeader: ast.ExprHeader{Ty: types.TypeI32}, Loc: locationOf(x, ast.RootParameter)},
		To:         types.TypeI64,
	}
	fn := &symbol.Function{Name: "widen", Params: []*symbol.Variable{x}, ReturnType: types.TypeI64}
	body := &ast.Block{Stmts: []ast.Stmt{&ast.ReturnStmt{Value: cast}}}
	mod := &ast.ModuleDecl{Path: []string{"m"}, Funcs: []*ast.FuncDecl{{Func: fn, Body: body}}}

	b, bag := newBuilder()
	out := b.LowerModule(mod)
	require.False(t, bag.HasErrors())

	sawSExtend := false
	for _, inst := range out.Functions[0].Entry.Instructions {
		if inst.Op == ssa.OpSExtend {
			sawSExtend = true
		}
	}
	assert.True(t, sawSExtend, "expected a sextend widening an i32 parameter to i64")
}

// TestCoerceUnionCaseStoresTagAndPayload builds a CoerceExpr wrapping a
// union case's payload value and checks that lowering stores the tag
// then copies the payload into the union's data field (spec §4.3.2's
// "coercing a concrete union case expression" rule).
func TestCoerceUnionCaseStoresTagAndPayload(t *testing.T) {
	u := &symbol.Union{Name: "Shape", Cases: []symbol.UnionCase{
		{Name: "Circle", Index: 0, Fields: []*symbol.Variable{{Name: "radius", Type: types.TypeF64}}},
	}}
	unionType := &types.UnionType{Name: "Shape", Cases: []types.UnionCaseType{
		{Name: "Circle", Index: 0, Fields: []types.Field{{Name: "radius", Type: types.TypeF64}}},
	}}

	coerce := &ast.CoerceExpr{
		ExprHeader: ast.ExprHeader{Ty: unionType},
		Kind:       ast.CoerceUnionCase,
		Inner:      &ast.FloatLit{ExprHeader: ast.ExprHeader{Ty: types.TypeF64}, Value: 1.5},
		CaseIndex:  0,
	}
	fn := &symbol.Function{Name: "makeCircle", ReturnType: types.TypeVoid}
	slot := &symbol.Variable{Name: "s", Role: symbol.RoleLocal, Type: unionType}
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDeclStmt{Var: slot, Init: coerce},
		&ast.ReturnStmt{},
	}}
	mod := &ast.ModuleDecl{Path: []string{"m"}, Unions: []*symbol.Union{u}, Funcs: []*ast.FuncDecl{{Func: fn, Body: body}}}

	b, bag := newBuilder()
	out := b.LowerModule(mod)
	require.False(t, bag.HasErrors())

	sawTagStore, sawMemberPtr := false, 0
	for _, inst := range out.Functions[0].Entry.Instructions {
		if inst.Op == ssa.OpMemberPtr {
			sawMemberPtr++
		}
		if inst.Op == ssa.OpStore && len(inst.Operands) == 2 && inst.Operands[0].Kind == ssa.OpIntImm {
			sawTagStore = true
		}
	}
	assert.True(t, sawTagStore, "expected the tag to be stored as an int immediate")
	assert.GreaterOrEqual(t, sawMemberPtr, 2, "expected memberptr into both the tag and data fields")
}
