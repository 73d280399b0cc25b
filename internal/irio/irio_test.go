package irio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/irio"
	"banyan/internal/ssa"
)

// buildSampleModule exercises every grammar production the round-trip
// property (spec §8) needs to cover: a struct def, an extern function,
// an extern global, a global with a constant initializer, a widening
// conversion (whose destination type differs from its source operand's,
// the case destTypeFromOperands used to get wrong before the explicit
// `%N: T =` dest syntax), a direct call, and a two-predecessor join
// passing a block argument.
func buildSampleModule() *ssa.Module {
	mod := &ssa.Module{Name: "sample"}
	mod.Structs = append(mod.Structs, &ssa.StructDef{
		Name:   "Point",
		Fields: []ssa.Type{ssa.TyI32, ssa.TyI32},
	})
	mod.ExternFunctions = append(mod.ExternFunctions, &ssa.ExternFunction{
		Name:       "host_log",
		ParamTypes: []ssa.Type{ssa.TyAddr},
		ReturnType: ssa.TyVoid,
		CallConv:   "c",
	})
	mod.ExternGlobals = append(mod.ExternGlobals, &ssa.ExternGlobal{
		Name: "heap_base",
		Type: ssa.TyAddr,
	})
	mod.Globals = append(mod.Globals, &ssa.Global{
		Name:    "counter",
		Type:    ssa.TyI64,
		Initial: ssa.IntConst(0, ssa.TyI64),
	})

	widen := ssa.NewFunction("widen", []ssa.Type{ssa.TyI32}, ssa.TyI64)
	arg := widen.Entry.LoadArg(ssa.TyI32, 0)
	wide := widen.Entry.Convert(ssa.OpSExtend, ssa.Reg(arg, ssa.TyI32), ssa.TyI64)
	wideRes := ssa.Reg(wide, ssa.TyI64)
	widen.Entry.Ret(&wideRes)
	mod.Functions = append(mod.Functions, widen)

	caller := ssa.NewFunction("caller", []ssa.Type{ssa.TyI32}, ssa.TyI64)
	caller.Exported = true
	cArg := caller.Entry.LoadArg(ssa.TyI32, 0)
	callRes := caller.Entry.Call(ssa.FuncRef("widen"), []ssa.Operand{ssa.Reg(cArg, ssa.TyI32)}, ssa.TyI64, true)
	callOperand := ssa.Reg(*callRes, ssa.TyI64)
	join := caller.NewBlock("join")
	join.AddParam(ssa.TyI64)
	caller.Entry.Jmp(&ssa.BranchTarget{Block: join, Args: []ssa.Operand{callOperand}})
	joinRes := ssa.Reg(join.Params[0].Reg, ssa.TyI64)
	join.Ret(&joinRes)
	mod.Functions = append(mod.Functions, caller)

	return mod
}

func TestWriteParseRoundTrip(t *testing.T) {
	mod := buildSampleModule()
	text := irio.Write(mod)

	parsed, err := irio.Parse("sample.ir", text)
	require.NoError(t, err, "failed to parse:\n%s", text)

	require.Len(t, parsed.Structs, 1)
	assert.Equal(t, "Point", parsed.Structs[0].Name)
	assert.Equal(t, []ssa.Type{ssa.TyI32, ssa.TyI32}, parsed.Structs[0].Fields)

	require.Len(t, parsed.ExternFunctions, 1)
	assert.Equal(t, "host_log", parsed.ExternFunctions[0].Name)
	assert.Equal(t, []ssa.Type{ssa.TyAddr}, parsed.ExternFunctions[0].ParamTypes)

	require.Len(t, parsed.ExternGlobals, 1)
	assert.Equal(t, "heap_base", parsed.ExternGlobals[0].Name)

	require.Len(t, parsed.Globals, 1)
	assert.Equal(t, "counter", parsed.Globals[0].Name)
	assert.Equal(t, ssa.TyI64, parsed.Globals[0].Type)

	require.Len(t, parsed.Functions, 2)

	widen := parsed.Functions[0]
	assert.Equal(t, "widen", widen.Name)
	var sawSExtend bool
	for _, inst := range widen.Entry.Instructions {
		if inst.Op == ssa.OpSExtend {
			sawSExtend = true
			// The whole point of the explicit dest-type syntax: the
			// destination is i64 even though the source operand is i32.
			assert.Equal(t, ssa.TyI64, inst.DestType)
			require.Len(t, inst.Operands, 1)
			assert.Equal(t, ssa.TyI32, inst.Operands[0].Type)
		}
	}
	assert.True(t, sawSExtend, "expected a parsed sextend instruction")

	caller := parsed.Functions[1]
	assert.Equal(t, "caller", caller.Name)
	assert.True(t, caller.Exported)
	var sawCall bool
	for _, inst := range caller.Entry.Instructions {
		if inst.Op == ssa.OpCall {
			sawCall = true
			assert.Equal(t, ssa.TyI64, inst.DestType, "call's result type must not default to the callee operand's zero-value type")
		}
	}
	assert.True(t, sawCall, "expected a parsed call instruction")

	require.Len(t, caller.Blocks, 2)
	join := caller.Blocks[1]
	require.Len(t, join.Params, 1)
	assert.Equal(t, ssa.TyI64, join.Params[0].Type)
}

// TestParseEmptyBodyFunction checks a zero-argument,
// void-returning function with no blocks parses cleanly (spec §6.3's
// grammar must accept an empty function body, e.g. an extern-only
// module's companion stub).
func TestParseEmptyBodyFunction(t *testing.T) {
	text := "func @noop() -> void {\n}\n"
	mod, err := irio.Parse("empty.ir", text)
	require.NoError(t, err)
	require.Len(t, mod.Functions, 1)
	assert.Equal(t, "noop", mod.Functions[0].Name)
	assert.Empty(t, mod.Functions[0].Blocks)
}
