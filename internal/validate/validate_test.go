package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banyan/internal/ssa"
)

func TestValidFunctionPasses(t *testing.T) {
	f := ssa.NewFunction("f", []ssa.Type{ssa.TyI32}, ssa.TyI32)
	v := f.Entry.LoadArg(ssa.TyI32, 0)
	ret := ssa.Reg(v, ssa.TyI32)
	f.Entry.Ret(&ret)

	mod := &ssa.Module{Functions: []*ssa.Function{f}}
	r := Module(mod)
	assert.True(t, r.Valid(), "%v", r.Errors)
}

func TestUndefinedRegisterIsRejected(t *testing.T) {
	f := ssa.NewFunction("f", nil, ssa.TyI32)
	bogus := ssa.Reg(99, ssa.TyI32)
	f.Entry.Ret(&bogus)

	mod := &ssa.Module{Functions: []*ssa.Function{f}}
	r := Module(mod)
	require.False(t, r.Valid())
	assert.Contains(t, r.Errors[0], "%99 is not defined")
}

func TestMemberPtrOutOfBoundsIsRejected(t *testing.T) {
	f := ssa.NewFunction("f", []ssa.Type{ssa.TyAddr}, ssa.TyAddr)
	base := f.Entry.LoadArg(ssa.TyAddr, 0)
	ptr := f.Entry.MemberPtr(ssa.StructType("Point"), ssa.Reg(base, ssa.TyAddr), 5)
	result := ssa.Reg(ptr, ssa.TyAddr)
	f.Entry.Ret(&result)

	mod := &ssa.Module{
		Functions: []*ssa.Function{f},
		Structs:   []*ssa.StructDef{{Name: "Point", Fields: []ssa.Type{ssa.TyI32, ssa.TyI32}}},
	}
	r := Module(mod)
	require.False(t, r.Valid())
	assert.Contains(t, r.Errors[0], "out of bounds")
}

func TestBranchArityMismatchIsRejected(t *testing.T) {
	f := ssa.NewFunction("f", nil, ssa.TyVoid)
	join := f.NewBlock("join")
	join.AddParam(ssa.TyI32)
	f.Entry.Jmp(&ssa.BranchTarget{Block: join}) // missing the one required argument
	join.Ret(nil)

	mod := &ssa.Module{Functions: []*ssa.Function{f}}
	r := Module(mod)
	require.False(t, r.Valid())
	assert.Contains(t, r.Errors[0], "argument")
}

func TestMissingTerminatorIsRejected(t *testing.T) {
	f := ssa.NewFunction("f", nil, ssa.TyVoid)
	f.Entry.Alloca(ssa.TyI32) // never terminated

	mod := &ssa.Module{Functions: []*ssa.Function{f}}
	r := Module(mod)
	require.False(t, r.Valid())
	assert.Contains(t, r.Errors[0], "no terminator")
}
