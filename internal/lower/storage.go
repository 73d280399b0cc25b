package lower

import "banyan/internal/ssa"

// HintKind tags the variant of StorageHints (spec §4.3.1): either the
// caller has no preference, would like the result as a reference if one
// is easy to produce, or has already allocated a destination slot the
// result must be materialized into directly.
type HintKind int

const (
	HintNone HintKind = iota
	HintPreferReference
	HintDestination
)

// StorageHints tells an expression lowering function where its caller
// would like the result to end up, mirroring original_source's
// storage.hpp StorageHints: a lowering rule is always free to ignore a
// HintPreferReference hint (producing a value instead), but must honor
// a HintDestination by writing directly into Dest rather than
// allocating its own slot and letting the caller copy.
type StorageHints struct {
	Kind HintKind
	Dest ssa.Operand // meaningful when Kind == HintDestination; an addr operand
}

// StoredValue is the result of lowering one expression: either a value
// already sitting in a register (IsReference false) or the address of
// one in memory (IsReference true), grounded directly in
// original_source's storage.cpp StoredValue two-mode representation.
type StoredValue struct {
	IsReference bool
	ValueType   ssa.Type // the language-level value's IR type, regardless of mode
	Operand     ssa.Operand
}

// ValueOf wraps op (already holding a value of type t in a register) as
// a non-reference StoredValue.
func ValueOf(op ssa.Operand, t ssa.Type) StoredValue {
	return StoredValue{IsReference: false, ValueType: t, Operand: op}
}

// RefOf wraps addr (the address of a value of type t) as a reference
// StoredValue.
func RefOf(addr ssa.Operand, t ssa.Type) StoredValue {
	return StoredValue{IsReference: true, ValueType: t, Operand: addr}
}

// TurnIntoValue returns a StoredValue holding v's payload directly in a
// register, loading through the reference if necessary. Per spec
// §4.3.1, this requires v's type to fit in a register under the active
// data layout; callers that might hit an oversized aggregate should
// route through CopyTo instead.
func (b *Builder) TurnIntoValue(v StoredValue) StoredValue {
	if !v.IsReference {
		return v
	}
	if !b.fitsInRegister(v.ValueType) {
		b.unreachable("turn_into_value: %s does not fit in a register", v.ValueType)
	}
	r := b.block.Load(v.ValueType, v.Operand)
	return ValueOf(ssa.Reg(r, v.ValueType), v.ValueType)
}

// TurnIntoReference returns a StoredValue holding the address of v's
// payload, spilling a register value to a fresh alloca if necessary
// (original_source's storage.cpp turn_into_reference).
func (b *Builder) TurnIntoReference(v StoredValue) StoredValue {
	if v.IsReference {
		return v
	}
	slot := b.allocaEntry(v.ValueType)
	addr := ssa.Reg(slot, ssa.TyAddr)
	b.block.Store(v.Operand, addr)
	return RefOf(addr, v.ValueType)
}

// CopyTo materializes v into dest (an addr operand), using a register
// store when v is a register value that fits, or a struct-wide copy
// instruction when v is already a reference or is an oversized
// aggregate (original_source's storage.cpp copy_to).
func (b *Builder) CopyTo(v StoredValue, dest ssa.Operand) {
	if !v.IsReference {
		b.block.Store(v.Operand, dest)
		return
	}
	b.block.Copy(dest, v.Operand, v.ValueType)
}

// allocVia resolves hints into a concrete destination address: a
// caller-supplied HintDestination slot, or a fresh entry-block alloca
// otherwise. Lowering rules that build up an aggregate value in place
// (struct/array/tuple literals, spec §4.3.2) call this once up front.
func (b *Builder) allocVia(hints StorageHints, t ssa.Type) ssa.Operand {
	if hints.Kind == HintDestination {
		return hints.Dest
	}
	return ssa.Reg(b.allocaEntry(t), ssa.TyAddr)
}
