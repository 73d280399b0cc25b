// Package target models spec §6.4's configuration surface: the
// opt_level/debug/generate_addr_table knobs the driver accepts, and the
// Target{Arch, OS, Env, CodeModel} tuple that resolves to a DataLayout.
//
// The teacher's EVM back end has a single fixed word size and never
// needed this (its internal/ir has no analogous type); DataLayout is
// grounded directly in spec §4.3.1/§4.3.4/§4.3.5, which name the size/
// alignment and register-fit queries lowering needs ("turn_into_value
// requires the type to fit in a register per the target's data
// layout", "return-by-reference types", "widening"/"narrowing"
// conversions) without nailing down their source.
package target

import "banyan/internal/ssa"

// Config is the driver-level configuration of spec §6.4.
type Config struct {
	OptLevel          int // 0, 1, or 2 (spec §4.4's pass table)
	Debug             bool
	GenerateAddrTable bool
	Target            Target
}

// Target names an architecture/OS/environment/code-model tuple; opaque
// beyond what it takes to resolve a DataLayout (spec §6.4: "The target
// parameter determines the data layout consulted for size/alignment/
// pass-by-reference decisions").
type Target struct {
	Arch      string
	OS        string
	Env       string
	CodeModel string
}

// DataLayout answers the size/alignment/register-fit questions lowering
// needs. PointerSize is the width of an addr value; RegisterSize is the
// largest value size that fits in a machine register (spec §4.3.1's
// "turn_into_value ... requires the type to fit in a register").
type DataLayout struct {
	PointerSize  int
	RegisterSize int
}

// StructLookup resolves a struct name to its field layout, so SizeOf can
// recurse into nested structs without DataLayout depending on package
// ssa's lowering state.
type StructLookup func(name string) *ssa.StructDef

// DefaultLayout is the 64-bit layout used when no Target is given (spec
// §6.4's target tuple is opaque metadata beyond data-layout resolution;
// LP64-style sizes are the conventional default for the architectures
// the spec's primitive set implies).
func DefaultLayout() DataLayout {
	return DataLayout{PointerSize: 8, RegisterSize: 8}
}

// Resolve maps a Target tuple to a DataLayout: the 32-bit "x86" and
// "arm" architectures get 4-byte pointers and registers, and every other
// architecture resolves to DefaultLayout's 8-byte shape.
func Resolve(t Target) DataLayout {
	switch t.Arch {
	case "x86", "arm":
		return DataLayout{PointerSize: 4, RegisterSize: 4}
	default:
		return DefaultLayout()
	}
}

func primitiveSize(k ssa.TypeKind) int {
	switch k {
	case ssa.I8:
		return 1
	case ssa.I16:
		return 2
	case ssa.I32, ssa.F32:
		return 4
	case ssa.I64, ssa.F64:
		return 8
	case ssa.Addr:
		return 0 // filled in by SizeOf from PointerSize
	default:
		return 0
	}
}

// SizeOf returns the in-memory byte size of t, recursing into struct
// and array element types via lookup.
func (d DataLayout) SizeOf(t ssa.Type, lookup StructLookup) int {
	switch t.Kind {
	case ssa.Addr:
		return d.PointerSize
	case ssa.Void:
		return 0
	case ssa.Struct:
		def := lookup(t.Struct)
		if def == nil {
			return 0
		}
		size := 0
		for _, f := range def.Fields {
			size += d.SizeOf(f, lookup)
		}
		return size
	case ssa.Array:
		return d.SizeOf(*t.Elem, lookup) * t.Count
	default:
		return primitiveSize(t.Kind)
	}
}

// AlignOf returns t's alignment requirement: a primitive aligns to its
// own size, a struct aligns to its widest field, an array aligns to its
// element type.
func (d DataLayout) AlignOf(t ssa.Type, lookup StructLookup) int {
	switch t.Kind {
	case ssa.Struct:
		def := lookup(t.Struct)
		if def == nil {
			return 1
		}
		align := 1
		for _, f := range def.Fields {
			if a := d.AlignOf(f, lookup); a > align {
				align = a
			}
		}
		return align
	case ssa.Array:
		return d.AlignOf(*t.Elem, lookup)
	default:
		size := d.SizeOf(t, lookup)
		if size == 0 {
			return 1
		}
		return size
	}
}

// FitsInRegister reports whether a value of byte size size can be
// carried directly in a register-sized operand, per spec §4.3.1's
// turn_into_value precondition.
func (d DataLayout) FitsInRegister(size int) bool {
	return size > 0 && size <= d.RegisterSize
}

// IsReturnByRef reports whether a function returning t must use the
// hidden-first-parameter convention of spec §4.3.4: a struct (or array)
// return type whose size does not fit in a register.
func (d DataLayout) IsReturnByRef(t ssa.Type, lookup StructLookup) bool {
	if t.Kind != ssa.Struct && t.Kind != ssa.Array {
		return false
	}
	return !d.FitsInRegister(d.SizeOf(t, lookup))
}

// IsPassByRef reports whether an argument of type t must be passed by
// reference rather than by value (spec §4.3.4 step 3): any aggregate
// whose size exceeds one register.
func (d DataLayout) IsPassByRef(t ssa.Type, lookup StructLookup) bool {
	if t.Kind != ssa.Struct && t.Kind != ssa.Array {
		return false
	}
	return !d.FitsInRegister(d.SizeOf(t, lookup))
}
