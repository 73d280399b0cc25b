// Package symbol implements the declared-entity half of spec §3.1/§4.1:
// modules, functions, variables, structures, enumerations, unions,
// protocols, and generic entities, plus the symbol table that resolves
// identifiers to them.
//
// Grounded in the teacher's internal/semantic/symbols.go (SymbolTable
// shape, local-first/parent-chain Lookup) and imports.go (Use
// forwarding), generalized from kanso's single Function/Struct/
// Parameter/Variable kinds to the full tagged-variant set spec.md §3.1
// names.
package symbol

import "banyan/internal/types"

// Kind tags which entity a Symbol refers to.
type Kind int

const (
	KindFunction Kind = iota
	KindVariable
	KindStructure
	KindEnumeration
	KindUnion
	KindProtocol
	KindGenericFunction
	KindGenericStructure
	KindUse
)

// Symbol is the tagged reference a SymbolTable maps names to. Exactly
// one of the typed fields is populated, selected by Kind — the same
// "tagged sum with shared header" technique the teacher applies to AST
// nodes (internal/ast.Node), applied here to declared entities.
type Symbol struct {
	Name string
	Kind Kind

	Function    *Function
	Variable    *Variable
	Structure   *Structure
	Enumeration *Enumeration
	Union       *Union
	Protocol    *Protocol
	GenericFunc *GenericEntity[*Function]
	GenericType *GenericEntity[*Structure]
	Use         *Use
}

// VariableRole distinguishes the storage class of a Variable.
type VariableRole int

const (
	RoleLocal VariableRole = iota
	RoleParameter
	RoleGlobal
	RoleConstant
	RoleStructField
	RoleUnionCaseField
)

// DeinitDescriptor is the per-value destructor tree of spec §3.3: a
// node per field that owns destructible state, mirroring the value's
// field layout.
type DeinitDescriptor struct {
	Unmanaged bool // suppressed by attribute: no flag/call ever emitted
	HasDeinit bool
	FieldPath []int // navigation from the owning value's root
	Children  []*DeinitDescriptor
	// LivenessReg is not written by internal/lower, which keeps each
	// liveness flag's stack slot in its own deinit scope entries; it
	// stays zero.
	LivenessReg int
}

// NeedsDestruction reports whether this node or any descendant requires
// a runtime destructor call.
func (d *DeinitDescriptor) NeedsDestruction() bool {
	if d == nil || d.Unmanaged {
		return false
	}
	if d.HasDeinit {
		return true
	}
	for _, c := range d.Children {
		if c.NeedsDestruction() {
			return true
		}
	}
	return false
}

// Variable is a local, parameter, global, constant, struct field, or
// union-case field (spec §3.1).
type Variable struct {
	Name   string
	Role   VariableRole
	Type   types.Type
	Deinit *DeinitDescriptor // nil when Type has no destructible state
}

// FunctionModifier is one bit of a Function's modifier set.
type FunctionModifier int

const (
	ModNative FunctionModifier = 1 << iota
	ModExposed
	ModDllExport
	ModMethod
	ModTest
)

// Function is a declared function, method, or generic instance thereof.
type Function struct {
	Name       string
	Params     []*Variable // Role == RoleParameter
	ReturnType types.Type
	Modifiers  FunctionModifier
	LinkName   string // optional
	Enclosing  *Structure // non-nil for methods
	// Instance is non-nil when this Function was produced by
	// instantiating a GenericEntity[*Function].
	Instance *GenericInstance[*Function]
}

func (f *Function) Has(m FunctionModifier) bool { return f.Modifiers&m != 0 }

// Method is one entry of a Structure's method table: a function plus
// the position it occupies when the structure implements a Protocol
// (the vtable index, spec §3.1/§4.3.3).
type Method struct {
	Function *Function
}

// ProtocolImpl records that a Structure implements a Protocol, with the
// resolved vtable symbol (a module-level global holding the function
// pointer table, spec §4.3.3).
type ProtocolImpl struct {
	Protocol    *Protocol
	VTableGlobal string
	// Methods is ordered to match Protocol.Methods positionally; each
	// entry is the Structure's method satisfying that signature.
	Methods []*Function
}

// Structure is a declared struct: ordered fields, its method table, and
// the protocols it implements.
type Structure struct {
	Name       string
	Fields     []*Variable // Role == RoleStructField, ordered
	Methods    []*Method
	Implements []*ProtocolImpl
}

func (s *Structure) FieldIndex(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (s *Structure) MethodNamed(name string) *Method {
	for _, m := range s.Methods {
		if m.Function.Name == name {
			return m
		}
	}
	return nil
}

// EnumVariant is one member of an Enumeration with its discriminant.
type EnumVariant struct {
	Name         string
	Discriminant int64
}

// Enumeration is a declared C-like enum.
type Enumeration struct {
	Name     string
	Variants []EnumVariant
}

// UnionCase is one case of a tagged Union: an ordered field list and
// the position used as its runtime tag (spec §3.1).
type UnionCase struct {
	Name   string
	Index  int
	Fields []*Variable // Role == RoleUnionCaseField
}

// Union is a declared tagged union.
type Union struct {
	Name  string
	Cases []UnionCase
}

func (u *Union) CaseNamed(name string) (UnionCase, bool) {
	for _, c := range u.Cases {
		if c.Name == name {
			return c, true
		}
	}
	return UnionCase{}, false
}

// Protocol is a declared interface: an ordered method-signature list,
// position being the vtable index.
type Protocol struct {
	Name    string
	Methods []types.MethodSig
}

func (p *Protocol) MethodIndex(name string) (int, bool) {
	for i, m := range p.Methods {
		if m.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Module is a compilation unit's top-level symbol table plus its
// declared path (spec §3.1).
type Module struct {
	Path   []string
	Scope  *Table
}
