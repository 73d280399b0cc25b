package symbol

import "banyan/internal/types"

// GenericParam is one entry of a generic entity's parameter list: either
// a plain type parameter or a parameter-sequence marker (variadic
// generics, spec §4.1) collected into a tuple type for the last
// parameter at instantiation time.
type GenericParam struct {
	Name       string
	IsSequence bool
}

// GenericInstance records one concrete instantiation of a generic
// entity: the argument vector it was instantiated with and the
// specialized entity produced.
//
// Template and Entity point directly at the uninstantiated template and
// the specialized entity.
type GenericInstance[T any] struct {
	Args     []types.Type
	Template T
	Entity   T
}

// GenericEntity is a generic Function or Structure together with its
// instantiation cache. T is *Function or *Structure.
type GenericEntity[T any] struct {
	Name   string
	Params []GenericParam
	// Template is the uninstantiated declaration carrying a GenericType
	// placeholder for each Param; it is the key external per-instance
	// data (e.g. ast.ModuleDecl.GenericFuncBodies) is looked up by.
	Template  T
	Instances []*GenericInstance[T]
	// Clone produces a fresh, uninstantiated copy of the generic AST
	// subtree's resolved entity with args substituted for each
	// GenericParam; supplied by the lowering/semantic layer that owns
	// the AST, since package symbol itself has no AST dependency.
	Clone func(args []types.Type) T
}

// typeVectorEquals is structural equality over an argument vector, used
// by the instance-cache linear search (spec §4.1: "first check the
// instance cache (linear search with structural type equality)").
func typeVectorEquals(a, b []types.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}

// Instantiate returns the cached instance for args if one exists, or
// clones, records, and returns a new one. Sequence parameters (the last
// GenericParam with IsSequence set) should already have been collected
// into a single TupleType entry of args by the caller before this is
// invoked.
func (g *GenericEntity[T]) Instantiate(args []types.Type) T {
	for _, inst := range g.Instances {
		if typeVectorEquals(inst.Args, args) {
			return inst.Entity
		}
	}
	entity := g.Clone(args)
	g.Instances = append(g.Instances, &GenericInstance[T]{Args: args, Template: g.Template, Entity: entity})
	return entity
}

// CollectSequenceArgs folds trailing positional arguments into a single
// tuple when the generic entity's last parameter is a sequence marker,
// per spec §4.1 ("Parameter sequences ... are collected into a tuple
// type for the last parameter").
func CollectSequenceArgs[T any](g *GenericEntity[T], positional []types.Type) []types.Type {
	if len(g.Params) == 0 || !g.Params[len(g.Params)-1].IsSequence {
		return positional
	}
	fixed := len(g.Params) - 1
	if len(positional) < fixed {
		return positional
	}
	out := make([]types.Type, fixed+1)
	copy(out, positional[:fixed])
	out[fixed] = &types.TupleType{Elems: append([]types.Type{}, positional[fixed:]...)}
	return out
}
