package symbol

import (
	"fmt"
	"strings"

	"banyan/internal/types"
)

// ResolveOverload matches argTypes against every candidate in g,
// skipping a leading self parameter for methods, per spec §4.1:
// "matching the positional argument types of a call against each
// candidate's parameter types (skipping a leading self for methods).
// Exactly one match -> selected; zero -> 'no matching overload' with
// candidate list; multiple structurally-equal signatures is a bug in
// the front-end and must not occur."
func ResolveOverload(g *Group, argTypes []types.Type) (*Function, error) {
	var matches []*Function
	for _, fn := range g.Functions {
		params := fn.Params
		if fn.Has(ModMethod) && len(params) > 0 {
			params = params[1:]
		}
		if paramTypesMatch(params, argTypes) {
			matches = append(matches, fn)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no matching overload for %s(%s); candidates:\n%s",
			g.Name, typeListString(argTypes), candidateList(g.Functions))
	case 1:
		return matches[0], nil
	default:
		// The front-end guarantees overload sets never contain two
		// structurally-equal signatures; reaching this is a bug in
		// the caller supplying g, not a user-facing diagnostic.
		panic(fmt.Sprintf("ambiguous overload resolution for %s: %d structurally-equal candidates", g.Name, len(matches)))
	}
}

func paramTypesMatch(params []*Variable, argTypes []types.Type) bool {
	if len(params) != len(argTypes) {
		return false
	}
	for i, p := range params {
		if !p.Type.Equals(argTypes[i]) {
			return false
		}
	}
	return true
}

func typeListString(ts []types.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func candidateList(fns []*Function) string {
	var b strings.Builder
	for _, fn := range fns {
		paramTypes := make([]types.Type, len(fn.Params))
		for i, p := range fn.Params {
			paramTypes[i] = p.Type
		}
		fmt.Fprintf(&b, "  %s(%s)\n", fn.Name, typeListString(paramTypes))
	}
	return b.String()
}
