package symbol

import "fmt"

// Table is a symbol table: identifier -> tagged Symbol reference, with
// an optional parent for nested scopes. Lookup is local-first, then
// walks to the parent (spec §4.1), grounded directly in the teacher's
// internal/semantic/symbols.go SymbolTable.
type Table struct {
	parent  *Table
	symbols map[string]*Symbol
	// groups holds function overload sets keyed by name: a symbol
	// table entry of Kind==KindFunction only ever names the *first*
	// overload; groups is where the full ordered multiset lives (spec
	// §4.1, "Overload resolution").
	groups map[string]*Group
}

// Group is an ordered multiset of functions sharing a name but
// differing in parameter types (spec §4.1).
type Group struct {
	Name      string
	Functions []*Function
}

// NewTable creates a table with the given optional parent.
func NewTable(parent *Table) *Table {
	return &Table{parent: parent, symbols: make(map[string]*Symbol), groups: make(map[string]*Group)}
}

// Parent returns the enclosing scope, or nil at the root.
func (t *Table) Parent() *Table { return t.parent }

// Define inserts sym under sym.Name. Insertion into a scope that
// already has an identifier of the same kind fails and returns false,
// per spec §4.1 ("Insertion into a scope with an existing identifier of
// the same kind fails"); redeclaring with a *different* kind is also
// rejected, since shadowing within one scope is never implicit here.
func (t *Table) Define(sym *Symbol) bool {
	if existing, ok := t.symbols[sym.Name]; ok {
		if sym.Kind != KindFunction || existing.Kind != KindFunction {
			return false
		}
		// Two functions are the exception: the new one replaces this
		// entry and Define returns true. Overload groups are kept by
		// AddOverload, not here.
	}
	t.symbols[sym.Name] = sym
	return true
}

// AddOverload inserts fn into the named overload group, creating the
// group (and its KindFunction Symbol, pointing at the first overload)
// if this is the first function with that name.
func (t *Table) AddOverload(fn *Function) {
	g, ok := t.groups[fn.Name]
	if !ok {
		g = &Group{Name: fn.Name}
		t.groups[fn.Name] = g
		t.symbols[fn.Name] = &Symbol{Name: fn.Name, Kind: KindFunction, Function: fn}
	}
	g.Functions = append(g.Functions, fn)
}

// LookupGroup returns the overload group for name in this scope or an
// ancestor, local-first.
func (t *Table) LookupGroup(name string) *Group {
	if g, ok := t.groups[name]; ok {
		return g
	}
	if t.parent != nil {
		return t.parent.LookupGroup(name)
	}
	return nil
}

// Lookup resolves name local-first, then via the parent chain. Use
// forwarders are *not* auto-resolved here (callers needing the target
// of a Use should call ResolveUse explicitly) so that a Use appearing
// as a lookup result is always visible to its caller.
func (t *Table) Lookup(name string) *Symbol {
	if sym, ok := t.symbols[name]; ok {
		return sym
	}
	if t.parent != nil {
		return t.parent.Lookup(name)
	}
	return nil
}

// LookupLocal resolves name only within this scope, ignoring parents.
func (t *Table) LookupLocal(name string) *Symbol {
	return t.symbols[name]
}

// ResolveUse follows a chain of Use forwarders to its ultimate target,
// per spec §4.1: "when resolved it returns its target, walking through
// chains without cycles (cycle detection on a per-use visited set;
// cycles are diagnosed and not followed)."
func ResolveUse(sym *Symbol) (*Symbol, error) {
	visited := map[*Symbol]bool{}
	cur := sym
	for cur.Kind == KindUse {
		if visited[cur] {
			return nil, fmt.Errorf("cyclic use of %q", cur.Name)
		}
		visited[cur] = true
		target := cur.Use.Target
		if target == nil {
			return nil, fmt.Errorf("unresolved use %q", cur.Name)
		}
		cur = target
	}
	return cur, nil
}

// Use is a forwarder symbol: an import alias whose Target is filled in
// once the referent is resolved (spec §4.1).
type Use struct {
	Path   []string
	Target *Symbol
}
