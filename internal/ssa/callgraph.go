package ssa

// CallGraph's nodes are functions in a module; edges come from each
// call whose callee operand is a function symbol (spec §4.2). External
// calls do not create edges, matching
// original_source/ssa/call_graph.hpp's Node{preds, succs} shape indexed
// through a name table rather than raw pointers.
type CallGraph struct {
	nodes    []*CallGraphNode
	indexOf  map[string]int
}

// CallGraphNode is one function's predecessor/successor edge set,
// stored as node indices the way original_source's ssa::CallGraph::Node
// does.
type CallGraphNode struct {
	Function *Function
	Preds    []int
	Succs    []int
}

// BuildCallGraph scans every call instruction in every defined function
// of mod and links caller -> callee edges for direct function-symbol
// callees. Indirect calls (function pointers, closures, protocol
// dispatch) contribute no edge, since their callee operand is not an
// OpFunc operand.
func BuildCallGraph(mod *Module) *CallGraph {
	cg := &CallGraph{indexOf: make(map[string]int, len(mod.Functions))}
	for _, fn := range mod.Functions {
		cg.indexOf[fn.Name] = len(cg.nodes)
		cg.nodes = append(cg.nodes, &CallGraphNode{Function: fn})
	}

	for _, fn := range mod.Functions {
		fromIdx := cg.indexOf[fn.Name]
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				if inst.Op != OpCall {
					continue
				}
				callee := inst.Operands[0]
				if callee.Kind != OpFunc {
					continue
				}
				toIdx, ok := cg.indexOf[callee.Symbol]
				if !ok {
					continue
				}
				cg.nodes[fromIdx].Succs = append(cg.nodes[fromIdx].Succs, toIdx)
				cg.nodes[toIdx].Preds = append(cg.nodes[toIdx].Preds, fromIdx)
			}
		}
	}
	return cg
}

func (cg *CallGraph) Nodes() []*CallGraphNode { return cg.nodes }

func (cg *CallGraph) NodeIndex(fn *Function) int { return cg.indexOf[fn.Name] }

func (cg *CallGraph) Node(i int) *CallGraphNode { return cg.nodes[i] }

// NodeFor returns the node for fn, or nil if fn is not in the graph.
func (cg *CallGraph) NodeFor(fn *Function) *CallGraphNode {
	i, ok := cg.indexOf[fn.Name]
	if !ok {
		return nil
	}
	return cg.nodes[i]
}

// PostorderCallees returns functions in callee-before-caller order,
// visiting each function's direct call-graph successors before the
// function itself. Recursion cycles are broken arbitrarily (a function
// already on the current path is treated as having no further
// successors), which is sufficient for inlining (passes/inline.go),
// the only consumer that needs this order (spec §4.4: "visit callees
// before callers").
func (cg *CallGraph) PostorderCallees() []*Function {
	visited := make([]bool, len(cg.nodes))
	onPath := make([]bool, len(cg.nodes))
	var order []*Function
	var visit func(i int)
	visit = func(i int) {
		if visited[i] || onPath[i] {
			return
		}
		onPath[i] = true
		for _, succ := range cg.nodes[i].Succs {
			visit(succ)
		}
		onPath[i] = false
		visited[i] = true
		order = append(order, cg.nodes[i].Function)
	}
	for i := range cg.nodes {
		visit(i)
	}
	return order
}
