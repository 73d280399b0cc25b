package ssa

// BuildCFG (re)computes Predecessors/Successors for every reachable
// block of f from its terminators. Unreachable blocks are left with no
// edges and excluded from ReversePostorder's result, per spec §4.2:
// "Unreachable blocks are not in the CFG." Analyses are rebuildable on
// demand rather than cached across mutating passes (spec §4.2), so
// every pass that needs CFG shape calls this first.
func BuildCFG(f *Function) {
	for _, b := range f.Blocks {
		b.Predecessors = nil
		b.Successors = nil
	}

	visited := map[*BasicBlock]bool{}
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		term := b.Terminator()
		if term == nil {
			return
		}
		for _, succ := range term.Successors() {
			b.Successors = append(b.Successors, succ)
			succ.Predecessors = append(succ.Predecessors, b)
			visit(succ)
		}
	}
	visit(f.Entry)
}

// ReversePostorder runs BuildCFG and returns the reachable blocks in
// reverse postorder from the entry, the ordering the dominator
// computation (dominator.go) and most passes want to iterate in.
func ReversePostorder(f *Function) []*BasicBlock {
	BuildCFG(f)

	var postorder []*BasicBlock
	visited := map[*BasicBlock]bool{}
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, succ := range b.Successors {
			visit(succ)
		}
		postorder = append(postorder, b)
	}
	visit(f.Entry)

	rpo := make([]*BasicBlock, len(postorder))
	for i, b := range postorder {
		rpo[len(postorder)-1-i] = b
	}
	return rpo
}
