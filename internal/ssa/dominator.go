package ssa

// DominatorTree is the result of the iterative Cooper-Harvey-Kennedy
// algorithm over a function's CFG (spec §4.2): each reachable block
// (other than the entry) maps to its immediate dominator, plus the
// dominance frontiers mem2reg (passes/mem2reg.go) needs for phi
// placement.
type DominatorTree struct {
	entry      *BasicBlock
	idom       map[*BasicBlock]*BasicBlock
	rpoIndex   map[*BasicBlock]int
	frontiers  map[*BasicBlock]map[*BasicBlock]bool
}

// BuildDominatorTree computes the dominator tree of f. Unreachable
// blocks (per BuildCFG) are ignored.
func BuildDominatorTree(f *Function) *DominatorTree {
	rpo := ReversePostorder(f)
	rpoIndex := make(map[*BasicBlock]int, len(rpo))
	for i, b := range rpo {
		rpoIndex[b] = i
	}

	idom := make(map[*BasicBlock]*BasicBlock, len(rpo))
	idom[f.Entry] = f.Entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == f.Entry {
				continue
			}
			var newIdom *BasicBlock
			for _, pred := range b.Predecessors {
				if idom[pred] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = pred
					continue
				}
				newIdom = intersect(newIdom, pred, idom, rpoIndex)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	delete(idom, f.Entry) // entry dominates itself trivially; no parent

	frontiers := make(map[*BasicBlock]map[*BasicBlock]bool)
	for _, b := range rpo {
		frontiers[b] = map[*BasicBlock]bool{}
	}
	for _, b := range rpo {
		if len(b.Predecessors) < 2 {
			continue
		}
		for _, pred := range b.Predecessors {
			runner := pred
			for runner != idom[b] && runner != f.Entry {
				frontiers[runner][b] = true
				next := idom[runner]
				if next == nil || next == runner {
					break
				}
				runner = next
			}
		}
	}

	return &DominatorTree{entry: f.Entry, idom: idom, rpoIndex: rpoIndex, frontiers: frontiers}
}

func intersect(a, b *BasicBlock, idom map[*BasicBlock]*BasicBlock, rpoIndex map[*BasicBlock]int) *BasicBlock {
	for a != b {
		for rpoIndex[a] > rpoIndex[b] {
			a = idom[a]
		}
		for rpoIndex[b] > rpoIndex[a] {
			b = idom[b]
		}
	}
	return a
}

// ImmediateDominator returns b's immediate dominator, or nil for the
// entry block or an unreachable block.
func (d *DominatorTree) ImmediateDominator(b *BasicBlock) *BasicBlock { return d.idom[b] }

// Dominates reports whether a dominates b (reflexively: a dominates
// itself).
func (d *DominatorTree) Dominates(a, b *BasicBlock) bool {
	for cur := b; cur != nil; {
		if cur == a {
			return true
		}
		if cur == d.entry {
			return cur == a
		}
		cur = d.idom[cur]
	}
	return false
}

// Frontier returns the dominance frontier of b.
func (d *DominatorTree) Frontier(b *BasicBlock) []*BasicBlock {
	set := d.frontiers[b]
	out := make([]*BasicBlock, 0, len(set))
	for blk := range set {
		out = append(out, blk)
	}
	return out
}
