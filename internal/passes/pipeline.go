package passes

import "banyan/internal/ssa"

// PipelineConfig mirrors the opt_level/generate_addr_table knobs of
// spec §6.4 that decide which passes run, plus the two supplemented
// passes (SPEC_FULL.md) that aren't part of the default pipeline:
// EnableCSE and EnableStackSlotMerge.
type PipelineConfig struct {
	OptLevel             int
	GenerateAddrTable    bool
	EnableCSE            bool
	EnableStackSlotMerge bool
}

// DefaultPipeline returns the ordered pass list of spec §4.4's table,
// grounded in original_source/passes/pass_runner.cpp's fixed order.
// addr-table is optional and non-default, appended only when
// cfg.GenerateAddrTable is set (spec §4.4).
func DefaultPipeline(cfg PipelineConfig) []Pass {
	order := []Pass{
		{Name: "dead-func-elimination", MinLevel: 0, Run: DeadFuncElimination, Repeat: 1},
		{Name: "control-flow-opt", MinLevel: 1, Run: ControlFlowOpt, Repeat: 4},
		{Name: "sroa", MinLevel: 1, Run: SROA, Repeat: 1},
		{Name: "stack-to-reg", MinLevel: 1, Run: Mem2Reg, Repeat: 1},
		{Name: "loop-inversion", MinLevel: 2, Run: LoopInversion, Repeat: 1},
		{Name: "peephole", MinLevel: 1, Run: Peephole, Repeat: 1},
		{Name: "branch-elimination", MinLevel: 1, Run: BranchElimination, Repeat: 1},
		{Name: "inlining", MinLevel: 1, Run: Inlining, Repeat: 1},
		{Name: "licm", MinLevel: 2, Run: LICM, Repeat: 1},
		{Name: "heap-to-stack", MinLevel: 2, Run: HeapToStack, Repeat: 1},
		{Name: "precomputing", MinLevel: 1, Run: Precompute, Repeat: 1},
		{Name: "canonicalization", MinLevel: 1, Run: Canonicalize, Repeat: 1},
	}
	if cfg.EnableCSE {
		// Runs right after canonicalization: CSE benefits from
		// memberptr-normalized addresses, and feeds deduplicated
		// values forward to the (optional) addr-table rewrite.
		order = append(order, Pass{Name: "cse", MinLevel: 1, Run: CSE, Repeat: 1})
	}
	if cfg.EnableStackSlotMerge {
		order = append(order, Pass{Name: "stack-slot-merge", MinLevel: 2, Run: StackSlotMerge, Repeat: 1})
	}
	if cfg.GenerateAddrTable {
		order = append(order, Pass{Name: "addr-table", MinLevel: 0, Run: AddrTable, Repeat: 1})
	}
	return order
}

// Run executes every pass in pipeline whose MinLevel is satisfied by
// cfg.OptLevel, in order, each to its own fixed point (spec §4.4).
func Run(mod *ssa.Module, cfg PipelineConfig) {
	for _, p := range DefaultPipeline(cfg) {
		if cfg.OptLevel < p.MinLevel {
			continue
		}
		runToFixedPoint(p, mod)
	}
}
