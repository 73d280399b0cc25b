// Package passes implements the optimization pipeline of spec §4.4,
// one file per pass named after the spec's table and
// original_source/src/banjo/passes/*.cpp. Every pass is a stateless
// transform function taking a module (spec §9's "Global mutable state"
// note: no process-wide pass registry, unlike the banjo/kanso source's
// free-function registration).
package passes

import "banyan/internal/ssa"

// PassFunc transforms mod in place and reports whether it changed
// anything, so the pipeline runner knows whether to re-run a
// fixed-point pass.
type PassFunc func(mod *ssa.Module) bool

// Pass pairs a PassFunc with its metadata: the opt_level it requires
// (spec §4.4's "Level ≥" column) and how many times it may need to
// re-run within one pipeline execution to reach a fixed point.
type Pass struct {
	Name     string
	MinLevel int
	Run      PassFunc
	Repeat   int
}

// runToFixedPoint runs p against mod up to p.Repeat times, stopping
// early once a run reports no change.
func runToFixedPoint(p Pass, mod *ssa.Module) {
	for i := 0; i < p.Repeat; i++ {
		if !p.Run(mod) {
			return
		}
	}
}
