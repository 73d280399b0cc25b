package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"

	"banyan/internal/irio"
	"banyan/internal/passes"
	"banyan/internal/target"
	"banyan/internal/validate"
)

// banyanc is the stand-in driver SPEC_FULL.md's AMBIENT STACK section
// describes: spec §1 marks the real driver CLI out of scope as an
// external collaborator, but L2-L5 still need a way to be exercised
// end to end, so this reads one textual IR module (spec §6.3), runs
// the validator, runs the optimization pipeline at the requested
// opt_level, validates again, and writes the result — the same
// read-one-file/run-a-phase/print-colored-result shape as the
// teacher's cmd/kanso-cli/main.go.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: banyanc [-O0|-O1|-O2] [-debug] [-addr-table] <file.bir>")
		os.Exit(1)
	}

	cfg := passes.PipelineConfig{OptLevel: 1}
	debug := false
	var path string
	for _, arg := range os.Args[1:] {
		switch {
		case arg == "-O0":
			cfg.OptLevel = 0
		case arg == "-O1":
			cfg.OptLevel = 1
		case arg == "-O2":
			cfg.OptLevel = 2
		case arg == "-debug":
			debug = true
		case arg == "-addr-table":
			cfg.GenerateAddrTable = true
		case arg == "-cse":
			cfg.EnableCSE = true
		case arg == "-stack-slot-merge":
			cfg.EnableStackSlotMerge = true
		default:
			path = arg
		}
	}
	if path == "" {
		color.Red("no input file given")
		os.Exit(1)
	}

	driverCfg := target.Config{OptLevel: cfg.OptLevel, Debug: debug, GenerateAddrTable: cfg.GenerateAddrTable}

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read %s: %s", path, err)
		os.Exit(1)
	}

	mod, err := irio.Parse(path, string(source))
	if err != nil {
		color.Red("failed to parse %s: %s", path, err)
		os.Exit(1)
	}

	if r := validate.Module(mod); !r.Valid() {
		color.Red("module failed validation before optimization:")
		for _, e := range r.Errors {
			fmt.Println("  " + e)
		}
		os.Exit(1)
	}
	if driverCfg.Debug {
		color.Cyan("-- before optimization (opt_level=%d, addr_table=%v) --", driverCfg.OptLevel, driverCfg.GenerateAddrTable)
		fmt.Println(irio.Write(mod))
	}

	passes.Run(mod, cfg)

	if r := validate.Module(mod); !r.Valid() {
		color.Red("module failed validation after optimization at opt_level " + strconv.Itoa(cfg.OptLevel) + ":")
		for _, e := range r.Errors {
			fmt.Println("  " + e)
		}
		os.Exit(1)
	}

	fmt.Println(irio.Write(mod))
	color.Green("✅ %s: validated at opt_level %d", path, cfg.OptLevel)
}
