// Package irio implements the textual IR form of spec §6.3: a
// deterministic Writer and its formal inverse, a participle-based
// Parser, grounded in the teacher's internal/ir/printer.go traversal
// order (structs, then extern decls, then definitions) and
// grammar/parser.go's participle.Build usage.
package irio

import (
	"fmt"
	"strconv"
	"strings"

	"banyan/internal/ssa"
)

// Write renders mod in the deterministic order spec §4.6 requires:
// struct definitions, then external declarations, then globals, then
// function definitions, matching internal/ir/printer.go's Printer
// (indent-tracking strings.Builder) rather than fmt.Sprintf-per-line.
func Write(mod *ssa.Module) string {
	w := &writer{}
	w.writeModule(mod)
	return w.out.String()
}

type writer struct {
	out    strings.Builder
	indent int
}

func (w *writer) line(format string, args ...any) {
	for i := 0; i < w.indent; i++ {
		w.out.WriteString("  ")
	}
	w.out.WriteString(fmt.Sprintf(format, args...))
	w.out.WriteByte('\n')
}

func (w *writer) writeModule(mod *ssa.Module) {
	for _, s := range mod.Structs {
		w.writeStruct(s)
	}
	for _, ef := range mod.ExternFunctions {
		w.line("extern func @%s(%s) -> %s;", ef.Name, joinTypes(ef.ParamTypes), typeString(ef.ReturnType))
	}
	for _, eg := range mod.ExternGlobals {
		w.line("extern %s @%s;", typeString(eg.Type), eg.Name)
	}
	for _, g := range mod.Globals {
		w.line("global %s @%s = %s;", typeString(g.Type), g.Name, writeOperand(g.Initial))
	}
	for _, fn := range mod.Functions {
		w.writeFunction(fn)
	}
}

func (w *writer) writeStruct(s *ssa.StructDef) {
	w.line("struct @%s {", s.Name)
	w.indent++
	for _, f := range s.Fields {
		w.line("%s;", typeString(f))
	}
	w.indent--
	w.line("}")
	w.line("")
}

func (w *writer) writeFunction(fn *ssa.Function) {
	exported := ""
	if fn.Exported {
		exported = "exported "
	}
	w.line("%sfunc @%s(%s) -> %s {", exported, fn.Name, joinTypes(fn.ParamTypes), typeString(fn.ReturnType))
	w.indent++
	for _, b := range fn.Blocks {
		w.writeBlock(b)
	}
	w.indent--
	w.line("}")
	w.line("")
}

func (w *writer) writeBlock(b *ssa.BasicBlock) {
	params := make([]string, len(b.Params))
	for i, p := range b.Params {
		params[i] = fmt.Sprintf("%%%d: %s", p.Reg, typeString(p.Type))
	}
	w.line("%s(%s): {", b.Label, strings.Join(params, ", "))
	w.indent++
	for _, inst := range b.Instructions {
		w.writeInstruction(inst)
	}
	w.indent--
	w.line("}")
}

func (w *writer) writeInstruction(inst *ssa.Instruction) {
	var b strings.Builder
	if inst.HasDest() {
		b.WriteString("%")
		b.WriteString(strconv.Itoa(int(*inst.Dest)))
		b.WriteString(": ")
		b.WriteString(typeString(inst.DestType))
		b.WriteString(" = ")
	}
	b.WriteString(inst.Op.String())
	for i, op := range inst.Operands {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(writeOperand(op))
	}
	w.line("%s", b.String())
}

// writeOperand is the canonical textual encoding of spec §6.3's operand
// grammar — "type value", a bare type, or a branch target — and is the
// single source of truth the parser inverts. It intentionally departs
// from Operand.String() for OpBytes: String() only reports a length,
// which would break the round-trip property for asm text, so the
// writer spells the actual bytes as a quoted string instead.
func writeOperand(o ssa.Operand) string {
	switch o.Kind {
	case ssa.OpVReg:
		return fmt.Sprintf("%s %%%d", typeString(o.Type), o.VReg)
	case ssa.OpIntImm:
		return fmt.Sprintf("%s %s", typeString(o.Type), o.IntImm.String())
	case ssa.OpFloatImm:
		return fmt.Sprintf("%s %s", typeString(o.Type), formatFloat(o.FloatImm))
	case ssa.OpTypeOnly:
		return typeString(o.Type)
	case ssa.OpGlobal:
		return fmt.Sprintf("%s @%s", typeString(o.Type), o.Symbol)
	case ssa.OpFunc:
		return "@" + o.Symbol
	case ssa.OpExternFunc:
		return "extern @" + o.Symbol
	case ssa.OpExternGlobal:
		return fmt.Sprintf("extern %s @%s", typeString(o.Type), o.Symbol)
	case ssa.OpCmp:
		return o.Cmp.String()
	case ssa.OpBranchTarget:
		return writeBranchTarget(o.Target)
	case ssa.OpBytes:
		return strconv.Quote(string(o.Bytes))
	default:
		return "?operand"
	}
}

func writeBranchTarget(t *ssa.BranchTarget) string {
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = writeOperand(a)
	}
	return t.Block.Label + "(" + strings.Join(args, ", ") + ")"
}

// formatFloat always keeps a decimal point, per spec §6.3's "decimal-
// point fp immediate" operand form, so 2 is printed as "2.0" and
// reparses back to a float operand rather than an int one.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func joinTypes(ts []ssa.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = typeString(t)
	}
	return strings.Join(parts, ", ")
}

// typeString renders t exactly as grammar.go's TypeG parses it back:
// struct types spelled "struct @Name" (never bare "@Name", which the
// grammar reserves for function-reference operands) and arrays
// recursing through the same rule, so every nested type round-trips.
func typeString(t ssa.Type) string {
	switch t.Kind {
	case ssa.Struct:
		return "struct @" + t.Struct
	case ssa.Array:
		return fmt.Sprintf("[%s x %d]", typeString(*t.Elem), t.Count)
	default:
		return t.String()
	}
}
