package irio

import (
	"fmt"
	"math/big"

	"github.com/alecthomas/participle/v2"

	"banyan/internal/ssa"
)

var irParser = buildParser()

func buildParser() *participle.Parser[ModuleG] {
	p, err := participle.Build[ModuleG](
		participle.Lexer(irLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(4),
	)
	if err != nil {
		panic(fmt.Errorf("irio: failed to build parser: %w", err))
	}
	return p
}

// Parse is Write's formal inverse (spec §8's round-trip property):
// parse(write(M)) == M for every module M produced by lowering, modulo
// debug labels which are informational. Grounded in the teacher's
// internal/parser/parser.go (participle.Build once, reused across
// calls) generalized from the surface grammar to the textual IR form.
func Parse(name, source string) (*ssa.Module, error) {
	g, err := irParser.ParseString(name, source)
	if err != nil {
		return nil, err
	}
	return moduleFromGrammar(g), nil
}

func moduleFromGrammar(g *ModuleG) *ssa.Module {
	mod := &ssa.Module{Name: "module"}
	for _, s := range g.Structs {
		mod.Structs = append(mod.Structs, &ssa.StructDef{
			Name:   s.Name,
			Fields: typesFromGrammar(s.Fields),
		})
	}
	for _, e := range g.Externs {
		if e.FuncName != nil {
			mod.ExternFunctions = append(mod.ExternFunctions, &ssa.ExternFunction{
				Name:       *e.FuncName,
				ParamTypes: typesFromGrammar(e.Params),
				ReturnType: typeFromGrammar(e.Ret),
				CallConv:   "c",
			})
			continue
		}
		mod.ExternGlobals = append(mod.ExternGlobals, &ssa.ExternGlobal{
			Name: e.GlobalName,
			Type: typeFromGrammar(e.GlobalType),
		})
	}
	for _, gl := range g.Globals {
		mod.Globals = append(mod.Globals, &ssa.Global{
			Name:    gl.Name,
			Type:    typeFromGrammar(&gl.Type),
			Initial: operandFromGrammar(&gl.Initial, nil),
		})
	}
	for _, fd := range g.Funcs {
		mod.Functions = append(mod.Functions, funcFromGrammar(fd))
	}
	return mod
}

func typesFromGrammar(ts []*TypeG) []ssa.Type {
	out := make([]ssa.Type, len(ts))
	for i, t := range ts {
		out[i] = typeFromGrammar(t)
	}
	return out
}

func typeFromGrammar(t *TypeG) ssa.Type {
	if t == nil {
		return ssa.TyVoid
	}
	if t.Array != nil {
		elem := typeFromGrammar(t.Array.Elem)
		return ssa.ArrayType(elem, t.Array.Count)
	}
	if t.Struct != nil {
		return ssa.StructType(*t.Struct)
	}
	switch t.Prim {
	case "i8":
		return ssa.TyI8
	case "i16":
		return ssa.TyI16
	case "i32":
		return ssa.TyI32
	case "i64":
		return ssa.TyI64
	case "f32":
		return ssa.TyF32
	case "f64":
		return ssa.TyF64
	case "addr":
		return ssa.TyAddr
	case "void":
		return ssa.TyVoid
	default:
		return ssa.TyVoid
	}
}

var predicateByName = map[string]ssa.Predicate{
	"eq": ssa.EQ, "ne": ssa.NE, "ugt": ssa.UGT, "uge": ssa.UGE, "ult": ssa.ULT, "ule": ssa.ULE,
	"sgt": ssa.SGT, "sge": ssa.SGE, "slt": ssa.SLT, "sle": ssa.SLE,
	"feq": ssa.FEQ, "fne": ssa.FNE, "fgt": ssa.FGT, "fge": ssa.FGE, "flt": ssa.FLT, "fle": ssa.FLE,
}

var opcodeByName = func() map[string]ssa.Opcode {
	m := make(map[string]ssa.Opcode, len(opcodeNamesRef()))
	for op, name := range opcodeNamesRef() {
		m[name] = op
	}
	return m
}()

// opcodeNamesRef exposes package ssa's private name table through the
// public String() method on every opcode value, rather than duplicating
// the literal table here and risking the two falling out of sync.
func opcodeNamesRef() map[ssa.Opcode]string {
	names := make(map[ssa.Opcode]string)
	for op := ssa.OpAlloca; op <= ssa.OpAsm; op++ {
		names[op] = op.String()
	}
	return names
}

// funcCtx threads the per-function block-label table a branch target
// or block-param register needs while converting one function's body.
type funcCtx struct {
	blocksByLabel map[string]*ssa.BasicBlock
	maxReg        int
}

func (c *funcCtx) track(r int) {
	if r >= c.maxReg {
		c.maxReg = r + 1
	}
}

func funcFromGrammar(fd *FuncDeclG) *ssa.Function {
	fn := &ssa.Function{
		Name:       fd.Name,
		ParamTypes: typesFromGrammar(fd.Params),
		ReturnType: typeFromGrammar(&fd.Ret),
		CallConv:   "default",
		Exported:   fd.Exported,
	}

	ctx := &funcCtx{blocksByLabel: make(map[string]*ssa.BasicBlock, len(fd.Blocks))}

	// First pass: materialize every block (with its params, which are
	// definitions, so they're visible to branch targets in any block)
	// before lowering any instruction, since branch targets and loop
	// back-edges refer to blocks that may appear later in the text.
	for idx, bg := range fd.Blocks {
		b := &ssa.BasicBlock{Label: bg.Label, Index: idx, Func: fn}
		for _, p := range bg.Params {
			b.Params = append(b.Params, ssa.BlockParam{Reg: ssa.VReg(p.Reg), Type: typeFromGrammar(&p.Type)})
			ctx.track(p.Reg)
		}
		fn.Blocks = append(fn.Blocks, b)
		ctx.blocksByLabel[bg.Label] = b
	}
	if len(fn.Blocks) > 0 {
		fn.Entry = fn.Blocks[0]
	}

	for i, bg := range fd.Blocks {
		b := fn.Blocks[i]
		for _, ig := range bg.Instrs {
			b.Instructions = append(b.Instructions, instrFromGrammar(ig, ctx, b))
		}
	}

	fn.RegCounter = ctx.maxReg
	return fn
}

func instrFromGrammar(ig *InstrG, ctx *funcCtx, b *ssa.BasicBlock) *ssa.Instruction {
	inst := &ssa.Instruction{Op: opcodeByName[ig.Op], Block: b}
	if ig.Dest != nil {
		r := ssa.VReg(ig.Dest.Reg)
		inst.Dest = &r
		inst.DestType = typeFromGrammar(&ig.Dest.Type)
		ctx.track(ig.Dest.Reg)
	}
	for _, og := range ig.Operands {
		inst.Operands = append(inst.Operands, operandFromGrammar(og, ctx))
	}
	return inst
}

func operandFromGrammar(og *OperandG, ctx *funcCtx) ssa.Operand {
	switch {
	case og.Extern != nil:
		if og.Extern.FuncName != nil {
			return ssa.ExternFuncRef(*og.Extern.FuncName)
		}
		return ssa.ExternGlobalRef(og.Extern.GlobalName, typeFromGrammar(og.Extern.GlobalType))
	case og.Typed != nil:
		t := typeFromGrammar(&og.Typed.Type)
		switch {
		case og.Typed.Reg != nil:
			if ctx != nil {
				ctx.track(*og.Typed.Reg)
			}
			return ssa.Reg(ssa.VReg(*og.Typed.Reg), t)
		case og.Typed.Glob != nil:
			return ssa.GlobalRef(*og.Typed.Glob, t)
		case og.Typed.Int != nil:
			v, ok := new(big.Int).SetString(*og.Typed.Int, 10)
			if !ok {
				v = big.NewInt(0)
			}
			return ssa.BigIntConst(v, t)
		case og.Typed.Float != nil:
			var f float64
			fmt.Sscanf(*og.Typed.Float, "%g", &f)
			return ssa.FloatConst(f, t)
		default:
			return ssa.TypeOperand(t)
		}
	case og.Func != nil:
		return ssa.FuncRef(*og.Func)
	case og.Pred != "":
		return ssa.CmpOperand(predicateByName[og.Pred])
	case og.Branch != nil:
		return ssa.BranchOperand(branchTargetFromGrammar(og.Branch, ctx))
	case og.Bytes != nil:
		return ssa.BytesConst(unquoteIRString(*og.Bytes))
	default:
		return ssa.Operand{}
	}
}

func branchTargetFromGrammar(bg *BranchTargetG, ctx *funcCtx) *ssa.BranchTarget {
	t := &ssa.BranchTarget{}
	if ctx != nil {
		t.Block = ctx.blocksByLabel[bg.Label]
		if t.Block == nil {
			// Forward reference to a block this pass hasn't reached
			// the label table for yet cannot happen: funcFromGrammar
			// populates blocksByLabel for every block before lowering
			// any instruction. A nil here means the source referenced
			// a label with no matching block, which the writer never
			// produces.
			t.Block = &ssa.BasicBlock{Label: bg.Label}
		}
	}
	for _, a := range bg.Args {
		t.Args = append(t.Args, operandFromGrammar(a, ctx))
	}
	return t
}

// unquoteIRString strips the surrounding quotes and resolves the
// backslash escapes writer.go's strconv.Quote produced.
func unquoteIRString(s string) []byte {
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '"':
				out = append(out, '"')
			case '\\':
				out = append(out, '\\')
			default:
				out = append(out, s[i])
			}
			continue
		}
		out = append(out, s[i])
	}
	return out
}
