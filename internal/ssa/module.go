package ssa

// Module owns the defined functions, external declarations, globals,
// and structure definitions of one compilation unit (spec §3.2).
type Module struct {
	Name            string
	Functions       []*Function
	ExternFunctions []*ExternFunction
	Globals         []*Global
	ExternGlobals   []*ExternGlobal
	Structs         []*StructDef
}

// StructDef is an IR-level structure layout: an ordered, typed field
// list, used by memberptr bounds checking (spec §4.5, §8).
type StructDef struct {
	Name   string
	Fields []Type
}

// Global is a module-level variable with a constant initial value.
type Global struct {
	Name    string
	Type    Type
	Initial Operand
}

// ExternGlobal is a global declared but defined in another module.
type ExternGlobal struct {
	Name string
	Type Type
}

// ExternFunction is a function declared but defined elsewhere (or
// provided by the runtime); callers may still target it via a call
// instruction, but it contributes no edges to the call graph (spec §4.2).
type ExternFunction struct {
	Name       string
	ParamTypes []Type
	ReturnType Type
	CallConv   string
}

// Function is one defined function: its signature, calling convention
// tag (opaque metadata per spec §6.2), and basic-block list. RegCounter
// is the function-local monotonically increasing virtual-register
// counter of spec §3.2/§9 — no process-wide counter is used anywhere in
// this package.
type Function struct {
	Name       string
	ParamTypes []Type
	ReturnType Type
	CallConv   string
	// Exported marks a function as a reachability root for
	// dead-func-elimination (spec §4.4): the IR-level counterpart of
	// the language-level `exposed`/`dllexport` modifiers (spec §3.1).
	Exported bool

	Entry  *BasicBlock
	Blocks []*BasicBlock

	RegCounter int
	blockSeq   int
}

// NewFunction creates an empty function with a single, parameterless
// entry block named "entry".
func NewFunction(name string, paramTypes []Type, ret Type) *Function {
	f := &Function{Name: name, ParamTypes: paramTypes, ReturnType: ret}
	entry := f.NewBlock("entry")
	f.Entry = entry
	return f
}

// NewReg allocates a fresh virtual register for this function.
func (f *Function) NewReg() VReg {
	r := VReg(f.RegCounter)
	f.RegCounter++
	return r
}

// NewBlock appends and returns a new, empty basic block with a unique
// label derived from baseLabel (spec §9's Label note: named *and*
// indexed, not just indexed, for readable dumps).
func (f *Function) NewBlock(baseLabel string) *BasicBlock {
	idx := f.blockSeq
	f.blockSeq++
	label := baseLabel
	if idx > 0 || baseLabel == "" {
		label = baseLabel + "." + itoaBlock(idx)
	}
	b := &BasicBlock{Label: label, Index: idx, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// RemoveBlock deletes b from f.Blocks. Per spec §4.2, this invalidates
// only b's own position; a caller iterating with an explicit index
// range (rather than holding a *BasicBlock across the call) is
// unaffected, since every pass in this repo walks f.Blocks by copying
// the slice header before mutating it (see passes/cfopt.go).
func (f *Function) RemoveBlock(b *BasicBlock) {
	for i, blk := range f.Blocks {
		if blk == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

func itoaBlock(n int) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 4)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// BlockParam is one typed incoming value a block declares — SSA
// block-argument form, not a phi-node (spec §3.2).
type BlockParam struct {
	Reg  VReg
	Type Type
}

// BasicBlock is a label, an ordered block-parameter list, and an
// ordered instruction list (the last of which must be a terminator,
// spec §3.3). Instructions are stored in a slice rather than a true
// linked list; package passes always mutates through the helpers below
// so call sites never depend on pointer stability of list nodes, only
// on block identity, which Go pointers already give for free.
type BasicBlock struct {
	Label        string
	Index        int
	Func         *Function
	Params       []BlockParam
	Instructions []*Instruction
	Predecessors []*BasicBlock
	Successors   []*BasicBlock
}

// AddParam appends a new block parameter and returns its register.
func (b *BasicBlock) AddParam(t Type) VReg {
	r := b.Func.NewReg()
	b.Params = append(b.Params, BlockParam{Reg: r, Type: t})
	return r
}

// Emit appends inst to the block's instruction list and sets its Block
// to b.
func (b *BasicBlock) Emit(inst *Instruction) *Instruction {
	inst.Block = b
	b.Instructions = append(b.Instructions, inst)
	return inst
}

// InsertBefore splices inst into the block immediately before the
// instruction at index idx.
func (b *BasicBlock) InsertBefore(idx int, inst *Instruction) {
	inst.Block = b
	b.Instructions = append(b.Instructions, nil)
	copy(b.Instructions[idx+1:], b.Instructions[idx:])
	b.Instructions[idx] = inst
}

// Terminator returns the block's single terminating instruction, or nil
// for a malformed (not-yet-terminated) block under construction.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// RemoveInstruction deletes inst from the block.
func (b *BasicBlock) RemoveInstruction(inst *Instruction) {
	for i, in := range b.Instructions {
		if in == inst {
			b.Instructions = append(b.Instructions[:i], b.Instructions[i+1:]...)
			return
		}
	}
}
