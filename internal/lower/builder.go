// Package lower implements spec §4.3: the AST→SSA lowering that walks a
// fully name-and-type-resolved ast.ModuleDecl and emits an ssa.Module.
// One file per concern, mirroring original_source's
// src/banjo/ir_builder/* split (expr_ir_builder, block_ir_builder,
// closure_ir_builder, func_call_ir_builder, deinit_ir_builder,
// switch_ir_builder, location_ir_builder, conversion) and the teacher's
// internal/ir/builder.go monotonic-counter/cursor style.
package lower

import (
	"fmt"

	"banyan/internal/ast"
	"banyan/internal/diag"
	"banyan/internal/ssa"
	"banyan/internal/symbol"
	"banyan/internal/target"
	"banyan/internal/types"
)

// Builder lowers one module. It mirrors the teacher's Builder
// (internal/ir/builder.go): a single long-lived value threaded through
// every expression/statement lowering function, carrying the current
// function/block cursor plus the handful of stacks spec §3.3/§4.3.6-8
// require (move scopes, loop targets, deinit scopes, closure capture
// state).
type Builder struct {
	Mod    *ssa.Module
	Layout target.DataLayout
	Diags  *diag.Bag

	fn    *ssa.Function
	block *ssa.BasicBlock

	// allocaCursor is the entry-block insertion index new allocas are
	// spliced at (spec §3.3: "a cursor tracks the last alloca during
	// lowering so new allocas are inserted adjacently").
	allocaCursor int

	curFunc     *symbol.Function
	funcExit    *ssa.BasicBlock
	returnSlot  *ssa.Operand // hidden return pointer, for return-by-ref functions
	returnByRef bool
	resultType  ssa.Type

	loops   []*loopScope
	moves   []*moveScope
	deinits []*deinitScope

	// locals maps a declared variable (local, parameter, struct/union
	// field owner aside) to the stack slot lowering allocated for it.
	// Populated at function entry for parameters and by VarDeclStmt for
	// `let` bindings.
	locals map[*symbol.Variable]ssa.VReg

	closure *closureCtx // non-nil while lowering a closure body

	structDefs map[string]*ssa.StructDef
	tupleNames map[string]string
	closureID  int

	// structSymbols resolves a struct's declared methods (in particular
	// `deinit`) by name during destructor emission (destruct.go), since
	// ssa.StructDef only carries field layout, not method tables.
	structSymbols map[string]*symbol.Structure

	loweredGeneric map[*symbol.Function]*ssa.Function

	// genericBodies looks up the AST body to specialize for a generic
	// function's uninstantiated template (spec §4.1's on-demand
	// instantiation), copied from ast.ModuleDecl.GenericFuncBodies at the
	// start of LowerModule.
	genericBodies map[*symbol.Function]*ast.Block
	// genericArgs holds the active instantiation's type-argument vector
	// while lowering a generic instance's body, so typeOf can substitute
	// any *types.GenericType it encounters; nil outside that context.
	genericArgs []types.Type
}

// loopScope records the jump targets `break`/`continue` resolve to
// inside the nearest enclosing loop (spec §4.3.7).
type loopScope struct {
	continueTarget *ssa.BasicBlock
	breakTarget    *ssa.BasicBlock
	// deinitDepth is len(b.deinits) at the point this loop was entered,
	// so break/continue know exactly which deinit scopes are "inside"
	// the loop and must be eagerly unwound before jumping out.
	deinitDepth int
}

// moveScope tracks which destructible locals have been moved within one
// lexical region (spec §3.3's "Move tracking", Glossary "Move scope").
// popMoveScope discards a closing scope's set without merging it into
// the parent, so moves recorded inside a branch are not visible to the
// enclosing scope. The liveness flag, not this compile-time set, is what
// gates the runtime destructor call.
type moveScope struct {
	moved  map[*symbol.Variable]bool
	parent *moveScope
}

func newMoveScope(parent *moveScope) *moveScope {
	return &moveScope{moved: map[*symbol.Variable]bool{}, parent: parent}
}

func (s *moveScope) isMoved(v *symbol.Variable) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.moved[v] {
			return true
		}
	}
	return false
}

// deinitScope is one block-owning-destructible-values scope of spec
// §4.3.8: each registered entry gets a liveness flag slot, set at scope
// entry and cleared on move; the flag gates the conditional destructor
// call emitted at scope exit.
type deinitScope struct {
	entries []*deinitEntry
}

type deinitEntry struct {
	desc     *symbol.DeinitDescriptor
	variable *symbol.Variable
	flagReg  ssa.VReg
}

// NewBuilder creates a lowering Builder targeting layout, buffering
// diagnostics into diags (spec §7).
func NewBuilder(layout target.DataLayout, diags *diag.Bag) *Builder {
	return &Builder{
		Mod:            &ssa.Module{},
		Layout:         layout,
		Diags:          diags,
		structDefs:     map[string]*ssa.StructDef{},
		tupleNames:     map[string]string{},
		loweredGeneric: map[*symbol.Function]*ssa.Function{},
		structSymbols:  map[string]*symbol.Structure{},
		genericBodies:  map[*symbol.Function]*ast.Block{},
	}
}

// LowerModule walks decl and returns the resulting SSA module. Structs,
// unions, and protocol vtables are registered before any function body
// is lowered, so every reference a body makes to them resolves (spec
// §4.3: "the front-end is free to refine these between stages, but they
// must be complete before lowering any given function").
func (b *Builder) LowerModule(decl *ast.ModuleDecl) *ssa.Module {
	b.Mod.Name = moduleName(decl.Path)
	for fn, body := range decl.GenericFuncBodies {
		b.genericBodies[fn] = body
	}

	for _, s := range decl.Structs {
		b.structSymbols[s.Name] = s
		b.registerStruct(s)
	}
	for _, u := range decl.Unions {
		b.registerUnion(u)
	}
	for _, s := range decl.Structs {
		b.registerVTables(s)
	}

	for _, fd := range decl.Funcs {
		b.declareFunction(fd.Func)
	}
	for _, fd := range decl.Funcs {
		if fd.Body == nil {
			continue // native/extern: signature only (spec §3.1 ModNative)
		}
		b.lowerFuncBody(fd.Func, fd.Body)
	}

	return b.Mod
}

func moduleName(path []string) string {
	name := ""
	for i, p := range path {
		if i > 0 {
			name += "."
		}
		name += p
	}
	return name
}

// structLookup is the callback target.DataLayout.SizeOf uses to resolve
// nested struct field sizes.
func (b *Builder) structLookup(name string) *ssa.StructDef { return b.structDefs[name] }

func (b *Builder) ensureStructDef(name string, fields []ssa.Type) *ssa.StructDef {
	if def, ok := b.structDefs[name]; ok {
		return def
	}
	def := &ssa.StructDef{Name: name, Fields: fields}
	b.structDefs[name] = def
	b.Mod.Structs = append(b.Mod.Structs, def)
	return def
}

// registerStruct materializes a language Structure's field layout as an
// ssa.StructDef (spec §3.2's Module.Structs).
func (b *Builder) registerStruct(s *symbol.Structure) *ssa.StructDef {
	fields := make([]ssa.Type, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = b.typeOf(f.Type)
	}
	return b.ensureStructDef(s.Name, fields)
}

// unionStructName is the backing struct name a tagged union lowers to:
// {i32 tag, [i8 x maxPayload] data} (spec §4.3.7's switch lowering reads
// field 0 as the tag, field 1 as the payload).
func unionStructName(name string) string { return "union." + name }

func (b *Builder) registerUnion(u *symbol.Union) *ssa.StructDef {
	maxSize := 0
	for _, c := range u.Cases {
		size := 0
		for _, f := range c.Fields {
			size += b.Layout.SizeOf(b.typeOf(f.Type), b.structLookup)
		}
		if size > maxSize {
			maxSize = size
		}
	}
	fields := []ssa.Type{ssa.TyI32, ssa.ArrayType(ssa.TyI8, maxSize)}
	return b.ensureStructDef(unionStructName(u.Name), fields)
}

// vtableStructName and fatPointerStructName are the two struct shapes
// protocol dispatch needs (spec §4.3.3's Glossary "Fat pointer"): one
// shared two-field {addr, addr} record for every protocol-typed value,
// and one per-protocol method table.
func vtableStructName(proto string) string { return "vtable." + proto }

const fatPointerStructName = "runtime.fatptr"

func (b *Builder) fatPointerType() ssa.Type {
	b.ensureStructDef(fatPointerStructName, []ssa.Type{ssa.TyAddr, ssa.TyAddr})
	return ssa.StructType(fatPointerStructName)
}

// registerVTables declares, for every protocol s implements, the
// module-level vtable global its ProtocolImpl names (spec §4.3.3).
// Real population of the global's contents (the actual method-pointer
// values) is a linker/code-generator concern this repo's IR model
// doesn't represent (spec §6.2 treats the back end as a black box
// consuming the finished module); the global and its struct type are
// declared here so location.go's vtable-index memberptr has something
// to index into.
func (b *Builder) registerVTables(s *symbol.Structure) {
	for _, impl := range s.Implements {
		fields := make([]ssa.Type, len(impl.Protocol.Methods))
		for i := range fields {
			fields[i] = ssa.TyAddr
		}
		def := b.ensureStructDef(vtableStructName(impl.Protocol.Name), fields)
		found := false
		for _, g := range b.Mod.Globals {
			if g.Name == impl.VTableGlobal {
				found = true
				break
			}
		}
		if !found {
			b.Mod.Globals = append(b.Mod.Globals, &ssa.Global{
				Name: impl.VTableGlobal,
				Type: ssa.StructType(def.Name),
			})
		}
	}
}

// declareFunction registers fn's signature as either a defined or
// extern SSA function; return-by-ref functions get the hidden addr
// parameter prepended and a void IR return type (spec §4.3.4).
func (b *Builder) declareFunction(fn *symbol.Function) {
	paramTypes, retType, returnByRef := b.functionSignature(fn)

	if fn.Has(symbol.ModNative) {
		b.Mod.ExternFunctions = append(b.Mod.ExternFunctions, &ssa.ExternFunction{
			Name:       linkName(fn),
			ParamTypes: paramTypes,
			ReturnType: retType,
			CallConv:   "c",
		})
		return
	}

	irFn := ssa.NewFunction(linkName(fn), paramTypes, retType)
	irFn.CallConv = "default"
	irFn.Exported = fn.Has(symbol.ModExposed) || fn.Has(symbol.ModDllExport)
	b.Mod.Functions = append(b.Mod.Functions, irFn)
	_ = returnByRef
}

// functionSignature computes the IR parameter/return types and the
// return-by-ref decision of spec §4.3.4.
func (b *Builder) functionSignature(fn *symbol.Function) (params []ssa.Type, ret ssa.Type, returnByRef bool) {
	ret = b.typeOf(fn.ReturnType)
	returnByRef = b.Layout.IsReturnByRef(ret, b.structLookup)

	if returnByRef {
		params = append(params, ssa.TyAddr)
		ret = ssa.TyVoid
	}
	if fn.Has(symbol.ModMethod) {
		params = append(params, ssa.TyAddr)
	}
	for _, p := range fn.Params {
		params = append(params, b.typeOf(p.Type))
	}
	return params, ret, returnByRef
}

func linkName(fn *symbol.Function) string {
	if fn.LinkName != "" {
		return fn.LinkName
	}
	if fn.Enclosing != nil {
		return fn.Enclosing.Name + "." + fn.Name
	}
	return fn.Name
}

func (b *Builder) irFunc(name string) *ssa.Function {
	for _, f := range b.Mod.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// allocaEntry emits an entry-block alloca at the cursor position,
// clustering allocas together at the front of the entry block (spec
// §3.3).
func (b *Builder) allocaEntry(t ssa.Type) ssa.VReg {
	r := b.fn.NewReg()
	inst := &ssa.Instruction{Op: ssa.OpAlloca, Dest: &r, DestType: ssa.TyAddr, Operands: []ssa.Operand{ssa.TypeOperand(t)}}
	b.fn.Entry.InsertBefore(b.allocaCursor, inst)
	b.allocaCursor++
	return r
}

// fitsInRegister reports whether a value of type t can be loaded into
// one register under the active data layout.
func (b *Builder) fitsInRegister(t ssa.Type) bool {
	return b.Layout.FitsInRegister(b.Layout.SizeOf(t, b.structLookup))
}

// newBlock creates a fresh block in the current function.
func (b *Builder) newBlock(label string) *ssa.BasicBlock { return b.fn.NewBlock(label) }

// setBlock switches the lowering cursor to blk.
func (b *Builder) setBlock(blk *ssa.BasicBlock) { b.block = blk }

// unreachable reports the catch-all impossibility kind (spec §7) and
// panics, since lowering has no sensible way to continue once an
// invariant the front end was supposed to guarantee doesn't hold.
func (b *Builder) unreachable(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.Diags.Unreachable(msg)
	panic("lower: unreachable: " + msg)
}
