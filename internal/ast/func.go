package ast

import "banyan/internal/symbol"

// FuncDecl pairs a resolved symbol.Function with its lowered-from body.
// Native/extern functions (spec §3.1's ModNative) have a nil Body: the
// lowering only declares their SSA signature, never walks a body for
// them (spec §4.3, "every AST expression variant has a deterministic
// lowering rule" presupposes a body to walk).
type FuncDecl struct {
	Func *symbol.Function
	Body *Block
}

// ModuleDecl is one resolved compilation unit: its declared functions
// and the structures/unions/enums/protocols they reference (spec §3.1's
// Module). Lowering walks Funcs in order; Structs/Unions/Enums/Protocols
// exist so the lowering can materialize their IR-level layouts (struct
// field lists, union case tags, protocol vtables) before any function
// body references them.
type ModuleDecl struct {
	Path    []string
	Funcs   []*FuncDecl
	Structs []*symbol.Structure
	Unions  []*symbol.Union
	Enums   []*symbol.Enumeration
	Protos  []*symbol.Protocol
	// GenericFuncBodies maps each generic function's uninstantiated
	// template to the body its instances are specialized from; instances
	// are lowered on demand as calls and function references discover
	// them (spec §4.1). Generic structures have no entry here.
	GenericFuncBodies map[*symbol.Function]*Block
}
