package irio

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// irLexer tokenizes the textual IR form, grounded in the teacher's
// grammar/lexer.go (lexer.MustSimple over an ordered rule list; "Arrow"
// must precede the integer rule since both can start with '-').
var irLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Float", Pattern: `-?[0-9]+\.[0-9]+`},
	{Name: "Int", Pattern: `-?[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Punct", Pattern: `[{}()\[\],:;=%@]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// One deliberate departure from spec §6.3's prose grammar: blocks are
// brace-delimited (`label(params): { instrs }`) instead of running
// until the next label, so the parser never has to backtrack across an
// instruction/new-block ambiguity — the grammar is otherwise exactly
// the writer's output.

// TypeG is the parsed form of an IR type. Struct types are spelled
// `struct @Name` rather than bare `@Name`, so a type-only operand never
// collides textually with a function-reference operand (also spelled
// `@Name`).
type TypeG struct {
	Array  *ArrayTypeG `( @@`
	Struct *string     `| "struct" "@" @Ident`
	Prim   string      `| @("void" | "i8" | "i16" | "i32" | "i64" | "f32" | "f64" | "addr") )`
}

type ArrayTypeG struct {
	Elem  *TypeG `"[" @@`
	Count int    `"x" @Int "]"`
}

// OperandG is the tagged union of spec §6.3's operand forms.
type OperandG struct {
	Extern *ExternOperandG `( @@`
	Typed  *TypedOperandG  `| @@`
	Func   *string         `| "@" @Ident`
	Pred   string          `| @("eq"|"ne"|"ugt"|"uge"|"ult"|"ule"|"sgt"|"sge"|"slt"|"sle"|"feq"|"fne"|"fgt"|"fge"|"flt"|"fle")`
	Branch *BranchTargetG  `| @@`
	Bytes  *string         `| @String )`
}

// ExternOperandG covers `extern @Name` (function) and `extern Type
// @Name` (global); the two are told apart by whether a Type immediately
// follows "extern".
type ExternOperandG struct {
	FuncName   *string `"extern" ( "@" @Ident`
	GlobalType *TypeG  `| @@`
	GlobalName string  `"@" @Ident )`
}

// TypedOperandG is `Type [ %N | @Name | Int | Float ]` — a value suffix
// makes it a register/global/immediate operand; its absence makes it a
// bare type-only operand.
type TypedOperandG struct {
	Type  TypeG  `@@`
	Reg   *int   `( "%" @Int`
	Glob  *string ` | "@" @Ident`
	Int   *string ` | @Int`
	Float *string ` | @Float )?`
}

type BranchTargetG struct {
	Label string      `@Ident "("`
	Args  []*OperandG `( @@ ( "," @@ )* )? ")"`
}

type StructDeclG struct {
	Name   string   `"struct" "@" @Ident "{"`
	Fields []*TypeG `( @@ ";" )* "}"`
}

type ExternDeclG struct {
	FuncName   *string  `"extern" ( "func" "@" @Ident "("`
	Params     []*TypeG `  ( @@ ( "," @@ )* )? ")" "->"`
	Ret        *TypeG   `  @@ ";"`
	GlobalType *TypeG   `| @@`
	GlobalName string   `  "@" @Ident ";" )`
}

type GlobalDeclG struct {
	Type    TypeG    `"global" @@`
	Name    string   `"@" @Ident "="`
	Initial OperandG `@@ ";"`
}

type BlockParamG struct {
	Reg  int   `"%" @Int`
	Type TypeG `":" @@`
}

// InstrDestG is an instruction's destination register, spelling its
// type inline (`%N: T =`) the same way BlockParamG does — the
// destination's type is not always recoverable from its operands alone
// (a call's callee operand carries no type, a conversion's source
// operand carries the wrong one), so the text form states it directly
// rather than asking the parser to re-derive it per opcode.
type InstrDestG struct {
	Reg  int   `"%" @Int ":"`
	Type TypeG `@@ "="`
}

type InstrG struct {
	Dest     *InstrDestG `@@?`
	Op       string      `@Ident`
	Operands []*OperandG `( @@ ( "," @@ )* )?`
}

type BlockG struct {
	Label  string         `@Ident "("`
	Params []*BlockParamG `( @@ ( "," @@ )* )? ")" ":" "{"`
	Instrs []*InstrG      `@@* "}"`
}

type FuncDeclG struct {
	Exported bool      `@"exported"?`
	Name     string    `"func" "@" @Ident "("`
	Params   []*TypeG  `( @@ ( "," @@ )* )? ")" "->"`
	Ret      TypeG     `@@ "{"`
	Blocks   []*BlockG `@@* "}"`
}

// ModuleG is the root node: struct definitions, then external
// declarations, then globals, then function definitions — the same
// grouped order Write produces (spec §4.6).
type ModuleG struct {
	Structs []*StructDeclG `@@*`
	Externs []*ExternDeclG `@@*`
	Globals []*GlobalDeclG `@@*`
	Funcs   []*FuncDeclG   `@@*`
}
