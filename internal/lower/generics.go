package lower

import (
	"strings"

	"banyan/internal/ssa"
	"banyan/internal/symbol"
	"banyan/internal/types"
)

// ensureGenericInstance lowers fn on first reference and returns its
// specialized ssa.Function, caching the result so a generic function
// called from multiple sites with the same type arguments is only
// lowered once (spec §4.1: "the lowering layer instantiates generic
// entities on demand, caching by specialized Function").
//
// fn must be an instantiated Function (fn.Instance != nil); the body to
// specialize is looked up by its uninstantiated template via
// b.genericBodies, populated from ast.ModuleDecl.GenericFuncBodies.
func (b *Builder) ensureGenericInstance(fn *symbol.Function) *ssa.Function {
	if irFn, ok := b.loweredGeneric[fn]; ok {
		return irFn
	}
	if fn.Instance == nil {
		b.unreachable("ensureGenericInstance: %q is not a generic instantiation", fn.Name)
	}

	mangled := mangleGenericName(fn)
	fn.LinkName = mangled

	body, ok := b.genericBodies[fn.Instance.Template]
	if !ok {
		b.unreachable("ensureGenericInstance: no body recorded for generic template %q", fn.Instance.Template.Name)
	}

	savedArgs := b.genericArgs
	b.genericArgs = fn.Instance.Args
	b.declareFunction(fn)
	irFn := b.irFunc(mangled)
	b.loweredGeneric[fn] = irFn

	// The instance is lowered in the middle of its caller's lowering, so
	// the caller's cursor and scope stacks are restored afterwards.
	savedFn, savedBlock, savedCursor := b.fn, b.block, b.allocaCursor
	savedLocals, savedCurFunc, savedClosure := b.locals, b.curFunc, b.closure
	savedReturnSlot, savedReturnByRef, savedResultType := b.returnSlot, b.returnByRef, b.resultType
	savedLoops, savedMoves, savedDeinits := b.loops, b.moves, b.deinits
	b.lowerFuncBody(fn, body)
	b.fn, b.block, b.allocaCursor = savedFn, savedBlock, savedCursor
	b.locals, b.curFunc, b.closure = savedLocals, savedCurFunc, savedClosure
	b.returnSlot, b.returnByRef, b.resultType = savedReturnSlot, savedReturnByRef, savedResultType
	b.loops, b.moves, b.deinits = savedLoops, savedMoves, savedDeinits
	b.genericArgs = savedArgs

	return irFn
}

// mangleGenericName derives a unique link name for one instantiation of
// a generic function from its template's name and the concrete
// argument vector (spec §4.1's instance cache keys on structural
// argument equality; the IR has no notion of generics at all, so two
// distinct instantiations need two distinct, stable symbol names).
func mangleGenericName(fn *symbol.Function) string {
	parts := make([]string, len(fn.Instance.Args))
	for i, a := range fn.Instance.Args {
		parts[i] = mangleTypeName(a)
	}
	base := fn.Instance.Template.Name
	if fn.Instance.Template.Enclosing != nil {
		base = fn.Instance.Template.Enclosing.Name + "." + base
	}
	return base + "$" + strings.Join(parts, ",")
}

func mangleTypeName(t types.Type) string {
	s := t.String()
	r := strings.NewReplacer(" ", "_", "*", "ptr", "[", "arr", "]", "", "(", "", ")", "", ",", "_")
	return r.Replace(s)
}
