// Package diag implements the error-handling design of spec §7: typed
// diagnostic kinds buffered per compilation unit and drained after each
// phase, plus the fatal variants that abort lowering or a pass outright.
//
// Grounded in the teacher's internal/errors.ErrorReporter and its
// fatih/color rendering, generalized from "parser diagnostic" to the six
// kinds of spec §7: a Diagnostic carries a Kind, Message, Position,
// Notes and a Fatal flag.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Kind is one of the six error kinds of spec §7's table.
type Kind string

const (
	KindParseResolution        Kind = "parse-resolution"
	KindType                   Kind = "type"
	KindUseAfterMove           Kind = "use-after-move"
	KindDestructorUnmanaged    Kind = "destructor-unmanaged"
	KindValidation             Kind = "validation"
	KindUnreachableInternal    Kind = "unreachable-internal"
)

// Position is a minimal source location; the front-end is out of scope
// but lowering still needs somewhere to point use-after-move and
// validation diagnostics.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Diagnostic is one buffered error, warning, or note.
type Diagnostic struct {
	Kind     Kind
	Message  string
	Position Position
	Notes    []string
	// Fatal diagnostics (IR validation failure, unreachable internal
	// state) abort the current phase immediately rather than being
	// buffered for later emission.
	Fatal bool
}

func (d Diagnostic) String() string {
	var b strings.Builder
	tag := color.New(color.FgRed, color.Bold).SprintFunc()
	if d.Fatal {
		tag = color.New(color.FgRed, color.Bold, color.BgBlack).SprintFunc()
	}
	b.WriteString(tag(string(d.Kind)))
	b.WriteString(": ")
	b.WriteString(d.Message)
	if pos := d.Position.String(); pos != "" {
		dim := color.New(color.Faint).SprintFunc()
		b.WriteString("\n  ")
		b.WriteString(dim("--> "))
		b.WriteString(pos)
	}
	for _, n := range d.Notes {
		b.WriteString("\n  note: ")
		b.WriteString(n)
	}
	return b.String()
}

// Bag buffers diagnostics for one compilation unit, the way the spec's
// "all non-fatal diagnostics are buffered and emitted after each phase"
// requires. Fatal diagnostics still get appended (for debug dumps) but
// callers should stop processing as soon as one is reported.
type Bag struct {
	diagnostics []Diagnostic
}

// Report appends a diagnostic to the bag.
func (b *Bag) Report(d Diagnostic) { b.diagnostics = append(b.diagnostics, d) }

// ParseResolution records a front-end (out-of-scope) failure handoff.
func (b *Bag) ParseResolution(msg string, pos Position) {
	b.Report(Diagnostic{Kind: KindParseResolution, Message: msg, Position: pos})
}

// TypeError records a semantic-analysis type error.
func (b *Bag) TypeError(msg string, pos Position) {
	b.Report(Diagnostic{Kind: KindType, Message: msg, Position: pos})
}

// UseAfterMove records use of a value after its ownership was
// transferred, pointing at both the use and the prior move (spec §7).
func (b *Bag) UseAfterMove(useMsg string, usePos Position, movePos Position) {
	b.Report(Diagnostic{
		Kind:     KindUseAfterMove,
		Message:  useMsg,
		Position: usePos,
		Notes:    []string{"value was moved at " + movePos.String()},
	})
}

// ValidationFailure records a fatal IR invariant violation at a given
// pass index, per spec §7's "compiler aborts with the pass index".
func (b *Bag) ValidationFailure(passIndex int, passName string, msg string) {
	b.Report(Diagnostic{
		Kind:    KindValidation,
		Message: fmt.Sprintf("IR validation failed after pass %d (%s): %s", passIndex, passName, msg),
		Fatal:   true,
	})
}

// Unreachable records the catch-all impossibility kind.
func (b *Bag) Unreachable(msg string) {
	b.Report(Diagnostic{Kind: KindUnreachableInternal, Message: msg, Fatal: true})
}

// HasErrors reports whether any diagnostic was recorded; the compiler's
// exit status reflects this across all modules (spec §7).
func (b *Bag) HasErrors() bool { return len(b.diagnostics) > 0 }

// HasFatal reports whether any buffered diagnostic is fatal.
func (b *Bag) HasFatal() bool {
	for _, d := range b.diagnostics {
		if d.Fatal {
			return true
		}
	}
	return false
}

// All returns the buffered diagnostics in report order.
func (b *Bag) All() []Diagnostic { return b.diagnostics }

// Drain returns and clears the buffered diagnostics, matching "buffered
// and emitted after each phase."
func (b *Bag) Drain() []Diagnostic {
	out := b.diagnostics
	b.diagnostics = nil
	return out
}
