// Package effects classifies IR expressions by the kind of observable
// effect evaluating them can produce: spec.md §4.6/§4.7's shared
// 8-category side-effect taxonomy that both enhanced constant
// propagation (deciding whether a call is safe to fold at compile time)
// and dead-code elimination (deciding whether an unused expression is
// safe to drop) need the same answer to. Keeping it in one package
// means the two passes can never quietly drift apart on what counts as
// "has a side effect" the way a pass-local hasSideEffect helper would.
package effects

import "github.com/deobfuscator/core/internal/ir"

// Set is a bitmask over the eight effect categories an expression can
// carry. The zero Set is pure: no recorded effect of any kind.
type Set uint8

const (
	// MemoryRead is reading a local SSA-renamed variable or a value
	// already known to be confined to the current function's scope.
	// Alone, it never blocks removing an otherwise-unused expression.
	MemoryRead Set = 1 << iota
	// MemoryWrite is assigning through anything that isn't a fresh
	// local: a free variable, a captured outer binding, or a property.
	MemoryWrite
	// IO is any interaction with something outside the running
	// program's own memory (console, DOM, network, timers, storage).
	IO
	// MayThrow is evaluating something the runtime can reject: a
	// property access or call that might raise on its actual operands,
	// even when every case this analysis can see does not.
	MayThrow
	// GlobalAccess is reading an identifier this analysis cannot prove
	// is a local binding — a free variable, which may resolve to
	// mutable state outside the function entirely.
	GlobalAccess
	// ExternalCall is invoking something whose body this analysis has
	// not summarized as pure: an unresolved function, a method, or a
	// constructor.
	ExternalCall
	// PropertyAccess is reading or writing a member expression.
	PropertyAccess
	// ConsoleOutput is a call recognized as a console.* diagnostic sink.
	ConsoleOutput
)

var names = [...]struct {
	bit  Set
	name string
}{
	{MemoryRead, "memory-read"},
	{MemoryWrite, "memory-write"},
	{IO, "io"},
	{MayThrow, "may-throw"},
	{GlobalAccess, "global-access"},
	{ExternalCall, "external-call"},
	{PropertyAccess, "property-access"},
	{ConsoleOutput, "console-output"},
}

// Has reports whether s carries bit.
func (s Set) Has(bit Set) bool { return s&bit != 0 }

// String lists the categories s carries, comma-separated, or "pure".
func (s Set) String() string {
	if s == 0 {
		return "pure"
	}
	out := ""
	for _, n := range names {
		if s.Has(n.bit) {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	return out
}

// Pure reports whether s carries no effect beyond reading its own
// local bindings — the bar a function summary must clear before
// enhanced constant propagation will evaluate a call to it at compile
// time. Reading a parameter or a declared local is not itself an
// externally observable effect, so Pure is exactly "not Blocking": the
// two are complementary views of the same taxonomy, one asking "is this
// callable at compile time" and the other "is this safe to discard".
func Pure(s Set) bool { return !Blocking(s) }

// Blocking reports whether s carries an effect dead-code elimination
// must preserve. A bare MemoryRead never blocks removal: a discarded
// read of an otherwise-pure local has nothing left to observe once its
// result is unused. Every other category does.
func Blocking(s Set) bool { return s&^MemoryRead != 0 }

// Classify computes n's direct and transitive effect set. locals names
// the identifiers bound within the enclosing function (parameters and
// declared locals) for callers classifying a plain, pre-SSA function
// body; pass nil when n comes from SSA-renamed code, where every local
// read already surfaces as *ir.SSAIdentifier rather than *ir.Identifier
// and a bare Identifier can only be a genuinely free name. known
// supplies already-computed purity summaries for user-defined functions
// by declared name, so a call to a function already proven pure
// contributes only its argument's effects rather than the conservative
// ExternalCall default; pass nil when no summaries are available yet.
func Classify(n ir.Node, locals map[string]bool, known map[string]Set) Set {
	if n == nil {
		return 0
	}
	switch v := n.(type) {
	case *ir.Literal:
		return 0
	case *ir.SSAIdentifier:
		return MemoryRead
	case *ir.Identifier:
		if locals != nil && locals[v.Name] {
			return MemoryRead
		}
		return GlobalAccess
	case *ir.Binary:
		return Classify(v.Left, locals, known) | Classify(v.Right, locals, known)
	case *ir.Logical:
		return Classify(v.Left, locals, known) | Classify(v.Right, locals, known)
	case *ir.Unary:
		effect := Classify(v.Operand, locals, known)
		if v.Op == "delete" {
			effect |= MemoryWrite | PropertyAccess
		}
		return effect
	case *ir.Update:
		return classifyTargetWrite(v.Operand, locals, known)
	case *ir.Conditional:
		return Classify(v.Test, locals, known) | Classify(v.Consequent, locals, known) | Classify(v.Alternate, locals, known)
	case *ir.Sequence:
		var effect Set
		for _, e := range v.Expressions {
			effect |= Classify(e, locals, known)
		}
		return effect
	case *ir.Array:
		var effect Set
		for _, e := range v.Elements {
			effect |= Classify(e, locals, known)
		}
		return effect
	case *ir.Object:
		var effect Set
		for _, p := range v.Properties {
			if p.Computed {
				effect |= Classify(p.Key, locals, known)
			}
			effect |= Classify(p.Value, locals, known)
		}
		return effect
	case *ir.Member:
		effect := PropertyAccess | MayThrow | Classify(v.Object, locals, known)
		if v.Computed {
			effect |= Classify(v.Property, locals, known)
		}
		return effect
	case *ir.Assignment:
		effect := Classify(v.Value, locals, known)
		return effect | classifyTargetWrite(v.Target, locals, known)
	case *ir.Call:
		return classifyCall(v.Callee, v.Args, locals, known)
	case *ir.New:
		effect := ExternalCall | MayThrow | Classify(v.Callee, locals, known)
		for _, a := range v.Args {
			effect |= Classify(a, locals, known)
		}
		return effect
	case *ir.FunctionDeclaration:
		// A function expression used as a value (e.g. passed as a
		// callback) has no effect of its own until called; its body is
		// summarized separately when it is itself classified as a
		// pure-function-summary candidate.
		return 0
	default:
		return 0
	}
}

// classifyTargetWrite reports the effect of assigning to or updating
// target: a write to a local name is MemoryWrite-free (the definition
// itself is not an externally observable effect — use-count tracking
// decides whether it is dead), while a write to a property or a
// non-local name is an observable MemoryWrite.
func classifyTargetWrite(target ir.Node, locals map[string]bool, known map[string]Set) Set {
	switch t := target.(type) {
	case *ir.SSAIdentifier:
		return 0
	case *ir.Identifier:
		if locals != nil && locals[t.Name] {
			return 0
		}
		return MemoryWrite | GlobalAccess
	case *ir.Member:
		effect := MemoryWrite | PropertyAccess | MayThrow | Classify(t.Object, locals, known)
		if t.Computed {
			effect |= Classify(t.Property, locals, known)
		}
		return effect
	default:
		return MemoryWrite | Classify(target, locals, known)
	}
}

// consoleMethods names the console.* members this analysis recognizes
// as a diagnostic output sink rather than an arbitrary external call.
var consoleMethods = map[string]bool{
	"log": true, "warn": true, "error": true, "info": true, "debug": true, "trace": true,
}

func classifyCall(callee ir.Node, args []ir.Node, locals map[string]bool, known map[string]Set) Set {
	var effect Set
	for _, a := range args {
		effect |= Classify(a, locals, known)
	}

	if m, ok := callee.(*ir.Member); ok && !m.Computed {
		if obj, ok := m.Object.(*ir.Identifier); ok && obj.Name == "console" {
			if prop, ok := m.Property.(*ir.Identifier); ok && consoleMethods[prop.Name] {
				return effect | ConsoleOutput | IO
			}
		}
		// Any other method call: receiver effects plus a conservative
		// external call, since the callee's identity depends on the
		// receiver's runtime type.
		return effect | PropertyAccess | ExternalCall | MayThrow | Classify(m.Object, locals, known)
	}

	if id, ok := callee.(*ir.Identifier); ok {
		if known != nil {
			if summary, ok := known[id.Name]; ok {
				return effect | summary
			}
		}
	}

	return effect | ExternalCall | MayThrow | Classify(callee, locals, known)
}

// ClassifyBody aggregates the effect of every statement a function body
// can reach, for building a PureFunctionSummary: spec.md §4.6's
// function-purity analysis walks declarations, expression statements,
// returns, and the bodies of any nested control-flow statements,
// treating a function body as pure only when nothing inside it, at any
// depth, carries an effect.
func ClassifyBody(n ir.Node, locals map[string]bool, known map[string]Set) Set {
	if n == nil {
		return 0
	}
	switch v := n.(type) {
	case *ir.Block:
		var effect Set
		for _, s := range v.Body {
			effect |= ClassifyBody(s, locals, known)
		}
		return effect
	case *ir.ExpressionStatement:
		return Classify(v.Expr, locals, known)
	case *ir.Return:
		return Classify(v.Value, locals, known)
	case *ir.VariableDeclaration:
		var effect Set
		for _, d := range v.Declarators {
			effect |= Classify(d.Init, locals, known)
		}
		return effect
	case *ir.If:
		effect := Classify(v.Test, locals, known) | ClassifyBody(v.Consequent, locals, known)
		if v.Alternate != nil {
			effect |= ClassifyBody(v.Alternate, locals, known)
		}
		return effect
	case *ir.While:
		return Classify(v.Test, locals, known) | ClassifyBody(v.Body, locals, known)
	case *ir.For:
		effect := ClassifyBody(v.Init, locals, known) | Classify(v.Test, locals, known) | Classify(v.Update, locals, known) | ClassifyBody(v.Body, locals, known)
		return effect
	case *ir.Switch:
		effect := Classify(v.Discriminant, locals, known)
		for _, c := range v.Cases {
			effect |= Classify(c.Test, locals, known)
			for _, s := range c.Consequent {
				effect |= ClassifyBody(s, locals, known)
			}
		}
		return effect
	case *ir.Labeled:
		return ClassifyBody(v.Body, locals, known)
	case *ir.FunctionDeclaration:
		// A nested function declaration is a value, not a call: its own
		// body is summarized independently if and when it is itself
		// analyzed as a purity candidate.
		return 0
	case *ir.Break, *ir.Continue:
		return 0
	default:
		if ir.IsExpression(v) {
			return Classify(v, locals, known)
		}
		return 0
	}
}

// LocalsOf collects the names a function declaration binds directly:
// its parameters and every name its body declares with var/let/const,
// the set Classify and ClassifyBody need to tell a local read apart
// from a free one when analyzing a plain (pre-SSA) function body.
func LocalsOf(fn *ir.FunctionDeclaration) map[string]bool {
	locals := map[string]bool{}
	for _, p := range fn.Params {
		locals[p.Name] = true
	}
	var walk func(ir.Node)
	walk = func(n ir.Node) {
		switch v := n.(type) {
		case nil:
			return
		case *ir.VariableDeclaration:
			for _, d := range v.Declarators {
				if id, ok := d.Name.(*ir.Identifier); ok {
					locals[id.Name] = true
				}
			}
		case *ir.FunctionDeclaration:
			if v != fn && v.Name != nil {
				locals[v.Name.Name] = true
			}
			return // don't descend into a nested function's own scope
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(fn.Body)
	return locals
}
