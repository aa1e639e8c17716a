package constprop

import (
	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/effects"
	"github.com/deobfuscator/core/internal/ir"
)

// summarizePurity finds every function declaration reachable from the
// graph's blocks (including ones nested inside other function bodies,
// which never get their own cfg.Graph per internal/cfg's builder
// contract) and computes each one's effects.Set, iterating to a fixed
// point since one function's purity can depend on a call to another
// declared later in source order or mutually recursive with it. The
// result maps declared name to its PureFunctionSummary for every
// function this analysis could prove pure; impure or unresolved
// functions are simply absent, so a lookup miss means "treat the call
// conservatively."
func summarizePurity(g *cfg.Graph) map[string]PureFunctionSummary {
	decls := collectFunctionDecls(g)
	known := map[string]effects.Set{}

	for round := 0; round < 5; round++ {
		changed := false
		for _, fn := range decls {
			if fn.Name == nil {
				continue
			}
			if _, already := known[fn.Name.Name]; already {
				continue
			}
			locals := effects.LocalsOf(fn)
			es := effects.ClassifyBody(fn.Body, locals, known)
			if effects.Pure(es) {
				known[fn.Name.Name] = es
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	out := make(map[string]PureFunctionSummary, len(known))
	for _, fn := range decls {
		if fn.Name == nil {
			continue
		}
		if es, ok := known[fn.Name.Name]; ok {
			out[fn.Name.Name] = PureFunctionSummary{Decl: fn, Effects: es}
		}
	}
	return out
}

// collectFunctionDecls walks every reachable block's statements and
// recurses into any nested function body it finds, since a function
// declared inside another function's body is itself a candidate for a
// purity summary and is otherwise invisible to a block-statement-level
// scan.
func collectFunctionDecls(g *cfg.Graph) []*ir.FunctionDeclaration {
	var out []*ir.FunctionDeclaration
	seen := map[*ir.FunctionDeclaration]bool{}
	var walk func(ir.Node)
	walk = func(n ir.Node) {
		if n == nil {
			return
		}
		if fn, ok := n.(*ir.FunctionDeclaration); ok {
			if !seen[fn] {
				seen[fn] = true
				out = append(out, fn)
			}
			walk(fn.Body)
			return
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	for _, label := range g.OrderedLabels() {
		b := g.Blocks[label]
		for _, stmt := range b.Statements {
			walk(stmt)
		}
	}
	return out
}

// effectsToSet converts a purity table keyed by summary into the plain
// map[string]effects.Set shape internal/passes/dce reads back out of
// IRState.Metadata, so dce's hasSideEffect can treat a call to an
// already-proven-pure function as pure too instead of conservatively
// ExternalCall.
func effectsToSet(purity map[string]PureFunctionSummary) map[string]effects.Set {
	out := make(map[string]effects.Set, len(purity))
	for name, s := range purity {
		out[name] = s.Effects
	}
	return out
}
