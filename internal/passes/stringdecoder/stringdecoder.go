// Package stringdecoder implements string-decoder lifting (spec.md
// §4.10): given an execution trace recorded by an external sandbox, it
// identifies decoder functions — ones the trace shows being called,
// with every observed call on the same arguments returning the same
// result — and replaces each covered call site with the literal string
// the trace observed for that exact call. How often a function is
// called, how small its arguments are, and whether its results differ
// from one another are not checked.
//
// A function body's own control flow never reaches the CFG of the
// program (or enclosing function) it is declared in — cfg.Build
// deliberately stops at a FunctionDeclaration boundary and leaves the
// nested body for separate analysis. Whenever this pass meets a
// FunctionDeclaration, it builds a fresh CFG for that body and recurses, so decoder
// candidates and their call sites are found regardless of how deeply
// they are nested.
package stringdecoder

import (
	"fmt"
	"sort"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/trace"
)

// Pass folds calls to trace-confirmed decoder functions into the
// string literal the trace observed for that call site.
type Pass struct {
	Trace trace.Trace
}

// New returns a Pass that consults t for decoder evidence. A zero
// trace.Trace (no events) finds no decoder candidates and leaves every
// call site intact, the same tolerant-absence behavior as a NoOpSandbox.
func New(t trace.Trace) *Pass { return &Pass{Trace: t} }

func (p *Pass) Name() string { return "string-decoder-lifting" }
func (p *Pass) Description() string {
	return "replaces calls to trace-confirmed deterministic string-decoder functions with their observed literal result"
}
func (p *Pass) RequiresSSA() bool        { return false }
func (p *Pass) MutatesControlFlow() bool { return false }

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	var functions []*ir.FunctionDeclaration
	collectFunctions(state.Graph, &functions)

	resolved := map[ir.NodeID]*ir.Literal{}
	var warnings []pass.Warning
	for _, fn := range dedupeFunctions(functions) {
		if fn.Name == nil {
			continue
		}
		name := fn.Name.Name
		calls := p.Trace.CallsTo(name)
		if len(calls) == 0 {
			continue
		}

		seen := map[string]any{}
		disqualified := false
		for _, c := range calls {
			key := argsKey(c.Args)
			if prev, ok := seen[key]; ok {
				if !resultsEqual(prev, c.Result) {
					disqualified = true
					break
				}
				continue
			}
			seen[key] = c.Result
		}
		if disqualified {
			warnings = append(warnings, pass.Warning{
				Code:    "stringdecoder.nondeterministic",
				Message: fmt.Sprintf("function %q returned different results for identical arguments in the trace; disqualified as a decoder", name),
			})
			continue
		}

		for _, c := range calls {
			if c.NodeID == 0 {
				continue
			}
			str, ok := c.Result.(string)
			if !ok {
				continue
			}
			pos := ir.Position{}
			if state.Nodes != nil {
				if orig := state.Nodes.Get(c.NodeID); orig != nil {
					pos = orig.Pos()
				}
			}
			resolved[c.NodeID] = state.Factory.Literal(pos, str, ir.LiteralString, fmt.Sprintf("%q", str))
		}
	}

	r := &rewriter{resolved: resolved}
	r.rewriteGraph(state.Graph)

	for _, w := range r.warnings {
		warnings = append(warnings, w)
	}

	return pass.Result{
		State:    state,
		Changed:  r.changed > 0,
		Metrics:  pass.Metrics{NodesVisited: r.visited, NodesChanged: r.changed},
		Warnings: warnings,
	}, nil
}

// collectFunctions appends every FunctionDeclaration reachable from g,
// including ones nested inside function bodies g's own CFG does not
// cover, and ones that only appear as function-expression initializers
// within an expression tree (a declarator's Init, a call argument, …).
func collectFunctions(g *cfg.Graph, out *[]*ir.FunctionDeclaration) {
	for _, label := range g.OrderedLabels() {
		for _, stmt := range g.Blocks[label].Statements {
			collectFunctionsIn(stmt, out)
		}
	}
}

func collectFunctionsIn(n ir.Node, out *[]*ir.FunctionDeclaration) {
	if n == nil {
		return
	}
	if fn, ok := n.(*ir.FunctionDeclaration); ok {
		*out = append(*out, fn)
		nested := cfg.Build(fn.Body.Body)
		collectFunctions(nested, out)
		return
	}
	for _, c := range n.Children() {
		collectFunctionsIn(c, out)
	}
}

// dedupeFunctions removes duplicate entries for the same node identity.
// A few CFG shapes (while loops in particular) carry the same
// statement in more than one place, so collectFunctions can see the
// same FunctionDeclaration twice.
func dedupeFunctions(in []*ir.FunctionDeclaration) []*ir.FunctionDeclaration {
	seen := map[ir.NodeID]bool{}
	out := make([]*ir.FunctionDeclaration, 0, len(in))
	for _, fn := range in {
		if seen[fn.ID()] {
			continue
		}
		seen[fn.ID()] = true
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// argsKey builds a stable comparison key for a call's observed
// argument tuple so repeat calls with the same arguments can be
// compared for deterministic output.
func argsKey(args []any) string {
	return fmt.Sprintf("%v", args)
}

func resultsEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// rewriter walks a graph (and, recursively, every nested function
// body's own graph) replacing resolved call sites in place.
type rewriter struct {
	resolved map[ir.NodeID]*ir.Literal
	visited  int
	changed  int
	warnings []pass.Warning
}

func (r *rewriter) rewriteGraph(g *cfg.Graph) {
	for _, label := range g.OrderedLabels() {
		b := g.Blocks[label]
		for i, stmt := range b.Statements {
			b.Statements[i] = r.rewriteStmt(stmt)
		}
	}
}

// rewriteStmt handles the statement shapes that actually appear in a
// block built by cfg.Build: the builder already splits a loop body,
// an if's branches, and each switch case's body into their own blocks,
// which rewriteGraph's per-block loop visits independently, so this
// never needs to (and must not, on pain of visiting the same call site
// twice) walk into If.Consequent/Alternate, While.Body, For.Body, or a
// switch case's Consequent — only the test/discriminant expressions
// the builder leaves attached to the block that guards them.
func (r *rewriter) rewriteStmt(n ir.Node) ir.Node {
	if n == nil {
		return nil
	}
	switch v := n.(type) {
	case *ir.ExpressionStatement:
		v.Expr = r.foldExpr(v.Expr)
		return v
	case *ir.VariableDeclaration:
		for _, d := range v.Declarators {
			if d.Init != nil {
				d.Init = r.foldExpr(d.Init)
			}
		}
		return v
	case *ir.Return:
		if v.Value != nil {
			v.Value = r.foldExpr(v.Value)
		}
		return v
	case *ir.Break, *ir.Continue:
		return v
	case *cfg.IfMarker:
		v.Test = r.foldExpr(v.Test)
		return v
	case *cfg.SwitchMarker:
		for _, c := range v.Cases {
			if c.Test != nil {
				c.Test = r.foldExpr(c.Test)
			}
		}
		return v
	case *ir.While:
		// The builder pushes the whole While node to the loop header
		// block but splits its Body into a separate "loop_body" block
		// (same statement objects) that rewriteGraph visits on its own.
		v.Test = r.foldExpr(v.Test)
		return v
	case *ir.FunctionDeclaration:
		nested := cfg.Build(v.Body.Body)
		r.rewriteGraph(nested)
		return v
	default:
		return r.foldExpr(n)
	}
}

// foldExpr recurses through expression-shaped nodes, replacing any
// *ir.Call whose node identity has a resolved decoder result with that
// literal, the same leaf-replacement shape internal/passes/opaque uses
// for its own ternary folding.
func (r *rewriter) foldExpr(n ir.Node) ir.Node {
	if n == nil {
		return nil
	}
	switch v := n.(type) {
	case *ir.Call:
		r.visited++
		if lit, ok := r.resolved[v.ID()]; ok {
			r.changed++
			return lit
		}
		v.Callee = r.foldExpr(v.Callee)
		for i, a := range v.Args {
			v.Args[i] = r.foldExpr(a)
		}
		return v
	case *ir.New:
		v.Callee = r.foldExpr(v.Callee)
		for i, a := range v.Args {
			v.Args[i] = r.foldExpr(a)
		}
		return v
	case *ir.Binary:
		v.Left = r.foldExpr(v.Left)
		v.Right = r.foldExpr(v.Right)
		return v
	case *ir.Logical:
		v.Left = r.foldExpr(v.Left)
		v.Right = r.foldExpr(v.Right)
		return v
	case *ir.Unary:
		v.Operand = r.foldExpr(v.Operand)
		return v
	case *ir.Update:
		v.Operand = r.foldExpr(v.Operand)
		return v
	case *ir.Conditional:
		v.Test = r.foldExpr(v.Test)
		v.Consequent = r.foldExpr(v.Consequent)
		v.Alternate = r.foldExpr(v.Alternate)
		return v
	case *ir.Assignment:
		v.Target = r.foldExpr(v.Target)
		v.Value = r.foldExpr(v.Value)
		return v
	case *ir.Member:
		v.Object = r.foldExpr(v.Object)
		if v.Computed {
			v.Property = r.foldExpr(v.Property)
		}
		return v
	case *ir.Array:
		for i, e := range v.Elements {
			if e != nil {
				v.Elements[i] = r.foldExpr(e)
			}
		}
		return v
	case *ir.Property:
		if v.Computed {
			v.Key = r.foldExpr(v.Key)
		}
		v.Value = r.foldExpr(v.Value)
		return v
	case *ir.Object:
		for _, prop := range v.Properties {
			r.foldExpr(prop)
		}
		return v
	case *ir.Sequence:
		for i, e := range v.Expressions {
			v.Expressions[i] = r.foldExpr(e)
		}
		return v
	case *ir.FunctionDeclaration:
		nested := cfg.Build(v.Body.Body)
		r.rewriteGraph(nested)
		return v
	default:
		return n
	}
}
