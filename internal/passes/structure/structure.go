// Package structure implements control-flow structuring (spec.md
// §4.11): converting flat control flow produced by earlier passes back
// into idiomatic high-level constructs. It recognizes three shapes —
// chains of guarded returns, an early-exit check at the top of an
// infinite loop, and a run of equality tests on the same discriminant —
// and rewrites each one directly on the cfg.Graph the same way
// internal/passes/opaque and internal/passes/deflatten do: statement
// lists and edges mutated in place, never a fresh cfg.Build from a flat
// tree, since the pipeline's rebuildGraph only recomputes dominance
// after a control-flow-mutating pass.
//
// Every rewrite here is gated on a dominance fact the internal/dom
// package already computed (a candidate block's ImmediateDominator and
// its single-predecessor shape), never on matching the shape of the
// source text. A pass that only looked at statement text could be
// fooled by two unrelated blocks that happen to print the same way;
// requiring the dominance relationship means the rewrite only fires
// when the control-flow graph itself proves the two paths converge the
// way the resulting ternary, loop test, or switch case assumes.
package structure

import (
	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

type Pass struct{}

func New() *Pass { return &Pass{} }

func (p *Pass) Name() string { return "control-flow-structuring" }
func (p *Pass) Description() string {
	return "recovers ternary guarded-return chains, negated infinite-loop guards, and same-discriminant switch chains from flat control flow"
}

// RequiresSSA is true only so the pipeline computes dominance (via
// dom.Compute, which it runs alongside SSA construction) before this
// pass's first round; the pass itself never reads an SSA value.
func (p *Pass) RequiresSSA() bool        { return true }
func (p *Pass) MutatesControlFlow() bool { return true }

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	g := state.Graph
	visited := 0
	changed := 0

	for _, label := range g.OrderedLabels() {
		visited++
		b := g.Blocks[label]
		if b == nil {
			continue
		}
		if foldGuardedReturn(state, g, b) {
			changed++
			continue
		}
		if negateInfiniteLoopGuard(state, g, b) {
			changed++
			continue
		}
		if mergeEqualityChainIntoSwitch(state, g, b) {
			changed++
			continue
		}
	}

	return pass.Result{
		State:   state,
		Changed: changed > 0,
		Metrics: pass.Metrics{NodesVisited: visited, NodesChanged: changed},
	}, nil
}

// lastIfMarker returns b's IfMarker when it is the block's final
// statement (buildIf always leaves it there; nothing in the builder
// ever appends a further statement to the guarding block), else false.
func lastIfMarker(b *cfg.Block) (*cfg.IfMarker, bool) {
	if len(b.Statements) == 0 {
		return nil, false
	}
	m, ok := b.Statements[len(b.Statements)-1].(*cfg.IfMarker)
	return m, ok
}

func condEdges(g *cfg.Graph, from string) (trueTo, falseTo string, cond ir.Node, ok bool) {
	var foundTrue, foundFalse bool
	for _, e := range g.Edges {
		if e.From != from {
			continue
		}
		switch e.Type {
		case cfg.EdgeConditionalTrue:
			trueTo, cond, foundTrue = e.To, e.Condition, true
		case cfg.EdgeConditionalFalse:
			falseTo, foundFalse = e.To, true
		}
	}
	return trueTo, falseTo, cond, foundTrue && foundFalse
}

// soleReturn reports whether b's entire statement list is one Return
// with a value, b is reached only from guard (the dominance fact: b's
// ImmediateDominator is guard and it has exactly one predecessor), and
// b's only successor is the graph's exit.
func soleReturn(g *cfg.Graph, b *cfg.Block, guard string) (*ir.Return, bool) {
	if b == nil || len(b.Statements) != 1 {
		return nil, false
	}
	ret, ok := b.Statements[0].(*ir.Return)
	if !ok || ret.Value == nil {
		return nil, false
	}
	if b.ImmediateDominator != guard || len(b.Predecessors) != 1 {
		return nil, false
	}
	if len(b.Successors) != 1 || b.Successors[0] != g.Exit {
		return nil, false
	}
	return ret, true
}

// foldGuardedReturn recognizes `if (test) return a; return b;` — a
// block ending in an IfMarker whose true and false edges each lead to a
// block that does nothing but return a value straight to exit — and
// replaces the guard with a single Return of a Conditional expression.
// Running this to a pipeline fixed point composes multi-way guarded-
// return chains into nested ternaries one level per round, since
// folding the innermost guard turns its enclosing join block into
// exactly this same single-Return shape for the next round to match.
func foldGuardedReturn(state *pass.IRState, g *cfg.Graph, b *cfg.Block) bool {
	marker, ok := lastIfMarker(b)
	if !ok {
		return false
	}
	trueTo, falseTo, cond, ok := condEdges(g, b.Label)
	if !ok || trueTo == falseTo {
		return false
	}
	trueRet, ok := soleReturn(g, g.Blocks[trueTo], b.Label)
	if !ok {
		return false
	}
	falseRet, ok := soleReturn(g, g.Blocks[falseTo], b.Label)
	if !ok {
		return false
	}

	condExpr := state.Factory.Conditional(marker.Pos(), cond, trueRet.Value, falseRet.Value)
	result := state.Factory.Return(marker.Pos(), condExpr)
	b.Statements[len(b.Statements)-1] = result

	// RemoveBlock drops every edge touching the removed label (in
	// either direction) and scrubs it from every surviving block's
	// Predecessors/Successors, which here clears both of b's outgoing
	// edges and trueTo/falseTo's own edges to exit without any separate
	// bookkeeping.
	g.RemoveBlock(trueTo)
	g.RemoveBlock(falseTo)
	g.AddEdge(cfg.Edge{From: b.Label, To: g.Exit, Type: cfg.EdgeUnconditional})
	return true
}

// negateInfiniteLoopGuard recognizes a `while (true)` loop header whose
// body's very first action is an unlabeled break behind a guard —
// `while (true) { if (c) break; ...rest }` — and rewrites it to
// `while (!c) { ...rest }`, dropping the now-redundant break. The guard
// block must be the loop body's unique entry (ImmediateDominator) and
// the break target must be the loop's own exit block, both dominance
// facts rather than assumptions about what the break "looks like".
func negateInfiniteLoopGuard(state *pass.IRState, g *cfg.Graph, header *cfg.Block) bool {
	if len(header.Statements) != 1 {
		return false
	}
	loop, ok := header.Statements[0].(*ir.While)
	if !ok || !isLiteralTrue(loop.Test) {
		return false
	}
	bodyLabel, exitLabel, _, ok := condEdges(g, header.Label)
	if !ok {
		return false
	}
	body := g.Blocks[bodyLabel]
	if body == nil || body.ImmediateDominator != header.Label || len(body.Predecessors) != 1 {
		return false
	}
	marker, ok := lastIfMarker(body)
	if !ok || len(body.Statements) != 1 {
		return false
	}
	breakTo, restTo, cond, ok := condEdges(g, body.Label)
	if !ok || breakTo == restTo {
		return false
	}
	breakBlock := g.Blocks[breakTo]
	if breakBlock == nil || len(breakBlock.Statements) != 1 || len(breakBlock.Predecessors) != 1 {
		return false
	}
	brk, ok := breakBlock.Statements[0].(*ir.Break)
	if !ok || brk.Label != "" {
		return false
	}
	if len(breakBlock.Successors) != 1 || breakBlock.Successors[0] != exitLabel {
		return false
	}
	if g.Blocks[restTo] == nil {
		return false
	}

	loop.Test = state.Factory.Unary(marker.Pos(), "!", cond, true)

	// The header's existing conditional-false edge to exitLabel survives
	// this rewrite unchanged in shape; only its Condition needs to track
	// the new Test so a later pass reading edge.Condition sees the same
	// expression the loop itself now tests.
	for i := range g.Edges {
		if g.Edges[i].From == header.Label {
			g.Edges[i].Condition = loop.Test
		}
	}

	g.RemoveBlock(body.Label)
	g.RemoveBlock(breakTo)
	g.AddEdge(cfg.Edge{From: header.Label, To: restTo, Type: cfg.EdgeConditionalTrue, Condition: loop.Test})
	return true
}

func isLiteralTrue(n ir.Node) bool {
	lit, ok := n.(*ir.Literal)
	if !ok {
		return false
	}
	bv, ok := lit.Value.(bool)
	return ok && bv
}

// equalityTest matches `ident === literal`, `ident == literal`, or the
// operand-swapped forms, returning the discriminant identifier node
// itself (so a synthesized switch's Discriminant is a real AST node,
// not a copy), the identifier's name for cross-test comparison, and the
// literal expression node the case should test.
func equalityTest(test ir.Node) (disc *ir.Identifier, name string, litNode ir.Node, ok bool) {
	bin, ok := test.(*ir.Binary)
	if !ok || (bin.Op != "===" && bin.Op != "==") {
		return nil, "", nil, false
	}
	if id, isID := bin.Left.(*ir.Identifier); isID {
		if _, isLit := bin.Right.(*ir.Literal); isLit {
			return id, id.Name, bin.Right, true
		}
	}
	if id, isID := bin.Right.(*ir.Identifier); isID {
		if _, isLit := bin.Left.(*ir.Literal); isLit {
			return id, id.Name, bin.Left, true
		}
	}
	return nil, "", nil, false
}

// mergeEqualityChainIntoSwitch recognizes a block ending in an
// equality-tested IfMarker whose false branch is a dominance-unique
// successor block doing nothing but another equality test on the same
// name, and merges the two into a single Switch on b with one case per
// test plus the final false target as its no-match fallthrough. Running
// this to a pipeline fixed point collapses a chain of any length: once
// two ifs merge into a switch, the next round's SwitchMarker branch
// below matches the switch's own no-match edge against the next if in
// the chain and appends another case, the same one-level-per-round
// composition foldGuardedReturn uses for ternary chains.
func mergeEqualityChainIntoSwitch(state *pass.IRState, g *cfg.Graph, b *cfg.Block) bool {
	if len(b.Statements) == 0 {
		return false
	}

	last := b.Statements[len(b.Statements)-1]
	switch v := last.(type) {
	case *cfg.IfMarker:
		disc, name, lit1, ok := equalityTest(v.Test)
		if !ok {
			return false
		}
		caseATo, nextTo, _, ok := condEdges(g, b.Label)
		if !ok || caseATo == nextTo {
			return false
		}
		next := g.Blocks[nextTo]
		if next == nil || next.ImmediateDominator != b.Label || len(next.Predecessors) != 1 {
			return false
		}
		nextMarker, ok := lastIfMarker(next)
		if !ok || len(next.Statements) != 1 {
			return false
		}
		_, name2, lit2, ok := equalityTest(nextMarker.Test)
		if !ok || name2 != name {
			return false
		}
		caseBTo, fallthroughTo, _, ok := condEdges(g, next.Label)
		if !ok || caseBTo == fallthroughTo {
			return false
		}
		caseABlock := g.Blocks[caseATo]
		caseBBlock := g.Blocks[caseBTo]
		if caseABlock == nil || caseBBlock == nil {
			return false
		}

		pos := v.Pos()
		sw := state.Factory.Switch(pos, disc, []*ir.SwitchCase{
			state.Factory.SwitchCase(pos, lit1, caseABlock.Statements),
			state.Factory.SwitchCase(pos, lit2, caseBBlock.Statements),
		})
		b.Statements[len(b.Statements)-1] = &cfg.SwitchMarker{Switch: sw}

		g.RemoveBlock(next.Label)
		g.AddEdge(cfg.Edge{From: b.Label, To: caseBTo, Type: cfg.EdgeConditionalTrue, Condition: lit2})
		g.AddEdge(cfg.Edge{From: b.Label, To: fallthroughTo, Type: cfg.EdgeConditionalFalse})
		return true

	case *cfg.SwitchMarker:
		disc, ok := v.Discriminant.(*ir.Identifier)
		if !ok {
			return false
		}
		noMatchTo := ""
		for _, e := range g.Edges {
			if e.From == b.Label && e.Type == cfg.EdgeConditionalFalse {
				noMatchTo = e.To
				break
			}
		}
		if noMatchTo == "" {
			return false
		}
		next := g.Blocks[noMatchTo]
		if next == nil || next.ImmediateDominator != b.Label || len(next.Predecessors) != 1 {
			return false
		}
		nextMarker, ok := lastIfMarker(next)
		if !ok || len(next.Statements) != 1 {
			return false
		}
		_, name2, lit2, ok := equalityTest(nextMarker.Test)
		if !ok || name2 != disc.Name {
			return false
		}
		caseTo, fallthroughTo, _, ok := condEdges(g, next.Label)
		if !ok || caseTo == fallthroughTo {
			return false
		}
		caseBlock := g.Blocks[caseTo]
		if caseBlock == nil {
			return false
		}

		v.Cases = append(v.Cases, state.Factory.SwitchCase(nextMarker.Pos(), lit2, caseBlock.Statements))

		g.RemoveBlock(next.Label)
		g.AddEdge(cfg.Edge{From: b.Label, To: caseTo, Type: cfg.EdgeConditionalTrue, Condition: lit2})
		g.AddEdge(cfg.Edge{From: b.Label, To: fallthroughTo, Type: cfg.EdgeConditionalFalse})
		return true

	default:
		return false
	}
}
