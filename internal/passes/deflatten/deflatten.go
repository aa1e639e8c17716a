// Package deflatten recognizes and reconstructs the switch-dispatcher
// control-flow-flattening obfuscation family: spec.md §4.8. It operates
// directly on the pre-SSA CFG (the dispatcher's state variable is a
// plain mutable local, not yet a good SSA-propagation target), looking
// for cfg.Block shapes the builder produces for `while (s != exit)
// switch (s) { ... }`.
package deflatten

import (
	"fmt"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

// complexityBound caps the weighted region-size + loop-count score a
// reconstruction may reach before the pass aborts locally and leaves
// the dispatcher intact (spec.md §4.8's Safety clause). Overridable via
// internal/config.
const defaultComplexityBound = 200

type Pass struct {
	ComplexityBound int
}

func New() *Pass { return &Pass{ComplexityBound: defaultComplexityBound} }

func (p *Pass) Name() string        { return "control-flow-deflattening" }
func (p *Pass) Description() string { return "reconstructs switch-dispatcher flattened control flow into structured regions" }
func (p *Pass) RequiresSSA() bool   { return false }

// MutatesControlFlow is true: a successful reconstruction replaces the
// dispatcher loop's blocks with a straight-line region.
func (p *Pass) MutatesControlFlow() bool { return true }

// dispatcher describes one recognized flattening instance: the loop
// header block, the discriminant variable name, and the case-value ->
// case-body-statements mapping extracted from the switch.
type dispatcher struct {
	headerLabel string
	stateVar    string
	test        ir.Node // the original loop's exit test, reused verbatim if this dispatcher can only be re-emitted as a residual switch
	cases       map[int64][]ir.Node
	order       []int64 // case values in source order, for deterministic chain-building
}

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	visited := 0
	var warnings []pass.Warning
	changed := false

	for _, label := range state.Graph.OrderedLabels() {
		visited++
		b := state.Graph.Blocks[label]
		d, ok := detectDispatcher(state.Graph, b)
		if !ok {
			continue
		}

		score := complexity(d)
		bound := p.ComplexityBound
		if bound <= 0 {
			bound = defaultComplexityBound
		}
		if score > bound {
			warnings = append(warnings, pass.Warning{
				Code:    "deflatten.complexity-exceeded",
				Message: fmt.Sprintf("dispatcher on %q at block %s exceeds reconstruction complexity bound (%d > %d); left intact", d.stateVar, label, score, bound),
			})
			continue
		}

		region, ok := reconstructLinearChain(d)
		if !ok {
			region, ok = reconstructStructured(d, state.Factory)
			if ok {
				warnings = append(warnings, pass.Warning{
					Code:    "deflatten.structured",
					Message: fmt.Sprintf("dispatcher on %q at block %s reconstructed as a branching/looping region", d.stateVar, label),
				})
			}
		}
		if !ok {
			region, ok = reconstructResidualSwitch(d, state.Factory)
			if ok {
				warnings = append(warnings, pass.Warning{
					Code:    "deflatten.residual-switch",
					Message: fmt.Sprintf("dispatcher on %q at block %s has an irreducible state-transition graph; re-emitted as a residual switch instead of a structured region", d.stateVar, label),
				})
			}
		}
		if !ok {
			warnings = append(warnings, pass.Warning{
				Code:    "deflatten.irreducible",
				Message: fmt.Sprintf("dispatcher on %q at block %s could not be reconstructed in any recognized shape; left intact", d.stateVar, label),
			})
			continue
		}

		replaceDispatcher(state.Graph, label, region)
		changed = true
	}

	return pass.Result{
		State:    state,
		Changed:  changed,
		Metrics:  pass.Metrics{NodesVisited: visited},
		Warnings: warnings,
	}, nil
}

// detectDispatcher matches a block whose sole statement is a *ir.While
// (the builder places the whole While node, unsplit, into the loop
// header block per cfg.buildWhile) whose test is `state != exit` or
// `state !== exit`-shaped and whose body is a bare Switch discriminated
// by the same identifier.
func detectDispatcher(g *cfg.Graph, b *cfg.Block) (*dispatcher, bool) {
	if len(b.Statements) != 1 {
		return nil, false
	}
	loop, ok := b.Statements[0].(*ir.While)
	if !ok {
		return nil, false
	}
	stateVar, ok := extractDiscriminantName(loop.Test)
	if !ok {
		return nil, false
	}

	var sw *ir.Switch
	switch body := loop.Body.(type) {
	case *ir.Switch:
		sw = body
	case *ir.Block:
		if len(body.Body) == 1 {
			sw, ok = body.Body[0].(*ir.Switch)
		}
		if !ok {
			return nil, false
		}
	default:
		return nil, false
	}
	if sw == nil {
		return nil, false
	}
	disc, ok := sw.Discriminant.(*ir.Identifier)
	if !ok || disc.Name != stateVar {
		return nil, false
	}

	d := &dispatcher{headerLabel: b.Label, stateVar: stateVar, test: loop.Test, cases: map[int64][]ir.Node{}}
	for _, c := range sw.Cases {
		if c.IsDefault() {
			continue
		}
		lit, ok := c.Test.(*ir.Literal)
		if !ok {
			return nil, false
		}
		key, ok := literalInt(lit)
		if !ok {
			return nil, false
		}
		d.order = append(d.order, key)
		d.cases[key] = c.Consequent
	}
	return d, true
}

// extractDiscriminantName recognizes `ident != literal`, `ident !==
// literal`, or their operand-swapped forms as the loop exit test,
// returning the identifier's name.
func extractDiscriminantName(test ir.Node) (string, bool) {
	bin, ok := test.(*ir.Binary)
	if !ok || (bin.Op != "!=" && bin.Op != "!==") {
		return "", false
	}
	if id, ok := bin.Left.(*ir.Identifier); ok {
		if _, ok := bin.Right.(*ir.Literal); ok {
			return id.Name, true
		}
	}
	if id, ok := bin.Right.(*ir.Identifier); ok {
		if _, ok := bin.Left.(*ir.Literal); ok {
			return id.Name, true
		}
	}
	return "", false
}

func literalInt(lit *ir.Literal) (int64, bool) {
	switch v := lit.Value.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// complexity scores a dispatcher by case count plus total statement
// count across all case bodies, the simplest faithful stand-in for
// spec.md §4.8's "weighted sum of region size and loop count" — this
// reconstruction strategy only ever finds one loop (the dispatcher
// itself), so the loop-count term is constant.
func complexity(d *dispatcher) int {
	score := len(d.cases) + 1
	for _, body := range d.cases {
		score += len(body)
	}
	return score
}

// reconstructLinearChain handles the common case named in spec.md
// §4.8 step 5 for "linear chains": each case body ends in exactly one
// unconditional `state = nextLiteral` assignment (optionally preceded
// by other statements) with no intervening branch, forming a single
// chain from the dispatcher's initial state to a terminal state with no
// outgoing transition. Two-way splits, loops in the state graph, and
// irreducible remainders (spec.md §4.8 step 5's other region kinds) are
// deliberately out of scope for this reconstruction strategy and report
// unreconstructed via the bool return, leaving the dispatcher intact
// per the Safety clause rather than risk emitting semantically wrong
// structured code.
func reconstructLinearChain(d *dispatcher) ([]ir.Node, bool) {
	if len(d.order) == 0 {
		return nil, false
	}

	transitions := map[int64]int64{}
	terminal := map[int64]bool{}
	bodies := map[int64][]ir.Node{}

	for _, key := range d.order {
		body := d.cases[key]
		stripped, next, isTerminal, ok := stripTrailingTransition(body)
		if !ok {
			return nil, false
		}
		bodies[key] = stripped
		if isTerminal {
			terminal[key] = true
		} else {
			transitions[key] = next
		}
	}

	start := d.order[0]
	var out []ir.Node
	visited := map[int64]bool{}
	current := start
	for {
		body, ok := bodies[current]
		if !ok {
			// Transitioned to a value with no matching case: the
			// dispatcher's loop-exit sentinel, i.e. the chain's natural end.
			break
		}
		if visited[current] {
			return nil, false // cycle: not a simple linear chain
		}
		visited[current] = true
		out = append(out, body...)
		if terminal[current] {
			break
		}
		next, ok := transitions[current]
		if !ok {
			return nil, false
		}
		current = next
	}
	if len(visited) != len(d.order) {
		return nil, false // some case is unreachable from the entry state — not confidently a pure chain
	}
	return out, true
}

// stripTrailingTransition removes a trailing `state = literal;` and/or
// trailing `break;` from a case body, reporting the literal's value and
// whether the case instead ends without reassigning state (terminal,
// i.e. falls out of the dispatcher for good).
func stripTrailingTransition(body []ir.Node) ([]ir.Node, int64, bool, bool) {
	stmts := append([]ir.Node(nil), body...)
	for len(stmts) > 0 {
		if _, ok := stmts[len(stmts)-1].(*ir.Break); ok {
			stmts = stmts[:len(stmts)-1]
			continue
		}
		break
	}
	if len(stmts) == 0 {
		return nil, 0, true, true
	}
	last := stmts[len(stmts)-1]
	es, ok := last.(*ir.ExpressionStatement)
	if !ok {
		return stmts, 0, true, true
	}
	asn, ok := es.Expr.(*ir.Assignment)
	if !ok || asn.Op != "=" {
		return stmts, 0, true, true
	}
	lit, ok := asn.Value.(*ir.Literal)
	if !ok {
		return nil, 0, false, false // opaque/computed state write: abort reconstruction per Safety clause
	}
	key, ok := literalInt(lit)
	if !ok {
		return nil, 0, false, false
	}
	return stmts[:len(stmts)-1], key, false, true
}

// caseOutcome is the generalized shape reconstructLinearChain's
// stripTrailingTransition already recognizes (a single trailing
// transition or none), extended with the two-way split
// reconstructStructured additionally understands: a case whose last
// statement is an if/else each arm of which ends in its own trailing
// transition.
type caseOutcome struct {
	prefix   []ir.Node
	terminal bool
	next     int64
	split    *splitOutcome
}

// splitOutcome is a two-way split (spec.md §4.8 step 5's "two-way
// splits" region kind): a case body ending in `if (test) { ...;
// state = a } else { ...; state = b }`, reconstructed as a native
// if/else rather than two separate dispatcher states.
type splitOutcome struct {
	test         ir.Node
	consPrefix   []ir.Node
	consTerminal bool
	consNext     int64
	altPrefix    []ir.Node
	altTerminal  bool
	altNext      int64
}

// analyzeCase is stripTrailingTransition generalized to also recognize
// a trailing if/else whose two arms each end in their own trailing
// transition (or terminate). Anything else — an opaque/computed state
// write on either arm, or an if/else whose arm doesn't end in a
// transition at all — reports unresolved via the bool return, the same
// "abort rather than guess" contract stripTrailingTransition already
// follows.
func analyzeCase(body []ir.Node) (caseOutcome, bool) {
	stmts := append([]ir.Node(nil), body...)
	for len(stmts) > 0 {
		if _, ok := stmts[len(stmts)-1].(*ir.Break); ok {
			stmts = stmts[:len(stmts)-1]
			continue
		}
		break
	}
	if len(stmts) == 0 {
		return caseOutcome{terminal: true}, true
	}

	if ifStmt, ok := stmts[len(stmts)-1].(*ir.If); ok && ifStmt.Alternate != nil {
		consBody := blockStatements(ifStmt.Consequent)
		altBody := blockStatements(ifStmt.Alternate)
		consPrefix, consNext, consTerminal, consOK := stripTrailingTransition(consBody)
		altPrefix, altNext, altTerminal, altOK := stripTrailingTransition(altBody)
		if consOK && altOK {
			return caseOutcome{
				prefix: stmts[:len(stmts)-1],
				split: &splitOutcome{
					test:         ifStmt.Test,
					consPrefix:   consPrefix,
					consTerminal: consTerminal,
					consNext:     consNext,
					altPrefix:    altPrefix,
					altTerminal:  altTerminal,
					altNext:      altNext,
				},
			}, true
		}
	}

	prefix, next, terminal, ok := stripTrailingTransition(stmts)
	if !ok {
		return caseOutcome{}, false
	}
	return caseOutcome{prefix: prefix, next: next, terminal: terminal}, true
}

// blockStatements returns n's statement list if it is a block, or n
// itself as a single-element list otherwise — an if/else's arms are
// only wrapped in a *ir.Block when the original source used braces.
func blockStatements(n ir.Node) []ir.Node {
	if n == nil {
		return nil
	}
	if b, ok := n.(*ir.Block); ok {
		return b.Body
	}
	return []ir.Node{n}
}

// structureBuilder reconstructs a dispatcher whose state-transition
// graph includes any number of two-way splits but at most one distinct
// back-edge target — spec.md §4.8 step 5's "two-way splits" and
// "single-back-edge loops" region kinds — by walking the graph
// recursively and converting every back edge that targets that one
// state into a continue, closing the loop with a while(true) at the
// state they all target. A second, genuinely distinct back-edge target
// is reported unresolved rather than mis-structured.
type structureBuilder struct {
	outcomes map[int64]caseOutcome
	f        *ir.Factory
}

// build reconstructs the chain starting at state. stack lists the
// states already being expanded by an enclosing call, in order, for
// back-edge detection: a transition to any of them closes a loop
// rather than recursing forever. It returns the reconstructed
// statements, the ancestor state an unresolved back edge still targets
// (only meaningful when hasBack is true), and ok=false when the graph
// beyond this point isn't a shape this builder understands.
func (sb *structureBuilder) build(state int64, stack []int64) (stmts []ir.Node, backTo int64, hasBack bool, ok bool) {
	for _, s := range stack {
		if s == state {
			return nil, state, true, true
		}
	}
	oc, has := sb.outcomes[state]
	if !has {
		return nil, 0, false, true // reached the dispatcher's loop-exit sentinel
	}
	nextStack := append(append([]int64(nil), stack...), state)

	if oc.split != nil {
		consStmts, consBackTo, consHasBack, consOK := sb.buildBranch(oc.split.consPrefix, oc.split.consTerminal, oc.split.consNext, nextStack)
		altStmts, altBackTo, altHasBack, altOK := sb.buildBranch(oc.split.altPrefix, oc.split.altTerminal, oc.split.altNext, nextStack)
		if !consOK || !altOK {
			return nil, 0, false, false
		}
		backTo, hasBack, agree := mergeBackEdges(consHasBack, consBackTo, altHasBack, altBackTo)
		if !agree {
			return nil, 0, false, false
		}

		pos := oc.split.test.Pos()
		if hasBack && backTo == state {
			// Both arms close the loop right here: whichever arm(s)
			// actually carry the back edge get a continue, the other
			// (if any) gets a break, and the whole reconstructed case
			// becomes the while(true) body.
			if consHasBack {
				consStmts = append(consStmts, sb.f.Continue(pos, ""))
			} else {
				consStmts = append(consStmts, sb.f.Break(pos, ""))
			}
			if altHasBack {
				altStmts = append(altStmts, sb.f.Continue(pos, ""))
			} else {
				altStmts = append(altStmts, sb.f.Break(pos, ""))
			}
			ifNode := sb.f.If(pos, oc.split.test, sb.f.Block(pos, consStmts), sb.f.Block(pos, altStmts))
			whileNode := sb.f.While(pos, sb.f.Literal(pos, true, ir.LiteralBoolean, "true"), sb.f.Block(pos, append(append([]ir.Node(nil), oc.prefix...), ifNode)))
			return []ir.Node{whileNode}, 0, false, true
		}

		ifNode := sb.f.If(pos, oc.split.test, sb.f.Block(pos, consStmts), sb.f.Block(pos, altStmts))
		return append(append([]ir.Node(nil), oc.prefix...), ifNode), backTo, hasBack, true
	}

	if oc.terminal {
		return oc.prefix, 0, false, true
	}

	tailStmts, backTo, hasBack, ok := sb.build(oc.next, nextStack)
	if !ok {
		return nil, 0, false, false
	}
	if hasBack && backTo == state {
		pos := ir.Position{}
		if len(oc.prefix) > 0 {
			pos = oc.prefix[0].Pos()
		}
		body := append(append([]ir.Node(nil), oc.prefix...), tailStmts...)
		whileNode := sb.f.While(pos, sb.f.Literal(pos, true, ir.LiteralBoolean, "true"), sb.f.Block(pos, append(body, sb.f.Continue(pos, ""))))
		return []ir.Node{whileNode}, 0, false, true
	}
	return append(append([]ir.Node(nil), oc.prefix...), tailStmts...), backTo, hasBack, true
}

// buildBranch reconstructs one arm of a two-way split: prefix runs
// unconditionally, then either the arm terminates, closes a back edge
// to an ancestor already on stack, or continues the chain at next.
func (sb *structureBuilder) buildBranch(prefix []ir.Node, terminal bool, next int64, stack []int64) (stmts []ir.Node, backTo int64, hasBack bool, ok bool) {
	if terminal {
		return prefix, 0, false, true
	}
	for _, s := range stack {
		if s == next {
			return prefix, next, true, true
		}
	}
	tail, backTo, hasBack, ok := sb.build(next, stack)
	if !ok {
		return nil, 0, false, false
	}
	return append(append([]ir.Node(nil), prefix...), tail...), backTo, hasBack, true
}

// mergeBackEdges reconciles the back-edge targets two branches of a
// split report. Neither, or only one, carrying an unresolved back edge
// propagates it up unchanged; both carrying one is only resolvable
// when they agree on the same ancestor, since this builder only
// supports a single back edge per dispatcher.
func mergeBackEdges(aHas bool, aTo int64, bHas bool, bTo int64) (backTo int64, hasBack bool, agree bool) {
	switch {
	case !aHas && !bHas:
		return 0, false, true
	case aHas && !bHas:
		return aTo, true, true
	case !aHas && bHas:
		return bTo, true, true
	case aTo == bTo:
		return aTo, true, true
	default:
		return 0, false, false
	}
}

// reconstructStructured handles the dispatcher shapes
// reconstructLinearChain deliberately leaves alone: any number of
// two-way splits (each a native if/else), so long as every back edge
// among them closes the same loop (native while(true)/continue/break),
// per spec.md §4.8 step 5. Two splits whose back edges disagree on
// where the loop closes is still out of scope and reports unresolved,
// falling through to reconstructResidualSwitch.
func reconstructStructured(d *dispatcher, f *ir.Factory) ([]ir.Node, bool) {
	if len(d.order) == 0 {
		return nil, false
	}
	outcomes := map[int64]caseOutcome{}
	for _, key := range d.order {
		oc, ok := analyzeCase(d.cases[key])
		if !ok {
			return nil, false
		}
		outcomes[key] = oc
	}

	sb := &structureBuilder{outcomes: outcomes, f: f}
	stmts, _, hasBack, ok := sb.build(d.order[0], nil)
	if !ok || hasBack {
		// A back edge that never found the state it targets reachable
		// from the entry, or a graph shape build() refused, isn't a
		// single-split/single-loop dispatcher.
		return nil, false
	}
	return stmts, true
}

// reconstructResidualSwitch is the last resort for a state-transition
// graph too irreducible for either reconstructLinearChain or
// reconstructStructured (spec.md §4.8 step 5's "residual switch"
// region kind): rather than leaving the original, still block-split
// while/switch dispatcher untouched, it re-materializes the same
// dispatch as a single freshly built while/switch statement so
// replaceDispatcher can still collapse the dispatcher's block-split CFG
// shape back into one straight-line block, even though the dispatch
// logic itself is left unstructured.
func reconstructResidualSwitch(d *dispatcher, f *ir.Factory) ([]ir.Node, bool) {
	if len(d.order) == 0 || d.test == nil {
		return nil, false
	}
	pos := d.test.Pos()
	cases := make([]*ir.SwitchCase, 0, len(d.order))
	for _, key := range d.order {
		lit := f.Literal(pos, float64(key), ir.LiteralNumber, "")
		body := append([]ir.Node(nil), d.cases[key]...)
		cases = append(cases, f.SwitchCase(pos, lit, body))
	}
	sw := f.Switch(pos, f.Identifier(pos, d.stateVar), cases)
	loop := f.While(pos, d.test, sw)
	return []ir.Node{loop}, true
}

// replaceDispatcher splices the reconstructed region's statements in
// place of the dispatcher loop statement and rewires the header block
// to fall straight through to the loop's original exit block, dropping
// its edges into the switch's body/case blocks — those become
// unreachable and are left for dead-code elimination's whole-block
// removal (spec.md §4.7) to clean up, consistent with deflatten's own
// contract of never deleting blocks itself.
func replaceDispatcher(g *cfg.Graph, headerLabel string, region []ir.Node) {
	b := g.Blocks[headerLabel]
	b.Statements = region

	var exitLabel string
	for _, e := range g.Edges {
		if e.From == headerLabel && e.Type == cfg.EdgeConditionalFalse {
			exitLabel = e.To
			break
		}
	}

	var kept []cfg.Edge
	for _, e := range g.Edges {
		if e.From == headerLabel {
			continue
		}
		kept = append(kept, e)
	}
	g.Edges = kept
	b.Successors = nil
	b.BackEdges = nil

	if exitLabel != "" {
		g.AddEdge(cfg.Edge{From: headerLabel, To: exitLabel, Type: cfg.EdgeFallThrough})
	}
}
