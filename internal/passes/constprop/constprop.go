// Package constprop implements constant propagation over SSA form:
// spec.md §4.6. Basic-mode literal substitution turns out to be the
// single-definition special case of the same lattice enhanced mode
// needs, so Pass evaluates every SSA version through one abstract-value
// lattice (lattice.go) instead of special-casing it away: a non-phi
// definition that is itself a literal simply resolves to a Constant
// immediately, the same answer basic mode gave, while a φ-node at a
// control-flow merge joins its operands — giving the path-sensitive
// results spec.md §4.6 calls for, which a bare "is the definition a
// literal" check could never produce. Function-purity analysis
// (purity.go, via internal/effects' shared 8-category side-effect
// taxonomy) additionally lets evalCall (eval.go) fold a call to a
// proven-pure, constant-argument function at compile time, the same
// way kanso's ConstantFolding pass folds a builtin call against
// literal arguments, generalized here to any user-defined function this
// analysis can summarize as pure.
package constprop

import (
	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/ssa"
)

// purityMetadataKey is where Pass.Run publishes the purity summaries it
// computed, keyed by declared function name, as a plain
// map[string]effects.Set — internal/passes/dce reads it back under the
// same key to treat a call to an already-proven-pure function as
// side-effect-free too, instead of conservatively external.
const purityMetadataKey = "constprop.purity"

// Pass is the enhanced-mode constant-propagation pass.
// EnhancedEvaluationBound caps the total number of lattice-resolution
// and pure-call-interpretation steps a single Run performs —
// internal/config's Constprop.EnhancedEvaluationBound, threaded in by
// whatever builds the pipeline. A zero Pass (as a literal &Pass{}
// rather than through New) falls back to a built-in default inside
// newEvaluator rather than refusing to make any progress.
type Pass struct {
	EnhancedEvaluationBound int
}

func New() *Pass { return &Pass{EnhancedEvaluationBound: 256} }

func (p *Pass) Name() string        { return "constant-propagation" }
func (p *Pass) Description() string { return "resolves SSA uses through an abstract-value lattice and folds pure calls with constant arguments" }
func (p *Pass) RequiresSSA() bool        { return true }
func (p *Pass) MutatesControlFlow() bool { return false }

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	st := state.SSA
	purity := summarizePurity(state.Graph)
	state.Metadata[purityMetadataKey] = effectsToSet(purity)

	ev := newEvaluator(st, purity, p.EnhancedEvaluationBound)

	visited, changed := 0, 0
	var warnings []pass.Warning
	for _, label := range state.Graph.OrderedLabels() {
		b := state.Graph.Blocks[label]
		for i, stmt := range b.Statements {
			rewritten, n, c := rewriteStmt(stmt, ev, state.Factory)
			visited += n
			changed += c
			b.Statements[i] = rewritten
		}
	}
	if ev.budget <= 0 {
		warnings = append(warnings, pass.Warning{
			Code:    "constprop.budget-exhausted",
			Message: "enhanced evaluation bound reached before every SSA use could be resolved; remaining uses left unevaluated",
		})
	}

	return pass.Result{
		State:    state,
		Changed:  changed > 0,
		Metrics:  pass.Metrics{NodesVisited: visited, NodesChanged: changed},
		Warnings: warnings,
	}, nil
}

// rewriteStmt replaces every SSA-identifier use in stmt whose abstract
// value resolves to a Constant with a freshly synthesized literal node
// carrying that value. A value that resolves to Top, an IntegerRange, a
// SealedObject, or a PureFunctionSummary is left as-is — only an exact
// Constant is safe to splice into the tree in a literal's place.
func rewriteStmt(stmt ir.Node, ev *evaluator, f *ir.Factory) (ir.Node, int, int) {
	visited, changed := 0, 0
	replace := func(n ir.Node) ir.Node {
		id, ok := n.(*ir.SSAIdentifier)
		if !ok {
			return n
		}
		visited++
		val := ev.resolve(id.OriginalName, id.Version)
		c, ok := val.(Constant)
		if !ok {
			return n
		}
		changed++
		return f.Literal(id.Pos(), c.Value, c.Kind, "")
	}
	out := walkStmt(stmt, replace)
	return out, visited, changed
}

// walkStmt extends ssa.WalkExpr's expression-shaped recursion to the
// handful of statement containers a block's Statements slice holds
// directly (expression statements, declarations, returns, loop/switch
// tests).
func walkStmt(n ir.Node, leaf func(ir.Node) ir.Node) ir.Node {
	switch v := n.(type) {
	case *ir.ExpressionStatement:
		v.Expr = ssa.WalkExpr(v.Expr, leaf)
		return v
	case *ir.VariableDeclaration:
		for _, d := range v.Declarators {
			if d.Init != nil {
				d.Init = ssa.WalkExpr(d.Init, leaf)
			}
		}
		return v
	case *ir.Return:
		if v.Value != nil {
			v.Value = ssa.WalkExpr(v.Value, leaf)
		}
		return v
	case *ir.While:
		v.Test = ssa.WalkExpr(v.Test, leaf)
		return v
	case *cfg.IfMarker:
		v.Test = ssa.WalkExpr(v.Test, leaf)
		return v
	case *cfg.SwitchMarker:
		for _, cs := range v.Cases {
			if cs.Test != nil {
				cs.Test = ssa.WalkExpr(cs.Test, leaf)
			}
		}
		return v
	default:
		return ssa.WalkExpr(v, leaf)
	}
}
