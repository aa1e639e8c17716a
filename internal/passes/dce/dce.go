// Package dce implements dead-code elimination: spec.md §4.7. Runs on
// SSA form, where liveness reduces to "does this SSA-identifier have
// any recorded use" — the use-def chains internal/ssa already
// maintains make a classical backward dataflow pass unnecessary for the
// common case; a definition with zero uses and no side effect is simply
// removable, mirroring kanso's DeadCodeElimination pass but generalized
// from a flat statement list to use-def-chain-driven removal plus
// whole-block removal for blocks dominance marks unreachable.
package dce

import (
	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/effects"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/ssa"
)

// hasSideEffect reports whether evaluating n carries an effect dead-code
// elimination must preserve, via internal/effects' 8-category
// side-effect taxonomy (spec.md §4.6/§4.7) — the same classification
// enhanced constant propagation uses to decide whether a call is pure
// enough to fold. n here is always an SSA-form expression, so every
// local read already surfaces as *ir.SSAIdentifier rather than
// *ir.Identifier; locals is passed nil because a bare *ir.Identifier
// occurring in SSA-renamed code can only be a genuinely free name.
// purityOf supplies purity summaries gathered earlier in the pipeline
// (by constprop's enhanced pass, when it ran) so a call to an
// already-proven-pure user function isn't conservatively kept alive.
func hasSideEffect(n ir.Node, purity map[string]effects.Set) bool {
	return effects.Blocking(effects.Classify(n, nil, purity))
}

type Pass struct{}

func New() *Pass { return &Pass{} }

func (p *Pass) Name() string            { return "dead-code-elimination" }
func (p *Pass) Description() string     { return "removes unreachable blocks and side-effect-free unused definitions" }
func (p *Pass) RequiresSSA() bool        { return true }
func (p *Pass) MutatesControlFlow() bool { return true }

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	removedBlocks := p.removeUnreachableBlocks(state.Graph)
	removedStmts, visited := p.removeDeadDefinitions(state)

	return pass.Result{
		State:   state,
		Changed: removedBlocks > 0 || removedStmts > 0,
		Metrics: pass.Metrics{
			NodesVisited: visited,
			NodesRemoved: removedBlocks + removedStmts,
		},
	}, nil
}

// removeUnreachableBlocks drops, wholesale, any block dominance marked
// unreachable (spec.md §4.7's "Unreachable blocks ... are removed
// wholesale", distinct from C1's "flag, don't drop" rule for the CFG
// builder itself — flagging is the builder's contract, removal is this
// pass's).
func (p *Pass) removeUnreachableBlocks(g *cfg.Graph) int {
	removed := 0
	for label, b := range g.Blocks {
		if label == g.Entry || b.Reachable {
			continue
		}
		g.RemoveBlock(label)
		removed++
	}
	return removed
}

// removeDeadDefinitions drops declarator/assignment/update statements
// whose defined SSA version has no recorded uses and whose
// right-hand side has no observable side effect.
func (p *Pass) removeDeadDefinitions(state *pass.IRState) (int, int) {
	st := state.SSA
	purity := purityTable(state)
	removed, visited := 0, 0

	for _, label := range sortedLabels(state) {
		b := state.Graph.Blocks[label]
		kept := b.Statements[:0]
		for _, stmt := range b.Statements {
			visited++
			if p.isDeadDefinition(st, stmt, purity) {
				removed++
				continue
			}
			kept = append(kept, stmt)
		}
		b.Statements = kept
	}
	return removed, visited
}

// purityTable recovers the function-purity summaries enhanced constant
// propagation recorded in state.Metadata, if that pass has already run
// this pipeline; nil (meaning "nothing known") otherwise, in which case
// hasSideEffect falls back to treating every call as an external one.
func purityTable(state *pass.IRState) map[string]effects.Set {
	raw, ok := state.Metadata[constpropPurityKey]
	if !ok {
		return nil
	}
	table, _ := raw.(map[string]effects.Set)
	return table
}

// constpropPurityKey is the Metadata key internal/passes/constprop
// publishes its pure-function summaries under; duplicated here rather
// than imported to avoid a dependency cycle (constprop itself doesn't
// need anything from dce).
const constpropPurityKey = "constprop.purity"

// isDeadDefinition reports whether stmt solely defines an SSA version
// that is never used and carries no side effect. Phi-node definitions
// aren't statements in a block's Statements list (they live in
// st.Phis), so this only ever sees declarators/assignments/updates.
func (p *Pass) isDeadDefinition(st *ssa.State, stmt ir.Node, purity map[string]effects.Set) bool {
	if st == nil {
		return false
	}
	switch v := stmt.(type) {
	case *ir.VariableDeclaration:
		if len(v.Declarators) != 1 {
			return false
		}
		d := v.Declarators[0]
		id, ok := d.Name.(*ir.SSAIdentifier)
		if !ok {
			return false
		}
		return len(st.UseDef.Uses(id.OriginalName, id.Version)) == 0 && !hasSideEffect(d.Init, purity)
	case *ir.ExpressionStatement:
		switch e := v.Expr.(type) {
		case *ir.Assignment:
			id, ok := e.Target.(*ir.SSAIdentifier)
			if !ok || e.Op != "=" {
				return false
			}
			return len(st.UseDef.Uses(id.OriginalName, id.Version)) == 0 && !hasSideEffect(e.Value, purity)
		case *ir.Update:
			id, ok := e.Operand.(*ir.SSAIdentifier)
			if !ok {
				return false
			}
			return len(st.UseDef.Uses(id.OriginalName, id.Version)) == 0
		}
	}
	return false
}

func sortedLabels(state *pass.IRState) []string {
	return state.Graph.OrderedLabels()
}
