// Package copyprop implements copy propagation over SSA form: spec.md
// §4.6's other half of the contract — when an SSA-identifier's
// defining instruction is itself just another identifier (`x_k =
// y_j`), every use of x_k is rewritten to y_j directly, short-circuiting
// copy chains down to their ultimate source.
package copyprop

import (
	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/ssa"
)

type Pass struct{}

func New() *Pass { return &Pass{} }

func (p *Pass) Name() string            { return "copy-propagation" }
func (p *Pass) Description() string     { return "rewrites uses of a pure-copy SSA identifier to its ultimate source" }
func (p *Pass) RequiresSSA() bool        { return true }
func (p *Pass) MutatesControlFlow() bool { return false }

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	st := state.SSA
	visited, changed := 0, 0

	for _, label := range sortedLabels(state) {
		b := state.Graph.Blocks[label]
		for i, stmt := range b.Statements {
			replace := func(n ir.Node) ir.Node {
				id, ok := n.(*ir.SSAIdentifier)
				if !ok {
					return n
				}
				visited++
				ultimate, ok := resolveCopy(st, id)
				if !ok || ultimate == id {
					return n
				}
				changed++
				return ultimate
			}
			b.Statements[i] = walkStmt(stmt, replace)
		}
	}

	return pass.Result{
		State:   state,
		Changed: changed > 0,
		Metrics: pass.Metrics{NodesVisited: visited, NodesChanged: changed},
	}, nil
}

// resolveCopy follows a chain of pure-copy definitions (x_k = y_j, y_j =
// z_i, ...) to its ultimate non-copy source. A set of already-visited
// sources (name plus position) stops a (impossible, but defensively
// guarded-against) cyclic chain, and the walk is capped at 10000 steps.
func resolveCopy(st *ssa.State, id *ir.SSAIdentifier) (*ir.SSAIdentifier, bool) {
	current := id
	seen := map[string]bool{}
	for i := 0; i < 10000; i++ {
		def, ok := st.UseDef.Def(current.OriginalName, current.Version)
		if !ok || def.IsPhi {
			return current, true
		}
		var value ir.Node
		switch v := def.Statement.(type) {
		case *ir.Assignment:
			if v.Op != "=" {
				return current, true
			}
			value = v.Value
		case *ir.Declarator:
			value = v.Init
		default:
			return current, true
		}
		src, ok := value.(*ir.SSAIdentifier)
		if !ok {
			return current, true
		}
		k := src.OriginalName + "#" + src.Pos().String()
		if seen[k] {
			return current, true
		}
		seen[k] = true
		current = src
	}
	return current, true
}

func sortedLabels(state *pass.IRState) []string {
	out := make([]string, 0, len(state.Graph.Blocks))
	for l := range state.Graph.Blocks {
		out = append(out, l)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

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
