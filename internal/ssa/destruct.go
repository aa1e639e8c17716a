package ssa

import (
	"fmt"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
)

// invariantViolation mirrors the panic-based hard-error style already
// used by internal/ir's factory: destruction encountering a malformed
// φ-node is a fatal internal-invariant violation (spec.md §7's "Fatal
// errors" clause), not a recoverable warning.
type invariantViolation struct{ msg string }

func (e *invariantViolation) Error() string { return e.msg }

// Destruct is a left inverse of Construct when no pass has run in
// between (invariant S1): every φ-node is replaced by copies inserted
// at the end of each predecessor block, and every remaining
// SSA-identifier is rewritten back to a plain identifier using its
// original name.
//
// Copy placement uses one fresh temporary per φ-node, written by every
// predecessor and read once at the top of the φ-node's own block. This
// avoids the lost-copy and swap problems: two φ-nodes in the same block
// whose predecessor operands reference each other's variables (e.g. a
// loop-carried swap) never clobber one another, because each writes its
// own temporary before any of the final names are touched.
func Destruct(st *State) {
	d := &destructor{state: st, f: st.Factory}
	d.run()
}

type destructor struct {
	state   *State
	f       *ir.Factory
	tempSeq int
}

func (d *destructor) run() {
	g := d.state.Graph

	for _, label := range sortedBlockLabels(g) {
		d.lowerBlockPhis(label)
	}

	for _, label := range sortedBlockLabels(g) {
		b := g.Blocks[label]
		for i, stmt := range b.Statements {
			b.Statements[i] = d.flattenStmt(stmt)
		}
		for i := range g.Edges {
			if g.Edges[i].From == label && g.Edges[i].Condition != nil {
				g.Edges[i].Condition = d.flattenSSA(g.Edges[i].Condition)
			}
		}
	}
}

type phiTemp struct {
	phi      *ir.Phi
	name     string
	tempName string
}

func (d *destructor) lowerBlockPhis(label string) {
	g := d.state.Graph
	b := g.Blocks[label]
	phis := d.state.Phis[label]
	if len(phis) == 0 {
		return
	}

	infos := make([]phiTemp, 0, len(phis))
	for _, phi := range phis {
		d.tempSeq++
		infos = append(infos, phiTemp{
			phi:      phi,
			name:     d.state.PhiNames[phi],
			tempName: fmt.Sprintf("__phi_tmp%d", d.tempSeq),
		})
	}

	if len(b.Predecessors) != 0 {
		for _, info := range infos {
			if len(info.phi.Operands) != len(b.Predecessors) {
				panic(&invariantViolation{msg: fmt.Sprintf(
					"ssa: phi for %q in block %s has %d operands, want %d (one per predecessor)",
					info.name, label, len(info.phi.Operands), len(b.Predecessors))})
			}
		}
	}

	for _, pred := range b.Predecessors {
		pb := g.Blocks[pred]
		if pb == nil {
			continue
		}
		for _, info := range infos {
			val := operandFor(info.phi, pred)
			resolved := d.flattenSSA(val)
			assign := d.f.Assignment(ir.Position{}, "=", d.f.Identifier(ir.Position{}, info.tempName), resolved)
			pb.Statements = append(pb.Statements, d.f.ExpressionStatement(ir.Position{}, assign))
		}
	}

	prelude := make([]ir.Node, 0, len(infos))
	for _, info := range infos {
		assign := d.f.Assignment(ir.Position{}, "=", d.f.Identifier(ir.Position{}, info.name), d.f.Identifier(ir.Position{}, info.tempName))
		prelude = append(prelude, d.f.ExpressionStatement(ir.Position{}, assign))
	}
	b.Statements = append(prelude, b.Statements...)
	delete(d.state.Phis, label)
}

func operandFor(phi *ir.Phi, predecessor string) ir.Node {
	for _, op := range phi.Operands {
		if op.Predecessor == predecessor {
			return op.Value
		}
	}
	panic(&invariantViolation{msg: fmt.Sprintf("ssa: phi has no operand for predecessor %s", predecessor)})
}

// flattenSSA rewrites every SSA-identifier reachable from n back to a
// plain identifier carrying its original name (invariant I2: SSA nodes
// never reach the printer).
func (d *destructor) flattenSSA(n ir.Node) ir.Node {
	return walkExpr(n, func(leaf ir.Node) ir.Node {
		id, ok := leaf.(*ir.SSAIdentifier)
		if !ok {
			return leaf
		}
		return d.f.Identifier(id.Pos(), id.OriginalName)
	})
}

func (d *destructor) flattenStmt(stmt ir.Node) ir.Node {
	switch v := stmt.(type) {
	case *ir.ExpressionStatement:
		v.Expr = d.flattenSSA(v.Expr)
		return v
	case *ir.VariableDeclaration:
		for _, decl := range v.Declarators {
			if decl.Init != nil {
				decl.Init = d.flattenSSA(decl.Init)
			}
			if ssaID, ok := decl.Name.(*ir.SSAIdentifier); ok {
				decl.Name = d.f.Identifier(ssaID.Pos(), ssaID.OriginalName)
			}
		}
		return v
	case *ir.Return:
		if v.Value != nil {
			v.Value = d.flattenSSA(v.Value)
		}
		return v
	case *ir.While:
		v.Test = d.flattenSSA(v.Test)
		return v
	case *cfg.IfMarker:
		v.Test = d.flattenSSA(v.Test)
		return v
	case *cfg.SwitchMarker:
		for _, cs := range v.Cases {
			if cs.Test != nil {
				cs.Test = d.flattenSSA(cs.Test)
			}
		}
		return v
	default:
		return d.flattenSSA(stmt)
	}
}
