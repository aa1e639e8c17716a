package opaque

import (
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/smt"
)

// exprSize counts a subtree's nodes, the stand-in the pass uses for
// spec.md §4.9's complexity bound gating which expressions are worth
// handing to the solver collaborator at all.
func exprSize(n ir.Node) int {
	if n == nil {
		return 0
	}
	size := 1
	for _, c := range n.Children() {
		size += exprSize(c)
	}
	return size
}

// lower translates an IR expression into the detached smt.Expr tree a
// Solver binding consumes, refusing (via the bool return) any subtree
// with call/member/assignment semantics a pure boolean query can't
// represent faithfully.
func lower(n ir.Node) (smt.Expr, bool) {
	switch v := n.(type) {
	case *ir.Literal:
		switch val := v.Value.(type) {
		case float64:
			return smt.Lit{Value: int64(val)}, true
		case int:
			return smt.Lit{Value: int64(val)}, true
		case int64:
			return smt.Lit{Value: val}, true
		case bool:
			return smt.BoolLit{Value: val}, true
		default:
			return nil, false
		}
	case *ir.Identifier:
		return smt.Var{Name: v.Name}, true
	case *ir.SSAIdentifier:
		return smt.Var{Name: v.OriginalName}, true
	case *ir.Unary:
		operand, ok := lower(v.Operand)
		if !ok {
			return nil, false
		}
		if v.Op != "!" && v.Op != "-" && v.Op != "~" {
			return nil, false
		}
		return smt.Un{Op: v.Op, Operand: operand}, true
	case *ir.Binary:
		left, ok := lower(v.Left)
		if !ok {
			return nil, false
		}
		right, ok := lower(v.Right)
		if !ok {
			return nil, false
		}
		return smt.Bin{Op: v.Op, Left: left, Right: right}, true
	case *ir.Logical:
		left, ok := lower(v.Left)
		if !ok {
			return nil, false
		}
		right, ok := lower(v.Right)
		if !ok {
			return nil, false
		}
		return smt.Bin{Op: v.Op, Left: left, Right: right}, true
	default:
		return nil, false
	}
}
