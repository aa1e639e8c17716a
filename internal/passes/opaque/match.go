package opaque

import "github.com/deobfuscator/core/internal/ir"

// bindings maps a rule's metavariable name to the concrete IR subtree it
// matched; every occurrence of the same metavariable within one rule
// must bind to structurally-equal subtrees (spec.md §4.9 step 1's
// pattern-match semantics over "$x", "$y").
type bindings map[string]ir.Node

func matchExpr(pattern *RuleExpr, node ir.Node, b bindings) bool {
	if len(pattern.Ops) == 0 {
		return matchUnary(pattern.Left, node, b)
	}
	bin, ok := asBinaryLike(node)
	if !ok {
		return false
	}
	// Flattened left-assoc pattern: fold the operator chain the same way
	// the grammar does, left to right, matching against nested Binary/
	// Logical nodes one operator at a time from the outermost (last) op
	// inward, mirroring how the parser would have built the same shape.
	ops := pattern.Ops
	last := ops[len(ops)-1]
	if bin.op != last.Op {
		return false
	}
	if !matchUnary(last.Right, bin.right, b) {
		return false
	}
	remaining := &RuleExpr{Left: pattern.Left, Ops: ops[:len(ops)-1]}
	if len(remaining.Ops) == 0 {
		return matchUnary(remaining.Left, bin.left, b)
	}
	return matchExpr(remaining, bin.left, b)
}

type binaryLike struct {
	op          string
	left, right ir.Node
}

func asBinaryLike(node ir.Node) (binaryLike, bool) {
	switch v := node.(type) {
	case *ir.Binary:
		return binaryLike{op: v.Op, left: v.Left, right: v.Right}, true
	case *ir.Logical:
		return binaryLike{op: v.Op, left: v.Left, right: v.Right}, true
	default:
		return binaryLike{}, false
	}
}

func matchUnary(u *RuleUnary, node ir.Node, b bindings) bool {
	if u.Op != nil {
		un, ok := node.(*ir.Unary)
		if !ok || un.Op != *u.Op {
			return false
		}
		return matchPrimary(u.Value, un.Operand, b)
	}
	return matchPrimary(u.Value, node, b)
}

func matchPrimary(p *RulePrimary, node ir.Node, b bindings) bool {
	switch {
	case p.Number != nil:
		lit, ok := node.(*ir.Literal)
		if !ok {
			return false
		}
		n, ok := literalInt(lit)
		return ok && n == *p.Number
	case p.Meta != nil:
		name := *p.Meta
		if existing, bound := b[name]; bound {
			return structurallyEqual(existing, node)
		}
		b[name] = node
		return true
	case p.Ident != nil:
		id, ok := node.(*ir.Identifier)
		return ok && id.Name == *p.Ident
	case p.Sub != nil:
		return matchExpr(p.Sub, node, b)
	default:
		return false
	}
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

// structurallyEqual decides whether two IR subtrees denote the same
// expression for the purpose of metavariable consistency (the same
// "$x" bound twice must be the literal same variable or literal value,
// not merely equal by coincidence of runtime value).
func structurallyEqual(a, b ir.Node) bool {
	switch av := a.(type) {
	case *ir.Identifier:
		bv, ok := b.(*ir.Identifier)
		return ok && av.Name == bv.Name
	case *ir.SSAIdentifier:
		bv, ok := b.(*ir.SSAIdentifier)
		return ok && av.OriginalName == bv.OriginalName && av.Version == bv.Version
	case *ir.Literal:
		bv, ok := b.(*ir.Literal)
		return ok && av.Value == bv.Value
	case *ir.Binary:
		bv, ok := b.(*ir.Binary)
		return ok && av.Op == bv.Op && structurallyEqual(av.Left, bv.Left) && structurallyEqual(av.Right, bv.Right)
	case *ir.Logical:
		bv, ok := b.(*ir.Logical)
		return ok && av.Op == bv.Op && structurallyEqual(av.Left, bv.Left) && structurallyEqual(av.Right, bv.Right)
	case *ir.Unary:
		bv, ok := b.(*ir.Unary)
		return ok && av.Op == bv.Op && structurallyEqual(av.Operand, bv.Operand)
	default:
		return false
	}
}
