package ssa

import (
	"sort"

	"github.com/deobfuscator/core/internal/ir"
)

// walkExpr recurses through expression-shaped node kinds, rewriting
// their children in place and handing every node the switch doesn't
// structurally own to leaf. Used both for construction's use-rewriting
// (leaf rewrites *ir.Identifier reads) and destruction's SSA-identifier
// flattening (leaf rewrites *ir.SSAIdentifier back to plain names).
//
// A nested assignment-as-expression (`a = (b = 1)`) recurses here rather
// than through the statement-level def/use handling, so its target is
// treated as a use, not a definition — a known limitation for the rare
// case of assignment chains used as values.
// WalkExpr exports walkExpr for the transformation passes in
// internal/passes/*, which need the same expression-shaped recursion
// to rewrite SSA-identifier uses without duplicating this traversal.
func WalkExpr(n ir.Node, leaf func(ir.Node) ir.Node) ir.Node { return walkExpr(n, leaf) }

func walkExpr(n ir.Node, leaf func(ir.Node) ir.Node) ir.Node {
	if n == nil {
		return nil
	}
	switch v := n.(type) {
	case *ir.Binary:
		v.Left = walkExpr(v.Left, leaf)
		v.Right = walkExpr(v.Right, leaf)
		return v
	case *ir.Unary:
		v.Operand = walkExpr(v.Operand, leaf)
		return v
	case *ir.Update:
		v.Operand = walkExpr(v.Operand, leaf)
		return v
	case *ir.Logical:
		v.Left = walkExpr(v.Left, leaf)
		v.Right = walkExpr(v.Right, leaf)
		return v
	case *ir.Conditional:
		v.Test = walkExpr(v.Test, leaf)
		v.Consequent = walkExpr(v.Consequent, leaf)
		v.Alternate = walkExpr(v.Alternate, leaf)
		return v
	case *ir.Assignment:
		v.Target = walkExpr(v.Target, leaf)
		v.Value = walkExpr(v.Value, leaf)
		return v
	case *ir.Call:
		v.Callee = walkExpr(v.Callee, leaf)
		for i, a := range v.Args {
			v.Args[i] = walkExpr(a, leaf)
		}
		return v
	case *ir.New:
		v.Callee = walkExpr(v.Callee, leaf)
		for i, a := range v.Args {
			v.Args[i] = walkExpr(a, leaf)
		}
		return v
	case *ir.Member:
		v.Object = walkExpr(v.Object, leaf)
		if v.Computed {
			v.Property = walkExpr(v.Property, leaf)
		}
		return v
	case *ir.Array:
		for i, e := range v.Elements {
			if e != nil {
				v.Elements[i] = walkExpr(e, leaf)
			}
		}
		return v
	case *ir.Property:
		if v.Computed {
			v.Key = walkExpr(v.Key, leaf)
		}
		v.Value = walkExpr(v.Value, leaf)
		return v
	case *ir.Object:
		for _, p := range v.Properties {
			walkExpr(p, leaf)
		}
		return v
	case *ir.Sequence:
		for i, e := range v.Expressions {
			v.Expressions[i] = walkExpr(e, leaf)
		}
		return v
	default:
		return leaf(n)
	}
}

func sortedStrings(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
