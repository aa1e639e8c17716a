package smt

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

// BoundedSolver is a pragmatic stand-in for a real SMT binding: rather
// than reasoning symbolically, it renders a Query to an expr-lang
// expression string and brute-force evaluates it across every
// assignment of its free variables over a small bounded integer domain
// (the same technique the pathfinder evaluator uses expr-lang for —
// compiling a textual expression against an environment map and
// running it — generalized here from entity-attribute lookups to
// exhaustive small-domain enumeration). A query is "unsatisfiable" when
// every assignment in the domain evaluates false; this is only sound
// when the domain actually covers the predicate's real behavior, so
// BoundedSolver reports Unknown (via known=false) whenever a query's
// variable count makes the domain too small to be confident, leaving
// the opaque-predicate pass to fall back to its pattern library.
type BoundedSolver struct {
	// Domain lists the integer values tried for every free variable.
	// Defaults to a small signed range covering the common 0/1/-1
	// opaque-predicate idioms when left nil.
	Domain []int64
	// MaxVars bounds how many distinct free variables a query may
	// reference before brute force is abandoned as unreliable.
	MaxVars int
}

func NewBoundedSolver() *BoundedSolver {
	return &BoundedSolver{
		Domain:  []int64{-2, -1, 0, 1, 2, 3, 7, 8, 255, 256},
		MaxVars: 3,
	}
}

func (s *BoundedSolver) Satisfiable(ctx context.Context, q Query) (bool, bool) {
	vars := collectVars(q.Expr, map[string]bool{})
	if len(vars) > s.MaxVars {
		return false, false
	}
	source, err := render(q.Expr)
	if err != nil {
		return false, false
	}
	program, err := expr.Compile(source, expr.Env(envTemplate(vars)))
	if err != nil {
		return false, false
	}

	domain := s.Domain
	if len(domain) == 0 {
		domain = NewBoundedSolver().Domain
	}

	for _, assignment := range enumerate(vars, domain) {
		select {
		case <-ctx.Done():
			return false, false
		default:
		}
		out, err := expr.Run(program, assignment)
		if err != nil {
			continue
		}
		if truthy(out) {
			return true, true
		}
	}
	return false, true
}

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func collectVars(e Expr, into map[string]bool) map[string]bool {
	switch v := e.(type) {
	case Var:
		into[v.Name] = true
	case Un:
		collectVars(v.Operand, into)
	case Bin:
		collectVars(v.Left, into)
		collectVars(v.Right, into)
	}
	return into
}

func envTemplate(vars map[string]bool) map[string]interface{} {
	env := make(map[string]interface{}, len(vars))
	for v := range vars {
		env[v] = int64(0)
	}
	return env
}

// enumerate produces the cartesian product of domain values over vars,
// bounded by MaxVars so this never explodes.
func enumerate(vars map[string]bool, domain []int64) []map[string]interface{} {
	names := make([]string, 0, len(vars))
	for v := range vars {
		names = append(names, v)
	}
	assignments := []map[string]interface{}{{}}
	for _, name := range names {
		var next []map[string]interface{}
		for _, base := range assignments {
			for _, val := range domain {
				clone := make(map[string]interface{}, len(base)+1)
				for k, v := range base {
					clone[k] = v
				}
				clone[name] = val
				next = append(next, clone)
			}
		}
		assignments = next
	}
	return assignments
}

// render converts an Expr tree into expr-lang's textual expression
// syntax, which is close enough to C-family operator syntax that the
// bit/logical/comparison operators translate directly.
func render(e Expr) (string, error) {
	switch v := e.(type) {
	case Lit:
		return fmt.Sprintf("%d", v.Value), nil
	case BoolLit:
		return fmt.Sprintf("%v", v.Value), nil
	case Var:
		return v.Name, nil
	case Un:
		operand, err := render(v.Operand)
		if err != nil {
			return "", err
		}
		op := v.Op
		if op == "!" {
			op = "not "
		}
		return fmt.Sprintf("(%s(%s))", op, operand), nil
	case Bin:
		left, err := render(v.Left)
		if err != nil {
			return "", err
		}
		right, err := render(v.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, translateOp(v.Op), right), nil
	default:
		return "", fmt.Errorf("smt: unrenderable expression %T", e)
	}
}

func translateOp(op string) string {
	switch op {
	case "&&":
		return "and"
	case "||":
		return "or"
	case "===":
		return "=="
	case "!==":
		return "!="
	default:
		return op
	}
}
