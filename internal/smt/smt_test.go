package smt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify_TautologyXorSelf(t *testing.T) {
	// x ^ x == 0 is always true.
	expr := Bin{Op: "==", Left: Bin{Op: "^", Left: Var{"x"}, Right: Var{"x"}}, Right: Lit{0}}
	solver := NewBoundedSolver()
	verdict := Classify(context.Background(), solver, Query{Expr: expr, Budget: time.Second})
	assert.Equal(t, Tautology, verdict)
}

func TestClassify_ContradictionAlwaysFalse(t *testing.T) {
	// x == x + 1 is never true.
	expr := Bin{Op: "==", Left: Var{"x"}, Right: Bin{Op: "+", Left: Var{"x"}, Right: Lit{1}}}
	solver := NewBoundedSolver()
	verdict := Classify(context.Background(), solver, Query{Expr: expr, Budget: time.Second})
	assert.Equal(t, Contradiction, verdict)
}

func TestClassify_UnknownForUnderdeterminedPredicate(t *testing.T) {
	// x > 0 is neither always true nor always false over the domain.
	expr := Bin{Op: ">", Left: Var{"x"}, Right: Lit{0}}
	solver := NewBoundedSolver()
	verdict := Classify(context.Background(), solver, Query{Expr: expr, Budget: time.Second})
	assert.Equal(t, Unknown, verdict)
}

func TestTolerant_AlwaysUnknown(t *testing.T) {
	verdict := Classify(context.Background(), Tolerant{}, Query{Expr: Var{"x"}})
	assert.Equal(t, Unknown, verdict)
}
