package dom

import (
	"testing"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds: entry -> if -> (then|else) -> join -> exit
func diamond(t *testing.T) *cfg.Graph {
	t.Helper()
	f := ir.NewFactory()
	test := f.Identifier(ir.Position{}, "cond")
	ifStmt := f.If(ir.Position{}, test,
		f.ExpressionStatement(ir.Position{}, f.Identifier(ir.Position{}, "a")),
		f.ExpressionStatement(ir.Position{}, f.Identifier(ir.Position{}, "b")))
	tail := f.ExpressionStatement(ir.Position{}, f.Identifier(ir.Position{}, "tail"))
	return cfg.Build([]ir.Node{ifStmt, tail})
}

func TestCompute_DiamondDominance(t *testing.T) {
	g := diamond(t)
	Compute(g)

	entry := g.Blocks[g.Entry]
	require.NotNil(t, entry)
	assert.True(t, entry.Dominators[g.Entry])

	// Entry must dominate every reachable block (invariant C1).
	for label, b := range g.Blocks {
		if !b.Reachable && label != g.Entry {
			continue
		}
		assert.True(t, b.Dominators[g.Entry], "entry should dominate %s", label)
	}
}

func TestCompute_ExitPostDominates(t *testing.T) {
	g := diamond(t)
	Compute(g)

	exit := g.Blocks[g.Exit]
	require.NotNil(t, exit)
	assert.True(t, exit.PostDominators[g.Exit])
}

func TestCompute_NaturalLoop(t *testing.T) {
	f := ir.NewFactory()
	test := f.Identifier(ir.Position{}, "cond")
	body := f.ExpressionStatement(ir.Position{}, f.Identifier(ir.Position{}, "work"))
	loop := f.While(ir.Position{}, test, body)
	g := cfg.Build([]ir.Node{loop})
	res := Compute(g)

	assert.False(t, res.Irreducible)

	var headerLabel string
	for label, b := range g.Blocks {
		if len(b.BackEdges) > 0 {
			headerLabel = label
		}
	}
	require.NotEmpty(t, headerLabel, "expected a loop header with a back-edge")

	foundLoopMember := false
	for _, b := range g.Blocks {
		if b.LoopHeader == headerLabel {
			foundLoopMember = true
		}
	}
	assert.True(t, foundLoopMember)
}

func TestCompute_DominanceFrontierAtJoin(t *testing.T) {
	g := diamond(t)
	Compute(g)

	// The join block (two predecessors) should appear in its
	// predecessors' dominance frontiers.
	var join *cfg.Block
	for _, b := range g.Blocks {
		if len(b.Predecessors) >= 2 {
			join = b
		}
	}
	require.NotNil(t, join, "expected a join block with >=2 predecessors")

	for _, p := range join.Predecessors {
		pb := g.Blocks[p]
		if pb.ImmediateDominator == join.Label {
			continue
		}
		assert.True(t, pb.DominanceFrontier[join.Label], "%s should have %s in its frontier", p, join.Label)
	}
}
