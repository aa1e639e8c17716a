package pass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/dom"
	"github.com/deobfuscator/core/internal/ir"
)

// countingPass rewrites every numeric literal by incrementing it once,
// reporting itself unchanged once the node map contains no literal
// below a threshold — just enough behavior to exercise the pipeline's
// fixed-point loop and metrics aggregation.
type countingPass struct {
	threshold float64
	applied   int
}

func (p *countingPass) Name() string              { return "bump-literals" }
func (p *countingPass) Description() string        { return "increments small numeric literals" }
func (p *countingPass) RequiresSSA() bool          { return false }
func (p *countingPass) MutatesControlFlow() bool   { return false }

func (p *countingPass) Run(state *IRState) (Result, error) {
	changed := false
	visited := 0
	for _, label := range sortedLabels(state.Graph) {
		b := state.Graph.Blocks[label]
		for _, stmt := range b.Statements {
			es, ok := stmt.(*ir.ExpressionStatement)
			if !ok {
				continue
			}
			lit, ok := es.Expr.(*ir.Literal)
			visited++
			if !ok {
				continue
			}
			if n, ok := lit.Value.(float64); ok && n < p.threshold {
				lit.Value = n + 1
				changed = true
				p.applied++
			}
		}
	}
	return Result{State: state, Changed: changed, Metrics: Metrics{NodesVisited: visited}}, nil
}

func sortedLabels(g *cfg.Graph) []string {
	out := make([]string, 0, len(g.Blocks))
	for l := range g.Blocks {
		out = append(out, l)
	}
	return out
}

func TestPipeline_RunsToFixedPoint(t *testing.T) {
	f := ir.NewFactory()
	stmt := f.ExpressionStatement(ir.Position{}, f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0"))
	g := cfg.Build([]ir.Node{stmt})
	dom.Compute(g)

	cp := &countingPass{threshold: 5}
	pipeline := NewPipeline(10)
	pipeline.AddPass(cp)

	state := &IRState{Graph: g, Factory: f, Metadata: map[string]any{}}
	res, err := pipeline.Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 5, cp.applied, "literal should be bumped from 0 to 5 one round at a time")

	lit := g.Blocks[g.Entry].Statements[0].(*ir.ExpressionStatement).Expr.(*ir.Literal)
	assert.Equal(t, 5.0, lit.Value)
}

func TestPipeline_StopsWhenNothingChanges(t *testing.T) {
	f := ir.NewFactory()
	stmt := f.ExpressionStatement(ir.Position{}, f.Literal(ir.Position{}, 10.0, ir.LiteralNumber, "10"))
	g := cfg.Build([]ir.Node{stmt})
	dom.Compute(g)

	cp := &countingPass{threshold: 5}
	pipeline := NewPipeline(10)
	pipeline.AddPass(cp)

	state := &IRState{Graph: g, Factory: f, Metadata: map[string]any{}}
	res, err := pipeline.Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 0, cp.applied)
}
