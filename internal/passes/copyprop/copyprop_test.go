package copyprop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/dom"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/ssa"
)

func TestPass_FollowsCopyChainToSource(t *testing.T) {
	f := ir.NewFactory()
	declA := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "a"), f.Identifier(ir.Position{}, "source")),
	})
	declB := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "b"), f.Identifier(ir.Position{}, "a")),
	})
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "b"))

	g := cfg.Build([]ir.Node{declA, declB, ret})
	dom.Compute(g)
	st := ssa.Construct(g, f, []string{"source"})

	state := &pass.IRState{Graph: g, Factory: f, SSA: st, Metadata: map[string]any{}}
	res, err := New().Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	var retStmt *ir.Return
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if r, ok := s.(*ir.Return); ok {
				retStmt = r
			}
		}
	}
	require.NotNil(t, retStmt)
	id, ok := retStmt.Value.(*ir.SSAIdentifier)
	require.True(t, ok)
	assert.Equal(t, "source", id.OriginalName)
}
