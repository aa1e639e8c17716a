package dce

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

func TestPass_RemovesUnusedPureDeclaration(t *testing.T) {
	f := ir.NewFactory()
	dead := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "unused"), f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")),
	})
	live := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "kept"), f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")),
	})
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "kept"))

	g := cfg.Build([]ir.Node{dead, live, ret})
	dom.Compute(g)
	st := ssa.Construct(g, f, nil)

	state := &pass.IRState{Graph: g, Factory: f, SSA: st, Metadata: map[string]any{}}
	res, err := New().Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if decl, ok := s.(*ir.VariableDeclaration); ok {
				for _, d := range decl.Declarators {
					if id, ok := d.Name.(*ir.SSAIdentifier); ok {
						assert.NotEqual(t, "unused", id.OriginalName)
					}
				}
			}
		}
	}
}

func TestPass_KeepsCallEvenWhenResultUnused(t *testing.T) {
	f := ir.NewFactory()
	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "sideEffecting"), nil, false)
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "unused"), call),
	})
	ret := f.Return(ir.Position{}, f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0"))

	g := cfg.Build([]ir.Node{decl, ret})
	dom.Compute(g)
	st := ssa.Construct(g, f, []string{"sideEffecting"})

	state := &pass.IRState{Graph: g, Factory: f, SSA: st, Metadata: map[string]any{}}
	_, err := New().Run(state)
	require.NoError(t, err)

	found := false
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if decl, ok := s.(*ir.VariableDeclaration); ok {
				for _, d := range decl.Declarators {
					if _, ok := d.Init.(*ir.Call); ok {
						found = true
					}
				}
			}
		}
	}
	assert.True(t, found, "a declaration whose initializer has a side effect must not be removed")
}
