package ssa

import (
	"testing"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/dom"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond constructs:
//
//	let x = 1;
//	if (cond) { x = 2; } else { x = 3; }
//	return x;
func buildDiamond(f *ir.Factory) *cfg.Graph {
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")),
	})
	assignThen := f.ExpressionStatement(ir.Position{}, f.Assignment(ir.Position{}, "=", f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")))
	assignElse := f.ExpressionStatement(ir.Position{}, f.Assignment(ir.Position{}, "=", f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 3.0, ir.LiteralNumber, "3")))
	ifStmt := f.If(ir.Position{}, f.Identifier(ir.Position{}, "cond"), assignThen, assignElse)
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "x"))

	return cfg.Build([]ir.Node{decl, ifStmt, ret})
}

func TestConstruct_InsertsPhiAtJoin(t *testing.T) {
	f := ir.NewFactory()
	g := buildDiamond(f)
	dom.Compute(g)

	st := Construct(g, f, nil)

	total := 0
	for _, phis := range st.Phis {
		total += len(phis)
	}
	assert.Equal(t, 1, total, "exactly one phi for x should be placed at the join block")

	for label, phis := range st.Phis {
		for _, phi := range phis {
			assert.Equal(t, "x", st.PhiNames[phi])
			assert.Equal(t, label, phi.Block)
			assert.Len(t, phi.Operands, len(g.Blocks[label].Predecessors))
		}
	}
}

func TestConstruct_ReturnUsesLatestVersion(t *testing.T) {
	f := ir.NewFactory()
	g := buildDiamond(f)
	dom.Compute(g)
	st := Construct(g, f, nil)

	var joinLabel string
	for label, phis := range st.Phis {
		if len(phis) > 0 {
			joinLabel = label
		}
	}
	require.NotEmpty(t, joinLabel)

	joinBlock := g.Blocks[joinLabel]
	var retSSA *ir.SSAIdentifier
	for _, stmt := range joinBlock.Statements {
		if ret, ok := stmt.(*ir.Return); ok {
			retSSA, _ = ret.Value.(*ir.SSAIdentifier)
		}
	}
	require.NotNil(t, retSSA, "return value should have been rewritten to an SSA identifier")
	assert.Equal(t, "x", retSSA.OriginalName)

	phi := st.Phis[joinLabel][0]
	op0, ok := phi.Operands[0].Value.(*ir.SSAIdentifier)
	require.True(t, ok)
	assert.Greater(t, op0.Version, 0)
}

func TestConstructDestruct_RoundTripRestoresPlainIdentifiers(t *testing.T) {
	f := ir.NewFactory()
	g := buildDiamond(f)
	dom.Compute(g)
	st := Construct(g, f, nil)
	Destruct(st)

	assert.Empty(t, st.Phis)

	var sawSSA bool
	var sawFinalReturn bool
	for _, b := range g.Blocks {
		for _, stmt := range b.Statements {
			if ret, ok := stmt.(*ir.Return); ok && ret.Value != nil {
				if _, ok := ret.Value.(*ir.Identifier); ok {
					sawFinalReturn = true
				}
				if _, ok := ret.Value.(*ir.SSAIdentifier); ok {
					sawSSA = true
				}
			}
			if _, ok := stmt.(*ir.SSAIdentifier); ok {
				sawSSA = true
			}
		}
	}
	assert.False(t, sawSSA, "no SSA-identifier node should survive destruction (invariant I2)")
	assert.True(t, sawFinalReturn, "return's value should be a plain identifier after destruction")
}

func TestConstruct_LoopCounterGetsPhiAtHeader(t *testing.T) {
	f := ir.NewFactory()
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "i"), f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0")),
	})
	cond := f.Binary(ir.Position{}, "<", f.Identifier(ir.Position{}, "i"), f.Literal(ir.Position{}, 10.0, ir.LiteralNumber, "10"))
	body := f.ExpressionStatement(ir.Position{}, f.Update(ir.Position{}, "++", f.Identifier(ir.Position{}, "i"), false))
	loop := f.While(ir.Position{}, cond, body)

	g := cfg.Build([]ir.Node{decl, loop})
	dom.Compute(g)
	st := Construct(g, f, nil)

	found := false
	for _, phis := range st.Phis {
		for _, phi := range phis {
			if st.PhiNames[phi] == "i" {
				found = true
			}
		}
	}
	assert.True(t, found, "loop counter should get a phi at the loop header")
}
