package constprop

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

func TestPass_ReplacesUseOfLiteralDefinition(t *testing.T) {
	f := ir.NewFactory()
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 41.0, ir.LiteralNumber, "41")),
	})
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "x"))

	g := cfg.Build([]ir.Node{decl, ret})
	dom.Compute(g)
	st := ssa.Construct(g, f, nil)

	state := &pass.IRState{Graph: g, Factory: f, SSA: st, Metadata: map[string]any{}}
	p := New()
	res, err := p.Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	retStmt := g.Blocks[g.Entry].Statements[len(g.Blocks[g.Entry].Statements)-1].(*ir.Return)
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if r, ok := s.(*ir.Return); ok {
				retStmt = r
			}
		}
	}
	lit, ok := retStmt.Value.(*ir.Literal)
	require.True(t, ok, "return value should have been rewritten to the literal")
	assert.Equal(t, 41.0, lit.Value)
}

func TestPass_DiamondAssignmentNotFoldedThroughPhi(t *testing.T) {
	f := ir.NewFactory()
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")),
	})
	assignThen := f.ExpressionStatement(ir.Position{}, f.Assignment(ir.Position{}, "=", f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")))
	assignElse := f.ExpressionStatement(ir.Position{}, f.Assignment(ir.Position{}, "=", f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 3.0, ir.LiteralNumber, "3")))
	ifStmt := f.If(ir.Position{}, f.Identifier(ir.Position{}, "cond"), assignThen, assignElse)
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "x"))

	g := cfg.Build([]ir.Node{decl, ifStmt, ret})
	dom.Compute(g)
	st := ssa.Construct(g, f, nil)

	state := &pass.IRState{Graph: g, Factory: f, SSA: st, Metadata: map[string]any{}}
	p := New()
	_, err := p.Run(state)
	require.NoError(t, err)

	var retStmt *ir.Return
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if r, ok := s.(*ir.Return); ok {
				retStmt = r
			}
		}
	}
	require.NotNil(t, retStmt)
	_, isSSA := retStmt.Value.(*ir.SSAIdentifier)
	assert.True(t, isSSA, "return fed by a phi should stay an SSA identifier, not be folded to either branch's literal")
}

func TestPass_JoinsEqualLiteralsAcrossPhiToConstant(t *testing.T) {
	f := ir.NewFactory()
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")),
	})
	assignThen := f.ExpressionStatement(ir.Position{}, f.Assignment(ir.Position{}, "=", f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 9.0, ir.LiteralNumber, "9")))
	assignElse := f.ExpressionStatement(ir.Position{}, f.Assignment(ir.Position{}, "=", f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 9.0, ir.LiteralNumber, "9")))
	ifStmt := f.If(ir.Position{}, f.Identifier(ir.Position{}, "cond"), assignThen, assignElse)
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "x"))

	g := cfg.Build([]ir.Node{decl, ifStmt, ret})
	dom.Compute(g)
	st := ssa.Construct(g, f, nil)

	state := &pass.IRState{Graph: g, Factory: f, SSA: st, Metadata: map[string]any{}}
	_, err := New().Run(state)
	require.NoError(t, err)

	var retStmt *ir.Return
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if r, ok := s.(*ir.Return); ok {
				retStmt = r
			}
		}
	}
	require.NotNil(t, retStmt)
	lit, ok := retStmt.Value.(*ir.Literal)
	require.True(t, ok, "both branches assigning the same literal should join to that Constant, not stay a phi")
	assert.Equal(t, 9.0, lit.Value)
}

func TestPass_FoldsPureCallWithConstantArguments(t *testing.T) {
	f := ir.NewFactory()
	a := f.Identifier(ir.Position{}, "a")
	b := f.Identifier(ir.Position{}, "b")
	addBody := f.Block(ir.Position{}, []ir.Node{
		f.Return(ir.Position{}, f.Binary(ir.Position{}, "+", f.Identifier(ir.Position{}, "a"), f.Identifier(ir.Position{}, "b"))),
	})
	addFn := f.FunctionDeclaration(ir.Position{}, f.Identifier(ir.Position{}, "add"), []*ir.Identifier{a, b}, addBody, false, false)

	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "add"), []ir.Node{
		f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2"),
		f.Literal(ir.Position{}, 3.0, ir.LiteralNumber, "3"),
	}, false)
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet, []*ir.Declarator{
		f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "sum"), call),
	})
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "sum"))

	g := cfg.Build([]ir.Node{addFn, decl, ret})
	dom.Compute(g)
	st := ssa.Construct(g, f, nil)

	state := &pass.IRState{Graph: g, Factory: f, SSA: st, Metadata: map[string]any{}}
	_, err := New().Run(state)
	require.NoError(t, err)

	var retStmt *ir.Return
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if r, ok := s.(*ir.Return); ok {
				retStmt = r
			}
		}
	}
	require.NotNil(t, retStmt)
	lit, ok := retStmt.Value.(*ir.Literal)
	require.True(t, ok, "a call to a pure function with constant arguments should fold to a literal")
	assert.Equal(t, 5.0, lit.Value)
}
