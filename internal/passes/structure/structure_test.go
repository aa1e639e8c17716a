package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/dom"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

func entryBlock(g *cfg.Graph) *cfg.Block { return g.Blocks[g.Entry] }

func TestFoldGuardedReturn_TwoWayBecomesTernary(t *testing.T) {
	f := ir.NewFactory()
	a := f.Identifier(ir.Position{}, "a")
	one := f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")
	two := f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")
	ifStmt := f.If(ir.Position{}, a, f.Return(ir.Position{}, one), f.Return(ir.Position{}, two))

	g := cfg.Build([]ir.Node{ifStmt})
	dom.Compute(g)
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New().Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	b := entryBlock(g)
	require.Len(t, b.Statements, 1)
	ret, ok := b.Statements[0].(*ir.Return)
	require.True(t, ok, "guard should have folded to a single return")
	cond, ok := ret.Value.(*ir.Conditional)
	require.True(t, ok)
	assert.Same(t, a, cond.Test)
	assert.Same(t, one, cond.Consequent)
	assert.Same(t, two, cond.Alternate)
}

func TestFoldGuardedReturn_ComposesChainAcrossRounds(t *testing.T) {
	f := ir.NewFactory()
	a := f.Identifier(ir.Position{}, "a")
	bIdent := f.Identifier(ir.Position{}, "b")
	one := f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")
	two := f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")
	three := f.Literal(ir.Position{}, 3.0, ir.LiteralNumber, "3")

	ifA := f.If(ir.Position{}, a, f.Return(ir.Position{}, one), nil)
	ifB := f.If(ir.Position{}, bIdent, f.Return(ir.Position{}, two), nil)
	finalReturn := f.Return(ir.Position{}, three)

	g := cfg.Build([]ir.Node{ifA, ifB, finalReturn})
	dom.Compute(g)
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	p := New()
	for round := 0; round < 4; round++ {
		res, err := p.Run(state)
		require.NoError(t, err)
		dom.Compute(g)
		if !res.Changed {
			break
		}
	}

	b := entryBlock(g)
	require.Len(t, b.Statements, 1)
	ret, ok := b.Statements[0].(*ir.Return)
	require.True(t, ok, "chain should have fully collapsed into one return")
	outer, ok := ret.Value.(*ir.Conditional)
	require.True(t, ok)
	assert.Same(t, a, outer.Test)
	assert.Same(t, one, outer.Consequent)
	inner, ok := outer.Alternate.(*ir.Conditional)
	require.True(t, ok, "inner guard should be nested in the outer ternary's alternate")
	assert.Same(t, bIdent, inner.Test)
	assert.Same(t, two, inner.Consequent)
	assert.Same(t, three, inner.Alternate)
}

func TestNegateInfiniteLoopGuard_RewritesTopOfBodyBreak(t *testing.T) {
	f := ir.NewFactory()
	c := f.Identifier(ir.Position{}, "c")
	foo := f.ExpressionStatement(ir.Position{}, f.Call(ir.Position{}, f.Identifier(ir.Position{}, "foo"), nil, false))
	breakIf := f.If(ir.Position{}, c, f.Break(ir.Position{}, ""), nil)
	trueLit := f.Literal(ir.Position{}, true, ir.LiteralBoolean, "true")
	loop := f.While(ir.Position{}, trueLit, f.Block(ir.Position{}, []ir.Node{breakIf, foo}))

	g := cfg.Build([]ir.Node{loop})
	dom.Compute(g)
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New().Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	var header *cfg.Block
	for _, b := range g.Blocks {
		if len(b.Statements) == 1 {
			if _, ok := b.Statements[0].(*ir.While); ok {
				header = b
			}
		}
	}
	require.NotNil(t, header, "loop header block should survive")
	rewritten := header.Statements[0].(*ir.While)
	assert.Same(t, loop, rewritten)
	not, ok := rewritten.Test.(*ir.Unary)
	require.True(t, ok, "test should have been negated")
	assert.Equal(t, "!", not.Op)
	assert.Same(t, c, not.Operand)

	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if _, ok := s.(*ir.Break); ok {
				t.Fatalf("the now-redundant break should have been removed")
			}
		}
	}

	var foundFoo bool
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if s == foo {
				foundFoo = true
			}
		}
	}
	assert.True(t, foundFoo, "the rest of the loop body should survive intact")
}

func TestMergeEqualityChainIntoSwitch_TwoCases(t *testing.T) {
	f := ir.NewFactory()
	x := f.Identifier(ir.Position{}, "x")
	one := f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")
	two := f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")

	callA := f.ExpressionStatement(ir.Position{}, f.Call(ir.Position{}, f.Identifier(ir.Position{}, "a"), nil, false))
	callB := f.ExpressionStatement(ir.Position{}, f.Call(ir.Position{}, f.Identifier(ir.Position{}, "b"), nil, false))
	callC := f.ExpressionStatement(ir.Position{}, f.Call(ir.Position{}, f.Identifier(ir.Position{}, "c"), nil, false))

	testOuter := f.Binary(ir.Position{}, "===", x, one)
	testInner := f.Binary(ir.Position{}, "===", f.Identifier(ir.Position{}, "x"), two)
	ifInner := f.If(ir.Position{}, testInner, callB, callC)
	ifOuter := f.If(ir.Position{}, testOuter, callA, ifInner)

	g := cfg.Build([]ir.Node{ifOuter})
	dom.Compute(g)
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New().Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	b := entryBlock(g)
	require.Len(t, b.Statements, 1)
	marker, ok := b.Statements[0].(*cfg.SwitchMarker)
	require.True(t, ok, "chain should have folded into one switch marker")
	assert.Same(t, x, marker.Discriminant)
	require.Len(t, marker.Cases, 2)
	assert.Same(t, one, marker.Cases[0].Test)
	assert.Same(t, two, marker.Cases[1].Test)
	require.Len(t, marker.Cases[0].Consequent, 1)
	assert.Same(t, callA, marker.Cases[0].Consequent[0])
	require.Len(t, marker.Cases[1].Consequent, 1)
	assert.Same(t, callB, marker.Cases[1].Consequent[0])

	var foundC bool
	for _, bl := range g.Blocks {
		for _, s := range bl.Statements {
			if s == callC {
				foundC = true
			}
		}
	}
	assert.True(t, foundC, "the final else should survive as the switch's no-match fallthrough")
}

func TestPass_LeavesOrdinaryIfIntact(t *testing.T) {
	f := ir.NewFactory()
	a := f.Identifier(ir.Position{}, "a")
	call := f.ExpressionStatement(ir.Position{}, f.Call(ir.Position{}, f.Identifier(ir.Position{}, "log"), nil, false))
	ifStmt := f.If(ir.Position{}, a, call, nil)

	g := cfg.Build([]ir.Node{ifStmt})
	dom.Compute(g)
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New().Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}
