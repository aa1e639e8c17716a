package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_MonotonicIdentity(t *testing.T) {
	f := NewFactory()
	a := f.Identifier(Position{}, "a")
	b := f.Identifier(Position{}, "b")
	c := f.Literal(Position{}, 1.0, LiteralNumber, "1")

	assert.Equal(t, NodeID(1), a.ID())
	assert.Equal(t, NodeID(2), b.ID())
	assert.Equal(t, NodeID(3), c.ID())
}

func TestFactory_Reset(t *testing.T) {
	f := NewFactory()
	f.Identifier(Position{}, "a")
	f.Identifier(Position{}, "b")
	f.Reset()
	fresh := f.Identifier(Position{}, "c")
	assert.Equal(t, NodeID(1), fresh.ID())
}

func TestFactory_NilChildPanics(t *testing.T) {
	f := NewFactory()
	require.Panics(t, func() {
		f.If(Position{}, nil, f.Identifier(Position{}, "x"), nil)
	})
}

func TestFactory_SentinelsInsteadOfNil(t *testing.T) {
	f := NewFactory()
	blk := f.EmptyBlock(Position{})
	assert.Equal(t, KindBlock, blk.Kind())
	assert.Empty(t, blk.Body)

	undef := f.SentinelUndefined(Position{})
	assert.Equal(t, LiteralNull, undef.LitKind)
}

func TestIsExpressionIsStatement(t *testing.T) {
	f := NewFactory()
	id := f.Identifier(Position{}, "x")
	blk := f.EmptyBlock(Position{})

	assert.True(t, IsExpression(id))
	assert.False(t, IsStatement(id))
	assert.True(t, IsStatement(blk))
	assert.False(t, IsExpression(blk))
}

func TestGetPatternName(t *testing.T) {
	f := NewFactory()
	id := f.Identifier(Position{}, "value")
	name, ok := GetPatternName(id)
	require.True(t, ok)
	assert.Equal(t, "value", name)

	_, ok = GetPatternName(f.Literal(Position{}, 1.0, LiteralNumber, "1"))
	assert.False(t, ok)
}

func TestLiteralValue(t *testing.T) {
	f := NewFactory()
	lit := f.Literal(Position{}, "hi", LiteralString, `"hi"`)
	v, kind, ok := LiteralValue(lit)
	require.True(t, ok)
	assert.Equal(t, "hi", v)
	assert.Equal(t, LiteralString, kind)
}

func TestNodeMap_ReplaceAndReindex(t *testing.T) {
	f := NewFactory()
	a := f.Identifier(Position{}, "a")
	stmt := f.ExpressionStatement(Position{}, a)
	prog := f.Program(Position{}, []Node{stmt})

	m := NewNodeMap(prog)
	assert.Equal(t, 3, m.Len())

	b := f.Identifier(Position{}, "b")
	m.Replace(b)
	assert.Same(t, b, m.Get(b.ID()))

	m.Delete(a.ID())
	assert.Nil(t, m.Get(a.ID()))

	m.Reindex(prog)
	// a is still referenced from stmt, so reindexing brings it back.
	assert.NotNil(t, m.Get(a.ID()))
}

func TestWalk_PreOrderLeftToRight(t *testing.T) {
	f := NewFactory()
	left := f.Identifier(Position{}, "left")
	right := f.Identifier(Position{}, "right")
	bin := f.Binary(Position{}, "+", left, right)

	var order []NodeID
	Walk(bin, func(n Node) { order = append(order, n.ID()) })

	assert.Equal(t, []NodeID{bin.ID(), left.ID(), right.ID()}, order)
}
