package jsprinter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/dom"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/source"
)

func renderNodes(t *testing.T, nodes []ir.Node, f *ir.Factory) string {
	t.Helper()
	g := cfg.Build(nodes)
	dom.Compute(g)
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}
	res, err := New().Print(context.Background(), state, source.PrintOptions{})
	require.NoError(t, err)
	return res.Code
}

func TestPrint_IfElseReturns(t *testing.T) {
	f := ir.NewFactory()
	a := f.Identifier(ir.Position{}, "a")
	one := f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")
	two := f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")
	ifStmt := f.If(ir.Position{}, a, f.Block(ir.Position{}, []ir.Node{f.Return(ir.Position{}, one)}),
		f.Block(ir.Position{}, []ir.Node{f.Return(ir.Position{}, two)}))

	out := renderNodes(t, []ir.Node{ifStmt}, f)
	assert.Contains(t, out, "if (a) {")
	assert.Contains(t, out, "return 1;")
	assert.Contains(t, out, "} else {")
	assert.Contains(t, out, "return 2;")
}

func TestPrint_WhileLoop(t *testing.T) {
	f := ir.NewFactory()
	i := f.Identifier(ir.Position{}, "i")
	ten := f.Literal(ir.Position{}, 10.0, ir.LiteralNumber, "10")
	test := f.Binary(ir.Position{}, "<", i, ten)
	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "foo"), []ir.Node{i}, false)
	body := f.Block(ir.Position{}, []ir.Node{f.ExpressionStatement(ir.Position{}, call)})
	loop := f.While(ir.Position{}, test, body)

	out := renderNodes(t, []ir.Node{loop}, f)
	assert.Contains(t, out, "while (i < 10) {")
	assert.Contains(t, out, "foo(i);")
}

func TestPrint_ForLoopPrintsInitSeparatelyFromHeader(t *testing.T) {
	f := ir.NewFactory()
	iName := f.Identifier(ir.Position{}, "i")
	zero := f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0")
	ten := f.Literal(ir.Position{}, 10.0, ir.LiteralNumber, "10")
	init := f.VariableDeclaration(ir.Position{}, ir.DeclVar, []*ir.Declarator{f.Declarator(ir.Position{}, iName, zero)})
	test := f.Binary(ir.Position{}, "<", f.Identifier(ir.Position{}, "i"), ten)
	update := f.Update(ir.Position{}, "++", f.Identifier(ir.Position{}, "i"), false)
	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "foo"), []ir.Node{f.Identifier(ir.Position{}, "i")}, false)
	body := f.Block(ir.Position{}, []ir.Node{f.ExpressionStatement(ir.Position{}, call)})
	forStmt := f.For(ir.Position{}, init, test, update, body)

	out := renderNodes(t, []ir.Node{forStmt}, f)
	assert.Contains(t, out, "var i = 0;")
	assert.Contains(t, out, "for (; i < 10; i++) {")
	assert.Contains(t, out, "foo(i);")
}

func TestPrint_SwitchWithFallthroughAndDefault(t *testing.T) {
	f := ir.NewFactory()
	disc := f.Identifier(ir.Position{}, "x")
	one := f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")
	aCall := f.ExpressionStatement(ir.Position{}, f.Call(ir.Position{}, f.Identifier(ir.Position{}, "a"), nil, false))
	brk := f.Break(ir.Position{}, "")
	bCall := f.ExpressionStatement(ir.Position{}, f.Call(ir.Position{}, f.Identifier(ir.Position{}, "b"), nil, false))
	cases := []*ir.SwitchCase{
		f.SwitchCase(ir.Position{}, one, []ir.Node{aCall, brk}),
		f.SwitchCase(ir.Position{}, nil, []ir.Node{bCall}),
	}
	sw := f.Switch(ir.Position{}, disc, cases)

	out := renderNodes(t, []ir.Node{sw}, f)
	assert.Contains(t, out, "switch (x) {")
	assert.Contains(t, out, "case 1:")
	assert.Contains(t, out, "a();")
	assert.Contains(t, out, "break;")
	assert.Contains(t, out, "default:")
	assert.Contains(t, out, "b();")
}

func TestPrint_NestedFunctionBodyPrintedAsPlainTree(t *testing.T) {
	f := ir.NewFactory()
	name := f.Identifier(ir.Position{}, "add")
	a := f.Identifier(ir.Position{}, "a")
	b := f.Identifier(ir.Position{}, "b")
	ret := f.Return(ir.Position{}, f.Binary(ir.Position{}, "+", f.Identifier(ir.Position{}, "a"), f.Identifier(ir.Position{}, "b")))
	body := f.Block(ir.Position{}, []ir.Node{ret})
	fn := f.FunctionDeclaration(ir.Position{}, name, []*ir.Identifier{a, b}, body, false, false)

	out := renderNodes(t, []ir.Node{fn}, f)
	assert.Contains(t, out, "function add(a, b) {")
	assert.Contains(t, out, "return a + b;")
}

func TestPrint_BinaryPrecedenceNeedsParens(t *testing.T) {
	f := ir.NewFactory()
	a := f.Identifier(ir.Position{}, "a")
	b := f.Identifier(ir.Position{}, "b")
	c := f.Identifier(ir.Position{}, "c")
	inner := f.Binary(ir.Position{}, "+", b, c)
	outer := f.Binary(ir.Position{}, "*", a, inner)
	stmt := f.ExpressionStatement(ir.Position{}, outer)

	out := renderNodes(t, []ir.Node{stmt}, f)
	assert.True(t, strings.Contains(out, "a * (b + c)"))
}
