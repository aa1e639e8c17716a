package jsparser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/source"
)

func parse(t *testing.T, text string) []ir.Node {
	t.Helper()
	d := New()
	res, err := d.Parse(context.Background(), text, source.ParseOptions{Filename: "t.js"})
	require.NoError(t, err)
	return res.Nodes
}

func TestParse_VariableDeclarationWithHexLiteral(t *testing.T) {
	nodes := parse(t, `var _0xabc1 = 0x1F;`)
	require.Len(t, nodes, 1)
	decl, ok := nodes[0].(*ir.VariableDeclaration)
	require.True(t, ok)
	assert.Equal(t, ir.DeclVar, decl.DeclKind)
	require.Len(t, decl.Declarators, 1)
	name, ok := decl.Declarators[0].Name.(*ir.Identifier)
	require.True(t, ok)
	assert.Equal(t, "_0xabc1", name.Name)
	lit, ok := decl.Declarators[0].Init.(*ir.Literal)
	require.True(t, ok)
	assert.Equal(t, float64(31), lit.Value)
}

func TestParse_IfElseWithBlocks(t *testing.T) {
	nodes := parse(t, `if (a) { return 1; } else { return 2; }`)
	require.Len(t, nodes, 1)
	ifStmt, ok := nodes[0].(*ir.If)
	require.True(t, ok)
	_, ok = ifStmt.Test.(*ir.Identifier)
	require.True(t, ok)
	cons, ok := ifStmt.Consequent.(*ir.Block)
	require.True(t, ok)
	require.Len(t, cons.Body, 1)
	alt, ok := ifStmt.Alternate.(*ir.Block)
	require.True(t, ok)
	require.Len(t, alt.Body, 1)
}

func TestParse_ForLoopClassicShape(t *testing.T) {
	nodes := parse(t, `for (var i = 0; i < 10; i++) { foo(i); }`)
	require.Len(t, nodes, 1)
	forStmt, ok := nodes[0].(*ir.For)
	require.True(t, ok)
	require.NotNil(t, forStmt.Init)
	require.NotNil(t, forStmt.Test)
	update, ok := forStmt.Update.(*ir.Update)
	require.True(t, ok)
	assert.Equal(t, "++", update.Op)
}

func TestParse_BinaryPrecedence(t *testing.T) {
	nodes := parse(t, `var x = a + b * c;`)
	decl := nodes[0].(*ir.VariableDeclaration)
	top, ok := decl.Declarators[0].Init.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", top.Op)
	_, ok = top.Left.(*ir.Identifier)
	require.True(t, ok)
	rhs, ok := top.Right.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", rhs.Op)
}

func TestParse_TernaryAndLogical(t *testing.T) {
	nodes := parse(t, `var x = a && b ? c : d;`)
	decl := nodes[0].(*ir.VariableDeclaration)
	cond, ok := decl.Declarators[0].Init.(*ir.Conditional)
	require.True(t, ok)
	logical, ok := cond.Test.(*ir.Logical)
	require.True(t, ok)
	assert.Equal(t, "&&", logical.Op)
}

func TestParse_CallAndMemberChain(t *testing.T) {
	nodes := parse(t, `foo.bar(1, 2)[0];`)
	stmt, ok := nodes[0].(*ir.ExpressionStatement)
	require.True(t, ok)
	member, ok := stmt.Expr.(*ir.Member)
	require.True(t, ok)
	assert.True(t, member.Computed)
	call, ok := member.Object.(*ir.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	callee, ok := call.Callee.(*ir.Member)
	require.True(t, ok)
	assert.False(t, callee.Computed)
}

func TestParse_SwitchStatement(t *testing.T) {
	nodes := parse(t, `switch (x) { case 1: a(); break; default: b(); }`)
	sw, ok := nodes[0].(*ir.Switch)
	require.True(t, ok)
	require.Len(t, sw.Cases, 2)
	assert.False(t, sw.Cases[0].IsDefault())
	assert.True(t, sw.Cases[1].IsDefault())
}

func TestParse_FunctionDeclarationAndReturn(t *testing.T) {
	nodes := parse(t, `function add(a, b) { return a + b; }`)
	fn, ok := nodes[0].(*ir.FunctionDeclaration)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name.Name)
	require.Len(t, fn.Params, 2)
	require.Len(t, fn.Body.Body, 1)
	_, ok = fn.Body.Body[0].(*ir.Return)
	require.True(t, ok)
}

func TestParse_ReportsErrorOnUnterminatedString(t *testing.T) {
	d := New()
	_, err := d.Parse(context.Background(), `var x = "unterminated;`, source.ParseOptions{})
	assert.Error(t, err)
}

func TestParse_ObjectLiteralShorthandAndMethod(t *testing.T) {
	nodes := parse(t, `var o = { a, b: 1, c() { return 2; } };`)
	decl := nodes[0].(*ir.VariableDeclaration)
	obj, ok := decl.Declarators[0].Init.(*ir.Object)
	require.True(t, ok)
	require.Len(t, obj.Properties, 3)
}
