package stringdecoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/trace"
)

func TestPass_FoldsCoveredCallSite(t *testing.T) {
	f := ir.NewFactory()

	decoderName := f.Identifier(ir.Position{}, "_0xdec")
	decoder := f.FunctionDeclaration(ir.Position{}, decoderName,
		[]*ir.Identifier{f.Identifier(ir.Position{}, "i")},
		f.Block(ir.Position{}, nil), false, false)

	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "_0xdec"),
		[]ir.Node{f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0")}, false)
	useSite := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, f.Identifier(ir.Position{}, "msg"), call)})

	g := cfg.Build([]ir.Node{decoder, useSite})
	nodes := ir.NewNodeMap(f.Program(ir.Position{}, []ir.Node{decoder, useSite}))
	state := &pass.IRState{Graph: g, Factory: f, Nodes: nodes, Metadata: map[string]any{}}

	tr := trace.NewTrace([]trace.Event{
		{Kind: trace.FunctionCall, Callee: "_0xdec", NodeID: call.ID(), Args: []any{0.0}, Result: "hello"},
	})

	res, err := New(tr).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Metrics.NodesChanged)

	declared := useSite.Declarators[0]
	lit, ok := declared.Init.(*ir.Literal)
	require.True(t, ok, "call site should have been folded to a literal")
	assert.Equal(t, "hello", lit.Value)
	assert.Equal(t, ir.LiteralString, lit.LitKind)
}

func TestPass_LeavesUncoveredCallSiteIntact(t *testing.T) {
	f := ir.NewFactory()

	decoderName := f.Identifier(ir.Position{}, "_0xdec")
	decoder := f.FunctionDeclaration(ir.Position{}, decoderName,
		[]*ir.Identifier{f.Identifier(ir.Position{}, "i")},
		f.Block(ir.Position{}, nil), false, false)

	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "_0xdec"),
		[]ir.Node{f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0")}, false)
	useSite := f.ExpressionStatement(ir.Position{}, call)

	g := cfg.Build([]ir.Node{decoder, useSite})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(trace.Trace{}).Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Same(t, call, useSite.Expr)
}

func TestPass_DisqualifiesNondeterministicDecoder(t *testing.T) {
	f := ir.NewFactory()

	decoderName := f.Identifier(ir.Position{}, "_0xdec")
	decoder := f.FunctionDeclaration(ir.Position{}, decoderName,
		[]*ir.Identifier{f.Identifier(ir.Position{}, "i")},
		f.Block(ir.Position{}, nil), false, false)

	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "_0xdec"),
		[]ir.Node{f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0")}, false)
	useSite := f.ExpressionStatement(ir.Position{}, call)

	g := cfg.Build([]ir.Node{decoder, useSite})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	tr := trace.NewTrace([]trace.Event{
		{Kind: trace.FunctionCall, Callee: "_0xdec", NodeID: call.ID(), Args: []any{0.0}, Result: "first"},
		{Kind: trace.FunctionCall, Callee: "_0xdec", NodeID: call.ID(), Args: []any{0.0}, Result: "second"},
	})

	res, err := New(tr).Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "stringdecoder.nondeterministic", res.Warnings[0].Code)
	assert.Same(t, call, useSite.Expr)
}

func TestPass_FindsDecoderCallInsideNestedFunctionBody(t *testing.T) {
	f := ir.NewFactory()

	decoderName := f.Identifier(ir.Position{}, "_0xdec")
	decoder := f.FunctionDeclaration(ir.Position{}, decoderName,
		[]*ir.Identifier{f.Identifier(ir.Position{}, "i")},
		f.Block(ir.Position{}, nil), false, false)

	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "_0xdec"),
		[]ir.Node{f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")}, false)
	innerReturn := f.Return(ir.Position{}, call)
	outerName := f.Identifier(ir.Position{}, "greet")
	outer := f.FunctionDeclaration(ir.Position{}, outerName, nil,
		f.Block(ir.Position{}, []ir.Node{innerReturn}), false, false)

	g := cfg.Build([]ir.Node{decoder, outer})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	tr := trace.NewTrace([]trace.Event{
		{Kind: trace.FunctionCall, Callee: "_0xdec", NodeID: call.ID(), Args: []any{1.0}, Result: "world"},
	})

	res, err := New(tr).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	lit, ok := innerReturn.Value.(*ir.Literal)
	require.True(t, ok, "call inside the nested function body should have been folded")
	assert.Equal(t, "world", lit.Value)
}

func TestPass_IgnoresFunctionNeverObservedInTrace(t *testing.T) {
	f := ir.NewFactory()
	decoderName := f.Identifier(ir.Position{}, "_0xdec")
	decoder := f.FunctionDeclaration(ir.Position{}, decoderName,
		[]*ir.Identifier{f.Identifier(ir.Position{}, "i")},
		f.Block(ir.Position{}, nil), false, false)

	g := cfg.Build([]ir.Node{decoder})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(trace.Trace{}).Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Warnings)
}
