package rename

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/naming"
	"github.com/deobfuscator/core/internal/pass"
)

func TestPass_RenamesHexPrefixedVariableByInitializerKind(t *testing.T) {
	f := ir.NewFactory()
	name := f.Identifier(ir.Position{}, "_0xabc1")
	str := f.Literal(ir.Position{}, "hello", ir.LiteralString, `"hello"`)
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, name, str)})

	use := f.Identifier(ir.Position{}, "_0xabc1")
	useSite := f.ExpressionStatement(ir.Position{}, use)

	g := cfg.Build([]ir.Node{decl, useSite})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	assert.Equal(t, "str", name.Name)
	assert.Equal(t, "str", use.Name)
}

func TestPass_LeavesOrdinaryNameIntact(t *testing.T) {
	f := ir.NewFactory()
	name := f.Identifier(ir.Position{}, "message")
	str := f.Literal(ir.Position{}, "hi", ir.LiteralString, `"hi"`)
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, name, str)})

	g := cfg.Build([]ir.Node{decl})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "message", name.Name)
}

func TestPass_ExemptsConventionalLoopCounter(t *testing.T) {
	f := ir.NewFactory()
	iName := f.Identifier(ir.Position{}, "i")
	zero := f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0")
	forInit := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, iName, zero)})
	iUse := f.Identifier(ir.Position{}, "i")
	test := f.Binary(ir.Position{}, "<", iUse, f.Literal(ir.Position{}, 10.0, ir.LiteralNumber, "10"))
	update := f.Update(ir.Position{}, "++", f.Identifier(ir.Position{}, "i"), false)
	body := f.Block(ir.Position{}, nil)
	forStmt := f.For(ir.Position{}, forInit, test, update, body)

	g := cfg.Build([]ir.Node{forStmt})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "i", iName.Name)
}

func TestPass_RenamesSingleLetterNonLoopVariable(t *testing.T) {
	f := ir.NewFactory()
	xName := f.Identifier(ir.Position{}, "x")
	arr := f.Array(ir.Position{}, nil)
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, xName, arr)})

	g := cfg.Build([]ir.Node{decl})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "arr", xName.Name)
}

func TestPass_RenamesClosureCaptureTogetherWithOuterBinding(t *testing.T) {
	f := ir.NewFactory()
	outerName := f.Identifier(ir.Position{}, "_0xdead")
	obj := f.Object(ir.Position{}, nil)
	outerDecl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, outerName, obj)})

	captureUse := f.Identifier(ir.Position{}, "_0xdead")
	innerReturn := f.Return(ir.Position{}, captureUse)
	innerFn := f.FunctionDeclaration(ir.Position{}, f.Identifier(ir.Position{}, "closure"), nil,
		f.Block(ir.Position{}, []ir.Node{innerReturn}), false, false)

	g := cfg.Build([]ir.Node{outerDecl, innerFn})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "obj", outerName.Name)
	assert.Equal(t, "obj", captureUse.Name, "the nested closure's reference to the outer binding must be renamed together with it")
}

func TestPass_DoesNotRenamePropertyNames(t *testing.T) {
	f := ir.NewFactory()
	objName := f.Identifier(ir.Position{}, "_0xfeed")
	objInit := f.Object(ir.Position{}, nil)
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, objName, objInit)})

	objUse := f.Identifier(ir.Position{}, "_0xfeed")
	prop := f.Identifier(ir.Position{}, "i") // non-computed property name, looks short but must not be touched
	member := f.Member(ir.Position{}, objUse, prop, false, false)
	useSite := f.ExpressionStatement(ir.Position{}, member)

	g := cfg.Build([]ir.Node{decl, useSite})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "obj", objName.Name)
	assert.Equal(t, "obj", objUse.Name)
	assert.Equal(t, "i", prop.Name, "a non-computed member property is a name, not a variable reference")
}

// fixedHelper is a naming.Helper that always returns the same
// suggestion, for exercising the helper-consultation path.
type fixedHelper struct {
	suggestion naming.Suggestion
	err        error
}

func (h fixedHelper) SuggestName(context.Context, string, naming.Context) (naming.Suggestion, error) {
	return h.suggestion, h.err
}

func TestPass_AppliesConfidentHelperSuggestion(t *testing.T) {
	f := ir.NewFactory()
	name := f.Identifier(ir.Position{}, "_0xbeef")
	num := f.Literal(ir.Position{}, 42.0, ir.LiteralNumber, "42")
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, name, num)})

	g := cfg.Build([]ir.Node{decl})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	helper := fixedHelper{suggestion: naming.Suggestion{Name: "retryCount", Confidence: 0.95}}
	res, err := New(helper).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "retryCount", name.Name)
}

func TestPass_FallsBackWhenHelperSuggestionBelowThreshold(t *testing.T) {
	f := ir.NewFactory()
	name := f.Identifier(ir.Position{}, "_0xbeef")
	num := f.Literal(ir.Position{}, 42.0, ir.LiteralNumber, "42")
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, name, num)})

	g := cfg.Build([]ir.Node{decl})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	helper := fixedHelper{suggestion: naming.Suggestion{Name: "retryCount", Confidence: 0.2}}
	p := New(helper)
	res, err := p.Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "num", name.Name)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "rename.low-confidence", res.Warnings[0].Code)
}

func TestPass_RejectsInvalidHelperSuggestion(t *testing.T) {
	f := ir.NewFactory()
	name := f.Identifier(ir.Position{}, "_0xbeef")
	num := f.Literal(ir.Position{}, 42.0, ir.LiteralNumber, "42")
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, name, num)})

	g := cfg.Build([]ir.Node{decl})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	helper := fixedHelper{suggestion: naming.Suggestion{Name: "class", Confidence: 0.99}}
	res, err := New(helper).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "num", name.Name, "a reserved word suggestion must fall back to the heuristic")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "rename.invalid-suggestion", res.Warnings[0].Code)
}

func TestPass_AvoidsCollisionWithinScope(t *testing.T) {
	f := ir.NewFactory()
	aName := f.Identifier(ir.Position{}, "num")
	aInit := f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1")
	aDecl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, aName, aInit)})

	bName := f.Identifier(ir.Position{}, "_0xbead")
	bInit := f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")
	bDecl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, bName, bInit)})

	g := cfg.Build([]ir.Node{aDecl, bDecl})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "num", aName.Name)
	assert.Equal(t, "num1", bName.Name, "colliding with the already-occupied heuristic name must suffix with an integer")
}

func TestPass_PromotesArgumentNameFromKnownCalleeParam(t *testing.T) {
	f := ir.NewFactory()
	param := f.Identifier(ir.Position{}, "userId")
	fnName := f.Identifier(ir.Position{}, "lookup")
	fnDecl := f.FunctionDeclaration(ir.Position{}, fnName, []*ir.Identifier{param},
		f.Block(ir.Position{}, nil), false, false)

	argName := f.Identifier(ir.Position{}, "_0xcafe")
	argInit := f.Literal(ir.Position{}, 7.0, ir.LiteralNumber, "7")
	argDecl := f.VariableDeclaration(ir.Position{}, ir.DeclLet,
		[]*ir.Declarator{f.Declarator(ir.Position{}, argName, argInit)})

	argUse := f.Identifier(ir.Position{}, "_0xcafe")
	call := f.Call(ir.Position{}, f.Identifier(ir.Position{}, "lookup"), []ir.Node{argUse}, false)
	callSite := f.ExpressionStatement(ir.Position{}, call)

	g := cfg.Build([]ir.Node{fnDecl, argDecl, callSite})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New(nil).Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "userId", argName.Name)
	assert.Equal(t, "userId", argUse.Name)
}
