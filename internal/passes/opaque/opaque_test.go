package opaque

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

func TestPass_CollapsesTautologicalIf(t *testing.T) {
	f := ir.NewFactory()
	x := f.Identifier(ir.Position{}, "x")
	test := f.Binary(ir.Position{}, "===", x,
		f.Identifier(ir.Position{}, "x"))

	thenRet := f.Return(ir.Position{}, f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1"))
	elseRet := f.Return(ir.Position{}, f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2"))
	ifStmt := f.If(ir.Position{}, test, thenRet, elseRet)

	g := cfg.Build([]ir.Node{ifStmt})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New().Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if _, ok := s.(*cfg.IfMarker); ok {
				t.Fatalf("if marker for an always-true guard should have been removed")
			}
		}
	}

	for _, e := range g.Edges {
		assert.NotEqual(t, cfg.EdgeConditionalFalse, e.Type, "no conditional edge should survive a collapsed guard")
		assert.NotEqual(t, cfg.EdgeConditionalTrue, e.Type, "no conditional edge should survive a collapsed guard")
	}
}

func TestPass_LeavesUnderdeterminedGuardIntact(t *testing.T) {
	f := ir.NewFactory()
	test := f.Binary(ir.Position{}, ">", f.Identifier(ir.Position{}, "x"), f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0"))
	thenRet := f.Return(ir.Position{}, f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1"))
	ifStmt := f.If(ir.Position{}, test, thenRet, nil)

	g := cfg.Build([]ir.Node{ifStmt})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New().Run(state)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	foundMarker := false
	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if _, ok := s.(*cfg.IfMarker); ok {
				foundMarker = true
			}
		}
	}
	assert.True(t, foundMarker, "an unprovable guard must be left in place")
}

func TestPass_FoldsTernaryWithXorSelfTest(t *testing.T) {
	f := ir.NewFactory()
	x := f.Identifier(ir.Position{}, "x")
	test := f.Binary(ir.Position{}, "===",
		f.Binary(ir.Position{}, "^", x, f.Identifier(ir.Position{}, "x")),
		f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0"))
	cond := f.Conditional(ir.Position{}, test,
		f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1"),
		f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2"))
	ret := f.Return(ir.Position{}, cond)

	g := cfg.Build([]ir.Node{ret})
	state := &pass.IRState{Graph: g, Factory: f, Metadata: map[string]any{}}

	res, err := New().Run(state)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	for _, b := range g.Blocks {
		for _, s := range b.Statements {
			if r, ok := s.(*ir.Return); ok {
				lit, ok := r.Value.(*ir.Literal)
				require.True(t, ok, "ternary should have folded to its consequent literal")
				assert.Equal(t, 1.0, lit.Value)
			}
		}
	}
}

func TestMatchExpr_BindsSameMetavariableConsistently(t *testing.T) {
	rules, err := ParseRules(defaultRuleSource)
	require.NoError(t, err)
	var xorSelf *RuleDecl
	for _, r := range rules.Rules {
		if r.Name == "xor-self-is-zero" {
			xorSelf = r
		}
	}
	require.NotNil(t, xorSelf)

	f := ir.NewFactory()
	x := f.Identifier(ir.Position{}, "x")
	expr := f.Binary(ir.Position{}, "===",
		f.Binary(ir.Position{}, "^", x, f.Identifier(ir.Position{}, "x")),
		f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0"))

	assert.True(t, matchExpr(xorSelf.Pattern, expr, bindings{}))

	mismatched := f.Binary(ir.Position{}, "===",
		f.Binary(ir.Position{}, "^", x, f.Identifier(ir.Position{}, "y")),
		f.Literal(ir.Position{}, 0.0, ir.LiteralNumber, "0"))
	assert.False(t, matchExpr(xorSelf.Pattern, mismatched, bindings{}))
}
