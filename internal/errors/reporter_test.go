package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

func TestReporter_FormatsPassLocalWarningWithLocation(t *testing.T) {
	source := "function f(s) {\n  while (s != 9) {\n    switch (s) {}\n  }\n}\n"
	reporter := NewReporter("sample.js", source)

	f := ir.NewFactory()
	node := f.Identifier(ir.Position{Line: 2, Column: 10, Source: "sample.js"}, "s")
	nodes := ir.NewNodeMap(node)

	w := pass.Warning{Code: "deflatten.complexity-exceeded", Message: "dispatcher too large to reconstruct safely", NodeID: node.ID()}
	d := FromWarning(w, nodes)

	assert.Equal(t, PassLocal, d.Level)
	assert.Equal(t, "deflatten", Category(d.Code))

	formatted := reporter.Format(d)
	assert.Contains(t, formatted, "warning[deflatten.complexity-exceeded]")
	assert.Contains(t, formatted, "sample.js:2:10")
	assert.Contains(t, formatted, "dispatcher too large")
}

func TestReporter_ClassifiesSuggestionsSeparately(t *testing.T) {
	w := pass.Warning{Code: "opaque.low-confidence", Message: "guard classified Tautology via smt at confidence 0.60, below threshold; left intact"}
	d := FromWarning(w, nil)
	assert.Equal(t, Suggestion, d.Level)
	assert.True(t, IsSuggestion(w.Code))
}

func TestReporter_FatalErrorUsesFatalLevel(t *testing.T) {
	err := &pass.FatalError{Pass: "ssa-destruct", Message: "phi operand count mismatch"}
	d := FromFatal(err)
	assert.Equal(t, Fatal, d.Level)
	assert.Contains(t, d.Message, "ssa-destruct")
	assert.Contains(t, d.Message, "phi operand count mismatch")
}

func TestReporter_MissingNodeFallsBackToZeroPosition(t *testing.T) {
	w := pass.Warning{Code: "dce.something", Message: "m", NodeID: 999}
	nodes := ir.NewNodeMap(ir.NewFactory().Identifier(ir.Position{}, "x"))
	d := FromWarning(w, nodes)
	assert.True(t, d.Position.IsZero())

	reporter := NewReporter("f.js", "const x = 1;\n")
	formatted := reporter.Format(d)
	require.Contains(t, formatted, "warning[dce.something]: m")
}
