package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deobfuscator/core/internal/config"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/passes/constprop"
)

func TestNew_AssignsDistinctIDsAndThreadsConfig(t *testing.T) {
	f := ir.NewFactory()
	ret := f.Return(ir.Position{}, f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1"))

	j1 := New(nil, "a.js", []ir.Node{ret}, f, nil)
	j2 := New(nil, "b.js", []ir.Node{ret}, f, nil)

	assert.NotEmpty(t, j1.ID)
	assert.NotEqual(t, j1.ID, j2.ID)
	assert.Equal(t, j1.ID, j1.State.JobID)
	assert.Equal(t, config.Default().Opaque.ComplexityBound, j1.Config.Opaque.ComplexityBound)
}

func TestRun_CompletesPipelineAndReportsChanges(t *testing.T) {
	f := ir.NewFactory()
	x := f.Identifier(ir.Position{}, "x")
	decl := f.VariableDeclaration(ir.Position{}, ir.DeclConst, []*ir.Declarator{
		f.Declarator(ir.Position{}, x, f.Literal(ir.Position{}, 2.0, ir.LiteralNumber, "2")),
	})
	ret := f.Return(ir.Position{}, f.Identifier(ir.Position{}, "x"))

	j := New(context.Background(), "in.js", []ir.Node{decl, ret}, f, config.Default())

	pipeline := pass.NewPipeline(2)
	pipeline.AddPass(constprop.New())

	result, err := j.Run(pipeline)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.False(t, result.Cancelled)
}

func TestRun_ObservesCancellation(t *testing.T) {
	f := ir.NewFactory()
	ret := f.Return(ir.Position{}, f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1"))

	ctx, cancel := context.WithCancel(context.Background())
	j := New(ctx, "in.js", []ir.Node{ret}, f, nil)
	cancel()

	pipeline := pass.NewPipeline(2)
	pipeline.AddPass(constprop.New())

	result, err := j.Run(pipeline)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.False(t, result.Completed)
}

func TestCancel_UnblocksRun(t *testing.T) {
	f := ir.NewFactory()
	ret := f.Return(ir.Position{}, f.Literal(ir.Position{}, 1.0, ir.LiteralNumber, "1"))
	j := New(context.Background(), "in.js", []ir.Node{ret}, f, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		j.Cancel()
	}()

	pipeline := pass.NewPipeline(2)
	_, err := j.Run(pipeline)
	require.NoError(t, err)
}
