package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_CallsToFiltersByCalleeInOrder(t *testing.T) {
	tr := NewTrace([]Event{
		{Kind: FunctionCall, Callee: "_0x2", Args: []any{0.0}, Result: "hello", Sequence: 0},
		{Kind: VariableAccess, Target: "_0x1", Sequence: 1},
		{Kind: FunctionCall, Callee: "_0x2", Args: []any{1.0}, Result: "world", Sequence: 2},
		{Kind: FunctionCall, Callee: "other", Args: []any{0.0}, Result: "x", Sequence: 3},
	})

	calls := tr.CallsTo("_0x2")
	require.Len(t, calls, 2)
	assert.Equal(t, "hello", calls[0].Result)
	assert.Equal(t, "world", calls[1].Result)
	assert.Equal(t, 4, tr.Len())
}

func TestNewTrace_CopiesSoCallerMutationDoesNotLeak(t *testing.T) {
	events := []Event{{Kind: SideEffect, Operator: "console.log"}}
	tr := NewTrace(events)
	events[0].Operator = "mutated"
	assert.Equal(t, "console.log", tr.Events()[0].Operator)
}

func TestNoOpSandbox_AlwaysReturnsEmptyTrace(t *testing.T) {
	var s Sandbox = NoOpSandbox{}
	tr, err := s.Collect(context.Background(), Request{Source: "var x = 1;"})
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "function-call", FunctionCall.String())
	assert.Equal(t, "constant-discovery", ConstantDiscovery.String())
}
