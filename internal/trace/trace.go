// Package trace defines the sandbox execution-trace collaborator
// (spec.md §4.10, §6): an immutable sequence of typed events a separate
// dynamic-execution subsystem records while running the program under
// analysis, consumed by internal/passes/stringdecoder to identify and
// fold decoder-function call sites. The core never executes untrusted
// code itself; a Sandbox implementation is always an external
// collaborator reached through the interface below.
package trace

import (
	"context"
	"time"

	"github.com/deobfuscator/core/internal/ir"
)

// EventKind names one of the eight typed event categories spec.md §6
// enumerates for a sandbox trace.
type EventKind int

const (
	FunctionCall EventKind = iota
	VariableAccess
	StringOperation
	ArrayOperation
	ObjectOperation
	ControlFlow
	ConstantDiscovery
	SideEffect
)

func (k EventKind) String() string {
	switch k {
	case FunctionCall:
		return "function-call"
	case VariableAccess:
		return "variable-access"
	case StringOperation:
		return "string-operation"
	case ArrayOperation:
		return "array-operation"
	case ObjectOperation:
		return "object-operation"
	case ControlFlow:
		return "control-flow"
	case ConstantDiscovery:
		return "constant-discovery"
	case SideEffect:
		return "side-effect"
	default:
		return "unknown"
	}
}

// Event is one observation recorded during sandboxed execution. Fields
// not relevant to Kind are left at their zero value; e.g. a
// FunctionCall event populates Callee/Args/Result, an ArrayOperation
// event populates Target/Index/Result.
type Event struct {
	Kind EventKind

	// NodeID correlates this event back to the IR location that
	// produced it, when the sandbox can establish that correlation
	// (spec.md §6: "per-event IR-correlation fields when available").
	// Zero when no correlation is available.
	NodeID ir.NodeID

	Callee string        // FunctionCall: the called function's identifier or a synthetic label
	Args   []any         // FunctionCall: argument values, in order
	Result any           // FunctionCall, StringOperation, ArrayOperation: the observed return/output value

	Target string // VariableAccess, ArrayOperation, ObjectOperation: the accessed binding or object
	Index  any    // ArrayOperation, ObjectOperation: the subscript or key used

	Operator string // StringOperation, ControlFlow: the operation name ("charCodeAt", "branch-taken", ...)

	Sequence int // monotonically increasing order of observation within the trace
}

// Trace is the ordered, immutable sequence of events a single sandboxed
// execution produced. Construction is always via Collect; a Trace value
// itself exposes only read access.
type Trace struct {
	events []Event
}

// NewTrace wraps a pre-recorded event slice (used by tests, and by a
// Sandbox implementation once it has finished one run) as a Trace. The
// slice is copied so later mutation by the caller cannot affect the
// Trace a pass is analyzing.
func NewTrace(events []Event) Trace {
	cp := make([]Event, len(events))
	copy(cp, events)
	return Trace{events: cp}
}

// Events returns every recorded event, in observation order.
func (t Trace) Events() []Event { return t.events }

// Len reports how many events the trace holds.
func (t Trace) Len() int { return len(t.events) }

// CallsTo returns every FunctionCall event whose Callee matches name,
// in observation order — the query internal/passes/stringdecoder uses
// to gather a decoder candidate's observed (args -> result) pairs.
func (t Trace) CallsTo(name string) []Event {
	var out []Event
	for _, e := range t.events {
		if e.Kind == FunctionCall && e.Callee == name {
			out = append(out, e)
		}
	}
	return out
}

// Request names what to execute and the budget to spend doing it.
type Request struct {
	Source   string // the program text to execute, after any already-applied transformations
	Entry    string // optional explicit entry point; empty means "run top-level code"
	Budget   time.Duration
}

// Sandbox runs Source in an isolated environment and reports the
// resulting execution trace (spec.md §6's sandbox-trace suspension
// point). Implementations are always out-of-process or otherwise
// isolated from the core; this interface carries no assumption about
// how isolation is achieved.
type Sandbox interface {
	Collect(ctx context.Context, req Request) (Trace, error)
}

// NoOpSandbox is a Sandbox that always reports an empty trace, for
// environments with no sandbox configured — internal/passes/stringdecoder
// then finds no decoder candidates and leaves every call site intact,
// the trace-collaborator analogue of internal/smt's Tolerant solver and
// internal/naming's NoOpHelper.
type NoOpSandbox struct{}

func (NoOpSandbox) Collect(context.Context, Request) (Trace, error) {
	return Trace{}, nil
}
