// Package pass defines the shared IRState every transformation pass
// consumes and produces, the Pass contract itself, and the Pipeline
// that sequences passes to a fixed point — the generalization of
// kanso's OptimizationPass/OptimizationPipeline pattern to a node map +
// CFG + optional SSA state.
package pass

import (
	"time"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/ssa"
)

// IRState is the value every pass consumes and produces: the node map,
// the current CFG, an optional SSA annotation, and an open-ended
// metadata map for cross-pass annotations such as detected dispatcher
// patterns or function purity summaries.
type IRState struct {
	Nodes    *ir.NodeMap
	Factory  *ir.Factory
	Graph    *cfg.Graph
	SSA      *ssa.State // nil when not in SSA form
	Metadata map[string]any

	// JobID threads the owning analysis job's identity through every
	// pass for log correlation; empty outside a job context.
	JobID string
}

// HasSSA reports whether the state currently carries SSA annotations.
func (s *IRState) HasSSA() bool { return s.SSA != nil }

// Clone makes a shallow copy of the state's container fields so a pass
// can compare before/after without the pipeline reconstructing the
// world from scratch; node contents are still shared, mutated in place
// per invariant I1 (the node map is the single source of truth).
func (s *IRState) Clone() *IRState {
	meta := make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	return &IRState{
		Nodes:    s.Nodes,
		Factory:  s.Factory,
		Graph:    s.Graph,
		SSA:      s.SSA,
		Metadata: meta,
		JobID:    s.JobID,
	}
}

// Warning is a structured, non-fatal diagnostic (spec.md §4.5): a code,
// a human-readable message, and an optional node this pass was looking
// at when it noticed something worth flagging (e.g. "constant
// propagation skipped this use because the reaching definition set was
// ambiguous").
type Warning struct {
	Code    string
	Message string
	NodeID  ir.NodeID // zero when not tied to a specific node
}

// Metrics record what a single pass application did, for reporting and
// for the pipeline's fixed-point bookkeeping.
type Metrics struct {
	Duration      time.Duration
	NodesVisited  int
	NodesChanged  int
	NodesInserted int
	NodesRemoved  int
}

// Result is what a Pass's Run returns: the (possibly mutated) state,
// whether anything changed, metrics, and any warnings raised.
type Result struct {
	State    *IRState
	Changed  bool
	Metrics  Metrics
	Warnings []Warning
}

// FatalError is a typed error for invariant violations and malformed
// input that the pipeline cannot proceed past (spec.md §7's "Fatal
// errors" clause); the driver aborts the job on one unless best-effort
// mode is enabled.
type FatalError struct {
	Pass    string
	Message string
}

func (e *FatalError) Error() string { return e.Pass + ": " + e.Message }
