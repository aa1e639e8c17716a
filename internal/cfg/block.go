// Package cfg builds control-flow graphs from flat IR statement lists:
// basic blocks, typed edges, and (via the companion dom package) the
// dominance fields each block carries.
package cfg

import (
	"fmt"

	"github.com/deobfuscator/core/internal/ir"
)

// EdgeType tags why one block flows into another (spec.md §3.2).
type EdgeType int

const (
	EdgeFallThrough EdgeType = iota
	EdgeConditionalTrue
	EdgeConditionalFalse
	EdgeUnconditional
	EdgeException
)

func (e EdgeType) String() string {
	switch e {
	case EdgeFallThrough:
		return "fall-through"
	case EdgeConditionalTrue:
		return "conditional-true"
	case EdgeConditionalFalse:
		return "conditional-false"
	case EdgeUnconditional:
		return "unconditional"
	case EdgeException:
		return "exception"
	default:
		return "unknown"
	}
}

// Edge is one directed, typed control-flow transfer between two blocks,
// identified by block label rather than pointer (consistent with the
// "identity, not pointer equality" design note in spec.md §9).
type Edge struct {
	From      string
	To        string
	Type      EdgeType
	Condition ir.Node // set for conditional edges, nil otherwise
}

// Block is a basic block: a maximal run of statements with a single
// entry and single exit, containing no internal control transfer
// (glossary). Dominance fields are populated by the dom package and are
// zero-valued until then.
type Block struct {
	Label        string
	Statements   []ir.Node
	Reachable    bool // invariant C1: unreachable blocks are permitted but flagged

	Predecessors []string
	Successors   []string // ordered per the edge-ordering policy (spec.md §4.2)

	// Dominance-derived fields (populated by internal/dom).
	Dominators        map[string]bool
	ImmediateDominator string
	DominanceFrontier  map[string]bool
	PostDominators     map[string]bool
	ImmediatePostDom   string
	LoopDepth          int
	LoopHeader         string // empty if not in a loop
	BackEdges          []Edge // back-edges whose source is this block
}

func newBlock(label string) *Block {
	return &Block{
		Label:             label,
		Dominators:        map[string]bool{},
		DominanceFrontier: map[string]bool{},
		PostDominators:    map[string]bool{},
	}
}

func (b *Block) String() string {
	return fmt.Sprintf("Block(%s, %d stmts, %d preds, %d succs)",
		b.Label, len(b.Statements), len(b.Predecessors), len(b.Successors))
}
