package pass

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/deobfuscator/core/internal/dom"
	"github.com/deobfuscator/core/internal/ssa"
)

// Pass is the unit of transformation every deobfuscation stage
// implements: kanso's OptimizationPass generalized from a single
// Program pointer to a full IRState, and from a bool "changed" return
// to a Result carrying metrics and warnings alongside it.
type Pass interface {
	Name() string
	Description() string
	// RequiresSSA reports whether the pipeline must construct SSA form
	// before running this pass (spec.md §4.5's SSA-dependency clause).
	RequiresSSA() bool
	// MutatesControlFlow reports whether a successful application can
	// change block structure, requiring the pipeline to rebuild the CFG
	// (and, if currently in SSA form, destruct/reconstruct it) before
	// the next pass runs.
	MutatesControlFlow() bool
	Run(state *IRState) (Result, error)
}

// Pipeline sequences passes to a fixed point, mirroring
// OptimizationPipeline's AddPass/Run shape while adding SSA-dependency
// insertion, CFG rebuilding, and a bounded fixed-point loop around the
// whole ordered list (spec.md §4.5).
type Pipeline struct {
	passes    []Pass
	maxRounds int
	Verbose   bool
	onWarning func(pass string, w Warning)
	onStep    func(pass string, state *IRState, res Result)
}

// NewPipeline builds an empty pipeline. maxRounds bounds how many times
// the full ordered pass list is re-run chasing a fixed point; it exists
// because two passes can each keep re-enabling the other's opportunity
// (e.g. constant folding exposing a new copy to propagate, which
// exposes a new constant fold) and the pipeline must terminate.
func NewPipeline(maxRounds int) *Pipeline {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &Pipeline{maxRounds: maxRounds}
}

// AddPass appends a pass to the fixed ordering.
func (p *Pipeline) AddPass(ps Pass) { p.passes = append(p.passes, ps) }

// OnWarning installs a callback invoked once per warning a pass raises
// during Run; nil by default, in which case warnings are only returned
// in the aggregate Result.Warnings.
func (p *Pipeline) OnWarning(fn func(pass string, w Warning)) { p.onWarning = fn }

// OnStep installs a callback invoked once per pass application, after
// that pass's Run has returned and any control-flow rebuild has
// happened, with the state as that pass left it — internal/export's
// Recorder uses this to capture a per-pass IR/CFG snapshot (spec.md §6's
// analysis-data export) without the pipeline itself knowing anything
// about export document shape.
func (p *Pipeline) OnStep(fn func(pass string, state *IRState, res Result)) { p.onStep = fn }

// Run drives every pass in order, round after round, until a full round
// changes nothing or maxRounds is hit. Before a pass that declares
// RequiresSSA, the pipeline constructs SSA form if the state isn't
// already in it; after a pass that declares MutatesControlFlow, any
// live SSA annotation is destructed (the CFG shape it was built against
// no longer holds) and dominance is recomputed over the graph as the
// pass left it; cfg.Build is not run again.
func (p *Pipeline) Run(state *IRState) (Result, error) {
	overall := Result{State: state}
	for round := 0; round < p.maxRounds; round++ {
		roundChanged := false
		if p.Verbose {
			fmt.Println(color.CyanString("pass pipeline: round %d/%d", round+1, p.maxRounds))
		}
		for _, ps := range p.passes {
			if ps.RequiresSSA() && !state.HasSSA() {
				state.SSA = ssa.Construct(state.Graph, state.Factory, nil)
				dom.Compute(state.Graph)
			}

			start := time.Now()
			res, err := ps.Run(state)
			if err != nil {
				return overall, fmt.Errorf("pass %s: %w", ps.Name(), err)
			}
			res.Metrics.Duration = time.Since(start)

			if p.Verbose {
				status := color.GreenString("unchanged")
				if res.Changed {
					status = color.YellowString("changed")
				}
				fmt.Printf("  %-24s %s (%d nodes visited, %d changed)\n",
					ps.Name(), status, res.Metrics.NodesVisited, res.Metrics.NodesChanged)
			}

			for _, w := range res.Warnings {
				if p.onWarning != nil {
					p.onWarning(ps.Name(), w)
				}
			}
			overall.Warnings = append(overall.Warnings, res.Warnings...)
			overall.Metrics.NodesVisited += res.Metrics.NodesVisited
			overall.Metrics.NodesChanged += res.Metrics.NodesChanged
			overall.Metrics.NodesInserted += res.Metrics.NodesInserted
			overall.Metrics.NodesRemoved += res.Metrics.NodesRemoved

			if res.Changed {
				roundChanged = true
				overall.Changed = true
			}

			if ps.MutatesControlFlow() {
				rebuildGraph(state)
			}

			if p.onStep != nil {
				p.onStep(ps.Name(), state, res)
			}
		}
		if !roundChanged {
			break
		}
	}
	return overall, nil
}

// rebuildGraph discards any live SSA annotation and recomputes
// dominance over the (possibly restructured) block graph. Passes that
// mutate control flow are expected to have updated state.Graph's block
// statement lists and edges directly; rebuildGraph does not re-run
// cfg.Build from a flat statement list because the canonical
// representation post-construction is the graph itself, not the
// original parsed tree.
func rebuildGraph(state *IRState) {
	if state.SSA != nil {
		ssa.Destruct(state.SSA)
		state.SSA = nil
	}
	dom.Compute(state.Graph)
}
