// Package job orchestrates a single file's analysis from parsed IR
// through the pass pipeline to its final IRState (printing is left to
// the caller): the per-file unit
// spec.md §5 describes as owning its own IRState with no locking
// required internally, generalized with a UUID identity (the same
// identifier shape shivasurya-code-pathfinder's analytics layer mints
// per invocation) and a cooperative cancellation signal.
package job

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/config"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

// Job owns one file's IRState for the lifetime of its analysis: its
// identity (for log correlation, telemetry, and export metadata only —
// spec.md §5 is explicit this never affects any semantic decision),
// its configuration, and the cancellation signal passes are expected to
// observe at block boundaries and external-collaborator calls.
type Job struct {
	ID       string
	Filename string
	Config   *config.Config
	State    *pass.IRState

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a job over a parsed statement list, assigning it a fresh
// UUID identity and threading cfg (or config.Default() when nil) and a
// cancellable context derived from parent (or context.Background() when
// nil) through to the IRState the pipeline will consume.
func New(parent context.Context, filename string, nodes []ir.Node, factory *ir.Factory, conf *config.Config) *Job {
	if parent == nil {
		parent = context.Background()
	}
	if conf == nil {
		conf = config.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New().String()

	root := factory.Program(ir.Position{Source: filename}, nodes)
	graph := cfg.Build(nodes)
	state := &pass.IRState{
		Nodes:    ir.NewNodeMap(root),
		Factory:  factory,
		Graph:    graph,
		Metadata: map[string]any{},
		JobID:    id,
	}

	return &Job{
		ID:       id,
		Filename: filename,
		Config:   conf,
		State:    state,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context returns the job's cancellable context, for collaborators
// (SMT queries, naming-helper requests, sandbox-trace retrieval — the
// three suspension points spec.md §5 names) to observe directly.
func (j *Job) Context() context.Context { return j.ctx }

// Cancel signals cooperative cancellation. Passes already in flight are
// not interrupted mid-statement (internal/pass.Pass.Run takes no
// context today); Run below observes cancellation only between pass
// applications, which is the coarsest-grained reading of spec.md §5's
// "cancellable... within the solver's own abort latency" that is
// possible without threading a context through every Pass
// implementation — collaborator calls inside opaque and any future
// SMT/naming/sandbox-backed pass already take a context.Context of
// their own and should be passed j.Context() directly for the
// fine-grained cancellation that clause actually describes.
func (j *Job) Cancel() { j.cancel() }

// Result is what Run returns: the final (or last-consistent, if
// cancelled) state, whether the job completed, and an error if the
// pipeline itself failed.
type Result struct {
	State     *pass.IRState
	Completed bool
	Cancelled bool
	Pipeline  pass.Result
}

// Run drives the pipeline to completion, racing it against the job's
// context. On cancellation noticed before the pipeline returns, Run
// returns the IRState snapshot taken immediately before the pipeline
// started — the "last consistent IRState" spec.md §5 calls for — since
// the in-flight pipeline goroutine may still be mutating the live node
// map in place (invariant I1) after Run has returned; callers that
// cancel a job must not reuse j.State concurrently afterward.
func (j *Job) Run(pipeline *pass.Pipeline) (Result, error) {
	before := j.State.Clone()

	type outcome struct {
		res pass.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := pipeline.Run(j.State)
		done <- outcome{res, err}
	}()

	select {
	case <-j.ctx.Done():
		return Result{State: before, Cancelled: true}, nil
	case o := <-done:
		if o.err != nil {
			return Result{State: j.State}, fmt.Errorf("job %s: %w", j.ID, o.err)
		}
		return Result{State: j.State, Completed: true, Pipeline: o.res}, nil
	}
}
