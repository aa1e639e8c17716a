// Package naming defines the naming-helper collaborator contract
// spec.md §6 describes — "(identifier, context) -> suggested-name |
// error" — and a concrete JSON-RPC 2.0 client for it
// (SPEC_FULL.md §6.3), independent of any particular helper process.
// internal/passes/rename depends only on the Helper interface below,
// never on Client or its transport.
package naming

import "context"

// Context is everything about an identifier's use the core can offer a
// naming helper to reason about, without handing over the whole
// program: its syntactic role, the narrowest enclosing snippet, and any
// already-known facts a prior pass recorded (e.g. "always holds a
// string produced by string concatenation").
type Context struct {
	Role     string   // e.g. "function-parameter", "loop-counter", "catch-binding"
	Snippet  string   // smallest enclosing statement or expression, as printed source
	Facts    []string // short, already-established facts about this binding
	Language string   // source language of Snippet, e.g. "javascript"
}

// Suggestion is a naming helper's answer: a proposed identifier name
// and the helper's own confidence in it. internal/passes/rename applies
// a suggestion outright only when Confidence clears its configured
// threshold (internal/config's Rename.ConfidenceThreshold), otherwise
// surfacing it as a spec.md §7 class-3 suggestion.
type Suggestion struct {
	Name       string
	Confidence float64
	Rationale  string
}

// Helper is the naming-helper collaborator contract: given an
// obfuscated identifier and the context it appears in, propose a
// better name. Implementations may be backed by an LLM, a static
// heuristic table, or (in tests) a fixed map; all that matters to a
// caller is this interface.
type Helper interface {
	SuggestName(ctx context.Context, identifier string, nctx Context) (Suggestion, error)
}

// NoOpHelper is a Helper that never suggests anything, for environments
// with no naming helper configured — renaming then becomes a pure
// pass-through, the naming-collaborator analogue of internal/smt's
// Tolerant no-op Solver.
type NoOpHelper struct{}

func (NoOpHelper) SuggestName(context.Context, string, Context) (Suggestion, error) {
	return Suggestion{}, nil
}
