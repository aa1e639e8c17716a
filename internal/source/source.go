// Package source defines the Parser and Printer collaborator
// interfaces the core depends on but never binds to a concrete
// implementation of (spec.md §6): the same "one dedicated package per
// collaborator contract" shape internal/smt uses for its Solver. A
// driver wires internal/jsparser and internal/jsprinter in as the
// default adapters; the core only ever imports this package.
package source

import (
	"context"

	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

// Type names the two ECMAScript parse goals spec.md §6 calls out;
// a Parser tries Module first and falls back to Script on failure,
// mirroring how real-world obfuscated bundles are rarely modules.
type Type string

const (
	TypeScript Type = "script"
	TypeModule Type = "module"
)

// ParseOptions carries everything a Parser needs beyond the raw text
// itself.
type ParseOptions struct {
	// Filename names the input for position reporting and, later, for
	// a printed source map's "file" field. Empty is fine for tests that
	// build IR directly and never call a Parser at all.
	Filename string
	// SourceType requests a parse goal; a Parser is free to retry the
	// other goal on failure, but must report which one it actually used.
	SourceType Type
}

// ParseResult is a Parser's output: a flat statement list plus the
// factory that minted every node in it, exactly the shape
// internal/job.New already accepts (spec.md §6: "function (text,
// {sourceType}) -> AST, pure").
type ParseResult struct {
	Nodes      []ir.Node
	Factory    *ir.Factory
	SourceType Type // the parse goal that actually succeeded
}

// Parser turns source text into IR. Implementations must be pure: the
// same text and options always produce an equivalent tree, with no
// observable side effect other than the returned value and error.
type Parser interface {
	Parse(ctx context.Context, text string, opts ParseOptions) (ParseResult, error)
}

// Mapping is one generated-position -> original-position correspondence
// a source-map-emitting Printer records per spec.md §6: "every printed
// token whose originating IR node carried a source location emits a
// mapping {generated line/column -> original line/column + original
// source name}."
type Mapping struct {
	GeneratedLine, GeneratedColumn int
	OriginalLine, OriginalColumn   int
	OriginalSource                 string
}

// PrintOptions controls a Printer's output.
type PrintOptions struct {
	// EmitSourceMap requests the Mappings slice be populated; when
	// false a Printer should skip the bookkeeping entirely rather than
	// compute and discard it.
	EmitSourceMap bool
	// IndentWidth is the number of spaces per nesting level; a Printer
	// should default this to a reasonable value when zero.
	IndentWidth int
}

// PrintResult is a Printer's output.
type PrintResult struct {
	Code     string
	Mappings []Mapping // empty unless PrintOptions.EmitSourceMap was set
}

// Printer renders a job's final IRState back to source text. It
// consumes state.Graph (the canonical post-pipeline representation,
// per internal/pass.Pipeline's own contract), not any standalone tree,
// since a control-flow-mutating pass is only required to keep the
// graph consistent.
type Printer interface {
	Print(ctx context.Context, state *pass.IRState, opts PrintOptions) (PrintResult, error)
}
