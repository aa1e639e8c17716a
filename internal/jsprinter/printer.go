// Package jsprinter renders a post-pipeline *pass.IRState back to
// JavaScript source text. It implements the source.Printer contract the
// same way internal/jsparser implements source.Parser: a focused
// collaborator behind the contract package, grounded on kanso's
// grammar/printer.go texture (a strings.Builder plus an indent-level
// counter, one method per construct) but driven off the control-flow
// graph rather than a flat AST, since every pass from internal/passes/
// downstream of job.New mutates state.Graph's blocks and edges, not a
// parallel statement tree.
//
// Two printers live here, not one, because the pipeline itself only
// ever keeps one cfg.Graph: the top-level program's. internal/cfg's
// builder (see builder.go's FunctionDeclaration case) deliberately
// leaves a nested function's body untouched when it meets one. rename
// and stringdecoder do build a throwaway graph over a nested body
// (declareNestedFunction, collectFunctionsIn) to walk it, but they only
// mutate leaves in place through it and never store or restructure that
// graph. So a FunctionDeclaration.Body reached while printing is still a
// plain statement tree, and is printed by the plain recursive
// tree-walker in stmt.go instead of the region walker in region.go.
package jsprinter

import (
	"context"
	"strings"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/source"
)

// Default is the jsprinter implementation of source.Printer.
type Default struct{}

func New() *Default { return &Default{} }

var _ source.Printer = (*Default)(nil)

// Print renders state.Graph back to source text. It reads
// ImmediatePostDom off each branching block to find where an if/switch/
// loop's structure rejoins, so callers must pass a state whose graph
// already went through dom.Compute — true of any *pass.IRState handed
// back by pass.Pipeline.Run, which recomputes dominance after every
// control-flow-mutating pass as part of its own contract.
func (d *Default) Print(ctx context.Context, state *pass.IRState, opts source.PrintOptions) (source.PrintResult, error) {
	indentWidth := opts.IndentWidth
	if indentWidth <= 0 {
		indentWidth = 2
	}
	p := &printer{
		g:           state.Graph,
		indentWidth: indentWidth,
		emitMap:     opts.EmitSourceMap,
		line:        1,
	}
	p.printRegion(p.g.Entry, nil)
	return source.PrintResult{Code: p.sb.String(), Mappings: p.mappings}, nil
}

// printer is the shared mutable state for one Print call. Both the
// region walker (region.go) and the plain tree walker (stmt.go, expr.go)
// write through it so indentation and source-map bookkeeping stay
// consistent across the boundary between CFG-driven and tree-driven
// output.
type printer struct {
	g           *cfg.Graph
	sb          strings.Builder
	indent      int
	indentWidth int
	emitMap     bool
	mappings    []source.Mapping
	line        int // 1-based generated line of the next byte written
	col         int // 0-based generated column of the next byte written

	suppressIndentOnce bool // consumed by the next writeIndent call
}

func (p *printer) write(s string) {
	for _, r := range s {
		if r == '\n' {
			p.line++
			p.col = 0
			continue
		}
		p.col++
	}
	p.sb.WriteString(s)
}

func (p *printer) writeIndent() {
	if p.suppressIndentOnce {
		p.suppressIndentOnce = false
		return
	}
	p.write(strings.Repeat(" ", p.indent*p.indentWidth))
}

func (p *printer) newline() {
	p.write("\n")
}

// mark records a source-map entry tying the generated position about to
// be written to n's original position, when source maps were requested.
func (p *printer) mark(n ir.Node) {
	if !p.emitMap || n == nil {
		return
	}
	pos := n.Pos()
	p.mappings = append(p.mappings, source.Mapping{
		GeneratedLine:   p.line,
		GeneratedColumn: p.col,
		OriginalLine:    pos.Line,
		OriginalColumn:  pos.Column,
		OriginalSource:  pos.Source,
	})
}
