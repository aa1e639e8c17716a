package jsprinter

import (
	"strings"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
)

// printRegion walks state.Graph from start, printing each block's
// statements in order and following the single edge that continues
// straight-line flow, until it reaches a label in stop (or a block with
// no further edge to follow). It is the CFG analogue of printTreeStmt:
// where that one reads Consequent/Alternate/Body off a node because
// there is no graph, this one reads them off cfg.Block.Successors and
// g.Edges because internal/cfg.IfMarker/SwitchMarker's own embedded
// fields go stale the moment a control-flow pass (deflatten, opaque,
// structure) rewrites the graph around them — opaque.go's tryIf/tryWhile
// read g.Edges directly for exactly this reason, and this printer
// follows the same rule.
func (p *printer) printRegion(start string, stop map[string]bool) {
	label := start
	for label != "" && !stop[label] {
		b := p.g.Blocks[label]
		if b == nil {
			return
		}
		if strings.HasPrefix(label, "loop_header_") {
			label = p.printLoop(b)
			continue
		}

		n := len(b.Statements)
		handled := false
		for i, stmt := range b.Statements {
			isLast := i == n-1
			if isLast {
				switch v := stmt.(type) {
				case *cfg.IfMarker:
					label = p.printIf(b.Label, v)
					handled = true
					continue
				case *cfg.SwitchMarker:
					label = p.printSwitch(b.Label, v)
					handled = true
					continue
				}
			}
			p.printLeaf(stmt)
		}
		if handled {
			continue
		}
		label = p.soleSuccessor(b)
	}
}

// soleSuccessor returns b's one outgoing edge target for ordinary
// straight-line flow (fall-through or unconditional), or "" when b has
// none (program end, or a block the structuring above already chased
// every edge out of).
func (p *printer) soleSuccessor(b *cfg.Block) string {
	if len(b.Successors) == 0 {
		return ""
	}
	return b.Successors[0]
}

// condEdges returns the conditional-true and conditional-false targets
// leaving from, the same shape internal/passes/structure's condEdges
// helper uses, reimplemented here since that one is unexported.
func (p *printer) condEdges(from string) (trueTo, falseTo string, cond ir.Node, ok bool) {
	var sawTrue, sawFalse bool
	for _, e := range p.g.Edges {
		if e.From != from {
			continue
		}
		switch e.Type {
		case cfg.EdgeConditionalTrue:
			trueTo, cond, sawTrue = e.To, e.Condition, true
		case cfg.EdgeConditionalFalse:
			falseTo, sawFalse = e.To, true
		}
	}
	return trueTo, falseTo, cond, sawTrue && sawFalse
}

// soleUnconditional returns the single EdgeUnconditional target leaving
// from, used for the Test==nil `for(;;)` shape where there is no
// conditional pair to read.
func (p *printer) soleUnconditional(from string) string {
	for _, e := range p.g.Edges {
		if e.From == from && e.Type == cfg.EdgeUnconditional {
			return e.To
		}
	}
	return ""
}

// printIf structures one IfMarker into `if (test) {...} else {...}`,
// printing each branch as its own region bounded by the join block
// (join is always reachable since buildIf always creates one), and
// returns the join label so the caller's straight-line walk resumes
// there.
func (p *printer) printIf(fromLabel string, m *cfg.IfMarker) string {
	trueTo, falseTo, cond, ok := p.condEdges(fromLabel)
	if !ok {
		// Dominance-broken or already-folded shape the builder never
		// produces on its own; fall back to printing the guard as a
		// comment rather than emitting invalid control flow.
		p.writeIndent()
		p.write("/* unresolved if */")
		p.newline()
		return ""
	}
	from := p.g.Blocks[fromLabel]
	join := from.ImmediatePostDom

	p.writeIndent()
	p.write("if (")
	p.printExpr(cond, precAssignment)
	p.write(") {")
	p.newline()
	p.indent++
	stop := map[string]bool{join: true}
	if falseTo != join {
		stop[falseTo] = true
	}
	p.printRegion(trueTo, stop)
	p.indent--
	p.writeIndent()
	p.write("}")

	if falseTo != join {
		p.write(" else {")
		p.newline()
		p.indent++
		p.printRegion(falseTo, map[string]bool{join: true})
		p.indent--
		p.writeIndent()
		p.write("}")
	}
	p.newline()
	return join
}

// printSwitch walks the marker's Cases in order, pairing each with the
// case block g.Edges placed it in (edges are appended in case order by
// buildSwitch, so switchCaseTargets takes the i-th case edge out of the
// switch block as the i-th case's block, without trusting the marker's
// own Consequent field). Each case body is printed as a region
// bounded by either the next case's block (true fallthrough) or the
// switch's own join, whichever it reaches first.
func (p *printer) printSwitch(fromLabel string, m *cfg.SwitchMarker) string {
	from := p.g.Blocks[fromLabel]
	join := from.ImmediatePostDom

	caseLabels := p.switchCaseTargets(fromLabel, len(m.Cases))

	p.writeIndent()
	p.write("switch (")
	p.printExpr(m.Discriminant, precAssignment)
	p.write(") {")
	p.newline()
	p.indent++
	for i, c := range m.Cases {
		p.writeIndent()
		if c.IsDefault() {
			p.write("default:")
		} else {
			p.write("case ")
			p.printExpr(c.Test, precAssignment)
			p.write(":")
		}
		p.newline()

		stop := map[string]bool{join: true}
		if i+1 < len(caseLabels) && caseLabels[i+1] != "" {
			stop[caseLabels[i+1]] = true
		}
		p.indent++
		if caseLabels[i] != "" {
			p.printRegion(caseLabels[i], stop)
		}
		p.indent--
	}
	p.indent--
	p.writeIndent()
	p.write("}")
	p.newline()
	return join
}

// switchCaseTargets recovers each case's entry block label in case
// order by replaying the edges buildSwitch added from fromLabel: one
// per case, in the same order as m.Cases, before the final fallback
// edge to the switch's exit when there is no default.
func (p *printer) switchCaseTargets(fromLabel string, numCases int) []string {
	out := make([]string, 0, numCases)
	for _, e := range p.g.Edges {
		if e.From != fromLabel {
			continue
		}
		if e.Type == cfg.EdgeConditionalTrue || e.Type == cfg.EdgeUnconditional {
			out = append(out, e.To)
		}
	}
	for len(out) < numCases {
		out = append(out, "")
	}
	return out
}

// printLoop structures a "loop_header_"-labeled block into either a
// while-loop (the header's sole statement is the original *ir.While,
// left there verbatim by buildWhile) or a for-loop (buildFor's header
// instead holds the bare Test expression, or nothing at all for
// `for(;;)`). The two are told apart by whether a predecessor reached
// via the loop's back-edge is itself a "loop_update_" block — a label
// buildFor alone ever creates. The for-loop's Init clause is not
// reconstructed into the `for(...)` header: buildFor leaves it as an
// ordinary trailing statement in the block that falls into the header,
// and the straight-line walk above already prints it there as a plain
// statement immediately before this loop, which is valid and semantics-
// preserving (if occasionally scoped one block wider than the original
// `let`/`const` init would have been).
func (p *printer) printLoop(header *cfg.Block) string {
	join := header.ImmediatePostDom

	updateLabel := ""
	for _, e := range p.g.Edges {
		if e.To == header.Label && strings.HasPrefix(e.From, "loop_update_") {
			updateLabel = e.From
		}
	}

	trueTo, _, _, ok := p.condEdges(header.Label)
	bodyLabel := trueTo
	if !ok {
		bodyLabel = p.soleUnconditional(header.Label)
	}

	if updateLabel == "" {
		var test ir.Node
		if len(header.Statements) == 1 {
			if w, isWhile := header.Statements[0].(*ir.While); isWhile {
				test = w.Test
			}
		}
		p.writeIndent()
		p.write("while (")
		if test != nil {
			p.printExpr(test, precAssignment)
		} else {
			p.write("true")
		}
		p.write(") {")
		p.newline()
		p.indent++
		p.printRegion(bodyLabel, map[string]bool{header.Label: true, join: true})
		p.indent--
		p.writeIndent()
		p.write("}")
		p.newline()
		return join
	}

	var test, update ir.Node
	if len(header.Statements) == 1 {
		test = header.Statements[0]
	}
	updateBlock := p.g.Blocks[updateLabel]
	if updateBlock != nil && len(updateBlock.Statements) == 1 {
		update = updateBlock.Statements[0]
	}

	p.writeIndent()
	p.write("for (; ")
	if test != nil {
		p.printExpr(test, precAssignment)
	}
	p.write("; ")
	if update != nil {
		p.printExpr(update, precAssignment)
	}
	p.write(") {")
	p.newline()
	p.indent++
	p.printRegion(bodyLabel, map[string]bool{updateLabel: true, header.Label: true, join: true})
	p.indent--
	p.writeIndent()
	p.write("}")
	p.newline()
	return join
}
