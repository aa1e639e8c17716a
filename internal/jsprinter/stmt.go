package jsprinter

import "github.com/deobfuscator/core/internal/ir"

// printLeaf handles the statement kinds that appear both as a bare
// cfg.Block statement (region.go's world) and inside a nested function
// body that never went through cfg.Build (printTreeStmt's world) — the
// shapes internal/cfg's builder always keeps as simple leaves, never
// splitting across blocks: expression statements, declarations,
// returns, break/continue, and function declarations themselves.
func (p *printer) printLeaf(n ir.Node) bool {
	p.mark(n)
	switch v := n.(type) {
	case *ir.ExpressionStatement:
		p.writeIndent()
		p.printExpr(v.Expr, precAssignment)
		p.write(";")
		p.newline()
	case *ir.VariableDeclaration:
		p.writeIndent()
		p.write(v.DeclKind.String() + " ")
		for i, d := range v.Declarators {
			if i > 0 {
				p.write(", ")
			}
			p.printExpr(d.Name, precPrimary)
			if d.Init != nil {
				p.write(" = ")
				p.printExpr(d.Init, precAssignment+1)
			}
		}
		p.write(";")
		p.newline()
	case *ir.Return:
		p.writeIndent()
		p.write("return")
		if v.Value != nil {
			p.write(" ")
			p.printExpr(v.Value, precAssignment)
		}
		p.write(";")
		p.newline()
	case *ir.Break:
		p.writeIndent()
		p.write("break")
		if v.Label != "" {
			p.write(" " + v.Label)
		}
		p.write(";")
		p.newline()
	case *ir.Continue:
		p.writeIndent()
		p.write("continue")
		if v.Label != "" {
			p.write(" " + v.Label)
		}
		p.write(";")
		p.newline()
	case *ir.FunctionDeclaration:
		p.writeIndent()
		p.printFunctionHeader(v, "function")
		p.printTreeStmt(v.Body)
		p.newline()
	default:
		return false
	}
	return true
}

// printTreeStmt is the plain recursive statement printer used for
// anything cfg.Build never decomposed into blocks: a nested function's
// body (builder.go stops at a FunctionDeclaration boundary and leaves
// it as an ordinary *ir.Block), and by extension everything under it.
// It reads control constructs straight off their own tree fields
// (Consequent/Alternate/Body/Cases) since there is no cfg.Graph for
// this region to consult — the same "walk the node you were handed"
// shape kanso's grammar/printer.go uses, generalized to this IR's
// richer statement set.
func (p *printer) printTreeStmt(n ir.Node) {
	if n == nil {
		return
	}
	if p.printLeaf(n) {
		return
	}
	switch v := n.(type) {
	case *ir.Block:
		p.write("{")
		p.newline()
		p.indent++
		for _, stmt := range v.Body {
			p.printTreeStmt(stmt)
		}
		p.indent--
		p.writeIndent()
		p.write("}")
	case *ir.If:
		p.writeIndent()
		p.write("if (")
		p.printExpr(v.Test, precAssignment)
		p.write(") ")
		p.printTreeBranch(v.Consequent)
		if v.Alternate != nil {
			p.write(" else ")
			if _, ok := v.Alternate.(*ir.If); ok {
				p.printTreeStmtInline(v.Alternate)
			} else {
				p.printTreeBranch(v.Alternate)
			}
		}
		p.newline()
	case *ir.While:
		p.writeIndent()
		p.write("while (")
		p.printExpr(v.Test, precAssignment)
		p.write(") ")
		p.printTreeBranch(v.Body)
		p.newline()
	case *ir.For:
		p.writeIndent()
		p.write("for (")
		if v.Init != nil {
			p.printForClause(v.Init)
		}
		p.write("; ")
		if v.Test != nil {
			p.printExpr(v.Test, precAssignment)
		}
		p.write("; ")
		if v.Update != nil {
			p.printExpr(v.Update, precAssignment)
		}
		p.write(") ")
		p.printTreeBranch(v.Body)
		p.newline()
	case *ir.Switch:
		p.writeIndent()
		p.write("switch (")
		p.printExpr(v.Discriminant, precAssignment)
		p.write(") {")
		p.newline()
		p.indent++
		for _, c := range v.Cases {
			p.writeIndent()
			if c.IsDefault() {
				p.write("default:")
			} else {
				p.write("case ")
				p.printExpr(c.Test, precAssignment)
				p.write(":")
			}
			p.newline()
			p.indent++
			for _, stmt := range c.Consequent {
				p.printTreeStmt(stmt)
			}
			p.indent--
		}
		p.indent--
		p.writeIndent()
		p.write("}")
		p.newline()
	case *ir.Labeled:
		p.writeIndent()
		p.write(v.Label + ": ")
		p.printTreeStmtInline(v.Body)
	default:
		p.writeIndent()
		p.write("/* unprintable statement */;")
		p.newline()
	}
}

// printTreeStmtInline prints a statement without its own leading
// indentation, for constructs (else-if chains, labeled statements) that
// already wrote their own prefix on the current line. Only the
// construct's own opening writeIndent is suppressed; anything nested
// inside its body indents normally.
func (p *printer) printTreeStmtInline(n ir.Node) {
	p.suppressIndentOnce = true
	p.printTreeStmt(n)
}

// printTreeBranch prints an If/While/For branch body, wrapping it in a
// block if the original statement wasn't already one so indentation
// stays well-formed regardless of how the source wrote it.
func (p *printer) printTreeBranch(n ir.Node) {
	if _, ok := n.(*ir.Block); ok {
		p.printTreeStmt(n)
		return
	}
	p.write("{")
	p.newline()
	p.indent++
	p.printTreeStmt(n)
	p.indent--
	p.writeIndent()
	p.write("}")
}

// printForClause prints a for-loop's init clause without the trailing
// semicolon for-headers separate clauses with, since VariableDeclaration
// and ExpressionStatement both normally emit one.
func (p *printer) printForClause(n ir.Node) {
	switch v := n.(type) {
	case *ir.VariableDeclaration:
		p.write(v.DeclKind.String() + " ")
		for i, d := range v.Declarators {
			if i > 0 {
				p.write(", ")
			}
			p.printExpr(d.Name, precPrimary)
			if d.Init != nil {
				p.write(" = ")
				p.printExpr(d.Init, precAssignment+1)
			}
		}
	case *ir.ExpressionStatement:
		p.printExpr(v.Expr, precAssignment)
	default:
		p.printExpr(n, precAssignment)
	}
}
