package jsparser

import "github.com/deobfuscator/core/internal/ir"

func (p *Parser) parseStatement() ir.Node {
	switch {
	case p.check(LEFT_BRACE):
		return p.parseBlock()
	case p.check(KW_VAR), p.check(KW_LET), p.check(KW_CONST):
		return p.parseVariableDeclarationFrom(p.advance())
	case p.match(KW_FUNCTION):
		return p.parseFunctionDeclaration()
	case p.match(KW_RETURN):
		return p.parseReturn()
	case p.match(KW_IF):
		return p.parseIf()
	case p.match(KW_WHILE):
		return p.parseWhile()
	case p.match(KW_FOR):
		return p.parseFor()
	case p.match(KW_BREAK):
		return p.parseBreak()
	case p.match(KW_CONTINUE):
		return p.parseContinue()
	case p.match(KW_SWITCH):
		return p.parseSwitch()
	case p.match(SEMICOLON):
		return p.f.Block(p.pos(p.previous()), nil) // empty statement, printed as nothing
	default:
		return p.parseLabeledOrExpressionStatement()
	}
}

func (p *Parser) parseBlock() *ir.Block {
	start := p.peek()
	p.consume(LEFT_BRACE, "expected '{'")
	var body []ir.Node
	for !p.check(RIGHT_BRACE) && !p.isAtEnd() {
		body = append(body, p.parseStatement())
	}
	p.consume(RIGHT_BRACE, "expected '}'")
	return p.f.Block(p.pos(start), body)
}

func (p *Parser) declKindFor(t Token) ir.DeclKind {
	switch t.Type {
	case KW_LET:
		return ir.DeclLet
	case KW_CONST:
		return ir.DeclConst
	default:
		return ir.DeclVar
	}
}

func (p *Parser) parseVariableDeclarationFrom(kw Token) *ir.VariableDeclaration {
	kind := p.declKindFor(kw)
	var decls []*ir.Declarator
	for {
		nameTok := p.consume(IDENT, "expected binding name")
		name := p.f.Identifier(p.pos(nameTok), nameTok.Lexeme)
		var init ir.Node
		if p.match(EQUAL) {
			init = p.parseAssignmentExpr()
		}
		decls = append(decls, p.f.Declarator(p.pos(nameTok), name, init))
		if !p.match(COMMA) {
			break
		}
	}
	p.consumeSemicolon()
	return p.f.VariableDeclaration(p.pos(kw), kind, decls)
}

func (p *Parser) parseFunctionDeclaration() *ir.FunctionDeclaration {
	start := p.previous()
	generator := p.match(STAR)
	var name *ir.Identifier
	if p.check(IDENT) {
		nameTok := p.advance()
		name = p.f.Identifier(p.pos(nameTok), nameTok.Lexeme)
	}
	p.consume(LEFT_PAREN, "expected '(' after function name")
	var params []*ir.Identifier
	if !p.check(RIGHT_PAREN) {
		for {
			pt := p.consume(IDENT, "expected parameter name")
			params = append(params, p.f.Identifier(p.pos(pt), pt.Lexeme))
			if !p.match(COMMA) {
				break
			}
		}
	}
	p.consume(RIGHT_PAREN, "expected ')' after parameters")
	body := p.parseBlock()
	return p.f.FunctionDeclaration(p.pos(start), name, params, body, false, generator)
}

func (p *Parser) parseReturn() *ir.Return {
	start := p.previous()
	var value ir.Node
	if !p.check(SEMICOLON) && !p.check(RIGHT_BRACE) && !p.isAtEnd() {
		value = p.parseExpression()
	}
	p.consumeSemicolon()
	return p.f.Return(p.pos(start), value)
}

func (p *Parser) parseIf() *ir.If {
	start := p.previous()
	p.consume(LEFT_PAREN, "expected '(' after 'if'")
	test := p.parseExpression()
	p.consume(RIGHT_PAREN, "expected ')' after if condition")
	consequent := p.parseStatement()
	var alternate ir.Node
	if p.match(KW_ELSE) {
		alternate = p.parseStatement()
	}
	return p.f.If(p.pos(start), test, consequent, alternate)
}

func (p *Parser) parseWhile() *ir.While {
	start := p.previous()
	p.consume(LEFT_PAREN, "expected '(' after 'while'")
	test := p.parseExpression()
	p.consume(RIGHT_PAREN, "expected ')' after while condition")
	body := p.parseStatement()
	return p.f.While(p.pos(start), test, body)
}

// parseFor covers the classic three-clause form only; for-in/for-of
// have no corresponding ir.Node kind (spec.md's node inventory has no
// iteration-protocol construct), so encountering one is a parse error
// rather than a silent misread.
func (p *Parser) parseFor() *ir.For {
	start := p.previous()
	p.consume(LEFT_PAREN, "expected '(' after 'for'")

	var init ir.Node
	switch {
	case p.check(SEMICOLON):
		// no init
	case p.check(KW_VAR), p.check(KW_LET), p.check(KW_CONST):
		init = p.parseVariableDeclarationNoSemi(p.advance())
	default:
		init = p.f.ExpressionStatement(p.pos(p.peek()), p.parseExpression())
	}
	p.consume(SEMICOLON, "expected ';' after for-init")

	var test ir.Node
	if !p.check(SEMICOLON) {
		test = p.parseExpression()
	}
	p.consume(SEMICOLON, "expected ';' after for-test")

	var update ir.Node
	if !p.check(RIGHT_PAREN) {
		update = p.parseExpression()
	}
	p.consume(RIGHT_PAREN, "expected ')' after for-clauses")

	body := p.parseStatement()
	return p.f.For(p.pos(start), init, test, update, body)
}

func (p *Parser) parseVariableDeclarationNoSemi(kw Token) *ir.VariableDeclaration {
	kind := p.declKindFor(kw)
	var decls []*ir.Declarator
	for {
		nameTok := p.consume(IDENT, "expected binding name")
		name := p.f.Identifier(p.pos(nameTok), nameTok.Lexeme)
		var init ir.Node
		if p.match(EQUAL) {
			init = p.parseAssignmentExpr()
		}
		decls = append(decls, p.f.Declarator(p.pos(nameTok), name, init))
		if !p.match(COMMA) {
			break
		}
	}
	return p.f.VariableDeclaration(p.pos(kw), kind, decls)
}

func (p *Parser) parseBreak() *ir.Break {
	start := p.previous()
	label := ""
	if p.check(IDENT) && p.peek().Position.Line == start.Position.Line {
		label = p.advance().Lexeme
	}
	p.consumeSemicolon()
	return p.f.Break(p.pos(start), label)
}

func (p *Parser) parseContinue() *ir.Continue {
	start := p.previous()
	label := ""
	if p.check(IDENT) && p.peek().Position.Line == start.Position.Line {
		label = p.advance().Lexeme
	}
	p.consumeSemicolon()
	return p.f.Continue(p.pos(start), label)
}

func (p *Parser) parseSwitch() *ir.Switch {
	start := p.previous()
	p.consume(LEFT_PAREN, "expected '(' after 'switch'")
	disc := p.parseExpression()
	p.consume(RIGHT_PAREN, "expected ')' after switch discriminant")
	p.consume(LEFT_BRACE, "expected '{' to start switch body")

	var cases []*ir.SwitchCase
	for !p.check(RIGHT_BRACE) && !p.isAtEnd() {
		caseStart := p.peek()
		var test ir.Node
		if p.match(KW_CASE) {
			test = p.parseExpression()
		} else {
			p.consume(KW_DEFAULT, "expected 'case' or 'default'")
		}
		p.consume(COLON, "expected ':' after case label")
		var body []ir.Node
		for !p.check(KW_CASE) && !p.check(KW_DEFAULT) && !p.check(RIGHT_BRACE) && !p.isAtEnd() {
			body = append(body, p.parseStatement())
		}
		cases = append(cases, p.f.SwitchCase(p.pos(caseStart), test, body))
	}
	p.consume(RIGHT_BRACE, "expected '}' to close switch body")
	return p.f.Switch(p.pos(start), disc, cases)
}

// parseLabeledOrExpressionStatement disambiguates `ident:` (a labeled
// statement) from an expression statement starting with an identifier,
// by speculatively consuming the colon only once an IDENT is
// immediately followed by one.
func (p *Parser) parseLabeledOrExpressionStatement() ir.Node {
	if p.check(IDENT) {
		saved := p.current
		nameTok := p.advance()
		if p.match(COLON) {
			body := p.parseStatement()
			return p.f.Labeled(p.pos(nameTok), nameTok.Lexeme, body)
		}
		p.current = saved
	}
	start := p.peek()
	expr := p.parseExpression()
	p.consumeSemicolon()
	return p.f.ExpressionStatement(p.pos(start), expr)
}
