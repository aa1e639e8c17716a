package jsparser

import "github.com/deobfuscator/core/internal/ir"

// binaryPrecedence mirrors kanso's parser_pratt.go precedence table,
// adapted to JS's operator set (kanso's language has no logical/nullish
// operators; this grammar adds the levels JS needs between kanso's
// equality and additive tiers).
var binaryPrecedence = map[TokenType]int{
	QUESTION_QUESTION:   1,
	PIPE_PIPE:           2,
	AMPERSAND_AMPERSAND: 3,
	PIPE:                4,
	CARET:               5,
	AMPERSAND:           6,
	EQUAL_EQUAL:         7,
	BANG_EQUAL:          7,
	EQUAL_EQUAL_EQUAL:   7,
	BANG_EQUAL_EQUAL:    7,
	LESS:                8,
	LESS_EQUAL:          8,
	GREATER:             8,
	GREATER_EQUAL:       8,
	KW_IN:               8,
	KW_INSTANCEOF:       8,
	LESS_LESS:           9,
	GREATER_GREATER:     9,
	PLUS:                10,
	MINUS:               10,
	STAR:                11,
	SLASH:               11,
	PERCENT:             11,
	STAR_STAR:           12,
}

var logicalOps = map[TokenType]bool{
	PIPE_PIPE: true, AMPERSAND_AMPERSAND: true, QUESTION_QUESTION: true,
}

var assignmentOps = map[TokenType]string{
	EQUAL:         "=",
	PLUS_EQUAL:    "+=",
	MINUS_EQUAL:   "-=",
	STAR_EQUAL:    "*=",
	SLASH_EQUAL:   "/=",
	PERCENT_EQUAL: "%=",
}

func (p *Parser) parseExpression() ir.Node {
	first := p.parseAssignmentExpr()
	if !p.check(COMMA) {
		return first
	}
	exprs := []ir.Node{first}
	for p.match(COMMA) {
		exprs = append(exprs, p.parseAssignmentExpr())
	}
	return p.f.Sequence(first.Pos(), exprs)
}

// parseAssignmentExpr handles `target op= value` (right-associative) by
// parsing a conditional expression first and, if an assignment operator
// follows, requiring the left side to already look like a valid
// assignment target (Identifier or Member) before folding it.
func (p *Parser) parseAssignmentExpr() ir.Node {
	left := p.parseConditional()
	if op, ok := assignmentOps[p.peek().Type]; ok {
		switch left.(type) {
		case *ir.Identifier, *ir.Member:
		default:
			p.errorAtCurrent("invalid assignment target")
		}
		tok := p.advance()
		value := p.parseAssignmentExpr()
		return p.f.Assignment(p.pos(tok), op, left, value)
	}
	return left
}

func (p *Parser) parseConditional() ir.Node {
	test := p.parseBinary(0)
	if p.match(QUESTION) {
		tok := p.previous()
		cons := p.parseAssignmentExpr()
		p.consume(COLON, "expected ':' in conditional expression")
		alt := p.parseAssignmentExpr()
		return p.f.Conditional(p.pos(tok), test, cons, alt)
	}
	return test
}

// parseBinary is the Pratt loop proper: parse a unary operand, then
// keep folding in binary operators whose precedence is at least minPrec,
// recursing at prec+1 for left-associative operators (every binary
// operator in this grammar's table is left-associative; `**`'s
// right-associativity is a refinement left for a future pass since no
// obfuscator this system targets emits exponentiation chains that
// depend on it).
func (p *Parser) parseBinary(minPrec int) ir.Node {
	left := p.parseUnary()
	for {
		prec, ok := binaryPrecedence[p.peek().Type]
		if !ok || prec < minPrec {
			return left
		}
		tok := p.advance()
		right := p.parseBinary(prec + 1)
		if logicalOps[tok.Type] {
			left = p.f.Logical(p.pos(tok), opText(tok), left, right)
		} else {
			left = p.f.Binary(p.pos(tok), opText(tok), left, right)
		}
	}
}

func opText(t Token) string {
	if t.Type == KW_IN {
		return "in"
	}
	if t.Type == KW_INSTANCEOF {
		return "instanceof"
	}
	return t.Lexeme
}

func (p *Parser) parseUnary() ir.Node {
	switch {
	case p.match(BANG), p.match(MINUS), p.match(PLUS), p.match(TILDE),
		p.match(KW_TYPEOF), p.match(KW_VOID), p.match(KW_DELETE):
		tok := p.previous()
		operand := p.parseUnary()
		return p.f.Unary(p.pos(tok), opText(tok), operand, true)
	case p.match(INCREMENT), p.match(DECREMENT):
		tok := p.previous()
		operand := p.parseUnary()
		return p.f.Update(p.pos(tok), tok.Lexeme, operand, true)
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() ir.Node {
	expr := p.parseCallMember(p.parsePrimary())
	if p.check(INCREMENT) || p.check(DECREMENT) {
		tok := p.advance()
		return p.f.Update(p.pos(tok), tok.Lexeme, expr, false)
	}
	return expr
}

// parseCallMember folds postfix member access, computed member access,
// and call expressions in source order, left-associatively — the same
// "primary then trailer loop" shape kanso's parsePostfixExpr uses.
func (p *Parser) parseCallMember(expr ir.Node) ir.Node {
	for {
		switch {
		case p.match(DOT):
			nameTok := p.consume(IDENT, "expected property name after '.'")
			prop := p.f.Identifier(p.pos(nameTok), nameTok.Lexeme)
			expr = p.f.Member(p.pos(nameTok), expr, prop, false, false)
		case p.match(OPTIONAL_DOT):
			nameTok := p.consume(IDENT, "expected property name after '?.'")
			prop := p.f.Identifier(p.pos(nameTok), nameTok.Lexeme)
			expr = p.f.Member(p.pos(nameTok), expr, prop, false, true)
		case p.match(LEFT_BRACKET):
			tok := p.previous()
			prop := p.parseExpression()
			p.consume(RIGHT_BRACKET, "expected ']' after computed member")
			expr = p.f.Member(p.pos(tok), expr, prop, true, false)
		case p.match(LEFT_PAREN):
			tok := p.previous()
			args := p.parseArguments()
			expr = p.f.Call(p.pos(tok), expr, args, false)
		default:
			return expr
		}
	}
}

func (p *Parser) parseArguments() []ir.Node {
	var args []ir.Node
	if !p.check(RIGHT_PAREN) {
		for {
			args = append(args, p.parseAssignmentExpr())
			if !p.match(COMMA) {
				break
			}
		}
	}
	p.consume(RIGHT_PAREN, "expected ')' after arguments")
	return args
}

func (p *Parser) parsePrimary() ir.Node {
	tok := p.peek()
	switch tok.Type {
	case NUMBER:
		p.advance()
		return p.f.Literal(p.pos(tok), tok.Value, ir.LiteralNumber, tok.Lexeme)
	case STRING:
		p.advance()
		return p.f.Literal(p.pos(tok), tok.Value, ir.LiteralString, tok.Lexeme)
	case KW_TRUE:
		p.advance()
		return p.f.Literal(p.pos(tok), true, ir.LiteralBoolean, tok.Lexeme)
	case KW_FALSE:
		p.advance()
		return p.f.Literal(p.pos(tok), false, ir.LiteralBoolean, tok.Lexeme)
	case KW_NULL:
		p.advance()
		return p.f.Literal(p.pos(tok), nil, ir.LiteralNull, tok.Lexeme)
	case KW_UNDEFINED:
		p.advance()
		return p.f.SentinelUndefined(p.pos(tok))
	case IDENT:
		p.advance()
		return p.f.Identifier(p.pos(tok), tok.Lexeme)
	case KW_NEW:
		p.advance()
		callee := p.parseCallMemberNoCall(p.parsePrimary())
		var args []ir.Node
		if p.match(LEFT_PAREN) {
			args = p.parseArguments()
		}
		return p.f.New(p.pos(tok), callee, args)
	case KW_FUNCTION:
		p.advance()
		return p.parseFunctionDeclaration()
	case LEFT_PAREN:
		p.advance()
		expr := p.parseExpression()
		p.consume(RIGHT_PAREN, "expected ')' after parenthesized expression")
		return expr
	case LEFT_BRACKET:
		return p.parseArrayLiteral()
	case LEFT_BRACE:
		return p.parseObjectLiteral()
	default:
		p.errorAtCurrent("expected expression")
		p.advance()
		return p.f.SentinelUndefined(p.pos(tok))
	}
}

// parseCallMemberNoCall folds only member-access trailers, used while
// parsing `new Callee.chain` so the constructor's own argument list
// (handled by the caller) isn't swallowed as a call on the callee.
func (p *Parser) parseCallMemberNoCall(expr ir.Node) ir.Node {
	for {
		switch {
		case p.match(DOT):
			nameTok := p.consume(IDENT, "expected property name after '.'")
			prop := p.f.Identifier(p.pos(nameTok), nameTok.Lexeme)
			expr = p.f.Member(p.pos(nameTok), expr, prop, false, false)
		case p.match(LEFT_BRACKET):
			tok := p.previous()
			prop := p.parseExpression()
			p.consume(RIGHT_BRACKET, "expected ']' after computed member")
			expr = p.f.Member(p.pos(tok), expr, prop, true, false)
		default:
			return expr
		}
	}
}

func (p *Parser) parseArrayLiteral() ir.Node {
	start := p.peek()
	p.consume(LEFT_BRACKET, "expected '['")
	var elems []ir.Node
	for !p.check(RIGHT_BRACKET) && !p.isAtEnd() {
		if p.check(COMMA) {
			elems = append(elems, nil) // elision
		} else {
			elems = append(elems, p.parseAssignmentExpr())
		}
		if !p.match(COMMA) {
			break
		}
	}
	p.consume(RIGHT_BRACKET, "expected ']' after array elements")
	return p.f.Array(p.pos(start), elems)
}

func (p *Parser) parseObjectLiteral() ir.Node {
	start := p.peek()
	p.consume(LEFT_BRACE, "expected '{'")
	var props []*ir.Property
	for !p.check(RIGHT_BRACE) && !p.isAtEnd() {
		props = append(props, p.parseProperty())
		if !p.match(COMMA) {
			break
		}
	}
	p.consume(RIGHT_BRACE, "expected '}' after object properties")
	return p.f.Object(p.pos(start), props)
}

func (p *Parser) parseProperty() *ir.Property {
	if p.match(LEFT_BRACKET) {
		tok := p.previous()
		key := p.parseAssignmentExpr()
		p.consume(RIGHT_BRACKET, "expected ']' after computed key")
		p.consume(COLON, "expected ':' after computed property key")
		value := p.parseAssignmentExpr()
		return p.f.Property(p.pos(tok), key, value, true)
	}

	tok := p.advance()
	var key ir.Node
	switch tok.Type {
	case STRING:
		key = p.f.Literal(p.pos(tok), tok.Value, ir.LiteralString, tok.Lexeme)
	case NUMBER:
		key = p.f.Literal(p.pos(tok), tok.Value, ir.LiteralNumber, tok.Lexeme)
	default:
		key = p.f.Identifier(p.pos(tok), tok.Lexeme)
	}

	if p.match(LEFT_PAREN) {
		// shorthand method syntax: `name(params) { body }`
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
		p.consume(RIGHT_PAREN, "expected ')' after method parameters")
		body := p.parseBlock()
		fn := p.f.FunctionDeclaration(p.pos(tok), nil, params, body, false, false)
		return p.f.Property(p.pos(tok), key, fn, false)
	}

	if !p.match(COLON) {
		// shorthand `{ name }`: value is a reference to the same name.
		return p.f.Property(p.pos(tok), key, p.f.Identifier(p.pos(tok), tok.Lexeme), false)
	}
	value := p.parseAssignmentExpr()
	return p.f.Property(p.pos(tok), key, value, false)
}
