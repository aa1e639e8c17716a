// Rule grammar for the opaque-predicate pattern library (spec.md §4.9
// step 1 / SPEC_FULL.md §4.9.1): a small declarative pattern language
// over metavariables, parsed by a participle grammar in the same style
// as the teacher's own expression grammar (a lexer.MustStateful token
// set plus a flat left-to-right BinaryExpr/BinOp shape, rather than a
// full precedence-climbing parser — adequate here since rule patterns
// are short and fully parenthesized by convention).
package opaque

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var ruleLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `#[^\n]*`, nil},
		{"Meta", `\$[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Number", `[0-9]+`, nil},
		{"Arrow", `=>`, nil},
		{"Operator", `(===|!==|==|!=|<=|>=|&&|\|\||[+\-*/%&|^~<>])`, nil},
		{"Punctuation", `[():,]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

// RuleFile is the top-level parse result: a named list of pattern rules.
type RuleFile struct {
	Rules []*RuleDecl `{ @@ }`
}

// RuleDecl binds a name to a pattern and the verdict it proves when the
// pattern matches some IR expression structurally.
type RuleDecl struct {
	Name    string     `"rule" @Ident ":"`
	Prior   *float64   `[ "confidence" @Number ]`
	Pattern *RuleExpr  `@@`
	Verdict string     `"=>" @("tautology" | "contradiction")`
}

type RuleExpr struct {
	Left *RuleUnary  `@@`
	Ops  []*RuleBinOp `{ @@ }`
}

type RuleBinOp struct {
	Op    string     `@("==="|"!=="|"=="|"!="|"<="|">="|"&&"|"||"|"&"|"|"|"^"|"%"|"+"|"-"|"*"|"/"|"<"|">")`
	Right *RuleUnary `@@`
}

type RuleUnary struct {
	Op    *string      `[ @("!"|"-"|"~") ]`
	Value *RulePrimary `@@`
}

type RulePrimary struct {
	Number *int64    `  @Number`
	Meta   *string   `| @Meta`
	Ident  *string   `| @Ident`
	Sub    *RuleExpr `| "(" @@ ")"`
}

// BuildRuleParser constructs the participle parser for rule source text,
// mirroring the teacher's participle.Build[Program] invocation shape.
func BuildRuleParser() (*participle.Parser[RuleFile], error) {
	return participle.Build[RuleFile](
		participle.Lexer(ruleLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(2),
	)
}

// ParseRules parses rule source text into a RuleFile.
func ParseRules(source string) (*RuleFile, error) {
	parser, err := BuildRuleParser()
	if err != nil {
		return nil, err
	}
	return parser.ParseString("rules", source)
}
