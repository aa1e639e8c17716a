package jsprinter

import (
	"fmt"
	"strconv"

	"github.com/deobfuscator/core/internal/ir"
)

// exprPrecedence mirrors jsparser's binaryPrecedence table so an
// expression only gets wrapped in parentheses when printing it bare
// would change how jsparser re-parses it — the round-trip property a
// deobfuscator's output has to hold.
var exprPrecedence = map[string]int{
	"??": 1,
	"||": 2, "&&": 3,
	"|": 4, "^": 5, "&": 6,
	"==": 7, "!=": 7, "===": 7, "!==": 7,
	"<": 8, "<=": 8, ">": 8, ">=": 8, "in": 8, "instanceof": 8,
	"<<": 9, ">>": 9, ">>>": 9,
	"+": 10, "-": 10,
	"*": 11, "/": 11, "%": 11,
	"**": 12,
}

const (
	precAssignment = 0
	precConditional = 1
	precUnary       = 13
	precPostfix     = 14
	precCall        = 15
	precPrimary     = 16
)

// printExpr writes n, parenthesizing it whenever its own precedence is
// lower than minPrec (the precedence the surrounding context requires).
func (p *printer) printExpr(n ir.Node, minPrec int) {
	prec := p.exprPrec(n)
	if prec < minPrec {
		p.write("(")
		p.printExprBare(n)
		p.write(")")
		return
	}
	p.printExprBare(n)
}

func (p *printer) exprPrec(n ir.Node) int {
	switch v := n.(type) {
	case *ir.Binary:
		if prec, ok := exprPrecedence[v.Op]; ok {
			return prec
		}
		return precPrimary
	case *ir.Logical:
		if prec, ok := exprPrecedence[v.Op]; ok {
			return prec
		}
		return precPrimary
	case *ir.Conditional:
		return precConditional
	case *ir.Assignment:
		return precAssignment
	case *ir.Sequence:
		return precAssignment
	case *ir.Unary:
		return precUnary
	case *ir.Update:
		if v.Prefix {
			return precUnary
		}
		return precPostfix
	case *ir.Call, *ir.New, *ir.Member:
		return precCall
	default:
		return precPrimary
	}
}

func (p *printer) printExprBare(n ir.Node) {
	p.mark(n)
	switch v := n.(type) {
	case *ir.Identifier:
		p.write(v.Name)
	case *ir.Literal:
		p.write(p.literalText(v))
	case *ir.Binary:
		p.printExpr(v.Left, exprPrecedence[v.Op])
		p.write(" " + v.Op + " ")
		p.printExpr(v.Right, exprPrecedence[v.Op]+1)
	case *ir.Logical:
		p.printExpr(v.Left, exprPrecedence[v.Op])
		p.write(" " + v.Op + " ")
		p.printExpr(v.Right, exprPrecedence[v.Op]+1)
	case *ir.Unary:
		if isWordOperator(v.Op) {
			p.write(v.Op + " ")
		} else {
			p.write(v.Op)
		}
		p.printExpr(v.Operand, precUnary)
	case *ir.Update:
		if v.Prefix {
			p.write(v.Op)
			p.printExpr(v.Operand, precUnary)
		} else {
			p.printExpr(v.Operand, precPostfix)
			p.write(v.Op)
		}
	case *ir.Conditional:
		p.printExpr(v.Test, precConditional+1)
		p.write(" ? ")
		p.printExpr(v.Consequent, precAssignment)
		p.write(" : ")
		p.printExpr(v.Alternate, precAssignment)
	case *ir.Assignment:
		p.printExpr(v.Target, precConditional+1)
		p.write(" " + v.Op + " ")
		p.printExpr(v.Value, precAssignment)
	case *ir.Sequence:
		for i, e := range v.Expressions {
			if i > 0 {
				p.write(", ")
			}
			p.printExpr(e, precAssignment+1)
		}
	case *ir.Call:
		p.printExpr(v.Callee, precCall)
		if v.Optional {
			p.write("?.")
		}
		p.write("(")
		p.printArgs(v.Args)
		p.write(")")
	case *ir.New:
		p.write("new ")
		p.printExpr(v.Callee, precCall)
		p.write("(")
		p.printArgs(v.Args)
		p.write(")")
	case *ir.Member:
		p.printExpr(v.Object, precCall)
		if v.Computed {
			if v.Optional {
				p.write("?.")
			}
			p.write("[")
			p.printExpr(v.Property, precAssignment)
			p.write("]")
		} else {
			if v.Optional {
				p.write("?.")
			} else {
				p.write(".")
			}
			p.printExpr(v.Property, precPrimary)
		}
	case *ir.Array:
		p.write("[")
		for i, e := range v.Elements {
			if i > 0 {
				p.write(", ")
			}
			if e != nil {
				p.printExpr(e, precAssignment+1)
			}
		}
		p.write("]")
	case *ir.Object:
		p.printObject(v)
	case *ir.FunctionDeclaration:
		p.printFunctionHeader(v, "function")
		p.printTreeStmt(v.Body)
	default:
		// Reached only for the SSA-only node kinds (Phi, SSAIdentifier),
		// which invariant I2 guarantees never survive to printing.
		p.write(fmt.Sprintf("/* unprintable %s */", n.Kind()))
	}
}

func (p *printer) printArgs(args []ir.Node) {
	for i, a := range args {
		if i > 0 {
			p.write(", ")
		}
		p.printExpr(a, precAssignment+1)
	}
}

func (p *printer) printObject(o *ir.Object) {
	if len(o.Properties) == 0 {
		p.write("{}")
		return
	}
	p.write("{ ")
	for i, prop := range o.Properties {
		if i > 0 {
			p.write(", ")
		}
		p.printProperty(prop)
	}
	p.write(" }")
}

func (p *printer) printProperty(prop *ir.Property) {
	if fn, ok := prop.Value.(*ir.FunctionDeclaration); ok {
		if prop.Computed {
			p.write("[")
			p.printExpr(prop.Key, precAssignment)
			p.write("]")
		} else {
			p.printExpr(prop.Key, precPrimary)
		}
		p.write("(")
		p.printParams(fn.Params)
		p.write(") ")
		p.printTreeStmt(fn.Body)
		return
	}
	if id, ok := prop.Key.(*ir.Identifier); ok && !prop.Computed {
		if valID, ok := prop.Value.(*ir.Identifier); ok && valID.Name == id.Name {
			p.write(id.Name)
			return
		}
	}
	if prop.Computed {
		p.write("[")
		p.printExpr(prop.Key, precAssignment)
		p.write("]: ")
	} else {
		p.printExpr(prop.Key, precPrimary)
		p.write(": ")
	}
	p.printExpr(prop.Value, precAssignment+1)
}

func (p *printer) printParams(params []*ir.Identifier) {
	for i, param := range params {
		if i > 0 {
			p.write(", ")
		}
		p.write(param.Name)
	}
}

func (p *printer) printFunctionHeader(fn *ir.FunctionDeclaration, kw string) {
	if fn.Async {
		p.write("async ")
	}
	p.write(kw)
	if fn.Generator {
		p.write("*")
	}
	if fn.Name != nil {
		p.write(" " + fn.Name.Name)
	}
	p.write("(")
	p.printParams(fn.Params)
	p.write(") ")
}

func isWordOperator(op string) bool {
	switch op {
	case "typeof", "void", "delete":
		return true
	default:
		return false
	}
}

// literalText renders a Literal using its original surface text when
// one was preserved (Raw), falling back to re-deriving it from Value so
// synthesized literals (constant-folded by an earlier pass, which never
// populates Raw) still print something valid.
func (p *printer) literalText(lit *ir.Literal) string {
	if lit.LitKind == ir.LiteralNull && lit.Raw == "undefined" {
		return "undefined"
	}
	if lit.Raw != "" {
		return lit.Raw
	}
	switch lit.LitKind {
	case ir.LiteralString:
		s, _ := lit.Value.(string)
		return strconv.Quote(s)
	case ir.LiteralNumber:
		f, _ := lit.Value.(float64)
		return strconv.FormatFloat(f, 'g', -1, 64)
	case ir.LiteralBoolean:
		b, _ := lit.Value.(bool)
		if b {
			return "true"
		}
		return "false"
	case ir.LiteralNull:
		return "null"
	case ir.LiteralBigInt:
		s, _ := lit.Value.(string)
		return s + "n"
	default:
		return fmt.Sprintf("%v", lit.Value)
	}
}
