package ir

import "fmt"

// Factory allocates fresh node identities and constructs nodes. Identity
// assignment is monotonic and deterministic given the same sequence of
// constructor calls — golden-file tests rely on this (spec.md §4.1).
//
// A Factory is not safe for concurrent use; each analysis job owns one
// (spec.md §5's "shared resources" clause: the node-identity counter is
// the only process-wide state, and here it is scoped per-job instead,
// which is a stricter guarantee than the spec requires and still
// satisfies it).
type Factory struct {
	next NodeID
}

// NewFactory returns a Factory whose first allocated ID is 1.
func NewFactory() *Factory {
	return &Factory{next: 1}
}

// Reset rewinds the counter, for test isolation (spec.md §4.1).
func (f *Factory) Reset() {
	f.next = 1
}

func (f *Factory) alloc() NodeID {
	id := f.next
	f.next++
	return id
}

// nilChildError is returned when a constructor receives a required nil
// child; the caller should construct a sentinel instead (spec.md §4.1).
type nilChildError struct {
	kind  Kind
	field string
}

func (e *nilChildError) Error() string {
	return fmt.Sprintf("ir: %s requires non-nil %s", e.kind, e.field)
}

func requireNonNil(kind Kind, field string, v Node) {
	if v == nil {
		panic(&nilChildError{kind: kind, field: field})
	}
}

// EmptyBlock returns a sentinel empty block, useful where a constructor
// needs a placeholder body instead of accepting nil.
func (f *Factory) EmptyBlock(pos Position) *Block {
	return &Block{base: base{id: f.alloc(), pos: pos}}
}

// SentinelUndefined returns a sentinel `undefined`-valued literal,
// useful where a constructor needs a placeholder value instead of nil.
func (f *Factory) SentinelUndefined(pos Position) *Literal {
	return &Literal{base: base{id: f.alloc(), pos: pos}, Value: nil, LitKind: LiteralNull, Raw: "undefined"}
}

func (f *Factory) Program(pos Position, body []Node) *Program {
	return &Program{base: base{id: f.alloc(), pos: pos}, Body: body}
}

func (f *Factory) Block(pos Position, body []Node) *Block {
	return &Block{base: base{id: f.alloc(), pos: pos}, Body: body}
}

func (f *Factory) ExpressionStatement(pos Position, expr Node) *ExpressionStatement {
	requireNonNil(KindExpressionStatement, "Expr", expr)
	return &ExpressionStatement{base: base{id: f.alloc(), pos: pos}, Expr: expr}
}

func (f *Factory) VariableDeclaration(pos Position, kind DeclKind, decls []*Declarator) *VariableDeclaration {
	return &VariableDeclaration{base: base{id: f.alloc(), pos: pos}, DeclKind: kind, Declarators: decls}
}

func (f *Factory) Declarator(pos Position, name Node, init Node) *Declarator {
	requireNonNil(KindDeclarator, "Name", name)
	return &Declarator{base: base{id: f.alloc(), pos: pos}, Name: name, Init: init}
}

func (f *Factory) FunctionDeclaration(pos Position, name *Identifier, params []*Identifier, body *Block, async, generator bool) *FunctionDeclaration {
	requireNonNil(KindFunctionDeclaration, "Body", body)
	return &FunctionDeclaration{
		base: base{id: f.alloc(), pos: pos}, Name: name, Params: params,
		Body: body, Async: async, Generator: generator,
	}
}

func (f *Factory) Return(pos Position, value Node) *Return {
	return &Return{base: base{id: f.alloc(), pos: pos}, Value: value}
}

func (f *Factory) If(pos Position, test, consequent, alternate Node) *If {
	requireNonNil(KindIf, "Test", test)
	requireNonNil(KindIf, "Consequent", consequent)
	return &If{base: base{id: f.alloc(), pos: pos}, Test: test, Consequent: consequent, Alternate: alternate}
}

func (f *Factory) While(pos Position, test, body Node) *While {
	requireNonNil(KindWhile, "Test", test)
	requireNonNil(KindWhile, "Body", body)
	return &While{base: base{id: f.alloc(), pos: pos}, Test: test, Body: body}
}

func (f *Factory) For(pos Position, init, test, update, body Node) *For {
	requireNonNil(KindFor, "Body", body)
	return &For{base: base{id: f.alloc(), pos: pos}, Init: init, Test: test, Update: update, Body: body}
}

func (f *Factory) Break(pos Position, label string) *Break {
	return &Break{base: base{id: f.alloc(), pos: pos}, Label: label}
}

func (f *Factory) Continue(pos Position, label string) *Continue {
	return &Continue{base: base{id: f.alloc(), pos: pos}, Label: label}
}

func (f *Factory) SwitchCase(pos Position, test Node, consequent []Node) *SwitchCase {
	return &SwitchCase{base: base{id: f.alloc(), pos: pos}, Test: test, Consequent: consequent}
}

func (f *Factory) Switch(pos Position, discriminant Node, cases []*SwitchCase) *Switch {
	requireNonNil(KindSwitch, "Discriminant", discriminant)
	return &Switch{base: base{id: f.alloc(), pos: pos}, Discriminant: discriminant, Cases: cases}
}

func (f *Factory) Labeled(pos Position, label string, body Node) *Labeled {
	requireNonNil(KindLabeled, "Body", body)
	return &Labeled{base: base{id: f.alloc(), pos: pos}, Label: label, Body: body}
}

func (f *Factory) Identifier(pos Position, name string) *Identifier {
	return &Identifier{base: base{id: f.alloc(), pos: pos}, Name: name}
}

func (f *Factory) Literal(pos Position, value interface{}, kind LiteralKind, raw string) *Literal {
	return &Literal{base: base{id: f.alloc(), pos: pos}, Value: value, LitKind: kind, Raw: raw}
}

func (f *Factory) Binary(pos Position, op string, left, right Node) *Binary {
	requireNonNil(KindBinary, "Left", left)
	requireNonNil(KindBinary, "Right", right)
	return &Binary{base: base{id: f.alloc(), pos: pos}, Op: op, Left: left, Right: right}
}

func (f *Factory) Unary(pos Position, op string, operand Node, prefix bool) *Unary {
	requireNonNil(KindUnary, "Operand", operand)
	return &Unary{base: base{id: f.alloc(), pos: pos}, Op: op, Operand: operand, Prefix: prefix}
}

func (f *Factory) Update(pos Position, op string, operand Node, prefix bool) *Update {
	requireNonNil(KindUpdate, "Operand", operand)
	return &Update{base: base{id: f.alloc(), pos: pos}, Op: op, Operand: operand, Prefix: prefix}
}

func (f *Factory) Logical(pos Position, op string, left, right Node) *Logical {
	requireNonNil(KindLogical, "Left", left)
	requireNonNil(KindLogical, "Right", right)
	return &Logical{base: base{id: f.alloc(), pos: pos}, Op: op, Left: left, Right: right}
}

func (f *Factory) Conditional(pos Position, test, consequent, alternate Node) *Conditional {
	requireNonNil(KindConditional, "Test", test)
	requireNonNil(KindConditional, "Consequent", consequent)
	requireNonNil(KindConditional, "Alternate", alternate)
	return &Conditional{base: base{id: f.alloc(), pos: pos}, Test: test, Consequent: consequent, Alternate: alternate}
}

func (f *Factory) Assignment(pos Position, op string, target, value Node) *Assignment {
	requireNonNil(KindAssignment, "Target", target)
	requireNonNil(KindAssignment, "Value", value)
	return &Assignment{base: base{id: f.alloc(), pos: pos}, Op: op, Target: target, Value: value}
}

func (f *Factory) Call(pos Position, callee Node, args []Node, optional bool) *Call {
	requireNonNil(KindCall, "Callee", callee)
	return &Call{base: base{id: f.alloc(), pos: pos}, Callee: callee, Args: args, Optional: optional}
}

func (f *Factory) New(pos Position, callee Node, args []Node) *New {
	requireNonNil(KindNew, "Callee", callee)
	return &New{base: base{id: f.alloc(), pos: pos}, Callee: callee, Args: args}
}

func (f *Factory) Member(pos Position, object, property Node, computed, optional bool) *Member {
	requireNonNil(KindMember, "Object", object)
	requireNonNil(KindMember, "Property", property)
	return &Member{base: base{id: f.alloc(), pos: pos}, Object: object, Property: property, Computed: computed, Optional: optional}
}

func (f *Factory) Array(pos Position, elements []Node) *Array {
	return &Array{base: base{id: f.alloc(), pos: pos}, Elements: elements}
}

func (f *Factory) Property(pos Position, key, value Node, computed bool) *Property {
	requireNonNil(KindProperty, "Key", key)
	requireNonNil(KindProperty, "Value", value)
	return &Property{base: base{id: f.alloc(), pos: pos}, Key: key, Value: value, Computed: computed}
}

func (f *Factory) Object(pos Position, props []*Property) *Object {
	return &Object{base: base{id: f.alloc(), pos: pos}, Properties: props}
}

func (f *Factory) Sequence(pos Position, exprs []Node) *Sequence {
	return &Sequence{base: base{id: f.alloc(), pos: pos}, Expressions: exprs}
}

func (f *Factory) Phi(pos Position, block string, operands []PhiOperand) *Phi {
	return &Phi{base: base{id: f.alloc(), pos: pos}, Block: block, Operands: operands}
}

func (f *Factory) SSAIdentifier(pos Position, originalName string, version int) *SSAIdentifier {
	return &SSAIdentifier{base: base{id: f.alloc(), pos: pos}, OriginalName: originalName, Version: version}
}
