package constprop

import (
	"strconv"

	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/ssa"
)

// evaluator resolves SSA-identifiers and expressions to abstract
// values, memoizing per (name, version) pair and bounding its own work
// by budget — internal/config's Constprop.EnhancedEvaluationBound,
// threaded in by Pass.Run — so a pathological expression graph (a long
// chain of φ-nodes, or a deeply nested pure-call interpretation) can't
// make a single pass run unboundedly long; once the budget is spent,
// every further resolution degrades to Top rather than erroring.
type evaluator struct {
	st      *ssa.State
	purity  map[string]PureFunctionSummary
	budget  int
	memo    map[string]AbstractValue
	visited map[string]bool
}

func newEvaluator(st *ssa.State, purity map[string]PureFunctionSummary, budget int) *evaluator {
	if budget <= 0 {
		budget = 256
	}
	return &evaluator{
		st:      st,
		purity:  purity,
		budget:  budget,
		memo:    map[string]AbstractValue{},
		visited: map[string]bool{},
	}
}

// tick reports whether the evaluator still has budget to do one more
// unit of work, consuming it if so.
func (e *evaluator) tick() bool {
	if e.budget <= 0 {
		return false
	}
	e.budget--
	return true
}

func ssaKey(name string, version int) string {
	return name + "#" + strconv.Itoa(version)
}

// resolve is the abstract value of one SSA version, resolving through
// its reaching definition (possibly a φ-node, in which case this joins
// every incoming operand) and memoizing the result. A version currently
// being resolved higher up the call stack (a loop-carried φ depending
// on itself through the back edge) degrades to Top rather than
// recursing forever — a self-referential value across iterations is
// rarely a single constant or bounded range anyway.
func (e *evaluator) resolve(name string, version int) AbstractValue {
	if version == 0 {
		// Sentinel for "read before any definition reaches here" (see
		// ssa.constructor.currentOrUndefined); nothing is known.
		return Top{}
	}
	key := ssaKey(name, version)
	if v, ok := e.memo[key]; ok {
		return v
	}
	if e.visited[key] {
		return Top{}
	}
	if !e.tick() {
		return Top{}
	}
	e.visited[key] = true
	defer delete(e.visited, key)

	def, ok := e.st.UseDef.Def(name, version)
	var result AbstractValue = Top{}
	switch {
	case !ok:
		result = Top{}
	case def.IsPhi:
		phi, ok := def.Statement.(*ir.Phi)
		if ok {
			var acc AbstractValue = Bottom{}
			for _, op := range phi.Operands {
				acc = join(acc, e.eval(op.Value, nil))
			}
			result = acc
		}
	default:
		result = e.evalDef(def.Statement)
	}
	e.memo[key] = result
	return result
}

func (e *evaluator) evalDef(stmt ir.Node) AbstractValue {
	switch v := stmt.(type) {
	case *ir.Declarator:
		return e.eval(v.Init, nil)
	case *ir.Assignment:
		if v.Op != "=" {
			return Top{}
		}
		return e.eval(v.Value, nil)
	default:
		return Top{}
	}
}

// eval evaluates an expression to an abstract value. bind is nil when
// evaluating SSA-form code (the pipeline's normal graph, where local
// reads are *ir.SSAIdentifier and resolved via resolve); bind is
// non-nil when interpreting a plain, pre-SSA function body for
// compile-time pure-call evaluation, in which case a bare *ir.Identifier
// resolves against bind instead.
func (e *evaluator) eval(n ir.Node, bind map[string]AbstractValue) AbstractValue {
	if n == nil || !e.tick() {
		return Top{}
	}
	switch v := n.(type) {
	case *ir.Literal:
		return Constant{Value: v.Value, Kind: v.LitKind}
	case *ir.SSAIdentifier:
		return e.resolve(v.OriginalName, v.Version)
	case *ir.Identifier:
		if bind != nil {
			if val, ok := bind[v.Name]; ok {
				return val
			}
		}
		return Top{}
	case *ir.Unary:
		return e.evalUnary(v, bind)
	case *ir.Binary:
		return e.evalBinary(v, bind)
	case *ir.Logical:
		return e.evalLogical(v, bind)
	case *ir.Conditional:
		test := e.eval(v.Test, bind)
		if c, ok := test.(Constant); ok {
			if truthy(c) {
				return e.eval(v.Consequent, bind)
			}
			return e.eval(v.Alternate, bind)
		}
		return join(e.eval(v.Consequent, bind), e.eval(v.Alternate, bind))
	case *ir.Sequence:
		var last AbstractValue = Top{}
		for _, expr := range v.Expressions {
			last = e.eval(expr, bind)
		}
		return last
	case *ir.Object:
		return e.evalObject(v, bind)
	case *ir.Member:
		return e.evalMember(v, bind)
	case *ir.Call:
		return e.evalCall(v, bind)
	case *ir.FunctionDeclaration:
		if v.Name != nil {
			if s, ok := e.purity[v.Name.Name]; ok {
				return s
			}
		}
		return Top{}
	default:
		return Top{}
	}
}

func numberOf(c Constant) (float64, bool) {
	n, ok := c.Value.(float64)
	return n, ok
}

func truthy(c Constant) bool {
	switch c.Kind {
	case ir.LiteralBoolean:
		b, _ := c.Value.(bool)
		return b
	case ir.LiteralNumber:
		n, _ := c.Value.(float64)
		return n != 0
	case ir.LiteralString:
		s, _ := c.Value.(string)
		return s != ""
	case ir.LiteralNull:
		return false
	default:
		return true
	}
}

func jsTypeOf(c Constant) string {
	switch c.Kind {
	case ir.LiteralNumber:
		return "number"
	case ir.LiteralString:
		return "string"
	case ir.LiteralBoolean:
		return "boolean"
	case ir.LiteralBigInt:
		return "bigint"
	case ir.LiteralNull:
		return "object"
	default:
		return "object"
	}
}

func (e *evaluator) evalUnary(v *ir.Unary, bind map[string]AbstractValue) AbstractValue {
	operand := e.eval(v.Operand, bind)
	if v.Op == "typeof" {
		if c, ok := operand.(Constant); ok {
			return Constant{Value: jsTypeOf(c), Kind: ir.LiteralString}
		}
		return Top{}
	}
	c, ok := operand.(Constant)
	if !ok {
		return Top{}
	}
	switch v.Op {
	case "-":
		if n, ok := numberOf(c); ok {
			return Constant{Value: -n, Kind: ir.LiteralNumber}
		}
	case "+":
		if n, ok := numberOf(c); ok {
			return Constant{Value: n, Kind: ir.LiteralNumber}
		}
	case "!":
		return Constant{Value: !truthy(c), Kind: ir.LiteralBoolean}
	case "~":
		if n, ok := numberOf(c); ok {
			return Constant{Value: float64(^int64(n)), Kind: ir.LiteralNumber}
		}
	case "void":
		return Constant{Value: nil, Kind: ir.LiteralNull}
	}
	return Top{}
}

func asRange(a AbstractValue) (IntegerRange, bool) {
	switch v := a.(type) {
	case IntegerRange:
		return v, true
	case Constant:
		if n, ok := asInt(v); ok {
			return IntegerRange{Lo: n, Hi: n}, true
		}
	}
	return IntegerRange{}, false
}

func (e *evaluator) evalBinary(v *ir.Binary, bind map[string]AbstractValue) AbstractValue {
	left := e.eval(v.Left, bind)
	right := e.eval(v.Right, bind)

	if lc, ok := left.(Constant); ok {
		if rc, ok := right.(Constant); ok {
			if result, ok := evalConstBinary(v.Op, lc, rc); ok {
				return result
			}
		}
	}

	if v.Op == "+" || v.Op == "-" {
		if lr, ok := asRange(left); ok {
			if rr, ok := asRange(right); ok {
				if v.Op == "+" {
					return normalizeRange(IntegerRange{Lo: lr.Lo + rr.Lo, Hi: lr.Hi + rr.Hi})
				}
				return normalizeRange(IntegerRange{Lo: lr.Lo - rr.Hi, Hi: lr.Hi - rr.Lo})
			}
		}
	}
	return Top{}
}

func evalConstBinary(op string, l, r Constant) (AbstractValue, bool) {
	ln, lok := numberOf(l)
	rn, rok := numberOf(r)
	if lok && rok {
		switch op {
		case "+":
			return Constant{Value: ln + rn, Kind: ir.LiteralNumber}, true
		case "-":
			return Constant{Value: ln - rn, Kind: ir.LiteralNumber}, true
		case "*":
			return Constant{Value: ln * rn, Kind: ir.LiteralNumber}, true
		case "/":
			if rn != 0 {
				return Constant{Value: ln / rn, Kind: ir.LiteralNumber}, true
			}
		case "%":
			if rn != 0 {
				return Constant{Value: float64(int64(ln) % int64(rn)), Kind: ir.LiteralNumber}, true
			}
		case "**":
			return Constant{Value: pow(ln, rn), Kind: ir.LiteralNumber}, true
		case "<":
			return Constant{Value: ln < rn, Kind: ir.LiteralBoolean}, true
		case "<=":
			return Constant{Value: ln <= rn, Kind: ir.LiteralBoolean}, true
		case ">":
			return Constant{Value: ln > rn, Kind: ir.LiteralBoolean}, true
		case ">=":
			return Constant{Value: ln >= rn, Kind: ir.LiteralBoolean}, true
		}
	}
	switch op {
	case "===":
		return Constant{Value: l.Kind == r.Kind && l.Value == r.Value, Kind: ir.LiteralBoolean}, true
	case "!==":
		return Constant{Value: !(l.Kind == r.Kind && l.Value == r.Value), Kind: ir.LiteralBoolean}, true
	case "==":
		return Constant{Value: l.Value == r.Value, Kind: ir.LiteralBoolean}, true
	case "!=":
		return Constant{Value: l.Value != r.Value, Kind: ir.LiteralBoolean}, true
	}
	if ls, ok := l.Value.(string); ok && op == "+" {
		if rs, ok := r.Value.(string); ok {
			return Constant{Value: ls + rs, Kind: ir.LiteralString}, true
		}
	}
	return nil, false
}

func pow(base, exp float64) float64 {
	if exp == 0 {
		return 1
	}
	result := 1.0
	neg := exp < 0
	if neg {
		exp = -exp
	}
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	if neg {
		return 1 / result
	}
	return result
}

func (e *evaluator) evalLogical(v *ir.Logical, bind map[string]AbstractValue) AbstractValue {
	left := e.eval(v.Left, bind)
	lc, ok := left.(Constant)
	if !ok {
		return Top{}
	}
	switch v.Op {
	case "&&":
		if !truthy(lc) {
			return left
		}
		return e.eval(v.Right, bind)
	case "||":
		if truthy(lc) {
			return left
		}
		return e.eval(v.Right, bind)
	case "??":
		if lc.Kind == ir.LiteralNull {
			return e.eval(v.Right, bind)
		}
		return left
	}
	return Top{}
}

func propertyKeyName(key ir.Node) (string, bool) {
	switch k := key.(type) {
	case *ir.Identifier:
		return k.Name, true
	case *ir.Literal:
		if s, ok := k.Value.(string); ok {
			return s, true
		}
	}
	return "", false
}

func (e *evaluator) evalObject(v *ir.Object, bind map[string]AbstractValue) AbstractValue {
	props := make(map[string]AbstractValue, len(v.Properties))
	for _, p := range v.Properties {
		if p.Computed {
			return Top{}
		}
		name, ok := propertyKeyName(p.Key)
		if !ok {
			return Top{}
		}
		props[name] = e.eval(p.Value, bind)
	}
	return SealedObject{Properties: props}
}

func (e *evaluator) evalMember(v *ir.Member, bind map[string]AbstractValue) AbstractValue {
	obj := e.eval(v.Object, bind)
	sealed, ok := obj.(SealedObject)
	if !ok {
		return Top{}
	}
	var name string
	if v.Computed {
		pc, ok := e.eval(v.Property, bind).(Constant)
		if !ok {
			return Top{}
		}
		s, ok := pc.Value.(string)
		if !ok {
			return Top{}
		}
		name = s
	} else {
		n, ok := propertyKeyName(v.Property)
		if !ok {
			return Top{}
		}
		name = n
	}
	if val, ok := sealed.Properties[name]; ok {
		return val
	}
	// A sealed object's property set is exhaustive by construction, so a
	// name outside it is provably undefined rather than unknown.
	return Constant{Value: nil, Kind: ir.LiteralNull}
}

// evalCall evaluates a call expression, folding it to a Constant when
// the callee resolves to a summary this run already proved pure and
// every argument is itself a Constant — spec.md §4.6's "compile-time
// evaluation of pure calls with constant arguments". Anything else
// (an unresolved callee, a non-constant argument, or a body the bounded
// interpreter below can't follow) degrades to Top.
func (e *evaluator) evalCall(v *ir.Call, bind map[string]AbstractValue) AbstractValue {
	id, ok := v.Callee.(*ir.Identifier)
	if !ok {
		return Top{}
	}
	summary, ok := e.purity[id.Name]
	if !ok {
		return Top{}
	}
	args := make([]AbstractValue, len(v.Args))
	for i, a := range v.Args {
		av := e.eval(a, bind)
		if _, ok := av.(Constant); !ok {
			return Top{}
		}
		args[i] = av
	}
	result, ok := e.evalPureCall(summary.Decl, args)
	if !ok {
		return Top{}
	}
	return result
}

// evalPureCall interprets fn's body against args bound positionally to
// its parameters: a small, bounded interpreter covering the
// straight-line shapes a pure helper typically has (declarations,
// reassignment of its own locals, a constant-guarded if, a single
// return). Anything it doesn't recognize — a loop, a switch, recursion
// deep enough to exhaust budget — reports false rather than guessing,
// leaving the call unevaluated.
func (e *evaluator) evalPureCall(fn *ir.FunctionDeclaration, args []AbstractValue) (AbstractValue, bool) {
	if !e.tick() {
		return nil, false
	}
	bind := make(map[string]AbstractValue, len(fn.Params))
	for i, p := range fn.Params {
		if i < len(args) {
			bind[p.Name] = args[i]
		} else {
			bind[p.Name] = Constant{Value: nil, Kind: ir.LiteralNull}
		}
	}
	return e.execStmts(fn.Body.Body, bind)
}

// execStmts runs a straight-line statement list, returning the value of
// the first Return it reaches. ok is false when a statement the
// interpreter doesn't model is encountered.
func (e *evaluator) execStmts(stmts []ir.Node, bind map[string]AbstractValue) (AbstractValue, bool) {
	for _, stmt := range stmts {
		if !e.tick() {
			return nil, false
		}
		switch v := stmt.(type) {
		case *ir.VariableDeclaration:
			for _, d := range v.Declarators {
				id, ok := d.Name.(*ir.Identifier)
				if !ok {
					return nil, false
				}
				bind[id.Name] = e.eval(d.Init, bind)
			}
		case *ir.ExpressionStatement:
			if asn, ok := v.Expr.(*ir.Assignment); ok && asn.Op == "=" {
				id, ok := asn.Target.(*ir.Identifier)
				if !ok {
					return nil, false
				}
				bind[id.Name] = e.eval(asn.Value, bind)
				continue
			}
			return nil, false
		case *ir.Return:
			if v.Value == nil {
				return Constant{Value: nil, Kind: ir.LiteralNull}, true
			}
			return e.eval(v.Value, bind), true
		case *ir.If:
			test := e.eval(v.Test, bind)
			c, ok := test.(Constant)
			if !ok {
				return nil, false
			}
			branch := v.Alternate
			if truthy(c) {
				branch = v.Consequent
			}
			if branch == nil {
				continue
			}
			body, ok := blockBody(branch)
			if !ok {
				return nil, false
			}
			if val, done := e.execStmts(body, bind); done {
				return val, true
			}
		default:
			return nil, false
		}
	}
	return nil, false
}

func blockBody(n ir.Node) ([]ir.Node, bool) {
	switch v := n.(type) {
	case *ir.Block:
		return v.Body, true
	default:
		if ir.IsStatement(v) {
			return []ir.Node{v}, true
		}
		return nil, false
	}
}
