// Package opaque implements opaque-predicate elimination (spec.md §4.9):
// recognizing boolean expressions that are provably always-true or
// always-false regardless of runtime input, and simplifying the branch
// they guard accordingly. Step 1 matches a small built-in pattern
// library (internal/passes/opaque's rule DSL); step 2 falls back to an
// smt.Solver collaborator for anything the patterns miss; step 3 only
// ever applies a rewrite when confidence clears a threshold, otherwise
// reporting the candidate as a warning rather than risking a wrong
// simplification.
package opaque

import (
	"context"
	"fmt"
	"time"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/smt"
)

const (
	defaultComplexityBound  = 64
	defaultConfidenceThresh = 0.75
	defaultSolverConfidence = 0.6
	defaultQueryBudget      = 30 * time.Second
)

// Pass eliminates opaque predicates guarding If and While constructs and
// folds ternary (Conditional) expressions whose test is provably
// constant, anywhere in a statement's expression tree.
type Pass struct {
	Rules               *RuleFile
	Solver              smt.Solver
	ComplexityBound     int
	ConfidenceThreshold float64
	QueryBudget         time.Duration
}

func New() *Pass {
	rules, err := ParseRules(defaultRuleSource)
	if err != nil {
		rules = &RuleFile{}
	}
	return &Pass{
		Rules:               rules,
		Solver:              smt.NewBoundedSolver(),
		ComplexityBound:     defaultComplexityBound,
		ConfidenceThreshold: defaultConfidenceThresh,
		QueryBudget:         defaultQueryBudget,
	}
}

func (p *Pass) Name() string { return "opaque-predicate-elimination" }
func (p *Pass) Description() string {
	return "folds provably-constant if/while/ternary guards via a pattern library and a bounded SMT collaborator"
}
func (p *Pass) RequiresSSA() bool        { return false }
func (p *Pass) MutatesControlFlow() bool { return true }

// verdict pairs a classification with the confidence backing it and a
// human-readable provenance string for warnings.
type verdict struct {
	kind       smt.Verdict
	confidence float64
	source     string
}

func (p *Pass) classify(ctx context.Context, expr ir.Node) verdict {
	for _, rule := range p.Rules.Rules {
		b := bindings{}
		if !matchExpr(rule.Pattern, expr, b) {
			continue
		}
		conf := 0.97
		if rule.Prior != nil {
			conf = *rule.Prior / 100.0
		}
		kind := smt.Unknown
		switch rule.Verdict {
		case "tautology":
			kind = smt.Tautology
		case "contradiction":
			kind = smt.Contradiction
		}
		return verdict{kind: kind, confidence: conf, source: "pattern:" + rule.Name}
	}

	if exprSize(expr) <= p.ComplexityBound {
		if lowered, ok := lower(expr); ok {
			budget := p.QueryBudget
			if budget <= 0 {
				budget = defaultQueryBudget
			}
			kind := smt.Classify(ctx, p.Solver, smt.Query{Expr: lowered, Budget: budget})
			if kind != smt.Unknown {
				return verdict{kind: kind, confidence: defaultSolverConfidence, source: "smt"}
			}
		}
	}
	return verdict{kind: smt.Unknown}
}

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	ctx := context.Background()
	visited := 0
	changed := 0
	var warnings []pass.Warning

	threshold := p.ConfidenceThreshold
	if threshold <= 0 {
		threshold = defaultConfidenceThresh
	}

	for _, label := range state.Graph.OrderedLabels() {
		b := state.Graph.Blocks[label]
		visited++

		if handled := p.tryIf(state.Graph, b, threshold, ctx, &warnings); handled {
			changed++
		}
		if handled := p.tryWhile(state.Graph, b, state.Factory, threshold, ctx, &warnings); handled {
			changed++
		}
		changed += p.foldConditionals(b, threshold, ctx, &warnings)
	}

	return pass.Result{
		State:    state,
		Changed:  changed > 0,
		Metrics:  pass.Metrics{NodesVisited: visited, NodesChanged: changed},
		Warnings: warnings,
	}, nil
}

// tryIf looks for an *cfg.IfMarker among b's statements (the builder
// places one per If it lowers, leaving the nested ir.If reachable) and
// collapses the branch when its test is provably constant above
// threshold.
func (p *Pass) tryIf(g *cfg.Graph, b *cfg.Block, threshold float64, ctx context.Context, warnings *[]pass.Warning) bool {
	for i, stmt := range b.Statements {
		marker, ok := stmt.(*cfg.IfMarker)
		if !ok {
			continue
		}
		v := p.classify(ctx, marker.Test)
		if v.kind == smt.Unknown {
			return false
		}
		if v.confidence < threshold {
			*warnings = append(*warnings, pass.Warning{
				Code:    "opaque.low-confidence",
				Message: fmt.Sprintf("block %s: if-guard classified %v via %s at confidence %.2f, below threshold; left intact", b.Label, v.kind, v.source, v.confidence),
			})
			return false
		}

		keep := cfg.EdgeConditionalTrue
		drop := cfg.EdgeConditionalFalse
		if v.kind == smt.Contradiction {
			keep, drop = drop, keep
		}

		var keptTarget string
		var rest []cfg.Edge
		for _, e := range g.Edges {
			if e.From == b.Label && e.Type == keep {
				keptTarget = e.To
				continue
			}
			if e.From == b.Label && e.Type == drop {
				continue
			}
			rest = append(rest, e)
		}
		g.Edges = rest
		b.Successors = nil
		if keptTarget != "" {
			g.AddEdge(cfg.Edge{From: b.Label, To: keptTarget, Type: cfg.EdgeFallThrough})
		}

		b.Statements = append(append([]ir.Node{}, b.Statements[:i]...), b.Statements[i+1:]...)
		return true
	}
	return false
}

// tryWhile recognizes a block whose sole statement is the unsplit
// *ir.While the builder leaves in a loop header (mirroring deflatten's
// reading of the same shape) and removes a loop whose test is a
// confirmed contradiction (the body provably never runs), or simplifies
// the test expression to a literal when it is a confirmed tautology
// (the loop itself is left intact — collapsing an infinite loop's
// structure away is out of scope for this pass).
func (p *Pass) tryWhile(g *cfg.Graph, b *cfg.Block, factory *ir.Factory, threshold float64, ctx context.Context, warnings *[]pass.Warning) bool {
	if len(b.Statements) != 1 {
		return false
	}
	loop, ok := b.Statements[0].(*ir.While)
	if !ok {
		return false
	}
	v := p.classify(ctx, loop.Test)
	if v.kind == smt.Unknown {
		return false
	}
	if v.confidence < threshold {
		*warnings = append(*warnings, pass.Warning{
			Code:    "opaque.low-confidence",
			Message: fmt.Sprintf("block %s: while-guard classified %v via %s at confidence %.2f, below threshold; left intact", b.Label, v.kind, v.source, v.confidence),
		})
		return false
	}

	switch v.kind {
	case smt.Contradiction:
		var exitLabel string
		for _, e := range g.Edges {
			if e.From == b.Label && e.Type == cfg.EdgeConditionalFalse {
				exitLabel = e.To
				break
			}
		}
		var rest []cfg.Edge
		for _, e := range g.Edges {
			if e.From == b.Label {
				continue
			}
			rest = append(rest, e)
		}
		g.Edges = rest
		b.Successors = nil
		if exitLabel != "" {
			g.AddEdge(cfg.Edge{From: b.Label, To: exitLabel, Type: cfg.EdgeFallThrough})
		}
		b.Statements = nil
		return true
	case smt.Tautology:
		if lit, ok := loop.Test.(*ir.Literal); ok {
			if bv, ok := lit.Value.(bool); ok && bv {
				return false // already in canonical form
			}
		}
		loop.Test = factory.Literal(loop.Test.Pos(), true, ir.LiteralBoolean, "true")
		return true
	default:
		return false
	}
}

// foldConditionals rewrites ternary expressions anywhere in a block's
// statements whose test is provably constant, replacing the whole
// Conditional with its live branch in place.
func (p *Pass) foldConditionals(b *cfg.Block, threshold float64, ctx context.Context, warnings *[]pass.Warning) int {
	changed := 0
	for i, stmt := range b.Statements {
		b.Statements[i] = p.foldExpr(stmt, threshold, ctx, warnings, &changed)
	}
	return changed
}

func (p *Pass) foldExpr(n ir.Node, threshold float64, ctx context.Context, warnings *[]pass.Warning, changed *int) ir.Node {
	if n == nil {
		return nil
	}
	switch v := n.(type) {
	case *ir.Conditional:
		v.Test = p.foldExpr(v.Test, threshold, ctx, warnings, changed)
		v.Consequent = p.foldExpr(v.Consequent, threshold, ctx, warnings, changed)
		v.Alternate = p.foldExpr(v.Alternate, threshold, ctx, warnings, changed)
		verd := p.classify(ctx, v.Test)
		if verd.kind == smt.Unknown {
			return v
		}
		if verd.confidence < threshold {
			*warnings = append(*warnings, pass.Warning{
				Code:    "opaque.low-confidence",
				Message: fmt.Sprintf("ternary classified %v via %s at confidence %.2f, below threshold; left intact", verd.kind, verd.source, verd.confidence),
			})
			return v
		}
		*changed++
		if verd.kind == smt.Tautology {
			return v.Consequent
		}
		return v.Alternate
	case *ir.Binary:
		v.Left = p.foldExpr(v.Left, threshold, ctx, warnings, changed)
		v.Right = p.foldExpr(v.Right, threshold, ctx, warnings, changed)
		return v
	case *ir.Logical:
		v.Left = p.foldExpr(v.Left, threshold, ctx, warnings, changed)
		v.Right = p.foldExpr(v.Right, threshold, ctx, warnings, changed)
		return v
	case *ir.Unary:
		v.Operand = p.foldExpr(v.Operand, threshold, ctx, warnings, changed)
		return v
	case *ir.Update:
		v.Operand = p.foldExpr(v.Operand, threshold, ctx, warnings, changed)
		return v
	case *ir.Assignment:
		v.Target = p.foldExpr(v.Target, threshold, ctx, warnings, changed)
		v.Value = p.foldExpr(v.Value, threshold, ctx, warnings, changed)
		return v
	case *ir.Call:
		v.Callee = p.foldExpr(v.Callee, threshold, ctx, warnings, changed)
		for i, a := range v.Args {
			v.Args[i] = p.foldExpr(a, threshold, ctx, warnings, changed)
		}
		return v
	case *ir.New:
		v.Callee = p.foldExpr(v.Callee, threshold, ctx, warnings, changed)
		for i, a := range v.Args {
			v.Args[i] = p.foldExpr(a, threshold, ctx, warnings, changed)
		}
		return v
	case *ir.Member:
		v.Object = p.foldExpr(v.Object, threshold, ctx, warnings, changed)
		if v.Computed {
			v.Property = p.foldExpr(v.Property, threshold, ctx, warnings, changed)
		}
		return v
	case *ir.Array:
		for i, e := range v.Elements {
			if e != nil {
				v.Elements[i] = p.foldExpr(e, threshold, ctx, warnings, changed)
			}
		}
		return v
	case *ir.Sequence:
		for i, e := range v.Expressions {
			v.Expressions[i] = p.foldExpr(e, threshold, ctx, warnings, changed)
		}
		return v
	case *ir.VariableDeclaration:
		for _, d := range v.Declarators {
			d.Init = p.foldExpr(d.Init, threshold, ctx, warnings, changed)
		}
		return v
	case *ir.ExpressionStatement:
		v.Expr = p.foldExpr(v.Expr, threshold, ctx, warnings, changed)
		return v
	case *ir.Return:
		v.Value = p.foldExpr(v.Value, threshold, ctx, warnings, changed)
		return v
	default:
		return n
	}
}
