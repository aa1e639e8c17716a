// Package rename implements intelligent identifier renaming (spec.md
// §4.12): replacing obfuscated-looking identifier names with
// descriptive ones while preserving scope. It builds a lexical scope
// tree over the program — one scope per function body plus the
// top-level program, the granularity this IR actually models, since
// internal/cfg flattens if/while/for bodies into the same function-level
// graph rather than preserving a separate per-block lexical scope —
// resolves every identifier reference (including ones a nested function
// captures from an enclosing scope) to the binding it refers to, then
// renames each obfuscated-looking binding and every one of its
// resolved uses together.
//
// Unlike internal/passes/structure, this pass is a heuristic, not a
// provability-gated rewrite: spec.md §4.12 describes a context-aware
// naming heuristic with an optional external collaborator, not a
// transformation that must be provable from dominance or liveness, so
// its gating is confidence and validation, not a dominance fact.
package rename

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/naming"
	"github.com/deobfuscator/core/internal/pass"
)

const defaultConfidenceThreshold = 0.7

var (
	hexPrefixPattern    = regexp.MustCompile(`^_0x[0-9a-fA-F]+$`)
	dollarPrefixPattern = regexp.MustCompile(`^_\$[A-Za-z0-9]+$`)
	hexSuffixPattern    = regexp.MustCompile(`_[0-9a-fA-F]{4,}$`)
	identifierPattern   = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)

var reservedWords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true, "do": true,
	"else": true, "export": true, "extends": true, "finally": true, "for": true,
	"function": true, "if": true, "import": true, "in": true, "instanceof": true,
	"new": true, "return": true, "super": true, "switch": true, "this": true,
	"throw": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true, "let": true, "static": true,
	"null": true, "true": true, "false": true, "async": true, "await": true,
	"undefined": true, "NaN": true, "Infinity": true,
}

// Pass replaces obfuscated-looking identifier bindings (and every
// resolved use of each) in place, scope by scope.
type Pass struct {
	Helper              naming.Helper
	ConfidenceThreshold float64
}

// New returns a Pass consulting helper for name suggestions; a nil
// helper degrades to naming.NoOpHelper, the same tolerant-absence
// behavior every other external-collaborator pass in this repository
// gives a missing collaborator.
func New(helper naming.Helper) *Pass {
	if helper == nil {
		helper = naming.NoOpHelper{}
	}
	return &Pass{Helper: helper, ConfidenceThreshold: defaultConfidenceThreshold}
}

func (p *Pass) Name() string { return "intelligent-renaming" }
func (p *Pass) Description() string {
	return "replaces obfuscated-looking identifiers with descriptive, scope-correct names"
}
func (p *Pass) RequiresSSA() bool        { return false }
func (p *Pass) MutatesControlFlow() bool { return false }

func (p *Pass) Run(state *pass.IRState) (pass.Result, error) {
	ctx := context.Background()
	threshold := p.ConfidenceThreshold
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}

	col := &collector{funcsByName: map[string]*ir.FunctionDeclaration{}}
	root := newLexScope(nil)
	collectDeclarations(state.Graph, root, col)
	collectReferences(state.Graph, root, col)
	col.allScopes = append([]*lexScope{root}, col.allScopes...)

	var allBindings []*binding
	for _, sc := range col.allScopes {
		for _, b := range sc.bindings {
			allBindings = append(allBindings, b)
		}
	}
	sort.Slice(allBindings, func(i, j int) bool {
		return allBindings[i].declSite.ID() < allBindings[j].declSite.ID()
	})

	var warnings []pass.Warning
	visited, changed := 0, 0
	for _, b := range allBindings {
		visited++
		if !isObfuscatedName(b) {
			continue
		}
		newName := p.chooseName(ctx, b, col, threshold, &warnings)
		if newName == b.name {
			continue
		}
		applyRename(b, newName)
		changed++
	}

	return pass.Result{
		State:    state,
		Changed:  changed > 0,
		Metrics:  pass.Metrics{NodesVisited: visited, NodesChanged: changed},
		Warnings: warnings,
	}, nil
}

// callArgHint records that an identifier reference was seen as the
// direct argument at index Index of a call to CalleeName, a signal the
// name-source heuristic uses to promote a variable's name to the
// callee's own parameter name when that parameter isn't itself
// obfuscated-looking.
type callArgHint struct {
	calleeName string
	index      int
}

// binding is one declared name within a lexScope: the identifier node
// that introduces it (renamed in place, never replaced, so every other
// reference to the same underlying variable keeps pointing at a live
// node), its role, its initializer (for the name-source heuristic), and
// every other identifier node resolved to refer to it.
type binding struct {
	name     string
	role     string // "variable", "function-parameter", "function-name"
	declSite *ir.Identifier
	init     ir.Node // nil for parameters and function names
	uses     []*ir.Identifier
	argHints []callArgHint
	scope    *lexScope
}

// lexScope is one function body's (or the top-level program's) flat
// binding set — the granularity internal/cfg actually preserves once a
// program is built, since an if/while/for body never gets its own
// scope distinct from its enclosing function.
type lexScope struct {
	parent   *lexScope
	bindings map[string]*binding
	occupied map[string]bool // every name visible in this scope, bound or free
}

func newLexScope(parent *lexScope) *lexScope {
	return &lexScope{parent: parent, bindings: map[string]*binding{}, occupied: map[string]bool{}}
}

func (s *lexScope) declare(name string, b *binding) {
	b.scope = s
	s.bindings[name] = b
	s.occupied[name] = true
}

// resolve finds the binding name refers to, searching this scope then
// each ancestor in turn, the same lexical-scoping order a real
// JavaScript engine applies when a nested function closes over an
// outer variable.
func (s *lexScope) resolve(name string) *binding {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.bindings[name]; ok {
			return b
		}
	}
	return nil
}

// collector holds state shared across the whole scope tree: every
// function declaration seen by name (for call-argument name promotion)
// and every scope created, in discovery order, for a final flat pass
// over every binding once collection is complete.
type collector struct {
	funcsByName map[string]*ir.FunctionDeclaration
	allScopes   []*lexScope
}

// collectDeclarations populates sc with every binding g's own blocks
// introduce directly — variable declarators (including a for-loop's
// Init, which cfg.Build leaves as a bare VariableDeclaration statement
// indistinguishable in shape from an ordinary one) and function
// declarations — without descending into any nested function body.
// Declarations are collected in a pass separate from references so
// that a reference lexically preceding its declaration in source order
// (hoisting, or a helper function called before its own declaration
// appears later in the same scope) still resolves correctly.
func collectDeclarations(g *cfg.Graph, sc *lexScope, col *collector) {
	for _, label := range g.OrderedLabels() {
		for _, stmt := range g.Blocks[label].Statements {
			declareStmt(stmt, sc, col)
		}
	}
}

func declareStmt(n ir.Node, sc *lexScope, col *collector) {
	switch v := n.(type) {
	case *ir.VariableDeclaration:
		for _, d := range v.Declarators {
			if id, ok := d.Name.(*ir.Identifier); ok {
				sc.declare(id.Name, &binding{name: id.Name, role: "variable", declSite: id, init: d.Init})
			}
		}
	case *ir.FunctionDeclaration:
		if v.Name != nil {
			sc.declare(v.Name.Name, &binding{name: v.Name.Name, role: "function-name", declSite: v.Name})
			col.funcsByName[v.Name.Name] = v
		}
	}
}

// collectReferences walks g's statements a second time, this time
// resolving every identifier reference against sc (and, through it,
// every ancestor scope, already fully declared by the time any child
// scope starts collecting its own references) and recursing into each
// nested function body with a freshly declared child scope.
func collectReferences(g *cfg.Graph, sc *lexScope, col *collector) {
	for _, label := range g.OrderedLabels() {
		for _, stmt := range g.Blocks[label].Statements {
			refStmt(stmt, sc, col)
		}
	}
}

func refStmt(n ir.Node, sc *lexScope, col *collector) {
	switch v := n.(type) {
	case *ir.ExpressionStatement:
		refExpr(v.Expr, sc, col, nil)
	case *ir.VariableDeclaration:
		for _, d := range v.Declarators {
			if d.Init != nil {
				refExpr(d.Init, sc, col, nil)
			}
		}
	case *ir.Return:
		if v.Value != nil {
			refExpr(v.Value, sc, col, nil)
		}
	case *cfg.IfMarker:
		refExpr(v.Test, sc, col, nil)
	case *cfg.SwitchMarker:
		for _, c := range v.Cases {
			if c.Test != nil {
				refExpr(c.Test, sc, col, nil)
			}
		}
	case *ir.While:
		refExpr(v.Test, sc, col, nil)
	case *ir.Break, *ir.Continue:
		// labels are plain strings on the node itself, never identifiers
	case *ir.FunctionDeclaration:
		declareNestedFunction(v, sc, col)
	default:
		refExpr(n, sc, col, nil)
	}
}

// declareNestedFunction gives a FunctionDeclaration (statement-level or,
// via refExpr, appearing as a function-expression value) its own child
// scope: its parameters are bound there rather than in the enclosing
// scope (the function's own name is not bound in this child scope),
// then its body is built into a fresh graph and walked the same
// two-pass way.
func declareNestedFunction(fn *ir.FunctionDeclaration, parent *lexScope, col *collector) {
	child := newLexScope(parent)
	for _, param := range fn.Params {
		child.declare(param.Name, &binding{name: param.Name, role: "function-parameter", declSite: param})
	}
	nested := cfg.Build(fn.Body.Body)
	collectDeclarations(nested, child, col)
	collectReferences(nested, child, col)
	col.allScopes = append(col.allScopes, child)
}

// refExpr recurses through expression-shaped nodes, resolving each
// *ir.Identifier it meets against sc. A non-computed Member.Property or
// Property.Key is a property name, not a variable reference, and is
// deliberately skipped — renaming `obj.foo` must never touch `foo`.
func refExpr(n ir.Node, sc *lexScope, col *collector, hint *callArgHint) {
	if n == nil {
		return
	}
	switch v := n.(type) {
	case *ir.Identifier:
		b := sc.resolve(v.Name)
		if b == nil {
			sc.occupied[v.Name] = true // a genuine free/global reference; never shadow it
			return
		}
		if v != b.declSite {
			b.uses = append(b.uses, v)
		}
		if hint != nil {
			b.argHints = append(b.argHints, *hint)
		}
	case *ir.Call:
		refExpr(v.Callee, sc, col, nil)
		callee, _ := v.Callee.(*ir.Identifier)
		for i, a := range v.Args {
			var h *callArgHint
			if callee != nil {
				h = &callArgHint{calleeName: callee.Name, index: i}
			}
			refExpr(a, sc, col, h)
		}
	case *ir.New:
		refExpr(v.Callee, sc, col, nil)
		for _, a := range v.Args {
			refExpr(a, sc, col, nil)
		}
	case *ir.Member:
		refExpr(v.Object, sc, col, nil)
		if v.Computed {
			refExpr(v.Property, sc, col, nil)
		}
	case *ir.Property:
		if v.Computed {
			refExpr(v.Key, sc, col, nil)
		}
		refExpr(v.Value, sc, col, nil)
	case *ir.Object:
		for _, p := range v.Properties {
			refExpr(p, sc, col, nil)
		}
	case *ir.Array:
		for _, e := range v.Elements {
			refExpr(e, sc, col, nil)
		}
	case *ir.Binary:
		refExpr(v.Left, sc, col, nil)
		refExpr(v.Right, sc, col, nil)
	case *ir.Logical:
		refExpr(v.Left, sc, col, nil)
		refExpr(v.Right, sc, col, nil)
	case *ir.Unary:
		refExpr(v.Operand, sc, col, nil)
	case *ir.Update:
		refExpr(v.Operand, sc, col, nil)
	case *ir.Conditional:
		refExpr(v.Test, sc, col, nil)
		refExpr(v.Consequent, sc, col, nil)
		refExpr(v.Alternate, sc, col, nil)
	case *ir.Assignment:
		refExpr(v.Target, sc, col, nil)
		refExpr(v.Value, sc, col, nil)
	case *ir.Sequence:
		for _, e := range v.Expressions {
			refExpr(e, sc, col, nil)
		}
	case *ir.FunctionDeclaration:
		declareNestedFunction(v, sc, col)
	default:
		// literals and any other leaf kind: nothing to resolve
	}
}

// isObfuscatedName applies spec.md §4.12's detector family: the
// hex-prefix and dollar-prefix families and fixed hex suffixes always
// qualify; a name of length 2 or less qualifies unless it is the
// recognized loop-index exemption.
func isObfuscatedName(b *binding) bool {
	if hexPrefixPattern.MatchString(b.name) || dollarPrefixPattern.MatchString(b.name) || hexSuffixPattern.MatchString(b.name) {
		return true
	}
	if len(b.name) <= 2 && !isExemptLoopIndex(b) {
		return true
	}
	return false
}

// isExemptLoopIndex recognizes the i/j/k loop-counter idiom by name and
// initializer shape (a bare numeric literal) rather than by proving the
// declaration sits in a for-loop header: this pass is a heuristic, not
// the provability-gated rewrite internal/passes/structure is, so a
// name-and-shape heuristic is the right level of rigor for an
// exemption whose only consequence is "leave a conventional loop
// counter's name alone".
func isExemptLoopIndex(b *binding) bool {
	if b.name != "i" && b.name != "j" && b.name != "k" {
		return false
	}
	lit, ok := b.init.(*ir.Literal)
	return ok && lit.LitKind == ir.LiteralNumber
}

// isObfuscatedLooking is isObfuscatedName without the loop-index
// exemption, used to check a candidate promoted name (e.g. a callee's
// own parameter name) isn't itself an obfuscated identifier before
// adopting it.
func isObfuscatedLooking(name string) bool {
	if hexPrefixPattern.MatchString(name) || dollarPrefixPattern.MatchString(name) || hexSuffixPattern.MatchString(name) {
		return true
	}
	return len(name) <= 2
}

// chooseName picks the name a binding will be renamed to: the naming
// helper's suggestion when one is configured, valid, and confident
// enough, otherwise the context-aware heuristic, either way made unique
// against every name already visible in the binding's own scope.
func (p *Pass) chooseName(ctx context.Context, b *binding, col *collector, threshold float64, warnings *[]pass.Warning) string {
	heuristic := heuristicName(b, col)

	suggestion, err := p.Helper.SuggestName(ctx, b.name, buildNamingContext(b, heuristic))
	switch {
	case err != nil:
		*warnings = append(*warnings, pass.Warning{
			Code:    "rename.helper-unavailable",
			Message: fmt.Sprintf("naming helper declined %q, falling back to heuristic: %v", b.name, err),
			NodeID:  b.declSite.ID(),
		})
	case suggestion.Name == "":
		// no opinion offered; fall back silently, the same as a NoOpHelper
	case suggestion.Confidence < threshold:
		*warnings = append(*warnings, pass.Warning{
			Code:    "rename.low-confidence",
			Message: fmt.Sprintf("naming helper suggested %q for %q at confidence %.2f, below threshold; falling back to heuristic", suggestion.Name, b.name, suggestion.Confidence),
			NodeID:  b.declSite.ID(),
		})
	case !identifierPattern.MatchString(suggestion.Name) || reservedWords[suggestion.Name]:
		*warnings = append(*warnings, pass.Warning{
			Code:    "rename.invalid-suggestion",
			Message: fmt.Sprintf("naming helper suggested %q for %q, not a legal or non-reserved identifier; falling back to heuristic", suggestion.Name, b.name),
			NodeID:  b.declSite.ID(),
		})
	default:
		return uniqueName(b.scope, suggestion.Name)
	}

	return uniqueName(b.scope, heuristic)
}

// heuristicName implements spec.md §4.12's name-source rules: role
// first (a function's own name, a bare parameter), then call-argument
// promotion, then the initializer's own shape.
func heuristicName(b *binding, col *collector) string {
	switch b.role {
	case "function-name":
		return "fn"
	case "function-parameter":
		if name, ok := promotedParamName(b, col); ok {
			return name
		}
		return "param"
	}
	if name, ok := promotedParamName(b, col); ok {
		return name
	}
	return initBasedName(b.init)
}

// promotedParamName looks for a call site where b was passed as a
// direct argument to a function whose declaration (and therefore
// parameter names) this walk already knows about, promoting to that
// parameter's own name when it isn't itself obfuscated-looking.
func promotedParamName(b *binding, col *collector) (string, bool) {
	for _, h := range b.argHints {
		fn, ok := col.funcsByName[h.calleeName]
		if !ok || h.index >= len(fn.Params) {
			continue
		}
		name := fn.Params[h.index].Name
		if name == "" || isObfuscatedLooking(name) {
			continue
		}
		return name, true
	}
	return "", false
}

func initBasedName(init ir.Node) string {
	switch v := init.(type) {
	case *ir.Literal:
		switch v.LitKind {
		case ir.LiteralNumber:
			return "num"
		case ir.LiteralString:
			return "str"
		case ir.LiteralBoolean:
			return "flag"
		default:
			return "value"
		}
	case *ir.Array:
		return "arr"
	case *ir.Object:
		return "obj"
	case *ir.FunctionDeclaration:
		return "fn"
	case *ir.Call:
		return "result"
	default:
		return "value"
	}
}

// buildNamingContext assembles the naming.Context a helper needs to
// reason about a binding: its role, a best-effort textual snippet of
// its initializer or declaration site (every ir.Node already
// implements String(), so this needs no dedicated printer), and the
// heuristic's own guess as a disclosed fact the helper can agree with
// or override.
func buildNamingContext(b *binding, heuristic string) naming.Context {
	snippet := fmt.Sprint(b.declSite)
	if b.init != nil {
		snippet = fmt.Sprint(b.init)
	}
	return naming.Context{
		Role:     b.role,
		Snippet:  snippet,
		Facts:    []string{fmt.Sprintf("heuristic-suggestion:%s", heuristic)},
		Language: "javascript",
	}
}

// uniqueName suffixes base with an increasing integer until it collides
// with no name already visible in sc (spec.md §4.12's scope-correctness
// clause), falling back to a safe default if base isn't even a legal
// identifier shape (an empty or malformed naming-helper suggestion
// reaching here would otherwise produce unparsable output).
func uniqueName(sc *lexScope, base string) string {
	if !identifierPattern.MatchString(base) {
		base = "value"
	}
	candidate := base
	for n := 1; sc.occupied[candidate] || reservedWords[candidate]; n++ {
		candidate = base + strconv.Itoa(n)
	}
	return candidate
}

// applyRename renames a binding's declaration site and every resolved
// use together (spec.md §4.12's "all uses of a given definition are
// renamed together"), then reindexes the owning scope's bookkeeping
// under the new name so later bindings in the same scope see it as
// occupied.
func applyRename(b *binding, newName string) {
	old := b.name
	b.declSite.Name = newName
	for _, u := range b.uses {
		u.Name = newName
	}
	delete(b.scope.bindings, old)
	b.scope.bindings[newName] = b
	b.scope.occupied[newName] = true
	b.name = newName
}
