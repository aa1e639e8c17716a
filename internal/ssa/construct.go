package ssa

import (
	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
)

// Construct places φ-nodes at dominance frontiers and renames every
// variable occurrence to its SSA version, via the classical
// dominance-frontier placement plus dominator-tree-order renaming
// (spec.md §4.4). It requires dom.Compute to have already populated g's
// dominance fields; it does not call dom.Compute itself so callers can
// reuse one dominance computation across analyses that don't need SSA.
//
// params names an implicit version-1 definition seeded at the entry
// block for each — typically a function's parameter list — since the
// flat statement CFG carries no signature of its own.
func Construct(g *cfg.Graph, f *ir.Factory, params []string) *State {
	st := &State{
		Graph:    g,
		Factory:  f,
		Phis:     map[string][]*ir.Phi{},
		PhiNames: map[*ir.Phi]string{},
		UseDef:   newUseDefChains(),
		versions: map[string]int{},
	}

	names := collectAssignedNames(g)
	for _, p := range params {
		names[p] = true
	}

	placePhis(g, names, st)

	domChildren := buildDomTree(g)
	c := &constructor{state: st, names: names, stacks: map[string][]int{}}
	for _, p := range params {
		ver := c.newVersion(p)
		c.push(p, ver)
		st.UseDef.recordDef(Def{Name: p, Version: ver, Block: g.Entry})
	}
	c.renameBlock(g.Entry, domChildren)
	return st
}

func collectAssignedNames(g *cfg.Graph) map[string]bool {
	names := map[string]bool{}
	var walk func(n ir.Node)
	walk = func(n ir.Node) {
		if n == nil {
			return
		}
		switch v := n.(type) {
		case *ir.Declarator:
			if id, ok := v.Name.(*ir.Identifier); ok {
				names[id.Name] = true
			}
		case *ir.Assignment:
			if id, ok := v.Target.(*ir.Identifier); ok {
				names[id.Name] = true
			}
		case *ir.Update:
			if id, ok := v.Operand.(*ir.Identifier); ok {
				names[id.Name] = true
			}
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	for _, label := range sortedBlockLabels(g) {
		b := g.Blocks[label]
		if !b.Reachable {
			continue
		}
		for _, s := range b.Statements {
			walk(s)
		}
	}
	return names
}

func blockDefines(b *cfg.Block, name string) bool {
	found := false
	var walk func(n ir.Node)
	walk = func(n ir.Node) {
		if n == nil || found {
			return
		}
		switch v := n.(type) {
		case *ir.Declarator:
			if id, ok := v.Name.(*ir.Identifier); ok && id.Name == name {
				found = true
				return
			}
		case *ir.Assignment:
			if id, ok := v.Target.(*ir.Identifier); ok && id.Name == name {
				found = true
				return
			}
		case *ir.Update:
			if id, ok := v.Operand.(*ir.Identifier); ok && id.Name == name {
				found = true
				return
			}
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	for _, s := range b.Statements {
		walk(s)
		if found {
			return true
		}
	}
	return false
}

// placePhis computes, for every candidate variable, the iterated
// dominance frontier of its definition blocks and inserts a φ-node at
// each (spec.md §4.4 / glossary's dominance-frontier entry).
func placePhis(g *cfg.Graph, names map[string]bool, st *State) {
	for _, name := range sortedStrings(names) {
		defBlocks := map[string]bool{}
		for _, label := range sortedBlockLabels(g) {
			b := g.Blocks[label]
			if b.Reachable && blockDefines(b, name) {
				defBlocks[label] = true
			}
		}
		hasPhi := map[string]bool{}
		worklist := sortedStrings(defBlocks)
		for len(worklist) > 0 {
			n := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			b := g.Blocks[n]
			if b == nil {
				continue
			}
			for _, frontier := range sortedStrings(b.DominanceFrontier) {
				if hasPhi[frontier] {
					continue
				}
				fb := g.Blocks[frontier]
				if fb == nil || !fb.Reachable {
					continue
				}
				hasPhi[frontier] = true
				phi := st.Factory.Phi(ir.Position{}, frontier, nil)
				st.Phis[frontier] = append(st.Phis[frontier], phi)
				st.PhiNames[phi] = name
				if !defBlocks[frontier] {
					defBlocks[frontier] = true
					worklist = append(worklist, frontier)
				}
			}
		}
	}
}

func buildDomTree(g *cfg.Graph) map[string][]string {
	children := map[string][]string{}
	for _, label := range sortedBlockLabels(g) {
		b := g.Blocks[label]
		if !b.Reachable || b.ImmediateDominator == "" || label == g.Entry {
			continue
		}
		children[b.ImmediateDominator] = append(children[b.ImmediateDominator], label)
	}
	return children
}

func sortedBlockLabels(g *cfg.Graph) []string {
	out := make([]string, 0, len(g.Blocks))
	for l := range g.Blocks {
		out = append(out, l)
	}
	set := map[string]bool{}
	for _, l := range out {
		set[l] = true
	}
	return sortedStrings(set)
}

type constructor struct {
	state  *State
	names  map[string]bool
	stacks map[string][]int
}

func (c *constructor) top(name string) int {
	s := c.stacks[name]
	if len(s) == 0 {
		return -1
	}
	return s[len(s)-1]
}

func (c *constructor) push(name string, ver int) { c.stacks[name] = append(c.stacks[name], ver) }

func (c *constructor) pop(name string) {
	s := c.stacks[name]
	c.stacks[name] = s[:len(s)-1]
}

func (c *constructor) newVersion(name string) int {
	c.state.versions[name]++
	return c.state.versions[name]
}

func (c *constructor) define(name string, stmt ir.Node, block string) *ir.SSAIdentifier {
	ver := c.newVersion(name)
	pos := ir.Position{}
	if stmt != nil {
		pos = stmt.Pos()
	}
	ident := c.state.Factory.SSAIdentifier(pos, name, ver)
	c.push(name, ver)
	c.state.UseDef.recordDef(Def{Name: name, Version: ver, Block: block, Statement: stmt})
	return ident
}

// syncEdges keeps cfg.Edge.Condition in step with a Test field that was
// just replaced by a new pointer (e.g. a bare variable test swapped for
// an SSA-identifier): edges store their own copy of the condition node,
// taken by value when the graph was built.
func (c *constructor) syncEdges(block string, old, updated ir.Node) {
	if old == updated {
		return
	}
	edges := c.state.Graph.Edges
	for i := range edges {
		if edges[i].From == block && edges[i].Condition == old {
			edges[i].Condition = updated
		}
	}
}

func (c *constructor) recordImplicitRead(name string, pos ir.Position) {
	if old := c.top(name); old >= 0 {
		read := c.state.Factory.SSAIdentifier(pos, name, old)
		c.state.UseDef.recordUse(read)
	}
}

func (c *constructor) rewriteUses(n ir.Node, block string) ir.Node {
	return walkExpr(n, func(leaf ir.Node) ir.Node {
		id, ok := leaf.(*ir.Identifier)
		if !ok || !c.names[id.Name] {
			return leaf
		}
		ver := c.top(id.Name)
		if ver < 0 {
			return leaf
		}
		ident := c.state.Factory.SSAIdentifier(id.Pos(), id.Name, ver)
		c.state.UseDef.recordUse(ident)
		return ident
	})
}

// renameBlock walks the dominator tree from label, renaming every
// definition and use in source order, filling successor φ-operands
// before descending, and popping the versions it pushed once its
// dominator-subtree is fully processed (spec.md §4.4).
func (c *constructor) renameBlock(label string, domChildren map[string][]string) {
	b := c.state.Graph.Blocks[label]
	if b == nil {
		return
	}
	counts := map[string]int{}

	for _, phi := range c.state.Phis[label] {
		name := c.state.PhiNames[phi]
		counts[name]++
		ver := c.newVersion(name)
		c.push(name, ver)
		c.state.UseDef.recordDef(Def{Name: name, Version: ver, Block: label, Statement: phi, IsPhi: true})
	}

	for i, stmt := range b.Statements {
		newStmt := c.renameStmt(stmt, label, counts)
		if newStmt != stmt {
			c.syncEdges(label, stmt, newStmt)
		}
		b.Statements[i] = newStmt
	}

	for _, succLabel := range b.Successors {
		for _, phi := range c.state.Phis[succLabel] {
			name := c.state.PhiNames[phi]
			phi.Operands = append(phi.Operands, ir.PhiOperand{
				Predecessor: label,
				Value:       c.currentOrUndefined(name),
			})
		}
	}

	children := append([]string(nil), domChildren[label]...)
	for _, child := range children {
		c.renameBlock(child, domChildren)
	}

	for name, n := range counts {
		for i := 0; i < n; i++ {
			c.pop(name)
		}
	}
}

func (c *constructor) currentOrUndefined(name string) ir.Node {
	if ver := c.top(name); ver >= 0 {
		ident := c.state.Factory.SSAIdentifier(ir.Position{}, name, ver)
		c.state.UseDef.recordUse(ident)
		return ident
	}
	return c.state.Factory.SSAIdentifier(ir.Position{}, name, 0)
}

func (c *constructor) renameStmt(stmt ir.Node, block string, counts map[string]int) ir.Node {
	switch v := stmt.(type) {
	case *ir.ExpressionStatement:
		v.Expr = c.renameExprStmt(v.Expr, block, counts)
		return v
	case *ir.VariableDeclaration:
		for _, d := range v.Declarators {
			if d.Init != nil {
				d.Init = c.rewriteUses(d.Init, block)
			}
			if id, ok := d.Name.(*ir.Identifier); ok && c.names[id.Name] {
				counts[id.Name]++
				d.Name = c.define(id.Name, d, block)
			}
		}
		return v
	case *ir.Return:
		if v.Value != nil {
			v.Value = c.rewriteUses(v.Value, block)
		}
		return v
	case *ir.Break, *ir.Continue:
		return v
	case *ir.While:
		old := v.Test
		v.Test = c.rewriteUses(v.Test, block)
		c.syncEdges(block, old, v.Test)
		return v
	case *cfg.IfMarker:
		old := v.Test
		v.Test = c.rewriteUses(v.Test, block)
		c.syncEdges(block, old, v.Test)
		return v
	case *cfg.SwitchMarker:
		for _, cs := range v.Cases {
			if cs.Test == nil {
				continue
			}
			old := cs.Test
			cs.Test = c.rewriteUses(cs.Test, block)
			c.syncEdges(block, old, cs.Test)
		}
		return v
	case *ir.FunctionDeclaration:
		// Nested function bodies get their own CFG and SSA pass.
		return v
	default:
		return c.renameExprStmt(v, block, counts)
	}
}

// renameExprStmt handles the top-level expression forms that can appear
// as a bare statement entry: assignment, update, and everything else
// (plain reads, a For loop's already-flattened init/test/update).
func (c *constructor) renameExprStmt(n ir.Node, block string, counts map[string]int) ir.Node {
	switch v := n.(type) {
	case *ir.Assignment:
		v.Value = c.rewriteUses(v.Value, block)
		if id, ok := v.Target.(*ir.Identifier); ok && c.names[id.Name] {
			if v.Op != "=" {
				c.recordImplicitRead(id.Name, id.Pos())
			}
			counts[id.Name]++
			v.Target = c.define(id.Name, v, block)
		} else {
			v.Target = c.rewriteUses(v.Target, block)
		}
		return v
	case *ir.Update:
		if id, ok := v.Operand.(*ir.Identifier); ok && c.names[id.Name] {
			c.recordImplicitRead(id.Name, id.Pos())
			counts[id.Name]++
			v.Operand = c.define(id.Name, v, block)
		} else {
			v.Operand = c.rewriteUses(v.Operand, block)
		}
		return v
	default:
		return c.rewriteUses(n, block)
	}
}
