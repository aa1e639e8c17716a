// Package dom computes dominance, dominance frontiers, post-dominance,
// and natural loops over a cfg.Graph, populating the derived fields each
// cfg.Block carries (spec.md §4.3).
package dom

import (
	"sort"

	"github.com/deobfuscator/core/internal/cfg"
)

// Result reports whether the computation found irreducible control flow
// (spec.md §4.3's "Failure" clause); downstream structuring passes must
// fall back to sequential emission when Irreducible is true.
type Result struct {
	Irreducible      bool
	IrreducibleNotes []string
}

// Compute populates every reachable block's dominance fields in place:
// Dominators, ImmediateDominator, DominanceFrontier, PostDominators,
// ImmediatePostDom, LoopDepth, LoopHeader, BackEdges.
func Compute(g *cfg.Graph) Result {
	// Clear post-dominators left by an earlier Compute so the forward
	// immediate-dominator pass below is not mistaken for the reverse one.
	for _, b := range g.Blocks {
		b.PostDominators = nil
	}
	order := g.ReversePostOrder()
	computeDominators(g, order, g.Entry, false)
	computeImmediateDominators(g, order)
	computeFrontiers(g, order)

	revOrder := reversePostOrderFrom(g, g.Exit, true)
	computeDominators(g, revOrder, g.Exit, true)
	computeImmediateDominators(g, revOrder)

	res := Result{}
	backEdges := findBackEdges(g, order)
	assignLoops(g, backEdges, &res)
	return res
}

func preds(g *cfg.Graph, label string, reverse bool) []string {
	b := g.Blocks[label]
	if b == nil {
		return nil
	}
	if reverse {
		return b.Successors
	}
	return b.Predecessors
}

func succs(g *cfg.Graph, label string, reverse bool) []string {
	b := g.Blocks[label]
	if b == nil {
		return nil
	}
	if reverse {
		return b.Predecessors
	}
	return b.Successors
}

// computeDominators runs the classical iterative dataflow fixed point
// (spec.md §4.3): dominators(entry) = {entry}; dominators(other) = all
// blocks; repeat dominators(B) = {B} ∪ ⋂ dominators(pred) until stable.
func computeDominators(g *cfg.Graph, order []string, root string, reverse bool) {
	all := map[string]bool{}
	for label := range g.Blocks {
		all[label] = true
	}

	dom := map[string]map[string]bool{}
	for label := range g.Blocks {
		if label == root {
			dom[label] = map[string]bool{root: true}
		} else {
			dom[label] = cloneSet(all)
		}
	}

	changed := true
	for changed {
		changed = false
		for _, label := range order {
			if label == root {
				continue
			}
			ps := preds(g, label, reverse)
			if len(ps) == 0 {
				continue
			}
			var inter map[string]bool
			for _, p := range ps {
				pd, ok := dom[p]
				if !ok {
					inter = map[string]bool{}
					break
				}
				if inter == nil {
					inter = cloneSet(pd)
				} else {
					inter = intersect(inter, pd)
				}
			}
			if inter == nil {
				inter = map[string]bool{}
			}
			inter[label] = true
			if !setEqual(inter, dom[label]) {
				dom[label] = inter
				changed = true
			}
		}
	}

	for label, set := range dom {
		b := g.Blocks[label]
		if b == nil {
			continue
		}
		if reverse {
			b.PostDominators = set
		} else {
			b.Dominators = set
		}
	}
}

// computeImmediateDominators derives each block's unique immediate
// dominator: the strict dominator not dominated by any other strict
// dominator (spec.md §4.3).
func computeImmediateDominators(g *cfg.Graph, order []string) {
	reverse := order != nil && len(order) > 0 && isPostDomPass(g, order)
	for _, label := range order {
		b := g.Blocks[label]
		if b == nil {
			continue
		}
		var set map[string]bool
		if reverse {
			set = b.PostDominators
		} else {
			set = b.Dominators
		}
		strict := make([]string, 0, len(set))
		for d := range set {
			if d != label {
				strict = append(strict, d)
			}
		}
		idom := ""
		for _, candidate := range strict {
			dominatedByOther := false
			for _, other := range strict {
				if other == candidate {
					continue
				}
				otherSet := g.Blocks[other]
				if otherSet == nil {
					continue
				}
				var otherDomSet map[string]bool
				if reverse {
					otherDomSet = otherSet.PostDominators
				} else {
					otherDomSet = otherSet.Dominators
				}
				if otherDomSet[candidate] {
					dominatedByOther = true
					break
				}
			}
			if !dominatedByOther {
				idom = candidate
				break
			}
		}
		if reverse {
			b.ImmediatePostDom = idom
		} else {
			b.ImmediateDominator = idom
		}
	}
}

// isPostDomPass is a small heuristic: computeImmediateDominators is
// called once for the forward pass (dominators already populated, post
// -dominators empty) and once for the reverse pass. We detect which by
// checking whether PostDominators has been populated for the graph's
// exit-reachable blocks.
func isPostDomPass(g *cfg.Graph, order []string) bool {
	for _, label := range order {
		b := g.Blocks[label]
		if b != nil && len(b.PostDominators) > 0 {
			return true
		}
	}
	return false
}

// computeFrontiers derives the dominance frontier of each block: the set
// of blocks where its dominance ends (spec.md §4.3, glossary) — the
// canonical site for φ-node insertion.
func computeFrontiers(g *cfg.Graph, order []string) {
	for label := range g.Blocks {
		g.Blocks[label].DominanceFrontier = map[string]bool{}
	}
	for _, label := range order {
		b := g.Blocks[label]
		if b == nil || len(b.Predecessors) < 2 {
			continue
		}
		for _, p := range b.Predecessors {
			runner := p
			for runner != "" && runner != b.ImmediateDominator {
				rb := g.Blocks[runner]
				if rb == nil {
					break
				}
				rb.DominanceFrontier[label] = true
				runner = rb.ImmediateDominator
			}
		}
	}
}

// findBackEdges reports every edge u->v where v dominates u (glossary).
func findBackEdges(g *cfg.Graph, order []string) []cfg.Edge {
	var backs []cfg.Edge
	for _, e := range g.Edges {
		from := g.Blocks[e.From]
		if from == nil {
			continue
		}
		if from.Dominators[e.To] {
			backs = append(backs, e)
		}
	}
	sort.Slice(backs, func(i, j int) bool {
		if backs[i].From != backs[j].From {
			return backs[i].From < backs[j].From
		}
		return backs[i].To < backs[j].To
	})
	return backs
}

// assignLoops computes the natural loop for every back-edge (spec.md
// §4.3): the header plus every block that can reach the back-edge's
// source without passing through the header, then assigns loop depth
// via containment.
type loopInfo struct {
	header string
	body   map[string]bool
}

func assignLoops(g *cfg.Graph, backEdges []cfg.Edge, res *Result) {
	var loops []loopInfo

	headerSeen := map[string][]cfg.Edge{}
	for _, e := range backEdges {
		headerSeen[e.To] = append(headerSeen[e.To], e)
		g.Blocks[e.To].BackEdges = append(g.Blocks[e.To].BackEdges, e)

		body := map[string]bool{e.To: true}
		stack := []string{e.From}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if body[n] {
				continue
			}
			body[n] = true
			for _, p := range g.Blocks[n].Predecessors {
				if !body[p] {
					stack = append(stack, p)
				}
			}
		}
		loops = append(loops, loopInfo{header: e.To, body: body})
	}

	for header, edges := range headerSeen {
		if len(edges) > 1 {
			// Multiple distinct back-edges into blocks that cannot be
			// merged into one natural loop indicate irreducible control
			// flow (spec.md §4.3's "Failure" clause).
			sources := map[string]bool{}
			for _, e := range edges {
				sources[e.From] = true
			}
			if len(sources) > 1 {
				res.Irreducible = true
				res.IrreducibleNotes = append(res.IrreducibleNotes,
					"multiple back-edges into "+header+" could not be merged into one natural loop")
			}
		}
	}

	for label := range g.Blocks {
		g.Blocks[label].LoopDepth = 0
		g.Blocks[label].LoopHeader = ""
	}
	for _, l := range loops {
		for label := range l.body {
			b := g.Blocks[label]
			if b == nil {
				continue
			}
			b.LoopDepth++
			// Innermost header wins when loops nest; since we process
			// loops in back-edge order (sorted), later (more specific)
			// assignments override earlier outer ones only for smaller
			// bodies — approximate nesting by body size.
			if b.LoopHeader == "" || len(loops) > 0 && len(l.body) < bodySizeOf(loops, b.LoopHeader) {
				b.LoopHeader = l.header
			}
		}
	}
}

func bodySizeOf(loops []loopInfo, header string) int {
	for _, l := range loops {
		if l.header == header {
			return len(l.body)
		}
	}
	return int(^uint(0) >> 1)
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func setEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func reversePostOrderFrom(g *cfg.Graph, root string, reverse bool) []string {
	visited := map[string]bool{}
	var post []string
	var dfs func(label string)
	dfs = func(label string) {
		if visited[label] {
			return
		}
		visited[label] = true
		for _, n := range succs(g, label, reverse) {
			dfs(n)
		}
		post = append(post, label)
	}
	dfs(root)
	rpo := make([]string, len(post))
	for i, label := range post {
		rpo[len(post)-1-i] = label
	}
	return rpo
}
