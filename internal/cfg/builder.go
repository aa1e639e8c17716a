package cfg

import "github.com/deobfuscator/core/internal/ir"

// Build constructs a CFG from a flat statement list (a program body or a
// function body), per spec.md §4.2: a single forward walk that splits a
// new block at every statement that terminates a block, with
// deterministic successor ordering (conditional-true before
// conditional-false; switch cases in source order, default last).
//
// The result always has exactly one entry block and one synthetic exit
// block, and every statement node is placed into some block — including
// statements unreachable after a return/break/continue, which are kept
// (flagged, not dropped) for a later dead-code pass to remove.
func Build(stmts []ir.Node) *Graph {
	g := NewGraph()
	entry := newBlock(g.newLabel("entry"))
	entry.Reachable = true
	g.addBlock(entry)
	g.Entry = entry.Label

	exit := newBlock(g.newLabel("exit"))
	g.addBlock(exit)
	g.Exit = exit.Label

	b := &builder{g: g}
	tail := b.walkStmts(entry, stmts, true)
	if tail != nil {
		g.AddEdge(Edge{From: tail.Label, To: exit.Label, Type: EdgeFallThrough})
	}
	return g
}

type loopFrame struct {
	label         string
	continueLabel string
	breakLabel    string
}

type breakFrame struct {
	label      string
	breakLabel string
}

type builder struct {
	g             *Graph
	continueStack []loopFrame
	breakStack    []breakFrame
	pendingLabel  string
}

// walkStmts processes stmts starting in block cur (which must already be
// registered in the graph and reachable-tagged by the caller), and
// returns the block execution falls through to afterward, or nil if
// every path out of this statement list terminates (return/break/
// continue/throw-equivalent), in which case the caller must not add a
// fall-through edge.
func (b *builder) walkStmts(cur *Block, stmts []ir.Node, curReachable bool) *Block {
	reachable := curReachable
	for _, stmt := range stmts {
		if cur == nil {
			// Everything from here on is unreachable: start a fresh
			// unreachable block chain rather than silently dropping
			// statements (spec.md §4.2).
			cur = newBlock(b.g.newLabel("unreachable"))
			cur.Reachable = false
			b.g.addBlock(cur)
			reachable = false
		}
		cur.Reachable = cur.Reachable || reachable
		cur = b.walkOne(cur, stmt, reachable)
	}
	return cur
}

// walkOne dispatches on statement kind. It appends leaf statements to
// cur and returns cur unchanged; it splits blocks for compound/
// terminating statements and returns the block control flow continues
// in (or nil if this statement never falls through).
func (b *builder) walkOne(cur *Block, stmt ir.Node, reachable bool) *Block {
	switch s := stmt.(type) {
	case *ir.If:
		return b.buildIf(cur, s, reachable)
	case *ir.While:
		return b.buildWhile(cur, s, reachable, b.takeLabel())
	case *ir.For:
		return b.buildFor(cur, s, reachable, b.takeLabel())
	case *ir.Switch:
		return b.buildSwitch(cur, s, reachable, b.takeLabel())
	case *ir.Return:
		cur.Statements = append(cur.Statements, s)
		b.g.AddEdge(Edge{From: cur.Label, To: b.g.Exit, Type: EdgeUnconditional})
		return nil
	case *ir.Break:
		cur.Statements = append(cur.Statements, s)
		target := b.resolveBreak(s.Label)
		if target != "" {
			b.g.AddEdge(Edge{From: cur.Label, To: target, Type: EdgeUnconditional})
		}
		return nil
	case *ir.Continue:
		cur.Statements = append(cur.Statements, s)
		target := b.resolveContinue(s.Label)
		if target != "" {
			b.g.AddEdge(Edge{From: cur.Label, To: target, Type: EdgeUnconditional})
		}
		return nil
	case *ir.Labeled:
		prevLabel := b.pendingLabel
		b.pendingLabel = s.Label
		next := b.walkOne(cur, s.Body, reachable)
		b.pendingLabel = prevLabel
		return next
	case *ir.Block:
		return b.walkStmts(cur, s.Body, reachable)
	case *ir.FunctionDeclaration:
		// Function body boundaries terminate the enclosing block's
		// statement list for CFG purposes (spec.md §4.2); the nested
		// function gets its own CFG when analyzed, built separately.
		cur.Statements = append(cur.Statements, s)
		return cur
	default:
		cur.Statements = append(cur.Statements, s)
		return cur
	}
}

func (b *builder) buildIf(cur *Block, s *ir.If, reachable bool) *Block {
	cur.Statements = append(cur.Statements, &IfMarker{s})
	thenBlock := newBlock(b.g.newLabel("then"))
	thenBlock.Reachable = reachable
	b.g.addBlock(thenBlock)
	b.g.AddEdge(Edge{From: cur.Label, To: thenBlock.Label, Type: EdgeConditionalTrue, Condition: s.Test})
	thenTail := b.walkOne(thenBlock, s.Consequent, reachable)

	var elseTail *Block
	var elseBlock *Block
	if s.Alternate != nil {
		elseBlock = newBlock(b.g.newLabel("else"))
		elseBlock.Reachable = reachable
		b.g.addBlock(elseBlock)
		b.g.AddEdge(Edge{From: cur.Label, To: elseBlock.Label, Type: EdgeConditionalFalse, Condition: s.Test})
		elseTail = b.walkOne(elseBlock, s.Alternate, reachable)
	}

	// No else branch: falling off the then-block or never entering it
	// both flow to the join, so the false edge from cur feeds it too.
	if s.Alternate == nil {
		join := newBlock(b.g.newLabel("join"))
		join.Reachable = reachable
		b.g.addBlock(join)
		// The false path always reaches the join even when the
		// consequent itself always terminates.
		b.g.AddEdge(Edge{From: cur.Label, To: join.Label, Type: EdgeConditionalFalse, Condition: s.Test})
		if thenTail != nil {
			b.g.AddEdge(Edge{From: thenTail.Label, To: join.Label, Type: EdgeFallThrough})
		}
		return join
	}

	if thenTail == nil && elseTail == nil {
		return nil // both branches terminate
	}
	join := newBlock(b.g.newLabel("join"))
	join.Reachable = reachable
	b.g.addBlock(join)
	if thenTail != nil {
		b.g.AddEdge(Edge{From: thenTail.Label, To: join.Label, Type: EdgeFallThrough})
	}
	if elseTail != nil {
		b.g.AddEdge(Edge{From: elseTail.Label, To: join.Label, Type: EdgeFallThrough})
	}
	return join
}

// IfMarker keeps an If's test expression reachable from the block's
// statement list for analyses that want to rewrite it in place (e.g.
// SSA renaming, opaque-predicate elimination), while the actual branch
// targets live on the graph edges. Consequent/Alternate are carried
// along for reference but are not the statement list of record once the
// CFG exists — the blocks reached via the edges are.
type IfMarker struct{ *ir.If }

func (b *builder) buildWhile(cur *Block, s *ir.While, reachable bool, label string) *Block {
	header := newBlock(b.g.newLabel("loop_header"))
	header.Reachable = reachable
	b.g.addBlock(header)
	header.Statements = append(header.Statements, s)
	b.g.AddEdge(Edge{From: cur.Label, To: header.Label, Type: EdgeFallThrough})

	exitBlock := newBlock(b.g.newLabel("loop_exit"))
	exitBlock.Reachable = reachable
	b.g.addBlock(exitBlock)

	body := newBlock(b.g.newLabel("loop_body"))
	body.Reachable = reachable
	b.g.addBlock(body)
	b.g.AddEdge(Edge{From: header.Label, To: body.Label, Type: EdgeConditionalTrue, Condition: s.Test})
	b.g.AddEdge(Edge{From: header.Label, To: exitBlock.Label, Type: EdgeConditionalFalse, Condition: s.Test})

	b.pushLoop(label, header.Label, exitBlock.Label)
	bodyTail := b.walkOne(body, s.Body, reachable)
	b.popLoop()
	if bodyTail != nil {
		b.g.AddEdge(Edge{From: bodyTail.Label, To: header.Label, Type: EdgeUnconditional}) // back-edge
	}
	return exitBlock
}

func (b *builder) buildFor(cur *Block, s *ir.For, reachable bool, label string) *Block {
	if s.Init != nil {
		cur.Statements = append(cur.Statements, s.Init)
	}
	header := newBlock(b.g.newLabel("loop_header"))
	header.Reachable = reachable
	b.g.addBlock(header)
	if s.Test != nil {
		header.Statements = append(header.Statements, s.Test)
	}
	b.g.AddEdge(Edge{From: cur.Label, To: header.Label, Type: EdgeFallThrough})

	exitBlock := newBlock(b.g.newLabel("loop_exit"))
	exitBlock.Reachable = reachable
	b.g.addBlock(exitBlock)

	body := newBlock(b.g.newLabel("loop_body"))
	body.Reachable = reachable
	b.g.addBlock(body)
	if s.Test != nil {
		b.g.AddEdge(Edge{From: header.Label, To: body.Label, Type: EdgeConditionalTrue, Condition: s.Test})
		b.g.AddEdge(Edge{From: header.Label, To: exitBlock.Label, Type: EdgeConditionalFalse, Condition: s.Test})
	} else {
		b.g.AddEdge(Edge{From: header.Label, To: body.Label, Type: EdgeUnconditional})
	}

	updateBlock := newBlock(b.g.newLabel("loop_update"))
	updateBlock.Reachable = reachable
	b.g.addBlock(updateBlock)
	if s.Update != nil {
		updateBlock.Statements = append(updateBlock.Statements, s.Update)
	}
	b.g.AddEdge(Edge{From: updateBlock.Label, To: header.Label, Type: EdgeUnconditional}) // back-edge

	b.pushLoop(label, updateBlock.Label, exitBlock.Label)
	bodyTail := b.walkOne(body, s.Body, reachable)
	b.popLoop()
	if bodyTail != nil {
		b.g.AddEdge(Edge{From: bodyTail.Label, To: updateBlock.Label, Type: EdgeFallThrough})
	}
	return exitBlock
}

func (b *builder) buildSwitch(cur *Block, s *ir.Switch, reachable bool, label string) *Block {
	cur.Statements = append(cur.Statements, &SwitchMarker{s})
	exitBlock := newBlock(b.g.newLabel("switch_exit"))
	exitBlock.Reachable = reachable
	b.g.addBlock(exitBlock)

	b.breakStack = append(b.breakStack, breakFrame{label: label, breakLabel: exitBlock.Label})
	defer func() { b.breakStack = b.breakStack[:len(b.breakStack)-1] }()

	hasDefault := false
	var prevTail *Block
	for _, c := range s.Cases {
		caseBlock := newBlock(b.g.newLabel("case"))
		caseBlock.Reachable = reachable
		b.g.addBlock(caseBlock)
		if c.IsDefault() {
			hasDefault = true
			b.g.AddEdge(Edge{From: cur.Label, To: caseBlock.Label, Type: EdgeUnconditional})
		} else {
			b.g.AddEdge(Edge{From: cur.Label, To: caseBlock.Label, Type: EdgeConditionalTrue, Condition: c.Test})
		}
		if prevTail != nil {
			b.g.AddEdge(Edge{From: prevTail.Label, To: caseBlock.Label, Type: EdgeFallThrough})
		}
		tail := b.walkStmts(caseBlock, c.Consequent, reachable)
		prevTail = tail
	}
	if !hasDefault {
		b.g.AddEdge(Edge{From: cur.Label, To: exitBlock.Label, Type: EdgeConditionalFalse})
	}
	if prevTail != nil {
		b.g.AddEdge(Edge{From: prevTail.Label, To: exitBlock.Label, Type: EdgeFallThrough})
	}
	return exitBlock
}

// SwitchMarker is the Switch analogue of IfMarker: each case's test
// expression stays reachable and rewritable from the statement list.
type SwitchMarker struct{ *ir.Switch }

func (b *builder) pushLoop(label, continueLabel, breakLabel string) {
	b.continueStack = append(b.continueStack, loopFrame{label: label, continueLabel: continueLabel, breakLabel: breakLabel})
	b.breakStack = append(b.breakStack, breakFrame{label: label, breakLabel: breakLabel})
}

func (b *builder) popLoop() {
	b.continueStack = b.continueStack[:len(b.continueStack)-1]
	b.breakStack = b.breakStack[:len(b.breakStack)-1]
}

func (b *builder) resolveBreak(label string) string {
	for i := len(b.breakStack) - 1; i >= 0; i-- {
		f := b.breakStack[i]
		if label == "" || f.label == label {
			return f.breakLabel
		}
	}
	return ""
}

// takeLabel consumes the label attached by an enclosing *ir.Labeled, if
// any, so only the immediately-following loop/switch picks it up.
func (b *builder) takeLabel() string {
	label := b.pendingLabel
	b.pendingLabel = ""
	return label
}

func (b *builder) resolveContinue(label string) string {
	for i := len(b.continueStack) - 1; i >= 0; i-- {
		f := b.continueStack[i]
		if label == "" || f.label == label {
			return f.continueLabel
		}
	}
	return ""
}
