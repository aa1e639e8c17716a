// Package export assembles the analysis-data export document (spec.md
// §6, SPEC_FULL.md §7): the original and final source, an ordered
// per-pass record of what the pipeline did, the final CFG, and a
// metadata summary — and renders it as JSON or SARIF. It is the export
// counterpart to internal/errors's human-readable caret diagnostics,
// built from the same pass.Warning/pass.Result data but shaped for a
// CI pipeline or an editor extension to consume rather than a
// terminal.
//
// A Recorder hangs off internal/pass.Pipeline's OnStep/OnWarning hooks
// the same way kanso's analytics layer hangs off its own compiler
// pipeline: the pipeline never imports this package, export only ever
// observes it from the outside.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	sarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/deobfuscator/core/internal/cfg"
	deoberrors "github.com/deobfuscator/core/internal/errors"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/source"
)

// EdgeSnapshot is one serialized cfg.Edge.
type EdgeSnapshot struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type"`
	Condition string `json:"condition,omitempty"`
}

// BlockSnapshot is one serialized cfg.Block: its statements (rendered
// via each node's own String(), not re-parsed source) plus every
// dominance-derived field spec.md §6 names for the CFG export.
type BlockSnapshot struct {
	ID                 string   `json:"id"`
	Statements         []string `json:"statements"`
	Predecessors       []string `json:"predecessors"`
	Successors         []string `json:"successors"`
	Reachable          bool     `json:"reachable"`
	Dominators         []string `json:"dominators,omitempty"`
	ImmediateDominator string   `json:"immediate_dominator,omitempty"`
	DominanceFrontier  []string `json:"dominance_frontier,omitempty"`
	PostDominators     []string `json:"post_dominators,omitempty"`
	ImmediatePostDom   string   `json:"immediate_post_dom,omitempty"`
	LoopDepth          int      `json:"loop_depth,omitempty"`
	LoopHeader         string   `json:"loop_header,omitempty"`
}

// CFGSnapshot is a full serialized cfg.Graph, with Entry/Exit carried
// as block-id strings per spec.md §6.
type CFGSnapshot struct {
	Entry  string          `json:"entry"`
	Exit   string          `json:"exit"`
	Blocks []BlockSnapshot `json:"blocks"`
	Edges  []EdgeSnapshot  `json:"edges"`
}

// WarningRecord is one pass.Warning, resolved to a source position
// (when its NodeID carried one) and classified by internal/errors's
// three-level scale.
type WarningRecord struct {
	Pass     string `json:"pass"`
	Code     string `json:"code"`
	Level    string `json:"level"`
	Message  string `json:"message"`
	Position string `json:"position,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// PassRecord is one pipeline step: the pass's name, its IR before and
// after (a structural dump, not re-printed source — see DumpIR), a
// best-effort printed-code snapshot when a source.Printer is
// available, the resulting CFG, and the pass's own metrics.
type PassRecord struct {
	Name         string       `json:"name"`
	InputIR      string       `json:"input_ir"`
	OutputIR     string       `json:"output_ir"`
	CodeSnapshot string       `json:"code_snapshot,omitempty"`
	CFG          CFGSnapshot  `json:"cfg"`
	Metrics      pass.Metrics `json:"metrics"`
	Changed      bool         `json:"changed"`
}

// Metadata is the export document's summary block (spec.md §6: run
// timestamp, core version, input/output size, pass count, total
// execution time, success flag, and the aggregated warning list).
type Metadata struct {
	Timestamp          time.Time       `json:"timestamp"`
	CoreVersion        string          `json:"core_version"`
	InputSize          int             `json:"input_size"`
	OutputSize         int             `json:"output_size"`
	TotalPasses        int             `json:"total_passes"`
	TotalExecutionTime time.Duration   `json:"total_execution_time"`
	Success            bool            `json:"success"`
	Warnings           []WarningRecord `json:"warnings"`
}

// Document is the complete analysis-data export: original source,
// final source, every pass's record in application order, the final
// CFG, and the run's metadata.
type Document struct {
	Filename       string       `json:"filename,omitempty"`
	OriginalSource string       `json:"original_source"`
	FinalSource    string       `json:"final_source"`
	Passes         []PassRecord `json:"passes"`
	FinalCFG       CFGSnapshot  `json:"final_cfg"`
	Metadata       Metadata     `json:"metadata"`
}

// WriteJSON renders the document as indented JSON.
func (d *Document) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// WriteSARIF renders the document's aggregated warnings as a SARIF
// 2.1.0 log, grounded on shivasurya-code-pathfinder's
// output.SARIFFormatter: one rule per distinct warning code, one
// result per warning, severity mapped from internal/errors's Level.
func (d *Document) WriteSARIF(w io.Writer) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}
	run := sarif.NewRunWithInformationURI("deobfuscator", "https://github.com/deobfuscator/core")

	seenRules := map[string]bool{}
	for _, wr := range d.Metadata.Warnings {
		if !seenRules[wr.Code] {
			seenRules[wr.Code] = true
			run.AddRule(wr.Code).
				WithDescription(deoberrors.Describe(wr.Code)).
				WithName(wr.Code).
				WithDefaultConfiguration(sarif.NewReportingConfiguration().WithLevel(sarifLevel(wr.Level)))
		}

		result := run.CreateResultForRule(wr.Code).
			WithMessage(sarif.NewTextMessage(wr.Message))

		if wr.Line > 0 {
			uri := d.Filename
			if uri == "" {
				uri = "input"
			}
			region := sarif.NewRegion().WithStartLine(wr.Line)
			if wr.Column > 0 {
				region.WithStartColumn(wr.Column)
			}
			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(uri)).
					WithRegion(region),
			)
			result.AddLocation(location)
		}
	}

	report.AddRun(run)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func sarifLevel(level string) string {
	switch level {
	case string(deoberrors.Fatal):
		return "error"
	case string(deoberrors.PassLocal):
		return "warning"
	case string(deoberrors.Suggestion):
		return "note"
	default:
		return "warning"
	}
}

// DumpIR renders g's blocks, in deterministic order, as a flat
// structural listing of each statement's own String() plus its
// children's — a compact identity-preserving snapshot (invariant I1:
// node identity, not re-printed syntax) suitable for diffing one
// pass's input against its output, independent of whatever a
// source.Printer would produce for the same graph.
func DumpIR(g *cfg.Graph) string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	for _, label := range g.OrderedLabels() {
		blk := g.Blocks[label]
		fmt.Fprintf(&b, "block %s:\n", label)
		for _, stmt := range blk.Statements {
			dumpNode(&b, stmt, 1)
		}
	}
	return b.String()
}

func dumpNode(b *strings.Builder, n ir.Node, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.String())
	b.WriteString("\n")
	for _, c := range n.Children() {
		dumpNode(b, c, depth+1)
	}
}

// SnapshotCFG serializes g into a CFGSnapshot.
func SnapshotCFG(g *cfg.Graph) CFGSnapshot {
	if g == nil {
		return CFGSnapshot{}
	}
	snap := CFGSnapshot{Entry: g.Entry, Exit: g.Exit}
	for _, label := range g.OrderedLabels() {
		blk := g.Blocks[label]
		bs := BlockSnapshot{
			ID:                 blk.Label,
			Predecessors:       append([]string(nil), blk.Predecessors...),
			Successors:         append([]string(nil), blk.Successors...),
			Reachable:          blk.Reachable,
			Dominators:         sortedKeys(blk.Dominators),
			ImmediateDominator: blk.ImmediateDominator,
			DominanceFrontier:  sortedKeys(blk.DominanceFrontier),
			PostDominators:     sortedKeys(blk.PostDominators),
			ImmediatePostDom:   blk.ImmediatePostDom,
			LoopDepth:          blk.LoopDepth,
			LoopHeader:         blk.LoopHeader,
		}
		for _, stmt := range blk.Statements {
			bs.Statements = append(bs.Statements, stmt.String())
		}
		snap.Blocks = append(snap.Blocks, bs)
	}
	for _, e := range g.Edges {
		es := EdgeSnapshot{From: e.From, To: e.To, Type: e.Type.String()}
		if e.Condition != nil {
			es.Condition = e.Condition.String()
		}
		snap.Edges = append(snap.Edges, es)
	}
	return snap
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Recorder drives a Document's construction across a pipeline run: it
// installs itself via Pipeline.OnStep and Pipeline.OnWarning, capturing
// one PassRecord per pass application and resolving every warning to a
// source position as it is raised (state.Nodes is only ever guaranteed
// live while the pipeline that owns it is still running).
type Recorder struct {
	filename       string
	originalSource string
	coreVersion    string
	printer        source.Printer

	state   *pass.IRState
	started time.Time
	prevIR  string

	passes   []PassRecord
	warnings []WarningRecord
}

// NewRecorder creates a Recorder for one job's run. printer is
// optional (nil skips per-pass code snapshots); coreVersion is carried
// into the resulting Metadata verbatim; filename names the input for
// the export document and any SARIF artifact locations it produces.
func NewRecorder(filename, originalSource, coreVersion string, printer source.Printer) *Recorder {
	return &Recorder{filename: filename, originalSource: originalSource, coreVersion: coreVersion, printer: printer}
}

// Start records the pipeline's starting state, immediately before
// Pipeline.Run is called.
func (r *Recorder) Start(state *pass.IRState) {
	r.state = state
	r.started = time.Now()
	r.prevIR = DumpIR(state.Graph)
}

// StepHook returns the callback to install via Pipeline.OnStep.
func (r *Recorder) StepHook() func(passName string, state *pass.IRState, res pass.Result) {
	return func(passName string, state *pass.IRState, res pass.Result) {
		outputIR := DumpIR(state.Graph)
		rec := PassRecord{
			Name:     passName,
			InputIR:  r.prevIR,
			OutputIR: outputIR,
			CFG:      SnapshotCFG(state.Graph),
			Metrics:  res.Metrics,
			Changed:  res.Changed,
		}
		if r.printer != nil {
			if printed, err := r.printer.Print(context.Background(), state, source.PrintOptions{}); err == nil {
				rec.CodeSnapshot = printed.Code
			}
		}
		r.passes = append(r.passes, rec)
		r.prevIR = outputIR
	}
}

// WarningHook returns the callback to install via Pipeline.OnWarning.
func (r *Recorder) WarningHook() func(passName string, w pass.Warning) {
	return func(passName string, w pass.Warning) {
		var nodes *ir.NodeMap
		if r.state != nil {
			nodes = r.state.Nodes
		}
		d := deoberrors.FromWarning(w, nodes)
		rec := WarningRecord{
			Pass:     passName,
			Code:     w.Code,
			Level:    string(d.Level),
			Message:  w.Message,
			Position: d.Position.String(),
		}
		if !d.Position.IsZero() {
			rec.Line = d.Position.Line
			rec.Column = d.Position.Column
		}
		r.warnings = append(r.warnings, rec)
	}
}

// Build assembles the final Document once the pipeline run has
// finished (successfully or not). finalSource is the printed output
// text, empty if printing never happened (e.g. a fatal error aborted
// the run before a Printer could run).
func (r *Recorder) Build(finalGraph *cfg.Graph, finalSource string, success bool) *Document {
	return &Document{
		Filename:       r.filename,
		OriginalSource: r.originalSource,
		FinalSource:    finalSource,
		Passes:         r.passes,
		FinalCFG:       SnapshotCFG(finalGraph),
		Metadata: Metadata{
			Timestamp:          time.Now(),
			CoreVersion:        r.coreVersion,
			InputSize:          len(r.originalSource),
			OutputSize:         len(finalSource),
			TotalPasses:        len(r.passes),
			TotalExecutionTime: time.Since(r.started),
			Success:            success,
			Warnings:           r.warnings,
		},
	}
}
