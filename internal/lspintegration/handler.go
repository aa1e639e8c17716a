// Package lspintegration exposes the pipeline's diagnostics over the
// Language Server Protocol: open a file, run the full pass pipeline
// against it, and publish every pass.Warning back to the editor as an
// LSP diagnostic — the editor-facing counterpart to cmd/deobfuscate's
// one-shot CLI, grounded on kanso's internal/lsp handler (same
// Initialize/TextDocumentDidOpen/TextDocumentDidChange shape, same
// glsp/protocol_3_16 wiring) but reporting pass warnings instead of a
// type-checker's diagnostics.
package lspintegration

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/deobfuscator/core/internal/config"
	deoberrors "github.com/deobfuscator/core/internal/errors"
	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/job"
	"github.com/deobfuscator/core/internal/naming"
	"github.com/deobfuscator/core/internal/pass"
	"github.com/deobfuscator/core/internal/passes/constprop"
	"github.com/deobfuscator/core/internal/passes/copyprop"
	"github.com/deobfuscator/core/internal/passes/dce"
	"github.com/deobfuscator/core/internal/passes/deflatten"
	"github.com/deobfuscator/core/internal/passes/opaque"
	"github.com/deobfuscator/core/internal/passes/rename"
	"github.com/deobfuscator/core/internal/passes/stringdecoder"
	"github.com/deobfuscator/core/internal/passes/structure"
	"github.com/deobfuscator/core/internal/source"
	"github.com/deobfuscator/core/internal/trace"
)

// BuildPipeline assembles the full nine-pass pipeline from cfg, the
// same ordering and configuration wiring cmd/deobfuscate uses — in
// particular, constprop's EnhancedEvaluationBound is overridden from
// cfg.Constprop.EnhancedEvaluationBound rather than left at New's
// built-in default, so a workspace-level config file actually reaches
// the lattice-based evaluator both here and from the CLI. This server
// has no live naming.Helper or trace.Sandbox collaborator of its own
// (there is no out-of-process helper to dial per-keystroke); it runs
// with the tolerant no-op defaults every pass already falls back to
// when no collaborator is configured.
func BuildPipeline(cfg *config.Config) *pass.Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	cp := constprop.New()
	cp.EnhancedEvaluationBound = cfg.Constprop.EnhancedEvaluationBound

	df := deflatten.New()
	df.ComplexityBound = cfg.Deflatten.ComplexityBound

	op := opaque.New()
	op.ComplexityBound = cfg.Opaque.ComplexityBound
	op.ConfidenceThreshold = cfg.Opaque.ConfidenceThreshold
	op.QueryBudget = cfg.Opaque.QueryBudget.Duration

	rn := rename.New(naming.NoOpHelper{})
	rn.ConfidenceThreshold = cfg.Rename.ConfidenceThreshold

	pipeline := pass.NewPipeline(cfg.Pipeline.MaxFixedPointRounds)
	pipeline.AddPass(df)
	pipeline.AddPass(cp)
	pipeline.AddPass(copyprop.New())
	pipeline.AddPass(dce.New())
	pipeline.AddPass(stringdecoder.New(trace.NewTrace(nil)))
	pipeline.AddPass(op)
	if cfg.Pipeline.PassOrder == config.RenameBeforeStructure {
		pipeline.AddPass(rn)
		pipeline.AddPass(structure.New())
	} else {
		pipeline.AddPass(structure.New())
		pipeline.AddPass(rn)
	}
	pipeline.AddPass(dce.New())
	return pipeline
}

// warningToDiagnostic converts a pass.Warning into an LSP diagnostic,
// resolving its position through nodes the same way
// internal/errors.FromWarning does for the caret reporter, but
// producing protocol.Diagnostic's 0-based Range instead of a
// human-rendered string.
func warningToDiagnostic(w pass.Warning, nodes *ir.NodeMap) protocol.Diagnostic {
	d := deoberrors.FromWarning(w, nodes)
	severity := protocol.DiagnosticSeverityWarning
	if deoberrors.IsSuggestion(w.Code) {
		severity = protocol.DiagnosticSeverityHint
	}

	rng := zeroRange()
	if !d.Position.IsZero() {
		line := uint32(d.Position.Line - 1)
		col := uint32(d.Position.Column - 1)
		end := col + 1
		if d.Length > 0 {
			end = col + uint32(d.Length)
		}
		rng = protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: end},
		}
	}

	return protocol.Diagnostic{
		Range:    rng,
		Severity: ptrSeverity(severity),
		Source:   ptrString(deoberrors.Category(w.Code)),
		Message:  fmt.Sprintf("[%s] %s", w.Code, w.Message),
	}
}

// Handler implements the LSP server handlers this language server
// advertises: open/change/close tracking plus diagnostic publication.
// Unlike kanso's KansoHandler, it holds no AST cache between requests —
// each open/change re-runs the full pipeline, since a pipeline run over
// one obfuscated file is the unit of work this server exists to
// surface, not an incrementally-reusable parse tree.
type Handler struct {
	mu      sync.RWMutex
	content map[string]string

	cfg     *config.Config
	parser  source.Parser
	printer source.Printer
}

// NewHandler creates a Handler. cfg, parser, and printer are the same
// collaborators cmd/deobfuscate wires into internal/job; a nil cfg
// falls back to config.Default().
func NewHandler(cfg *config.Config, parser source.Parser, printer source.Printer) *Handler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Handler{
		content: make(map[string]string),
		cfg:     cfg,
		parser:  parser,
		printer: printer,
	}
}

// Initialize advertises this server's capabilities: full-document sync
// only, since diagnostics are recomputed from the whole file on every
// open or change rather than incrementally.
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
		},
	}, nil
}

// Initialized is a no-op; there is no further handshake
// this server needs once the client confirms capabilities.
func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

// Shutdown releases nothing today; the handler holds no external
// collaborator connections of its own (a naming.Helper or
// trace.Sandbox, if configured, is owned by the passes it was wired
// into, not by Handler).
func (h *Handler) Shutdown(ctx *glsp.Context) error {
	return nil
}

// TextDocumentDidOpen runs the pipeline over the newly opened document
// and publishes its resulting diagnostics.
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	return h.analyzeAndPublish(ctx, params.TextDocument.URI, params.TextDocument.Text)
}

// TextDocumentDidChange re-runs the pipeline over the document's full
// new text (this server only ever requests TextDocumentSyncKindFull) and
// republishes diagnostics.
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	change, ok := params.ContentChanges[len(params.ContentChanges)-1].(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return fmt.Errorf("lspintegration: expected a full-document change event")
	}
	return h.analyzeAndPublish(ctx, params.TextDocument.URI, change.Text)
}

// TextDocumentDidClose forgets the document's tracked content.
func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.content, path)
	h.mu.Unlock()
	return nil
}

// analyzeAndPublish parses text, runs the full pass pipeline, and
// sends every resulting pass.Warning (plus any parse failure) back as
// a publishDiagnostics notification.
func (h *Handler) analyzeAndPublish(ctx *glsp.Context, uri protocol.DocumentUri, text string) error {
	path, err := uriToPath(uri)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.content[path] = text
	h.mu.Unlock()

	background := context.Background()
	parsed, err := h.parser.Parse(background, text, source.ParseOptions{Filename: path, SourceType: source.TypeScript})
	if err != nil {
		ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
			URI: uri,
			Diagnostics: []protocol.Diagnostic{{
				Range:    zeroRange(),
				Severity: ptrSeverity(protocol.DiagnosticSeverityError),
				Source:   ptrString("deobfuscator-parser"),
				Message:  err.Error(),
			}},
		})
		return nil
	}

	j := job.New(background, path, parsed.Nodes, parsed.Factory, h.cfg)
	pipeline := BuildPipeline(h.cfg)

	var diagnostics []protocol.Diagnostic
	result, runErr := j.Run(pipeline)
	if runErr != nil {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    zeroRange(),
			Severity: ptrSeverity(protocol.DiagnosticSeverityError),
			Source:   ptrString("deobfuscator-pipeline"),
			Message:  runErr.Error(),
		})
	}
	for _, w := range result.Pipeline.Warnings {
		diagnostics = append(diagnostics, warningToDiagnostic(w, j.State.Nodes))
	}

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
	return nil
}

func uriToPath(rawURI protocol.DocumentUri) (string, error) {
	u, err := url.Parse(string(rawURI))
	if err != nil {
		return "", fmt.Errorf("lspintegration: invalid URI %s: %w", rawURI, err)
	}
	path := u.Path
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 2 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

func zeroRange() protocol.Range {
	return protocol.Range{Start: protocol.Position{Line: 0, Character: 0}, End: protocol.Position{Line: 0, Character: 1}}
}

func ptrBool(b bool) *bool                                         { return &b }
func ptrString(s string) *string                                   { return &s }
func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity { return &s }
func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind { return &k }
