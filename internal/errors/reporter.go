package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/deobfuscator/core/internal/ir"
	"github.com/deobfuscator/core/internal/pass"
)

// Suggestion is a proposed fix attached to a Diagnostic, mirroring the
// teacher's own Suggestion shape.
type Suggestion struct {
	Message     string
	Replacement string
	Position    ir.Position
}

// Diagnostic is a structured, renderable report: the generalization of
// the teacher's CompilerError from a single AST position to the IR's
// ir.Position, and from a fixed error/warning/note/help scale to
// spec.md §7's three condition classes.
type Diagnostic struct {
	Level       Level
	Code        string
	Message     string
	Position    ir.Position
	Length      int
	Suggestions []Suggestion
	Notes       []string
	HelpText    string
}

// FromWarning builds a Diagnostic from a pass.Warning, resolving its
// NodeID (when set) to a source position via the job's node map, and
// classifying its level via IsSuggestion.
func FromWarning(w pass.Warning, nodes *ir.NodeMap) Diagnostic {
	level := PassLocal
	if IsSuggestion(w.Code) {
		level = Suggestion
	}
	d := Diagnostic{Level: level, Code: w.Code, Message: w.Message}
	if w.NodeID != 0 && nodes != nil {
		if n := nodes.Get(w.NodeID); n != nil {
			d.Position = n.Pos()
		}
	}
	return d
}

// FromFatal builds a Diagnostic from a pass.FatalError.
func FromFatal(err *pass.FatalError) Diagnostic {
	return Diagnostic{
		Level:   Fatal,
		Code:    FatalInvariantViolation,
		Message: fmt.Sprintf("%s: %s", err.Pass, err.Message),
	}
}

// Reporter formats Diagnostics against a named source file with
// Rust-style caret underlines and surrounding context lines, the same
// presentation the teacher's ErrorReporter produces.
type Reporter struct {
	filename string
	lines    []string
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

func (r *Reporter) Format(d Diagnostic) string {
	var out strings.Builder
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	levelColor := r.levelColor(d.Level)

	if d.Code != "" {
		out.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message))
	} else {
		out.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(d.Level)), d.Message))
	}

	if d.Position.IsZero() {
		out.WriteString("\n")
		return out.String()
	}

	width := lineNumberWidth(d.Position.Line)
	indent := strings.Repeat(" ", width)

	out.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, d.Position.Line, d.Position.Column))
	out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	if d.Position.Line > 1 && d.Position.Line-1 <= len(r.lines) {
		out.WriteString(fmt.Sprintf("%s %s %s\n",
			dim(fmt.Sprintf("%*d", width, d.Position.Line-1)), dim("│"), r.lines[d.Position.Line-2]))
	}
	if d.Position.Line >= 1 && d.Position.Line <= len(r.lines) {
		out.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, d.Position.Line)), dim("│"), r.lines[d.Position.Line-1]))
		out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), r.marker(d.Position.Column, d.Length, d.Level)))
	}
	if d.Position.Line < len(r.lines) {
		out.WriteString(fmt.Sprintf("%s %s %s\n",
			dim(fmt.Sprintf("%*d", width, d.Position.Line+1)), dim("│"), r.lines[d.Position.Line]))
	}

	if len(d.Suggestions) > 0 {
		out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))
		cyan := color.New(color.FgCyan).SprintFunc()
		for i, s := range d.Suggestions {
			if i == 0 {
				out.WriteString(fmt.Sprintf("%s %s %s: %s\n", indent, cyan("help"), cyan("try"), s.Message))
			} else {
				out.WriteString(fmt.Sprintf("%s %s %s\n", indent, cyan("    "), s.Message))
			}
			if s.Replacement != "" {
				replacement := strings.ReplaceAll(s.Replacement, "\n", fmt.Sprintf("\n%s %s ", indent, dim("│")))
				out.WriteString(fmt.Sprintf("%s %s %s\n", indent, cyan("│"), cyan(replacement)))
			}
		}
	}

	for _, note := range d.Notes {
		blue := color.New(color.FgBlue).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), blue("note:"), note))
	}

	if d.HelpText != "" {
		green := color.New(color.FgGreen).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), green("help:"), d.HelpText))
	}

	out.WriteString("\n")
	return out.String()
}

func (r *Reporter) levelColor(level Level) func(...interface{}) string {
	switch level {
	case Fatal:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case PassLocal:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Suggestion:
		return color.New(color.FgCyan, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func (r *Reporter) marker(column, length int, level Level) string {
	if length <= 0 {
		length = 1
	}
	pad := column - 1
	if pad < 0 {
		pad = 0
	}
	spaces := strings.Repeat(" ", pad)

	markerColor := color.New(color.FgRed, color.Bold).SprintFunc()
	if level == PassLocal {
		markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	} else if level == Suggestion {
		markerColor = color.New(color.FgCyan, color.Bold).SprintFunc()
	}
	return spaces + markerColor(strings.Repeat("^", length))
}

func lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3
	}
	return width
}
