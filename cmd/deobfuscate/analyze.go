package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deobfuscator/core/internal/config"
	deoberrors "github.com/deobfuscator/core/internal/errors"
	"github.com/deobfuscator/core/internal/export"
	"github.com/deobfuscator/core/internal/job"
	"github.com/deobfuscator/core/internal/jsparser"
	"github.com/deobfuscator/core/internal/jsprinter"
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
	"github.com/deobfuscator/core/internal/telemetry"
	"github.com/deobfuscator/core/internal/trace"
)

// telemetryPublicKey is compiled in by a distributor; empty in a
// source checkout, which leaves telemetry.NewReporter's reporting
// silently inert regardless of --no-telemetry (see internal/telemetry).
var telemetryPublicKey = ""

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Deobfuscate a JavaScript file and report the pipeline's findings",
	Long: `analyze parses a single JavaScript file, runs it through the full
pass pipeline to a fixed point, and writes the resulting source back
out. Pipeline warnings are reported to stderr as caret diagnostics but
never change the command's exit code; only a pass failure (an invariant
violation, not a warning) does.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringP("output", "o", "", "write deobfuscated source here instead of stdout")
	analyzeCmd.Flags().String("export", "", "write an analysis-data export document here")
	analyzeCmd.Flags().String("export-format", "json", "export document format: json or sarif")
	analyzeCmd.Flags().String("source-type", "script", "parse goal: script or module")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	outputPath, _ := cmd.Flags().GetString("output")
	exportPath, _ := cmd.Flags().GetString("export")
	exportFormat, _ := cmd.Flags().GetString("export-format")
	sourceTypeFlag, _ := cmd.Flags().GetString("source-type")

	if exportFormat != "json" && exportFormat != "sarif" {
		return fmt.Errorf("--export-format must be \"json\" or \"sarif\"")
	}
	sourceType := source.TypeScript
	if sourceTypeFlag == "module" {
		sourceType = source.TypeModule
	} else if sourceTypeFlag != "script" {
		return fmt.Errorf("--source-type must be \"script\" or \"module\"")
	}

	reporter := telemetry.NewReporter(telemetryPublicKey, noTelemetry, Version)
	reporter.ReportEvent(telemetry.JobStarted)

	text, err := os.ReadFile(inputPath)
	if err != nil {
		reporter.ReportEvent(telemetry.JobFailed)
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		reporter.ReportEvent(telemetry.JobFailed)
		return err
	}

	ctx := context.Background()
	parser := jsparser.New()
	parsed, err := parser.Parse(ctx, string(text), source.ParseOptions{Filename: inputPath, SourceType: sourceType})
	if err != nil {
		reporter.ReportEvent(telemetry.JobFailed)
		diagReporter := deoberrors.NewReporter(inputPath, string(text))
		fmt.Fprint(os.Stderr, diagReporter.Format(deoberrors.Diagnostic{
			Level:   deoberrors.Fatal,
			Code:    deoberrors.FatalParseFailure,
			Message: err.Error(),
		}))
		return err
	}

	j := job.New(ctx, inputPath, parsed.Nodes, parsed.Factory, cfg)
	printer := jsprinter.New()
	recorder := export.NewRecorder(inputPath, string(text), Version, printer)
	recorder.Start(j.State)

	pipeline := buildPipeline(cfg)
	pipeline.Verbose = verboseFlag
	pipeline.OnStep(recorder.StepHook())
	pipeline.OnWarning(recorder.WarningHook())
	pipeline.OnWarning(func(passName string, w pass.Warning) {
		reporter.ReportEventWithProperties(telemetry.WarningRaised, map[string]any{"pass": passName, "code": w.Code})
	})

	result, err := j.Run(pipeline)
	if err != nil {
		reporter.ReportEvent(telemetry.JobFailed)
		diagReporter := deoberrors.NewReporter(inputPath, string(text))
		if fatal, ok := asFatalError(err); ok {
			fmt.Fprint(os.Stderr, diagReporter.Format(deoberrors.FromFatal(fatal)))
		} else {
			fmt.Fprint(os.Stderr, diagReporter.Format(deoberrors.Diagnostic{Level: deoberrors.Fatal, Code: deoberrors.FatalInvariantViolation, Message: err.Error()}))
		}
		return err
	}
	if result.Cancelled {
		reporter.ReportEvent(telemetry.JobCancelled)
		return fmt.Errorf("analyze: job %s cancelled before completion", j.ID)
	}

	printed, err := printer.Print(ctx, result.State, source.PrintOptions{})
	if err != nil {
		reporter.ReportEvent(telemetry.JobFailed)
		return fmt.Errorf("printing result: %w", err)
	}

	if err := writeOutput(outputPath, printed.Code); err != nil {
		return err
	}

	if exportPath != "" {
		doc := recorder.Build(result.State.Graph, printed.Code, result.Completed)
		if err := writeExport(exportPath, exportFormat, doc); err != nil {
			return err
		}
	}

	diagReporter := deoberrors.NewReporter(inputPath, string(text))
	for _, w := range result.Pipeline.Warnings {
		fmt.Fprint(os.Stderr, diagReporter.Format(deoberrors.FromWarning(w, result.State.Nodes)))
	}

	reporter.ReportEventWithProperties(telemetry.JobCompleted, map[string]any{
		"nodes_changed":  result.Pipeline.Metrics.NodesChanged,
		"warnings_count": len(result.Pipeline.Warnings),
	})

	return nil
}

// buildPipeline assembles the nine-pass pipeline from cfg, overriding
// every pass's tunable bound from the loaded configuration rather than
// leaving each pass's own New() default in place — in particular,
// constprop's EnhancedEvaluationBound is always sourced from
// cfg.Constprop.EnhancedEvaluationBound so a workspace's TOML file
// actually reaches the lattice-based enhanced evaluator.
func buildPipeline(cfg *config.Config) *pass.Pipeline {
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

func writeOutput(path, code string) error {
	if path == "" {
		fmt.Print(code)
		return nil
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeExport(path, format string, doc *export.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if format == "sarif" {
		if err := doc.WriteSARIF(f); err != nil {
			return fmt.Errorf("writing SARIF export: %w", err)
		}
		return nil
	}
	if err := doc.WriteJSON(f); err != nil {
		return fmt.Errorf("writing JSON export: %w", err)
	}
	return nil
}

func asFatalError(err error) (*pass.FatalError, bool) {
	var fe *pass.FatalError
	for u := err; u != nil; {
		if v, ok := u.(*pass.FatalError); ok {
			return v, true
		}
		unwrapper, ok := u.(interface{ Unwrap() error })
		if !ok {
			break
		}
		u = unwrapper.Unwrap()
	}
	return fe, false
}
