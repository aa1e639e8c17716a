// Command deobfuscate is the one-shot CLI entry point: parse a
// JavaScript file, run it through the full pass pipeline, and print
// the result (plus, on request, an analysis-data export document and
// a human-readable diagnostic report) — the CLI counterpart to
// cmd/deobfuscate-lsp's editor-facing server, grounded on
// shivasurya-code-pathfinder's cmd/root.go + cmd/scan.go split between
// a persistent-flag root command and a RunE-driven subcommand.
package main

import (
	"github.com/spf13/cobra"
)

var (
	// Version is overridden at release build time via -ldflags.
	Version = "0.1.0"

	configPath   string
	noTelemetry  bool
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "deobfuscate",
	Short: "Static deobfuscation for obfuscated JavaScript",
	Long: `deobfuscate rebuilds readable structure out of obfuscated JavaScript:
control-flow deflattening, constant folding, copy propagation,
dead-code elimination, string-decoder replay, opaque-predicate removal,
structuring, identifier renaming, and a final dead-code sweep, driven
to a fixed point over a single pipeline.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML configuration file")
	rootCmd.PersistentFlags().BoolVar(&noTelemetry, "no-telemetry", false, "disable anonymous usage reporting")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "print per-pass pipeline progress")
}
