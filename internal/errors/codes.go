// Package errors renders the pipeline's structured diagnostics
// (pass.Warning, pass.FatalError) for humans: a Rust-style caret
// reporter in the same register as the teacher's own diagnostic
// formatter, independent of the JSON/SARIF export internal/export
// produces from the same data (spec.md §7, SPEC_FULL.md §7).
package errors

import "strings"

// Level names spec.md §7's three condition classes directly, rather
// than a generic error/warning/note/help scale — there are exactly
// three kinds of thing this pipeline ever reports, and the reporter's
// formatting (color, heading word) follows which one a diagnostic is.
type Level string

const (
	// Fatal: the pipeline could not proceed past this condition at all.
	Fatal Level = "fatal"
	// PassLocal: a single pass gave up on this input and rolled back,
	// but the pipeline as a whole continues with the next pass.
	PassLocal Level = "warning"
	// Suggestion: a confidence-gated transformation the core declined
	// to apply on its own; carried for a driver or interactive UI.
	Suggestion Level = "suggestion"
)

// Known code prefixes, one per pass family that raises structured
// warnings today. Category() strips a code down to the part before the
// first '.', which is the pass's own Name() for every warning this
// repository currently emits (e.g. "deflatten.complexity-exceeded" ->
// "deflatten"); this needs no registry to keep in sync as passes are
// added; a new pass's warnings categorize correctly the moment it
// follows the same "name.reason" code convention the existing passes
// already use.
func Category(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i]
	}
	return "general"
}

// IsSuggestion reports whether a pass-local warning code represents a
// spec.md §7 class-3 suggestion (a declined, confidence-gated rewrite)
// rather than a class-2 pass-local failure. Every pass in this
// repository that emits a suggestion names its code with a
// "low-confidence" suffix; a driver wanting to offer suggestions
// separately from failures filters on this.
func IsSuggestion(code string) bool {
	return strings.HasSuffix(code, "low-confidence")
}

// Known fatal-error codes (spec.md §7 class 1): conditions the pipeline
// cannot proceed past at all, raised outside any single pass's Run.
const (
	FatalParseFailure       = "fatal.parse-failure"
	FatalInvariantViolation = "fatal.invariant-violation"
	FatalOutOfMemory        = "fatal.out-of-memory"
)

var fatalDescriptions = map[string]string{
	FatalParseFailure:       "the input could not be parsed into an IR program",
	FatalInvariantViolation: "an internal structural invariant was violated (see spec.md §8's P1-P5)",
	FatalOutOfMemory:        "the job exceeded its memory budget",
}

// Describe returns a human-readable description for a known fatal code,
// falling back to a generic description built from the code's own text
// for anything outside the fixed fatal-code set (every pass-local and
// suggestion code: their Message field is already a complete
// human-readable sentence, so no separate catalog entry is needed).
func Describe(code string) string {
	if d, ok := fatalDescriptions[code]; ok {
		return d
	}
	return "see the diagnostic's own message"
}
