// Package telemetry reports anonymous, opt-out usage events — job
// lifecycle and per-pass application counts, never file paths, source
// text, or identifiers drawn from analyzed code — the same shape
// shivasurya-code-pathfinder's own analytics layer reports for its CLI,
// generalized from a package-level singleton to a per-process Reporter
// value so a driver can hold (or withhold) one explicitly instead of
// every package implicitly sharing global state.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/posthog/posthog-go"
)

// Event names reported by the pipeline. Properties attached to these
// events are restricted to pipeline-internal counters and runtime
// metadata; nothing about the file being deobfuscated is ever included.
const (
	JobStarted    = "deobfuscator:job_started"
	JobCompleted  = "deobfuscator:job_completed"
	JobFailed     = "deobfuscator:job_failed"
	JobCancelled  = "deobfuscator:job_cancelled"
	PassApplied   = "deobfuscator:pass_applied"
	WarningRaised = "deobfuscator:warning_raised"
)

// Reporter sends anonymous usage events to PostHog when enabled and
// configured with a public key; with no key, or when explicitly
// disabled, every report call is a silent no-op, the same
// fail-open-to-nothing behavior the teacher's own ReportEvent has via
// its enableMetrics/PublicKey guard.
type Reporter struct {
	enabled    bool
	publicKey  string
	distinctID string
	version    string
}

// NewReporter builds a Reporter. disabled mirrors a CLI's --no-telemetry
// flag; publicKey is compiled in by the distributor, empty in source
// checkouts (in which case reporting is inert regardless of disabled).
func NewReporter(publicKey string, disabled bool, version string) *Reporter {
	r := &Reporter{enabled: !disabled && publicKey != "", publicKey: publicKey, version: version}
	if r.enabled {
		r.distinctID = loadOrCreateDistinctID()
	}
	return r
}

// configDir returns ~/.deobfuscator, creating it if absent.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("telemetry: failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".deobfuscator")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("telemetry: failed to create config dir: %w", err)
	}
	return dir, nil
}

// loadOrCreateDistinctID reads a stable anonymous identifier from
// ~/.deobfuscator/.env, minting and persisting one on first run. Unlike
// internal/job's per-analysis UUID, this identifier is stable across
// runs so PostHog can distinguish "one installation used ten times"
// from "ten installations used once" without any of those ten runs
// being individually identifiable beyond that.
func loadOrCreateDistinctID() string {
	dir, err := configDir()
	if err != nil {
		return ""
	}
	envFile := filepath.Join(dir, ".env")

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		env := map[string]string{"uuid": uuid.New().String()}
		if err := godotenv.Write(env, envFile); err != nil {
			return ""
		}
	}

	vars, err := godotenv.Read(envFile)
	if err != nil {
		return ""
	}
	return vars["uuid"]
}

// ReportEvent sends event with no additional properties.
func (r *Reporter) ReportEvent(event string) {
	r.ReportEventWithProperties(event, nil)
}

// ReportEventWithProperties sends event with properties merged onto
// automatic runtime metadata (os, arch, go version, pipeline version).
// properties must never carry file paths, source text, or anything
// derived from the program under analysis.
func (r *Reporter) ReportEventWithProperties(event string, properties map[string]any) {
	if !r.enabled || r.distinctID == "" {
		return
	}

	disableGeoIP := false
	client, err := posthog.NewWithConfig(r.publicKey, posthog.Config{
		Endpoint:     "https://us.i.posthog.com",
		DisableGeoIP: &disableGeoIP,
	})
	if err != nil {
		return
	}
	defer client.Close()

	props := posthog.NewProperties()
	props.Set("os", runtime.GOOS)
	props.Set("arch", runtime.GOARCH)
	props.Set("go_version", runtime.Version())
	if r.version != "" {
		props.Set("deobfuscator_version", r.version)
	}
	for k, v := range properties {
		props.Set(k, v)
	}

	_ = client.Enqueue(posthog.Capture{
		DistinctId: r.distinctID,
		Event:      event,
		Properties: props,
	})
}
