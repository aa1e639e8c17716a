package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReporter_DisabledByFlagNeverTouchesDisk(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	r := NewReporter("phc_fake_key", true, "0.0.0-test")
	assert.False(t, r.enabled)
	assert.Empty(t, r.distinctID)

	_, err := os.Stat(filepath.Join(dir, ".deobfuscator", ".env"))
	assert.True(t, os.IsNotExist(err), "a disabled reporter must not create the telemetry env file")
}

func TestNewReporter_NoPublicKeyIsInert(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	r := NewReporter("", false, "0.0.0-test")
	assert.False(t, r.enabled)
}

func TestNewReporter_MintsAndPersistsStableDistinctID(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	r1 := NewReporter("phc_fake_key", false, "0.0.0-test")
	require.NotEmpty(t, r1.distinctID)

	r2 := NewReporter("phc_fake_key", false, "0.0.0-test")
	assert.Equal(t, r1.distinctID, r2.distinctID, "a second reporter over the same HOME must reuse the same identifier")
}

func TestReportEvent_NoopWhenDisabledDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	r := NewReporter("", true, "")
	assert.NotPanics(t, func() {
		r.ReportEvent(JobStarted)
		r.ReportEventWithProperties(JobCompleted, map[string]any{"passes_applied": 3})
	})
}
