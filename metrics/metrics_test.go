package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecording(t *testing.T) {
	m := New()

	m.ObserveStep("schema_reset", "ok", 10*time.Millisecond)
	m.ObserveStep("schema_reset", "ok", 20*time.Millisecond)
	m.ObserveStep("role_seed", "warning", time.Millisecond)
	m.SetSeeded("roles", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepTotal.WithLabelValues("schema_reset", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepTotal.WithLabelValues("role_seed", "warning")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SeededRecords.WithLabelValues("roles")))

	at := time.Unix(1700000000, 0)
	m.Finish("ABORTED_CONNECTIVITY", at)
	m.Finish("HANDED_OFF", at)
	assert.Equal(t, 1, testutil.CollectAndCount(m.TerminalState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TerminalState.WithLabelValues("HANDED_OFF")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRun))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStep("probe", "ok", time.Second)
		m.SetSeeded("users", 1)
		m.Finish("HANDED_OFF", time.Now())
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveStep("probe", "ok", time.Millisecond)
	m.Finish("HANDED_OFF", time.Now())

	path := filepath.Join(t.TempDir(), "bootstrap.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `bootstrap_step_total{outcome="ok",step="probe"} 1`)
	assert.Contains(t, string(content), `bootstrap_terminal_state{state="HANDED_OFF"} 1`)
}
