package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bootstrap"

// Metrics holds the collectors for one bootstrap run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	StepTotal     *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	SeededRecords *prometheus.GaugeVec
	LastRun       prometheus.Gauge
	TerminalState *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StepTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_total",
				Help:      "Bootstrap steps executed, by outcome",
			},
			[]string{"step", "outcome"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time spent in each bootstrap step",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"step"},
		),
		SeededRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "seeded_records",
				Help:      "Records present after seeding, by kind",
			},
			[]string{"kind"},
		),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last bootstrap run finished",
		}),
		TerminalState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "terminal_state",
				Help:      "1 for the state the last run ended in",
			},
			[]string{"state"},
		),
	}
}

// ObserveStep records one finished step. outcome is ok, warning or failed.
func (m *Metrics) ObserveStep(step, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepTotal.WithLabelValues(step, outcome).Inc()
	m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) SetSeeded(kind string, n int64) {
	if m == nil {
		return
	}
	m.SeededRecords.WithLabelValues(kind).Set(float64(n))
}

// Finish marks state as the only active terminal state.
func (m *Metrics) Finish(state string, at time.Time) {
	if m == nil {
		return
	}
	m.TerminalState.Reset()
	m.TerminalState.WithLabelValues(state).Set(1)
	m.LastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
