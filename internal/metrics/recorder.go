// Package metrics exports the measurements of mutation runs in the Prometheus
// text format.
package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gooze.dev/pkg/schemata/internal/domain"
	m "gooze.dev/pkg/schemata/internal/model"
)

const namespace = "schemata"

// Build results used as label values.
const (
	BuildOK           = "ok"
	BuildCompileError = "compile_error"
	BuildError        = "error"
)

var _ domain.Recorder = (*Recorder)(nil)

// Recorder collects run measurements in its own registry.
type Recorder struct {
	registry *prometheus.Registry
	builds   *prometheus.HistogramVec
	testRuns *prometheus.HistogramVec
	mutants  *prometheus.CounterVec
	score    *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Time spent compiling test binaries.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"result"}),
		testRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_run_duration_seconds",
			Help:      "Time spent running test binaries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"phase"}),
		mutants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutants_total",
			Help:      "Evaluated mutants by source and status.",
		}, []string{"source", "status"}),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mutation_score",
			Help:      "Mutation score of the last completed run, in percent.",
		}, []string{"source"}),
	}

	r.registry.MustRegister(r.builds, r.testRuns, r.mutants, r.score)

	return r
}

// ObserveBuild records one compilation.
func (r *Recorder) ObserveBuild(_ string, duration time.Duration, err error) {
	result := BuildOK

	var compileErr *m.BuildError

	switch {
	case errors.As(err, &compileErr):
		result = BuildCompileError
	case err != nil:
		result = BuildError
	}

	r.builds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveTestRun records one execution of a test binary.
func (r *Recorder) ObserveTestRun(phase string, duration time.Duration) {
	r.testRuns.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObserveOutcome counts one evaluated mutant.
func (r *Recorder) ObserveOutcome(source string, outcome m.MutantOutcome) {
	r.mutants.WithLabelValues(source, outcome.Status.String()).Inc()
}

// ObserveScore sets the score of source. An undefined score removes it.
func (r *Recorder) ObserveScore(source string, score m.Score) {
	if !score.Defined {
		r.score.DeleteLabelValues(source)
		return
	}

	r.score.WithLabelValues(source).Set(score.Value)
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes every metric to path in the text exposition format,
// atomically, for the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		slog.Error("Failed to write metrics", "path", path, "error", err)
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}

	slog.Debug("Wrote metrics", "path", path)

	return nil
}
