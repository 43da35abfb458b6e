// Package metrics counts artifact resolutions and tool run times of a run
// and writes them in the Prometheus text format for the node exporter
// textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the metrics of one run.
type Recorder struct {
	registry    *prometheus.Registry
	resolutions *prometheus.CounterVec
	tools       *prometheus.HistogramVec
	failures    *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sci_artifact_resolutions_total",
			Help: "Artifact resolutions by kind and outcome (reused, computed, corrected).",
		}, []string{"kind", "outcome"}),
		tools: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sci_tool_duration_seconds",
			Help:    "Run time of external programs.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"tool"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sci_tool_failures_total",
			Help: "External programs that exited with an error.",
		}, []string{"tool"}),
	}
	r.registry.MustRegister(r.resolutions, r.tools, r.failures)
	return r
}

// ObserveResolution counts one artifact resolution.
func (r *Recorder) ObserveResolution(kind, outcome string) {
	r.resolutions.WithLabelValues(kind, outcome).Inc()
}

// ObserveTool records the run time of an external program.
func (r *Recorder) ObserveTool(tool string, d time.Duration, err error) {
	r.tools.WithLabelValues(tool).Observe(d.Seconds())
	if err != nil {
		r.failures.WithLabelValues(tool).Inc()
	}
}

// Gatherer exposes the registry, for example to tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
