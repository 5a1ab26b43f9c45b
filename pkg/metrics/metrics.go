// Package metrics instruments decode runs with Prometheus collectors.
//
// A nil *Collector is valid and records nothing, so stages can report
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "merfish"

// Collector holds the counters and histograms of decode runs.
type Collector struct {
	pixels   *prometheus.CounterVec
	regions  *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		pixels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pixels_total",
			Help:      "Number of decoded pixels by outcome.",
		}, []string{"outcome"}),
		regions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_total",
			Help:      "Number of labeled regions by area filter outcome.",
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_runs_total",
			Help:      "Number of decode runs by status.",
		}, []string{"status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of decode pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
	}
}

// ObserveStage records how long a pipeline stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddPixels counts decoded pixels.
func (c *Collector) AddPixels(passed, failed int) {
	if c == nil {
		return
	}
	c.pixels.WithLabelValues("passed").Add(float64(passed))
	c.pixels.WithLabelValues("failed").Add(float64(failed))
}

// AddRegions counts labeled regions kept and rejected by the area filter.
func (c *Collector) AddRegions(kept, rejected int) {
	if c == nil {
		return
	}
	c.regions.WithLabelValues("kept").Add(float64(kept))
	c.regions.WithLabelValues("rejected").Add(float64(rejected))
}

// RunFinished counts a finished run.
func (c *Collector) RunFinished(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.runs.WithLabelValues(status).Inc()
}
