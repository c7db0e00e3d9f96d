package metrics

import "github.com/prometheus/client_golang/prometheus"

// RenderMetrics holds Prometheus metrics for markdown rendering.
type RenderMetrics struct {
	Duration      prometheus.Histogram
	Failures      prometheus.Counter
	OptionReloads *prometheus.CounterVec
}

// NewRenderMetrics creates and registers render metrics on the given registry.
func NewRenderMetrics(reg prometheus.Registerer) *RenderMetrics {
	m := &RenderMetrics{
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Duration of markdown to HTML conversion in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5},
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "failures_total",
			Help:      "Total number of documents dropped because they could not be rendered.",
		}),
		OptionReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "option_reloads_total",
			Help:      "Total number of render option reloads by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Duration, m.Failures, m.OptionReloads)
	return m
}
